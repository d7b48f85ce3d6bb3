package oauthd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/openauthd/oauthd/domain"
	"github.com/openauthd/oauthd/oautherr"
)

// Default lifetimes, matching the token endpoint's expires_in values.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// IssuerOptions collects the collaborators and settings an Issuer needs.
type IssuerOptions struct {
	Clients       domain.ClientStore
	Scopes        domain.ScopeStore
	AccessTokens  domain.AccessTokenStore
	RefreshTokens domain.RefreshTokenStore
	AuthCodes     domain.AuthorizationCodeStore
	Users         domain.UserResolver // optional; required for the password grant
	Signer        *TokenSigner
	Codec         *PayloadCodec
	Clock         domain.Clock

	AccessTokenTTL  time.Duration // defaults to DefaultAccessTokenTTL
	RefreshTokenTTL time.Duration // defaults to DefaultRefreshTokenTTL
}

// Issuer implements the four token grant flows. Each grant runs the same
// shape: validate client, validate grant-specific credentials, validate
// scopes, mint entities, persist, emit the artifact. All protocol rejections
// are *oautherr.Error; anything else is an internal failure.
type Issuer struct {
	clients       domain.ClientStore
	scopes        domain.ScopeStore
	accessTokens  domain.AccessTokenStore
	refreshTokens domain.RefreshTokenStore
	authCodes     domain.AuthorizationCodeStore
	users         domain.UserResolver
	signer        *TokenSigner
	codec         *PayloadCodec
	clock         domain.Clock

	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewIssuer creates an Issuer.
func NewIssuer(opts IssuerOptions) *Issuer {
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock
	}
	if opts.AccessTokenTTL == 0 {
		opts.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if opts.RefreshTokenTTL == 0 {
		opts.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	return &Issuer{
		clients:         opts.Clients,
		scopes:          opts.Scopes,
		accessTokens:    opts.AccessTokens,
		refreshTokens:   opts.RefreshTokens,
		authCodes:       opts.AuthCodes,
		users:           opts.Users,
		signer:          opts.Signer,
		codec:           opts.Codec,
		clock:           opts.Clock,
		accessTokenTTL:  opts.AccessTokenTTL,
		refreshTokenTTL: opts.RefreshTokenTTL,
	}
}

// Grant dispatches a token request to the matching grant flow.
func (i *Issuer) Grant(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case domain.GrantClientCredentials:
		return i.ClientCredentials(ctx, req)
	case domain.GrantPassword:
		return i.Password(ctx, req)
	case domain.GrantAuthorizationCode:
		return i.AuthorizationCode(ctx, req)
	case domain.GrantRefreshToken:
		return i.RefreshToken(ctx, req)
	default:
		return nil, oautherr.NewUnsupportedGrantType()
	}
}

// ClientCredentials implements the client_credentials grant. It mints an
// access token bound to the client itself, with no user and no refresh token.
func (i *Issuer) ClientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := i.validateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantClientCredentials)
	if err != nil {
		return nil, err
	}

	scopes, err := i.resolveScopes(ctx, client, req.Scope)
	if err != nil {
		return nil, err
	}

	accessToken := i.mintAccessToken(client.ID, "", scopes)
	if err := i.accessTokens.Save(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	return i.tokenResponse(accessToken, nil, req.Scope)
}

// Password implements the resource owner password credentials grant. User
// credential checking is delegated to the configured resolver; a nil user is
// reported with a message that does not distinguish unknown users from wrong
// passwords.
func (i *Issuer) Password(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := i.validateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantPassword)
	if err != nil {
		return nil, err
	}

	if req.Username == "" {
		return nil, oautherr.NewMissingParameter("username")
	}
	if req.Password == "" {
		return nil, oautherr.NewMissingParameter("password")
	}
	if i.users == nil {
		return nil, oautherr.NewInvalidCredentials()
	}

	userID, err := i.users.ResolveUser(ctx, req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("user resolution failed: %w", err)
	}
	if userID == "" {
		return nil, oautherr.NewInvalidCredentials()
	}

	scopes, err := i.resolveScopes(ctx, client, req.Scope)
	if err != nil {
		return nil, err
	}

	return i.mintTokenPair(ctx, client.ID, userID, scopes, req.Scope)
}

// AuthorizationCode implements the authorization_code grant: it opens the
// presented code artifact, runs the redemption checks in order, consumes the
// code (single use) and mints an access/refresh token pair carrying the
// code's user and scopes.
func (i *Issuer) AuthorizationCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := i.validateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}

	if req.Code == "" {
		return nil, oautherr.NewMissingParameter("code")
	}
	// A presented redirect_uri must be one the client registered, before the
	// code is even looked at. Uniform rejection, as with every client fault.
	if req.RedirectURI != "" && !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, oautherr.NewInvalidClient()
	}

	var payload authCodePayload
	if err := i.codec.Open(req.Code, &payload); err != nil {
		return nil, oautherr.NewInvalidRequest("Cannot decrypt the authorization code")
	}

	code, err := i.authCodes.Find(ctx, payload.AuthCodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}
	if code == nil {
		return nil, oautherr.NewInvalidRequest("Authorization code has been revoked")
	}
	if code.ClientID != client.ID {
		return nil, oautherr.NewInvalidRequest("Authorization code was not issued to this client")
	}
	if i.clock.Now().After(code.Expiry) {
		return nil, oautherr.NewInvalidRequest("Authorization code has expired")
	}
	if code.Revoked {
		return nil, oautherr.NewInvalidRequest("Authorization code has been revoked")
	}
	if code.RedirectURI != "" && code.RedirectURI != req.RedirectURI {
		return nil, oautherr.NewMissingParameter("redirect_uri")
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, oautherr.NewMissingParameter("code_verifier")
		}
		if !VerifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, oautherr.NewInvalidRequest("Failed to verify the `code_verifier`")
		}
	}

	// All checks passed; consuming the code is the atomic gate that makes
	// redemption single-use under concurrency. A race loser lands on the
	// ordinary revoked path.
	if _, err := i.authCodes.Consume(ctx, code.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyRevoked) {
			return nil, oautherr.NewInvalidRequest("Authorization code has been revoked")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	return i.mintTokenPair(ctx, client.ID, code.UserID, code.Scopes, strings.Join(code.Scopes, " "))
}

// RefreshToken implements the refresh_token grant with rotation: the old
// refresh token and its linked access token are both revoked, and a fresh
// pair is minted. Requested scopes may only narrow the original grant.
func (i *Issuer) RefreshToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	client, err := i.validateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantRefreshToken)
	if err != nil {
		return nil, err
	}

	if req.RefreshToken == "" {
		return nil, oautherr.NewMissingParameter("refresh_token")
	}

	var payload refreshTokenPayload
	if err := i.codec.Open(req.RefreshToken, &payload); err != nil {
		return nil, oautherr.NewInvalidRefreshToken("Cannot decrypt the refresh token")
	}

	refreshToken, err := i.refreshTokens.Find(ctx, payload.RefreshTokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if refreshToken == nil {
		return nil, oautherr.NewInvalidRefreshToken("Token has been revoked")
	}

	accessToken, err := i.accessTokens.Find(ctx, refreshToken.AccessTokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up linked access token: %w", err)
	}
	if accessToken == nil || accessToken.ClientID != client.ID {
		return nil, oautherr.NewInvalidRefreshToken("Token is not linked to client")
	}
	if i.clock.Now().After(refreshToken.Expiry) {
		return nil, oautherr.NewInvalidRefreshToken("Token has expired")
	}
	if refreshToken.Revoked {
		return nil, oautherr.NewInvalidRefreshToken("Token has been revoked")
	}

	// Narrowing only: a refresh may not widen the original grant.
	scopes := accessToken.Scopes
	if req.Scope != "" {
		requested := splitScope(req.Scope)
		for _, s := range requested {
			if !containsScope(accessToken.Scopes, s) {
				return nil, oautherr.NewInvalidScope(s)
			}
		}
		scopes = requested
	}

	if _, err := i.refreshTokens.Consume(ctx, refreshToken.ID); err != nil {
		if errors.Is(err, domain.ErrAlreadyRevoked) {
			return nil, oautherr.NewInvalidRefreshToken("Token has been revoked")
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	accessToken.Revoke()
	if err := i.accessTokens.Save(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("failed to revoke rotated access token: %w", err)
	}

	return i.mintTokenPair(ctx, client.ID, accessToken.UserID, scopes, strings.Join(scopes, " "))
}

// validateClient runs the common client checks shared by all grants. Every
// client-side fault collapses into the same invalid_client response.
func (i *Issuer) validateClient(ctx context.Context, clientID, clientSecret, grantType string) (*domain.Client, error) {
	if clientID == "" {
		return nil, oautherr.NewMissingParameter("client_id")
	}

	client, err := i.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, oautherr.NewInvalidClient()
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}

	if !client.Active || !client.AllowsGrantType(grantType) {
		return nil, oautherr.NewInvalidClient()
	}
	if client.Confidential() {
		if err := bcrypt.CompareHashAndPassword([]byte(client.Secret), []byte(clientSecret)); err != nil {
			log.Debug().Str("client_id", clientID).Msg("client secret mismatch")
			return nil, oautherr.NewInvalidClient()
		}
	}

	return client, nil
}

// resolveScopes parses and validates the requested scope string: each scope
// must be registered with the server and permitted for the client.
func (i *Issuer) resolveScopes(ctx context.Context, client *domain.Client, scope string) ([]string, error) {
	var scopes []string
	for _, s := range splitScope(scope) {
		known, err := i.scopes.Exists(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to look up scope %q: %w", s, err)
		}
		if !known || !client.AllowsScope(s) {
			return nil, oautherr.NewInvalidScope(s)
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

func (i *Issuer) mintAccessToken(clientID, userID string, scopes []string) *domain.AccessToken {
	now := i.clock.Now()
	return &domain.AccessToken{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		Expiry:    now.Add(i.accessTokenTTL),
		CreatedAt: now,
	}
}

// mintTokenPair mints, persists and serializes a linked access/refresh token
// pair for grants that issue both.
func (i *Issuer) mintTokenPair(ctx context.Context, clientID, userID string, scopes []string, scope string) (*TokenResponse, error) {
	accessToken := i.mintAccessToken(clientID, userID, scopes)
	refreshToken := &domain.RefreshToken{
		ID:            uuid.NewString(),
		AccessTokenID: accessToken.ID,
		Expiry:        i.clock.Now().Add(i.refreshTokenTTL),
		CreatedAt:     i.clock.Now(),
	}

	if err := i.accessTokens.Save(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}
	if err := i.refreshTokens.Save(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return i.tokenResponse(accessToken, refreshToken, scope)
}

// tokenResponse serializes minted entities into the response artifact.
func (i *Issuer) tokenResponse(accessToken *domain.AccessToken, refreshToken *domain.RefreshToken, scope string) (*TokenResponse, error) {
	signed, err := i.signer.Sign(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	resp := &TokenResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int(i.accessTokenTTL.Seconds()),
		AccessToken: signed,
		Scope:       strings.TrimSpace(scope),
	}

	if refreshToken != nil {
		sealed, err := i.codec.Seal(refreshTokenPayload{RefreshTokenID: refreshToken.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to seal refresh token: %w", err)
		}
		resp.RefreshToken = sealed
	}

	return resp, nil
}
