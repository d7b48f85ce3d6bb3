package oauthd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openauthd/oauthd/domain"
	"github.com/openauthd/oauthd/oautherr"
)

// Response types accepted at the authorize endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// Default lifetimes for artifacts minted by the authorize flow.
const (
	DefaultAuthCodeTTL      = 10 * time.Minute
	DefaultImplicitTokenTTL = 10 * time.Minute
)

// ErrUserNotResolved is returned by AuthorizationRequest.User before a user
// has been attached to the request.
var ErrUserNotResolved = errors.New("authorization request has no resolved user")

// AuthorizeRequest carries the raw parameters of an authorize endpoint call.
// UserID is the already-authenticated resource owner, when the caller knows
// one; otherwise a decision hook may attach it.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
}

// AuthorizeResponse is the success body of the authorize endpoint: a code
// for response_type=code, a token artifact for response_type=token, with the
// state token echoed back either way.
type AuthorizeResponse struct {
	Code        string `json:"code,omitempty"`
	State       string `json:"state,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// AuthorizationRequest is a pending authorize request awaiting a terminal
// decision. All mutation goes through state-guarded methods: the first
// recorded decision wins and every later mutation attempt is a no-op.
type AuthorizationRequest struct {
	grantTypeID         string
	client              *domain.Client
	scopes              []string
	redirectURI         string
	state               string
	codeChallenge       string
	codeChallengeMethod string

	userID   string
	userSet  bool
	approved bool
	decided  bool
	response *AuthorizeResponse
}

func (r *AuthorizationRequest) GrantTypeID() string         { return r.grantTypeID }
func (r *AuthorizationRequest) Client() *domain.Client      { return r.client }
func (r *AuthorizationRequest) Scopes() []string            { return r.scopes }
func (r *AuthorizationRequest) RedirectURI() string         { return r.redirectURI }
func (r *AuthorizationRequest) State() string               { return r.state }
func (r *AuthorizationRequest) CodeChallenge() string       { return r.codeChallenge }
func (r *AuthorizationRequest) CodeChallengeMethod() string { return r.codeChallengeMethod }

// User returns the resolved resource owner identifier. Reading it before
// resolution is a programming error in flows that require one.
func (r *AuthorizationRequest) User() (string, error) {
	if !r.userSet {
		return "", ErrUserNotResolved
	}
	return r.userID, nil
}

// HasUser reports whether a user has been attached, explicitly or not. An
// explicit SetUser("") still counts as resolved-to-nobody, which leaves the
// flow pending for downstream enforcement.
func (r *AuthorizationRequest) HasUser() bool { return r.userSet }

// SetUser attaches the resource owner to the request. No-op once a terminal
// decision has been recorded.
func (r *AuthorizationRequest) SetUser(userID string) {
	if r.decided {
		return
	}
	r.userID = userID
	r.userSet = true
}

// Approve records approval. Terminal: later decisions are ignored.
func (r *AuthorizationRequest) Approve() {
	if r.decided {
		return
	}
	r.approved = true
	r.decided = true
}

// Deny records denial. Terminal: later decisions are ignored.
func (r *AuthorizationRequest) Deny() {
	if r.decided {
		return
	}
	r.approved = false
	r.decided = true
}

// SetResponse substitutes a custom response, bypassing artifact generation
// entirely. Terminal, like Approve and Deny.
func (r *AuthorizationRequest) SetResponse(resp *AuthorizeResponse) {
	if r.decided {
		return
	}
	r.response = resp
	r.decided = true
}

// Decided reports whether a terminal decision has been recorded.
func (r *AuthorizationRequest) Decided() bool { return r.decided }

// Approved reports the decision; meaningful only once Decided is true.
func (r *AuthorizationRequest) Approved() bool { return r.approved }

// DecisionHook observes and may mutate an in-flight authorization request
// before finalization: attach a user, record a decision, or substitute a
// response. Hooks run synchronously in registration order; mutations after
// the first terminal decision are no-ops but later hooks still run.
type DecisionHook func(*AuthorizationRequest)

// AuthorizerOptions collects the collaborators and settings an Authorizer
// needs.
type AuthorizerOptions struct {
	Clients      domain.ClientStore
	Scopes       domain.ScopeStore
	AccessTokens domain.AccessTokenStore
	AuthCodes    domain.AuthorizationCodeStore
	Signer       *TokenSigner
	Codec        *PayloadCodec
	Clock        domain.Clock

	AuthCodeTTL      time.Duration // defaults to DefaultAuthCodeTTL
	ImplicitTokenTTL time.Duration // defaults to DefaultImplicitTokenTTL
}

// Authorizer turns pending authorize requests into approved or denied
// outcomes and mints the resulting artifact.
type Authorizer struct {
	clients      domain.ClientStore
	scopes       domain.ScopeStore
	accessTokens domain.AccessTokenStore
	authCodes    domain.AuthorizationCodeStore
	signer       *TokenSigner
	codec        *PayloadCodec
	clock        domain.Clock
	hooks        []DecisionHook

	authCodeTTL      time.Duration
	implicitTokenTTL time.Duration
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(opts AuthorizerOptions) *Authorizer {
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock
	}
	if opts.AuthCodeTTL == 0 {
		opts.AuthCodeTTL = DefaultAuthCodeTTL
	}
	if opts.ImplicitTokenTTL == 0 {
		opts.ImplicitTokenTTL = DefaultImplicitTokenTTL
	}
	return &Authorizer{
		clients:          opts.Clients,
		scopes:           opts.Scopes,
		accessTokens:     opts.AccessTokens,
		authCodes:        opts.AuthCodes,
		signer:           opts.Signer,
		codec:            opts.Codec,
		clock:            opts.Clock,
		authCodeTTL:      opts.AuthCodeTTL,
		implicitTokenTTL: opts.ImplicitTokenTTL,
	}
}

// AddDecisionHook registers a hook to run during Finalize, after any hooks
// registered before it.
func (a *Authorizer) AddDecisionHook(hook DecisionHook) {
	a.hooks = append(a.hooks, hook)
}

// NewAuthorizationRequest validates the raw request and builds the pending
// pipeline state. Client faults (unknown, inactive, disallowed grant type or
// redirect URI) reject uniformly as invalid_client.
func (a *Authorizer) NewAuthorizationRequest(ctx context.Context, req AuthorizeRequest) (*AuthorizationRequest, error) {
	var grantTypeID string
	switch req.ResponseType {
	case ResponseTypeCode:
		grantTypeID = domain.GrantAuthorizationCode
	case ResponseTypeToken:
		grantTypeID = domain.GrantImplicit
	default:
		return nil, oautherr.NewMissingParameter("response_type")
	}

	if req.ClientID == "" {
		return nil, oautherr.NewMissingParameter("client_id")
	}
	client, err := a.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, oautherr.NewInvalidClient()
		}
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if !client.Active || !client.AllowsGrantType(grantTypeID) {
		return nil, oautherr.NewInvalidClient()
	}

	redirectURI := req.RedirectURI
	if redirectURI != "" {
		if !client.AllowsRedirectURI(redirectURI) {
			return nil, oautherr.NewInvalidClient()
		}
	} else if len(client.RedirectURIs) > 0 {
		redirectURI = client.RedirectURIs[0]
	}

	var scopes []string
	for _, s := range splitScope(req.Scope) {
		known, err := a.scopes.Exists(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("failed to look up scope %q: %w", s, err)
		}
		if !known || !client.AllowsScope(s) {
			return nil, oautherr.NewInvalidScope(s)
		}
		scopes = append(scopes, s)
	}

	ar := &AuthorizationRequest{
		grantTypeID:         grantTypeID,
		client:              client,
		scopes:              scopes,
		redirectURI:         redirectURI,
		state:               req.State,
		codeChallenge:       req.CodeChallenge,
		codeChallengeMethod: req.CodeChallengeMethod,
	}
	if req.UserID != "" {
		ar.SetUser(req.UserID)
	}
	return ar, nil
}

// Finalize runs the registered decision hooks and converts the recorded
// decision into an artifact: an authorization code for the code flow, an
// access token for the implicit flow, or the access_denied rejection. An
// undecided request is treated as denied.
func (a *Authorizer) Finalize(ctx context.Context, ar *AuthorizationRequest) (*AuthorizeResponse, error) {
	for _, hook := range a.hooks {
		hook(ar)
	}

	if ar.response != nil {
		return ar.response, nil
	}
	if !ar.decided || !ar.approved {
		return nil, oautherr.NewAccessDenied("The user denied the request")
	}

	switch ar.grantTypeID {
	case domain.GrantAuthorizationCode:
		return a.finalizeCode(ctx, ar)
	case domain.GrantImplicit:
		return a.finalizeImplicit(ctx, ar)
	default:
		return nil, fmt.Errorf("unexpected authorize grant type %q", ar.grantTypeID)
	}
}

func (a *Authorizer) finalizeCode(ctx context.Context, ar *AuthorizationRequest) (*AuthorizeResponse, error) {
	now := a.clock.Now()
	code := &domain.AuthorizationCode{
		ID:                  uuid.NewString(),
		ClientID:            ar.client.ID,
		UserID:              ar.userID,
		Scopes:              ar.scopes,
		RedirectURI:         ar.redirectURI,
		Expiry:              now.Add(a.authCodeTTL),
		CreatedAt:           now,
		CodeChallenge:       ar.codeChallenge,
		CodeChallengeMethod: ar.codeChallengeMethod,
	}
	if err := a.authCodes.Save(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store authorization code: %w", err)
	}

	sealed, err := a.codec.Seal(authCodePayload{
		AuthCodeID:  code.ID,
		ClientID:    code.ClientID,
		RedirectURI: code.RedirectURI,
		Expiry:      code.Expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seal authorization code: %w", err)
	}

	log.Debug().Str("client_id", ar.client.ID).Str("code_id", code.ID).Msg("authorization code issued")

	return &AuthorizeResponse{Code: sealed, State: ar.state}, nil
}

func (a *Authorizer) finalizeImplicit(ctx context.Context, ar *AuthorizationRequest) (*AuthorizeResponse, error) {
	now := a.clock.Now()
	accessToken := &domain.AccessToken{
		ID:        uuid.NewString(),
		ClientID:  ar.client.ID,
		UserID:    ar.userID,
		Scopes:    ar.scopes,
		Expiry:    now.Add(a.implicitTokenTTL),
		CreatedAt: now,
	}
	if err := a.accessTokens.Save(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	signed, err := a.signer.Sign(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &AuthorizeResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int(a.implicitTokenTTL.Seconds()),
		AccessToken: signed,
		State:       ar.state,
	}, nil
}
