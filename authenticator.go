package oauthd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openauthd/oauthd/cache"
	"github.com/openauthd/oauthd/domain"
	"github.com/openauthd/oauthd/oautherr"
)

// Principal is the outcome of successful bearer authentication: the subject
// the token was issued to and the scopes it grants. Tokens from the
// client_credentials grant carry no subject and authenticate as an anonymous
// system principal, which is distinct from no principal at all.
type Principal struct {
	Subject   string
	ClientID  string
	Scopes    []string
	Anonymous bool
}

// Authenticator validates inbound bearer tokens against the issuer's trust
// material and the access token store.
type Authenticator struct {
	accessTokens domain.AccessTokenStore
	tokenCache   cache.TokenCache // optional
	signer       *TokenSigner
	clock        domain.Clock
}

// NewAuthenticator creates an Authenticator. The token cache is optional and
// only short-circuits signature verification; revocation is always checked
// against the store.
func NewAuthenticator(accessTokens domain.AccessTokenStore, tokenCache cache.TokenCache, signer *TokenSigner, clock domain.Clock) *Authenticator {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Authenticator{
		accessTokens: accessTokens,
		tokenCache:   tokenCache,
		signer:       signer,
		clock:        clock,
	}
}

// Authenticate validates the value of an Authorization header and extracts
// the principal. Every verification failure collapses into the same
// unauthenticated error; which check rejected the token is not leaked.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*Principal, error) {
	raw, ok := stripBearerScheme(authorization)
	if !ok {
		return nil, oautherr.NewUnauthenticated()
	}

	entry := a.cachedEntry(ctx, raw)
	if entry == nil {
		claims, err := a.signer.Verify(raw)
		if err != nil {
			log.Debug().Err(err).Msg("bearer token verification failed")
			return nil, oautherr.NewUnauthenticated()
		}
		entry = &cache.Entry{
			TokenID:   claims.ID,
			Subject:   claims.Subject,
			ClientID:  claims.ClientID,
			Scopes:    splitScope(claims.Scope),
			ExpiresAt: claims.ExpiresAt.Time,
		}
		a.cacheEntry(ctx, raw, entry)
	}

	if a.clock.Now().After(entry.ExpiresAt) {
		return nil, oautherr.NewUnauthenticated()
	}

	token, err := a.accessTokens.Find(ctx, entry.TokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}
	if token == nil || token.Revoked {
		return nil, oautherr.NewUnauthenticated()
	}

	return &Principal{
		Subject:   entry.Subject,
		ClientID:  entry.ClientID,
		Scopes:    entry.Scopes,
		Anonymous: entry.Subject == "",
	}, nil
}

// RequireScopes is the scope gate: access is granted iff every required
// scope is among the principal's granted scopes. No required scopes always
// grants. The rejection is distinct from an authentication failure.
func RequireScopes(p *Principal, required ...string) error {
	if !ScopesContain(p.Scopes, required) {
		return oautherr.NewInsufficientScope()
	}
	return nil
}

func (a *Authenticator) cachedEntry(ctx context.Context, raw string) *cache.Entry {
	if a.tokenCache == nil {
		return nil
	}
	entry, err := a.tokenCache.Get(ctx, HashToken(raw))
	if err != nil {
		log.Warn().Err(err).Msg("token cache lookup failed")
		return nil
	}
	return entry
}

func (a *Authenticator) cacheEntry(ctx context.Context, raw string, entry *cache.Entry) {
	if a.tokenCache == nil {
		return
	}
	if err := a.tokenCache.Set(ctx, HashToken(raw), entry); err != nil {
		log.Warn().Err(err).Msg("failed to cache validated token")
	}
}

// stripBearerScheme extracts the raw token from an Authorization header
// value, rejecting anything without the bearer scheme prefix.
func stripBearerScheme(authorization string) (string, bool) {
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
