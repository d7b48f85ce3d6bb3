package domain

import (
	"context"
	"errors"
)

// ErrAlreadyRevoked is returned by Consume when the entity had already been
// revoked, typically because a concurrent redemption won the race.
var ErrAlreadyRevoked = errors.New("entity already revoked")

// AccessTokenStore persists access token records. Find returns (nil, nil) on
// a miss; Save upserts by identifier. ClearExpired removes entities whose
// expiry is strictly before Clock.Now at call time, ClearRevoked removes
// revoked entities regardless of expiry; both return the number removed and
// are advisory housekeeping, safe to run concurrently with issuance.
type AccessTokenStore interface {
	Find(ctx context.Context, id string) (*AccessToken, error)
	Save(ctx context.Context, token *AccessToken) error
	Consume(ctx context.Context, id string) (*AccessToken, error)
	ClearExpired(ctx context.Context) (int, error)
	ClearRevoked(ctx context.Context) (int, error)
}

// RefreshTokenStore persists refresh token records under the same contract
// as AccessTokenStore. Consume atomically revokes a live token and returns
// it, or ErrAlreadyRevoked; at most one concurrent Consume of the same
// identifier succeeds.
type RefreshTokenStore interface {
	Find(ctx context.Context, id string) (*RefreshToken, error)
	Save(ctx context.Context, token *RefreshToken) error
	Consume(ctx context.Context, id string) (*RefreshToken, error)
	ClearExpired(ctx context.Context) (int, error)
	ClearRevoked(ctx context.Context) (int, error)
}

// AuthorizationCodeStore persists authorization codes under the same
// contract. Codes are single-use: redemption goes through Consume.
type AuthorizationCodeStore interface {
	Find(ctx context.Context, id string) (*AuthorizationCode, error)
	Save(ctx context.Context, code *AuthorizationCode) error
	Consume(ctx context.Context, id string) (*AuthorizationCode, error)
	ClearExpired(ctx context.Context) (int, error)
	ClearRevoked(ctx context.Context) (int, error)
}

// ClientStore is the read-only client lookup the environment provides.
// Unknown IDs yield ErrClientNotFound.
type ClientStore interface {
	GetClient(ctx context.Context, id string) (*Client, error)
}

// ScopeStore is the read-only registry of scopes known to the server.
type ScopeStore interface {
	Exists(ctx context.Context, scope string) (bool, error)
}

// UserResolver checks resource-owner credentials during the password grant.
// It returns the user identifier, or "" when the credentials do not resolve
// to a user; an error is reserved for lookup failures, not bad credentials.
type UserResolver interface {
	ResolveUser(ctx context.Context, username, password string) (string, error)
}

// UserResolverFunc adapts a function to the UserResolver interface.
type UserResolverFunc func(ctx context.Context, username, password string) (string, error)

func (f UserResolverFunc) ResolveUser(ctx context.Context, username, password string) (string, error) {
	return f(ctx, username, password)
}
