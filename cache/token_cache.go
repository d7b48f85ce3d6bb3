// Package cache provides a read-through cache of validated access tokens
// for the resource authentication path. Entries are keyed by a hash of the
// raw token, never the token itself, and hold only what authentication
// needs; revocation is still checked against the authoritative store on
// every request.
package cache

import (
	"context"
	"time"
)

// Entry is a cached verification result for one access token.
type Entry struct {
	TokenID   string    `json:"token_id"`
	Subject   string    `json:"subject,omitempty"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenCache stores entries keyed by token hash. Get returns (nil, nil) on
// a miss. Implementations drop entries at the token's expiry on their own.
type TokenCache interface {
	Get(ctx context.Context, tokenHash string) (*Entry, error)
	Set(ctx context.Context, tokenHash string, entry *Entry) error
	Delete(ctx context.Context, tokenHash string) error
}
