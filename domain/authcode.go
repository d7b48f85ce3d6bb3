package domain

import (
	"slices"
	"time"
)

// AuthorizationCode is a short-lived, single-use credential minted by the
// authorize flow and redeemed at the token endpoint. Redemption revokes it.
type AuthorizationCode struct {
	ID          string    `bson:"_id" json:"id"`
	ClientID    string    `bson:"client_id" json:"client_id"`
	UserID      string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Scopes      []string  `bson:"scopes,omitempty" json:"scopes,omitempty"`
	RedirectURI string    `bson:"redirect_uri,omitempty" json:"redirect_uri,omitempty"` // must match at redemption when set
	Expiry      time.Time `bson:"expiry" json:"expiry"`
	Revoked     bool      `bson:"revoked" json:"revoked"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`

	CodeChallenge       string `bson:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string `bson:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
}

func (c *AuthorizationCode) Identifier() string   { return c.ID }
func (c *AuthorizationCode) ExpiresAt() time.Time { return c.Expiry }
func (c *AuthorizationCode) IsRevoked() bool      { return c.Revoked }
func (c *AuthorizationCode) Revoke()              { c.Revoked = true }

func (c *AuthorizationCode) Clone() *AuthorizationCode {
	cp := *c
	cp.Scopes = slices.Clone(c.Scopes)
	return &cp
}
