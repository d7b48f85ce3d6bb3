package domain

import (
	"slices"
	"time"
)

// AccessToken is the server-side record of an issued access token. The wire
// artifact is a signed JWT whose jti claim points back at this record; the
// record is what revocation and the housekeeping sweeps operate on.
type AccessToken struct {
	ID        string    `bson:"_id" json:"id"`
	ClientID  string    `bson:"client_id" json:"client_id"`
	UserID    string    `bson:"user_id,omitempty" json:"user_id,omitempty"` // empty for client_credentials grants
	Scopes    []string  `bson:"scopes,omitempty" json:"scopes,omitempty"`
	Expiry    time.Time `bson:"expiry" json:"expiry"`
	Revoked   bool      `bson:"revoked" json:"revoked"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func (t *AccessToken) Identifier() string   { return t.ID }
func (t *AccessToken) ExpiresAt() time.Time { return t.Expiry }
func (t *AccessToken) IsRevoked() bool      { return t.Revoked }
func (t *AccessToken) Revoke()              { t.Revoked = true }

func (t *AccessToken) Clone() *AccessToken {
	cp := *t
	cp.Scopes = slices.Clone(t.Scopes)
	return &cp
}

// RefreshToken is tied to exactly one access token. Revoking one side does
// not implicitly revoke the other; the refresh grant revokes both on
// rotation.
type RefreshToken struct {
	ID            string    `bson:"_id" json:"id"`
	AccessTokenID string    `bson:"access_token_id" json:"access_token_id"`
	Expiry        time.Time `bson:"expiry" json:"expiry"`
	Revoked       bool      `bson:"revoked" json:"revoked"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

func (t *RefreshToken) Identifier() string   { return t.ID }
func (t *RefreshToken) ExpiresAt() time.Time { return t.Expiry }
func (t *RefreshToken) IsRevoked() bool      { return t.Revoked }
func (t *RefreshToken) Revoke()              { t.Revoked = true }

func (t *RefreshToken) Clone() *RefreshToken {
	cp := *t
	return &cp
}
