package oauthd

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openauthd/oauthd/domain"
)

// AccessTokenClaims is the claim set carried by issued access tokens. The
// jti claim holds the access token record's identifier; revocation is looked
// up through it.
type AccessTokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies access token JWTs with an RS256 key pair.
type TokenSigner struct {
	key    *rsa.PrivateKey
	keyID  string
	issuer string
	clock  domain.Clock
}

// NewTokenSigner creates a TokenSigner around the given signing key.
func NewTokenSigner(key *rsa.PrivateKey, keyID, issuer string, clock domain.Clock) *TokenSigner {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &TokenSigner{
		key:    key,
		keyID:  keyID,
		issuer: issuer,
		clock:  clock,
	}
}

// Sign produces the wire artifact for an access token record.
func (s *TokenSigner) Sign(token *domain.AccessToken) (string, error) {
	claims := AccessTokenClaims{
		ClientID: token.ClientID,
		Scope:    strings.Join(token.Scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token.ID,
			Subject:   token.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(token.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(token.Expiry),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.keyID

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses a raw access token, checking the signature and the exp claim
// against the signer's clock. It does not consult the store; revocation is
// the authenticator's job.
func (s *TokenSigner) Verify(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return &s.key.PublicKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.ID == "" {
		return nil, errors.New("invalid access token: missing jti claim")
	}
	return claims, nil
}
