// Package oauthd implements an OAuth2 token issuance and validation core:
// the four token grant flows, the authorize decision pipeline, and bearer
// token authentication for resource requests. Persistence, client/scope
// administration and HTTP transport are collaborators supplied by the
// environment; see the domain package for their contracts.
package oauthd

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenRequest carries the parameters of a token endpoint call, already
// lifted out of whatever transport delivered them.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Scope        string // space-delimited
	Username     string
	Password     string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// HashToken derives the cache key for a raw bearer token. Raw token values
// never appear as storage keys.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// splitScope parses a space-delimited scope string into its members,
// dropping empty segments.
func splitScope(scope string) []string {
	var scopes []string
	for _, s := range strings.Fields(scope) {
		scopes = append(scopes, s)
	}
	return scopes
}

// containsScope reports set membership of a single scope.
func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ScopesContain reports whether required is a subset of granted. An empty
// required set is always satisfied.
func ScopesContain(granted, required []string) bool {
	for _, r := range required {
		if !containsScope(granted, r) {
			return false
		}
	}
	return true
}
