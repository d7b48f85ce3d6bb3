package domain

import "errors"

// ErrClientNotFound is returned by ClientStore lookups for unknown client IDs.
var ErrClientNotFound = errors.New("client not found")

// Grant type identifiers accepted at the token endpoint.
const (
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantImplicit          = "implicit"
)

// Client represents a registered OAuth2 client application. Clients are
// administered externally; the core only reads them.
type Client struct {
	ID           string   `bson:"_id" json:"client_id"`
	Secret       string   `bson:"secret,omitempty" json:"-"` // bcrypt hash, empty for public clients
	Name         string   `bson:"name,omitempty" json:"name,omitempty"`
	RedirectURIs []string `bson:"redirect_uris" json:"redirect_uris"`
	GrantTypes   []string `bson:"grant_types" json:"grant_types"`
	Scopes       []string `bson:"scopes,omitempty" json:"scopes,omitempty"` // empty set means every registered scope
	Active       bool     `bson:"active" json:"active"`
}

// Confidential reports whether the client holds a secret and must
// authenticate with it.
func (c *Client) Confidential() bool { return c.Secret != "" }

// AllowsGrantType reports whether the client may use the given grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI reports whether the URI is one of the client's registered
// redirect URIs.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsScope reports whether the client may request the given scope. A
// client with no scope restriction allows everything the server registers.
func (c *Client) AllowsScope(scope string) bool {
	if len(c.Scopes) == 0 {
		return true
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
