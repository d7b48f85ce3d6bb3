// Package oautherr defines the OAuth 2.0 protocol error taxonomy. Every
// validation failure in the core is converted into one of these before it
// reaches a caller; store I/O failures stay ordinary wrapped errors and are
// never shaped into protocol errors.
package oautherr

import "fmt"

// Standard OAuth2 error codes.
const (
	InvalidRequest       = "invalid_request"
	InvalidClient        = "invalid_client"
	InvalidGrant         = "invalid_grant"
	InvalidScope         = "invalid_scope"
	InvalidCredentials   = "invalid_credentials"
	UnsupportedGrantType = "unsupported_grant_type"
	AccessDenied         = "access_denied"
	InsufficientScope    = "insufficient_scope"
	Unauthenticated      = "unauthenticated"
	ServerError          = "server_error"
)

// Error is the structured error body returned from the token, authorize and
// resource boundaries.
type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

const invalidRequestMessage = "The request is missing a required parameter, " +
	"includes an invalid parameter value, includes a parameter more than once, or is otherwise malformed."

// NewInvalidRequest builds an invalid_request error with the given hint.
func NewInvalidRequest(hint string) *Error {
	return &Error{
		Code:    InvalidRequest,
		Message: invalidRequestMessage,
		Hint:    hint,
	}
}

// NewMissingParameter builds the invalid_request error for an absent or
// malformed request parameter, naming it in the hint.
func NewMissingParameter(param string) *Error {
	return NewInvalidRequest(fmt.Sprintf("Check the `%s` parameter", param))
}

// NewInvalidClient builds the invalid_client error. The message is
// deliberately uniform regardless of the root cause (unknown client, wrong
// secret, inactive client, disallowed grant type or redirect URI) so callers
// cannot enumerate registered clients.
func NewInvalidClient() *Error {
	return &Error{
		Code:    InvalidClient,
		Message: "Client authentication failed",
	}
}

// NewInvalidScope builds the invalid_scope error naming the offending scope.
func NewInvalidScope(scope string) *Error {
	return &Error{
		Code:    InvalidScope,
		Message: "The requested scope is invalid, unknown, or malformed",
		Hint:    fmt.Sprintf("Check the `%s` scope", scope),
	}
}

// NewUnsupportedGrantType builds the unsupported_grant_type error.
func NewUnsupportedGrantType() *Error {
	return &Error{
		Code:    UnsupportedGrantType,
		Message: "The authorization grant type is not supported by the authorization server.",
		Hint:    "Check that all required parameters have been provided",
	}
}

// NewInvalidCredentials builds the password-grant rejection. The message
// stays the same whether the username is unknown or the password is wrong.
func NewInvalidCredentials() *Error {
	return &Error{
		Code:    InvalidCredentials,
		Message: "The user credentials were incorrect.",
	}
}

// NewInvalidRefreshToken builds the invalid_request rejection used by the
// refresh grant, with a hint naming the specific check that failed.
func NewInvalidRefreshToken(hint string) *Error {
	return &Error{
		Code:    InvalidRequest,
		Message: "The refresh token is invalid.",
		Hint:    hint,
	}
}

// NewAccessDenied builds the access_denied error emitted when the resource
// owner declines an authorization request.
func NewAccessDenied(hint string) *Error {
	return &Error{
		Code:    AccessDenied,
		Message: "The resource owner or authorization server denied the request.",
		Hint:    hint,
	}
}

// NewUnauthenticated builds the uniform bearer-authentication failure. The
// caller learns nothing about which verification step rejected the token.
func NewUnauthenticated() *Error {
	return &Error{
		Code:    Unauthenticated,
		Message: "The resource server rejected the request.",
	}
}

// NewInsufficientScope builds the error for an authenticated principal whose
// token does not carry the scopes a route requires.
func NewInsufficientScope() *Error {
	return &Error{
		Code:    InsufficientScope,
		Message: "The request requires higher privileges than provided by the access token.",
	}
}

// NewServerError wraps an internal failure for the boundary. The description
// is generic; details belong in the server log, not the response.
func NewServerError() *Error {
	return &Error{
		Code:    ServerError,
		Message: "The authorization server encountered an unexpected condition.",
	}
}
