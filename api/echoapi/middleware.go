package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/openauthd/oauthd"
	"github.com/openauthd/oauthd/oautherr"
)

const principalContextKey = "oauthd.principal"

// RequireAuth authenticates the request's bearer token and enforces the
// route's required scopes. Authentication failures answer 401, scope
// violations 403; the authenticated principal is stored on the context for
// handlers downstream.
func RequireAuth(authenticator *oauthd.Authenticator, requiredScopes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := authenticator.Authenticate(
				c.Request().Context(),
				c.Request().Header.Get(echo.HeaderAuthorization),
			)
			if err != nil {
				log.Debug().Str("scheme", bearerHeader(c)).Str("path", c.Path()).Msg("bearer authentication rejected")
				return writeOAuthError(c, err)
			}

			if err := oauthd.RequireScopes(principal, requiredScopes...); err != nil {
				return writeOAuthError(c, err)
			}

			c.Set(principalContextKey, principal)
			return next(c)
		}
	}
}

// PrincipalFromContext returns the principal RequireAuth attached, if any.
func PrincipalFromContext(c echo.Context) (*oauthd.Principal, bool) {
	principal, ok := c.Get(principalContextKey).(*oauthd.Principal)
	return principal, ok
}

// UserInfoHandler is a minimal resource endpoint exposing the authenticated
// subject and granted scopes, mostly useful for smoke tests behind
// RequireAuth.
func UserInfoHandler(c echo.Context) error {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, oautherr.NewUnauthenticated())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sub":       principal.Subject,
		"client_id": principal.ClientID,
		"scopes":    principal.Scopes,
	})
}
