// Package echoapi exposes the logical token and authorize endpoints and the
// bearer authentication middleware over echo. It is a thin translation
// layer: parameter extraction in, structured error bodies out; all protocol
// logic lives in the core.
package echoapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/openauthd/oauthd"
	"github.com/openauthd/oauthd/oautherr"
)

// OAuth2API holds the handlers' dependencies.
type OAuth2API struct {
	issuer        *oauthd.Issuer
	authorizer    *oauthd.Authorizer
	authenticator *oauthd.Authenticator
}

// NewOAuth2API initializes the OAuth2 API.
func NewOAuth2API(issuer *oauthd.Issuer, authorizer *oauthd.Authorizer, authenticator *oauthd.Authenticator) *OAuth2API {
	return &OAuth2API{
		issuer:        issuer,
		authorizer:    authorizer,
		authenticator: authenticator,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.POST("/oauth2/token", oa.TokenHandler)
	e.GET("/oauth2/authorize", oa.AuthorizeHandler)
}

// TokenHandler handles token endpoint requests: it lifts the grant
// parameters out of the form and the Authorization header and dispatches to
// the issuer. Client credentials may arrive via HTTP basic auth or the body;
// the header wins when both are present.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	req := oauthd.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		ClientID:     c.FormValue("client_id"),
		ClientSecret: c.FormValue("client_secret"),
		Scope:        c.FormValue("scope"),
		Username:     c.FormValue("username"),
		Password:     c.FormValue("password"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		CodeVerifier: c.FormValue("code_verifier"),
		RefreshToken: c.FormValue("refresh_token"),
	}
	if id, secret, ok := c.Request().BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	resp, err := oa.issuer.Grant(c.Request().Context(), req)
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// AuthorizeHandler handles authorize endpoint requests. The terminal
// approve/deny decision is driven externally, through the decision hooks
// registered on the authorizer; an undecided request is denied.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	ctx := c.Request().Context()

	ar, err := oa.authorizer.NewAuthorizationRequest(ctx, oauthd.AuthorizeRequest{
		ResponseType:        c.QueryParam("response_type"),
		ClientID:            c.QueryParam("client_id"),
		RedirectURI:         c.QueryParam("redirect_uri"),
		Scope:               c.QueryParam("scope"),
		State:               c.QueryParam("state"),
		CodeChallenge:       c.QueryParam("code_challenge"),
		CodeChallengeMethod: c.QueryParam("code_challenge_method"),
		UserID:              authenticatedUserID(c),
	})
	if err != nil {
		return writeOAuthError(c, err)
	}

	resp, err := oa.authorizer.Finalize(ctx, ar)
	if err != nil {
		return writeOAuthError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// authenticatedUserID reads the resource owner a prior middleware attached,
// if any.
func authenticatedUserID(c echo.Context) string {
	if p, ok := c.Get(principalContextKey).(*oauthd.Principal); ok {
		return p.Subject
	}
	return ""
}

// writeOAuthError converts any error into the structured response body.
// Protocol errors pass through with a matching status; anything else is an
// internal failure reported as an opaque server_error.
func writeOAuthError(c echo.Context, err error) error {
	var oauthErr *oautherr.Error
	if !errors.As(err, &oauthErr) {
		log.Error().Err(err).Str("path", c.Path()).Msg("internal failure handling OAuth2 request")
		return c.JSON(http.StatusInternalServerError, oautherr.NewServerError())
	}
	return c.JSON(statusForError(oauthErr), oauthErr)
}

func statusForError(err *oautherr.Error) int {
	switch err.Code {
	case oautherr.InvalidClient, oautherr.Unauthenticated, oautherr.AccessDenied:
		return http.StatusUnauthorized
	case oautherr.InsufficientScope:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// bearerHeader normalizes the Authorization header for logging: scheme only,
// never the credential.
func bearerHeader(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if i := strings.IndexByte(header, ' '); i > 0 {
		return header[:i]
	}
	return header
}
