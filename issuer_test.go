package oauthd

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openauthd/oauthd/domain"
	"github.com/openauthd/oauthd/oautherr"
)

func TestClientCredentialsGrant(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "foo",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken, "client_credentials issues no refresh token")

	claims, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "foo", claims.ClientID)
	assert.Empty(t, claims.Subject)

	stored, err := env.accessTokens.Find(context.Background(), claims.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "foo", stored.ClientID)
	assert.Empty(t, stored.UserID)
}

func TestClientCredentialsGrantWithScope(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "foo",
		ClientSecret: "secret",
		Scope:        "read write",
	})
	require.NoError(t, err)
	assert.Equal(t, "read write", resp.Scope)

	claims, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "read write", claims.Scope)
}

func TestGrantRejectsWrongClientSecret(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "foo",
		ClientSecret: "wrong",
	})
	requireOAuthError(t, err, oautherr.InvalidClient, "Client authentication failed", "")
}

func TestGrantRejectsUnknownClient(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "yolo",
		ClientSecret: "wrong",
	})
	requireOAuthError(t, err, oautherr.InvalidClient, "Client authentication failed", "")
}

func TestGrantRejectsInactiveClient(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "dormant",
		ClientSecret: "secret",
	})
	requireOAuthError(t, err, oautherr.InvalidClient, "Client authentication failed", "")
}

func TestGrantRejectsDisallowedGrantType(t *testing.T) {
	env := newTestEnv(t)

	// "machine" is registered for client_credentials only. The rejection is
	// indistinguishable from an unknown client.
	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "machine",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "wonderland",
	})
	requireOAuthError(t, err, oautherr.InvalidClient, "Client authentication failed", "")
}

func TestGrantRejectsMissingClientID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType: domain.GrantClientCredentials,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `client_id` parameter")
}

func TestGrantRejectsUnsupportedGrantType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    "extension_grant",
		ClientID:     "foo",
		ClientSecret: "secret",
	})
	requireOAuthError(t, err, oautherr.UnsupportedGrantType,
		"The authorization grant type is not supported by the authorization server.",
		"Check that all required parameters have been provided")
}

func TestGrantRejectsUnknownScope(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "foo",
		ClientSecret: "secret",
		Scope:        "admin",
	})
	requireOAuthError(t, err, oautherr.InvalidScope,
		"The requested scope is invalid, unknown, or malformed",
		"Check the `admin` scope")
}

func TestGrantRejectsScopeOutsideClientRestriction(t *testing.T) {
	env := newTestEnv(t)

	// "narrow" may only request read; write is registered but off limits.
	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantClientCredentials,
		ClientID:     "narrow",
		ClientSecret: "secret",
		Scope:        "write",
	})
	requireOAuthError(t, err, oautherr.InvalidScope, "", "Check the `write` scope")
}

func TestPasswordGrant(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "foo",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "wonderland",
		Scope:        "read",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.NotEmpty(t, resp.RefreshToken, "password grant issues a refresh token")
	assert.Equal(t, "read", resp.Scope)

	claims, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", claims.Subject)

	// The refresh token artifact must link back to the issued access token.
	var payload refreshTokenPayload
	require.NoError(t, env.codec.Open(resp.RefreshToken, &payload))
	refreshToken, err := env.refreshTokens.Find(context.Background(), payload.RefreshTokenID)
	require.NoError(t, err)
	require.NotNil(t, refreshToken)
	assert.Equal(t, claims.ID, refreshToken.AccessTokenID)
}

func TestPasswordGrantRejectsBadUserCredentials(t *testing.T) {
	env := newTestEnv(t)

	for _, req := range []TokenRequest{
		{GrantType: domain.GrantPassword, ClientID: "foo", ClientSecret: "secret", Username: "alice", Password: "wrong"},
		{GrantType: domain.GrantPassword, ClientID: "foo", ClientSecret: "secret", Username: "nobody", Password: "wonderland"},
	} {
		_, err := env.issuer.Grant(context.Background(), req)
		requireOAuthError(t, err, oautherr.InvalidCredentials, "The user credentials were incorrect.", "")
	}
}

func TestPasswordGrantRejectsMissingParameters(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "foo",
		ClientSecret: "secret",
		Password:     "wonderland",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `username` parameter")

	_, err = env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "foo",
		ClientSecret: "secret",
		Username:     "alice",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `password` parameter")
}

func TestPasswordGrantWithoutResolver(t *testing.T) {
	env := newTestEnv(t)
	env.issuer.users = nil

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "foo",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "wonderland",
	})
	requireOAuthError(t, err, oautherr.InvalidCredentials, "The user credentials were incorrect.", "")
}

// issuePasswordPair is the common setup for the refresh grant tests.
func issuePasswordPair(t *testing.T, env *testEnv, scope string) *TokenResponse {
	t.Helper()
	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantPassword,
		ClientID:     "foo",
		ClientSecret: "secret",
		Username:     "alice",
		Password:     "wonderland",
		Scope:        scope,
	})
	require.NoError(t, err)
	return resp
}

func TestRefreshTokenGrantRotatesPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := issuePasswordPair(t, env, "read write")

	oldClaims, err := env.signer.Verify(first.AccessToken)
	require.NoError(t, err)
	var oldPayload refreshTokenPayload
	require.NoError(t, env.codec.Open(first.RefreshToken, &oldPayload))

	second, err := env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)

	newClaims, err := env.signer.Verify(second.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, oldClaims.ID, newClaims.ID)
	assert.Equal(t, "user-alice", newClaims.Subject)
	assert.Equal(t, "read write", newClaims.Scope)

	// Both halves of the old pair are revoked.
	oldAccess, err := env.accessTokens.Find(ctx, oldClaims.ID)
	require.NoError(t, err)
	require.NotNil(t, oldAccess)
	assert.True(t, oldAccess.Revoked)

	oldRefresh, err := env.refreshTokens.Find(ctx, oldPayload.RefreshTokenID)
	require.NoError(t, err)
	require.NotNil(t, oldRefresh)
	assert.True(t, oldRefresh.Revoked)

	// Replaying the rotated-out refresh token fails.
	_, err = env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "The refresh token is invalid.", "Token has been revoked")
}

func TestRefreshTokenGrantNarrowsScope(t *testing.T) {
	env := newTestEnv(t)
	first := issuePasswordPair(t, env, "read write")

	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
		Scope:        "read",
	})
	require.NoError(t, err)
	assert.Equal(t, "read", resp.Scope)

	claims, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "read", claims.Scope)
}

func TestRefreshTokenGrantRejectsScopeWidening(t *testing.T) {
	env := newTestEnv(t)
	first := issuePasswordPair(t, env, "read")

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
		Scope:        "read write",
	})
	requireOAuthError(t, err, oautherr.InvalidScope, "", "Check the `write` scope")

	// The rejected attempt must not have burned the token.
	resp, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	assert.Equal(t, "read", resp.Scope)
}

func TestRefreshTokenGrantRejectsUndecodableToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: "not-a-sealed-payload",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "The refresh token is invalid.", "Cannot decrypt the refresh token")
}

func TestRefreshTokenGrantRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `refresh_token` parameter")
}

func TestRefreshTokenGrantRejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	first := issuePasswordPair(t, env, "read")

	env.clock.Advance(DefaultRefreshTokenTTL + time.Second)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "The refresh token is invalid.", "Token has expired")
}

func TestRefreshTokenGrantRejectsForeignClient(t *testing.T) {
	env := newTestEnv(t)
	first := issuePasswordPair(t, env, "read")

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "bar",
		ClientSecret: "hunter2",
		RefreshToken: first.RefreshToken,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "The refresh token is invalid.", "Token is not linked to client")

	// The wrong-client attempt must not have burned the token either.
	_, err = env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantRefreshToken,
		ClientID:     "foo",
		ClientSecret: "secret",
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
}

func newTestAuthCode(env *testEnv, clientID string) *domain.AuthorizationCode {
	now := env.clock.Now()
	return &domain.AuthorizationCode{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		UserID:      "user-alice",
		Scopes:      []string{"read"},
		RedirectURI: "https://client.example/cb",
		Expiry:      now.Add(DefaultAuthCodeTTL),
		CreatedAt:   now,
	}
}

func TestAuthorizationCodeGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code := newTestAuthCode(env, "foo")
	sealed := env.sealAuthCode(t, code)

	resp, err := env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         sealed,
		RedirectURI:  "https://client.example/cb",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "read", resp.Scope)

	claims, err := env.signer.Verify(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", claims.Subject)
	assert.Equal(t, "read", claims.Scope)

	// Redemption consumed the code.
	stored, err := env.authCodes.Find(ctx, code.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Revoked)

	// Single use: a second redemption fails.
	_, err = env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         sealed,
		RedirectURI:  "https://client.example/cb",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Authorization code has been revoked")
}

func TestAuthorizationCodeGrantRejectsForeignClient(t *testing.T) {
	env := newTestEnv(t)
	code := newTestAuthCode(env, "foo")
	code.RedirectURI = ""
	sealed := env.sealAuthCode(t, code)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "bar",
		ClientSecret: "hunter2",
		Code:         sealed,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Authorization code was not issued to this client")
}

func TestAuthorizationCodeGrantRejectsExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	code := newTestAuthCode(env, "foo")
	sealed := env.sealAuthCode(t, code)

	env.clock.Advance(DefaultAuthCodeTTL + time.Second)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         sealed,
		RedirectURI:  "https://client.example/cb",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Authorization code has expired")
}

func TestAuthorizationCodeGrantRejectsUndecodableCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         "garbage",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Cannot decrypt the authorization code")
}

func TestAuthorizationCodeGrantRejectsMissingCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `code` parameter")
}

func TestAuthorizationCodeGrantRejectsUnregisteredRedirectURI(t *testing.T) {
	env := newTestEnv(t)
	code := newTestAuthCode(env, "foo")
	sealed := env.sealAuthCode(t, code)

	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         sealed,
		RedirectURI:  "https://evil.example/cb",
	})
	requireOAuthError(t, err, oautherr.InvalidClient, "Client authentication failed", "")
}

func TestAuthorizationCodeGrantRejectsRedirectURIMismatch(t *testing.T) {
	env := newTestEnv(t)
	code := newTestAuthCode(env, "foo")
	sealed := env.sealAuthCode(t, code)

	// The code was bound to a redirect URI; redeeming without repeating it
	// fails.
	_, err := env.issuer.Grant(context.Background(), TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "foo",
		ClientSecret: "secret",
		Code:         sealed,
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `redirect_uri` parameter")
}

func TestAuthorizationCodeGrantVerifiesPKCE(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	mint := func() string {
		code := newTestAuthCode(env, "pub")
		code.RedirectURI = "https://spa.example/cb"
		code.CodeChallenge = CodeChallengeFromVerifier(verifier)
		code.CodeChallengeMethod = CodeChallengeS256
		return env.sealAuthCode(t, code)
	}

	// Correct verifier succeeds; "pub" is a public client with no secret.
	resp, err := env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "pub",
		Code:         mint(),
		RedirectURI:  "https://spa.example/cb",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = env.issuer.Grant(ctx, TokenRequest{
		GrantType:    domain.GrantAuthorizationCode,
		ClientID:     "pub",
		Code:         mint(),
		RedirectURI:  "https://spa.example/cb",
		CodeVerifier: "wrong-verifier",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Failed to verify the `code_verifier`")

	_, err = env.issuer.Grant(ctx, TokenRequest{
		GrantType:   domain.GrantAuthorizationCode,
		ClientID:    "pub",
		Code:        mint(),
		RedirectURI: "https://spa.example/cb",
	})
	requireOAuthError(t, err, oautherr.InvalidRequest, "", "Check the `code_verifier` parameter")
}
