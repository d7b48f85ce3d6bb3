package oauthd

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods.
const (
	CodeChallengePlain = "plain"
	CodeChallengeS256  = "S256"
)

// CodeChallengeFromVerifier derives the S256 challenge for a code_verifier.
func CodeChallengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCodeChallenge checks a code_verifier against the challenge the
// authorization code was issued with. An empty or unknown method falls back
// to plain comparison.
func VerifyCodeChallenge(challenge, method, verifier string) bool {
	switch method {
	case CodeChallengeS256:
		computed := CodeChallengeFromVerifier(verifier)
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
	default:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	}
}
