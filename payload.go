package oauthd

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// PayloadCodec seals the opaque artifacts handed to clients for refresh
// tokens and authorization codes: a JSON body encrypted with AES-256-GCM and
// base64url-encoded. Clients cannot read or forge them; the server opens
// them at redemption time to recover the identifiers inside.
type PayloadCodec struct {
	aead cipher.AEAD
}

// NewPayloadCodec creates a codec from a 32-byte encryption key.
func NewPayloadCodec(key []byte) (*PayloadCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("payload encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload cipher: %w", err)
	}
	return &PayloadCodec{aead: aead}, nil
}

// Seal encrypts v into an opaque artifact.
func (c *PayloadCodec) Seal(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate payload nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts an artifact produced by Seal into v. Any tampering, trailing
// garbage or wrong-key input fails here.
func (c *PayloadCodec) Open(raw string, v any) error {
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return errors.New("payload is not valid base64url")
	}
	if len(sealed) < c.aead.NonceSize() {
		return errors.New("payload is truncated")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return errors.New("payload cannot be decrypted")
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// refreshTokenPayload is the body sealed into refresh token artifacts.
type refreshTokenPayload struct {
	RefreshTokenID string `json:"refresh_token_id"`
}

// authCodePayload is the body sealed into authorization code artifacts. The
// redundant fields let redemption cross-check the presenting client and
// redirect URI against what was fixed at issuance.
type authCodePayload struct {
	AuthCodeID  string    `json:"auth_code_id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	Expiry      time.Time `json:"expiry"`
}
