package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const csrfKeyInfo = "incidentboard csrf v1"

// CSRF issues per-client tokens: HMAC-SHA256 of the client id under a key
// derived from the configured secret.
type CSRF struct {
	key []byte
}

// NewCSRF derives the signing key from secret. An empty secret yields a
// random key, so tokens only survive until restart.
func NewCSRF(secret string) (*CSRF, error) {
	ikm := []byte(strings.TrimSpace(secret))
	if len(ikm) == 0 {
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, err
		}
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(csrfKeyInfo)), key); err != nil {
		return nil, err
	}
	return &CSRF{key: key}, nil
}

func (c *CSRF) Token(clientID string) (string, error) {
	if c == nil || clientID == "" {
		return "", errors.New("csrf: missing client id")
	}
	m := hmac.New(sha256.New, c.key)
	_, _ = m.Write([]byte(clientID))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil)), nil
}

func (c *CSRF) Verify(clientID, token string) bool {
	want, err := c.Token(clientID)
	if err != nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(token))) == 1
}
