package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrMalformedToken = errors.New("malformed csrf token")

// Minter produces and checks session-bound CSRF tokens. A token is
// nonce.mac where mac = HMAC-SHA256(secret, nonce || sessionID).
type Minter struct {
	secret []byte
}

func NewMinter(secret string) *Minter {
	return &Minter{secret: []byte(secret)}
}

func (m *Minter) Mint(sessionID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	encodedNonce := base64.RawURLEncoding.EncodeToString(nonce)
	return encodedNonce + "." + m.mac(encodedNonce, sessionID), nil
}

// Validate checks a token's MAC against the session it claims to
// belong to.
func (m *Minter) Validate(token, sessionID string) bool {
	nonce, mac, found := strings.Cut(token, ".")
	if !found || nonce == "" || mac == "" {
		return false
	}

	expected := m.mac(nonce, sessionID)
	return hmac.Equal([]byte(mac), []byte(expected))
}

// Verify compares the caller-supplied token against the cookie copy in
// constant time. Both must be present and identical.
func Verify(provided, cookieToken string) bool {
	if provided == "" || cookieToken == "" {
		return false
	}
	return hmac.Equal([]byte(provided), []byte(cookieToken))
}

func (m *Minter) mac(encodedNonce, sessionID string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(encodedNonce))
	h.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
