package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// CSRFTokenBytes is the entropy of a CSRF token before encoding.
const CSRFTokenBytes = 32

// RandomToken returns n bytes of cryptographically secure random data encoded
// as base64url without padding.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCSRFToken mints the opaque anti-forgery value paired with a login session.
func NewCSRFToken() (string, error) {
	return RandomToken(CSRFTokenBytes)
}
