// crypto/random.go
package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomBytes generates n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomBase64URL generates a random URL-safe base64 string from n bytes.
func RandomBase64URL(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateToken returns a 32-byte opaque token, used for refresh tokens and
// OAuth state values.
func GenerateToken() (string, error) {
	return RandomBase64URL(32)
}
