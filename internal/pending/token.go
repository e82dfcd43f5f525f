package pending

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenBytes gives 256 bits of entropy, double the 128-bit floor tokens
// must carry. Encoded length is 43 URL-safe characters.
const tokenBytes = 32

// NewToken returns a cryptographically random, URL-safe, padding-free token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
