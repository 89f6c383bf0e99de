package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenLength is the length in characters of generated bearer tokens.
const TokenLength = 64

// GenerateToken returns a fresh bearer token: 32 bytes from a
// cryptographically secure source, hex-encoded.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// Provision returns the effective bearer token: the supplied one when
// non-empty, otherwise a freshly generated one. generated reports which
// case applied so the caller can announce a new token to the operator.
func Provision(supplied string) (token string, generated bool, err error) {
	if supplied != "" {
		return supplied, false, nil
	}
	token, err = GenerateToken()
	return token, true, err
}
