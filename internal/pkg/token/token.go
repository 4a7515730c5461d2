package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Token formats. Invoice and customer tokens carry 192 bits of randomness,
// API keys and CSRF state 256 bits, all hex-encoded.
const (
	TokenLength  = 48
	APIKeyLength = 64
	StateLength  = 64
)

func randomHex(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		// Never fall back to a weaker source; callers treat this as fatal.
		return "", fmt.Errorf("randomness source unavailable: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateToken produces an opaque invoice or customer token.
func GenerateToken() (string, error) {
	return randomHex(TokenLength / 2)
}

// GenerateAPIKey produces a company API key.
func GenerateAPIKey() (string, error) {
	return randomHex(APIKeyLength / 2)
}

// GenerateState produces a CSRF state token for provider-connect flows.
func GenerateState() (string, error) {
	return randomHex(StateLength / 2)
}

// IsWellFormedToken checks exact length and lowercase-hex charset before any
// datastore lookup, so malformed input is rejected without touching the DB.
func IsWellFormedToken(s string) bool {
	return isHexOfLength(s, TokenLength)
}

// IsWellFormedAPIKey checks the API key shape.
func IsWellFormedAPIKey(s string) bool {
	return isHexOfLength(s, APIKeyLength)
}

// IsWellFormedState checks the CSRF state shape.
func IsWellFormedState(s string) bool {
	return isHexOfLength(s, StateLength)
}

func isHexOfLength(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
