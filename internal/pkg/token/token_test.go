package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTokenFormat(t *testing.T) {
	tok, err := GenerateToken()
	assert.NoError(t, err)
	assert.Len(t, tok, TokenLength)
	assert.True(t, IsWellFormedToken(tok))

	key, err := GenerateAPIKey()
	assert.NoError(t, err)
	assert.Len(t, key, APIKeyLength)
	assert.True(t, IsWellFormedAPIKey(key))

	state, err := GenerateState()
	assert.NoError(t, err)
	assert.Len(t, state, StateLength)
	assert.True(t, IsWellFormedState(state))
}

func TestGenerateTokenNoDuplicates(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatalf("unexpected error at iteration %d: %v", i, err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated at iteration %d", i)
		}
		seen[tok] = struct{}{}
	}
}

func TestIsWellFormedToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "", want: false},
		{in: "abc123", want: false},
		{in: "g2f0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8", want: false}, // 'g' outside charset
		{in: "A2f0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8", want: false}, // uppercase rejected
		{in: "a2f0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8", want: true},
	}

	for _, tt := range tests {
		if got := IsWellFormedToken(tt.in); got != tt.want {
			t.Fatalf("IsWellFormedToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
