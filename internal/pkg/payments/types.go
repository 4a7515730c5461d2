package payments

import (
	"fmt"
	"math"
)

// AuthorizationError is a terminal provider failure during onboarding or
// token exchange. The customer must restart the flow; nothing retries it.
type AuthorizationError struct {
	Provider string
	Message  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s authorization failed: %s", e.Provider, e.Message)
}

// NewAuthorizationError wraps a provider failure message.
func NewAuthorizationError(provider, message string) *AuthorizationError {
	return &AuthorizationError{Provider: provider, Message: message}
}

// DollarsToCents converts a fractional amount to the smallest currency unit.
func DollarsToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CentsToDollars converts back from the smallest currency unit.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}
