package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Payment provider constants used across company and payment models.
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderSquare = "square"
)

// KnownProvider reports whether p is one of the supported payment backends.
func KnownProvider(p string) bool {
	switch p {
	case ProviderStripe, ProviderPayPal, ProviderSquare:
		return true
	default:
		return false
	}
}

// Company is one client-app tenant. API key authenticates server-to-server
// calls; per-provider credential fields are mutated only by the connect flow.
type Company struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=2,max=200"`
	LogoURL      string `gorm:"type:varchar(255);default:''" json:"logo_url"`
	APIKey       string `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ContactEmail string `gorm:"type:varchar(200);default:''" json:"contact_email" validate:"omitempty,email"`

	// Stripe connected account (hosted onboarding model).
	StripeAccountID string `gorm:"type:varchar(191);default:''" json:"-"`

	// PayPal merchant. The email variant stores only PayPalEmail.
	PayPalMerchantID string `gorm:"type:varchar(191);default:''" json:"-"`
	PayPalEmail      string `gorm:"type:varchar(200);default:''" json:"-"`

	// Square merchant, access credential and primary location.
	SquareMerchantID  string `gorm:"type:varchar(191);default:''" json:"-"`
	SquareAccessToken string `gorm:"type:text" json:"-"`
	SquareLocationID  string `gorm:"type:varchar(191);default:''" json:"-"`
	SquareEmail       string `gorm:"type:varchar(200);default:''" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Company) Validate() error {
	v := validator.New()

	return v.Struct(c)
}

// HasStripe reports whether a Stripe connected account is linked.
func (c *Company) HasStripe() bool {
	return c.StripeAccountID != ""
}

// HasPayPal reports whether a PayPal payee (merchant id or email) is linked.
func (c *Company) HasPayPal() bool {
	return c.PayPalMerchantID != "" || c.PayPalEmail != ""
}

// HasSquare reports whether Square credentials are linked. A usable Square
// connection needs both the access token and a location to charge against.
func (c *Company) HasSquare() bool {
	return c.SquareAccessToken != "" && c.SquareLocationID != ""
}

// HasProvider reports credential availability for the given provider tag.
func (c *Company) HasProvider(provider string) bool {
	switch provider {
	case ProviderStripe:
		return c.HasStripe()
	case ProviderPayPal:
		return c.HasPayPal()
	case ProviderSquare:
		return c.HasSquare()
	default:
		return false
	}
}

// ClearProvider empties all credential fields for a provider. Clearing fields
// that are already empty is a no-op, which keeps disconnect idempotent.
func (c *Company) ClearProvider(provider string) {
	switch provider {
	case ProviderStripe:
		c.StripeAccountID = ""
	case ProviderPayPal:
		c.PayPalMerchantID = ""
		c.PayPalEmail = ""
	case ProviderSquare:
		c.SquareMerchantID = ""
		c.SquareAccessToken = ""
		c.SquareLocationID = ""
		c.SquareEmail = ""
	}
}
