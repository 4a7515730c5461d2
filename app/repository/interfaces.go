package repository

import (
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
)

// CompanyRepository defines the interface for company-related database operations
type CompanyRepository interface {
	Create(company *models.Company) error
	GetByID(id uint) (*models.Company, error)
	GetByAPIKey(apiKey string) (*models.Company, error)
	Update(company *models.Company) error
	Count() (int64, error)
}

// InvoiceRepository defines the interface for invoice-related database operations
type InvoiceRepository interface {
	Upsert(invoice *models.Invoice) error
	GetByToken(token string) (*models.Invoice, error)
	GetByCustomerToken(customerToken string) ([]models.Invoice, error)
	GetByCompanyAndExternalID(companyID uint, externalID string) (*models.Invoice, error)
	// FindCustomerTokenByEmail returns the customer token already issued for
	// this customer at this company, so new invoices join the same portal.
	FindCustomerTokenByEmail(companyID uint, email string) (string, error)
	// HasCustomerToken reports whether this company has already issued an
	// invoice under the given customer token.
	HasCustomerToken(companyID uint, customerToken string) (bool, error)
	UpdateStatus(id uint, status string) error
	// ApplyPayment decrements balance_due clamped at zero in a single
	// statement and returns the invoice as re-read afterwards.
	ApplyPayment(id uint, amount float64) (*models.Invoice, error)
	CountByCompany(companyID uint) (int64, error)
	CountByCompanyAndStatus(companyID uint, statuses ...string) (int64, error)
	SumViews(companyID uint) (int64, error)
}

// PaymentRepository defines the interface for payment-related database operations
type PaymentRepository interface {
	// CreateIfAbsent inserts the payment unless a row with the same
	// provider payment id already exists; it reports whether the insert
	// happened and returns the stored row either way.
	CreateIfAbsent(payment *models.Payment) (bool, *models.Payment, error)
	GetByProviderPaymentID(providerPaymentID string) (*models.Payment, error)
	GetUnsynced(companyID uint, since *time.Time) ([]models.Payment, error)
	MarkSynced(companyID uint, ids []uint) (int64, error)
	GetByCustomerToken(customerToken string) ([]models.Payment, error)
	CountByCompany(companyID uint) (int64, error)
	SumAmountByCompany(companyID uint) (float64, error)
}

// OAuthStateRepository defines the interface for connect-state operations
type OAuthStateRepository interface {
	Create(state *models.OAuthState) error
	GetByState(state string) (*models.OAuthState, error)
	Delete(id uint) error
	DeleteExpired(now time.Time) (int64, error)
}

// RateLimitRepository defines the interface for failed-lookup counters
type RateLimitRepository interface {
	GetByIPHash(ipHash string) (*models.RateLimitEntry, error)
	Save(entry *models.RateLimitEntry) error
	IncrementFailed(ipHash string, windowStart time.Time) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Company    CompanyRepository
	Invoice    InvoiceRepository
	Payment    PaymentRepository
	OAuthState OAuthStateRepository
	RateLimit  RateLimitRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Company:    NewCompanyRepository(db),
		Invoice:    NewInvoiceRepository(db),
		Payment:    NewPaymentRepository(db),
		OAuthState: NewOAuthStateRepository(db),
		RateLimit:  NewRateLimitRepository(db),
	}
}
