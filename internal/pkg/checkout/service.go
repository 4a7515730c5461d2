package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ledger"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

// Precondition failures, ordered. Each check only runs once every earlier one
// has passed, so a caller probing with a bad amount on a cancelled invoice
// learns about the cancellation, not the amount.
var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceNotPayable    = errors.New("invoice is not payable")
	ErrInvalidAmount        = errors.New("invalid payment amount")
	ErrProviderNotConnected = errors.New("payment provider not connected")
	ErrUnknownProvider      = errors.New("unknown payment provider")
)

// Service opens checkouts for invoices addressed by token. Stripe and PayPal
// checkouts hand client-side material back to the browser; Square with a card
// source token settles synchronously through the ledger.
type Service struct {
	invoices  repository.InvoiceRepository
	companies repository.CompanyRepository

	stripe *payments.StripeClient
	square *payments.SquareClient

	ledger *ledger.Service
}

func NewService(
	invoices repository.InvoiceRepository,
	companies repository.CompanyRepository,
	stripe *payments.StripeClient,
	square *payments.SquareClient,
	ledgerSvc *ledger.Service,
) *Service {
	return &Service{
		invoices:  invoices,
		companies: companies,
		stripe:    stripe,
		square:    square,
		ledger:    ledgerSvc,
	}
}

// CheckoutParams is one checkout request from the customer portal.
type CheckoutParams struct {
	InvoiceToken string
	Provider     string
	Amount       float64
	// SourceToken is the tokenized card for synchronous providers; empty
	// means the caller wants client-side material instead.
	SourceToken string
	// IdempotencyKey guards synchronous charges against double submission.
	IdempotencyKey string
}

// Checkout is the material the browser needs to finish (or has finished)
// paying. Exactly one of the provider sections is populated.
type Checkout struct {
	Provider string  `json:"provider"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Stripe
	ClientSecret   string `json:"client_secret,omitempty"`
	PublishableKey string `json:"publishable_key,omitempty"`
	IntentID       string `json:"intent_id,omitempty"`

	// PayPal
	PayeeMerchantID string `json:"payee_merchant_id,omitempty"`
	PayeeEmail      string `json:"payee_email,omitempty"`

	// Square
	ApplicationID string `json:"application_id,omitempty"`
	LocationID    string `json:"location_id,omitempty"`

	// Synchronous settlement result
	Completed       bool    `json:"completed,omitempty"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	BalanceDue      float64 `json:"balance_due,omitempty"`
}

// CreateCheckout runs the ordered precondition checks and opens a checkout
// with the requested provider.
func (s *Service) CreateCheckout(ctx context.Context, p CheckoutParams) (*Checkout, error) {
	invoice, err := s.invoices.GetByToken(p.InvoiceToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if !invoice.IsPayable() {
		return nil, ErrInvoiceNotPayable
	}

	// A cent of slack absorbs client-side float formatting; anything past
	// that is a request for a different invoice.
	amountCents := payments.DollarsToCents(p.Amount)
	if amountCents <= 0 || amountCents > payments.DollarsToCents(invoice.BalanceDue)+1 {
		return nil, ErrInvalidAmount
	}

	company, err := s.companies.GetByID(invoice.CompanyID)
	if err != nil {
		return nil, err
	}
	if !models.KnownProvider(p.Provider) {
		return nil, ErrUnknownProvider
	}
	if !company.HasProvider(p.Provider) {
		return nil, ErrProviderNotConnected
	}

	switch p.Provider {
	case models.ProviderStripe:
		return s.stripeCheckout(ctx, company, invoice, amountCents)
	case models.ProviderPayPal:
		return paypalCheckout(company, invoice, p.Amount), nil
	case models.ProviderSquare:
		return s.squareCheckout(ctx, company, invoice, p)
	}
	return nil, ErrUnknownProvider
}

func (s *Service) stripeCheckout(ctx context.Context, company *models.Company, invoice *models.Invoice, amountCents int64) (*Checkout, error) {
	intent, err := s.stripe.CreatePaymentIntent(ctx, payments.StripeIntentParams{
		AccountID:         company.StripeAccountID,
		AmountCents:       amountCents,
		Currency:          invoice.Currency,
		InvoiceExternalID: invoice.ExternalID,
		CompanyID:         company.ID,
		CustomerEmail:     invoice.CustomerEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe checkout failed: %w", err)
	}
	return &Checkout{
		Provider:       models.ProviderStripe,
		Amount:         payments.CentsToDollars(amountCents),
		Currency:       invoice.Currency,
		ClientSecret:   intent.ClientSecret,
		PublishableKey: s.stripe.PublishableKey,
		IntentID:       intent.ID,
	}, nil
}

// paypalCheckout needs no provider call: the browser builds the order itself
// and the payee fields pin it to this company.
func paypalCheckout(company *models.Company, invoice *models.Invoice, amount float64) *Checkout {
	return &Checkout{
		Provider:        models.ProviderPayPal,
		Amount:          amount,
		Currency:        invoice.Currency,
		PayeeMerchantID: company.PayPalMerchantID,
		PayeeEmail:      company.PayPalEmail,
	}
}

func (s *Service) squareCheckout(ctx context.Context, company *models.Company, invoice *models.Invoice, p CheckoutParams) (*Checkout, error) {
	// No source token yet: hand back what the card form needs.
	if strings.TrimSpace(p.SourceToken) == "" {
		return &Checkout{
			Provider:      models.ProviderSquare,
			Amount:        p.Amount,
			Currency:      invoice.Currency,
			ApplicationID: s.square.ApplicationID,
			LocationID:    company.SquareLocationID,
		}, nil
	}

	idempotencyKey := strings.TrimSpace(p.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	payment, err := s.square.CreatePayment(ctx, payments.SquareChargeParams{
		AccessToken:    company.SquareAccessToken,
		SourceID:       p.SourceToken,
		IdempotencyKey: idempotencyKey,
		AmountCents:    payments.DollarsToCents(p.Amount),
		Currency:       invoice.Currency,
		LocationID:     company.SquareLocationID,
		Note:           fmt.Sprintf("Invoice %s", invoice.ExternalID),
	})
	if err != nil {
		return nil, fmt.Errorf("square charge failed: %w", err)
	}
	if payment.Status != "COMPLETED" && payment.Status != "APPROVED" {
		return nil, fmt.Errorf("square charge not completed: status=%s", payment.Status)
	}

	res, err := s.ledger.RecordPayment(ledger.RecordParams{
		Invoice:               invoice,
		Amount:                payment.Amount,
		Currency:              payment.Currency,
		Method:                models.ProviderSquare,
		ProviderPaymentID:     payment.ID,
		ProviderTransactionID: payment.ReceiptNumber,
	})
	if err != nil {
		return nil, err
	}

	return &Checkout{
		Provider:        models.ProviderSquare,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Completed:       true,
		ReferenceNumber: res.Payment.ReferenceNumber,
		BalanceDue:      res.Invoice.BalanceDue,
	}, nil
}
