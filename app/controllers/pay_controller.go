package controllers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/checkout"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ledger"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/metrics/counter"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ratelimit"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/viewmodel"
)

// tokenNotFound is the one response for every unusable token: malformed,
// unknown, or rate-limit-exhausted lookups must be indistinguishable to an
// enumerator probing for live invoices.
func tokenNotFound(c *fiber.Ctx) error {
	return jsonError(c, fiber.StatusNotFound, "not_found", "Not found")
}

// guardLookup enforces the per-IP failure budget before any token touches
// the datastore. Returns false when the response has been written.
func guardLookup(c *fiber.Ctx) bool {
	err := lookupLimiter.Check(GetClientIP(c))
	if err == nil {
		return true
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		_ = jsonError(c, fiber.StatusTooManyRequests, "rate_limited", "Too many requests")
		return false
	}
	log.Printf("rate limit check: %v", err)
	_ = jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
	return false
}

// recordMiss charges one well-formed-but-unknown token against the caller.
func recordMiss(c *fiber.Ctx) {
	if err := lookupLimiter.RecordFailure(GetClientIP(c)); err != nil {
		log.Printf("rate limit record: %v", err)
	}
}

// lookupInvoice resolves an invoice token under the rate limiter. When ok is
// false the response has been written.
func lookupInvoice(c *fiber.Ctx, rawToken string) (*models.Invoice, bool) {
	if !guardLookup(c) {
		return nil, false
	}
	if !token.IsWellFormedToken(rawToken) {
		// Malformed tokens are rejected before the datastore and do not
		// consume failure budget.
		_ = tokenNotFound(c)
		return nil, false
	}

	repo := repository.GetGlobalFactory().GetInvoiceRepository()
	invoice, err := repo.GetByToken(rawToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			recordMiss(c)
			_ = tokenNotFound(c)
			return nil, false
		}
		log.Printf("invoice token lookup: %v", err)
		_ = jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
		return nil, false
	}
	return invoice, true
}

// HandleGetInvoiceByToken returns the customer view of one invoice. The
// first fetch of a sent invoice marks it viewed.
func HandleGetInvoiceByToken(c *fiber.Ctx) error {
	invoice, ok := lookupInvoice(c, c.Params("token"))
	if !ok {
		return nil
	}

	markViewed(invoice)

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(invoice.CompanyID)
	if err != nil {
		log.Printf("company for invoice %d: %v", invoice.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
	}

	return jsonSuccess(c, fiber.Map{
		"data": viewmodel.InvoicePage{
			Company: viewmodel.FromCompany(company),
			Invoice: viewmodel.FromInvoice(invoice, time.Now()),
			Token:   invoice.InvoiceToken,
		},
	})
}

// HandleGetCustomerPortal returns the company plus every invoice behind one
// customer token, partitioned into active and settled.
func HandleGetCustomerPortal(c *fiber.Ctx) error {
	invoices, ok := lookupCustomerInvoices(c, c.Params("token"))
	if !ok {
		return nil
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(invoices[0].CompanyID)
	if err != nil {
		log.Printf("company for customer token: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
	}

	return jsonSuccess(c, fiber.Map{
		"data": viewmodel.BuildCustomerPortal(company, invoices, time.Now()),
	})
}

// HandleGetCustomerPayments returns the payment history behind a customer
// token, newest first.
func HandleGetCustomerPayments(c *fiber.Ctx) error {
	rawToken := c.Params("token")
	if _, ok := lookupCustomerInvoices(c, rawToken); !ok {
		return nil
	}

	payments, err := repository.GetGlobalFactory().GetPaymentRepository().GetByCustomerToken(rawToken)
	if err != nil {
		log.Printf("payment history lookup: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
	}

	return jsonSuccess(c, fiber.Map{
		"payments": viewmodel.FromPayments(payments),
	})
}

type createCheckoutRequest struct {
	Provider       string  `json:"provider"`
	Amount         float64 `json:"amount"`
	SourceToken    string  `json:"source_token"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// HandleCreateCheckout opens a payment attempt against one invoice.
func HandleCreateCheckout(c *fiber.Ctx) error {
	if !guardLookup(c) {
		return nil
	}
	rawToken := c.Params("token")
	if !token.IsWellFormedToken(rawToken) {
		return tokenNotFound(c)
	}

	var req createCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}

	result, err := checkoutService.CreateCheckout(c.Context(), checkout.CheckoutParams{
		InvoiceToken:   rawToken,
		Provider:       req.Provider,
		Amount:         req.Amount,
		SourceToken:    req.SourceToken,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrInvoiceNotFound):
			recordMiss(c)
			return tokenNotFound(c)
		case errors.Is(err, checkout.ErrInvoiceNotPayable):
			return jsonError(c, fiber.StatusConflict, "invoice_not_payable", "This invoice can no longer be paid")
		case errors.Is(err, checkout.ErrInvalidAmount):
			return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_amount", "The amount does not match the open balance")
		case errors.Is(err, checkout.ErrUnknownProvider):
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_provider", "Unknown payment method")
		case errors.Is(err, checkout.ErrProviderNotConnected):
			return jsonError(c, fiber.StatusConflict, "provider_not_connected", "This payment method is not available")
		default:
			log.Printf("create checkout: %v", err)
			return jsonError(c, fiber.StatusBadGateway, "provider_error", "The payment could not be started")
		}
	}

	return jsonSuccess(c, fiber.Map{"checkout": result})
}

type confirmPaymentRequest struct {
	Provider       string  `json:"provider"`
	ConfirmationID string  `json:"confirmation_id"`
	Amount         float64 `json:"amount"`
}

// HandleConfirmPayment verifies a client-side-completed payment with the
// provider and records it. Replayed confirmations return the original
// reference number.
func HandleConfirmPayment(c *fiber.Ctx) error {
	invoice, ok := lookupInvoice(c, c.Params("token"))
	if !ok {
		return nil
	}

	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}
	if req.ConfirmationID == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "confirmation_id is required")
	}
	if req.Amount <= 0 {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "amount is required")
	}

	company, err := repository.GetGlobalFactory().GetCompanyRepository().GetByID(invoice.CompanyID)
	if err != nil {
		log.Printf("company for invoice %d: %v", invoice.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_error", "Confirmation failed")
	}

	var result *ledger.RecordResult
	switch req.Provider {
	case models.ProviderStripe:
		result, err = ledgerService.ConfirmStripe(c.Context(), company, invoice, req.ConfirmationID, req.Amount)
	case models.ProviderPayPal:
		result, err = ledgerService.ConfirmPayPal(c.Context(), company, invoice, req.ConfirmationID, req.Amount)
	case models.ProviderSquare:
		result, err = ledgerService.ConfirmSquare(c.Context(), company, invoice, req.ConfirmationID, req.Amount)
	default:
		return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_provider", "Unknown payment method")
	}
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrProviderNotConnected):
			return jsonError(c, fiber.StatusConflict, "provider_not_connected", "This payment method is not available")
		case errors.Is(err, ledger.ErrVerificationFailed):
			return jsonError(c, fiber.StatusConflict, "verification_failed", "The payment could not be verified")
		default:
			log.Printf("confirm payment: %v", err)
			return jsonError(c, fiber.StatusBadGateway, "provider_error", "The payment could not be verified")
		}
	}

	return jsonSuccess(c, fiber.Map{
		"payment": fiber.Map{
			"reference_number": result.Payment.ReferenceNumber,
			"amount":           result.Payment.Amount,
			"currency":         result.Payment.Currency,
			"duplicate":        result.Duplicate,
		},
		"invoice": fiber.Map{
			"status":      result.Invoice.Status,
			"balance_due": result.Invoice.BalanceDue,
		},
	})
}

// lookupCustomerInvoices resolves a customer token under the rate limiter.
// A well-formed token with no invoices is a miss like any other.
func lookupCustomerInvoices(c *fiber.Ctx, rawToken string) ([]models.Invoice, bool) {
	if !guardLookup(c) {
		return nil, false
	}
	if !token.IsWellFormedToken(rawToken) {
		_ = tokenNotFound(c)
		return nil, false
	}

	invoices, err := repository.GetGlobalFactory().GetInvoiceRepository().GetByCustomerToken(rawToken)
	if err != nil {
		log.Printf("customer token lookup: %v", err)
		_ = jsonError(c, fiber.StatusInternalServerError, "internal_error", "Lookup failed")
		return nil, false
	}
	if len(invoices) == 0 {
		recordMiss(c)
		_ = tokenNotFound(c)
		return nil, false
	}
	return invoices, true
}

// markViewed counts the view and flips a freshly sent invoice to viewed on
// its first fetch. Failures only cost the markers, never the page.
func markViewed(invoice *models.Invoice) {
	if err := counter.AddInvoiceView(invoice.ID); err != nil {
		log.Printf("counting view for invoice %d: %v", invoice.ID, err)
	}
	if invoice.Status != models.InvoiceStatusSent {
		return
	}
	repo := repository.GetGlobalFactory().GetInvoiceRepository()
	if err := repo.UpdateStatus(invoice.ID, models.InvoiceStatusViewed); err != nil {
		log.Printf("marking invoice %d viewed: %v", invoice.ID, err)
		return
	}
	invoice.Status = models.InvoiceStatusViewed
}
