package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/companycontext"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/constants"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/env"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ledger"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
)

type publishInvoiceRequest struct {
	ExternalID    string          `json:"external_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerToken string          `json:"customer_token"`
	Status        string          `json:"status"`
	TotalAmount   float64         `json:"total_amount"`
	BalanceDue    *float64        `json:"balance_due"`
	Currency      string          `json:"currency"`
	DueDate       *time.Time      `json:"due_date"`
	Payload       json.RawMessage `json:"payload"`
}

// HandlePublishInvoice creates or updates an invoice, keyed on the company
// plus the client app's own invoice id. Tokens are issued on first publish
// and survive every later update, so already-sent links keep working.
func HandlePublishInvoice(c *fiber.Ctx) error {
	companyID := companycontext.GetCompanyID(c)
	if companyID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing company context")
	}

	var req publishInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}
	if req.ExternalID == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "external_id is required")
	}

	repo := repository.GetGlobalFactory().GetInvoiceRepository()

	existing, err := repo.GetByCompanyAndExternalID(companyID, req.ExternalID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("invoice lookup for company %d: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Invoice could not be loaded")
	}

	status := publishStatus(req.Status, existing)
	if existing != nil {
		if !ledger.CanTransition(existing.Status, status) {
			return jsonError(c, fiber.StatusConflict, "invalid_status_transition",
				"Invoice cannot move from "+existing.Status+" to "+status)
		}
	}

	balance := req.TotalAmount
	if req.BalanceDue != nil {
		balance = *req.BalanceDue
	}
	if balance > req.TotalAmount {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "balance_due cannot exceed total_amount")
	}

	invoice := &models.Invoice{
		CompanyID:     companyID,
		ExternalID:    req.ExternalID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		PayloadJSON:   string(req.Payload),
		Status:        status,
		TotalAmount:   req.TotalAmount,
		BalanceDue:    balance,
		Currency:      req.Currency,
		DueDate:       req.DueDate,
	}
	if invoice.Currency == "" {
		invoice.Currency = "USD"
	}

	// Tokens only matter on the insert path; the upsert never rewrites them.
	invoiceToken, err := token.GenerateToken()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "token_generation_failed", "Could not generate invoice token")
	}
	invoice.InvoiceToken = invoiceToken
	invoice.CustomerToken, err = resolveCustomerToken(repo, companyID, req)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "token_generation_failed", "Could not generate customer token")
	}

	if err := invoice.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repo.Upsert(invoice); err != nil {
		log.Printf("invoice upsert for company %d: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Invoice could not be saved")
	}

	baseURL := env.GetEnv("PUBLIC_BASE_URL", "")
	return jsonSuccess(c, fiber.Map{
		"invoice": fiber.Map{
			"external_id":    invoice.ExternalID,
			"status":         invoice.Status,
			"total_amount":   invoice.TotalAmount,
			"balance_due":    invoice.BalanceDue,
			"currency":       invoice.Currency,
			"invoice_token":  invoice.InvoiceToken,
			"customer_token": invoice.CustomerToken,
			"invoice_url":    baseURL + constants.PayInvoiceRoute + invoice.InvoiceToken,
			"customer_url":   baseURL + constants.PayCustomerRoute + invoice.CustomerToken,
		},
	})
}

// publishStatus picks the effective status of a publish request. An omitted
// status keeps whatever the invoice already has, so republishing line items
// never counts as a status change; only first publishes default to sent.
func publishStatus(requested string, existing *models.Invoice) string {
	if requested != "" {
		return requested
	}
	if existing != nil {
		return existing.Status
	}
	return models.InvoiceStatusSent
}

// resolveCustomerToken reuses the token the client hands back, then the one
// on file for this customer email, and only then mints a new one. Reuse is
// what groups a customer's invoices onto one portal page. A supplied token
// counts only when this company already issued it; a token minted for
// another company gets replaced, so one tenant can never attach invoices to
// another tenant's portal.
func resolveCustomerToken(repo repository.InvoiceRepository, companyID uint, req publishInvoiceRequest) (string, error) {
	if token.IsWellFormedToken(req.CustomerToken) {
		owned, err := repo.HasCustomerToken(companyID, req.CustomerToken)
		if err != nil {
			return "", err
		}
		if owned {
			return req.CustomerToken, nil
		}
	}
	if req.CustomerEmail != "" {
		if existing, err := repo.FindCustomerTokenByEmail(companyID, req.CustomerEmail); err == nil {
			return existing, nil
		}
	}
	return token.GenerateToken()
}

// HandlePullUnsyncedPayments returns payments the client app has not yet
// imported. The optional `since` query bound is RFC3339.
func HandlePullUnsyncedPayments(c *fiber.Ctx) error {
	companyID := companycontext.GetCompanyID(c)
	if companyID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing company context")
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_since", "since must be RFC3339")
		}
		since = &parsed
	}

	payments, err := ledgerService.PullUnsynced(companyID, since)
	if err != nil {
		log.Printf("pull unsynced for company %d: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Payments could not be loaded")
	}

	return jsonSuccess(c, fiber.Map{
		"payments": payments,
		"count":    len(payments),
	})
}

type ackSyncedRequest struct {
	PaymentIDs []uint `json:"payment_ids"`
}

// HandleAckSyncedPayments marks pulled payments as imported. Already-acked
// or foreign ids simply do not count.
func HandleAckSyncedPayments(c *fiber.Ctx) error {
	companyID := companycontext.GetCompanyID(c)
	if companyID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing company context")
	}

	var req ackSyncedRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
	}

	acked, err := ledgerService.AckSynced(companyID, req.PaymentIDs)
	if err != nil {
		log.Printf("ack synced for company %d: %v", companyID, err)
		return jsonError(c, fiber.StatusInternalServerError, "datastore_error", "Payments could not be acknowledged")
	}

	return jsonSuccess(c, fiber.Map{"acknowledged": acked})
}
