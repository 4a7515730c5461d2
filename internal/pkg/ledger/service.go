package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

var (
	// ErrVerificationFailed means the provider did not confirm the payment:
	// wrong status, wrong payee, or an amount that cannot belong to the
	// invoice.
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrProviderNotConnected means the company holds no credential for the
	// provider the confirmation names.
	ErrProviderNotConnected = errors.New("payment provider not connected")
)

// Mailer sends the customer-facing receipt. Delivery is best effort; a
// failed send never rolls back a recorded payment.
type Mailer interface {
	SendMail(to, subject, htmlBody, textBody string) error
}

// Service is the single write path for payment facts. Every confirmation,
// regardless of provider, funnels through RecordPayment so the idempotency
// and balance rules hold everywhere.
type Service struct {
	invoices repository.InvoiceRepository
	payments repository.PaymentRepository

	stripe *payments.StripeClient
	paypal *payments.PayPalClient
	square *payments.SquareClient

	mailer Mailer
	now    func() time.Time
}

func NewService(
	invoices repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	stripe *payments.StripeClient,
	paypal *payments.PayPalClient,
	square *payments.SquareClient,
	mailer Mailer,
) *Service {
	return &Service{
		invoices: invoices,
		payments: paymentRepo,
		stripe:   stripe,
		paypal:   paypal,
		square:   square,
		mailer:   mailer,
		now:      time.Now,
	}
}

// RecordResult reports one recording attempt. Duplicate is true when the
// provider payment id was already on file; the returned payment is then the
// previously stored row and the invoice is untouched.
type RecordResult struct {
	Payment   *models.Payment
	Invoice   *models.Invoice
	Duplicate bool
}

// RecordParams is one verified payment fact ready to be written down.
type RecordParams struct {
	Invoice               *models.Invoice
	Amount                float64
	Currency              string
	Method                string
	ProviderPaymentID     string
	ProviderTransactionID string
}

// RecordPayment writes a verified payment and settles the invoice balance.
// The unique index on provider_payment_id is the idempotency guarantee: a
// replayed confirmation finds its existing row, skips the balance update,
// and returns the original reference number.
func (s *Service) RecordPayment(p RecordParams) (*RecordResult, error) {
	inv := p.Invoice

	reference, err := s.generateReference()
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		CompanyID:             inv.CompanyID,
		InvoiceExternalID:     inv.ExternalID,
		CustomerName:          inv.CustomerName,
		Amount:                p.Amount,
		Currency:              strings.ToUpper(p.Currency),
		Method:                p.Method,
		ProviderTransactionID: p.ProviderTransactionID,
		ReferenceNumber:       reference,
		Status:                models.PaymentStatusCompleted,
	}
	if p.ProviderPaymentID != "" {
		id := p.ProviderPaymentID
		payment.ProviderPaymentID = &id
	}

	created, stored, err := s.payments.CreateIfAbsent(payment)
	if err != nil {
		return nil, err
	}
	if !created {
		return &RecordResult{Payment: stored, Invoice: inv, Duplicate: true}, nil
	}

	updated, err := s.invoices.ApplyPayment(inv.ID, p.Amount)
	if err != nil {
		return nil, err
	}

	// Status recomputation is strict: only an exactly zero balance flips
	// the invoice to paid. The cent tolerance applies when accepting an
	// amount, never when deciding settlement.
	if status := settledStatus(updated); status != updated.Status {
		if err := s.invoices.UpdateStatus(updated.ID, status); err != nil {
			return nil, err
		}
		updated.Status = status
	}

	s.sendReceipt(updated, stored)

	return &RecordResult{Payment: stored, Invoice: updated, Duplicate: false}, nil
}

// ConfirmStripe verifies a payment intent against the company's connected
// account and records it. requestedAmount is what the customer believes they
// paid; the settled intent must match it.
func (s *Service) ConfirmStripe(ctx context.Context, company *models.Company, invoice *models.Invoice, intentID string, requestedAmount float64) (*RecordResult, error) {
	if !company.HasStripe() {
		return nil, ErrProviderNotConnected
	}

	intent, err := s.stripe.GetPaymentIntent(ctx, company.StripeAccountID, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}
	if intent.Status != "succeeded" {
		return nil, fmt.Errorf("%w: intent status is %s", ErrVerificationFailed, intent.Status)
	}

	amount := payments.CentsToDollars(intent.Amount)
	if err := s.checkAmount(invoice, requestedAmount, amount); err != nil {
		return nil, err
	}

	return s.RecordPayment(RecordParams{
		Invoice:               invoice,
		Amount:                amount,
		Currency:              intent.Currency,
		Method:                models.ProviderStripe,
		ProviderPaymentID:     intent.ID,
		ProviderTransactionID: intent.LatestCharge,
	})
}

// ConfirmPayPal verifies a captured order: it must be completed, paid to
// this company, and sized for this invoice.
func (s *Service) ConfirmPayPal(ctx context.Context, company *models.Company, invoice *models.Invoice, orderID string, requestedAmount float64) (*RecordResult, error) {
	if !company.HasPayPal() {
		return nil, ErrProviderNotConnected
	}

	order, err := s.paypal.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}
	if order.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: order status is %s", ErrVerificationFailed, order.Status)
	}
	if !paidToCompany(order, company) {
		return nil, fmt.Errorf("%w: order payee does not match company", ErrVerificationFailed)
	}
	if err := s.checkAmount(invoice, requestedAmount, order.Amount); err != nil {
		return nil, err
	}

	// The capture id is the settled transaction; fall back to the order id
	// for orders reported completed without capture details.
	providerID := order.CaptureID
	if providerID == "" {
		providerID = order.ID
	}

	return s.RecordPayment(RecordParams{
		Invoice:               invoice,
		Amount:                order.Amount,
		Currency:              order.Currency,
		Method:                models.ProviderPayPal,
		ProviderPaymentID:     providerID,
		ProviderTransactionID: order.ID,
	})
}

// ConfirmSquare verifies a payment with the company's stored access token
// and records it.
func (s *Service) ConfirmSquare(ctx context.Context, company *models.Company, invoice *models.Invoice, paymentID string, requestedAmount float64) (*RecordResult, error) {
	if !company.HasSquare() {
		return nil, ErrProviderNotConnected
	}

	payment, err := s.square.GetPayment(ctx, company.SquareAccessToken, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, err.Error())
	}
	if payment.Status != "COMPLETED" {
		return nil, fmt.Errorf("%w: payment status is %s", ErrVerificationFailed, payment.Status)
	}
	if err := s.checkAmount(invoice, requestedAmount, payment.Amount); err != nil {
		return nil, err
	}

	return s.RecordPayment(RecordParams{
		Invoice:               invoice,
		Amount:                payment.Amount,
		Currency:              payment.Currency,
		Method:                models.ProviderSquare,
		ProviderPaymentID:     payment.ID,
		ProviderTransactionID: payment.ReceiptNumber,
	})
}

// PullUnsynced returns payments the company's back office has not yet
// acknowledged, oldest first.
func (s *Service) PullUnsynced(companyID uint, since *time.Time) ([]models.Payment, error) {
	return s.payments.GetUnsynced(companyID, since)
}

// AckSynced marks pulled payments as acknowledged and returns how many rows
// changed. Ids belonging to other companies are ignored by the scoped
// update, not an error.
func (s *Service) AckSynced(companyID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.payments.MarkSynced(companyID, ids)
}

// checkAmount rejects confirmations whose provider-reported amount cannot
// belong to this invoice. The settled amount must agree with what the client
// claims to have paid within one cent, and overpaying the balance by more
// than one cent means the confirmation was built for something else.
func (s *Service) checkAmount(invoice *models.Invoice, requested, reported float64) error {
	cents := payments.DollarsToCents(reported)
	if cents <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrVerificationFailed)
	}
	if diff := cents - payments.DollarsToCents(requested); diff < -1 || diff > 1 {
		return fmt.Errorf("%w: provider settled %.2f but confirmation claims %.2f", ErrVerificationFailed, reported, requested)
	}
	if cents > payments.DollarsToCents(invoice.BalanceDue)+1 {
		return fmt.Errorf("%w: amount exceeds balance due", ErrVerificationFailed)
	}
	return nil
}

func paidToCompany(order *payments.PayPalOrder, company *models.Company) bool {
	if company.PayPalMerchantID != "" && order.PayeeMerchantID == company.PayPalMerchantID {
		return true
	}
	if company.PayPalEmail != "" && strings.EqualFold(order.PayeeEmail, company.PayPalEmail) {
		return true
	}
	return false
}

// invoiceTransitions is the allowed client-driven status graph. Settlement
// statuses (partial, paid) are owned by RecordPayment and cannot be forced
// backwards from there.
var invoiceTransitions = map[string][]string{
	models.InvoiceStatusDraft:   {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:    {models.InvoiceStatusViewed, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusViewed:  {models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusOverdue: {models.InvoiceStatusCancelled},
	models.InvoiceStatusPartial: {models.InvoiceStatusCancelled},
}

// CanTransition reports whether a client may move an invoice between the two
// statuses. Same-status updates are always allowed so republishing an
// unchanged invoice stays a no-op.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// settledStatus derives the invoice status after a balance change.
func settledStatus(inv *models.Invoice) string {
	if inv.Status == models.InvoiceStatusCancelled {
		return inv.Status
	}
	if inv.BalanceDue == 0 {
		return models.InvoiceStatusPaid
	}
	if inv.BalanceDue < inv.TotalAmount {
		return models.InvoiceStatusPartial
	}
	return inv.Status
}

// generateReference builds a human-readable receipt number such as
// PAY-20260830-9F3A1C. The random suffix is retried implicitly through the
// unique index; collisions within one day are vanishingly rare.
func (s *Service) generateReference() (string, error) {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("randomness source unavailable: %w", err)
	}
	return fmt.Sprintf("PAY-%s-%s", s.now().UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(suffix))), nil
}

func (s *Service) sendReceipt(inv *models.Invoice, payment *models.Payment) {
	if s.mailer == nil || inv.CustomerEmail == "" {
		return
	}

	subject := fmt.Sprintf("Payment received for invoice %s", inv.ExternalID)
	text := fmt.Sprintf(
		"We received your payment of %.2f %s for invoice %s.\nReference: %s\nRemaining balance: %.2f %s\n",
		payment.Amount, payment.Currency, inv.ExternalID,
		payment.ReferenceNumber, inv.BalanceDue, inv.Currency,
	)
	html := fmt.Sprintf(
		"<p>We received your payment of <strong>%.2f %s</strong> for invoice <strong>%s</strong>.</p><p>Reference: %s<br>Remaining balance: %.2f %s</p>",
		payment.Amount, payment.Currency, inv.ExternalID,
		payment.ReferenceNumber, inv.BalanceDue, inv.Currency,
	)

	if err := s.mailer.SendMail(inv.CustomerEmail, subject, html, text); err != nil {
		log.Printf("[Ledger] receipt mail to %s failed: %v", inv.CustomerEmail, err)
	}
}
