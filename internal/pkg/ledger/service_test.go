package ledger

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

type fakeInvoiceRepo struct {
	invoices map[uint]*models.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[uint]*models.Invoice)}
}

func (f *fakeInvoiceRepo) Upsert(inv *models.Invoice) error {
	if inv.ID == 0 {
		inv.ID = uint(len(f.invoices) + 1)
	}
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeInvoiceRepo) GetByToken(token string) (*models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.InvoiceToken == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) GetByCustomerToken(token string) ([]models.Invoice, error) {
	var out []models.Invoice
	for _, inv := range f.invoices {
		if inv.CustomerToken == token {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) GetByCompanyAndExternalID(companyID uint, externalID string) (*models.Invoice, error) {
	for _, inv := range f.invoices {
		if inv.CompanyID == companyID && inv.ExternalID == externalID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) FindCustomerTokenByEmail(companyID uint, email string) (string, error) {
	for _, inv := range f.invoices {
		if inv.CompanyID == companyID && inv.CustomerEmail == email {
			return inv.CustomerToken, nil
		}
	}
	return "", gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) HasCustomerToken(companyID uint, customerToken string) (bool, error) {
	for _, inv := range f.invoices {
		if inv.CompanyID == companyID && inv.CustomerToken == customerToken {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvoiceRepo) SumViews(uint) (int64, error) { return 0, nil }

func (f *fakeInvoiceRepo) UpdateStatus(id uint, status string) error {
	if inv, ok := f.invoices[id]; ok {
		inv.Status = status
		return nil
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) ApplyPayment(id uint, amount float64) (*models.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	// Mirrors GREATEST(balance_due - ?, 0) at decimal(12,2) precision.
	next := math.Round((inv.BalanceDue-amount)*100) / 100
	if next < 0 {
		next = 0
	}
	inv.BalanceDue = next
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) CountByCompany(companyID uint) (int64, error) {
	var n int64
	for _, inv := range f.invoices {
		if inv.CompanyID == companyID {
			n++
		}
	}
	return n, nil
}

func (f *fakeInvoiceRepo) CountByCompanyAndStatus(companyID uint, statuses ...string) (int64, error) {
	var n int64
	for _, inv := range f.invoices {
		if inv.CompanyID != companyID {
			continue
		}
		for _, s := range statuses {
			if inv.Status == s {
				n++
				break
			}
		}
	}
	return n, nil
}

type fakePaymentRepo struct {
	payments []*models.Payment
}

func (f *fakePaymentRepo) CreateIfAbsent(p *models.Payment) (bool, *models.Payment, error) {
	if p.ProviderPaymentID != nil {
		for _, existing := range f.payments {
			if existing.ProviderPaymentID != nil && *existing.ProviderPaymentID == *p.ProviderPaymentID {
				cp := *existing
				return false, &cp, nil
			}
		}
	}
	p.ID = uint(len(f.payments) + 1)
	cp := *p
	f.payments = append(f.payments, &cp)
	stored := cp
	return true, &stored, nil
}

func (f *fakePaymentRepo) GetByProviderPaymentID(id string) (*models.Payment, error) {
	for _, p := range f.payments {
		if p.ProviderPaymentID != nil && *p.ProviderPaymentID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePaymentRepo) GetUnsynced(companyID uint, since *time.Time) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range f.payments {
		if p.CompanyID != companyID || p.Synced {
			continue
		}
		if since != nil && p.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePaymentRepo) MarkSynced(companyID uint, ids []uint) (int64, error) {
	var n int64
	for _, p := range f.payments {
		for _, id := range ids {
			if p.ID == id && p.CompanyID == companyID && !p.Synced {
				p.Synced = true
				n++
			}
		}
	}
	return n, nil
}

func (f *fakePaymentRepo) GetByCustomerToken(token string) ([]models.Payment, error) {
	return nil, nil
}

func (f *fakePaymentRepo) CountByCompany(companyID uint) (int64, error) {
	var n int64
	for _, p := range f.payments {
		if p.CompanyID == companyID {
			n++
		}
	}
	return n, nil
}

func (f *fakePaymentRepo) SumAmountByCompany(companyID uint) (float64, error) {
	var sum float64
	for _, p := range f.payments {
		if p.CompanyID == companyID {
			sum += p.Amount
		}
	}
	return sum, nil
}

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) SendMail(to, subject, htmlBody, textBody string) error {
	m.sent = append(m.sent, to)
	return nil
}

func newTestLedger(stripeBase, paypalBase, squareBase string) (*Service, *fakeInvoiceRepo, *fakePaymentRepo, *recordingMailer) {
	invoices := newFakeInvoiceRepo()
	paymentRepo := &fakePaymentRepo{}
	mailer := &recordingMailer{}
	httpClient := &http.Client{Timeout: 5 * time.Second}

	svc := NewService(
		invoices,
		paymentRepo,
		&payments.StripeClient{SecretKey: "sk", APIBaseURL: stripeBase, HTTPClient: httpClient},
		&payments.PayPalClient{ClientID: "id", ClientSecret: "secret", APIBaseURL: paypalBase, HTTPClient: httpClient},
		&payments.SquareClient{ApplicationID: "app", ApplicationSecret: "secret", APIBaseURL: squareBase, HTTPClient: httpClient},
		mailer,
	)
	return svc, invoices, paymentRepo, mailer
}

func seedInvoice(t *testing.T, repo *fakeInvoiceRepo, total float64) *models.Invoice {
	t.Helper()
	inv := &models.Invoice{
		CompanyID:     1,
		ExternalID:    "INV-1001",
		InvoiceToken:  "tok",
		CustomerToken: "cust",
		CustomerEmail: "customer@example.com",
		Status:        models.InvoiceStatusSent,
		TotalAmount:   total,
		BalanceDue:    total,
		Currency:      "USD",
	}
	if err := repo.Upsert(inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func TestRecordPaymentSettlesBalance(t *testing.T) {
	svc, invoices, _, mailer := newTestLedger("", "", "")
	inv := seedInvoice(t, invoices, 100.00)

	res, err := svc.RecordPayment(RecordParams{
		Invoice:           inv,
		Amount:            40.00,
		Currency:          "usd",
		Method:            models.ProviderStripe,
		ProviderPaymentID: "pi_first",
	})
	assert.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 60.00, res.Invoice.BalanceDue)
	assert.Equal(t, models.InvoiceStatusPartial, res.Invoice.Status)
	assert.Equal(t, "USD", res.Payment.Currency)
	assert.Len(t, mailer.sent, 1)

	res, err = svc.RecordPayment(RecordParams{
		Invoice:           res.Invoice,
		Amount:            60.00,
		Currency:          "USD",
		Method:            models.ProviderStripe,
		ProviderPaymentID: "pi_second",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0.00, res.Invoice.BalanceDue)
	assert.Equal(t, models.InvoiceStatusPaid, res.Invoice.Status)
}

func TestRecordPaymentIsIdempotent(t *testing.T) {
	svc, invoices, paymentRepo, _ := newTestLedger("", "", "")
	inv := seedInvoice(t, invoices, 100.00)

	first, err := svc.RecordPayment(RecordParams{
		Invoice:           inv,
		Amount:            100.00,
		Currency:          "USD",
		Method:            models.ProviderPayPal,
		ProviderPaymentID: "CAP-123",
	})
	assert.NoError(t, err)
	assert.False(t, first.Duplicate)

	// Replayed confirmation: same row, same reference, no second decrement.
	second, err := svc.RecordPayment(RecordParams{
		Invoice:           first.Invoice,
		Amount:            100.00,
		Currency:          "USD",
		Method:            models.ProviderPayPal,
		ProviderPaymentID: "CAP-123",
	})
	assert.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Payment.ReferenceNumber, second.Payment.ReferenceNumber)
	assert.Len(t, paymentRepo.payments, 1)

	stored, _ := invoices.GetByCompanyAndExternalID(1, "INV-1001")
	assert.Equal(t, 0.00, stored.BalanceDue)
}

func TestReferenceNumberFormat(t *testing.T) {
	svc, invoices, _, _ := newTestLedger("", "", "")
	inv := seedInvoice(t, invoices, 10.00)

	res, err := svc.RecordPayment(RecordParams{
		Invoice:           inv,
		Amount:            10.00,
		Currency:          "USD",
		Method:            models.ProviderSquare,
		ProviderPaymentID: "sq-1",
	})
	assert.NoError(t, err)

	pattern := regexp.MustCompile(`^PAY-\d{8}-[0-9A-F]{6}$`)
	if !pattern.MatchString(res.Payment.ReferenceNumber) {
		t.Fatalf("reference %q does not match expected format", res.Payment.ReferenceNumber)
	}
}

func TestConfirmStripe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acct_1", r.Header.Get("Stripe-Account"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "pi_123",
			"status":        "succeeded",
			"amount":        2500,
			"currency":      "usd",
			"latest_charge": "ch_123",
		})
	}))
	defer srv.Close()

	svc, invoices, _, _ := newTestLedger(srv.URL, "", "")
	inv := seedInvoice(t, invoices, 25.00)
	company := &models.Company{Name: "Acme", StripeAccountID: "acct_1"}
	company.ID = 1

	res, err := svc.ConfirmStripe(context.Background(), company, inv, "pi_123", 25.00)
	assert.NoError(t, err)
	assert.Equal(t, 25.00, res.Payment.Amount)
	assert.Equal(t, models.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, "ch_123", res.Payment.ProviderTransactionID)
}

func TestConfirmStripeRejectsUnsettledIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "pi_123", "status": "requires_payment_method", "amount": 2500, "currency": "usd",
		})
	}))
	defer srv.Close()

	svc, invoices, paymentRepo, _ := newTestLedger(srv.URL, "", "")
	inv := seedInvoice(t, invoices, 25.00)
	company := &models.Company{StripeAccountID: "acct_1"}

	_, err := svc.ConfirmStripe(context.Background(), company, inv, "pi_123", 25.00)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, paymentRepo.payments)
}

func TestConfirmPayPalChecksPayee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/oauth2/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "app-token", "token_type": "Bearer"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "ORDER-1",
			"status": "COMPLETED",
			"purchase_units": []map[string]interface{}{{
				"amount": map[string]string{"currency_code": "USD", "value": "25.00"},
				"payee":  map[string]string{"merchant_id": "SOMEONE-ELSE"},
				"payments": map[string]interface{}{
					"captures": []map[string]interface{}{{"id": "CAP-1", "status": "COMPLETED"}},
				},
			}},
		})
	}))
	defer srv.Close()

	svc, invoices, paymentRepo, _ := newTestLedger("", srv.URL, "")
	inv := seedInvoice(t, invoices, 25.00)
	company := &models.Company{PayPalMerchantID: "ACME-MERCHANT"}

	_, err := svc.ConfirmPayPal(context.Background(), company, inv, "ORDER-1", 25.00)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, paymentRepo.payments)
}

func TestConfirmRejectsOverpayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "pi_big", "status": "succeeded", "amount": 99999, "currency": "usd",
		})
	}))
	defer srv.Close()

	svc, invoices, _, _ := newTestLedger(srv.URL, "", "")
	inv := seedInvoice(t, invoices, 25.00)
	company := &models.Company{StripeAccountID: "acct_1"}

	_, err := svc.ConfirmStripe(context.Background(), company, inv, "pi_big", 999.99)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestConfirmRejectsAmountMismatch(t *testing.T) {
	// The provider settled $30 but the confirmation claims $40; partial
	// captures and stale client state must surface, never record silently.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "pi_short", "status": "succeeded", "amount": 3000, "currency": "usd",
		})
	}))
	defer srv.Close()

	svc, invoices, paymentRepo, _ := newTestLedger(srv.URL, "", "")
	inv := seedInvoice(t, invoices, 100.00)
	company := &models.Company{StripeAccountID: "acct_1"}

	_, err := svc.ConfirmStripe(context.Background(), company, inv, "pi_short", 40.00)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Empty(t, paymentRepo.payments)

	// One cent of float drift is tolerated.
	res, err := svc.ConfirmStripe(context.Background(), company, inv, "pi_short", 30.01)
	assert.NoError(t, err)
	assert.Equal(t, 30.00, res.Payment.Amount)
	assert.Equal(t, 70.00, res.Invoice.BalanceDue)
}

func TestConfirmRequiresConnectedProvider(t *testing.T) {
	svc, invoices, _, _ := newTestLedger("", "", "")
	inv := seedInvoice(t, invoices, 25.00)

	_, err := svc.ConfirmStripe(context.Background(), &models.Company{}, inv, "pi_1", 25.00)
	assert.ErrorIs(t, err, ErrProviderNotConnected)
	_, err = svc.ConfirmPayPal(context.Background(), &models.Company{}, inv, "ORDER-1", 25.00)
	assert.ErrorIs(t, err, ErrProviderNotConnected)
	_, err = svc.ConfirmSquare(context.Background(), &models.Company{}, inv, "sq-1", 25.00)
	assert.ErrorIs(t, err, ErrProviderNotConnected)
}

func TestPullAndAckUnsynced(t *testing.T) {
	svc, invoices, _, _ := newTestLedger("", "", "")
	inv := seedInvoice(t, invoices, 100.00)

	first, err := svc.RecordPayment(RecordParams{
		Invoice: inv, Amount: 30.00, Currency: "USD",
		Method: models.ProviderStripe, ProviderPaymentID: "pi_a",
	})
	assert.NoError(t, err)
	second, err := svc.RecordPayment(RecordParams{
		Invoice: first.Invoice, Amount: 20.00, Currency: "USD",
		Method: models.ProviderStripe, ProviderPaymentID: "pi_b",
	})
	assert.NoError(t, err)

	unsynced, err := svc.PullUnsynced(1, nil)
	assert.NoError(t, err)
	assert.Len(t, unsynced, 2)

	n, err := svc.AckSynced(1, []uint{first.Payment.ID})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unsynced, err = svc.PullUnsynced(1, nil)
	assert.NoError(t, err)
	assert.Len(t, unsynced, 1)
	assert.Equal(t, second.Payment.ID, unsynced[0].ID)

	// Acking an empty batch is a no-op.
	n, err = svc.AckSynced(1, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.InvoiceStatusDraft, models.InvoiceStatusSent, true},
		{models.InvoiceStatusSent, models.InvoiceStatusViewed, true},
		{models.InvoiceStatusSent, models.InvoiceStatusOverdue, true},
		{models.InvoiceStatusSent, models.InvoiceStatusSent, true},
		{models.InvoiceStatusPartial, models.InvoiceStatusCancelled, true},
		{models.InvoiceStatusPaid, models.InvoiceStatusSent, false},
		{models.InvoiceStatusPaid, models.InvoiceStatusCancelled, false},
		{models.InvoiceStatusCancelled, models.InvoiceStatusSent, false},
		{models.InvoiceStatusViewed, models.InvoiceStatusDraft, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
