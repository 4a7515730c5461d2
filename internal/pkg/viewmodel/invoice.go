package viewmodel

import (
	"encoding/json"
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
)

// CompanyPublic is the company as customers see it. Credentials never leave
// the server; the portal only learns which payment buttons to render.
type CompanyPublic struct {
	Name          string `json:"name"`
	LogoURL       string `json:"logo_url,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty"`
	StripeEnabled bool   `json:"stripe_enabled"`
	PayPalEnabled bool   `json:"paypal_enabled"`
	SquareEnabled bool   `json:"square_enabled"`
}

func FromCompany(c *models.Company) CompanyPublic {
	return CompanyPublic{
		Name:          c.Name,
		LogoURL:       c.LogoURL,
		ContactEmail:  c.ContactEmail,
		StripeEnabled: c.HasStripe(),
		PayPalEnabled: c.HasPayPal(),
		SquareEnabled: c.HasSquare(),
	}
}

// InvoiceView is one invoice on the customer portal. Status is the derived
// display status, so an unpaid invoice past its due date shows as overdue
// without a write. Token is the invoice's own access token; every context
// that builds a view already holds at least that much access.
type InvoiceView struct {
	ExternalID   string          `json:"external_id"`
	Token        string          `json:"token"`
	CustomerName string          `json:"customer_name,omitempty"`
	Status       string          `json:"status"`
	TotalAmount  float64         `json:"total_amount"`
	BalanceDue   float64         `json:"balance_due"`
	Currency     string          `json:"currency"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	Overdue      bool            `json:"overdue"`
	Payable      bool            `json:"payable"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func FromInvoice(inv *models.Invoice, now time.Time) InvoiceView {
	view := InvoiceView{
		ExternalID:   inv.ExternalID,
		Token:        inv.InvoiceToken,
		CustomerName: inv.CustomerName,
		Status:       inv.DisplayStatus(now),
		TotalAmount:  inv.TotalAmount,
		BalanceDue:   inv.BalanceDue,
		Currency:     inv.Currency,
		DueDate:      inv.DueDate,
		Overdue:      inv.IsOverdue(now),
		Payable:      inv.IsPayable(),
		CreatedAt:    inv.CreatedAt,
	}
	if json.Valid([]byte(inv.PayloadJSON)) {
		view.Details = json.RawMessage(inv.PayloadJSON)
	}
	return view
}

// InvoicePage is the single-invoice response, carrying the token back so the
// page can call the checkout endpoints.
type InvoicePage struct {
	Company CompanyPublic `json:"company"`
	Invoice InvoiceView   `json:"invoice"`
	Token   string        `json:"token"`
}

// CustomerPortal groups every invoice behind one customer token, split the
// way the portal renders them.
type CustomerPortal struct {
	Company        CompanyPublic `json:"company"`
	ActiveInvoices []InvoiceView `json:"active_invoices"`
	PaidInvoices   []InvoiceView `json:"paid_invoices"`
	TotalBalance   float64       `json:"total_balance"`
	Currency       string        `json:"currency,omitempty"`
}

// BuildCustomerPortal partitions invoices into payable and settled. Cancelled
// invoices land with the settled group; the customer cannot act on them.
func BuildCustomerPortal(company *models.Company, invoices []models.Invoice, now time.Time) CustomerPortal {
	portal := CustomerPortal{
		Company:        FromCompany(company),
		ActiveInvoices: []InvoiceView{},
		PaidInvoices:   []InvoiceView{},
	}
	for i := range invoices {
		inv := &invoices[i]
		view := FromInvoice(inv, now)
		if inv.IsPayable() {
			portal.ActiveInvoices = append(portal.ActiveInvoices, view)
			portal.TotalBalance += inv.BalanceDue
		} else {
			portal.PaidInvoices = append(portal.PaidInvoices, view)
		}
		if portal.Currency == "" {
			portal.Currency = inv.Currency
		}
	}
	return portal
}

// PaymentView is one settled payment in the customer's history.
type PaymentView struct {
	ReferenceNumber   string    `json:"reference_number"`
	InvoiceExternalID string    `json:"invoice_external_id"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	PaidAt            time.Time `json:"paid_at"`
}

func FromPayment(p *models.Payment) PaymentView {
	return PaymentView{
		ReferenceNumber:   p.ReferenceNumber,
		InvoiceExternalID: p.InvoiceExternalID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Method:            p.Method,
		Status:            p.Status,
		PaidAt:            p.CreatedAt,
	}
}

func FromPayments(payments []models.Payment) []PaymentView {
	views := make([]PaymentView, 0, len(payments))
	for i := range payments {
		views = append(views, FromPayment(&payments[i]))
	}
	return views
}
