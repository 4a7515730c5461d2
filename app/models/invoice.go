package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Invoice status values. Overdue is a derived display state (due date passed
// and not paid/cancelled); it is only persisted when a client explicitly
// publishes an invoice as overdue.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusViewed    = "viewed"
	InvoiceStatusPartial   = "partial"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is one published invoice. The external id is company-scoped; the
// invoice token grants anonymous read/pay access, the customer token groups
// all invoices of one customer at one company.
type Invoice struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CompanyID     uint      `gorm:"not null;index:ux_invoices_company_external,unique,priority:1" json:"company_id"`
	ExternalID    string    `gorm:"type:varchar(100);not null;index:ux_invoices_company_external,unique,priority:2" json:"external_id" validate:"required,max=100"`
	InvoiceToken  string    `gorm:"type:varchar(48);uniqueIndex;not null" json:"-"`
	CustomerToken string    `gorm:"type:varchar(48);index;not null" json:"-"`
	CustomerName  string    `gorm:"type:varchar(200);default:''" json:"customer_name" validate:"max=200"`
	CustomerEmail string    `gorm:"type:varchar(200);default:''" json:"customer_email" validate:"omitempty,email"`
	PayloadJSON   string    `gorm:"type:mediumtext" json:"-"`
	Status        string    `gorm:"type:varchar(20);default:'sent'" json:"status" validate:"omitempty,oneof=draft sent viewed partial paid overdue cancelled"`
	TotalAmount   float64   `gorm:"type:decimal(12,2);not null" json:"total_amount" validate:"gte=0"`
	BalanceDue    float64   `gorm:"type:decimal(12,2);not null" json:"balance_due" validate:"gte=0"`
	Currency      string    `gorm:"type:varchar(3);default:'USD'" json:"currency" validate:"omitempty,len=3"`
	DueDate       *time.Time `gorm:"type:timestamp;default:null" json:"due_date,omitempty"`
	ViewCount     int64     `gorm:"default:0" json:"view_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Invoice) Validate() error {
	v := validator.New()

	return v.Struct(i)
}

// IsPayable reports whether the invoice can still accept a checkout.
func (i *Invoice) IsPayable() bool {
	return i.Status != InvoiceStatusPaid && i.Status != InvoiceStatusCancelled
}

// IsOverdue derives the display-only overdue state at read time.
func (i *Invoice) IsOverdue(now time.Time) bool {
	if i.DueDate == nil {
		return false
	}
	if i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled {
		return false
	}
	return now.After(*i.DueDate)
}

// DisplayStatus returns the status shown to customers, substituting the
// derived overdue state where applicable.
func (i *Invoice) DisplayStatus(now time.Time) string {
	if i.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}
