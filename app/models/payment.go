package models

import "time"

// Payment status values.
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusFailed    = "failed"
)

// Payment is one recorded payment outcome. ProviderPaymentID carries a unique
// index when present; the constraint is the idempotency guarantee that the
// same provider confirmation is never recorded twice.
type Payment struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CompanyID             uint      `gorm:"not null;index" json:"company_id"`
	InvoiceExternalID     string    `gorm:"type:varchar(100);not null;index" json:"invoice_external_id"`
	CustomerName          string    `gorm:"type:varchar(200);default:''" json:"customer_name"`
	Amount                float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	ProcessingFee         float64   `gorm:"type:decimal(12,2);default:0" json:"processing_fee"`
	Currency              string    `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Method                string    `gorm:"type:varchar(20);not null" json:"method"`
	ProviderPaymentID     *string   `gorm:"type:varchar(191);uniqueIndex" json:"provider_payment_id,omitempty"`
	ProviderTransactionID string    `gorm:"type:varchar(191);default:''" json:"provider_transaction_id"`
	ReferenceNumber       string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"reference_number"`
	Status                string    `gorm:"type:varchar(20);default:'completed'" json:"status"`
	Synced                bool      `gorm:"default:false;index" json:"synced"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
}
