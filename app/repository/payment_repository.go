package repository

import (
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// CreateIfAbsent inserts a payment unless the provider payment id is already
// recorded. The uniqueness guarantee lives in the constraint, not in a
// check-then-insert pair, so concurrent duplicate confirmations collapse into
// one row and both callers see the stored record.
func (r *paymentRepository) CreateIfAbsent(payment *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_payment_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	if payment.ProviderPaymentID == nil {
		// No idempotency key; the insert always happened.
		return true, payment, nil
	}

	var stored models.Payment
	if err := r.db.Where("provider_payment_id = ?", *payment.ProviderPaymentID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// GetByProviderPaymentID retrieves a payment by its provider-assigned id
func (r *paymentRepository) GetByProviderPaymentID(providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("provider_payment_id = ?", providerPaymentID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetUnsynced returns unsynced payments oldest-first for deterministic replay
func (r *paymentRepository) GetUnsynced(companyID uint, since *time.Time) ([]models.Payment, error) {
	q := r.db.Where("company_id = ? AND synced = ?", companyID, false)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}

	var payments []models.Payment
	err := q.Order("created_at ASC").Find(&payments).Error
	return payments, err
}

// MarkSynced flips the sync flag for the given ids, scoped to one company so
// guessed ids never touch another tenant's rows.
func (r *paymentRepository) MarkSynced(companyID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx := r.db.Model(&models.Payment{}).
		Where("company_id = ? AND id IN ?", companyID, ids).
		Update("synced", true)
	return tx.RowsAffected, tx.Error
}

// GetByCustomerToken returns the payment history behind a customer token
func (r *paymentRepository) GetByCustomerToken(customerToken string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.
		Joins("JOIN invoices ON invoices.company_id = payments.company_id AND invoices.external_id = payments.invoice_external_id").
		Where("invoices.customer_token = ?", customerToken).
		Order("payments.created_at DESC").
		Find(&payments).Error
	return payments, err
}

// CountByCompany returns the number of payments for a company
func (r *paymentRepository) CountByCompany(companyID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Where("company_id = ?", companyID).Count(&count).Error
	return count, err
}

// SumAmountByCompany returns the total completed payment volume for a company
func (r *paymentRepository) SumAmountByCompany(companyID uint) (float64, error) {
	var total float64
	err := r.db.Model(&models.Payment{}).
		Where("company_id = ? AND status = ?", companyID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
