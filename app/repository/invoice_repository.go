package repository

import (
	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Upsert inserts or updates an invoice keyed on (company_id, external_id).
// Tokens are assigned on first insert and never rewritten by an update, so a
// republished invoice keeps its customer-facing URLs.
func (r *invoiceRepository) Upsert(invoice *models.Invoice) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "company_id"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_name",
			"customer_email",
			"payload_json",
			"status",
			"total_amount",
			"balance_due",
			"currency",
			"due_date",
			"updated_at",
		}),
	}).Create(invoice).Error; err != nil {
		return err
	}

	return r.db.Where("company_id = ? AND external_id = ?", invoice.CompanyID, invoice.ExternalID).
		First(invoice).Error
}

// GetByToken retrieves an invoice by its customer-facing token
func (r *invoiceRepository) GetByToken(token string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Where("invoice_token = ?", token).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetByCustomerToken retrieves all invoices sharing a customer token
func (r *invoiceRepository) GetByCustomerToken(customerToken string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Where("customer_token = ?", customerToken).
		Order("created_at DESC").
		Find(&invoices).Error
	return invoices, err
}

// GetByCompanyAndExternalID retrieves an invoice by its company-scoped id
func (r *invoiceRepository) GetByCompanyAndExternalID(companyID uint, externalID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.Where("company_id = ? AND external_id = ?", companyID, externalID).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// FindCustomerTokenByEmail returns the customer token of the most recent
// invoice this company issued to the given email address.
func (r *invoiceRepository) FindCustomerTokenByEmail(companyID uint, email string) (string, error) {
	var invoice models.Invoice
	err := r.db.Where("company_id = ? AND customer_email = ?", companyID, email).
		Order("created_at DESC").
		First(&invoice).Error
	if err != nil {
		return "", err
	}
	return invoice.CustomerToken, nil
}

// HasCustomerToken reports whether the company already issued an invoice
// under the given customer token
func (r *invoiceRepository) HasCustomerToken(companyID uint, customerToken string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("company_id = ? AND customer_token = ?", companyID, customerToken).
		Count(&count).Error
	return count > 0, err
}

// UpdateStatus sets the stored status of an invoice
func (r *invoiceRepository) UpdateStatus(id uint, status string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("status", status).Error
}

// ApplyPayment decrements balance_due clamped at zero as one statement, so
// concurrent partial payments on the same invoice never lose an update.
func (r *invoiceRepository) ApplyPayment(id uint, amount float64) (*models.Invoice, error) {
	if err := r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("balance_due", gorm.Expr("GREATEST(balance_due - ?, 0)", amount)).Error; err != nil {
		return nil, err
	}

	var invoice models.Invoice
	if err := r.db.First(&invoice, id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CountByCompany returns the number of invoices for a company
func (r *invoiceRepository) CountByCompany(companyID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).Where("company_id = ?", companyID).Count(&count).Error
	return count, err
}

// CountByCompanyAndStatus returns the number of invoices in the given statuses
func (r *invoiceRepository) CountByCompanyAndStatus(companyID uint, statuses ...string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Invoice{}).
		Where("company_id = ? AND status IN ?", companyID, statuses).
		Count(&count).Error
	return count, err
}

func (r *invoiceRepository) SumViews(companyID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.Invoice{}).
		Where("company_id = ?", companyID).
		Select("COALESCE(SUM(view_count), 0)").
		Scan(&total).Error
	return total, err
}
