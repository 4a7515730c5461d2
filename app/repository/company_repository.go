package repository

import (
	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
)

// companyRepository implements the CompanyRepository interface
type companyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new company repository instance
func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

// Create creates a new company in the database
func (r *companyRepository) Create(company *models.Company) error {
	return r.db.Create(company).Error
}

// GetByID retrieves a company by its ID
func (r *companyRepository) GetByID(id uint) (*models.Company, error) {
	var company models.Company
	err := r.db.First(&company, id).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// GetByAPIKey retrieves a company by its API key. The key is high-entropy and
// carried on a unique index, so an equality lookup is sufficient here.
func (r *companyRepository) GetByAPIKey(apiKey string) (*models.Company, error) {
	var company models.Company
	err := r.db.Where("api_key = ?", apiKey).First(&company).Error
	if err != nil {
		return nil, err
	}
	return &company, nil
}

// Update saves changes to an existing company
func (r *companyRepository) Update(company *models.Company) error {
	return r.db.Save(company).Error
}

// Count returns the total number of registered companies
func (r *companyRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Company{}).Count(&count).Error
	return count, err
}
