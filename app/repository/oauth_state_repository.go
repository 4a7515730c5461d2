package repository

import (
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
)

// oauthStateRepository implements the OAuthStateRepository interface
type oauthStateRepository struct {
	db *gorm.DB
}

// NewOAuthStateRepository creates a new connect-state repository instance
func NewOAuthStateRepository(db *gorm.DB) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

// Create stores a new in-flight connect state
func (r *oauthStateRepository) Create(state *models.OAuthState) error {
	return r.db.Create(state).Error
}

// GetByState retrieves a state row by its token
func (r *oauthStateRepository) GetByState(state string) (*models.OAuthState, error) {
	var row models.OAuthState
	err := r.db.Where("state = ?", state).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Delete removes a state row, making the token unusable
func (r *oauthStateRepository) Delete(id uint) error {
	return r.db.Delete(&models.OAuthState{}, id).Error
}

// DeleteExpired sweeps rows past their window; called opportunistically from
// successful callbacks rather than a timer.
func (r *oauthStateRepository) DeleteExpired(now time.Time) (int64, error) {
	tx := r.db.Where("expires_at < ?", now).Delete(&models.OAuthState{})
	return tx.RowsAffected, tx.Error
}
