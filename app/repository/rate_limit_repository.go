package repository

import (
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// rateLimitRepository implements the RateLimitRepository interface
type rateLimitRepository struct {
	db *gorm.DB
}

// NewRateLimitRepository creates a new rate limit repository instance
func NewRateLimitRepository(db *gorm.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

// GetByIPHash retrieves the counter row for a hashed client IP
func (r *rateLimitRepository) GetByIPHash(ipHash string) (*models.RateLimitEntry, error) {
	var entry models.RateLimitEntry
	err := r.db.Where("ip_hash = ?", ipHash).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Save stores counter changes (used when a stale window is reset in place)
func (r *rateLimitRepository) Save(entry *models.RateLimitEntry) error {
	return r.db.Save(entry).Error
}

// IncrementFailed bumps the failure counter for a hashed IP, creating the
// window row when absent. A single upsert keeps concurrent failures from
// racing a read-modify-write pair.
func (r *rateLimitRepository) IncrementFailed(ipHash string, windowStart time.Time) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"failed_count": gorm.Expr("failed_count + 1"),
		}),
	}).Create(&models.RateLimitEntry{
		IPHash:      ipHash,
		FailedCount: 1,
		WindowStart: windowStart,
	}).Error
}
