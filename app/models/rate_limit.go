package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RateLimitEntry is one windowed failed-lookup counter, keyed by a hash of
// the client IP so raw addresses are never stored. Rows live in the same
// transactional store as the rest of the domain, keeping the service
// stateless across instances; expiry is checked at read time.
type RateLimitEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IPHash      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	FailedCount int       `gorm:"default:0" json:"failed_count"`
	WindowStart time.Time `gorm:"not null" json:"window_start"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashClientIP derives the storage key for a client IP.
func HashClientIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
