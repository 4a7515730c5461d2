package models

import "time"

// OAuthStateTTL is the window a connect attempt stays valid.
const OAuthStateTTL = 10 * time.Minute

// OAuthState is one in-flight provider-connect attempt. State tokens are
// single-use and expire after OAuthStateTTL; expired rows are swept lazily
// when a callback succeeds.
type OAuthState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`
	Provider  string    `gorm:"type:varchar(20);not null" json:"provider"`
	State     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsExpired reports whether the state has passed its window.
func (s *OAuthState) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
