package ratelimit

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
)

// Token lookups are capped at MaxFailures well-formed misses per Window and
// client IP. Successful lookups never touch the counter, so legitimate
// customers are unaffected; only enumeration attempts accumulate failures.
const (
	Window      = 15 * time.Minute
	MaxFailures = 10
)

// ErrRateLimited is returned when a client has exhausted its failure budget.
var ErrRateLimited = errors.New("too many failed lookups")

// Limiter gates customer-facing token lookups. State lives in the datastore
// so the check behaves identically across horizontally scaled instances.
type Limiter struct {
	repo repository.RateLimitRepository
	now  func() time.Time
}

// NewLimiter creates a limiter from an injected repository.
func NewLimiter(repo repository.RateLimitRepository) *Limiter {
	return &Limiter{repo: repo, now: time.Now}
}

// Check returns ErrRateLimited when the client IP has reached the failure cap
// inside the current window. Expired windows are reset lazily here rather
// than by a background sweep.
func (l *Limiter) Check(clientIP string) error {
	entry, err := l.repo.GetByIPHash(models.HashClientIP(clientIP))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	now := l.now()
	if now.Sub(entry.WindowStart) > Window {
		entry.FailedCount = 0
		entry.WindowStart = now
		if err := l.repo.Save(entry); err != nil {
			return err
		}
		return nil
	}

	if entry.FailedCount >= MaxFailures {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one well-formed-but-not-found lookup against the
// client IP. Malformed requests are rejected before reaching this point and
// do not consume budget.
func (l *Limiter) RecordFailure(clientIP string) error {
	ipHash := models.HashClientIP(clientIP)
	now := l.now()

	entry, err := l.repo.GetByIPHash(ipHash)
	if err == nil && now.Sub(entry.WindowStart) > Window {
		// Stale window: restart the count instead of incrementing into it.
		entry.FailedCount = 1
		entry.WindowStart = now
		return l.repo.Save(entry)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return l.repo.IncrementFailed(ipHash, now)
}
