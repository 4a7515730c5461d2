package ratelimit

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
)

// fakeRateLimitRepo keeps counter rows in a map, mirroring the upsert
// semantics of the GORM implementation.
type fakeRateLimitRepo struct {
	entries map[string]*models.RateLimitEntry
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{entries: make(map[string]*models.RateLimitEntry)}
}

func (f *fakeRateLimitRepo) GetByIPHash(ipHash string) (*models.RateLimitEntry, error) {
	if e, ok := f.entries[ipHash]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRateLimitRepo) Save(entry *models.RateLimitEntry) error {
	cp := *entry
	f.entries[entry.IPHash] = &cp
	return nil
}

func (f *fakeRateLimitRepo) IncrementFailed(ipHash string, windowStart time.Time) error {
	if e, ok := f.entries[ipHash]; ok {
		e.FailedCount++
		return nil
	}
	f.entries[ipHash] = &models.RateLimitEntry{IPHash: ipHash, FailedCount: 1, WindowStart: windowStart}
	return nil
}

func newTestLimiter(repo *fakeRateLimitRepo, now *time.Time) *Limiter {
	l := NewLimiter(repo)
	l.now = func() time.Time { return *now }
	return l
}

func TestLimiterBlocksAfterMaxFailures(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(repo, &now)

	const ip = "203.0.113.7"
	for i := 0; i < MaxFailures; i++ {
		if err := l.Check(ip); err != nil {
			t.Fatalf("lookup %d unexpectedly limited: %v", i+1, err)
		}
		if err := l.RecordFailure(ip); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	// The 11th lookup is rejected even if the token would be valid.
	if err := l.Check(ip); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Other clients are unaffected.
	if err := l.Check("198.51.100.9"); err != nil {
		t.Fatalf("unrelated client limited: %v", err)
	}
}

func TestLimiterWindowExpiry(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(repo, &now)

	const ip = "203.0.113.7"
	for i := 0; i < MaxFailures; i++ {
		_ = l.RecordFailure(ip)
	}
	if err := l.Check(ip); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	now = now.Add(Window + time.Minute)
	if err := l.Check(ip); err != nil {
		t.Fatalf("expected lookup to succeed after window elapsed, got %v", err)
	}

	// A failure after expiry starts a fresh window at count 1.
	if err := l.RecordFailure(ip); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	entry, err := repo.GetByIPHash(models.HashClientIP(ip))
	if err != nil {
		t.Fatalf("GetByIPHash: %v", err)
	}
	if entry.FailedCount != 1 {
		t.Fatalf("expected fresh window count 1, got %d", entry.FailedCount)
	}
	if !entry.WindowStart.Equal(now) {
		t.Fatalf("expected window restart at %v, got %v", now, entry.WindowStart)
	}
}

func TestLimiterStoresHashedIPsOnly(t *testing.T) {
	repo := newFakeRateLimitRepo()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(repo, &now)

	const ip = "203.0.113.7"
	_ = l.RecordFailure(ip)

	if _, ok := repo.entries[ip]; ok {
		t.Fatalf("raw IP used as storage key")
	}
	if _, ok := repo.entries[models.HashClientIP(ip)]; !ok {
		t.Fatalf("hashed IP entry missing")
	}
}
