package statistics

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/cache"
)

const (
	cacheKeySummary = "statistics:company:%d:summary"
	CacheExpiration = 5 * time.Minute
)

// Indirections over the cache package so tests can run without redis.
var (
	cacheGet = cache.Get
	cacheSet = cache.Set
)

// Summary is the dashboard block a company pulls over the API.
type Summary struct {
	TotalInvoices  int64   `json:"total_invoices"`
	OpenInvoices   int64   `json:"open_invoices"`
	PaidInvoices   int64   `json:"paid_invoices"`
	TotalPayments  int64   `json:"total_payments"`
	TotalCollected float64 `json:"total_collected"`
	InvoiceViews   int64   `json:"invoice_views"`
	GeneratedAt    string  `json:"generated_at"`
}

// Service computes per-company counters, serving from redis while the cached
// copy is fresh.
type Service struct {
	invoices repository.InvoiceRepository
	payments repository.PaymentRepository
}

func NewService(invoices repository.InvoiceRepository, payments repository.PaymentRepository) *Service {
	return &Service{invoices: invoices, payments: payments}
}

// Summary returns cached counters, recomputing when the cache misses. Cache
// failures degrade to a direct computation, never to an error.
func (s *Service) Summary(companyID uint) (*Summary, error) {
	key := fmt.Sprintf(cacheKeySummary, companyID)

	if raw, err := cacheGet(key); err == nil {
		var cached Summary
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.compute(companyID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(summary); err == nil {
		if err := cacheSet(key, string(raw), CacheExpiration); err != nil {
			log.Printf("[Statistics] caching summary for company %d failed: %v", companyID, err)
		}
	}
	return summary, nil
}

func (s *Service) compute(companyID uint) (*Summary, error) {
	total, err := s.invoices.CountByCompany(companyID)
	if err != nil {
		return nil, err
	}
	open, err := s.invoices.CountByCompanyAndStatus(companyID,
		models.InvoiceStatusSent, models.InvoiceStatusViewed,
		models.InvoiceStatusPartial, models.InvoiceStatusOverdue)
	if err != nil {
		return nil, err
	}
	paid, err := s.invoices.CountByCompanyAndStatus(companyID, models.InvoiceStatusPaid)
	if err != nil {
		return nil, err
	}
	paymentCount, err := s.payments.CountByCompany(companyID)
	if err != nil {
		return nil, err
	}
	collected, err := s.payments.SumAmountByCompany(companyID)
	if err != nil {
		return nil, err
	}
	views, err := s.invoices.SumViews(companyID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		TotalInvoices:  total,
		OpenInvoices:   open,
		PaidInvoices:   paid,
		TotalPayments:  paymentCount,
		TotalCollected: collected,
		InvoiceViews:   views,
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
