package controllers

import (
	"log"

	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/checkout"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/connect"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/jobqueue"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ledger"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/ratelimit"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/s3store"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/statistics"
)

// Package-level services, wired once at startup from the global repository
// factory and the environment.
var (
	connectService  *connect.Service
	checkoutService *checkout.Service
	ledgerService   *ledger.Service
	statsService    *statistics.Service
	lookupLimiter   *ratelimit.Limiter
	logoStore       *s3store.Client
	logoStoreConfig *s3store.Config

	stripeClient *payments.StripeClient
)

// InitializeControllers builds the service graph. Must run after the
// database and repository factory are set up.
func InitializeControllers() {
	repos := repository.GetGlobalRepositories()

	stripeClient = payments.NewStripeClientFromEnv()
	paypalClient := payments.NewPayPalClientFromEnv()
	squareClient := payments.NewSquareClientFromEnv()

	// Receipts go through the job queue so SMTP latency never sits inside a
	// payment request.
	ledgerService = ledger.NewService(
		repos.Invoice, repos.Payment,
		stripeClient, paypalClient, squareClient,
		jobqueue.NewQueueMailer(),
	)
	connectService = connect.NewService(
		repos.Company, repos.OAuthState,
		stripeClient, paypalClient, squareClient,
	)
	checkoutService = checkout.NewService(
		repos.Invoice, repos.Company,
		stripeClient, squareClient,
		ledgerService,
	)
	statsService = statistics.NewService(repos.Invoice, repos.Payment)
	lookupLimiter = ratelimit.NewLimiter(repos.RateLimit)

	// Logo storage is optional; without S3 the upload endpoint reports the
	// feature as disabled.
	cfg, err := s3store.LoadConfig()
	if err != nil {
		log.Printf("[Controllers] S3 configuration invalid, logo uploads disabled: %v", err)
		return
	}
	if cfg.IsEnabled() {
		client, err := s3store.NewClient(cfg)
		if err != nil {
			log.Printf("[Controllers] S3 unavailable, logo uploads disabled: %v", err)
			return
		}
		logoStore = client
		logoStoreConfig = cfg
	}
}
