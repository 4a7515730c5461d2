package connect

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/app/repository"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/token"
)

// ErrStateNotFound covers every unusable CSRF state: missing, expired,
// malformed, or bound to a different provider. Callers surface it as a hard
// failure; the distinction is never leaked to the browser.
var ErrStateNotFound = errors.New("connect state not found or expired")

// ErrUnknownProvider is returned for provider tags outside the closed set.
var ErrUnknownProvider = errors.New("unknown payment provider")

// Service drives provider onboarding per (company, provider):
// disconnected -> pending (state issued) -> provider redirect -> callback ->
// connected, with pending attempts auto-expiring after the state TTL.
type Service struct {
	companies repository.CompanyRepository
	states    repository.OAuthStateRepository

	stripe *payments.StripeClient
	paypal *payments.PayPalClient
	square *payments.SquareClient

	now func() time.Time
}

// NewService creates a connect service from injected repositories and
// provider clients.
func NewService(
	companies repository.CompanyRepository,
	states repository.OAuthStateRepository,
	stripe *payments.StripeClient,
	paypal *payments.PayPalClient,
	square *payments.SquareClient,
) *Service {
	return &Service{
		companies: companies,
		states:    states,
		stripe:    stripe,
		paypal:    paypal,
		square:    square,
		now:       time.Now,
	}
}

// CallbackResult reports how a provider callback concluded. A false Connected
// with a RedirectURL means the provider needs another round trip (Stripe
// onboarding incomplete); the original state stays valid for that trip.
type CallbackResult struct {
	Provider    string
	CompanyName string
	Connected   bool
	RedirectURL string
}

// Initiate issues a CSRF state row and returns the provider's authorization
// URL for the browser redirect.
func (s *Service) Initiate(ctx context.Context, company *models.Company, provider string) (string, error) {
	if !models.KnownProvider(provider) {
		return "", ErrUnknownProvider
	}

	state, err := token.GenerateState()
	if err != nil {
		return "", err
	}
	if err := s.states.Create(&models.OAuthState{
		CompanyID: company.ID,
		Provider:  provider,
		State:     state,
		ExpiresAt: s.now().Add(models.OAuthStateTTL),
	}); err != nil {
		return "", err
	}

	switch provider {
	case models.ProviderStripe:
		// Sub-account creation is idempotent by reuse: one account per
		// company, created on the first attempt only.
		if company.StripeAccountID == "" {
			account, err := s.stripe.CreateAccount(ctx, company.ContactEmail)
			if err != nil {
				return "", payments.NewAuthorizationError(provider, err.Error())
			}
			company.StripeAccountID = account.ID
			if err := s.companies.Update(company); err != nil {
				return "", err
			}
		}
		link, err := s.stripe.CreateAccountLink(ctx, company.StripeAccountID, state)
		if err != nil {
			return "", payments.NewAuthorizationError(provider, err.Error())
		}
		return link, nil
	case models.ProviderPayPal:
		return s.paypal.AuthorizeURLWithState(state)
	case models.ProviderSquare:
		return s.square.AuthorizeURLWithState(state)
	}
	return "", ErrUnknownProvider
}

// HandleCallback validates the round-tripped state and completes the flow for
// the provider. Terminal provider failures delete the state; the Stripe
// incomplete-onboarding re-redirect deliberately keeps it alive.
func (s *Service) HandleCallback(ctx context.Context, provider, code, state string) (*CallbackResult, error) {
	row, company, err := s.verifyState(provider, state)
	if err != nil {
		return nil, err
	}

	switch provider {
	case models.ProviderStripe:
		return s.completeStripe(ctx, row, company, state)
	case models.ProviderPayPal:
		return s.completePayPal(ctx, row, company, code)
	case models.ProviderSquare:
		return s.completeSquare(ctx, row, company, code)
	}
	return nil, ErrUnknownProvider
}

// SavePayPalEmail persists the email-variant payee link. The hosted form
// round-trips the same CSRF state as the OAuth flow, so a posted email is
// only accepted for an attempt this service issued.
func (s *Service) SavePayPalEmail(ctx context.Context, state, email string) (*CallbackResult, error) {
	_ = ctx
	row, company, err := s.verifyState(models.ProviderPayPal, state)
	if err != nil {
		return nil, err
	}

	addr := strings.TrimSpace(email)
	if _, err := mail.ParseAddress(addr); err != nil {
		return nil, payments.NewAuthorizationError(models.ProviderPayPal, "invalid payee email address")
	}

	company.PayPalEmail = addr
	if err := s.companies.Update(company); err != nil {
		return nil, err
	}
	s.consumeState(row)
	return &CallbackResult{Provider: models.ProviderPayPal, CompanyName: company.Name, Connected: true}, nil
}

// Disconnect clears all credential fields for the provider. Clearing an
// already-disconnected provider is a no-op, not an error.
func (s *Service) Disconnect(company *models.Company, provider string) error {
	if !models.KnownProvider(provider) {
		return ErrUnknownProvider
	}
	company.ClearProvider(provider)
	return s.companies.Update(company)
}

func (s *Service) verifyState(provider, state string) (*models.OAuthState, *models.Company, error) {
	if !token.IsWellFormedState(state) {
		return nil, nil, ErrStateNotFound
	}

	row, err := s.states.GetByState(state)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrStateNotFound
		}
		return nil, nil, err
	}
	if row.IsExpired(s.now()) {
		_ = s.states.Delete(row.ID)
		return nil, nil, ErrStateNotFound
	}
	if row.Provider != provider {
		return nil, nil, ErrStateNotFound
	}

	company, err := s.companies.GetByID(row.CompanyID)
	if err != nil {
		return nil, nil, err
	}
	return row, company, nil
}

func (s *Service) completeStripe(ctx context.Context, row *models.OAuthState, company *models.Company, state string) (*CallbackResult, error) {
	// The hosted-account model has no code exchange; re-retrieve the
	// account and read its onboarding status instead.
	account, err := s.stripe.GetAccount(ctx, company.StripeAccountID)
	if err != nil {
		_ = s.states.Delete(row.ID)
		return nil, payments.NewAuthorizationError(models.ProviderStripe, err.Error())
	}

	if !account.DetailsSubmitted || !account.ChargesEnabled {
		// Onboarding incomplete: send the user back to the provider.
		// The same state token must survive the second round trip, so
		// the row is intentionally left in place.
		link, err := s.stripe.CreateAccountLink(ctx, account.ID, state)
		if err != nil {
			_ = s.states.Delete(row.ID)
			return nil, payments.NewAuthorizationError(models.ProviderStripe, err.Error())
		}
		return &CallbackResult{
			Provider:    models.ProviderStripe,
			CompanyName: company.Name,
			Connected:   false,
			RedirectURL: link,
		}, nil
	}

	company.StripeAccountID = account.ID
	if err := s.companies.Update(company); err != nil {
		return nil, err
	}
	s.consumeState(row)
	return &CallbackResult{Provider: models.ProviderStripe, CompanyName: company.Name, Connected: true}, nil
}

func (s *Service) completePayPal(ctx context.Context, row *models.OAuthState, company *models.Company, code string) (*CallbackResult, error) {
	tok, err := s.paypal.ExchangeCode(ctx, code)
	if err != nil {
		_ = s.states.Delete(row.ID)
		return nil, payments.NewAuthorizationError(models.ProviderPayPal, err.Error())
	}
	info, err := s.paypal.GetMerchantInfo(ctx, tok.AccessToken)
	if err != nil {
		_ = s.states.Delete(row.ID)
		return nil, payments.NewAuthorizationError(models.ProviderPayPal, err.Error())
	}

	company.PayPalMerchantID = info.MerchantID
	if info.Email != "" {
		company.PayPalEmail = info.Email
	}
	if err := s.companies.Update(company); err != nil {
		return nil, err
	}
	s.consumeState(row)
	return &CallbackResult{Provider: models.ProviderPayPal, CompanyName: company.Name, Connected: true}, nil
}

func (s *Service) completeSquare(ctx context.Context, row *models.OAuthState, company *models.Company, code string) (*CallbackResult, error) {
	tok, err := s.square.ExchangeCode(ctx, code)
	if err != nil {
		_ = s.states.Delete(row.ID)
		return nil, payments.NewAuthorizationError(models.ProviderSquare, err.Error())
	}
	location, err := s.square.PrimaryLocation(ctx, tok.AccessToken)
	if err != nil {
		_ = s.states.Delete(row.ID)
		return nil, payments.NewAuthorizationError(models.ProviderSquare, err.Error())
	}

	company.SquareMerchantID = tok.MerchantID
	company.SquareAccessToken = tok.AccessToken
	company.SquareLocationID = location.ID
	company.SquareEmail = location.BusinessEmail
	if err := s.companies.Update(company); err != nil {
		return nil, err
	}
	s.consumeState(row)
	return &CallbackResult{Provider: models.ProviderSquare, CompanyName: company.Name, Connected: true}, nil
}

// consumeState deletes the used state row and opportunistically sweeps other
// expired rows; there is no timer-driven cleanup.
func (s *Service) consumeState(row *models.OAuthState) {
	_ = s.states.Delete(row.ID)
	_, _ = s.states.DeleteExpired(s.now())
}
