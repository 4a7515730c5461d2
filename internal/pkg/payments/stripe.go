package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// StripeClient talks to the Stripe Connect API. Companies onboard through a
// hosted account link; charges are created directly on the connected account
// with zero platform fee.
type StripeClient struct {
	SecretKey      string
	PublishableKey string
	ReturnBaseURL  string

	APIBaseURL string

	HTTPClient *http.Client
}

type StripeAccount struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	DetailsSubmitted bool   `json:"details_submitted"`
	ChargesEnabled   bool   `json:"charges_enabled"`
}

type StripeAccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type StripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LatestCharge string `json:"latest_charge"`
}

// StripeIntentParams carries everything needed to open a charge for one
// invoice on a connected account.
type StripeIntentParams struct {
	AccountID         string
	AmountCents       int64
	Currency          string
	InvoiceExternalID string
	CompanyID         uint
	CustomerEmail     string
}

func NewStripeClientFromEnv() *StripeClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}

	return &StripeClient{
		SecretKey:      strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		PublishableKey: strings.TrimSpace(env.GetEnv("STRIPE_PUBLISHABLE_KEY", "")),
		ReturnBaseURL:  base,
		APIBaseURL:     strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CreateAccount creates a new connected sub-account. Callers must treat this
// as idempotent at their level: reuse an existing account id instead of
// calling this again for the same company.
func (c *StripeClient) CreateAccount(ctx context.Context, email string) (*StripeAccount, error) {
	form := url.Values{}
	form.Set("type", "express")
	if strings.TrimSpace(email) != "" {
		form.Set("email", strings.TrimSpace(email))
	}
	form.Set("capabilities[card_payments][requested]", "true")
	form.Set("capabilities[transfers][requested]", "true")

	var out StripeAccount
	if err := c.postForm(ctx, "/v1/accounts", form, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("stripe account creation returned empty id")
	}
	return &out, nil
}

// GetAccount retrieves onboarding status for a connected account.
func (c *StripeClient) GetAccount(ctx context.Context, accountID string) (*StripeAccount, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, errors.New("account id is required")
	}

	var out StripeAccount
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID), "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccountLink requests a time-boxed hosted onboarding link bound to the
// connected account. The CSRF state rides on the return and refresh URLs so
// the callback can be tied back to the attempt that issued it.
func (c *StripeClient) CreateAccountLink(ctx context.Context, accountID, state string) (string, error) {
	if strings.TrimSpace(accountID) == "" {
		return "", errors.New("account id is required")
	}
	callback := fmt.Sprintf("%s/connect/stripe/callback?state=%s", c.ReturnBaseURL, url.QueryEscape(state))

	form := url.Values{}
	form.Set("account", accountID)
	form.Set("type", "account_onboarding")
	form.Set("return_url", callback)
	form.Set("refresh_url", callback)

	var out StripeAccountLink
	if err := c.postForm(ctx, "/v1/account_links", form, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", errors.New("stripe account link response missing url")
	}
	return out.URL, nil
}

// CreatePaymentIntent opens a charge on the connected account. The platform
// takes no fee; metadata ties the intent back to the invoice for traceability.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, p StripeIntentParams) (*StripePaymentIntent, error) {
	if strings.TrimSpace(p.AccountID) == "" {
		return nil, errors.New("connected account id is required")
	}
	if p.AmountCents <= 0 {
		return nil, errors.New("amount must be positive")
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(p.AmountCents, 10))
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("metadata[invoice_external_id]", p.InvoiceExternalID)
	form.Set("metadata[company_id]", strconv.FormatUint(uint64(p.CompanyID), 10))
	if strings.TrimSpace(p.CustomerEmail) != "" {
		form.Set("receipt_email", strings.TrimSpace(p.CustomerEmail))
	}

	var out StripePaymentIntent
	if err := c.request(ctx, http.MethodPost, "/v1/payment_intents", p.AccountID, form, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ClientSecret) == "" {
		return nil, errors.New("stripe payment intent response missing client_secret")
	}
	return &out, nil
}

// GetPaymentIntent re-retrieves an intent from the connected account, used to
// verify a client-confirmed charge before it is recorded.
func (c *StripeClient) GetPaymentIntent(ctx context.Context, accountID, intentID string) (*StripePaymentIntent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, errors.New("payment intent id is required")
	}

	var out StripePaymentIntent
	if err := c.get(ctx, "/v1/payment_intents/"+url.PathEscape(intentID), accountID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.request(ctx, http.MethodPost, path, "", form, out)
}

func (c *StripeClient) get(ctx context.Context, path, accountID string, out interface{}) error {
	return c.request(ctx, http.MethodGet, path, accountID, nil, out)
}

func (c *StripeClient) request(ctx context.Context, method, path, accountID string, form url.Values, out interface{}) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if strings.TrimSpace(accountID) != "" {
		req.Header.Set("Stripe-Account", accountID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe request %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	return json.Unmarshal(raw, out)
}
