package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/invoiceportal/InvoicePortal/internal/pkg/env"
)

const (
	defaultSquareAuthorizeURL = "https://connect.squareup.com/oauth2/authorize"
	defaultSquareAPIBaseURL   = "https://connect.squareup.com"
	squareAPIVersion          = "2024-01-18"
)

// SquareClient drives the Square OAuth flow plus synchronous card charges.
// After token exchange we also resolve the merchant's primary active location
// (required for charging) and an optional business email.
type SquareClient struct {
	ApplicationID     string
	ApplicationSecret string
	RedirectURI       string

	AuthorizeURL string
	APIBaseURL   string

	HTTPClient *http.Client
}

type SquareTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MerchantID   string `json:"merchant_id"`
	ExpiresAt    string `json:"expires_at"`
}

type SquareLocation struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	BusinessEmail string `json:"business_email"`
}

type SquarePayment struct {
	ID            string
	Status        string
	ReceiptNumber string
	Amount        float64
	Currency      string
}

// SquareChargeParams carries one synchronous charge against a company's
// stored credential.
type SquareChargeParams struct {
	AccessToken    string
	SourceID       string
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	LocationID     string
	Note           string
}

func NewSquareClientFromEnv() *SquareClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("SQUARE_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/connect/square/callback"
	}

	return &SquareClient{
		ApplicationID:     strings.TrimSpace(env.GetEnv("SQUARE_APPLICATION_ID", "")),
		ApplicationSecret: strings.TrimSpace(env.GetEnv("SQUARE_APPLICATION_SECRET", "")),
		RedirectURI:       redirectURI,
		AuthorizeURL:      strings.TrimSpace(env.GetEnv("SQUARE_AUTHORIZE_URL", defaultSquareAuthorizeURL)),
		APIBaseURL:        strings.TrimSpace(env.GetEnv("SQUARE_API_BASE_URL", defaultSquareAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AuthorizeURLWithState builds the OAuth URL with the CSRF state parameter.
func (c *SquareClient) AuthorizeURLWithState(state string) (string, error) {
	if strings.TrimSpace(c.ApplicationID) == "" {
		return "", errors.New("SQUARE_APPLICATION_ID is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid SQUARE_AUTHORIZE_URL: %w", err)
	}
	q := u.Query()
	q.Set("client_id", c.ApplicationID)
	q.Set("scope", "MERCHANT_PROFILE_READ PAYMENTS_WRITE PAYMENTS_READ")
	q.Set("session", "false")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps the authorization code for merchant credentials.
func (c *SquareClient) ExchangeCode(ctx context.Context, code string) (*SquareTokenResponse, error) {
	if strings.TrimSpace(c.ApplicationID) == "" || strings.TrimSpace(c.ApplicationSecret) == "" {
		return nil, errors.New("SQUARE_APPLICATION_ID/SQUARE_APPLICATION_SECRET are not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}

	body := map[string]string{
		"client_id":     c.ApplicationID,
		"client_secret": c.ApplicationSecret,
		"code":          strings.TrimSpace(code),
		"grant_type":    "authorization_code",
	}
	if strings.TrimSpace(c.RedirectURI) != "" {
		body["redirect_uri"] = c.RedirectURI
	}

	var out SquareTokenResponse
	if err := c.requestJSON(ctx, http.MethodPost, "/oauth2/token", "", body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("square token exchange returned empty access_token")
	}
	return &out, nil
}

// PrimaryLocation returns the merchant's first active location. Charging
// requires a location id, so a merchant with none cannot complete connect.
func (c *SquareClient) PrimaryLocation(ctx context.Context, accessToken string) (*SquareLocation, error) {
	var parsed struct {
		Locations []SquareLocation `json:"locations"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, "/v2/locations", accessToken, nil, &parsed); err != nil {
		return nil, err
	}

	for _, loc := range parsed.Locations {
		if strings.EqualFold(loc.Status, "ACTIVE") {
			l := loc
			return &l, nil
		}
	}
	return nil, errors.New("square merchant has no active location")
}

// CreatePayment processes a tokenized card source synchronously. The
// idempotency key makes a retried request return the original payment.
func (c *SquareClient) CreatePayment(ctx context.Context, p SquareChargeParams) (*SquarePayment, error) {
	if strings.TrimSpace(p.AccessToken) == "" {
		return nil, errors.New("access token is required")
	}
	if strings.TrimSpace(p.SourceID) == "" {
		return nil, errors.New("payment source token is required")
	}
	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return nil, errors.New("idempotency key is required")
	}
	if p.AmountCents <= 0 {
		return nil, errors.New("amount must be positive")
	}

	body := map[string]interface{}{
		"source_id":       p.SourceID,
		"idempotency_key": p.IdempotencyKey,
		"location_id":     p.LocationID,
		"note":            p.Note,
		"amount_money": map[string]interface{}{
			"amount":   p.AmountCents,
			"currency": strings.ToUpper(p.Currency),
		},
	}

	var parsed struct {
		Payment squareRawPayment `json:"payment"`
	}
	if err := c.requestJSON(ctx, http.MethodPost, "/v2/payments", p.AccessToken, body, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Payment.ID) == "" {
		return nil, errors.New("square payment response missing id")
	}
	return parsed.Payment.normalize(), nil
}

// GetPayment retrieves a payment for verification.
func (c *SquareClient) GetPayment(ctx context.Context, accessToken, paymentID string) (*SquarePayment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}

	var parsed struct {
		Payment squareRawPayment `json:"payment"`
	}
	if err := c.requestJSON(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(paymentID), accessToken, nil, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Payment.ID) == "" {
		return nil, errors.New("square payment response missing id")
	}
	return parsed.Payment.normalize(), nil
}

type squareRawPayment struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ReceiptNumber string `json:"receipt_number"`
	AmountMoney   struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"amount_money"`
}

func (p squareRawPayment) normalize() *SquarePayment {
	return &SquarePayment{
		ID:            strings.TrimSpace(p.ID),
		Status:        strings.TrimSpace(p.Status),
		ReceiptNumber: strings.TrimSpace(p.ReceiptNumber),
		Amount:        CentsToDollars(p.AmountMoney.Amount),
		Currency:      strings.TrimSpace(p.AmountMoney.Currency),
	}
}

func (c *SquareClient) requestJSON(ctx context.Context, method, path, accessToken string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Square-Version", squareAPIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(accessToken) != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("square request %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	return json.Unmarshal(raw, out)
}
