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

const (
	defaultPayPalAuthorizeURL = "https://www.paypal.com/connect"
	defaultPayPalAPIBaseURL   = "https://api-m.paypal.com"
)

// PayPalClient drives the classic authorization-code flow (Connect with
// PayPal) plus the order verification used when confirming client-side
// payments. A company may alternatively link by payee email only; that
// variant never touches the OAuth endpoints but shares the CSRF state checks.
type PayPalClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	AuthorizeURL string
	APIBaseURL   string

	HTTPClient *http.Client
}

type PayPalTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type PayPalMerchantInfo struct {
	MerchantID string
	Email      string
	Name       string
}

type PayPalOrder struct {
	ID              string
	Status          string
	PayeeMerchantID string
	PayeeEmail      string
	Amount          float64
	Currency        string
	CaptureID       string
}

func NewPayPalClientFromEnv() *PayPalClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("PAYPAL_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/connect/paypal/callback"
	}

	return &PayPalClient{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		RedirectURI:  redirectURI,
		AuthorizeURL: strings.TrimSpace(env.GetEnv("PAYPAL_AUTHORIZE_URL", defaultPayPalAuthorizeURL)),
		APIBaseURL:   strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AuthorizeURLWithState builds the authorization-code URL with the CSRF state
// as the standard state parameter.
func (c *PayPalClient) AuthorizeURLWithState(state string) (string, error) {
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("PAYPAL_CLIENT_ID is not configured")
	}
	if strings.TrimSpace(c.RedirectURI) == "" {
		return "", errors.New("PAYPAL_REDIRECT_URI is not configured")
	}
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid PAYPAL_AUTHORIZE_URL: %w", err)
	}
	q := u.Query()
	q.Set("flowEntry", "static")
	q.Set("client_id", c.ClientID)
	q.Set("response_type", "code")
	q.Set("scope", "openid email https://uri.paypal.com/services/paypalattributes")
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps the authorization code for merchant credentials.
func (c *PayPalClient) ExchangeCode(ctx context.Context, code string) (*PayPalTokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oauth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", strings.TrimSpace(code))

	var out PayPalTokenResponse
	if err := c.tokenRequest(ctx, form, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("paypal token exchange returned empty access_token")
	}
	return &out, nil
}

// GetMerchantInfo resolves the authorized merchant's payer id and email.
func (c *PayPalClient) GetMerchantInfo(ctx context.Context, accessToken string) (*PayPalMerchantInfo, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return nil, errors.New("access token is required")
	}

	u := strings.TrimRight(c.APIBaseURL, "/") + "/v1/identity/oauth2/userinfo?schema=paypalv1.1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal userinfo request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		PayerID string `json:"payer_id"`
		Name    string `json:"name"`
		Emails  []struct {
			Value   string `json:"value"`
			Primary bool   `json:"primary"`
		} `json:"emails"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.PayerID) == "" {
		return nil, errors.New("paypal userinfo response missing payer_id")
	}

	email := ""
	for _, e := range parsed.Emails {
		if e.Primary {
			email = e.Value
			break
		}
		if email == "" {
			email = e.Value
		}
	}

	return &PayPalMerchantInfo{
		MerchantID: strings.TrimSpace(parsed.PayerID),
		Email:      strings.TrimSpace(email),
		Name:       strings.TrimSpace(parsed.Name),
	}, nil
}

// GetOrder retrieves an order for confirmation. The caller checks status,
// payee and amount; this method only normalizes the response shape.
func (c *PayPalClient) GetOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("order id is required")
	}

	appToken, err := c.appToken(ctx)
	if err != nil {
		return nil, err
	}

	u := strings.TrimRight(c.APIBaseURL, "/") + "/v2/checkout/orders/" + url.PathEscape(orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+appToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal order request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Amount struct {
				Value        string `json:"value"`
				CurrencyCode string `json:"currency_code"`
			} `json:"amount"`
			Payee struct {
				MerchantID   string `json:"merchant_id"`
				EmailAddress string `json:"email_address"`
			} `json:"payee"`
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.ID) == "" {
		return nil, errors.New("paypal order response missing id")
	}

	order := &PayPalOrder{
		ID:     strings.TrimSpace(parsed.ID),
		Status: strings.TrimSpace(parsed.Status),
	}
	if len(parsed.PurchaseUnits) > 0 {
		pu := parsed.PurchaseUnits[0]
		order.PayeeMerchantID = strings.TrimSpace(pu.Payee.MerchantID)
		order.PayeeEmail = strings.TrimSpace(pu.Payee.EmailAddress)
		order.Currency = strings.TrimSpace(pu.Amount.CurrencyCode)
		if v, err := strconv.ParseFloat(strings.TrimSpace(pu.Amount.Value), 64); err == nil {
			order.Amount = v
		}
		for _, cap := range pu.Payments.Captures {
			if cap.Status == "COMPLETED" {
				order.CaptureID = cap.ID
				break
			}
		}
	}
	return order, nil
}

func (c *PayPalClient) appToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	var out PayPalTokenResponse
	if err := c.tokenRequest(ctx, form, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("paypal client-credentials grant returned empty access_token")
	}
	return out.AccessToken, nil
}

func (c *PayPalClient) tokenRequest(ctx context.Context, form url.Values, out *PayPalTokenResponse) error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	u := strings.TrimRight(c.APIBaseURL, "/") + "/v1/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal token request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	return json.Unmarshal(raw, out)
}
