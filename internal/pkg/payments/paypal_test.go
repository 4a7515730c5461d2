package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newTestPayPalClient(apiBase string) *PayPalClient {
	return &PayPalClient{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://portal.example/connect/paypal/callback",
		AuthorizeURL: defaultPayPalAuthorizeURL,
		APIBaseURL:   apiBase,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func TestPayPalAuthorizeURLWithState(t *testing.T) {
	c := newTestPayPalClient("")
	raw, err := c.AuthorizeURLWithState("deadbeef")
	if err != nil {
		t.Fatalf("AuthorizeURLWithState: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Fatalf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "deadbeef" {
		t.Fatalf("state = %q", q.Get("state"))
	}
	if q.Get("redirect_uri") != c.RedirectURI {
		t.Fatalf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("response_type") != "code" {
		t.Fatalf("response_type = %q", q.Get("response_type"))
	}
}

func TestPayPalAuthorizeURLRequiresConfig(t *testing.T) {
	c := newTestPayPalClient("")
	c.ClientID = ""
	if _, err := c.AuthorizeURLWithState("s"); err == nil {
		t.Fatalf("expected error for missing client id")
	}
}

func TestPayPalGetOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"app-token","token_type":"Bearer"}`))
		case "/v2/checkout/orders/ORD-1":
			if got := r.Header.Get("Authorization"); got != "Bearer app-token" {
				t.Errorf("order request auth = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"id": "ORD-1",
				"status": "COMPLETED",
				"purchase_units": [{
					"amount": {"value": "40.00", "currency_code": "USD"},
					"payee": {"merchant_id": "M123", "email_address": "shop@example.com"},
					"payments": {"captures": [{"id": "CAP-9", "status": "COMPLETED"}]}
				}]
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestPayPalClient(srv.URL)
	order, err := c.GetOrder(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != "COMPLETED" || order.PayeeMerchantID != "M123" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if order.Amount != 40.00 || order.Currency != "USD" {
		t.Fatalf("unexpected amount: %v %s", order.Amount, order.Currency)
	}
	if order.CaptureID != "CAP-9" {
		t.Fatalf("capture id = %q", order.CaptureID)
	}
}

func TestDollarsToCents(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{in: 0.01, want: 1},
		{in: 40.00, want: 4000},
		{in: 19.99, want: 1999},
		{in: 29.985, want: 2999}, // rounds, never truncates
	}

	for _, tt := range tests {
		if got := DollarsToCents(tt.in); got != tt.want {
			t.Fatalf("DollarsToCents(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
