package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/invoiceportal/InvoicePortal/app/models"
	"github.com/invoiceportal/InvoicePortal/internal/pkg/payments"
)

type fakeCompanyRepo struct {
	companies map[uint]*models.Company
}

func (f *fakeCompanyRepo) Create(c *models.Company) error {
	c.ID = uint(len(f.companies) + 1)
	cp := *c
	f.companies[c.ID] = &cp
	return nil
}

func (f *fakeCompanyRepo) GetByID(id uint) (*models.Company, error) {
	if c, ok := f.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCompanyRepo) GetByAPIKey(key string) (*models.Company, error) {
	for _, c := range f.companies {
		if c.APIKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCompanyRepo) Update(c *models.Company) error {
	cp := *c
	f.companies[c.ID] = &cp
	return nil
}

func (f *fakeCompanyRepo) Count() (int64, error) { return int64(len(f.companies)), nil }

type fakeStateRepo struct {
	nextID uint
	rows   map[string]*models.OAuthState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{rows: make(map[string]*models.OAuthState)}
}

func (f *fakeStateRepo) Create(s *models.OAuthState) error {
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.rows[s.State] = &cp
	return nil
}

func (f *fakeStateRepo) GetByState(state string) (*models.OAuthState, error) {
	if row, ok := f.rows[state]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStateRepo) Delete(id uint) error {
	for k, row := range f.rows {
		if row.ID == id {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeStateRepo) DeleteExpired(now time.Time) (int64, error) {
	var n int64
	for k, row := range f.rows {
		if now.After(row.ExpiresAt) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

// stripeStub simulates the connected-account endpoints. Onboarding completes
// once `complete` flips to true.
type stripeStub struct {
	complete     bool
	accountCalls int
	linkCalls    int
}

func (s *stripeStub) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/accounts":
			s.accountCalls++
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "acct_test1"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/accounts/"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":                "acct_test1",
				"details_submitted": s.complete,
				"charges_enabled":   s.complete,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/account_links":
			s.linkCalls++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"url": fmt.Sprintf("https://connect.stripe.test/onboard/%d", s.linkCalls),
			})
		default:
			t.Errorf("unexpected stripe request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestService(stripeBase string) (*Service, *fakeCompanyRepo, *fakeStateRepo) {
	companies := &fakeCompanyRepo{companies: make(map[uint]*models.Company)}
	states := newFakeStateRepo()
	stripe := &payments.StripeClient{
		SecretKey:      "sk_test",
		PublishableKey: "pk_test",
		ReturnBaseURL:  "https://portal.example",
		APIBaseURL:     stripeBase,
		HTTPClient:     &http.Client{Timeout: 5 * time.Second},
	}
	paypal := &payments.PayPalClient{
		ClientID:     "pp-client",
		ClientSecret: "pp-secret",
		RedirectURI:  "https://portal.example/connect/paypal/callback",
		AuthorizeURL: "https://www.paypal.test/connect",
		APIBaseURL:   "https://api.paypal.test",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
	square := &payments.SquareClient{
		ApplicationID:     "sq-app",
		ApplicationSecret: "sq-secret",
		AuthorizeURL:      "https://connect.square.test/oauth2/authorize",
		APIBaseURL:        "https://api.square.test",
		HTTPClient:        &http.Client{Timeout: 5 * time.Second},
	}
	return NewService(companies, states, stripe, paypal, square), companies, states
}

func TestStripeConnectRoundTrips(t *testing.T) {
	stub := &stripeStub{}
	srv := stub.server(t)
	defer srv.Close()

	svc, companies, states := newTestService(srv.URL)
	company := &models.Company{Name: "Acme Plumbing", APIKey: "k"}
	assert.NoError(t, companies.Create(company))

	// Initiate: sub-account created once, state row issued.
	link, err := svc.Initiate(context.Background(), company, models.ProviderStripe)
	assert.NoError(t, err)
	assert.NotEmpty(t, link)
	assert.Equal(t, 1, stub.accountCalls)
	assert.Len(t, states.rows, 1)

	var state string
	for s := range states.rows {
		state = s
	}

	// First callback: onboarding incomplete, caller is re-redirected and
	// the state row survives for the second round trip.
	res, err := svc.HandleCallback(context.Background(), models.ProviderStripe, "", state)
	assert.NoError(t, err)
	assert.False(t, res.Connected)
	assert.NotEmpty(t, res.RedirectURL)
	assert.Len(t, states.rows, 1, "state must survive the re-redirect")

	// Second callback: onboarding done, credentials persisted, state gone.
	stub.complete = true
	res, err = svc.HandleCallback(context.Background(), models.ProviderStripe, "", state)
	assert.NoError(t, err)
	assert.True(t, res.Connected)

	stored, err := companies.GetByID(company.ID)
	assert.NoError(t, err)
	assert.Equal(t, "acct_test1", stored.StripeAccountID)
	assert.True(t, stored.HasStripe())
	assert.Len(t, states.rows, 0, "state must be consumed")

	// A consumed state cannot be replayed.
	_, err = svc.HandleCallback(context.Background(), models.ProviderStripe, "", state)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestInitiateStripeReusesAccount(t *testing.T) {
	stub := &stripeStub{}
	srv := stub.server(t)
	defer srv.Close()

	svc, companies, _ := newTestService(srv.URL)
	company := &models.Company{Name: "Acme", APIKey: "k", StripeAccountID: "acct_existing"}
	assert.NoError(t, companies.Create(company))

	_, err := svc.Initiate(context.Background(), company, models.ProviderStripe)
	assert.NoError(t, err)
	assert.Equal(t, 0, stub.accountCalls, "existing sub-account must be reused")
}

func TestHandleCallbackRejectsExpiredState(t *testing.T) {
	svc, companies, states := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	state := strings.Repeat("ab", 32)
	_ = states.Create(&models.OAuthState{
		CompanyID: company.ID,
		Provider:  models.ProviderPayPal,
		State:     state,
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err := svc.HandleCallback(context.Background(), models.ProviderPayPal, "code", state)
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.Len(t, states.rows, 0, "expired state row is removed on first use")
}

func TestHandleCallbackRejectsProviderMismatch(t *testing.T) {
	svc, companies, states := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	state := strings.Repeat("cd", 32)
	_ = states.Create(&models.OAuthState{
		CompanyID: company.ID,
		Provider:  models.ProviderSquare,
		State:     state,
		ExpiresAt: time.Now().Add(models.OAuthStateTTL),
	})

	_, err := svc.HandleCallback(context.Background(), models.ProviderPayPal, "code", state)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestSavePayPalEmail(t *testing.T) {
	svc, companies, states := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	state := strings.Repeat("ef", 32)
	_ = states.Create(&models.OAuthState{
		CompanyID: company.ID,
		Provider:  models.ProviderPayPal,
		State:     state,
		ExpiresAt: time.Now().Add(models.OAuthStateTTL),
	})

	res, err := svc.SavePayPalEmail(context.Background(), state, "payouts@acme.example")
	assert.NoError(t, err)
	assert.True(t, res.Connected)

	stored, _ := companies.GetByID(company.ID)
	assert.Equal(t, "payouts@acme.example", stored.PayPalEmail)
	assert.True(t, stored.HasPayPal())

	// The state is single-use across both PayPal variants.
	_, err = svc.SavePayPalEmail(context.Background(), state, "other@acme.example")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestSavePayPalEmailRejectsBadAddress(t *testing.T) {
	svc, companies, states := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	state := strings.Repeat("09", 32)
	_ = states.Create(&models.OAuthState{
		CompanyID: company.ID,
		Provider:  models.ProviderPayPal,
		State:     state,
		ExpiresAt: time.Now().Add(models.OAuthStateTTL),
	})

	_, err := svc.SavePayPalEmail(context.Background(), state, "not-an-email")
	var authErr *payments.AuthorizationError
	assert.ErrorAs(t, err, &authErr)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	svc, companies, _ := newTestService("")
	company := &models.Company{
		Name:              "Acme",
		APIKey:            "k",
		SquareMerchantID:  "M1",
		SquareAccessToken: "tok",
		SquareLocationID:  "L1",
	}
	_ = companies.Create(company)

	assert.NoError(t, svc.Disconnect(company, models.ProviderSquare))
	stored, _ := companies.GetByID(company.ID)
	assert.False(t, stored.HasSquare())

	// Disconnecting again is a no-op, not an error.
	assert.NoError(t, svc.Disconnect(stored, models.ProviderSquare))
}

func TestInitiateUnknownProvider(t *testing.T) {
	svc, companies, _ := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	_, err := svc.Initiate(context.Background(), company, "venmo")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestAuthorizeURLCarriesState(t *testing.T) {
	svc, companies, states := newTestService("")
	company := &models.Company{Name: "Acme", APIKey: "k"}
	_ = companies.Create(company)

	raw, err := svc.Initiate(context.Background(), company, models.ProviderSquare)
	assert.NoError(t, err)

	u, err := url.Parse(raw)
	assert.NoError(t, err)
	state := u.Query().Get("state")
	assert.Len(t, state, 64)
	_, ok := states.rows[state]
	assert.True(t, ok, "issued state must be stored")
}
