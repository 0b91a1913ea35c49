package v1

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/pesapay/infra/auth"
	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/validate"
	"github.com/mstgnz/pesapay/provider"
)

func testServices(t *testing.T) Services {
	t.Helper()
	validate.CustomValidate()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "pesapay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jwtService := auth.NewJWTService()
	merchantService, err := auth.NewMerchantService(db, jwtService)
	require.NoError(t, err)

	return Services{
		DB:              db,
		PaymentService:  provider.NewPaymentService(nil),
		ProviderConfig:  config.NewProviderConfig(nil),
		MerchantService: merchantService,
		JWTService:      jwtService,
		RateLimiter:     middle.NewMerchantRateLimiter(),
	}
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Services)
	}{
		{name: "full_services"},
		{
			name:   "nil_rate_limiter",
			mutate: func(s *Services) { s.RateLimiter = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServices(t)
			if tt.mutate != nil {
				tt.mutate(&s)
			}

			r := chi.NewRouter()
			require.NotNil(t, r)

			assert.NotPanics(t, func() {
				Routes(r, s)
			})
		})
	}
}

func TestRoutes_EndpointRegistration(t *testing.T) {
	r := chi.NewRouter()
	Routes(r, testServices(t))

	tests := []struct {
		name       string
		method     string
		path       string
		expectCode int
	}{
		{
			name:       "login_endpoint",
			method:     "POST",
			path:       "/auth/login",
			expectCode: 400, // Registered and public; empty body fails decoding
		},
		{
			name:       "register_endpoint",
			method:     "POST",
			path:       "/auth/register",
			expectCode: 400,
		},
		{
			name:       "set_env_endpoint",
			method:     "POST",
			path:       "/set-env",
			expectCode: 401,
		},
		{
			name:       "merchant_config_get",
			method:     "GET",
			path:       "/config/merchant-config",
			expectCode: 401,
		},
		{
			name:       "merchant_config_delete",
			method:     "DELETE",
			path:       "/config/merchant-config",
			expectCode: 401,
		},
		{
			name:       "config_fields",
			method:     "GET",
			path:       "/config/fields",
			expectCode: 401,
		},
		{
			name:       "config_stats",
			method:     "GET",
			path:       "/config/stats",
			expectCode: 401,
		},
		{
			name:       "submit_order",
			method:     "POST",
			path:       "/payments/pesapal",
			expectCode: 401,
		},
		{
			name:       "payment_status",
			method:     "GET",
			path:       "/payments/pesapal/b945e4af-80a5",
			expectCode: 401,
		},
		{
			name:       "payment_cancel",
			method:     "DELETE",
			path:       "/payments/pesapal/b945e4af-80a5",
			expectCode: 401,
		},
		{
			name:       "payment_refund",
			method:     "POST",
			path:       "/payments/pesapal/refund",
			expectCode: 401,
		},
		{
			name:       "ipn_register",
			method:     "POST",
			path:       "/payments/pesapal/ipn",
			expectCode: 401,
		},
		{
			name:       "ipn_list",
			method:     "GET",
			path:       "/payments/pesapal/ipn",
			expectCode: 401,
		},
		{
			name:       "logs_list",
			method:     "GET",
			path:       "/logs/pesapal",
			expectCode: 401,
		},
		{
			name:       "payment_logs",
			method:     "GET",
			path:       "/logs/pesapal/payment/b945e4af-80a5",
			expectCode: 401,
		},
		{
			name:       "error_logs",
			method:     "GET",
			path:       "/logs/pesapal/errors",
			expectCode: 401,
		},
		{
			name:       "log_stats",
			method:     "GET",
			path:       "/logs/pesapal/stats",
			expectCode: 401,
		},
		{
			name:       "system_logs",
			method:     "GET",
			path:       "/logs/system",
			expectCode: 401,
		},
		{
			name:       "analytics_dashboard",
			method:     "GET",
			path:       "/analytics/dashboard",
			expectCode: 401,
		},
		{
			name:       "analytics_trends",
			method:     "GET",
			path:       "/analytics/trends",
			expectCode: 401,
		},
		{
			name:       "ratelimit_stats",
			method:     "GET",
			path:       "/ratelimit/stats",
			expectCode: 401,
		},
		{
			name:       "callback_public",
			method:     "GET",
			path:       "/callback/pesapal",
			expectCode: 400, // Public, but the gateway params are missing
		},
		{
			name:       "cancel_return_public",
			method:     "GET",
			path:       "/cancel/pesapal",
			expectCode: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.NotEqual(t, http.StatusNotFound, rec.Code, "Route should be registered")
			assert.Equal(t, tt.expectCode, rec.Code)
		})
	}
}

func TestRoutes_AuthenticatedFlow(t *testing.T) {
	s := testServices(t)
	r := chi.NewRouter()
	Routes(r, s)

	// First registration opens the only self-service account
	registerBody := `{"username":"shop1","password":"secret123"}`
	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token, err := s.JWTService.GenerateToken("SHOP1", "shop1")
	require.NoError(t, err)

	// An authenticated request passes the middleware and reaches the handler
	req = httptest.NewRequest("GET", "/ratelimit/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SHOP1")

	// Logging is not wired in this fixture, so log reads answer 503
	req = httptest.NewRequest("GET", "/logs/pesapal", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	r := chi.NewRouter()
	Routes(r, testServices(t))

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{
			name:   "get_set_env",
			method: "GET",
			path:   "/set-env",
		},
		{
			name:   "delete_login",
			method: "DELETE",
			path:   "/auth/login",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestProviderRegistration(t *testing.T) {
	// The blank import registers the gateway factory
	names := provider.GetProviderNames()
	assert.Contains(t, names, "pesapal")
}
