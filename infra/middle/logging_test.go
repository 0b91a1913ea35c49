package middle

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/opensearch"
)

func newDisabledPaymentLogger(t *testing.T) *opensearch.Logger {
	t.Helper()

	client, err := opensearch.NewClient(&config.AppConfig{
		OpenSearchURL: "http://127.0.0.1:9200",
		EnableLogging: false,
	})
	if err != nil {
		t.Fatalf("Failed to create disabled OpenSearch client: %v", err)
	}

	return opensearch.NewLogger(client)
}

func TestIsPaymentEndpoint(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/v1/payments", true},
		{"/v1/payments/abc123", true},
		{"/v1/payments/refund", true},
		{"/v1/ipn", true},
		{"/v1/callback/pesapal", true},
		{"/v1/cancel/pesapal", true},
		{"/v1/webhooks/pesapal", true},
		{"/webhooks/pesapal", true},
		{"/callback/pesapal", true},
		{"/health", false},
		{"/v1/auth/login", false},
		{"/v1/config/merchant-config", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := isPaymentEndpoint(tt.path); got != tt.expected {
				t.Errorf("isPaymentEndpoint(%s) = %v, expected %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestExtractProviderFromURL(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/v1/callback/pesapal", "pesapal"},
		{"/v1/cancel/pesapal", "pesapal"},
		{"/v1/webhooks/pesapal", "pesapal"},
		{"/webhooks/pesapal", "pesapal"},
		{"/callback/pesapal", "pesapal"},
		{"/v1/payments", ""},
		{"/v1/payments/abc123", ""},
		{"/health", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := extractProviderFromURL(tt.path); got != tt.expected {
				t.Errorf("extractProviderFromURL(%s) = %q, expected %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestExtractPaymentInfo(t *testing.T) {
	t.Run("from request body", func(t *testing.T) {
		requestBody := `{
			"id": "order-123",
			"amount": "1500.00",
			"currency": "KES",
			"billing": {"email": "customer@example.com", "phone": "+254712345678"}
		}`

		info := extractPaymentInfo(requestBody, "")
		if info == nil {
			t.Fatal("Expected payment info, got nil")
		}

		if info.PaymentID != "order-123" {
			t.Errorf("Expected payment ID order-123, got %s", info.PaymentID)
		}
		if info.Amount != 1500.00 {
			t.Errorf("Expected amount 1500.00, got %f", info.Amount)
		}
		if info.Currency != "KES" {
			t.Errorf("Expected currency KES, got %s", info.Currency)
		}
		if info.CustomerEmail != "customer@example.com" {
			t.Errorf("Expected customer email, got %s", info.CustomerEmail)
		}
	})

	t.Run("from response body", func(t *testing.T) {
		responseBody := `{
			"code": 200,
			"success": true,
			"data": {
				"trackingId": "b945e4af-80a5-4ec1-8706-e03f8332fb04",
				"merchantReference": "order-456",
				"status": "pending"
			}
		}`

		info := extractPaymentInfo("", responseBody)
		if info == nil {
			t.Fatal("Expected payment info, got nil")
		}

		if info.TrackingID != "b945e4af-80a5-4ec1-8706-e03f8332fb04" {
			t.Errorf("Expected tracking ID, got %s", info.TrackingID)
		}
		if info.PaymentID != "order-456" {
			t.Errorf("Expected payment ID order-456, got %s", info.PaymentID)
		}
		if info.Status != "pending" {
			t.Errorf("Expected status pending, got %s", info.Status)
		}
	})

	t.Run("malformed amount is skipped", func(t *testing.T) {
		info := extractPaymentInfo(`{"amount": "abc", "currency": "KES"}`, "")
		if info == nil {
			t.Fatal("Expected payment info, got nil")
		}
		if info.Amount != 0 {
			t.Errorf("Expected amount 0 for malformed input, got %f", info.Amount)
		}
	})

	t.Run("no useful information", func(t *testing.T) {
		if info := extractPaymentInfo(`{"other": "field"}`, `{"success": true}`); info != nil {
			t.Errorf("Expected nil for bodies without payment fields, got %+v", info)
		}
	})
}

func TestExtractErrorInfo(t *testing.T) {
	t.Run("error envelope", func(t *testing.T) {
		responseBody := `{
			"code": 400,
			"success": false,
			"message": "Validation failed",
			"error": "amount must be a decimal string"
		}`

		info := extractErrorInfo(responseBody)
		if info == nil {
			t.Fatal("Expected error info, got nil")
		}

		if info.Message != "amount must be a decimal string" {
			t.Errorf("Expected error field to win, got %s", info.Message)
		}
		if info.Code != "400" {
			t.Errorf("Expected code 400, got %s", info.Code)
		}
	})

	t.Run("gateway error code in data", func(t *testing.T) {
		responseBody := `{
			"code": 502,
			"success": false,
			"message": "Payment failed",
			"data": {"errorCode": "duplicate_order_tracking_id"}
		}`

		info := extractErrorInfo(responseBody)
		if info == nil {
			t.Fatal("Expected error info, got nil")
		}

		if info.Code != "duplicate_order_tracking_id" {
			t.Errorf("Expected gateway error code, got %s", info.Code)
		}
	})

	t.Run("non-JSON body", func(t *testing.T) {
		if info := extractErrorInfo("not json"); info != nil {
			t.Errorf("Expected nil for non-JSON body, got %+v", info)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if info := extractErrorInfo(""); info != nil {
			t.Errorf("Expected nil for empty body, got %+v", info)
		}
	})
}

func TestPaymentLoggingMiddleware(t *testing.T) {
	logger := newDisabledPaymentLogger(t)

	middleware := PaymentLoggingMiddleware(logger)

	var sawRequestID string
	var sawBody string
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequestID = r.Header.Get("X-Request-ID")

		// Body must still be readable downstream
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		sawBody = string(buf[:n])

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	req := httptest.NewRequest("POST", "/v1/payments", strings.NewReader(`{"amount":"100.00"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-ID", "shop1")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if sawRequestID == "" {
		t.Error("Middleware should inject X-Request-ID")
	}
	if sawBody != `{"amount":"100.00"}` {
		t.Errorf("Handler should see the original body, got %q", sawBody)
	}
	if rr.Body.String() != `{"success":true}` {
		t.Errorf("Client should see the original response, got %q", rr.Body.String())
	}
}

func TestPaymentLoggingMiddleware_SkipsOtherEndpoints(t *testing.T) {
	logger := newDisabledPaymentLogger(t)

	handler := PaymentLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") != "" {
			t.Error("Non-payment endpoints should not get a generated request ID")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}
