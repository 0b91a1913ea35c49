package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/provider"
)

// newTestConfigHandler wires a handler against in-memory configuration and
// a real payment service. The pesapal factory is registered through the
// package import, so SetEnv exercises the full activation path without
// touching the network.
func newTestConfigHandler() (*ConfigHandler, *config.ProviderConfig, *provider.PaymentService) {
	providerConfig := config.NewProviderConfig(nil)
	paymentService := provider.NewPaymentService(nil)
	handler := NewConfigHandler(providerConfig, paymentService, testValidator())
	return handler, providerConfig, paymentService
}

func withMerchant(req *http.Request, merchantID string) *http.Request {
	return req.WithContext(middle.WithMerchantID(req.Context(), merchantID))
}

func TestNewConfigHandler(t *testing.T) {
	handler, providerConfig, paymentService := newTestConfigHandler()

	if handler == nil {
		t.Fatal("NewConfigHandler returned nil")
	}
	if handler.providerConfig != providerConfig {
		t.Error("Provider config not set correctly")
	}
	if handler.paymentService != paymentService {
		t.Error("Payment service not set correctly")
	}
}

func TestConfigHandler_SetEnv(t *testing.T) {
	validBody := `{
		"PESAPAL_CONSUMER_KEY": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
		"PESAPAL_CONSUMER_SECRET": "osGQ364R49cXKeOYSpaOnT++rHs=",
		"PESAPAL_CALLBACK_BASE_URL": "https://shop.example.com"
	}`

	tests := []struct {
		name           string
		merchantID     string
		body           string
		expectedStatus int
	}{
		{
			name:           "valid configuration",
			merchantID:     "SHOP1",
			body:           validBody,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing merchant identity",
			merchantID:     "",
			body:           validBody,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			merchantID:     "SHOP1",
			body:           `{"PESAPAL_CONSUMER_KEY": }`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty configuration",
			merchantID:     "SHOP1",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:       "incomplete credentials fail activation",
			merchantID: "SHOP1",
			// Stored, but the provider refuses to initialize without the
			// secret and callback base URL.
			body:           `{"PESAPAL_CONSUMER_KEY": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW"}`,
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, _ := newTestConfigHandler()

			req := httptest.NewRequest("POST", "/v1/config", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.merchantID != "" {
				req = withMerchant(req, tt.merchantID)
			}
			w := httptest.NewRecorder()

			handler.SetEnv(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestConfigHandler_SetEnv_ActivatesMerchantProvider(t *testing.T) {
	handler, providerConfig, paymentService := newTestConfigHandler()

	body := `{
		"PESAPAL_CONSUMER_KEY": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
		"PESAPAL_CONSUMER_SECRET": "osGQ364R49cXKeOYSpaOnT++rHs=",
		"PESAPAL_CALLBACK_BASE_URL": "https://shop.example.com",
		"PESAPAL_NOTIFICATION_ID": "ipn-77"
	}`
	req := withMerchant(httptest.NewRequest("POST", "/v1/config", strings.NewReader(body)), "SHOP1")
	w := httptest.NewRecorder()

	handler.SetEnv(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatal("Response data missing")
	}
	if data["providerName"] != "SHOP1_pesapal" {
		t.Errorf("Expected provider name SHOP1_pesapal, got %v", data["providerName"])
	}

	// Configuration is stored under the merchant
	stored, err := providerConfig.GetMerchantConfig("SHOP1", "pesapal")
	if err != nil {
		t.Fatalf("Expected stored configuration, got error: %v", err)
	}
	if stored["consumerKey"] != "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW" {
		t.Errorf("Unexpected stored consumer key: %s", stored["consumerKey"])
	}
	if stored["environment"] != "sandbox" {
		t.Errorf("Expected sandbox default, got %s", stored["environment"])
	}
	if stored["notificationId"] != "ipn-77" {
		t.Errorf("Unexpected stored notification id: %s", stored["notificationId"])
	}

	// A live instance is addressable under the merchant-scoped name
	found := false
	for _, name := range paymentService.ProviderNames() {
		if name == "SHOP1_pesapal" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected SHOP1_pesapal among providers, got %v", paymentService.ProviderNames())
	}
}

func TestConfigHandler_SetEnv_ExplicitEnvironment(t *testing.T) {
	handler, providerConfig, _ := newTestConfigHandler()

	body := `{
		"PESAPAL_CONSUMER_KEY": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
		"PESAPAL_CONSUMER_SECRET": "osGQ364R49cXKeOYSpaOnT++rHs=",
		"PESAPAL_CALLBACK_BASE_URL": "https://shop.example.com",
		"PESAPAL_ENVIRONMENT": "production"
	}`
	req := withMerchant(httptest.NewRequest("POST", "/v1/config", strings.NewReader(body)), "SHOP2")
	w := httptest.NewRecorder()

	handler.SetEnv(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	stored, err := providerConfig.GetMerchantConfig("SHOP2", "pesapal")
	if err != nil {
		t.Fatalf("Expected stored configuration, got error: %v", err)
	}
	if stored["environment"] != "production" {
		t.Errorf("Expected production environment, got %s", stored["environment"])
	}
}

func TestConfigHandler_GetMerchantConfig(t *testing.T) {
	handler, providerConfig, _ := newTestConfigHandler()

	err := providerConfig.SetMerchantConfig("SHOP1", "pesapal", map[string]string{
		"consumerKey":     "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
		"consumerSecret":  "short",
		"callbackBaseUrl": "https://shop.example.com",
		"environment":     "sandbox",
	})
	if err != nil {
		t.Fatalf("Failed to seed configuration: %v", err)
	}

	t.Run("missing merchant identity", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/config", nil)
		w := httptest.NewRecorder()

		handler.GetMerchantConfig(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("unknown merchant", func(t *testing.T) {
		req := withMerchant(httptest.NewRequest("GET", "/v1/config", nil), "GHOST")
		w := httptest.NewRecorder()

		handler.GetMerchantConfig(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("credentials are masked", func(t *testing.T) {
		req := withMerchant(httptest.NewRequest("GET", "/v1/config?provider=pesapal", nil), "SHOP1")
		w := httptest.NewRecorder()

		handler.GetMerchantConfig(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp map[string]any
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		data := resp["data"].(map[string]any)
		cfg, ok := data["config"].(map[string]any)
		if !ok {
			t.Fatal("Response config missing")
		}

		if cfg["consumerKey"] != "qkio****rqEW" {
			t.Errorf("Expected masked consumer key, got %v", cfg["consumerKey"])
		}
		if cfg["consumerSecret"] != "****" {
			t.Errorf("Expected short secret fully masked, got %v", cfg["consumerSecret"])
		}
		if cfg["callbackBaseUrl"] != "https://shop.example.com" {
			t.Errorf("Expected callback URL unmasked, got %v", cfg["callbackBaseUrl"])
		}
	})
}

func TestConfigHandler_DeleteMerchantConfig(t *testing.T) {
	handler, providerConfig, _ := newTestConfigHandler()

	err := providerConfig.SetMerchantConfig("SHOP1", "pesapal", map[string]string{
		"consumerKey": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
	})
	if err != nil {
		t.Fatalf("Failed to seed configuration: %v", err)
	}

	t.Run("missing merchant identity", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/v1/config", nil)
		w := httptest.NewRecorder()

		handler.DeleteMerchantConfig(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("deletes stored configuration", func(t *testing.T) {
		req := withMerchant(httptest.NewRequest("DELETE", "/v1/config?provider=pesapal", nil), "SHOP1")
		w := httptest.NewRecorder()

		handler.DeleteMerchantConfig(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, err := providerConfig.GetMerchantConfig("SHOP1", "pesapal"); err == nil {
			t.Error("Expected configuration to be gone after delete")
		}
	})
}

func TestConfigHandler_GetRequiredConfig(t *testing.T) {
	handler, _, _ := newTestConfigHandler()

	t.Run("defaults to pesapal sandbox", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/config/fields", nil)
		w := httptest.NewRecorder()

		handler.GetRequiredConfig(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp map[string]any
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		data := resp["data"].(map[string]any)
		if data["provider"] != "pesapal" {
			t.Errorf("Expected provider pesapal, got %v", data["provider"])
		}
		if data["environment"] != "sandbox" {
			t.Errorf("Expected environment sandbox, got %v", data["environment"])
		}

		fields, ok := data["fields"].([]any)
		if !ok || len(fields) == 0 {
			t.Fatal("Expected non-empty field list")
		}
		var hasConsumerKey bool
		for _, f := range fields {
			field := f.(map[string]any)
			if field["key"] == "consumerKey" && field["required"] == true {
				hasConsumerKey = true
			}
		}
		if !hasConsumerKey {
			t.Error("Expected consumerKey to be listed as required")
		}
	})

	t.Run("production environment", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/config/fields?environment=production", nil)
		w := httptest.NewRecorder()

		handler.GetRequiredConfig(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp map[string]any
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		data := resp["data"].(map[string]any)
		if data["environment"] != "production" {
			t.Errorf("Expected environment production, got %v", data["environment"])
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/config/fields?provider=stripe", nil)
		w := httptest.NewRecorder()

		handler.GetRequiredConfig(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestConfigHandler_GetStats(t *testing.T) {
	handler, providerConfig, _ := newTestConfigHandler()

	err := providerConfig.SetMerchantConfig("SHOP1", "pesapal", map[string]string{
		"consumerKey": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
	})
	if err != nil {
		t.Fatalf("Failed to seed configuration: %v", err)
	}

	req := httptest.NewRequest("GET", "/v1/config/stats", nil)
	w := httptest.NewRecorder()

	handler.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	data := resp["data"].(map[string]any)
	if data["memory_configs"] != float64(1) {
		t.Errorf("Expected one in-memory config, got %v", data["memory_configs"])
	}
	if data["storage"] != "not_available" {
		t.Errorf("Expected storage not_available without persistence, got %v", data["storage"])
	}
}
