package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/response"
	"github.com/mstgnz/pesapay/provider"
)

// ConfigHandler handles merchant gateway configuration requests
type ConfigHandler struct {
	providerConfig *config.ProviderConfig
	paymentService *provider.PaymentService
	validate       *validator.Validate
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(providerConfig *config.ProviderConfig, paymentService *provider.PaymentService, validate *validator.Validate) *ConfigHandler {
	return &ConfigHandler{
		providerConfig: providerConfig,
		paymentService: paymentService,
		validate:       validate,
	}
}

// SetEnvRequest carries gateway credentials in environment variable form,
// the same names a .env deployment uses
type SetEnvRequest struct {
	PesapalConsumerKey     string `json:"PESAPAL_CONSUMER_KEY,omitempty"`
	PesapalConsumerSecret  string `json:"PESAPAL_CONSUMER_SECRET,omitempty"`
	PesapalCallbackBaseURL string `json:"PESAPAL_CALLBACK_BASE_URL,omitempty"`
	PesapalEnv             string `json:"PESAPAL_ENVIRONMENT,omitempty"`
	PesapalNotificationID  string `json:"PESAPAL_NOTIFICATION_ID,omitempty"`
	PesapalBranch          string `json:"PESAPAL_BRANCH,omitempty"`
}

// SetEnv stores gateway credentials for the authenticated merchant and
// activates a merchant-scoped provider instance for them
func (h *ConfigHandler) SetEnv(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "Merchant identity is required", nil)
		return
	}

	// Parse the request
	var req SetEnvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	pesapalConfig := make(map[string]string)
	if req.PesapalConsumerKey != "" {
		pesapalConfig["consumerKey"] = req.PesapalConsumerKey
	}
	if req.PesapalConsumerSecret != "" {
		pesapalConfig["consumerSecret"] = req.PesapalConsumerSecret
	}
	if req.PesapalCallbackBaseURL != "" {
		pesapalConfig["callbackBaseUrl"] = req.PesapalCallbackBaseURL
	}
	if req.PesapalNotificationID != "" {
		pesapalConfig["notificationId"] = req.PesapalNotificationID
	}
	if req.PesapalBranch != "" {
		pesapalConfig["branch"] = req.PesapalBranch
	}
	if len(pesapalConfig) == 0 {
		response.Error(w, http.StatusBadRequest, "No valid provider configuration found in request", nil)
		return
	}

	if req.PesapalEnv != "" {
		pesapalConfig["environment"] = req.PesapalEnv
	} else {
		pesapalConfig["environment"] = "sandbox" // Default
	}

	if err := h.providerConfig.SetMerchantConfig(merchantID, "pesapal", pesapalConfig); err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to set Pesapal configuration", err)
		return
	}

	// Activate the provider so requests can select it immediately
	registeredName, err := h.registerMerchantProvider(merchantID, "pesapal", pesapalConfig)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to register Pesapal provider", err)
		return
	}

	responseData := map[string]any{
		"merchantId":          merchantID,
		"configuredProviders": []string{"pesapal"},
		"providerName":        registeredName,
		"message":             "Provider configurations set successfully",
	}

	response.Success(w, http.StatusOK, "Configuration updated", responseData)
}

// registerMerchantProvider makes the merchant's gateway instance
// addressable as MERCHANT_gateway. Payment endpoints prefer that instance
// automatically for the authenticated merchant.
func (h *ConfigHandler) registerMerchantProvider(merchantID, providerName string, cfg map[string]string) (string, error) {
	name := strings.ToUpper(merchantID) + "_" + strings.ToLower(providerName)

	if err := h.paymentService.AddProvider(name, cfg); err != nil {
		return "", err
	}
	return name, nil
}

// GetMerchantConfig returns the stored configuration for the authenticated
// merchant with credentials masked
func (h *ConfigHandler) GetMerchantConfig(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "Merchant identity is required", nil)
		return
	}

	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = "pesapal"
	}

	cfg, err := h.providerConfig.GetMerchantConfig(merchantID, providerName)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Configuration not found", err)
		return
	}

	// Mask sensitive values before they leave the service
	publicConfig := make(map[string]string)
	for key, value := range cfg {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "key") || strings.Contains(lower, "secret") || strings.Contains(lower, "password") {
			if len(value) > 8 {
				publicConfig[key] = value[:4] + "****" + value[len(value)-4:]
			} else {
				publicConfig[key] = "****"
			}
		} else {
			publicConfig[key] = value
		}
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"provider":   providerName,
		"config":     publicConfig,
	}

	response.Success(w, http.StatusOK, "Configuration retrieved", responseData)
}

// DeleteMerchantConfig deletes the authenticated merchant's stored gateway
// configuration. Already-running provider instances keep their credentials
// until restart.
func (h *ConfigHandler) DeleteMerchantConfig(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusBadRequest, "Merchant identity is required", nil)
		return
	}

	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = "pesapal"
	}

	if err := h.providerConfig.DeleteMerchantConfig(merchantID, providerName); err != nil {
		response.Error(w, http.StatusNotFound, "Failed to delete configuration", err)
		return
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"provider":   providerName,
		"message":    "Configuration deleted successfully",
	}

	response.Success(w, http.StatusOK, "Configuration deleted", responseData)
}

// GetRequiredConfig lists the configuration fields a gateway needs before
// it can be activated
func (h *ConfigHandler) GetRequiredConfig(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = "pesapal"
	}
	providerName = strings.ToLower(providerName)

	environment := r.URL.Query().Get("environment")
	if environment != "production" {
		environment = "sandbox"
	}

	p, err := provider.CreateProvider(providerName)
	if err != nil {
		response.Error(w, http.StatusNotFound, "Unknown provider", err)
		return
	}

	responseData := map[string]any{
		"provider":    providerName,
		"environment": environment,
		"fields":      p.GetRequiredConfig(environment),
	}

	response.Success(w, http.StatusOK, "Required configuration retrieved", responseData)
}

// GetStats returns configuration storage statistics
func (h *ConfigHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.providerConfig.GetStats()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get statistics", err)
		return
	}

	response.Success(w, http.StatusOK, "Statistics retrieved", stats)
}
