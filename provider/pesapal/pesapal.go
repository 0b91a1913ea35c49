package pesapal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/pesapay/provider"
)

const (
	// API URLs
	apiSandboxURL    = "https://cybqa.pesapal.com/pesapalv3/api"
	apiProductionURL = "https://pay.pesapal.com/v3/api"

	// API Endpoints
	endpointRequestToken      = "/Auth/RequestToken"
	endpointRegisterIPN       = "/URLSetup/RegisterIPN"
	endpointIPNList           = "/URLSetup/GetIpnList"
	endpointSubmitOrder       = "/Transactions/SubmitOrderRequest"
	endpointTransactionStatus = "/Transactions/GetTransactionStatus"
	endpointRefund            = "/Transactions/RefundRequest"
	endpointCancelOrder       = "/Transactions/CancelOrder"

	// Default Values
	defaultCurrency = "KES"
	defaultBranch   = "Main Branch"
	defaultIPNName  = "DefaultIPN"
	defaultTimeout  = 30 * time.Second

	// How many token entries the in-memory store may hold. One entry per
	// credential pair, so this is generous.
	tokenCacheSize = 32
)

// PesapalProvider implements the provider.PaymentProvider interface for
// Pesapal API 3.0. Pesapal is a hosted-checkout gateway: SubmitOrder
// returns a redirect URL, the buyer pays on Pesapal's pages, and the
// outcome arrives on a registered IPN endpoint.
type PesapalProvider struct {
	consumerKey     string
	consumerSecret  string
	callbackBaseURL string
	environment     string
	isProduction    bool
	baseURL         string
	notificationID  string
	branch          string
	client          *provider.ProviderHTTPClient
	tokens          *tokenManager
}

// NewProvider creates a new Pesapal payment provider
func NewProvider() provider.PaymentProvider {
	return &PesapalProvider{}
}

// Initialize sets up the Pesapal payment provider with authentication
// credentials. Missing credentials or callback base URL fail here, before
// any network traffic.
func (p *PesapalProvider) Initialize(conf map[string]string) error {
	normalized := make(map[string]string, len(conf)+1)
	for key, value := range conf {
		normalized[key] = value
	}
	if normalized["environment"] == "" {
		normalized["environment"] = "sandbox"
	}

	if err := p.ValidateConfig(normalized); err != nil {
		return err
	}

	p.consumerKey = normalized["consumerKey"]
	p.consumerSecret = normalized["consumerSecret"]
	p.callbackBaseURL = strings.TrimRight(normalized["callbackBaseUrl"], "/")
	p.environment = normalized["environment"]
	p.isProduction = p.environment == "production"
	if p.isProduction {
		p.baseURL = apiProductionURL
	} else {
		p.baseURL = apiSandboxURL
	}

	p.notificationID = normalized["notificationId"]
	p.branch = normalized["branch"]
	if p.branch == "" {
		p.branch = defaultBranch
	}

	httpConfig := provider.CreateHTTPClientConfig(p.baseURL, p.isProduction, defaultTimeout)
	if v := normalized["retryAttempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			httpConfig.Retry.Attempts = n
		}
	}
	if v := normalized["retryDelay"]; v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			httpConfig.Retry.Delay = time.Duration(ms) * time.Millisecond
		}
	}
	if normalized["skipClientErrorRetry"] == "true" {
		httpConfig.Policy = provider.SkipClientErrorsPolicy
	}
	if normalized["enableBreaker"] == "true" {
		httpConfig.EnableBreaker = true
	}
	p.client = provider.NewProviderHTTPClient(httpConfig)

	store, err := p.buildTokenStore(normalized)
	if err != nil {
		return err
	}
	p.tokens = newTokenManager(p.client, p.consumerKey, p.consumerSecret, store,
		provider.TokenCacheKey("pesapal", p.environment, p.consumerKey))

	return nil
}

// buildTokenStore assembles the token store from the cache and encryption
// toggles. Caching is on unless explicitly disabled; encryption wraps
// whatever store is configured.
func (p *PesapalProvider) buildTokenStore(conf map[string]string) (provider.TokenStore, error) {
	if conf["useCache"] == "false" {
		return nil, nil
	}

	var store provider.TokenStore
	if addr := conf["redisAddr"]; addr != "" {
		db := 0
		if v := conf["redisDb"]; v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				db = n
			}
		}
		store = provider.NewRedisTokenStore(addr, conf["redisPassword"], db)
	} else {
		store = provider.NewInMemoryTokenStore(tokenCacheSize)
	}

	if conf["encryptTokens"] == "true" {
		key := conf["encryptionKey"]
		if key == "" {
			return nil, provider.NewConfigurationError("pesapal: encryptionKey is required when encryptTokens is enabled")
		}
		store = provider.NewEncryptedTokenStore(store, provider.NewTokenEncryptor(key))
	}

	return store, nil
}

// GetRequiredConfig returns the configuration fields required by Pesapal
func (p *PesapalProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "consumerKey",
			Required:    true,
			Type:        "string",
			Description: "Pesapal consumer key from the merchant dashboard",
			Example:     "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
			MinLength:   8,
		},
		{
			Key:         "consumerSecret",
			Required:    true,
			Type:        "string",
			Description: "Pesapal consumer secret from the merchant dashboard",
			Example:     "osGQ364R49cXKeOYSpaOnT++rHs=",
			MinLength:   8,
		},
		{
			Key:         "callbackBaseUrl",
			Required:    true,
			Type:        "url",
			Pattern:     `^https?://`,
			Description: "Base URL used to derive the buyer's return and cancellation URLs",
			Example:     "https://myapp.example.com",
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Pattern:     "^(sandbox|production)$",
			Description: "Target environment (sandbox or production)",
			Example:     "sandbox",
		},
	}
}

// ValidateConfig validates the provided configuration against provider requirements
func (p *PesapalProvider) ValidateConfig(config map[string]string) error {
	return provider.ValidateConfigFields("pesapal", config, p.GetRequiredConfig(config["environment"]))
}

// RegisterNotification registers an IPN endpoint with Pesapal and returns
// the registration the gateway assigned to it. The name is a client-side
// label only; Pesapal stores just the URL.
func (p *PesapalProvider) RegisterNotification(ctx context.Context, request provider.NotificationRequest) (*provider.IPNRegistration, error) {
	if strings.TrimSpace(request.URL) == "" {
		return nil, provider.NewValidationError("pesapal: notification URL is required")
	}
	if request.Name == "" {
		request.Name = defaultIPNName
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointRegisterIPN,
		Headers:  p.authHeaders(token),
		Body: registerIPNRequest{
			URL:                 request.URL,
			IPNNotificationType: "POST",
		},
	})
	if err != nil {
		return nil, err
	}

	var result registerIPNResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "IPN registration", err)
	}
	if apiErr := result.Error; !apiErr.isZero() {
		return nil, p.apiFailure(resp, apiErr, "IPN registration")
	}
	if result.IPNID == "" {
		return nil, p.apiFailure(resp, nil, "IPN registration")
	}

	return &provider.IPNRegistration{
		ID:               result.IPNID,
		URL:              result.URL,
		Name:             request.Name,
		NotificationType: result.IPNNotificationTypeDesc,
		Status:           result.IPNStatusDesc,
		CreatedDate:      result.CreatedDate,
	}, nil
}

// ListNotifications returns the IPN endpoints registered for these credentials
func (p *PesapalProvider) ListNotifications(ctx context.Context) ([]provider.IPNRegistration, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "GET",
		Endpoint: endpointIPNList,
		Headers:  p.authHeaders(token),
	})
	if err != nil {
		return nil, err
	}

	var result []registerIPNResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "IPN list", err)
	}

	registrations := make([]provider.IPNRegistration, 0, len(result))
	for _, item := range result {
		registrations = append(registrations, provider.IPNRegistration{
			ID:               item.IPNID,
			URL:              item.URL,
			NotificationType: item.IPNNotificationTypeDesc,
			Status:           item.IPNStatusDesc,
			CreatedDate:      item.CreatedDate,
		})
	}
	return registrations, nil
}

// SubmitOrder submits a payment order and returns the redirect URL for the
// hosted payment page. Validation failures surface before any network call.
func (p *PesapalProvider) SubmitOrder(ctx context.Context, request provider.OrderRequest) (*provider.OrderResponse, error) {
	amount, err := p.validateOrderRequest(&request)
	if err != nil {
		return nil, err
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointSubmitOrder,
		Headers:  p.authHeaders(token),
		Body:     p.buildOrderPayload(request, amount),
	})
	if err != nil {
		return nil, err
	}

	var result submitOrderResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "order submission", err)
	}
	if apiErr := result.Error; !apiErr.isZero() {
		return nil, p.apiFailure(resp, apiErr, "order submission")
	}
	if result.OrderTrackingID == "" || result.RedirectURL == "" {
		return nil, p.apiFailure(resp, nil, "order submission")
	}

	return &provider.OrderResponse{
		Success:           true,
		Status:            provider.StatusPending,
		TrackingID:        result.OrderTrackingID,
		MerchantReference: result.MerchantReference,
		RedirectURL:       result.RedirectURL,
		Message:           "Order submitted, forward the buyer to the redirect URL",
		ProviderResponse:  result,
	}, nil
}

// GetTransactionStatus retrieves the current settlement state of an order
func (p *PesapalProvider) GetTransactionStatus(ctx context.Context, trackingID string) (*provider.TransactionStatus, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, provider.NewValidationError("pesapal: trackingID is required")
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:      "GET",
		Endpoint:    endpointTransactionStatus,
		Headers:     p.authHeaders(token),
		QueryParams: map[string]string{"orderTrackingId": trackingID},
	})
	if err != nil {
		return nil, err
	}

	var result transactionStatusResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "status lookup", err)
	}
	if apiErr := result.Error; !apiErr.isZero() {
		return nil, p.apiFailure(resp, apiErr, "status lookup")
	}

	return p.mapToTransactionStatus(trackingID, result), nil
}

// RefundPayment requests a refund for a settled payment. The confirmation
// code comes from the transaction status of the original payment.
func (p *PesapalProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if strings.TrimSpace(request.ConfirmationCode) == "" {
		return nil, provider.NewValidationError("pesapal: confirmationCode is required for refund")
	}
	if request.Amount < 0 {
		return nil, provider.NewValidationError("pesapal: refund amount cannot be negative")
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointRefund,
		Headers:  p.authHeaders(token),
		Body: refundRequestPayload{
			ConfirmationCode: request.ConfirmationCode,
			Amount:           request.Amount,
			Username:         request.Username,
			Remarks:          request.Remarks,
		},
	})
	if err != nil {
		return nil, err
	}

	var result statusMessageResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "refund", err)
	}
	if apiErr := result.Error; !apiErr.isZero() {
		return nil, p.apiFailure(resp, apiErr, "refund")
	}

	now := time.Now()
	return &provider.RefundResponse{
		Success:    result.Status == "200",
		Status:     result.Status,
		Message:    result.Message,
		SystemTime: &now,
	}, nil
}

// CancelOrder cancels a pending order. Pesapal only allows cancellation
// while the order has not completed.
func (p *PesapalProvider) CancelOrder(ctx context.Context, trackingID string) (*provider.CancelResponse, error) {
	if strings.TrimSpace(trackingID) == "" {
		return nil, provider.NewValidationError("pesapal: trackingID is required")
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   "POST",
		Endpoint: endpointCancelOrder,
		Headers:  p.authHeaders(token),
		Body:     cancelOrderPayload{OrderTrackingID: trackingID},
	})
	if err != nil {
		return nil, err
	}

	var result statusMessageResponse
	if err := p.client.ParseJSONResponse(resp, &result); err != nil {
		return nil, p.malformedResponse(resp, "cancellation", err)
	}
	if apiErr := result.Error; !apiErr.isZero() {
		return nil, p.apiFailure(resp, apiErr, "cancellation")
	}

	return &provider.CancelResponse{
		Success: result.Status == "200",
		Status:  result.Status,
		Message: result.Message,
	}, nil
}

// ValidateWebhook checks the signature of an inbound IPN against the exact
// raw body bytes. A missing or malformed signature reports false; it never
// returns an error for bad input.
func (p *PesapalProvider) ValidateWebhook(ctx context.Context, body []byte, headers map[string]string) (bool, map[string]string, error) {
	if !VerifySignature(p.consumerSecret, headers, body) {
		return false, nil, nil
	}

	var note provider.Notification
	if err := json.Unmarshal(body, &note); err != nil {
		return false, nil, nil
	}

	return true, map[string]string{
		"trackingId":        note.TrackingID,
		"merchantReference": note.MerchantReference,
		"notificationType":  note.NotificationType,
	}, nil
}

// HandleNotification verifies an inbound IPN and looks up the transaction
// it refers to. A forged or unsigned notification surfaces as a signature
// error to the embedding application; the HTTP acknowledgment to Pesapal
// is the caller's concern and stays success-shaped either way.
func (p *PesapalProvider) HandleNotification(ctx context.Context, body []byte, headers map[string]string) (*provider.TransactionStatus, error) {
	valid, data, err := p.ValidateWebhook(ctx, body, headers)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, provider.NewSignatureError("pesapal: notification signature missing or mismatched")
	}
	if data["trackingId"] == "" {
		return nil, provider.NewValidationError("pesapal: notification carries no tracking id")
	}

	return p.GetTransactionStatus(ctx, data["trackingId"])
}

// validateOrderRequest checks required order fields and fills defaults.
// It returns the parsed amount so the payload builder does not parse twice.
func (p *PesapalProvider) validateOrderRequest(request *provider.OrderRequest) (float64, error) {
	if request.NotificationID == "" {
		request.NotificationID = p.notificationID
	}
	if request.NotificationID == "" {
		return 0, provider.NewValidationError("pesapal: notificationId is required; register an IPN endpoint first")
	}

	amount, err := strconv.ParseFloat(request.Amount, 64)
	if err != nil {
		return 0, provider.NewValidationError(fmt.Sprintf("pesapal: amount %q is not a number", request.Amount))
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, provider.NewValidationError("pesapal: amount must be a finite positive number")
	}

	if strings.TrimSpace(request.Description) == "" {
		return 0, provider.NewValidationError("pesapal: description is required")
	}

	if request.Billing == nil {
		return 0, provider.NewValidationError("pesapal: billing information is required")
	}
	if request.Billing.Email == "" && request.Billing.Phone == "" {
		return 0, provider.NewValidationError("pesapal: billing email or phone is required")
	}

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.Currency == "" {
		request.Currency = defaultCurrency
	}
	if request.Branch == "" {
		request.Branch = p.branch
	}
	if request.CallbackURL == "" {
		request.CallbackURL = p.callbackBaseURL + "/v1/callback/pesapal"
	}
	if request.CancellationURL == "" {
		request.CancellationURL = p.callbackBaseURL + "/v1/cancel/pesapal"
	}

	return amount, nil
}

// buildOrderPayload maps an order request to the Pesapal wire format
func (p *PesapalProvider) buildOrderPayload(request provider.OrderRequest, amount float64) submitOrderPayload {
	return submitOrderPayload{
		ID:              request.ID,
		Currency:        request.Currency,
		Amount:          amount,
		Description:     request.Description,
		CallbackURL:     request.CallbackURL,
		CancellationURL: request.CancellationURL,
		NotificationID:  request.NotificationID,
		Branch:          request.Branch,
		BillingAddress: billingAddressPayload{
			EmailAddress: request.Billing.Email,
			PhoneNumber:  request.Billing.Phone,
			CountryCode:  request.Billing.CountryCode,
			FirstName:    request.Billing.FirstName,
			MiddleName:   request.Billing.MiddleName,
			LastName:     request.Billing.LastName,
			Line1:        request.Billing.Line1,
			Line2:        request.Billing.Line2,
			City:         request.Billing.City,
			State:        request.Billing.State,
			PostalCode:   request.Billing.PostalCode,
			ZipCode:      request.Billing.ZipCode,
		},
	}
}

// mapToTransactionStatus maps a Pesapal status lookup to the hub format
func (p *PesapalProvider) mapToTransactionStatus(trackingID string, result transactionStatusResponse) *provider.TransactionStatus {
	status := provider.StatusFromCode(result.StatusCode)
	return &provider.TransactionStatus{
		Success:           status == provider.StatusCompleted,
		Status:            status,
		StatusCode:        result.StatusCode,
		Description:       result.PaymentStatusDescription,
		TrackingID:        trackingID,
		MerchantReference: result.MerchantReference,
		Amount:            result.Amount,
		Currency:          result.Currency,
		PaymentMethod:     result.PaymentMethod,
		PaymentAccount:    result.PaymentAccount,
		ConfirmationCode:  result.ConfirmationCode,
		CreatedDate:       result.CreatedDate,
		Message:           result.Message,
		ProviderResponse:  result,
	}
}

// Helper methods

func (p *PesapalProvider) authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// malformedResponse covers a 2xx response whose body is not the JSON shape
// the endpoint documents
func (p *PesapalProvider) malformedResponse(resp *provider.HTTPResponse, op string, cause error) error {
	return provider.NewGatewayError(
		fmt.Sprintf("pesapal: %s returned a malformed response", op),
		resp.StatusCode, resp.RawBody, cause,
	)
}

// apiFailure covers a response that is valid JSON but reports a gateway
// side failure, which Pesapal delivers with HTTP 200 and an error object
func (p *PesapalProvider) apiFailure(resp *provider.HTTPResponse, apiErr *apiError, op string) error {
	message := fmt.Sprintf("pesapal: %s failed", op)
	if apiErr != nil && apiErr.Message != "" {
		message = fmt.Sprintf("pesapal: %s failed: %s", op, apiErr.Message)
	}

	var body any = resp.RawBody
	var parsed map[string]any
	if err := json.Unmarshal(resp.Body, &parsed); err == nil {
		body = parsed
	}

	return provider.NewGatewayError(message, resp.StatusCode, body, nil)
}

// Wire types

// apiError is the error object Pesapal embeds in response bodies, often
// alongside HTTP 200
type apiError struct {
	Type    string `json:"error_type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) isZero() bool {
	return e == nil || (e.Type == "" && e.Code == "" && e.Message == "")
}

type registerIPNRequest struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
}

type registerIPNResponse struct {
	URL                     string    `json:"url"`
	CreatedDate             string    `json:"created_date"`
	IPNID                   string    `json:"ipn_id"`
	NotificationType        int       `json:"notification_type"`
	IPNNotificationTypeDesc string    `json:"ipn_notification_type_description"`
	IPNStatus               int       `json:"ipn_status"`
	IPNStatusDesc           string    `json:"ipn_status_decription"` // sic, Pesapal misspells this field
	Status                  string    `json:"status"`
	Error                   *apiError `json:"error"`
}

type submitOrderPayload struct {
	ID              string                `json:"id"`
	Currency        string                `json:"currency"`
	Amount          float64               `json:"amount"`
	Description     string                `json:"description"`
	CallbackURL     string                `json:"callback_url"`
	CancellationURL string                `json:"cancellation_url,omitempty"`
	NotificationID  string                `json:"notification_id"`
	Branch          string                `json:"branch,omitempty"`
	BillingAddress  billingAddressPayload `json:"billing_address"`
}

type billingAddressPayload struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Line1        string `json:"line_1,omitempty"`
	Line2        string `json:"line_2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	ZipCode      string `json:"zip_code,omitempty"`
}

type submitOrderResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Status            string    `json:"status"`
	Error             *apiError `json:"error"`
}

type transactionStatusResponse struct {
	PaymentMethod            string    `json:"payment_method"`
	Amount                   float64   `json:"amount"`
	CreatedDate              string    `json:"created_date"`
	ConfirmationCode         string    `json:"confirmation_code"`
	PaymentStatusDescription string    `json:"payment_status_description"`
	Description              string    `json:"description"`
	Message                  string    `json:"message"`
	PaymentAccount           string    `json:"payment_account"`
	CallBackURL              string    `json:"call_back_url"`
	StatusCode               int       `json:"status_code"`
	MerchantReference        string    `json:"merchant_reference"`
	Currency                 string    `json:"currency"`
	Status                   string    `json:"status"`
	Error                    *apiError `json:"error"`
}

type refundRequestPayload struct {
	ConfirmationCode string  `json:"confirmation_code"`
	Amount           float64 `json:"amount,omitempty"`
	Username         string  `json:"username,omitempty"`
	Remarks          string  `json:"remarks,omitempty"`
}

type cancelOrderPayload struct {
	OrderTrackingID string `json:"order_tracking_id"`
}

// statusMessageResponse is the minimal {status, message} body shared by the
// refund and cancel endpoints
type statusMessageResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Error   *apiError `json:"error"`
}

