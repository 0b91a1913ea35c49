package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/pesapay/infra/logger"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/response"
	"github.com/mstgnz/pesapay/provider"
	"github.com/mstgnz/pesapay/provider/pesapal"
)

// PaymentServiceInterface defines the interface for payment operations
type PaymentServiceInterface interface {
	SubmitOrder(ctx context.Context, providerName string, request provider.OrderRequest) (*provider.OrderResponse, error)
	GetTransactionStatus(ctx context.Context, providerName, trackingID string) (*provider.TransactionStatus, error)
	RefundPayment(ctx context.Context, providerName string, request provider.RefundRequest) (*provider.RefundResponse, error)
	CancelOrder(ctx context.Context, providerName, trackingID string) (*provider.CancelResponse, error)
	RegisterNotification(ctx context.Context, providerName string, request provider.NotificationRequest) (*provider.IPNRegistration, error)
	ListNotifications(ctx context.Context, providerName string) ([]provider.IPNRegistration, error)
	ValidateWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (bool, map[string]string, error)
	ProviderNameFor(merchantID, name string) string
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
	}
}

// providerName resolves the gateway for a request: the URL path parameter
// where the route carries one, the "provider" query parameter otherwise.
// Empty selects the service default.
func providerName(r *http.Request) string {
	if name := chi.URLParam(r, "provider"); name != "" {
		return name
	}
	return r.URL.Query().Get("provider")
}

// scopedProviderName prefers the authenticated merchant's own gateway
// instance over the shared default when one has been activated. Public
// callback and webhook routes carry no merchant and resolve unscoped.
func (h *PaymentHandler) scopedProviderName(r *http.Request) string {
	return h.paymentService.ProviderNameFor(middle.GetMerchantIDFromContext(r.Context()), providerName(r))
}

// statusFromError maps a service error to an HTTP status code. Validation
// failures are the caller's fault, signature failures are unauthorized,
// gateway failures surface as bad gateway; everything else is internal.
func statusFromError(err error) int {
	if pe, ok := provider.AsError(err); ok {
		switch pe.Kind {
		case provider.ErrKindValidation:
			return http.StatusBadRequest
		case provider.ErrKindSignature:
			return http.StatusUnauthorized
		case provider.ErrKindGateway:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

// SubmitOrder handles order submission requests
func (h *PaymentHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	// Parse the order request
	var req provider.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.ClientIP = middle.GetClientIP(r)
	req.ClientUserAgent = r.Header.Get("User-Agent")

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	// Submit the order
	resp, err := h.paymentService.SubmitOrder(ctx, h.scopedProviderName(r), req)
	if err != nil {
		response.Error(w, statusFromError(err), "Order submission failed", err)
		return
	}

	// The redirect URL in the response is where the buyer completes payment
	response.Success(w, http.StatusOK, "Order submitted", resp)
}

// GetPaymentStatus handles transaction status requests
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	trackingID := chi.URLParam(r, "trackingID")
	if trackingID == "" {
		response.Error(w, http.StatusBadRequest, "Missing tracking ID", nil)
		return
	}

	resp, err := h.paymentService.GetTransactionStatus(ctx, h.scopedProviderName(r), trackingID)
	if err != nil {
		response.Error(w, statusFromError(err), "Failed to get transaction status", err)
		return
	}

	response.Success(w, http.StatusOK, "Transaction status retrieved", resp)
}

// CancelPayment handles order cancellation requests. Only orders the
// gateway still holds as pending or failed can be cancelled.
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	trackingID := chi.URLParam(r, "trackingID")
	if trackingID == "" {
		response.Error(w, http.StatusBadRequest, "Missing tracking ID", nil)
		return
	}

	resp, err := h.paymentService.CancelOrder(ctx, h.scopedProviderName(r), trackingID)
	if err != nil {
		response.Error(w, statusFromError(err), "Failed to cancel order", err)
		return
	}

	response.Success(w, http.StatusOK, "Order cancelled", resp)
}

// RefundPayment handles refund requests. The confirmation code comes from
// the transaction status of the completed payment being refunded.
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req provider.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	resp, err := h.paymentService.RefundPayment(ctx, h.scopedProviderName(r), req)
	if err != nil {
		response.Error(w, statusFromError(err), "Failed to refund payment", err)
		return
	}

	response.Success(w, http.StatusOK, "Refund submitted", resp)
}

// RegisterIPN registers a notification URL with the gateway. Orders cannot
// be submitted until at least one notification URL is registered.
func (h *PaymentHandler) RegisterIPN(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req provider.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	resp, err := h.paymentService.RegisterNotification(ctx, h.scopedProviderName(r), req)
	if err != nil {
		response.Error(w, statusFromError(err), "Failed to register notification URL", err)
		return
	}

	response.Success(w, http.StatusOK, "Notification URL registered", resp)
}

// ListIPNs lists the notification URLs registered with the gateway
func (h *PaymentHandler) ListIPNs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resp, err := h.paymentService.ListNotifications(ctx, h.scopedProviderName(r))
	if err != nil {
		response.Error(w, statusFromError(err), "Failed to list notification URLs", err)
		return
	}

	response.Success(w, http.StatusOK, "Notification URLs retrieved", resp)
}

// HandleCallback handles the buyer returning from the gateway's hosted
// payment page. The gateway appends OrderTrackingId and
// OrderMerchantReference to the callback URL; the transaction status is
// fetched so the buyer lands with a settled outcome. When the request
// carries successUrl/errorUrl query parameters the buyer is forwarded
// there, otherwise the status is returned as JSON.
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	trackingID := r.URL.Query().Get("OrderTrackingId")
	if trackingID == "" {
		response.Error(w, http.StatusBadRequest, "Missing OrderTrackingId", nil)
		return
	}
	merchantRef := r.URL.Query().Get("OrderMerchantReference")

	status, err := h.paymentService.GetTransactionStatus(ctx, providerName(r), trackingID)
	if err != nil {
		if errorURL := r.URL.Query().Get("errorUrl"); errorURL != "" {
			h.redirect(w, r, errorURL, map[string]string{
				"trackingId":        trackingID,
				"merchantReference": merchantRef,
				"error":             err.Error(),
			})
			return
		}
		response.Error(w, statusFromError(err), "Failed to verify payment", err)
		return
	}

	params := map[string]string{
		"trackingId":        status.TrackingID,
		"merchantReference": status.MerchantReference,
		"status":            string(status.Status),
	}

	if status.Status == provider.StatusCompleted {
		if successURL := r.URL.Query().Get("successUrl"); successURL != "" {
			params["confirmationCode"] = status.ConfirmationCode
			h.redirect(w, r, successURL, params)
			return
		}
		response.Success(w, http.StatusOK, "Payment completed", status)
		return
	}

	// Pending, failed, reversed or invalid: the buyer still needs to land
	// somewhere, the target page branches on the status parameter
	if errorURL := r.URL.Query().Get("errorUrl"); errorURL != "" {
		params["error"] = status.Description
		h.redirect(w, r, errorURL, params)
		return
	}
	response.Success(w, http.StatusOK, "Payment not completed", status)
}

// HandleCancelReturn handles the buyer returning after abandoning the
// gateway's payment page. The order itself stays open on the gateway side;
// cancelling it is a separate call.
func (h *PaymentHandler) HandleCancelReturn(w http.ResponseWriter, r *http.Request) {
	trackingID := r.URL.Query().Get("OrderTrackingId")
	merchantRef := r.URL.Query().Get("OrderMerchantReference")

	if returnURL := r.URL.Query().Get("returnUrl"); returnURL != "" {
		h.redirect(w, r, returnURL, map[string]string{
			"cancelled":         "true",
			"trackingId":        trackingID,
			"merchantReference": merchantRef,
		})
		return
	}

	response.Success(w, http.StatusOK, "Checkout cancelled by buyer", map[string]string{
		"trackingId":        trackingID,
		"merchantReference": merchantRef,
	})
}

// redirect forwards the buyer to target with params merged into its query
// string. The target comes from the merchant's own request, never from
// gateway data.
func (h *PaymentHandler) redirect(w http.ResponseWriter, r *http.Request, target string, params map[string]string) {
	u, err := url.Parse(target)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid redirect URL", err)
		return
	}

	q := u.Query()
	for key, value := range params {
		if value != "" {
			q.Set(key, value)
		}
	}
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

// HandleWebhook handles inbound payment notifications (IPNs) from the
// gateway. The acknowledgment always travels with HTTP 200: gateways treat
// any other status as a delivery failure and re-send the event. A rejected
// signature or a failed status lookup only shows in the ack body's status
// field and in the logs.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	name := providerName(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logWebhookError(name, "body_read_failed", err)
		response.Ack(w, pesapal.BuildAck("", "", "", err))
		return
	}

	headers := make(map[string]string, len(r.Header))
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}

	valid, data, err := h.paymentService.ValidateWebhook(ctx, name, body, headers)
	if err != nil {
		h.logWebhookError(name, "validation_failed", err)
		response.Ack(w, pesapal.BuildAck("", "", "", err))
		return
	}
	if !valid {
		err := provider.NewSignatureError("notification signature missing or mismatched")
		h.logWebhookError(name, "invalid_signature", err)
		response.Ack(w, pesapal.BuildAck("", "", "", err))
		return
	}

	notificationType := data["notificationType"]
	trackingID := data["trackingId"]
	merchantRef := data["merchantReference"]

	if trackingID == "" {
		err := errors.New("notification carries no tracking id")
		h.logWebhookError(name, "missing_tracking_id", err)
		response.Ack(w, pesapal.BuildAck(notificationType, "", merchantRef, err))
		return
	}

	// The notification only says something changed; the settled state
	// comes from a status lookup
	status, err := h.paymentService.GetTransactionStatus(ctx, name, trackingID)
	if err != nil {
		h.logWebhookError(name, "status_check_failed", err)
		response.Ack(w, pesapal.BuildAck(notificationType, trackingID, merchantRef, err))
		return
	}

	h.logNotificationOutcome(name, status)
	response.Ack(w, pesapal.BuildAck(notificationType, trackingID, merchantRef, nil))
}

// logNotificationOutcome records the settled state a notification resolved
// to. Downstream systems consume these entries for fulfillment and
// reconciliation.
func (h *PaymentHandler) logNotificationOutcome(providerName string, status *provider.TransactionStatus) {
	fields := map[string]any{
		"tracking_id":        status.TrackingID,
		"merchant_reference": status.MerchantReference,
		"status":             status.Status,
		"amount":             status.Amount,
		"currency":           status.Currency,
	}

	switch status.Status {
	case provider.StatusCompleted:
		logger.Info("Payment completed via notification", logger.LogContext{
			Provider: providerName,
			Fields:   fields,
		})
	case provider.StatusFailed, provider.StatusInvalid:
		logger.Warn("Payment failed via notification", logger.LogContext{
			Provider: providerName,
			Fields:   fields,
		})
	case provider.StatusReversed:
		logger.Info("Payment reversed via notification", logger.LogContext{
			Provider: providerName,
			Fields:   fields,
		})
	default:
		logger.Info("Payment still pending after notification", logger.LogContext{
			Provider: providerName,
			Fields:   fields,
		})
	}
}

func (h *PaymentHandler) logWebhookError(providerName, errorType string, err error) {
	logger.Error("Webhook processing error", err, logger.LogContext{
		Provider: providerName,
		Fields: map[string]any{
			"error_type": errorType,
		},
	})
}
