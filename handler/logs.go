package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/opensearch"
	"github.com/mstgnz/pesapay/infra/response"
)

// LoggerInterface is the slice of the log store the logs endpoints need.
// *opensearch.Logger satisfies it.
type LoggerInterface interface {
	SearchLogs(ctx context.Context, merchantID, provider string, query map[string]any) ([]opensearch.PaymentLog, error)
	GetPaymentLogs(ctx context.Context, merchantID, provider, trackingID string) ([]opensearch.PaymentLog, error)
	GetRecentErrorLogs(ctx context.Context, merchantID, provider string, hours int) ([]opensearch.PaymentLog, error)
	GetProviderStats(ctx context.Context, merchantID, provider string, hours int) (map[string]any, error)
	SearchSystemLogs(ctx context.Context, filters map[string]any) ([]map[string]any, error)
	IsEnabled() bool
}

// LogsHandler handles logs related HTTP requests
type LogsHandler struct {
	logger LoggerInterface
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(logger LoggerInterface) *LogsHandler {
	return &LogsHandler{logger: logger}
}

func (h *LogsHandler) available(w http.ResponseWriter) bool {
	if h.logger == nil || !h.logger.IsEnabled() {
		response.Error(w, http.StatusServiceUnavailable, "Logging service not available", nil)
		return false
	}
	return true
}

// ListLogs lists payment logs for the authenticated merchant, filtered
// by gateway and optional query parameters.
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid or missing authentication", nil)
		return
	}

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}

	hours := parseWindowHours(r)

	// Every search is bounded in time; the rest of the filters stack on top.
	must := []map[string]any{
		{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
	}

	if paymentID := r.URL.Query().Get("paymentId"); paymentID != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"payment_info.payment_id": paymentID,
			},
		})
	}

	if trackingID := r.URL.Query().Get("trackingId"); trackingID != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"payment_info.tracking_id": trackingID,
			},
		})
	}

	if status := r.URL.Query().Get("status"); status != "" {
		must = append(must, map[string]any{
			"match": map[string]any{
				"payment_info.status": status,
			},
		})
	}

	if r.URL.Query().Get("errorsOnly") == "true" {
		must = append(must, map[string]any{
			"exists": map[string]any{
				"field": "error.code",
			},
		})
	}

	query := map[string]any{
		"bool": map[string]any{
			"must": must,
		},
	}

	logs, err := h.logger.SearchLogs(ctx, merchantID, provider, query)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to search logs", err)
		return
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"provider":   provider,
		"filters": map[string]any{
			"hours":      hours,
			"paymentId":  r.URL.Query().Get("paymentId"),
			"trackingId": r.URL.Query().Get("trackingId"),
			"status":     r.URL.Query().Get("status"),
			"errorsOnly": r.URL.Query().Get("errorsOnly") == "true",
		},
		"count": len(logs),
		"logs":  logs,
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", responseData)
}

// GetPaymentLogs retrieves logs for a specific order tracking ID
func (h *LogsHandler) GetPaymentLogs(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	merchantID := middle.GetMerchantIDFromContext(r.Context())
	provider := chi.URLParam(r, "provider")
	trackingID := chi.URLParam(r, "trackingID")

	if provider == "" {
		response.Error(w, http.StatusBadRequest, "provider parameter is required", nil)
		return
	}

	if trackingID == "" {
		response.Error(w, http.StatusBadRequest, "trackingID parameter is required", nil)
		return
	}

	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid or missing authentication", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	logs, err := h.logger.GetPaymentLogs(ctx, merchantID, provider, trackingID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve logs", err)
		return
	}

	responseData := map[string]any{
		"logs":        logs,
		"count":       len(logs),
		"merchant_id": merchantID,
		"provider":    provider,
		"tracking_id": trackingID,
	}

	response.Success(w, http.StatusOK, "Logs retrieved successfully", responseData)
}

// GetErrorLogs retrieves recent error logs for a provider
func (h *LogsHandler) GetErrorLogs(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid or missing authentication", nil)
		return
	}

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}

	hours := parseWindowHours(r)

	logs, err := h.logger.GetRecentErrorLogs(ctx, merchantID, provider, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to get error logs", err)
		return
	}

	responseData := map[string]any{
		"merchantId": merchantID,
		"provider":   provider,
		"hours":      hours,
		"count":      len(logs),
		"logs":       logs,
	}

	response.Success(w, http.StatusOK, "Error logs retrieved successfully", responseData)
}

// GetSystemLogs retrieves service logs with optional filtering. Unlike the
// payment log endpoints these are not scoped to the caller by index, so the
// merchant code is applied as a document filter instead.
func (h *LogsHandler) GetSystemLogs(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	merchantID := middle.GetMerchantIDFromContext(r.Context())
	level := r.URL.Query().Get("level")
	component := r.URL.Query().Get("component")
	hours := parseWindowHours(r)

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	filters := map[string]any{
		"hours": hours,
		"limit": limit,
	}

	if level != "" {
		filters["level"] = level
	}

	if component != "" {
		filters["component"] = component
	}

	if merchantID != "" {
		filters["merchant_id"] = merchantID
	}

	systemLogs, err := h.logger.SearchSystemLogs(ctx, filters)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve system logs", err)
		return
	}

	responseData := map[string]any{
		"logs":        systemLogs,
		"count":       len(systemLogs),
		"merchant_id": merchantID,
		"level":       level,
		"component":   component,
		"hours":       hours,
		"limit":       limit,
	}

	response.Success(w, http.StatusOK, "System logs retrieved successfully", responseData)
}

// GetLogStats retrieves log statistics
func (h *LogsHandler) GetLogStats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	merchantID := middle.GetMerchantIDFromContext(r.Context())
	provider := chi.URLParam(r, "provider")

	if provider == "" {
		response.Error(w, http.StatusBadRequest, "provider parameter is required", nil)
		return
	}

	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Invalid or missing authentication", nil)
		return
	}

	hours := parseWindowHours(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	stats, err := h.logger.GetProviderStats(ctx, merchantID, provider, hours)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to retrieve log statistics", err)
		return
	}

	responseData := map[string]any{
		"stats":       stats,
		"merchant_id": merchantID,
		"provider":    provider,
		"hours":       hours,
	}

	response.Success(w, http.StatusOK, "Log statistics retrieved successfully", responseData)
}
