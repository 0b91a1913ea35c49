package middle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/pesapay/infra/opensearch"
)

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	startTime  time.Time
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
		startTime:      time.Now(),
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// PaymentLoggingMiddleware creates a middleware for logging payment requests/responses
func PaymentLoggingMiddleware(logger *opensearch.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip logging for non-payment endpoints
			if !isPaymentEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Generate request ID
			requestID := uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)

			// Resolve provider from the query or the URL path
			provider := r.URL.Query().Get("provider")
			if provider == "" {
				provider = extractProviderFromURL(r.URL.Path)
			}
			if provider == "" {
				provider = "default"
			}

			// This middleware runs outside the auth layer, so the merchant
			// comes from the header; the context covers authed subrouters.
			merchantID := strings.ToUpper(strings.TrimSpace(r.Header.Get("X-Merchant-ID")))
			if merchantID == "" {
				merchantID = GetMerchantIDFromContext(r.Context())
			}

			// Capture request body
			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			}

			// Create response writer wrapper
			rw := newResponseWriter(w)

			// Process request
			next.ServeHTTP(rw, r)

			paymentLog := opensearch.PaymentLog{
				Timestamp:  rw.startTime,
				MerchantID: merchantID,
				Provider:   provider,
				Method:     r.Method,
				Endpoint:   r.URL.Path,
				RequestID:  requestID,
				UserAgent:  r.UserAgent(),
				ClientIP:   GetClientIP(r),
				Request: opensearch.RequestLog{
					Body: opensearch.SanitizeForLog(string(requestBody)),
				},
				Response: opensearch.ResponseLog{
					StatusCode:       rw.statusCode,
					Body:             opensearch.SanitizeForLog(rw.body.String()),
					ProcessingTimeMs: time.Since(rw.startTime).Milliseconds(),
				},
			}

			// Extract payment information from request/response
			if paymentInfo := extractPaymentInfo(string(requestBody), rw.body.String()); paymentInfo != nil {
				paymentLog.PaymentInfo = *paymentInfo
			}

			// Extract error information if response indicates error
			if rw.statusCode >= 400 {
				if errorInfo := extractErrorInfo(rw.body.String()); errorInfo != nil {
					paymentLog.Error = *errorInfo
				}
			}

			// Index asynchronously to avoid blocking the response
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				_ = logger.LogPaymentRequest(ctx, paymentLog)
			}()
		})
	}
}

// isPaymentEndpoint checks if the URL path is a payment-related endpoint
func isPaymentEndpoint(path string) bool {
	paymentPaths := []string{
		"/v1/payments",
		"/v1/ipn",
		"/v1/callback",
		"/v1/cancel",
		"/v1/webhooks",
		"/webhooks",
		"/callback",
	}

	for _, paymentPath := range paymentPaths {
		if strings.HasPrefix(path, paymentPath) {
			return true
		}
	}

	return false
}

// extractProviderFromURL extracts the provider name from the URL path
func extractProviderFromURL(path string) string {
	// URL patterns:
	// /v1/callback/{provider} -> extract provider
	// /v1/cancel/{provider}   -> extract provider
	// /v1/webhooks/{provider} -> extract provider
	// /webhooks/{provider}    -> extract provider
	// /callback/{provider}    -> extract provider

	segments := strings.Split(strings.Trim(path, "/"), "/")

	if len(segments) >= 3 && segments[0] == "v1" {
		switch segments[1] {
		case "callback", "cancel", "webhooks":
			return segments[2]
		}
	}

	if len(segments) >= 2 {
		switch segments[0] {
		case "callback", "webhooks":
			return segments[1]
		}
	}

	return ""
}

// extractPaymentInfo extracts payment information from request/response bodies
func extractPaymentInfo(requestBody, responseBody string) *opensearch.PaymentInfo {
	paymentInfo := &opensearch.PaymentInfo{}

	// Try to extract from request body first
	if requestBody != "" {
		var requestData map[string]any
		if err := json.Unmarshal([]byte(requestBody), &requestData); err == nil {
			// Amount rides as a decimal string in order requests
			if amount, ok := requestData["amount"].(string); ok {
				if parsed, err := strconv.ParseFloat(amount, 64); err == nil {
					paymentInfo.Amount = parsed
				}
			}
			if currency, ok := requestData["currency"].(string); ok {
				paymentInfo.Currency = currency
			}
			if billing, ok := requestData["billing"].(map[string]any); ok {
				if email, ok := billing["email"].(string); ok {
					paymentInfo.CustomerEmail = email
				}
			}
			if id, ok := requestData["id"].(string); ok {
				paymentInfo.PaymentID = id
			}
		}
	}

	// Try to extract from response body
	if responseBody != "" {
		var responseData map[string]any
		if err := json.Unmarshal([]byte(responseBody), &responseData); err == nil {
			// Check for nested data structure
			if data, ok := responseData["data"].(map[string]any); ok {
				if trackingID, ok := data["trackingId"].(string); ok {
					paymentInfo.TrackingID = trackingID
				}
				if reference, ok := data["merchantReference"].(string); ok && paymentInfo.PaymentID == "" {
					paymentInfo.PaymentID = reference
				}
				if status, ok := data["status"].(string); ok {
					paymentInfo.Status = status
				}
			}
		}
	}

	// Return nil if no useful payment information was found
	if paymentInfo.PaymentID == "" && paymentInfo.TrackingID == "" &&
		paymentInfo.Amount == 0 && paymentInfo.Currency == "" {
		return nil
	}

	return paymentInfo
}

// extractErrorInfo extracts error information from response body
func extractErrorInfo(responseBody string) *opensearch.ErrorInfo {
	if responseBody == "" {
		return nil
	}

	var responseData map[string]any
	if err := json.Unmarshal([]byte(responseBody), &responseData); err != nil {
		return nil
	}

	errorInfo := &opensearch.ErrorInfo{}

	// Try different error formats
	if errorMsg, ok := responseData["error"].(string); ok {
		errorInfo.Message = errorMsg
	} else if errorMsg, ok := responseData["message"].(string); ok {
		errorInfo.Message = errorMsg
	}

	if data, ok := responseData["data"].(map[string]any); ok {
		if errorCode, ok := data["errorCode"].(string); ok {
			errorInfo.Code = errorCode
		}
	}
	if errorInfo.Code == "" {
		if code, ok := responseData["code"].(float64); ok && code >= 400 {
			errorInfo.Code = strconv.Itoa(int(code))
		}
	}

	// Return nil if no error information found
	if errorInfo.Code == "" && errorInfo.Message == "" {
		return nil
	}

	return errorInfo
}

// LoggingStatsMiddleware creates middleware for collecting logging statistics
func LoggingStatsMiddleware(logger *opensearch.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if this is a stats request
			if r.URL.Path == "/v1/stats" && r.Method == "GET" {
				handleStatsRequest(w, r, logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// handleStatsRequest handles requests for logging statistics
func handleStatsRequest(w http.ResponseWriter, r *http.Request, logger *opensearch.Logger) {
	provider := r.URL.Query().Get("provider")
	hoursStr := r.URL.Query().Get("hours")

	merchantID := strings.ToUpper(strings.TrimSpace(r.Header.Get("X-Merchant-ID")))
	if merchantID == "" {
		merchantID = GetMerchantIDFromContext(r.Context())
	}

	hours := 24 // Default to 24 hours
	if hoursStr != "" {
		if h, err := strconv.Atoi(hoursStr); err == nil && h > 0 {
			hours = h
		}
	}

	if provider == "" {
		http.Error(w, "provider parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stats, err := logger.GetProviderStats(ctx, merchantID, provider, hours)
	if err != nil {
		http.Error(w, "Failed to get stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, "Failed to encode stats", http.StatusInternalServerError)
		return
	}
}
