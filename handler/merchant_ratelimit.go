package handler

import (
	"net/http"

	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/response"
)

// MerchantRateLimitHandler handles merchant rate limiting operations
type MerchantRateLimitHandler struct {
	rateLimiter *middle.MerchantRateLimiter
}

// NewMerchantRateLimitHandler creates a new merchant rate limit handler
func NewMerchantRateLimitHandler(rateLimiter *middle.MerchantRateLimiter) *MerchantRateLimitHandler {
	return &MerchantRateLimitHandler{
		rateLimiter: rateLimiter,
	}
}

// GetMerchantStats returns rate limiting statistics for the authenticated merchant
func (h *MerchantRateLimitHandler) GetMerchantStats(w http.ResponseWriter, r *http.Request) {
	merchantID := middle.GetMerchantIDFromContext(r.Context())
	if merchantID == "" {
		response.Error(w, http.StatusUnauthorized, "Merchant identity not found in token", nil)
		return
	}

	stats := h.rateLimiter.GetMerchantRateLimitStats(merchantID)

	response.WriteJSON(w, http.StatusOK, response.Response{
		Success: true,
		Message: "Merchant rate limiting statistics retrieved successfully",
		Data:    stats,
	})
}
