package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/opensearch"
	"github.com/mstgnz/pesapay/infra/response"
	"github.com/mstgnz/pesapay/provider"
)

// AnalyticsSource is the slice of the log store the analytics endpoints
// read from. *opensearch.Logger satisfies it.
type AnalyticsSource interface {
	GetProviderStats(ctx context.Context, merchantID, provider string, hours int) (map[string]any, error)
	GetPaymentTrends(ctx context.Context, merchantID, provider string, hours int) ([]opensearch.TrendBucket, error)
	SearchLogs(ctx context.Context, merchantID, provider string, query map[string]any) ([]opensearch.PaymentLog, error)
	IsEnabled() bool
}

// AnalyticsHandler serves aggregated payment statistics from the log store
type AnalyticsHandler struct {
	source AnalyticsSource
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(source AnalyticsSource) *AnalyticsHandler {
	return &AnalyticsHandler{
		source: source,
	}
}

// DashboardStats represents the main dashboard statistics
type DashboardStats struct {
	TotalPayments      int     `json:"totalPayments"`
	SuccessfulPayments int     `json:"successfulPayments"`
	FailedPayments     int     `json:"failedPayments"`
	SuccessRate        float64 `json:"successRate"`
	TotalVolume        float64 `json:"totalVolume"`
	AvgResponseTime    float64 `json:"avgResponseTime"`
	WindowHours        int     `json:"windowHours"`
}

// ProviderStats represents provider-specific statistics
type ProviderStats struct {
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Transactions    int     `json:"transactions"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime float64 `json:"avgResponseTime"`
}

// RecentActivity represents one recent payment event
type RecentActivity struct {
	Type       string    `json:"type"`
	Provider   string    `json:"provider"`
	Amount     string    `json:"amount,omitempty"`
	Status     string    `json:"status"`
	Time       time.Time `json:"time"`
	TrackingID string    `json:"trackingId,omitempty"`
}

// statsSummary carries the counters extracted from a raw aggregation result
type statsSummary struct {
	total     float64
	success   float64
	errors    float64
	avgTimeMs float64
	volume    float64
}

func summarizeStats(raw map[string]any) statsSummary {
	var s statsSummary
	aggs, ok := raw["aggregations"].(map[string]any)
	if !ok {
		return s
	}

	s.total, _ = aggValue(aggs, "total_requests", "value")
	s.success, _ = aggValue(aggs, "success_count", "doc_count")
	s.errors, _ = aggValue(aggs, "error_count", "doc_count")
	s.avgTimeMs, _ = aggValue(aggs, "avg_processing_time", "value")
	s.volume, _ = aggValue(aggs, "total_volume", "value")
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseWindowHours(r *http.Request) int {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 168 {
			hours = n
		}
	}
	return hours
}

func (h *AnalyticsHandler) available(w http.ResponseWriter) bool {
	if h.source == nil || !h.source.IsEnabled() {
		response.Error(w, http.StatusServiceUnavailable, "Analytics unavailable: payment logging is disabled", nil)
		return false
	}
	return true
}

// GetDashboardStats returns traffic totals across all gateways for the
// authenticated merchant
func (h *AnalyticsHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	hours := parseWindowHours(r)
	merchantID := middle.GetMerchantIDFromContext(r.Context())

	var combined statsSummary
	var weightedTime float64
	for _, name := range provider.GetProviderNames() {
		raw, err := h.source.GetProviderStats(ctx, merchantID, name, hours)
		if err != nil {
			// A gateway without traffic has no index yet
			continue
		}
		s := summarizeStats(raw)
		combined.total += s.total
		combined.success += s.success
		combined.errors += s.errors
		combined.volume += s.volume
		weightedTime += s.avgTimeMs * s.total
	}

	stats := DashboardStats{
		TotalPayments:      int(combined.total),
		SuccessfulPayments: int(combined.success),
		FailedPayments:     int(combined.errors),
		TotalVolume:        round2(combined.volume),
		WindowHours:        hours,
	}
	if combined.total > 0 {
		stats.SuccessRate = round2(combined.success / combined.total * 100)
		stats.AvgResponseTime = round2(weightedTime / combined.total)
	}

	response.Success(w, http.StatusOK, "Dashboard stats retrieved successfully", stats)
}

// GetProviderStats returns per-gateway statistics
func (h *AnalyticsHandler) GetProviderStats(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	hours := parseWindowHours(r)
	merchantID := middle.GetMerchantIDFromContext(r.Context())

	names := provider.GetProviderNames()
	stats := make([]ProviderStats, 0, len(names))
	for _, name := range names {
		entry := ProviderStats{Name: name, Status: "online"}

		raw, err := h.source.GetProviderStats(ctx, merchantID, name, hours)
		if err != nil {
			entry.Status = "unknown"
			stats = append(stats, entry)
			continue
		}

		s := summarizeStats(raw)
		entry.Transactions = int(s.total)
		entry.AvgResponseTime = round2(s.avgTimeMs)
		if s.total > 0 {
			entry.SuccessRate = round2(s.success / s.total * 100)
			if s.errors/s.total*100 > 10 {
				entry.Status = "degraded"
			}
		}
		stats = append(stats, entry)
	}

	response.Success(w, http.StatusOK, "Provider stats retrieved successfully", stats)
}

// GetRecentActivity returns the latest payment events
func (h *AnalyticsHandler) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Parse limit parameter (default 10)
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	merchantID := middle.GetMerchantIDFromContext(r.Context())

	query := map[string]any{
		"range": map[string]any{
			"timestamp": map[string]any{
				"gte": "now-24h",
			},
		},
	}

	activities := make([]RecentActivity, 0, limit)
	for _, name := range provider.GetProviderNames() {
		logs, err := h.source.SearchLogs(ctx, merchantID, name, query)
		if err != nil {
			continue
		}
		for _, log := range logs {
			activities = append(activities, activityFromLog(name, log))
		}
	}

	// Newest first across gateways
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].Time.After(activities[j].Time)
	})
	if len(activities) > limit {
		activities = activities[:limit]
	}

	response.Success(w, http.StatusOK, "Recent activity retrieved successfully", activities)
}

// GetPaymentTrends returns hourly payment counts for charts
func (h *AnalyticsHandler) GetPaymentTrends(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	hours := parseWindowHours(r)
	merchantID := middle.GetMerchantIDFromContext(r.Context())

	gateway := providerName(r)
	if gateway == "" {
		gateway = "pesapal"
	}

	buckets, err := h.source.GetPaymentTrends(ctx, merchantID, gateway, hours)
	if err != nil {
		response.Error(w, http.StatusBadGateway, "Failed to query payment trends", err)
		return
	}

	labels := make([]string, len(buckets))
	successData := make([]int, len(buckets))
	failedData := make([]int, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Time.Format("15:04")
		successData[i] = b.Success
		failedData[i] = b.Failed
	}

	trends := map[string]any{
		"provider":    gateway,
		"windowHours": hours,
		"labels":      labels,
		"success":     successData,
		"failed":      failedData,
		"buckets":     buckets,
	}

	response.Success(w, http.StatusOK, "Payment trends retrieved successfully", trends)
}

// activityFromLog condenses a payment log entry into a feed item
func activityFromLog(providerName string, log opensearch.PaymentLog) RecentActivity {
	activity := RecentActivity{
		Type:       "payment",
		Provider:   providerName,
		Time:       log.Timestamp,
		TrackingID: log.PaymentInfo.TrackingID,
	}

	if strings.Contains(log.Endpoint, "refund") {
		activity.Type = "refund"
	}

	switch {
	case log.Error.Code != "":
		activity.Status = "failed"
	case log.Response.StatusCode >= 200 && log.Response.StatusCode < 300:
		activity.Status = "success"
	default:
		activity.Status = "failed"
	}

	if log.PaymentInfo.Amount > 0 {
		activity.Amount = fmt.Sprintf("%.2f %s", log.PaymentInfo.Amount, log.PaymentInfo.Currency)
	}

	return activity
}
