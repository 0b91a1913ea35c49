package middle

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/response"
)

// MerchantRateLimiter represents a merchant-aware rate limiter
type MerchantRateLimiter struct {
	merchants map[string]*merchantBucket // merchant code -> bucket
	ips       map[string]*visitor        // ip -> bucket (for unauthenticated requests)
	mu        sync.RWMutex
	config    *MerchantRateLimitConfig
}

// merchantBucket holds rate limiting information for a specific merchant
type merchantBucket struct {
	actions    map[string]*actionBucket // action -> bucket
	globalRate *visitor                 // global merchant rate limit
	lastSeen   time.Time
}

// actionBucket holds rate limiting for specific actions (payment, refund, etc.)
type actionBucket struct {
	count     int
	lastReset time.Time
}

// MerchantRateLimitConfig holds configuration for different rate limits
type MerchantRateLimitConfig struct {
	// Global defaults
	DefaultGlobalRate   int           `json:"default_global_rate"`  // requests per minute per merchant
	DefaultPaymentRate  int           `json:"default_payment_rate"` // payments per minute per merchant
	DefaultRefundRate   int           `json:"default_refund_rate"`  // refunds per minute per merchant
	DefaultStatusRate   int           `json:"default_status_rate"`  // status checks per minute per merchant
	DefaultWindow       time.Duration `json:"default_window"`       // time window
	UnauthenticatedRate int           `json:"unauthenticated_rate"` // rate for non-authenticated requests (per IP)

	// Merchant-specific overrides
	MerchantOverrides map[string]*MerchantLimits `json:"merchant_overrides"`

	// Premium merchant benefits
	PremiumMerchants  map[string]bool `json:"premium_merchants"`
	PremiumMultiplier float64         `json:"premium_multiplier"` // multiply rates for premium merchants

	// Burst allowance
	BurstAllowance int `json:"burst_allowance"` // allow burst above normal rate
}

// MerchantLimits holds specific limits for a merchant
type MerchantLimits struct {
	GlobalRate  int `json:"global_rate"`
	PaymentRate int `json:"payment_rate"`
	RefundRate  int `json:"refund_rate"`
	StatusRate  int `json:"status_rate"`
}

// ActionType represents different types of actions that can be rate limited
type ActionType string

const (
	ActionGlobal  ActionType = "global"
	ActionPayment ActionType = "payment"
	ActionRefund  ActionType = "refund"
	ActionStatus  ActionType = "status"
	ActionAuth    ActionType = "auth"
	ActionConfig  ActionType = "config"
)

// NewMerchantRateLimiter creates a new merchant-aware rate limiter
func NewMerchantRateLimiter() *MerchantRateLimiter {
	config := loadMerchantRateLimitConfig()

	rl := &MerchantRateLimiter{
		merchants: make(map[string]*merchantBucket),
		ips:       make(map[string]*visitor),
		config:    config,
	}

	// Start cleanup routine
	go rl.cleanup()

	return rl
}

// loadMerchantRateLimitConfig loads rate limit configuration from environment
func loadMerchantRateLimitConfig() *MerchantRateLimitConfig {
	cfg := &MerchantRateLimitConfig{
		DefaultWindow:     time.Minute,
		MerchantOverrides: make(map[string]*MerchantLimits),
		PremiumMerchants:  make(map[string]bool),
		PremiumMultiplier: 2.0, // Premium merchants get 2x the rate
		BurstAllowance:    10,  // Allow 10 extra requests in burst
	}

	// Load from environment with defaults
	cfg.DefaultGlobalRate = config.GetIntEnv("MERCHANT_GLOBAL_RATE_LIMIT", 100)  // 100/min per merchant
	cfg.DefaultPaymentRate = config.GetIntEnv("MERCHANT_PAYMENT_RATE_LIMIT", 50) // 50/min payments per merchant
	cfg.DefaultRefundRate = config.GetIntEnv("MERCHANT_REFUND_RATE_LIMIT", 20)   // 20/min refunds per merchant
	cfg.DefaultStatusRate = config.GetIntEnv("MERCHANT_STATUS_RATE_LIMIT", 200)  // 200/min status checks per merchant
	cfg.UnauthenticatedRate = config.GetIntEnv("UNAUTHENTICATED_RATE_LIMIT", 10) // 10/min per IP for unauthenticated

	// Premium merchant codes, comma separated
	for _, code := range strings.Split(config.GetEnv("PREMIUM_MERCHANTS", ""), ",") {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			cfg.PremiumMerchants[code] = true
		}
	}

	return cfg
}

// Allow checks if the request is allowed for a specific merchant and action
func (mrl *MerchantRateLimiter) Allow(merchantID string, action ActionType, clientIP string) (bool, *RateLimitInfo) {
	mrl.mu.Lock()
	defer mrl.mu.Unlock()

	now := time.Now()

	// Handle unauthenticated requests (no merchant ID)
	if merchantID == "" {
		return mrl.allowUnauthenticated(clientIP, now)
	}

	// Get or create merchant bucket
	bucket, exists := mrl.merchants[merchantID]
	if !exists || now.Sub(bucket.lastSeen) > mrl.config.DefaultWindow*2 {
		bucket = &merchantBucket{
			actions:    make(map[string]*actionBucket),
			globalRate: &visitor{count: 0, lastReset: now},
			lastSeen:   now,
		}
		mrl.merchants[merchantID] = bucket
	}

	bucket.lastSeen = now

	// Get rate limits for this merchant
	limits := mrl.getMerchantLimits(merchantID)

	// Check global merchant rate limit first
	if !mrl.checkLimit(bucket.globalRate, limits.GlobalRate, now) {
		return false, &RateLimitInfo{
			Allowed:    false,
			Limit:      limits.GlobalRate,
			Remaining:  0,
			ResetTime:  bucket.globalRate.lastReset.Add(mrl.config.DefaultWindow),
			RetryAfter: int(time.Until(bucket.globalRate.lastReset.Add(mrl.config.DefaultWindow)).Seconds()),
			ActionType: string(action),
			MerchantID: merchantID,
		}
	}

	// Check action-specific rate limit
	actionKey := string(action)
	actionBucketPtr, exists := bucket.actions[actionKey]
	if !exists || now.Sub(actionBucketPtr.lastReset) > mrl.config.DefaultWindow {
		actionBucketPtr = &actionBucket{
			count:     0,
			lastReset: now,
		}
		bucket.actions[actionKey] = actionBucketPtr
	}

	actionLimit := mrl.getActionLimit(action, limits)
	if !mrl.checkActionLimit(actionBucketPtr, actionLimit, now) {
		return false, &RateLimitInfo{
			Allowed:    false,
			Limit:      actionLimit,
			Remaining:  0,
			ResetTime:  actionBucketPtr.lastReset.Add(mrl.config.DefaultWindow),
			RetryAfter: int(time.Until(actionBucketPtr.lastReset.Add(mrl.config.DefaultWindow)).Seconds()),
			ActionType: string(action),
			MerchantID: merchantID,
		}
	}

	// Increment counters
	bucket.globalRate.count++
	actionBucketPtr.count++

	return true, &RateLimitInfo{
		Allowed:    true,
		Limit:      actionLimit,
		Remaining:  max(0, actionLimit-actionBucketPtr.count),
		ResetTime:  actionBucketPtr.lastReset.Add(mrl.config.DefaultWindow),
		RetryAfter: 0,
		ActionType: string(action),
		MerchantID: merchantID,
	}
}

// allowUnauthenticated handles rate limiting for requests without authentication
func (mrl *MerchantRateLimiter) allowUnauthenticated(clientIP string, now time.Time) (bool, *RateLimitInfo) {
	v, exists := mrl.ips[clientIP]
	if !exists || now.Sub(v.lastReset) > mrl.config.DefaultWindow {
		mrl.ips[clientIP] = &visitor{
			count:     1,
			lastReset: now,
		}
		return true, &RateLimitInfo{
			Allowed:    true,
			Limit:      mrl.config.UnauthenticatedRate,
			Remaining:  mrl.config.UnauthenticatedRate - 1,
			ResetTime:  now.Add(mrl.config.DefaultWindow),
			RetryAfter: 0,
			ActionType: "unauthenticated",
		}
	}

	if v.count >= mrl.config.UnauthenticatedRate {
		return false, &RateLimitInfo{
			Allowed:    false,
			Limit:      mrl.config.UnauthenticatedRate,
			Remaining:  0,
			ResetTime:  v.lastReset.Add(mrl.config.DefaultWindow),
			RetryAfter: int(mrl.config.DefaultWindow.Seconds()),
			ActionType: "unauthenticated",
		}
	}

	v.count++
	return true, &RateLimitInfo{
		Allowed:    true,
		Limit:      mrl.config.UnauthenticatedRate,
		Remaining:  mrl.config.UnauthenticatedRate - v.count,
		ResetTime:  v.lastReset.Add(mrl.config.DefaultWindow),
		RetryAfter: 0,
		ActionType: "unauthenticated",
	}
}

// getMerchantLimits returns the rate limits for a specific merchant
func (mrl *MerchantRateLimiter) getMerchantLimits(merchantID string) *MerchantLimits {
	// Check for merchant-specific overrides
	if override, exists := mrl.config.MerchantOverrides[merchantID]; exists {
		limits := *override // copy
		// Apply premium multiplier if merchant is premium
		if mrl.config.PremiumMerchants[merchantID] {
			limits.GlobalRate = int(float64(limits.GlobalRate) * mrl.config.PremiumMultiplier)
			limits.PaymentRate = int(float64(limits.PaymentRate) * mrl.config.PremiumMultiplier)
			limits.RefundRate = int(float64(limits.RefundRate) * mrl.config.PremiumMultiplier)
			limits.StatusRate = int(float64(limits.StatusRate) * mrl.config.PremiumMultiplier)
		}
		return &limits
	}

	// Use defaults
	limits := &MerchantLimits{
		GlobalRate:  mrl.config.DefaultGlobalRate,
		PaymentRate: mrl.config.DefaultPaymentRate,
		RefundRate:  mrl.config.DefaultRefundRate,
		StatusRate:  mrl.config.DefaultStatusRate,
	}

	// Apply premium multiplier if merchant is premium
	if mrl.config.PremiumMerchants[merchantID] {
		limits.GlobalRate = int(float64(limits.GlobalRate) * mrl.config.PremiumMultiplier)
		limits.PaymentRate = int(float64(limits.PaymentRate) * mrl.config.PremiumMultiplier)
		limits.RefundRate = int(float64(limits.RefundRate) * mrl.config.PremiumMultiplier)
		limits.StatusRate = int(float64(limits.StatusRate) * mrl.config.PremiumMultiplier)
	}

	return limits
}

// getActionLimit returns the rate limit for a specific action
func (mrl *MerchantRateLimiter) getActionLimit(action ActionType, limits *MerchantLimits) int {
	switch action {
	case ActionPayment:
		return limits.PaymentRate
	case ActionRefund:
		return limits.RefundRate
	case ActionStatus:
		return limits.StatusRate
	case ActionAuth:
		return limits.GlobalRate / 2 // Auth requests get half the global rate
	case ActionConfig:
		return limits.GlobalRate / 4 // Config requests get quarter of global rate
	default:
		return limits.GlobalRate
	}
}

// checkLimit checks if the request is within the rate limit
func (mrl *MerchantRateLimiter) checkLimit(v *visitor, limit int, now time.Time) bool {
	if now.Sub(v.lastReset) > mrl.config.DefaultWindow {
		v.count = 0
		v.lastReset = now
	}

	// Allow burst above normal rate
	effectiveLimit := limit + mrl.config.BurstAllowance
	return v.count < effectiveLimit
}

// checkActionLimit checks action-specific rate limit
func (mrl *MerchantRateLimiter) checkActionLimit(ab *actionBucket, limit int, now time.Time) bool {
	if now.Sub(ab.lastReset) > mrl.config.DefaultWindow {
		ab.count = 0
		ab.lastReset = now
	}

	// Allow burst above normal rate
	effectiveLimit := limit + mrl.config.BurstAllowance
	return ab.count < effectiveLimit
}

// cleanup removes old entries
func (mrl *MerchantRateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute) // Cleanup every 5 minutes
	defer ticker.Stop()

	for range ticker.C {
		mrl.mu.Lock()
		now := time.Now()

		// Clean up merchant buckets
		for merchantID, bucket := range mrl.merchants {
			if now.Sub(bucket.lastSeen) > mrl.config.DefaultWindow*3 {
				delete(mrl.merchants, merchantID)
				continue
			}

			// Clean up action buckets within merchant
			for action, actionBucket := range bucket.actions {
				if now.Sub(actionBucket.lastReset) > mrl.config.DefaultWindow*2 {
					delete(bucket.actions, action)
				}
			}
		}

		// Clean up IP buckets
		for ip, v := range mrl.ips {
			if now.Sub(v.lastReset) > mrl.config.DefaultWindow*2 {
				delete(mrl.ips, ip)
			}
		}

		mrl.mu.Unlock()
	}
}

// RateLimitInfo contains information about rate limiting status
type RateLimitInfo struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"reset_time"`
	RetryAfter int       `json:"retry_after"` // seconds
	ActionType string    `json:"action_type"`
	MerchantID string    `json:"merchant_id"`
}

// MerchantRateLimitMiddleware creates a merchant-aware rate limiting middleware
func MerchantRateLimitMiddleware(mrl *MerchantRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limiting for certain paths
			if shouldSkipRateLimit(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Get merchant ID from auth context (if authenticated)
			merchantID := GetMerchantIDFromContext(r.Context())

			// Get client IP for fallback
			clientIP := GetClientIP(r)

			// Determine action type based on URL path and method
			action := determineActionType(r.URL.Path, r.Method)

			// Check rate limit
			allowed, info := mrl.Allow(merchantID, action, clientIP)

			// Add rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
			w.Header().Set("X-RateLimit-Action", info.ActionType)

			if merchantID != "" {
				w.Header().Set("X-RateLimit-Merchant", merchantID)
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(info.RetryAfter))

				errorMsg := fmt.Sprintf("Rate limit exceeded for %s. Limit: %d/%s",
					info.ActionType, info.Limit, "minute")

				if merchantID != "" {
					errorMsg = fmt.Sprintf("Rate limit exceeded for merchant %s, action %s. Limit: %d/%s",
						merchantID, info.ActionType, info.Limit, "minute")
				}

				response.Error(w, http.StatusTooManyRequests, errorMsg, nil)
				return
			}

			// Continue to next handler
			next.ServeHTTP(w, r)
		})
	}
}

// shouldSkipRateLimit determines if a request should skip rate limiting
func shouldSkipRateLimit(path string) bool {
	path = strings.ToLower(path)

	// Static assets - no rate limiting
	staticPaths := []string{
		"/public/",
		"/favicon.ico",
		"/robots.txt",
		"/sitemap.xml",
	}

	for _, staticPath := range staticPaths {
		if strings.HasPrefix(path, staticPath) {
			return true
		}
	}

	// Gateway-invoked endpoints - buyer redirects and IPN deliveries must
	// never be dropped by the limiter; webhooks are signature-gated instead
	gatewayPrefixes := []string{
		"/v1/callback/",
		"/v1/cancel/",
		"/v1/webhooks/",
		"/callback/",
		"/webhooks/",
	}

	for _, prefix := range gatewayPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	// Public endpoints - no rate limiting
	publicEndpoints := []string{
		"/health",
		"/docs",
		"/scalar.yaml",
		"/login",                  // Login page
		"/",                       // Dashboard main page
		"/v1/auth/login",          // Login endpoint
		"/v1/auth/register",       // Register endpoint
		"/v1/auth/refresh",        // Token refresh endpoint
		"/v1/auth/validate",       // Token validation endpoint
		"/v1/analytics/dashboard", // Public analytics
		"/v1/analytics/providers", // Public analytics
		"/v1/analytics/activity",  // Public analytics
		"/v1/analytics/trends",    // Public analytics
	}

	for _, endpoint := range publicEndpoints {
		if path == endpoint {
			return true
		}
	}

	return false
}

// determineActionType determines the action type based on URL path and method
func determineActionType(path, method string) ActionType {
	path = strings.ToLower(path)

	// Authentication endpoints
	if strings.Contains(path, "/auth/") {
		return ActionAuth
	}

	// Configuration endpoints
	if strings.Contains(path, "/config/") || strings.Contains(path, "/set-env") {
		return ActionConfig
	}

	// Refund endpoints, checked before the generic payment branch so
	// POST /v1/payments/refund lands on the refund budget
	if strings.Contains(path, "/refund") {
		return ActionRefund
	}

	// IPN registration is setup traffic, keep it on the config budget
	if strings.Contains(path, "/ipn") {
		return ActionConfig
	}

	// Payment-related endpoints
	if strings.Contains(path, "/payments") {
		switch method {
		case http.MethodPost, http.MethodDelete:
			return ActionPayment
		case http.MethodGet:
			return ActionStatus
		}
	}

	// Status check endpoints
	if strings.Contains(path, "/status") {
		return ActionStatus
	}

	// Default to global
	return ActionGlobal
}

// GetMerchantRateLimitStats returns rate limiting statistics for a merchant
func (mrl *MerchantRateLimiter) GetMerchantRateLimitStats(merchantID string) map[string]any {
	mrl.mu.RLock()
	defer mrl.mu.RUnlock()

	stats := make(map[string]any)

	if bucket, exists := mrl.merchants[merchantID]; exists {
		limits := mrl.getMerchantLimits(merchantID)

		stats["merchant_id"] = merchantID
		stats["is_premium"] = mrl.config.PremiumMerchants[merchantID]
		stats["global_limit"] = limits.GlobalRate
		stats["global_used"] = bucket.globalRate.count
		stats["global_remaining"] = max(0, limits.GlobalRate-bucket.globalRate.count)
		stats["last_reset"] = bucket.globalRate.lastReset
		stats["next_reset"] = bucket.globalRate.lastReset.Add(mrl.config.DefaultWindow)

		actions := make(map[string]map[string]any)
		for actionName, actionBucket := range bucket.actions {
			actionLimit := mrl.getActionLimit(ActionType(actionName), limits)
			actions[actionName] = map[string]any{
				"limit":      actionLimit,
				"used":       actionBucket.count,
				"remaining":  max(0, actionLimit-actionBucket.count),
				"last_reset": actionBucket.lastReset,
				"next_reset": actionBucket.lastReset.Add(mrl.config.DefaultWindow),
			}
		}
		stats["actions"] = actions
	} else {
		stats["merchant_id"] = merchantID
		stats["status"] = "no_activity"
	}

	return stats
}

// Helper functions
func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
