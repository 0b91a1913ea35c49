package middle

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mstgnz/pesapay/infra/auth"
	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/response"
)

type contextKey string

const merchantIDContextKey contextKey = "merchant_id"

// AuthMiddleware validates API authentication. Two credential forms are
// accepted on the Authorization header: the static service API key (API_KEY
// environment variable) for machine-to-machine callers, which name their
// merchant with the X-Merchant-ID header, and a merchant JWT issued by the
// login endpoint.
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedAPIKey := config.GetEnv("API_KEY", "")
			if expectedAPIKey == "" && jwtService == nil {
				response.Error(w, http.StatusInternalServerError, "Authentication not configured", nil)
				return
			}

			// Get Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			// Check Bearer token format
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>", nil)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "Credentials required", nil)
				return
			}

			// Static API key: timing-safe comparison
			if expectedAPIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expectedAPIKey)) == 1 {
				merchantID := strings.ToUpper(strings.TrimSpace(r.Header.Get("X-Merchant-ID")))
				next.ServeHTTP(w, r.WithContext(WithMerchantID(r.Context(), merchantID)))
				return
			}

			// Otherwise the token must be a valid merchant JWT
			if jwtService != nil {
				if claims, err := jwtService.ValidateToken(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithMerchantID(r.Context(), claims.MerchantID)))
					return
				}
			}

			response.Error(w, http.StatusUnauthorized, "Invalid credentials", nil)
		})
	}
}

// WithMerchantID stores the merchant ID on the context. Exported so
// embedders running their own authentication can feed the handlers.
func WithMerchantID(ctx context.Context, merchantID string) context.Context {
	return context.WithValue(ctx, merchantIDContextKey, merchantID)
}

// GetMerchantIDFromContext returns the authenticated merchant ID, or an
// empty string for unauthenticated requests.
func GetMerchantIDFromContext(ctx context.Context) string {
	if merchantID, ok := ctx.Value(merchantIDContextKey).(string); ok {
		return merchantID
	}
	return ""
}
