package v1

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/pesapay/handler"
	"github.com/mstgnz/pesapay/infra/auth"
	"github.com/mstgnz/pesapay/infra/config"
	"github.com/mstgnz/pesapay/infra/middle"
	"github.com/mstgnz/pesapay/infra/opensearch"
	"github.com/mstgnz/pesapay/provider"

	// Gateway factory registration
	_ "github.com/mstgnz/pesapay/provider/pesapal"
)

// Services carries the shared components the API routes are built on. The
// caller owns construction and lifetime; the router only wires them to
// handlers.
type Services struct {
	DB              *sql.DB
	PaymentService  *provider.PaymentService
	ProviderConfig  *config.ProviderConfig
	MerchantService *auth.MerchantService
	JWTService      *auth.JWTService
	RateLimiter     *middle.MerchantRateLimiter
	Logger          *opensearch.Logger // nil when logging is disabled
}

// Routes registers all v1 API routes
func Routes(r chi.Router, s Services) {
	validate := config.App().Validator

	// The log-backed handlers take interfaces. Assign only when a logger
	// exists so their availability checks see a true nil.
	var logsSource handler.LoggerInterface
	var analyticsSource handler.AnalyticsSource
	if s.Logger != nil {
		logsSource = s.Logger
		analyticsSource = s.Logger
	}

	paymentHandler := handler.NewPaymentHandler(s.PaymentService, validate)
	configHandler := handler.NewConfigHandler(s.ProviderConfig, s.PaymentService, validate)
	authHandler := handler.NewAuthHandler(s.MerchantService, s.JWTService, validate)
	logsHandler := handler.NewLogsHandler(logsSource)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSource)
	rateLimitHandler := handler.NewMerchantRateLimitHandler(s.RateLimiter)

	// Public routes: session endpoints plus everything the gateway itself
	// calls back into. Buyer redirects and IPN deliveries carry no JWT.
	r.Group(func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)
		r.Get("/auth/validate", authHandler.ValidateToken)

		r.HandleFunc("/callback/{provider}", paymentHandler.HandleCallback)
		r.HandleFunc("/cancel/{provider}", paymentHandler.HandleCancelReturn)
		r.HandleFunc("/webhooks/{provider}", paymentHandler.HandleWebhook)
	})

	// Authenticated routes. The rate limiter sits behind authentication so
	// it sees the merchant code and charges the right budget.
	r.Group(func(r chi.Router) {
		r.Use(middle.AuthMiddleware(s.JWTService))
		if s.RateLimiter != nil {
			r.Use(middle.MerchantRateLimitMiddleware(s.RateLimiter))
		}

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/change-password", authHandler.ChangePassword)
		r.Post("/auth/merchants", authHandler.CreateMerchant)
		r.Get("/auth/profile", authHandler.GetProfile)

		r.Post("/set-env", configHandler.SetEnv)
		r.Route("/config", func(r chi.Router) {
			r.Get("/merchant-config", configHandler.GetMerchantConfig)
			r.Delete("/merchant-config", configHandler.DeleteMerchantConfig)
			r.Get("/fields", configHandler.GetRequiredConfig)
			r.Get("/stats", configHandler.GetStats)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/{provider}", paymentHandler.SubmitOrder)
			r.Get("/{provider}/ipn", paymentHandler.ListIPNs)
			r.Post("/{provider}/ipn", paymentHandler.RegisterIPN)
			r.Post("/{provider}/refund", paymentHandler.RefundPayment)
			r.Get("/{provider}/{trackingID}", paymentHandler.GetPaymentStatus)
			r.Delete("/{provider}/{trackingID}", paymentHandler.CancelPayment)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/system", logsHandler.GetSystemLogs)
			r.Get("/{provider}", logsHandler.ListLogs)
			r.Get("/{provider}/errors", logsHandler.GetErrorLogs)
			r.Get("/{provider}/stats", logsHandler.GetLogStats)
			r.Get("/{provider}/payment/{trackingID}", logsHandler.GetPaymentLogs)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/dashboard", analyticsHandler.GetDashboardStats)
			r.Get("/providers", analyticsHandler.GetProviderStats)
			r.Get("/activity", analyticsHandler.GetRecentActivity)
			r.Get("/trends", analyticsHandler.GetPaymentTrends)
		})

		r.Get("/ratelimit/stats", rateLimitHandler.GetMerchantStats)
	})
}
