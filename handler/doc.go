// Package handler provides HTTP request handlers for the PesaPay payment service.
//
// Merchant accounts live in **SQLite**; payment traffic and service logs are
// indexed in **OpenSearch** when logging is enabled.
//
// This package contains all the HTTP handlers that implement the REST API
// endpoints for order processing, merchant configuration, analytics, and
// logging. The handlers bridge the HTTP layer with the underlying Pesapal
// provider services.
//
// # Core Handlers
//
// The package includes several specialized handlers:
//
//   - PaymentHandler: Handles order operations (submit, status, cancel, refund, IPN)
//   - ConfigHandler: Manages merchant credentials and provider settings
//   - AuthHandler: Merchant login, registration, and token management
//   - LogsHandler: Provides access to payment logs and audit trails
//   - AnalyticsHandler: Serves dashboard statistics from the log indices
//   - HealthHandler: Reports component health for load balancers
//
// # Payment Handler
//
// The PaymentHandler manages all order-related HTTP requests:
//
//	paymentHandler := handler.NewPaymentHandler(paymentService, validator)
//
//	// Routes
//	r.Post("/v1/payments/{provider}", paymentHandler.SubmitOrder)
//	r.Get("/v1/payments/{provider}/{trackingID}", paymentHandler.GetPaymentStatus)
//	r.Delete("/v1/payments/{provider}/{trackingID}", paymentHandler.CancelPayment)
//	r.Post("/v1/payments/{provider}/refund", paymentHandler.RefundPayment)
//	r.Post("/v1/payments/{provider}/ipn", paymentHandler.RegisterIPN)
//	r.Get("/v1/payments/{provider}/ipn", paymentHandler.ListIPNs)
//
// Example order request:
//
//	POST /v1/payments/pesapal
//	Headers:
//	  Authorization: Bearer <jwt>
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "id": "ORDER-1001",
//	  "amount": 1500.00,
//	  "currency": "KES",
//	  "description": "Order #1001",
//	  "callbackUrl": "https://myshop.example/return",
//	  "billingAddress": {
//	    "emailAddress": "jane@example.com",
//	    "phoneNumber": "+254712345678",
//	    "firstName": "Jane",
//	    "lastName": "Doe"
//	  }
//	}
//
// The response carries the Pesapal order tracking ID and the hosted payment
// page URL the buyer should be redirected to.
//
// # Merchant Scoping
//
// Authenticated endpoints resolve the merchant from the JWT, not from a
// header. Each merchant activates the gateway with its own credentials,
// payment operations automatically route to that merchant-scoped instance,
// and payment logs are written to per-merchant indices so one merchant can
// never read another's traffic.
//
// # Configuration Handler
//
// The ConfigHandler manages merchant-specific Pesapal credentials:
//
//	configHandler := handler.NewConfigHandler(providerConfig, paymentService, validator)
//
//	// Activate the gateway for the authenticated merchant
//	r.Post("/v1/set-env", configHandler.SetEnv)
//
//	// Inspect (masked) or remove stored credentials
//	r.Get("/v1/config/merchant-config", configHandler.GetMerchantConfig)
//	r.Delete("/v1/config/merchant-config", configHandler.DeleteMerchantConfig)
//
//	// Discover which fields the gateway needs
//	r.Get("/v1/config/fields", configHandler.GetRequiredConfig)
//
// Example configuration request:
//
//	POST /v1/set-env
//	Headers:
//	  Authorization: Bearer <jwt>
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "PESAPAL_CONSUMER_KEY": "qkio1BGGYAXTu2JOfm7XSXNruoZsrqEW",
//	  "PESAPAL_CONSUMER_SECRET": "osGQ364R49cXKeOYSpaOnT++rHs=",
//	  "PESAPAL_CALLBACK_BASE_URL": "https://myshop.example",
//	  "PESAPAL_ENVIRONMENT": "sandbox"
//	}
//
// # Callback and Webhook Handling
//
// The PaymentHandler also manages buyer returns and IPN deliveries:
//
//	// Buyer redirect after the hosted payment page
//	r.HandleFunc("/callback/{provider}", paymentHandler.HandleCallback)
//	r.HandleFunc("/cancel/{provider}", paymentHandler.HandleCancelReturn)
//
//	// Instant payment notifications
//	r.HandleFunc("/webhooks/{provider}", paymentHandler.HandleWebhook)
//
// Webhook acknowledgements always answer the gateway's expected shape, even
// when local processing fails, so Pesapal does not retry forever.
//
// # Analytics Handler
//
// The AnalyticsHandler aggregates the OpenSearch payment indices:
//
//	analyticsHandler := handler.NewAnalyticsHandler(logger)
//
//	r.Get("/v1/analytics/dashboard", analyticsHandler.GetDashboardStats)
//	r.Get("/v1/analytics/providers", analyticsHandler.GetProviderStats)
//	r.Get("/v1/analytics/activity", analyticsHandler.GetRecentActivity)
//	r.Get("/v1/analytics/trends", analyticsHandler.GetPaymentTrends)
//
// Analytics endpoints answer 503 when logging is disabled; they never
// fabricate numbers.
//
// # Logs Handler
//
// The LogsHandler provides access to payment logs and audit trails:
//
//	logsHandler := handler.NewLogsHandler(logger)
//
//	r.Get("/v1/logs/{provider}", logsHandler.ListLogs)
//	r.Get("/v1/logs/{provider}/payment/{trackingID}", logsHandler.GetPaymentLogs)
//	r.Get("/v1/logs/{provider}/errors", logsHandler.GetErrorLogs)
//	r.Get("/v1/logs/{provider}/stats", logsHandler.GetLogStats)
//	r.Get("/v1/logs/system", logsHandler.GetSystemLogs)
//
// # Request Validation
//
// All handlers use structured validation for incoming requests:
//
//	type OrderRequest struct {
//	    ID          string  `json:"id" validate:"required"`
//	    Amount      float64 `json:"amount" validate:"required,gt=0"`
//	    Currency    string  `json:"currency" validate:"required,len=3"`
//	    CallbackURL string  `json:"callbackUrl" validate:"required,url"`
//	}
//
// Validation errors are returned with detailed messages:
//
//	{
//	  "success": false,
//	  "message": "Validation error",
//	  "error": {
//	    "amount": "must be greater than 0",
//	    "currency": "must be exactly 3 characters"
//	  }
//	}
//
// # Error Handling
//
// All handlers implement consistent error handling with structured responses:
//
//	// Success response
//	{
//	  "success": true,
//	  "message": "Order submitted",
//	  "data": {
//	    "orderTrackingId": "b945e4af-80a5-4ec1-8706-e03f8332fb04",
//	    "redirectUrl": "https://cybqa.pesapal.com/pesapaliframe/...",
//	    "status": "pending"
//	  }
//	}
//
//	// Error response
//	{
//	  "success": false,
//	  "message": "Payment failed",
//	  "error": {
//	    "code": "500.001.1001",
//	    "message": "Invalid consumer key or secret"
//	  }
//	}
//
// # Authentication and Authorization
//
// API endpoints require Bearer token authentication:
//
//	Authorization: Bearer <jwt>
//
// Callbacks, webhooks, health checks, and the auth endpoints themselves are
// public. Merchant administration (creating accounts, resetting another
// merchant's password) is restricted to the first registered account.
//
// # Rate Limiting and Security
//
// Handlers are protected by several middleware layers:
//
//   - Per-merchant and per-action rate limiting
//   - Security headers (CORS, CSP, etc.)
//   - Request size validation
//   - Request logging and monitoring
//
// Gateway-invoked endpoints (callbacks, IPN deliveries) bypass the rate
// limiter so buyer redirects are never dropped.
//
// # HTTP Status Codes
//
// Handlers use standard HTTP status codes:
//
//   - 200 OK: Successful operation
//   - 201 Created: Resource created successfully
//   - 400 Bad Request: Invalid request format or validation error
//   - 401 Unauthorized: Missing or invalid authentication
//   - 403 Forbidden: Authenticated but not allowed
//   - 404 Not Found: Resource not found
//   - 429 Too Many Requests: Rate limit exceeded
//   - 500 Internal Server Error: Server-side error
//   - 503 Service Unavailable: Dependent component disabled or down
//
// # Logging and Monitoring
//
// Payment traffic is logged to OpenSearch with request/response timing,
// status codes, and sanitized payloads. The analytics and logs handlers read
// those same indices, so what the dashboard shows is exactly what was
// recorded at the wire.
package handler
