// Package provider implements a unified payment processing interface for
// redirect-based payment gateways behind a single, consistent API.
//
// This package provides the core abstraction layer for payment processing
// in PesaPay. Gateways supported here follow the hosted-checkout model: an
// order submission returns a redirect URL, the buyer settles on the
// gateway's own pages, and the outcome arrives asynchronously on a
// registered notification endpoint (IPN).
//
// # Core Concepts
//
// The provider package is built around several key interfaces and types:
//
//   - PaymentProvider: The main interface that all payment providers must implement
//   - PaymentService: Manages configured providers and routes operations
//   - OrderRequest/OrderResponse: Standard order submission structures
//   - TokenStore: TTL-bounded storage for gateway bearer tokens
//   - ProviderRegistry: Manages provider registration and discovery
//
// # Basic Usage
//
// Creating a payment service and submitting an order:
//
//	// Create a new payment service
//	service := provider.NewPaymentService(nil)
//
//	// Configure a provider
//	config := map[string]string{
//	    "consumerKey":     "your-consumer-key",
//	    "consumerSecret":  "your-consumer-secret",
//	    "callbackBaseUrl": "https://myapp.com",
//	    "environment":     "sandbox",
//	}
//
//	// Add the provider
//	err := service.AddProvider("pesapal", config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Submit an order
//	request := provider.OrderRequest{
//	    Amount:         "1500.00",
//	    Currency:       "KES",
//	    Description:    "Order #4711",
//	    NotificationID: "your-ipn-id",
//	    Billing: &provider.BillingAddress{
//	        Email:     "jane@example.com",
//	        FirstName: "Jane",
//	        LastName:  "Achieng",
//	    },
//	}
//
//	response, err := service.SubmitOrder(ctx, "pesapal", request)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Forward the buyer to the hosted payment page
//	fmt.Printf("Redirect to: %s\n", response.RedirectURL)
//
// # Token Handling
//
// Authenticated gateway calls ride on short-lived bearer tokens. Providers
// acquire and refresh tokens themselves; a TokenStore makes acquired
// tokens survive beyond a single provider instance:
//
//	store := provider.NewInMemoryTokenStore(100)
//
// or shared across replicas:
//
//	store := provider.NewRedisTokenStore("localhost:6379", "", 0)
//
// Tokens can additionally rest encrypted:
//
//	enc := provider.NewTokenEncryptor(secret)
//	store := provider.NewEncryptedTokenStore(provider.NewInMemoryTokenStore(100), enc)
//
// # Environment Support
//
// All providers support both sandbox and production environments:
//
//	sandboxConfig := map[string]string{
//	    "consumerKey":    "sandbox-consumer-key",
//	    "consumerSecret": "sandbox-consumer-secret",
//	    "environment":    "sandbox",
//	}
//
// # Supported Operations
//
// The PaymentProvider interface supports the following operations:
//
//   - RegisterNotification: Register a webhook endpoint with the gateway
//   - ListNotifications: List registered webhook endpoints
//   - SubmitOrder: Submit an order and obtain the hosted-checkout redirect
//   - GetTransactionStatus: Check the settlement state of an order
//   - RefundPayment: Issue a refund for a settled payment
//   - CancelOrder: Cancel a pending order
//   - ValidateWebhook: Validate an inbound notification's signature
//   - HandleNotification: Verify a notification and fetch its status
//
// # Error Handling
//
// Errors carry a kind so callers can branch on the failure class:
//
//	_, err := service.SubmitOrder(ctx, "pesapal", request)
//	if provider.IsKind(err, provider.ErrKindValidation) {
//	    // Bad input, nothing was sent to the gateway
//	}
//	if gwErr, ok := provider.AsError(err); ok && gwErr.Kind == provider.ErrKindGateway {
//	    // The gateway rejected us; gwErr carries status and body
//	    log.Printf("gateway said %d: %v", gwErr.HTTPStatus, gwErr.Body)
//	}
//
// # Provider Registration
//
// New payment providers can be registered using the registration system:
//
//	import _ "github.com/mstgnz/pesapay/provider/pesapal" // Auto-registers pesapal
//
// Or manually:
//
//	provider.Register("myprovider", func() provider.PaymentProvider {
//	    return &MyCustomProvider{}
//	})
//
// # Webhook Handling
//
// Signature validation always runs over the exact raw body bytes:
//
//	isValid, data, err := service.ValidateWebhook(ctx, "pesapal", rawBody, headers)
//	if err != nil {
//	    log.Printf("Webhook validation error: %v", err)
//	    return
//	}
//
//	if isValid {
//	    trackingID := data["trackingId"]
//	    // Update payment status in your system
//	}
//
// # Audit Logging
//
// Every operation routed through PaymentService is persisted with its
// request, response and processing time. SQLitePaymentLogger keeps the
// audit trail in a local database; credential-bearing fields are masked
// before anything is written.
//
// # Thread Safety
//
// The PaymentService and all provider implementations are designed to be
// thread-safe and can be used concurrently from multiple goroutines.
// Token refreshes are single-flight: concurrent callers needing a fresh
// token share one refresh request instead of each issuing their own.
package provider
