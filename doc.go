// Package pesapay provides a payment service built on the Pesapal API 3.0
// gateway. It wraps token handling, order submission, IPN registration,
// status lookups and refunds behind one consistent API, and exposes the
// whole surface over REST for applications that do not link the Go module.
//
// # Overview
//
// Pesapal is a redirect-based gateway used across East Africa: an order is
// submitted server-side, the buyer finishes the payment on Pesapal's hosted
// page (card or mobile money), and the merchant learns the outcome through
// the callback return and registered IPN notifications. PesaPay packages
// that whole conversation, including the OAuth-style token lifecycle the
// gateway requires, so applications only deal with orders and statuses.
//
// # Architecture
//
// The payment flow follows this pattern:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│    PesaPay      │◄──►│    Pesapal      │
//	│ (SHOP1, SHOP2)  │    │   (Service)     │    │   (Gateway)     │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Quick Start
//
// Basic usage example:
//
//	package main
//
//	import (
//	    "context"
//	    "github.com/mstgnz/pesapay/provider"
//	    _ "github.com/mstgnz/pesapay/provider/pesapal" // Import to register provider
//	)
//
//	func main() {
//	    // Create payment service
//	    service := provider.NewPaymentService(nil)
//
//	    // Configure provider
//	    config := map[string]string{
//	        "consumerKey":     "your-consumer-key",
//	        "consumerSecret":  "your-consumer-secret",
//	        "callbackBaseUrl": "https://yourapp.com",
//	        "environment":     "sandbox", // or "production"
//	    }
//
//	    // Add provider
//	    err := service.AddProvider("pesapal", config)
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    // Create order request
//	    orderReq := provider.OrderRequest{
//	        ID:          "ORDER-10001",
//	        Amount:      "1500.00",
//	        Currency:    "KES",
//	        Description: "Order #10001",
//	        Billing: &provider.BillingAddress{
//	            Email: "john@example.com",
//	            Phone: "0723000000",
//	        },
//	    }
//
//	    // Submit order
//	    ctx := context.Background()
//	    response, err := service.SubmitOrder(ctx, "pesapal", orderReq)
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    // Handle response
//	    if response.Success {
//	        // Forward the buyer to the hosted payment page
//	        fmt.Printf("Redirect to: %s\n", response.RedirectURL)
//	    }
//	}
//
// # Multi-Merchant Support
//
// PesaPay supports a multi-merchant architecture where different accounts
// use different gateway credentials:
//
//	// Store merchant-specific configuration
//	err := providerConfig.SetMerchantConfig("SHOP1", "pesapal", map[string]string{
//	    "consumerKey":     "shop1-consumer-key",
//	    "consumerSecret":  "shop1-consumer-secret",
//	    "callbackBaseUrl": "https://shop1.example.com",
//	    "environment":     "sandbox",
//	})
//
// Over the REST API the merchant identity comes from the JWT issued at
// login, and the system automatically routes to the merchant-specific
// configuration and token cache.
//
// # Environment Support
//
// Both the test (sandbox) and production gateways are supported:
//
//	config := map[string]string{
//	    "consumerKey":    "your-consumer-key",
//	    "consumerSecret": "your-consumer-secret",
//	    "environment":    "production", // or "sandbox"
//	}
//
// The sandbox talks to https://cybqa.pesapal.com/pesapalv3/api and
// production to https://pay.pesapal.com/v3/api.
//
// # HTTP API
//
// PesaPay also provides a REST API for integration:
//
//	# Submit order
//	POST /v1/payments/{provider}
//	Headers:
//	  Authorization: Bearer your-jwt-token
//	  Content-Type: application/json
//
//	# Check transaction status
//	GET /v1/payments/{provider}/{trackingID}
//
//	# Cancel order
//	DELETE /v1/payments/{provider}/{trackingID}
//
//	# Process refund
//	POST /v1/payments/{provider}/refund
//
//	# Register and list IPN endpoints
//	POST /v1/payments/{provider}/ipn
//	GET  /v1/payments/{provider}/ipn
//
// # Callbacks and Webhooks
//
// PesaPay terminates the gateway's return and notification traffic:
//
//   - Callback URLs: /callback/{provider}?OrderTrackingId=...
//   - Cancellation URLs: /cancel/{provider}
//   - Webhook URLs: /webhooks/{provider}
//
// Inbound notifications are verified against the gateway and acknowledged
// in the response body shape Pesapal expects, so the gateway does not
// re-deliver processed events.
//
// # Logging and Analytics
//
// PesaPay integrates with OpenSearch for comprehensive logging and
// analytics:
//
//   - Real-time payment tracking
//   - Provider performance metrics
//   - Merchant-isolated log indices
//   - Dashboard analytics
//
// Payment request history is additionally kept in SQLite so recent
// activity survives without an OpenSearch cluster.
//
// # Configuration
//
// Configuration can be done via environment variables or programmatically:
//
//	# Environment variables
//	PESAPAL_CONSUMER_KEY=your-consumer-key
//	PESAPAL_CONSUMER_SECRET=your-consumer-secret
//	PESAPAL_CALLBACK_BASE_URL=https://yourapp.com
//	PESAPAL_ENVIRONMENT=sandbox
//
//	# Or programmatically
//	config := map[string]string{
//	    "consumerKey":     "your-consumer-key",
//	    "consumerSecret":  "your-consumer-secret",
//	    "callbackBaseUrl": "https://yourapp.com",
//	    "environment":     "sandbox",
//	}
//
// # Security Features
//
// PesaPay includes several security features:
//
//   - JWT and API key authentication
//   - Per-merchant and per-IP rate limiting
//   - IP whitelisting
//   - Request validation
//   - Notification verification against the gateway
//   - Encrypted token storage
//
// # Development and Testing
//
// The Pesapal sandbox supports full end-to-end testing with the demo
// credentials and test cards published in the developer documentation.
//
// # Examples
//
// Comprehensive examples are available in the examples/ directory:
//   - examples/pesapal/ - Direct module usage example
//   - examples/multi_merchant/ - Multi-merchant REST API example
//   - examples/logger/ - System logging example
//
// # Contributing
//
// To add another payment provider:
//
//  1. Implement the provider.PaymentProvider interface
//  2. Add the provider package under provider/{provider}/
//  3. Register the provider in provider/{provider}/register.go
//  4. Add comprehensive tests and documentation
//  5. Submit a pull request
//
// For more information, visit: https://github.com/mstgnz/pesapay
package pesapay
