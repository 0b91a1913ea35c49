package provider

import "context"

// PaymentProvider defines the interface that all payment gateways must implement.
// Gateways in this hub follow the hosted-redirect model: an order submission
// returns a redirect URL, settlement happens on the gateway's pages, and the
// outcome is pushed back asynchronously to a registered notification endpoint.
type PaymentProvider interface {
	// Initialize sets up the payment provider with authentication and configuration
	Initialize(config map[string]string) error

	// GetRequiredConfig returns the configuration fields required for this provider
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig validates the provided configuration against provider requirements
	ValidateConfig(config map[string]string) error

	// RegisterNotification registers a webhook endpoint with the gateway and
	// returns the registration the gateway assigned to it
	RegisterNotification(ctx context.Context, request NotificationRequest) (*IPNRegistration, error)

	// ListNotifications returns the webhook endpoints registered with the gateway
	ListNotifications(ctx context.Context) ([]IPNRegistration, error)

	// SubmitOrder submits a payment order and returns the redirect URL the
	// end user must be forwarded to
	SubmitOrder(ctx context.Context, request OrderRequest) (*OrderResponse, error)

	// GetTransactionStatus retrieves the current settlement state of an order
	GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error)

	// RefundPayment issues a refund for a settled payment
	RefundPayment(ctx context.Context, request RefundRequest) (*RefundResponse, error)

	// CancelOrder cancels a pending order
	CancelOrder(ctx context.Context, trackingID string) (*CancelResponse, error)

	// ValidateWebhook checks the signature of an inbound notification against
	// the exact raw body bytes. It reports false for a missing or malformed
	// signature and returns the parsed notification fields when valid.
	ValidateWebhook(ctx context.Context, body []byte, headers map[string]string) (bool, map[string]string, error)

	// HandleNotification verifies an inbound notification and, when the
	// signature is valid, looks up and returns the transaction status for
	// the tracking id carried in the body
	HandleNotification(ctx context.Context, body []byte, headers map[string]string) (*TransactionStatus, error)
}

// ProviderFactory is a function type that creates a new PaymentProvider
type ProviderFactory func() PaymentProvider
