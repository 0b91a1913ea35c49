package provider

import "time"

// PaymentStatus represents the current status of a payment order
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
	StatusFailed    PaymentStatus = "failed"
	StatusReversed  PaymentStatus = "reversed"
	StatusInvalid   PaymentStatus = "invalid"
)

// Gateway status codes as returned by transaction status lookups
const (
	StatusCodeInvalid   = 0
	StatusCodeCompleted = 1
	StatusCodeFailed    = 2
	StatusCodeReversed  = 3
)

// StatusFromCode maps a gateway status code to a PaymentStatus
func StatusFromCode(code int) PaymentStatus {
	switch code {
	case StatusCodeCompleted:
		return StatusCompleted
	case StatusCodeFailed:
		return StatusFailed
	case StatusCodeReversed:
		return StatusReversed
	case StatusCodeInvalid:
		return StatusInvalid
	default:
		return StatusPending
	}
}

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// BillingAddress represents the buyer contact and address details attached
// to an order. The gateway requires at least an email or a phone number.
type BillingAddress struct {
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,phone"`
	CountryCode string `json:"countryCode,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	MiddleName  string `json:"middleName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	ZipCode     string `json:"zipCode,omitempty"`
}

// OrderRequest contains all information required to submit a payment order.
// Amount is a decimal string so malformed caller input is rejected by
// validation instead of silently coercing to zero.
type OrderRequest struct {
	ID              string          `json:"id,omitempty"`
	LogID           int64           `json:"logId,omitempty"`
	Currency        string          `json:"currency,omitempty" validate:"omitempty,currency"`
	Amount          string          `json:"amount" validate:"required,decimal"`
	Description     string          `json:"description" validate:"required"`
	CallbackURL     string          `json:"callbackUrl,omitempty" validate:"omitempty,url"`
	CancellationURL string          `json:"cancellationUrl,omitempty" validate:"omitempty,url"`
	NotificationID  string          `json:"notificationId"`
	Branch          string          `json:"branch,omitempty"`
	Billing         *BillingAddress `json:"billing,omitempty"`
	ClientIP        string          `json:"clientIp,omitempty"`
	ClientUserAgent string          `json:"clientUserAgent,omitempty"`
}

// OrderResponse contains the result of an order submission. RedirectURL is
// the hosted payment page the end user must be forwarded to.
type OrderResponse struct {
	Success           bool          `json:"success"`
	Status            PaymentStatus `json:"status"`
	TrackingID        string        `json:"trackingId,omitempty"`
	MerchantReference string        `json:"merchantReference,omitempty"`
	RedirectURL       string        `json:"redirectUrl,omitempty"`
	Message           string        `json:"message,omitempty"`
	ErrorCode         string        `json:"errorCode,omitempty"`
	ProviderResponse  any           `json:"providerResponse,omitempty"`
}

// TransactionStatus contains the settlement state of an order as reported
// by the gateway. Fields are passthrough data, not interpreted here.
type TransactionStatus struct {
	Success           bool          `json:"success"`
	Status            PaymentStatus `json:"status"`
	StatusCode        int           `json:"statusCode"`
	Description       string        `json:"description,omitempty"`
	TrackingID        string        `json:"trackingId,omitempty"`
	MerchantReference string        `json:"merchantReference,omitempty"`
	Amount            float64       `json:"amount,omitempty"`
	Currency          string        `json:"currency,omitempty"`
	PaymentMethod     string        `json:"paymentMethod,omitempty"`
	PaymentAccount    string        `json:"paymentAccount,omitempty"`
	ConfirmationCode  string        `json:"confirmationCode,omitempty"`
	CreatedDate       string        `json:"createdDate,omitempty"`
	Message           string        `json:"message,omitempty"`
	ErrorCode         string        `json:"errorCode,omitempty"`
	ProviderResponse  any           `json:"providerResponse,omitempty"`
}

// NotificationRequest contains information to register a webhook endpoint
type NotificationRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Name  string `json:"name,omitempty"`
	LogID int64  `json:"logId,omitempty"`
}

// IPNRegistration is a registered webhook endpoint as returned by the
// gateway. Name is a client-side label; the gateway only stores the URL.
type IPNRegistration struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	Name             string `json:"name,omitempty"`
	NotificationType string `json:"notificationType,omitempty"`
	Status           string `json:"status,omitempty"`
	CreatedDate      string `json:"createdDate,omitempty"`
}

// RefundRequest contains information to request a refund. ConfirmationCode
// is the gateway confirmation code from the original transaction status.
type RefundRequest struct {
	ConfirmationCode string  `json:"confirmationCode" validate:"required"`
	Amount           float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Username         string  `json:"username,omitempty"`
	Remarks          string  `json:"remarks,omitempty"`
	LogID            int64   `json:"logId,omitempty"`
}

// RefundResponse contains the result of a refund request
type RefundResponse struct {
	Success    bool       `json:"success"`
	Status     string     `json:"status,omitempty"`
	Message    string     `json:"message,omitempty"`
	ErrorCode  string     `json:"errorCode,omitempty"`
	SystemTime *time.Time `json:"systemTime,omitempty"`
}

// CancelResponse contains the result of an order cancellation
type CancelResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Notification is the body of an inbound payment notification as the
// gateway sends it. Field matching is case-insensitive, which covers the
// OrderTrackingId spelling Pesapal uses on the wire.
type Notification struct {
	NotificationType  string `json:"orderNotificationType"`
	TrackingID        string `json:"orderTrackingId"`
	MerchantReference string `json:"orderMerchantReference,omitempty"`
}

// NotificationAck is the acknowledgment body returned to the gateway for an
// inbound notification. Status carries the processing outcome; the HTTP
// response itself stays 200 so the gateway does not re-send the event.
type NotificationAck struct {
	NotificationType  string `json:"orderNotificationType"`
	TrackingID        string `json:"orderTrackingId"`
	MerchantReference string `json:"orderMerchantReference"`
	Status            int    `json:"status"`
}
