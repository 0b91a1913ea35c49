package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies payment errors so callers can branch on the failure
// class without inspecting message text
type ErrorKind string

const (
	// ErrKindConfiguration marks missing or invalid provider configuration,
	// raised at initialization and never retried
	ErrKindConfiguration ErrorKind = "configuration"

	// ErrKindValidation marks invalid request fields, raised before any
	// network call and never retried
	ErrKindValidation ErrorKind = "validation"

	// ErrKindGateway marks a non-success gateway response or a transport
	// failure, surfaced after the retry budget is exhausted
	ErrKindGateway ErrorKind = "gateway"

	// ErrKindSignature marks a missing or mismatched webhook signature
	ErrKindSignature ErrorKind = "signature"

	// ErrKindTokenDecryption marks malformed ciphertext in a stored token,
	// usually a symptom of a rotated or misconfigured encryption key
	ErrKindTokenDecryption ErrorKind = "token_decryption"
)

// Error is the error type returned by providers and the payment service.
// Gateway errors carry the HTTP status and the parsed or raw response body
// of the final attempt.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Body       any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.HTTPStatus != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.HTTPStatus)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *Error {
	return &Error{Kind: ErrKindConfiguration, Message: message}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{Kind: ErrKindValidation, Message: message}
}

// NewGatewayError creates a gateway error carrying the response status and
// the parsed or raw body of the failed attempt
func NewGatewayError(message string, status int, body any, cause error) *Error {
	return &Error{Kind: ErrKindGateway, Message: message, HTTPStatus: status, Body: body, Err: cause}
}

// NewSignatureError creates a signature error
func NewSignatureError(message string) *Error {
	return &Error{Kind: ErrKindSignature, Message: message}
}

// NewTokenDecryptionError creates a token decryption error
func NewTokenDecryptionError(message string, cause error) *Error {
	return &Error{Kind: ErrKindTokenDecryption, Message: message, Err: cause}
}

// IsKind reports whether err or any error it wraps is an *Error of the
// given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// AsError extracts the *Error from err's chain, if any
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
