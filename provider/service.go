package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/pesapay/infra/logger"
)

// PaymentService manages payment operations through configured providers.
// Providers are created through the registry, initialized once with their
// merchant configuration, and addressed by name; an empty name resolves to
// the default provider.
type PaymentService struct {
	providers       map[string]PaymentProvider
	defaultProvider string
	merchantID      string
	logger          PaymentLogger
	mu              sync.RWMutex
}

// NewPaymentService creates a new payment service. A nil payment logger
// disables persistence without changing behavior.
func NewPaymentService(paymentLogger PaymentLogger) *PaymentService {
	if paymentLogger == nil {
		paymentLogger = NopPaymentLogger{}
	}
	return &PaymentService{
		providers: make(map[string]PaymentProvider),
		logger:    paymentLogger,
	}
}

// SetMerchant labels subsequent log records with the given merchant id
func (s *PaymentService) SetMerchant(merchantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchantID = merchantID
}

// AddProvider creates a provider from the registry, initializes it with
// the given configuration and makes it addressable by name. The first
// provider added becomes the default. A merchant-scoped name like
// SHOP1_pesapal resolves to the factory of its gateway suffix, so the same
// gateway can be added once per merchant with separate credentials.
func (s *PaymentService) AddProvider(name string, config map[string]string) error {
	p, err := CreateProvider(name)
	if err != nil {
		gateway := gatewaySuffix(name)
		if gateway == "" {
			return err
		}
		if p, err = CreateProvider(gateway); err != nil {
			return err
		}
	}

	if err := p.Initialize(config); err != nil {
		return fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[name] = p
	if s.defaultProvider == "" {
		s.defaultProvider = name
	}
	return nil
}

// SetDefaultProvider selects which provider an empty provider name
// resolves to
func (s *PaymentService) SetDefaultProvider(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.providers[name]; !exists {
		return fmt.Errorf("provider '%s' has not been added", name)
	}
	s.defaultProvider = name
	return nil
}

// ProviderNames returns the names of all added providers
func (s *PaymentService) ProviderNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// ProviderNameFor returns the merchant-scoped provider name when an
// instance has been added for the merchant, otherwise the name unchanged.
// Payment endpoints use this so a merchant with own credentials never
// transacts on the shared default instance.
func (s *PaymentService) ProviderNameFor(merchantID, name string) string {
	if merchantID == "" || name == "" {
		return name
	}
	scoped := strings.ToUpper(merchantID) + "_" + strings.ToLower(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.providers[scoped]; exists {
		return scoped
	}
	return name
}

// gatewaySuffix extracts the gateway from a merchant-scoped provider name,
// "SHOP1_pesapal" becomes "pesapal". Empty when the name has no scope
// prefix.
func gatewaySuffix(name string) string {
	idx := strings.LastIndex(name, "_")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// resolveProvider returns the provider for name, falling back to the
// default when name is empty
func (s *PaymentService) resolveProvider(name string) (PaymentProvider, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name == "" {
		name = s.defaultProvider
	}
	if name == "" {
		return nil, "", fmt.Errorf("no payment provider configured")
	}

	p, exists := s.providers[name]
	if !exists {
		return nil, "", fmt.Errorf("provider '%s' has not been added", name)
	}
	return p, name, nil
}

// SubmitOrder submits a payment order through the named provider
func (s *PaymentService) SubmitOrder(ctx context.Context, providerName string, request OrderRequest) (*OrderResponse, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, err := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/orders", request, request.ClientUserAgent, request.ClientIP)
	if err != nil {
		logger.Warn("Failed to log order request", logger.LogContext{
			Provider: name,
			Fields: map[string]any{
				"error": err.Error(),
			},
		})
	}
	request.LogID = logID

	response, err := p.SubmitOrder(ctx, request)

	processingMs := time.Since(startTime).Milliseconds()

	if logID > 0 {
		if err != nil {
			if logErr := s.logger.LogError(ctx, logID, "ORDER_ERROR", err.Error(), processingMs); logErr != nil {
				logger.Warn("Failed to log order error", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id": logID,
						"error":  logErr.Error(),
					},
				})
			}
		} else {
			if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
				logger.Warn("Failed to log order response", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id": logID,
						"error":  logErr.Error(),
					},
				})
			}
		}
	}

	return response, err
}

// GetTransactionStatus retrieves the settlement state of an order
func (s *PaymentService) GetTransactionStatus(ctx context.Context, providerName, trackingID string) (*TransactionStatus, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, err := s.logger.LogRequest(ctx, s.merchantID, name, "GET", "/orders/status", map[string]string{"trackingId": trackingID}, "", "")
	if err != nil {
		logger.Warn("Failed to log status request", logger.LogContext{
			Provider: name,
			Fields: map[string]any{
				"tracking_id": trackingID,
				"error":       err.Error(),
			},
		})
	}

	response, err := p.GetTransactionStatus(ctx, trackingID)

	processingMs := time.Since(startTime).Milliseconds()

	if logID > 0 {
		if err != nil {
			if logErr := s.logger.LogError(ctx, logID, "STATUS_ERROR", err.Error(), processingMs); logErr != nil {
				logger.Warn("Failed to log status error", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id":      logID,
						"tracking_id": trackingID,
						"error":       logErr.Error(),
					},
				})
			}
		} else {
			if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
				logger.Warn("Failed to log status response", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id":      logID,
						"tracking_id": trackingID,
						"error":       logErr.Error(),
					},
				})
			}
		}
	}

	return response, err
}

// RefundPayment issues a refund through the named provider
func (s *PaymentService) RefundPayment(ctx context.Context, providerName string, request RefundRequest) (*RefundResponse, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, err := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/orders/refund", request, "", "")
	if err != nil {
		logger.Warn("Failed to log refund request", logger.LogContext{
			Provider: name,
			Fields: map[string]any{
				"confirmation_code": request.ConfirmationCode,
				"error":             err.Error(),
			},
		})
	}
	request.LogID = logID

	response, err := p.RefundPayment(ctx, request)

	processingMs := time.Since(startTime).Milliseconds()

	if logID > 0 {
		if err != nil {
			if logErr := s.logger.LogError(ctx, logID, "REFUND_ERROR", err.Error(), processingMs); logErr != nil {
				logger.Warn("Failed to log refund error", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id": logID,
						"error":  logErr.Error(),
					},
				})
			}
		} else {
			if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
				logger.Warn("Failed to log refund response", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id": logID,
						"error":  logErr.Error(),
					},
				})
			}
		}
	}

	return response, err
}

// CancelOrder cancels a pending order through the named provider
func (s *PaymentService) CancelOrder(ctx context.Context, providerName, trackingID string) (*CancelResponse, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, err := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/orders/cancel", map[string]string{"trackingId": trackingID}, "", "")
	if err != nil {
		logger.Warn("Failed to log cancel request", logger.LogContext{
			Provider: name,
			Fields: map[string]any{
				"tracking_id": trackingID,
				"error":       err.Error(),
			},
		})
	}

	response, err := p.CancelOrder(ctx, trackingID)

	processingMs := time.Since(startTime).Milliseconds()

	if logID > 0 {
		if err != nil {
			if logErr := s.logger.LogError(ctx, logID, "CANCEL_ERROR", err.Error(), processingMs); logErr != nil {
				logger.Warn("Failed to log cancel error", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id":      logID,
						"tracking_id": trackingID,
						"error":       logErr.Error(),
					},
				})
			}
		} else {
			if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
				logger.Warn("Failed to log cancel response", logger.LogContext{
					Provider: name,
					Fields: map[string]any{
						"log_id":      logID,
						"tracking_id": trackingID,
						"error":       logErr.Error(),
					},
				})
			}
		}
	}

	return response, err
}

// RegisterNotification registers a webhook endpoint with the gateway
func (s *PaymentService) RegisterNotification(ctx context.Context, providerName string, request NotificationRequest) (*IPNRegistration, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, logErr := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/ipn/register", request, "", "")
	if logErr != nil {
		logger.Warn("Failed to log IPN registration request", logger.LogContext{
			Provider: name,
			Fields:   map[string]any{"error": logErr.Error()},
		})
	}
	request.LogID = logID

	registration, err := p.RegisterNotification(ctx, request)
	s.finishLog(ctx, name, logID, "IPN_REGISTER_ERROR", registration, err, time.Since(startTime).Milliseconds())
	return registration, err
}

// ListNotifications lists the webhook endpoints registered with the gateway
func (s *PaymentService) ListNotifications(ctx context.Context, providerName string) ([]IPNRegistration, error) {
	p, _, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}
	return p.ListNotifications(ctx)
}

// ValidateWebhook checks an inbound notification's signature through the
// named provider
func (s *PaymentService) ValidateWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (bool, map[string]string, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return false, nil, err
	}

	startTime := time.Now()
	logID, logErr := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/webhook", map[string]any{"body": string(body)}, "", "")
	if logErr != nil {
		logger.Warn("Failed to log webhook request", logger.LogContext{
			Provider: name,
			Fields:   map[string]any{"error": logErr.Error()},
		})
	}

	valid, data, err := p.ValidateWebhook(ctx, body, headers)

	result := map[string]any{"valid": valid, "data": data}
	s.finishLog(ctx, name, logID, "WEBHOOK_ERROR", result, err, time.Since(startTime).Milliseconds())
	return valid, data, err
}

// HandleNotification verifies an inbound notification and returns the
// transaction status it refers to. A forged or unsigned notification
// surfaces as a signature error.
func (s *PaymentService) HandleNotification(ctx context.Context, providerName string, body []byte, headers map[string]string) (*TransactionStatus, error) {
	p, name, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	logID, logErr := s.logger.LogRequest(ctx, s.merchantID, name, "POST", "/webhook/handle", map[string]any{"body": string(body)}, "", "")
	if logErr != nil {
		logger.Warn("Failed to log notification request", logger.LogContext{
			Provider: name,
			Fields:   map[string]any{"error": logErr.Error()},
		})
	}

	status, err := p.HandleNotification(ctx, body, headers)
	s.finishLog(ctx, name, logID, "NOTIFICATION_ERROR", status, err, time.Since(startTime).Milliseconds())
	return status, err
}

// finishLog attaches the outcome of an operation to its log row
func (s *PaymentService) finishLog(ctx context.Context, providerName string, logID int64, errorCode string, response any, err error, processingMs int64) {
	if logID <= 0 {
		return
	}

	if err != nil {
		if logErr := s.logger.LogError(ctx, logID, errorCode, err.Error(), processingMs); logErr != nil {
			logger.Warn("Failed to log operation error", logger.LogContext{
				Provider: providerName,
				Fields: map[string]any{
					"log_id": logID,
					"error":  logErr.Error(),
				},
			})
		}
		return
	}

	if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
		logger.Warn("Failed to log operation response", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"log_id": logID,
				"error":  logErr.Error(),
			},
		})
	}
}
