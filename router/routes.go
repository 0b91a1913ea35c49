package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/pesapay/handler"
	"github.com/mstgnz/pesapay/infra/config"
	v1 "github.com/mstgnz/pesapay/router/v1"
)

// Routes mounts the versioned API together with the unversioned entry
// points the gateway calls directly.
func Routes(r chi.Router, s v1.Services) {
	healthHandler := handler.NewHealthHandler(s.DB, s.Logger, s.PaymentService, s.ProviderConfig)
	r.Get("/health", healthHandler.CheckHealth)

	r.Route("/v1", func(r chi.Router) {
		v1.Routes(r, s)
	})

	// Pesapal is configured with a single callback base URL per merchant.
	// Registrations made without the version prefix keep working through
	// these aliases.
	paymentHandler := handler.NewPaymentHandler(s.PaymentService, config.App().Validator)
	r.HandleFunc("/callback/{provider}", paymentHandler.HandleCallback)
	r.HandleFunc("/cancel/{provider}", paymentHandler.HandleCancelReturn)
	r.HandleFunc("/webhooks/{provider}", paymentHandler.HandleWebhook)
}
