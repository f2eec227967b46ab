package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/sdms/payment-core/internal/payment"
	"github.com/sdms/payment-core/internal/transport/middleware"
	"github.com/sdms/payment-core/internal/webhook"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *webhook.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/webhooks/{gateway}", webhookHandler.HandleWebhook)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/initiate", paymentHandler.Initiate)
				pr.Get("/verify/{reference}", paymentHandler.Verify)
				pr.Get("/status/{reference}", paymentHandler.Status)
				pr.Post("/refund", paymentHandler.Refund)
			})
		}
	})
}
