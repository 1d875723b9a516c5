package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/momo-settlement/internal/settlement"
	"github.com/frahmantamala/momo-settlement/internal/transport/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *settlement.Handler, webhookHandler *settlement.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			webhookHandler.RegisterRoutes(r)
		}

		if paymentHandler != nil {
			paymentHandler.RegisterRoutes(r)
		}
	})
}
