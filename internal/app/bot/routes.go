// Package bot предоставляет маршруты вебхук-сервера.
package bot

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0niel/ninja-payment-bot/internal/http/handlers/health"
	"github.com/0niel/ninja-payment-bot/internal/http/handlers/webhookupd"
	"github.com/0niel/ninja-payment-bot/internal/telegram"
)

// RegisterRoutes регистрирует все маршруты вебхук-сервера.
func RegisterRoutes(r chi.Router, logger *slog.Logger, handler telegram.UpdateHandler, webhookSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Post("/webhook", webhookupd.New(logger, handler, webhookSecret).ServeHTTP)
	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
