package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/leadflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhooks       *handlers.WebhookHandler
	MetricsHandler http.Handler
	// WebhookLimiter throttles webhook deliveries per client IP. Optional.
	WebhookLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhooks != nil {
		r.Route("/webhooks", func(hooks chi.Router) {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookLimiter))
			hooks.Get("/meta", cfg.Webhooks.MetaVerify)
			hooks.Post("/meta", cfg.Webhooks.MetaEvents)
			hooks.Post("/zapi", cfg.Webhooks.ZAPIEvents)
			hooks.Post("/uazapi", cfg.Webhooks.UAZAPIEvents)
		})
	}

	return r
}
