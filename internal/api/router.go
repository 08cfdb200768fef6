package api

import (
	"net/http"

	"github.com/Rrens/policy-assistant/internal/api/handler"
	customMiddleware "github.com/Rrens/policy-assistant/internal/api/middleware"
	"github.com/Rrens/policy-assistant/internal/config"
	"github.com/Rrens/policy-assistant/internal/metrics"
	"github.com/Rrens/policy-assistant/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// NewRouter creates and configures the HTTP router. rateLimiter may be nil to disable limiting.
func NewRouter(cfg *config.Config, gateway *service.GatewayService, rateLimiter customMiddleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Metrics.Enabled {
		r.Use(customMiddleware.Metrics)
	}
	if cfg.Server.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(gateway)
	uploadHandler := handler.NewUploadHandler(gateway, cfg.Upload.MaxMemory)
	chatHandler := handler.NewChatHandler(gateway, cfg.Upload.MaxMemory)
	proxyHandler := handler.NewProxyHandler(gateway)

	// Operational routes are never rate limited
	r.Get("/health", handler.HealthCheck)
	r.Get("/ready", handler.ReadyCheck(gateway))
	if cfg.Metrics.Enabled {
		log.Info().Str("path", cfg.Metrics.Path).Msg("Serving Prometheus metrics")
		r.Method(http.MethodGet, cfg.Metrics.Path, metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rateLimiter != nil {
			r.Use(customMiddleware.NewRateLimitMiddleware(rateLimiter).Limit)
		}

		sessionRoutes := func(r chi.Router) {
			r.Get("/initiate", sessionHandler.Initiate)
			r.Get("/validate", sessionHandler.Validate)
			r.Get("/validate/", sessionHandler.Validate)
			r.Get("/validate/{sessionId}", sessionHandler.Validate)
		}
		r.Route("/session", func(r chi.Router) {
			sessionRoutes(r)
			r.Get("/{sessionId}", sessionHandler.Get)
		})
		r.Route("/api/chat", sessionRoutes)

		r.Post("/upload", uploadHandler.Upload)
		r.Post("/chat/send", chatHandler.Send)

		r.Post("/load-documents", proxyHandler.LoadDocuments)
		r.Post("/batch-query", proxyHandler.BatchQuery)
		r.Get("/stats", proxyHandler.Stats)
	})

	return r
}
