package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/circonus-labs/cosi-server/internal/middleware"
	"github.com/circonus-labs/cosi-server/internal/templates"
)

// Config holds API router configuration
type Config struct {
	Resolver  Resolver
	Templates *templates.Store
	Logger    *slog.Logger
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Base middleware; the request id comes first so every later
	// layer and error message can refer to it
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)

	handlers := NewHandlers(cfg.Resolver, cfg.Templates, cfg.Logger)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Health endpoints
	r.Get("/health", handlers.Health)
	r.Get("/ping", handlers.Ping)
	r.Get("/version", handlers.Version)

	// Agent packages
	r.Get("/package", handlers.Package)
	r.Get("/packages", handlers.Packages)

	// Check, graph, dashboard, worksheet and ruleset templates
	r.Get("/template/{category}/{name}", handlers.Template)

	return r
}
