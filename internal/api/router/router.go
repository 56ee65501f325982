// Package router provides HTTP routing configuration using Chi.
package router

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lacpass/healthlink/internal/api/handler"
	"github.com/lacpass/healthlink/internal/api/middleware"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/internal/audit"
	"github.com/lacpass/healthlink/internal/metrics"
)

//go:embed openapi.yaml
var openapiSpec []byte

// Config holds router configuration.
type Config struct {
	Version string

	// BasicUser and BasicPass protect the exchange routes. An empty user
	// leaves them open.
	BasicUser string
	BasicPass string

	Documents *service.Registry
	Issuer    *service.Issuer
	Logger    *slog.Logger

	// Audit records issued and resolved credentials. Nil disables it.
	Audit audit.Writer

	// Metrics and Gatherer are optional; /metrics is served when both
	// are set.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) (http.Handler, error) {
	if cfg.Documents == nil || cfg.Issuer == nil {
		return nil, errors.New("router: document registry and issuer are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.CORS)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	var issued handler.Issued
	if cfg.Metrics != nil {
		issued = cfg.Metrics.SandboxIssued
	}

	healthHandler := handler.NewHealthHandler(cfg.Version, cfg.Documents)
	regionalHandler := handler.NewRegionalHandler(cfg.Documents)
	vhlHandler := handler.NewVHLHandler(service.NewVHLService(cfg.Documents, cfg.Issuer), cfg.Issuer.Name(), issued, cfg.Audit)
	icvpHandler := handler.NewICVPHandler(service.NewICVPService(cfg.Issuer, logger), cfg.Issuer.Name(), issued, cfg.Audit)

	r.Get("/health", healthHandler.Health)
	r.Get("/api/openapi.yaml", serveOpenAPISpec)
	if cfg.Metrics != nil && cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth(cfg.BasicUser, cfg.BasicPass))

		r.Route("/regional", func(r chi.Router) {
			r.Get("/DocumentReference", regionalHandler.Search)
			r.Get("/Bundle/{id}", regionalHandler.Bundle)
			r.Get("/Binary/{id}", regionalHandler.Binary)
		})

		r.Post("/vhl/_generate", vhlHandler.Generate)
		r.Post("/vhl/_resolve", vhlHandler.Resolve)
		r.Post("/icvpcert/_from-bundle", icvpHandler.FromBundle)
	})

	return r, nil
}

// serveOpenAPISpec serves the OpenAPI specification file.
func serveOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}
