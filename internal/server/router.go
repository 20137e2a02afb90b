package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"label-processor/internal/metrics"
)

// NewRouter mounts the label API and the metrics endpoint.
func NewRouter(h *Handlers, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Use(CORSMiddleware)
		r.Post("/extract", h.Extract)
		r.Get("/documents", h.Documents)
		r.Get("/documents/stats", h.Stats)
		r.Get("/patterns", h.Patterns)
		r.Get("/health", h.Health)
	})

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}
