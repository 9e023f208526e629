package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.metrics.Registry, promhttp.HandlerOpts{}))
	}

	// API endpoints — auth required. Not mounted if no token configured.
	if g.config.authConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.BearerToken))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/sessions/{id}/summary", g.handleSessionSummary())
				r.Post("/sessions/{id}/retrieve", g.handleRetrieve())
				r.Delete("/sessions/{id}", g.handleClearSession())
				r.Get("/nodes/{id}/related", g.handleFindRelated())
			})
		})
	}

	return r
}
