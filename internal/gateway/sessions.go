package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/memgraph/internal/memory"
)

// handleSessionSummary returns GET /api/sessions/{id}/summary.
func (g *Gateway) handleSessionSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := g.engine.SessionSummary(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// retrieveRequest is the body of POST /api/sessions/{id}/retrieve.
type retrieveRequest struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// handleRetrieve returns POST /api/sessions/{id}/retrieve. The query text is
// embedded server-side when a provider is configured; otherwise ranking is
// importance and recency only.
func (g *Gateway) handleRetrieve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req retrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		var query []float32
		if req.Query != "" && g.provider != nil {
			vec, err := g.provider.Embed(r.Context(), req.Query)
			if err != nil {
				g.logger.Warn("query embedding failed", "error", err)
			} else {
				query = vec
			}
		}

		nodes, err := g.engine.RetrieveContext(r.Context(), chi.URLParam(r, "id"), query, req.Limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
	}
}

// handleClearSession returns DELETE /api/sessions/{id}.
func (g *Gateway) handleClearSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.recorder.ClearSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleFindRelated returns GET /api/nodes/{id}/related.
func (g *Gateway) handleFindRelated() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		related, err := g.engine.FindRelated(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("relation"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"related": related})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the memory error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrIntegrity), errors.Is(err, memory.ErrConcurrency):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
