package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	StateSessions int     `json:"state_sessions"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: time.Since(g.startedAt).Truncate(time.Second).Seconds(),
		}
		if g.state != nil {
			resp.StateSessions = g.state.Len()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
