package gateway

import (
	"net/http"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Topics   int    `json:"topics"`
	// Oracle is the oracle health state, empty when none is configured.
	Oracle string `json:"oracle,omitempty"`
}

// handleHealth reports liveness. The engine answers on its own, so an
// unavailable oracle only marks the service degraded and still returns 200.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: StatusOK}
		if g.sessions != nil {
			resp.Sessions = g.sessions.Len()
		}
		if g.engine != nil {
			resp.Topics = g.engine.Index().Len()
			if c := g.engine.Oracle(); c != nil {
				resp.Oracle = c.State()
				if !c.Available() {
					resp.Status = StatusDegraded
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
