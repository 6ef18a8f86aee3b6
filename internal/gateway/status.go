package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/modules/oracle/worker"
)

// StatusResponse is the JSON response for GET /api/admin/status.
type StatusResponse struct {
	Uptime    int64  `json:"uptime_seconds"`
	Sessions  int    `json:"sessions"`
	Topics    int    `json:"topics"`
	Knowledge string `json:"knowledge"`
	// Oracle is nil when no oracle is configured.
	Oracle  *oracle.Status `json:"oracle,omitempty"`
	Workers int            `json:"workers"`
}

// handleStatus reports uptime and the state of the engine.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   int64(time.Since(g.startedAt) / time.Second),
			Sessions: g.sessions.Len(),
		}
		idx := g.engine.Index()
		resp.Topics = idx.Len()
		resp.Knowledge = idx.Base().Metadata.Name
		if c := g.engine.Oracle(); c != nil {
			h := c.Health()
			resp.Oracle = &h
		}
		if pool, ok := core.Service[*worker.Pool](g.appCtx, worker.ServicePool); ok {
			resp.Workers = pool.Len()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
