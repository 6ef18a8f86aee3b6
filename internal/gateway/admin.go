package gateway

import (
	"net/http"

	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/session"
	"github.com/flemzord/cvchat/modules/oracle/worker"
	"github.com/go-chi/chi/v5"
)

// handleListSessions returns every live session.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sessions := g.sessions.List()
		if sessions == nil {
			sessions = []session.Info{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// handleDeleteSession evicts a session by id.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.sessions.Delete(chi.URLParam(r, "id")) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListWorkers lists the connected answer workers. Without the worker
// bridge the list is empty.
func (g *Gateway) handleListWorkers() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		workers := []worker.Info{}
		if pool, ok := core.Service[*worker.Pool](g.appCtx, worker.ServicePool); ok {
			workers = pool.Snapshot()
		}
		writeJSON(w, http.StatusOK, workers)
	}
}

type moduleJSON struct {
	ID        string   `json:"id"`
	Namespace string   `json:"namespace"`
	Hooks     []string `json:"hooks"`
}

// handleListModules lists every compiled module in load order with the
// lifecycle hooks it implements.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{ID: string(m.ID), Namespace: m.ID.Namespace(), Hooks: core.Hooks(m.New())})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the configuration file as JSON with secrets
// redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		path, ok := core.Service[string](g.appCtx, config.ServicePath)
		if !ok || path == "" {
			writeError(w, http.StatusServiceUnavailable, "config path not set")
			return
		}

		doc, err := config.LoadDocument(path)
		if err != nil {
			g.logger.Error("loading config for display", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load config")
			return
		}

		g.redactor.RedactMap(doc)
		writeJSON(w, http.StatusOK, doc)
	}
}

// handleReload triggers a reload of the knowledge base and modules.
func (g *Gateway) handleReload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reloader, ok := core.Service[Reloader](g.appCtx, ServiceReloader)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "reload not available")
			return
		}
		if err := reloader.Reload(r.Context()); err != nil {
			g.logger.Error("reload failed", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Info("reload triggered from admin api")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
