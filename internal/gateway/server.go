package gateway

import (
	"net/http"

	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/modules/oracle/worker"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.instrument)
	r.Use(g.cors)

	// Public, no auth.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/styles", g.handleStyles())
		r.Post("/classify", g.handleClassify())
		r.Post("/topics", g.handleTopics())

		r.Route("/sessions", func(r chi.Router) {
			r.With(g.rateLimit(security.KindSession)).Post("/", g.handleCreateSession())
			r.Route("/{id}", func(r chi.Router) {
				r.Use(g.loadSession)
				r.Delete("/", g.handleEndSession())
				r.Put("/style", g.handleSetStyle())
				r.With(g.rateLimit(security.KindMessage)).Post("/messages", g.handleMessage())
				r.Get("/stats", g.handleStats())
				r.Get("/history", g.handleHistory())
				r.Post("/reset", g.handleReset())
				r.With(g.rateLimit(security.KindHandoff)).Post("/handoff", g.handleHandoff())
			})
		})

		// Admin endpoints are only mounted when auth is configured.
		if g.config.Auth.IsConfigured() {
			r.Route("/admin", func(r chi.Router) {
				r.Use(authMiddleware(g.config.Auth, g.limiter, g.logger))
				r.Get("/status", g.handleStatus())
				r.Get("/sessions", g.handleListSessions())
				r.Delete("/sessions/{id}", g.handleDeleteSession())
				r.Get("/workers", g.handleListWorkers())
				r.Get("/modules", g.handleListModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/reload", g.handleReload())
			})
		}
	})

	// Worker WebSocket, token authenticated by the bridge itself.
	if handler, ok := core.Service[http.Handler](g.appCtx, worker.ServiceHandler); ok {
		r.Handle("/ws/worker", handler)
	}

	return r
}

// cors allows browser calls from the configured origins.
func (g *Gateway) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(g.config.AllowedOrigins))
	wildcard := false
	for _, o := range g.config.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
