// Package gateway serves the chat engine over HTTP: the visitor session
// API, stateless query endpoints, health, Prometheus metrics and an
// authenticated admin surface. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/internal/session"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Service names resolved or registered by the gateway.
const (
	ServiceMetrics  = "gateway.metrics"
	ServiceReloader = "app.reloader"
	ServiceRedactor = "security.redactor"
)

// Reloader re-reads the knowledge base and module configuration on demand.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	limiter   *security.RateLimiter
	startedAt time.Time

	engine   *chat.Engine
	sessions *session.Store
	redactor *security.Redactor

	stopSweep context.CancelFunc
	sweepDone sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The chat engine and the session
// store must already be registered as services.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.engine, _ = core.Service[*chat.Engine](ctx, chat.ServiceName)
	g.sessions, _ = core.Service[*session.Store](ctx, session.ServiceName)
	g.redactor, _ = core.Service[*security.Redactor](ctx, ServiceRedactor)
	if g.redactor == nil {
		g.redactor = security.NewRedactor()
	}
	g.redactor.AddLiteral(g.config.Auth.BearerToken, g.config.Auth.BasicPass)

	g.limiter = security.NewRateLimiter(g.config.RateLimit)
	g.metrics = NewMetrics(g.sessions)
	if g.engine != nil {
		g.engine.AddObserver(g.metrics)
	}
	ctx.RegisterService(ServiceMetrics, g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	if g.engine == nil {
		return errors.New("gateway: chat engine service not registered")
	}
	if g.sessions == nil {
		return errors.New("gateway: session store service not registered")
	}
	return nil
}

// Start implements core.Starter. Optional services such as the worker
// endpoint are resolved here so every module has been provisioned.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	g.stopSweep = cancel
	g.sweepDone.Add(1)
	go g.sweepLimiter(sweepCtx)

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.stopSweep != nil {
		g.stopSweep()
		g.sweepDone.Wait()
	}
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) sweepLimiter(ctx context.Context) {
	defer g.sweepDone.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.limiter.Sweep()
		}
	}
}
