package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/gateway"
	"github.com/flemzord/cvchat/internal/knowledge"
)

var _ gateway.Reloader = (*Handler)(nil)

// Handler re-reads the configuration, swaps in a freshly indexed knowledge
// base and notifies modules. Concurrent reloads are serialised.
type Handler struct {
	app        *core.App
	appCtx     *core.AppContext
	engine     *chat.Engine
	configPath string
	logger     *slog.Logger

	mu sync.Mutex
}

// NewHandler creates a reload handler. app may be nil when no modules are
// loaded, as in the one-shot CLI commands.
func NewHandler(app *core.App, appCtx *core.AppContext, engine *chat.Engine, configPath string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		app:        app,
		appCtx:     appCtx,
		engine:     engine,
		configPath: configPath,
		logger:     logger,
	}
}

// Reload loads and validates the configuration file, then applies it.
// A failing step leaves the running index and modules untouched.
func (h *Handler) Reload(ctx context.Context) error {
	cfg, err := config.Load(h.configPath)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return h.Apply(ctx, cfg)
}

// Apply reloads from an already validated config.
func (h *Handler) Apply(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reload: context cancelled before reload: %w", err)
	}
	if h.engine == nil {
		return errors.New("reload: no chat engine")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := knowledge.LoadIndex(cfg.Knowledge.Path,
		knowledge.WithCacheSize(cfg.Chat.CacheSize),
		knowledge.WithLogger(h.logger),
	)
	if err != nil {
		return fmt.Errorf("reload: knowledge base: %w", err)
	}
	h.engine.SwapIndex(idx)

	if h.app != nil && h.appCtx != nil {
		if err := h.app.ReloadModules(h.appCtx.WithModuleConfigs(cfg.Modules)); err != nil {
			return fmt.Errorf("reload: modules: %w", err)
		}
	}

	h.logger.Info("configuration reloaded", "topics", idx.Len(), "knowledge", cfg.Knowledge.Path)
	return nil
}
