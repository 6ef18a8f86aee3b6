// Package app provides the shared bootstrap behind the cvchat commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/cron"
	"github.com/flemzord/cvchat/internal/gateway"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/reload"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/internal/telemetry"
	"github.com/flemzord/cvchat/modules/memory/sqlite"
	"github.com/flemzord/cvchat/modules/oracle/worker"
)

const shutdownTimeout = 10 * time.Second

// RunParams configures the server loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string
}

// Run loads configuration, starts all modules, and blocks until ctx is
// cancelled or a shutdown signal is received. SIGHUP and config file
// changes trigger a live reload of the knowledge base and modules.
func Run(ctx context.Context, params RunParams) error {
	if err := LoadEnv(); err != nil {
		return err
	}
	cfg, cfgPath, err := LoadConfig(params.ConfigPath, false)
	if err != nil {
		return err
	}

	redactor := security.NewRedactor()
	logger, err := NewLogger(os.Stderr, cfg.Log, redactor)
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     params.Version,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	rt, err := NewRuntime(cfg, logger, redactor)
	if err != nil {
		return err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return fmt.Errorf("app: creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
	rt.Register(appCtx)
	appCtx.RegisterService(config.ServicePath, cfgPath)

	application := core.NewApp(appCtx)
	handler := reload.NewHandler(application, appCtx, rt.Engine, cfgPath, logger)
	appCtx.RegisterService(gateway.ServiceReloader, gateway.Reloader(handler))

	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return err
	}

	history := wireHistory(appCtx, rt, logger)
	caller, err := wireOracle(ctx, appCtx, rt, logger)
	if err != nil {
		return err
	}

	scheduler, err := newScheduler(rt, history, logger)
	if err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}
	defer application.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := scheduler.Start(runCtx); err != nil {
		return err
	}
	defer func() { _ = scheduler.Stop(context.WithoutCancel(ctx)) }()

	if caller != nil {
		caller.Start(runCtx)
		defer caller.Stop()
	}

	if cfg.Knowledge.Watch {
		kbWatcher := knowledge.NewWatcher(cfg.Knowledge.Path, rt.Engine.SwapIndex,
			knowledge.WithWatcherLogger(logger),
			knowledge.WithIndexOptions(knowledge.WithCacheSize(cfg.Chat.CacheSize), knowledge.WithLogger(logger)),
		)
		if err := kbWatcher.Start(runCtx); err != nil {
			logger.Warn("knowledge watcher unavailable", "error", err)
		} else {
			defer kbWatcher.Stop()
		}
	}

	cfgWatcher := reload.NewWatcher(reload.WatcherConfig{Paths: []string{cfgPath}})
	cfgWatcher.Start(runCtx)
	defer cfgWatcher.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	logger.Info("cvchat started", "version", params.Version, "config", cfgPath, "data_dir", dataDir)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested", "cause", context.Cause(ctx))
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.Reload(runCtx); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			return nil
		case evt := <-cfgWatcher.Events():
			logger.Info("config file changed, reloading", "path", evt.Path)
			if err := handler.Reload(runCtx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// wireHistory attaches the persistent history store published by the
// memory.sqlite module, if loaded.
func wireHistory(appCtx *core.AppContext, rt *Runtime, logger *slog.Logger) memory.HistoryStore {
	store, ok := core.Service[memory.HistoryStore](appCtx, sqlite.ServiceName)
	if !ok {
		return nil
	}
	rt.Engine.SetHistoryStore(store)
	logger.Info("persistent conversation history enabled")
	return store
}

// wireOracle wraps the worker bridge, if loaded, in a caller and hands it
// the knowledge base. Workers connecting later receive it on handshake.
func wireOracle(ctx context.Context, appCtx *core.AppContext, rt *Runtime, logger *slog.Logger) (*oracle.Caller, error) {
	o, ok := core.Service[oracle.Oracle](appCtx, worker.ServiceOracle)
	if !ok {
		return nil, nil
	}
	caller, err := oracle.NewCaller(o,
		oracle.WithConfig(rt.Config.Chat.Oracle),
		oracle.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := caller.Initialize(ctx, rt.Engine.Base()); err != nil {
		logger.Warn("oracle initialization failed, answering locally until a worker is ready", "error", err)
	}
	rt.Engine.SetOracle(caller)
	return caller, nil
}

func newScheduler(rt *Runtime, history memory.HistoryStore, logger *slog.Logger) (*cron.Scheduler, error) {
	scheduler := cron.NewScheduler(logger)
	err := scheduler.RegisterJob(&cron.SessionCleanupJob{
		Store:        rt.Sessions,
		MaxIdle:      rt.Config.Sessions.IdleTimeout,
		Logger:       logger,
		ScheduleExpr: rt.Config.Sessions.CleanupSchedule,
	})
	if err != nil {
		return nil, err
	}

	pruner, ok := history.(memory.Pruner)
	if !ok || rt.Config.Sessions.Retention <= 0 {
		return scheduler, nil
	}
	err = scheduler.RegisterJob(&cron.HistoryRetentionJob{
		Store:        pruner,
		Retention:    rt.Config.Sessions.Retention,
		Logger:       logger,
		ScheduleExpr: rt.Config.Sessions.RetentionSchedule,
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}
