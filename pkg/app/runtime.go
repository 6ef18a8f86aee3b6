package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/gateway"
	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/internal/session"
	"github.com/flemzord/cvchat/internal/style"
	"github.com/flemzord/cvchat/internal/telemetry"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
)

// ErrNoConfig is returned when no configuration file can be found.
var ErrNoConfig = errors.New("app: no configuration file found")

// LoadEnv loads variables from .env files into the process environment.
// Variables already set win. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("app: loading %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads and validates the configuration at path. An empty path
// is resolved with ResolveConfigPath. When optional is true and no file is
// found, a default configuration is returned with an empty path.
func LoadConfig(path string, optional bool) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		switch {
		case err != nil && optional && errors.Is(err, ErrNoConfig):
			cfg := &config.Config{Version: "1"}
			cfg.ApplyDefaults()
			return cfg, "", nil
		case err != nil:
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// NewLogger builds the process logger. Every record passes through the
// redactor before reaching w.
func NewLogger(w io.Writer, cfg config.LogConfig, redactor *security.Redactor) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// Runtime is the engine stack shared by every command: the indexed
// knowledge base, the chat engine and the session store.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Engine   *chat.Engine
	Sessions *session.Store
}

// NewRuntime loads the knowledge base named by cfg and builds the engine.
func NewRuntime(cfg *config.Config, logger *slog.Logger, redactor *security.Redactor) (*Runtime, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}

	idx, err := knowledge.LoadIndex(cfg.Knowledge.Path,
		knowledge.WithCacheSize(cfg.Chat.CacheSize),
		knowledge.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: loading knowledge base: %w", err)
	}

	engine, err := chat.NewEngine(idx,
		chat.WithLogger(logger),
		chat.WithMaxResults(cfg.Chat.MaxResults),
		chat.WithTracer(otel.Tracer(telemetry.TracerName)),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("knowledge base loaded", "path", cfg.Knowledge.Path, "topics", idx.Len())
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Redactor: redactor,
		Engine:   engine,
		Sessions: session.NewStore(engine,
			session.WithMaxSessions(cfg.Sessions.Max),
			session.WithLogger(logger),
		),
	}, nil
}

// Register publishes the runtime services modules resolve during
// provisioning.
func (rt *Runtime) Register(appCtx *core.AppContext) {
	appCtx.RegisterService(chat.ServiceName, rt.Engine)
	appCtx.RegisterService(session.ServiceName, rt.Sessions)
	appCtx.RegisterService(gateway.ServiceRedactor, rt.Redactor)
}

// Style returns s when valid, else the configured default style, else the
// fallback style.
func (rt *Runtime) Style(s string) style.Style {
	if st := style.Style(s); st.Valid() {
		return st
	}
	if rt.Config.Chat.DefaultStyle.Valid() {
		return rt.Config.Chat.DefaultStyle
	}
	return style.Fallback
}

// Ask answers a single question in a throwaway session.
func (rt *Runtime) Ask(ctx context.Context, st style.Style, question string) (chat.Reply, error) {
	sess, err := rt.Engine.NewSession("", st)
	if err != nil {
		return chat.Reply{}, err
	}
	return sess.Ask(ctx, question)
}
