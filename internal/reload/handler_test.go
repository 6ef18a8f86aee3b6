package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/knowledge"
)

const singleTopicKB = `{
  "metadata": {"name": "Ada Example", "email": "ada@example.com"},
  "knowledge_base": {
    "skills_rust": {
      "keywords": ["rust"],
      "content": "Systems programming in Rust.",
      "responses": {
        "hr": "Ada writes Rust.",
        "developer": "Rust for the hot paths.",
        "friend": "Rust is fun!"
      }
    }
  }
}`

type fixture struct {
	dir    string
	kb     string
	config string
	engine *chat.Engine
}

func newFixture(t *testing.T, modules string) fixture {
	t.Helper()
	dir := t.TempDir()
	src, err := os.ReadFile("../knowledge/testdata/kb.json")
	if err != nil {
		t.Fatal(err)
	}
	kb := filepath.Join(dir, "kb.json")
	if err := os.WriteFile(kb, src, 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "cvchat.yaml")
	body := "version: \"1\"\nknowledge:\n  path: " + kb + "\n" + modules
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	idx, err := knowledge.LoadIndex(kb)
	if err != nil {
		t.Fatal(err)
	}
	engine, err := chat.NewEngine(idx)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{dir: dir, kb: kb, config: cfgPath, engine: engine}
}

func TestHandler_ReloadSwapsKnowledgeBase(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	h := NewHandler(nil, nil, f.engine, f.config, nil)

	if got := f.engine.Index().Len(); got != 3 {
		t.Fatalf("initial topics = %d, want 3", got)
	}
	if err := os.WriteFile(f.kb, []byte(singleTopicKB), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := f.engine.Index().Len(); got != 1 {
		t.Errorf("topics after reload = %d, want 1", got)
	}
}

func TestHandler_ReloadKeepsIndexOnError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		corrupt func(f fixture) error
		want    string
	}{
		{"missing config", func(f fixture) error { return os.Remove(f.config) }, "reading"},
		{"invalid config", func(f fixture) error { return os.WriteFile(f.config, []byte("version: \"2\""), 0o600) }, "unsupported"},
		{"broken knowledge base", func(f fixture) error { return os.WriteFile(f.kb, []byte("{"), 0o600) }, "knowledge base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, "")
			h := NewHandler(nil, nil, f.engine, f.config, nil)
			before := f.engine.Index()

			if err := tt.corrupt(f); err != nil {
				t.Fatal(err)
			}
			err := h.Reload(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Reload error = %v, want mention of %q", err, tt.want)
			}
			if f.engine.Index() != before {
				t.Error("index was swapped despite the error")
			}
		})
	}
}

func TestHandler_ApplyCancelledContext(t *testing.T) {
	t.Parallel()
	f := newFixture(t, "")
	h := NewHandler(nil, nil, f.engine, f.config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &config.Config{Version: "1"}
	cfg.ApplyDefaults()
	if err := h.Apply(ctx, cfg); err == nil {
		t.Error("expected error for cancelled context")
	}
}

// reloadableModule counts Reload calls.
type reloadableModule struct {
	id    string
	calls *atomic.Int32
}

func (m *reloadableModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return m },
	}
}

func (m *reloadableModule) Reload(_ *core.AppContext) error {
	m.calls.Add(1)
	return nil
}

func TestHandler_ReloadNotifiesModules(t *testing.T) {
	t.Parallel()

	id := "oracle." + strings.ToLower(t.Name())
	calls := &atomic.Int32{}
	core.RegisterModule(&reloadableModule{id: id, calls: calls})

	f := newFixture(t, "modules:\n  "+id+": {}\n")
	appCtx := core.NewAppContext(slog.New(slog.DiscardHandler), f.dir)
	application := core.NewApp(appCtx)
	if err := application.LoadModules([]string{id}); err != nil {
		t.Fatalf("LoadModules: %v", err)
	}

	h := NewHandler(application, appCtx, f.engine, f.config, nil)
	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("module Reload calls = %d, want 1", got)
	}
}
