// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for cvchat.
package config

import (
	"time"

	"github.com/flemzord/cvchat/internal/cron"
	"github.com/flemzord/cvchat/internal/oracle"
	"github.com/flemzord/cvchat/internal/style"
	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultKnowledgePath = "knowledge.json"
	DefaultMaxSessions   = 1000
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultLogLevel      = "info"
	DefaultServiceName   = "cvchat"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the SQLite database and other module state.
	DataDir string `yaml:"data_dir"`

	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Chat      ChatConfig      `yaml:"chat"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// KnowledgeConfig locates the knowledge base.
type KnowledgeConfig struct {
	Path string `yaml:"path"`
	// Watch reloads the knowledge base when the file changes.
	Watch bool `yaml:"watch"`
}

// ChatConfig tunes the response engine.
type ChatConfig struct {
	DefaultStyle style.Style   `yaml:"default_style"`
	MaxResults   int           `yaml:"max_results"`
	CacheSize    int           `yaml:"cache_size"`
	Oracle       oracle.Config `yaml:"oracle"`
}

// SessionsConfig bounds the in-memory session store.
type SessionsConfig struct {
	Max             int           `yaml:"max"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
	// Retention is how long persisted turns are kept. Zero keeps them forever.
	Retention         time.Duration `yaml:"retention"`
	RetentionSchedule string        `yaml:"retention_schedule"`
}

// TelemetryConfig enables trace export.
type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP/HTTP collector endpoint; empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Knowledge.Path == "" {
		c.Knowledge.Path = DefaultKnowledgePath
	}
	if c.Sessions.Max <= 0 {
		c.Sessions.Max = DefaultMaxSessions
	}
	if c.Sessions.IdleTimeout <= 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Sessions.CleanupSchedule == "" {
		c.Sessions.CleanupSchedule = cron.DefaultCleanupSchedule
	}
	if c.Sessions.RetentionSchedule == "" {
		c.Sessions.RetentionSchedule = cron.DefaultRetentionSchedule
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
