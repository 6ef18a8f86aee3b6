package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/cvchat/internal/cron"
)

// Validate checks the structural validity of a Config: the version, the
// module IDs against the registry, the chat and session settings and the
// log level. All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, moduleErrors(cfg)...)

	errs = append(errs, validateChat(cfg.Chat)...)
	errs = append(errs, validateSessions(cfg.Sessions)...)

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q must be text or json", cfg.Log.Format))
	}

	return errors.Join(errs...)
}

func validateChat(c ChatConfig) []error {
	var errs []error
	if c.DefaultStyle != "" && !c.DefaultStyle.Valid() {
		errs = append(errs, fmt.Errorf("config: chat.default_style %q is not a known style", c.DefaultStyle))
	}
	if c.MaxResults < 0 {
		errs = append(errs, errors.New("config: chat.max_results must not be negative"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("config: chat.cache_size must not be negative"))
	}
	if err := c.Oracle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: chat.oracle: %w", err))
	}
	return errs
}

func validateSessions(s SessionsConfig) []error {
	var errs []error
	if s.Max < 0 {
		errs = append(errs, errors.New("config: sessions.max must not be negative"))
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, errors.New("config: sessions.idle_timeout must not be negative"))
	}
	if s.Retention < 0 {
		errs = append(errs, errors.New("config: sessions.retention must not be negative"))
	}
	schedules := []struct{ field, expr string }{
		{"cleanup_schedule", s.CleanupSchedule},
		{"retention_schedule", s.RetentionSchedule},
	}
	for _, sc := range schedules {
		if sc.expr == "" {
			continue
		}
		if err := cron.ValidateSchedule(sc.expr); err != nil {
			errs = append(errs, fmt.Errorf("config: sessions.%s: %w", sc.field, err))
		}
	}
	return errs
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", s, err)
	}
	return level, nil
}
