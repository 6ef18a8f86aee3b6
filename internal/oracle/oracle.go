// Package oracle defines the capability interface of an out-of-process
// answer generator and a Caller that guards every call with a timeout,
// single-flight deduplication and health tracking. Callers treat any
// failure as a signal to answer from the local engine instead.
package oracle

import (
	"context"
	"time"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
	"github.com/flemzord/cvchat/internal/style"
)

// Timeout bounds.
const (
	DefaultTimeout = 10 * time.Second
	MinTimeout     = 5 * time.Second
	MaxTimeout     = 30 * time.Second

	// DefaultMinConfidence is the lowest answer confidence accepted.
	DefaultMinConfidence = 0.5
)

// Config is passed to the oracle at initialisation and governs the Caller.
type Config struct {
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	MinConfidence float64       `json:"min_confidence" yaml:"min_confidence"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.Timeout != 0 && (c.Timeout < MinTimeout || c.Timeout > MaxTimeout) {
		return &ConfigError{Field: "timeout", Reason: "must be between 5s and 30s"}
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return &ConfigError{Field: "min_confidence", Reason: "must be within [0, 1]"}
	}
	return nil
}

// Request is one query forwarded to the oracle.
type Request struct {
	// ID identifies the logical query; concurrent calls with the same ID
	// share one in-flight request.
	ID        string        `json:"id"`
	SessionID string        `json:"session_id,omitempty"`
	Query     string        `json:"query"`
	Style     style.Style   `json:"style"`
	Context   []memory.Turn `json:"context,omitempty"`
}

// Answer is the oracle's reply.
type Answer struct {
	Text            string   `json:"text"`
	Confidence      float64  `json:"confidence"`
	MatchedSections []string `json:"matched_sections,omitempty"`
}

// Oracle generates answers from a knowledge base.
type Oracle interface {
	// Initialize hands the knowledge base and config to the oracle. It may
	// be called again after a knowledge base reload.
	Initialize(ctx context.Context, base *knowledge.Base, cfg Config) error

	// ProcessQuery answers one request. Implementations must honour ctx.
	ProcessQuery(ctx context.Context, req Request) (Answer, error)
}

// HealthChecker is an optional interface for oracles that can be health-checked
// while the Caller has them marked unavailable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
