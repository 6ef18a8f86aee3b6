package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for oracle calls. Every one of them means the caller
// should answer from the local engine.
var (
	// ErrUnavailable indicates no oracle is reachable or it is backing off.
	ErrUnavailable = errors.New("oracle: unavailable")

	// ErrTimeout indicates the oracle did not answer within the timeout.
	ErrTimeout = errors.New("oracle: timeout")

	// ErrNotInitialized indicates Initialize has not succeeded yet.
	ErrNotInitialized = errors.New("oracle: not initialized")

	// ErrLowConfidence indicates the oracle answered below the accepted
	// confidence.
	ErrLowConfidence = errors.New("oracle: low confidence")
)

// ConfigError reports an invalid oracle configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oracle: invalid %s: %s", e.Field, e.Reason)
}

// Reason maps an oracle error to a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrLowConfidence):
		return "low_confidence"
	default:
		return "error"
	}
}
