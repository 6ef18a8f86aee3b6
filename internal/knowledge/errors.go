// Package knowledge loads the portfolio knowledge base, validates it, and
// ranks its topics against free-text queries using exact keyword, semantic
// vocabulary and substring matching.
package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for knowledge operations.
var (
	// ErrInvalidBase is matched (via errors.Is) by every *ValidationError.
	ErrInvalidBase = errors.New("knowledge: invalid knowledge base")

	// ErrUnsupportedFormat indicates the file extension is neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("knowledge: unsupported format")
)

// Violation describes one problem found while validating a knowledge base.
type Violation struct {
	// Topic is the offending topic id, empty for document-level problems.
	Topic string
	// Field is the offending field, e.g. "keywords" or "responses.hr".
	Field  string
	Reason string
}

// String renders the violation for error messages.
func (v Violation) String() string {
	if v.Topic == "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Reason)
	}
	return fmt.Sprintf("topic %q: %s: %s", v.Topic, v.Field, v.Reason)
}

// ValidationError lists every violation found in a knowledge base. A base
// that fails validation is never partially loaded.
type ValidationError struct {
	Violations []Violation
}

// Error implements error.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("knowledge: invalid knowledge base (%d violations): %s",
		len(e.Violations), strings.Join(parts, "; "))
}

// Is reports whether target is ErrInvalidBase.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidBase
}
