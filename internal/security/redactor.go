package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces redacted values.
const RedactPlaceholder = "***REDACTED***"

var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|api_key|credential)`)

// Redactor removes secrets and visitor contact details from strings and
// maps. It matches regex patterns and literal values registered at
// runtime. All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers secret values, such as configured tokens, to be
// redacted on sight. Empty strings are ignored.
func (r *Redactor) AddLiteral(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if s != "" {
			r.literals = append(r.literals, s)
		}
	}
}

// Redact replaces every known pattern and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// IsSecretKey reports whether a map or attribute key names a secret.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// RedactMap walks m in place. String values under secret-looking keys are
// replaced outright; other strings go through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			m[k] = RedactPlaceholder
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for i, item := range val {
				switch sub := item.(type) {
				case map[string]any:
					r.RedactMap(sub)
				case string:
					if IsSecretKey(k) {
						val[i] = RedactPlaceholder
					} else {
						val[i] = r.Redact(sub)
					}
				}
			}
		case string:
			m[k] = r.Redact(val)
		}
	}
}

// DefaultPatterns matches credentials and e-mail addresses.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]{8,}=*`),
		regexp.MustCompile(`(?i)authorization:\s*\S+(\s+\S+)?`),
		regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	}
}
