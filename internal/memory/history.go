// Package memory provides conversation history storage interfaces with an
// in-memory implementation.
package memory

import (
	"time"

	"github.com/flemzord/cvchat/internal/style"
)

// Turn is one completed exchange in a conversation. Turns are append-only.
type Turn struct {
	Timestamp       time.Time   `json:"timestamp"`
	UserMessage     string      `json:"user_message"`
	BotResponse     string      `json:"bot_response"`
	MatchedTopicIDs []string    `json:"matched_topic_ids,omitempty"`
	Confidence      float64     `json:"confidence"`
	Style           style.Style `json:"style"`
}

// Clone returns a deep copy of t.
func (t Turn) Clone() Turn {
	if t.MatchedTopicIDs != nil {
		t.MatchedTopicIDs = append([]string(nil), t.MatchedTopicIDs...)
	}
	return t
}

// HistoryStore manages session conversation history.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append adds a turn to the session's history.
	Append(sessionID string, turn Turn) error

	// GetRecent returns the n most recent turns for a session, oldest first.
	// If fewer than n turns exist, all turns are returned.
	GetRecent(sessionID string, n int) ([]Turn, error)

	// GetAll returns all turns for a session.
	GetAll(sessionID string) ([]Turn, error)

	// Purge removes all history for a session.
	Purge(sessionID string) error

	// Len returns the number of turns stored for a session.
	Len(sessionID string) (int, error)
}

// Pruner is implemented by history stores that can drop turns older than a
// retention cutoff.
type Pruner interface {
	// PruneBefore deletes every turn recorded before cutoff and returns how
	// many were removed.
	PruneBefore(cutoff time.Time) (int, error)
}
