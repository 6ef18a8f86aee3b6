package memory

import (
	"sync"
	"time"
)

// InMemoryHistoryStore is a thread-safe, in-memory implementation of HistoryStore.
type InMemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
}

// NewInMemoryHistoryStore creates a new empty history store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		sessions: make(map[string][]Turn),
	}
}

// Compile-time interface checks.
var (
	_ HistoryStore = (*InMemoryHistoryStore)(nil)
	_ Pruner       = (*InMemoryHistoryStore)(nil)
)

// Append adds a turn to the session's history.
func (s *InMemoryHistoryStore) Append(sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turn.Clone())
	return nil
}

// GetRecent returns the n most recent turns for a session.
func (s *InMemoryHistoryStore) GetRecent(sessionID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	if n < 0 {
		n = 0
	}
	start := 0
	if n < len(turns) {
		start = len(turns) - n
	}
	return cloneTurns(turns[start:]), nil
}

// GetAll returns all turns for a session.
func (s *InMemoryHistoryStore) GetAll(sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneTurns(turns), nil
}

// Purge removes all history for a session.
func (s *InMemoryHistoryStore) Purge(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len returns the number of turns stored for a session.
func (s *InMemoryHistoryStore) Len(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}

// PruneBefore deletes every turn recorded before cutoff. Sessions left
// without turns are dropped.
func (s *InMemoryHistoryStore) PruneBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, turns := range s.sessions {
		kept := turns[:0]
		for _, t := range turns {
			if t.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(s.sessions, id)
			continue
		}
		clear(turns[len(kept):])
		s.sessions[id] = kept
	}
	return removed, nil
}

func cloneTurns(in []Turn) []Turn {
	out := make([]Turn, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}
