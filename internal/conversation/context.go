package conversation

import (
	"slices"

	"github.com/flemzord/cvchat/internal/knowledge"
	"github.com/flemzord/cvchat/internal/memory"
)

// Context returns up to limit turns relevant to topics, oldest first. Turns
// match when one of their topics equals a requested id or shares its
// category. Without topics, or when nothing matches, the most recent turns
// are returned. A non-positive limit means DefaultContextLimit.
func (m *Manager) Context(topics []string, limit int) []memory.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneTurns(m.contextLocked(topics, limit))
}

func (m *Manager) contextLocked(topics []string, limit int) []memory.Turn {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if len(topics) == 0 || len(m.history) == 0 {
		return lastN(m.history, limit)
	}

	var picked []memory.Turn
	for i := len(m.history) - 1; i >= 0 && len(picked) < limit; i-- {
		if overlaps(m.history[i].MatchedTopicIDs, topics) {
			picked = append(picked, m.history[i])
		}
	}
	if len(picked) == 0 {
		return lastN(m.history, limit)
	}
	slices.Reverse(picked)
	return picked
}

func lastN(turns []memory.Turn, n int) []memory.Turn {
	if n >= len(turns) {
		return turns
	}
	return turns[len(turns)-n:]
}

// overlaps reports whether any id in a relates to any id in b by identity
// or category.
func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y || knowledge.Category(x) == knowledge.Category(y) {
				return true
			}
		}
	}
	return false
}
