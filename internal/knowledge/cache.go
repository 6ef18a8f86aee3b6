package knowledge

import (
	"container/list"
	"strconv"
	"sync"
)

// queryCache is a bounded LRU of ranked results keyed by lower-cased query
// and result limit. It is owned by one Index, so swapping the index drops it.
type queryCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key     string
	matches []Match
}

func newQueryCache(max int) *queryCache {
	if max <= 0 {
		return nil
	}
	return &queryCache{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element, max),
	}
}

func cacheKey(query string, maxResults int) string {
	return strconv.Itoa(maxResults) + "\x00" + query
}

func (c *queryCache) get(query string, maxResults int) ([]Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[cacheKey(query, maxResults)]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return cloneMatches(el.Value.(*cacheEntry).matches), true
}

func (c *queryCache) put(query string, maxResults int, matches []Match) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, maxResults)
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).matches = cloneMatches(matches)
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, matches: cloneMatches(matches)})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneMatches(in []Match) []Match {
	if in == nil {
		return nil
	}
	out := make([]Match, len(in))
	for i, m := range in {
		m.MatchedTerms = append([]string(nil), m.MatchedTerms...)
		out[i] = m
	}
	return out
}
