package engine

import (
	"sync"
	"time"
)

// CachedResponse is what the Response Cache stores per key.
type CachedResponse struct {
	Content   string
	ToolsUsed []string
	CachedAt  time.Time
}

// ResponseCache is a concurrency-safe, TTL- and size-bounded cache keyed by
// arc.CacheKey. Grounded on the teacher's dedupe.DedupeCache: mutex-guarded
// map, lazy TTL prune, oldest-entry eviction over budget -- re-keyed here to
// the spec's (content, toolsUsed, cachedAt) value shape instead of message
// dedup timestamps.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]CachedResponse
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewResponseCache builds a cache with the given TTL and max entry count.
// ttl<=0 defaults to 60 minutes; maxSize<=0 defaults to 1000.
func NewResponseCache(ttl time.Duration, maxSize int) *ResponseCache {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ResponseCache{
		entries: make(map[string]CachedResponse),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached response for key, if present and unexpired.
func (c *ResponseCache) Get(key string) (CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return CachedResponse{}, false
	}
	if c.now().Sub(entry.CachedAt) > c.ttl {
		delete(c.entries, key)
		return CachedResponse{}, false
	}
	return entry, true
}

// Put stores a response under key, pruning expired/overflow entries first.
func (c *ResponseCache) Put(key string, resp CachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp.CachedAt = c.now()
	c.prune()
	c.entries[key] = resp
}

// prune removes expired entries, then evicts oldest entries one at a time
// until there is room for one more below maxSize. Caller must hold c.mu.
func (c *ResponseCache) prune() {
	now := c.now()
	for k, v := range c.entries {
		if now.Sub(v.CachedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, v := range c.entries {
			if first || v.CachedAt.Before(oldestAt) {
				oldestKey, oldestAt, first = k, v.CachedAt, false
			}
		}
		if first {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// Size returns the current entry count.
func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheEligible implements the open-question policy decision recorded in
// DESIGN.md: only tool-free, temperature==0 (or unset) commands are cache
// candidates.
func CacheEligible(hasTools bool, temperature *float64) bool {
	if hasTools {
		return false
	}
	return temperature == nil || *temperature == 0
}
