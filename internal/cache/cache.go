// Package cache provides an in-memory, process-local cache of successful
// interpretations keyed by normalized input text. State is deliberately
// not shared across instances or persisted.
package cache

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/amartel/anota/internal/action"
)

const (
	// DefaultTTL is how long a cached interpretation stays valid.
	DefaultTTL = time.Hour
	// DefaultCapacity bounds the number of entries; the oldest entry is
	// evicted when the bound is hit.
	DefaultCapacity = 1000

	// maxKeyLength truncates normalized keys so pathological inputs don't
	// blow up key size.
	maxKeyLength = 200
)

type entry struct {
	interp    action.Interpretation
	timestamp time.Time
	hitCount  int
}

// Cache is a TTL + capacity bounded map guarded by a mutex. Safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// New creates a Cache. Non-positive ttl or capacity fall back to the
// defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Normalize reduces text to its cache key: lowercase, trimmed, whitespace
// collapsed, punctuation stripped, truncated.
func Normalize(text string) string {
	var sb strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			sb.WriteRune(r)
			lastSpace = false
		}
	}
	key := strings.TrimRight(sb.String(), " ")
	if runes := []rune(key); len(runes) > maxKeyLength {
		key = string(runes[:maxKeyLength])
	}
	return key
}

// Get looks up the interpretation cached for text. Expired entries are
// evicted on read and reported as misses.
func (c *Cache) Get(text string) (action.Interpretation, bool) {
	key := Normalize(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return action.Interpretation{}, false
	}
	if c.now().Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		return action.Interpretation{}, false
	}
	e.hitCount++
	return e.interp, true
}

// Put stores a successful interpretation for text, evicting the single
// oldest entry first when at capacity. Callers must not cache unknown or
// error results; Put rejects them.
func (c *Cache) Put(text string, interp action.Interpretation) {
	if interp.Type == action.TypeUnknown {
		return
	}
	key := Normalize(text)
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry{interp: interp, timestamp: c.now()}
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.timestamp.Before(oldest) {
			oldestKey, oldest = k, e.timestamp
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
