package rescache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aldan/opschat/internal/metrics"
)

// entry is one cached value with its expiry instant
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Stats summarizes cache activity since process start
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
}

// Cache is an in-memory TTL cache for reasoning engine results. The
// cache itself is TTL-agnostic: each Set carries its own lifetime,
// chosen by the call site.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  zerolog.Logger

	statsMu sync.Mutex
	stats   Stats

	janitorStop chan struct{}
}

// New creates an empty response cache
func New(logger zerolog.Logger) *Cache {
	metrics.EnsureRegistered()

	return &Cache{
		entries: make(map[string]entry),
		logger:  logger,
	}
}

// Get looks up a key. Expired entries are removed lazily and count as
// misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Reverify under the write lock; a writer may have refreshed it.
		if cur, still := c.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
			metrics.RecordCacheEviction(1)
			c.statsMu.Lock()
			c.stats.Evictions++
			c.statsMu.Unlock()
		}
		c.mu.Unlock()
		ok = false
	}

	c.statsMu.Lock()
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	c.statsMu.Unlock()

	if ok {
		metrics.RecordCacheOp("get", "hit")
		return e.value, true
	}
	metrics.RecordCacheOp("get", "miss")
	return nil, false
}

// Set stores a value for ttl. Last writer wins: values are derived
// deterministically from identical inputs, so concurrent writers for
// one key write equivalent values.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	size := len(c.entries)
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Sets++
	c.statsMu.Unlock()

	metrics.RecordCacheOp("set", "ok")
	metrics.SetCacheEntries(size)

	c.logger.Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Msg("Response cached")
}

// Delete removes a single key
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	size := len(c.entries)
	c.mu.Unlock()

	if ok {
		c.statsMu.Lock()
		c.stats.Deletes++
		c.statsMu.Unlock()
		metrics.RecordCacheOp("delete", "ok")
		metrics.SetCacheEntries(size)
	}

	return ok
}

// Flush removes every entry whose key starts with KeyPrefix+prefix.
// An empty prefix flushes the whole namespace. Keys outside the
// namespace are never touched.
func (c *Cache) Flush(prefix string) int {
	full := KeyPrefix + prefix

	c.mu.Lock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, full) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.statsMu.Lock()
		c.stats.Deletes += int64(removed)
		c.statsMu.Unlock()
		metrics.SetCacheEntries(size)
	}

	metrics.RecordCacheOp("flush", "ok")

	c.logger.Info().
		Str("prefix", prefix).
		Int("removed", removed).
		Msg("Cache flushed")

	return removed
}

// Keys lists live (unexpired) keys within the namespace, optionally
// narrowed by prefix.
func (c *Cache) Keys(prefix string) []string {
	full := KeyPrefix + prefix
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if strings.HasPrefix(key, full) && now.Before(e.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns a snapshot of cache statistics
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	snapshot := c.stats
	snapshot.Entries = size
	return snapshot
}

// StartJanitor begins periodic removal of expired entries. Expiry is
// also enforced lazily on Get; the janitor just keeps memory bounded
// for keys that are never read again.
func (c *Cache) StartJanitor(interval time.Duration) {
	if c.janitorStop != nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	c.janitorStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.janitorStop:
				return
			}
		}
	}()

	c.logger.Info().Dur("interval", interval).Msg("Cache janitor started")
}

// StopJanitor stops the janitor goroutine
func (c *Cache) StopJanitor() {
	if c.janitorStop == nil {
		return
	}
	close(c.janitorStop)
	c.janitorStop = nil
}

func (c *Cache) evictExpired() {
	now := time.Now()

	c.mu.Lock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += int64(removed)
		c.statsMu.Unlock()

		metrics.RecordCacheEviction(removed)
		metrics.SetCacheEntries(size)

		c.logger.Debug().Int("removed", removed).Msg("Expired cache entries removed")
	}
}
