package rules

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry pairs a resolved rule with its expiry instant.
type cacheEntry struct {
	rule      MarkingRule
	expiresAt time.Time
}

// Cache is a TTL cache for resolved rules. Reads are read-mostly and safe
// for concurrent use; Delete of a key happens-before any subsequent Get of
// that key (both go through the same mutex).
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

const DefaultCacheTTL = 5 * time.Minute

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(key string) (MarkingRule, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		return MarkingRule{}, false
	}
	return e.rule, true
}

func (c *Cache) Put(key string, r MarkingRule) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{rule: r, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix. Used to
// invalidate all cached resolutions for one question when an override is
// registered after the fact.
func (c *Cache) DeletePrefix(prefix string) {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep evicts expired entries and returns how many were removed. Expired
// entries are also rejected on read, so sweeping only bounds memory.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Janitor sweeps at the given interval until stop is closed.
func (c *Cache) Janitor(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = c.ttl
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}
