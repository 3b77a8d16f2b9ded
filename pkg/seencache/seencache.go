// Package seencache tracks recently glimpsed pseudonyms for welcome toasts.
//
// The cache belongs to the presentation boundary: the derivation engines stay
// stateless across polls, while this cache remembers which pseudonyms were
// already greeted so a device is welcomed once per TTL, not on every poll.
package seencache

import (
	"sync"
	"time"
)

// Cache is a bounded, TTL-expiring set of pseudonyms. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	ttl        time.Duration
	maxEntries int
}

// New creates a Cache. Entries expire after ttl; when maxEntries is reached
// the oldest entry is evicted to admit a new one.
func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		entries:    make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// FirstGlimpse reports whether the pseudonym has not been seen within the
// TTL, and marks it seen at now. The first call for a pseudonym returns true;
// subsequent calls return false until the entry expires.
func (c *Cache) FirstGlimpse(pseudonym string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seenAt, ok := c.entries[pseudonym]
	if ok && now.Sub(seenAt) < c.ttl {
		c.entries[pseudonym] = now
		return false
	}

	if !ok && len(c.entries) >= c.maxEntries {
		c.evictExpired(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
	}

	c.entries[pseudonym] = now
	return true
}

// Len returns the number of tracked pseudonyms, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictExpired drops entries past the TTL. Caller must hold the lock.
func (c *Cache) evictExpired(now time.Time) {
	for p, seenAt := range c.entries {
		if now.Sub(seenAt) >= c.ttl {
			delete(c.entries, p)
		}
	}
}

// evictOldest drops the least recently seen entry. Caller must hold the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for p, seenAt := range c.entries {
		if first || seenAt.Before(oldestAt) {
			oldestKey, oldestAt = p, seenAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
