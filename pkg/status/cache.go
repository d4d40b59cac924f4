package status

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// cacheEntry holds one upstream response body and when it was fetched
type cacheEntry struct {
	payload   []byte
	fetchedAt time.Time
}

// responseCache is a process-local TTL cache keyed by the exact request URL
type responseCache struct {
	entries *xsync.MapOf[string, cacheEntry]
	ttl     time.Duration
	clock   Clock
}

func newResponseCache(ttl time.Duration, clock Clock) *responseCache {
	return &responseCache{
		entries: xsync.NewMapOf[string, cacheEntry](),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	entry, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(entry.fetchedAt) >= c.ttl {
		c.entries.Delete(key)
		return nil, false
	}
	return entry.payload, true
}

func (c *responseCache) put(key string, payload []byte) {
	if c.ttl <= 0 {
		return
	}
	now := c.clock.Now()
	c.entries.Store(key, cacheEntry{payload: payload, fetchedAt: now})
	c.sweep(now)
}

// sweep drops expired entries so the map cannot grow without bound
func (c *responseCache) sweep(now time.Time) {
	c.entries.Range(func(key string, entry cacheEntry) bool {
		if now.Sub(entry.fetchedAt) >= c.ttl {
			c.entries.Delete(key)
		}
		return true
	})
}

func (c *responseCache) clear() {
	c.entries.Clear()
}

func (c *responseCache) size() int {
	return c.entries.Size()
}
