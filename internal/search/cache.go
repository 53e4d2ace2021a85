package search

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type cacheEntry struct {
	people   []Person
	storedAt time.Time
}

// Cache maps a normalised query to its results. Entries are only dropped when read after
// their TTL or on Clear.
type Cache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
}

func NewCache(clock clockwork.Clock, ttl time.Duration) *Cache {
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(query string) ([]Person, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	if c.clock.Since(entry.storedAt) >= c.ttl {
		delete(c.entries, query)
		return nil, false
	}
	return append([]Person(nil), entry.people...), true
}

func (c *Cache) Set(query string, people []Person) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = cacheEntry{
		people:   append([]Person(nil), people...),
		storedAt: c.clock.Now(),
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
