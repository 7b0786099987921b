// Package cache holds raw Horizons reports in a bounded least-recently-used
// cache keyed by body ID.
//
// Only successful upstream responses are stored, and the raw text is kept
// rather than the extracted record, so a hit returns exactly the bytes the
// original fetch produced.
package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/star/ephemgo/internal/metrics"
)

// DefaultCapacity is the number of reports kept when no capacity is configured.
const DefaultCapacity = 50

// LRU is a fixed-capacity report cache. Safe for concurrent use.
type LRU struct {
	mu       sync.Mutex
	entries  *simplelru.LRU[int, string]
	capacity int
}

// New creates a cache holding at most capacity reports.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *LRU {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	entries, err := simplelru.NewLRU[int, string](capacity, func(int, string) {
		metrics.IncCacheEvictions()
	})
	if err != nil {
		// Only returned for a non-positive size, which is ruled out above.
		panic(err)
	}
	return &LRU{
		entries:  entries,
		capacity: capacity,
	}
}

// Get returns the report cached for id and marks it most recently used.
func (c *LRU) Get(id int) (string, bool) {
	c.mu.Lock()
	report, ok := c.entries.Get(id)
	c.mu.Unlock()

	if ok {
		metrics.IncCacheHits()
	} else {
		metrics.IncCacheMisses()
	}
	return report, ok
}

// Put stores report under id, evicting the least recently used entry
// when the cache is full.
func (c *LRU) Put(id int, report string) {
	c.mu.Lock()
	c.entries.Add(id, report)
	n := c.entries.Len()
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
}

// Peek returns the report cached for id without refreshing its recency or
// counting a hit or miss.
func (c *LRU) Peek(id int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Peek(id)
}

// Len returns the number of cached reports.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Cap returns the maximum number of cached reports.
func (c *LRU) Cap() int {
	return c.capacity
}
