package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
)

// CacheKey identifies a cached grid: one fetch request's bounding box,
// source, and resolution.
func CacheKey(b geo.BoundingBox, sourceName string, resolutionM float64) string {
	return fmt.Sprintf("%s|%.0f|%.6f,%.6f,%.6f,%.6f", sourceName, resolutionM, b.South, b.North, b.West, b.East)
}

// GridCache is an in-memory TTL'd LRU for assembled elevation grids,
// short-circuiting the fetch/decode stages on repeat requests. Entries are
// deep snapshots: callers never share height buffers with the cache.
type GridCache struct {
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock

	mu      sync.Mutex
	entries map[string]*cacheEntry
	head    *cacheEntry // most recently used
	tail    *cacheEntry // least recently used
}

type cacheEntry struct {
	key     string
	grid    grid.ElevationGrid
	heights []float64
	stats   grid.Stats
	expires time.Time
	prev    *cacheEntry
	next    *cacheEntry
}

// NewGridCache creates a cache holding up to maxEntries grids for ttl
// each. Pass clockwork.NewRealClock outside tests.
func NewGridCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *GridCache {
	return &GridCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*cacheEntry),
	}
}

// Get returns a copy of the cached grid and its stats, if present and
// unexpired.
func (c *GridCache) Get(key string) (*grid.ElevationGrid, grid.Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, grid.Stats{}, false
	}
	if c.clock.Now().After(e.expires) {
		c.removeEntry(e)
		return nil, grid.Stats{}, false
	}
	c.moveToFront(e)

	out := e.grid
	out.Heights = make([]float64, len(e.heights))
	copy(out.Heights, e.heights)
	return &out, e.stats, true
}

// Put stores a snapshot of the grid under key.
func (c *GridCache) Put(key string, g *grid.ElevationGrid, stats grid.Stats) {
	if c.maxEntries <= 0 {
		return
	}

	heights := make([]float64, len(g.Heights))
	copy(heights, g.Heights)

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.grid = *g
		e.grid.Heights = nil
		e.heights = heights
		e.stats = stats
		e.expires = expires
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, grid: *g, heights: heights, stats: stats, expires: expires}
	e.grid.Heights = nil
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of live entries, expired or not.
func (c *GridCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *GridCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *GridCache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *GridCache) unlink(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *GridCache) removeEntry(e *cacheEntry) {
	delete(c.entries, e.key)
	c.unlink(e)
}

func (c *GridCache) evictTail() {
	if c.tail == nil {
		return
	}
	c.removeEntry(c.tail)
}
