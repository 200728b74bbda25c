package source

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
)

func testElevationGrid() *grid.ElevationGrid {
	return &grid.ElevationGrid{
		Cols: 2, Rows: 2,
		OriginLon: 10.5, OriginLat: 60.0,
		CellSizeLonDeg: 0.1, CellSizeLatDeg: 0.05,
		Heights: []float64{100, 110, 120, 130},
		NoData:  grid.NoDataMarker,
	}
}

func TestGridCache_PutGet(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewGridCache(4, time.Hour, clock)

	g := testElevationGrid()
	stats := grid.Stats{MinElevation: 100, MaxElevation: 130, FilledCells: 4}
	c.Put("k", g, stats)

	got, gotStats, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, g.Heights, got.Heights)
	assert.Equal(t, stats, gotStats)

	// The cache hands out snapshots, never shared buffers.
	got.Heights[0] = -1
	again, _, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 100.0, again.Heights[0])
}

func TestGridCache_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewGridCache(4, 10*time.Minute, clock)

	c.Put("k", testElevationGrid(), grid.Stats{})

	clock.Advance(9 * time.Minute)
	_, _, ok := c.Get("k")
	assert.True(t, ok, "entry still fresh")

	clock.Advance(2 * time.Minute)
	_, _, ok = c.Get("k")
	assert.False(t, ok, "entry expired")
	assert.Zero(t, c.Len(), "expired entry was dropped")
}

func TestGridCache_LRUEviction(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewGridCache(2, time.Hour, clock)

	c.Put("a", testElevationGrid(), grid.Stats{})
	c.Put("b", testElevationGrid(), grid.Stats{})

	// Touch "a" so "b" is the eviction candidate.
	_, _, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", testElevationGrid(), grid.Stats{})
	assert.Equal(t, 2, c.Len())

	_, _, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry was evicted")
	_, _, ok = c.Get("a")
	assert.True(t, ok)
	_, _, ok = c.Get("c")
	assert.True(t, ok)
}

func TestGridCache_Disabled(t *testing.T) {
	c := NewGridCache(0, time.Hour, clockwork.NewFakeClock())
	c.Put("k", testElevationGrid(), grid.Stats{})
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCacheKey_DistinguishesRequests(t *testing.T) {
	a := geo.BoundingBox{South: 59.9, North: 60.0, West: 10.5, East: 10.7}
	b := geo.BoundingBox{South: 59.9, North: 60.1, West: 10.5, East: 10.7}

	keys := map[string]bool{
		CacheKey(a, "terrarium", 30): true,
		CacheKey(b, "terrarium", 30): true,
		CacheKey(a, "mapbox", 30):    true,
		CacheKey(a, "terrarium", 90): true,
	}
	assert.Len(t, keys, 4)
}
