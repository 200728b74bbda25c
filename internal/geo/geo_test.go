package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoundingBox_Valid(t *testing.T) {
	b, err := NewBoundingBox(59.9, 60.0, 10.5, 10.7, DefaultLimits)
	require.NoError(t, err)

	assert.Equal(t, 59.9, b.South)
	assert.Equal(t, 60.0, b.North)
	assert.InDelta(t, 59.95, b.CenterLat(), 1e-9)
	assert.InDelta(t, 10.6, b.CenterLon(), 1e-9)
}

func TestNewBoundingBox_Rejections(t *testing.T) {
	tests := []struct {
		name                     string
		south, north, west, east float64
	}{
		{"north below south", 60.0, 59.9, 10.5, 10.7},
		{"east below west", 59.9, 60.0, 10.7, 10.5},
		{"latitude out of range", 59.9, 95.0, 10.5, 10.7},
		{"longitude out of range", 59.9, 60.0, -190.0, 10.7},
		{"degenerate area", 59.9, 59.9001, 10.5, 10.5001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBoundingBox(tt.south, tt.north, tt.west, tt.east, DefaultLimits)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidBoundingBox)
		})
	}
}

func TestNewBoundingBox_AreaBelowMinimum(t *testing.T) {
	// Roughly 50m x 50m near the equator; the default minimum is 100m x 100m.
	_, err := NewBoundingBox(0, 0.00045, 0, 0.00045, DefaultLimits)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBoundingBox)
}

func TestMetersPerDegree_ReferenceValues(t *testing.T) {
	// Reference values from the WGS-84 ellipsoid; tolerance 0.1%.
	tests := []struct {
		lat     float64
		wantLat float64
		wantLon float64
	}{
		{0, 110574.0, 111320.0},
		{45, 111132.0, 78847.0},
		{60, 111412.0, 55800.0},
		{85, 111680.0, 9735.0},
	}
	for _, tt := range tests {
		got := MetersPerDegree(tt.lat)
		assert.InEpsilon(t, tt.wantLat, got.Lat, 0.001, "lat scale at %v", tt.lat)
		assert.InEpsilon(t, tt.wantLon, got.Lon, 0.001, "lon scale at %v", tt.lat)
	}
}

func TestTileIndex_KnownTiles(t *testing.T) {
	// Oslo city center at zoom 12 lands in tile 2170/1191.
	x, y := TileIndex(59.9139, 10.7522, 12)
	assert.Equal(t, 2170, x)
	assert.Equal(t, 1191, y)

	// Origin of the projection is the top-left tile.
	x, y = TileIndex(maxMercatorLat, -180, 3)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestTileBounds_InverseOfTileIndex(t *testing.T) {
	for _, zoom := range []int{4, 10, 14} {
		lat, lon := 46.2, 7.5
		x, y := TileIndex(lat, lon, zoom)
		b := TileBounds(x, y, zoom)

		assert.True(t, b.Contains(lat, lon), "zoom %d: tile %d/%d should contain the input point", zoom, x, y)
		assert.Greater(t, b.North, b.South)
		assert.Greater(t, b.East, b.West)
	}
}

func TestTileBounds_AdjacentTilesShareEdges(t *testing.T) {
	a := TileBounds(100, 200, 10)
	right := TileBounds(101, 200, 10)
	below := TileBounds(100, 201, 10)

	assert.InDelta(t, a.East, right.West, 1e-12)
	assert.InDelta(t, a.South, below.North, 1e-12)
}

func TestOptimalZoom_MatchesResolution(t *testing.T) {
	b, err := NewBoundingBox(45.0, 45.1, 7.0, 7.1, DefaultLimits)
	require.NoError(t, err)

	// At lat 45, zoom 12 gives ~27m/px ground resolution.
	z := OptimalZoom(b, 27, 15)
	assert.Equal(t, 12, z)

	// A very fine request clamps to maxZoom.
	assert.Equal(t, 15, OptimalZoom(b, 0.01, 15))

	// A very coarse request clamps to zoom 1.
	assert.Equal(t, 1, OptimalZoom(b, 1e7, 15))
}

func TestCoveringTiles_CoversBox(t *testing.T) {
	b, err := NewBoundingBox(59.9, 60.0, 10.5, 10.8, DefaultLimits)
	require.NoError(t, err)

	tiles := CoveringTiles(b, 12)
	require.NotEmpty(t, tiles)

	// Every tile intersects the box and the union spans its corners.
	union := tiles[0].Bounds()
	for _, tile := range tiles {
		tb := tile.Bounds()
		assert.Less(t, tb.West, b.East)
		assert.Greater(t, tb.East, b.West)
		union.West = math.Min(union.West, tb.West)
		union.East = math.Max(union.East, tb.East)
		union.South = math.Min(union.South, tb.South)
		union.North = math.Max(union.North, tb.North)
	}
	assert.LessOrEqual(t, union.West, b.West)
	assert.GreaterOrEqual(t, union.East, b.East)
	assert.LessOrEqual(t, union.South, b.South)
	assert.GreaterOrEqual(t, union.North, b.North)
}
