// Package terrain turns elevation grids into render-ready geometry: a
// normalized local East-Up-North coordinate frame and distance-adaptive
// triangle meshes.
package terrain

import (
	"math"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
)

// DefaultTargetSpan is the render-unit length of the terrain's largest
// axis-aligned extent after normalization.
const DefaultTargetSpan = 10.0

// NormalizedTerrain is an elevation grid expressed in a bounded local
// frame: x east, y up, z north, scaled so the largest extent equals
// TargetSpan and the lowest point sits at y == 0. Derived deterministically
// from one grid; never mutated afterwards.
type NormalizedTerrain struct {
	// Positions holds (x, y, z) triples, row-major matching the source
	// grid, row 0 northernmost.
	Positions []float32
	Cols      int
	Rows      int

	BoundsMin [3]float64
	BoundsMax [3]float64

	ScaleFactor   float64 // render units per meter
	ElevationBase float64 // minimum source elevation, meters
	TargetSpan    float64
}

// Center returns the midpoint of the terrain's bounds in render units.
func (t *NormalizedTerrain) Center() [3]float64 {
	return [3]float64{
		(t.BoundsMin[0] + t.BoundsMax[0]) / 2,
		(t.BoundsMin[1] + t.BoundsMax[1]) / 2,
		(t.BoundsMin[2] + t.BoundsMax[2]) / 2,
	}
}

// Position returns the vertex at (row, col).
func (t *NormalizedTerrain) Position(row, col int) (x, y, z float32) {
	i := (row*t.Cols + col) * 3
	return t.Positions[i], t.Positions[i+1], t.Positions[i+2]
}

// Normalize converts a gap-filled grid into the local render frame:
//
//	east  = (lon - centerLon) * metersPerDegree(centerLat).Lon
//	north = (lat - centerLat) * metersPerDegree(centerLat).Lat
//	up    = elevation - minElevation
//
// all scaled by targetSpan / max(eastRange, northRange, upRange, 1).
// The transform is pure and applied to the whole grid atomically; a
// targetSpan <= 0 selects DefaultTargetSpan.
func Normalize(g *grid.ElevationGrid, targetSpan float64) *NormalizedTerrain {
	if targetSpan <= 0 {
		targetSpan = DefaultTargetSpan
	}

	bounds := g.Bounds()
	centerLat := bounds.CenterLat()
	centerLon := bounds.CenterLon()
	scalePerDeg := geo.MetersPerDegree(centerLat)

	minElev, maxElev := math.MaxFloat64, -math.MaxFloat64
	for _, h := range g.Heights {
		minElev = math.Min(minElev, h)
		maxElev = math.Max(maxElev, h)
	}

	// Extents in meters, measured between the outermost cell centers.
	lat0, lon0 := g.CellCenter(0, 0)
	latN, lonN := g.CellCenter(g.Rows-1, g.Cols-1)
	eastRange := (lonN - lon0) * scalePerDeg.Lon
	northRange := (lat0 - latN) * scalePerDeg.Lat
	upRange := maxElev - minElev

	span := math.Max(eastRange, math.Max(northRange, math.Max(upRange, 1)))
	scale := targetSpan / span

	t := &NormalizedTerrain{
		Positions:     make([]float32, 0, g.Cols*g.Rows*3),
		Cols:          g.Cols,
		Rows:          g.Rows,
		BoundsMin:     [3]float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		BoundsMax:     [3]float64{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
		ScaleFactor:   scale,
		ElevationBase: minElev,
		TargetSpan:    targetSpan,
	}

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			lat, lon := g.CellCenter(row, col)
			x := (lon - centerLon) * scalePerDeg.Lon * scale
			y := (g.At(row, col) - minElev) * scale
			z := (lat - centerLat) * scalePerDeg.Lat * scale

			t.Positions = append(t.Positions, float32(x), float32(y), float32(z))
			t.BoundsMin[0] = math.Min(t.BoundsMin[0], x)
			t.BoundsMin[1] = math.Min(t.BoundsMin[1], y)
			t.BoundsMin[2] = math.Min(t.BoundsMin[2], z)
			t.BoundsMax[0] = math.Max(t.BoundsMax[0], x)
			t.BoundsMax[1] = math.Max(t.BoundsMax[1], y)
			t.BoundsMax[2] = math.Max(t.BoundsMax[2], z)
		}
	}

	return t
}
