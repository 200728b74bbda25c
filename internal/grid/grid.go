// Package grid assembles decoded elevation samples into rectangular
// elevation grids aligned to a bounding box, filling coverage gaps by
// nearest-neighbor interpolation.
package grid

import (
	"errors"
	"math"

	"github.com/reliefcraft/terrain-service/internal/geo"
)

// ErrNoElevationData means every sample for a request was NoData or
// unreachable. Fatal for that request; no partial grid is produced.
var ErrNoElevationData = errors.New("no elevation data in requested area")

// NoDataMarker is the sentinel for unfilled cells during grid assembly.
// Builder output contains none unless construction failed.
const NoDataMarker = -32768.0

// ElevationGrid is a rectangular, row-major elevation raster. Row 0 is the
// northernmost row. Origin is the northwest corner of the covered area.
// The producing pipeline stage owns the grid and hands it on by value.
type ElevationGrid struct {
	Cols, Rows     int
	OriginLon      float64
	OriginLat      float64
	CellSizeLonDeg float64
	CellSizeLatDeg float64
	Heights        []float64
	NoData         float64
}

// At returns the height at (row, col).
func (g *ElevationGrid) At(row, col int) float64 {
	return g.Heights[row*g.Cols+col]
}

// Set stores a height at (row, col).
func (g *ElevationGrid) Set(row, col int, v float64) {
	g.Heights[row*g.Cols+col] = v
}

// IsNoData reports whether the cell at (row, col) is unfilled.
func (g *ElevationGrid) IsNoData(row, col int) bool {
	return g.At(row, col) == g.NoData
}

// CellCenter returns the geographic center of cell (row, col).
func (g *ElevationGrid) CellCenter(row, col int) (lat, lon float64) {
	lat = g.OriginLat - (float64(row)+0.5)*g.CellSizeLatDeg
	lon = g.OriginLon + (float64(col)+0.5)*g.CellSizeLonDeg
	return lat, lon
}

// Bounds returns the geographic rectangle the grid covers.
func (g *ElevationGrid) Bounds() geo.BoundingBox {
	return geo.BoundingBox{
		North: g.OriginLat,
		South: g.OriginLat - float64(g.Rows)*g.CellSizeLatDeg,
		West:  g.OriginLon,
		East:  g.OriginLon + float64(g.Cols)*g.CellSizeLonDeg,
	}
}

// Stats summarizes what Build discovered while placing samples.
type Stats struct {
	MinElevation float64
	MaxElevation float64
	FilledCells  int // cells that received at least one sample
	GapFilled    int // cells assigned by nearest-neighbor interpolation
}

// resetStats is the pre-placement state: min/max move toward real values
// as cells fill.
func resetStats() Stats {
	return Stats{MinElevation: math.MaxFloat64, MaxElevation: -math.MaxFloat64}
}
