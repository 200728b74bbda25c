package grid

import (
	"math"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/raster"
)

const (
	// minDim keeps grids triangulable; maxDim bounds memory and build time.
	minDim        = 2
	defaultMaxDim = 512

	// scatterThreshold is the filled-cell fraction below which gridding
	// would fabricate most of the surface; such requests resolve to a
	// scatter-point representation instead.
	scatterThreshold = 0.05
)

// Builder turns decoded samples into elevation grids at a target ground
// resolution. Safe for concurrent use; Build carries no state across calls.
type Builder struct {
	targetResolutionM float64
	maxDim            int
}

// NewBuilder creates a Builder. maxDim <= 0 selects the default 512 cells
// per axis.
func NewBuilder(targetResolutionM float64, maxDim int) *Builder {
	if maxDim <= 0 {
		maxDim = defaultMaxDim
	}
	return &Builder{targetResolutionM: targetResolutionM, maxDim: maxDim}
}

// Dimensions picks the grid size for a bounding box: the box extent over
// the target resolution, clamped to [2, maxDim] per axis.
func (b *Builder) Dimensions(bbox geo.BoundingBox) (cols, rows int) {
	cols = clampDim(int(math.Round(bbox.WidthMeters()/b.targetResolutionM)), b.maxDim)
	rows = clampDim(int(math.Round(bbox.HeightMeters()/b.targetResolutionM)), b.maxDim)
	return cols, rows
}

func clampDim(n, maxDim int) int {
	if n < minDim {
		return minDim
	}
	if n > maxDim {
		return maxDim
	}
	return n
}

// Build assembles one grid exactly covering bbox from the given samples.
// Samples outside the box and NoData samples are ignored; multiple samples
// landing in one cell are averaged. Cells left empty are assigned the
// nearest filled cell's value. Returns ErrNoElevationData when nothing at
// all landed in the box.
func (b *Builder) Build(bbox geo.BoundingBox, samples []raster.Sample) (*ElevationGrid, Stats, error) {
	cols, rows := b.Dimensions(bbox)

	g := &ElevationGrid{
		Cols:           cols,
		Rows:           rows,
		OriginLon:      bbox.West,
		OriginLat:      bbox.North,
		CellSizeLonDeg: (bbox.East - bbox.West) / float64(cols),
		CellSizeLatDeg: (bbox.North - bbox.South) / float64(rows),
		Heights:        make([]float64, cols*rows),
		NoData:         NoDataMarker,
	}

	sums := make([]float64, cols*rows)
	counts := make([]int, cols*rows)
	for _, s := range samples {
		if s.NoData || !bbox.Contains(s.Lat, s.Lon) {
			continue
		}
		col := cellIndex(s.Lon-bbox.West, g.CellSizeLonDeg, cols)
		row := cellIndex(bbox.North-s.Lat, g.CellSizeLatDeg, rows)
		idx := row*cols + col
		sums[idx] += s.Elevation
		counts[idx]++
	}

	stats := resetStats()
	for i := range g.Heights {
		if counts[i] == 0 {
			g.Heights[i] = NoDataMarker
			continue
		}
		v := sums[i] / float64(counts[i])
		g.Heights[i] = v
		stats.FilledCells++
		stats.MinElevation = math.Min(stats.MinElevation, v)
		stats.MaxElevation = math.Max(stats.MaxElevation, v)
	}

	if stats.FilledCells == 0 {
		return nil, Stats{}, ErrNoElevationData
	}

	stats.GapFilled = fillGaps(g)
	return g, stats, nil
}

// BuildRepresentation resolves the grid-versus-scatter decision once, at
// the builder's output, so downstream stages dispatch on a closed set of
// variants. Coverage below scatterThreshold yields ScatterPoints holding
// the valid samples untouched.
func (b *Builder) BuildRepresentation(bbox geo.BoundingBox, samples []raster.Sample) (Representation, error) {
	g, stats, err := b.Build(bbox, samples)
	if err != nil {
		return nil, err
	}

	if float64(stats.FilledCells) < scatterThreshold*float64(g.Cols*g.Rows) {
		points := make([]raster.Sample, 0, stats.FilledCells)
		for _, s := range samples {
			if !s.NoData && bbox.Contains(s.Lat, s.Lon) {
				points = append(points, s)
			}
		}
		return ScatterPoints{Points: points, Stats: stats}, nil
	}
	return GridData{Grid: g, Stats: stats}, nil
}

// cellIndex maps a degree offset into a cell index, clamping the far edge
// so boundary samples land in the last cell.
func cellIndex(offsetDeg, cellSizeDeg float64, n int) int {
	idx := int(offsetDeg / cellSizeDeg)
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// fillGaps assigns every empty cell the value of its nearest filled cell,
// measured by Euclidean distance in cell space against the original
// occupancy. Ties resolve to the first candidate in ring scan order, which
// depends only on occupancy, never on sample arrival order. Returns the
// number of cells filled.
//
// The search expands Chebyshev rings outward and keeps going until the
// ring's nearest possible Euclidean distance exceeds the best match, which
// bounds work without changing the nearest-cell result.
func fillGaps(g *ElevationGrid) int {
	source := make([]float64, len(g.Heights))
	copy(source, g.Heights)

	filled := 0
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if source[row*g.Cols+col] != g.NoData {
				continue
			}
			if v, ok := nearestFilled(source, g, row, col); ok {
				g.Set(row, col, v)
				filled++
			}
		}
	}
	return filled
}

func nearestFilled(source []float64, g *ElevationGrid, row, col int) (float64, bool) {
	maxRing := g.Rows
	if g.Cols > maxRing {
		maxRing = g.Cols
	}

	best := math.NaN()
	bestDist := math.MaxFloat64

	for ring := 1; ring <= maxRing; ring++ {
		// Once a match exists, a farther ring cannot beat it.
		if float64(ring) > bestDist {
			break
		}
		for dr := -ring; dr <= ring; dr++ {
			r := row + dr
			if r < 0 || r >= g.Rows {
				continue
			}
			for dc := -ring; dc <= ring; dc++ {
				if abs(dr) != ring && abs(dc) != ring {
					continue // interior of the ring was already visited
				}
				c := col + dc
				if c < 0 || c >= g.Cols {
					continue
				}
				v := source[r*g.Cols+c]
				if v == g.NoData {
					continue
				}
				d := math.Sqrt(float64(dr*dr + dc*dc))
				if d < bestDist {
					best, bestDist = v, d
				}
			}
		}
	}

	if math.IsNaN(best) {
		return 0, false
	}
	return best, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
