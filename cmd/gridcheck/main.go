// Command gridcheck inspects an Arc/Info ASCII grid file offline: it
// parses the file, assembles the elevation grid, normalizes it, and
// reports the integrity of each stage. Useful for vetting a dataset
// before uploading it to the service.
//
// Usage:
//
//	go run ./cmd/gridcheck -in dem.asc
//	go run ./cmd/gridcheck -in dem.asc -decimation 4
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
	"github.com/reliefcraft/terrain-service/internal/raster"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gridcheck:", err)
		os.Exit(1)
	}
}

func run() error {
	in := flag.String("in", "", "path to an Arc/Info ASCII grid file")
	span := flag.Float64("span", terrain.DefaultTargetSpan, "normalization target span")
	decimation := flag.Int("decimation", 1, "mesh decimation factor")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		return fmt.Errorf("-in is required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	parsed, err := raster.ParseASCIIGrid(f)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	fmt.Printf("parsed   %dx%d cells, cellsize %g, nodata %g\n",
		parsed.Cols, parsed.Rows, parsed.CellSize, parsed.NoData)

	south, north, west, east := parsed.Bounds()
	bbox, err := geo.NewBoundingBox(south, north, west, east, geo.Limits{MinAreaM2: 1, MaxAreaM2: 1e14})
	if err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	fmt.Printf("bounds   %.4f..%.4f lat, %.4f..%.4f lon (%.1f x %.1f km)\n",
		south, north, west, east, bbox.WidthMeters()/1000, bbox.HeightMeters()/1000)

	cellMeters := parsed.CellSize * geo.MetersPerDegree(bbox.CenterLat()).Lat
	g, stats, err := grid.NewBuilder(cellMeters, max(parsed.Cols, parsed.Rows)).Build(bbox, parsed.Samples())
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	total := g.Cols * g.Rows
	fmt.Printf("grid     %dx%d, %d/%d cells from data, %d gap-filled\n",
		g.Cols, g.Rows, stats.FilledCells, total, stats.GapFilled)
	fmt.Printf("range    %.1f .. %.1f m\n", stats.MinElevation, stats.MaxElevation)

	t := terrain.Normalize(g, *span)
	fmt.Printf("terrain  %d vertices, span %g, vertical scale %g\n",
		len(t.Positions)/3, t.TargetSpan, t.ScaleFactor)

	mesh, err := terrain.BuildMesh(t, *decimation)
	if err != nil {
		return fmt.Errorf("mesh: %w", err)
	}
	fmt.Printf("mesh     %d vertices, %d triangles at decimation %d\n",
		mesh.VertexCount(), mesh.TriangleCount(), mesh.Decimation)

	return nil
}
