package grid

import "github.com/reliefcraft/terrain-service/internal/raster"

// Representation is the closed set of shapes a build can resolve to. The
// builder decides exactly once which variant a request gets; downstream
// stages switch on the variant instead of probing optional fields.
type Representation interface {
	isRepresentation()
}

// GridData is the regular-raster variant: a fully gap-filled grid ready
// for normalization and meshing.
type GridData struct {
	Grid  *ElevationGrid
	Stats Stats
}

func (GridData) isRepresentation() {}

// ScatterPoints is the sparse variant: coverage was too thin to grid
// honestly, so the valid samples pass through untouched for point
// rendering.
type ScatterPoints struct {
	Points []raster.Sample
	Stats  Stats
}

func (ScatterPoints) isRepresentation() {}
