// Package raster decodes source-specific elevation encodings into plain
// elevation samples.
//
// # Supported encodings
//
// Tiled services deliver elevations packed into RGB pixels:
//
//	Terrarium:    elevation = (R*256 + G + B/256) - 32768
//	Mapbox RGB:   elevation = -10000 + (R*65536 + G*256 + B) * 0.1
//	Raw grayscale: the gray value is the elevation in meters.
//
// Bulk downloads arrive as single-band binary rasters (GeoTIFF band
// payloads, little-endian int16 or float32) or as ESRI ASCII grids
// (AAIGrid), a text format with a small key/value header followed by
// row-major numeric rows, row 0 northernmost.
//
// # NoData policy
//
// Elevations outside the plausible physical range [-500, 9000] meters are
// marked NoData rather than failing the decode; gap-fill downstream decides
// what to do with them. Structurally malformed input (bad header, short
// row, truncated band) is a *DecodeError for that one payload and never
// aborts sibling payloads of the same request.
//
// All decoders are stateless and re-entrant.
package raster

import (
	"fmt"
)

// Plausible elevation range in meters. The Dead Sea shore sits at -430 m
// and no terrain data outside Everest's summit exceeds 8849 m; anything
// beyond these limits is a decode artifact.
const (
	MinPlausibleElevation = -500.0
	MaxPlausibleElevation = 9000.0
)

// Sample is one decoded elevation reading at a geographic point.
type Sample struct {
	Lon       float64
	Lat       float64
	Elevation float64
	NoData    bool
}

// Encoding names a tile pixel encoding. New tile sources declare one of
// these plus a URL template, tile size, and max zoom.
type Encoding string

const (
	EncodingTerrarium    Encoding = "terrarium"
	EncodingMapboxRGB    Encoding = "mapbox-rgb"
	EncodingRawGrayscale Encoding = "raw-grayscale"
)

// DecodeError reports malformed raster or text input. It is fatal for the
// payload it describes only.
type DecodeError struct {
	Format string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decodeErrorf builds a *DecodeError with a formatted reason.
func decodeErrorf(format, reason string, args ...any) *DecodeError {
	return &DecodeError{Format: format, Reason: fmt.Sprintf(reason, args...)}
}

// plausible reports whether v is a physically believable elevation.
func plausible(v float64) bool {
	return v >= MinPlausibleElevation && v <= MaxPlausibleElevation
}
