// Package geo provides the geodesy and tile arithmetic the elevation
// pipeline is built on: WGS-84 bounding boxes, meters-per-degree
// approximations, and slippy-map (Web Mercator) tile indexing.
//
// All functions are pure. Latitudes are degrees in [-90, 90], longitudes
// degrees in [-180, 180], and elevations meters above the ellipsoid.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBoundingBox marks ordering, range, or area violations in a
// requested bounding box. Requests failing validation are never retried.
var ErrInvalidBoundingBox = errors.New("invalid bounding box")

// Limits bounds the area a single terrain request may cover, in square
// meters. Degenerate boxes waste a fetch; oversized ones exhaust memory.
type Limits struct {
	MinAreaM2 float64
	MaxAreaM2 float64
}

// DefaultLimits allows roughly a city block up to a small country.
var DefaultLimits = Limits{
	MinAreaM2: 100 * 100,
	MaxAreaM2: 500_000 * 500_000,
}

// BoundingBox is a validated WGS-84 rectangle. Construct via NewBoundingBox;
// treat as an immutable value afterwards.
type BoundingBox struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// NewBoundingBox validates ordering, coordinate ranges, and the enclosed
// area against lim. All violations wrap ErrInvalidBoundingBox.
func NewBoundingBox(south, north, west, east float64, lim Limits) (BoundingBox, error) {
	b := BoundingBox{South: south, North: north, West: west, East: east}

	if south < -90 || north > 90 || west < -180 || east > 180 {
		return BoundingBox{}, fmt.Errorf("%w: coordinates out of range (%.4f,%.4f,%.4f,%.4f)",
			ErrInvalidBoundingBox, south, north, west, east)
	}
	if north <= south {
		return BoundingBox{}, fmt.Errorf("%w: north (%.4f) must exceed south (%.4f)",
			ErrInvalidBoundingBox, north, south)
	}
	if east <= west {
		return BoundingBox{}, fmt.Errorf("%w: east (%.4f) must exceed west (%.4f)",
			ErrInvalidBoundingBox, east, west)
	}

	area := b.AreaM2()
	if area < lim.MinAreaM2 {
		return BoundingBox{}, fmt.Errorf("%w: area %.0f m² below minimum %.0f m²",
			ErrInvalidBoundingBox, area, lim.MinAreaM2)
	}
	if area > lim.MaxAreaM2 {
		return BoundingBox{}, fmt.Errorf("%w: area %.0f m² above maximum %.0f m²",
			ErrInvalidBoundingBox, area, lim.MaxAreaM2)
	}

	return b, nil
}

// CenterLat returns the latitude midpoint.
func (b BoundingBox) CenterLat() float64 { return (b.South + b.North) / 2 }

// CenterLon returns the longitude midpoint.
func (b BoundingBox) CenterLon() float64 { return (b.West + b.East) / 2 }

// WidthMeters is the east-west extent measured at the center latitude.
func (b BoundingBox) WidthMeters() float64 {
	return (b.East - b.West) * MetersPerDegree(b.CenterLat()).Lon
}

// HeightMeters is the north-south extent.
func (b BoundingBox) HeightMeters() float64 {
	return (b.North - b.South) * MetersPerDegree(b.CenterLat()).Lat
}

// AreaM2 approximates the enclosed area in square meters.
func (b BoundingBox) AreaM2() float64 {
	return b.WidthMeters() * b.HeightMeters()
}

// Contains reports whether the point lies inside the box (inclusive edges).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// MeterScale holds the local length of one degree along each axis.
type MeterScale struct {
	Lat float64 // meters per degree of latitude
	Lon float64 // meters per degree of longitude
}

// MetersPerDegree returns the local length of one degree of latitude and
// longitude at the given latitude, using the standard truncated series for
// the WGS-84 ellipsoid. Accurate to well under 0.1% for |lat| <= 85.
func MetersPerDegree(latitude float64) MeterScale {
	phi := latitude * math.Pi / 180
	return MeterScale{
		Lat: 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi),
		Lon: 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi),
	}
}

// maxMercatorLat is the latitude limit of the Web Mercator projection.
const maxMercatorLat = 85.0511287798066

// TileIndex returns the slippy-map tile containing (lat, lon) at the given
// zoom. Latitude is clamped to the Web Mercator domain.
func TileIndex(lat, lon float64, zoom int) (x, y int) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	n := float64(int(1) << uint(zoom))

	x = int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))

	// Clamp tiles on the antimeridian / pole edge into range.
	max := int(n) - 1
	if x < 0 {
		x = 0
	} else if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}
	return x, y
}

// TileBounds is the inverse of TileIndex: the geographic rectangle covered
// by tile (x, y) at the given zoom. The result is a raw rectangle, not
// validated against request Limits.
func TileBounds(x, y, zoom int) BoundingBox {
	n := float64(int(1) << uint(zoom))
	west := float64(x)/n*360 - 180
	east := float64(x+1)/n*360 - 180
	north := tileLat(float64(y), n)
	south := tileLat(float64(y+1), n)
	return BoundingBox{South: south, North: north, West: west, East: east}
}

func tileLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
}

// equatorialResolution is the ground size of one pixel of a 256px tile at
// zoom 0 on the equator, in meters.
const equatorialResolution = 156543.03392804097

// OptimalZoom picks the zoom level whose ground resolution at the box's
// center latitude best matches the requested resolution, clamped to
// [1, maxZoom].
func OptimalZoom(b BoundingBox, targetResolutionMeters float64, maxZoom int) int {
	if targetResolutionMeters <= 0 {
		return maxZoom
	}
	cosLat := math.Cos(b.CenterLat() * math.Pi / 180)

	best, bestDiff := 1, math.MaxFloat64
	for z := 1; z <= maxZoom; z++ {
		res := equatorialResolution * cosLat / float64(int(1)<<uint(z))
		diff := math.Abs(res - targetResolutionMeters)
		if diff < bestDiff {
			best, bestDiff = z, diff
		}
	}
	return best
}

// CoveringTiles lists every tile at the given zoom that intersects the box,
// row by row from the northwest corner.
func CoveringTiles(b BoundingBox, zoom int) []Tile {
	minX, minY := TileIndex(b.North, b.West, zoom)
	maxX, maxY := TileIndex(b.South, b.East, zoom)

	tiles := make([]Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, Tile{X: x, Y: y, Zoom: zoom})
		}
	}
	return tiles
}

// Tile identifies one slippy-map tile.
type Tile struct {
	X    int
	Y    int
	Zoom int
}

// Bounds returns the tile's geographic rectangle.
func (t Tile) Bounds() BoundingBox {
	return TileBounds(t.X, t.Y, t.Zoom)
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}
