// Package source declares remote elevation providers and fetches their
// raster tiles. Adding a provider takes four declared fields (URL
// template, tile size, encoding, max zoom); the decode function follows
// from the encoding.
package source

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/raster"
)

// ErrSourceUnavailable marks a tile fetch that failed after all retries.
// The pipeline treats such a tile as fully NoData and gap-fills it instead
// of aborting the grid.
var ErrSourceUnavailable = errors.New("elevation source unavailable")

// ErrUnknownSource marks a request naming a source the registry has no
// declaration for.
var ErrUnknownSource = errors.New("unknown elevation source")

// TileSource declares one remote tiled elevation provider.
type TileSource struct {
	Name        string
	URLTemplate string // contains {z}, {x}, {y} placeholders
	TileSize    int    // pixels per tile side
	Encoding    raster.Encoding
	MaxZoom     int
}

// Validate checks the declaration is complete enough to fetch from.
func (s TileSource) Validate() error {
	if s.Name == "" {
		return errors.New("tile source has no name")
	}
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(s.URLTemplate, ph) {
			return fmt.Errorf("source %q: URL template missing %s", s.Name, ph)
		}
	}
	if s.TileSize <= 0 {
		return fmt.Errorf("source %q: tile size %d", s.Name, s.TileSize)
	}
	if s.MaxZoom < 1 {
		return fmt.Errorf("source %q: max zoom %d", s.Name, s.MaxZoom)
	}
	if _, err := raster.TileDecoder(s.Encoding); err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}
	return nil
}

// URL expands the template for one tile.
func (s TileSource) URL(t geo.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Zoom),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
	)
	return r.Replace(s.URLTemplate)
}

// Decoder returns the decode function for the source's declared encoding.
func (s TileSource) Decoder() (raster.TileDecodeFunc, error) {
	return raster.TileDecoder(s.Encoding)
}

// Registry resolves source names to declarations. Constructed once at
// startup; read-only afterwards, safe for concurrent use.
type Registry struct {
	sources map[string]TileSource
}

// NewRegistry validates and indexes the given sources.
func NewRegistry(sources ...TileSource) (*Registry, error) {
	r := &Registry{sources: make(map[string]TileSource, len(sources))}
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.sources[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tile source %q", s.Name)
		}
		r.sources[s.Name] = s
	}
	return r, nil
}

// Lookup returns the declaration for name.
func (r *Registry) Lookup(name string) (TileSource, error) {
	s, ok := r.sources[name]
	if !ok {
		return TileSource{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return s, nil
}

// Names lists the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuiltinSources returns the providers the service knows out of the box.
// mapboxToken may be empty, which leaves the Mapbox source unregistered.
func BuiltinSources(mapboxToken string) []TileSource {
	sources := []TileSource{
		{
			Name:        "terrarium",
			URLTemplate: "https://s3.amazonaws.com/elevation-tiles-prod/terrarium/{z}/{x}/{y}.png",
			TileSize:    256,
			Encoding:    raster.EncodingTerrarium,
			MaxZoom:     15,
		},
	}
	if mapboxToken != "" {
		sources = append(sources, TileSource{
			Name:        "mapbox",
			URLTemplate: "https://api.mapbox.com/v4/mapbox.terrain-rgb/{z}/{x}/{y}.pngraw?access_token=" + mapboxToken,
			TileSize:    256,
			Encoding:    raster.EncodingMapboxRGB,
			MaxZoom:     15,
		})
	}
	return sources
}
