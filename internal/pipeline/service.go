// Package pipeline orchestrates terrain builds: validate the requested
// bounding box, acquire raster tiles concurrently, assemble and gap-fill
// an elevation grid, and normalize it into render coordinates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
	"github.com/reliefcraft/terrain-service/internal/observability"
	"github.com/reliefcraft/terrain-service/internal/raster"
	"github.com/reliefcraft/terrain-service/internal/source"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

// Config carries the build-stage tuning knobs.
type Config struct {
	TargetResolutionM float64
	MaxGridDim        int
	TargetSpan        float64
	BBoxLimits        geo.Limits
	FetchConcurrency  int
}

// Request asks for terrain covering a bounding box from a named source.
// ResolutionM <= 0 selects the service default.
type Request struct {
	South, North, West, East float64
	Source                   string
	ResolutionM              float64
}

// Result is what the selection-UI collaborator receives: a normalized
// terrain handle plus the source elevation range, or — for sparse
// coverage — the raw points instead.
type Result struct {
	Terrain *terrain.NormalizedTerrain // nil when Points is set
	Points  []raster.Sample

	MinElevation float64
	MaxElevation float64
	GapFilled    int
}

// Fetcher is the tile acquisition dependency.
type Fetcher interface {
	FetchTile(ctx context.Context, src source.TileSource, tile geo.Tile) ([]raster.Sample, error)
}

// Service builds terrain on demand. All state is injected; construct one
// per process and share it across viewports.
type Service struct {
	cfg      Config
	registry *source.Registry
	fetcher  Fetcher
	cache    *source.GridCache
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Service. cache may be nil to disable short-circuiting.
func New(cfg Config, registry *source.Registry, fetcher Fetcher, cache *source.GridCache, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.TargetSpan <= 0 {
		cfg.TargetSpan = terrain.DefaultTargetSpan
	}
	return &Service{
		cfg:      cfg,
		registry: registry,
		fetcher:  fetcher,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
	}
}

// Sources lists the registered elevation source names, sorted.
func (s *Service) Sources() []string {
	return s.registry.Names()
}

// CheckReadiness reports whether the service can accept requests.
func (s *Service) CheckReadiness(_ context.Context) error {
	if len(s.registry.Names()) == 0 {
		return errors.New("no elevation sources registered")
	}
	return nil
}

// BuildTerrain runs one complete fetch-decode-assemble-normalize cycle.
// Tile-level failures degrade to NoData and are gap-filled; request-level
// failures (ErrInvalidBoundingBox, ErrUnknownSource, ErrNoElevationData)
// surface typed with no partial result.
func (s *Service) BuildTerrain(ctx context.Context, req Request) (*Result, error) {
	bbox, err := geo.NewBoundingBox(req.South, req.North, req.West, req.East, s.cfg.BBoxLimits)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues(req.Source, "invalid_bbox").Inc()
		return nil, err
	}

	src, err := s.registry.Lookup(req.Source)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues(req.Source, "error").Inc()
		return nil, err
	}

	resolution := req.ResolutionM
	if resolution <= 0 {
		resolution = s.cfg.TargetResolutionM
	}
	builder := grid.NewBuilder(resolution, s.cfg.MaxGridDim)

	if s.cache != nil {
		key := source.CacheKey(bbox, src.Name, resolution)
		if g, stats, ok := s.cache.Get(key); ok {
			s.metrics.CacheLookups.WithLabelValues("hit").Inc()
			s.metrics.TerrainRequests.WithLabelValues(src.Name, "ok").Inc()
			return s.gridResult(g, stats), nil
		}
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	s.metrics.BuildsInFlight.Inc()
	defer s.metrics.BuildsInFlight.Dec()
	start := time.Now()

	zoom := geo.OptimalZoom(bbox, resolution, src.MaxZoom)
	tiles := geo.CoveringTiles(bbox, zoom)

	samples, err := s.fetchAll(ctx, src, tiles)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues(src.Name, "error").Inc()
		return nil, err
	}

	rep, err := builder.BuildRepresentation(bbox, samples)
	if err != nil {
		outcome := "error"
		if errors.Is(err, grid.ErrNoElevationData) {
			outcome = "no_data"
		}
		s.metrics.TerrainRequests.WithLabelValues(src.Name, outcome).Inc()
		return nil, err
	}

	s.metrics.GridBuildDuration.Observe(time.Since(start).Seconds())

	switch r := rep.(type) {
	case grid.GridData:
		if s.cache != nil {
			s.cache.Put(source.CacheKey(bbox, src.Name, resolution), r.Grid, r.Stats)
		}
		s.metrics.GapFilledCells.Observe(float64(r.Stats.GapFilled))
		s.metrics.TerrainRequests.WithLabelValues(src.Name, "ok").Inc()
		s.logger.Info("terrain built",
			"source", src.Name,
			"zoom", zoom,
			"tiles", len(tiles),
			"grid", fmt.Sprintf("%dx%d", r.Grid.Cols, r.Grid.Rows),
			"gap_filled", r.Stats.GapFilled,
			"duration", time.Since(start),
		)
		return s.gridResult(r.Grid, r.Stats), nil

	case grid.ScatterPoints:
		s.metrics.TerrainRequests.WithLabelValues(src.Name, "scatter").Inc()
		s.logger.Info("coverage too sparse to grid, returning points",
			"source", src.Name, "points", len(r.Points))
		return &Result{
			Points:       r.Points,
			MinElevation: r.Stats.MinElevation,
			MaxElevation: r.Stats.MaxElevation,
		}, nil

	default:
		return nil, fmt.Errorf("unhandled representation %T", rep)
	}
}

// BuildFromASCIIGrid builds terrain from an uploaded AAIGrid document
// instead of a remote source. The grid's own bounds become the bounding
// box and are validated against the same area limits.
func (s *Service) BuildFromASCIIGrid(r io.Reader) (*Result, error) {
	parsed, err := raster.ParseASCIIGrid(r)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "error").Inc()
		return nil, err
	}

	south, north, west, east := parsed.Bounds()
	bbox, err := geo.NewBoundingBox(south, north, west, east, s.cfg.BBoxLimits)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "invalid_bbox").Inc()
		return nil, err
	}

	// Match the upload's own resolution so placement is one-to-one.
	cellMeters := parsed.CellSize * geo.MetersPerDegree(bbox.CenterLat()).Lat
	builder := grid.NewBuilder(cellMeters, s.cfg.MaxGridDim)

	g, stats, err := builder.Build(bbox, parsed.Samples())
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "no_data").Inc()
		return nil, err
	}

	s.metrics.TerrainRequests.WithLabelValues("upload", "ok").Inc()
	return s.gridResult(g, stats), nil
}

// BuildFromBand builds terrain from an uploaded single-band binary raster.
// meta declares the raster's placement and sample format; the band's own
// extent becomes the bounding box.
func (s *Service) BuildFromBand(meta raster.BandMeta, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "error").Inc()
		return nil, fmt.Errorf("read band payload: %w", err)
	}
	samples, err := raster.DecodeBand(data, meta)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "error").Inc()
		return nil, err
	}

	south := meta.OriginLat - float64(meta.Rows)*meta.CellSizeLatDeg
	east := meta.OriginLon + float64(meta.Cols)*meta.CellSizeLonDeg
	bbox, err := geo.NewBoundingBox(south, meta.OriginLat, meta.OriginLon, east, s.cfg.BBoxLimits)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "invalid_bbox").Inc()
		return nil, err
	}

	cellMeters := meta.CellSizeLatDeg * geo.MetersPerDegree(bbox.CenterLat()).Lat
	g, stats, err := grid.NewBuilder(cellMeters, s.cfg.MaxGridDim).Build(bbox, samples)
	if err != nil {
		s.metrics.TerrainRequests.WithLabelValues("upload", "no_data").Inc()
		return nil, err
	}

	s.metrics.TerrainRequests.WithLabelValues("upload", "ok").Inc()
	return s.gridResult(g, stats), nil
}

func (s *Service) gridResult(g *grid.ElevationGrid, stats grid.Stats) *Result {
	return &Result{
		Terrain:      terrain.Normalize(g, s.cfg.TargetSpan),
		MinElevation: stats.MinElevation,
		MaxElevation: stats.MaxElevation,
		GapFilled:    stats.GapFilled,
	}
}

// fetchAll fans tile fetches out and gathers every decoded sample. A
// failed tile contributes nothing — its area is gap-filled later — while
// context cancellation aborts the whole request and discards partial
// buffers.
func (s *Service) fetchAll(ctx context.Context, src source.TileSource, tiles []geo.Tile) ([]raster.Sample, error) {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.FetchConcurrency)

	var mu sync.Mutex
	var samples []raster.Sample

	for _, tile := range tiles {
		group.Go(func() error {
			decoded, err := s.fetcher.FetchTile(ctx, src, tile)
			if err != nil {
				if source.IsTileError(err) {
					s.logger.Warn("tile degraded to NoData",
						"source", src.Name, "tile", tile.String(), "error", err)
					return nil
				}
				return err
			}
			mu.Lock()
			samples = append(samples, decoded...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}
