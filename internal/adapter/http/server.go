// Package http exposes the terrain build API plus the operational
// endpoints (health, readiness, metrics).
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
	"github.com/reliefcraft/terrain-service/internal/pipeline"
	"github.com/reliefcraft/terrain-service/internal/raster"
	"github.com/reliefcraft/terrain-service/internal/source"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

// maxUploadBytes bounds AAIGrid upload bodies.
const maxUploadBytes = 32 << 20

// TerrainBuilder is the build-service dependency of the API handlers.
type TerrainBuilder interface {
	BuildTerrain(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	BuildFromASCIIGrid(r io.Reader) (*pipeline.Result, error)
	BuildFromBand(meta raster.BandMeta, r io.Reader) (*pipeline.Result, error)
	Sources() []string
	CheckReadiness(ctx context.Context) error
}

// Server exposes the terrain API and health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	builder    TerrainBuilder
	lodTable   terrain.LODTable
	logger     *slog.Logger
}

// NewServer creates an HTTP server routing the terrain API to builder.
// A nil lodTable selects terrain.DefaultLODTable for meshed responses.
func NewServer(addr string, builder TerrainBuilder, lodTable terrain.LODTable, logger *slog.Logger) *Server {
	if len(lodTable) == 0 {
		lodTable = terrain.DefaultLODTable
	}

	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		builder:  builder,
		lodTable: lodTable,
		logger:   logger,
	}

	mux.HandleFunc("POST /v1/terrain", s.handleBuildTerrain)
	mux.HandleFunc("POST /v1/terrain/upload", s.handleUpload)
	mux.HandleFunc("POST /v1/terrain/band", s.handleBandUpload)
	mux.HandleFunc("GET /v1/sources", s.handleSources)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// buildRequest is the POST /v1/terrain body. ViewerDistance > 0 asks for
// a triangulated mesh at the LOD matching that distance alongside the
// terrain.
type buildRequest struct {
	South          float64 `json:"south"`
	North          float64 `json:"north"`
	West           float64 `json:"west"`
	East           float64 `json:"east"`
	Source         string  `json:"source"`
	ResolutionM    float64 `json:"resolution_m,omitempty"`
	ViewerDistance float64 `json:"viewer_distance,omitempty"`
}

type terrainPayload struct {
	Cols          int        `json:"cols"`
	Rows          int        `json:"rows"`
	Positions     []float32  `json:"positions"`
	BoundsMin     [3]float64 `json:"bounds_min"`
	BoundsMax     [3]float64 `json:"bounds_max"`
	ScaleFactor   float64    `json:"scale_factor"`
	ElevationBase float64    `json:"elevation_base"`
	TargetSpan    float64    `json:"target_span"`
}

type meshPayload struct {
	Vertices   []float32 `json:"vertices"`
	Indices    []uint32  `json:"indices"`
	Decimation int       `json:"decimation"`
}

type pointPayload struct {
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	Elevation float64 `json:"elevation"`
}

// buildResponse carries either a normalized grid terrain or, for sparse
// coverage, the raw points.
type buildResponse struct {
	Representation string          `json:"representation"`
	Terrain        *terrainPayload `json:"terrain,omitempty"`
	Mesh           *meshPayload    `json:"mesh,omitempty"`
	Points         []pointPayload  `json:"points,omitempty"`
	MinElevation   float64         `json:"min_elevation"`
	MaxElevation   float64         `json:"max_elevation"`
	GapFilled      int             `json:"gap_filled"`
}

func (s *Server) handleBuildTerrain(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed request body: "+err.Error()))
		return
	}

	res, err := s.builder.BuildTerrain(r.Context(), pipeline.Request{
		South: req.South, North: req.North, West: req.West, East: req.East,
		Source: req.Source, ResolutionM: req.ResolutionM,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := toResponse(res)
	if req.ViewerDistance > 0 && res.Terrain != nil {
		mesh, err := terrain.BuildMesh(res.Terrain, s.lodTable.DecimationFor(req.ViewerDistance))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out.Mesh = &meshPayload{
			Vertices:   mesh.Vertices,
			Indices:    mesh.Indices,
			Decimation: mesh.Decimation,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.builder.BuildFromASCIIGrid(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

// handleBandUpload accepts a raw single-band raster body; its placement
// and sample format arrive as query parameters since the payload has no
// header of its own.
func (s *Server) handleBandUpload(w http.ResponseWriter, r *http.Request) {
	meta, err := bandMetaFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := s.builder.BuildFromBand(meta, http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(res))
}

func bandMetaFromQuery(r *http.Request) (raster.BandMeta, error) {
	q := r.URL.Query()
	meta := raster.BandMeta{Format: raster.SampleFormat(q.Get("format"))}

	var err error
	if meta.Cols, err = queryInt(q.Get("cols")); err != nil {
		return meta, fmt.Errorf("cols: %w", err)
	}
	if meta.Rows, err = queryInt(q.Get("rows")); err != nil {
		return meta, fmt.Errorf("rows: %w", err)
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"origin_lon", &meta.OriginLon},
		{"origin_lat", &meta.OriginLat},
		{"cell_size_lon", &meta.CellSizeLonDeg},
		{"cell_size_lat", &meta.CellSizeLatDeg},
		{"nodata", &meta.NoData},
	} {
		if *f.dst, err = strconv.ParseFloat(q.Get(f.name), 64); err != nil {
			return meta, fmt.Errorf("%s: bad value %q", f.name, q.Get(f.name))
		}
	}
	return meta, nil
}

func queryInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	return n, nil
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": s.builder.Sources()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.builder.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func toResponse(res *pipeline.Result) buildResponse {
	out := buildResponse{
		MinElevation: res.MinElevation,
		MaxElevation: res.MaxElevation,
		GapFilled:    res.GapFilled,
	}
	if res.Terrain != nil {
		out.Representation = "grid"
		out.Terrain = &terrainPayload{
			Cols:          res.Terrain.Cols,
			Rows:          res.Terrain.Rows,
			Positions:     res.Terrain.Positions,
			BoundsMin:     res.Terrain.BoundsMin,
			BoundsMax:     res.Terrain.BoundsMax,
			ScaleFactor:   res.Terrain.ScaleFactor,
			ElevationBase: res.Terrain.ElevationBase,
			TargetSpan:    res.Terrain.TargetSpan,
		}
		return out
	}

	out.Representation = "scatter"
	out.Points = make([]pointPayload, len(res.Points))
	for i, p := range res.Points {
		out.Points[i] = pointPayload{Lon: p.Lon, Lat: p.Lat, Elevation: p.Elevation}
	}
	return out
}

// writeError maps the pipeline's error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var decodeErr *raster.DecodeError

	switch {
	case errors.Is(err, geo.ErrInvalidBoundingBox):
		status = http.StatusBadRequest
	case errors.As(err, &decodeErr):
		status = http.StatusBadRequest
	case errors.Is(err, source.ErrUnknownSource):
		status = http.StatusNotFound
	case errors.Is(err, grid.ErrNoElevationData),
		errors.Is(err, terrain.ErrInsufficientGridSize):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrSourceUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		// Client went away mid-build; 499 in nginx parlance.
		status = 499
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("terrain request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
