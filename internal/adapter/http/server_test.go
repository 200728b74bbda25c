package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/reliefcraft/terrain-service/internal/adapter/http"
	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/grid"
	"github.com/reliefcraft/terrain-service/internal/pipeline"
	"github.com/reliefcraft/terrain-service/internal/raster"
	"github.com/reliefcraft/terrain-service/internal/source"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

type mockBuilder struct {
	result   *pipeline.Result
	err      error
	readyErr error

	gotRequest pipeline.Request
	gotUpload  string
	gotMeta    raster.BandMeta
}

func (m *mockBuilder) BuildTerrain(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	m.gotRequest = req
	return m.result, m.err
}

func (m *mockBuilder) BuildFromASCIIGrid(r io.Reader) (*pipeline.Result, error) {
	body, _ := io.ReadAll(r)
	m.gotUpload = string(body)
	return m.result, m.err
}

func (m *mockBuilder) BuildFromBand(meta raster.BandMeta, r io.Reader) (*pipeline.Result, error) {
	m.gotMeta = meta
	body, _ := io.ReadAll(r)
	m.gotUpload = string(body)
	return m.result, m.err
}

func (m *mockBuilder) Sources() []string { return []string{"mapbox", "terrarium"} }

func (m *mockBuilder) CheckReadiness(_ context.Context) error { return m.readyErr }

func gridResult() *pipeline.Result {
	return &pipeline.Result{
		Terrain: &terrain.NormalizedTerrain{
			Cols:       2,
			Rows:       2,
			Positions:  []float32{0, 0, 0, 1, 0, 0, 0, 0, 1, 1, 0, 1},
			BoundsMax:  [3]float64{1, 0, 1},
			TargetSpan: 10,
		},
		MinElevation: 12,
		MaxElevation: 340,
		GapFilled:    3,
	}
}

func doRequest(builder *mockBuilder, method, path, body string) *httptest.ResponseRecorder {
	srv := httpadapter.NewServer(":0", builder, nil, slog.Default())
	rec := httptest.NewRecorder()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func TestBuildTerrainReturnsGrid(t *testing.T) {
	builder := &mockBuilder{result: gridResult()}
	rec := doRequest(builder, http.MethodPost, "/v1/terrain",
		`{"south":59.9,"north":60.0,"west":10.5,"east":10.7,"source":"terrarium","resolution_m":30}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "terrarium", builder.gotRequest.Source)
	assert.Equal(t, 30.0, builder.gotRequest.ResolutionM)
	assert.Equal(t, 59.9, builder.gotRequest.South)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "grid", body["representation"])
	assert.Equal(t, 3.0, body["gap_filled"])
	require.NotNil(t, body["terrain"])
	assert.Nil(t, body["points"])
}

func TestBuildTerrainReturnsScatter(t *testing.T) {
	builder := &mockBuilder{result: &pipeline.Result{
		Points:       []raster.Sample{{Lon: 10.5, Lat: 59.9, Elevation: 42}},
		MinElevation: 42,
		MaxElevation: 42,
	}}
	rec := doRequest(builder, http.MethodPost, "/v1/terrain",
		`{"south":59.9,"north":60.0,"west":10.5,"east":10.7,"source":"terrarium"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "scatter", body["representation"])
	assert.Nil(t, body["terrain"])
	require.Len(t, body["points"], 1)
}

func TestBuildTerrainWithViewerDistanceIncludesMesh(t *testing.T) {
	builder := &mockBuilder{result: gridResult()}
	rec := doRequest(builder, http.MethodPost, "/v1/terrain",
		`{"south":59.9,"north":60.0,"west":10.5,"east":10.7,"source":"terrarium","viewer_distance":10}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Mesh *struct {
			Vertices   []float32 `json:"vertices"`
			Indices    []uint32  `json:"indices"`
			Decimation int       `json:"decimation"`
		} `json:"mesh"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Mesh)
	assert.Equal(t, 1, body.Mesh.Decimation)
	assert.Len(t, body.Mesh.Indices, 6) // one quad, two triangles
}

func TestBuildTerrainMalformedBody(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodPost, "/v1/terrain", `{"south":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuildTerrainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid bbox", fmt.Errorf("%w: too small", geo.ErrInvalidBoundingBox), http.StatusBadRequest},
		{"unknown source", fmt.Errorf("%w: atlantis", source.ErrUnknownSource), http.StatusNotFound},
		{"no data", grid.ErrNoElevationData, http.StatusUnprocessableEntity},
		{"grid too small", terrain.ErrInsufficientGridSize, http.StatusUnprocessableEntity},
		{"source down", fmt.Errorf("%w: all tiles failed", source.ErrSourceUnavailable), http.StatusBadGateway},
		{"unexpected", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := &mockBuilder{err: tt.err}
			rec := doRequest(builder, http.MethodPost, "/v1/terrain",
				`{"south":1,"north":2,"west":3,"east":4,"source":"terrarium"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.err.Error())
		})
	}
}

func TestUploadPassesBodyThrough(t *testing.T) {
	builder := &mockBuilder{result: gridResult()}
	input := "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n3 4\n"
	rec := doRequest(builder, http.MethodPost, "/v1/terrain/upload", input)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, input, builder.gotUpload)
}

func TestUploadMalformedGrid(t *testing.T) {
	builder := &mockBuilder{err: &raster.DecodeError{Format: "aaigrid", Reason: "ncols: bad value"}}
	rec := doRequest(builder, http.MethodPost, "/v1/terrain/upload", "ncols banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBandUploadParsesMetaFromQuery(t *testing.T) {
	builder := &mockBuilder{result: gridResult()}
	rec := doRequest(builder, http.MethodPost,
		"/v1/terrain/band?cols=2&rows=2&origin_lon=10.5&origin_lat=60.0&cell_size_lon=0.1&cell_size_lat=0.05&nodata=-9999&format=int16",
		"\x01\x00\x02\x00\x03\x00\x04\x00")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raster.BandMeta{
		Cols: 2, Rows: 2,
		OriginLon: 10.5, OriginLat: 60.0,
		CellSizeLonDeg: 0.1, CellSizeLatDeg: 0.05,
		NoData: -9999,
		Format: raster.FormatInt16,
	}, builder.gotMeta)
}

func TestBandUploadRejectsBadQuery(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodPost, "/v1/terrain/band?cols=two&rows=2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "cols")
}

func TestSourcesListing(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodGet, "/v1/sources", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"mapbox", "terrarium"}, body["sources"])
}

func TestHealthzReturns200(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := doRequest(&mockBuilder{readyErr: fmt.Errorf("not ready yet")}, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doRequest(&mockBuilder{}, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
