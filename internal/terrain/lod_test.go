package terrain

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reliefcraft/terrain-service/internal/observability"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// viewerAt places the viewer the given distance east of the terrain center.
func viewerAt(n *NormalizedTerrain, distance float64) [3]float64 {
	c := n.Center()
	return [3]float64{c[0] + distance, c[1], c[2]}
}

func testManager(t *testing.T, cols, rows int) (*MeshManager, *NormalizedTerrain) {
	t.Helper()
	g := testGrid(cols, rows, func(r, c int) float64 { return float64(300 + r*3 + c) })
	n := Normalize(g, 10)
	m, err := NewMeshManager(n, DefaultLODTable, testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return m, n
}

func TestLODTable_Validate(t *testing.T) {
	require.NoError(t, DefaultLODTable.Validate())

	tests := []struct {
		name  string
		table LODTable
	}{
		{"empty", LODTable{}},
		{"nearest not decimation 1", LODTable{{MaxViewDistance: 10, Decimation: 2}}},
		{"distances not increasing", LODTable{
			{MaxViewDistance: 10, Decimation: 1},
			{MaxViewDistance: 10, Decimation: 2},
		}},
		{"decimation decreasing", LODTable{
			{MaxViewDistance: 10, Decimation: 1},
			{MaxViewDistance: 20, Decimation: 4},
			{MaxViewDistance: 30, Decimation: 2},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.table.Validate())
		})
	}
}

func TestMeshManager_AttachBuildsInitialMesh(t *testing.T) {
	m, n := testManager(t, 17, 17)

	mesh, err := m.Attach(viewerAt(n, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, mesh.Decimation, "near viewer starts at full resolution")
	assert.Same(t, mesh, m.Mesh())

	// A far-away initial viewer starts directly at a coarse level.
	m2, n2 := testManager(t, 17, 17)
	mesh2, err := m2.Attach(viewerAt(n2, 500))
	require.NoError(t, err)
	assert.Equal(t, 8, mesh2.Decimation)
}

func TestMeshManager_StableWithinBracket(t *testing.T) {
	m, n := testManager(t, 17, 17)
	first, err := m.Attach(viewerAt(n, 5))
	require.NoError(t, err)

	// Moving around inside the same bracket never rebuilds.
	for _, d := range []float64{2, 8, 14, 5} {
		mesh, rebuilt, err := m.Update(viewerAt(n, d))
		require.NoError(t, err)
		assert.False(t, rebuilt)
		assert.Same(t, first, mesh)
	}
}

func TestMeshManager_RebuildOnBracketCrossing(t *testing.T) {
	m, n := testManager(t, 17, 17)
	first, err := m.Attach(viewerAt(n, 5))
	require.NoError(t, err)

	mesh, rebuilt, err := m.Update(viewerAt(n, 30))
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 2, mesh.Decimation)

	// The previous mesh's buffers were released on swap.
	assert.Nil(t, first.Vertices)
	assert.Nil(t, first.Indices)
	assert.NotSame(t, first, mesh)
}

func TestMeshManager_SkippedBracketsRebuildOnce(t *testing.T) {
	m, n := testManager(t, 17, 17)
	_, err := m.Attach(viewerAt(n, 5))
	require.NoError(t, err)

	metrics := observability.NewMetricsForTesting()
	m.metrics = metrics

	// Bracket 1 -> bracket 3 in a single frame: exactly one rebuild,
	// directly at the target decimation, no intermediate mesh.
	mesh, rebuilt, err := m.Update(viewerAt(n, 80))
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.Equal(t, 4, mesh.Decimation)
	assert.Equal(t, 1.0, counterValue(t, metrics.LODRebuilds))
}

func TestMeshManager_MonotonicTriangleCount(t *testing.T) {
	m, n := testManager(t, 33, 33)
	_, err := m.Attach(viewerAt(n, 1))
	require.NoError(t, err)

	prev := math.MaxInt
	for _, d := range []float64{1, 20, 50, 200} {
		mesh, _, err := m.Update(viewerAt(n, d))
		require.NoError(t, err)
		assert.LessOrEqual(t, mesh.TriangleCount(), prev,
			"triangles must not increase with distance (at %v)", d)
		prev = mesh.TriangleCount()
	}
}

func TestMeshManager_Release(t *testing.T) {
	m, n := testManager(t, 9, 9)
	mesh, err := m.Attach(viewerAt(n, 5))
	require.NoError(t, err)

	m.Release()
	assert.Nil(t, m.Mesh())
	assert.Nil(t, mesh.Vertices)

	// Update after release behaves like a fresh attach.
	rebuiltMesh, rebuilt, err := m.Update(viewerAt(n, 5))
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.NotNil(t, rebuiltMesh)
}

func TestMeshManager_TooSmallTerrain(t *testing.T) {
	g := testGrid(2, 2, func(r, c int) float64 { return 5 })
	n := Normalize(g, 10)
	m, err := NewMeshManager(n, DefaultLODTable, testLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)

	// Far viewer selects decimation 8, which this grid cannot support.
	_, err = m.Attach(viewerAt(n, 500))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientGridSize)
}
