package terrain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/reliefcraft/terrain-service/internal/observability"
)

// LODLevel maps a viewing distance bracket to a mesh decimation factor.
type LODLevel struct {
	MaxViewDistance float64 // render units; the last level may be +Inf
	Decimation      int
}

// LODTable is an ordered set of levels: strictly increasing distance,
// non-decreasing decimation, decimation 1 at the nearest level.
type LODTable []LODLevel

// DefaultLODTable is tuned for terrain normalized to a span of 10 render
// units.
var DefaultLODTable = LODTable{
	{MaxViewDistance: 15, Decimation: 1},
	{MaxViewDistance: 40, Decimation: 2},
	{MaxViewDistance: 100, Decimation: 4},
	{MaxViewDistance: math.Inf(1), Decimation: 8},
}

// Validate checks the table's ordering invariants.
func (t LODTable) Validate() error {
	if len(t) == 0 {
		return errors.New("lod table is empty")
	}
	if t[0].Decimation != 1 {
		return fmt.Errorf("nearest lod level must have decimation 1, got %d", t[0].Decimation)
	}
	for i, level := range t {
		if level.Decimation < 1 {
			return fmt.Errorf("lod level %d: decimation %d < 1", i, level.Decimation)
		}
		if i == 0 {
			continue
		}
		if level.MaxViewDistance <= t[i-1].MaxViewDistance {
			return fmt.Errorf("lod level %d: distance %v not above previous %v",
				i, level.MaxViewDistance, t[i-1].MaxViewDistance)
		}
		if level.Decimation < t[i-1].Decimation {
			return fmt.Errorf("lod level %d: decimation %d below previous %d",
				i, level.Decimation, t[i-1].Decimation)
		}
	}
	return nil
}

// DecimationFor returns the decimation factor for a viewing distance.
func (t LODTable) DecimationFor(distance float64) int {
	return t[t.levelFor(distance)].Decimation
}

// levelFor returns the index of the bracket containing distance. Distances
// beyond the final threshold land in the final bracket.
func (t LODTable) levelFor(distance float64) int {
	for i, level := range t {
		if distance <= level.MaxViewDistance {
			return i
		}
	}
	return len(t) - 1
}

// MeshManager owns the renderable mesh for one normalized terrain and
// swaps decimation variants as the viewer moves. It is the only component
// that allocates or releases mesh buffers; callers must not hold a
// returned mesh past the next Update.
//
// The manager is a per-viewport state machine: after Attach it is stable
// until the viewer distance crosses into a different LOD bracket, at which
// point it rebuilds once (directly at the new bracket, even when several
// brackets were skipped in one frame) and returns to stable.
type MeshManager struct {
	terrain *NormalizedTerrain
	table   LODTable
	center  [3]float64

	mesh  *Mesh
	level int

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMeshManager validates the table and prepares a manager. No mesh is
// built until Attach.
func NewMeshManager(t *NormalizedTerrain, table LODTable, logger *slog.Logger, metrics *observability.Metrics) (*MeshManager, error) {
	if len(table) == 0 {
		table = DefaultLODTable
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("lod table: %w", err)
	}
	return &MeshManager{
		terrain: t,
		table:   table,
		center:  t.Center(),
		level:   -1,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Attach builds the initial mesh for the viewer's starting position.
func (m *MeshManager) Attach(viewer [3]float64) (*Mesh, error) {
	return m.rebuild(m.table.levelFor(m.distance(viewer)))
}

// Update re-evaluates the LOD bracket for the viewer position, rebuilding
// the mesh only when the bracket changed. Returns the current mesh and
// whether a rebuild happened.
func (m *MeshManager) Update(viewer [3]float64) (*Mesh, bool, error) {
	if m.mesh == nil {
		mesh, err := m.Attach(viewer)
		return mesh, err == nil, err
	}

	target := m.table.levelFor(m.distance(viewer))
	if target == m.level {
		return m.mesh, false, nil
	}

	mesh, err := m.rebuild(target)
	if err != nil {
		return nil, false, err
	}
	return mesh, true, nil
}

// Mesh returns the live mesh, or nil before Attach.
func (m *MeshManager) Mesh() *Mesh { return m.mesh }

// Release drops the live mesh buffers, e.g. when a newer terrain replaces
// this one.
func (m *MeshManager) Release() {
	if m.mesh != nil {
		m.mesh.release()
		m.mesh = nil
		m.level = -1
	}
}

func (m *MeshManager) rebuild(level int) (*Mesh, error) {
	decimation := m.table[level].Decimation
	mesh, err := BuildMesh(m.terrain, decimation)
	if err != nil {
		return nil, err
	}

	if m.mesh != nil {
		m.mesh.release()
	}
	m.mesh = mesh
	m.level = level

	if m.metrics != nil {
		m.metrics.LODRebuilds.Inc()
	}
	if m.logger != nil {
		m.logger.Debug("lod mesh rebuilt",
			"decimation", decimation,
			"vertices", mesh.VertexCount(),
			"triangles", mesh.TriangleCount(),
		)
	}
	return mesh, nil
}

func (m *MeshManager) distance(viewer [3]float64) float64 {
	dx := viewer[0] - m.center[0]
	dy := viewer[1] - m.center[1]
	dz := viewer[2] - m.center[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
