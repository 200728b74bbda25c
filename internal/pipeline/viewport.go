package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/reliefcraft/terrain-service/internal/observability"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

// ErrSuperseded means a newer request for the same viewport replaced this
// build while it was in flight. The newer result stands; this one carries
// no data.
var ErrSuperseded = errors.New("terrain request superseded by a newer one")

// ErrNoTerrain means the viewport has no live terrain to mesh, either
// because nothing loaded yet or because the last load resolved to scatter
// points.
var ErrNoTerrain = errors.New("viewport has no live terrain")

// Viewport owns the single live terrain/mesh pair for one display surface
// and enforces "last request wins": a Load supersedes any older in-flight
// Load, and a superseded build can never overwrite a newer result. The
// embedded mesh manager is the only holder of mesh buffers.
type Viewport struct {
	svc      *Service
	lodTable terrain.LODTable
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	result     *Result
	manager    *terrain.MeshManager
}

// NewViewport creates a viewport bound to a build service. An empty
// lodTable selects terrain.DefaultLODTable.
func NewViewport(svc *Service, lodTable terrain.LODTable, logger *slog.Logger, metrics *observability.Metrics) *Viewport {
	return &Viewport{
		svc:      svc,
		lodTable: lodTable,
		logger:   logger,
		metrics:  metrics,
	}
}

// Load builds terrain for req and installs it as the viewport's live
// result, cancelling and discarding any older in-flight build. Blocks
// until this build completes, fails, or is itself superseded.
func (v *Viewport) Load(ctx context.Context, req Request) (*Result, error) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	buildCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.generation++
	gen := v.generation
	v.mu.Unlock()

	defer cancel()
	res, err := v.svc.BuildTerrain(buildCtx, req)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.generation != gen {
		// A newer Load took over; drop this result no matter what it was.
		v.metrics.BuildsSuperseded.Inc()
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	v.install(res)
	return res, nil
}

// install swaps the live triple, releasing the previous mesh buffers.
// Caller holds v.mu.
func (v *Viewport) install(res *Result) {
	if v.manager != nil {
		v.manager.Release()
		v.manager = nil
	}
	v.result = res

	if res.Terrain != nil {
		mgr, err := terrain.NewMeshManager(res.Terrain, v.lodTable, v.logger, v.metrics)
		if err != nil {
			// Only a malformed LOD table reaches here; it was validated at
			// startup, so log loudly rather than dropping the terrain.
			v.logger.Error("mesh manager rejected lod table", "error", err)
			return
		}
		v.manager = mgr
	}
}

// Frame drives one display-frame LOD re-evaluation for the viewer
// position. Returns the current mesh and whether it was rebuilt this
// frame.
func (v *Viewport) Frame(viewer [3]float64) (*terrain.Mesh, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.manager == nil {
		return nil, false, ErrNoTerrain
	}
	return v.manager.Update(viewer)
}

// Result returns the live result, or nil before the first Load completes.
func (v *Viewport) Result() *Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.result
}

// Close releases the live mesh and cancels any in-flight build.
func (v *Viewport) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	if v.manager != nil {
		v.manager.Release()
		v.manager = nil
	}
	v.result = nil
}
