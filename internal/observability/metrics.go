package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// terrain pipeline.
type Metrics struct {
	TerrainRequests  *prometheus.CounterVec // labels: source, outcome={ok,invalid_bbox,no_data,scatter,error}
	BuildsInFlight   prometheus.Gauge
	BuildsSuperseded prometheus.Counter

	// Acquisition metrics.
	TilesFetched *prometheus.CounterVec // labels: source, outcome={success,retry_exhausted,decode_error}
	TileRetries  prometheus.Counter
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	// Grid assembly metrics.
	GridBuildDuration prometheus.Histogram
	GapFilledCells    prometheus.Histogram

	// Mesh metrics.
	LODRebuilds prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TerrainRequests,
		m.BuildsInFlight,
		m.BuildsSuperseded,
		m.TilesFetched,
		m.TileRetries,
		m.CacheLookups,
		m.GridBuildDuration,
		m.GapFilledCells,
		m.LODRebuilds,
	)
	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TerrainRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "requests_total",
			Help:      "Terrain build requests by source and outcome.",
		}, []string{"source", "outcome"}),
		BuildsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "terrain",
			Name:      "builds_in_flight",
			Help:      "Grid builds currently running.",
		}),
		BuildsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "builds_superseded_total",
			Help:      "In-flight builds cancelled because a newer request replaced them.",
		}),
		TilesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "tiles_fetched_total",
			Help:      "Tile fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		TileRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "tile_retries_total",
			Help:      "Per-tile fetch retries.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "cache_lookups_total",
			Help:      "Grid cache lookups by result.",
		}, []string{"result"}),
		GridBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "terrain",
			Name:      "grid_build_duration_seconds",
			Help:      "Duration of a complete fetch-decode-assemble cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		GapFilledCells: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "terrain",
			Name:      "gap_filled_cells",
			Help:      "Cells per grid assigned by nearest-neighbor interpolation.",
			Buckets:   []float64{0, 10, 100, 1000, 10000, 100000},
		}),
		LODRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "terrain",
			Name:      "lod_rebuilds_total",
			Help:      "Mesh rebuilds triggered by LOD bracket changes.",
		}),
	}
}
