package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/terrain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FetchTimeout     time.Duration
	FetchRetries     int
	FetchRateLimit   float64 // tile requests per second, 0 disables
	FetchConcurrency int

	CacheSize int
	CacheTTL  time.Duration

	TargetResolutionM float64
	MaxGridDim        int
	TargetSpan        float64
	BBoxLimits        geo.Limits
	LODTable          terrain.LODTable // nil selects the built-in table

	// Mapbox Terrain-RGB is only registered when a token is present.
	MapboxToken string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
		MapboxToken: os.Getenv("MAPBOX_TOKEN"),
		BBoxLimits:  geo.DefaultLimits,
	}

	var err error
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration("CACHE_TTL", "10m"); err != nil {
		return nil, err
	}

	if cfg.FetchRetries, err = parseInt("FETCH_RETRIES", 3, 1, 10); err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency, err = parseInt("FETCH_CONCURRENCY", 8, 1, 64); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = parseInt("CACHE_SIZE", 64, 0, 4096); err != nil {
		return nil, err
	}
	if cfg.MaxGridDim, err = parseInt("MAX_GRID_DIM", 512, 2, 4096); err != nil {
		return nil, err
	}

	if cfg.FetchRateLimit, err = parseFloat("FETCH_RATE_LIMIT", 0, 0); err != nil {
		return nil, err
	}
	if cfg.TargetResolutionM, err = parseFloat("TARGET_RESOLUTION_M", 30, 1); err != nil {
		return nil, err
	}
	if cfg.TargetSpan, err = parseFloat("TARGET_SPAN", 10, 0.001); err != nil {
		return nil, err
	}
	if cfg.BBoxLimits.MinAreaM2, err = parseFloat("BBOX_MIN_AREA_M2", geo.DefaultLimits.MinAreaM2, 0); err != nil {
		return nil, err
	}
	if cfg.BBoxLimits.MaxAreaM2, err = parseFloat("BBOX_MAX_AREA_M2", geo.DefaultLimits.MaxAreaM2, 0); err != nil {
		return nil, err
	}
	if cfg.BBoxLimits.MaxAreaM2 <= cfg.BBoxLimits.MinAreaM2 {
		return nil, fmt.Errorf("BBOX_MAX_AREA_M2 must exceed BBOX_MIN_AREA_M2")
	}

	if cfg.LODTable, err = parseLODTable("LOD_TABLE"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseLODTable reads "distance:decimation" pairs in increasing distance
// order, e.g. "15:1,40:2,100:4,inf:8". Unset leaves the built-in table.
func parseLODTable(key string) (terrain.LODTable, error) {
	s := os.Getenv(key)
	if s == "" {
		return nil, nil
	}

	var table terrain.LODTable
	for _, part := range strings.Split(s, ",") {
		distStr, decStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid %s: %q is not distance:decimation", key, part)
		}
		dist, err := strconv.ParseFloat(distStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: bad distance %q", key, distStr)
		}
		dec, err := strconv.Atoi(decStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: bad decimation %q", key, decStr)
		}
		table = append(table, terrain.LODLevel{MaxViewDistance: dist, Decimation: dec})
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return table, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, fallback, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, min, max)
	}
	return n, nil
}

func parseFloat(key string, fallback, min float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < min {
		return 0, fmt.Errorf("invalid %s: must be a number >= %g", key, min)
	}
	return f, nil
}
