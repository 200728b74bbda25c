package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/reliefcraft/terrain-service/internal/geo"
	"github.com/reliefcraft/terrain-service/internal/observability"
	"github.com/reliefcraft/terrain-service/internal/raster"
)

// maxTilePayload caps a single tile body read. A 512px RGBA PNG stays well
// under this.
const maxTilePayload = 8 << 20

// Fetcher downloads and decodes tiles from declared sources, with a
// per-tile bounded retry policy and a shared request rate limit.
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewFetcher creates a Fetcher. requestsPerSecond <= 0 disables rate
// limiting; maxRetries counts attempts after the first.
func NewFetcher(timeout time.Duration, requestsPerSecond float64, maxRetries int, logger *slog.Logger, metrics *observability.Metrics) *Fetcher {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: maxRetries,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchTile downloads one tile and decodes it into samples. Transport and
// server failures are retried up to the bounded count and then wrapped in
// ErrSourceUnavailable; a malformed payload is a *raster.DecodeError and
// is never retried. Either failure is contained to this tile.
func (f *Fetcher) FetchTile(ctx context.Context, src TileSource, tile geo.Tile) ([]raster.Sample, error) {
	decode, err := src.Decoder()
	if err != nil {
		return nil, err
	}

	// Retry with the backoff doubling from 100ms; transient tile errors
	// resolve fast or not at all.
	backoff := 100 * time.Millisecond
	const maxBackoff = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.metrics.TileRetries.Inc()
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
		}

		body, err := f.download(ctx, src, tile)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			f.logger.Warn("tile fetch failed",
				"source", src.Name, "tile", tile.String(),
				"attempt", attempt+1, "error", err)
			continue
		}

		samples, err := decode(body, tile.Bounds(), src.TileSize)
		if err != nil {
			// Malformed payload: retrying would fetch the same bytes.
			f.metrics.TilesFetched.WithLabelValues(src.Name, "decode_error").Inc()
			return nil, err
		}

		f.metrics.TilesFetched.WithLabelValues(src.Name, "success").Inc()
		return samples, nil
	}

	f.metrics.TilesFetched.WithLabelValues(src.Name, "retry_exhausted").Inc()
	return nil, fmt.Errorf("%w: %s tile %s: %w", ErrSourceUnavailable, src.Name, tile.String(), lastErr)
}

func (f *Fetcher) download(ctx context.Context, src TileSource, tile geo.Tile) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL(tile), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("tile server status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTilePayload))
	if err != nil {
		return nil, fmt.Errorf("read tile body: %w", err)
	}
	return body, nil
}

// IsTileError reports whether err is the contained per-tile kind that the
// pipeline degrades to NoData instead of aborting the whole grid.
func IsTileError(err error) bool {
	var decodeErr *raster.DecodeError
	return errors.Is(err, ErrSourceUnavailable) || errors.As(err, &decodeErr)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
