package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/reliefcraft/terrain-service/internal/adapter/http"
	"github.com/reliefcraft/terrain-service/internal/config"
	"github.com/reliefcraft/terrain-service/internal/observability"
	"github.com/reliefcraft/terrain-service/internal/pipeline"
	"github.com/reliefcraft/terrain-service/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	registry, err := source.NewRegistry(source.BuiltinSources(cfg.MapboxToken)...)
	if err != nil {
		logger.Error("failed to register elevation sources", "error", err)
		os.Exit(1)
	}
	logger.Info("elevation sources registered", "sources", registry.Names())

	fetcher := source.NewFetcher(cfg.FetchTimeout, cfg.FetchRateLimit, cfg.FetchRetries, logger, metrics)

	var cache *source.GridCache
	if cfg.CacheSize > 0 {
		cache = source.NewGridCache(cfg.CacheSize, cfg.CacheTTL, clockwork.NewRealClock())
		logger.Info("grid cache enabled", "entries", cfg.CacheSize, "ttl", cfg.CacheTTL)
	} else {
		logger.Info("grid cache disabled")
	}

	svc := pipeline.New(pipeline.Config{
		TargetResolutionM: cfg.TargetResolutionM,
		MaxGridDim:        cfg.MaxGridDim,
		TargetSpan:        cfg.TargetSpan,
		BBoxLimits:        cfg.BBoxLimits,
		FetchConcurrency:  cfg.FetchConcurrency,
	}, registry, fetcher, cache, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, cfg.LODTable, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
