package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Danrejk/download-image-from-tiles/internal/grid"
	v1 "github.com/Danrejk/download-image-from-tiles/internal/infrastructure/http/v1"
	"github.com/Danrejk/download-image-from-tiles/internal/infrastructure/http/v1/handler"
	"github.com/Danrejk/download-image-from-tiles/internal/raster"
	"github.com/Danrejk/download-image-from-tiles/internal/upstream"
	"github.com/Danrejk/download-image-from-tiles/internal/usecase"
	"github.com/Danrejk/download-image-from-tiles/pkg/config"
	"github.com/Danrejk/download-image-from-tiles/pkg/http_server"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
	"github.com/Danrejk/download-image-from-tiles/pkg/telemetry"
	"github.com/go-playground/validator/v10"
)

const shutdownTimeout = 30 * time.Second

// Run downloads every tile of the configured zoom level and stitches them
// into the output image. Per-tile failures are logged only; config, cache and
// stitch failures are returned.
func Run(cfg *config.Config) error {
	l, err := logger.NewZapLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer l.Sync()

	l.Info("app config",
		"url_template", cfg.Tiles.URLTemplate,
		"zoom", cfg.Tiles.MaxZoom,
		"tile_size", cfg.Tiles.Size,
		"overlap", cfg.Tiles.Overlap,
		"width", cfg.Image.Width,
		"height", cfg.Image.Height,
		"output", cfg.Image.Output,
		"cache_backend", cfg.Cache.Backend,
		"workers", cfg.Fetch.Workers,
		"retries", cfg.Fetch.Retries,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	g, err := grid.New(cfg.Image.Width, cfg.Image.Height, cfg.Tiles.Size, cfg.Tiles.Overlap)
	if err != nil {
		return err
	}

	background, err := raster.ParseColor(cfg.Image.Background)
	if err != nil {
		return err
	}

	tileCache, closeCache, err := newTileCache(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize %s cache: %w", cfg.Cache.Backend, err)
	}
	defer func() {
		if err := closeCache(); err != nil {
			l.Error("failed to close cache", "error", err)
		}
	}()

	client := upstream.NewClient(upstream.Config{
		URLTemplate: cfg.Tiles.URLTemplate,
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		Referer:     cfg.Fetch.Referer,
	}, l)

	fetcher := usecase.NewFetchUseCase(tileCache, client, usecase.FetchConfig{
		Workers:    cfg.Fetch.Workers,
		Retries:    cfg.Fetch.Retries,
		RetryDelay: cfg.Fetch.RetryDelay,
	}, l)

	stitcher := usecase.NewStitchUseCase(tileCache, cfg.Image.Output, background, l)

	if cfg.HTTP.Server.Enabled {
		h := handler.NewHandler(validator.New(), usecase.NewTileCacheUseCase(tileCache, l), fetcher)
		router := v1.NewRouter(h, l, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)
		server := http_server.NewServer(cfg.HTTP.Server, router)

		go func() {
			l.Info("starting status server", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("status server failed", "error", err)
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			l.Info("shutting down status server...", "address", server.Addr)
			if err := server.Shutdown(shutdownCtx); err != nil {
				l.Error("status server shutdown failed", "error", err)
			}
		}()
	}

	report, err := fetcher.FetchAll(ctx, cfg.Tiles.MaxZoom, g)
	if err != nil {
		return fmt.Errorf("failed to fetch tiles: %w", err)
	}
	if report.Failed > 0 {
		l.Warn("some tiles could not be downloaded and will be left blank",
			"failed", report.Failed,
			"tiles", report.FailedTiles,
		)
	}

	if _, err := stitcher.Stitch(ctx, cfg.Tiles.MaxZoom, g); err != nil {
		return fmt.Errorf("failed to stitch image: %w", err)
	}

	l.Info("application finished")
	return nil
}
