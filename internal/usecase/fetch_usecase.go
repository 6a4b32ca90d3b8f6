package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Danrejk/download-image-from-tiles/internal/grid"
	"github.com/Danrejk/download-image-from-tiles/internal/raster"
	"github.com/Danrejk/download-image-from-tiles/internal/repository/cache"
	"github.com/Danrejk/download-image-from-tiles/internal/upstream"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
	"github.com/Danrejk/download-image-from-tiles/pkg/metrics"
	"github.com/Danrejk/download-image-from-tiles/pkg/telemetry"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidTile marks a 2xx response whose body is not a decodable image.
	ErrInvalidTile = errors.New("invalid tile image")

	// ErrCacheWrite aborts the whole batch: without a writable cache nothing
	// downloaded can be kept.
	ErrCacheWrite = errors.New("failed to write tile to cache")
)

const (
	defaultWorkers = 50
	defaultRetries = 3
)

type Outcome int

const (
	AlreadyCached Outcome = iota
	Downloaded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case AlreadyCached:
		return "cached"
	case Downloaded:
		return "downloaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TileSource downloads encoded tile bytes. *upstream.Client implements it.
type TileSource interface {
	Fetch(ctx context.Context, zoom, x, y int) ([]byte, error)
}

type TileResult struct {
	Key      cache.TileCacheKey
	Outcome  Outcome
	Attempts int
	Err      error
}

// Report aggregates tile outcomes of one FetchAll run.
type Report struct {
	Zoom          int                  `json:"zoom"`
	Total         int                  `json:"total"`
	Downloaded    int                  `json:"downloaded"`
	AlreadyCached int                  `json:"already_cached"`
	Failed        int                  `json:"failed"`
	FailedTiles   []cache.TileCacheKey `json:"failed_tiles,omitempty"`
}

func (r Report) Done() int {
	return r.Downloaded + r.AlreadyCached + r.Failed
}

type FetchConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

type FetchUseCase struct {
	cache  cache.TileCache
	source TileSource
	cfg    FetchConfig
	logger logger.Logger

	mu       sync.Mutex
	progress Report
}

func NewFetchUseCase(c cache.TileCache, source TileSource, cfg FetchConfig, l logger.Logger) *FetchUseCase {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}

	return &FetchUseCase{
		cache:  c,
		source: source,
		cfg:    cfg,
		logger: l,
	}
}

// FetchAll makes sure every tile of the grid at zoom is cached. At most
// cfg.Workers tiles are in flight at once. Individual tile failures are
// counted in the report; only a cache write failure or ctx cancellation is
// returned as an error.
func (uc *FetchUseCase) FetchAll(ctx context.Context, zoom int, g grid.Grid) (Report, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "fetch_all", trace.WithAttributes(
		attribute.Int("tile.zoom", zoom),
		attribute.Int("tile.count", g.Len()),
		attribute.Int("fetch.workers", uc.cfg.Workers),
	))
	defer span.End()

	uc.resetProgress(zoom, g.Len())

	uc.logger.Info("downloading tiles for zoom level",
		"zoom", zoom,
		"tiles_x", g.TilesX,
		"tiles_y", g.TilesY,
		"workers", uc.cfg.Workers,
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(uc.cfg.Workers)

	for _, cell := range g.Cells() {
		if egCtx.Err() != nil {
			break
		}

		key := cache.TileCacheKey{X: cell.X, Y: cell.Y, Z: zoom}
		eg.Go(func() error {
			res := uc.FetchOne(egCtx, key)
			uc.record(res)
			if errors.Is(res.Err, ErrCacheWrite) {
				return res.Err
			}
			return nil
		})
	}

	err := eg.Wait()
	report := uc.Progress()

	span.SetAttributes(
		attribute.Int("fetch.downloaded", report.Downloaded),
		attribute.Int("fetch.cached", report.AlreadyCached),
		attribute.Int("fetch.failed", report.Failed),
	)

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	uc.logger.Info("finished downloading tiles",
		"zoom", zoom,
		"downloaded", report.Downloaded,
		"already_cached", report.AlreadyCached,
		"failed", report.Failed,
	)

	return report, nil
}

// FetchOne ensures a single tile is cached. A cache hit costs no request.
// Non-2xx responses fail at once; transport errors and undecodable bodies are
// retried up to cfg.Retries attempts in total.
func (uc *FetchUseCase) FetchOne(ctx context.Context, key cache.TileCacheKey) TileResult {
	ctx, span := telemetry.Tracer().Start(ctx, "fetch_one", trace.WithAttributes(
		attribute.Int("tile.z", key.Z),
		attribute.Int("tile.x", key.X),
		attribute.Int("tile.y", key.Y),
	))
	defer span.End()

	res := uc.fetchOne(ctx, key)

	span.SetAttributes(
		attribute.String("tile.outcome", res.Outcome.String()),
		attribute.Int("tile.attempts", res.Attempts),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}

	switch res.Outcome {
	case AlreadyCached:
		uc.logger.Info("tile already downloaded", "z", key.Z, "x", key.X, "y", key.Y)
	case Downloaded:
		uc.logger.Info("downloaded tile", "z", key.Z, "x", key.X, "y", key.Y, "attempts", res.Attempts)
	case Failed:
		uc.logger.Warn("failed to download valid tile",
			"z", key.Z, "x", key.X, "y", key.Y,
			"attempts", res.Attempts,
			"error", res.Err,
		)
	}

	return res
}

func (uc *FetchUseCase) fetchOne(ctx context.Context, key cache.TileCacheKey) TileResult {
	res := TileResult{Key: key}

	cached, err := uc.cache.Has(key)
	if err != nil {
		uc.logger.Warn("cache lookup failed, downloading anyway", "z", key.Z, "x", key.X, "y", key.Y, "error", err)
	}
	if cached {
		metrics.CacheHits.Inc()
		res.Outcome = AlreadyCached
		return res
	}
	metrics.CacheMisses.Inc()

	err = retry.Do(ctx, uc.backoff(), func(ctx context.Context) error {
		res.Attempts++

		data, err := uc.source.Fetch(ctx, key.Z, key.X, key.Y)
		if err != nil {
			var statusErr *upstream.StatusError
			if errors.As(err, &statusErr) {
				metrics.FetchAttempts.WithLabelValues("status").Inc()
				uc.logger.Warn("tile missing or error",
					"z", key.Z, "x", key.X, "y", key.Y,
					"status", statusErr.StatusCode,
				)
				return err
			}

			metrics.FetchAttempts.WithLabelValues("network").Inc()
			uc.logger.Warn("error downloading tile",
				"z", key.Z, "x", key.X, "y", key.Y,
				"attempt", res.Attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}

		if err := raster.Validate(data); err != nil {
			metrics.FetchAttempts.WithLabelValues("invalid").Inc()
			uc.logger.Warn("invalid image data for tile, retrying",
				"z", key.Z, "x", key.X, "y", key.Y,
				"attempt", res.Attempts,
				"error", err,
			)
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrInvalidTile, err))
		}

		metrics.FetchAttempts.WithLabelValues("ok").Inc()

		if err := uc.cache.Set(key, data); err != nil {
			return fmt.Errorf("%w %s: %v", ErrCacheWrite, key, err)
		}
		metrics.CacheStores.Inc()

		return nil
	})
	if err != nil {
		res.Outcome = Failed
		res.Err = err
		return res
	}

	res.Outcome = Downloaded
	return res
}

// backoff allows cfg.Retries attempts in total. Attempts follow each other
// immediately unless a retry delay is configured.
func (uc *FetchUseCase) backoff() retry.Backoff {
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	})
	if uc.cfg.RetryDelay > 0 {
		b = retry.NewConstant(uc.cfg.RetryDelay)
	}
	return retry.WithMaxRetries(uint64(uc.cfg.Retries-1), b)
}

func (uc *FetchUseCase) resetProgress(zoom, total int) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.progress = Report{Zoom: zoom, Total: total}
}

func (uc *FetchUseCase) record(res TileResult) {
	metrics.FetchOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	uc.mu.Lock()
	defer uc.mu.Unlock()

	switch res.Outcome {
	case AlreadyCached:
		uc.progress.AlreadyCached++
	case Downloaded:
		uc.progress.Downloaded++
	case Failed:
		uc.progress.Failed++
		uc.progress.FailedTiles = append(uc.progress.FailedTiles, res.Key)
	}
}

// Progress returns a snapshot of the current or last FetchAll run.
func (uc *FetchUseCase) Progress() Report {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	report := uc.progress
	report.FailedTiles = append([]cache.TileCacheKey(nil), uc.progress.FailedTiles...)
	return report
}
