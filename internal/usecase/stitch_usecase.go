package usecase

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/Danrejk/download-image-from-tiles/internal/grid"
	"github.com/Danrejk/download-image-from-tiles/internal/raster"
	"github.com/Danrejk/download-image-from-tiles/internal/repository/cache"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
	"github.com/Danrejk/download-image-from-tiles/pkg/metrics"
	"github.com/Danrejk/download-image-from-tiles/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type StitchUseCase struct {
	cache      cache.TileCache
	output     string
	background color.Color
	logger     logger.Logger
}

func NewStitchUseCase(c cache.TileCache, output string, background color.Color, l logger.Logger) *StitchUseCase {
	if background == nil {
		background = color.White
	}

	return &StitchUseCase{
		cache:      c,
		output:     output,
		background: background,
		logger:     l,
	}
}

// Stitch composites every cached tile of the grid at zoom onto one canvas and
// writes it to the output path. Missing or undecodable tiles leave the
// background visible; read, encode and write failures abort the stitch.
func (uc *StitchUseCase) Stitch(ctx context.Context, zoom int, g grid.Grid) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "stitch", trace.WithAttributes(
		attribute.Int("tile.zoom", zoom),
		attribute.Int("canvas.width", g.CanvasWidth()),
		attribute.Int("canvas.height", g.CanvasHeight()),
	))
	defer span.End()

	start := time.Now()

	path, err := uc.stitch(ctx, zoom, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	metrics.StitchDuration.Observe(time.Since(start).Seconds())
	return path, nil
}

func (uc *StitchUseCase) stitch(ctx context.Context, zoom int, g grid.Grid) (string, error) {
	uc.logger.Info("stitching tiles into final image",
		"zoom", zoom,
		"width", g.CanvasWidth(),
		"height", g.CanvasHeight(),
	)

	canvas := raster.NewCanvas(g.CanvasWidth(), g.CanvasHeight(), uc.background)

	placed, missing := 0, 0
	for _, cell := range g.Cells() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key := cache.TileCacheKey{X: cell.X, Y: cell.Y, Z: zoom}

		data, ok, err := uc.cache.Get(key)
		if err != nil {
			return "", fmt.Errorf("failed to read tile %s from cache: %w", key, err)
		}
		if !ok {
			uc.logger.Warn("missing tile for stitching", "x", cell.X, "y", cell.Y)
			metrics.StitchMissing.Inc()
			missing++
			continue
		}

		tile, err := raster.Decode(data)
		if err != nil {
			uc.logger.Warn("cached tile cannot be decoded, leaving background",
				"x", cell.X, "y", cell.Y,
				"error", err,
			)
			metrics.StitchMissing.Inc()
			missing++
			continue
		}

		p := g.Placement(cell.X, cell.Y)
		raster.Place(canvas, tile, p.Source(), p.Destination().Min)
		metrics.StitchedTiles.Inc()
		placed++
	}

	if err := raster.Save(canvas, uc.output); err != nil {
		return "", err
	}

	uc.logger.Info("saved stitched image",
		"path", uc.output,
		"placed", placed,
		"missing", missing,
	)

	return uc.output, nil
}
