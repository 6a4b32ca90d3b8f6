package usecase

import (
	"github.com/Danrejk/download-image-from-tiles/internal/repository/cache"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
)

// TileCacheUseCase gives read access to cached tiles for the status server.
type TileCacheUseCase struct {
	cache  cache.TileCache
	logger logger.Logger
}

func NewTileCacheUseCase(cache cache.TileCache, l logger.Logger) *TileCacheUseCase {
	return &TileCacheUseCase{
		cache:  cache,
		logger: l,
	}
}

func (uc *TileCacheUseCase) GetCachedTile(z, x, y int) ([]byte, bool, error) {
	uc.logger.Debug("cache lookup", "z", z, "x", x, "y", y)
	key := cache.TileCacheKey{
		X: x,
		Y: y,
		Z: z,
	}

	data, exists, err := uc.cache.Get(key)
	if err != nil {
		uc.logger.Error("cache lookup failed", "z", z, "x", x, "y", y, "error", err)
		return nil, false, err
	}
	return data, exists, nil
}
