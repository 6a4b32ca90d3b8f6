package app

import (
	"fmt"

	"github.com/Danrejk/download-image-from-tiles/internal/repository/cache"
	"github.com/Danrejk/download-image-from-tiles/pkg/config"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
)

// newTileCache builds the configured backend. The returned close function is
// never nil.
func newTileCache(cfg *config.Config, l logger.Logger) (cache.TileCache, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache.Backend {
	case "filesystem":
		c, err := cache.NewFilesystemCache(cfg.Cache.Dir, cfg.Tiles.Extension)
		if err != nil {
			return nil, noop, err
		}
		l.Info("filesystem cache initialized", "dir", cfg.Cache.Dir)
		return c, noop, nil

	case "sqlite":
		c, err := cache.NewSQLiteCache(cfg.Cache.SQLitePath, l)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil

	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		l.Info("redis cache initialized", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return c, c.Close, nil

	case "memory":
		l.Warn("memory cache selected, tiles will not survive the run")
		return cache.NewMapCache(), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
