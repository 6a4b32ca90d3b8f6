package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemCache keeps one file per tile named {z}_{x}_{y}.{ext} inside dir.
// Writes go to a temp file in the same directory and are hard-linked into
// place, so a reader never observes a partially written tile and an existing
// entry is never replaced.
type FilesystemCache struct {
	dir string
	ext string
}

func NewFilesystemCache(dir, ext string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return &FilesystemCache{
		dir: dir,
		ext: strings.TrimPrefix(ext, "."),
	}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Has(k TileCacheKey) (bool, error) {
	_, err := os.Stat(c.Path(k))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (c *FilesystemCache) Get(k TileCacheKey) (TileCacheValue, bool, error) {
	content, err := os.ReadFile(c.Path(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

func (c *FilesystemCache) Set(k TileCacheKey, v TileCacheValue) error {
	tmp, err := os.CreateTemp(c.dir, ".tile-"+k.String()+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	// Link fails instead of replacing an entry another writer published first.
	err = os.Link(tmpName, c.Path(k))
	os.Remove(tmpName)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to publish tile: %w", err)
	}

	return nil
}

// Path is the final location of the entry for k.
func (c *FilesystemCache) Path(k TileCacheKey) string {
	return filepath.Join(c.dir, k.String()+"."+c.ext)
}
