package cache

import "fmt"

// TileCacheKey identifies one tile of the pyramid and its cache entry.
type TileCacheKey struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (k TileCacheKey) String() string {
	return fmt.Sprintf("%d_%d_%d", k.Z, k.X, k.Y)
}

type TileCacheValue []byte

// TileCache stores encoded tile bytes. Entries are written once and never
// replaced or removed by the pipeline.
type TileCache interface {
	Has(TileCacheKey) (bool, error)
	Get(TileCacheKey) (TileCacheValue, bool, error)
	Set(TileCacheKey, TileCacheValue) error
}
