package cache

import "sync"

type MapCache struct {
	m *TypedSyncMap
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k TileCacheKey) (TileCacheValue, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return nil, false
	}
	return v.(TileCacheValue), exists
}

// LoadOrStore keeps the first stored value for k.
func (c *TypedSyncMap) LoadOrStore(k TileCacheKey, v TileCacheValue) {
	c.m.LoadOrStore(k, v)
}

func (c *TypedSyncMap) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func NewMapCache() *MapCache {
	return &MapCache{
		m: &TypedSyncMap{},
	}
}

var _ TileCache = (*MapCache)(nil)

func (c *MapCache) Has(k TileCacheKey) (bool, error) {
	_, exists := c.m.Load(k)
	return exists, nil
}

func (c *MapCache) Get(k TileCacheKey) (TileCacheValue, bool, error) {
	v, exists := c.m.Load(k)
	return v, exists, nil
}

func (c *MapCache) Set(k TileCacheKey, v TileCacheValue) error {
	stored := make(TileCacheValue, len(v))
	copy(stored, v)
	c.m.LoadOrStore(k, stored)
	return nil
}

func (c *MapCache) Len() int {
	return c.m.Len()
}
