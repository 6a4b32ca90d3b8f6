package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Danrejk/download-image-from-tiles/internal/grid"
	"github.com/Danrejk/download-image-from-tiles/internal/repository/cache"
	"github.com/Danrejk/download-image-from-tiles/internal/testutil"
	"github.com/Danrejk/download-image-from-tiles/internal/upstream"
	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
)

const testTileSize = 8

func newTestFetcher(t *testing.T, srv *testutil.TileServer, c cache.TileCache, cfg FetchConfig) *FetchUseCase {
	t.Helper()

	client := upstream.NewClient(upstream.Config{
		URLTemplate: srv.URLTemplate(),
		Timeout:     2 * time.Second,
	}, logger.NewNoOp())

	return NewFetchUseCase(c, client, cfg, logger.NewNoOp())
}

func mustGrid(t *testing.T, tilesX, tilesY int) grid.Grid {
	t.Helper()

	g, err := grid.New(tilesX*testTileSize, tilesY*testTileSize, testTileSize, 0)
	if err != nil {
		t.Fatalf("grid.New() error = %v", err)
	}
	return g
}

type failingCache struct {
	cache.TileCache
	getErr error
	setErr error
}

func (c *failingCache) Get(k cache.TileCacheKey) (cache.TileCacheValue, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.TileCache.Get(k)
}

func (c *failingCache) Set(k cache.TileCacheKey, v cache.TileCacheValue) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.TileCache.Set(k, v)
}

type flakySource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *flakySource) Fetch(ctx context.Context, zoom, x, y int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil, s.err
}

func TestFetchAll_DownloadsEveryTile(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()

	c := cache.NewMapCache()
	uc := newTestFetcher(t, srv, c, FetchConfig{Workers: 4, Retries: 3})
	g := mustGrid(t, 3, 2)

	report, err := uc.FetchAll(context.Background(), 5, g)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if report.Total != 6 || report.Downloaded != 6 || report.Failed != 0 || report.AlreadyCached != 0 {
		t.Errorf("report = %+v, want 6 downloaded", report)
	}
	if c.Len() != 6 {
		t.Errorf("cache holds %d tiles, want 6", c.Len())
	}

	for _, cell := range g.Cells() {
		ok, err := c.Has(cache.TileCacheKey{X: cell.X, Y: cell.Y, Z: 5})
		if err != nil || !ok {
			t.Errorf("tile (%d,%d) not cached", cell.X, cell.Y)
		}
	}
}

func TestFetchAll_SecondRunIsIdempotent(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()

	c := cache.NewMapCache()
	uc := newTestFetcher(t, srv, c, FetchConfig{Workers: 4, Retries: 3})
	g := mustGrid(t, 3, 3)

	if _, err := uc.FetchAll(context.Background(), 2, g); err != nil {
		t.Fatalf("first FetchAll() error = %v", err)
	}
	if got := srv.TotalRequests(); got != 9 {
		t.Fatalf("first run made %d requests, want 9", got)
	}

	srv.ResetCounters()

	report, err := uc.FetchAll(context.Background(), 2, g)
	if err != nil {
		t.Fatalf("second FetchAll() error = %v", err)
	}
	if got := srv.TotalRequests(); got != 0 {
		t.Errorf("second run made %d requests, want 0", got)
	}
	if report.AlreadyCached != 9 || report.Downloaded != 0 {
		t.Errorf("report = %+v, want 9 already cached", report)
	}
}

func TestFetchAll_PartialFailureIsolation(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()
	srv.SetAlways(3, 4, testutil.Response{StatusCode: 500})

	c := cache.NewMapCache()
	uc := newTestFetcher(t, srv, c, FetchConfig{Workers: 8, Retries: 3})
	g := mustGrid(t, 5, 5)

	report, err := uc.FetchAll(context.Background(), 1, g)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if report.Downloaded != 24 || report.Failed != 1 {
		t.Errorf("report = %+v, want 24 downloaded and 1 failed", report)
	}
	want := cache.TileCacheKey{X: 3, Y: 4, Z: 1}
	if len(report.FailedTiles) != 1 || report.FailedTiles[0] != want {
		t.Errorf("FailedTiles = %v, want [%v]", report.FailedTiles, want)
	}
	if ok, _ := c.Has(want); ok {
		t.Error("failed tile must not be cached")
	}
	if c.Len() != 24 {
		t.Errorf("cache holds %d tiles, want 24", c.Len())
	}
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()
	srv.SetDelay(20 * time.Millisecond)

	uc := newTestFetcher(t, srv, cache.NewMapCache(), FetchConfig{Workers: 3, Retries: 1})

	if _, err := uc.FetchAll(context.Background(), 0, mustGrid(t, 4, 4)); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if got := srv.MaxInFlight(); got > 3 || got < 1 {
		t.Errorf("max in-flight requests = %d, want 1..3", got)
	}
}

func TestFetchAll_CacheWriteErrorAborts(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()

	c := &failingCache{TileCache: cache.NewMapCache(), setErr: errors.New("disk full")}
	uc := newTestFetcher(t, srv, c, FetchConfig{Workers: 2, Retries: 3})

	_, err := uc.FetchAll(context.Background(), 0, mustGrid(t, 4, 4))
	if !errors.Is(err, ErrCacheWrite) {
		t.Fatalf("FetchAll() error = %v, want ErrCacheWrite", err)
	}
}

func TestFetchAll_CancelledContext(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()

	uc := newTestFetcher(t, srv, cache.NewMapCache(), FetchConfig{Workers: 2, Retries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uc.FetchAll(ctx, 0, mustGrid(t, 2, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
}

func TestFetchOne_RetryBound(t *testing.T) {
	tests := []struct {
		name         string
		resp         testutil.Response
		retries      int
		wantRequests int
		wantErr      error
	}{
		{
			name:         "invalid image is retried",
			resp:         testutil.Response{StatusCode: 200, Body: []byte("<html>blocked</html>")},
			retries:      3,
			wantRequests: 3,
			wantErr:      ErrInvalidTile,
		},
		{
			name:         "single attempt",
			resp:         testutil.Response{StatusCode: 200, Body: []byte("garbage")},
			retries:      1,
			wantRequests: 1,
			wantErr:      ErrInvalidTile,
		},
		{
			name:         "not found is not retried",
			resp:         testutil.Response{StatusCode: 404},
			retries:      3,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewTileServer(testTileSize)
			defer srv.Close()
			srv.SetAlways(1, 1, tt.resp)

			c := cache.NewMapCache()
			uc := newTestFetcher(t, srv, c, FetchConfig{Workers: 1, Retries: tt.retries})

			res := uc.FetchOne(context.Background(), cache.TileCacheKey{X: 1, Y: 1, Z: 0})

			if res.Outcome != Failed {
				t.Errorf("Outcome = %v, want failed", res.Outcome)
			}
			if got := srv.Requests(1, 1); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
			if res.Attempts != tt.wantRequests {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.wantRequests)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if c.Len() != 0 {
				t.Error("invalid data must never be cached")
			}
		})
	}
}

func TestFetchOne_StatusErrorIsReported(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()
	srv.SetAlways(0, 0, testutil.Response{StatusCode: 403})

	uc := newTestFetcher(t, srv, cache.NewMapCache(), FetchConfig{Retries: 3})
	res := uc.FetchOne(context.Background(), cache.TileCacheKey{})

	var se *upstream.StatusError
	if !errors.As(res.Err, &se) || se.StatusCode != 403 {
		t.Errorf("Err = %v, want status 403", res.Err)
	}
}

func TestFetchOne_RecoversAfterInvalidImage(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()
	srv.SetResponses(2, 0, testutil.Response{Body: []byte("truncated")})

	c := cache.NewMapCache()
	uc := newTestFetcher(t, srv, c, FetchConfig{Retries: 3})

	res := uc.FetchOne(context.Background(), cache.TileCacheKey{X: 2, Y: 0, Z: 4})
	if res.Outcome != Downloaded {
		t.Fatalf("Outcome = %v (err %v), want downloaded", res.Outcome, res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", res.Attempts)
	}
	if ok, _ := c.Has(cache.TileCacheKey{X: 2, Y: 0, Z: 4}); !ok {
		t.Error("tile should be cached after recovery")
	}
}

func TestFetchOne_NetworkErrorsRetried(t *testing.T) {
	src := &flakySource{err: errors.New("connection reset by peer")}
	uc := NewFetchUseCase(cache.NewMapCache(), src, FetchConfig{Retries: 4}, logger.NewNoOp())

	res := uc.FetchOne(context.Background(), cache.TileCacheKey{})
	if res.Outcome != Failed {
		t.Errorf("Outcome = %v, want failed", res.Outcome)
	}
	if src.calls != 4 {
		t.Errorf("source called %d times, want 4", src.calls)
	}
}

func TestFetchOne_CachedTileCostsNoRequest(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()

	c := cache.NewMapCache()
	key := cache.TileCacheKey{X: 1, Y: 2, Z: 3}
	if err := c.Set(key, testutil.EncodeTile(testTileSize, testutil.TileColor(1, 2))); err != nil {
		t.Fatal(err)
	}

	uc := newTestFetcher(t, srv, c, FetchConfig{Retries: 3})
	res := uc.FetchOne(context.Background(), key)

	if res.Outcome != AlreadyCached {
		t.Errorf("Outcome = %v, want cached", res.Outcome)
	}
	if srv.TotalRequests() != 0 {
		t.Errorf("made %d requests for a cached tile", srv.TotalRequests())
	}
}

func TestFetchUseCase_Progress(t *testing.T) {
	srv := testutil.NewTileServer(testTileSize)
	defer srv.Close()
	srv.SetAlways(0, 1, testutil.Response{StatusCode: 404})

	uc := newTestFetcher(t, srv, cache.NewMapCache(), FetchConfig{Workers: 2, Retries: 2})

	if got := uc.Progress(); got.Total != 0 {
		t.Errorf("Progress() before run = %+v", got)
	}

	if _, err := uc.FetchAll(context.Background(), 7, mustGrid(t, 2, 2)); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	p := uc.Progress()
	if p.Zoom != 7 || p.Total != 4 || p.Done() != 4 || p.Failed != 1 {
		t.Errorf("Progress() = %+v", p)
	}

	p.FailedTiles[0].X = 99
	if uc.Progress().FailedTiles[0].X == 99 {
		t.Error("Progress() must return a copy")
	}
}

func TestOutcome_String(t *testing.T) {
	tests := map[Outcome]string{
		AlreadyCached: "cached",
		Downloaded:    "downloaded",
		Failed:        "failed",
		Outcome(42):   "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
