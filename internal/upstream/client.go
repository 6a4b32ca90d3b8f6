package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Danrejk/download-image-from-tiles/pkg/logger"
	"github.com/Danrejk/download-image-from-tiles/pkg/metrics"
)

// StatusError is returned for any non-2xx response. The tile server uses it to
// say a tile does not exist at that position, so it is never retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %s", e.StatusCode, e.URL)
}

type Config struct {
	URLTemplate string
	Timeout     time.Duration
	UserAgent   string
	Referer     string
}

type Client struct {
	urlTemplate string
	userAgent   string
	referer     string
	httpClient  *http.Client
	logger      logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	return &Client{
		urlTemplate: cfg.URLTemplate,
		userAgent:   cfg.UserAgent,
		referer:     cfg.Referer,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: l,
	}
}

// URL substitutes {zoom}, {x} and {y} in the template with decimal integers.
func (c *Client) URL(zoom, x, y int) string {
	return strings.NewReplacer(
		"{zoom}", strconv.Itoa(zoom),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(c.urlTemplate)
}

// Fetch downloads one tile. The body of a 2xx response is returned as is; the
// caller decides whether it is a valid image.
func (c *Client) Fetch(ctx context.Context, zoom, x, y int) ([]byte, error) {
	url := c.URL(zoom, x, y)
	c.logger.Debug("fetching from upstream", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	tileData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	c.logger.Debug("fetched tile from upstream", "url", url, "size", len(tileData))

	return tileData, nil
}
