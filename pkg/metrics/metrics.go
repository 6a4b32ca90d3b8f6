package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchOutcomes counts finished tiles by outcome: cached, downloaded or failed.
	FetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_fetch_outcomes_total",
		Help: "Total number of tiles processed by the fetcher, by outcome",
	}, []string{"outcome"})

	// FetchAttempts counts upstream attempts by result class.
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_fetch_attempts_total",
		Help: "Total number of upstream tile requests, by result",
	}, []string{"result"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of cache misses",
	})

	CacheStores = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_stores_total",
		Help: "Total number of cache store operations",
	})

	StitchedTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_stitched_total",
		Help: "Total number of tiles pasted onto a mosaic",
	})

	StitchMissing = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiles_stitch_missing_total",
		Help: "Total number of grid cells left as background while stitching",
	})

	StitchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiles_stitch_duration_seconds",
		Help:    "Duration of a full stitch including encoding",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)
