package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MemoryHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_memory_hits_total",
		Help: "Tile requests answered by the memory tier (any state)",
	})

	DiskHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_disk_hits_total",
		Help: "Tiles loaded and decoded from the disk tier",
	})

	DiskMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_disk_misses_total",
		Help: "Tile requests not found on disk",
	})

	DiskCorrupt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_disk_corrupt_total",
		Help: "Disk tiles that failed to decode",
	})

	UpstreamFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_upstream_fetches_total",
		Help: "Tile fetches issued to the tile server",
	})

	UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maptiles_upstream_failures_total",
		Help: "Tile fetches that ended in a failed state",
	}, []string{"reason"})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "maptiles_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	EvictedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_evicted_files_total",
		Help: "Tile files deleted by eviction",
	})

	EvictedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maptiles_evicted_bytes_total",
		Help: "Bytes freed by eviction",
	})
)
