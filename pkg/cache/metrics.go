package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks resolved records served from Redis by resource kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkwrite_cache_hits_total",
			Help: "Total number of resolved records served from cache",
		},
		[]string{"kind"},
	)

	// CacheMisses tracks lookups that had to go to the API
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkwrite_cache_misses_total",
			Help: "Total number of record cache misses",
		},
		[]string{"kind"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkwrite_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
