package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts objects served from Redis
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_edge_cache_hits_total",
		Help: "Total number of edge cache hits",
	})

	// CacheMisses counts reads that went to the origin store
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_edge_cache_misses_total",
		Help: "Total number of edge cache misses",
	})

	// NotModified counts 304 responses from ETag revalidation
	NotModified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "galaxy_edge_cache_not_modified_total",
		Help: "Total number of 304 Not Modified responses",
	})

	// CacheErrors counts failed cache operations
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_edge_cache_errors_total",
		Help: "Total number of edge cache operation errors",
	}, []string{"operation"}) // "get", "set", "delete"
)
