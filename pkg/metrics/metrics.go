// Package metrics provides the Prometheus registry used by hatebu-galaxy.
// Metrics are defined in their owning packages (hatena, ratelimit, cache,
// partition, gather) via promauto so that packages stay independent; this
// package exposes the registry and the HTTP handler serving it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry. All metrics are registered via
// promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Upstream Metrics (pkg/hatena):
//   - hatena_requests_total{feed, status} (Counter): upstream requests by feed and HTTP status
//   - hatena_request_duration_seconds{feed} (Histogram): upstream request duration
//   - hatena_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//   - hatena_retries_total{error_class} (Counter): retry attempts
//   - hatena_retry_backoff_seconds{error_class} (Histogram): backoff durations
//   - hatena_retry_exhausted_total{error_class} (Counter): requests that exhausted retries
//
// Throttle Metrics (pkg/ratelimit):
//   - hatena_throttle_blocks_total (Counter): requests refused while the upstream asked us to back off
//   - hatena_throttle_events_total (Counter): 429/503 responses that opened a throttle window
//
// Pagination and Star Metrics (pkg/pagination, pkg/stars):
//   - galaxy_pages_fetched_total{result} (Counter): feed pages by result (ok, failed, discarded)
//   - galaxy_star_batches_total{result} (Counter): star batches by result (ok, failed)
//   - galaxy_star_entries_skipped_total{reason} (Counter): unusable star entries (malformed, no_eid, unknown_eid, unknown_color)
//
// Edge Cache Metrics (pkg/cache):
//   - galaxy_edge_cache_hits_total (Counter)
//   - galaxy_edge_cache_misses_total (Counter)
//   - galaxy_edge_cache_not_modified_total (Counter): 304 answers
//   - galaxy_edge_cache_errors_total{operation} (Counter)
//
// Partition Metrics (pkg/partition):
//   - galaxy_partition_merges_total{result} (Counter): merge-and-persist calls by result
//   - galaxy_partition_read_retries_total (Counter): retried partition reads
//   - galaxy_partition_records_written_total (Counter): records in written partitions
//   - galaxy_partition_markers_written_total (Counter): completion markers written
//
// Gather Metrics (pkg/gather):
//   - galaxy_gather_passes_total{result} (Counter): passes by result (ok, partial, panic)
//   - galaxy_gather_duration_seconds (Histogram)
//   - galaxy_gather_records_total (Counter): records returned by passes
//   - galaxy_gather_failures_total{stage} (Counter)
//   - galaxy_gather_completions_total (Counter): users marked complete
//
// HTTP Metrics (internal/api):
//   - galaxy_http_requests_total{route, status} (Counter)
//   - galaxy_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Upstream error rate
//   rate(hatena_errors_total[5m])
//
//   # Passes that degraded to partial results
//   rate(galaxy_gather_passes_total{result="partial"}[1h])
//
//   # Edge cache hit rate
//   sum(rate(galaxy_edge_cache_hits_total[5m])) /
//   (sum(rate(galaxy_edge_cache_hits_total[5m])) + sum(rate(galaxy_edge_cache_misses_total[5m])))
