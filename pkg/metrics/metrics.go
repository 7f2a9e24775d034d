// Package metrics exposes the Prometheus metrics of the catalog pager.
// Metrics are defined next to the code that records them (pagination,
// catalog, prefs) and registered with Registry via promauto.With.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving all registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Paginator Metrics (pkg/pagination):
//   - pager_advance_total{paginator, outcome} (Counter): Advance calls by outcome
//     (succeeded, failed, skipped, stale)
//   - pager_fetch_duration_seconds{paginator} (Histogram): Fetch latency
//   - pager_resets_total{paginator} (Counter): Reset calls
//   - pager_inflight{paginator} (Gauge): Fetches currently running, including
//     stale ones still waiting for the catalog
//
// Catalog Metrics (pkg/catalog):
//   - catalog_requests_total{endpoint, status} (Counter): Requests by HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request latency
//   - catalog_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Preference Metrics (pkg/prefs):
//   - prefs_operations_total{backend, operation, result} (Counter): Store operations
//
// Example Prometheus Queries:
//
//   # Share of Advance calls dropped by the single-flight guard
//   sum(rate(pager_advance_total{outcome="skipped"}[5m])) /
//   sum(rate(pager_advance_total[5m]))
//
//   # Failed page loads
//   rate(pager_advance_total{outcome="failed"}[5m])
//
//   # P95 catalog latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
