package pagination

import (
	"github.com/Sternrassler/catalog-pager/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for paginator operations.
var (
	pagerAdvanceTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "pager_advance_total",
		Help: "Total Advance calls by paginator and outcome",
	}, []string{"paginator", "outcome"})

	pagerFetchDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_fetch_duration_seconds",
		Help:    "Fetch duration in seconds by paginator",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"paginator"})

	pagerResetsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "pager_resets_total",
		Help: "Total Reset calls by paginator",
	}, []string{"paginator"})

	pagerInflight = promauto.With(metrics.Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "pager_inflight",
		Help: "Fetches currently in flight by paginator",
	}, []string{"paginator"})
)
