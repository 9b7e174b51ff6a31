// Package metrics provides Prometheus metrics for the filehub server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	searchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_searches_total",
			Help: "Total number of registry searches",
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_deliveries_total",
			Help: "Delivery plans by outcome",
		},
		[]string{"outcome"},
	)

	pullBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_pull_bytes_total",
			Help: "Total bytes served to pull agents",
		},
	)

	indexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filehub_indexed_entries_total",
			Help: "Entries added to the registry by the indexer",
		},
	)
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordSearch counts a search
func RecordSearch() {
	searchesTotal.Inc()
}

// RecordDelivery counts a delivery attempt. outcome is one of
// direct, callback, over_threshold, denied, not_found, error.
func RecordDelivery(outcome string) {
	deliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordPull counts bytes streamed to a pull agent
func RecordPull(n int64) {
	pullBytesTotal.Add(float64(n))
}

// RecordIndexed counts entries added by the indexer
func RecordIndexed(n int) {
	indexedTotal.Add(float64(n))
}
