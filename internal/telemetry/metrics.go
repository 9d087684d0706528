// Package telemetry provides application-level observability for Convertify.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CVF_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Conversion and compression counters
//   - Quota rejection counter
//   - Staged file cleanup counter
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /convertify/api/convert)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments.  Conversion metrics are labelled with the source
// and target extensions, both drawn from a small fixed recognized set.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template, NOT the raw URL, to prevent
// unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Engine metrics — recorded by the convert and compress handlers.
//
// ConversionsTotal is a CounterVec with labels {source, target, outcome}.
// Source and target are file extensions from the recognized format set;
// outcome is "success", "unsupported", or "error".
//
// Example PromQL queries:
//   - Most requested conversions:  topk(5, sum by (source, target) (conversions_total))
//   - Unsupported request rate:    rate(conversions_total{outcome="unsupported"}[1h])
//
// CompressionsTotal is a CounterVec with labels {category, reduced}.
// Category is "pdf", "image", or "archive"; reduced records whether the
// output ended up smaller than the input ("true"/"false").
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversions_total",
			Help: "Total number of file conversion requests, by source format, target format, and outcome.",
		},
		[]string{"source", "target", "outcome"},
	)

	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compressions_total",
			Help: "Total number of file compression requests, by category and whether size was reduced.",
		},
		[]string{"category", "reduced"},
	)
)

// QuotaRejectionsTotal is a plain Counter (no labels) incremented whenever a
// request is turned away with 429 because the caller's summed daily allowance
// is exhausted.  A sudden spike usually means a client retry loop.
//
// Example PromQL queries:
//   - Rejection rate:  rate(quota_rejections_total[15m])
var QuotaRejectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "quota_rejections_total",
		Help: "Total number of requests rejected because the daily usage quota was exhausted.",
	},
)

// StagedFilesCleanedTotal is a plain Counter incremented once per file removed
// by the cleanup background job.  Together with the job interval it gives the
// steady-state churn of the upload and output directories.
var StagedFilesCleanedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "staged_files_cleaned_total",
		Help: "Total number of staged and output files removed by the cleanup job.",
	},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
