package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Tree operation metrics
	treeOperationsTotal   *prometheus.CounterVec
	treeOperationDuration *prometheus.HistogramVec
	treeLeavesTotal       prometheus.Gauge
	treeKVsTotal          prometheus.Gauge
	treeFillRatio         prometheus.Gauge

	// Concurrency-protocol metrics (§4.5/§4.6 retry/escalate counters),
	// mirrored from Tree.LockStats as gauges since the tree owns the
	// authoritative monotonic counters.
	lockRetriesTotal   prometheus.Gauge
	lockFallbacksTotal prometheus.Gauge

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Health check metrics
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptreedb_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fptreedb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fptreedb_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		treeOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptreedb_tree_operations_total",
				Help: "Total number of find/insert/update/delete/rangeScan operations",
			},
			[]string{"operation", "status"},
		),

		treeOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fptreedb_tree_operation_duration_seconds",
				Help:    "Tree operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		treeLeavesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptreedb_tree_leaves_total",
				Help: "Total number of leaf nodes in the tree",
			},
		),

		treeKVsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptreedb_tree_kvs_total",
				Help: "Total number of live key-value pairs in the tree",
			},
		),

		treeFillRatio: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptreedb_tree_fill_ratio",
				Help: "Fraction of leaf capacity currently occupied, averaged across leaves",
			},
		),

		lockRetriesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptreedb_lock_retries_total",
				Help: "Cumulative count of aborted transactional attempts under the speculative lock",
			},
		),

		lockFallbacksTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fptreedb_lock_fallbacks_total",
				Help: "Cumulative count of escalations to the exclusive fallback path",
			},
		),

		authRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptreedb_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		healthChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fptreedb_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTreeOperation records a find/insert/update/delete/rangeScan call
func (m *Metrics) RecordTreeOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.treeOperationsTotal.WithLabelValues(operation, status).Inc()
	m.treeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateTreeStats updates the tree occupancy gauges
func (m *Metrics) UpdateTreeStats(leaves, kvs int, fillRatio float64) {
	m.treeLeavesTotal.Set(float64(leaves))
	m.treeKVsTotal.Set(float64(kvs))
	m.treeFillRatio.Set(fillRatio)
}

// UpdateLockStats mirrors Tree.LockStats into the retry/fallback gauges
func (m *Metrics) UpdateLockStats(retries, fallbacks uint64) {
	m.lockRetriesTotal.Set(float64(retries))
	m.lockFallbacksTotal.Set(float64(fallbacks))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		duration := time.Since(start)
		m.RecordHTTPRequest(method, endpoint, rw.statusCode, duration)
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			hasAPIKey := apiKey != ""

			next(h).ServeHTTP(w, r)

			if rw, ok := w.(*responseWriter); ok {
				success := rw.statusCode != http.StatusUnauthorized
				if hasAPIKey {
					m.RecordAuthRequest(success)
				}
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
