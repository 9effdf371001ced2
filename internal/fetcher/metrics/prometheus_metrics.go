package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// PrometheusMetrics provides high-performance metrics collection for Fetch Service
type PrometheusMetrics struct {
	// Browser pool metrics
	contextsOpen prometheus.Gauge
	pagesOpen    prometheus.Gauge

	// Fetch metrics
	fetchesTotal  *prometheus.CounterVec
	fetchDuration prometheus.Histogram

	// Interception metrics
	requestsAborted prometheus.Counter
	downloadsTotal  prometheus.Counter

	// HTTP metrics
	httpRequests *prometheus.CounterVec

	// Error metrics
	errorsTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewPrometheusMetrics creates a new Prometheus-based metrics collector
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry creates a new Prometheus-based metrics collector with custom registry
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		logger: logger,
	}

	// Browser pool metrics
	pm.contextsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "contexts_open",
		Help:      "Number of open browser contexts",
	})

	pm.pagesOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "pages_open",
		Help:      "Number of open browser pages",
	})

	// Fetch metrics
	pm.fetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "fetches_total",
		Help:      "Total number of fetch requests",
	}, []string{"status"}) // status: success, error, timeout, download

	pm.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "fetch_duration_seconds",
		Help:      "Time spent servicing fetch requests",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
	})

	// Interception metrics
	pm.requestsAborted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "requests_aborted_total",
		Help:      "Total intercepted requests aborted before reaching the network",
	})

	pm.downloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "downloads_total",
		Help:      "Total navigations that turned into file downloads",
	})

	// HTTP metrics
	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	// Error metrics
	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fs",
		Name:      "errors_total",
		Help:      "Total errors by type",
	}, []string{"type"}) // type: validation, fetch, timeout, internal

	// Register all metrics
	registerer.MustRegister(
		pm.contextsOpen,
		pm.pagesOpen,
		pm.fetchesTotal,
		pm.fetchDuration,
		pm.requestsAborted,
		pm.downloadsTotal,
		pm.httpRequests,
		pm.errorsTotal,
	)

	// Create HTTP handler
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Info("Fetch Service Prometheus metrics initialized")
	return pm
}

// UpdateContextsOpen updates the open contexts gauge
func (pm *PrometheusMetrics) UpdateContextsOpen(count float64) {
	pm.contextsOpen.Set(count)
}

// UpdatePagesOpen updates the open pages gauge
func (pm *PrometheusMetrics) UpdatePagesOpen(count float64) {
	pm.pagesOpen.Set(count)
}

// RecordFetch records a fetch request outcome
func (pm *PrometheusMetrics) RecordFetch(status string) {
	pm.fetchesTotal.WithLabelValues(status).Inc()
}

// RecordFetchDuration records fetch duration
func (pm *PrometheusMetrics) RecordFetchDuration(seconds float64) {
	pm.fetchDuration.Observe(seconds)
}

// RecordRequestAborted records one aborted intercepted request
func (pm *PrometheusMetrics) RecordRequestAborted() {
	pm.requestsAborted.Inc()
}

// RecordDownload records one navigation that became a download
func (pm *PrometheusMetrics) RecordDownload() {
	pm.downloadsTotal.Inc()
}

// RecordHTTPRequest records an HTTP request
func (pm *PrometheusMetrics) RecordHTTPRequest(endpoint, status string) {
	pm.httpRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordError records an error by type
func (pm *PrometheusMetrics) RecordError(errorType string) {
	pm.errorsTotal.WithLabelValues(errorType).Inc()
}

// ServeHTTP serves Prometheus metrics via HTTP
func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
