package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsCollector centralizes all metrics recording for Fetch Service
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

// NewMetricsCollector creates a new MetricsCollector instance
func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewMetricsCollectorWithRegistry creates a MetricsCollector backed by a
// custom registry, for tests that must not touch the default registerer.
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// UpdateContextsOpen updates the open browser contexts gauge
func (mc *MetricsCollector) UpdateContextsOpen(count int) {
	mc.prometheus.UpdateContextsOpen(float64(count))
}

// UpdatePagesOpen updates the open browser pages gauge
func (mc *MetricsCollector) UpdatePagesOpen(count int) {
	mc.prometheus.UpdatePagesOpen(float64(count))
}

// RecordFetchSuccess records a successful fetch
func (mc *MetricsCollector) RecordFetchSuccess() {
	mc.prometheus.RecordFetch("success")
}

// RecordFetchError records a failed fetch
func (mc *MetricsCollector) RecordFetchError() {
	mc.prometheus.RecordFetch("error")
}

// RecordFetchTimeout records a fetch that hit the navigation timeout
func (mc *MetricsCollector) RecordFetchTimeout() {
	mc.prometheus.RecordFetch("timeout")
}

// RecordFetchDownload records a fetch answered from a file download
func (mc *MetricsCollector) RecordFetchDownload() {
	mc.prometheus.RecordFetch("download")
	mc.prometheus.RecordDownload()
}

// RecordFetchDuration records fetch duration in seconds
func (mc *MetricsCollector) RecordFetchDuration(seconds float64) {
	mc.prometheus.RecordFetchDuration(seconds)
}

// RecordRequestAborted records one intercepted request aborted by policy
func (mc *MetricsCollector) RecordRequestAborted() {
	mc.prometheus.RecordRequestAborted()
}

// RecordHTTPRequest records an HTTP request
func (mc *MetricsCollector) RecordHTTPRequest(endpoint, status string) {
	mc.prometheus.RecordHTTPRequest(endpoint, status)
}

// RecordValidationError records a validation error
func (mc *MetricsCollector) RecordValidationError() {
	mc.prometheus.RecordError("validation")
}

// RecordFetchErrorMetric records a fetch error metric
func (mc *MetricsCollector) RecordFetchErrorMetric() {
	mc.prometheus.RecordError("fetch")
}

// RecordTimeoutError records a timeout error
func (mc *MetricsCollector) RecordTimeoutError() {
	mc.prometheus.RecordError("timeout")
}

// RecordInternalError records an internal error
func (mc *MetricsCollector) RecordInternalError() {
	mc.prometheus.RecordError("internal")
}

// ServeHTTP serves Prometheus metrics via HTTP
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
