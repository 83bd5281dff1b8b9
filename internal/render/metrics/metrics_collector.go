package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Error types for errors_total
const (
	ErrorValidation = "validation"
	ErrorTimeout    = "timeout"
	ErrorRender     = "render"
	ErrorInternal   = "internal"
)

// MetricsCollector is the single entry point for render service metrics
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

// NewMetricsCollectorWithRegistry is used by tests to avoid the global registry
func NewMetricsCollectorWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetricsWithRegistry(namespace, registerer, logger),
		logger:     logger,
	}
}

// RecordRender counts a resolved render job and observes its duration
func (mc *MetricsCollector) RecordRender(endpoint, outcome string, elapsed time.Duration) {
	mc.prometheus.rendersTotal.WithLabelValues(endpoint, outcome).Inc()
	mc.prometheus.renderDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (mc *MetricsCollector) RecordError(errorType string) {
	mc.prometheus.errorsTotal.WithLabelValues(errorType).Inc()
}

func (mc *MetricsCollector) RecordHTTPRequest(endpoint string, status int) {
	mc.prometheus.httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (mc *MetricsCollector) SetInflight(n int) {
	mc.prometheus.inflightRenders.Set(float64(n))
}

func (mc *MetricsCollector) RecordStatsRecord() {
	mc.prometheus.statsRecords.Inc()
}

// UpdateChromePool publishes the pool gauges
func (mc *MetricsCollector) UpdateChromePool(size, available int) {
	mc.prometheus.chromePoolSize.Set(float64(size))
	mc.prometheus.chromeAvailable.Set(float64(available))
}

// ServeHTTP serves the Prometheus exposition format
func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
