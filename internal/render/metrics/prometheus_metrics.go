package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const subsystem = "render"

// PrometheusMetrics holds the Prometheus instruments of the render service
type PrometheusMetrics struct {
	// Chrome pool metrics
	chromePoolSize  prometheus.Gauge
	chromeAvailable prometheus.Gauge

	// Render metrics
	rendersTotal    *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	inflightRenders prometheus.Gauge
	statsRecords    prometheus.Counter

	httpRequests *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler fasthttp.RequestHandler
}

// NewPrometheusMetrics registers on the default registry, which also carries the Go and process collectors
func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewPrometheusMetricsWithRegistry registers on registerer. When registerer is
// also a Gatherer it backs the exposition handler.
func NewPrometheusMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{logger: logger}

	pm.chromePoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chrome_pool_size",
		Help:      "Total number of Chrome instances in the pool",
	})

	pm.chromeAvailable = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chrome_available",
		Help:      "Number of idle Chrome instances",
	})

	pm.rendersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "renders_total",
		Help:      "Resolved render jobs by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // outcome: completed, timed_out, render_failed, internal_failed

	pm.renderDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "render_duration_seconds",
		Help:      "Time from job dispatch to resolution",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"endpoint"})

	pm.inflightRenders = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "inflight_renders",
		Help:      "Render jobs dispatched and not yet finished",
	})

	pm.statsRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stats_records_total",
		Help:      "Statistics records emitted for successful renders",
	})

	pm.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by endpoint and status",
	}, []string{"endpoint", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total errors by type",
	}, []string{"type"}) // type: validation, timeout, render, internal

	registerer.MustRegister(
		pm.chromePoolSize,
		pm.chromeAvailable,
		pm.rendersTotal,
		pm.renderDuration,
		pm.inflightRenders,
		pm.statsRecords,
		pm.httpRequests,
		pm.errorsTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Render service Prometheus metrics initialized", zap.String("namespace", namespace))
	return pm
}

func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}
