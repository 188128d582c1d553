package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	lookupsCompletedTotal prometheus.Counter
	lookupsFailedTotal    *prometheus.CounterVec
	lookupDuration        prometheus.Histogram
	retryScheduledTotal   prometheus.Counter
	workerInflight        prometheus.Gauge
	cacheHitsTotal        prometheus.Counter
	cacheMissesTotal      prometheus.Counter
	importsCreatedTotal   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "binlookup_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		lookupsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "lookups_completed_total",
				Help:      "Total number of BIN lookups that completed successfully.",
			},
		),
		lookupsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "lookups_failed_total",
				Help:      "Total number of BIN lookups that ended in failed state by reason.",
			},
			[]string{"reason"},
		),
		lookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "binlookup_engine",
				Name:      "lookup_duration_seconds",
				Help:      "End-to-end lookup processing duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of lookups scheduled for retry.",
			},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "binlookup_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight lookup operations.",
			},
		),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "lookup_cache_hits_total",
				Help:      "Total number of lookups served from the redis cache.",
			},
		),
		cacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "lookup_cache_misses_total",
				Help:      "Total number of lookups that missed the redis cache.",
			},
		),
		importsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "binlookup_engine",
				Name:      "imports_created_total",
				Help:      "Total number of accepted BIN import files.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.lookupsCompletedTotal,
		m.lookupsFailedTotal,
		m.lookupDuration,
		m.retryScheduledTotal,
		m.workerInflight,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.importsCreatedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncLookupCompleted() {
	if m == nil {
		return
	}
	m.lookupsCompletedTotal.Inc()
}

func (m *Metrics) IncLookupFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.lookupsFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveLookupDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.lookupDuration.Observe(seconds)
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

func (m *Metrics) IncImportCreated() {
	if m == nil {
		return
	}
	m.importsCreatedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
