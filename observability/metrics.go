package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type paymentMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
	executor   *prometheus.CounterVec
	tasks      prometheus.Gauge
	height     prometheus.Gauge
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentRegistry    *paymentMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// Payments returns the lazily-initialised registry for escrow operations.
func Payments() *paymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentRegistry = &paymentMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "payment",
				Name:      "operations_total",
				Help:      "Escrow operations applied, segmented by operation and error kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Subsystem: "payment",
				Name:      "operation_duration_seconds",
				Help:      "Time spent applying an escrow operation including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "payment",
				Name:      "events_total",
				Help:      "Committed escrow events by type.",
			}, []string{"type"}),
			executor: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "scheduler",
				Name:      "tasks_total",
				Help:      "Scheduled tasks handled by the executor, by result.",
			}, []string{"result"}),
			tasks: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "scheduler",
				Name:      "pending_tasks",
				Help:      "Scheduled tasks still waiting for their expiry height.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "escrow",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Last processed block height.",
			}),
		}
		prometheus.MustRegister(
			paymentRegistry.operations,
			paymentRegistry.latency,
			paymentRegistry.events,
			paymentRegistry.executor,
			paymentRegistry.tasks,
			paymentRegistry.height,
		)
	})
	return paymentRegistry
}

// ObserveOperation records one applied operation. kind is empty on success.
func (m *paymentMetrics) ObserveOperation(operation, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "ok"
	if kind != "" {
		outcome = kind
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent counts a committed event.
func (m *paymentMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(strings.TrimSpace(eventType)).Inc()
}

// RecordTick publishes the outcome of an executor pass.
func (m *paymentMetrics) RecordTick(height uint64, cancelled, discarded, failed, pending int) {
	if m == nil {
		return
	}
	m.executor.WithLabelValues("cancelled").Add(float64(cancelled))
	m.executor.WithLabelValues("discarded").Add(float64(discarded))
	m.executor.WithLabelValues("failed").Add(float64(failed))
	m.tasks.Set(float64(pending))
	m.height.Set(float64(height))
}

// HTTP returns the registry tracking the RPC surface.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrow",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
