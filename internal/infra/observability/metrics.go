// Package observability exports scheduler and HTTP metrics to Prometheus.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nudge/internal/domain/reminder"
)

const namespace = "nudge"

// MetricsCollector records engine and HTTP metrics on its own registry.
// It satisfies scheduler.Metrics.
type MetricsCollector struct {
	registry *prometheus.Registry

	remindersCreated    *prometheus.CounterVec
	deliveries          *prometheus.CounterVec
	remindersSuppressed *prometheus.CounterVec
	ticks               prometheus.Counter
	ticksSkipped        prometheus.Counter
	tickDuration        prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewMetricsCollector builds a collector with a fresh registry. Go runtime and
// process collectors are included when withRuntime is set.
func NewMetricsCollector(withRuntime bool) *MetricsCollector {
	m := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		remindersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_created_total",
			Help:      "Reminders created, by parse confidence.",
		}, []string{"confidence"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts, by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		remindersSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_suppressed_total",
			Help:      "Overdue reminders held back, by reason.",
		}, []string{"reason"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed scheduler ticks.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks dropped because the previous tick was still running.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a scheduler tick.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.remindersCreated,
		m.deliveries,
		m.remindersSuppressed,
		m.ticks,
		m.ticksSkipped,
		m.tickDuration,
		m.httpRequests,
		m.httpLatency,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry.
func (m *MetricsCollector) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ReminderCreated counts a new reminder.
func (m *MetricsCollector) ReminderCreated(confidence reminder.Confidence) {
	m.remindersCreated.WithLabelValues(string(confidence)).Inc()
}

// DeliveryAttempted counts one delivery.
func (m *MetricsCollector) DeliveryAttempted(kind reminder.Kind, outcome string) {
	m.deliveries.WithLabelValues(string(kind), outcome).Inc()
}

// RemindersSuppressed counts reminders held back in a tick.
func (m *MetricsCollector) RemindersSuppressed(reason string, count int) {
	if count <= 0 {
		return
	}
	m.remindersSuppressed.WithLabelValues(reason).Add(float64(count))
}

// TickCompleted records a finished tick.
func (m *MetricsCollector) TickCompleted(duration time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(duration.Seconds())
}

// TickSkipped counts a tick dropped by the re-entrancy guard.
func (m *MetricsCollector) TickSkipped() {
	m.ticksSkipped.Inc()
}

// RecordHTTPServerRequest records one served request. route is the matched
// route template, not the raw path.
func (m *MetricsCollector) RecordHTTPServerRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}
