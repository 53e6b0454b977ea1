// Package metrics owns the service's Prometheus collectors.
//
// Collectors live on a private registry instead of the global default so
// tests can build a fresh Metrics without duplicate-registration panics.
// Every method is safe on a nil *Metrics, which lets services and tests
// run without metrics wired in.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rakshak"

// Metrics groups every collector the service updates.
type Metrics struct {
	registry *prometheus.Registry

	sosEvents           *prometheus.CounterVec
	authAttempts        *prometheus.CounterVec
	dataFallbacks       prometheus.Counter
	remoteWriteFailures *prometheus.CounterVec
	dispatchDropped     prometheus.Counter
	wsConnections       prometheus.Gauge
	httpDuration        *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sosEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sos_events_total",
		Help:      "SOS events recorded, by type",
	}, []string{"type"})
	m.authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Sign-in attempts by outcome",
	}, []string{"outcome"})
	m.dataFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dataloader_fallback_total",
		Help:      "Public data loads that failed and served the fallback set",
	})
	m.remoteWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_write_failures_total",
		Help:      "Best-effort document writes that failed, by collection",
	}, []string{"collection"})
	m.dispatchDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_dropped_total",
		Help:      "Remote SOS writes dropped because the queue was full",
	})
	m.wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Open WebSocket connections",
	})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method, route and status",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	m.registry.MustRegister(
		m.sosEvents, m.authAttempts, m.dataFallbacks,
		m.remoteWriteFailures, m.dispatchDropped,
		m.wsConnections, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SOSRecorded(eventType string) {
	if m == nil {
		return
	}
	m.sosEvents.WithLabelValues(eventType).Inc()
}

// AuthAttempt counts a sign-in by outcome ("success", "user-not-found", ...).
func (m *Metrics) AuthAttempt(outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DataFallback() {
	if m == nil {
		return
	}
	m.dataFallbacks.Inc()
}

func (m *Metrics) RemoteWriteFailed(collection string) {
	if m == nil {
		return
	}
	m.remoteWriteFailures.WithLabelValues(collection).Inc()
}

func (m *Metrics) DispatchDropped() {
	if m == nil {
		return
	}
	m.dispatchDropped.Inc()
}

func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// ObserveRequest records one HTTP request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
