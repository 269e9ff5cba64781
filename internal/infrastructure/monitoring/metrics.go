package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the host runtime
type Metrics struct {
	// Envelope metrics
	EnvelopesDispatched *prometheus.CounterVec
	EnvelopesDropped    *prometheus.CounterVec
	DispatchDuration    *prometheus.HistogramVec

	// Capability metrics
	CapabilityErrors *prometheus.CounterVec

	// Sandbox metrics
	SandboxesActive prometheus.Gauge
	PanelsActive    prometheus.Gauge
	SandboxFaults   prometheus.Counter

	// Correlation metrics
	PendingRequests prometheus.Gauge

	// Surface channel metrics
	SurfaceConnections prometheus.Gauge
	SurfaceMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector backed by its own registry, so
// multiple collectors can coexist in tests.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		startTime: time.Now(),
		registry:  registry,

		EnvelopesDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_envelopes_dispatched_total",
				Help: "Total capability envelopes dispatched through the bridge",
			},
			[]string{"family", "outcome"},
		),
		EnvelopesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_envelopes_dropped_total",
				Help: "Envelopes dropped before dispatch",
			},
			[]string{"reason"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "host_dispatch_duration_seconds",
				Help:    "Duration of privileged capability dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family"},
		),
		CapabilityErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_capability_errors_total",
				Help: "Capability calls answered with an error response",
			},
			[]string{"family"},
		),
		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_sandboxes_active",
				Help: "Headless sandbox instances currently running",
			},
		),
		PanelsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_panels_active",
				Help: "Panel surfaces currently open",
			},
		),
		SandboxFaults: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "host_sandbox_faults_total",
				Help: "Uncaught runtime faults inside plugin code",
			},
		),
		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_pending_requests",
				Help: "Correlated requests awaiting a response",
			},
		),
		SurfaceConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_surface_connections",
				Help: "Attached websocket surface channels",
			},
		),
		SurfaceMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "host_surface_messages_total",
				Help: "Messages received on surface channels",
			},
			[]string{"direction"},
		),
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "host_uptime_seconds",
				Help: "Host uptime in seconds",
			},
		),
	}
}

// Handler returns the HTTP handler serving this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDispatch records one bridge dispatch
func (m *Metrics) RecordDispatch(family, outcome string, duration time.Duration) {
	m.EnvelopesDispatched.WithLabelValues(family, outcome).Inc()
	m.DispatchDuration.WithLabelValues(family).Observe(duration.Seconds())
	if outcome == "error" {
		m.CapabilityErrors.WithLabelValues(family).Inc()
	}
}

// RecordDrop records a dropped envelope
func (m *Metrics) RecordDrop(reason string) {
	m.EnvelopesDropped.WithLabelValues(reason).Inc()
}

// UpdateUptime refreshes the uptime gauge
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
