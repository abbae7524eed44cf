// Package metrics exposes Prometheus collectors for the provisioning service.
//
// All methods are safe on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "forage_launch"

// OutcomeSuccess labels a provision that returned an address.
const OutcomeSuccess = "success"

// Metrics holds the service collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	provisions        *prometheus.CounterVec
	provisionDuration *prometheus.HistogramVec
	teardowns         *prometheus.CounterVec
	portsInUse        prometheus.Gauge
	portsTotal        prometheus.Gauge
	observers         prometheus.Gauge
	tunnelEvents      prometheus.Counter
}

// New creates the collectors in a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		provisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisions_total",
			Help:      "Provisioning requests by project kind and outcome.",
		}, []string{"kind", "outcome"}),
		provisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Time from request to resolution.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardowns_total",
			Help:      "Sandbox teardowns by reason.",
		}, []string{"reason"}),
		portsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_in_use",
			Help:      "Ports currently held by sandboxes.",
		}),
		portsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_total",
			Help:      "Size of the port pool.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Connected event subscribers.",
		}),
		tunnelEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnel_events_total",
			Help:      "Tunnel endpoints found in sandbox output.",
		}),
	}

	m.registry.MustRegister(
		m.provisions,
		m.provisionDuration,
		m.teardowns,
		m.portsInUse,
		m.portsTotal,
		m.observers,
		m.tunnelEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
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

// ProvisionFinished records the outcome of one request. Outcome is
// OutcomeSuccess or the error kind.
func (m *Metrics) ProvisionFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.provisions.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.provisionDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

// Teardown counts a sandbox teardown.
func (m *Metrics) Teardown(reason string) {
	if m == nil {
		return
	}
	m.teardowns.WithLabelValues(reason).Inc()
}

// SetPortsInUse sets the allocated port gauge.
func (m *Metrics) SetPortsInUse(n int) {
	if m == nil {
		return
	}
	m.portsInUse.Set(float64(n))
}

// SetPortsTotal sets the pool size gauge.
func (m *Metrics) SetPortsTotal(n int) {
	if m == nil {
		return
	}
	m.portsTotal.Set(float64(n))
}

// SetObservers sets the subscriber gauge.
func (m *Metrics) SetObservers(n int) {
	if m == nil {
		return
	}
	m.observers.Set(float64(n))
}

// TunnelEvent counts a discovered endpoint.
func (m *Metrics) TunnelEvent() {
	if m == nil {
		return
	}
	m.tunnelEvents.Inc()
}
