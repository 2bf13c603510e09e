// Package metrics exposes the daemon's Prometheus instrumentation: queue
// depth by status, dependency call outcomes, circuit state, and event bus
// delivery counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// Registry holds the daemon's metric instruments on a private Prometheus
// registry so tests can run multiple instances without collisions.
type Registry struct {
	registry *prometheus.Registry

	QueueItems      *prometheus.GaugeVec
	DispatchTotal   prometheus.Counter
	SyncTotal       prometheus.Counter
	Requests        *prometheus.CounterVec
	CircuitState    *prometheus.GaugeVec
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
}

var _ resilience.Observer = (*Registry)(nil)

// New builds and registers the instrument set.
func New() *Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: registry,
		QueueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fetcharr",
			Name:      "queue_items",
			Help:      "Queue items by status.",
		}, []string{"status"}),
		DispatchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fetcharr",
			Name:      "dispatch_passes_total",
			Help:      "Completed dispatch passes.",
		}),
		SyncTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fetcharr",
			Name:      "sync_passes_total",
			Help:      "Completed sync passes.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fetcharr",
			Name:      "dependency_requests_total",
			Help:      "Dependency calls by outcome.",
		}, []string{"dependency", "outcome"}),
		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fetcharr",
			Name:      "circuit_state",
			Help:      "Circuit state per dependency: 0 closed, 1 half-open, 2 open.",
		}, []string{"dependency"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fetcharr",
			Name:      "events_published_total",
			Help:      "Events accepted by the bus.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fetcharr",
			Name:      "events_dropped_total",
			Help:      "Per-subscriber event deliveries dropped.",
		}),
	}

	registry.MustRegister(
		r.QueueItems,
		r.DispatchTotal,
		r.SyncTotal,
		r.Requests,
		r.CircuitState,
		r.EventsPublished,
		r.EventsDropped,
	)
	return r
}

// Handler serves the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RequestCompleted implements resilience.Observer.
func (r *Registry) RequestCompleted(dependency, outcome string) {
	r.Requests.WithLabelValues(dependency, outcome).Inc()
}

// StateChanged implements resilience.Observer.
func (r *Registry) StateChanged(dependency string, state resilience.BreakerState) {
	value := 0.0
	switch state {
	case resilience.StateHalfOpen:
		value = 1
	case resilience.StateOpen:
		value = 2
	}
	r.CircuitState.WithLabelValues(dependency).Set(value)
}

// SetQueueDepth refreshes the per-status queue gauges.
func (r *Registry) SetQueueDepth(counts map[string]int) {
	for status, count := range counts {
		r.QueueItems.WithLabelValues(status).Set(float64(count))
	}
}
