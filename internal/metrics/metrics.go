// Package metrics holds the Prometheus collectors exported by rw serve.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roadwork"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	transitions *prometheus.CounterVec
	timeFactors *prometheus.CounterVec
	assignments *prometheus.CounterVec
	dueBands    *prometheus.CounterVec
	relay       *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Activity status changes by source, target and outcome.",
		}, []string{"from", "to", "result"}),
		timeFactors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_factor_total",
			Help:      "Need classifications against a primary need, by category.",
		}, []string{"category"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_total",
			Help:      "Need assign, unassign and register operations by outcome.",
		}, []string{"op", "result"}),
		dueBands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "due_band_total",
			Help:      "Resolved due dates by escalation band.",
		}, []string{"band"}),
		relay: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Events handed to the broker, by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions, m.timeFactors, m.assignments, m.dueBands, m.relay,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) ObserveTransition(from, to string, allowed bool) {
	if m == nil {
		return
	}
	r := "allowed"
	if !allowed {
		r = "rejected"
	}
	m.transitions.WithLabelValues(from, to, r).Inc()
}

func (m *Metrics) ObserveTimeFactor(category string) {
	if m == nil {
		return
	}
	m.timeFactors.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveAssignment(op string, ok bool) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(op, result(ok)).Inc()
}

func (m *Metrics) ObserveDueBand(band string) {
	if m == nil {
		return
	}
	m.dueBands.WithLabelValues(band).Inc()
}

func (m *Metrics) ObserveRelay(ok bool) {
	if m == nil {
		return
	}
	m.relay.WithLabelValues(result(ok)).Inc()
}
