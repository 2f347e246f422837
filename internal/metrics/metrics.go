// Package metrics defines the Prometheus collectors for the session
// lifecycle: auth operations, profile fetches, guard decisions and the
// number of live client managers. All recorder methods are nil-safe so
// components can run without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all storefront collectors.
type Metrics struct {
	AuthOperations   *prometheus.CounterVec
	ProfileFetches   *prometheus.CounterVec
	StaleCompletions *prometheus.CounterVec
	GuardDecisions   *prometheus.CounterVec
	AuthEvents       *prometheus.CounterVec
	ActiveClients    prometheus.Gauge
}

// New registers all collectors on registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AuthOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailormade_auth_operations_total",
				Help: "Credential operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProfileFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailormade_auth_profile_fetches_total",
				Help: "Profile lookups by outcome (ok, error, skipped)",
			},
			[]string{"outcome"},
		),
		StaleCompletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailormade_auth_stale_completions_total",
				Help: "Completions dropped because newer session work superseded them",
			},
			[]string{"operation"},
		),
		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailormade_guard_decisions_total",
				Help: "Route guard outcomes by phase",
			},
			[]string{"phase"},
		),
		AuthEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tailormade_auth_events_total",
				Help: "Auth events received by client managers",
			},
			[]string{"type"},
		),
		ActiveClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tailormade_active_clients",
				Help: "Client session managers currently held in memory",
			},
		),
	}
}

// NewRegistry creates a registry with the storefront collectors plus the
// Go runtime and process collectors.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// Handler returns the scrape endpoint for reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// AuthOperation counts one sign-in/up/out outcome.
func (m *Metrics) AuthOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.AuthOperations.WithLabelValues(op, outcome).Inc()
}

// ProfileFetch counts one profile lookup outcome.
func (m *Metrics) ProfileFetch(outcome string) {
	if m == nil {
		return
	}
	m.ProfileFetches.WithLabelValues(outcome).Inc()
}

// StaleCompletion counts a dropped completion.
func (m *Metrics) StaleCompletion(op string) {
	if m == nil {
		return
	}
	m.StaleCompletions.WithLabelValues(op).Inc()
}

// GuardDecision counts one guard outcome.
func (m *Metrics) GuardDecision(phase string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(phase).Inc()
}

// AuthEvent counts one received auth event.
func (m *Metrics) AuthEvent(eventType string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(eventType).Inc()
}

// ClientAdded increments the live client gauge.
func (m *Metrics) ClientAdded() {
	if m == nil {
		return
	}
	m.ActiveClients.Inc()
}

// ClientRemoved decrements the live client gauge.
func (m *Metrics) ClientRemoved() {
	if m == nil {
		return
	}
	m.ActiveClients.Dec()
}
