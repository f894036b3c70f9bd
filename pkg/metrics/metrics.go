// Package metrics holds the Prometheus collectors for turn processing. All
// methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studybuddy"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	turnErrors     prometheus.Counter
	fallbacks      prometheus.Counter
	verifications  *prometheus.CounterVec
	revisions      prometheus.Counter
	condensations  prometheus.Counter
	toolCalls      *prometheus.CounterVec
	toolIterations prometheus.Histogram
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by response mode and style.",
		}, []string{"mode", "style"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		turnErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Turns that failed before producing a reply.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Routing decisions that fell back after a failed parse.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Rigor checks by outcome.",
		}, []string{"outcome"}),
		revisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_total",
			Help:      "Replies rewritten after a failed rigor check.",
		}),
		condensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condensations_total",
			Help:      "Replies shortened by the condense pass.",
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		toolIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_iterations",
			Help:      "Tool loop iterations per turn.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.turnDuration, m.turnErrors, m.fallbacks, m.verifications,
		m.revisions, m.condensations, m.toolCalls, m.toolIterations,
	)
	return m
}

// Registry exposes the underlying registry.
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
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records a completed turn.
func (m *Metrics) ObserveTurn(mode, style string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, style).Inc()
	m.turnDuration.Observe(d.Seconds())
}

// TurnFailed counts a turn that returned an error.
func (m *Metrics) TurnFailed() {
	if m == nil {
		return
	}
	m.turnErrors.Inc()
}

// ClassifierFallback counts a routing fallback.
func (m *Metrics) ClassifierFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// Verification records a rigor check outcome: pass, fail or advisory.
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// Revision counts a rewritten reply.
func (m *Metrics) Revision() {
	if m == nil {
		return
	}
	m.revisions.Inc()
}

// Condensation counts a condensed reply.
func (m *Metrics) Condensation() {
	if m == nil {
		return
	}
	m.condensations.Inc()
}

// ToolCall records one tool invocation.
func (m *Metrics) ToolCall(name string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolCalls.WithLabelValues(name, status).Inc()
}

// ToolIterations records how many tool rounds a turn used.
func (m *Metrics) ToolIterations(n int) {
	if m == nil {
		return
	}
	m.toolIterations.Observe(float64(n))
}
