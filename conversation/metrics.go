package conversation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for conversation execution.
//
// Metrics exposed (all namespaced with "automed_"):
//
//  1. turns_total (counter): rounds consumed or failed.
//     Labels: persona, outcome (completed, skipped, failed).
//  2. turn_latency_seconds (histogram): provider call duration per round,
//     retries included. Labels: persona.
//  3. retries_total (counter): retry attempts. Labels: persona, kind.
//  4. provider_errors_total (counter): failed rounds. Labels: kind.
//  5. sessions_total (counter): session lifecycle. Labels: event
//     (started, resumed, completed, released).
//  6. active_sessions (gauge): sessions started or resumed in this process
//     that have neither terminated nor been released.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := conversation.NewMetrics(registry)
//	orch, _ := conversation.New(provider, conversation.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns          *prometheus.CounterVec
	turnLatency    *prometheus.HistogramVec
	retries        *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// NewMetrics creates and registers all conversation metrics with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automed",
			Name:      "turns_total",
			Help:      "Conversation rounds by persona and outcome",
		}, []string{"persona", "outcome"}),

		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "automed",
			Name:      "turn_latency_seconds",
			Help:      "Provider call duration per round, retries included",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"persona"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automed",
			Name:      "retries_total",
			Help:      "Provider retry attempts by persona and error kind",
		}, []string{"persona", "kind"}),

		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automed",
			Name:      "provider_errors_total",
			Help:      "Rounds that failed after all retries, by error kind",
		}, []string{"kind"}),

		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "automed",
			Name:      "sessions_total",
			Help:      "Session lifecycle events",
		}, []string{"event"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "automed",
			Name:      "active_sessions",
			Help:      "Sessions started or resumed in this process that have not terminated or been released",
		}),
	}
}

// RecordTurn records the outcome of one round and, when the provider was
// called, its latency.
func (m *Metrics) RecordTurn(persona, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(persona, outcome).Inc()
	if latency > 0 {
		m.turnLatency.WithLabelValues(persona).Observe(latency.Seconds())
	}
}

// IncrementRetries counts one retry attempt.
func (m *Metrics) IncrementRetries(persona string, kind ErrorKind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(persona, string(kind)).Inc()
}

// IncrementProviderErrors counts one failed round.
func (m *Metrics) IncrementProviderErrors(kind ErrorKind) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(string(kind)).Inc()
}

// SessionStarted records a new or resumed session.
func (m *Metrics) SessionStarted(resumed bool) {
	if m == nil {
		return
	}
	if resumed {
		m.sessions.WithLabelValues("resumed").Inc()
	} else {
		m.sessions.WithLabelValues("started").Inc()
	}
	m.activeSessions.Inc()
}

// SessionCompleted records a session reaching its round limit.
func (m *Metrics) SessionCompleted() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("completed").Inc()
	m.activeSessions.Dec()
}

// SessionReleased records a session given up on before its round limit.
func (m *Metrics) SessionReleased() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("released").Inc()
	m.activeSessions.Dec()
}

// SessionReactivated counts a released session as active again.
func (m *Metrics) SessionReactivated() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}
