package supervisor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report supervisor activity.
type Metrics struct {
	routingDecisions *prometheus.CounterVec
	executorDuration *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	invocations      prometheus.Gauge
}

// MustNewMetrics registers the supervisor collectors with reg, reusing
// collectors that are already registered. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		routingDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbxagent",
				Subsystem: "supervisor",
				Name:      "routing_decisions_total",
				Help:      "Queries routed per agent and strategy.",
			},
			[]string{"agent", "strategy", "matched"},
		),
		executorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dbxagent",
				Subsystem: "supervisor",
				Name:      "executor_duration_seconds",
				Help:      "Time spent in agent executors.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"agent", "status"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dbxagent",
				Subsystem: "supervisor",
				Name:      "fallbacks_total",
				Help:      "Fallback attempts to the default agent by failed agent and outcome.",
			},
			[]string{"agent", "outcome"},
		),
		invocations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dbxagent",
				Subsystem: "supervisor",
				Name:      "invocations_active",
				Help:      "Invocations currently in progress.",
			},
		),
	}

	m.routingDecisions = register(reg, m.routingDecisions)
	m.executorDuration = register(reg, m.executorDuration)
	m.fallbacks = register(reg, m.fallbacks)
	m.invocations = register(reg, m.invocations)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveRouting counts one routing decision.
func (m *Metrics) ObserveRouting(agent string, strategy RoutingStrategy, matched bool) {
	if m == nil {
		return
	}
	label := "false"
	if matched {
		label = "true"
	}
	m.routingDecisions.WithLabelValues(agent, string(strategy), label).Inc()
}

// ObserveExecutor records the duration of one executor call.
func (m *Metrics) ObserveExecutor(agent, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executorDuration.WithLabelValues(agent, status).Observe(duration.Seconds())
}

// IncFallback counts a fallback attempt after agent failed.
func (m *Metrics) IncFallback(agent, outcome string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(agent, outcome).Inc()
}

func (m *Metrics) incActive() {
	if m == nil {
		return
	}
	m.invocations.Inc()
}

func (m *Metrics) decActive() {
	if m == nil {
		return
	}
	m.invocations.Dec()
}
