package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector holds the metrics emitted by the coefficient engine: solver
// latency, derivative phase timing, failed derivative channels and surrogate
// extrapolations. It implements core.MetricsRecorder.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	SolverDuration   *prometheus.HistogramVec
	SolverCalls      *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	DerivativeFailed *prometheus.CounterVec
	Extrapolations   *prometheus.CounterVec
}

// NewEngineCollector registers engine metrics with the provided registerer. A
// nil registerer uses the Prometheus default registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	reg, gatherer := registryPair(reg)

	solverDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "duration_seconds",
		Help:      "Latency of a single coefficient evaluation, labeled by mode.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}

	solverCalls, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "calls_total",
		Help:      "Coefficient evaluations, labeled by mode and outcome.",
	}, []string{"mode", "outcome"}))
	if err != nil {
		return nil, err
	}

	phaseDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Wall time of each derivative-run phase.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
	}, []string{"phase"}))
	if err != nil {
		return nil, err
	}

	failed, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "derivative_failures_total",
		Help:      "Derivative channels or control families whose evaluation failed.",
	}, []string{"name"}))
	if err != nil {
		return nil, err
	}

	extrapolations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "surrogate",
		Name:      "extrapolations_total",
		Help:      "Surrogate queries answered outside their tabulated range, labeled by regime.",
	}, []string{"regime"}))
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:         gatherer,
		SolverDuration:   solverDuration,
		SolverCalls:      solverCalls,
		PhaseDuration:    phaseDuration,
		DerivativeFailed: failed,
		Extrapolations:   extrapolations,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveSolverCall records one evaluation.
func (c *EngineCollector) ObserveSolverCall(mode string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.SolverCalls.WithLabelValues(mode, outcome).Inc()
	c.SolverDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObservePhase records the duration of a derivative-run phase.
func (c *EngineCollector) ObservePhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncDerivativeFailure counts a failed channel or control family.
func (c *EngineCollector) IncDerivativeFailure(name string) {
	if c == nil {
		return
	}
	c.DerivativeFailed.WithLabelValues(name).Inc()
}

// IncExtrapolation counts a surrogate extrapolation in regime.
func (c *EngineCollector) IncExtrapolation(regime string) {
	if c == nil {
		return
	}
	c.Extrapolations.WithLabelValues(regime).Inc()
}
