package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/aerostab/core"

// MetricsRecorder receives engine measurements. observability.EngineCollector
// implements it.
type MetricsRecorder interface {
	ObserveSolverCall(mode string, d time.Duration, err error)
	ObservePhase(phase string, d time.Duration)
	IncDerivativeFailure(name string)
	IncExtrapolation(regime string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSolverCall(string, time.Duration, error) {}
func (noopMetrics) ObservePhase(string, time.Duration)             {}
func (noopMetrics) IncDerivativeFailure(string)                    {}
func (noopMetrics) IncExtrapolation(string)                        {}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
