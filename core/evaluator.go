package core

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/aerostab/model"
)

// Evaluation is the result of one full evaluation: aggregation, moment
// transfer to the CG and the drag build-up.
type Evaluation struct {
	Condition model.FlightCondition
	// Coefficients is the final set with moments about the CG, Drag from
	// the build-up and CX corrected for viscous drag.
	Coefficients model.CoefficientSet
	// Inviscid is the aggregated set with moments about the CG.
	Inviscid model.CoefficientSet
	Channels map[model.Channel]model.CoefficientSet
	Surfaces map[model.ControlSurfaceKind]model.CoefficientSet
	PerWing  []WingLoads
	Drag     *DragConditions
	CG       model.Vec3

	Extrapolated []Extrapolation
}

// LowConfidence reports whether any table was extrapolated.
func (e *Evaluation) LowConfidence() bool { return len(e.Extrapolated) > 0 }

// Evaluator runs the full coefficient pipeline for one condition.
type Evaluator struct {
	agg     *Aggregator
	drag    *DragPipeline
	metrics MetricsRecorder
}

// EvaluatorOption customises NewEvaluator.
type EvaluatorOption func(*Evaluator)

// WithMetricsRecorder attaches an optional engine metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EvaluatorOption {
	return func(e *Evaluator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEvaluator pairs an aggregator with a drag pipeline.
func NewEvaluator(agg *Aggregator, drag *DragPipeline, opts ...EvaluatorOption) (*Evaluator, error) {
	if agg == nil {
		return nil, configErr("aggregator", "is required")
	}
	if drag == nil {
		return nil, configErr("drag", "pipeline is required")
	}
	e := &Evaluator{agg: agg, drag: drag, metrics: noopMetrics{}}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Aggregator returns the underlying aggregator.
func (e *Evaluator) Aggregator() *Aggregator { return e.agg }

// Evaluate applies cond.Controls to a snapshot of v and runs the pipeline.
// Neither cond nor v is modified.
func (e *Evaluator) Evaluate(ctx context.Context, cond model.FlightCondition, v model.Vehicle) (_ *Evaluation, err error) {
	ctx, span := startSpan(ctx, "aerostab.Evaluate",
		attribute.Float64("mach", cond.Mach),
		attribute.Float64("alpha", cond.Alpha),
		attribute.String("mode", e.agg.Mode().String()),
	)
	defer func() { endSpan(span, err) }()

	if err := cond.Validate(); err != nil {
		return nil, err
	}
	snap := applyControls(v, cond)

	start := time.Now()
	agg, err := e.agg.Aggregate(ctx, cond, snap)
	e.metrics.ObserveSolverCall(e.agg.Mode().String(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	for _, x := range agg.Extrapolated {
		e.metrics.IncExtrapolation(x.Regime.String())
	}

	inviscid := TransferMoments(agg.Total, agg.Reference, snap.CG)

	start = time.Now()
	dc := NewDragConditions(cond, inviscid)
	err = e.drag.Run(ctx, dc, snap)
	e.metrics.ObservePhase("drag", time.Since(start))
	if err != nil {
		return nil, err
	}

	final := inviscid
	final.Drag = dc.Total
	final.CX = inviscid.CX - dc.Viscous()*math.Cos(cond.Alpha)
	if c, bad := final.FirstNonFinite(); bad {
		return nil, nonFinite("evaluation", c)
	}

	return &Evaluation{
		Condition:    cond.Clone(),
		Coefficients: final,
		Inviscid:     inviscid,
		Channels:     agg.Channels,
		Surfaces:     agg.Surfaces,
		PerWing:      agg.PerWing,
		Drag:         dc,
		CG:           snap.CG,
		Extrapolated: agg.Extrapolated,
	}, nil
}

// applyControls returns v unchanged when cond commands no deflections,
// otherwise a deep copy with each commanded family set.
func applyControls(v model.Vehicle, cond model.FlightCondition) model.Vehicle {
	if len(cond.Controls) == 0 {
		return v
	}
	out := v.Clone()
	for _, kind := range model.ControlSurfaceKinds {
		if d, ok := cond.Controls[kind]; ok {
			out.SetDeflection(kind, d)
		}
	}
	return out
}

// TransferMoments moves CM and CN from the reference point to cg. Stations
// are measured with x positive aft.
func TransferMoments(cs model.CoefficientSet, ref model.Reference, cg model.Vec3) model.CoefficientSet {
	dx := cg.X - ref.X
	if dx == 0 {
		return cs
	}
	cs.CM -= dx / ref.Chord * cs.CZ
	cs.CN += dx / ref.Span * cs.CY
	return cs
}
