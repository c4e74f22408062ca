package core

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/aerostab/model"
)

// Sign applied to each family's forward difference. Aileron and rudder are
// negated to match their moment-sign convention.
var controlSigns = map[model.ControlSurfaceKind]float64{
	model.Aileron:  -1,
	model.Elevator: 1,
	model.Rudder:   -1,
	model.Flap:     1,
	model.Slat:     1,
}

// ControlSign returns the sign applied to a family's derivatives.
func ControlSign(kind model.ControlSurfaceKind) float64 {
	if s, ok := controlSigns[kind]; ok {
		return s
	}
	return 1
}

// ControlSurfaceEstimator computes derivatives with respect to each active
// control-surface family by stepping it DeltaControl from its equilibrium
// deflection. Every perturbation works on a snapshot: the caller's vehicle
// is never modified, so deflections need no restoring.
type ControlSurfaceEstimator struct {
	eval        *Evaluator
	delta       float64
	parallelism int
	metrics     MetricsRecorder
}

// NewControlSurfaceEstimator validates the deflection step once.
func NewControlSurfaceEstimator(eval *Evaluator, p Perturbations, parallelism int) (*ControlSurfaceEstimator, error) {
	if eval == nil {
		return nil, configErr("evaluator", "is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if parallelism < 1 {
		return nil, configErr("parallelism", "must be at least 1, got %d", parallelism)
	}
	return &ControlSurfaceEstimator{eval: eval, delta: p.DeltaControl, parallelism: parallelism, metrics: eval.metrics}, nil
}

// Estimate fills set and raw for each family in families.
func (c *ControlSurfaceEstimator) Estimate(ctx context.Context, eq model.FlightCondition, v model.Vehicle, c0 model.CoefficientSet, families []model.ControlSurfaceKind, set, raw *model.DerivativeSet) error {
	results := make([]channelResult, len(families))

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, kind := range families {
		cond := eq.Clone()
		vehicle := v.Clone()
		g.Go(func() error {
			r, err := c.deflect(ctx, cond, vehicle, c0, kind)
			results[i] = channelResult{raw: r, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, kind := range families {
		res := results[i]
		if res.err != nil {
			c.metrics.IncDerivativeFailure(kind.String())
			errs = append(errs, &ChannelError{Family: kind, IsControl: true, Err: res.err})
			continue
		}
		raw.SetControl(kind, res.raw)
		sign := ControlSign(kind)
		var signed model.CoefficientSet
		for _, coef := range model.Coefficients {
			signed = signed.With(coef, sign*res.raw.Get(coef))
		}
		set.SetControl(kind, signed)
	}
	return errors.Join(errs...)
}

func (c *ControlSurfaceEstimator) deflect(ctx context.Context, eq model.FlightCondition, v model.Vehicle, c0 model.CoefficientSet, kind model.ControlSurfaceKind) (_ model.CoefficientSet, err error) {
	ctx, span := startSpan(ctx, "aerostab.DeflectSurface", attribute.String("family", kind.String()))
	defer func() { endSpan(span, err) }()

	// Step from the trimmed deflection: the commanded one, or the stored
	// geometry's when the condition commands none.
	from, ok := eq.Controls[kind]
	if !ok {
		from = familyDeflection(v, kind)
	}
	ev, err := c.eval.Evaluate(ctx, eq.WithDeflection(kind, from+c.delta), v)
	if err != nil {
		return model.CoefficientSet{}, err
	}
	return difference(ev.Coefficients, c0, c.delta)
}
