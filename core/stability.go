package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/aerostab/model"
)

// Perturbations are the fixed finite-difference steps.
type Perturbations struct {
	DeltaAngle   float64 `json:"delta_angle"`   // alpha, beta [rad]
	DeltaSpeed   float64 `json:"delta_speed"`   // u, v, w [m/s]
	DeltaRate    float64 `json:"delta_rate"`    // p, q, r [rad/s]
	DeltaControl float64 `json:"delta_control"` // surface deflection [rad]
	DeltaCG      float64 `json:"delta_cg"`      // aft CG shift [m]
}

// DefaultPerturbations returns the usual step sizes.
func DefaultPerturbations() Perturbations {
	return Perturbations{
		DeltaAngle:   0.01,
		DeltaSpeed:   0.1,
		DeltaRate:    0.01,
		DeltaControl: 1 * math.Pi / 180,
		DeltaCG:      0.1,
	}
}

// Validate rejects zero or non-finite steps.
func (p Perturbations) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"delta_angle", p.DeltaAngle},
		{"delta_speed", p.DeltaSpeed},
		{"delta_rate", p.DeltaRate},
		{"delta_control", p.DeltaControl},
		{"delta_cg", p.DeltaCG},
	} {
		if f.v == 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ConfigError{
				Field:  f.name,
				Reason: fmt.Sprintf("must be finite and non-zero, got %g", f.v),
				Err:    ErrZeroPerturbation,
			}
		}
	}
	return nil
}

// For returns the step used for a state channel.
func (p Perturbations) For(ch model.Channel) float64 {
	switch ch {
	case model.Alpha, model.Beta:
		return p.DeltaAngle
	case model.U, model.V, model.W:
		return p.DeltaSpeed
	default:
		return p.DeltaRate
	}
}

// Corrections applied on top of the plain forward difference. They convert
// the solver's native sign and scale conventions to the flight-dynamics ones
// and are reproduced exactly.
const (
	// ForceZeroCYAlpha overwrites CY_alpha with zero.
	//
	// Open question: the solver reports a spurious side force with alpha
	// that has always been discarded this way. No root cause is known, so
	// the override stays isolated here until it is checked against an
	// independent reference.
	ForceZeroCYAlpha = true

	// BetaRollSign negates CL_beta.
	BetaRollSign = -1.0
	// RollRateScale multiplies CY_p, CL_p and CN_p.
	RollRateScale = -10.0
	// YawRateScale multiplies CY_r, CL_r and CN_r.
	YawRateScale = 10.0
)

// Correct maps a raw forward difference to the reported derivative.
func Correct(ch model.Channel, c model.Coefficient, raw float64) float64 {
	switch {
	case ch == model.Alpha && c == model.CY && ForceZeroCYAlpha:
		return 0
	case ch == model.Beta && c == model.CL:
		return BetaRollSign * raw
	case ch == model.P && isLateralCorrected(c):
		return RollRateScale * raw
	case ch == model.R && isLateralCorrected(c):
		return YawRateScale * raw
	}
	return raw
}

func isLateralCorrected(c model.Coefficient) bool {
	return c == model.CY || c == model.CL || c == model.CN
}

// difference returns (c - c0)/delta for every coefficient.
func difference(c, c0 model.CoefficientSet, delta float64) (model.CoefficientSet, error) {
	if delta == 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return model.CoefficientSet{}, ErrDegenerateDifference
	}
	var out model.CoefficientSet
	for _, k := range model.Coefficients {
		out = out.With(k, (c.Get(k)-c0.Get(k))/delta)
	}
	if k, bad := out.FirstNonFinite(); bad {
		return model.CoefficientSet{}, nonFinite("difference", k)
	}
	return out, nil
}

// StabilityEstimator computes the eight state-channel derivatives by
// perturbing one channel at a time about the equilibrium.
type StabilityEstimator struct {
	eval        *Evaluator
	pert        Perturbations
	parallelism int
	metrics     MetricsRecorder
}

// NewStabilityEstimator validates the steps once.
func NewStabilityEstimator(eval *Evaluator, p Perturbations, parallelism int) (*StabilityEstimator, error) {
	if eval == nil {
		return nil, configErr("evaluator", "is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if parallelism < 1 {
		return nil, configErr("parallelism", "must be at least 1, got %d", parallelism)
	}
	return &StabilityEstimator{eval: eval, pert: p, parallelism: parallelism, metrics: eval.metrics}, nil
}

type channelResult struct {
	raw model.CoefficientSet
	err error
}

// Estimate fills set and raw for every channel in model.Channels. A failed
// channel leaves the others untouched; the failures are joined into the
// returned error as *ChannelError values.
func (s *StabilityEstimator) Estimate(ctx context.Context, eq model.FlightCondition, v model.Vehicle, c0 model.CoefficientSet, set, raw *model.DerivativeSet) error {
	results := make([]channelResult, len(model.Channels))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, ch := range model.Channels {
		cond := eq.Clone()
		vehicle := v.Clone()
		g.Go(func() error {
			r, err := s.perturb(ctx, cond, vehicle, c0, ch)
			results[i] = channelResult{raw: r, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, ch := range model.Channels {
		res := results[i]
		if res.err != nil {
			s.metrics.IncDerivativeFailure(ch.String())
			errs = append(errs, &ChannelError{Channel: ch, Err: res.err})
			continue
		}
		raw.SetChannel(ch, res.raw)
		var corrected model.CoefficientSet
		for _, c := range model.Coefficients {
			corrected = corrected.With(c, Correct(ch, c, res.raw.Get(c)))
		}
		set.SetChannel(ch, corrected)
	}
	return errors.Join(errs...)
}

func (s *StabilityEstimator) perturb(ctx context.Context, eq model.FlightCondition, v model.Vehicle, c0 model.CoefficientSet, ch model.Channel) (_ model.CoefficientSet, err error) {
	ctx, span := startSpan(ctx, "aerostab.PerturbChannel", attribute.String("channel", ch.String()))
	defer func() { endSpan(span, err) }()

	delta := s.pert.For(ch)
	cond := eq.WithChannel(ch, eq.Channel(ch)+delta)
	ev, err := s.eval.Evaluate(ctx, cond, v)
	if err != nil {
		return model.CoefficientSet{}, err
	}
	return difference(ev.Coefficients, c0, delta)
}
