package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/aerostab/model"
)

// NeutralPoint is the CG station where dCM/dalpha vanishes.
type NeutralPoint struct {
	X            float64 `json:"x"`
	CG           float64 `json:"cg"`
	StaticMargin float64 `json:"static_margin"` // (X - CG)/c_ref
	CMAlpha      float64 `json:"cm_alpha"`
	CMAlphaAft   float64 `json:"cm_alpha_aft"`
	DeltaCG      float64 `json:"delta_cg"`
}

// SolveNeutralPoint returns the x-intercept of the line through
// (x0, cmAlpha0) and (x0+dx, cmAlpha1).
func SolveNeutralPoint(x0, dx, cmAlpha0, cmAlpha1 float64) (float64, error) {
	for _, v := range []float64{x0, dx, cmAlpha0, cmAlpha1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: neutral point input", ErrNonFinite)
		}
	}
	if dx == 0 {
		return 0, ErrDegenerateDifference
	}
	if cmAlpha1 == cmAlpha0 {
		return 0, ErrDegenerateSlope
	}
	x := x0 - cmAlpha0*dx/(cmAlpha1-cmAlpha0)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: neutral point", ErrNonFinite)
	}
	return x, nil
}

// NeutralPointSolver locates the neutral point with one extra evaluation.
type NeutralPointSolver struct {
	eval *Evaluator
	pert Perturbations
}

// NewNeutralPointSolver validates the steps once.
func NewNeutralPointSolver(eval *Evaluator, p Perturbations) (*NeutralPointSolver, error) {
	if eval == nil {
		return nil, configErr("evaluator", "is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &NeutralPointSolver{eval: eval, pert: p}, nil
}

// Solve evaluates eq with alpha perturbed on a copy of v whose CG is moved
// DeltaCG aft. The baseline at the shifted CG is c0 transferred rigidly, so
// no second baseline evaluation is needed. cmAlpha is dCM/dalpha at the
// original CG.
func (n *NeutralPointSolver) Solve(ctx context.Context, eq model.FlightCondition, v model.Vehicle, c0 model.CoefficientSet, cmAlpha float64) (_ *NeutralPoint, err error) {
	ctx, span := startSpan(ctx, "aerostab.NeutralPoint")
	defer func() { endSpan(span, err) }()

	shifted := v.WithCGShift(n.pert.DeltaCG)
	cond := eq.WithChannel(model.Alpha, eq.Alpha+n.pert.DeltaAngle)
	ev, err := n.eval.Evaluate(ctx, cond, shifted)
	if err != nil {
		return nil, err
	}

	atCG := model.Reference{Area: v.Reference.Area, Span: v.Reference.Span, Chord: v.Reference.Chord, X: v.CG.X, Y: v.CG.Y, Z: v.CG.Z}
	base := TransferMoments(c0, atCG, shifted.CG)
	slope, err := difference(ev.Coefficients, base, n.pert.DeltaAngle)
	if err != nil {
		return nil, err
	}

	x, err := SolveNeutralPoint(v.CG.X, n.pert.DeltaCG, cmAlpha, slope.CM)
	if err != nil {
		return nil, err
	}
	return &NeutralPoint{
		X:            x,
		CG:           v.CG.X,
		StaticMargin: (x - v.CG.X) / v.Reference.Chord,
		CMAlpha:      cmAlpha,
		CMAlphaAft:   slope.CM,
		DeltaCG:      n.pert.DeltaCG,
	}, nil
}
