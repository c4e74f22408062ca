package core

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/aerostab/model"
)

func TestSolveNeutralPoint(t *testing.T) {
	x, err := SolveNeutralPoint(16, 0.1, -1.2, -1.0)
	if err != nil {
		t.Fatalf("SolveNeutralPoint error: %v", err)
	}
	if !approx(x, 16.6, 1e-12) {
		t.Fatalf("x = %v, want 16.6", x)
	}

	// Moving the CG forward works the same way.
	x, err = SolveNeutralPoint(16, -0.1, -1.0, -1.2)
	if err != nil {
		t.Fatalf("SolveNeutralPoint error: %v", err)
	}
	if !approx(x, 16.5, 1e-12) {
		t.Fatalf("x = %v, want 16.5", x)
	}
}

func TestSolveNeutralPoint_Degenerate(t *testing.T) {
	cases := []struct {
		name             string
		x0, dx, cm0, cm1 float64
		want             error
	}{
		{"equal slopes", 16, 0.1, -1.2, -1.2, ErrDegenerateSlope},
		{"zero shift", 16, 0, -1.2, -1.0, ErrDegenerateDifference},
		{"nan slope", 16, 0.1, math.NaN(), -1.0, ErrNonFinite},
		{"inf station", math.Inf(1), 0.1, -1.2, -1.0, ErrNonFinite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SolveNeutralPoint(tc.x0, tc.dx, tc.cm0, tc.cm1); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNeutralPointSolver_LinearModel(t *testing.T) {
	ev := newTestEvaluator(t, &linearAdapter{})
	solver, err := NewNeutralPointSolver(ev, DefaultPerturbations())
	if err != nil {
		t.Fatalf("NewNeutralPointSolver error: %v", err)
	}
	eq := cruise(t, 0.4, 0.02)
	v := transport()
	base, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("baseline error: %v", err)
	}

	// CM_cg(alpha) = -1.2*alpha + (x_cg - x_ref)/c * 5.5*alpha, so the
	// slope vanishes 1.2*c/5.5 aft of the reference point.
	np, err := solver.Solve(context.Background(), eq, v, base.Coefficients, -1.2)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	want := 16 + 1.2*4/5.5
	if math.Abs(np.X-want)/want > 1e-6 {
		t.Fatalf("neutral point = %v, want %v", np.X, want)
	}
	if wantSM := (want - 16) / 4; !approx(np.StaticMargin, wantSM, 1e-5) {
		t.Fatalf("static margin = %v, want %v", np.StaticMargin, wantSM)
	}
	if !approx(np.CMAlphaAft, -1.2+0.1/4*5.5, 1e-6) {
		t.Fatalf("aft CM_alpha = %v", np.CMAlphaAft)
	}
	if np.CG != 16 || np.DeltaCG != 0.1 {
		t.Fatalf("neutral point bookkeeping = %+v", np)
	}
	if v.CG.X != 16 {
		t.Fatalf("caller's CG moved to %v", v.CG.X)
	}
}

func TestNeutralPointSolver_AnalyticStable(t *testing.T) {
	ev := newTestEvaluator(t, AnalyticAdapter{})
	solver, _ := NewNeutralPointSolver(ev, DefaultPerturbations())
	eq := cruise(t, 0.5, 0.02)
	v := transport()
	base, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("baseline error: %v", err)
	}
	alpha, err := ev.Evaluate(context.Background(), eq.WithChannel(model.Alpha, eq.Alpha+0.01), v)
	if err != nil {
		t.Fatalf("alpha evaluation error: %v", err)
	}
	cmAlpha := (alpha.Coefficients.CM - base.Coefficients.CM) / 0.01

	np, err := solver.Solve(context.Background(), eq, v, base.Coefficients, cmAlpha)
	if err != nil {
		t.Fatalf("Solve error: %v", err)
	}
	if np.StaticMargin <= 0 {
		t.Fatalf("static margin = %v, want a stable layout", np.StaticMargin)
	}
	if np.X <= v.CG.X {
		t.Fatalf("neutral point %v should lie aft of the CG %v", np.X, v.CG.X)
	}
}
