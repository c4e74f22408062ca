package core

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/aerostab/model"
)

func TestControlSign(t *testing.T) {
	want := map[model.ControlSurfaceKind]float64{
		model.Aileron:  -1,
		model.Elevator: 1,
		model.Rudder:   -1,
		model.Flap:     1,
		model.Slat:     1,
	}
	for kind, sign := range want {
		if got := ControlSign(kind); got != sign {
			t.Errorf("ControlSign(%s) = %v, want %v", kind, got, sign)
		}
	}
}

func TestControlSurfaceEstimator_LinearModel(t *testing.T) {
	ev := newTestEvaluator(t, &linearAdapter{})
	est, err := NewControlSurfaceEstimator(ev, DefaultPerturbations(), 2)
	if err != nil {
		t.Fatalf("NewControlSurfaceEstimator error: %v", err)
	}
	eq := cruise(t, 0.4, 0)
	v := transport()
	base, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("baseline error: %v", err)
	}

	families := ev.Aggregator().ActiveFamilies(v)
	set, raw := model.NewDerivativeSet(), model.NewDerivativeSet()
	if err := est.Estimate(context.Background(), eq, v, base.Coefficients, families, set, raw); err != nil {
		t.Fatalf("Estimate error: %v", err)
	}
	if err := set.Complete(families); err == nil {
		t.Fatalf("state channels were never filled, Complete should fail")
	}
	if len(set.Controls) != len(model.ControlSurfaceKinds) {
		t.Fatalf("families filled = %d, want %d", len(set.Controls), len(model.ControlSurfaceKinds))
	}

	cases := []struct {
		kind      model.ControlSurfaceKind
		c         model.Coefficient
		raw, want float64
	}{
		{model.Aileron, model.CL, -0.2, 0.2},
		{model.Aileron, model.CN, 0.01, -0.01},
		{model.Elevator, model.CM, -1.1, -1.1},
		{model.Elevator, model.Lift, 0.4, 0.4},
		{model.Rudder, model.CN, -0.09, 0.09},
		{model.Rudder, model.CY, 0.15, -0.15},
		{model.Flap, model.CM, 0, 0},
	}
	for _, tc := range cases {
		gotRaw, _ := raw.GetControl(tc.kind, tc.c)
		got, _ := set.GetControl(tc.kind, tc.c)
		if !approx(gotRaw, tc.raw, 1e-6) {
			t.Errorf("raw d%s/d%s = %v, want %v", tc.c, tc.kind, gotRaw, tc.raw)
		}
		if !approx(got, tc.want, 1e-6) {
			t.Errorf("d%s/d%s = %v, want %v", tc.c, tc.kind, got, tc.want)
		}
	}
}

func TestControlSurfaceEstimator_RestoresDeflections(t *testing.T) {
	ev := newTestEvaluator(t, AnalyticAdapter{})
	est, _ := NewControlSurfaceEstimator(ev, DefaultPerturbations(), 3)
	eq := cruise(t, 0.6, 0.03)
	v := transport()
	v.SetDeflection(model.Flap, 0.05)
	before := v.Clone()

	base, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("baseline error: %v", err)
	}
	families := ev.Aggregator().ActiveFamilies(v)
	if err := est.Estimate(context.Background(), eq, v, base.Coefficients, families, model.NewDerivativeSet(), model.NewDerivativeSet()); err != nil {
		t.Fatalf("Estimate error: %v", err)
	}

	for _, kind := range model.ControlSurfaceKinds {
		want := before.SurfacesOf(kind)
		got := v.SurfacesOf(kind)
		for i := range want {
			if got[i].Deflection != want[i].Deflection {
				t.Fatalf("%s deflection = %v after estimation, want %v", got[i].Tag, got[i].Deflection, want[i].Deflection)
			}
		}
	}
	after, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if after.Coefficients != base.Coefficients {
		t.Fatalf("baseline changed after control estimation")
	}
}

func TestControlSurfaceEstimator_FailureIsPerFamily(t *testing.T) {
	adapter := AdapterFunc(func(ctx context.Context, cond model.FlightCondition, s SolverSettings, v model.Vehicle) (PanelResult, error) {
		if familyDeflection(v, model.Rudder) != 0 {
			return PanelResult{}, errSynthetic
		}
		return (&linearAdapter{}).Evaluate(ctx, cond, s, v)
	})
	m := newRecordingMetrics()
	ev := newTestEvaluator(t, adapter, WithMetricsRecorder(m))
	est, _ := NewControlSurfaceEstimator(ev, DefaultPerturbations(), 1)
	eq := cruise(t, 0.4, 0)
	v := transport()
	base, err := ev.Evaluate(context.Background(), eq, v)
	if err != nil {
		t.Fatalf("baseline error: %v", err)
	}

	set := model.NewDerivativeSet()
	families := []model.ControlSurfaceKind{model.Aileron, model.Rudder}
	err = est.Estimate(context.Background(), eq, v, base.Coefficients, families, set, model.NewDerivativeSet())
	var ce *ChannelError
	if !errors.As(err, &ce) || !ce.IsControl || ce.Family != model.Rudder {
		t.Fatalf("error = %v, want a ChannelError for rudder", err)
	}
	if ce.Name() != "rudder" {
		t.Fatalf("ChannelError.Name = %q, want rudder", ce.Name())
	}
	if _, ok := set.GetControl(model.Aileron, model.CL); !ok {
		t.Fatalf("aileron should still be filled")
	}
	if _, ok := set.GetControl(model.Rudder, model.CN); ok {
		t.Fatalf("rudder should be missing")
	}
	if len(m.failures) != 1 || m.failures[0] != "rudder" {
		t.Fatalf("recorded failures = %v, want [rudder]", m.failures)
	}
}

func TestControlSurfaceEstimator_TrimmedEquilibrium(t *testing.T) {
	ev := newTestEvaluator(t, &linearAdapter{})
	est, err := NewControlSurfaceEstimator(ev, DefaultPerturbations(), 1)
	if err != nil {
		t.Fatalf("NewControlSurfaceEstimator error: %v", err)
	}
	delta := DefaultPerturbations().DeltaControl

	stored := transport().WithDeflection(model.Elevator, -0.03)
	cases := []struct {
		name string
		eq   model.FlightCondition
		v    model.Vehicle
	}{
		{"commanded trim", cruise(t, 0.4, 0).WithDeflection(model.Elevator, -0.05), transport()},
		{"trim at the step size", cruise(t, 0.4, 0).WithDeflection(model.Elevator, delta), transport()},
		{"stored trim", cruise(t, 0.4, 0), stored},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base, err := ev.Evaluate(context.Background(), tc.eq, tc.v)
			if err != nil {
				t.Fatalf("baseline error: %v", err)
			}
			set, raw := model.NewDerivativeSet(), model.NewDerivativeSet()
			families := []model.ControlSurfaceKind{model.Elevator}
			if err := est.Estimate(context.Background(), tc.eq, tc.v, base.Coefficients, families, set, raw); err != nil {
				t.Fatalf("Estimate error: %v", err)
			}
			if got, _ := set.GetControl(model.Elevator, model.CM); !approx(got, -1.1, 1e-6) {
				t.Fatalf("CM_de = %v, want -1.1", got)
			}
			if got, _ := set.GetControl(model.Elevator, model.Lift); !approx(got, 0.4, 1e-6) {
				t.Fatalf("CL_de = %v, want 0.4", got)
			}
		})
	}
}
