package core

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/aerostab/model"
)

func countingAdapter(calls *atomic.Int64, fail error) PanelMethodAdapter {
	return AdapterFunc(func(_ context.Context, cond model.FlightCondition, _ SolverSettings, v model.Vehicle) (PanelResult, error) {
		calls.Add(1)
		if fail != nil {
			return PanelResult{}, fail
		}
		return PanelResult{
			Coefficients: model.CoefficientSet{Lift: cond.Alpha},
			Reference:    v.Reference,
			PerWing:      []WingLoads{{Tag: "main_wing", Lift: cond.Alpha}},
		}, nil
	})
}

func TestCachingAdapter_HitsAndMisses(t *testing.T) {
	var calls atomic.Int64
	c := NewCachingAdapter(countingAdapter(&calls, nil), 8, time.Minute)
	ctx := context.Background()
	v := transport()
	cond := cruise(t, 0.5, 0.02)

	for range 3 {
		if _, err := c.Evaluate(ctx, cond, DefaultSolverSettings(), v); err != nil {
			t.Fatalf("Evaluate error: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("adapter calls = %d, want 1", calls.Load())
	}

	// Anything in the input changes the key.
	inputs := []struct {
		cond model.FlightCondition
		s    SolverSettings
		v    model.Vehicle
	}{
		{cond.WithChannel(model.Alpha, 0.03), DefaultSolverSettings(), v},
		{cond.WithDeflection(model.Flap, 0.1), DefaultSolverSettings(), v},
		{cond, SolverSettings{SpanwiseVortices: 32, ChordwiseVortices: 8}, v},
		{cond, DefaultSolverSettings(), v.WithDeflection(model.Elevator, 0.05)},
	}
	for _, in := range inputs {
		if _, err := c.Evaluate(ctx, in.cond, in.s, in.v); err != nil {
			t.Fatalf("Evaluate error: %v", err)
		}
	}
	if calls.Load() != 5 {
		t.Fatalf("adapter calls = %d, want 5", calls.Load())
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 5 {
		t.Fatalf("Stats = %d hits, %d misses; want 2, 5", hits, misses)
	}

	c.Purge()
	if _, err := c.Evaluate(ctx, cond, DefaultSolverSettings(), v); err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if calls.Load() != 6 {
		t.Fatalf("adapter calls after purge = %d, want 6", calls.Load())
	}
}

func TestCachingAdapter_ReturnsCopies(t *testing.T) {
	var calls atomic.Int64
	c := NewCachingAdapter(countingAdapter(&calls, nil), 8, time.Minute)
	cond := cruise(t, 0.5, 0.02)

	first, _ := c.Evaluate(context.Background(), cond, SolverSettings{}, transport())
	first.PerWing[0].Lift = 99
	second, _ := c.Evaluate(context.Background(), cond, SolverSettings{}, transport())
	if second.PerWing[0].Lift != 0.02 {
		t.Fatalf("cached PerWing mutated through a returned result: %v", second.PerWing[0].Lift)
	}
}

func TestCachingAdapter_DoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int64
	c := NewCachingAdapter(countingAdapter(&calls, errSynthetic), 8, time.Minute)
	cond := cruise(t, 0.5, 0)
	for range 2 {
		if _, err := c.Evaluate(context.Background(), cond, SolverSettings{}, transport()); !errors.Is(err, errSynthetic) {
			t.Fatalf("Evaluate error = %v, want synthetic failure", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("adapter calls = %d, want 2", calls.Load())
	}
}

func TestAnalyticAdapter_SymmetricFlight(t *testing.T) {
	res, err := AnalyticAdapter{}.Evaluate(context.Background(), cruise(t, 0.5, 0.04), DefaultSolverSettings(), transport())
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	cs := res.Coefficients
	if cs.CY != 0 || cs.CL != 0 || cs.CN != 0 {
		t.Fatalf("lateral coefficients in symmetric flight: %+v", cs)
	}
	if cs.Lift <= 0 || cs.Drag <= 0 {
		t.Fatalf("lift and induced drag should be positive at positive alpha: %+v", cs)
	}
	if len(res.PerWing) != 3 {
		t.Fatalf("PerWing = %d entries, want 3", len(res.PerWing))
	}
	if res.PerWing[0].Tag != "main_wing" || res.PerWing[0].Lift <= res.PerWing[1].Lift {
		t.Fatalf("main wing should carry most of the lift: %+v", res.PerWing)
	}
	sa, ca := math.Sincos(0.04)
	if want := -cs.Lift*ca - cs.Drag*sa; !approx(cs.CZ, want, 1e-12) {
		t.Fatalf("CZ = %v, want %v", cs.CZ, want)
	}
}

func TestAnalyticAdapter_ControlEffects(t *testing.T) {
	ctx := context.Background()
	cond := cruise(t, 0.5, 0.02)
	v := transport()
	base, err := AnalyticAdapter{}.Evaluate(ctx, cond, SolverSettings{}, v)
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}

	elev, _ := AnalyticAdapter{}.Evaluate(ctx, cond, SolverSettings{}, v.WithDeflection(model.Elevator, 0.05))
	if elev.Coefficients.CM >= base.Coefficients.CM {
		t.Fatalf("trailing-edge-down elevator should pitch nose down: %v -> %v", base.Coefficients.CM, elev.Coefficients.CM)
	}
	flap, _ := AnalyticAdapter{}.Evaluate(ctx, cond, SolverSettings{}, v.WithDeflection(model.Flap, 0.1))
	if flap.Coefficients.Lift <= base.Coefficients.Lift {
		t.Fatalf("flap should add lift: %v -> %v", base.Coefficients.Lift, flap.Coefficients.Lift)
	}
	rudder, _ := AnalyticAdapter{}.Evaluate(ctx, cond, SolverSettings{}, v.WithDeflection(model.Rudder, 0.05))
	if rudder.Coefficients.CY <= 0 || rudder.Coefficients.CN >= 0 {
		t.Fatalf("rudder side force and yaw have wrong signs: %+v", rudder.Coefficients)
	}
	aileron, _ := AnalyticAdapter{}.Evaluate(ctx, cond, SolverSettings{}, v.WithDeflection(model.Aileron, 0.05))
	if aileron.Coefficients.CL >= 0 {
		t.Fatalf("aileron roll = %v, want negative", aileron.Coefficients.CL)
	}
}

func TestAnalyticAdapter_Supersonic(t *testing.T) {
	res, err := AnalyticAdapter{}.Evaluate(context.Background(), cruise(t, 1.8, 0.03), SolverSettings{}, transport())
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if _, bad := res.Coefficients.FirstNonFinite(); bad {
		t.Fatalf("non-finite supersonic result: %+v", res.Coefficients)
	}
	sub, _ := AnalyticAdapter{}.Evaluate(context.Background(), cruise(t, 0.5, 0.03), SolverSettings{}, transport())
	if res.Coefficients.Lift >= sub.Coefficients.Lift {
		t.Fatalf("supersonic lift slope should be lower: %v vs %v", res.Coefficients.Lift, sub.Coefficients.Lift)
	}
}

func TestAnalyticAdapter_ZeroAirspeed(t *testing.T) {
	cond := model.FlightCondition{Alpha: 0.05}
	if _, err := (AnalyticAdapter{}).Evaluate(context.Background(), cond, SolverSettings{}, transport()); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("Evaluate error = %v, want ErrInvalidCondition", err)
	}
}

func TestAnalyticAdapter_GustTiltsFlow(t *testing.T) {
	ctx := context.Background()
	cond := cruise(t, 0.5, 0.02)
	v := transport()
	gust := cond
	gust.W = cond.U * math.Tan(0.01)

	a, _ := AnalyticAdapter{}.Evaluate(ctx, gust, SolverSettings{}, v)
	b, _ := AnalyticAdapter{}.Evaluate(ctx, cruise(t, 0.5, 0.03), SolverSettings{}, v)
	// The vertical gust raises alpha by 0.01 rad and the speed by a
	// fraction of a percent.
	if math.Abs(a.Coefficients.Lift-b.Coefficients.Lift)/b.Coefficients.Lift > 1e-3 {
		t.Fatalf("gust lift %v, want close to %v", a.Coefficients.Lift, b.Coefficients.Lift)
	}
}

func TestCachingAdapter_StableKeyWithDeflections(t *testing.T) {
	var calls atomic.Int64
	c := NewCachingAdapter(countingAdapter(&calls, nil), 8, time.Minute)
	v := transport()
	base := cruise(t, 0.5, 0.02)

	for i := range 50 {
		cond := base.Clone()
		cond.Controls = map[model.ControlSurfaceKind]float64{}
		for j, kind := range model.ControlSurfaceKinds {
			cond.Controls[kind] = 0.01 * float64(j+1)
		}
		if _, err := c.Evaluate(context.Background(), cond, DefaultSolverSettings(), v); err != nil {
			t.Fatalf("Evaluate %d error: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("adapter calls = %d, want 1", calls.Load())
	}
	if hits, misses := c.Stats(); hits != 49 || misses != 1 {
		t.Fatalf("Stats = %d hits, %d misses; want 49, 1", hits, misses)
	}
}
