package core

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/signalsfoundry/aerostab/model"
)

const deg = math.Pi / 180

// transport is a twin-engine narrow-body in station coordinates.
func transport() model.Vehicle {
	return model.Vehicle{
		ID:        "transport",
		Name:      "Twin narrow-body",
		Reference: model.Reference{Area: 124.86, Span: 35.66, Chord: 4.0, X: 16.0},
		CG:        model.Vec3{X: 16.0},
		Wings: []model.Wing{
			{
				Tag: "main_wing", Area: 124.86, Span: 35.66, MAC: 4.0,
				Sweep: 25 * deg, ThicknessToChord: 0.1, Taper: 0.3, Dihedral: 6 * deg,
				SpanEfficiency: 0.9, Origin: model.Vec3{X: 13.6},
				ControlSurfaces: []model.ControlSurface{
					{Tag: "aileron", Kind: model.Aileron, SpanStart: 0.7, SpanEnd: 0.95, ChordFraction: 0.25},
					{Tag: "flap", Kind: model.Flap, SpanStart: 0.1, SpanEnd: 0.6, ChordFraction: 0.3},
					{Tag: "slat", Kind: model.Slat, SpanStart: 0.1, SpanEnd: 0.9, ChordFraction: 0.15},
				},
			},
			{
				Tag: "horizontal_stabilizer", Area: 32.5, Span: 12.1, MAC: 2.8,
				Sweep: 30 * deg, ThicknessToChord: 0.08, Taper: 0.3,
				Origin: model.Vec3{X: 32.0, Z: 1.5},
				ControlSurfaces: []model.ControlSurface{
					{Tag: "elevator", Kind: model.Elevator, SpanStart: 0, SpanEnd: 0.95, ChordFraction: 0.3},
				},
			},
			{
				Tag: "vertical_stabilizer", Area: 26.4, Span: 6.3, MAC: 4.2,
				Sweep: 35 * deg, ThicknessToChord: 0.1, Taper: 0.3, Vertical: true,
				Origin: model.Vec3{X: 31.0, Z: 2.0},
				ControlSurfaces: []model.ControlSurface{
					{Tag: "rudder", Kind: model.Rudder, SpanStart: 0, SpanEnd: 0.9, ChordFraction: 0.3},
				},
			},
		},
		Fuselages: []model.Fuselage{{Tag: "fuselage", Length: 38.0, EffectiveDiam: 3.74}},
		Nacelles: []model.Nacelle{
			{Tag: "nacelle_1", Length: 4.3, Diameter: 2.0, HasPylon: true},
			{Tag: "nacelle_2", Length: 4.3, Diameter: 2.0, HasPylon: true},
		},
	}
}

func cruise(t *testing.T, mach, alpha float64) model.FlightCondition {
	t.Helper()
	cond, err := ConditionAt(3000, mach, alpha, 0)
	if err != nil {
		t.Fatalf("ConditionAt error: %v", err)
	}
	return cond
}

func mustTable(t *testing.T, slope, offset float64) *Table {
	t.Helper()
	x := []float64{-1, 0, 1}
	mach := []float64{0, 1, 2}
	values := make([][]float64, len(mach))
	for i, m := range mach {
		row := make([]float64, len(x))
		for j, xv := range x {
			row[j] = offset + slope*xv*(1+0.1*m)
		}
		values[i] = row
	}
	tbl, err := NewTable(x, mach, values)
	if err != nil {
		t.Fatalf("NewTable error: %v", err)
	}
	return tbl
}

// linearSurrogate has a non-zero value at zero input so zero-masking is
// observable.
func linearSurrogate(t *testing.T, slope float64) *RegimeSurrogate {
	t.Helper()
	return &RegimeSurrogate{
		Subsonic:   mustTable(t, slope, 0.5),
		Transonic:  mustTable(t, 1.5*slope, 0.5),
		Supersonic: mustTable(t, 0.5*slope, 0.5),
	}
}

// testSurrogates covers every channel group and, for each family, CL, CM
// and CN.
func testSurrogates(t *testing.T) *SurrogateSet {
	t.Helper()
	set := &SurrogateSet{
		Reference: model.Reference{Area: 124.86, Span: 35.66, Chord: 4.0, X: 16.0},
		Channels:  map[model.Channel]map[model.Coefficient]*RegimeSurrogate{},
		Surfaces:  map[model.ControlSurfaceKind]map[model.Coefficient]*RegimeSurrogate{},
	}
	for i, ch := range model.Channels {
		row := map[model.Coefficient]*RegimeSurrogate{}
		for j, c := range model.GroupOf(ch) {
			row[c] = linearSurrogate(t, float64(i+1)+0.1*float64(j))
		}
		set.Channels[ch] = row
	}
	for i, kind := range model.ControlSurfaceKinds {
		set.Surfaces[kind] = map[model.Coefficient]*RegimeSurrogate{
			model.CL: linearSurrogate(t, 0.2*float64(i+1)),
			model.CM: linearSurrogate(t, -0.3*float64(i+1)),
			model.CN: linearSurrogate(t, 0.05*float64(i+1)),
		}
	}
	return set
}

// linearAdapter is a synthetic solver whose coefficients are linear in the
// state so finite differences are exact.
type linearAdapter struct {
	calls atomic.Int64

	// failAlpha fails every call with a non-zero alpha.
	failAlpha bool
}

func (a *linearAdapter) Evaluate(_ context.Context, cond model.FlightCondition, _ SolverSettings, v model.Vehicle) (PanelResult, error) {
	a.calls.Add(1)
	if a.failAlpha && cond.Alpha != 0 {
		return PanelResult{}, errSynthetic
	}
	elevator := familyDeflection(v, model.Elevator)
	aileron := familyDeflection(v, model.Aileron)
	rudder := familyDeflection(v, model.Rudder)
	lift := 5.5*cond.Alpha + 0.4*elevator
	cs := model.CoefficientSet{
		Lift: lift,
		Drag: 0.01 + 0.04*lift*lift,
		CX:   -0.01 + 0.1*cond.Alpha,
		CY:   -0.6*cond.Beta + 0.3*cond.P - 0.2*cond.R + 0.15*rudder + 0.001*cond.Alpha,
		CZ:   -lift,
		CL:   -0.08*cond.Beta - 0.5*cond.P + 0.1*cond.R - 0.2*aileron,
		CM:   -1.2*cond.Alpha - 12*cond.Q - 1.1*elevator + 0.002*cond.U,
		CN:   0.12*cond.Beta - 0.03*cond.P - 0.15*cond.R - 0.09*rudder + 0.01*aileron,
	}
	return PanelResult{Coefficients: cs, Reference: v.Reference}, nil
}

type syntheticError string

func (e syntheticError) Error() string { return string(e) }

const errSynthetic = syntheticError("synthetic solver failure")

func newTestEvaluator(t *testing.T, adapter PanelMethodAdapter, opts ...EvaluatorOption) *Evaluator {
	t.Helper()
	agg, err := NewAggregator(WithAdapter(adapter, DefaultSolverSettings()), WithActiveFamilies(model.ControlSurfaceKinds...))
	if err != nil {
		t.Fatalf("NewAggregator error: %v", err)
	}
	drag, err := NewDragPipeline(DefaultDragStages(DefaultDragOptions()))
	if err != nil {
		t.Fatalf("NewDragPipeline error: %v", err)
	}
	ev, err := NewEvaluator(agg, drag, opts...)
	if err != nil {
		t.Fatalf("NewEvaluator error: %v", err)
	}
	return ev
}

// approx compares with a relative tolerance, absolute near zero.
func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol*math.Max(1, math.Abs(want))
}
