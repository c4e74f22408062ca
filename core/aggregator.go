package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/signalsfoundry/aerostab/model"
)

// Mode selects where raw coefficients come from.
type Mode int

const (
	// ModeSurrogate sums per-channel contributions from regime tables.
	ModeSurrogate Mode = iota
	// ModeDirect calls the panel-method adapter once per evaluation.
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "surrogate"
}

// Extrapolation flags a table query that left the table's domain.
type Extrapolation struct {
	Source      string            `json:"source"`
	Coefficient model.Coefficient `json:"coefficient"`
	Regime      Regime            `json:"regime"`
}

// Aggregate is the inviscid result of one aggregation. Moments are about
// Reference.X/Y/Z.
type Aggregate struct {
	Total     model.CoefficientSet
	Channels  map[model.Channel]model.CoefficientSet
	Surfaces  map[model.ControlSurfaceKind]model.CoefficientSet
	Reference model.Reference
	PerWing   []WingLoads

	Extrapolated []Extrapolation
}

// LowConfidence reports whether any contribution was extrapolated.
func (a *Aggregate) LowConfidence() bool { return len(a.Extrapolated) > 0 }

// Aggregator produces total coefficients for a condition and vehicle, either
// from surrogate tables or from one adapter call.
type Aggregator struct {
	mode     Mode
	set      *SurrogateSet
	blender  *RegimeBlender
	adapter  PanelMethodAdapter
	settings SolverSettings
	active   []model.ControlSurfaceKind
}

// AggregatorOption customises NewAggregator.
type AggregatorOption func(*Aggregator)

// WithSurrogates selects surrogate mode.
func WithSurrogates(set *SurrogateSet, blender *RegimeBlender) AggregatorOption {
	return func(a *Aggregator) {
		a.set = set
		a.blender = blender
	}
}

// WithAdapter selects direct mode.
func WithAdapter(adapter PanelMethodAdapter, settings SolverSettings) AggregatorOption {
	return func(a *Aggregator) {
		a.adapter = adapter
		a.settings = settings
	}
}

// WithActiveFamilies flags control-surface families whose contributions and
// derivatives are computed. Families a vehicle lacks are skipped per call.
func WithActiveFamilies(kinds ...model.ControlSurfaceKind) AggregatorOption {
	return func(a *Aggregator) {
		a.active = slices.Clone(kinds)
	}
}

func normaliseFamilies(kinds []model.ControlSurfaceKind) []model.ControlSurfaceKind {
	var out []model.ControlSurfaceKind
	for _, k := range model.ControlSurfaceKinds {
		if slices.Contains(kinds, k) {
			out = append(out, k)
		}
	}
	return out
}

// NewAggregator validates the configuration. Exactly one of WithSurrogates
// or WithAdapter must be given.
func NewAggregator(opts ...AggregatorOption) (*Aggregator, error) {
	a := &Aggregator{}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	for _, k := range a.active {
		if !k.Valid() {
			return nil, configErr("controls", "unknown control family %d", int(k))
		}
	}
	a.active = normaliseFamilies(a.active)
	switch {
	case a.set != nil && a.adapter != nil:
		return nil, configErr("mode", "surrogates and adapter are mutually exclusive")
	case a.set != nil:
		if a.blender == nil {
			return nil, configErr("blender", "regime blender is required in surrogate mode")
		}
		if err := a.set.Build(a.active); err != nil {
			return nil, err
		}
		a.mode = ModeSurrogate
	case a.adapter != nil:
		a.mode = ModeDirect
	default:
		return nil, configErr("mode", "either surrogates or a panel-method adapter is required")
	}
	return a, nil
}

// Mode returns the configured mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// ActiveFamilies returns the flagged families present on the vehicle, in
// canonical order.
func (a *Aggregator) ActiveFamilies(v model.Vehicle) []model.ControlSurfaceKind {
	var out []model.ControlSurfaceKind
	for _, k := range a.active {
		if v.HasFamily(k) {
			out = append(out, k)
		}
	}
	return out
}

// Aggregate computes the inviscid coefficient set. The vehicle's surface
// deflections are read as given.
func (a *Aggregator) Aggregate(ctx context.Context, cond model.FlightCondition, v model.Vehicle) (*Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		agg *Aggregate
		err error
	)
	if a.mode == ModeDirect {
		agg, err = a.direct(ctx, cond, v)
	} else {
		agg, err = a.surrogate(cond, v)
	}
	if err != nil {
		return nil, err
	}
	if c, bad := agg.Total.FirstNonFinite(); bad {
		return nil, nonFinite("total", c)
	}
	return agg, nil
}

func (a *Aggregator) direct(ctx context.Context, cond model.FlightCondition, v model.Vehicle) (*Aggregate, error) {
	res, err := a.adapter.Evaluate(ctx, cond, a.settings, v)
	if err != nil {
		return nil, fmt.Errorf("panel method: %w", err)
	}
	return &Aggregate{
		Total:     res.Coefficients,
		Reference: res.Reference,
		PerWing:   res.PerWing,
	}, nil
}

func (a *Aggregator) surrogate(cond model.FlightCondition, v model.Vehicle) (*Aggregate, error) {
	w := a.blender.Weights(cond.Mach)
	agg := &Aggregate{
		Channels:  make(map[model.Channel]model.CoefficientSet, len(model.Channels)),
		Surfaces:  make(map[model.ControlSurfaceKind]model.CoefficientSet),
		Reference: a.set.Reference,
	}

	for _, ch := range model.Channels {
		x := cond.Channel(ch)
		var cs model.CoefficientSet
		// Tables need not pass through the origin; a channel at exactly
		// zero contributes exactly zero.
		if x != 0 {
			for _, c := range model.GroupOf(ch) {
				val, ext := a.set.Channels[ch][c].Query(x, cond.Mach, w)
				cs = cs.With(c, val)
				agg.flag(ch.String(), c, ext)
			}
			if c, bad := cs.FirstNonFinite(); bad {
				return nil, nonFinite("channel "+ch.String(), c)
			}
		}
		agg.Channels[ch] = cs
		agg.Total = agg.Total.Add(cs)
	}

	for _, kind := range a.ActiveFamilies(v) {
		delta := familyDeflection(v, kind)
		var cs model.CoefficientSet
		if delta != 0 {
			row := a.set.Surfaces[kind]
			for _, c := range model.Coefficients {
				rs, ok := row[c]
				if !ok {
					continue
				}
				val, ext := rs.Query(delta, cond.Mach, w)
				cs = cs.With(c, val)
				agg.flag(kind.String(), c, ext)
			}
			if c, bad := cs.FirstNonFinite(); bad {
				return nil, nonFinite("surface "+kind.String(), c)
			}
		}
		agg.Surfaces[kind] = cs
		agg.Total = agg.Total.Add(cs)
	}
	return agg, nil
}

func (agg *Aggregate) flag(source string, c model.Coefficient, regimes []Regime) {
	for _, r := range regimes {
		agg.Extrapolated = append(agg.Extrapolated, Extrapolation{Source: source, Coefficient: c, Regime: r})
	}
}

// familyDeflection returns the deflection of the first surface of a family.
// Every surface of a family is driven together.
func familyDeflection(v model.Vehicle, kind model.ControlSurfaceKind) float64 {
	for _, w := range v.Wings {
		for _, cs := range w.ControlSurfaces {
			if cs.Kind == kind {
				return cs.Deflection
			}
		}
	}
	return 0
}
