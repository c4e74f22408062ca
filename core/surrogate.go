package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/aerostab/model"
)

// Regime is one of the three Mach regimes with its own surrogate table.
type Regime int

const (
	Subsonic Regime = iota
	Transonic
	Supersonic
)

// Regimes lists the regimes in Mach order.
var Regimes = []Regime{Subsonic, Transonic, Supersonic}

func (r Regime) String() string {
	switch r {
	case Subsonic:
		return "subsonic"
	case Transonic:
		return "transonic"
	case Supersonic:
		return "supersonic"
	default:
		return fmt.Sprintf("regime(%d)", int(r))
	}
}

func (r Regime) MarshalText() ([]byte, error) {
	if r < Subsonic || r > Supersonic {
		return nil, fmt.Errorf("unknown regime %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Regime) UnmarshalText(b []byte) error {
	for _, candidate := range Regimes {
		if candidate.String() == string(b) {
			*r = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown regime %q", string(b))
}

// Table is a regular grid over (channel value, Mach). Values[i][j] is the
// coefficient at (X[j], Mach[i]).
type Table struct {
	X      []float64   `json:"x" msgpack:"x"`
	Mach   []float64   `json:"mach" msgpack:"mach"`
	Values [][]float64 `json:"values" msgpack:"values"`

	built bool
}

// NewTable validates the grid and returns a queryable table.
func NewTable(x, mach []float64, values [][]float64) (*Table, error) {
	t := &Table{X: x, Mach: mach, Values: values}
	if err := t.Build(); err != nil {
		return nil, err
	}
	return t, nil
}

// Build validates the grid and marks the table queryable. Tables decoded
// from storage must be built before use.
func (t *Table) Build() error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrMissingSurrogate)
	}
	t.built = false
	if len(t.X) < 2 {
		return fmt.Errorf("table must have at least 2 channel values")
	}
	if len(t.Mach) < 2 {
		return fmt.Errorf("table must have at least 2 Mach values")
	}
	if len(t.Values) != len(t.Mach) {
		return fmt.Errorf("number of value rows (%d) must match Mach values (%d)", len(t.Values), len(t.Mach))
	}
	for i, row := range t.Values {
		if len(row) != len(t.X) {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(t.X))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d contains a non-finite value", i)
			}
		}
	}
	if !strictlyIncreasing(t.X) {
		return fmt.Errorf("channel values must be strictly increasing")
	}
	if !strictlyIncreasing(t.Mach) {
		return fmt.Errorf("Mach values must be strictly increasing")
	}
	t.built = true
	return nil
}

// Built reports whether Build succeeded.
func (t *Table) Built() bool { return t != nil && t.built }

func strictlyIncreasing(xs []float64) bool {
	for i, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		if i > 0 && !(v > xs[i-1]) {
			return false
		}
	}
	return true
}

// cell returns the lower index of the interval used for x, clamped to the
// first or last interval so points outside the axis extrapolate linearly.
func cell(axis []float64, v float64) int {
	i := sort.SearchFloat64s(axis, v) - 1
	if i < 0 {
		i = 0
	}
	if i > len(axis)-2 {
		i = len(axis) - 2
	}
	return i
}

// Query interpolates bilinearly inside the grid and extrapolates linearly
// from the edge cell outside it. inDomain is false when extrapolating. An
// unbuilt table yields NaN.
func (t *Table) Query(x, mach float64) (value float64, inDomain bool) {
	if !t.Built() {
		return math.NaN(), false
	}
	j := cell(t.X, x)
	i := cell(t.Mach, mach)

	x0, x1 := t.X[j], t.X[j+1]
	m0, m1 := t.Mach[i], t.Mach[i+1]
	tx := (x - x0) / (x1 - x0)
	tm := (mach - m0) / (m1 - m0)

	v00 := t.Values[i][j]
	v10 := t.Values[i][j+1]
	v01 := t.Values[i+1][j]
	v11 := t.Values[i+1][j+1]

	value = (1-tx)*(1-tm)*v00 +
		tx*(1-tm)*v10 +
		(1-tx)*tm*v01 +
		tx*tm*v11

	inDomain = x >= t.X[0] && x <= t.X[len(t.X)-1] &&
		mach >= t.Mach[0] && mach <= t.Mach[len(t.Mach)-1]
	return value, inDomain
}

// RegimeSurrogate holds one coefficient's table per regime.
type RegimeSurrogate struct {
	Subsonic   *Table `json:"subsonic" msgpack:"subsonic"`
	Transonic  *Table `json:"transonic" msgpack:"transonic"`
	Supersonic *Table `json:"supersonic" msgpack:"supersonic"`
}

// Table returns the table for a regime.
func (rs *RegimeSurrogate) Table(r Regime) *Table {
	switch r {
	case Subsonic:
		return rs.Subsonic
	case Transonic:
		return rs.Transonic
	case Supersonic:
		return rs.Supersonic
	}
	return nil
}

// Build builds all three tables.
func (rs *RegimeSurrogate) Build() error {
	if rs == nil {
		return ErrMissingSurrogate
	}
	for _, r := range Regimes {
		t := rs.Table(r)
		if t == nil {
			return fmt.Errorf("%w: %s table", ErrMissingSurrogate, r)
		}
		if err := t.Build(); err != nil {
			return fmt.Errorf("%s table: %w", r, err)
		}
	}
	return nil
}

// Query blends the regime tables at (x, mach). Only regimes with non-zero
// weight are queried; the ones that extrapolated are returned.
func (rs *RegimeSurrogate) Query(x, mach float64, w BlendWeights) (float64, []Regime) {
	var vals [3]float64
	var extrapolated []Regime
	for idx, weight := range []float64{w.Subsonic, w.Transonic, w.Supersonic} {
		if weight == 0 {
			continue
		}
		r := Regimes[idx]
		v, ok := rs.Table(r).Query(x, mach)
		vals[idx] = v
		if !ok {
			extrapolated = append(extrapolated, r)
		}
	}
	return w.Apply(vals[0], vals[1], vals[2]), extrapolated
}

// SurrogateSet is every table the aggregator needs, plus the reference
// quantities and moment reference point they were produced with. Its msgpack
// form is defined in surrogate_codec.go.
type SurrogateSet struct {
	Reference model.Reference                                                     `json:"reference"`
	Channels  map[model.Channel]map[model.Coefficient]*RegimeSurrogate            `json:"channels"`
	Surfaces  map[model.ControlSurfaceKind]map[model.Coefficient]*RegimeSurrogate `json:"surfaces,omitempty"`
}

// Build validates coverage and builds every table. Each channel must have a
// table for every coefficient in its group; each active family must have at
// least one table. Missing surface coefficients contribute zero.
func (s *SurrogateSet) Build(active []model.ControlSurfaceKind) error {
	if s == nil {
		return configErr("surrogates", "surrogate set is required in surrogate mode")
	}
	ref := s.Reference
	if !(ref.Area > 0) || !(ref.Span > 0) || !(ref.Chord > 0) {
		return configErr("surrogates.reference", "area, span and chord must be positive")
	}
	for _, ch := range model.Channels {
		row := s.Channels[ch]
		for _, c := range model.GroupOf(ch) {
			rs, ok := row[c]
			if !ok || rs == nil {
				return &ConfigError{
					Field:  fmt.Sprintf("surrogates.channels.%s.%s", ch, c),
					Reason: "table missing",
					Err:    ErrMissingSurrogate,
				}
			}
			if err := rs.Build(); err != nil {
				return &ConfigError{
					Field:  fmt.Sprintf("surrogates.channels.%s.%s", ch, c),
					Reason: err.Error(),
					Err:    err,
				}
			}
		}
	}
	for _, kind := range active {
		row := s.Surfaces[kind]
		if len(row) == 0 {
			return &ConfigError{
				Field:  fmt.Sprintf("surrogates.surfaces.%s", kind),
				Reason: "no tables for active control family",
				Err:    ErrMissingSurrogate,
			}
		}
		for c, rs := range row {
			if err := rs.Build(); err != nil {
				return &ConfigError{
					Field:  fmt.Sprintf("surrogates.surfaces.%s.%s", kind, c),
					Reason: err.Error(),
					Err:    err,
				}
			}
		}
	}
	return nil
}
