package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// CoefficientSet is the output of one evaluation. Treat it as immutable.
type CoefficientSet struct {
	Lift float64 `json:"lift" msgpack:"lift"`
	Drag float64 `json:"drag" msgpack:"drag"`
	CX   float64 `json:"CX" msgpack:"CX"`
	CY   float64 `json:"CY" msgpack:"CY"`
	CZ   float64 `json:"CZ" msgpack:"CZ"`
	CL   float64 `json:"CL" msgpack:"CL"` // rolling moment
	CM   float64 `json:"CM" msgpack:"CM"` // pitching moment
	CN   float64 `json:"CN" msgpack:"CN"` // yawing moment
}

// Get returns one coefficient by name.
func (cs CoefficientSet) Get(c Coefficient) float64 {
	switch c {
	case Lift:
		return cs.Lift
	case Drag:
		return cs.Drag
	case CX:
		return cs.CX
	case CY:
		return cs.CY
	case CZ:
		return cs.CZ
	case CL:
		return cs.CL
	case CM:
		return cs.CM
	case CN:
		return cs.CN
	default:
		return 0
	}
}

// With returns a copy of cs with one coefficient replaced.
func (cs CoefficientSet) With(c Coefficient, v float64) CoefficientSet {
	switch c {
	case Lift:
		cs.Lift = v
	case Drag:
		cs.Drag = v
	case CX:
		cs.CX = v
	case CY:
		cs.CY = v
	case CZ:
		cs.CZ = v
	case CL:
		cs.CL = v
	case CM:
		cs.CM = v
	case CN:
		cs.CN = v
	}
	return cs
}

// Add returns the element-wise sum.
func (cs CoefficientSet) Add(o CoefficientSet) CoefficientSet {
	return CoefficientSet{
		Lift: cs.Lift + o.Lift,
		Drag: cs.Drag + o.Drag,
		CX:   cs.CX + o.CX,
		CY:   cs.CY + o.CY,
		CZ:   cs.CZ + o.CZ,
		CL:   cs.CL + o.CL,
		CM:   cs.CM + o.CM,
		CN:   cs.CN + o.CN,
	}
}

// FirstNonFinite returns the first coefficient that is NaN or Inf.
func (cs CoefficientSet) FirstNonFinite() (Coefficient, bool) {
	for _, c := range Coefficients {
		v := cs.Get(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c, true
		}
	}
	return 0, false
}

// ErrIncompleteDerivatives is returned by DerivativeSet.Complete.
var ErrIncompleteDerivatives = errors.New("derivative set incomplete")

// DerivativeSet maps (channel, coefficient) and (family, coefficient) to a
// derivative value. Entries are filled one channel at a time.
type DerivativeSet struct {
	States   map[Channel]map[Coefficient]float64            `json:"states"`
	Controls map[ControlSurfaceKind]map[Coefficient]float64 `json:"controls,omitempty"`
}

// NewDerivativeSet returns an empty, writable set.
func NewDerivativeSet() *DerivativeSet {
	return &DerivativeSet{
		States:   make(map[Channel]map[Coefficient]float64, len(Channels)),
		Controls: make(map[ControlSurfaceKind]map[Coefficient]float64),
	}
}

// SetChannel stores every coefficient derivative for one channel at once.
func (d *DerivativeSet) SetChannel(ch Channel, values CoefficientSet) {
	row := make(map[Coefficient]float64, len(Coefficients))
	for _, c := range Coefficients {
		row[c] = values.Get(c)
	}
	d.States[ch] = row
}

// SetControl stores every coefficient derivative for one family.
func (d *DerivativeSet) SetControl(kind ControlSurfaceKind, values CoefficientSet) {
	row := make(map[Coefficient]float64, len(Coefficients))
	for _, c := range Coefficients {
		row[c] = values.Get(c)
	}
	d.Controls[kind] = row
}

// Get returns d(coefficient)/d(channel) and whether it was computed.
func (d *DerivativeSet) Get(ch Channel, c Coefficient) (float64, bool) {
	if d == nil {
		return 0, false
	}
	row, ok := d.States[ch]
	if !ok {
		return 0, false
	}
	v, ok := row[c]
	return v, ok
}

// GetControl returns d(coefficient)/d(deflection) for a family.
func (d *DerivativeSet) GetControl(kind ControlSurfaceKind, c Coefficient) (float64, bool) {
	if d == nil {
		return 0, false
	}
	row, ok := d.Controls[kind]
	if !ok {
		return 0, false
	}
	v, ok := row[c]
	return v, ok
}

// Complete reports whether all eight channels and every listed family have
// been filled.
func (d *DerivativeSet) Complete(active []ControlSurfaceKind) error {
	var missing []string
	for _, ch := range Channels {
		if _, ok := d.States[ch]; !ok {
			missing = append(missing, ch.String())
		}
	}
	for _, kind := range active {
		if _, ok := d.Controls[kind]; !ok {
			missing = append(missing, kind.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteDerivatives, strings.Join(missing, ", "))
	}
	return nil
}
