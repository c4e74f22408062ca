package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/brunoga/deep"
)

var (
	// ErrInvalidVehicle marks structural problems in a vehicle definition.
	ErrInvalidVehicle = errors.New("invalid vehicle")
	// ErrInvalidCondition marks a non-finite or out-of-range flight condition.
	ErrInvalidCondition = errors.New("invalid flight condition")
)

// Reference holds the non-dimensionalisation quantities and the moment
// reference point used by a solver or a surrogate table.
type Reference struct {
	Area  float64 `json:"area" msgpack:"area"`   // S_ref, m^2
	Span  float64 `json:"span" msgpack:"span"`   // b_ref, m
	Chord float64 `json:"chord" msgpack:"chord"` // c_ref, m
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Z     float64 `json:"z" msgpack:"z"`
}

// ControlSurface is one movable segment on a lifting surface.
type ControlSurface struct {
	Tag           string             `json:"tag" msgpack:"tag"`
	Kind          ControlSurfaceKind `json:"kind" msgpack:"kind"`
	SpanStart     float64            `json:"span_start" msgpack:"span_start"` // fraction of semi-span
	SpanEnd       float64            `json:"span_end" msgpack:"span_end"`
	ChordFraction float64            `json:"chord_fraction" msgpack:"chord_fraction"`
	Deflection    float64            `json:"deflection" msgpack:"deflection"` // rad
}

// Wing is a lifting surface. Horizontal tails and fins are wings too.
type Wing struct {
	Tag              string           `json:"tag" msgpack:"tag"`
	Area             float64          `json:"area" msgpack:"area"`
	Span             float64          `json:"span" msgpack:"span"`
	MAC              float64          `json:"mac" msgpack:"mac"`
	Sweep            float64          `json:"sweep" msgpack:"sweep"` // quarter chord, rad
	ThicknessToChord float64          `json:"thickness_to_chord" msgpack:"thickness_to_chord"`
	Taper            float64          `json:"taper" msgpack:"taper"`
	Dihedral         float64          `json:"dihedral" msgpack:"dihedral"`
	Incidence        float64          `json:"incidence" msgpack:"incidence"`
	SpanEfficiency   float64          `json:"span_efficiency" msgpack:"span_efficiency"`
	WettedArea       float64          `json:"wetted_area" msgpack:"wetted_area"`
	Vertical         bool             `json:"vertical" msgpack:"vertical"`
	Origin           Vec3             `json:"origin" msgpack:"origin"` // root leading edge
	ControlSurfaces  []ControlSurface `json:"control_surfaces,omitempty" msgpack:"control_surfaces,omitempty"`
}

// AspectRatio returns b^2/S.
func (w Wing) AspectRatio() float64 {
	if w.Area <= 0 {
		return 0
	}
	return w.Span * w.Span / w.Area
}

// AerodynamicCenter returns the quarter-chord point of the mean aerodynamic
// chord along x.
func (w Wing) AerodynamicCenter() float64 {
	ybar := w.Span / 6 * (1 + 2*w.Taper) / (1 + w.Taper)
	if w.Vertical {
		ybar *= 2
	}
	return w.Origin.X + ybar*math.Tan(w.Sweep) + 0.25*w.MAC
}

// Fuselage is a slender body contributing parasite drag.
type Fuselage struct {
	Tag           string  `json:"tag" msgpack:"tag"`
	Length        float64 `json:"length" msgpack:"length"`
	EffectiveDiam float64 `json:"effective_diameter" msgpack:"effective_diameter"`
	WettedArea    float64 `json:"wetted_area" msgpack:"wetted_area"`
}

// Nacelle is an engine housing, optionally pylon-mounted.
type Nacelle struct {
	Tag        string  `json:"tag" msgpack:"tag"`
	Length     float64 `json:"length" msgpack:"length"`
	Diameter   float64 `json:"diameter" msgpack:"diameter"`
	WettedArea float64 `json:"wetted_area" msgpack:"wetted_area"`
	HasPylon   bool    `json:"has_pylon" msgpack:"has_pylon"`
}

// Vehicle is the aircraft geometry plus mass properties relevant to the
// aerodynamic analysis.
type Vehicle struct {
	ID        string     `json:"id" msgpack:"id"`
	Name      string     `json:"name" msgpack:"name"`
	Reference Reference  `json:"reference" msgpack:"reference"`
	CG        Vec3       `json:"cg" msgpack:"cg"`
	Wings     []Wing     `json:"wings" msgpack:"wings"`
	Fuselages []Fuselage `json:"fuselages,omitempty" msgpack:"fuselages,omitempty"`
	Nacelles  []Nacelle  `json:"nacelles,omitempty" msgpack:"nacelles,omitempty"`
}

// Clone returns a deep copy sharing no slices with v.
func (v Vehicle) Clone() Vehicle {
	return deep.MustCopy(v)
}

// Families returns the control-surface families present, in canonical order.
func (v Vehicle) Families() []ControlSurfaceKind {
	var out []ControlSurfaceKind
	for _, kind := range ControlSurfaceKinds {
		if v.HasFamily(kind) {
			out = append(out, kind)
		}
	}
	return out
}

// HasFamily reports whether any wing carries a surface of the given kind.
func (v Vehicle) HasFamily(kind ControlSurfaceKind) bool {
	for _, w := range v.Wings {
		for _, cs := range w.ControlSurfaces {
			if cs.Kind == kind {
				return true
			}
		}
	}
	return false
}

// SurfacesOf returns copies of every surface of a family across all wings.
func (v Vehicle) SurfacesOf(kind ControlSurfaceKind) []ControlSurface {
	var out []ControlSurface
	for _, w := range v.Wings {
		for _, cs := range w.ControlSurfaces {
			if cs.Kind == kind {
				out = append(out, cs)
			}
		}
	}
	return out
}

// WithDeflection returns a deep copy of v in which every surface of the
// family is set to the given deflection. v itself is not modified.
func (v Vehicle) WithDeflection(kind ControlSurfaceKind, deflection float64) Vehicle {
	out := v.Clone()
	out.SetDeflection(kind, deflection)
	return out
}

// SetDeflection mutates v in place. Callers sharing v must synchronise.
func (v *Vehicle) SetDeflection(kind ControlSurfaceKind, deflection float64) {
	for i := range v.Wings {
		for j := range v.Wings[i].ControlSurfaces {
			if v.Wings[i].ControlSurfaces[j].Kind == kind {
				v.Wings[i].ControlSurfaces[j].Deflection = deflection
			}
		}
	}
}

// WithCGShift returns a deep copy of v with the CG moved dx metres aft.
func (v Vehicle) WithCGShift(dx float64) Vehicle {
	out := v.Clone()
	out.CG.X += dx
	return out
}

// MainWing returns the largest horizontal wing, or false when none exists.
func (v Vehicle) MainWing() (Wing, bool) {
	best := -1
	for i, w := range v.Wings {
		if w.Vertical {
			continue
		}
		if best < 0 || w.Area > v.Wings[best].Area {
			best = i
		}
	}
	if best < 0 {
		return Wing{}, false
	}
	return v.Wings[best], true
}

// Validate performs basic structural validation.
func (v Vehicle) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidVehicle)
	}
	ref := v.Reference
	if !(ref.Area > 0) || !(ref.Span > 0) || !(ref.Chord > 0) {
		return fmt.Errorf("%w: reference area, span and chord must be positive", ErrInvalidVehicle)
	}
	if !v.CG.finite() {
		return fmt.Errorf("%w: center of gravity is not finite", ErrInvalidVehicle)
	}
	if len(v.Wings) == 0 {
		return fmt.Errorf("%w: at least one wing is required", ErrInvalidVehicle)
	}
	for _, w := range v.Wings {
		if !(w.Area > 0) || !(w.Span > 0) {
			return fmt.Errorf("%w: wing %q must have positive area and span", ErrInvalidVehicle, w.Tag)
		}
		for _, cs := range w.ControlSurfaces {
			if !cs.Kind.Valid() {
				return fmt.Errorf("%w: wing %q surface %q has unknown kind", ErrInvalidVehicle, w.Tag, cs.Tag)
			}
			if cs.SpanEnd < cs.SpanStart || cs.SpanStart < 0 || cs.SpanEnd > 1 {
				return fmt.Errorf("%w: wing %q surface %q span fractions out of range", ErrInvalidVehicle, w.Tag, cs.Tag)
			}
			if cs.ChordFraction <= 0 || cs.ChordFraction >= 1 {
				return fmt.Errorf("%w: wing %q surface %q chord fraction must be in (0, 1)", ErrInvalidVehicle, w.Tag, cs.Tag)
			}
		}
	}
	for _, f := range v.Fuselages {
		if !(f.Length > 0) || !(f.EffectiveDiam > 0) {
			return fmt.Errorf("%w: fuselage %q must have positive length and diameter", ErrInvalidVehicle, f.Tag)
		}
	}
	for _, n := range v.Nacelles {
		if !(n.Length > 0) || !(n.Diameter > 0) {
			return fmt.Errorf("%w: nacelle %q must have positive length and diameter", ErrInvalidVehicle, n.Tag)
		}
	}
	return v.ValidateTags()
}

// ValidateTags rejects two wings, two fuselages or two nacelles sharing a
// tag. Per-component results are keyed by tag; an untagged component counts
// as the tag "".
func (v Vehicle) ValidateTags() error {
	wings := make([]string, len(v.Wings))
	for i, w := range v.Wings {
		wings[i] = w.Tag
	}
	fuselages := make([]string, len(v.Fuselages))
	for i, f := range v.Fuselages {
		fuselages[i] = f.Tag
	}
	nacelles := make([]string, len(v.Nacelles))
	for i, n := range v.Nacelles {
		nacelles[i] = n.Tag
	}
	for kind, tags := range map[string][]string{"wing": wings, "fuselage": fuselages, "nacelle": nacelles} {
		if tag, dup := duplicateTag(tags); dup {
			return fmt.Errorf("%w: duplicate %s tag %q", ErrInvalidVehicle, kind, tag)
		}
	}
	return nil
}

func duplicateTag(tags []string) (string, bool) {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			return tag, true
		}
		seen[tag] = struct{}{}
	}
	return "", false
}
