package model

import (
	"fmt"
	"maps"
	"math"
)

// Atmosphere holds the altitude-derived freestream properties (SI units).
type Atmosphere struct {
	Density          float64 `json:"density" msgpack:"density"`                     // kg/m^3
	Pressure         float64 `json:"pressure" msgpack:"pressure"`                   // Pa
	Temperature      float64 `json:"temperature" msgpack:"temperature"`             // K
	SpeedOfSound     float64 `json:"speed_of_sound" msgpack:"speed_of_sound"`       // m/s
	DynamicViscosity float64 `json:"dynamic_viscosity" msgpack:"dynamic_viscosity"` // Pa*s
}

// FlightCondition is one point of the flight envelope. It is a value type:
// copies share nothing except the Controls map, which Clone duplicates.
type FlightCondition struct {
	Alpha float64 `json:"alpha" msgpack:"alpha"` // rad
	Beta  float64 `json:"beta" msgpack:"beta"`   // rad
	Phi   float64 `json:"phi" msgpack:"phi"`     // rad

	// Body-axis velocity components, m/s.
	U float64 `json:"u" msgpack:"u"`
	V float64 `json:"v" msgpack:"v"`
	W float64 `json:"w" msgpack:"w"`

	// Body-axis angular rates, rad/s.
	P float64 `json:"p" msgpack:"p"`
	Q float64 `json:"q" msgpack:"q"`
	R float64 `json:"r" msgpack:"r"`

	Mach       float64    `json:"mach" msgpack:"mach"`
	Altitude   float64    `json:"altitude" msgpack:"altitude"` // m
	Atmosphere Atmosphere `json:"atmosphere" msgpack:"atmosphere"`

	// Controls holds commanded deflections per family, rad.
	Controls map[ControlSurfaceKind]float64 `json:"controls,omitempty" msgpack:"controls,omitempty"`
}

// Clone returns a deep copy of the condition.
func (fc FlightCondition) Clone() FlightCondition {
	out := fc
	if fc.Controls != nil {
		out.Controls = maps.Clone(fc.Controls)
	}
	return out
}

// Channel returns the nominal value of a state channel.
func (fc FlightCondition) Channel(ch Channel) float64 {
	switch ch {
	case Alpha:
		return fc.Alpha
	case Beta:
		return fc.Beta
	case U:
		return fc.U
	case V:
		return fc.V
	case W:
		return fc.W
	case P:
		return fc.P
	case Q:
		return fc.Q
	case R:
		return fc.R
	default:
		return 0
	}
}

// WithChannel returns a clone of fc with one channel replaced.
func (fc FlightCondition) WithChannel(ch Channel, value float64) FlightCondition {
	out := fc.Clone()
	switch ch {
	case Alpha:
		out.Alpha = value
	case Beta:
		out.Beta = value
	case U:
		out.U = value
	case V:
		out.V = value
	case W:
		out.W = value
	case P:
		out.P = value
	case Q:
		out.Q = value
	case R:
		out.R = value
	}
	return out
}

// Deflection returns the commanded deflection for a family (0 if unset).
func (fc FlightCondition) Deflection(kind ControlSurfaceKind) float64 {
	return fc.Controls[kind]
}

// WithDeflection returns a clone of fc with one family's deflection set.
func (fc FlightCondition) WithDeflection(kind ControlSurfaceKind, value float64) FlightCondition {
	out := fc.Clone()
	if out.Controls == nil {
		out.Controls = make(map[ControlSurfaceKind]float64, 1)
	}
	out.Controls[kind] = value
	return out
}

// Airspeed is the magnitude of the body-axis velocity.
func (fc FlightCondition) Airspeed() float64 {
	return math.Sqrt(fc.U*fc.U + fc.V*fc.V + fc.W*fc.W)
}

// DynamicPressure returns 0.5*rho*V^2.
func (fc FlightCondition) DynamicPressure() float64 {
	v := fc.Airspeed()
	return 0.5 * fc.Atmosphere.Density * v * v
}

// Validate checks that every field is finite and the Mach number is usable.
func (fc FlightCondition) Validate() error {
	fields := map[string]float64{
		"alpha": fc.Alpha, "beta": fc.Beta, "phi": fc.Phi,
		"u": fc.U, "v": fc.V, "w": fc.W,
		"p": fc.P, "q": fc.Q, "r": fc.R,
		"mach": fc.Mach, "altitude": fc.Altitude,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCondition, name)
		}
	}
	if fc.Mach < 0 {
		return fmt.Errorf("%w: mach must be >= 0, got %g", ErrInvalidCondition, fc.Mach)
	}
	for kind, d := range fc.Controls {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown control family %d", ErrInvalidCondition, int(kind))
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: %s deflection is not finite", ErrInvalidCondition, kind)
		}
	}
	return nil
}
