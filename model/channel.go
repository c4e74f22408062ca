package model

import (
	"fmt"
	"strings"
)

// Channel identifies one independent flight-state variable that can be
// perturbed when estimating stability derivatives.
type Channel int

const (
	Alpha Channel = iota
	Beta
	U
	V
	W
	P
	Q
	R
)

// Channels lists every state channel in processing order.
var Channels = []Channel{Alpha, Beta, U, V, W, P, Q, R}

var channelNames = [...]string{"alpha", "beta", "u", "v", "w", "p", "q", "r"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// Valid reports whether c is one of the eight known channels.
func (c Channel) Valid() bool { return c >= Alpha && c <= R }

// MarshalText lets Channel act as a JSON object key.
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown channel %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	ch, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}

// ParseChannel maps a case-insensitive channel name onto a Channel.
func ParseChannel(s string) (Channel, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for i, name := range channelNames {
		if name == v {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Coefficient names one non-dimensional force or moment coefficient.
type Coefficient int

const (
	Lift Coefficient = iota
	Drag
	CX
	CY
	CZ
	// CL is the rolling-moment coefficient, not the lift coefficient.
	CL
	CM
	CN
)

// Coefficients lists every coefficient in canonical order.
var Coefficients = []Coefficient{Lift, Drag, CX, CY, CZ, CL, CM, CN}

// Longitudinal coefficients are aggregated from the alpha/u/w/q channels.
var Longitudinal = []Coefficient{Lift, Drag, CX, CZ, CM}

// Lateral coefficients are aggregated from the beta/v/p/r channels.
var Lateral = []Coefficient{CY, CL, CN}

var coefficientNames = [...]string{"lift", "drag", "CX", "CY", "CZ", "CL", "CM", "CN"}

func (c Coefficient) String() string {
	if c < 0 || int(c) >= len(coefficientNames) {
		return fmt.Sprintf("coefficient(%d)", int(c))
	}
	return coefficientNames[c]
}

func (c Coefficient) Valid() bool { return c >= Lift && c <= CN }

func (c Coefficient) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown coefficient %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Coefficient) UnmarshalText(b []byte) error {
	co, err := ParseCoefficient(string(b))
	if err != nil {
		return err
	}
	*c = co
	return nil
}

// ParseCoefficient accepts the canonical names. Matching is exact for the
// body-axis names (CL is roll, not lift) and case-insensitive for lift/drag.
func ParseCoefficient(s string) (Coefficient, error) {
	v := strings.TrimSpace(s)
	for i, name := range coefficientNames {
		if name == v {
			return Coefficient(i), nil
		}
	}
	switch strings.ToLower(v) {
	case "lift":
		return Lift, nil
	case "drag":
		return Drag, nil
	}
	return 0, fmt.Errorf("unknown coefficient %q", s)
}

// GroupOf returns the coefficients a channel contributes to.
func GroupOf(ch Channel) []Coefficient {
	switch ch {
	case Alpha, U, W, Q:
		return Longitudinal
	case Beta, V, P, R:
		return Lateral
	default:
		return nil
	}
}

// ControlSurfaceKind tags a control-surface family.
type ControlSurfaceKind int

const (
	Aileron ControlSurfaceKind = iota
	Elevator
	Rudder
	Flap
	Slat
)

// ControlSurfaceKinds lists every family in canonical order.
var ControlSurfaceKinds = []ControlSurfaceKind{Aileron, Elevator, Rudder, Flap, Slat}

var controlSurfaceNames = [...]string{"aileron", "elevator", "rudder", "flap", "slat"}

func (k ControlSurfaceKind) String() string {
	if k < 0 || int(k) >= len(controlSurfaceNames) {
		return fmt.Sprintf("control_surface(%d)", int(k))
	}
	return controlSurfaceNames[k]
}

func (k ControlSurfaceKind) Valid() bool { return k >= Aileron && k <= Slat }

func (k ControlSurfaceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown control surface kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ControlSurfaceKind) UnmarshalText(b []byte) error {
	kind, err := ParseControlSurfaceKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseControlSurfaceKind maps a family name onto its tag.
func ParseControlSurfaceKind(s string) (ControlSurfaceKind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for i, name := range controlSurfaceNames {
		if name == v {
			return ControlSurfaceKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown control surface kind %q", s)
}
