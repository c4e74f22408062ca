package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/aerostab/model"
)

var (
	// ErrInvalidConfig marks setup-time configuration problems. Every
	// *ConfigError matches it with errors.Is.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrZeroPerturbation indicates a finite-difference step of zero.
	ErrZeroPerturbation = errors.New("perturbation delta must be non-zero")
	// ErrDegenerateDifference indicates a division by a zero step.
	ErrDegenerateDifference = errors.New("degenerate finite difference")
	// ErrDegenerateSlope indicates equal dCM/dalpha samples in the
	// neutral-point fit.
	ErrDegenerateSlope = errors.New("neutral point undefined: dCM/dalpha does not vary with CG")
	// ErrNonFinite indicates a NaN or Inf produced by a table, the solver
	// or a difference.
	ErrNonFinite = errors.New("non-finite aerodynamic result")
	// ErrMissingSurrogate indicates a required surrogate table is absent.
	ErrMissingSurrogate = errors.New("surrogate table missing")
	// ErrMissingDragStage indicates a drag pipeline without every stage.
	ErrMissingDragStage = errors.New("drag stage missing")

	// ErrIncompleteDerivatives is re-exported so callers can depend on
	// core alone.
	ErrIncompleteDerivatives = model.ErrIncompleteDerivatives
	// ErrInvalidVehicle is re-exported from model.
	ErrInvalidVehicle = model.ErrInvalidVehicle
	// ErrInvalidCondition is re-exported from model.
	ErrInvalidCondition = model.ErrInvalidCondition
)

// ConfigError describes one rejected configuration field.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is makes every ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ChannelError records the failure of one perturbed evaluation. Exactly one
// of Channel or Family is meaningful, as reported by IsControl.
type ChannelError struct {
	Channel   model.Channel
	Family    model.ControlSurfaceKind
	IsControl bool
	Err       error
}

func (e *ChannelError) Error() string {
	if e.IsControl {
		return fmt.Sprintf("control family %s: %v", e.Family, e.Err)
	}
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Name returns the channel or family name.
func (e *ChannelError) Name() string {
	if e.IsControl {
		return e.Family.String()
	}
	return e.Channel.String()
}

func nonFinite(where string, c model.Coefficient) error {
	return fmt.Errorf("%w: %s %s", ErrNonFinite, where, c)
}
