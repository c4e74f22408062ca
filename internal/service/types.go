package service

import (
	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/model"
)

// ConditionSpec is the wire form of a flight condition. Angles and rates are
// in radians; the atmosphere and airspeed follow from Altitude and Mach.
type ConditionSpec struct {
	Altitude float64                              `json:"altitude"`
	Mach     float64                              `json:"mach"`
	Alpha    float64                              `json:"alpha"`
	Beta     float64                              `json:"beta"`
	P        float64                              `json:"p,omitempty"`
	Q        float64                              `json:"q,omitempty"`
	R        float64                              `json:"r,omitempty"`
	Controls map[model.ControlSurfaceKind]float64 `json:"controls,omitempty"`
}

// Condition builds the equilibrium condition.
func (c ConditionSpec) Condition() (model.FlightCondition, error) {
	cond, err := core.ConditionAt(c.Altitude, c.Mach, c.Alpha, c.Beta)
	if err != nil {
		return model.FlightCondition{}, err
	}
	cond.P, cond.Q, cond.R = c.P, c.Q, c.R
	for kind, d := range c.Controls {
		cond = cond.WithDeflection(kind, d)
	}
	if err := cond.Validate(); err != nil {
		return model.FlightCondition{}, err
	}
	return cond, nil
}

// Request names a vehicle, by ID or inline, and a condition. An inline
// vehicle takes precedence.
type Request struct {
	VehicleID string         `json:"vehicle_id,omitempty"`
	Vehicle   *model.Vehicle `json:"vehicle,omitempty"`
	Condition ConditionSpec  `json:"condition"`
}

// EvaluationResult is the outcome of one point evaluation.
type EvaluationResult struct {
	VehicleID     string                                            `json:"vehicle_id"`
	Mode          string                                            `json:"mode"`
	Condition     model.FlightCondition                             `json:"condition"`
	Coefficients  model.CoefficientSet                              `json:"coefficients"`
	Inviscid      model.CoefficientSet                              `json:"inviscid"`
	Channels      map[model.Channel]model.CoefficientSet            `json:"channels,omitempty"`
	Surfaces      map[model.ControlSurfaceKind]model.CoefficientSet `json:"surfaces,omitempty"`
	PerWing       []core.WingLoads                                  `json:"per_wing,omitempty"`
	Drag          *core.DragConditions                              `json:"drag,omitempty"`
	LowConfidence bool                                              `json:"low_confidence"`
	Extrapolated  []core.Extrapolation                              `json:"extrapolated,omitempty"`
}

func evaluationResult(vehicleID string, mode core.Mode, ev *core.Evaluation) *EvaluationResult {
	return &EvaluationResult{
		VehicleID:     vehicleID,
		Mode:          mode.String(),
		Condition:     ev.Condition,
		Coefficients:  ev.Coefficients,
		Inviscid:      ev.Inviscid,
		Channels:      ev.Channels,
		Surfaces:      ev.Surfaces,
		PerWing:       ev.PerWing,
		Drag:          ev.Drag,
		LowConfidence: ev.LowConfidence(),
		Extrapolated:  ev.Extrapolated,
	}
}

// DerivativesResult is the outcome of a derivative run. A partial run is a
// valid result with Complete false and Errors filled.
type DerivativesResult struct {
	VehicleID     string                     `json:"vehicle_id"`
	Mode          string                     `json:"mode"`
	Baseline      model.CoefficientSet       `json:"baseline"`
	Derivatives   *model.DerivativeSet       `json:"derivatives"`
	Raw           *model.DerivativeSet       `json:"raw,omitempty"`
	NeutralPoint  *core.NeutralPoint         `json:"neutral_point,omitempty"`
	Families      []model.ControlSurfaceKind `json:"families"`
	Evaluations   int                        `json:"evaluations"`
	Complete      bool                       `json:"complete"`
	Errors        []string                   `json:"errors,omitempty"`
	LowConfidence bool                       `json:"low_confidence"`
}

// NeutralPointResult wraps a neutral-point estimate.
type NeutralPointResult struct {
	VehicleID    string             `json:"vehicle_id"`
	NeutralPoint *core.NeutralPoint `json:"neutral_point"`
}

// VehicleResult is returned by PutVehicle.
type VehicleResult struct {
	Vehicle model.Vehicle `json:"vehicle"`
	Created bool          `json:"created"`
}

// VehicleList is returned by ListVehicles.
type VehicleList struct {
	Vehicles []model.Vehicle `json:"vehicles"`
}

// VehicleRef names a stored vehicle.
type VehicleRef struct {
	ID string `json:"id"`
}
