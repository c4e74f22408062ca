// Package service implements the analysis operations shared by the gRPC and
// HTTP surfaces: resolving a vehicle, building the flight condition and
// running core.Analysis.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/model"
)

var (
	// ErrInvalidRequest marks malformed requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady is returned by Ready until an analysis and a store are wired.
	ErrNotReady = errors.New("analysis service not ready")
)

// Store is the vehicle storage the service needs. kb.KnowledgeBase
// satisfies it.
type Store interface {
	AddVehicle(v model.Vehicle) (string, error)
	PutVehicle(v model.Vehicle) (bool, error)
	GetVehicle(id string) (model.Vehicle, error)
	ListVehicles() []model.Vehicle
	DeleteVehicle(id string) error
}

// Service runs analyses against stored or inline vehicles.
type Service struct {
	analysis *core.Analysis
	store    Store
	log      logging.Logger
}

// New wires a Service. log may be nil.
func New(analysis *core.Analysis, store Store, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{analysis: analysis, store: store, log: log}
}

// Ready reports whether the service has its dependencies.
func (s *Service) Ready() error {
	if s == nil || s.analysis == nil || s.store == nil {
		return ErrNotReady
	}
	return nil
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func (s *Service) resolve(req Request) (model.Vehicle, model.FlightCondition, error) {
	var v model.Vehicle
	switch {
	case req.Vehicle != nil:
		v = req.Vehicle.Clone()
		if strings.TrimSpace(v.ID) == "" {
			v.ID = "inline"
		}
	case strings.TrimSpace(req.VehicleID) != "":
		stored, err := s.store.GetVehicle(req.VehicleID)
		if err != nil {
			return model.Vehicle{}, model.FlightCondition{}, err
		}
		v = stored
	default:
		return model.Vehicle{}, model.FlightCondition{}, fmt.Errorf("%w: vehicle_id or vehicle is required", ErrInvalidRequest)
	}
	cond, err := req.Condition.Condition()
	if err != nil {
		return model.Vehicle{}, model.FlightCondition{}, err
	}
	return v, cond, nil
}

// Evaluate runs one point evaluation.
func (s *Service) Evaluate(ctx context.Context, req Request) (*EvaluationResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	v, cond, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	ev, err := s.analysis.Evaluate(ctx, cond, v)
	if err != nil {
		return nil, err
	}
	return evaluationResult(v.ID, s.analysis.Mode(), ev), nil
}

// Derivatives runs a full derivative analysis. Partial results are returned
// without an error; only a failed baseline or a bad request is an error.
func (s *Service) Derivatives(ctx context.Context, req Request) (*DerivativesResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	v, cond, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	res, err := s.analysis.Derivatives(ctx, cond, v)
	if res == nil {
		return nil, err
	}
	out := &DerivativesResult{
		VehicleID:     v.ID,
		Mode:          s.analysis.Mode().String(),
		Baseline:      res.Baseline.Coefficients,
		Derivatives:   res.Derivatives,
		Raw:           res.Raw,
		NeutralPoint:  res.NeutralPoint,
		Families:      res.Families,
		Evaluations:   res.Evaluations,
		Complete:      res.Complete(),
		LowConfidence: res.Baseline.LowConfidence(),
	}
	if out.Families == nil {
		out.Families = []model.ControlSurfaceKind{}
	}
	if res.Err != nil {
		out.Errors = splitJoined(res.Err)
		s.logger(ctx).Warn(ctx, "returning partial derivatives",
			logging.VehicleID(v.ID),
			logging.Int("errors", len(out.Errors)),
		)
	}
	return out, nil
}

// splitJoined flattens a tree of joined errors into one message per leaf.
func splitJoined(err error) []string {
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var msgs []string
	for _, e := range j.Unwrap() {
		msgs = append(msgs, splitJoined(e)...)
	}
	return msgs
}

// NeutralPoint estimates the stick-fixed neutral point.
func (s *Service) NeutralPoint(ctx context.Context, req Request) (*NeutralPointResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	v, cond, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	np, err := s.analysis.NeutralPoint(ctx, cond, v)
	if err != nil {
		return nil, err
	}
	return &NeutralPointResult{VehicleID: v.ID, NeutralPoint: np}, nil
}

// PutVehicle stores v, assigning an ID when it has none.
func (s *Service) PutVehicle(ctx context.Context, v model.Vehicle) (*VehicleResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	created := true
	if strings.TrimSpace(v.ID) == "" {
		id, err := s.store.AddVehicle(v)
		if err != nil {
			return nil, err
		}
		v.ID = id
	} else {
		var err error
		if created, err = s.store.PutVehicle(v); err != nil {
			return nil, err
		}
	}
	s.logger(ctx).Info(ctx, "vehicle stored",
		logging.VehicleID(v.ID),
		logging.Bool("created", created),
	)
	stored, err := s.store.GetVehicle(v.ID)
	if err != nil {
		return nil, err
	}
	return &VehicleResult{Vehicle: stored, Created: created}, nil
}

// GetVehicle returns a stored vehicle.
func (s *Service) GetVehicle(_ context.Context, id string) (model.Vehicle, error) {
	if err := s.Ready(); err != nil {
		return model.Vehicle{}, err
	}
	if strings.TrimSpace(id) == "" {
		return model.Vehicle{}, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	return s.store.GetVehicle(id)
}

// ListVehicles returns every stored vehicle.
func (s *Service) ListVehicles(_ context.Context) (*VehicleList, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	vs := s.store.ListVehicles()
	if vs == nil {
		vs = []model.Vehicle{}
	}
	return &VehicleList{Vehicles: vs}, nil
}

// DeleteVehicle removes a stored vehicle.
func (s *Service) DeleteVehicle(ctx context.Context, id string) error {
	if err := s.Ready(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if err := s.store.DeleteVehicle(id); err != nil {
		return err
	}
	s.logger(ctx).Info(ctx, "vehicle deleted", logging.VehicleID(id))
	return nil
}
