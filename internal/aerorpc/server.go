package aerorpc

import (
	"context"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements AnalysisServer on top of service.Service.
type Server struct {
	svc *service.Service
	log logging.Logger
}

var _ AnalysisServer = (*Server)(nil)

// NewServer wires a Server. log may be nil.
func NewServer(svc *service.Service, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{svc: svc, log: log}
}

// putVehicleRequest wraps the vehicle so the document can grow other fields.
type putVehicleRequest struct {
	Vehicle model.Vehicle `json:"vehicle"`
}

func (s *Server) ensureReady() error {
	if s == nil {
		return status.Error(grpccodes.Unavailable, "analysis server is not initialised")
	}
	return ToStatusError(s.svc.Ready())
}

func requestVehicleID(req service.Request) string {
	if req.Vehicle != nil {
		return req.Vehicle.ID
	}
	return req.VehicleID
}

// analysisCall decodes a service.Request, runs fn inside a child span and
// encodes its result.
func analysisCall[T any](ctx context.Context, s *Server, span string, in *structpb.Struct, fn func(context.Context, service.Request) (T, error)) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req service.Request
	if err := decodeStrict(in, &req); err != nil {
		return nil, ToStatusError(err)
	}

	ctx, sp := StartChildSpan(ctx, span, requestVehicleID(req),
		attribute.Float64("mach", req.Condition.Mach),
		attribute.Float64("alpha", req.Condition.Alpha),
	)
	defer sp.End()

	res, err := fn(ctx, req)
	if err != nil {
		sp.RecordError(err)
		sp.SetStatus(codes.Error, err.Error())
		return nil, ToStatusError(err)
	}
	out, err := encode(res)
	return out, ToStatusError(err)
}

func (s *Server) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return analysisCall(ctx, s, "analysis.Evaluate", in, s.svc.Evaluate)
}

func (s *Server) ComputeDerivatives(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return analysisCall(ctx, s, "analysis.Derivatives", in, s.svc.Derivatives)
}

func (s *Server) NeutralPoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return analysisCall(ctx, s, "analysis.NeutralPoint", in, s.svc.NeutralPoint)
}

func (s *Server) PutVehicle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req putVehicleRequest
	if err := decodeStrict(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	res, err := s.svc.PutVehicle(ctx, req.Vehicle)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := encode(res)
	return out, ToStatusError(err)
}

func (s *Server) GetVehicle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var ref service.VehicleRef
	if err := decodeStrict(in, &ref); err != nil {
		return nil, ToStatusError(err)
	}
	v, err := s.svc.GetVehicle(ctx, ref.ID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := encode(v)
	return out, ToStatusError(err)
}

func (s *Server) ListVehicles(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	list, err := s.svc.ListVehicles(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := encode(list)
	return out, ToStatusError(err)
}

func (s *Server) DeleteVehicle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var ref service.VehicleRef
	if err := decodeStrict(in, &ref); err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.svc.DeleteVehicle(ctx, ref.ID); err != nil {
		return nil, ToStatusError(err)
	}
	return &structpb.Struct{}, nil
}
