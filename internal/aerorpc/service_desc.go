// Package aerorpc exposes the analysis service over gRPC. Messages are
// google.protobuf.Struct documents carrying the JSON form of the service
// types, so no generated stubs are needed.
package aerorpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "aerostab.v1.AnalysisService"

// Method names.
const (
	MethodEvaluate           = "Evaluate"
	MethodComputeDerivatives = "ComputeDerivatives"
	MethodNeutralPoint       = "NeutralPoint"
	MethodPutVehicle         = "PutVehicle"
	MethodGetVehicle         = "GetVehicle"
	MethodListVehicles       = "ListVehicles"
	MethodDeleteVehicle      = "DeleteVehicle"
)

// AnalysisServer is the server API for the analysis service.
type AnalysisServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ComputeDerivatives(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NeutralPoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PutVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVehicles(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteVehicle(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AnalysisServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodHandler {
	fullMethod := fullMethodName(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnalysisServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AnalysisServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func fullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the analysis service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnalysisServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodEvaluate, Handler: unary(MethodEvaluate, AnalysisServer.Evaluate)},
		{MethodName: MethodComputeDerivatives, Handler: unary(MethodComputeDerivatives, AnalysisServer.ComputeDerivatives)},
		{MethodName: MethodNeutralPoint, Handler: unary(MethodNeutralPoint, AnalysisServer.NeutralPoint)},
		{MethodName: MethodPutVehicle, Handler: unary(MethodPutVehicle, AnalysisServer.PutVehicle)},
		{MethodName: MethodGetVehicle, Handler: unary(MethodGetVehicle, AnalysisServer.GetVehicle)},
		{MethodName: MethodListVehicles, Handler: unary(MethodListVehicles, AnalysisServer.ListVehicles)},
		{MethodName: MethodDeleteVehicle, Handler: unary(MethodDeleteVehicle, AnalysisServer.DeleteVehicle)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aerostab/v1/analysis.proto",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv AnalysisServer) {
	s.RegisterService(&ServiceDesc, srv)
}
