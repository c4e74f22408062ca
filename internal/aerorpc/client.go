package aerorpc

import (
	"context"

	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/model"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a typed client for the analysis service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethodName(method), req, resp, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeLoose(resp, out)
}

// Evaluate runs one point evaluation.
func (c *Client) Evaluate(ctx context.Context, req service.Request, opts ...grpc.CallOption) (*service.EvaluationResult, error) {
	out := new(service.EvaluationResult)
	if err := c.invoke(ctx, MethodEvaluate, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeDerivatives runs a derivative analysis.
func (c *Client) ComputeDerivatives(ctx context.Context, req service.Request, opts ...grpc.CallOption) (*service.DerivativesResult, error) {
	out := new(service.DerivativesResult)
	if err := c.invoke(ctx, MethodComputeDerivatives, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NeutralPoint estimates the neutral point.
func (c *Client) NeutralPoint(ctx context.Context, req service.Request, opts ...grpc.CallOption) (*service.NeutralPointResult, error) {
	out := new(service.NeutralPointResult)
	if err := c.invoke(ctx, MethodNeutralPoint, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// PutVehicle creates or replaces a vehicle.
func (c *Client) PutVehicle(ctx context.Context, v model.Vehicle, opts ...grpc.CallOption) (*service.VehicleResult, error) {
	out := new(service.VehicleResult)
	if err := c.invoke(ctx, MethodPutVehicle, putVehicleRequest{Vehicle: v}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetVehicle fetches a stored vehicle.
func (c *Client) GetVehicle(ctx context.Context, id string, opts ...grpc.CallOption) (model.Vehicle, error) {
	var out model.Vehicle
	err := c.invoke(ctx, MethodGetVehicle, service.VehicleRef{ID: id}, &out, opts...)
	return out, err
}

// ListVehicles lists stored vehicles.
func (c *Client) ListVehicles(ctx context.Context, opts ...grpc.CallOption) ([]model.Vehicle, error) {
	var out service.VehicleList
	if err := c.invoke(ctx, MethodListVehicles, struct{}{}, &out, opts...); err != nil {
		return nil, err
	}
	return out.Vehicles, nil
}

// DeleteVehicle removes a stored vehicle.
func (c *Client) DeleteVehicle(ctx context.Context, id string, opts ...grpc.CallOption) error {
	return c.invoke(ctx, MethodDeleteVehicle, service.VehicleRef{ID: id}, nil, opts...)
}
