package aerorpc

import (
	"context"
	"errors"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/kb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusMapping is checked in order; the first sentinel matched by errors.Is
// picks the code.
var statusMapping = []struct {
	target error
	code   codes.Code
}{
	{kb.ErrVehicleNotFound, codes.NotFound},
	{kb.ErrVehicleExists, codes.AlreadyExists},
	{service.ErrInvalidRequest, codes.InvalidArgument},
	{core.ErrInvalidVehicle, codes.InvalidArgument},
	{core.ErrInvalidCondition, codes.InvalidArgument},
	{core.ErrInvalidConfig, codes.InvalidArgument},
	{core.ErrNonFinite, codes.FailedPrecondition},
	{core.ErrDegenerateSlope, codes.FailedPrecondition},
	{core.ErrDegenerateDifference, codes.FailedPrecondition},
	{core.ErrIncompleteDerivatives, codes.FailedPrecondition},
	{core.ErrMissingSurrogate, codes.FailedPrecondition},
	{service.ErrNotReady, codes.Unavailable},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// ToStatusError converts an analysis or storage error into a gRPC status.
// Errors that already carry a status pass through; anything unrecognised is
// Internal.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range statusMapping {
		if errors.Is(err, m.target) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
