package aerorpc

import (
	"context"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const instrumentation = "github.com/signalsfoundry/aerostab/internal/aerorpc"

func tracer() trace.Tracer { return otel.Tracer(instrumentation) }

// TracingUnaryServerInterceptor names the RPC span "<Service>.<Method>" and
// tags it with the request ID and final status code. A server span is started
// here when no stats handler provided one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := service + "." + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}
		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String(logging.KeyRequestID, id))
		}

		resp, err := handler(ctx, req)
		span.SetAttributes(attribute.String("rpc.grpc.status", status.Code(err).String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Convert(err).Message())
		}
		return resp, err
	}
}

// StartChildSpan opens a span for analysis work inside a handler, tagged with
// the vehicle when one is known.
func StartChildSpan(ctx context.Context, name, vehicleID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	if vehicleID != "" {
		extra = append(extra, attribute.String(logging.KeyVehicleID, vehicleID))
	}
	return tracer().Start(ctx, name, trace.WithAttributes(extra...))
}
