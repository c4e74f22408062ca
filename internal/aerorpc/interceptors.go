package aerorpc

import (
	"context"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey is the metadata key for request IDs, matching the
// X-Request-ID header of the HTTP API.
const RequestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor adopts the caller's request ID or mints
// one, returns it in the response header and stores a request-scoped logger
// on the context for the handlers.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if id := firstHeader(md, RequestIDMetadataKey); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, base.With(logging.String("rpc", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, log)
		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, logging.RequestIDFromContext(ctx))); err != nil {
			log.Debug(ctx, "request id header not sent", logging.Err(err))
		}

		resp, err := handler(ctx, req)
		if err != nil {
			log.Debug(ctx, "rpc returned error", logging.Err(err))
		}
		return resp, err
	}
}

// RequestIDUnaryClientInterceptor sends the request ID carried by ctx.
func RequestIDUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id := logging.RequestIDFromContext(ctx); id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func firstHeader(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
