package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var rpcBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// RPCCollector counts analysis RPCs and tracks the knowledge base size. It
// implements kb.MetricsRecorder.
type RPCCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	Vehicles     prometheus.Gauge
}

// NewRPCCollector registers the RPC metrics with reg, or with the default
// registry when reg is nil.
func NewRPCCollector(reg prometheus.Registerer) (*RPCCollector, error) {
	reg, gatherer := registryPair(reg)
	c := &RPCCollector{gatherer: gatherer}

	var err error
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Handled analysis RPCs by service, method and status code.",
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Analysis RPC latency.",
		Buckets:   rpcBuckets,
	}, []string{"service", "method"})); err != nil {
		return nil, err
	}
	if c.Vehicles, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vehicles",
		Help:      "Vehicles held by the knowledge base.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// UnaryServerInterceptor times every unary call and counts it by status code.
func (c *RPCCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c != nil && info != nil {
			c.observe(info.FullMethod, status.Code(err).String(), time.Since(start))
		}
		return resp, err
	}
}

func (c *RPCCollector) observe(fullMethod, code string, elapsed time.Duration) {
	service, method := SplitMethod(fullMethod)
	c.RPCRequests.WithLabelValues(service, method, code).Inc()
	c.RPCDurations.WithLabelValues(service, method).Observe(elapsed.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *RPCCollector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// SetVehicleCount sets the vehicles gauge.
func (c *RPCCollector) SetVehicleCount(n int) {
	if c == nil || c.Vehicles == nil {
		return
	}
	c.Vehicles.Set(float64(n))
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"). Parts
// that cannot be recovered come back as "unknown".
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"
	path := strings.TrimPrefix(fullMethod, "/")
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return service, method
	}
	svc := path[:slash]
	if i := strings.LastIndexByte(svc, '/'); i >= 0 {
		svc = svc[i+1:]
	}
	if i := strings.LastIndexByte(svc, '.'); i >= 0 {
		svc = svc[i+1:]
	}
	if svc != "" {
		service = svc
	}
	if m := path[slash+1:]; m != "" {
		method = m
	}
	return service, method
}
