package aerorpc

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/observability"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/kb"
	"github.com/signalsfoundry/aerostab/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type rpcTestEnv struct {
	ctx       context.Context
	client    *Client
	conn      *grpc.ClientConn
	store     *kb.KnowledgeBase
	collector *observability.RPCCollector
}

func newRPCTestEnv(t *testing.T) *rpcTestEnv {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)

	collector, err := observability.NewRPCCollector(prometheus.NewRegistry())
	if err != nil {
		cancel()
		t.Fatalf("NewRPCCollector: %v", err)
	}
	store := kb.NewKnowledgeBase(kb.WithMetricsRecorder(collector))
	f, err := os.Open("../../configs/vehicles.json")
	if err != nil {
		cancel()
		t.Fatalf("open vehicles: %v", err)
	}
	defer f.Close()
	if _, err := core.LoadVehicles(store, f); err != nil {
		cancel()
		t.Fatalf("LoadVehicles: %v", err)
	}
	analysis, err := core.NewAnalysis(core.DefaultAnalysisConfig())
	if err != nil {
		cancel()
		t.Fatalf("NewAnalysis: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(logging.Noop()),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	Register(srv, NewServer(service.New(analysis, store, logging.Noop()), logging.Noop()))
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(RequestIDUnaryClientInterceptor()),
	)
	if err != nil {
		cancel()
		t.Fatalf("grpc.NewClient: %v", err)
	}

	t.Cleanup(func() {
		srv.GracefulStop()
		_ = conn.Close()
		cancel()
	})
	return &rpcTestEnv{ctx: ctx, client: NewClient(conn), conn: conn, store: store, collector: collector}
}

func cruiseRequest(id string) service.Request {
	return service.Request{
		VehicleID: id,
		Condition: service.ConditionSpec{Altitude: 3000, Mach: 0.5, Alpha: 0.03},
	}
}

func TestServer_Evaluate(t *testing.T) {
	env := newRPCTestEnv(t)

	res, err := env.client.Evaluate(env.ctx, cruiseRequest("transport"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.VehicleID != "transport" || res.Coefficients.Lift <= 0 {
		t.Fatalf("Evaluate = %+v", res)
	}
	if res.Drag == nil || res.Drag.Total <= res.Drag.Induced {
		t.Fatalf("drag breakdown missing viscous terms: %+v", res.Drag)
	}

	count := testutil.ToFloat64(env.collector.RPCRequests.WithLabelValues("AnalysisService", MethodEvaluate, codes.OK.String()))
	if count != 1 {
		t.Fatalf("rpc counter = %v, want 1", count)
	}
}

func TestServer_ComputeDerivatives(t *testing.T) {
	env := newRPCTestEnv(t)

	res, err := env.client.ComputeDerivatives(env.ctx, cruiseRequest("transport"))
	if err != nil {
		t.Fatalf("ComputeDerivatives: %v", err)
	}
	if !res.Complete || res.Derivatives == nil {
		t.Fatalf("derivatives incomplete: %v", res.Errors)
	}
	cmAlpha, ok := res.Derivatives.Get(model.Alpha, model.CM)
	if !ok || cmAlpha >= 0 {
		t.Fatalf("CM_alpha = %v (present %v), want negative", cmAlpha, ok)
	}
	if _, ok := res.Derivatives.GetControl(model.Elevator, model.CM); !ok {
		t.Fatalf("elevator derivatives missing after the round trip")
	}
	if res.NeutralPoint == nil {
		t.Fatalf("neutral point missing")
	}

	np, err := env.client.NeutralPoint(env.ctx, cruiseRequest("transport"))
	if err != nil {
		t.Fatalf("NeutralPoint: %v", err)
	}
	if np.NeutralPoint.StaticMargin <= 0 {
		t.Fatalf("static margin = %v", np.NeutralPoint.StaticMargin)
	}
}

func TestServer_ErrorCodes(t *testing.T) {
	env := newRPCTestEnv(t)

	if _, err := env.client.Evaluate(env.ctx, cruiseRequest("missing")); status.Code(err) != codes.NotFound {
		t.Fatalf("unknown vehicle code = %v, want NotFound", status.Code(err))
	}
	if _, err := env.client.Evaluate(env.ctx, cruiseRequest("")); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("missing vehicle code = %v, want InvalidArgument", status.Code(err))
	}

	bad := cruiseRequest("transport")
	bad.Condition.Mach = -1
	if _, err := env.client.Evaluate(env.ctx, bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("negative Mach code = %v, want InvalidArgument", status.Code(err))
	}

	// Unknown fields are rejected rather than ignored.
	doc, err := structpb.NewStruct(map[string]any{"vehicle_id": "transport", "condtion": map[string]any{"mach": 0.5}})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	var out structpb.Struct
	err = env.conn.Invoke(env.ctx, fullMethodName(MethodEvaluate), doc, &out)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("misspelt field code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestServer_VehicleLifecycle(t *testing.T) {
	env := newRPCTestEnv(t)

	glider, err := env.client.GetVehicle(env.ctx, "glider")
	if err != nil {
		t.Fatalf("GetVehicle: %v", err)
	}
	glider.ID = "glider-copy"
	put, err := env.client.PutVehicle(env.ctx, glider)
	if err != nil {
		t.Fatalf("PutVehicle: %v", err)
	}
	if !put.Created || put.Vehicle.ID != "glider-copy" {
		t.Fatalf("PutVehicle = %+v", put)
	}
	if got := testutil.ToFloat64(env.collector.Vehicles); got != 3 {
		t.Fatalf("vehicle gauge = %v, want 3", got)
	}

	list, err := env.client.ListVehicles(env.ctx)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListVehicles = %d, %v; want 3", len(list), err)
	}
	if list[0].ID != "glider" || list[1].ID != "glider-copy" || list[2].ID != "transport" {
		t.Fatalf("ListVehicles order = %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	if err := env.client.DeleteVehicle(env.ctx, "glider-copy"); err != nil {
		t.Fatalf("DeleteVehicle: %v", err)
	}
	if _, err := env.client.GetVehicle(env.ctx, "glider-copy"); status.Code(err) != codes.NotFound {
		t.Fatalf("GetVehicle after delete code = %v, want NotFound", status.Code(err))
	}
}

func TestServer_RequestIDPropagation(t *testing.T) {
	env := newRPCTestEnv(t)

	ctx := logging.ContextWithRequestID(env.ctx, "req-7")
	var header metadata.MD
	if _, err := env.client.Evaluate(ctx, cruiseRequest("transport"), grpc.Header(&header)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := firstHeader(header, RequestIDMetadataKey); got != "req-7" {
		t.Fatalf("echoed request id = %q, want req-7", got)
	}

	header = nil
	if _, err := env.client.ListVehicles(env.ctx, grpc.Header(&header)); err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if got := firstHeader(header, RequestIDMetadataKey); got == "" {
		t.Fatalf("server did not generate a request id")
	}
}

func TestServer_NotReady(t *testing.T) {
	s := NewServer(&service.Service{}, nil)
	if _, err := s.ListVehicles(context.Background(), &structpb.Struct{}); status.Code(err) != codes.Unavailable {
		t.Fatalf("ListVehicles code = %v, want Unavailable", status.Code(err))
	}
}
