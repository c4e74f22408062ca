// Command aerostab-server serves the analysis over gRPC and HTTP, with
// Prometheus metrics on a separate listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/aerorpc"
	"github.com/signalsfoundry/aerostab/internal/config"
	"github.com/signalsfoundry/aerostab/internal/httpapi"
	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/observability"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/internal/tables"
	"github.com/signalsfoundry/aerostab/kb"
)

func main() {
	grpcAddr := flag.String("grpc-addr", "", "TCP address for the gRPC server (default $AERO_GRPC_ADDR)")
	httpAddr := flag.String("http-addr", "", "TCP address for the HTTP API (default $AERO_HTTP_ADDR)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (default $AERO_METRICS_ADDR)")
	vehiclesPath := flag.String("vehicles", "configs/vehicles.json", "JSON vehicle file, or a directory of them, to preload")
	tablesPath := flag.String("tables", "", "surrogate table file; enables surrogate mode")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aerostab-server: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *tablesPath != "" {
		cfg.TablesPath = *tablesPath
		cfg.UseSurrogates = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "aerostab-server: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging("aerostab-server"))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, grpcLis, httpLis, *vehiclesPath); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or a listener fails, then shuts every
// server down.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, grpcLis, httpLis net.Listener, vehiclesPath string) error {
	mode := core.ModeDirect
	if cfg.UseSurrogates {
		mode = core.ModeSurrogate
	}
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log, attribute.String("aerostab.mode", mode.String()))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewRPCCollector(nil)
	if err != nil {
		return fmt.Errorf("rpc metrics: %w", err)
	}
	engine, err := observability.NewEngineCollector(nil)
	if err != nil {
		return fmt.Errorf("engine metrics: %w", err)
	}

	var set *core.SurrogateSet
	if cfg.UseSurrogates {
		if set, err = tables.LoadFile(cfg.TablesPath); err != nil {
			return err
		}
		log.Info(ctx, "loaded surrogate tables", logging.String("path", cfg.TablesPath))
	}
	acfg, err := cfg.AnalysisConfig(set)
	if err != nil {
		return err
	}
	analysis, err := core.NewAnalysis(acfg, core.WithLogger(log), core.WithEngineMetrics(engine))
	if err != nil {
		return err
	}

	store := kb.NewKnowledgeBase(kb.WithMetricsRecorder(collector))
	defer watchVehicles(store, acfg.Adapter, log)()
	loadVehicles(ctx, log, store, vehiclesPath)
	svc := service.New(analysis, store, log)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			aerorpc.RequestIDUnaryServerInterceptor(log),
			aerorpc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	aerorpc.Register(grpcServer, aerorpc.NewServer(svc, log))

	httpServer := &http.Server{
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			AllowedOrigins: splitOrigins(cfg.CORSOrigins),
			Metrics:        collector.Handler(),
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	serveErr := make(chan error, 2)
	log.Info(ctx, "starting gRPC server", logging.String("addr", grpcLis.Addr().String()), logging.String("mode", analysis.Mode().String()))
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			serveErr <- fmt.Errorf("grpc: %w", err)
		}
	}()
	log.Info(ctx, "starting HTTP server", logging.String("addr", httpLis.Addr().String()))
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	log.Info(context.Background(), "shutting down analysis server")
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "HTTP shutdown failed", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

// watchVehicles logs knowledge-base changes and drops cached solver results
// once a vehicle is replaced or removed. It returns the unsubscribe func.
func watchVehicles(store *kb.KnowledgeBase, adapter core.PanelMethodAdapter, log logging.Logger) func() {
	cache, _ := adapter.(*core.CachingAdapter)
	return store.Subscribe(func(ev kb.Event) {
		log.Debug(context.Background(), "vehicle changed",
			logging.VehicleID(ev.Vehicle.ID),
			logging.String("event", ev.Type.String()),
		)
		if cache != nil && ev.Type != kb.EventVehicleAdded {
			cache.Purge()
		}
	})
}

func serveMetrics(addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// loadVehicles preloads path, a file or a directory of *.json files.
// Failures are logged and skipped.
func loadVehicles(ctx context.Context, log logging.Logger, store *kb.KnowledgeBase, path string) {
	if path == "" {
		return
	}
	files := []string{path}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		files, _ = filepath.Glob(filepath.Join(path, "*.json"))
		sort.Strings(files)
	}

	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			log.Warn(ctx, "skipping vehicle load", logging.String("path", file), logging.Err(err))
			continue
		}
		ids, err := core.LoadVehicles(store, f)
		f.Close()
		if err != nil {
			log.Warn(ctx, "failed to load vehicles", logging.String("path", file), logging.Err(err))
			continue
		}
		log.Info(ctx, "loaded vehicles",
			logging.String("path", file),
			logging.Int("count", len(ids)),
		)
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
