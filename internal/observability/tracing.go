package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig selects the span exporter. The env tags are read by
// internal/config under the AERO_TRACING_ prefix.
type TracingConfig struct {
	Enabled     bool    `env:"ENABLED,default=false"`
	ServiceName string  `env:"SERVICE_NAME,default=aerostab"`
	Exporter    string  `env:"EXPORTER,default=stdout"` // stdout or otlp
	Endpoint    string  `env:"OTLP_ENDPOINT"`
	SampleRatio float64 `env:"SAMPLE_RATIO,default=1"`
}

type exporterKind int

const (
	exportStdout exporterKind = iota
	exportOTLP
)

func (c TracingConfig) exporter() (exporterKind, error) {
	switch strings.ToLower(strings.TrimSpace(c.Exporter)) {
	case "", "stdout":
		return exportStdout, nil
	case "otlp", "otlpgrpc":
		return exportOTLP, nil
	}
	return 0, fmt.Errorf("unsupported tracing exporter %q", c.Exporter)
}

// Validate checks the exporter name and sample ratio.
func (c TracingConfig) Validate() error {
	if _, err := c.exporter(); err != nil {
		return err
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio %g outside [0, 1]", c.SampleRatio)
	}
	return nil
}

// InitTracing installs the global tracer provider and propagators. attrs are
// added to the resource, e.g. the analysis mode. The returned function
// flushes and stops the exporter.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger, attrs ...attribute.KeyValue) (func(context.Context) error, error) {
	return setupTracing(ctx, cfg, log, os.Stdout, attrs)
}

func setupTracing(ctx context.Context, cfg TracingConfig, log logging.Logger, stdout io.Writer, attrs []attribute.KeyValue) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	kind, err := cfg.exporter()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, kind, cfg.Endpoint, stdout)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "aerostab"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(append([]attribute.KeyValue{
		attribute.String("service.name", name),
		attribute.String("service.namespace", "aerostab"),
	}, attrs...)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", name),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, kind exporterKind, endpoint string, stdout io.Writer) (sdktrace.SpanExporter, error) {
	if kind == exportStdout {
		return stdouttrace.New(
			stdouttrace.WithWriter(stdout),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	}
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	))
}

// ShutdownWithTimeout runs shutdown with a five second budget and logs, but
// does not return, any error.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
