package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/observability"
	"github.com/signalsfoundry/aerostab/model"
)

// Config holds all configuration for the CLIs and the analysis server.
type Config struct {
	// Finite-difference steps.
	DeltaAngle   float64 `env:"AERO_DELTA_ANGLE,default=0.01"`
	DeltaSpeed   float64 `env:"AERO_DELTA_SPEED,default=0.1"`
	DeltaRate    float64 `env:"AERO_DELTA_RATE,default=0.01"`
	DeltaControl float64 `env:"AERO_DELTA_CONTROL,default=0.017453292519943295"`
	DeltaCG      float64 `env:"AERO_DELTA_CG,default=0.1"`

	// Transonic blend band.
	HSubMin float64 `env:"AERO_HSUB_MIN,default=0.85"`
	HSubMax float64 `env:"AERO_HSUB_MAX,default=0.95"`
	HSupMin float64 `env:"AERO_HSUP_MIN,default=1.05"`
	HSupMax float64 `env:"AERO_HSUP_MAX,default=1.25"`

	// Controls is "all", "none" or a comma-separated list of families.
	Controls string `env:"AERO_CONTROLS,default=all"`

	UseSurrogates bool   `env:"AERO_USE_SURROGATES,default=false"`
	TablesPath    string `env:"AERO_TABLES"`

	Parallelism       int           `env:"AERO_PARALLELISM,default=1"`
	CacheSize         int           `env:"AERO_CACHE_SIZE,default=1024"`
	CacheTTL          time.Duration `env:"AERO_CACHE_TTL,default=10m"`
	SpanwiseVortices  int           `env:"AERO_SPANWISE_VORTICES,default=16"`
	ChordwiseVortices int           `env:"AERO_CHORDWISE_VORTICES,default=4"`

	// Reference drag build-up.
	MiscDragFraction float64 `env:"AERO_MISC_DRAG_FRACTION,default=0.05"`
	CoolingDrag      float64 `env:"AERO_COOLING_DRAG,default=0"`
	SpoilerDrag      float64 `env:"AERO_SPOILER_DRAG,default=0"`
	KornFactor       float64 `env:"AERO_KORN_FACTOR,default=0.95"`

	// Server configuration
	GRPCAddr    string `env:"AERO_GRPC_ADDR,default=:50051"`
	HTTPAddr    string `env:"AERO_HTTP_ADDR,default=:8080"`
	MetricsAddr string `env:"AERO_METRICS_ADDR,default=:9090"`
	CORSOrigins string `env:"AERO_CORS_ORIGINS,default=*"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
	LogFile   string `env:"LOG_FILE"`

	Tracing observability.TracingConfig `env:",prefix=AERO_TRACING_"`
}

// Load reads configuration from the environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting the analysis could not run with. Errors
// match core.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.Perturbations().Validate(); err != nil {
		return err
	}
	if err := c.Blend().Validate(); err != nil {
		return err
	}
	if _, err := c.ControlFamilies(); err != nil {
		return err
	}
	if c.UseSurrogates && strings.TrimSpace(c.TablesPath) == "" {
		return invalid("AERO_TABLES", "surrogate mode needs a table file")
	}
	if c.Parallelism < 1 {
		return invalid("AERO_PARALLELISM", fmt.Sprintf("must be at least 1, got %d", c.Parallelism))
	}
	if c.CacheSize < 0 {
		return invalid("AERO_CACHE_SIZE", fmt.Sprintf("must not be negative, got %d", c.CacheSize))
	}
	if c.SpanwiseVortices < 1 || c.ChordwiseVortices < 1 {
		return invalid("AERO_SPANWISE_VORTICES", "lattice needs at least one vortex in each direction")
	}
	if c.MiscDragFraction < 0 || c.CoolingDrag < 0 || c.SpoilerDrag < 0 {
		return invalid("AERO_MISC_DRAG_FRACTION", "drag increments must not be negative")
	}
	if c.KornFactor <= 0 {
		return invalid("AERO_KORN_FACTOR", fmt.Sprintf("must be positive, got %g", c.KornFactor))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("LOG_LEVEL", err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != "text" && f != "json" {
		return invalid("LOG_FORMAT", fmt.Sprintf("must be text or json, got %q", c.LogFormat))
	}
	if err := c.Tracing.Validate(); err != nil {
		return invalid("AERO_TRACING_EXPORTER", err.Error())
	}
	return nil
}

func invalid(field, reason string) error {
	return &core.ConfigError{Field: field, Reason: reason}
}

// Perturbations returns the finite-difference steps.
func (c *Config) Perturbations() core.Perturbations {
	return core.Perturbations{
		DeltaAngle:   c.DeltaAngle,
		DeltaSpeed:   c.DeltaSpeed,
		DeltaRate:    c.DeltaRate,
		DeltaControl: c.DeltaControl,
		DeltaCG:      c.DeltaCG,
	}
}

// Blend returns the regime boundaries.
func (c *Config) Blend() core.BlendBoundaries {
	return core.BlendBoundaries{HSubMin: c.HSubMin, HSubMax: c.HSubMax, HSupMin: c.HSupMin, HSupMax: c.HSupMax}
}

// ControlFamilies parses Controls.
func (c *Config) ControlFamilies() ([]model.ControlSurfaceKind, error) {
	switch strings.ToLower(strings.TrimSpace(c.Controls)) {
	case "", "all":
		return append([]model.ControlSurfaceKind(nil), model.ControlSurfaceKinds...), nil
	case "none":
		return nil, nil
	}
	var kinds []model.ControlSurfaceKind
	for _, part := range strings.Split(c.Controls, ",") {
		k, err := model.ParseControlSurfaceKind(strings.TrimSpace(part))
		if err != nil {
			return nil, invalid("AERO_CONTROLS", err.Error())
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// AnalysisConfig converts c into an engine configuration. set is required
// when UseSurrogates is on. Direct mode uses the analytic adapter behind a
// result cache unless CacheSize is zero.
func (c *Config) AnalysisConfig(set *core.SurrogateSet) (core.AnalysisConfig, error) {
	families, err := c.ControlFamilies()
	if err != nil {
		return core.AnalysisConfig{}, err
	}
	var adapter core.PanelMethodAdapter = core.AnalyticAdapter{}
	if c.CacheSize > 0 {
		adapter = core.NewCachingAdapter(adapter, c.CacheSize, c.CacheTTL)
	}
	return core.AnalysisConfig{
		Perturbations: c.Perturbations(),
		Blend:         c.Blend(),
		Controls:      families,
		UseSurrogates: c.UseSurrogates,
		Surrogates:    set,
		Adapter:       adapter,
		Solver: core.SolverSettings{
			SpanwiseVortices:  c.SpanwiseVortices,
			ChordwiseVortices: c.ChordwiseVortices,
		},
		Drag: core.DefaultDragStages(core.DragOptions{
			MiscellaneousFraction: c.MiscDragFraction,
			CoolingDrag:           c.CoolingDrag,
			SpoilerDrag:           c.SpoilerDrag,
			KornFactor:            c.KornFactor,
		}),
		Parallelism: c.Parallelism,
	}, nil
}

// Logging returns the logger settings for the named component.
func (c *Config) Logging(component string) logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile, Component: component}
}
