package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/model"
)

// AnalysisConfig is everything NewAnalysis validates up front.
type AnalysisConfig struct {
	Perturbations Perturbations
	Blend         BlendBoundaries
	// Controls flags the control-surface families to include.
	Controls []model.ControlSurfaceKind

	// UseSurrogates selects surrogate mode; Surrogates must then be set.
	// Otherwise Adapter is called directly.
	UseSurrogates bool
	Surrogates    *SurrogateSet
	Adapter       PanelMethodAdapter
	Solver        SolverSettings

	// Drag defaults to DefaultDragStages(DefaultDragOptions()).
	Drag map[StageName]DragStage

	// Parallelism bounds concurrent perturbed evaluations. 1 is sequential.
	Parallelism int
}

// DefaultAnalysisConfig returns a direct-mode configuration using the
// analytic adapter.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Perturbations: DefaultPerturbations(),
		Blend:         DefaultBlendBoundaries(),
		Controls:      append([]model.ControlSurfaceKind(nil), model.ControlSurfaceKinds...),
		Adapter:       AnalyticAdapter{},
		Solver:        DefaultSolverSettings(),
		Parallelism:   1,
	}
}

// Results is the outcome of a derivative run. Derivatives may be partial;
// Err explains why.
type Results struct {
	Baseline     *Evaluation
	Derivatives  *model.DerivativeSet
	Raw          *model.DerivativeSet
	NeutralPoint *NeutralPoint
	Families     []model.ControlSurfaceKind
	Evaluations  int
	Err          error
}

// Complete reports whether every channel and active family was filled.
func (r *Results) Complete() bool { return r.Err == nil }

// Analysis wires the evaluator, the estimators and the neutral-point solver.
type Analysis struct {
	cfg        AnalysisConfig
	evaluator  *Evaluator
	stability  *StabilityEstimator
	controls   *ControlSurfaceEstimator
	neutral    *NeutralPointSolver
	log        logging.Logger
	metrics    MetricsRecorder
	onEvaluate []func(*Evaluation)
}

// AnalysisOption customises NewAnalysis.
type AnalysisOption func(*Analysis)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) AnalysisOption {
	return func(a *Analysis) {
		if l != nil {
			a.log = l
		}
	}
}

// WithEngineMetrics attaches an engine metrics recorder.
func WithEngineMetrics(m MetricsRecorder) AnalysisOption {
	return func(a *Analysis) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAnalysis validates cfg and builds the pipeline. Every configuration
// error surfaces here rather than at query time.
func NewAnalysis(cfg AnalysisConfig, opts ...AnalysisOption) (*Analysis, error) {
	a := &Analysis{cfg: cfg, log: logging.Noop(), metrics: noopMetrics{}}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if err := cfg.Perturbations.Validate(); err != nil {
		return nil, err
	}
	blender, err := NewRegimeBlender(cfg.Blend)
	if err != nil {
		return nil, err
	}

	aggOpts := []AggregatorOption{WithActiveFamilies(cfg.Controls...)}
	if cfg.UseSurrogates {
		if cfg.Surrogates == nil {
			return nil, configErr("surrogates", "surrogate mode requires a surrogate set")
		}
		aggOpts = append(aggOpts, WithSurrogates(cfg.Surrogates, blender))
	} else {
		if cfg.Adapter == nil {
			return nil, configErr("adapter", "direct mode requires a panel-method adapter")
		}
		aggOpts = append(aggOpts, WithAdapter(cfg.Adapter, cfg.Solver))
	}
	agg, err := NewAggregator(aggOpts...)
	if err != nil {
		return nil, err
	}

	stages := cfg.Drag
	if stages == nil {
		stages = DefaultDragStages(DefaultDragOptions())
	}
	drag, err := NewDragPipeline(stages)
	if err != nil {
		return nil, err
	}

	if a.evaluator, err = NewEvaluator(agg, drag, WithMetricsRecorder(a.metrics)); err != nil {
		return nil, err
	}
	if a.stability, err = NewStabilityEstimator(a.evaluator, cfg.Perturbations, cfg.Parallelism); err != nil {
		return nil, err
	}
	if a.controls, err = NewControlSurfaceEstimator(a.evaluator, cfg.Perturbations, cfg.Parallelism); err != nil {
		return nil, err
	}
	if a.neutral, err = NewNeutralPointSolver(a.evaluator, cfg.Perturbations); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the validated configuration.
func (a *Analysis) Config() AnalysisConfig { return a.cfg }

// Mode reports whether coefficients come from tables or the adapter.
func (a *Analysis) Mode() Mode { return a.evaluator.agg.Mode() }

// OnEvaluate registers a listener called after every successful point
// evaluation made through Evaluate. Not safe to call concurrently with
// Evaluate.
func (a *Analysis) OnEvaluate(fn func(*Evaluation)) {
	a.onEvaluate = append(a.onEvaluate, fn)
}

// Evaluate runs one point evaluation.
func (a *Analysis) Evaluate(ctx context.Context, cond model.FlightCondition, v model.Vehicle) (*Evaluation, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ev, err := a.evaluator.Evaluate(ctx, cond, v)
	a.metrics.ObservePhase("evaluate", time.Since(start))
	if err != nil {
		a.log.Warn(ctx, "evaluation failed",
			logging.VehicleID(v.ID),
			logging.Float("mach", cond.Mach),
			logging.Err(err),
		)
		return nil, err
	}
	if ev.LowConfidence() {
		a.log.Debug(ctx, "surrogate extrapolated",
			logging.VehicleID(v.ID),
			logging.Int("queries", len(ev.Extrapolated)),
		)
	}
	for _, fn := range a.onEvaluate {
		fn(ev)
	}
	return ev, nil
}

// Derivatives computes the baseline, the eight state-channel derivatives,
// the active control-family derivatives and the neutral point. A non-nil
// Results is returned whenever the baseline succeeds; the error then equals
// Results.Err.
func (a *Analysis) Derivatives(ctx context.Context, eq model.FlightCondition, v model.Vehicle) (_ *Results, err error) {
	ctx, span := startSpan(ctx, "aerostab.Derivatives",
		attribute.String("vehicle_id", v.ID),
		attribute.Float64("mach", eq.Mach),
	)
	defer func() { endSpan(span, err) }()

	log := a.log.With(logging.VehicleID(v.ID))
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		log = log.With(logging.String("request_id", reqID))
	}
	started := time.Now()

	if err := v.Validate(); err != nil {
		return nil, err
	}
	base, err := a.evaluator.Evaluate(ctx, eq, v)
	if err != nil {
		log.Warn(ctx, "baseline evaluation failed", logging.Err(err))
		return nil, fmt.Errorf("baseline: %w", err)
	}
	c0 := base.Coefficients
	families := a.evaluator.agg.ActiveFamilies(v)

	log.Info(ctx, "derivative run started",
		logging.Float("mach", eq.Mach),
		logging.Float("alpha", eq.Alpha),
		logging.Int("channels", len(model.Channels)),
		logging.Int("families", len(families)),
		logging.String("mode", a.Mode().String()),
	)

	res := &Results{
		Baseline:    base,
		Derivatives: model.NewDerivativeSet(),
		Raw:         model.NewDerivativeSet(),
		Families:    families,
		Evaluations: 1,
	}

	var errs []error

	phase := time.Now()
	if err := a.stability.Estimate(ctx, eq, v, c0, res.Derivatives, res.Raw); err != nil {
		errs = append(errs, err)
	}
	res.Evaluations += len(model.Channels)
	a.metrics.ObservePhase("stability", time.Since(phase))

	phase = time.Now()
	if err := a.controls.Estimate(ctx, eq, v, c0, families, res.Derivatives, res.Raw); err != nil {
		errs = append(errs, err)
	}
	res.Evaluations += len(families)
	a.metrics.ObservePhase("controls", time.Since(phase))

	if cmAlpha, ok := res.Raw.Get(model.Alpha, model.CM); ok {
		phase = time.Now()
		np, err := a.neutral.Solve(ctx, eq, v, c0, cmAlpha)
		res.Evaluations++
		a.metrics.ObservePhase("neutral_point", time.Since(phase))
		if err != nil {
			errs = append(errs, fmt.Errorf("neutral point: %w", err))
		} else {
			res.NeutralPoint = np
		}
	}

	if err := res.Derivatives.Complete(families); err != nil {
		errs = append(errs, err)
	}
	res.Err = errors.Join(errs...)

	fields := []logging.Field{
		logging.Int("evaluations", res.Evaluations),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("complete", res.Err == nil),
	}
	if res.NeutralPoint != nil {
		fields = append(fields, logging.Float("static_margin", res.NeutralPoint.StaticMargin))
	}
	if res.Err != nil {
		log.Warn(ctx, "derivative run incomplete", append(fields, logging.Err(res.Err))...)
	} else {
		log.Info(ctx, "derivative run finished", fields...)
	}
	return res, res.Err
}

// NeutralPoint computes the baseline, dCM/dalpha and the neutral point only.
func (a *Analysis) NeutralPoint(ctx context.Context, eq model.FlightCondition, v model.Vehicle) (*NeutralPoint, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	base, err := a.evaluator.Evaluate(ctx, eq, v)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	delta := a.cfg.Perturbations.DeltaAngle
	alpha, err := a.evaluator.Evaluate(ctx, eq.WithChannel(model.Alpha, eq.Alpha+delta), v)
	if err != nil {
		return nil, &ChannelError{Channel: model.Alpha, Err: err}
	}
	slope, err := difference(alpha.Coefficients, base.Coefficients, delta)
	if err != nil {
		return nil, &ChannelError{Channel: model.Alpha, Err: err}
	}
	return a.neutral.Solve(ctx, eq, v, base.Coefficients, slope.CM)
}
