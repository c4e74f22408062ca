package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/aerostab/model"
)

// StageName identifies one step of the drag build-up.
type StageName string

const (
	StageParasiteWing     StageName = "parasite-wing"
	StageParasiteFuselage StageName = "parasite-fuselage"
	StageParasiteNacelle  StageName = "parasite-nacelle"
	StageParasitePylon    StageName = "parasite-pylon"
	StageParasiteTotal    StageName = "parasite-total"
	StageInduced          StageName = "induced"
	StageCooling          StageName = "cooling"
	StageCompressibility  StageName = "compressibility"
	StageMiscellaneous    StageName = "miscellaneous"
	StageSpoiler          StageName = "spoiler"
	StageTotal            StageName = "total"
)

// DragStageOrder is the fixed execution order of the pipeline.
var DragStageOrder = []StageName{
	StageParasiteWing,
	StageParasiteFuselage,
	StageParasiteNacelle,
	StageParasitePylon,
	StageParasiteTotal,
	StageInduced,
	StageCooling,
	StageCompressibility,
	StageMiscellaneous,
	StageSpoiler,
	StageTotal,
}

// DragConditions is the shared result object every stage reads and fills.
// Per-component maps are keyed by component tag.
type DragConditions struct {
	Condition model.FlightCondition `json:"-"`
	// Inviscid is the aggregated inviscid coefficient set.
	Inviscid model.CoefficientSet `json:"-"`

	ParasiteWing     map[string]float64 `json:"parasite_wing,omitempty"`
	ParasiteFuselage map[string]float64 `json:"parasite_fuselage,omitempty"`
	ParasiteNacelle  map[string]float64 `json:"parasite_nacelle,omitempty"`
	ParasitePylon    map[string]float64 `json:"parasite_pylon,omitempty"`
	ParasiteTotal    float64            `json:"parasite_total"`
	Induced          float64            `json:"induced"`
	Cooling          float64            `json:"cooling"`
	Compressibility  float64            `json:"compressibility"`
	Miscellaneous    float64            `json:"miscellaneous"`
	Spoiler          float64            `json:"spoiler"`
	Total            float64            `json:"total"`
}

// NewDragConditions prepares an empty result object.
func NewDragConditions(cond model.FlightCondition, inviscid model.CoefficientSet) *DragConditions {
	return &DragConditions{
		Condition:        cond,
		Inviscid:         inviscid,
		ParasiteWing:     map[string]float64{},
		ParasiteFuselage: map[string]float64{},
		ParasiteNacelle:  map[string]float64{},
		ParasitePylon:    map[string]float64{},
	}
}

// Viscous is the drag not attributable to induced effects.
func (dc *DragConditions) Viscous() float64 { return dc.Total - dc.Induced }

// DragStage mutates dc in place.
type DragStage func(ctx context.Context, dc *DragConditions, v model.Vehicle) error

// DragPipeline runs every stage once, in DragStageOrder.
type DragPipeline struct {
	stages map[StageName]DragStage
}

// NewDragPipeline rejects a stage set missing any named stage.
func NewDragPipeline(stages map[StageName]DragStage) (*DragPipeline, error) {
	p := &DragPipeline{stages: make(map[StageName]DragStage, len(DragStageOrder))}
	for _, name := range DragStageOrder {
		fn, ok := stages[name]
		if !ok || fn == nil {
			return nil, &ConfigError{
				Field:  "drag." + string(name),
				Reason: "stage missing",
				Err:    ErrMissingDragStage,
			}
		}
		p.stages[name] = fn
	}
	return p, nil
}

// Run executes the stages against dc. Component tags must be unique within
// each kind since the per-component terms are keyed by tag.
func (p *DragPipeline) Run(ctx context.Context, dc *DragConditions, v model.Vehicle) error {
	if err := v.ValidateTags(); err != nil {
		return err
	}
	for _, name := range DragStageOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.stages[name](ctx, dc, v); err != nil {
			return fmt.Errorf("drag stage %s: %w", name, err)
		}
	}
	if math.IsNaN(dc.Total) || math.IsInf(dc.Total, 0) {
		return fmt.Errorf("%w: drag total", ErrNonFinite)
	}
	return nil
}

// DragOptions tunes DefaultDragStages.
type DragOptions struct {
	// MiscellaneousFraction of parasite drag added for excrescences.
	MiscellaneousFraction float64
	// CoolingDrag is a fixed increment for engine cooling flow.
	CoolingDrag float64
	// SpoilerDrag is a fixed increment while spoilers are deployed.
	SpoilerDrag float64
	// KornFactor is the airfoil technology factor for drag divergence.
	KornFactor float64
}

// DefaultDragOptions returns conventional transport values.
func DefaultDragOptions() DragOptions {
	return DragOptions{MiscellaneousFraction: 0.05, KornFactor: 0.95}
}

const (
	// viscousInducedFactor scales parasite drag into lift-dependent
	// viscous drag, K = 0.38*CD0.
	viscousInducedFactor = 0.38
	// pylonFraction of nacelle parasite drag charged to its pylon.
	pylonFraction = 0.2
	minReynolds   = 1e4
)

// DefaultDragStages returns a reference build-up: turbulent flat-plate skin
// friction with form factors, viscous lift-dependent drag on top of the
// inviscid drag, and Lock's fourth-power rise above the critical Mach.
func DefaultDragStages(opts DragOptions) map[StageName]DragStage {
	return map[StageName]DragStage{
		StageParasiteWing: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			for _, w := range v.Wings {
				cf, err := skinFriction(dc.Condition, w.MAC)
				if err != nil {
					return err
				}
				tc := w.ThicknessToChord
				ff := (1 + 2*tc + 100*math.Pow(tc, 4)) * math.Pow(math.Cos(w.Sweep), 0.28)
				swet := w.WettedArea
				if swet <= 0 {
					swet = 2 * (1 + 0.2*tc) * w.Area
				}
				dc.ParasiteWing[w.Tag] = cf * ff * swet / v.Reference.Area
			}
			return nil
		},
		StageParasiteFuselage: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			for _, f := range v.Fuselages {
				cf, err := skinFriction(dc.Condition, f.Length)
				if err != nil {
					return err
				}
				fr := fineness(f.Length, f.EffectiveDiam)
				ff := 1 + 60/math.Pow(fr, 3) + fr/400
				swet := f.WettedArea
				if swet <= 0 {
					swet = 0.8 * math.Pi * f.EffectiveDiam * f.Length
				}
				dc.ParasiteFuselage[f.Tag] = cf * ff * swet / v.Reference.Area
			}
			return nil
		},
		StageParasiteNacelle: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			for _, n := range v.Nacelles {
				cf, err := skinFriction(dc.Condition, n.Length)
				if err != nil {
					return err
				}
				ff := 1 + 0.35/fineness(n.Length, n.Diameter)
				swet := n.WettedArea
				if swet <= 0 {
					swet = math.Pi * n.Diameter * n.Length
				}
				dc.ParasiteNacelle[n.Tag] = cf * ff * swet / v.Reference.Area
			}
			return nil
		},
		StageParasitePylon: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			for _, n := range v.Nacelles {
				if n.HasPylon {
					dc.ParasitePylon[n.Tag] = pylonFraction * dc.ParasiteNacelle[n.Tag]
				}
			}
			return nil
		},
		StageParasiteTotal: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			// Sum in geometry order so repeated runs are bit-identical.
			var total float64
			for _, w := range v.Wings {
				total += dc.ParasiteWing[w.Tag]
			}
			for _, f := range v.Fuselages {
				total += dc.ParasiteFuselage[f.Tag]
			}
			for _, n := range v.Nacelles {
				total += dc.ParasiteNacelle[n.Tag] + dc.ParasitePylon[n.Tag]
			}
			dc.ParasiteTotal = total
			return nil
		},
		StageInduced: func(_ context.Context, dc *DragConditions, _ model.Vehicle) error {
			cl := dc.Inviscid.Lift
			dc.Induced = dc.Inviscid.Drag + viscousInducedFactor*dc.ParasiteTotal*cl*cl
			return nil
		},
		StageCooling: func(_ context.Context, dc *DragConditions, _ model.Vehicle) error {
			dc.Cooling = opts.CoolingDrag
			return nil
		},
		StageCompressibility: func(_ context.Context, dc *DragConditions, v model.Vehicle) error {
			w, ok := v.MainWing()
			if !ok {
				return nil
			}
			mcrit := criticalMach(opts.KornFactor, w, dc.Inviscid.Lift)
			// Lock's rise is a transonic fit; hold its sonic value beyond M=1.
			m := math.Min(dc.Condition.Mach, 1)
			if m > mcrit {
				dc.Compressibility = 20 * math.Pow(m-mcrit, 4) * w.Area / v.Reference.Area
			}
			return nil
		},
		StageMiscellaneous: func(_ context.Context, dc *DragConditions, _ model.Vehicle) error {
			dc.Miscellaneous = opts.MiscellaneousFraction * dc.ParasiteTotal
			return nil
		},
		StageSpoiler: func(_ context.Context, dc *DragConditions, _ model.Vehicle) error {
			dc.Spoiler = opts.SpoilerDrag
			return nil
		},
		StageTotal: func(_ context.Context, dc *DragConditions, _ model.Vehicle) error {
			dc.Total = dc.ParasiteTotal + dc.Induced + dc.Cooling + dc.Compressibility + dc.Miscellaneous + dc.Spoiler
			return nil
		},
	}
}

// skinFriction is the turbulent flat-plate coefficient 0.455/(log10 Re)^2.58
// with the compressible correction.
func skinFriction(cond model.FlightCondition, length float64) (float64, error) {
	atm := cond.Atmosphere
	if atm.Density <= 0 || atm.DynamicViscosity <= 0 {
		return 0, fmt.Errorf("%w: atmosphere is required for Reynolds number", ErrInvalidCondition)
	}
	speed := cond.Airspeed()
	if speed == 0 {
		speed = cond.Mach * atm.SpeedOfSound
	}
	re := math.Max(atm.Density*speed*length/atm.DynamicViscosity, minReynolds)
	cf := 0.455 / math.Pow(math.Log10(re), 2.58)
	return cf / math.Pow(1+0.144*cond.Mach*cond.Mach, 0.65), nil
}

func fineness(length, diameter float64) float64 { return length / diameter }

// criticalMach follows Korn's drag-divergence estimate and Lock's offset.
func criticalMach(korn float64, w model.Wing, cl float64) float64 {
	c := math.Cos(w.Sweep)
	mdd := korn/c - w.ThicknessToChord/(c*c) - cl/(10*c*c*c)
	return mdd - math.Cbrt(0.1/80)
}
