package core

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/aerostab/model"
)

// Empirical constants used by AnalyticAdapter.
const (
	// minSupersonicBeta bounds sqrt(M^2-1) away from zero near Mach 1.
	minSupersonicBeta = 0.5
	// slatEffectiveness scales a slat's camber change relative to a flap of
	// the same chord fraction.
	slatEffectiveness = 0.1
	// munkFactor is the fuselage pitch instability per radian.
	munkFactor = 0.5
	// fuselageYawFactor is the fuselage directional instability per radian.
	fuselageYawFactor = 1.3
	// adverseYawFactor couples aileron roll into yaw.
	adverseYawFactor = 0.2
	// finHeightFraction places the fin aerodynamic centre above its root.
	finHeightFraction = 0.4
	// defaultSpanEfficiency applies when a wing leaves SpanEfficiency unset.
	defaultSpanEfficiency = 0.9
)

// AnalyticAdapter is a closed-form lifting-line stand-in for a panel-method
// solver. Each wing gets a Helmbold lift slope with Prandtl-Glauert
// compressibility below Mach 1 and Ackeret above it; tails see the main
// wing's downwash; fins produce side force from local sideslip. Control
// surfaces act through thin-airfoil flap effectiveness. It is accurate
// enough for demos and tests and is a pure function of its inputs.
type AnalyticAdapter struct{}

var _ PanelMethodAdapter = AnalyticAdapter{}

type freestream struct {
	alpha, beta float64
	speed       float64
	// scale is the dynamic-pressure ratio of the local flow to the
	// reference flow.
	scale float64
	mach  float64
}

// freestreamOf reads U, V, W as stability-axis velocities: U is the
// equilibrium airspeed, V and W are gust components that tilt the flow.
func freestreamOf(cond model.FlightCondition) (freestream, error) {
	vinf := cond.Mach * cond.Atmosphere.SpeedOfSound
	speed := cond.Airspeed()
	fs := freestream{alpha: cond.Alpha, beta: cond.Beta, scale: 1, mach: cond.Mach}
	if speed > 0 {
		fs.alpha += math.Atan2(cond.W, math.Abs(cond.U))
		fs.beta += math.Asin(cond.V / speed)
	} else {
		speed = vinf
	}
	if speed <= 0 {
		return freestream{}, fmt.Errorf("%w: airspeed is zero", ErrInvalidCondition)
	}
	if vinf > 0 {
		fs.scale = (speed / vinf) * (speed / vinf)
	}
	fs.speed = speed
	return fs, nil
}

// liftSlope returns the 3-D lift-curve slope per radian.
func liftSlope(ar, sweep, mach float64) float64 {
	if ar <= 0 {
		return 0
	}
	if mach < 1 {
		b2 := 1 - mach*mach
		t := math.Tan(sweep)
		return 2 * math.Pi * ar / (2 + math.Sqrt(4+ar*ar*(b2+t*t)))
	}
	b := math.Max(math.Sqrt(mach*mach-1), minSupersonicBeta)
	tip := math.Max(0.5, 1-1/(2*ar*b))
	return 4 / b * tip
}

// flapEffectiveness is the thin-airfoil tau for a plain flap of chord
// fraction cf.
func flapEffectiveness(cf float64) float64 {
	theta := math.Acos(2*cf - 1)
	return 1 - (theta-math.Sin(theta))/math.Pi
}

func spanEfficiency(w model.Wing) float64 {
	if w.SpanEfficiency > 0 {
		return w.SpanEfficiency
	}
	return defaultSpanEfficiency
}

func mainWingIndex(v model.Vehicle) int {
	best := -1
	for i, w := range v.Wings {
		if w.Vertical {
			continue
		}
		if best < 0 || w.Area > v.Wings[best].Area {
			best = i
		}
	}
	return best
}

// Evaluate implements PanelMethodAdapter.
func (AnalyticAdapter) Evaluate(ctx context.Context, cond model.FlightCondition, _ SolverSettings, v model.Vehicle) (PanelResult, error) {
	if err := ctx.Err(); err != nil {
		return PanelResult{}, err
	}
	if err := v.Validate(); err != nil {
		return PanelResult{}, err
	}
	fs, err := freestreamOf(cond)
	if err != nil {
		return PanelResult{}, err
	}

	ref := v.Reference
	pHat := cond.P * ref.Span / (2 * fs.speed)
	rHat := cond.R * ref.Span / (2 * fs.speed)

	var lift, drag, side, roll, pitch, yaw float64
	perWing := make([]WingLoads, len(v.Wings))

	main := mainWingIndex(v)
	var downwash, mainAC float64
	order := make([]int, 0, len(v.Wings))
	if main >= 0 {
		order = append(order, main)
	}
	for i := range v.Wings {
		if i != main {
			order = append(order, i)
		}
	}

	for _, i := range order {
		w := v.Wings[i]
		e := spanEfficiency(w)
		areaRatio := w.Area / ref.Area
		xac := w.AerodynamicCenter()

		if w.Vertical {
			h := w.Span
			ar := 2 * h * h / w.Area
			a := liftSlope(ar, w.Sweep, fs.mach)
			zac := w.Origin.Z + finHeightFraction*h

			betaLocal := fs.beta - cond.R*(xac-v.CG.X)/fs.speed + cond.P*(zac-v.CG.Z)/fs.speed
			var rudder float64
			for _, cs := range w.ControlSurfaces {
				if cs.Kind == model.Rudder {
					rudder += flapEffectiveness(cs.ChordFraction) * (cs.SpanEnd - cs.SpanStart) * cs.Deflection
				}
			}
			cyLocal := a * (rudder - betaLocal)
			cy := cyLocal * areaRatio * fs.scale
			cdi := cyLocal * cyLocal / (math.Pi * e * ar) * areaRatio * fs.scale

			side += cy
			drag += cdi
			yaw -= cy * (xac - ref.X) / ref.Span
			roll += cy * (zac - ref.Z) / ref.Span
			perWing[i] = WingLoads{Tag: w.Tag, Lift: cy, Drag: cdi, InducedAlpha: cyLocal / (math.Pi * e * ar)}
			continue
		}

		ar := w.AspectRatio()
		a := liftSlope(ar, w.Sweep, fs.mach)
		spanRatio := w.Span / ref.Span
		taper := (1 + 3*w.Taper) / (1 + w.Taper)

		eps := 0.0
		if i != main && xac > mainAC {
			eps = downwash
		}
		alphaLocal := fs.alpha + w.Incidence + cond.Q*(xac-v.CG.X)/fs.speed - eps

		var camber, aileron float64
		for _, cs := range w.ControlSurfaces {
			tau := flapEffectiveness(cs.ChordFraction) * (cs.SpanEnd - cs.SpanStart)
			switch cs.Kind {
			case model.Elevator, model.Flap:
				camber += tau * cs.Deflection
			case model.Slat:
				camber += slatEffectiveness * tau * cs.Deflection
			case model.Aileron:
				ybar := (cs.SpanStart + cs.SpanEnd) / 2 * w.Span / 2
				aileron += tau * cs.Deflection * ybar
			}
		}

		clLocal := a * (alphaLocal + camber)
		cl := clLocal * areaRatio * fs.scale
		cdi := clLocal * clLocal / (math.Pi * e * ar) * areaRatio * fs.scale

		lift += cl
		drag += cdi
		pitch -= cl * (xac - ref.X) / ref.Chord

		rollDamping := -(a / 12) * taper * spanRatio * pHat
		dihedral := -(a * w.Dihedral / 6) * taper * fs.beta
		yawRate := (clLocal / 4) * spanRatio * rHat
		aileronRoll := -a * aileron / ref.Span
		rollW := (rollDamping+dihedral+yawRate)*areaRatio*spanRatio + aileronRoll*areaRatio
		roll += rollW * fs.scale
		yaw += (-(clLocal/8)*spanRatio*pHat*areaRatio*spanRatio - adverseYawFactor*clLocal*aileronRoll*areaRatio) * fs.scale

		perWing[i] = WingLoads{Tag: w.Tag, Lift: cl, Drag: cdi, InducedAlpha: clLocal / (math.Pi * e * ar)}

		if i == main {
			downwash = 2 * clLocal / (math.Pi * ar)
			mainAC = xac
		}
	}

	for _, f := range v.Fuselages {
		d2l := f.EffectiveDiam * f.EffectiveDiam * f.Length
		pitch += munkFactor * d2l / (ref.Area * ref.Chord) * fs.alpha * fs.scale
		vol := math.Pi / 4 * d2l
		yaw -= fuselageYawFactor * vol / (ref.Area * ref.Span) * fs.beta * fs.scale
	}

	sa, ca := math.Sincos(fs.alpha)
	out := model.CoefficientSet{
		Lift: lift,
		Drag: drag,
		CX:   lift*sa - drag*ca,
		CY:   side,
		CZ:   -lift*ca - drag*sa,
		CL:   roll,
		CM:   pitch,
		CN:   yaw,
	}
	if c, bad := out.FirstNonFinite(); bad {
		return PanelResult{}, nonFinite("analytic adapter", c)
	}
	return PanelResult{Coefficients: out, Reference: ref, PerWing: perWing}, nil
}
