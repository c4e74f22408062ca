package core

import "math"

// BlendBoundaries are the four Mach numbers delimiting the regime splines.
// The subsonic weight falls from 1 to 0 across [HSubMin, HSubMax]; the
// supersonic weight rises from 0 to 1 across [HSupMin, HSupMax].
type BlendBoundaries struct {
	HSubMin float64 `json:"hsub_min"`
	HSubMax float64 `json:"hsub_max"`
	HSupMin float64 `json:"hsup_min"`
	HSupMax float64 `json:"hsup_max"`
}

// DefaultBlendBoundaries returns the usual transonic band.
func DefaultBlendBoundaries() BlendBoundaries {
	return BlendBoundaries{HSubMin: 0.85, HSubMax: 0.95, HSupMin: 1.05, HSupMax: 1.25}
}

// Validate rejects boundaries that would let the weights sum above one.
func (b BlendBoundaries) Validate() error {
	for name, v := range map[string]float64{
		"hsub_min": b.HSubMin, "hsub_max": b.HSubMax,
		"hsup_min": b.HSupMin, "hsup_max": b.HSupMax,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return configErr(name, "must be a finite, non-negative Mach number, got %g", v)
		}
	}
	if b.HSubMin >= b.HSubMax {
		return configErr("hsub_min", "must be below hsub_max (%g >= %g)", b.HSubMin, b.HSubMax)
	}
	if b.HSupMin >= b.HSupMax {
		return configErr("hsup_min", "must be below hsup_max (%g >= %g)", b.HSupMin, b.HSupMax)
	}
	if b.HSubMax > b.HSupMin {
		return configErr("hsub_max", "must not exceed hsup_min (%g > %g)", b.HSubMax, b.HSupMin)
	}
	return nil
}

// BlendWeights are the three regime weights at one Mach number.
type BlendWeights struct {
	Subsonic   float64
	Transonic  float64
	Supersonic float64
}

// RegimeBlender mixes subsonic, transonic and supersonic values into one
// value continuous in Mach.
type RegimeBlender struct {
	b BlendBoundaries
}

// NewRegimeBlender validates the boundaries once, at construction.
func NewRegimeBlender(b BlendBoundaries) (*RegimeBlender, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &RegimeBlender{b: b}, nil
}

// Boundaries returns the configured boundaries.
func (rb *RegimeBlender) Boundaries() BlendBoundaries { return rb.b }

// smoothStep is the cubic 3t^2 - 2t^3 on t clamped to [0, 1].
func smoothStep(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t * t * (3 - 2*t)
}

// HSub is the subsonic weight: 1 below HSubMin, 0 above HSubMax.
func (rb *RegimeBlender) HSub(mach float64) float64 {
	return 1 - smoothStep((mach-rb.b.HSubMin)/(rb.b.HSubMax-rb.b.HSubMin))
}

// HSup is the supersonic weight: 0 below HSupMin, 1 above HSupMax.
func (rb *RegimeBlender) HSup(mach float64) float64 {
	return smoothStep((mach - rb.b.HSupMin) / (rb.b.HSupMax - rb.b.HSupMin))
}

// Weights returns all three weights. They sum to one.
func (rb *RegimeBlender) Weights(mach float64) BlendWeights {
	sub := rb.HSub(mach)
	sup := rb.HSup(mach)
	return BlendWeights{Subsonic: sub, Transonic: 1 - sub - sup, Supersonic: sup}
}

// Blend returns h_sub*sub + (1-h_sub-h_sup)*trans + h_sup*sup. Terms with
// zero weight are skipped, so a NaN in an inactive regime cannot leak in.
func (rb *RegimeBlender) Blend(sub, trans, sup, mach float64) float64 {
	return rb.Weights(mach).Apply(sub, trans, sup)
}

// Apply combines three regime values with these weights.
func (w BlendWeights) Apply(sub, trans, sup float64) float64 {
	var v float64
	if w.Subsonic != 0 {
		v += w.Subsonic * sub
	}
	if w.Transonic != 0 {
		v += w.Transonic * trans
	}
	if w.Supersonic != 0 {
		v += w.Supersonic * sup
	}
	return v
}
