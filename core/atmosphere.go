package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/aerostab/model"
)

// US Standard Atmosphere 1976 constants, SI units.
const (
	seaLevelTemperature = 288.15
	seaLevelPressure    = 101325.0
	lapseRate           = 0.0065
	tropopause          = 11000.0
	tropopausePressure  = 22632.06
	stratosphereTop     = 20000.0
	stratospherePress   = 5474.889
	upperLapseRate      = 0.001
	atmosphereCeiling   = 32000.0
	atmosphereFloor     = -610.0
	gasConstant         = 287.053
	gravity             = 9.80665
	heatRatio           = 1.4

	sutherlandC  = 1.458e-6
	sutherlandS  = 110.4
	tropoPowerFn = gravity / (gasConstant * lapseRate)
)

// StandardAtmosphere returns the 1976 standard atmosphere at a geopotential
// altitude in metres, up to 32 km.
func StandardAtmosphere(altitude float64) (model.Atmosphere, error) {
	if math.IsNaN(altitude) || altitude < atmosphereFloor || altitude > atmosphereCeiling {
		return model.Atmosphere{}, fmt.Errorf("%w: altitude %g m outside standard atmosphere", ErrInvalidCondition, altitude)
	}

	var t, p float64
	switch {
	case altitude <= tropopause:
		t = seaLevelTemperature - lapseRate*altitude
		p = seaLevelPressure * math.Pow(t/seaLevelTemperature, tropoPowerFn)
	case altitude <= stratosphereTop:
		t = seaLevelTemperature - lapseRate*tropopause
		p = tropopausePressure * math.Exp(-gravity/(gasConstant*t)*(altitude-tropopause))
	default:
		t0 := seaLevelTemperature - lapseRate*tropopause
		t = t0 + upperLapseRate*(altitude-stratosphereTop)
		p = stratospherePress * math.Pow(t/t0, -gravity/(gasConstant*upperLapseRate))
	}

	return model.Atmosphere{
		Density:          p / (gasConstant * t),
		Pressure:         p,
		Temperature:      t,
		SpeedOfSound:     math.Sqrt(heatRatio * gasConstant * t),
		DynamicViscosity: sutherlandC * math.Pow(t, 1.5) / (t + sutherlandS),
	}, nil
}

// ConditionAt builds an equilibrium condition in stability axes: U carries
// the true airspeed, V and W are zero, rates and deflections are zero.
func ConditionAt(altitude, mach, alpha, beta float64) (model.FlightCondition, error) {
	atm, err := StandardAtmosphere(altitude)
	if err != nil {
		return model.FlightCondition{}, err
	}
	cond := model.FlightCondition{
		Alpha:      alpha,
		Beta:       beta,
		U:          mach * atm.SpeedOfSound,
		Mach:       mach,
		Altitude:   altitude,
		Atmosphere: atm,
	}
	if err := cond.Validate(); err != nil {
		return model.FlightCondition{}, err
	}
	return cond, nil
}
