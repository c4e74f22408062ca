package main

import (
	"encoding/json"
	"io"

	"github.com/goforj/godump"
	"github.com/iancoleman/orderedmap"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/model"
	"github.com/signalsfoundry/aerostab/sweep"
)

// printer writes either ordered JSON documents or godump output.
type printer struct {
	w    io.Writer
	dump bool
}

func newPrinter(w io.Writer, dump bool) *printer {
	return &printer{w: w, dump: dump}
}

func (p *printer) print(raw any, doc *orderedmap.OrderedMap) error {
	if p.dump {
		godump.Fdump(p.w, raw)
		return nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// line writes one compact record, for sweeps.
func (p *printer) line(pt sweep.Point, doc *orderedmap.OrderedMap) error {
	if p.dump {
		godump.Fdump(p.w, pt)
		return nil
	}
	return json.NewEncoder(p.w).Encode(doc)
}

func coefficients(cs model.CoefficientSet) *orderedmap.OrderedMap {
	om := orderedmap.New()
	for _, c := range model.Coefficients {
		om.Set(c.String(), cs.Get(c))
	}
	return om
}

func conditionDocument(cond model.FlightCondition) *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("altitude", cond.Altitude)
	om.Set("mach", cond.Mach)
	om.Set("alpha_deg", rad2deg(cond.Alpha))
	om.Set("beta_deg", rad2deg(cond.Beta))
	om.Set("airspeed", cond.Airspeed())
	om.Set("dynamic_pressure", cond.DynamicPressure())
	return om
}

func dragDocument(dc *core.DragConditions) *orderedmap.OrderedMap {
	om := orderedmap.New()
	if dc == nil {
		return om
	}
	om.Set("parasite", dc.ParasiteTotal)
	om.Set("induced", dc.Induced)
	om.Set("cooling", dc.Cooling)
	om.Set("compressibility", dc.Compressibility)
	om.Set("miscellaneous", dc.Miscellaneous)
	om.Set("spoiler", dc.Spoiler)
	om.Set("total", dc.Total)
	return om
}

func evaluationDocument(res *service.EvaluationResult) *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("vehicle_id", res.VehicleID)
	om.Set("mode", res.Mode)
	om.Set("condition", conditionDocument(res.Condition))
	om.Set("coefficients", coefficients(res.Coefficients))
	om.Set("drag", dragDocument(res.Drag))
	om.Set("low_confidence", res.LowConfidence)
	return om
}

// derivativeTable lays out d in canonical channel and coefficient order.
func derivativeTable(d *model.DerivativeSet, families []model.ControlSurfaceKind) (*orderedmap.OrderedMap, *orderedmap.OrderedMap) {
	states := orderedmap.New()
	controls := orderedmap.New()
	if d == nil {
		return states, controls
	}
	for _, ch := range model.Channels {
		if _, ok := d.States[ch]; !ok {
			continue
		}
		row := orderedmap.New()
		for _, c := range model.Coefficients {
			v, _ := d.Get(ch, c)
			row.Set(c.String(), v)
		}
		states.Set(ch.String(), row)
	}
	for _, kind := range families {
		if _, ok := d.Controls[kind]; !ok {
			continue
		}
		row := orderedmap.New()
		for _, c := range model.Coefficients {
			v, _ := d.GetControl(kind, c)
			row.Set(c.String(), v)
		}
		controls.Set(kind.String(), row)
	}
	return states, controls
}

func neutralPoint(np *core.NeutralPoint) *orderedmap.OrderedMap {
	if np == nil {
		return nil
	}
	om := orderedmap.New()
	om.Set("x", np.X)
	om.Set("cg", np.CG)
	om.Set("static_margin", np.StaticMargin)
	om.Set("cm_alpha", np.CMAlpha)
	om.Set("cm_alpha_aft", np.CMAlphaAft)
	return om
}

func derivativesDocument(res *service.DerivativesResult) *orderedmap.OrderedMap {
	states, controls := derivativeTable(res.Derivatives, res.Families)
	om := orderedmap.New()
	om.Set("vehicle_id", res.VehicleID)
	om.Set("mode", res.Mode)
	om.Set("complete", res.Complete)
	om.Set("evaluations", res.Evaluations)
	om.Set("baseline", coefficients(res.Baseline))
	om.Set("derivatives", states)
	om.Set("control_derivatives", controls)
	if np := neutralPoint(res.NeutralPoint); np != nil {
		om.Set("neutral_point", np)
	}
	if len(res.Errors) > 0 {
		om.Set("errors", res.Errors)
	}
	return om
}

func neutralPointDocument(res *service.NeutralPointResult) *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("vehicle_id", res.VehicleID)
	om.Set("neutral_point", neutralPoint(res.NeutralPoint))
	return om
}

// sweepRecord flattens one sweep point. res is nil unless derivatives were
// requested.
func sweepRecord(p sweep.Point, variable sweep.Variable, ev *core.Evaluation, res *core.Results) *orderedmap.OrderedMap {
	om := orderedmap.New()
	om.Set("index", p.Index)
	value := p.Value
	if variable == sweep.Alpha || variable == sweep.Beta {
		value = rad2deg(value)
	}
	om.Set(variable.String(), value)
	om.Set("mach", p.Condition.Mach)
	for _, c := range model.Coefficients {
		om.Set(c.String(), ev.Coefficients.Get(c))
	}
	if res == nil {
		return om
	}
	for _, name := range []struct {
		ch model.Channel
		c  model.Coefficient
	}{
		{model.Alpha, model.Lift}, {model.Alpha, model.CM}, {model.Q, model.CM},
		{model.Beta, model.CY}, {model.Beta, model.CL}, {model.Beta, model.CN},
	} {
		if v, ok := res.Derivatives.Get(name.ch, name.c); ok {
			om.Set(name.c.String()+"_"+name.ch.String(), v)
		}
	}
	if res.NeutralPoint != nil {
		om.Set("static_margin", res.NeutralPoint.StaticMargin)
	}
	om.Set("complete", res.Complete())
	return om
}
