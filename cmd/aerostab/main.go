// Command aerostab evaluates a vehicle at one flight condition, or along a
// sweep, and prints coefficients, stability derivatives and the neutral
// point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/internal/config"
	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/service"
	"github.com/signalsfoundry/aerostab/internal/tables"
	"github.com/signalsfoundry/aerostab/kb"
	"github.com/signalsfoundry/aerostab/sweep"
)

type options struct {
	VehiclePath  string
	VehicleID    string
	TablesPath   string
	Mach         float64
	AlphaDeg     float64
	BetaDeg      float64
	Altitude     float64
	Derivatives  bool
	NeutralPoint bool
	SweepVar     string
	SweepFrom    float64
	SweepTo      float64
	SweepStep    float64
	Dump         bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("aerostab", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.VehiclePath, "vehicle", "configs/vehicles.json", "path to a JSON vehicle definition")
	fs.StringVar(&o.VehicleID, "vehicle-id", "", "vehicle to analyse (default: first in the file)")
	fs.StringVar(&o.TablesPath, "tables", "", "surrogate table file (.json or .msgpack.zst); enables surrogate mode")
	fs.Float64Var(&o.Mach, "mach", 0.5, "free-stream Mach number")
	fs.Float64Var(&o.AlphaDeg, "alpha-deg", 2, "angle of attack in degrees")
	fs.Float64Var(&o.BetaDeg, "beta-deg", 0, "sideslip angle in degrees")
	fs.Float64Var(&o.Altitude, "altitude", 3000, "geometric altitude in metres")
	fs.BoolVar(&o.Derivatives, "derivatives", false, "compute stability and control derivatives")
	fs.BoolVar(&o.NeutralPoint, "neutral-point", false, "estimate the stick-fixed neutral point")
	fs.StringVar(&o.SweepVar, "sweep-var", "", "sweep variable: alpha, beta, mach or altitude (angles in degrees)")
	fs.Float64Var(&o.SweepFrom, "sweep-from", 0, "first sweep value")
	fs.Float64Var(&o.SweepTo, "sweep-to", 0, "last sweep value")
	fs.Float64Var(&o.SweepStep, "sweep-step", 0.1, "sweep increment")
	fs.BoolVar(&o.Dump, "dump", false, "pretty-print the full result structures instead of JSON")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "aerostab: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if opts.TablesPath != "" {
		cfg.TablesPath = opts.TablesPath
		cfg.UseSurrogates = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cfg, stderr)

	var set *core.SurrogateSet
	if cfg.UseSurrogates {
		if set, err = tables.LoadFile(cfg.TablesPath); err != nil {
			return err
		}
	}
	acfg, err := cfg.AnalysisConfig(set)
	if err != nil {
		return err
	}
	analysis, err := core.NewAnalysis(acfg, core.WithLogger(log))
	if err != nil {
		return err
	}

	store := kb.NewKnowledgeBase()
	vehicleID, err := loadVehicles(store, opts.VehiclePath, opts.VehicleID)
	if err != nil {
		return err
	}
	svc := service.New(analysis, store, log)

	spec := service.ConditionSpec{
		Altitude: opts.Altitude,
		Mach:     opts.Mach,
		Alpha:    deg2rad(opts.AlphaDeg),
		Beta:     deg2rad(opts.BetaDeg),
	}
	out := newPrinter(stdout, opts.Dump)

	if opts.SweepVar != "" {
		return runSweep(ctx, analysis, store, vehicleID, spec, opts, out)
	}

	req := service.Request{VehicleID: vehicleID, Condition: spec}
	switch {
	case opts.Derivatives:
		res, err := svc.Derivatives(ctx, req)
		if err != nil {
			return err
		}
		return out.print(res, derivativesDocument(res))
	case opts.NeutralPoint:
		res, err := svc.NeutralPoint(ctx, req)
		if err != nil {
			return err
		}
		return out.print(res, neutralPointDocument(res))
	default:
		res, err := svc.Evaluate(ctx, req)
		if err != nil {
			return err
		}
		return out.print(res, evaluationDocument(res))
	}
}

func newLogger(cfg *config.Config, stderr io.Writer) logging.Logger {
	if cfg.LogFile != "" {
		return logging.New(cfg.Logging("aerostab"))
	}
	// stdout carries the results.
	return logging.NewWithWriter(cfg.Logging("aerostab"), stderr)
}

func loadVehicles(store *kb.KnowledgeBase, path, id string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open vehicle file: %w", err)
	}
	defer f.Close()
	ids, err := core.LoadVehicles(store, f)
	if err != nil {
		return "", err
	}
	if id == "" {
		if len(ids) == 0 {
			return "", fmt.Errorf("%s defines no vehicles", path)
		}
		return ids[0], nil
	}
	if _, err := store.GetVehicle(id); err != nil {
		return "", err
	}
	return id, nil
}

// runSweep evaluates every sweep point and prints one JSON record per line.
func runSweep(ctx context.Context, a *core.Analysis, store *kb.KnowledgeBase, vehicleID string, spec service.ConditionSpec, opts options, out *printer) error {
	variable, err := sweep.ParseVariable(opts.SweepVar)
	if err != nil {
		return err
	}
	from, to, step := opts.SweepFrom, opts.SweepTo, opts.SweepStep
	if variable == sweep.Alpha || variable == sweep.Beta {
		from, to, step = deg2rad(from), deg2rad(to), deg2rad(step)
	}
	base, err := spec.Condition()
	if err != nil {
		return err
	}
	ctrl, err := sweep.NewController(base, variable, from, to, step)
	if err != nil {
		return err
	}

	v, err := store.GetVehicle(vehicleID)
	if err != nil {
		return err
	}
	ctrl.AddListener(func(p sweep.Point) error {
		if opts.Derivatives {
			res, err := a.Derivatives(ctx, p.Condition, v)
			if res == nil {
				return err
			}
			return out.line(p, sweepRecord(p, variable, res.Baseline, res))
		}
		ev, err := a.Evaluate(ctx, p.Condition, v)
		if err != nil {
			return err
		}
		return out.line(p, sweepRecord(p, variable, ev, nil))
	})
	return ctrl.Run(ctx)
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }

func rad2deg(r float64) float64 { return r * 180 / math.Pi }
