package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"math"
	"strings"
	"testing"

	"github.com/signalsfoundry/aerostab/kb"
)

const (
	vehiclesPath = "../../configs/vehicles.json"
	tablesPath   = "../../configs/transport_tables.json"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-vehicle", vehiclesPath}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return doc
}

func TestRun_Evaluate(t *testing.T) {
	out, err := runCLI(t)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	doc := decode(t, out)
	if doc["vehicle_id"] != "transport" || doc["mode"] != "direct" {
		t.Fatalf("header = %v, %v", doc["vehicle_id"], doc["mode"])
	}
	coeffs := doc["coefficients"].(map[string]any)
	if coeffs["lift"].(float64) <= 0 {
		t.Fatalf("lift = %v, want positive at 2 degrees", coeffs["lift"])
	}
	// Ordered output: header, condition, coefficients, drag, flags.
	order := []string{`"vehicle_id"`, `"condition"`, `"coefficients"`, `"lift"`, `"CN"`, `"parasite"`, `"low_confidence"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		if idx <= last {
			t.Fatalf("key %s out of order in:\n%s", key, out)
		}
		last = idx
	}
}

func TestRun_Derivatives(t *testing.T) {
	out, err := runCLI(t, "-vehicle-id", "transport", "-derivatives", "-mach", "0.6")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	doc := decode(t, out)
	if doc["complete"] != true {
		t.Fatalf("complete = %v, errors = %v", doc["complete"], doc["errors"])
	}
	states := doc["derivatives"].(map[string]any)
	if len(states) != 8 {
		t.Fatalf("channels = %d, want 8", len(states))
	}
	if cy := states["alpha"].(map[string]any)["CY"].(float64); cy != 0 {
		t.Fatalf("CY_alpha = %v, want 0", cy)
	}
	if got := len(doc["control_derivatives"].(map[string]any)); got != 5 {
		t.Fatalf("control families = %d, want 5", got)
	}
	if _, ok := doc["neutral_point"]; !ok {
		t.Fatalf("neutral point missing")
	}
	if strings.Index(out, `"alpha"`) > strings.Index(out, `"beta"`) {
		t.Fatalf("channels not in canonical order")
	}
}

func TestRun_Surrogates(t *testing.T) {
	out, err := runCLI(t, "-tables", tablesPath, "-derivatives")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	doc := decode(t, out)
	if doc["mode"] != "surrogate" {
		t.Fatalf("mode = %v, want surrogate", doc["mode"])
	}
	cmAlpha := doc["derivatives"].(map[string]any)["alpha"].(map[string]any)["CM"].(float64)
	if cmAlpha >= 0 {
		t.Fatalf("CM_alpha = %v, want negative", cmAlpha)
	}
}

func TestRun_NeutralPoint(t *testing.T) {
	out, err := runCLI(t, "-neutral-point")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	np := decode(t, out)["neutral_point"].(map[string]any)
	if np["static_margin"].(float64) <= 0 {
		t.Fatalf("static margin = %v", np["static_margin"])
	}
}

func TestRun_Sweep(t *testing.T) {
	out, err := runCLI(t, "-sweep-var", "alpha", "-sweep-from", "0", "-sweep-to", "4", "-sweep-step", "2", "-derivatives")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var records []map[string]any
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		records = append(records, decode(t, sc.Text()))
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3:\n%s", len(records), out)
	}
	for i, rec := range records {
		if want := float64(2 * i); math.Abs(rec["alpha"].(float64)-want) > 1e-9 {
			t.Fatalf("record %d alpha = %v, want %v", i, rec["alpha"], want)
		}
		if _, ok := rec["CM_alpha"]; !ok {
			t.Fatalf("record %d has no CM_alpha", i)
		}
	}
	if records[2]["lift"].(float64) <= records[0]["lift"].(float64) {
		t.Fatalf("lift does not grow with alpha: %v -> %v", records[0]["lift"], records[2]["lift"])
	}

	out, err = runCLI(t, "-sweep-var", "mach", "-sweep-from", "0.3", "-sweep-to", "0.5", "-sweep-step", "0.1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 3 {
		t.Fatalf("mach sweep lines = %d, want 3", n)
	}
}

func TestRun_Dump(t *testing.T) {
	out, err := runCLI(t, "-dump")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "transport") {
		t.Fatalf("dump output missing the vehicle id:\n%s", out)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := runCLI(t, "-vehicle-id", "nope"); !errors.Is(err, kb.ErrVehicleNotFound) {
		t.Fatalf("unknown vehicle error = %v, want ErrVehicleNotFound", err)
	}
	if _, err := runCLI(t, "-help"); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("-help error = %v, want flag.ErrHelp", err)
	}
	cases := [][]string{
		{"-vehicle", "missing.json"},
		{"-sweep-var", "flap"},
		{"-sweep-var", "mach", "-sweep-step", "0"},
		{"-tables", "missing.json"},
		{"-mach", "-1"},
		{"stray"},
	}
	for _, args := range cases {
		if _, err := runCLI(t, args...); err == nil {
			t.Fatalf("run(%v) succeeded, want error", args)
		}
	}
}

func TestRun_ConfigFromEnv(t *testing.T) {
	t.Setenv("AERO_PARALLELISM", "0")
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"-vehicle", vehiclesPath}, &stdout, &stderr); err == nil {
		t.Fatalf("run accepted AERO_PARALLELISM=0")
	}
}
