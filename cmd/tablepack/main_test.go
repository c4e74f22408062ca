package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/aerostab/internal/logging"
	"github.com/signalsfoundry/aerostab/internal/tables"
	"github.com/signalsfoundry/aerostab/model"
)

func TestRun_PacksTables(t *testing.T) {
	src, err := os.ReadFile("../../configs/transport_tables.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "transport.json")
	if err := os.WriteFile(in, src, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var logs bytes.Buffer
	log := logging.NewWithWriter(logging.Config{Level: "info", Format: "json"}, &logs)
	if err := run([]string{"-in", in}, &bytes.Buffer{}, log); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := filepath.Join(dir, "transport"+tables.PackedExt)
	packed, err := tables.LoadFile(out)
	if err != nil {
		t.Fatalf("LoadFile(%s): %v", out, err)
	}
	original, err := tables.LoadFile(in)
	if err != nil {
		t.Fatalf("LoadFile(%s): %v", in, err)
	}
	if len(packed.Channels) != len(model.Channels) || len(packed.Surfaces) != len(model.ControlSurfaceKinds) {
		t.Fatalf("packed set has %d channels, %d families", len(packed.Channels), len(packed.Surfaces))
	}
	got := packed.Channels[model.Alpha][model.Lift].Subsonic.Values
	want := original.Channels[model.Alpha][model.Lift].Subsonic.Values
	if got[1][2] != want[1][2] {
		t.Fatalf("alpha lift table = %v, want %v", got, want)
	}

	fi, err := os.Stat(out)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() >= int64(len(src)) {
		t.Fatalf("packed size %d not smaller than JSON %d", fi.Size(), len(src))
	}
	if !strings.Contains(logs.String(), `"msg":"packed surrogate tables"`) {
		t.Fatalf("missing summary log:\n%s", logs.String())
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"reference": {"area": 1, "span": 1, "chord": 1}, "channels": {}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cases := [][]string{
		nil,
		{"-in", filepath.Join(dir, "missing.json")},
		{"-in", bad},
		{"-in", bad, "-out", bad},
	}
	for _, args := range cases {
		if err := run(args, &bytes.Buffer{}, logging.Noop()); err == nil {
			t.Fatalf("run(%v) succeeded, want error", args)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "bad"+tables.PackedExt)); !os.IsNotExist(err) {
		t.Fatalf("a rejected set was written")
	}
}
