package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/aerostab/model"
)

func testVehicle(id string) model.Vehicle {
	return model.Vehicle{
		ID:        id,
		Name:      "Glider " + id,
		Reference: model.Reference{Area: 16, Span: 15, Chord: 1.1, X: 2.5},
		CG:        model.Vec3{X: 2.5},
		Wings: []model.Wing{
			{
				Tag: "main_wing", Area: 16, Span: 15, MAC: 1.1, Taper: 0.5,
				Origin: model.Vec3{X: 2.2},
				ControlSurfaces: []model.ControlSurface{
					{Tag: "aileron", Kind: model.Aileron, SpanStart: 0.6, SpanEnd: 0.95, ChordFraction: 0.25},
					{Tag: "flap", Kind: model.Flap, SpanStart: 0.1, SpanEnd: 0.6, ChordFraction: 0.3},
				},
			},
			{
				Tag: "horizontal_tail", Area: 2.4, Span: 3.2, MAC: 0.75, Taper: 0.6,
				Origin: model.Vec3{X: 7.0},
				ControlSurfaces: []model.ControlSurface{
					{Tag: "elevator", Kind: model.Elevator, SpanStart: 0, SpanEnd: 1, ChordFraction: 0.35},
				},
			},
		},
	}
}

func TestAddAndGetVehicle(t *testing.T) {
	store := NewKnowledgeBase()
	id, err := store.AddVehicle(testVehicle("v1"))
	if err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}
	if id != "v1" {
		t.Fatalf("AddVehicle id = %q, want v1", id)
	}
	got, err := store.GetVehicle("v1")
	if err != nil {
		t.Fatalf("GetVehicle error: %v", err)
	}
	if got.Name != "Glider v1" {
		t.Fatalf("GetVehicle name = %q, want %q", got.Name, "Glider v1")
	}
}

func TestAddVehicleAssignsID(t *testing.T) {
	store := NewKnowledgeBase()
	id, err := store.AddVehicle(testVehicle(""))
	if err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}
	if id == "" {
		t.Fatalf("AddVehicle returned empty id")
	}
	if _, err := store.GetVehicle(id); err != nil {
		t.Fatalf("GetVehicle(%q) error: %v", id, err)
	}
}

func TestAddVehicleDuplicate(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("first AddVehicle error: %v", err)
	}
	_, err := store.AddVehicle(testVehicle("v1"))
	if !errors.Is(err, ErrVehicleExists) {
		t.Fatalf("duplicate AddVehicle error = %v, want ErrVehicleExists", err)
	}
}

func TestAddVehicleRejectsInvalid(t *testing.T) {
	store := NewKnowledgeBase()
	v := testVehicle("bad")
	v.Wings = nil
	if _, err := store.AddVehicle(v); !errors.Is(err, model.ErrInvalidVehicle) {
		t.Fatalf("AddVehicle error = %v, want ErrInvalidVehicle", err)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	store := NewKnowledgeBase()
	v := testVehicle("v1")
	if _, err := store.AddVehicle(v); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}

	// Mutating the caller's copy or a returned snapshot must not leak in.
	v.Wings[0].ControlSurfaces[0].Deflection = 0.3
	got, _ := store.GetVehicle("v1")
	got.Wings[0].Area = 99
	got.Wings[1].ControlSurfaces[0].Deflection = 0.2

	again, _ := store.GetVehicle("v1")
	if d := again.Wings[0].ControlSurfaces[0].Deflection; d != 0 {
		t.Fatalf("aileron deflection = %v, want 0", d)
	}
	if a := again.Wings[0].Area; a != 16 {
		t.Fatalf("wing area = %v, want 16", a)
	}
	if d := again.Wings[1].ControlSurfaces[0].Deflection; d != 0 {
		t.Fatalf("elevator deflection = %v, want 0", d)
	}
}

func TestPutListDelete(t *testing.T) {
	store := NewKnowledgeBase()
	for i := range 3 {
		created, err := store.PutVehicle(testVehicle(fmt.Sprintf("v-%d", 2-i)))
		if err != nil {
			t.Fatalf("PutVehicle error: %v", err)
		}
		if !created {
			t.Fatalf("PutVehicle created = false for new vehicle")
		}
	}
	updated := testVehicle("v-1")
	updated.Name = "renamed"
	created, err := store.PutVehicle(updated)
	if err != nil || created {
		t.Fatalf("PutVehicle(update) = %v, %v; want false, nil", created, err)
	}

	list := store.ListVehicles()
	if len(list) != 3 {
		t.Fatalf("ListVehicles len=%d, want 3", len(list))
	}
	for i, want := range []string{"v-0", "v-1", "v-2"} {
		if list[i].ID != want {
			t.Fatalf("ListVehicles[%d].ID = %q, want %q", i, list[i].ID, want)
		}
	}
	if list[1].Name != "renamed" {
		t.Fatalf("updated name = %q, want renamed", list[1].Name)
	}

	if err := store.DeleteVehicle("v-1"); err != nil {
		t.Fatalf("DeleteVehicle error: %v", err)
	}
	if err := store.DeleteVehicle("v-1"); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("second DeleteVehicle error = %v, want ErrVehicleNotFound", err)
	}
	if _, err := store.GetVehicle("v-1"); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("GetVehicle after delete error = %v, want ErrVehicleNotFound", err)
	}
	if got := store.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}
}

func TestSubscribe(t *testing.T) {
	store := NewKnowledgeBase()

	var mu sync.Mutex
	var events []EventType
	unsubscribe := store.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Type)
	})

	if _, err := store.AddVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}
	if _, err := store.PutVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("PutVehicle error: %v", err)
	}
	if err := store.DeleteVehicle("v1"); err != nil {
		t.Fatalf("DeleteVehicle error: %v", err)
	}
	unsubscribe()
	if _, err := store.AddVehicle(testVehicle("v2")); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventVehicleAdded, EventVehicleUpdated, EventVehicleDeleted}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}
}

type countRecorder struct {
	mu   sync.Mutex
	last int
}

func (r *countRecorder) SetVehicleCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = n
}

func TestMetricsRecorder(t *testing.T) {
	rec := &countRecorder{}
	store := NewKnowledgeBase(WithMetricsRecorder(rec))
	for _, id := range []string{"a", "b"} {
		if _, err := store.AddVehicle(testVehicle(id)); err != nil {
			t.Fatalf("AddVehicle error: %v", err)
		}
	}
	if err := store.DeleteVehicle("a"); err != nil {
		t.Fatalf("DeleteVehicle error: %v", err)
	}
	if rec.last != 1 {
		t.Fatalf("recorded count = %d, want 1", rec.last)
	}
}

func TestWithDeflectionRestores(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}

	boom := errors.New("solver failed")
	for _, tc := range []struct {
		name    string
		kind    model.ControlSurfaceKind
		fnErr   error
		wantErr error
	}{
		{"aileron ok", model.Aileron, nil, nil},
		{"elevator failing", model.Elevator, boom, boom},
		{"flap ok", model.Flap, nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var seen float64
			err := store.WithDeflection("v1", tc.kind, 0.05, func(v model.Vehicle) error {
				seen = v.SurfacesOf(tc.kind)[0].Deflection
				return tc.fnErr
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("WithDeflection error = %v, want %v", err, tc.wantErr)
			}
			if seen != 0.05 {
				t.Fatalf("deflection seen by callback = %v, want 0.05", seen)
			}
			got, _ := store.GetVehicle("v1")
			for _, kind := range model.ControlSurfaceKinds {
				for _, cs := range got.SurfacesOf(kind) {
					if cs.Deflection != 0 {
						t.Fatalf("%s deflection after restore = %v, want 0", cs.Tag, cs.Deflection)
					}
				}
			}
		})
	}
}

func TestWithDeflectionRestoresAfterPanic(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}
	func() {
		defer func() { _ = recover() }()
		_ = store.WithDeflection("v1", model.Aileron, 0.1, func(model.Vehicle) error {
			panic("solver crashed")
		})
	}()
	got, err := store.GetVehicle("v1")
	if err != nil {
		t.Fatalf("GetVehicle error: %v", err)
	}
	if d := got.SurfacesOf(model.Aileron)[0].Deflection; d != 0 {
		t.Fatalf("aileron deflection = %v, want 0", d)
	}
}

func TestWithDeflectionUnknown(t *testing.T) {
	store := NewKnowledgeBase()
	if _, err := store.AddVehicle(testVehicle("v1")); err != nil {
		t.Fatalf("AddVehicle error: %v", err)
	}
	called := false
	fn := func(model.Vehicle) error { called = true; return nil }
	if err := store.WithDeflection("missing", model.Aileron, 0.1, fn); !errors.Is(err, ErrVehicleNotFound) {
		t.Fatalf("WithDeflection(missing) error = %v, want ErrVehicleNotFound", err)
	}
	if err := store.WithDeflection("v1", model.Rudder, 0.1, fn); err == nil {
		t.Fatalf("expected error for absent rudder family")
	}
	if called {
		t.Fatalf("callback ran despite error")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewKnowledgeBase()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("v-%d", i)
			if _, err := store.AddVehicle(testVehicle(id)); err != nil {
				t.Errorf("AddVehicle(%s) error: %v", id, err)
				return
			}
			_ = store.WithDeflection(id, model.Flap, 0.2, func(model.Vehicle) error { return nil })
			_ = store.ListVehicles()
		}()
	}
	wg.Wait()
	if got := store.Count(); got != 8 {
		t.Fatalf("Count = %d, want 8", got)
	}
}
