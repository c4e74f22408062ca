package kb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/aerostab/model"
)

var (
	// ErrVehicleExists is returned when adding a vehicle whose ID is taken.
	ErrVehicleExists = errors.New("vehicle already exists")
	// ErrVehicleNotFound is returned for unknown vehicle IDs.
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventVehicleAdded EventType = iota
	EventVehicleUpdated
	EventVehicleDeleted
)

func (t EventType) String() string {
	switch t {
	case EventVehicleAdded:
		return "added"
	case EventVehicleUpdated:
		return "updated"
	case EventVehicleDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted to subscribers after a change. Vehicle is a snapshot.
type Event struct {
	Type    EventType
	Vehicle model.Vehicle
}

// MetricsRecorder receives the stored-vehicle count after every change.
type MetricsRecorder interface {
	SetVehicleCount(n int)
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithMetricsRecorder attaches an optional recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(kb *KnowledgeBase) {
		kb.metrics = m
	}
}

// KnowledgeBase is an in-memory, thread-safe vehicle store. Vehicles go in
// and come out as deep copies, so callers never share geometry with it.
type KnowledgeBase struct {
	mu sync.RWMutex

	vehicles map[string]*model.Vehicle

	subs    map[int]func(Event)
	nextSub int
	metrics MetricsRecorder
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		vehicles: make(map[string]*model.Vehicle),
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	return kb
}

// AddVehicle stores a copy of v, assigning a random ID when v.ID is empty,
// and returns the ID used.
func (kb *KnowledgeBase) AddVehicle(v model.Vehicle) (string, error) {
	if strings.TrimSpace(v.ID) == "" {
		v.ID = uuid.NewString()
	}
	if err := v.Validate(); err != nil {
		return "", err
	}
	stored := v.Clone()

	kb.mu.Lock()
	if _, exists := kb.vehicles[v.ID]; exists {
		kb.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrVehicleExists, v.ID)
	}
	kb.vehicles[v.ID] = &stored
	subs, n := kb.changedLocked()
	kb.mu.Unlock()

	kb.notify(subs, n, Event{Type: EventVehicleAdded, Vehicle: stored.Clone()})
	return v.ID, nil
}

// PutVehicle inserts or replaces v and reports whether it was created.
func (kb *KnowledgeBase) PutVehicle(v model.Vehicle) (created bool, err error) {
	if err := v.Validate(); err != nil {
		return false, err
	}
	stored := v.Clone()

	kb.mu.Lock()
	_, exists := kb.vehicles[v.ID]
	kb.vehicles[v.ID] = &stored
	subs, n := kb.changedLocked()
	kb.mu.Unlock()

	typ := EventVehicleUpdated
	if !exists {
		typ = EventVehicleAdded
	}
	kb.notify(subs, n, Event{Type: typ, Vehicle: stored.Clone()})
	return !exists, nil
}

// GetVehicle returns a deep copy of the stored vehicle.
func (kb *KnowledgeBase) GetVehicle(id string) (model.Vehicle, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	v, ok := kb.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	return v.Clone(), nil
}

// ListVehicles returns copies of every vehicle ordered by ID.
func (kb *KnowledgeBase) ListVehicles() []model.Vehicle {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Vehicle, 0, len(kb.vehicles))
	for _, v := range kb.vehicles {
		res = append(res, v.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// DeleteVehicle removes a vehicle.
func (kb *KnowledgeBase) DeleteVehicle(id string) error {
	kb.mu.Lock()
	v, ok := kb.vehicles[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	delete(kb.vehicles, id)
	subs, n := kb.changedLocked()
	kb.mu.Unlock()

	kb.notify(subs, n, Event{Type: EventVehicleDeleted, Vehicle: *v})
	return nil
}

// Count returns the number of stored vehicles.
func (kb *KnowledgeBase) Count() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.vehicles)
}

// WithDeflection sets every surface of a family on the stored vehicle to
// deflection, calls fn with a copy of the deflected vehicle and restores
// the previous deflections, even when fn fails or panics. The write lock
// is held throughout, so no reader observes the deflected state. fn must
// not call back into the KB.
func (kb *KnowledgeBase) WithDeflection(id string, kind model.ControlSurfaceKind, deflection float64, fn func(model.Vehicle) error) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	v, ok := kb.vehicles[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVehicleNotFound, id)
	}
	if !v.HasFamily(kind) {
		return fmt.Errorf("vehicle %q has no %s surfaces", id, kind)
	}

	type slot struct{ wing, surface int }
	saved := make(map[slot]float64)
	for i := range v.Wings {
		for j, cs := range v.Wings[i].ControlSurfaces {
			if cs.Kind == kind {
				saved[slot{i, j}] = cs.Deflection
			}
		}
	}
	defer func() {
		for s, d := range saved {
			v.Wings[s.wing].ControlSurfaces[s.surface].Deflection = d
		}
	}()

	v.SetDeflection(kind, deflection)
	return fn(v.Clone())
}

// Subscribe registers a callback for KB events. It returns an unsubscribe
// function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// changedLocked snapshots subscribers and the vehicle count. Callers hold
// the write lock.
func (kb *KnowledgeBase) changedLocked() ([]func(Event), int) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs, len(kb.vehicles)
}

// notify runs outside the lock so subscribers may call back into the KB.
func (kb *KnowledgeBase) notify(subs []func(Event), count int, ev Event) {
	if kb.metrics != nil {
		kb.metrics.SetVehicleCount(count)
	}
	for _, sub := range subs {
		sub(ev)
	}
}
