package core

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/aerostab/model"
)

// SolverSettings are passed through to the panel-method solver untouched.
type SolverSettings struct {
	SpanwiseVortices  int `json:"spanwise_vortices" msgpack:"spanwise_vortices"`
	ChordwiseVortices int `json:"chordwise_vortices" msgpack:"chordwise_vortices"`
}

// DefaultSolverSettings returns a moderate lattice density.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{SpanwiseVortices: 16, ChordwiseVortices: 4}
}

// WingLoads are the per-wing outputs of a solver call.
type WingLoads struct {
	Tag          string  `json:"tag" msgpack:"tag"`
	Lift         float64 `json:"lift" msgpack:"lift"`
	Drag         float64 `json:"drag" msgpack:"drag"`
	InducedAlpha float64 `json:"induced_alpha" msgpack:"induced_alpha"`
}

// PanelResult is everything a solver call returns. Moments are about
// Reference.X/Y/Z, not necessarily the vehicle CG.
type PanelResult struct {
	Coefficients model.CoefficientSet `json:"coefficients" msgpack:"coefficients"`
	Reference    model.Reference      `json:"reference" msgpack:"reference"`
	PerWing      []WingLoads          `json:"per_wing,omitempty" msgpack:"per_wing,omitempty"`
}

// PanelMethodAdapter computes raw inviscid coefficients for one flight
// condition and geometry. Implementations must be pure functions of their
// inputs and must not retain state between calls.
type PanelMethodAdapter interface {
	Evaluate(ctx context.Context, cond model.FlightCondition, settings SolverSettings, vehicle model.Vehicle) (PanelResult, error)
}

// AdapterFunc adapts a plain function to PanelMethodAdapter.
type AdapterFunc func(ctx context.Context, cond model.FlightCondition, settings SolverSettings, vehicle model.Vehicle) (PanelResult, error)

func (f AdapterFunc) Evaluate(ctx context.Context, cond model.FlightCondition, settings SolverSettings, vehicle model.Vehicle) (PanelResult, error) {
	return f(ctx, cond, settings, vehicle)
}

// CachingAdapter memoises a pure adapter. Keys are the msgpack encoding of
// the full input; commanded deflections are written as a slice in family
// order so equal inputs produce equal keys.
type CachingAdapter struct {
	next  PanelMethodAdapter
	cache *expirable.LRU[string, PanelResult]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachingAdapter wraps next with an LRU of the given size and TTL.
func NewCachingAdapter(next PanelMethodAdapter, size int, ttl time.Duration) *CachingAdapter {
	if size <= 0 {
		size = 256
	}
	return &CachingAdapter{
		next:  next,
		cache: expirable.NewLRU[string, PanelResult](size, nil, ttl),
	}
}

func (c *CachingAdapter) Evaluate(ctx context.Context, cond model.FlightCondition, settings SolverSettings, vehicle model.Vehicle) (PanelResult, error) {
	key, err := cacheKey(cond, settings, vehicle)
	if err != nil {
		return PanelResult{}, fmt.Errorf("cache key: %w", err)
	}
	if res, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return copyResult(res), nil
	}
	c.misses.Add(1)
	res, err := c.next.Evaluate(ctx, cond, settings, vehicle)
	if err != nil {
		return PanelResult{}, err
	}
	c.cache.Add(key, copyResult(res))
	return res, nil
}

// Stats returns cache hit and miss counts.
func (c *CachingAdapter) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every cached result.
func (c *CachingAdapter) Purge() { c.cache.Purge() }

func copyResult(r PanelResult) PanelResult {
	r.PerWing = slices.Clone(r.PerWing)
	return r
}

// deflectionKey is one commanded deflection in a cache key.
type deflectionKey struct {
	Kind  model.ControlSurfaceKind `msgpack:"k"`
	Value float64                  `msgpack:"v"`
}

func cacheKey(cond model.FlightCondition, settings SolverSettings, vehicle model.Vehicle) (string, error) {
	var controls []deflectionKey
	for _, kind := range model.ControlSurfaceKinds {
		if v, ok := cond.Controls[kind]; ok {
			controls = append(controls, deflectionKey{kind, v})
		}
	}
	cond.Controls = nil

	var buf bytes.Buffer
	payload := struct {
		Condition model.FlightCondition `msgpack:"c"`
		Controls  []deflectionKey       `msgpack:"d"`
		Settings  SolverSettings        `msgpack:"s"`
		Vehicle   model.Vehicle         `msgpack:"v"`
	}{cond, controls, settings, vehicle}
	if err := msgpack.NewEncoder(&buf).Encode(&payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}
