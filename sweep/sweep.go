package sweep

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/aerostab/core"
	"github.com/signalsfoundry/aerostab/model"
)

// Variable is the flight-condition parameter a sweep steps through.
type Variable int

const (
	Alpha Variable = iota
	Beta
	Mach
	Altitude
)

func (v Variable) String() string {
	switch v {
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Mach:
		return "mach"
	case Altitude:
		return "altitude"
	default:
		return fmt.Sprintf("variable(%d)", int(v))
	}
}

// ParseVariable maps a case-insensitive name onto a Variable.
func ParseVariable(s string) (Variable, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alpha":
		return Alpha, nil
	case "beta":
		return Beta, nil
	case "mach":
		return Mach, nil
	case "altitude", "alt":
		return Altitude, nil
	}
	return 0, fmt.Errorf("unknown sweep variable %q", s)
}

// Point is one step of a sweep.
type Point struct {
	Index     int
	Value     float64
	Condition model.FlightCondition
}

// Controller walks a variable from From to To in Step increments and
// notifies registered listeners at every point.
type Controller struct {
	mu sync.RWMutex

	Base     model.FlightCondition
	Variable Variable
	From     float64
	To       float64
	Step     float64
	// Interval paces the sweep against the wall clock. Zero runs as fast
	// as the listeners allow.
	Interval time.Duration

	current   Point
	listeners []func(Point) error
}

// NewController validates the range. Step must be positive; the sweep runs
// downwards when To < From.
func NewController(base model.FlightCondition, variable Variable, from, to, step float64) (*Controller, error) {
	for _, v := range []float64{from, to, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("sweep bounds must be finite")
		}
	}
	if step <= 0 {
		return nil, fmt.Errorf("sweep step must be positive, got %g", step)
	}
	if variable < Alpha || variable > Altitude {
		return nil, fmt.Errorf("unknown sweep variable %d", int(variable))
	}
	return &Controller{
		Base:     base.Clone(),
		Variable: variable,
		From:     from,
		To:       to,
		Step:     step,
		current:  Point{Index: -1, Value: from, Condition: base.Clone()},
	}, nil
}

// AddListener registers a callback invoked at every point. A listener error
// stops the sweep.
func (c *Controller) AddListener(fn func(Point) error) {
	c.listeners = append(c.listeners, fn)
}

// Current returns the last point reached.
func (c *Controller) Current() Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Len returns the number of points the sweep visits.
func (c *Controller) Len() int {
	return int(math.Floor(math.Abs(c.To-c.From)/c.Step+1e-9)) + 1
}

// Values returns every value the sweep visits, in order.
func (c *Controller) Values() []float64 {
	n := c.Len()
	dir := 1.0
	if c.To < c.From {
		dir = -1
	}
	out := make([]float64, n)
	for i := range out {
		// Multiplying instead of accumulating keeps the end point exact.
		out[i] = c.From + dir*float64(i)*c.Step
	}
	return out
}

// Run visits every point in order. It stops at the first listener error or
// when ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if c.Interval > 0 {
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i, value := range c.Values() {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		cond, err := c.conditionAt(value)
		if err != nil {
			return fmt.Errorf("sweep point %d (%s=%g): %w", i, c.Variable, value, err)
		}
		p := Point{Index: i, Value: value, Condition: cond}

		c.mu.Lock()
		c.current = p
		c.mu.Unlock()

		for _, fn := range c.listeners {
			if err := fn(p); err != nil {
				return fmt.Errorf("sweep point %d (%s=%g): %w", i, c.Variable, value, err)
			}
		}
	}
	return nil
}

// conditionAt derives the condition for one value. Mach and altitude
// changes recompute the atmosphere and airspeed.
func (c *Controller) conditionAt(value float64) (model.FlightCondition, error) {
	base := c.Base
	switch c.Variable {
	case Alpha:
		return base.WithChannel(model.Alpha, value), nil
	case Beta:
		return base.WithChannel(model.Beta, value), nil
	}

	alt, mach := base.Altitude, base.Mach
	if c.Variable == Mach {
		mach = value
	} else {
		alt = value
	}
	fresh, err := core.ConditionAt(alt, mach, base.Alpha, base.Beta)
	if err != nil {
		return model.FlightCondition{}, err
	}
	out := base.Clone()
	out.Mach = fresh.Mach
	out.Altitude = fresh.Altitude
	out.Atmosphere = fresh.Atmosphere
	out.U = fresh.U
	return out, nil
}
