package observability

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aerostab"

// register adds c to reg. When an equivalent collector is already present,
// as happens when a second server shares the default registry, the existing
// one is returned so both observe the same series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		var zero C
		return zero, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		var zero C
		return zero, fmt.Errorf("collector already registered as %T", are.ExistingCollector)
	}
	return existing, nil
}

// registryPair resolves a nil registerer to the default registry and finds the
// gatherer serving the same metrics.
func registryPair(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}
	return reg, gathererFor(reg)
}

func gathererFor(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}
