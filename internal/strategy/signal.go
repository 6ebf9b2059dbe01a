package strategy

import (
	"fmt"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// Generate maps a z-score and entry threshold to a target signal. It is a
// pure function: a z-score above +threshold shorts the spread (leg 1 rich),
// below -threshold longs it, anything in between is flat.
func Generate(zscore, threshold float64) models.Signal {
	switch {
	case zscore > threshold:
		return models.SignalShortSpread
	case zscore < -threshold:
		return models.SignalLongSpread
	default:
		return models.SignalFlat
	}
}

// SignalGenerator applies the entry rule plus the exit rule for an already
// open position. It holds only configuration; every decision is a
// deterministic function of (current signal, z-score).
type SignalGenerator struct {
	threshold      float64
	flattenEpsilon float64
}

// NewSignalGenerator creates a generator with the given entry threshold and
// flatten epsilon. The epsilon must sit strictly inside the threshold band
// or positions would close the moment they open.
func NewSignalGenerator(threshold, flattenEpsilon float64) (*SignalGenerator, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("threshold must be greater than 0, got %f", threshold)
	}
	if flattenEpsilon < 0 || flattenEpsilon >= threshold {
		return nil, fmt.Errorf("flatten epsilon must be in [0, threshold), got %f", flattenEpsilon)
	}

	return &SignalGenerator{
		threshold:      threshold,
		flattenEpsilon: flattenEpsilon,
	}, nil
}

// Threshold returns the configured entry threshold.
func (g *SignalGenerator) Threshold() float64 {
	return g.threshold
}

// Next returns the target signal given the currently held signal and the
// latest z-score. The rules, in priority order:
//
//  1. An opposite-threshold breach reverses the position in one step.
//  2. An open position flattens once the z-score reverts: either it is
//     within the epsilon band around zero, or it has crossed zero relative
//     to the entry side.
//  3. Otherwise the current signal is held.
func (g *SignalGenerator) Next(current models.Signal, zscore float64) models.Signal {
	entry := Generate(zscore, g.threshold)
	if entry != models.SignalFlat {
		return entry
	}

	if current == models.SignalFlat {
		return models.SignalFlat
	}

	if zscore >= -g.flattenEpsilon && zscore <= g.flattenEpsilon {
		return models.SignalFlat
	}

	// Zero crossing: a long spread entered below -threshold exits once the
	// z-score turns positive, and symmetrically for a short spread.
	if current == models.SignalLongSpread && zscore > 0 {
		return models.SignalFlat
	}
	if current == models.SignalShortSpread && zscore < 0 {
		return models.SignalFlat
	}

	return current
}
