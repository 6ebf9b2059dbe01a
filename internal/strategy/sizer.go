package strategy

import (
	"fmt"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// PositionSizer converts a signal and available capital into target leg
// quantities. Allocation is symmetric: the configured capital fraction is
// notionally assigned to each leg.
type PositionSizer struct {
	allocation float64
}

// NewPositionSizer creates a sizer that assigns the given capital fraction
// to each leg. The default strategy uses 0.5.
func NewPositionSizer(allocation float64) (*PositionSizer, error) {
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("allocation must be in (0, 1], got %f", allocation)
	}
	return &PositionSizer{allocation: allocation}, nil
}

// Size returns the target quantities for both legs. A long spread buys leg 1
// and sells leg 2; a short spread is the mirror image; flat targets zero on
// both legs, meaning close whatever is open. Non-positive capital or prices
// are rejected.
func (s *PositionSizer) Size(signal models.Signal, capital, price1, price2 float64) (float64, float64, error) {
	if capital <= 0 {
		return 0, 0, fmt.Errorf("capital must be greater than 0, got %f", capital)
	}
	if price1 <= 0 {
		return 0, 0, fmt.Errorf("price1 must be greater than 0, got %f", price1)
	}
	if price2 <= 0 {
		return 0, 0, fmt.Errorf("price2 must be greater than 0, got %f", price2)
	}
	if err := signal.Validate(); err != nil {
		return 0, 0, err
	}

	notional := s.allocation * capital
	qty1 := notional / price1
	qty2 := notional / price2

	switch signal {
	case models.SignalLongSpread:
		return qty1, -qty2, nil
	case models.SignalShortSpread:
		return -qty1, qty2, nil
	default:
		return 0, 0, nil
	}
}

// Allocation returns the configured per-leg capital fraction.
func (s *PositionSizer) Allocation() float64 {
	return s.allocation
}
