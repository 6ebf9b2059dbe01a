package models

import (
	"fmt"
	"time"
)

// Signal is the target spread position emitted by the signal generator.
// It encodes direction only; sizing is a separate concern.
type Signal int

const (
	// SignalShortSpread targets short leg 1 / long leg 2. Emitted when the
	// spread z-score rises above the entry threshold.
	SignalShortSpread Signal = -1
	// SignalFlat targets no open position.
	SignalFlat Signal = 0
	// SignalLongSpread targets long leg 1 / short leg 2. Emitted when the
	// spread z-score falls below the negative entry threshold.
	SignalLongSpread Signal = 1
)

// String returns a human-readable name for the signal.
// This method implements the fmt.Stringer interface.
func (s Signal) String() string {
	switch s {
	case SignalShortSpread:
		return "SHORT_SPREAD"
	case SignalFlat:
		return "FLAT"
	case SignalLongSpread:
		return "LONG_SPREAD"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// Validate checks that the signal is one of the three defined values.
func (s Signal) Validate() error {
	switch s {
	case SignalShortSpread, SignalFlat, SignalLongSpread:
		return nil
	default:
		return &ValidationError{Field: "signal", Message: fmt.Sprintf("invalid signal value: %d", int(s))}
	}
}

// TradeRecord captures one executed portfolio transition. Quantities are
// signed deltas applied to each leg; CashAfter and ValueAfter record the
// portfolio immediately after the trade for performance analysis.
type TradeRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol1    string    `json:"symbol1"`
	Symbol2    string    `json:"symbol2"`
	Signal     Signal    `json:"signal"`
	Qty1       float64   `json:"qty1"`
	Qty2       float64   `json:"qty2"`
	Price1     float64   `json:"price1"`
	Price2     float64   `json:"price2"`
	ZScore     float64   `json:"z_score"`
	CashAfter  float64   `json:"cash_after"`
	ValueAfter float64   `json:"value_after"`
}

// Validate checks the trade record for internal consistency.
func (t *TradeRecord) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "trade ID cannot be empty"}
	}
	if t.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}
	if t.Symbol1 == "" || t.Symbol2 == "" {
		return &ValidationError{Field: "symbols", Message: "both symbols must be set"}
	}
	if err := t.Signal.Validate(); err != nil {
		return err
	}
	if t.Price1 <= 0 || t.Price2 <= 0 {
		return &ValidationError{Field: "prices", Message: "trade prices must be greater than 0"}
	}
	return nil
}

// String returns a one-line summary of the trade.
func (t *TradeRecord) String() string {
	return fmt.Sprintf("Trade{%s %s/%s qty1=%.6f@%.6f qty2=%.6f@%.6f z=%.3f cash=%.2f}",
		t.Signal, t.Symbol1, t.Symbol2, t.Qty1, t.Price1, t.Qty2, t.Price2, t.ZScore, t.CashAfter)
}
