// Package portfolio implements the pair trading ledger: cash, the two leg
// positions, realized and unrealized P&L, and the executed trade history.
// The ledger is delta based: callers hand it target quantities and it trades
// the difference, rejecting any trade that would drive cash negative.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/johnayoung/go-pair-trader/internal/errors"
	"github.com/johnayoung/go-pair-trader/internal/models"
)

const (
	// cashEpsilon absorbs float rounding when checking the cash floor.
	cashEpsilon = 1e-9

	// minTradeQty is the smallest quantity delta treated as a real trade.
	minTradeQty = 1e-12
)

// Ledger tracks portfolio state for one symbol pair. It is not safe for
// concurrent use; exactly one engine owns a ledger for the lifetime of a run.
type Ledger struct {
	symbol1 string
	symbol2 string

	cash           float64
	initialCapital float64
	qty1           float64
	qty2           float64
	trades         []models.TradeRecord

	// avgPrice1/2 carry the volume-weighted entry price of the open
	// position on each leg, used to split P&L into realized and unrealized.
	avgPrice1 float64
	avgPrice2 float64
	realized  float64
}

// NewLedger creates a fresh ledger holding only cash.
func NewLedger(symbol1, symbol2 string, initialCapital float64) (*Ledger, error) {
	if symbol1 == "" || symbol2 == "" {
		return nil, fmt.Errorf("both symbols must be set")
	}
	if symbol1 == symbol2 {
		return nil, fmt.Errorf("pair legs must be distinct symbols")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be greater than 0, got %f", initialCapital)
	}

	return &Ledger{
		symbol1:        symbol1,
		symbol2:        symbol2,
		cash:           initialCapital,
		initialCapital: initialCapital,
	}, nil
}

// RestoreLedger rebuilds a ledger from a persisted portfolio snapshot. The
// per-leg cost basis is not part of the snapshot; it is reconstructed by
// replaying the trade history.
func RestoreLedger(symbol1, symbol2 string, state models.PortfolioState) (*Ledger, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid portfolio snapshot: %w", err)
	}

	ledger, err := NewLedger(symbol1, symbol2, state.InitialCapital)
	if err != nil {
		return nil, err
	}

	ledger.cash = state.Cash
	ledger.qty1 = state.Positions[symbol1]
	ledger.qty2 = state.Positions[symbol2]
	ledger.trades = make([]models.TradeRecord, len(state.Trades))
	copy(ledger.trades, state.Trades)

	// Replay fills to recover cost basis and realized P&L.
	var q1, q2, avg1, avg2, realized float64
	for _, trade := range ledger.trades {
		var r float64
		avg1, r = applyLegFill(q1, trade.Qty1, trade.Price1, avg1)
		realized += r
		q1 += trade.Qty1

		avg2, r = applyLegFill(q2, trade.Qty2, trade.Price2, avg2)
		realized += r
		q2 += trade.Qty2
	}
	ledger.avgPrice1 = avg1
	ledger.avgPrice2 = avg2
	ledger.realized = realized

	return ledger, nil
}

// ApplyTrade moves the portfolio to the target quantities at the given
// prices. It returns the executed trade record, or nil if the targets match
// the current position and nothing needed to trade. A trade that would
// require more cash than available returns errors.ErrInsufficientCapital
// and leaves cash and positions untouched.
func (l *Ledger) ApplyTrade(targetQty1, targetQty2, price1, price2 float64, timestamp time.Time, signal models.Signal, zscore float64) (*models.TradeRecord, error) {
	if price1 <= 0 || price2 <= 0 {
		return nil, fmt.Errorf("trade prices must be greater than 0, got %f and %f", price1, price2)
	}
	if timestamp.IsZero() {
		return nil, fmt.Errorf("trade timestamp must be set")
	}

	delta1 := targetQty1 - l.qty1
	delta2 := targetQty2 - l.qty2

	if math.Abs(delta1) < minTradeQty && math.Abs(delta2) < minTradeQty {
		return nil, nil
	}

	cost := delta1*price1 + delta2*price2
	newCash := l.cash - cost
	if newCash < -cashEpsilon {
		return nil, fmt.Errorf("trade requires %.2f cash but only %.2f available: %w",
			cost, l.cash, errors.ErrInsufficientCapital)
	}
	if newCash < 0 {
		newCash = 0
	}

	var realizedDelta float64
	l.avgPrice1, realizedDelta = applyLegFill(l.qty1, delta1, price1, l.avgPrice1)
	l.realized += realizedDelta
	l.avgPrice2, realizedDelta = applyLegFill(l.qty2, delta2, price2, l.avgPrice2)
	l.realized += realizedDelta

	l.cash = newCash
	l.qty1 = targetQty1
	l.qty2 = targetQty2

	trade := models.TradeRecord{
		ID:         uuid.NewString(),
		Timestamp:  timestamp.UTC(),
		Symbol1:    l.symbol1,
		Symbol2:    l.symbol2,
		Signal:     signal,
		Qty1:       delta1,
		Qty2:       delta2,
		Price1:     price1,
		Price2:     price2,
		ZScore:     zscore,
		CashAfter:  l.cash,
		ValueAfter: l.Value(price1, price2),
	}
	l.trades = append(l.trades, trade)

	return &trade, nil
}

// Value returns the total portfolio value at the given prices.
func (l *Ledger) Value(price1, price2 float64) float64 {
	return l.cash + l.qty1*price1 + l.qty2*price2
}

// RealizedPnL returns the P&L locked in by closed position portions.
func (l *Ledger) RealizedPnL() float64 {
	return l.realized
}

// UnrealizedPnL returns the mark-to-market P&L of the open positions.
func (l *Ledger) UnrealizedPnL(price1, price2 float64) float64 {
	return l.qty1*(price1-l.avgPrice1) + l.qty2*(price2-l.avgPrice2)
}

// TotalPnL returns value minus initial capital at the given prices.
func (l *Ledger) TotalPnL(price1, price2 float64) float64 {
	return l.Value(price1, price2) - l.initialCapital
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// InitialCapital returns the starting cash.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Position returns the signed quantity held for a symbol. Symbols outside
// the pair are always zero.
func (l *Ledger) Position(symbol string) float64 {
	switch symbol {
	case l.symbol1:
		return l.qty1
	case l.symbol2:
		return l.qty2
	default:
		return 0
	}
}

// TradeCount returns the number of executed trades.
func (l *Ledger) TradeCount() int {
	return len(l.trades)
}

// Trades returns a copy of the trade history, oldest first.
func (l *Ledger) Trades() []models.TradeRecord {
	out := make([]models.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// State returns the serializable portfolio snapshot.
func (l *Ledger) State() models.PortfolioState {
	trades := make([]models.TradeRecord, len(l.trades))
	copy(trades, l.trades)

	return models.PortfolioState{
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		Positions: map[string]float64{
			l.symbol1: l.qty1,
			l.symbol2: l.qty2,
		},
		TradeCount: len(l.trades),
		Trades:     trades,
	}
}

// applyLegFill updates one leg's volume-weighted entry price for a fill and
// returns the new average price plus any realized P&L. Increasing a
// position (or opening one) blends the fill into the average; reducing or
// flipping realizes the difference between fill price and average on the
// closed portion.
func applyLegFill(oldQty, delta, price, avgPrice float64) (float64, float64) {
	if math.Abs(delta) < minTradeQty {
		return avgPrice, 0
	}

	// Opening or adding on the same side.
	if oldQty == 0 || oldQty*delta > 0 {
		total := math.Abs(oldQty) + math.Abs(delta)
		newAvg := (avgPrice*math.Abs(oldQty) + price*math.Abs(delta)) / total
		return newAvg, 0
	}

	// Reducing, closing, or flipping.
	closed := math.Min(math.Abs(delta), math.Abs(oldQty))
	side := 1.0
	if oldQty < 0 {
		side = -1.0
	}
	realized := closed * (price - avgPrice) * side

	remaining := oldQty + delta
	if math.Abs(remaining) < minTradeQty {
		return 0, realized
	}
	if remaining*oldQty > 0 {
		// Partial close keeps the original basis.
		return avgPrice, realized
	}
	// Flip: the surviving quantity opened at the fill price.
	return price, realized
}
