package trader

import (
	"fmt"
	"strings"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// Status returns a human-readable summary of the running engine.
func (e *Engine) Status() string {
	return FormatStatus(e.Snapshot(), string(e.engineState))
}

// FormatStatus renders a trader snapshot for terminal output. The CLI uses
// it both for a live engine and for an offline snapshot file, so everything
// shown comes from the snapshot itself.
func FormatStatus(s *models.TraderState, engineState string) string {
	if s == nil {
		return "no trader state available\n"
	}

	var b strings.Builder

	pos1 := s.Portfolio.Positions[s.Symbol1]
	pos2 := s.Portfolio.Positions[s.Symbol2]
	value := s.Portfolio.Cash + pos1*s.LastPrice1 + pos2*s.LastPrice2
	pnl := value - s.Portfolio.InitialCapital

	fmt.Fprintf(&b, "Pair Trader Status\n")
	fmt.Fprintf(&b, "==================\n")
	fmt.Fprintf(&b, "Run ID:      %s\n", s.RunID)
	fmt.Fprintf(&b, "State:       %s\n", engineState)
	fmt.Fprintf(&b, "Pair:        %s / %s (%s)\n", s.Symbol1, s.Symbol2, s.Timeframe)
	fmt.Fprintf(&b, "Prices:      %s=%.6f  %s=%.6f\n", s.Symbol1, s.LastPrice1, s.Symbol2, s.LastPrice2)
	fmt.Fprintf(&b, "Z-Score:     %.4f\n", s.LastZScore)
	fmt.Fprintf(&b, "Signal:      %s\n", s.Signal)
	fmt.Fprintf(&b, "Positions:   %s=%.6f  %s=%.6f\n", s.Symbol1, pos1, s.Symbol2, pos2)
	fmt.Fprintf(&b, "Cash:        %.2f\n", s.Portfolio.Cash)
	fmt.Fprintf(&b, "Value:       %.2f\n", value)
	fmt.Fprintf(&b, "P&L:         %+.2f (%+.2f%%)\n", pnl, pnl/s.Portfolio.InitialCapital*100)
	fmt.Fprintf(&b, "Trades:      %d\n", s.Portfolio.TradeCount)

	if !s.LastTick.IsZero() {
		fmt.Fprintf(&b, "Last tick:   %s\n", s.LastTick.Format(time.RFC3339))
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated:     %s\n", s.UpdatedAt.Format(time.RFC3339))
	}

	return b.String()
}
