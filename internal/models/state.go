package models

import (
	"fmt"
	"time"
)

// EngineState represents the lifecycle state of the pair trader engine.
type EngineState string

const (
	// EngineInitializing indicates the engine is loading state and warming up.
	EngineInitializing EngineState = "initializing"
	// EngineRunning indicates the engine is processing ticks.
	EngineRunning EngineState = "running"
	// EngineStopped indicates a clean shutdown; the engine can be restarted
	// from its persisted snapshot.
	EngineStopped EngineState = "stopped"
	// EngineFailed indicates an unrecoverable error; manual intervention is
	// required before restart.
	EngineFailed EngineState = "failed"
)

// engineTransitions defines the allowed engine state transitions.
var engineTransitions = map[EngineState][]EngineState{
	EngineInitializing: {EngineRunning, EngineFailed},
	EngineRunning:      {EngineStopped, EngineFailed},
	EngineStopped:      {},
	EngineFailed:       {},
}

// CanTransition reports whether the engine may move from its current state
// to the target state. Stopped and failed are terminal.
func (s EngineState) CanTransition(to EngineState) bool {
	for _, next := range engineTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Validate checks that the state is one of the defined values.
func (s EngineState) Validate() error {
	switch s {
	case EngineInitializing, EngineRunning, EngineStopped, EngineFailed:
		return nil
	default:
		return &ValidationError{Field: "state", Message: fmt.Sprintf("invalid engine state: %s", string(s))}
	}
}

// IsTerminal returns true for states the engine cannot leave.
func (s EngineState) IsTerminal() bool {
	return s == EngineStopped || s == EngineFailed
}

// PortfolioState is the serializable ledger state: cash, per-symbol signed
// positions, and the executed trade history.
type PortfolioState struct {
	Cash           float64            `json:"cash"`
	InitialCapital float64            `json:"initial_capital"`
	Positions      map[string]float64 `json:"positions"`
	TradeCount     int                `json:"trade_count"`
	Trades         []TradeRecord      `json:"trades"`
}

// Validate checks the portfolio state invariants. Cash must never be
// negative and the trade count must match the history length.
func (p *PortfolioState) Validate() error {
	if p.Cash < 0 {
		return &ValidationError{Field: "cash", Message: fmt.Sprintf("cash cannot be negative: %f", p.Cash)}
	}
	if p.InitialCapital <= 0 {
		return &ValidationError{Field: "initial_capital", Message: "initial capital must be greater than 0"}
	}
	if p.TradeCount < 0 {
		return &ValidationError{Field: "trade_count", Message: "trade count cannot be negative"}
	}
	if len(p.Trades) != p.TradeCount { // nil history means zero trades
		return &ValidationError{
			Field:   "trades",
			Message: fmt.Sprintf("trade history length (%d) does not match trade count (%d)", len(p.Trades), p.TradeCount),
		}
	}
	return nil
}

// SnapshotSchemaVersion is the current snapshot schema. Loaders reject
// snapshots written with a different version rather than guessing at
// field meanings.
const SnapshotSchemaVersion = 1

// TraderState is the full engine snapshot persisted after every tick. It
// contains everything needed to resume trading after a restart: the
// portfolio, the last emitted signal, and the rolling spread window.
type TraderState struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id"`
	Symbol1       string         `json:"symbol1"`
	Symbol2       string         `json:"symbol2"`
	Timeframe     string         `json:"timeframe"`
	Signal        Signal         `json:"signal"`
	SpreadWindow  []float64      `json:"spread_window"`
	LastPrice1    float64        `json:"last_price1"`
	LastPrice2    float64        `json:"last_price2"`
	LastZScore    float64        `json:"last_z_score"`
	LastTick      time.Time      `json:"last_tick"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Portfolio     PortfolioState `json:"portfolio"`
}

// Validate checks the snapshot for structural consistency. A snapshot that
// fails validation is treated the same as a corrupt file: discarded.
func (t *TraderState) Validate() error {
	if t.SchemaVersion != SnapshotSchemaVersion {
		return &ValidationError{
			Field:   "schema_version",
			Message: fmt.Sprintf("unsupported schema version %d, expected %d", t.SchemaVersion, SnapshotSchemaVersion),
		}
	}
	if t.Symbol1 == "" || t.Symbol2 == "" {
		return &ValidationError{Field: "symbols", Message: "both symbols must be set"}
	}
	if t.Symbol1 == t.Symbol2 {
		return &ValidationError{Field: "symbols", Message: "pair legs must be distinct symbols"}
	}
	if err := t.Signal.Validate(); err != nil {
		return err
	}
	return t.Portfolio.Validate()
}

// String returns a short summary of the snapshot.
func (t *TraderState) String() string {
	return fmt.Sprintf("TraderState{%s/%s signal=%s cash=%.2f trades=%d updated=%s}",
		t.Symbol1, t.Symbol2, t.Signal, t.Portfolio.Cash, t.Portfolio.TradeCount,
		t.UpdatedAt.Format(time.RFC3339))
}
