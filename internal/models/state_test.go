package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalString(t *testing.T) {
	assert.Equal(t, "SHORT_SPREAD", SignalShortSpread.String())
	assert.Equal(t, "FLAT", SignalFlat.String())
	assert.Equal(t, "LONG_SPREAD", SignalLongSpread.String())
	assert.Equal(t, "Signal(3)", Signal(3).String())
}

func TestSignalValidate(t *testing.T) {
	assert.NoError(t, SignalFlat.Validate())
	assert.NoError(t, SignalLongSpread.Validate())
	assert.NoError(t, SignalShortSpread.Validate())
	assert.Error(t, Signal(2).Validate())
	assert.Error(t, Signal(-2).Validate())
}

func TestEngineStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from EngineState
		to   EngineState
		want bool
	}{
		{"initializing to running", EngineInitializing, EngineRunning, true},
		{"initializing to failed", EngineInitializing, EngineFailed, true},
		{"initializing to stopped", EngineInitializing, EngineStopped, false},
		{"running to stopped", EngineRunning, EngineStopped, true},
		{"running to failed", EngineRunning, EngineFailed, true},
		{"running to initializing", EngineRunning, EngineInitializing, false},
		{"stopped is terminal", EngineStopped, EngineRunning, false},
		{"failed is terminal", EngineFailed, EngineRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, EngineStopped.IsTerminal())
	assert.True(t, EngineFailed.IsTerminal())
	assert.False(t, EngineRunning.IsTerminal())
}

func validTraderState() *TraderState {
	return &TraderState{
		SchemaVersion: SnapshotSchemaVersion,
		RunID:         "run-1",
		Symbol1:       "ADAUSDT",
		Symbol2:       "BNBUSDT",
		Timeframe:     "1h",
		Signal:        SignalFlat,
		SpreadWindow:  []float64{-6.5, -6.4},
		LastTick:      testTime,
		UpdatedAt:     testTime,
		Portfolio: PortfolioState{
			Cash:           1000,
			InitialCapital: 1000,
			Positions:      map[string]float64{},
		},
	}
}

func TestTraderStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*TraderState)
		wantErr bool
	}{
		{
			name:    "valid state",
			modify:  func(s *TraderState) {},
			wantErr: false,
		},
		{
			name:    "wrong schema version",
			modify:  func(s *TraderState) { s.SchemaVersion = 99 },
			wantErr: true,
		},
		{
			name:    "missing symbol",
			modify:  func(s *TraderState) { s.Symbol2 = "" },
			wantErr: true,
		},
		{
			name:    "identical legs",
			modify:  func(s *TraderState) { s.Symbol2 = s.Symbol1 },
			wantErr: true,
		},
		{
			name:    "invalid signal",
			modify:  func(s *TraderState) { s.Signal = Signal(5) },
			wantErr: true,
		},
		{
			name:    "negative cash",
			modify:  func(s *TraderState) { s.Portfolio.Cash = -1 },
			wantErr: true,
		},
		{
			name: "trade count without history",
			modify: func(s *TraderState) {
				s.Portfolio.TradeCount = 3
				s.Portfolio.Trades = nil
			},
			wantErr: true,
		},
		{
			name: "trade count mismatch",
			modify: func(s *TraderState) {
				s.Portfolio.TradeCount = 2
				s.Portfolio.Trades = []TradeRecord{{ID: "t1", Timestamp: testTime, Symbol1: "A", Symbol2: "B", Price1: 1, Price2: 1}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validTraderState()
			tt.modify(state)

			err := state.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGapLifecycle(t *testing.T) {
	start := testTime
	end := testTime.Add(4 * time.Hour)

	gap, err := NewGap("gap-1", testSymbol, "1h", start, end)
	require.NoError(t, err)
	assert.Equal(t, GapStatusDetected, gap.Status)

	expected, err := gap.ExpectedBars()
	require.NoError(t, err)
	assert.Equal(t, 4, expected)

	require.NoError(t, gap.MarkFilled())
	assert.Equal(t, GapStatusFilled, gap.Status)
	require.NotNil(t, gap.FilledAt)

	// Filled gaps cannot transition again.
	assert.Error(t, gap.MarkPermanent("no data"))

	_, err = NewGap("gap-2", testSymbol, "1h", end, start)
	assert.Error(t, err)
}
