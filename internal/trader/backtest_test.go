package trader

import (
	"context"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/config"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/storage"
)

var backtestStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func backtestConfig() config.TradingConfig {
	cfg := config.DefaultConfig().Trading
	cfg.LookbackPeriod = 4
	cfg.ZThreshold = 1.3
	cfg.FlattenEpsilon = 0.25
	cfg.MinSpreadStdDev = 0.0001
	return cfg
}

func newBacktestStorage(t *testing.T) *storage.MemoryStorage {
	t.Helper()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedBacktestBar(t *testing.T, store *storage.MemoryStorage, symbol string, hourOffset int, price float64) {
	t.Helper()

	p := strconv.FormatFloat(price, 'f', -1, 64)
	bar, err := models.NewBar(
		backtestStart.Add(time.Duration(hourOffset)*time.Hour),
		p, p, p, p, "100",
		symbol, "1h",
	)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), []models.Bar{*bar}))
}

// seedSpreadSeries stores one bar per leg per offset such that the log spread
// at each offset equals the given value: leg1 closes at e^spread, leg2 at 1.
func seedSpreadSeries(t *testing.T, store *storage.MemoryStorage, cfg config.TradingConfig, spreads map[int]float64) {
	t.Helper()

	for offset, s := range spreads {
		seedBacktestBar(t, store, cfg.Symbol1, offset, math.Exp(s))
		seedBacktestBar(t, store, cfg.Symbol2, offset, 1.0)
	}
}

func TestBacktestRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := backtestConfig()
	store := newBacktestStorage(t)

	// Four bars of alternating spread warm the window, the spike at hour 4
	// breaches the entry threshold, hour 5 reverts through zero and flattens.
	// Hour 6 is missing on leg 1 and must be skipped.
	seedSpreadSeries(t, store, cfg, map[int]float64{
		0: -1, 1: 1, 2: -1, 3: 1,
		4: 10,
		5: 1,
		7: 1,
	})
	seedBacktestBar(t, store, cfg.Symbol2, 6, 1.0) // leg 2 present, leg 1 missing

	bt := NewBacktester(store, cfg, discardLogger())
	report, err := bt.Run(ctx, backtestStart, backtestStart.Add(8*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 7, report.Bars)
	assert.Equal(t, 1, report.SkippedBars)
	assert.Equal(t, 2, report.TradeCount)
	assert.Equal(t, models.SignalFlat, report.FinalSignal)
	assert.Len(t, report.Trades, 2)

	// The short entered at e^10 and covered at e^1, so nearly the whole
	// short-leg notional is realized profit.
	assert.InDelta(t, 500, report.RealizedPnL, 1)
	assert.InDelta(t, 1500, report.FinalValue, 1)
	assert.InDelta(t, 50, report.TotalReturnPct, 0.5)
	assert.Equal(t, 1.0, report.WinRate)

	// Leg 1 moved from e^-1 to e^1 while leg 2 stayed flat; a 50/50 hold
	// captures half that ratio.
	assert.InDelta(t, 319.5, report.BuyHoldReturnPct, 1)

	// Equity never declined in this scenario.
	assert.Equal(t, 0.0, report.MaxDrawdownPct)
	assert.Greater(t, report.VolatilityPct, 0.0)
	assert.Greater(t, report.SharpeRatio, 0.0)
}

func TestBacktestStaysFlatWithoutSignal(t *testing.T) {
	ctx := context.Background()
	cfg := backtestConfig()
	store := newBacktestStorage(t)

	// Alternating spreads never breach the threshold.
	seedSpreadSeries(t, store, cfg, map[int]float64{
		0: -1, 1: 1, 2: -1, 3: 1, 4: -1, 5: 1,
	})

	bt := NewBacktester(store, cfg, discardLogger())
	report, err := bt.Run(ctx, backtestStart, backtestStart.Add(6*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 6, report.Bars)
	assert.Equal(t, 0, report.TradeCount)
	assert.Equal(t, models.SignalFlat, report.FinalSignal)
	assert.Equal(t, cfg.InitialCapital, report.FinalValue)
	assert.Equal(t, 0.0, report.TotalReturnPct)
}

func TestBacktestErrorsWithoutBars(t *testing.T) {
	cfg := backtestConfig()
	store := newBacktestStorage(t)

	bt := NewBacktester(store, cfg, discardLogger())
	_, err := bt.Run(context.Background(), backtestStart, backtestStart.Add(4*time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bars found")
}

func TestBacktestValidatesRange(t *testing.T) {
	cfg := backtestConfig()
	store := newBacktestStorage(t)
	bt := NewBacktester(store, cfg, discardLogger())

	_, err := bt.Run(context.Background(), backtestStart, backtestStart)
	assert.Error(t, err, "empty range")

	_, err = bt.Run(context.Background(), backtestStart, backtestStart.Add(-time.Hour))
	assert.Error(t, err, "inverted range")

	bad := cfg
	bad.Timeframe = "7h"
	btBad := NewBacktester(store, bad, discardLogger())
	_, err = btBad.Run(context.Background(), backtestStart, backtestStart.Add(time.Hour))
	assert.Error(t, err, "unsupported timeframe")
}

func TestBacktestHonorsCancellation(t *testing.T) {
	cfg := backtestConfig()
	store := newBacktestStorage(t)
	seedSpreadSeries(t, store, cfg, map[int]float64{0: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bt := NewBacktester(store, cfg, discardLogger())
	_, err := bt.Run(ctx, backtestStart, backtestStart.Add(4*time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
