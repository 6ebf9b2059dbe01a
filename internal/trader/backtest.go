package trader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/analytics"
	"github.com/johnayoung/go-pair-trader/internal/config"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/portfolio"
	"github.com/johnayoung/go-pair-trader/internal/storage"
	"github.com/johnayoung/go-pair-trader/internal/strategy"
)

// PerformanceReport summarizes one backtest run.
type PerformanceReport struct {
	Symbol1   string    `json:"symbol1"`
	Symbol2   string    `json:"symbol2"`
	Timeframe string    `json:"timeframe"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`

	Bars        int `json:"bars"`
	SkippedBars int `json:"skipped_bars"`
	TradeCount  int `json:"trade_count"`

	InitialCapital   float64 `json:"initial_capital"`
	FinalValue       float64 `json:"final_value"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	BuyHoldReturnPct float64 `json:"buy_hold_return_pct"`
	RealizedPnL      float64 `json:"realized_pnl"`

	VolatilityPct  float64 `json:"volatility_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	WinRate        float64 `json:"win_rate"`
	Correlation    float64 `json:"correlation"`

	FinalSignal models.Signal       `json:"final_signal"`
	Trades      []models.TradeRecord `json:"trades,omitempty"`
}

// Backtester replays stored bars through the strategy pipeline.
type Backtester struct {
	store  storage.BarReader
	cfg    config.TradingConfig
	logger *slog.Logger
}

// NewBacktester creates a backtester reading bars from the given store.
func NewBacktester(store storage.BarReader, cfg config.TradingConfig, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "backtester"),
	}
}

// Run replays [start, end) bar by bar. A bar missing on either leg is
// skipped with a warning: the previous signal carries forward and no trade
// fires for that step. Historical ticks never fail.
func (b *Backtester) Run(ctx context.Context, start, end time.Time) (*PerformanceReport, error) {
	step, err := models.TimeframeDuration(b.cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	spread, err := strategy.NewSpreadModel(b.cfg.LookbackPeriod, b.cfg.MinSpreadStdDev)
	if err != nil {
		return nil, err
	}
	signals, err := strategy.NewSignalGenerator(b.cfg.ZThreshold, b.cfg.FlattenEpsilon)
	if err != nil {
		return nil, err
	}
	sizer, err := strategy.NewPositionSizer(b.cfg.MaxPositionSize)
	if err != nil {
		return nil, err
	}
	ledger, err := portfolio.NewLedger(b.cfg.Symbol1, b.cfg.Symbol2, b.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}

	b.logger.Info("backtest started",
		"pair", b.cfg.Symbol1+"/"+b.cfg.Symbol2,
		"timeframe", b.cfg.Timeframe,
		"start", start,
		"end", end,
	)

	var (
		current          = models.SignalFlat
		bars             int
		skipped          int
		wins, losses     int
		firstP1, firstP2 float64
		lastP1, lastP2   float64
		closes1, closes2 []float64
		equity           []float64
	)

	for ts := start.UTC(); ts.Before(end.UTC()); ts = ts.Add(step) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		price1, ok1 := b.closeAt(ctx, b.cfg.Symbol1, ts)
		price2, ok2 := b.closeAt(ctx, b.cfg.Symbol2, ts)
		if !ok1 || !ok2 {
			skipped++
			b.logger.Warn("bar missing, carrying signal forward",
				"timestamp", ts,
				"have_leg1", ok1,
				"have_leg2", ok2,
			)
			continue
		}

		bars++
		if firstP1 == 0 {
			firstP1, firstP2 = price1, price2
		}
		lastP1, lastP2 = price1, price2
		closes1 = append(closes1, price1)
		closes2 = append(closes2, price2)

		obs, err := spread.Update(price1, price2, ts)
		if err != nil {
			return nil, fmt.Errorf("spread update failed at %s: %w", ts, err)
		}

		if obs.Ready {
			target := signals.Next(current, obs.ZScore)
			if target != current {
				qty1, qty2, err := sizer.Size(target, ledger.Value(price1, price2), price1, price2)
				if err != nil {
					return nil, fmt.Errorf("sizing failed at %s: %w", ts, err)
				}

				realizedBefore := ledger.RealizedPnL()
				trade, err := ledger.ApplyTrade(qty1, qty2, price1, price2, ts, target, obs.ZScore)
				if err != nil {
					b.logger.Warn("trade rejected",
						"timestamp", ts,
						"signal", target.String(),
						"error", err,
					)
				} else {
					current = target
					if trade != nil {
						switch delta := ledger.RealizedPnL() - realizedBefore; {
						case delta > 0:
							wins++
						case delta < 0:
							losses++
						}
					}
				}
			}
		}

		equity = append(equity, ledger.Value(price1, price2))
	}

	if bars == 0 {
		return nil, fmt.Errorf("no bars found for %s/%s in the requested range",
			b.cfg.Symbol1, b.cfg.Symbol2)
	}

	report := &PerformanceReport{
		Symbol1:        b.cfg.Symbol1,
		Symbol2:        b.cfg.Symbol2,
		Timeframe:      b.cfg.Timeframe,
		Start:          start.UTC(),
		End:            end.UTC(),
		Bars:           bars,
		SkippedBars:    skipped,
		TradeCount:     ledger.TradeCount(),
		InitialCapital: b.cfg.InitialCapital,
		FinalValue:     ledger.Value(lastP1, lastP2),
		RealizedPnL:    ledger.RealizedPnL(),
		FinalSignal:    current,
		Trades:         ledger.Trades(),
	}

	report.TotalReturnPct = (report.FinalValue - report.InitialCapital) / report.InitialCapital * 100
	report.BuyHoldReturnPct = buyHoldReturnPct(firstP1, firstP2, lastP1, lastP2)
	report.MaxDrawdownPct = maxDrawdownPct(equity)
	report.WinRate = winRate(wins, losses)

	if vol, err := analytics.Volatility(equity, periodsPerDay(step)); err == nil {
		report.VolatilityPct = vol
	}
	report.SharpeRatio = sharpeRatio(equity, step)

	if corr, err := analytics.Correlation(closes1, closes2); err == nil {
		report.Correlation = corr
		if corr < b.cfg.CorrelationThreshold {
			b.logger.Warn("pair correlation below threshold",
				"correlation", corr,
				"threshold", b.cfg.CorrelationThreshold,
			)
		}
	}

	b.logger.Info("backtest complete",
		"bars", bars,
		"skipped", skipped,
		"trades", report.TradeCount,
		"return_pct", report.TotalReturnPct,
		"final_value", report.FinalValue,
	)

	return report, nil
}

// closeAt fetches one leg's close price at an exact grid timestamp.
func (b *Backtester) closeAt(ctx context.Context, symbol string, ts time.Time) (float64, bool) {
	bar, err := b.store.GetBarAt(ctx, symbol, b.cfg.Timeframe, ts)
	if err != nil {
		b.logger.Warn("bar lookup failed", "symbol", symbol, "timestamp", ts, "error", err)
		return 0, false
	}
	if bar == nil {
		return 0, false
	}

	price, err := bar.CloseFloat()
	if err != nil || price <= 0 {
		b.logger.Warn("bar has unusable close", "symbol", symbol, "timestamp", ts, "error", err)
		return 0, false
	}
	return price, true
}

// buyHoldReturnPct is the benchmark: half the capital in each leg, held for
// the whole range.
func buyHoldReturnPct(firstP1, firstP2, lastP1, lastP2 float64) float64 {
	if firstP1 <= 0 || firstP2 <= 0 {
		return 0
	}
	ret := 0.5*(lastP1/firstP1-1) + 0.5*(lastP2/firstP2-1)
	return ret * 100
}

// maxDrawdownPct returns the largest peak-to-trough equity decline.
func maxDrawdownPct(equity []float64) float64 {
	var peak, maxDD float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// winRate is the fraction of realized round trips that made money.
func winRate(wins, losses int) float64 {
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// sharpeRatio annualizes mean over stddev of per-bar equity returns.
func sharpeRatio(equity []float64, step time.Duration) float64 {
	returns, err := analytics.PercentChanges(equity)
	if err != nil || len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	stddev := math.Sqrt(sq / float64(len(returns)-1))
	if stddev == 0 {
		return 0
	}

	barsPerYear := float64(365*24*time.Hour) / float64(step)
	return mean / stddev * math.Sqrt(barsPerYear)
}

// periodsPerDay converts a bar duration into bars per day for volatility
// scaling.
func periodsPerDay(step time.Duration) int {
	n := int(24 * time.Hour / step)
	if n < 1 {
		n = 1
	}
	return n
}
