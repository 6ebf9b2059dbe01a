// Package trader contains the pair trading engine: the live tick loop, the
// backtester, and status reporting. The engine owns the trader state for
// the lifetime of a run and is the only writer of the persisted snapshot.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/johnayoung/go-pair-trader/internal/config"
	"github.com/johnayoung/go-pair-trader/internal/errors"
	"github.com/johnayoung/go-pair-trader/internal/exchange"
	"github.com/johnayoung/go-pair-trader/internal/metrics"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/portfolio"
	"github.com/johnayoung/go-pair-trader/internal/state"
	"github.com/johnayoung/go-pair-trader/internal/storage"
	"github.com/johnayoung/go-pair-trader/internal/strategy"
)

// Skipped-tick reasons reported to metrics and logs.
const (
	skipReasonTimeout      = "timeout"
	skipReasonFetchFailed  = "fetch_failed"
	skipReasonBadPrice     = "bad_price"
	skipReasonNotReady     = "not_ready"
	skipReasonNoCapital    = "insufficient_capital"
	skipReasonCircuitOpen  = "circuit_open"
	skipReasonInvalidInput = "invalid_input"
)

// Engine runs the live (or paper) trading loop for one symbol pair. It is
// single threaded by design: one engine instance owns the trader state and
// processes ticks strictly sequentially.
type Engine struct {
	cfg config.TradingConfig

	tickers    exchange.TickerFetcher
	trades     storage.TradeStorer
	snapshots  state.Store
	classifier *errors.Classifier
	breaker    *errors.CircuitBreaker
	metrics    *metrics.EngineMetrics
	logger     *slog.Logger

	spread  *strategy.SpreadModel
	signals *strategy.SignalGenerator
	sizer   *strategy.PositionSizer
	ledger  *portfolio.Ledger

	engineState models.EngineState
	runID       string
	lastSignal  models.Signal
	lastZScore  float64
	lastPrice1  float64
	lastPrice2  float64
	lastTick    time.Time
}

// EngineOptions carries the engine's collaborators. Trades and Metrics are
// optional; everything else is required.
type EngineOptions struct {
	Config     config.TradingConfig
	Tickers    exchange.TickerFetcher
	Snapshots  state.Store
	Classifier *errors.Classifier

	// Trades receives executed trade records for later analysis. May be nil.
	Trades storage.TradeStorer

	// Breaker guards exchange calls. May be nil to disable circuit breaking.
	Breaker *errors.CircuitBreaker

	// Metrics instruments the tick loop. May be nil outside live mode.
	Metrics *metrics.EngineMetrics

	Logger *slog.Logger
}

// NewEngine creates an engine in the initializing state. Call Initialize to
// load or create the trader state before ticking.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Tickers == nil {
		return nil, fmt.Errorf("ticker fetcher is required")
	}
	if opts.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("error classifier is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	spread, err := strategy.NewSpreadModel(opts.Config.LookbackPeriod, opts.Config.MinSpreadStdDev)
	if err != nil {
		return nil, fmt.Errorf("invalid spread model config: %w", err)
	}
	signals, err := strategy.NewSignalGenerator(opts.Config.ZThreshold, opts.Config.FlattenEpsilon)
	if err != nil {
		return nil, fmt.Errorf("invalid signal config: %w", err)
	}
	sizer, err := strategy.NewPositionSizer(opts.Config.MaxPositionSize)
	if err != nil {
		return nil, fmt.Errorf("invalid sizer config: %w", err)
	}

	return &Engine{
		cfg:         opts.Config,
		tickers:     opts.Tickers,
		trades:      opts.Trades,
		snapshots:   opts.Snapshots,
		classifier:  opts.Classifier,
		breaker:     opts.Breaker,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "engine"),
		spread:      spread,
		signals:     signals,
		sizer:       sizer,
		engineState: models.EngineInitializing,
	}, nil
}

// Initialize loads the persisted snapshot or starts fresh, then moves the
// engine to running.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.engineState != models.EngineInitializing {
		return fmt.Errorf("engine cannot initialize from state %s", e.engineState)
	}

	snapshot, err := e.snapshots.Load(ctx)
	if err != nil {
		e.transition(models.EngineFailed)
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if snapshot != nil && snapshot.Symbol1 == e.cfg.Symbol1 && snapshot.Symbol2 == e.cfg.Symbol2 {
		ledger, err := portfolio.RestoreLedger(e.cfg.Symbol1, e.cfg.Symbol2, snapshot.Portfolio)
		if err != nil {
			e.transition(models.EngineFailed)
			return fmt.Errorf("failed to restore ledger: %w", err)
		}
		e.ledger = ledger
		e.spread.Restore(snapshot.SpreadWindow)
		e.runID = snapshot.RunID
		e.lastSignal = snapshot.Signal
		e.lastZScore = snapshot.LastZScore
		e.lastPrice1 = snapshot.LastPrice1
		e.lastPrice2 = snapshot.LastPrice2
		e.lastTick = snapshot.LastTick

		e.logger.Info("resumed from snapshot",
			"run_id", e.runID,
			"signal", e.lastSignal.String(),
			"cash", ledger.Cash(),
			"trades", ledger.TradeCount(),
		)
	} else {
		if snapshot != nil {
			e.logger.Warn("snapshot is for a different pair, starting fresh",
				"snapshot_pair", snapshot.Symbol1+"/"+snapshot.Symbol2,
				"configured_pair", e.cfg.Symbol1+"/"+e.cfg.Symbol2,
			)
		}

		ledger, err := portfolio.NewLedger(e.cfg.Symbol1, e.cfg.Symbol2, e.cfg.InitialCapital)
		if err != nil {
			e.transition(models.EngineFailed)
			return fmt.Errorf("failed to create ledger: %w", err)
		}
		e.ledger = ledger
		e.runID = uuid.NewString()

		e.logger.Info("starting fresh",
			"run_id", e.runID,
			"pair", e.cfg.Symbol1+"/"+e.cfg.Symbol2,
			"capital", e.cfg.InitialCapital,
		)
	}

	e.transition(models.EngineRunning)
	return nil
}

// State returns the engine lifecycle state.
func (e *Engine) State() models.EngineState {
	return e.engineState
}

// Tick executes one full trading cycle: fetch prices, update the spread
// model, decide, trade, persist. Recoverable problems (fetch timeout, data
// not ready, rejected trade) skip the decision and return nil; the previous
// persisted state stays authoritative. Only persistence failure after
// bounded retries is fatal: the engine moves to failed and returns the
// error.
func (e *Engine) Tick(ctx context.Context) error {
	if e.engineState != models.EngineRunning {
		return fmt.Errorf("engine is %s, not running", e.engineState)
	}

	started := time.Now()

	price1, price2, ok := e.fetchPrices(ctx)
	if !ok {
		return nil // already logged and counted as a skipped tick
	}

	now := time.Now().UTC()
	obs, err := e.spread.Update(price1, price2, now)
	if err != nil {
		e.skipTick(skipReasonInvalidInput, "spread update rejected", err)
		return nil
	}

	e.lastPrice1 = price1
	e.lastPrice2 = price2
	e.lastZScore = obs.ZScore
	e.lastTick = now

	if obs.Ready {
		e.decide(obs)
	} else {
		e.skipTick(skipReasonNotReady, "spread window warming up", nil)
	}

	if err := e.persist(ctx); err != nil {
		e.transition(models.EngineFailed)
		return fmt.Errorf("tick persistence failed, engine halted: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordTick(
			e.ledger.Value(price1, price2),
			e.ledger.Cash(),
			obs.ZScore,
			int(e.lastSignal),
			time.Since(started),
		)
	}

	e.logger.Debug("tick complete",
		"z_score", obs.ZScore,
		"signal", e.lastSignal.String(),
		"value", e.ledger.Value(price1, price2),
		"duration", time.Since(started),
	)

	return nil
}

// Run executes ticks at the configured cadence until the context is
// canceled, then persists and stops. Cancellation is honored between ticks
// only; an in-flight tick always completes its persist-or-skip first.
func (e *Engine) Run(ctx context.Context) error {
	if e.engineState != models.EngineRunning {
		return fmt.Errorf("engine is %s, not running", e.engineState)
	}

	interval := e.cfg.GetUpdateInterval()
	e.logger.Info("live loop started",
		"run_id", e.runID,
		"interval", interval,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := e.Tick(ctx); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			e.logger.Info("interrupt received, stopping")
			return e.Stop(context.Background())
		}
	}
}

// Stop persists the final snapshot and moves the engine to stopped.
func (e *Engine) Stop(ctx context.Context) error {
	if e.engineState != models.EngineRunning {
		return fmt.Errorf("engine is %s, not running", e.engineState)
	}

	if err := e.persist(ctx); err != nil {
		e.transition(models.EngineFailed)
		return fmt.Errorf("final persist failed: %w", err)
	}

	e.transition(models.EngineStopped)
	e.logger.Info("engine stopped",
		"run_id", e.runID,
		"trades", e.ledger.TradeCount(),
		"cash", e.ledger.Cash(),
	)
	return nil
}

// fetchPrices fetches both leg prices within the tick timeout. A timeout or
// transport failure is a skipped tick, not an error.
func (e *Engine) fetchPrices(ctx context.Context) (float64, float64, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.GetTickTimeout())
	defer cancel()

	fetch := func(symbol string) (float64, error) {
		var ticker *exchange.Ticker

		call := func() error {
			var err error
			ticker, err = e.tickers.GetTicker(fetchCtx, symbol)
			return err
		}

		var err error
		if e.breaker != nil {
			err = e.breaker.Call(call)
		} else {
			err = call()
		}
		if err != nil {
			return 0, err
		}

		price, err := strconv.ParseFloat(ticker.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable price %q for %s: %w", ticker.Price, symbol, err)
		}
		if price <= 0 {
			return 0, fmt.Errorf("non-positive price %f for %s", price, symbol)
		}
		return price, nil
	}

	price1, err := fetch(e.cfg.Symbol1)
	if err != nil {
		e.skipTick(e.skipReasonFor(err), "price fetch failed for "+e.cfg.Symbol1, err)
		return 0, 0, false
	}

	price2, err := fetch(e.cfg.Symbol2)
	if err != nil {
		e.skipTick(e.skipReasonFor(err), "price fetch failed for "+e.cfg.Symbol2, err)
		return 0, 0, false
	}

	return price1, price2, true
}

// skipReasonFor maps a fetch error onto a skipped-tick reason.
func (e *Engine) skipReasonFor(err error) string {
	classified := e.classifier.Classify(err, "engine", "fetch_prices")
	switch classified.Type {
	case errors.ErrorTypeTimeout:
		return skipReasonTimeout
	case errors.ErrorTypeCircuitOpen:
		return skipReasonCircuitOpen
	case errors.ErrorTypeValidation, errors.ErrorTypeInput:
		return skipReasonBadPrice
	default:
		return skipReasonFetchFailed
	}
}

// decide runs the signal pipeline for one ready observation and applies any
// resulting trade.
func (e *Engine) decide(obs strategy.SpreadObservation) {
	target := e.signals.Next(e.lastSignal, obs.ZScore)
	if target == e.lastSignal {
		return
	}

	capital := e.ledger.Value(obs.Price1, obs.Price2)
	qty1, qty2, err := e.sizer.Size(target, capital, obs.Price1, obs.Price2)
	if err != nil {
		e.skipTick(skipReasonInvalidInput, "position sizing rejected", err)
		return
	}

	trade, err := e.ledger.ApplyTrade(qty1, qty2, obs.Price1, obs.Price2, obs.Timestamp, target, obs.ZScore)
	if err != nil {
		// An unaffordable trade keeps the existing position and signal.
		e.skipTick(skipReasonNoCapital, "trade rejected", err)
		return
	}

	e.lastSignal = target

	if trade != nil {
		e.logger.Info("trade executed",
			"signal", target.String(),
			"z_score", obs.ZScore,
			"qty1", trade.Qty1,
			"qty2", trade.Qty2,
			"cash_after", trade.CashAfter,
			"value_after", trade.ValueAfter,
		)

		if e.metrics != nil {
			e.metrics.RecordTrade(target.String())
		}
		e.storeTrade(*trade)
	}
}

// storeTrade records an executed trade in storage. Failures are logged only;
// the snapshot already carries the authoritative trade history.
func (e *Engine) storeTrade(trade models.TradeRecord) {
	if e.trades == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.trades.StoreTrade(ctx, trade); err != nil {
		e.logger.Warn("failed to store trade record",
			"trade_id", trade.ID,
			"error", err,
		)
	}
}

// persistTimeout bounds a snapshot write, retries included, once the write
// is detached from the run context.
const persistTimeout = 10 * time.Second

// persist writes the snapshot with bounded retries. The write runs on a
// context detached from the caller's cancellation: an interrupt stops the
// loop between ticks, never mid-write, so the tick that was in flight when
// the signal arrived still lands its state on disk.
func (e *Engine) persist(ctx context.Context) error {
	snapshot := e.Snapshot()

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	return e.classifier.Retry(saveCtx, "persistence", "save_snapshot", func() error {
		return e.snapshots.Save(saveCtx, snapshot)
	})
}

// Snapshot builds the serializable trader state from the engine's fields.
func (e *Engine) Snapshot() *models.TraderState {
	return &models.TraderState{
		SchemaVersion: models.SnapshotSchemaVersion,
		RunID:         e.runID,
		Symbol1:       e.cfg.Symbol1,
		Symbol2:       e.cfg.Symbol2,
		Timeframe:     e.cfg.Timeframe,
		Signal:        e.lastSignal,
		SpreadWindow:  e.spread.Window(),
		LastPrice1:    e.lastPrice1,
		LastPrice2:    e.lastPrice2,
		LastZScore:    e.lastZScore,
		LastTick:      e.lastTick,
		UpdatedAt:     time.Now().UTC(),
		Portfolio:     e.ledger.State(),
	}
}

// skipTick logs and counts a tick that produced no trading decision.
func (e *Engine) skipTick(reason, msg string, err error) {
	if err != nil {
		e.logger.Warn(msg, "reason", reason, "error", err)
	} else {
		e.logger.Debug(msg, "reason", reason)
	}

	if e.metrics != nil {
		e.metrics.RecordSkippedTick(reason)
	}
}

// transition moves the engine to the target lifecycle state, logging an
// error if the transition is not allowed rather than corrupting the state
// machine.
func (e *Engine) transition(to models.EngineState) {
	if !e.engineState.CanTransition(to) {
		e.logger.Error("illegal engine state transition",
			"from", string(e.engineState),
			"to", string(to),
		)
		return
	}

	e.logger.Info("engine state changed",
		"from", string(e.engineState),
		"to", string(to),
	)
	e.engineState = to
}
