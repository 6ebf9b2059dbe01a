// Pair Trader CLI
// This application runs a statistical arbitrage strategy on a pair of
// cryptocurrency symbols: it collects OHLCV bars, backtests the spread
// strategy over stored history, and trades the pair live against current
// exchange prices.
//
// Usage:
//
//	pairtrader collect --days 30
//	pairtrader backtest --start 2024-01-01 --end 2024-03-01
//	pairtrader live
//	pairtrader status
//	pairtrader gaps --days 7 --backfill
//	pairtrader analyze --days 30
//
// For detailed help on any command, use: pairtrader <command> --help
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/analytics"
	"github.com/johnayoung/go-pair-trader/internal/collector"
	"github.com/johnayoung/go-pair-trader/internal/config"
	"github.com/johnayoung/go-pair-trader/internal/errors"
	"github.com/johnayoung/go-pair-trader/internal/exchange"
	"github.com/johnayoung/go-pair-trader/internal/gaps"
	"github.com/johnayoung/go-pair-trader/internal/logger"
	"github.com/johnayoung/go-pair-trader/internal/metrics"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/state"
	"github.com/johnayoung/go-pair-trader/internal/storage"
	"github.com/johnayoung/go-pair-trader/internal/trader"
	"github.com/johnayoung/go-pair-trader/internal/validator"
)

const appName = "pairtrader"

// Exit codes following standard conventions.
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
)

// CLI holds the wired application components shared across commands.
type CLI struct {
	cfg     *config.AppConfig
	logs    *logger.Manager
	logger  *slog.Logger
	store   storage.FullStorage
	adapter exchange.Adapter
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", appName, config.DefaultConfig().Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	}

	cli, err := newCLI(ctx, configPathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.close()

	var cmdErr error
	switch command {
	case "collect":
		cmdErr = cli.handleCollect(ctx, args)
	case "gaps":
		cmdErr = cli.handleGaps(ctx, args)
	case "backtest":
		cmdErr = cli.handleBacktest(ctx, args)
	case "live":
		cmdErr = cli.handleLive(ctx, args)
	case "status":
		cmdErr = cli.handleStatus(ctx, args)
	case "analyze":
		cmdErr = cli.handleAnalyze(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}

	if cmdErr != nil {
		cli.logger.Error("command failed", "command", command, "error", cmdErr)
		fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		os.Exit(ExitDataError)
	}
}

func configPathFromEnv() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "pairtrader.json"
}

// newCLI loads configuration and wires the shared components.
func newCLI(ctx context.Context, configPath string) (*CLI, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.NewManager(configPath, bootstrap).LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logs, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log := logs.GetLogger()

	store, err := createStorage(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	adapter, err := createExchange(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange adapter: %w", err)
	}

	return &CLI{
		cfg:     cfg,
		logs:    logs,
		logger:  log,
		store:   store,
		adapter: adapter,
	}, nil
}

func (cli *CLI) close() {
	if cli.store != nil {
		_ = cli.store.Close()
	}
	if cli.logs != nil {
		_ = cli.logs.Close()
	}
}

func createStorage(cfg *config.AppConfig, log *slog.Logger) (storage.FullStorage, error) {
	switch cfg.Storage.Type {
	case "duckdb":
		return storage.NewDuckDBStorage(cfg.Storage.DatabaseURL, log)
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

func createExchange(cfg *config.AppConfig, log *slog.Logger) (exchange.Adapter, error) {
	switch cfg.Exchange.Type {
	case "binance":
		adapter := exchange.NewBinanceAdapterWithLogger(log)
		if cfg.Exchange.BaseURL != "" {
			adapter.SetBaseURL(cfg.Exchange.BaseURL)
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported exchange type: %s", cfg.Exchange.Type)
	}
}

func (cli *CLI) newCollector() (collector.Collector, error) {
	screen, err := validator.NewBarValidator(validator.DefaultConfig(), cli.logger)
	if err != nil {
		return nil, err
	}

	return collector.New(cli.adapter, cli.store, gaps.NewDetector(cli.store, cli.logger), &collector.Config{
		BatchSize:           cli.cfg.Collector.BatchSize,
		RateLimit:           cli.cfg.Exchange.RateLimit,
		GapDetectionEnabled: true,
		Validator:           screen,
		Logger:              cli.logger,
	}), nil
}

// handleCollect backfills historical bars for both legs of the configured
// pair, then optionally keeps them current until interrupted.
func (cli *CLI) handleCollect(ctx context.Context, args []string) error {
	follow := false
	var rest []string
	for _, arg := range args {
		if arg == "--follow" || arg == "-f" {
			follow = true
			continue
		}
		rest = append(rest, arg)
	}

	flags, err := parseRangeFlags(rest, 30)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("collect")
		return nil
	}

	start, end, err := resolveRange(flags)
	if err != nil {
		return err
	}

	coll, err := cli.newCollector()
	if err != nil {
		return err
	}

	trading := cli.cfg.Trading
	for _, symbol := range []string{trading.Symbol1, trading.Symbol2} {
		cli.logger.Info("collecting historical bars",
			"symbol", symbol,
			"timeframe", trading.Timeframe,
			"start", start.Format("2006-01-02"),
			"end", end.Format("2006-01-02"),
		)

		err := coll.CollectHistorical(ctx, collector.HistoricalRequest{
			Symbol:    symbol,
			Timeframe: trading.Timeframe,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return fmt.Errorf("collection failed for %s: %w", symbol, err)
		}
	}

	fmt.Printf("Collected %s and %s %s bars from %s to %s\n",
		trading.Symbol1, trading.Symbol2, trading.Timeframe,
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	if !follow {
		return nil
	}

	scheduler, err := collector.NewScheduler(
		collector.DefaultSchedulerConfig([]string{trading.Symbol1, trading.Symbol2}, trading.Timeframe),
		coll,
		cli.logger,
	)
	if err != nil {
		return err
	}

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Following new bars, press Ctrl+C to stop")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}

	stats := scheduler.GetStats()
	fmt.Printf("Scheduler stopped after %d runs (%d failed)\n",
		stats.CompletedRuns, stats.FailedRuns)
	return nil
}

// handleGaps detects gaps in stored data and optionally backfills them.
func (cli *CLI) handleGaps(ctx context.Context, args []string) error {
	flags, err := parseGapsFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("gaps")
		return nil
	}

	trading := cli.cfg.Trading
	detector := gaps.NewDetector(cli.store, cli.logger)
	lookback := time.Duration(flags.Days) * 24 * time.Hour

	total := 0
	for _, symbol := range []string{trading.Symbol1, trading.Symbol2} {
		detected, err := detector.DetectRecentGaps(ctx, symbol, trading.Timeframe, lookback)
		if err != nil {
			return fmt.Errorf("gap detection failed for %s: %w", symbol, err)
		}
		total += len(detected)

		for _, gap := range detected {
			fmt.Printf("%s: gap from %s to %s (%s)\n",
				symbol,
				gap.StartTime.Format("2006-01-02 15:04"),
				gap.EndTime.Format("2006-01-02 15:04"),
				gap.Status)
		}
	}

	if total == 0 {
		fmt.Printf("No new gaps found in the last %d days\n", flags.Days)
	}

	if !flags.Backfill {
		return nil
	}

	backfiller := gaps.NewBackfiller(cli.store, cli.adapter, cli.logger)
	recovered := 0
	for _, symbol := range []string{trading.Symbol1, trading.Symbol2} {
		n, err := backfiller.FillDetectedGaps(ctx, symbol, trading.Timeframe)
		recovered += n
		if err != nil {
			return fmt.Errorf("backfill failed for %s after recovering %d bars: %w", symbol, recovered, err)
		}
	}

	fmt.Printf("Backfill recovered %d bars\n", recovered)
	return nil
}

// handleBacktest replays stored bars through the strategy and prints a
// performance report.
func (cli *CLI) handleBacktest(ctx context.Context, args []string) error {
	flags, err := parseBacktestFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("backtest")
		return nil
	}

	start, end, err := resolveRange(&flags.rangeFlags)
	if err != nil {
		return err
	}

	bt := trader.NewBacktester(cli.store, cli.cfg.Trading, cli.logger)
	report, err := bt.Run(ctx, start, end)
	if err != nil {
		return err
	}

	if flags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	printReport(report)
	return nil
}

// handleLive runs the trading engine against current exchange prices until
// interrupted.
func (cli *CLI) handleLive(ctx context.Context, args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printCommandHelp("live")
			return nil
		}
	}

	trading := cli.cfg.Trading

	snapshots, err := state.NewFileStore(trading.StateFilePath, cli.logger)
	if err != nil {
		return err
	}

	classifier := errors.NewClassifier(cli.cfg.ErrorHandling, cli.logger)

	var breaker *errors.CircuitBreaker
	if cli.cfg.ErrorHandling.EnableCircuitBreaker {
		breaker = errors.NewCircuitBreaker("exchange", cli.cfg.ErrorHandling.CircuitBreakerConfig)
	}

	var engineMetrics *metrics.EngineMetrics
	var metricsServer *metrics.Server
	if cli.cfg.Metrics.Enabled {
		engineMetrics = metrics.NewEngineMetrics(trading.Symbol1, trading.Symbol2)
		metricsServer = metrics.NewServer(cli.cfg.Metrics, engineMetrics, cli.logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()
	}

	engine, err := trader.NewEngine(trader.EngineOptions{
		Config:     trading,
		Tickers:    cli.adapter,
		Trades:     cli.store,
		Snapshots:  snapshots,
		Classifier: classifier,
		Breaker:    breaker,
		Metrics:    engineMetrics,
		Logger:     cli.logger,
	})
	if err != nil {
		return err
	}

	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	fmt.Printf("Trading %s/%s live, press Ctrl+C to stop\n", trading.Symbol1, trading.Symbol2)
	if err := engine.Run(ctx); err != nil {
		return err
	}

	fmt.Println(engine.Status())
	return nil
}

// handleStatus prints the persisted trader state without starting an engine.
func (cli *CLI) handleStatus(ctx context.Context, args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			printCommandHelp("status")
			return nil
		}
	}

	snapshots, err := state.NewFileStore(cli.cfg.Trading.StateFilePath, cli.logger)
	if err != nil {
		return err
	}

	snapshot, err := snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trader state: %w", err)
	}

	fmt.Print(trader.FormatStatus(snapshot, "offline"))
	return nil
}

// handleAnalyze reports pair statistics over stored history: correlation
// between the legs and per-leg volatility.
func (cli *CLI) handleAnalyze(ctx context.Context, args []string) error {
	flags, err := parseRangeFlags(args, 30)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("analyze")
		return nil
	}

	start, end, err := resolveRange(flags)
	if err != nil {
		return err
	}

	trading := cli.cfg.Trading
	closes1, closes2, err := cli.alignedCloses(ctx, start, end)
	if err != nil {
		return err
	}
	if len(closes1) < 3 {
		return fmt.Errorf("not enough overlapping bars for %s/%s in the requested range",
			trading.Symbol1, trading.Symbol2)
	}

	step, err := models.TimeframeDuration(trading.Timeframe)
	if err != nil {
		return err
	}
	periodsPerDay := int(24 * time.Hour / step)
	if periodsPerDay < 1 {
		periodsPerDay = 1
	}

	corr, err := analytics.Correlation(closes1, closes2)
	if err != nil {
		return fmt.Errorf("correlation failed: %w", err)
	}

	fmt.Printf("Pair Analysis: %s / %s (%s)\n", trading.Symbol1, trading.Symbol2, trading.Timeframe)
	fmt.Printf("Range:        %s to %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Printf("Bars:         %d\n", len(closes1))
	fmt.Printf("Correlation:  %.4f", corr)
	if corr < trading.CorrelationThreshold {
		fmt.Printf("  (below configured threshold %.2f)", trading.CorrelationThreshold)
	}
	fmt.Println()

	if vol1, err := analytics.Volatility(closes1, periodsPerDay); err == nil {
		fmt.Printf("Volatility:   %s=%.2f%%", trading.Symbol1, vol1)
		if vol2, err := analytics.Volatility(closes2, periodsPerDay); err == nil {
			fmt.Printf("  %s=%.2f%%", trading.Symbol2, vol2)
		}
		fmt.Println()
	}

	return nil
}

// alignedCloses walks the timeframe grid and returns close prices for the
// timestamps where both legs have a stored bar.
func (cli *CLI) alignedCloses(ctx context.Context, start, end time.Time) ([]float64, []float64, error) {
	trading := cli.cfg.Trading
	step, err := models.TimeframeDuration(trading.Timeframe)
	if err != nil {
		return nil, nil, err
	}

	var closes1, closes2 []float64
	for ts := start.UTC(); ts.Before(end.UTC()); ts = ts.Add(step) {
		bar1, err := cli.store.GetBarAt(ctx, trading.Symbol1, trading.Timeframe, ts)
		if err != nil {
			return nil, nil, err
		}
		bar2, err := cli.store.GetBarAt(ctx, trading.Symbol2, trading.Timeframe, ts)
		if err != nil {
			return nil, nil, err
		}
		if bar1 == nil || bar2 == nil {
			continue
		}

		c1, err := bar1.CloseFloat()
		if err != nil {
			continue
		}
		c2, err := bar2.CloseFloat()
		if err != nil {
			continue
		}
		closes1 = append(closes1, c1)
		closes2 = append(closes2, c2)
	}

	return closes1, closes2, nil
}

func printReport(r *trader.PerformanceReport) {
	fmt.Printf("Backtest Report: %s / %s (%s)\n", r.Symbol1, r.Symbol2, r.Timeframe)
	fmt.Printf("Range:          %s to %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Printf("Bars:           %d (%d skipped)\n", r.Bars, r.SkippedBars)
	fmt.Printf("Trades:         %d\n", r.TradeCount)
	fmt.Printf("Final value:    %.2f (started %.2f)\n", r.FinalValue, r.InitialCapital)
	fmt.Printf("Return:         %+.2f%% (buy & hold %+.2f%%)\n", r.TotalReturnPct, r.BuyHoldReturnPct)
	fmt.Printf("Realized P&L:   %+.2f\n", r.RealizedPnL)
	fmt.Printf("Volatility:     %.2f%%\n", r.VolatilityPct)
	fmt.Printf("Sharpe:         %.2f\n", r.SharpeRatio)
	fmt.Printf("Max drawdown:   %.2f%%\n", r.MaxDrawdownPct)
	fmt.Printf("Win rate:       %.0f%%\n", r.WinRate*100)
	fmt.Printf("Correlation:    %.4f\n", r.Correlation)
	fmt.Printf("Final signal:   %s\n", r.FinalSignal)
}

// rangeFlags covers commands that operate over a date range.
type rangeFlags struct {
	Start string
	End   string
	Days  int
	Help  bool
}

// gapsFlags covers the gaps command.
type gapsFlags struct {
	Days     int
	Backfill bool
	Help     bool
}

// backtestFlags covers the backtest command.
type backtestFlags struct {
	rangeFlags
	JSON bool
}

func parseRangeFlags(args []string, defaultDays int) (*rangeFlags, error) {
	flags := &rangeFlags{Days: defaultDays}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--start", "-s":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end", "-e":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--days", "-d":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--days requires a value")
			}
			days, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid days value: %w", err)
			}
			flags.Days = days
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

func parseGapsFlags(args []string) (*gapsFlags, error) {
	flags := &gapsFlags{Days: 7}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--days", "-d":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--days requires a value")
			}
			days, err := strconv.Atoi(args[i+1])
			if err != nil {
				return nil, fmt.Errorf("invalid days value: %w", err)
			}
			flags.Days = days
			i++
		case "--backfill", "-b":
			flags.Backfill = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

func parseBacktestFlags(args []string) (*backtestFlags, error) {
	flags := &backtestFlags{rangeFlags: rangeFlags{Days: 30}}

	var rest []string
	for _, arg := range args {
		if arg == "--json" || arg == "-j" {
			flags.JSON = true
			continue
		}
		rest = append(rest, arg)
	}

	parsed, err := parseRangeFlags(rest, flags.Days)
	if err != nil {
		return nil, err
	}
	flags.rangeFlags = *parsed
	return flags, nil
}

// resolveRange turns the date flags into a concrete [start, end) range.
// Explicit --start/--end win over --days.
func resolveRange(flags *rangeFlags) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if flags.Start != "" {
		start, err = time.Parse("2006-01-02", flags.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err)
		}
	}
	if flags.End != "" {
		end, err = time.Parse("2006-01-02", flags.End)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date, use YYYY-MM-DD: %w", err)
		}
	}

	if start.IsZero() && end.IsZero() {
		if flags.Days <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("specify either --days or both --start and --end")
		}
		end = time.Now().UTC().Truncate(time.Hour)
		start = end.AddDate(0, 0, -flags.Days)
		return start, end, nil
	}

	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("both --start and --end are required when using explicit dates")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func printUsage() {
	fmt.Printf(`%s - statistical pair trading for crypto markets

USAGE:
    %s <command> [options]

COMMANDS:
    collect     Collect historical bars for the configured pair
    gaps        Detect and optionally backfill data gaps
    backtest    Replay stored bars through the strategy
    live        Trade the pair live until interrupted
    status      Show the persisted trader state
    analyze     Report pair correlation and volatility

GLOBAL OPTIONS:
    --help, -h     Show help information
    --version, -v  Show version information

CONFIGURATION:
    Configuration is read from pairtrader.json (override with CONFIG_PATH)
    and environment variables. The traded pair, timeframe, capital, and
    strategy thresholds all live in the trading section:

    {
        "trading": {
            "symbol1": "ADAUSDT",
            "symbol2": "BNBUSDT",
            "timeframe": "1h",
            "initial_capital": 1000,
            "z_threshold": 2.0
        }
    }

For detailed help on any command, use: %s <command> --help
`, appName, appName, appName)
}

func printCommandHelp(command string) {
	switch command {
	case "collect":
		fmt.Printf(`%s collect - collect historical bars for both legs

USAGE:
    %s collect [options]

OPTIONS:
    --days, -d <days>   Days of history to collect from now (default: 30)
    --start, -s <date>  Start date (YYYY-MM-DD)
    --end, -e <date>    End date (YYYY-MM-DD)
    --follow, -f        Keep collecting new bars as they close
    --help, -h          Show this help message

Either use --days or both --start and --end. Collection is idempotent:
overlapping ranges are skipped by the storage layer, and detected gaps are
recorded for later backfill.
`, appName, appName)

	case "gaps":
		fmt.Printf(`%s gaps - detect and backfill data gaps

USAGE:
    %s gaps [options]

OPTIONS:
    --days, -d <days>  Days to look back for gaps (default: 7)
    --backfill, -b     Re-fetch the missing ranges from the exchange
    --help, -h         Show this help message
`, appName, appName)

	case "backtest":
		fmt.Printf(`%s backtest - replay stored bars through the strategy

USAGE:
    %s backtest [options]

OPTIONS:
    --days, -d <days>   Days of history to replay (default: 30)
    --start, -s <date>  Start date (YYYY-MM-DD)
    --end, -e <date>    End date (YYYY-MM-DD)
    --json, -j          Emit the report as JSON
    --help, -h          Show this help message

Bars missing on either leg are skipped with the signal carried forward.
Run '%s collect' first to make sure the range is stored.
`, appName, appName, appName)

	case "live":
		fmt.Printf(`%s live - trade the pair against current exchange prices

USAGE:
    %s live

The engine resumes from the persisted state file when one exists for the
configured pair, ticks at the configured update interval, and persists its
state after every tick. Stop with Ctrl+C; the final state is written before
exit. Enable the metrics section of the configuration to expose Prometheus
metrics while running.
`, appName, appName)

	case "status":
		fmt.Printf(`%s status - show the persisted trader state

USAGE:
    %s status

Reads the state file written by '%s live' and prints positions, cash,
P&L, and the last observed prices. Works while the engine is running or
stopped.
`, appName, appName, appName)

	case "analyze":
		fmt.Printf(`%s analyze - report pair statistics over stored history

USAGE:
    %s analyze [options]

OPTIONS:
    --days, -d <days>   Days of history to analyze (default: 30)
    --start, -s <date>  Start date (YYYY-MM-DD)
    --end, -e <date>    End date (YYYY-MM-DD)
    --help, -h          Show this help message

Reports the correlation between the two legs and their per-leg volatility.
A pair trading strategy needs correlated legs; check this before trading a
new pair.
`, appName, appName)

	default:
		fmt.Fprintf(os.Stderr, "No help available for command: %s\n", command)
		printUsage()
	}
}
