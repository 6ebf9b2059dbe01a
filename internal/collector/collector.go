// Package collector orchestrates OHLCV bar collection for the traded pair:
// historical backfill, keeping the latest bars current, and gap detection
// over what was stored.
//
// Collection is idempotent end to end: the exchange adapter returns bars in
// chronological order and the storage layer skips keys it has already seen,
// so overlapping fetches are safe and encouraged.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-pair-trader/internal/exchange"
	"github.com/johnayoung/go-pair-trader/internal/gaps"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/storage"
	"github.com/johnayoung/go-pair-trader/internal/validator"
)

const (
	// DefaultBatchSize defines the number of bars accumulated before a
	// batch write to storage.
	DefaultBatchSize = 1000

	// DefaultRateLimit is the default client-side request rate (req/sec).
	DefaultRateLimit = 10

	// InitialBackoffInterval for collection retries.
	InitialBackoffInterval = 500 * time.Millisecond

	// MaxBackoffInterval for collection retries.
	MaxBackoffInterval = 30 * time.Second

	// MaxCollectionElapsed bounds the total retry time of one historical
	// collection.
	MaxCollectionElapsed = 10 * time.Minute

	// latestOverlapBars is how many recent bars CollectLatest re-fetches to
	// guarantee overlap with what is already stored.
	latestOverlapBars = 2
)

// Collector is the main interface for bar collection orchestration.
type Collector interface {
	// CollectHistorical performs historical data collection for a time range.
	CollectHistorical(ctx context.Context, req HistoricalRequest) error

	// CollectLatest brings stored data up to now for the given symbols.
	CollectLatest(ctx context.Context, symbols []string, timeframe string) error

	// GetMetrics returns current collection metrics and statistics.
	GetMetrics(ctx context.Context) (*CollectionMetrics, error)

	// Start initializes the collector and background services.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the collector.
	Stop(ctx context.Context) error

	// Health returns the current health status.
	Health(ctx context.Context) error
}

// HistoricalRequest defines parameters for historical data collection.
type HistoricalRequest struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

// CollectionMetrics provides collection statistics.
type CollectionMetrics struct {
	BarsCollected   int64
	BarsStored      int64
	ErrorCount      int64
	SuccessRate     float64
	AvgResponseTime time.Duration
	RateLimitHits   int64
	MemoryUsageMB   int64
	GapsDetected    int64
}

// Config configures the collector behavior.
type Config struct {
	BatchSize           int
	RateLimit           int
	GapDetectionEnabled bool

	// Validator screens fetched bars before storage. Nil disables screening
	// and stores bars as the exchange returned them.
	Validator *validator.BarValidator

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:           DefaultBatchSize,
		RateLimit:           DefaultRateLimit,
		GapDetectionEnabled: true,
		Logger:              slog.Default(),
	}
}

// collectorImpl implements the Collector interface.
type collectorImpl struct {
	config *Config

	exchange exchange.Adapter
	storage  storage.FullStorage
	detector gaps.Detector

	rateLimiter *rate.Limiter
	metrics     *metricsCollector

	isRunning  int32
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	logger *slog.Logger
}

// New creates a new Collector instance with the provided dependencies.
func New(
	adapter exchange.Adapter,
	store storage.FullStorage,
	detector gaps.Detector,
	config *Config,
) Collector {
	if config == nil {
		config = DefaultConfig()
	}

	return &collectorImpl{
		config:      config,
		exchange:    adapter,
		storage:     store,
		detector:    detector,
		logger:      config.Logger,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		shutdownCh:  make(chan struct{}),
		metrics:     newMetricsCollector(),
	}
}

// Start initializes the collector and starts background services.
func (c *collectorImpl) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.isRunning, 0, 1) {
		return fmt.Errorf("collector is already running")
	}

	c.logger.Info("starting bar collector",
		"batch_size", c.config.BatchSize,
		"rate_limit", c.config.RateLimit,
		"gap_detection", c.config.GapDetectionEnabled,
	)

	c.startMetricsReporting(ctx)

	return nil
}

// Stop gracefully shuts down the collector.
func (c *collectorImpl) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.isRunning, 1, 0) {
		return fmt.Errorf("collector is not running")
	}

	c.logger.Info("stopping bar collector")
	close(c.shutdownCh)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("collector stop timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// Health returns the current health status of the collector.
func (c *collectorImpl) Health(ctx context.Context) error {
	if atomic.LoadInt32(&c.isRunning) == 0 {
		return fmt.Errorf("collector is not running")
	}

	if err := c.exchange.HealthCheck(ctx); err != nil {
		return fmt.Errorf("exchange health check failed: %w", err)
	}

	if err := c.storage.HealthCheck(ctx); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}

	return nil
}

// CollectHistorical performs historical data collection with retry.
func (c *collectorImpl) CollectHistorical(ctx context.Context, req HistoricalRequest) error {
	startTime := time.Now()

	c.logger.Info("starting historical collection",
		"symbol", req.Symbol,
		"timeframe", req.Timeframe,
		"start", req.Start,
		"end", req.End,
	)

	if err := c.validateHistoricalRequest(req); err != nil {
		c.metrics.recordError()
		return fmt.Errorf("invalid request: %w", err)
	}

	err := c.collectWithRetry(ctx, req)
	if err != nil {
		c.metrics.recordError()
		c.logger.Error("historical collection failed",
			"symbol", req.Symbol,
			"timeframe", req.Timeframe,
			"error", err,
			"duration", time.Since(startTime),
		)
		return err
	}

	c.metrics.recordSuccess(time.Since(startTime))

	c.logger.Info("historical collection completed",
		"symbol", req.Symbol,
		"timeframe", req.Timeframe,
		"duration", time.Since(startTime),
	)

	return nil
}

// collectWithRetry wraps the collection with exponential backoff.
func (c *collectorImpl) collectWithRetry(ctx context.Context, req HistoricalRequest) error {
	backoffConfig := backoff.NewExponentialBackOff()
	backoffConfig.InitialInterval = InitialBackoffInterval
	backoffConfig.MaxInterval = MaxBackoffInterval
	backoffConfig.MaxElapsedTime = MaxCollectionElapsed
	backoffConfig.Multiplier = 2.0
	backoffConfig.RandomizationFactor = 0.5

	return backoff.RetryNotify(
		func() error {
			return c.collectRange(ctx, req)
		},
		backoff.WithContext(backoffConfig, ctx),
		func(err error, delay time.Duration) {
			c.logger.Warn("collection attempt failed, retrying",
				"symbol", req.Symbol,
				"error", err,
				"retry_delay", delay,
			)
		},
	)
}

// collectRange fetches the requested range in batches and stores them.
// Storage skips already-present keys, so retries of a partially completed
// range do no harm.
func (c *collectorImpl) collectRange(ctx context.Context, req HistoricalRequest) error {
	barDuration, err := models.TimeframeDuration(req.Timeframe)
	if err != nil {
		return backoff.Permanent(err)
	}

	batchDuration := time.Duration(c.config.BatchSize) * barDuration

	current := req.Start
	for current.Before(req.End) {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}

		batchEnd := current.Add(batchDuration)
		if batchEnd.After(req.End) {
			batchEnd = req.End
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiting failed: %w", err))
		}

		fetchStart := time.Now()
		resp, err := c.exchange.FetchBars(ctx, exchange.FetchRequest{
			Symbol:    req.Symbol,
			Start:     current,
			End:       batchEnd,
			Timeframe: req.Timeframe,
		})
		if err != nil {
			return fmt.Errorf("exchange fetch failed: %w", err)
		}
		c.metrics.recordResponseTime(time.Since(fetchStart))

		if resp.RateLimit.NeedsWait() {
			c.metrics.recordRateLimitHit()
			select {
			case <-time.After(resp.RateLimit.RetryAfter):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}

		c.metrics.recordBarsCollected(len(resp.Bars))

		bars := resp.Bars
		if c.config.Validator != nil && len(bars) > 0 {
			screened, err := c.config.Validator.Screen(ctx, bars)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("bar screening failed: %w", err))
			}
			if dropped := len(screened.Invalid); dropped > 0 {
				c.logger.Warn("dropped invalid bars",
					"symbol", req.Symbol,
					"dropped", dropped,
					"kept", len(screened.Valid),
				)
			}
			bars = screened.Valid
		}

		if len(bars) > 0 {
			if err := c.storage.AppendBatch(ctx, bars); err != nil {
				return fmt.Errorf("batch storage failed: %w", err)
			}
			c.metrics.recordBarsStored(len(bars))
		}

		current = batchEnd
	}

	if c.config.GapDetectionEnabled {
		if err := c.detectAndStoreGaps(ctx, req); err != nil {
			// Gap detection failures do not fail the collection.
			c.logger.Warn("gap detection failed", "error", err)
		}
	}

	return nil
}

// CollectLatest brings stored data up to now for the given symbols. Each
// symbol resumes from its last stored bar with a small overlap.
func (c *collectorImpl) CollectLatest(ctx context.Context, symbols []string, timeframe string) error {
	barDuration, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return fmt.Errorf("invalid timeframe: %w", err)
	}

	errCh := make(chan error, len(symbols))
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)

		go func(sym string) {
			defer wg.Done()

			start, err := c.resumePoint(ctx, sym, timeframe, barDuration)
			if err != nil {
				errCh <- fmt.Errorf("failed to find resume point for %s: %w", sym, err)
				return
			}

			end := time.Now().UTC().Truncate(barDuration)
			if !start.Before(end) {
				return // already current
			}

			req := HistoricalRequest{
				Symbol:    sym,
				Timeframe: timeframe,
				Start:     start,
				End:       end,
			}

			if err := c.CollectHistorical(ctx, req); err != nil {
				errCh <- fmt.Errorf("failed to collect %s: %w", sym, err)
			}
		}(symbol)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("latest collection had %d errors: %v", len(errs), errs)
	}

	return nil
}

// resumePoint determines where collection should resume for a symbol.
func (c *collectorImpl) resumePoint(ctx context.Context, symbol, timeframe string, barDuration time.Duration) (time.Time, error) {
	latest, err := c.storage.GetLatest(ctx, symbol, timeframe)
	if err != nil {
		return time.Time{}, err
	}

	if latest == nil {
		// Nothing stored yet: default to one lookback-sized slice of recent
		// history so the spread model can warm up immediately.
		return time.Now().UTC().Truncate(barDuration).Add(-48 * barDuration), nil
	}

	return latest.Timestamp.Add(-time.Duration(latestOverlapBars) * barDuration), nil
}

// GetMetrics returns current collection metrics.
func (c *collectorImpl) GetMetrics(ctx context.Context) (*CollectionMetrics, error) {
	metrics := c.metrics.getMetrics()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	metrics.MemoryUsageMB = int64(memStats.Alloc / 1024 / 1024)

	return metrics, nil
}

// detectAndStoreGaps performs gap detection over the collected range. The
// detector records the gaps it finds, so only metrics are updated here.
func (c *collectorImpl) detectAndStoreGaps(ctx context.Context, req HistoricalRequest) error {
	detected, err := c.detector.DetectGaps(ctx, req.Symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return fmt.Errorf("gap detection failed: %w", err)
	}

	if len(detected) > 0 {
		c.metrics.recordGapsDetected(len(detected))
		c.logger.Info("gap detection completed",
			"symbol", req.Symbol,
			"gaps_detected", len(detected),
		)
	}

	return nil
}

// validateHistoricalRequest validates the collection request.
func (c *collectorImpl) validateHistoricalRequest(req HistoricalRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if req.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}

	if _, err := models.TimeframeDuration(req.Timeframe); err != nil {
		return err
	}

	if req.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}

	if req.End.IsZero() {
		return fmt.Errorf("end time is required")
	}

	if req.Start.After(req.End) {
		return fmt.Errorf("start time must be before end time")
	}

	return nil
}

// startMetricsReporting starts background metrics logging.
func (c *collectorImpl) startMetricsReporting(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := c.metrics.getMetrics()
				c.logger.Debug("collection metrics",
					"bars_collected", metrics.BarsCollected,
					"success_rate", metrics.SuccessRate,
					"avg_response_time", metrics.AvgResponseTime,
					"error_count", metrics.ErrorCount,
				)

			case <-c.shutdownCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}
