// Scheduler keeps stored bars current while the live trader runs. It aligns
// runs to bar boundaries so a 1h timeframe collects shortly after the top of
// each hour.
package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// SchedulerConfig configures the scheduler behavior.
type SchedulerConfig struct {
	// Symbols to keep current (both legs of the traded pair).
	Symbols []string

	// Timeframe of the bars being collected.
	Timeframe string

	// BoundaryDelay is how long after a bar boundary the run fires, giving
	// the exchange time to finalize the bar.
	BoundaryDelay time.Duration

	// TickInterval is how often the scheduler checks for due runs.
	TickInterval time.Duration
}

// DefaultSchedulerConfig returns a configuration with sensible defaults.
func DefaultSchedulerConfig(symbols []string, timeframe string) *SchedulerConfig {
	return &SchedulerConfig{
		Symbols:       symbols,
		Timeframe:     timeframe,
		BoundaryDelay: 5 * time.Second,
		TickInterval:  time.Second,
	}
}

// Scheduler periodically runs CollectLatest for the configured symbols.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	GetStats() SchedulerStats
}

// SchedulerStats provides scheduler performance metrics.
type SchedulerStats struct {
	CompletedRuns int64
	FailedRuns    int64
	LastRunTime   time.Time
	NextRunTime   time.Time
}

// schedulerImpl implements the Scheduler interface.
type schedulerImpl struct {
	config    *SchedulerConfig
	collector Collector
	logger    *slog.Logger

	isRunning int32

	completedRuns int64
	failedRuns    int64
	lastRunTime   time.Time
	nextRunTime   time.Time
	statsMu       sync.RWMutex

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(config *SchedulerConfig, collector Collector, logger *slog.Logger) (Scheduler, error) {
	if config == nil {
		return nil, fmt.Errorf("scheduler config is required")
	}
	if len(config.Symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}
	if _, err := models.TimeframeDuration(config.Timeframe); err != nil {
		return nil, fmt.Errorf("invalid timeframe: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &schedulerImpl{
		config:     config,
		collector:  collector,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop.
func (s *schedulerImpl) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 0, 1) {
		return fmt.Errorf("scheduler is already running")
	}

	barDuration, _ := models.TimeframeDuration(s.config.Timeframe)
	next := nextBoundary(time.Now().UTC(), barDuration).Add(s.config.BoundaryDelay)

	s.statsMu.Lock()
	s.nextRunTime = next
	s.statsMu.Unlock()

	s.logger.Info("starting collection scheduler",
		"symbols", s.config.Symbols,
		"timeframe", s.config.Timeframe,
		"next_run", next,
	)

	s.wg.Add(1)
	go s.run(ctx, barDuration)

	return nil
}

// Stop shuts the scheduler down and waits for an in-flight run to finish.
func (s *schedulerImpl) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.isRunning, 1, 0) {
		return fmt.Errorf("scheduler is not running")
	}

	s.shutdownOnce.Do(func() { close(s.shutdownCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler loop is active.
func (s *schedulerImpl) IsRunning() bool {
	return atomic.LoadInt32(&s.isRunning) == 1
}

// GetStats returns a snapshot of scheduler statistics.
func (s *schedulerImpl) GetStats() SchedulerStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return SchedulerStats{
		CompletedRuns: atomic.LoadInt64(&s.completedRuns),
		FailedRuns:    atomic.LoadInt64(&s.failedRuns),
		LastRunTime:   s.lastRunTime,
		NextRunTime:   s.nextRunTime,
	}
}

// run is the scheduling loop.
func (s *schedulerImpl) run(ctx context.Context, barDuration time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.statsMu.RLock()
			due := !now.Before(s.nextRunTime)
			s.statsMu.RUnlock()

			if !due {
				continue
			}

			s.executeRun(ctx, barDuration)

		case <-s.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// executeRun performs one scheduled collection and advances the next run time.
func (s *schedulerImpl) executeRun(ctx context.Context, barDuration time.Duration) {
	start := time.Now().UTC()

	err := s.collector.CollectLatest(ctx, s.config.Symbols, s.config.Timeframe)
	if err != nil {
		atomic.AddInt64(&s.failedRuns, 1)
		s.logger.Error("scheduled collection failed", "error", err)
	} else {
		atomic.AddInt64(&s.completedRuns, 1)
	}

	next := nextBoundary(start, barDuration).Add(s.config.BoundaryDelay)

	s.statsMu.Lock()
	s.lastRunTime = start
	s.nextRunTime = next
	s.statsMu.Unlock()
}

// nextBoundary returns the first bar boundary strictly after t.
func nextBoundary(t time.Time, barDuration time.Duration) time.Time {
	return t.Truncate(barDuration).Add(barDuration)
}
