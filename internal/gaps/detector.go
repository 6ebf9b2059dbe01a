package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/storage"
)

// detectorStorage is the storage surface the detector needs.
type detectorStorage interface {
	storage.BarReader
	storage.GapStorage
}

// detectorImpl implements Detector by comparing stored bar timestamps
// against the expected timeframe grid.
type detectorImpl struct {
	storage detectorStorage
	logger  *slog.Logger
}

// NewDetector creates a gap detector backed by the given storage.
func NewDetector(store detectorStorage, logger *slog.Logger) Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &detectorImpl{
		storage: store,
		logger:  logger.With("component", "gap_detector"),
	}
}

// DetectGaps scans [start, end) for missing bars and records a gap for each
// contiguous missing run.
func (d *detectorImpl) DetectGaps(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Gap, error) {
	step, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end time must be after start time")
	}

	resp, err := d.storage.Query(ctx, storage.QueryRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Start:     start,
		End:       end,
		OrderBy:   "timestamp_asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query stored bars: %w", err)
	}

	stored := make(map[time.Time]bool, len(resp.Bars))
	for _, bar := range resp.Bars {
		stored[bar.Timestamp.UTC()] = true
	}

	runs := missingRuns(start.UTC(), end.UTC(), step, stored)

	recorded := make([]models.Gap, 0, len(runs))
	for _, run := range runs {
		select {
		case <-ctx.Done():
			return recorded, ctx.Err()
		default:
		}

		gap, err := models.NewGap(gapID(symbol, timeframe, run.start, run.end), symbol, timeframe, run.start, run.end)
		if err != nil {
			d.logger.Warn("failed to build gap record",
				"symbol", symbol,
				"start", run.start,
				"end", run.end,
				"error", err,
			)
			continue
		}

		if err := d.storage.StoreGap(ctx, *gap); err != nil {
			// Gap IDs are deterministic, so a store failure on a rescan
			// usually means the gap is already recorded.
			d.logger.Debug("skipping gap already recorded",
				"gap_id", gap.ID,
				"error", err,
			)
			continue
		}

		recorded = append(recorded, *gap)
	}

	if len(recorded) > 0 {
		d.logger.Info("recorded data gaps",
			"symbol", symbol,
			"timeframe", timeframe,
			"count", len(recorded),
		)
	}

	return recorded, nil
}

// DetectGapsInBars analyzes an in-memory bar sequence for missing intervals.
func (d *detectorImpl) DetectGapsInBars(ctx context.Context, bars []models.Bar, timeframe string) ([]models.Gap, error) {
	if len(bars) < 2 {
		return nil, nil
	}

	step, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}

	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var gaps []models.Gap
	for i := 0; i < len(sorted)-1; i++ {
		expectedNext := sorted[i].Timestamp.Add(step)
		next := sorted[i+1].Timestamp
		if !next.After(expectedNext) {
			continue
		}

		symbol := sorted[i].Symbol
		gap, err := models.NewGap(gapID(symbol, timeframe, expectedNext, next), symbol, timeframe, expectedNext, next)
		if err != nil {
			return nil, fmt.Errorf("failed to build gap record: %w", err)
		}
		gaps = append(gaps, *gap)
	}

	return gaps, nil
}

// DetectRecentGaps scans the most recent lookback window for gaps. The
// window end is truncated to the last closed bar so the still-forming bar
// is never reported missing.
func (d *detectorImpl) DetectRecentGaps(ctx context.Context, symbol, timeframe string, lookback time.Duration) ([]models.Gap, error) {
	step, err := models.TimeframeDuration(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %q: %w", timeframe, err)
	}

	end := time.Now().UTC().Truncate(step)
	start := end.Add(-lookback).Truncate(step)
	if !end.After(start) {
		return nil, nil
	}

	return d.DetectGaps(ctx, symbol, timeframe, start, end)
}

// timeRun is a contiguous run of missing grid timestamps, [start, end).
type timeRun struct {
	start time.Time
	end   time.Time
}

// missingRuns walks the expected timestamp grid over [start, end) and
// collapses consecutive missing timestamps into runs.
func missingRuns(start, end time.Time, step time.Duration, stored map[time.Time]bool) []timeRun {
	var runs []timeRun
	var runStart *time.Time

	for t := start; t.Before(end); t = t.Add(step) {
		if stored[t] {
			if runStart != nil {
				runs = append(runs, timeRun{start: *runStart, end: t})
				runStart = nil
			}
			continue
		}
		if runStart == nil {
			ts := t
			runStart = &ts
		}
	}

	if runStart != nil {
		runs = append(runs, timeRun{start: *runStart, end: end})
	}

	return runs
}

// gapID derives a deterministic identifier from the gap coordinates so that
// rescanning the same range never records duplicates.
func gapID(symbol, timeframe string, start, end time.Time) string {
	key := fmt.Sprintf("%s|%s|%d|%d", symbol, timeframe, start.Unix(), end.Unix())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
