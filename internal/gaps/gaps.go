// Package gaps provides gap detection and backfill for stored bar data.
// A gap is a run of missing bars on the expected timeframe grid. The
// collector records gaps as it goes; the backfiller re-fetches the missing
// ranges from the exchange and marks the gap records filled.
package gaps

import (
	"context"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// Detector identifies missing periods in stored bar data.
type Detector interface {
	// DetectGaps scans [start, end) for missing bars on the timeframe grid
	// and records a gap for each contiguous missing run. It returns the
	// newly recorded gaps; runs already covered by an existing gap record
	// are skipped.
	DetectGaps(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Gap, error)

	// DetectGapsInBars analyzes an in-memory bar sequence for missing
	// intervals between consecutive bars. Nothing is recorded in storage;
	// this is used for inspecting a fetch response before it is stored.
	DetectGapsInBars(ctx context.Context, bars []models.Bar, timeframe string) ([]models.Gap, error)

	// DetectRecentGaps scans the most recent lookback window for gaps.
	// Used by the live trader to verify data continuity before a tick.
	DetectRecentGaps(ctx context.Context, symbol, timeframe string, lookback time.Duration) ([]models.Gap, error)
}

// Backfiller fills recorded gaps by re-fetching the missing ranges from the
// exchange and storing the recovered bars.
type Backfiller interface {
	// FillGap fills a single gap by ID. The gap must be in detected status.
	// Returns the number of bars recovered.
	FillGap(ctx context.Context, gapID string) (int, error)

	// FillDetectedGaps fills every detected gap for the symbol and
	// timeframe, oldest first. It continues past individual failures and
	// returns the total bars recovered along with the first error seen.
	FillDetectedGaps(ctx context.Context, symbol, timeframe string) (int, error)
}
