package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/exchange"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/storage"
)

// backfillerStorage is the storage surface the backfiller needs.
type backfillerStorage interface {
	storage.BarStorer
	storage.GapStorage
}

// backfillerImpl implements Backfiller by re-fetching gap ranges from the
// exchange.
type backfillerImpl struct {
	storage  backfillerStorage
	exchange exchange.BarFetcher
	logger   *slog.Logger
}

// NewBackfiller creates a backfiller that fetches missing bars from the
// given exchange adapter and stores them.
func NewBackfiller(store backfillerStorage, fetcher exchange.BarFetcher, logger *slog.Logger) Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &backfillerImpl{
		storage:  store,
		exchange: fetcher,
		logger:   logger.With("component", "backfiller"),
	}
}

// FillGap fills a single gap by ID.
func (b *backfillerImpl) FillGap(ctx context.Context, gapID string) (int, error) {
	gap, err := b.storage.GetGapByID(ctx, gapID)
	if err != nil {
		return 0, fmt.Errorf("failed to load gap %s: %w", gapID, err)
	}
	if gap == nil {
		return 0, fmt.Errorf("gap %s does not exist", gapID)
	}
	if gap.Status != models.GapStatusDetected {
		return 0, fmt.Errorf("gap %s has status %s, only detected gaps can be filled", gapID, gap.Status)
	}

	b.logger.Info("filling gap",
		"gap_id", gap.ID,
		"symbol", gap.Symbol,
		"timeframe", gap.Timeframe,
		"start", gap.StartTime,
		"end", gap.EndTime,
	)

	resp, err := b.exchange.FetchBars(ctx, exchange.FetchRequest{
		Symbol:    gap.Symbol,
		Timeframe: gap.Timeframe,
		Start:     gap.StartTime,
		End:       gap.EndTime,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch bars for gap %s: %w", gapID, err)
	}

	if len(resp.Bars) == 0 {
		// The exchange has no data for this range. Leave the gap recorded
		// so it is not rediscovered and re-fetched on every scan.
		return 0, fmt.Errorf("exchange returned no bars for gap %s (%s to %s)",
			gapID, gap.StartTime.Format(time.RFC3339), gap.EndTime.Format(time.RFC3339))
	}

	if err := b.storage.AppendBatch(ctx, resp.Bars); err != nil {
		return 0, fmt.Errorf("failed to store recovered bars for gap %s: %w", gapID, err)
	}

	if err := b.storage.MarkGapFilled(ctx, gapID, time.Now().UTC()); err != nil {
		return len(resp.Bars), fmt.Errorf("failed to mark gap %s filled: %w", gapID, err)
	}

	b.logger.Info("gap filled",
		"gap_id", gapID,
		"bars_recovered", len(resp.Bars),
	)

	return len(resp.Bars), nil
}

// FillDetectedGaps fills every detected gap for the symbol and timeframe,
// oldest first.
func (b *backfillerImpl) FillDetectedGaps(ctx context.Context, symbol, timeframe string) (int, error) {
	gaps, err := b.storage.GetGaps(ctx, symbol, timeframe)
	if err != nil {
		return 0, fmt.Errorf("failed to list gaps: %w", err)
	}

	pending := make([]models.Gap, 0, len(gaps))
	for _, gap := range gaps {
		if gap.Status == models.GapStatusDetected {
			pending = append(pending, gap)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StartTime.Before(pending[j].StartTime)
	})

	var total int
	var firstErr error
	for _, gap := range pending {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		recovered, err := b.FillGap(ctx, gap.ID)
		total += recovered
		if err != nil {
			b.logger.Warn("gap fill failed",
				"gap_id", gap.ID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return total, firstErr
}
