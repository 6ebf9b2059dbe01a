package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/exchange"
	"github.com/johnayoung/go-pair-trader/internal/models"
	"github.com/johnayoung/go-pair-trader/internal/storage"
)

var gridStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *storage.MemoryStorage {
	t.Helper()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// makeBar builds a valid hourly bar at the given grid offset.
func makeBar(t *testing.T, symbol string, offset int) models.Bar {
	t.Helper()

	bar, err := models.NewBar(
		gridStart.Add(time.Duration(offset)*time.Hour),
		"0.4500", "0.4600", "0.4400", "0.4550", "12500.0",
		symbol, "1h",
	)
	require.NoError(t, err)
	return *bar
}

// storeBarsAt stores hourly bars at the given grid offsets.
func storeBarsAt(t *testing.T, store *storage.MemoryStorage, symbol string, offsets ...int) {
	t.Helper()

	bars := make([]models.Bar, 0, len(offsets))
	for _, offset := range offsets {
		bars = append(bars, makeBar(t, symbol, offset))
	}
	require.NoError(t, store.Append(context.Background(), bars))
}

func TestDetectGapsFindsMissingRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	// Bars at hours 0, 1, 4, 5 and 8; missing 2-3 and 6-7.
	storeBarsAt(t, store, "ADAUSDT", 0, 1, 4, 5, 8)

	gaps, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(9*time.Hour))
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	assert.Equal(t, gridStart.Add(2*time.Hour), gaps[0].StartTime)
	assert.Equal(t, gridStart.Add(4*time.Hour), gaps[0].EndTime)
	assert.Equal(t, gridStart.Add(6*time.Hour), gaps[1].StartTime)
	assert.Equal(t, gridStart.Add(8*time.Hour), gaps[1].EndTime)
	assert.Equal(t, models.GapStatusDetected, gaps[0].Status)

	// The gaps are persisted for backfill.
	stored, err := store.GetGaps(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestDetectGapsCoversTrailingRange(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "BNBUSDT", 0, 1)

	gaps, err := detector.DetectGaps(ctx, "BNBUSDT", "1h", gridStart, gridStart.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	assert.Equal(t, gridStart.Add(2*time.Hour), gaps[0].StartTime)
	assert.Equal(t, gridStart.Add(5*time.Hour), gaps[0].EndTime)
}

func TestDetectGapsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "ADAUSDT", 0, 2)

	first, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A rescan of the same range records nothing new.
	second, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, second)

	stored, err := store.GetGaps(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDetectGapsCompleteDataFindsNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "ADAUSDT", 0, 1, 2, 3)

	gaps, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetectGapsValidation(t *testing.T) {
	ctx := context.Background()
	detector := NewDetector(newTestStorage(t), nil)

	_, err := detector.DetectGaps(ctx, "ADAUSDT", "7h", gridStart, gridStart.Add(time.Hour))
	assert.Error(t, err)

	_, err = detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart.Add(time.Hour), gridStart)
	assert.Error(t, err)
}

func TestDetectGapsInBars(t *testing.T) {
	ctx := context.Background()
	detector := NewDetector(newTestStorage(t), nil)

	// Deliberately out of order; the detector sorts before comparing.
	bars := []models.Bar{
		makeBar(t, "ADAUSDT", 5),
		makeBar(t, "ADAUSDT", 0),
		makeBar(t, "ADAUSDT", 1),
	}

	gaps, err := detector.DetectGapsInBars(ctx, bars, "1h")
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	assert.Equal(t, gridStart.Add(2*time.Hour), gaps[0].StartTime)
	assert.Equal(t, gridStart.Add(5*time.Hour), gaps[0].EndTime)
}

func TestDetectGapsInBarsShortSequence(t *testing.T) {
	ctx := context.Background()
	detector := NewDetector(newTestStorage(t), nil)

	gaps, err := detector.DetectGapsInBars(ctx, []models.Bar{makeBar(t, "ADAUSDT", 0)}, "1h")
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestGapIDIsDeterministic(t *testing.T) {
	a := gapID("ADAUSDT", "1h", gridStart, gridStart.Add(time.Hour))
	b := gapID("ADAUSDT", "1h", gridStart, gridStart.Add(time.Hour))
	c := gapID("BNBUSDT", "1h", gridStart, gridStart.Add(time.Hour))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

// fakeFetcher returns canned bars for backfill tests.
type fakeFetcher struct {
	bars  []models.Bar
	err   error
	calls int
	last  exchange.FetchRequest
}

func (f *fakeFetcher) FetchBars(ctx context.Context, req exchange.FetchRequest) (*exchange.FetchResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}

	// Return only the bars inside the requested range.
	var bars []models.Bar
	for _, bar := range f.bars {
		if !bar.Timestamp.Before(req.Start) && bar.Timestamp.Before(req.End) {
			bars = append(bars, bar)
		}
	}
	return &exchange.FetchResponse{Bars: bars}, nil
}

func TestFillGapRecoversBars(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "ADAUSDT", 0, 3)

	gaps, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	fetcher := &fakeFetcher{bars: []models.Bar{
		makeBar(t, "ADAUSDT", 1),
		makeBar(t, "ADAUSDT", 2),
	}}
	backfiller := NewBackfiller(store, fetcher, nil)

	recovered, err := backfiller.FillGap(ctx, gaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Equal(t, gaps[0].StartTime, fetcher.last.Start)
	assert.Equal(t, gaps[0].EndTime, fetcher.last.End)

	// The recovered bars are stored and the gap is closed.
	bar, err := store.GetBarAt(ctx, "ADAUSDT", "1h", gridStart.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, bar)

	filled, err := store.GetGapByID(ctx, gaps[0].ID)
	require.NoError(t, err)
	require.NotNil(t, filled)
	assert.Equal(t, models.GapStatusFilled, filled.Status)

	// Rescanning the repaired range finds nothing.
	rescan, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rescan)
}

func TestFillGapWithNoExchangeData(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "ADAUSDT", 0, 2)

	gaps, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, gaps, 1)

	backfiller := NewBackfiller(store, &fakeFetcher{}, nil)

	_, err = backfiller.FillGap(ctx, gaps[0].ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bars")

	// The gap stays recorded so the fill can be retried later.
	gap, err := store.GetGapByID(ctx, gaps[0].ID)
	require.NoError(t, err)
	require.NotNil(t, gap)
	assert.Equal(t, models.GapStatusDetected, gap.Status)
}

func TestFillGapRejectsUnknownID(t *testing.T) {
	backfiller := NewBackfiller(newTestStorage(t), &fakeFetcher{}, nil)

	_, err := backfiller.FillGap(context.Background(), "no-such-gap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFillDetectedGapsProcessesOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	detector := NewDetector(store, nil)

	storeBarsAt(t, store, "ADAUSDT", 0, 2, 4)

	gaps, err := detector.DetectGaps(ctx, "ADAUSDT", "1h", gridStart, gridStart.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, gaps, 2)

	fetcher := &fakeFetcher{bars: []models.Bar{
		makeBar(t, "ADAUSDT", 1),
		makeBar(t, "ADAUSDT", 3),
	}}
	backfiller := NewBackfiller(store, fetcher, nil)

	recovered, err := backfiller.FillDetectedGaps(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Equal(t, 2, fetcher.calls)

	stored, err := store.GetGaps(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	for _, gap := range stored {
		assert.Equal(t, models.GapStatusFilled, gap.Status)
	}
}
