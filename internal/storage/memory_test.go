package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *MemoryStorage {
	t.Helper()

	s := NewMemoryStorage()
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })

	return s
}

func makeBars(symbol string, count int) []models.Bar {
	bars := make([]models.Bar, 0, count)
	for i := 0; i < count; i++ {
		bar, err := models.NewBar(
			testStart.Add(time.Duration(i)*time.Hour),
			"0.45", "0.46", "0.44", "0.455", "1000",
			symbol, "1h",
		)
		if err != nil {
			panic(err)
		}
		bars = append(bars, *bar)
	}
	return bars
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	bars := makeBars("ADAUSDT", 5)
	require.NoError(t, s.Append(ctx, bars))

	resp, err := s.Query(ctx, QueryRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     testStart,
		End:       testStart.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	assert.Len(t, resp.Bars, 5)
	assert.Equal(t, 5, resp.Total)
	assert.False(t, resp.HasMore)

	// Default ordering is ascending by timestamp.
	for i := 1; i < len(resp.Bars); i++ {
		assert.True(t, resp.Bars[i].Timestamp.After(resp.Bars[i-1].Timestamp))
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	bars := makeBars("ADAUSDT", 3)
	require.NoError(t, s.Append(ctx, bars))

	// Re-appending the same range must not duplicate or error.
	require.NoError(t, s.Append(ctx, bars))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalBars)

	// A re-append must not overwrite the original row.
	changed := bars[0]
	changed.Close = "9.99"
	changed.High = "10.00"
	require.NoError(t, s.Append(ctx, []models.Bar{changed}))

	stored, err := s.GetBarAt(ctx, "ADAUSDT", "1h", bars[0].Timestamp)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "0.455", stored.Close)
}

func TestAppendRejectsInvalidBar(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	bad := makeBars("ADAUSDT", 1)
	bad[0].Close = "-1"

	err := s.Append(ctx, bad)
	require.Error(t, err)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert", storageErr.Operation)
}

func TestQueryPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.Append(ctx, makeBars("ADAUSDT", 10)))

	resp, err := s.Query(ctx, QueryRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     testStart,
		End:       testStart.Add(24 * time.Hour),
		Limit:     4,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Bars, 4)
	assert.Equal(t, 10, resp.Total)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 4, resp.NextOffset)

	resp, err = s.Query(ctx, QueryRequest{
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
		Start:     testStart,
		End:       testStart.Add(24 * time.Hour),
		Limit:     4,
		Offset:    8,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Bars, 2)
	assert.False(t, resp.HasMore)
}

func TestQueryValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tests := []struct {
		name string
		req  QueryRequest
	}{
		{
			name: "missing symbol",
			req:  QueryRequest{Timeframe: "1h", Start: testStart, End: testStart.Add(time.Hour)},
		},
		{
			name: "end before start",
			req:  QueryRequest{Symbol: "ADAUSDT", Timeframe: "1h", Start: testStart.Add(time.Hour), End: testStart},
		},
		{
			name: "bad timeframe",
			req:  QueryRequest{Symbol: "ADAUSDT", Timeframe: "7h", Start: testStart, End: testStart.Add(time.Hour)},
		},
		{
			name: "negative offset",
			req:  QueryRequest{Symbol: "ADAUSDT", Timeframe: "1h", Start: testStart, End: testStart.Add(time.Hour), Offset: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestGetLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	// Missing data returns nil without an error.
	bar, err := s.GetLatest(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	assert.Nil(t, bar)

	require.NoError(t, s.Append(ctx, makeBars("ADAUSDT", 5)))

	bar, err = s.GetLatest(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, testStart.Add(4*time.Hour), bar.Timestamp)
}

func TestGetBarAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.Append(ctx, makeBars("ADAUSDT", 3)))

	bar, err := s.GetBarAt(ctx, "ADAUSDT", "1h", testStart.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, "ADAUSDT", bar.Symbol)

	// Missing bar is nil, not an error: the engine treats it as a gap.
	bar, err = s.GetBarAt(ctx, "ADAUSDT", "1h", testStart.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestGapLifecycleStorage(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	gap, err := models.NewGap("gap-1", "ADAUSDT", "1h", testStart, testStart.Add(4*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.StoreGap(ctx, *gap))

	// Duplicate IDs are rejected.
	require.Error(t, s.StoreGap(ctx, *gap))

	gaps, err := s.GetGaps(ctx, "ADAUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, models.GapStatusDetected, gaps[0].Status)

	filledAt := testStart.Add(5 * time.Hour)
	require.NoError(t, s.MarkGapFilled(ctx, "gap-1", filledAt))

	stored, err := s.GetGapByID(ctx, "gap-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.GapStatusFilled, stored.Status)
	require.NotNil(t, stored.FilledAt)
	assert.Equal(t, filledAt, *stored.FilledAt)

	// Second fill attempt fails.
	require.Error(t, s.MarkGapFilled(ctx, "gap-1", filledAt))

	require.NoError(t, s.DeleteGap(ctx, "gap-1"))
	stored, err = s.GetGapByID(ctx, "gap-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestTradeHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	trades := []models.TradeRecord{
		{
			ID:        "t-2",
			Timestamp: testStart.Add(time.Hour),
			Symbol1:   "ADAUSDT",
			Symbol2:   "BNBUSDT",
			Signal:    models.SignalFlat,
			Price1:    0.46,
			Price2:    310.0,
			CashAfter: 1002.5,
		},
		{
			ID:        "t-1",
			Timestamp: testStart,
			Symbol1:   "ADAUSDT",
			Symbol2:   "BNBUSDT",
			Signal:    models.SignalLongSpread,
			Qty1:      1111.11,
			Qty2:      -1.6,
			Price1:    0.45,
			Price2:    312.45,
			ZScore:    -2.3,
			CashAfter: 0,
		},
	}

	for _, trade := range trades {
		require.NoError(t, s.StoreTrade(ctx, trade))
	}

	stored, err := s.GetTrades(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// Ordered by timestamp regardless of insertion order.
	assert.Equal(t, "t-1", stored[0].ID)
	assert.Equal(t, "t-2", stored[1].ID)
}

func TestClosedStorageRejectsOperations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.Close())

	assert.Error(t, s.Append(ctx, makeBars("ADAUSDT", 1)))
	_, err := s.GetLatest(ctx, "ADAUSDT", "1h")
	assert.Error(t, err)
	assert.Error(t, s.HealthCheck(ctx))

	// Closing twice is harmless.
	assert.NoError(t, s.Close())
}
