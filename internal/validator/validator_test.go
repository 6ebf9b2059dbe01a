package validator

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

var screenStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testValidator(t *testing.T, cfg Config) *BarValidator {
	t.Helper()

	v, err := NewBarValidator(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return v
}

func barAt(hourOffset int, close string, volume string) models.Bar {
	return models.Bar{
		Timestamp: screenStart.Add(time.Duration(hourOffset) * time.Hour),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    volume,
		Symbol:    "ADAUSDT",
		Timeframe: "1h",
	}
}

func TestNewBarValidatorValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewBarValidator(Config{
		PriceSpikeRatio:  decimal.NewFromInt(1),
		VolumeSurgeRatio: decimal.NewFromInt(10),
		VolumeWindow:     20,
	}, logger)
	assert.Error(t, err, "spike ratio at 1 flags every bar")

	_, err = NewBarValidator(Config{
		PriceSpikeRatio:  decimal.NewFromInt(5),
		VolumeSurgeRatio: decimal.NewFromInt(1),
		VolumeWindow:     20,
	}, logger)
	assert.Error(t, err)

	_, err = NewBarValidator(Config{
		PriceSpikeRatio:  decimal.NewFromInt(5),
		VolumeSurgeRatio: decimal.NewFromInt(10),
		VolumeWindow:     1,
	}, logger)
	assert.Error(t, err)
}

func TestScreenDropsInvalidBars(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	bad := barAt(1, "0.45", "100")
	bad.High = "0.40" // high below close

	unparseable := barAt(2, "0.45", "100")
	unparseable.Close = "not-a-price"

	result, err := v.Screen(context.Background(), []models.Bar{
		barAt(0, "0.45", "100"),
		bad,
		unparseable,
		barAt(3, "0.46", "100"),
	})
	require.NoError(t, err)

	assert.Len(t, result.Valid, 2)
	assert.Len(t, result.Invalid, 2)
	assert.Empty(t, result.Anomalies)
}

func TestScreenDropsDuplicates(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	result, err := v.Screen(context.Background(), []models.Bar{
		barAt(0, "0.45", "100"),
		barAt(0, "0.46", "200"),
		barAt(1, "0.45", "100"),
	})
	require.NoError(t, err)

	assert.Len(t, result.Valid, 2)
	require.Len(t, result.Invalid, 1)
	assert.Contains(t, result.Invalid[0].Err.Error(), "duplicate")
}

func TestScreenSortsOutOfOrderInput(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	result, err := v.Screen(context.Background(), []models.Bar{
		barAt(2, "0.47", "100"),
		barAt(0, "0.45", "100"),
		barAt(1, "0.46", "100"),
	})
	require.NoError(t, err)

	require.Len(t, result.Valid, 3)
	assert.True(t, result.Valid[0].Timestamp.Before(result.Valid[1].Timestamp))
	assert.True(t, result.Valid[1].Timestamp.Before(result.Valid[2].Timestamp))
}

func TestScreenFlagsPriceSpike(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	result, err := v.Screen(context.Background(), []models.Bar{
		barAt(0, "0.45", "100"),
		barAt(1, "4.00", "100"), // nearly 9x the previous close
		barAt(2, "0.45", "100"), // and nearly 9x back down
	})
	require.NoError(t, err)

	// Spiked bars are kept but flagged.
	assert.Len(t, result.Valid, 3)
	require.Len(t, result.Anomalies, 2)
	assert.Equal(t, AnomalyPriceSpike, result.Anomalies[0].Kind)
	assert.Equal(t, AnomalyPriceSpike, result.Anomalies[1].Kind)
}

func TestScreenFlagsVolumeSurge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolumeWindow = 3
	v := testValidator(t, cfg)

	var bars []models.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, barAt(i, "0.45", "100"))
	}
	bars = append(bars, barAt(5, "0.45", "5000")) // 50x the rolling average

	result, err := v.Screen(context.Background(), bars)
	require.NoError(t, err)

	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, AnomalyVolumeSurge, result.Anomalies[0].Kind)
	assert.Equal(t, "5000", result.Anomalies[0].Value.String())
}

func TestScreenQuietSeriesHasNoAnomalies(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	var bars []models.Bar
	for i := 0; i < 30; i++ {
		close := strconv.FormatFloat(0.45+float64(i)*0.001, 'f', -1, 64)
		bars = append(bars, barAt(i, close, "100"))
	}

	result, err := v.Screen(context.Background(), bars)
	require.NoError(t, err)
	assert.Len(t, result.Valid, 30)
	assert.Empty(t, result.Anomalies)
}

func TestScreenHonorsCancellation(t *testing.T) {
	v := testValidator(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Screen(ctx, []models.Bar{barAt(0, "0.45", "100")})
	assert.ErrorIs(t, err, context.Canceled)
}
