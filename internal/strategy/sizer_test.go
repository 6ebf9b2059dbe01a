package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

func TestNewPositionSizerValidation(t *testing.T) {
	_, err := NewPositionSizer(0)
	assert.Error(t, err)

	_, err = NewPositionSizer(1.5)
	assert.Error(t, err)

	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Allocation())
}

func TestSizeLongSpread(t *testing.T) {
	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)

	// 1000 capital split across ADAUSDT at 0.45 and BNBUSDT at 312.45.
	qty1, qty2, err := s.Size(models.SignalLongSpread, 1000, 0.45, 312.45)
	require.NoError(t, err)

	assert.InDelta(t, 1111.1, qty1, 0.1)
	assert.InDelta(t, -1.600, qty2, 0.001)
}

func TestSizeShortSpreadMirrorsLong(t *testing.T) {
	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)

	longQty1, longQty2, err := s.Size(models.SignalLongSpread, 1000, 0.45, 312.45)
	require.NoError(t, err)

	shortQty1, shortQty2, err := s.Size(models.SignalShortSpread, 1000, 0.45, 312.45)
	require.NoError(t, err)

	assert.Equal(t, -longQty1, shortQty1)
	assert.Equal(t, -longQty2, shortQty2)
}

func TestSizeFlatTargetsZero(t *testing.T) {
	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)

	qty1, qty2, err := s.Size(models.SignalFlat, 1000, 0.45, 312.45)
	require.NoError(t, err)
	assert.Zero(t, qty1)
	assert.Zero(t, qty2)
}

func TestSizeRejectsBadInput(t *testing.T) {
	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)

	tests := []struct {
		name    string
		signal  models.Signal
		capital float64
		price1  float64
		price2  float64
	}{
		{name: "zero capital", signal: models.SignalLongSpread, capital: 0, price1: 0.45, price2: 312.45},
		{name: "negative capital", signal: models.SignalLongSpread, capital: -100, price1: 0.45, price2: 312.45},
		{name: "zero price1", signal: models.SignalLongSpread, capital: 1000, price1: 0, price2: 312.45},
		{name: "negative price2", signal: models.SignalLongSpread, capital: 1000, price1: 0.45, price2: -1},
		{name: "invalid signal", signal: models.Signal(5), capital: 1000, price1: 0.45, price2: 312.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Size(tt.signal, tt.capital, tt.price1, tt.price2)
			assert.Error(t, err)
		})
	}
}

func TestNotionalNeverExceedsAllocation(t *testing.T) {
	s, err := NewPositionSizer(0.5)
	require.NoError(t, err)

	cases := []struct {
		capital, price1, price2 float64
	}{
		{1000, 0.45, 312.45},
		{50000, 2.5, 0.0001},
		{1, 100000, 0.5},
	}

	for _, c := range cases {
		qty1, qty2, err := s.Size(models.SignalShortSpread, c.capital, c.price1, c.price2)
		require.NoError(t, err)

		limit := 0.5*c.capital + 1e-9
		assert.LessOrEqual(t, math.Abs(qty1)*c.price1, limit)
		assert.LessOrEqual(t, math.Abs(qty2)*c.price2, limit)
	}
}
