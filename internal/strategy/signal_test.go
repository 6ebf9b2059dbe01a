package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name      string
		zscore    float64
		threshold float64
		want      models.Signal
	}{
		{name: "above threshold shorts the spread", zscore: 2.5, threshold: 2.0, want: models.SignalShortSpread},
		{name: "below negative threshold longs the spread", zscore: -2.5, threshold: 2.0, want: models.SignalLongSpread},
		{name: "inside the band is flat", zscore: 1.9, threshold: 2.0, want: models.SignalFlat},
		{name: "exactly at threshold is flat", zscore: 2.0, threshold: 2.0, want: models.SignalFlat},
		{name: "exactly at negative threshold is flat", zscore: -2.0, threshold: 2.0, want: models.SignalFlat},
		{name: "zero is flat", zscore: 0, threshold: 2.0, want: models.SignalFlat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Generate(tt.zscore, tt.threshold))
			// Purity: the same inputs always yield the same signal.
			assert.Equal(t, tt.want, Generate(tt.zscore, tt.threshold))
		})
	}
}

func TestNewSignalGeneratorValidation(t *testing.T) {
	_, err := NewSignalGenerator(0, 0.25)
	assert.Error(t, err)

	_, err = NewSignalGenerator(2.0, -0.1)
	assert.Error(t, err)

	_, err = NewSignalGenerator(2.0, 2.0)
	assert.Error(t, err, "epsilon at the threshold would close positions instantly")

	g, err := NewSignalGenerator(2.0, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 2.0, g.Threshold())
}

func TestNext(t *testing.T) {
	g, err := NewSignalGenerator(2.0, 0.25)
	require.NoError(t, err)

	tests := []struct {
		name    string
		current models.Signal
		zscore  float64
		want    models.Signal
	}{
		{name: "flat enters short above threshold", current: models.SignalFlat, zscore: 2.3, want: models.SignalShortSpread},
		{name: "flat enters long below threshold", current: models.SignalFlat, zscore: -2.3, want: models.SignalLongSpread},
		{name: "flat stays flat inside band", current: models.SignalFlat, zscore: 1.0, want: models.SignalFlat},

		{name: "short holds while z stays high", current: models.SignalShortSpread, zscore: 1.5, want: models.SignalShortSpread},
		{name: "short flattens inside epsilon", current: models.SignalShortSpread, zscore: 0.2, want: models.SignalFlat},
		{name: "short flattens on zero crossing", current: models.SignalShortSpread, zscore: -0.5, want: models.SignalFlat},
		{name: "short reverses on opposite threshold", current: models.SignalShortSpread, zscore: -2.4, want: models.SignalLongSpread},

		{name: "long holds while z stays low", current: models.SignalLongSpread, zscore: -1.5, want: models.SignalLongSpread},
		{name: "long flattens inside epsilon", current: models.SignalLongSpread, zscore: -0.1, want: models.SignalFlat},
		{name: "long flattens on zero crossing", current: models.SignalLongSpread, zscore: 0.5, want: models.SignalFlat},
		{name: "long reverses on opposite threshold", current: models.SignalLongSpread, zscore: 2.4, want: models.SignalShortSpread},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Next(tt.current, tt.zscore))
		})
	}
}

func TestNextIsDeterministic(t *testing.T) {
	g, err := NewSignalGenerator(2.0, 0.25)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, models.SignalFlat, g.Next(models.SignalShortSpread, 0.1))
	}
}
