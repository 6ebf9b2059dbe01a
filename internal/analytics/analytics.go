// Package analytics computes the indicator set used to evaluate candidate
// trading pairs: simple moving averages, rolling volatility, and the Pearson
// correlation between two aligned close series. All functions are pure.
package analytics

import (
	"fmt"
	"math"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// ClosePrices extracts the close series from a bar sequence, preserving
// order. Bars with unparseable close prices produce an error rather than a
// silent hole in the series.
func ClosePrices(bars []models.Bar) ([]float64, error) {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		c, err := bar.CloseFloat()
		if err != nil {
			return nil, fmt.Errorf("bar %s at %s has invalid close: %w",
				bar.Symbol, bar.Timestamp, err)
		}
		closes[i] = c
	}
	return closes, nil
}

// SMA returns the simple moving average of the series with the given window.
// The result has len(series) - window + 1 entries; the first covers
// series[0:window].
func SMA(series []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be at least 1, got %d", window)
	}
	if len(series) < window {
		return nil, fmt.Errorf("series of %d values is shorter than window %d", len(series), window)
	}

	out := make([]float64, 0, len(series)-window+1)

	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}

	return out, nil
}

// PercentChanges returns the period-over-period fractional changes of the
// series. The result is one shorter than the input.
func PercentChanges(series []float64) ([]float64, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("need at least 2 values, got %d", len(series))
	}

	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			return nil, fmt.Errorf("zero value at index %d makes the change undefined", i-1)
		}
		out = append(out, (series[i]-prev)/prev)
	}

	return out, nil
}

// Volatility returns the sample standard deviation of the series' percent
// changes, annualized by sqrt(periodsPerUnit) and expressed in percent.
// For hourly bars, periodsPerUnit 24 yields daily volatility.
func Volatility(series []float64, periodsPerUnit int) (float64, error) {
	if periodsPerUnit < 1 {
		return 0, fmt.Errorf("periods per unit must be at least 1, got %d", periodsPerUnit)
	}

	changes, err := PercentChanges(series)
	if err != nil {
		return 0, err
	}
	if len(changes) < 2 {
		return 0, fmt.Errorf("need at least 3 values to estimate volatility, got %d", len(series))
	}

	return stdDev(changes) * math.Sqrt(float64(periodsPerUnit)) * 100, nil
}

// Correlation returns the Pearson correlation coefficient between two
// aligned series. Both series must have the same length and at least two
// points; a series with zero variance has no defined correlation.
func Correlation(series1, series2 []float64) (float64, error) {
	if len(series1) != len(series2) {
		return 0, fmt.Errorf("series lengths differ: %d vs %d", len(series1), len(series2))
	}
	if len(series1) < 2 {
		return 0, fmt.Errorf("need at least 2 values, got %d", len(series1))
	}

	n := float64(len(series1))

	var sum1, sum2 float64
	for i := range series1 {
		sum1 += series1[i]
		sum2 += series2[i]
	}
	mean1 := sum1 / n
	mean2 := sum2 / n

	var cov, var1, var2 float64
	for i := range series1 {
		d1 := series1[i] - mean1
		d2 := series2[i] - mean2
		cov += d1 * d2
		var1 += d1 * d1
		var2 += d2 * d2
	}

	if var1 == 0 || var2 == 0 {
		return 0, fmt.Errorf("correlation is undefined for a constant series")
	}

	return cov / math.Sqrt(var1*var2), nil
}

// stdDev returns the sample standard deviation of values.
// Callers guarantee len(values) >= 2.
func stdDev(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}

	return math.Sqrt(sq / float64(len(values)-1))
}
