// Package strategy implements the pair-trading signal pipeline: the rolling
// spread model, the threshold signal rules, and position sizing. All three
// are deterministic; the only state is the spread model's rolling window.
package strategy

import (
	"fmt"
	"math"
	"time"
)

// SpreadObservation is one derived spread sample. Ready is false while the
// window is warming up or spread volatility is below the floor; callers must
// treat a not-ready observation as flat.
type SpreadObservation struct {
	Timestamp time.Time `json:"timestamp"`
	Price1    float64   `json:"price1"`
	Price2    float64   `json:"price2"`
	Spread    float64   `json:"spread"`
	ZScore    float64   `json:"z_score"`
	Ready     bool      `json:"ready"`
}

// SpreadModel maintains a fixed-size rolling window of log-price spreads and
// standardizes each new spread against the window. Eviction is strict FIFO.
type SpreadModel struct {
	lookback  int
	minStdDev float64

	window   []float64
	lastTick time.Time
}

// NewSpreadModel creates a spread model with the given lookback window size
// and volatility floor.
func NewSpreadModel(lookback int, minStdDev float64) (*SpreadModel, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("lookback must be at least 2, got %d", lookback)
	}
	if minStdDev <= 0 {
		return nil, fmt.Errorf("volatility floor must be greater than 0, got %f", minStdDev)
	}

	return &SpreadModel{
		lookback:  lookback,
		minStdDev: minStdDev,
		window:    make([]float64, 0, lookback),
	}, nil
}

// Update ingests one price pair and returns the resulting spread observation.
// The spread is ln(price1) - ln(price2). Timestamps must be strictly
// increasing; a duplicate or out-of-order timestamp is rejected without
// touching the window.
func (m *SpreadModel) Update(price1, price2 float64, timestamp time.Time) (SpreadObservation, error) {
	if price1 <= 0 {
		return SpreadObservation{}, fmt.Errorf("price1 must be greater than 0, got %f", price1)
	}
	if price2 <= 0 {
		return SpreadObservation{}, fmt.Errorf("price2 must be greater than 0, got %f", price2)
	}
	if timestamp.IsZero() {
		return SpreadObservation{}, fmt.Errorf("timestamp must be set")
	}
	if !m.lastTick.IsZero() && !timestamp.After(m.lastTick) {
		return SpreadObservation{}, fmt.Errorf("timestamp %s is not after the last observation %s",
			timestamp.Format(time.RFC3339), m.lastTick.Format(time.RFC3339))
	}

	spread := math.Log(price1) - math.Log(price2)

	m.window = append(m.window, spread)
	if len(m.window) > m.lookback {
		m.window = m.window[1:]
	}
	m.lastTick = timestamp

	obs := SpreadObservation{
		Timestamp: timestamp,
		Price1:    price1,
		Price2:    price2,
		Spread:    spread,
	}

	if len(m.window) < 2 {
		return obs, nil
	}

	mean, stddev := meanStdDev(m.window)
	if stddev < m.minStdDev {
		return obs, nil
	}

	obs.ZScore = (spread - mean) / stddev
	obs.Ready = true
	return obs, nil
}

// Window returns a copy of the current spread window, oldest first. Used
// when snapshotting engine state.
func (m *SpreadModel) Window() []float64 {
	out := make([]float64, len(m.window))
	copy(out, m.window)
	return out
}

// Size returns the number of spreads currently in the window.
func (m *SpreadModel) Size() int {
	return len(m.window)
}

// Restore replaces the window with a previously snapshotted one, keeping at
// most the newest lookback values. The timestamp guard is reset; the next
// Update accepts any timestamp.
func (m *SpreadModel) Restore(window []float64) {
	if len(window) > m.lookback {
		window = window[len(window)-m.lookback:]
	}
	m.window = make([]float64, len(window))
	copy(m.window, window)
	m.lastTick = time.Time{}
}

// Reset clears the window and the timestamp guard.
func (m *SpreadModel) Reset() {
	m.window = m.window[:0]
	m.lastTick = time.Time{}
}

// meanStdDev computes the mean and sample standard deviation of values.
// Callers guarantee len(values) >= 2.
func meanStdDev(values []float64) (float64, float64) {
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
	variance := sq / float64(len(values)-1)

	return mean, math.Sqrt(variance)
}
