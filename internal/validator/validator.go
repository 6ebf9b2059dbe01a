// Package validator screens collected bars before they reach storage. It
// separates structural problems (malformed prices, broken OHLC relationships,
// duplicate timestamps) from statistical anomalies (price spikes, volume
// surges). Structurally invalid bars are dropped; anomalous bars are kept
// and flagged, since a real market move and a bad print look identical at
// collection time.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// Anomaly kinds reported by the screen.
const (
	AnomalyPriceSpike  = "price_spike"
	AnomalyVolumeSurge = "volume_surge"
)

// Config sets the anomaly thresholds.
type Config struct {
	// PriceSpikeRatio flags a bar whose close moved more than this ratio
	// from the previous close, in either direction.
	PriceSpikeRatio decimal.Decimal

	// VolumeSurgeRatio flags a bar whose volume exceeds this multiple of
	// the rolling average volume.
	VolumeSurgeRatio decimal.Decimal

	// VolumeWindow is the number of preceding bars in the rolling volume
	// average. Surge detection starts once the window is full.
	VolumeWindow int
}

// DefaultConfig returns thresholds tuned for crypto pairs: a 5x close-to-close
// move or 10x the rolling average volume is worth flagging.
func DefaultConfig() Config {
	return Config{
		PriceSpikeRatio:  decimal.NewFromInt(5),
		VolumeSurgeRatio: decimal.NewFromInt(10),
		VolumeWindow:     20,
	}
}

// Anomaly describes a statistically suspicious but structurally valid bar.
type Anomaly struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	Reference decimal.Decimal `json:"reference"`
}

// String returns a short description of the anomaly.
func (a Anomaly) String() string {
	return fmt.Sprintf("%s %s@%s: %s vs reference %s",
		a.Kind, a.Symbol, a.Timestamp.Format(time.RFC3339), a.Value, a.Reference)
}

// InvalidBar pairs a rejected bar with the reason it was rejected.
type InvalidBar struct {
	Bar models.Bar
	Err error
}

// Result is the outcome of screening one batch of bars.
type Result struct {
	// Valid holds the bars that passed structural validation, sorted by
	// timestamp ascending. Anomalous bars are included here.
	Valid []models.Bar

	// Invalid holds the dropped bars with their rejection reasons.
	Invalid []InvalidBar

	// Anomalies flags suspicious bars within Valid.
	Anomalies []Anomaly
}

// BarValidator screens batches of bars for one symbol and timeframe.
type BarValidator struct {
	cfg    Config
	logger *slog.Logger
}

// NewBarValidator creates a validator with the given thresholds.
func NewBarValidator(cfg Config, logger *slog.Logger) (*BarValidator, error) {
	if cfg.PriceSpikeRatio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("price spike ratio must be greater than 1")
	}
	if cfg.VolumeSurgeRatio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("volume surge ratio must be greater than 1")
	}
	if cfg.VolumeWindow < 2 {
		return nil, fmt.Errorf("volume window must be at least 2")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BarValidator{
		cfg:    cfg,
		logger: logger.With("component", "validator"),
	}, nil
}

// Screen validates a batch of bars. The input is not modified; the returned
// Valid slice is a sorted copy with structurally invalid and duplicate bars
// removed.
func (v *BarValidator) Screen(ctx context.Context, bars []models.Bar) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	result := &Result{}
	seen := make(map[string]bool, len(sorted))

	for _, bar := range sorted {
		if err := bar.Validate(); err != nil {
			result.Invalid = append(result.Invalid, InvalidBar{Bar: bar, Err: err})
			continue
		}

		key := bar.Key()
		if seen[key] {
			result.Invalid = append(result.Invalid, InvalidBar{
				Bar: bar,
				Err: fmt.Errorf("duplicate bar for %s", key),
			})
			continue
		}
		seen[key] = true

		result.Valid = append(result.Valid, bar)
	}

	result.Anomalies = v.detectAnomalies(result.Valid)

	for _, inv := range result.Invalid {
		v.logger.Warn("bar rejected",
			"symbol", inv.Bar.Symbol,
			"timestamp", inv.Bar.Timestamp,
			"error", inv.Err,
		)
	}
	for _, a := range result.Anomalies {
		v.logger.Warn("bar anomaly detected",
			"kind", a.Kind,
			"symbol", a.Symbol,
			"timestamp", a.Timestamp,
			"value", a.Value.String(),
			"reference", a.Reference.String(),
		)
	}

	return result, nil
}

// detectAnomalies walks the validated, sorted bars looking for price spikes
// and volume surges. Bars passed here have already parsed successfully, so
// decimal conversions cannot fail.
func (v *BarValidator) detectAnomalies(bars []models.Bar) []Anomaly {
	var anomalies []Anomaly

	var prevClose decimal.Decimal
	volumes := make([]decimal.Decimal, 0, v.cfg.VolumeWindow)

	for i := range bars {
		bar := &bars[i]
		closePrice, _ := bar.GetCloseDecimal()
		volume, _ := bar.GetVolumeDecimal()

		if i > 0 && prevClose.IsPositive() {
			ratio := closePrice.Div(prevClose)
			inverse := decimal.NewFromInt(1).Div(v.cfg.PriceSpikeRatio)
			if ratio.GreaterThan(v.cfg.PriceSpikeRatio) || ratio.LessThan(inverse) {
				anomalies = append(anomalies, Anomaly{
					Symbol:    bar.Symbol,
					Timeframe: bar.Timeframe,
					Timestamp: bar.Timestamp,
					Kind:      AnomalyPriceSpike,
					Value:     closePrice,
					Reference: prevClose,
				})
			}
		}
		prevClose = closePrice

		if len(volumes) >= v.cfg.VolumeWindow {
			avg := averageDecimal(volumes)
			if avg.IsPositive() && volume.GreaterThan(avg.Mul(v.cfg.VolumeSurgeRatio)) {
				anomalies = append(anomalies, Anomaly{
					Symbol:    bar.Symbol,
					Timeframe: bar.Timeframe,
					Timestamp: bar.Timestamp,
					Kind:      AnomalyVolumeSurge,
					Value:     volume,
					Reference: avg,
				})
			}
			volumes = volumes[1:]
		}
		volumes = append(volumes, volume)
	}

	return anomalies
}

func averageDecimal(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
