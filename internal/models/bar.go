// Package models provides the data structures shared across the pair trader:
// OHLCV bars, trade signals, trade records, portfolio and trader state
// snapshots, and data gaps.
package models

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents OHLCV price and volume data for a single symbol over one
// timeframe period. Prices are carried as decimal strings to avoid float
// drift between the exchange, storage, and the strategy layer.
type Bar struct {
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Open      string    `json:"open" db:"open"`
	High      string    `json:"high" db:"high"`
	Low       string    `json:"low" db:"low"`
	Close     string    `json:"close" db:"close"`
	Volume    string    `json:"volume" db:"volume"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Timeframe string    `json:"timeframe" db:"timeframe"`
}

// ValidationError represents a bar validation error with field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message describes the validation failure
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate performs comprehensive validation on the bar data.
// All price fields must parse as decimals greater than zero, volume must be
// non-negative, the OHLC relationships must hold (high >= max(open, close),
// low <= min(open, close)), and symbol/timeframe must be set.
func (b *Bar) Validate() error {
	if b.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}

	open, err := decimal.NewFromString(b.Open)
	if err != nil {
		return &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}

	high, err := decimal.NewFromString(b.High)
	if err != nil {
		return &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}

	low, err := decimal.NewFromString(b.Low)
	if err != nil {
		return &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}

	closePrice, err := decimal.NewFromString(b.Close)
	if err != nil {
		return &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}

	volume, err := decimal.NewFromString(b.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}

	zero := decimal.Zero
	if open.LessThanOrEqual(zero) {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if high.LessThanOrEqual(zero) {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if low.LessThanOrEqual(zero) {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if closePrice.LessThanOrEqual(zero) {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if volume.LessThan(zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOpenClose := decimal.Max(open, closePrice)
	if high.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", high, maxOpenClose),
		}
	}

	minOpenClose := decimal.Min(open, closePrice)
	if low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", low, minOpenClose),
		}
	}

	if b.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if b.Timeframe == "" {
		return &ValidationError{Field: "timeframe", Message: "timeframe cannot be empty"}
	}

	return nil
}

// Key returns the uniqueness key for the bar. Two bars with the same key are
// the same observation; storage treats re-appending an identical key as a
// no-op.
func (b *Bar) Key() string {
	return fmt.Sprintf("%s|%s|%d", b.Symbol, b.Timeframe, b.Timestamp.UTC().UnixMilli())
}

// GetOpenDecimal returns the open price as a decimal.Decimal.
func (b *Bar) GetOpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(b.Open)
}

// GetHighDecimal returns the high price as a decimal.Decimal.
func (b *Bar) GetHighDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(b.High)
}

// GetLowDecimal returns the low price as a decimal.Decimal.
func (b *Bar) GetLowDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(b.Low)
}

// GetCloseDecimal returns the close price as a decimal.Decimal.
func (b *Bar) GetCloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(b.Close)
}

// GetVolumeDecimal returns the volume as a decimal.Decimal.
func (b *Bar) GetVolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(b.Volume)
}

// CloseFloat returns the close price as a float64 for statistical work.
// The strategy layer operates on floats; precision at that point is bounded
// by the z-score math itself, not the representation.
func (b *Bar) CloseFloat() (float64, error) {
	d, err := b.GetCloseDecimal()
	if err != nil {
		return 0, fmt.Errorf("failed to parse close price: %w", err)
	}
	return d.InexactFloat64(), nil
}

// LogClose returns the natural log of the close price. The pair spread is
// computed on log prices so the two legs are comparable across price levels.
// Returns an error if the close cannot be parsed or is not positive.
func (b *Bar) LogClose() (float64, error) {
	c, err := b.CloseFloat()
	if err != nil {
		return 0, err
	}
	if c <= 0 {
		return 0, &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	return math.Log(c), nil
}

// GetRange calculates the bar's price range: High - Low.
func (b *Bar) GetRange() (decimal.Decimal, error) {
	high, err := b.GetHighDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse high price: %w", err)
	}

	low, err := b.GetLowDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse low price: %w", err)
	}

	return high.Sub(low), nil
}

// GetPriceChangePercent calculates ((Close - Open) / Open) * 100.
// Returns an error if the prices cannot be parsed or the open is zero.
func (b *Bar) GetPriceChangePercent() (decimal.Decimal, error) {
	open, err := b.GetOpenDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse open price: %w", err)
	}

	if open.IsZero() {
		return decimal.Zero, fmt.Errorf("cannot calculate percentage change with zero open price")
	}

	closePrice, err := b.GetCloseDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse close price: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	return closePrice.Sub(open).Div(open).Mul(hundred), nil
}

// String returns a human-readable representation of the bar.
// This method implements the fmt.Stringer interface.
func (b *Bar) String() string {
	return fmt.Sprintf("Bar{Symbol: %s, Timeframe: %s, Timestamp: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		b.Symbol, b.Timeframe, b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// NewBar creates a new Bar instance with the provided parameters and
// validates it. All price and volume values are decimal strings; the
// timestamp is the start of the bar period.
//
// Example:
//
//	bar, err := NewBar(time.Now(), "0.45", "0.46", "0.44", "0.455", "12500", "ADAUSDT", "1h")
func NewBar(timestamp time.Time, open, high, low, closePrice, volume, symbol, timeframe string) (*Bar, error) {
	bar := &Bar{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Symbol:    symbol,
		Timeframe: timeframe,
	}

	if err := bar.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create bar: %w", err)
	}

	return bar, nil
}

// TimeframeDuration converts a timeframe string to its duration.
// Returns an error for unsupported formats.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
}
