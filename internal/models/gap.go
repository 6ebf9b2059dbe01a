package models

import (
	"errors"
	"fmt"
	"time"
)

// GapStatus represents the lifecycle of a detected data gap.
type GapStatus string

const (
	// GapStatusDetected indicates a gap has been identified but not filled.
	GapStatusDetected GapStatus = "detected"
	// GapStatusFilled indicates the gap has been backfilled from the exchange.
	GapStatusFilled GapStatus = "filled"
	// GapStatusPermanent indicates the exchange has no data for the range.
	GapStatusPermanent GapStatus = "permanent"
)

// Gap represents a missing period in stored bar data for one symbol and
// timeframe. The backtester tolerates gaps by carrying the last signal
// forward; the collector uses gap records to drive backfill.
type Gap struct {
	ID        string     `json:"id" db:"id"`
	Symbol    string     `json:"symbol" db:"symbol"`
	Timeframe string     `json:"timeframe" db:"timeframe"`
	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   time.Time  `json:"end_time" db:"end_time"`
	Status    GapStatus  `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty" db:"filled_at"`
	// Reason carries the explanation for permanent gaps.
	Reason string `json:"reason,omitempty" db:"reason"`
}

// NewGap creates a detected Gap covering [startTime, endTime).
// Returns an error if the parameters are inconsistent.
func NewGap(id, symbol, timeframe string, startTime, endTime time.Time) (*Gap, error) {
	gap := &Gap{
		ID:        id,
		Symbol:    symbol,
		Timeframe: timeframe,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    GapStatusDetected,
		CreatedAt: time.Now().UTC(),
	}

	if err := gap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gap: %w", err)
	}
	return gap, nil
}

// Validate checks the gap record for structural consistency.
func (g *Gap) Validate() error {
	if g.ID == "" {
		return errors.New("gap ID cannot be empty")
	}
	if g.Symbol == "" {
		return errors.New("gap symbol cannot be empty")
	}
	if g.Timeframe == "" {
		return errors.New("gap timeframe cannot be empty")
	}
	if g.StartTime.IsZero() || g.EndTime.IsZero() {
		return errors.New("gap start and end times must be set")
	}
	if !g.EndTime.After(g.StartTime) {
		return errors.New("gap end time must be after start time")
	}

	switch g.Status {
	case GapStatusDetected, GapStatusFilled, GapStatusPermanent:
	default:
		return fmt.Errorf("invalid gap status: %s", g.Status)
	}

	if g.Status == GapStatusFilled && g.FilledAt == nil {
		return errors.New("filled gaps must have a filled_at timestamp")
	}
	if g.Status != GapStatusFilled && g.FilledAt != nil {
		return errors.New("only filled gaps can have a filled_at timestamp")
	}

	return nil
}

// MarkFilled transitions the gap to filled status.
// Returns an error if the gap is not currently detected.
func (g *Gap) MarkFilled() error {
	if g.Status != GapStatusDetected {
		return fmt.Errorf("cannot mark gap as filled with status %s, must be %s", g.Status, GapStatusDetected)
	}
	g.Status = GapStatusFilled
	now := time.Now().UTC()
	g.FilledAt = &now
	return nil
}

// MarkPermanent transitions the gap to permanent status with a reason.
// Returns an error if the gap is not currently detected.
func (g *Gap) MarkPermanent(reason string) error {
	if g.Status != GapStatusDetected {
		return fmt.Errorf("cannot mark gap as permanent with status %s, must be %s", g.Status, GapStatusDetected)
	}
	g.Status = GapStatusPermanent
	g.Reason = reason
	return nil
}

// Duration returns the time span covered by the gap.
func (g *Gap) Duration() time.Duration {
	return g.EndTime.Sub(g.StartTime)
}

// ExpectedBars estimates the number of bars needed to fill this gap based
// on the gap duration and timeframe. Returns an error for unsupported
// timeframe formats.
func (g *Gap) ExpectedBars() (int, error) {
	step, err := TimeframeDuration(g.Timeframe)
	if err != nil {
		return 0, err
	}

	expected := int(g.Duration() / step)
	if expected == 0 {
		expected = 1
	}
	return expected, nil
}

// String returns a human-readable representation of the gap.
func (g *Gap) String() string {
	return fmt.Sprintf("Gap{ID: %s, Symbol: %s, Timeframe: %s, Duration: %v, Status: %s}",
		g.ID, g.Symbol, g.Timeframe, g.Duration(), g.Status)
}
