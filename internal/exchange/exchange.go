// Package exchange defines interfaces for exchange adapters that provide
// OHLCV bars and live ticker prices to the collector and the trading engine.
//
// The interfaces are small and composable; implementations handle rate
// limiting, pagination, and retry internally.
package exchange

import (
	"context"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// BarFetcher retrieves OHLCV bar data from exchanges.
//
// Implementations should validate request parameters, respect API rate
// limits, return bars in chronological order (oldest first), and chunk
// large ranges transparently. An empty requested range returns an empty
// slice without error.
type BarFetcher interface {
	// FetchBars retrieves OHLCV data for a symbol and time range.
	FetchBars(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// TickerFetcher retrieves the current price for a symbol. The live trading
// loop uses this between bar closes.
type TickerFetcher interface {
	// GetTicker returns the latest traded price for the symbol.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
}

// RateLimitInfo provides rate limiting information and management.
type RateLimitInfo interface {
	// GetLimits returns the current rate limiting configuration.
	GetLimits() RateLimit

	// WaitForLimit blocks until the rate limit allows another request.
	// Returns an error if the context is cancelled while waiting.
	WaitForLimit(ctx context.Context) error
}

// HealthChecker provides health monitoring for exchange connections.
// Implementations should use lightweight endpoints and minimal quota.
type HealthChecker interface {
	// HealthCheck verifies the exchange is reachable and responding.
	HealthCheck(ctx context.Context) error
}

// Adapter combines all exchange capabilities into a single interface.
// This is the main interface exchange implementations satisfy.
type Adapter interface {
	BarFetcher
	TickerFetcher
	RateLimitInfo
	HealthChecker
}

// FetchRequest specifies parameters for fetching OHLCV bar data.
type FetchRequest struct {
	// Symbol is the instrument symbol (e.g., "ADAUSDT")
	Symbol string `json:"symbol"`

	// Start is the beginning of the time range to fetch (inclusive)
	Start time.Time `json:"start"`

	// End is the end of the time range to fetch (exclusive)
	End time.Time `json:"end"`

	// Timeframe specifies the bar timeframe (e.g., "1m", "1h", "1d")
	Timeframe string `json:"timeframe"`

	// Limit is the maximum number of bars to return in total.
	// A value of 0 means no limit.
	Limit int `json:"limit,omitempty"`
}

// FetchResponse contains the results of a bar fetch operation.
type FetchResponse struct {
	// Bars contains the OHLCV data ordered chronologically (oldest first)
	Bars []models.Bar `json:"bars"`

	// RateLimit contains current rate limiting status information
	RateLimit RateLimitStatus `json:"rate_limit"`
}

// Ticker is a point-in-time price observation for a symbol.
type Ticker struct {
	// Symbol is the instrument symbol
	Symbol string `json:"symbol"`

	// Price is the latest traded price as a decimal string
	Price string `json:"price"`

	// Timestamp is when the price was observed
	Timestamp time.Time `json:"timestamp"`
}

// RateLimit defines the rate limiting configuration for an exchange.
type RateLimit struct {
	// RequestsPerSecond is the maximum number of requests allowed per second
	RequestsPerSecond int `json:"requests_per_second"`

	// BurstSize is the maximum number of requests allowed in a burst
	BurstSize int `json:"burst_size"`

	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration `json:"window_duration"`
}

// RateLimitStatus provides current rate limiting state information.
type RateLimitStatus struct {
	// Remaining is the number of requests remaining in the current window
	Remaining int `json:"remaining"`

	// ResetTime is when the rate limit window resets
	ResetTime time.Time `json:"reset_time"`

	// RetryAfter is the duration to wait before making the next request.
	// Zero indicates no waiting is required.
	RetryAfter time.Duration `json:"retry_after"`
}

// Validate checks if the FetchRequest has valid parameters.
func (r *FetchRequest) Validate() error {
	if r.Symbol == "" {
		return &models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	if r.Timeframe == "" {
		return &models.ValidationError{Field: "timeframe", Message: "timeframe cannot be empty"}
	}

	if _, err := models.TimeframeDuration(r.Timeframe); err != nil {
		return &models.ValidationError{Field: "timeframe", Message: err.Error()}
	}

	if r.Start.IsZero() {
		return &models.ValidationError{Field: "start", Message: "start time cannot be zero"}
	}

	if r.End.IsZero() {
		return &models.ValidationError{Field: "end", Message: "end time cannot be zero"}
	}

	if !r.End.After(r.Start) {
		return &models.ValidationError{Field: "end", Message: "end time must be after start time"}
	}

	if r.Limit < 0 {
		return &models.ValidationError{Field: "limit", Message: "limit cannot be negative"}
	}

	return nil
}

// Duration returns the time span of the fetch request.
func (r *FetchRequest) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// HasCapacity returns true if there are remaining requests available.
func (rls *RateLimitStatus) HasCapacity() bool {
	return rls.Remaining > 0
}

// NeedsWait returns true if a wait is required before the next request.
func (rls *RateLimitStatus) NeedsWait() bool {
	return rls.RetryAfter > 0
}
