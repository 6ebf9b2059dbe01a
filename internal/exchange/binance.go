// Binance spot market adapter.
//
// Uses the public /api/v3 endpoints (no authentication is required for
// market data) with client-side rate limiting, exponential backoff retry,
// and conversion to internal models.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

const (
	// Binance spot API base URL
	binanceBaseURL = "https://api.binance.com"

	// API endpoints
	klinesEndpoint = "/api/v3/klines"
	tickerEndpoint = "/api/v3/ticker/price"
	pingEndpoint   = "/api/v3/ping"

	// Rate limiting configuration
	maxRequestsPerSecond = 10
	rateLimitBurst       = 1
	rateLimitWindow      = time.Second

	// Request configuration
	maxBarsPerRequest = 1000
	requestTimeout    = 30 * time.Second

	// Retry configuration
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
	retryMultiplier   = 2.0
	retryJitter       = 0.5

	// Health check configuration
	healthCheckTimeout = 5 * time.Second
)

// BinanceAdapter implements the Adapter interface for the Binance spot API.
type BinanceAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	logger      *slog.Logger
}

// NewBinanceAdapter creates a new Binance exchange adapter with default
// configuration.
func NewBinanceAdapter() *BinanceAdapter {
	return &BinanceAdapter{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(maxRequestsPerSecond), rateLimitBurst),
		baseURL:     binanceBaseURL,
		logger:      slog.Default(),
	}
}

// NewBinanceAdapterWithLogger creates a new Binance adapter with a custom logger.
func NewBinanceAdapterWithLogger(logger *slog.Logger) *BinanceAdapter {
	adapter := NewBinanceAdapter()
	adapter.logger = logger
	return adapter
}

// SetBaseURL overrides the API base URL. Used for testing and for routing
// through a proxy.
func (b *BinanceAdapter) SetBaseURL(baseURL string) {
	b.baseURL = baseURL
}

// SetRateLimit replaces the client-side limiter configuration.
func (b *BinanceAdapter) SetRateLimit(requestsPerSecond int) {
	if requestsPerSecond > 0 {
		b.rateLimiter = rate.NewLimiter(rate.Limit(requestsPerSecond), rateLimitBurst)
	}
}

// FetchBars implements the BarFetcher interface.
func (b *BinanceAdapter) FetchBars(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	b.logger.Debug("fetching bars from Binance",
		"symbol", req.Symbol,
		"start", req.Start,
		"end", req.End,
		"timeframe", req.Timeframe)

	barDuration, err := models.TimeframeDuration(req.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("unsupported timeframe: %w", err)
	}

	chunks := calculateChunks(req.Start, req.End, barDuration, req.Limit)

	allBars := make([]models.Bar, 0)

	for i, chunk := range chunks {
		if err := b.WaitForLimit(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		klines, err := b.fetchKlineChunk(ctx, req.Symbol, req.Timeframe, chunk.start, chunk.end)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chunk %d: %w", i, err)
		}

		for _, kline := range klines {
			bar, err := models.NewBar(
				kline.OpenTime,
				kline.Open,
				kline.High,
				kline.Low,
				kline.Close,
				kline.Volume,
				req.Symbol,
				req.Timeframe,
			)
			if err != nil {
				b.logger.Warn("failed to convert kline, skipping",
					"error", err,
					"open_time", kline.OpenTime)
				continue
			}
			allBars = append(allBars, *bar)
		}

		if req.Limit > 0 && len(allBars) >= req.Limit {
			allBars = allBars[:req.Limit]
			break
		}
	}

	b.logger.Debug("successfully fetched bars", "count", len(allBars))

	return &FetchResponse{
		Bars:      allBars,
		RateLimit: b.getRateLimitStatus(),
	}, nil
}

// GetTicker implements the TickerFetcher interface.
func (b *BinanceAdapter) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	if err := b.WaitForLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	requestURL := b.baseURL + tickerEndpoint + "?" + params.Encode()

	body, err := b.makeRequestWithRetry(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse ticker response: %w", err)
	}

	if resp.Price == "" {
		return nil, fmt.Errorf("empty price in ticker response for %s", symbol)
	}

	return &Ticker{
		Symbol:    resp.Symbol,
		Price:     resp.Price,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetLimits implements the RateLimitInfo interface.
func (b *BinanceAdapter) GetLimits() RateLimit {
	return RateLimit{
		RequestsPerSecond: int(b.rateLimiter.Limit()),
		BurstSize:         b.rateLimiter.Burst(),
		WindowDuration:    rateLimitWindow,
	}
}

// WaitForLimit implements the RateLimitInfo interface.
func (b *BinanceAdapter) WaitForLimit(ctx context.Context) error {
	return b.rateLimiter.Wait(ctx)
}

// HealthCheck implements the HealthChecker interface.
func (b *BinanceAdapter) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, b.baseURL+pingEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	return nil
}

// Private helper methods

type timeChunk struct {
	start time.Time
	end   time.Time
}

// calculateChunks splits a time range into API-sized windows. Each chunk
// covers at most maxBarsPerRequest bars.
func calculateChunks(start, end time.Time, barDuration time.Duration, limit int) []timeChunk {
	totalBars := int(end.Sub(start) / barDuration)

	if limit > 0 && totalBars > limit {
		end = start.Add(time.Duration(limit) * barDuration)
		totalBars = limit
	}

	if totalBars <= maxBarsPerRequest {
		return []timeChunk{{start: start, end: end}}
	}

	chunkDuration := time.Duration(maxBarsPerRequest) * barDuration
	chunks := make([]timeChunk, 0, totalBars/maxBarsPerRequest+1)

	current := start
	for current.Before(end) {
		chunkEnd := current.Add(chunkDuration)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		chunks = append(chunks, timeChunk{start: current, end: chunkEnd})
		current = chunkEnd
	}

	return chunks
}

// binanceKline is one decoded kline row from the API.
type binanceKline struct {
	OpenTime time.Time
	Open     string
	High     string
	Low      string
	Close    string
	Volume   string
}

func (b *BinanceAdapter) fetchKlineChunk(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]binanceKline, error) {
	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", timeframe)
	params.Add("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	// Binance endTime is inclusive; back off one millisecond to keep the
	// requested range half-open.
	params.Add("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	params.Add("limit", strconv.Itoa(maxBarsPerRequest))

	requestURL := b.baseURL + klinesEndpoint + "?" + params.Encode()

	body, err := b.makeRequestWithRetry(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	return parseKlines(body)
}

// parseKlines decodes the Binance kline array-of-arrays wire format:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlines(data []byte) ([]binanceKline, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse klines response: %w", err)
	}

	klines := make([]binanceKline, 0, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d has %d fields, expected at least 6", i, len(row))
		}

		var openTimeMs int64
		if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
			return nil, fmt.Errorf("kline row %d: invalid open time: %w", i, err)
		}

		var kline binanceKline
		kline.OpenTime = time.UnixMilli(openTimeMs).UTC()

		fields := []*string{&kline.Open, &kline.High, &kline.Low, &kline.Close, &kline.Volume}
		for j, field := range fields {
			if err := json.Unmarshal(row[j+1], field); err != nil {
				return nil, fmt.Errorf("kline row %d: invalid field %d: %w", i, j+1, err)
			}
		}

		klines = append(klines, kline)
	}

	return klines, nil
}

// makeRequestWithRetry performs a GET request with exponential backoff.
// 429 and 5xx responses are retried; other 4xx responses fail immediately.
func (b *BinanceAdapter) makeRequestWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var responseBody []byte

	backoffConfig := backoff.NewExponentialBackOff()
	backoffConfig.InitialInterval = initialRetryDelay
	backoffConfig.MaxInterval = maxRetryDelay
	backoffConfig.Multiplier = retryMultiplier
	backoffConfig.RandomizationFactor = retryJitter
	backoffConfig.MaxElapsedTime = 0 // rely on context for the overall deadline

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "go-pair-trader/1.0")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			if retryAfter > 0 {
				b.logger.Warn("rate limited, waiting", "retry_after", retryAfter)
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return fmt.Errorf("rate limited: 429 too many requests")
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
		}

		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("client error %d: %s", resp.StatusCode, string(body)))
		}

		responseBody = body
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoffConfig, ctx)); err != nil {
		return nil, err
	}

	return responseBody, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := time.Parse(time.RFC1123, header); err == nil {
		return time.Until(t)
	}

	return 0
}

func (b *BinanceAdapter) getRateLimitStatus() RateLimitStatus {
	now := time.Now()

	remaining := int(b.rateLimiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	reservation := b.rateLimiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()

	return RateLimitStatus{
		Remaining:  remaining,
		ResetTime:  now.Add(rateLimitWindow),
		RetryAfter: delay,
	}
}

// Compile-time interface compliance check.
var _ Adapter = (*BinanceAdapter)(nil)
