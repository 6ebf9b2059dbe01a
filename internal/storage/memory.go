package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// MemoryStorage provides an in-memory implementation of all storage
// interfaces. It is used by the backtester and the test suites; the
// idempotence semantics match the DuckDB backend.
type MemoryStorage struct {
	mu sync.RWMutex

	// Bar storage: map[symbol][timeframe][timestamp] -> Bar
	bars map[string]map[string]map[time.Time]*models.Bar

	// Gap storage: map[gapID] -> Gap
	gaps map[string]*models.Gap

	// Trade audit history in insertion order
	trades []models.TradeRecord

	// Gap indexes for querying: map[symbol][timeframe] -> []gapID
	gapIndex map[string]map[string][]string

	stats *StorageStats

	initialized bool
	closed      bool

	queryTimes map[string][]time.Duration
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bars:     make(map[string]map[string]map[time.Time]*models.Bar),
		gaps:     make(map[string]*models.Gap),
		gapIndex: make(map[string]map[string][]string),
		stats: &StorageStats{
			QueryPerformance: make(map[string]time.Duration),
		},
		queryTimes: make(map[string][]time.Duration),
	}
}

// Append persists a slice of bars. Bars whose key already exists are
// skipped, so re-appending the same data is a no-op.
func (m *MemoryStorage) Append(ctx context.Context, bars []models.Bar) error {
	if ctx.Err() != nil {
		return NewStorageError("append", "bars", "", ctx.Err())
	}

	if len(bars) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("append", "bars", "", errors.New("storage is closed"))
	}

	// Validate everything before storing anything.
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return NewInsertError("bars", fmt.Errorf("bar at index %d validation failed: %w", i, err))
		}
	}

	for _, bar := range bars {
		m.appendBar(&bar)
	}

	m.updateBarStats()
	return nil
}

// AppendBatch performs bulk storage of bars with the same semantics as
// Append, tracking performance metrics for the batch path.
func (m *MemoryStorage) AppendBatch(ctx context.Context, bars []models.Bar) error {
	start := time.Now()
	defer func() {
		m.trackQueryTime("AppendBatch", time.Since(start))
	}()

	return m.Append(ctx, bars)
}

// appendBar stores a single bar, skipping existing keys.
func (m *MemoryStorage) appendBar(bar *models.Bar) {
	if m.bars[bar.Symbol] == nil {
		m.bars[bar.Symbol] = make(map[string]map[time.Time]*models.Bar)
	}
	if m.bars[bar.Symbol][bar.Timeframe] == nil {
		m.bars[bar.Symbol][bar.Timeframe] = make(map[time.Time]*models.Bar)
	}

	key := bar.Timestamp.UTC()
	if _, exists := m.bars[bar.Symbol][bar.Timeframe][key]; exists {
		return
	}

	// Copy to avoid external mutations.
	barCopy := *bar
	m.bars[bar.Symbol][bar.Timeframe][key] = &barCopy
}

// Query retrieves bars based on the provided request parameters.
func (m *MemoryStorage) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	defer func() {
		m.trackQueryTime("Query", time.Since(start))
	}()

	if ctx.Err() != nil {
		return nil, NewQueryError("bars", "", ctx.Err())
	}

	if err := validateQueryRequest(&req); err != nil {
		return nil, NewQueryError("bars", "", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("bars", "", errors.New("storage is closed"))
	}

	empty := &QueryResponse{Bars: []models.Bar{}, QueryTime: time.Since(start)}

	symbolBars, exists := m.bars[req.Symbol]
	if !exists {
		return empty, nil
	}

	timeframeBars, exists := symbolBars[req.Timeframe]
	if !exists {
		return empty, nil
	}

	var matches []models.Bar
	for timestamp, bar := range timeframeBars {
		if (timestamp.Equal(req.Start) || timestamp.After(req.Start)) &&
			timestamp.Before(req.End) {
			matches = append(matches, *bar)
		}
	}

	sortBars(matches, req.OrderBy)

	total := len(matches)
	startIdx := req.Offset
	if startIdx > total {
		startIdx = total
	}

	endIdx := total
	if req.Limit > 0 {
		endIdx = startIdx + req.Limit
	}
	if endIdx > total {
		endIdx = total
	}

	return &QueryResponse{
		Bars:       matches[startIdx:endIdx],
		Total:      total,
		HasMore:    endIdx < total,
		NextOffset: endIdx,
		QueryTime:  time.Since(start),
	}, nil
}

// GetLatest retrieves the most recent bar for a symbol and timeframe.
// Returns nil when no bars exist.
func (m *MemoryStorage) GetLatest(ctx context.Context, symbol string, timeframe string) (*models.Bar, error) {
	start := time.Now()
	defer func() {
		m.trackQueryTime("GetLatest", time.Since(start))
	}()

	if ctx.Err() != nil {
		return nil, NewQueryError("bars", "", ctx.Err())
	}

	if symbol == "" {
		return nil, NewQueryError("bars", "", errors.New("symbol cannot be empty"))
	}
	if timeframe == "" {
		return nil, NewQueryError("bars", "", errors.New("timeframe cannot be empty"))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("bars", "", errors.New("storage is closed"))
	}

	timeframeBars, exists := m.bars[symbol][timeframe]
	if !exists || len(timeframeBars) == 0 {
		return nil, nil
	}

	var latestTime time.Time
	var latest *models.Bar
	for timestamp, bar := range timeframeBars {
		if latest == nil || timestamp.After(latestTime) {
			latestTime = timestamp
			latest = bar
		}
	}

	result := *latest
	return &result, nil
}

// GetBarAt retrieves the bar at an exact timestamp. Returns nil when the
// bar is missing.
func (m *MemoryStorage) GetBarAt(ctx context.Context, symbol string, timeframe string, timestamp time.Time) (*models.Bar, error) {
	if ctx.Err() != nil {
		return nil, NewQueryError("bars", "", ctx.Err())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("bars", "", errors.New("storage is closed"))
	}

	bar, exists := m.bars[symbol][timeframe][timestamp.UTC()]
	if !exists {
		return nil, nil
	}

	result := *bar
	return &result, nil
}

// StoreGap persists a new data gap.
func (m *MemoryStorage) StoreGap(ctx context.Context, gap models.Gap) error {
	if ctx.Err() != nil {
		return NewStorageError("store", "gaps", "", ctx.Err())
	}

	if err := gap.Validate(); err != nil {
		return NewInsertError("gaps", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("store", "gaps", "", errors.New("storage is closed"))
	}

	if _, exists := m.gaps[gap.ID]; exists {
		return NewInsertError("gaps", errors.New("gap ID already exists"))
	}

	gapCopy := gap
	m.gaps[gap.ID] = &gapCopy

	if m.gapIndex[gap.Symbol] == nil {
		m.gapIndex[gap.Symbol] = make(map[string][]string)
	}
	m.gapIndex[gap.Symbol][gap.Timeframe] = append(m.gapIndex[gap.Symbol][gap.Timeframe], gap.ID)

	return nil
}

// GetGaps retrieves all gaps for a symbol and timeframe, most recent first.
func (m *MemoryStorage) GetGaps(ctx context.Context, symbol string, timeframe string) ([]models.Gap, error) {
	if ctx.Err() != nil {
		return nil, NewQueryError("gaps", "", ctx.Err())
	}

	if symbol == "" {
		return nil, NewQueryError("gaps", "", errors.New("symbol cannot be empty"))
	}
	if timeframe == "" {
		return nil, NewQueryError("gaps", "", errors.New("timeframe cannot be empty"))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("gaps", "", errors.New("storage is closed"))
	}

	gapIDs := m.gapIndex[symbol][timeframe]
	result := make([]models.Gap, 0, len(gapIDs))
	for _, gapID := range gapIDs {
		if gap, exists := m.gaps[gapID]; exists {
			result = append(result, *gap)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// GetGapByID retrieves a gap by its identifier. Returns nil if not found.
func (m *MemoryStorage) GetGapByID(ctx context.Context, gapID string) (*models.Gap, error) {
	if ctx.Err() != nil {
		return nil, NewQueryError("gaps", "", ctx.Err())
	}

	if gapID == "" {
		return nil, NewQueryError("gaps", "", errors.New("gap ID cannot be empty"))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("gaps", "", errors.New("storage is closed"))
	}

	gap, exists := m.gaps[gapID]
	if !exists {
		return nil, nil
	}

	result := *gap
	return &result, nil
}

// MarkGapFilled updates a gap's status to filled with a timestamp.
func (m *MemoryStorage) MarkGapFilled(ctx context.Context, gapID string, filledAt time.Time) error {
	if ctx.Err() != nil {
		return NewStorageError("update", "gaps", "", ctx.Err())
	}

	if gapID == "" {
		return NewUpdateError("gaps", errors.New("gap ID cannot be empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewUpdateError("gaps", errors.New("storage is closed"))
	}

	gap, exists := m.gaps[gapID]
	if !exists {
		return NewUpdateError("gaps", errors.New("gap not found"))
	}

	if gap.Status == models.GapStatusFilled {
		return NewUpdateError("gaps", errors.New("gap is already marked as filled"))
	}

	gap.Status = models.GapStatusFilled
	gap.FilledAt = &filledAt

	return nil
}

// DeleteGap removes a gap from storage.
func (m *MemoryStorage) DeleteGap(ctx context.Context, gapID string) error {
	if ctx.Err() != nil {
		return NewStorageError("delete", "gaps", "", ctx.Err())
	}

	if gapID == "" {
		return NewDeleteError("gaps", errors.New("gap ID cannot be empty"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewDeleteError("gaps", errors.New("storage is closed"))
	}

	gap, exists := m.gaps[gapID]
	if !exists {
		return NewDeleteError("gaps", errors.New("gap not found"))
	}

	delete(m.gaps, gapID)

	if timeframeGaps, ok := m.gapIndex[gap.Symbol][gap.Timeframe]; ok {
		for i, id := range timeframeGaps {
			if id == gapID {
				m.gapIndex[gap.Symbol][gap.Timeframe] = append(timeframeGaps[:i], timeframeGaps[i+1:]...)
				break
			}
		}
	}

	return nil
}

// StoreTrade appends a trade record to the audit history.
func (m *MemoryStorage) StoreTrade(ctx context.Context, trade models.TradeRecord) error {
	if ctx.Err() != nil {
		return NewStorageError("store", "trades", "", ctx.Err())
	}

	if err := trade.Validate(); err != nil {
		return NewInsertError("trades", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("store", "trades", "", errors.New("storage is closed"))
	}

	m.trades = append(m.trades, trade)
	return nil
}

// GetTrades retrieves all stored trades ordered by timestamp ascending.
func (m *MemoryStorage) GetTrades(ctx context.Context) ([]models.TradeRecord, error) {
	if ctx.Err() != nil {
		return nil, NewQueryError("trades", "", ctx.Err())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("trades", "", errors.New("storage is closed"))
	}

	result := make([]models.TradeRecord, len(m.trades))
	copy(result, m.trades)

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// Initialize prepares the memory storage for operation.
func (m *MemoryStorage) Initialize(ctx context.Context) error {
	if ctx.Err() != nil {
		return NewStorageError("initialize", "", "", ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewStorageError("initialize", "", "", errors.New("storage is closed"))
	}

	m.initialized = true
	return nil
}

// Close gracefully shuts down the memory storage.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	return nil
}

// GetStats returns operational statistics about the memory storage.
func (m *MemoryStorage) GetStats(ctx context.Context) (*StorageStats, error) {
	if ctx.Err() != nil {
		return nil, NewStorageError("stats", "", "", ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, NewStorageError("stats", "", "", errors.New("storage is closed"))
	}

	m.updateBarStats()
	m.updateQueryPerformance()

	statsCopy := *m.stats
	statsCopy.QueryPerformance = make(map[string]time.Duration)
	for k, v := range m.stats.QueryPerformance {
		statsCopy.QueryPerformance[k] = v
	}

	return &statsCopy, nil
}

// HealthCheck verifies that the memory storage is operational.
func (m *MemoryStorage) HealthCheck(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errors.New("storage is closed")
	}

	if !m.initialized {
		return errors.New("storage is not initialized")
	}

	return nil
}

// validateQueryRequest validates query request parameters.
func validateQueryRequest(req *QueryRequest) error {
	if req.Symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if req.Timeframe == "" {
		return errors.New("timeframe cannot be empty")
	}
	if !req.End.After(req.Start) {
		return errors.New("end time must be after start time")
	}
	if req.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if req.Limit < 0 {
		return errors.New("limit cannot be negative")
	}

	if req.OrderBy != "" && req.OrderBy != "timestamp_asc" && req.OrderBy != "timestamp_desc" {
		return errors.New("orderBy must be 'timestamp_asc' or 'timestamp_desc'")
	}

	if _, err := models.TimeframeDuration(req.Timeframe); err != nil {
		return err
	}

	return nil
}

// sortBars sorts bars based on the ordering parameter.
func sortBars(bars []models.Bar, orderBy string) {
	switch orderBy {
	case "timestamp_desc":
		sort.Slice(bars, func(i, j int) bool {
			return bars[i].Timestamp.After(bars[j].Timestamp)
		})
	default: // timestamp_asc
		sort.Slice(bars, func(i, j int) bool {
			return bars[i].Timestamp.Before(bars[j].Timestamp)
		})
	}
}

// updateBarStats recomputes storage statistics. Caller holds the lock.
func (m *MemoryStorage) updateBarStats() {
	totalBars := int64(0)
	symbols := make(map[string]bool)
	var earliestData, latestData time.Time

	for symbol, timeframes := range m.bars {
		symbols[symbol] = true
		for _, bars := range timeframes {
			for timestamp := range bars {
				totalBars++
				if earliestData.IsZero() || timestamp.Before(earliestData) {
					earliestData = timestamp
				}
				if latestData.IsZero() || timestamp.After(latestData) {
					latestData = timestamp
				}
			}
		}
	}

	m.stats.TotalBars = totalBars
	m.stats.TotalSymbols = len(symbols)
	m.stats.EarliestData = earliestData
	m.stats.LatestData = latestData

	// Rough per-bar size estimate for capacity reporting.
	m.stats.StorageSize = totalBars * 200
}

// trackQueryTime tracks query performance metrics.
func (m *MemoryStorage) trackQueryTime(operation string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queryTimes[operation] = append(m.queryTimes[operation], duration)

	// Keep only the last 100 measurements to bound memory growth.
	if len(m.queryTimes[operation]) > 100 {
		m.queryTimes[operation] = m.queryTimes[operation][1:]
	}
}

// updateQueryPerformance updates average query metrics. Caller holds the lock.
func (m *MemoryStorage) updateQueryPerformance() {
	for operation, times := range m.queryTimes {
		if len(times) == 0 {
			continue
		}

		var total time.Duration
		for _, t := range times {
			total += t
		}

		m.stats.QueryPerformance[operation] = total / time.Duration(len(times))
	}
}
