// Package storage defines the storage layer interfaces for OHLCV bar
// persistence. These interfaces abstract over the DuckDB and in-memory
// backends while keeping the append idempotence contract: re-appending a
// bar with an existing (symbol, timeframe, timestamp) key is a no-op.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// BarStorer handles bar storage operations.
type BarStorer interface {
	// Append persists a slice of bars to storage. Bars whose
	// (symbol, timeframe, timestamp) key already exists are skipped, so the
	// collector can safely re-fetch overlapping ranges.
	Append(ctx context.Context, bars []models.Bar) error

	// AppendBatch performs optimized bulk storage of bars with the same
	// idempotence semantics as Append. Preferred for historical backfills.
	AppendBatch(ctx context.Context, bars []models.Bar) error
}

// BarReader handles bar retrieval operations.
type BarReader interface {
	// Query retrieves bars based on the provided request parameters.
	// Supports filtering by symbol, time range, and timeframe with
	// pagination and ordering.
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// GetLatest retrieves the most recent bar for a symbol and timeframe.
	// Returns nil if no bars exist for the combination.
	GetLatest(ctx context.Context, symbol string, timeframe string) (*models.Bar, error)

	// GetBarAt retrieves the bar at an exact timestamp.
	// Returns nil if the bar is missing; callers decide whether a missing
	// bar is a gap to skip or an error.
	GetBarAt(ctx context.Context, symbol string, timeframe string, timestamp time.Time) (*models.Bar, error)
}

// GapStorage manages data gap tracking for backfill.
type GapStorage interface {
	// StoreGap persists a new data gap. The gap should be in detected
	// status when first stored.
	StoreGap(ctx context.Context, gap models.Gap) error

	// GetGaps retrieves all gaps for a symbol and timeframe.
	GetGaps(ctx context.Context, symbol string, timeframe string) ([]models.Gap, error)

	// GetGapByID retrieves a gap by its identifier. Returns nil if the gap
	// does not exist.
	GetGapByID(ctx context.Context, gapID string) (*models.Gap, error)

	// MarkGapFilled updates a gap's status to filled with a timestamp.
	MarkGapFilled(ctx context.Context, gapID string, filledAt time.Time) error

	// DeleteGap removes a gap from storage. Prefer MarkGapFilled for
	// successful resolution.
	DeleteGap(ctx context.Context, gapID string) error
}

// TradeStorer persists executed trades for later inspection.
type TradeStorer interface {
	// StoreTrade appends a trade record to the audit history.
	StoreTrade(ctx context.Context, trade models.TradeRecord) error

	// GetTrades retrieves all stored trades ordered by timestamp ascending.
	GetTrades(ctx context.Context) ([]models.TradeRecord, error)
}

// StorageManager handles storage lifecycle and operational concerns.
type StorageManager interface {
	// Initialize prepares the storage backend: tables, indexes, schema.
	// Idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Close gracefully shuts down the storage backend. After Close the
	// storage instance must not be used.
	Close() error

	// GetStats returns operational statistics about the storage backend.
	GetStats(ctx context.Context) (*StorageStats, error)

	// HealthChecker embedded interface for health monitoring
	HealthChecker
}

// HealthChecker provides health monitoring for storage backends.
type HealthChecker interface {
	// HealthCheck verifies that the storage backend is operational with a
	// lightweight operation. Returns an error if the backend is unhealthy.
	HealthCheck(ctx context.Context) error
}

// BarStorage combines bar write and read operations.
type BarStorage interface {
	BarStorer
	BarReader
}

// FullStorage combines all storage capabilities into a single interface.
// This is the primary interface storage implementations provide.
type FullStorage interface {
	BarStorage
	GapStorage
	TradeStorer
	StorageManager
}

// QueryRequest defines parameters for querying stored bars.
type QueryRequest struct {
	// Symbol is the instrument symbol (e.g., "ADAUSDT")
	Symbol string

	// Start is the earliest timestamp to include in results (inclusive)
	Start time.Time

	// End is the latest timestamp to include in results (exclusive)
	End time.Time

	// Timeframe is the bar timeframe (e.g., "1h", "1d")
	Timeframe string

	// Limit is the maximum number of results to return (0 = no limit)
	Limit int

	// Offset is the number of results to skip for pagination
	Offset int

	// OrderBy specifies result ordering ("timestamp_asc" or "timestamp_desc")
	OrderBy string
}

// QueryResponse contains the results of a bar query operation.
type QueryResponse struct {
	// Bars contains the query results
	Bars []models.Bar

	// Total is the total number of matches (before limit/offset)
	Total int

	// HasMore indicates if more results are available beyond this page
	HasMore bool

	// NextOffset is the offset value for retrieving the next page
	NextOffset int

	// QueryTime is the duration taken to execute the query
	QueryTime time.Duration
}

// StorageStats provides operational metrics about storage.
type StorageStats struct {
	// TotalBars is the total number of bars stored
	TotalBars int64

	// TotalSymbols is the number of unique symbols with data
	TotalSymbols int

	// EarliestData is the timestamp of the oldest bar
	EarliestData time.Time

	// LatestData is the timestamp of the newest bar
	LatestData time.Time

	// StorageSize is the total storage space used in bytes
	StorageSize int64

	// QueryPerformance contains average query times by operation type
	QueryPerformance map[string]time.Duration
}

// StorageError represents errors that occur during storage operations.
type StorageError struct {
	// Operation is the storage operation that failed (e.g., "insert", "query")
	Operation string

	// Table is the database table involved in the operation
	Table string

	// Query is the SQL query or operation details (may be empty)
	Query string

	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the provided details.
func NewStorageError(operation, table, query string, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		Table:     table,
		Query:     query,
		Err:       err,
	}
}

// NewQueryError creates a StorageError for query operations.
func NewQueryError(table, query string, err error) *StorageError {
	return &StorageError{
		Operation: "query",
		Table:     table,
		Query:     query,
		Err:       err,
	}
}

// NewInsertError creates a StorageError for insert operations.
func NewInsertError(table string, err error) *StorageError {
	return &StorageError{
		Operation: "insert",
		Table:     table,
		Err:       err,
	}
}

// NewUpdateError creates a StorageError for update operations.
func NewUpdateError(table string, err error) *StorageError {
	return &StorageError{
		Operation: "update",
		Table:     table,
		Err:       err,
	}
}

// NewDeleteError creates a StorageError for delete operations.
func NewDeleteError(table string, err error) *StorageError {
	return &StorageError{
		Operation: "delete",
		Table:     table,
		Err:       err,
	}
}
