package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-pair-trader/internal/models"
)

// DuckDBStorage implements the FullStorage interface using DuckDB as the
// backend. Bars carry a composite primary key on (symbol, timeframe,
// timestamp) and inserts use ON CONFLICT DO NOTHING, so re-appending an
// overlapping range is harmless.
type DuckDBStorage struct {
	db      *sql.DB
	dbPath  string
	logger  *slog.Logger
	mu      sync.RWMutex
	stats   *StorageStats
	statsMu sync.RWMutex

	queryTimes map[string][]time.Duration
	queryMu    sync.RWMutex
}

// NewDuckDBStorage creates a new DuckDB storage instance.
// The dbPath can be ":memory:" for an in-memory database or a file path for
// persistent storage.
func NewDuckDBStorage(dbPath string, logger *slog.Logger) (*DuckDBStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, NewStorageError("open", "", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// Single writer pattern as recommended for DuckDB.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &DuckDBStorage{
		db:         db,
		dbPath:     dbPath,
		logger:     logger,
		queryTimes: make(map[string][]time.Duration),
		stats: &StorageStats{
			QueryPerformance: make(map[string]time.Duration),
		},
	}, nil
}

// Initialize implements StorageManager.Initialize.
// Creates the required schema including tables and indexes.
func (d *DuckDBStorage) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("initializing DuckDB storage", "db_path", d.dbPath)

	if err := d.configureDatabase(ctx); err != nil {
		return NewStorageError("initialize", "", "", fmt.Errorf("failed to configure database: %w", err))
	}

	migrations := NewMigrationManager(d.db, d.logger)
	if err := migrations.MigrateToLatest(ctx); err != nil {
		return NewStorageError("initialize", "", "", fmt.Errorf("failed to run migrations: %w", err))
	}

	if err := d.updateStats(ctx); err != nil {
		d.logger.Warn("failed to initialize statistics", "error", err)
	}

	d.logger.Info("DuckDB storage initialized successfully")
	return nil
}

// configureDatabase applies session settings for analytical workloads.
func (d *DuckDBStorage) configureDatabase(ctx context.Context) error {
	configs := []string{
		"SET memory_limit = '1GB'",
		"SET threads = 4",
		"SET enable_progress_bar = false",
	}

	for _, config := range configs {
		if _, err := d.db.ExecContext(ctx, config); err != nil {
			d.logger.Warn("failed to set configuration", "config", config, "error", err)
		}
	}

	return nil
}

// Append implements BarStorer.Append.
func (d *DuckDBStorage) Append(ctx context.Context, bars []models.Bar) error {
	return d.AppendBatch(ctx, bars)
}

// AppendBatch implements BarStorer.AppendBatch. All bars are inserted in a
// single transaction with ON CONFLICT DO NOTHING so overlapping re-fetches
// never fail or duplicate rows.
func (d *DuckDBStorage) AppendBatch(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		d.recordQueryTime("append_batch", time.Since(start))
	}()

	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return NewInsertError("bars", fmt.Errorf("invalid bar at index %d: %w", i, err))
		}
	}

	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	if db == nil {
		return NewInsertError("bars", errors.New("database connection is closed"))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return NewInsertError("bars", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	query := `
		INSERT INTO bars (timestamp, open, high, low, close, volume, symbol, timeframe, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return NewInsertError("bars", fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, bar := range bars {
		open, high, low, close, volume, err := barFloats(bar)
		if err != nil {
			return NewInsertError("bars", fmt.Errorf("failed to convert bar %s: %w", bar.String(), err))
		}

		if _, err := stmt.ExecContext(ctx,
			bar.Timestamp.UTC(), open, high, low, close, volume,
			bar.Symbol, bar.Timeframe, now,
		); err != nil {
			return NewInsertError("bars", fmt.Errorf("failed to insert bar %s: %w", bar.String(), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return NewInsertError("bars", fmt.Errorf("failed to commit batch: %w", err))
	}

	d.logger.Debug("appended bars batch",
		"count", len(bars),
		"duration", time.Since(start))

	return nil
}

// barFloats parses the decimal string fields of a bar into float64 columns.
func barFloats(bar models.Bar) (open, high, low, close, volume float64, err error) {
	fields := []struct {
		name  string
		value string
		out   *float64
	}{
		{"open", bar.Open, &open},
		{"high", bar.High, &high},
		{"low", bar.Low, &low},
		{"close", bar.Close, &close},
		{"volume", bar.Volume, &volume},
	}

	for _, f := range fields {
		dec, parseErr := decimal.NewFromString(f.value)
		if parseErr != nil {
			return 0, 0, 0, 0, 0, fmt.Errorf("invalid %s: %w", f.name, parseErr)
		}
		*f.out = dec.InexactFloat64()
	}

	return open, high, low, close, volume, nil
}

// convertNumericToString converts DuckDB numeric column values back to the
// string representation the bar model carries.
func convertNumericToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case float32:
		return decimal.NewFromFloat32(v).String()
	case int64:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Query implements BarReader.Query.
func (d *DuckDBStorage) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("query", time.Since(start))
	}()

	if err := validateQueryRequest(&req); err != nil {
		return nil, NewQueryError("bars", "", err)
	}

	query, args := d.buildQuery(req)

	d.logger.Debug("executing bars query",
		"symbol", req.Symbol,
		"timeframe", req.Timeframe,
		"start", req.Start,
		"end", req.End,
		"limit", req.Limit,
		"offset", req.Offset)

	total, err := d.getQueryCount(ctx, req)
	if err != nil {
		return nil, NewQueryError("bars", query, fmt.Errorf("failed to get count: %w", err))
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewQueryError("bars", query, fmt.Errorf("failed to execute query: %w", err))
	}
	defer rows.Close()

	bars := make([]models.Bar, 0, req.Limit)
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, NewQueryError("bars", query, err)
		}
		bars = append(bars, *bar)
	}

	if err := rows.Err(); err != nil {
		return nil, NewQueryError("bars", query, fmt.Errorf("row iteration error: %w", err))
	}

	hasMore := req.Offset+len(bars) < total
	nextOffset := req.Offset + len(bars)

	return &QueryResponse{
		Bars:       bars,
		Total:      total,
		HasMore:    hasMore,
		NextOffset: nextOffset,
		QueryTime:  time.Since(start),
	}, nil
}

// barScanner is satisfied by both *sql.Row and *sql.Rows.
type barScanner interface {
	Scan(dest ...interface{}) error
}

// scanBar reads one bars row into a model, converting numeric columns back
// to decimal strings.
func scanBar(row barScanner) (*models.Bar, error) {
	var bar models.Bar
	var createdAt time.Time
	var open, high, low, close, volume interface{}

	if err := row.Scan(
		&bar.Timestamp,
		&open,
		&high,
		&low,
		&close,
		&volume,
		&bar.Symbol,
		&bar.Timeframe,
		&createdAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan bar row: %w", err)
	}

	bar.Open = convertNumericToString(open)
	bar.High = convertNumericToString(high)
	bar.Low = convertNumericToString(low)
	bar.Close = convertNumericToString(close)
	bar.Volume = convertNumericToString(volume)

	return &bar, nil
}

// buildQuery constructs the SQL query based on request parameters.
func (d *DuckDBStorage) buildQuery(req QueryRequest) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argPos := 1

	query := `SELECT timestamp, open, high, low, close, volume, symbol, timeframe, created_at FROM bars`

	if req.Symbol != "" {
		conditions = append(conditions, fmt.Sprintf("symbol = $%d", argPos))
		args = append(args, req.Symbol)
		argPos++
	}

	if req.Timeframe != "" {
		conditions = append(conditions, fmt.Sprintf("timeframe = $%d", argPos))
		args = append(args, req.Timeframe)
		argPos++
	}

	if !req.Start.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argPos))
		args = append(args, req.Start)
		argPos++
	}

	if !req.End.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", argPos))
		args = append(args, req.End)
		argPos++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "timestamp ASC"
	if req.OrderBy == "timestamp_desc" {
		orderBy = "timestamp DESC"
	}
	query += " ORDER BY " + orderBy

	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, req.Limit)
		argPos++
	}

	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, req.Offset)
	}

	return query, args
}

// getQueryCount executes a count query to get total results.
func (d *DuckDBStorage) getQueryCount(ctx context.Context, req QueryRequest) (int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	query := "SELECT COUNT(*) FROM bars"

	if req.Symbol != "" {
		conditions = append(conditions, fmt.Sprintf("symbol = $%d", argPos))
		args = append(args, req.Symbol)
		argPos++
	}

	if req.Timeframe != "" {
		conditions = append(conditions, fmt.Sprintf("timeframe = $%d", argPos))
		args = append(args, req.Timeframe)
		argPos++
	}

	if !req.Start.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argPos))
		args = append(args, req.Start)
		argPos++
	}

	if !req.End.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", argPos))
		args = append(args, req.End)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// GetLatest implements BarReader.GetLatest.
func (d *DuckDBStorage) GetLatest(ctx context.Context, symbol string, timeframe string) (*models.Bar, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_latest", time.Since(start))
	}()

	query := `
		SELECT timestamp, open, high, low, close, volume, symbol, timeframe, created_at
		FROM bars
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT 1`

	bar, err := scanBar(d.db.QueryRowContext(ctx, query, symbol, timeframe))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewQueryError("bars", query, fmt.Errorf("failed to get latest bar: %w", err))
	}

	return bar, nil
}

// GetBarAt implements BarReader.GetBarAt.
func (d *DuckDBStorage) GetBarAt(ctx context.Context, symbol string, timeframe string, timestamp time.Time) (*models.Bar, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_bar_at", time.Since(start))
	}()

	query := `
		SELECT timestamp, open, high, low, close, volume, symbol, timeframe, created_at
		FROM bars
		WHERE symbol = $1 AND timeframe = $2 AND timestamp = $3`

	bar, err := scanBar(d.db.QueryRowContext(ctx, query, symbol, timeframe, timestamp.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewQueryError("bars", query, fmt.Errorf("failed to get bar at %s: %w", timestamp, err))
	}

	return bar, nil
}

// StoreGap implements GapStorage.StoreGap.
func (d *DuckDBStorage) StoreGap(ctx context.Context, gap models.Gap) error {
	start := time.Now()
	defer func() {
		d.recordQueryTime("store_gap", time.Since(start))
	}()

	if err := gap.Validate(); err != nil {
		return NewInsertError("gaps", fmt.Errorf("invalid gap: %w", err))
	}

	query := `
		INSERT INTO gaps (id, symbol, timeframe, start_time, end_time, status, created_at, filled_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := d.db.ExecContext(ctx, query,
		gap.ID,
		gap.Symbol,
		gap.Timeframe,
		gap.StartTime,
		gap.EndTime,
		string(gap.Status),
		gap.CreatedAt,
		gap.FilledAt,
		gap.Reason,
	)

	if err != nil {
		return NewInsertError("gaps", fmt.Errorf("failed to store gap %s: %w", gap.ID, err))
	}

	return nil
}

// GetGaps implements GapStorage.GetGaps.
func (d *DuckDBStorage) GetGaps(ctx context.Context, symbol string, timeframe string) ([]models.Gap, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_gaps", time.Since(start))
	}()

	query := `
		SELECT id, symbol, timeframe, start_time, end_time, status, created_at, filled_at, reason
		FROM gaps
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY created_at DESC`

	rows, err := d.db.QueryContext(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, NewQueryError("gaps", query, fmt.Errorf("failed to get gaps: %w", err))
	}
	defer rows.Close()

	var gaps []models.Gap
	for rows.Next() {
		var gap models.Gap
		var status string

		err := rows.Scan(
			&gap.ID,
			&gap.Symbol,
			&gap.Timeframe,
			&gap.StartTime,
			&gap.EndTime,
			&status,
			&gap.CreatedAt,
			&gap.FilledAt,
			&gap.Reason,
		)
		if err != nil {
			return nil, NewQueryError("gaps", query, fmt.Errorf("failed to scan gap: %w", err))
		}

		gap.Status = models.GapStatus(status)
		gaps = append(gaps, gap)
	}

	if err := rows.Err(); err != nil {
		return nil, NewQueryError("gaps", query, fmt.Errorf("gap rows iteration error: %w", err))
	}

	return gaps, nil
}

// GetGapByID implements GapStorage.GetGapByID.
func (d *DuckDBStorage) GetGapByID(ctx context.Context, gapID string) (*models.Gap, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_gap_by_id", time.Since(start))
	}()

	query := `
		SELECT id, symbol, timeframe, start_time, end_time, status, created_at, filled_at, reason
		FROM gaps
		WHERE id = $1`

	var gap models.Gap
	var status string

	err := d.db.QueryRowContext(ctx, query, gapID).Scan(
		&gap.ID,
		&gap.Symbol,
		&gap.Timeframe,
		&gap.StartTime,
		&gap.EndTime,
		&status,
		&gap.CreatedAt,
		&gap.FilledAt,
		&gap.Reason,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, NewQueryError("gaps", query, fmt.Errorf("failed to get gap by ID: %w", err))
	}

	gap.Status = models.GapStatus(status)
	return &gap, nil
}

// MarkGapFilled implements GapStorage.MarkGapFilled.
func (d *DuckDBStorage) MarkGapFilled(ctx context.Context, gapID string, filledAt time.Time) error {
	start := time.Now()
	defer func() {
		d.recordQueryTime("mark_gap_filled", time.Since(start))
	}()

	query := `
		UPDATE gaps
		SET status = 'filled', filled_at = $2
		WHERE id = $1 AND status = 'detected'`

	result, err := d.db.ExecContext(ctx, query, gapID, filledAt)
	if err != nil {
		return NewUpdateError("gaps", fmt.Errorf("failed to mark gap filled: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewUpdateError("gaps", fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return NewUpdateError("gaps", fmt.Errorf("gap %s not found or not in detected status", gapID))
	}

	return nil
}

// DeleteGap implements GapStorage.DeleteGap.
func (d *DuckDBStorage) DeleteGap(ctx context.Context, gapID string) error {
	start := time.Now()
	defer func() {
		d.recordQueryTime("delete_gap", time.Since(start))
	}()

	query := "DELETE FROM gaps WHERE id = $1"

	result, err := d.db.ExecContext(ctx, query, gapID)
	if err != nil {
		return NewDeleteError("gaps", fmt.Errorf("failed to delete gap: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return NewDeleteError("gaps", fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return NewDeleteError("gaps", fmt.Errorf("gap %s not found", gapID))
	}

	return nil
}

// StoreTrade implements TradeStorer.StoreTrade.
func (d *DuckDBStorage) StoreTrade(ctx context.Context, trade models.TradeRecord) error {
	start := time.Now()
	defer func() {
		d.recordQueryTime("store_trade", time.Since(start))
	}()

	if err := trade.Validate(); err != nil {
		return NewInsertError("trade_records", fmt.Errorf("invalid trade: %w", err))
	}

	query := `
		INSERT INTO trade_records (id, timestamp, symbol1, symbol2, signal, qty1, qty2,
		                           price1, price2, z_score, cash_after, value_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := d.db.ExecContext(ctx, query,
		trade.ID,
		trade.Timestamp,
		trade.Symbol1,
		trade.Symbol2,
		int(trade.Signal),
		trade.Qty1,
		trade.Qty2,
		trade.Price1,
		trade.Price2,
		trade.ZScore,
		trade.CashAfter,
		trade.ValueAfter,
	)

	if err != nil {
		return NewInsertError("trade_records", fmt.Errorf("failed to store trade %s: %w", trade.ID, err))
	}

	return nil
}

// GetTrades implements TradeStorer.GetTrades.
func (d *DuckDBStorage) GetTrades(ctx context.Context) ([]models.TradeRecord, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_trades", time.Since(start))
	}()

	query := `
		SELECT id, timestamp, symbol1, symbol2, signal, qty1, qty2,
		       price1, price2, z_score, cash_after, value_after
		FROM trade_records
		ORDER BY timestamp ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewQueryError("trade_records", query, fmt.Errorf("failed to get trades: %w", err))
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var trade models.TradeRecord
		var signal int

		err := rows.Scan(
			&trade.ID,
			&trade.Timestamp,
			&trade.Symbol1,
			&trade.Symbol2,
			&signal,
			&trade.Qty1,
			&trade.Qty2,
			&trade.Price1,
			&trade.Price2,
			&trade.ZScore,
			&trade.CashAfter,
			&trade.ValueAfter,
		)
		if err != nil {
			return nil, NewQueryError("trade_records", query, fmt.Errorf("failed to scan trade: %w", err))
		}

		trade.Signal = models.Signal(signal)
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, NewQueryError("trade_records", query, fmt.Errorf("trade rows iteration error: %w", err))
	}

	return trades, nil
}

// Close implements StorageManager.Close.
func (d *DuckDBStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		d.logger.Info("closing DuckDB storage")
		if err := d.db.Close(); err != nil {
			return NewStorageError("close", "", "", fmt.Errorf("failed to close database: %w", err))
		}
		d.db = nil
	}

	return nil
}

// GetStats implements StorageManager.GetStats.
func (d *DuckDBStorage) GetStats(ctx context.Context) (*StorageStats, error) {
	start := time.Now()
	defer func() {
		d.recordQueryTime("get_stats", time.Since(start))
	}()

	if err := d.updateStats(ctx); err != nil {
		return nil, NewStorageError("stats", "", "", fmt.Errorf("failed to update stats: %w", err))
	}

	d.statsMu.RLock()
	defer d.statsMu.RUnlock()

	stats := &StorageStats{
		TotalBars:        d.stats.TotalBars,
		TotalSymbols:     d.stats.TotalSymbols,
		EarliestData:     d.stats.EarliestData,
		LatestData:       d.stats.LatestData,
		StorageSize:      d.stats.StorageSize,
		QueryPerformance: make(map[string]time.Duration),
	}

	for k, v := range d.stats.QueryPerformance {
		stats.QueryPerformance[k] = v
	}

	return stats, nil
}

// updateStats refreshes the storage statistics.
func (d *DuckDBStorage) updateStats(ctx context.Context) error {
	var totalBars int64
	var totalSymbols int
	var earliest, latest time.Time

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bars").Scan(&totalBars); err != nil {
		return fmt.Errorf("failed to get total bars: %w", err)
	}

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT symbol) FROM bars").Scan(&totalSymbols); err != nil {
		return fmt.Errorf("failed to get total symbols: %w", err)
	}

	if totalBars > 0 {
		if err := d.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM bars").Scan(&earliest, &latest); err != nil {
			return fmt.Errorf("failed to get time range: %w", err)
		}
	}

	var storageSize int64
	if d.dbPath != ":memory:" {
		// Approximate size from record count; cheap and good enough for
		// monitoring.
		avgRecordSize := int64(128)
		storageSize = totalBars * avgRecordSize
	}

	d.queryMu.RLock()
	queryPerformance := make(map[string]time.Duration)
	for operation, times := range d.queryTimes {
		if len(times) > 0 {
			var total time.Duration
			for _, t := range times {
				total += t
			}
			queryPerformance[operation] = total / time.Duration(len(times))
		}
	}
	d.queryMu.RUnlock()

	d.statsMu.Lock()
	d.stats.TotalBars = totalBars
	d.stats.TotalSymbols = totalSymbols
	d.stats.EarliestData = earliest
	d.stats.LatestData = latest
	d.stats.StorageSize = storageSize
	d.stats.QueryPerformance = queryPerformance
	d.statsMu.Unlock()

	return nil
}

// HealthCheck implements HealthChecker.HealthCheck.
func (d *DuckDBStorage) HealthCheck(ctx context.Context) error {
	start := time.Now()
	defer func() {
		d.recordQueryTime("health_check", time.Since(start))
	}()

	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	if db == nil {
		return NewStorageError("health_check", "", "", errors.New("database connection is closed"))
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return NewStorageError("health_check", "", "SELECT 1", fmt.Errorf("database health check failed: %w", err))
	}

	if result != 1 {
		return NewStorageError("health_check", "", "SELECT 1", fmt.Errorf("unexpected health check result: %d", result))
	}

	return nil
}

// recordQueryTime tracks query performance for monitoring.
func (d *DuckDBStorage) recordQueryTime(operation string, duration time.Duration) {
	d.queryMu.Lock()
	defer d.queryMu.Unlock()

	times := d.queryTimes[operation]
	if len(times) >= 100 {
		times = times[1:]
	}

	d.queryTimes[operation] = append(times, duration)
}

// Compile-time interface compliance checks.
var (
	_ FullStorage    = (*DuckDBStorage)(nil)
	_ FullStorage    = (*MemoryStorage)(nil)
	_ BarStorer      = (*DuckDBStorage)(nil)
	_ BarReader      = (*DuckDBStorage)(nil)
	_ GapStorage     = (*DuckDBStorage)(nil)
	_ StorageManager = (*DuckDBStorage)(nil)
	_ HealthChecker  = (*DuckDBStorage)(nil)
)
