package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Migration represents a single database migration with version and implementation.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, db *sql.Tx) error
	Down        func(ctx context.Context, db *sql.Tx) error
}

// MigrationManager handles database schema migrations for DuckDB.
type MigrationManager struct {
	db      *sql.DB
	logger  *slog.Logger
	migrate []Migration
}

// NewMigrationManager creates a new migration manager instance.
func NewMigrationManager(db *sql.DB, logger *slog.Logger) *MigrationManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &MigrationManager{
		db:      db,
		logger:  logger,
		migrate: getAllMigrations(),
	}
}

// Initialize creates the migrations table if it doesn't exist.
func (m *MigrationManager) Initialize(ctx context.Context) error {
	createMigrationsTable := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description VARCHAR NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			execution_time BIGINT NOT NULL DEFAULT 0
		)`

	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

// Migrate runs all pending migrations up to the target version.
func (m *MigrationManager) Migrate(ctx context.Context, targetVersion int) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration manager: %w", err)
	}

	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion >= targetVersion {
		m.logger.Debug("no migrations to run", "current_version", currentVersion)
		return nil
	}

	migrationsToRun := make([]Migration, 0)
	for _, migration := range m.migrate {
		if migration.Version > currentVersion && migration.Version <= targetVersion {
			migrationsToRun = append(migrationsToRun, migration)
		}
	}

	if len(migrationsToRun) == 0 {
		return nil
	}

	for _, migration := range migrationsToRun {
		if err := m.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}
	}

	m.logger.Info("migrations completed",
		"final_version", targetVersion,
		"migrations_run", len(migrationsToRun))

	return nil
}

// MigrateToLatest runs all available migrations.
func (m *MigrationManager) MigrateToLatest(ctx context.Context) error {
	if len(m.migrate) == 0 {
		return nil
	}

	latestVersion := m.migrate[len(m.migrate)-1].Version
	return m.Migrate(ctx, latestVersion)
}

// Rollback rolls back migrations to the target version.
func (m *MigrationManager) Rollback(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if currentVersion <= targetVersion {
		return nil
	}

	migrationsToRollback := make([]Migration, 0)
	for i := len(m.migrate) - 1; i >= 0; i-- {
		migration := m.migrate[i]
		if migration.Version > targetVersion && migration.Version <= currentVersion {
			migrationsToRollback = append(migrationsToRollback, migration)
		}
	}

	for _, migration := range migrationsToRollback {
		if err := m.rollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
		}
	}

	m.logger.Info("rollback completed",
		"final_version", targetVersion,
		"migrations_rolled_back", len(migrationsToRollback))

	return nil
}

// GetStatus returns the current migration status.
func (m *MigrationManager) GetStatus(ctx context.Context) (*MigrationStatus, error) {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	appliedMigrations, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	latestVersion := 0
	if len(m.migrate) > 0 {
		latestVersion = m.migrate[len(m.migrate)-1].Version
	}

	pendingCount := 0
	for _, migration := range m.migrate {
		if migration.Version > currentVersion {
			pendingCount++
		}
	}

	return &MigrationStatus{
		CurrentVersion:      currentVersion,
		LatestVersion:       latestVersion,
		AppliedMigrations:   appliedMigrations,
		PendingMigrations:   pendingCount,
		TotalMigrations:     len(m.migrate),
		DatabaseInitialized: currentVersion >= 1,
	}, nil
}

// runMigration executes a single migration with timing and error handling.
func (m *MigrationManager) runMigration(ctx context.Context, migration Migration) error {
	start := time.Now()

	m.logger.Info("applying migration",
		"version", migration.Version,
		"description", migration.Description)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migration.Up(ctx, tx); err != nil {
		return fmt.Errorf("migration execution failed: %w", err)
	}

	executionTime := time.Since(start).Nanoseconds()
	insertQuery := `
		INSERT INTO schema_migrations (version, description, applied_at, execution_time)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.ExecContext(ctx, insertQuery,
		migration.Version,
		migration.Description,
		start,
		executionTime); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// rollbackMigration executes a single migration rollback.
func (m *MigrationManager) rollbackMigration(ctx context.Context, migration Migration) error {
	m.logger.Info("rolling back migration",
		"version", migration.Version,
		"description", migration.Description)

	if migration.Down == nil {
		return fmt.Errorf("migration %d has no rollback function", migration.Version)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start rollback transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migration.Down(ctx, tx); err != nil {
		return fmt.Errorf("rollback execution failed: %w", err)
	}

	deleteQuery := "DELETE FROM schema_migrations WHERE version = $1"
	if _, err := tx.ExecContext(ctx, deleteQuery, migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	return nil
}

// getCurrentVersion returns the highest applied migration version.
func (m *MigrationManager) getCurrentVersion(ctx context.Context) (int, error) {
	var version int
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"

	err := m.db.QueryRowContext(ctx, query).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, nil
}

// getAppliedMigrations returns the list of applied migrations with metadata.
func (m *MigrationManager) getAppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	query := `
		SELECT version, description, applied_at, execution_time
		FROM schema_migrations
		ORDER BY version`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var migrations []AppliedMigration
	for rows.Next() {
		var migration AppliedMigration
		var executionTime int64

		err := rows.Scan(
			&migration.Version,
			&migration.Description,
			&migration.AppliedAt,
			&executionTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}

		migration.ExecutionTime = time.Duration(executionTime)
		migrations = append(migrations, migration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}

	return migrations, nil
}

// getAllMigrations returns the complete list of available migrations.
func getAllMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Initial schema - bars and gaps tables",
			Up:          migrationV1Up,
			Down:        migrationV1Down,
		},
		{
			Version:     2,
			Description: "Add trade records table",
			Up:          migrationV2Up,
			Down:        migrationV2Down,
		},
		{
			Version:     3,
			Description: "Add performance indexes for analytical queries",
			Up:          migrationV3Up,
			Down:        migrationV3Down,
		},
	}
}

// Migration V1: bars and gaps tables. The composite primary key on bars is
// what gives Append its idempotence.
func migrationV1Up(ctx context.Context, db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			timestamp TIMESTAMPTZ NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL,
			symbol VARCHAR NOT NULL,
			timeframe VARCHAR NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT bars_pk PRIMARY KEY (symbol, timeframe, timestamp),
			CONSTRAINT bars_ohlc_valid CHECK (high >= open AND high >= close AND low <= open AND low <= close),
			CONSTRAINT bars_prices_positive CHECK (open > 0 AND high > 0 AND low > 0 AND close > 0),
			CONSTRAINT bars_volume_non_negative CHECK (volume >= 0)
		)`,

		`CREATE TABLE IF NOT EXISTS gaps (
			id VARCHAR PRIMARY KEY,
			symbol VARCHAR NOT NULL,
			timeframe VARCHAR NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status VARCHAR NOT NULL CHECK (status IN ('detected', 'filled', 'permanent')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			filled_at TIMESTAMPTZ,
			reason VARCHAR,
			CONSTRAINT gaps_time_order CHECK (end_time > start_time)
		)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

func migrationV1Down(ctx context.Context, db *sql.Tx) error {
	queries := []string{
		"DROP TABLE IF EXISTS gaps",
		"DROP TABLE IF EXISTS bars",
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute rollback query: %w", err)
		}
	}

	return nil
}

// Migration V2: trade records audit table. Every trade the engine executes
// is also persisted here so backtests and live runs can be inspected with
// plain SQL.
func migrationV2Up(ctx context.Context, db *sql.Tx) error {
	query := `
		CREATE TABLE IF NOT EXISTS trade_records (
			id VARCHAR PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			symbol1 VARCHAR NOT NULL,
			symbol2 VARCHAR NOT NULL,
			signal INTEGER NOT NULL CHECK (signal IN (-1, 0, 1)),
			qty1 DOUBLE NOT NULL,
			qty2 DOUBLE NOT NULL,
			price1 DOUBLE NOT NULL CHECK (price1 > 0),
			price2 DOUBLE NOT NULL CHECK (price2 > 0),
			z_score DOUBLE NOT NULL,
			cash_after DOUBLE NOT NULL CHECK (cash_after >= 0),
			value_after DOUBLE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create trade_records table: %w", err)
	}

	return nil
}

func migrationV2Down(ctx context.Context, db *sql.Tx) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS trade_records"); err != nil {
		return fmt.Errorf("failed to drop trade_records table: %w", err)
	}
	return nil
}

// Migration V3: performance indexes.
func migrationV3Up(ctx context.Context, db *sql.Tx) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_bars_symbol_timeframe ON bars (symbol, timeframe)",
		"CREATE INDEX IF NOT EXISTS idx_bars_timestamp ON bars (timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_bars_symbol_timestamp ON bars (symbol, timestamp)",

		"CREATE INDEX IF NOT EXISTS idx_gaps_symbol_timeframe ON gaps (symbol, timeframe)",
		"CREATE INDEX IF NOT EXISTS idx_gaps_status ON gaps (status)",
		"CREATE INDEX IF NOT EXISTS idx_gaps_created_at ON gaps (created_at)",

		"CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trade_records (timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_trades_signal ON trade_records (signal)",
	}

	for _, indexQuery := range indexes {
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func migrationV3Down(ctx context.Context, db *sql.Tx) error {
	indexes := []string{
		"DROP INDEX IF EXISTS idx_bars_symbol_timeframe",
		"DROP INDEX IF EXISTS idx_bars_timestamp",
		"DROP INDEX IF EXISTS idx_bars_symbol_timestamp",
		"DROP INDEX IF EXISTS idx_gaps_symbol_timeframe",
		"DROP INDEX IF EXISTS idx_gaps_status",
		"DROP INDEX IF EXISTS idx_gaps_created_at",
		"DROP INDEX IF EXISTS idx_trades_timestamp",
		"DROP INDEX IF EXISTS idx_trades_signal",
	}

	for _, indexQuery := range indexes {
		if _, err := db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("failed to drop index: %w", err)
		}
	}

	return nil
}

// MigrationStatus represents the current state of database migrations.
type MigrationStatus struct {
	CurrentVersion      int                `json:"current_version"`
	LatestVersion       int                `json:"latest_version"`
	AppliedMigrations   []AppliedMigration `json:"applied_migrations"`
	PendingMigrations   int                `json:"pending_migrations"`
	TotalMigrations     int                `json:"total_migrations"`
	DatabaseInitialized bool               `json:"database_initialized"`
}

// AppliedMigration represents a migration that has been successfully applied.
type AppliedMigration struct {
	Version       int           `json:"version"`
	Description   string        `json:"description"`
	AppliedAt     time.Time     `json:"applied_at"`
	ExecutionTime time.Duration `json:"execution_time"`
}
