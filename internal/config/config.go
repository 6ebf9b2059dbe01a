// Package config provides centralized configuration management for the pair
// trader. Configuration is loaded from defaults, an optional JSON file, and
// environment variable overrides, then validated as a whole before any
// component starts.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" env:"APP_NAME"`
	Version    string `json:"version" env:"VERSION"`
	ConfigPath string `json:"-" env:"CONFIG_PATH"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Exchange configuration
	Exchange ExchangeConfig `json:"exchange"`

	// Collector configuration
	Collector CollectorConfig `json:"collector"`

	// Trading configuration
	Trading TradingConfig `json:"trading"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics"`

	// Error handling configuration
	ErrorHandling ErrorHandlingConfig `json:"error_handling"`
}

// StorageConfig configures the bar storage backend.
type StorageConfig struct {
	Type         string `json:"type" env:"STORAGE_TYPE"`           // "duckdb", "memory"
	DatabaseURL  string `json:"database_url" env:"DATABASE_URL"`   // Database path or connection string
	BatchSize    int    `json:"batch_size" env:"BATCH_SIZE"`       // Batch size for bulk appends
	MaxConns     int    `json:"max_conns" env:"MAX_CONNS"`         // Maximum database connections
	QueryTimeout string `json:"query_timeout" env:"QUERY_TIMEOUT"` // Query execution timeout
}

// ExchangeConfig configures the exchange adapter.
type ExchangeConfig struct {
	Type        string            `json:"type" env:"EXCHANGE_TYPE"`    // "binance", "mock"
	BaseURL     string            `json:"base_url" env:"EXCHANGE_URL"` // Override for testing
	RateLimit   int               `json:"rate_limit" env:"RATE_LIMIT"` // Requests per second
	Timeout     string            `json:"timeout" env:"HTTP_TIMEOUT"`  // HTTP request timeout
	RetryPolicy RetryPolicyConfig `json:"retry_policy"`                // Retry configuration
}

// CollectorConfig configures historical data collection.
type CollectorConfig struct {
	BatchSize       int    `json:"batch_size" env:"COLLECTOR_BATCH_SIZE"` // Bars per fetch request
	GracefulTimeout string `json:"graceful_timeout" env:"GRACEFUL_TIMEOUT"`
	RetryAttempts   int    `json:"retry_attempts" env:"RETRY_ATTEMPTS"`
}

// TradingConfig configures the pair trading strategy and engine.
type TradingConfig struct {
	Symbol1              string  `json:"symbol1" env:"SYMBOL1"`                             // First leg (e.g. "ADAUSDT")
	Symbol2              string  `json:"symbol2" env:"SYMBOL2"`                             // Second leg (e.g. "BNBUSDT")
	Timeframe            string  `json:"timeframe" env:"TIMEFRAME"`                         // Bar timeframe for backtests
	InitialCapital       float64 `json:"initial_capital" env:"INITIAL_CAPITAL"`             // Starting cash
	MaxPositionSize      float64 `json:"max_position_size" env:"MAX_POSITION_SIZE"`         // Fraction of capital per trade
	LookbackPeriod       int     `json:"lookback_period" env:"LOOKBACK_PERIOD"`             // Spread window size
	ZThreshold           float64 `json:"z_threshold" env:"Z_THRESHOLD"`                     // Entry threshold
	MinSpreadStdDev      float64 `json:"min_spread_std_dev" env:"MIN_SPREAD_STD_DEV"`       // Volatility floor
	FlattenEpsilon       float64 `json:"flatten_epsilon" env:"FLATTEN_EPSILON"`             // Exit band around zero
	CorrelationThreshold float64 `json:"correlation_threshold" env:"CORRELATION_THRESHOLD"` // Minimum pair correlation
	UpdateInterval       string  `json:"update_interval" env:"UPDATE_INTERVAL"`             // Live tick cadence
	TickTimeout          string  `json:"tick_timeout" env:"TICK_TIMEOUT"`                   // Per-tick fetch deadline
	StateFilePath        string  `json:"state_file_path" env:"STATE_FILE_PATH"`             // Snapshot location
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string            `json:"level" env:"LOG_LEVEL"`             // Log level: debug, info, warn, error
	Format        string            `json:"format" env:"LOG_FORMAT"`           // Log format: json, text
	Output        string            `json:"output" env:"LOG_OUTPUT"`           // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" env:"LOG_FILE_PATH"`     // Log file path
	MaxSize       int               `json:"max_size" env:"LOG_MAX_SIZE"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge        int               `json:"max_age" env:"LOG_MAX_AGE"`         // Maximum log file age in days
	Compress      bool              `json:"compress" env:"LOG_COMPRESS"`       // Compress rotated files
	ContextFields map[string]string `json:"context_fields"`                    // Additional context fields
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED"` // Enable the metrics server in live mode
	Port    int    `json:"port" env:"METRICS_PORT"`       // Metrics server port
	Path    string `json:"path" env:"METRICS_PATH"`       // Metrics endpoint path
}

// ErrorHandlingConfig configures error handling and retry policies.
type ErrorHandlingConfig struct {
	GlobalRetryPolicy    RetryPolicyConfig            `json:"global_retry_policy"`
	ComponentPolicies    map[string]RetryPolicyConfig `json:"component_policies"`
	EnableCircuitBreaker bool                         `json:"enable_circuit_breaker" env:"ENABLE_CIRCUIT_BREAKER"`
	CircuitBreakerConfig CircuitBreakerConfig         `json:"circuit_breaker_config"`
}

// RetryPolicyConfig configures retry behavior.
type RetryPolicyConfig struct {
	MaxAttempts     int      `json:"max_attempts"`     // Maximum retry attempts
	InitialDelay    string   `json:"initial_delay"`    // Initial delay between retries
	MaxDelay        string   `json:"max_delay"`        // Maximum delay between retries
	BackoffStrategy string   `json:"backoff_strategy"` // Backoff strategy: fixed, exponential, linear
	RetryableErrors []string `json:"retryable_errors"` // Additional retryable error types
	Jitter          bool     `json:"jitter"`           // Add randomness to delays
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold"`  // Failures to open the circuit
	RecoveryTimeout  string `json:"recovery_timeout"`   // Time before attempting recovery
	HalfOpenRequests int    `json:"half_open_requests"` // Test requests in half-open state
}

// Manager handles configuration loading and validation.
type Manager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
}

// NewManager creates a new configuration manager.
func NewManager(configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		configPath: configPath,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (m *Manager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	cfg := DefaultConfig()

	if m.configPath != "" {
		if err := m.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := m.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := m.validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	m.config = cfg
	m.logger.Info("configuration loaded successfully",
		"config_path", m.configPath,
		"storage_type", cfg.Storage.Type,
		"exchange_type", cfg.Exchange.Type,
		"pair", cfg.Trading.Symbol1+"/"+cfg.Trading.Symbol2,
		"log_level", cfg.Logging.Level)

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func (m *Manager) loadFromFile(cfg *AppConfig) error {
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.logger.Debug("config file does not exist, using defaults", "path", m.configPath)
		return nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", m.configPath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", m.configPath, err)
	}

	m.logger.Debug("loaded configuration from file", "path", m.configPath)
	return nil
}

// loadFromEnv loads configuration overrides from environment variables.
func (m *Manager) loadFromEnv(cfg *AppConfig) error {
	if val := os.Getenv("APP_NAME"); val != "" {
		cfg.AppName = val
	}
	if val := os.Getenv("VERSION"); val != "" {
		cfg.Version = val
	}

	// Storage
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		cfg.Storage.Type = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Storage.DatabaseURL = val
	}
	if val := os.Getenv("BATCH_SIZE"); val != "" {
		if batchSize, err := strconv.Atoi(val); err == nil {
			cfg.Storage.BatchSize = batchSize
		}
	}
	if val := os.Getenv("MAX_CONNS"); val != "" {
		if maxConns, err := strconv.Atoi(val); err == nil {
			cfg.Storage.MaxConns = maxConns
		}
	}

	// Exchange
	if val := os.Getenv("EXCHANGE_TYPE"); val != "" {
		cfg.Exchange.Type = val
	}
	if val := os.Getenv("EXCHANGE_URL"); val != "" {
		cfg.Exchange.BaseURL = val
	}
	if val := os.Getenv("RATE_LIMIT"); val != "" {
		if rateLimit, err := strconv.Atoi(val); err == nil {
			cfg.Exchange.RateLimit = rateLimit
		}
	}

	// Collector
	if val := os.Getenv("COLLECTOR_BATCH_SIZE"); val != "" {
		if batchSize, err := strconv.Atoi(val); err == nil {
			cfg.Collector.BatchSize = batchSize
		}
	}
	if val := os.Getenv("RETRY_ATTEMPTS"); val != "" {
		if retryAttempts, err := strconv.Atoi(val); err == nil {
			cfg.Collector.RetryAttempts = retryAttempts
		}
	}

	// Trading
	if val := os.Getenv("SYMBOL1"); val != "" {
		cfg.Trading.Symbol1 = val
	}
	if val := os.Getenv("SYMBOL2"); val != "" {
		cfg.Trading.Symbol2 = val
	}
	if val := os.Getenv("TIMEFRAME"); val != "" {
		cfg.Trading.Timeframe = val
	}
	if val := os.Getenv("INITIAL_CAPITAL"); val != "" {
		if capital, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Trading.InitialCapital = capital
		}
	}
	if val := os.Getenv("MAX_POSITION_SIZE"); val != "" {
		if size, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Trading.MaxPositionSize = size
		}
	}
	if val := os.Getenv("LOOKBACK_PERIOD"); val != "" {
		if lookback, err := strconv.Atoi(val); err == nil {
			cfg.Trading.LookbackPeriod = lookback
		}
	}
	if val := os.Getenv("Z_THRESHOLD"); val != "" {
		if threshold, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Trading.ZThreshold = threshold
		}
	}
	if val := os.Getenv("MIN_SPREAD_STD_DEV"); val != "" {
		if floor, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Trading.MinSpreadStdDev = floor
		}
	}
	if val := os.Getenv("FLATTEN_EPSILON"); val != "" {
		if eps, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Trading.FlattenEpsilon = eps
		}
	}
	if val := os.Getenv("UPDATE_INTERVAL"); val != "" {
		cfg.Trading.UpdateInterval = val
	}
	if val := os.Getenv("TICK_TIMEOUT"); val != "" {
		cfg.Trading.TickTimeout = val
	}
	if val := os.Getenv("STATE_FILE_PATH"); val != "" {
		cfg.Trading.StateFilePath = val
	}

	// Logging
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}
	if val := os.Getenv("LOG_FILE_PATH"); val != "" {
		cfg.Logging.FilePath = val
	}

	// Metrics
	if val := os.Getenv("METRICS_ENABLED"); val != "" {
		cfg.Metrics.Enabled = val == "true"
	}
	if val := os.Getenv("METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}

	m.logger.Debug("loaded configuration from environment variables")
	return nil
}

// validateConfig validates the configuration for consistency and required fields.
func (m *Manager) validateConfig(cfg *AppConfig) error {
	var errs []string

	// Storage
	if cfg.Storage.Type == "" {
		errs = append(errs, "storage.type is required")
	}
	if cfg.Storage.Type == "duckdb" && cfg.Storage.DatabaseURL == "" {
		errs = append(errs, "storage.database_url is required for DuckDB storage")
	}
	if cfg.Storage.BatchSize <= 0 {
		errs = append(errs, "storage.batch_size must be greater than 0")
	}

	// Exchange
	if cfg.Exchange.Type == "" {
		errs = append(errs, "exchange.type is required")
	}
	if cfg.Exchange.RateLimit <= 0 {
		errs = append(errs, "exchange.rate_limit must be greater than 0")
	}

	// Collector
	if cfg.Collector.BatchSize <= 0 {
		errs = append(errs, "collector.batch_size must be greater than 0")
	}

	// Trading
	if cfg.Trading.Symbol1 == "" {
		errs = append(errs, "trading.symbol1 is required")
	}
	if cfg.Trading.Symbol2 == "" {
		errs = append(errs, "trading.symbol2 is required")
	}
	if cfg.Trading.Symbol1 != "" && cfg.Trading.Symbol1 == cfg.Trading.Symbol2 {
		errs = append(errs, "trading.symbol1 and trading.symbol2 must be distinct")
	}
	if cfg.Trading.InitialCapital <= 0 {
		errs = append(errs, "trading.initial_capital must be greater than 0")
	}
	if cfg.Trading.MaxPositionSize <= 0 || cfg.Trading.MaxPositionSize > 1 {
		errs = append(errs, "trading.max_position_size must be in (0, 1]")
	}
	if cfg.Trading.LookbackPeriod < 2 {
		errs = append(errs, "trading.lookback_period must be at least 2")
	}
	if cfg.Trading.ZThreshold <= 0 {
		errs = append(errs, "trading.z_threshold must be greater than 0")
	}
	if cfg.Trading.MinSpreadStdDev <= 0 {
		errs = append(errs, "trading.min_spread_std_dev must be greater than 0")
	}
	if cfg.Trading.FlattenEpsilon < 0 || cfg.Trading.FlattenEpsilon >= cfg.Trading.ZThreshold {
		errs = append(errs, "trading.flatten_epsilon must be non-negative and below z_threshold")
	}
	validTimeframes := map[string]bool{
		"1m": true, "5m": true, "15m": true, "30m": true,
		"1h": true, "4h": true, "1d": true, "1w": true,
	}
	if !validTimeframes[cfg.Trading.Timeframe] {
		errs = append(errs, fmt.Sprintf("trading.timeframe %q is not supported", cfg.Trading.Timeframe))
	}
	if cfg.Trading.UpdateInterval != "" {
		if _, err := time.ParseDuration(cfg.Trading.UpdateInterval); err != nil {
			errs = append(errs, fmt.Sprintf("trading.update_interval is not a valid duration: %v", err))
		}
	}
	if cfg.Trading.TickTimeout != "" {
		if _, err := time.ParseDuration(cfg.Trading.TickTimeout); err != nil {
			errs = append(errs, fmt.Sprintf("trading.tick_timeout is not a valid duration: %v", err))
		}
	}
	if cfg.Trading.StateFilePath == "" {
		errs = append(errs, "trading.state_file_path is required")
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	// Metrics
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			errs = append(errs, "metrics.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() *AppConfig {
	return m.config
}

// SaveConfig saves the current configuration to the config file.
func (m *Manager) SaveConfig(ctx context.Context) error {
	if m.configPath == "" {
		return fmt.Errorf("no config path specified")
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.logger.Info("configuration saved", "path", m.configPath)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "pair-trader",
		Version: "1.0.0",
		Storage: StorageConfig{
			Type:         "duckdb",
			DatabaseURL:  "./data/bars.db",
			BatchSize:    1000,
			MaxConns:     1,
			QueryTimeout: "30s",
		},
		Exchange: ExchangeConfig{
			Type:      "binance",
			RateLimit: 10,
			Timeout:   "30s",
			RetryPolicy: RetryPolicyConfig{
				MaxAttempts:     3,
				InitialDelay:    "1s",
				MaxDelay:        "30s",
				BackoffStrategy: "exponential",
				RetryableErrors: []string{"timeout", "rate_limit", "server_error"},
				Jitter:          true,
			},
		},
		Collector: CollectorConfig{
			BatchSize:       1000,
			GracefulTimeout: "30s",
			RetryAttempts:   3,
		},
		Trading: TradingConfig{
			Symbol1:              "ADAUSDT",
			Symbol2:              "BNBUSDT",
			Timeframe:            "1h",
			InitialCapital:       1000.0,
			MaxPositionSize:      0.5,
			LookbackPeriod:       20,
			ZThreshold:           2.0,
			MinSpreadStdDev:      0.001,
			FlattenEpsilon:       0.25,
			CorrelationThreshold: 0.7,
			UpdateInterval:       "60s",
			TickTimeout:          "30s",
			StateFilePath:        "./data/trading_state.json",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "pair-trader",
				"version": "1.0.0",
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		ErrorHandling: ErrorHandlingConfig{
			GlobalRetryPolicy: RetryPolicyConfig{
				MaxAttempts:     3,
				InitialDelay:    "1s",
				MaxDelay:        "60s",
				BackoffStrategy: "exponential",
				RetryableErrors: []string{"timeout", "network", "server_error"},
				Jitter:          true,
			},
			ComponentPolicies:    make(map[string]RetryPolicyConfig),
			EnableCircuitBreaker: true,
			CircuitBreakerConfig: CircuitBreakerConfig{
				FailureThreshold: 5,
				RecoveryTimeout:  "30s",
				HalfOpenRequests: 3,
			},
		},
	}
}

// GetUpdateInterval parses the live tick cadence, falling back to one minute.
func (tc TradingConfig) GetUpdateInterval() time.Duration {
	d, err := time.ParseDuration(tc.UpdateInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// GetTickTimeout parses the per-tick fetch deadline, falling back to 30s.
func (tc TradingConfig) GetTickTimeout() time.Duration {
	d, err := time.ParseDuration(tc.TickTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// String returns a string representation of the configuration.
func (c *AppConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
