package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "pair-trader", cfg.AppName)
	assert.Equal(t, "duckdb", cfg.Storage.Type)
	assert.Equal(t, "binance", cfg.Exchange.Type)
	assert.Equal(t, "ADAUSDT", cfg.Trading.Symbol1)
	assert.Equal(t, "BNBUSDT", cfg.Trading.Symbol2)
	assert.Equal(t, 1000.0, cfg.Trading.InitialCapital)
	assert.Equal(t, 0.5, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 20, cfg.Trading.LookbackPeriod)
	assert.Equal(t, 2.0, cfg.Trading.ZThreshold)
	assert.Equal(t, 0.001, cfg.Trading.MinSpreadStdDev)

	// Defaults must pass their own validation.
	m := NewManager("", nil)
	require.NoError(t, m.validateConfig(cfg))
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"trading": {
			"symbol1": "ETHUSDT",
			"symbol2": "BTCUSDT",
			"timeframe": "1h",
			"initial_capital": 5000,
			"max_position_size": 0.5,
			"lookback_period": 30,
			"z_threshold": 1.5,
			"min_spread_std_dev": 0.001,
			"flatten_epsilon": 0.2,
			"update_interval": "30s",
			"tick_timeout": "10s",
			"state_file_path": "./state.json"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m := NewManager(path, nil)
	cfg, err := m.LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Trading.Symbol1)
	assert.Equal(t, "BTCUSDT", cfg.Trading.Symbol2)
	assert.Equal(t, 5000.0, cfg.Trading.InitialCapital)
	assert.Equal(t, 30, cfg.Trading.LookbackPeriod)
	assert.Equal(t, 1.5, cfg.Trading.ZThreshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, "duckdb", cfg.Storage.Type)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL1", "SOLUSDT")
	t.Setenv("Z_THRESHOLD", "2.5")
	t.Setenv("LOOKBACK_PERIOD", "40")
	t.Setenv("LOG_LEVEL", "debug")

	m := NewManager("", nil)
	cfg, err := m.LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", cfg.Trading.Symbol1)
	assert.Equal(t, 2.5, cfg.Trading.ZThreshold)
	assert.Equal(t, 40, cfg.Trading.LookbackPeriod)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AppConfig)
		wantErr string
	}{
		{
			name:    "identical legs",
			modify:  func(c *AppConfig) { c.Trading.Symbol2 = c.Trading.Symbol1 },
			wantErr: "must be distinct",
		},
		{
			name:    "non-positive capital",
			modify:  func(c *AppConfig) { c.Trading.InitialCapital = 0 },
			wantErr: "initial_capital",
		},
		{
			name:    "lookback too small",
			modify:  func(c *AppConfig) { c.Trading.LookbackPeriod = 1 },
			wantErr: "lookback_period",
		},
		{
			name:    "negative threshold",
			modify:  func(c *AppConfig) { c.Trading.ZThreshold = -1 },
			wantErr: "z_threshold",
		},
		{
			name:    "flatten epsilon above threshold",
			modify:  func(c *AppConfig) { c.Trading.FlattenEpsilon = 3.0 },
			wantErr: "flatten_epsilon",
		},
		{
			name:    "position size above one",
			modify:  func(c *AppConfig) { c.Trading.MaxPositionSize = 1.5 },
			wantErr: "max_position_size",
		},
		{
			name:    "bad timeframe",
			modify:  func(c *AppConfig) { c.Trading.Timeframe = "7h" },
			wantErr: "timeframe",
		},
		{
			name:    "bad update interval",
			modify:  func(c *AppConfig) { c.Trading.UpdateInterval = "soon" },
			wantErr: "update_interval",
		},
		{
			name:    "missing state file path",
			modify:  func(c *AppConfig) { c.Trading.StateFilePath = "" },
			wantErr: "state_file_path",
		},
		{
			name:    "bad log level",
			modify:  func(c *AppConfig) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "metrics port out of range",
			modify:  func(c *AppConfig) { c.Metrics.Enabled = true; c.Metrics.Port = 0 },
			wantErr: "metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			m := NewManager("", nil)
			err := m.validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTradingConfigDurations(t *testing.T) {
	tc := TradingConfig{UpdateInterval: "90s", TickTimeout: "5s"}
	assert.Equal(t, 90*time.Second, tc.GetUpdateInterval())
	assert.Equal(t, 5*time.Second, tc.GetTickTimeout())

	// Unparseable values fall back to safe defaults.
	tc = TradingConfig{UpdateInterval: "bogus", TickTimeout: ""}
	assert.Equal(t, time.Minute, tc.GetUpdateInterval())
	assert.Equal(t, 30*time.Second, tc.GetTickTimeout())
}
