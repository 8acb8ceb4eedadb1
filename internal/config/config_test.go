package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
environment:
  log_level: info
market:
  provider: tradier
  api_key: test-tradier-key
advisor:
  api_key: test-openai-key
session:
  symbols: [AAPL, MSFT]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 100000.0, cfg.Portfolio.InitialCash)
	assert.Equal(t, 6, cfg.Portfolio.MaxOpenPositions)
	assert.Equal(t, 3, cfg.Advisor.MaxOpportunities)
	assert.Equal(t, "data/paperledger.db", cfg.Storage.Path)
	assert.Equal(t, 8080, cfg.Dashboard.Port)

	interval, err := cfg.SessionInterval()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, interval)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_TRADIER_KEY", "expanded-key")
	content := `
market:
  provider: tradier
  api_key: ${TEST_TRADIER_KEY}
advisor:
  api_key: openai-key
session:
  symbols: [SPY]
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Market.APIKey)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	content := minimalConfig + "\nbroker:\n  account_id: abc\n"
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Environment.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "negative initial cash",
			mutate:  func(c *Config) { c.Portfolio.InitialCash = -5 },
			wantErr: "initial_cash",
		},
		{
			name:    "zero max positions",
			mutate:  func(c *Config) { c.Portfolio.MaxOpenPositions = -1 },
			wantErr: "max_open_positions",
		},
		{
			name:    "unknown market provider",
			mutate:  func(c *Config) { c.Market.Provider = "bloomberg" },
			wantErr: "market.provider",
		},
		{
			name:    "tradier without key",
			mutate:  func(c *Config) { c.Market.APIKey = "" },
			wantErr: "market.api_key",
		},
		{
			name:    "missing advisor key",
			mutate:  func(c *Config) { c.Advisor.APIKey = "" },
			wantErr: "advisor.api_key",
		},
		{
			name:    "interval too short",
			mutate:  func(c *Config) { c.Session.Interval = "5s" },
			wantErr: "session.interval",
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Session.Symbols = nil },
			wantErr: "session.symbols",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestYahooProviderNeedsNoKey(t *testing.T) {
	content := `
market:
  provider: yahoo
advisor:
  api_key: openai-key
session:
  symbols: [SPY]
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "yahoo", cfg.Market.Provider)
}
