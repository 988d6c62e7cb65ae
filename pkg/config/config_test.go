package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/pairsbot/internal/domain"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsMatchOriginalConstants(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3.0, cfg.Strategy.EntryThreshold)
	assert.Equal(t, 0.2, cfg.Strategy.TakeProfitThreshold)
	assert.Equal(t, 4.0, cfg.Strategy.StopLossThreshold)
	assert.Equal(t, 50, cfg.Strategy.RollingWindowSize)
	assert.Equal(t, 0.02, cfg.Strategy.RiskPerTrade)
	assert.Equal(t, 10.0, cfg.Strategy.SizingScaleFactor)
	assert.Equal(t, 50.0, cfg.Strategy.TotalCapital)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, ExecutionPaper, cfg.Execution.Mode)
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "POPCAT-USD", cfg.Pairs[0].Y.MarketID)
}

func TestLoadYAMLKeepsUnsetDefaults(t *testing.T) {
	path := writeFile(t, "pairsbot.yaml", `
pairs:
  - name: popcat-wif
    y: {price_id: popcat-mint, market_id: POPCAT-USD}
    x: {price_id: wif-mint, market_id: WIF-USD}
strategy:
  entry_threshold: 2.5
  rolling_window_size: 20
poll_interval: 1m
execution:
  mode: rest
  rest:
    base_url: http://venue.local
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "popcat-wif", cfg.Pairs[0].Name)
	assert.Equal(t, 2.5, cfg.Strategy.EntryThreshold)
	assert.Equal(t, 4.0, cfg.Strategy.StopLossThreshold)
	assert.Equal(t, 20, cfg.Strategy.RollingWindowSize)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, ExecutionREST, cfg.Execution.Mode)
	assert.Equal(t, "/orders", cfg.Execution.REST.OrderPath)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pairsbot.yml", "strategy:\n  total_capital: 100\n")
	t.Setenv("PAIRSBOT_TOTAL_CAPITAL", "250")
	t.Setenv("PAIRSBOT_POLL_INTERVAL", "30s")
	t.Setenv("PAIRSBOT_EXECUTION_MODE", "PAPER")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Strategy.TotalCapital)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, ExecutionPaper, cfg.Execution.Mode)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "pairsbot.toml", "x = 1")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"take profit equals entry", func(c *Config) { c.Strategy.TakeProfitThreshold = 3 }},
		{"take profit above entry", func(c *Config) { c.Strategy.TakeProfitThreshold = 3.5 }},
		{"stop loss below entry", func(c *Config) { c.Strategy.StopLossThreshold = 2 }},
		{"zero take profit", func(c *Config) { c.Strategy.TakeProfitThreshold = 0 }},
		{"window too small", func(c *Config) { c.Strategy.RollingWindowSize = 1 }},
		{"risk above one", func(c *Config) { c.Strategy.RiskPerTrade = 1.5 }},
		{"zero scale", func(c *Config) { c.Strategy.SizingScaleFactor = 0 }},
		{"zero capital", func(c *Config) { c.Strategy.TotalCapital = 0 }},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }},
		{"no pairs", func(c *Config) { c.Pairs = nil }},
		{"same instrument", func(c *Config) { c.Pairs[0].X = c.Pairs[0].Y }},
		{"empty market", func(c *Config) { c.Pairs[0].X.MarketID = "" }},
		{"duplicate pair", func(c *Config) { c.Pairs = append(c.Pairs, c.Pairs[0]) }},
		{"rest without url", func(c *Config) { c.Execution.Mode = ExecutionREST }},
		{"unknown mode", func(c *Config) { c.Execution.Mode = "live" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), err.Error())
		})
	}

	require.NoError(t, Default().Validate())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "yml", "pairsbot.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "popcat-pnut", cfg.Pairs[0].Name)
	assert.Equal(t, 10*time.Second, cfg.PriceFeed.Timeout)
	assert.Equal(t, "127.0.0.1:6060", cfg.MetricsAddr)
	assert.True(t, cfg.Logging.Compress)
}
