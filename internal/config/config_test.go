package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Binance: BinanceConfig{
			APIKey:    "key",
			APISecret: "secret",
			Testnet:   true,
		},
		Trading: TradingConfig{
			Symbols:             []string{"BTCUSDT", "ETHUSDT"},
			Interval:            "1m",
			CandleLimit:         100,
			PollIntervalSeconds: 60,
			QuoteAsset:          "USDT",
			USDTFraction:        0.1,
			StopLossPct:         0.03,
			TakeProfitPct:       0.05,
		},
		Strategy: StrategyConfig{
			Name:   "simple-threshold",
			Window: 3,
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Binance.APIKey = ""
	assert.ErrorContains(t, cfg.Validate(), "credentials")

	cfg = validConfig()
	cfg.Binance.APISecret = ""
	assert.ErrorContains(t, cfg.Validate(), "credentials")
}

func TestValidateRejectsBadTradingParams(t *testing.T) {
	cfg := validConfig()
	cfg.Trading.Symbols = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.PollIntervalSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.USDTFraction = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.USDTFraction = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.StopLossPct = 1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.TakeProfitPct = -0.1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Trading.CandleLimit = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateStrategySettings(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.Name = "momentum"
	assert.ErrorContains(t, cfg.Validate(), "unknown strategy")

	cfg = validConfig()
	cfg.Strategy.Window = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Strategy = StrategyConfig{Name: "dual-crossover", ShortWindow: 5, LongWindow: 20}
	require.NoError(t, cfg.Validate())

	cfg.Strategy.ShortWindow = 20
	assert.ErrorContains(t, cfg.Validate(), "smaller than long window")
}

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("TESTNET", "")
	t.Setenv("BINANCE_TEST_API_KEY", "k")
	t.Setenv("BINANCE_TEST_API_SECRET", "s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 60, cfg.Trading.PollIntervalSeconds)
	assert.Equal(t, 0.1, cfg.Trading.USDTFraction)
	assert.Equal(t, "simple-threshold", cfg.Strategy.Name)
	assert.Equal(t, "live_trade_log.csv", cfg.Ledger.Path)
	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, "k", cfg.Binance.APIKey)
	assert.Equal(t, "s", cfg.Binance.APISecret)
	require.NoError(t, cfg.Validate())
}

func TestTestnetSelectsTestCredentials(t *testing.T) {
	t.Setenv("TESTNET", "false")
	t.Setenv("BINANCE_API_KEY", "prod-key")
	t.Setenv("BINANCE_API_SECRET", "prod-secret")
	t.Setenv("BINANCE_TEST_API_KEY", "test-key")
	t.Setenv("BINANCE_TEST_API_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Binance.Testnet)
	assert.Equal(t, "prod-key", cfg.Binance.APIKey)

	t.Setenv("TESTNET", "true")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Binance.Testnet)
	assert.Equal(t, "test-key", cfg.Binance.APIKey)
}
