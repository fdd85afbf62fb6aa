package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/robik3456/tradebot/pkg/secrets"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GCP      GCPConfig      `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type BinanceConfig struct {
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	Testnet      bool   `mapstructure:"testnet"`
	StreamPrices bool   `mapstructure:"stream_prices"`
}

type TradingConfig struct {
	Symbols             []string `mapstructure:"symbols"`
	Interval            string   `mapstructure:"interval"`
	CandleLimit         int      `mapstructure:"candle_limit"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds"`
	QuoteAsset          string   `mapstructure:"quote_asset"`
	USDTFraction        float64  `mapstructure:"usdt_fraction"`
	StopLossPct         float64  `mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64  `mapstructure:"take_profit_pct"`
}

type StrategyConfig struct {
	Name        string `mapstructure:"name"`
	Window      int    `mapstructure:"window"`
	ShortWindow int    `mapstructure:"short_window"`
	LongWindow  int    `mapstructure:"long_window"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tradebot")
	}

	v.SetEnvPrefix("TRADEBOT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("binance.testnet", true)
	v.SetDefault("binance.stream_prices", true)

	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.interval", "1m")
	v.SetDefault("trading.candle_limit", 100)
	v.SetDefault("trading.poll_interval_seconds", 60)
	v.SetDefault("trading.quote_asset", "USDT")
	v.SetDefault("trading.usdt_fraction", 0.1)
	v.SetDefault("trading.stop_loss_pct", 0.03)
	v.SetDefault("trading.take_profit_pct", 0.05)

	v.SetDefault("strategy.name", "simple-threshold")
	v.SetDefault("strategy.window", 3)
	v.SetDefault("strategy.short_window", 5)
	v.SetDefault("strategy.long_window", 20)

	v.SetDefault("ledger.path", "live_trade_log.csv")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key", secretNames.APIKey)
	v.SetDefault("gcp.secret_names.api_secret", secretNames.APISecret)
	v.SetDefault("gcp.secret_names.test_api_key", secretNames.TestAPIKey)
	v.SetDefault("gcp.secret_names.test_api_secret", secretNames.TestAPISecret)
}

// overrideFromEnv honors the flat variable names the bot has always used,
// on top of viper's TRADEBOT_* mapping. Testnet credentials are separate
// variables so switching endpoints never reuses production keys.
func overrideFromEnv(config *Config) {
	if testnet := os.Getenv("TESTNET"); testnet != "" {
		config.Binance.Testnet = testnet == "true" || testnet == "1"
	}

	if config.Binance.Testnet {
		if apiKey := os.Getenv("BINANCE_TEST_API_KEY"); apiKey != "" {
			config.Binance.APIKey = apiKey
		}
		if apiSecret := os.Getenv("BINANCE_TEST_API_SECRET"); apiSecret != "" {
			config.Binance.APISecret = apiSecret
		}
	} else {
		if apiKey := os.Getenv("BINANCE_API_KEY"); apiKey != "" {
			config.Binance.APIKey = apiKey
		}
		if apiSecret := os.Getenv("BINANCE_API_SECRET"); apiSecret != "" {
			config.Binance.APISecret = apiSecret
		}
	}

	if path := os.Getenv("TRADE_LOG_CSV"); path != "" {
		config.Ledger.Path = path
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

// Validate enforces the startup contract: configuration problems are fatal
// before the loop starts, never retried at runtime.
func (c *Config) Validate() error {
	if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
		return fmt.Errorf("missing exchange credentials (set BINANCE_API_KEY/BINANCE_API_SECRET or the testnet equivalents)")
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("no trading symbols configured")
	}
	if c.Trading.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll interval must be at least 1 second, got %d", c.Trading.PollIntervalSeconds)
	}
	if c.Trading.USDTFraction <= 0 || c.Trading.USDTFraction > 1 {
		return fmt.Errorf("usdt fraction must be in (0, 1], got %v", c.Trading.USDTFraction)
	}
	if c.Trading.StopLossPct < 0 || c.Trading.StopLossPct >= 1 {
		return fmt.Errorf("stop loss fraction must be in [0, 1), got %v", c.Trading.StopLossPct)
	}
	if c.Trading.TakeProfitPct < 0 {
		return fmt.Errorf("take profit fraction must be non-negative, got %v", c.Trading.TakeProfitPct)
	}
	if c.Trading.CandleLimit < 1 {
		return fmt.Errorf("candle limit must be at least 1, got %d", c.Trading.CandleLimit)
	}

	switch c.Strategy.Name {
	case "simple-threshold":
		if c.Strategy.Window < 1 {
			return fmt.Errorf("strategy window must be at least 1, got %d", c.Strategy.Window)
		}
	case "dual-crossover":
		if c.Strategy.ShortWindow < 1 || c.Strategy.LongWindow < 1 {
			return fmt.Errorf("strategy windows must be at least 1, got %d/%d", c.Strategy.ShortWindow, c.Strategy.LongWindow)
		}
		if c.Strategy.ShortWindow >= c.Strategy.LongWindow {
			return fmt.Errorf("short window %d must be smaller than long window %d", c.Strategy.ShortWindow, c.Strategy.LongWindow)
		}
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy.Name)
	}

	return nil
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	keyName := config.GCP.SecretNames.APIKey
	secretName := config.GCP.SecretNames.APISecret
	if config.Binance.Testnet {
		keyName = config.GCP.SecretNames.TestAPIKey
		secretName = config.GCP.SecretNames.TestAPISecret
	}

	// Only load secrets if they're not already set
	if config.Binance.APIKey == "" {
		config.Binance.APIKey = secretManager.GetSecretWithDefault(ctx, keyName, "")
	}
	if config.Binance.APISecret == "" {
		config.Binance.APISecret = secretManager.GetSecretWithDefault(ctx, secretName, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
