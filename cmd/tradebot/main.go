package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/robik3456/tradebot/api"
	"github.com/robik3456/tradebot/internal/config"
	"github.com/robik3456/tradebot/pkg/binance"
	"github.com/robik3456/tradebot/pkg/ledger"
	"github.com/robik3456/tradebot/pkg/strategy"
	"github.com/robik3456/tradebot/pkg/trader"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradebot",
		Short: "Autonomous multi-symbol live trading bot",
		Long:  `A polling trading bot that evaluates moving-average strategies against recent candles and places market orders with stop-loss/take-profit supervision`,
		Run:   runBot,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Credentials and knobs may live in a local .env file
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env")
	}

	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level and format
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize exchange client
	client := binance.NewRESTClient(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.Testnet, logger)

	if cfg.Binance.StreamPrices {
		cache := binance.NewPriceCache()
		client.SetPriceCache(cache)
		stream := binance.NewStreamClient(cfg.Trading.Symbols, cfg.Binance.Testnet, cache, logger)
		go stream.Run(ctx)
	}

	// Open the trade ledger
	journal, err := ledger.OpenCSV(cfg.Ledger.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open trade ledger")
	}
	defer journal.Close()

	// Select the strategy
	strat, err := strategy.FromConfig(cfg.Strategy.Name, cfg.Strategy.Window, cfg.Strategy.ShortWindow, cfg.Strategy.LongWindow)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create strategy")
	}

	// Create the live trader
	liveTrader := trader.NewLiveTrader(trader.Config{
		Symbols:       cfg.Trading.Symbols,
		Interval:      cfg.Trading.Interval,
		CandleLimit:   cfg.Trading.CandleLimit,
		PollInterval:  time.Duration(cfg.Trading.PollIntervalSeconds) * time.Second,
		QuoteAsset:    cfg.Trading.QuoteAsset,
		USDTFraction:  cfg.Trading.USDTFraction,
		StopLossPct:   cfg.Trading.StopLossPct,
		TakeProfitPct: cfg.Trading.TakeProfitPct,
	}, client, strat, journal, logger)

	// Start API server
	apiServer := api.NewServer(liveTrader, journal, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Run the loop until interrupted
	done := make(chan error, 1)
	go func() {
		done <- liveTrader.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Trading bot is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.WithError(err).Error("Trading loop stopped")
		}
	}

	logger.Info("Trading bot stopped")
}
