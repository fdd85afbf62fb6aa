package trader

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/robik3456/tradebot/internal/metrics"
	"github.com/robik3456/tradebot/pkg/binance"
	"github.com/robik3456/tradebot/pkg/ledger"
	"github.com/robik3456/tradebot/pkg/models"
	"github.com/robik3456/tradebot/pkg/strategy"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// Config holds the loop parameters, fixed at startup.
type Config struct {
	Symbols       []string
	Interval      string
	CandleLimit   int
	PollInterval  time.Duration
	QuoteAsset    string
	USDTFraction  float64
	StopLossPct   float64
	TakeProfitPct float64
}

// LiveTrader is the autonomous polling loop: one probe, one heartbeat and
// one sequential pass over the configured symbols per cycle. Symbols are
// processed in declared order so earlier symbols consume the shared quote
// balance before later ones.
type LiveTrader struct {
	cfg      Config
	client   binance.Client
	strategy strategy.Strategy
	journal  ledger.Journal
	risk     RiskGate
	logger   *logrus.Logger

	mu        sync.RWMutex
	positions map[string]*models.Position
}

func NewLiveTrader(cfg Config, client binance.Client, strat strategy.Strategy, journal ledger.Journal, logger *logrus.Logger) *LiveTrader {
	positions := make(map[string]*models.Position, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		positions[s] = &models.Position{Symbol: s}
	}

	return &LiveTrader{
		cfg:      cfg,
		client:   client,
		strategy: strat,
		journal:  journal,
		risk: RiskGate{
			StopLossPct:   cfg.StopLossPct,
			TakeProfitPct: cfg.TakeProfitPct,
		},
		logger:    logger,
		positions: positions,
	}
}

// Run polls until ctx is cancelled. Connectivity failures back off
// exponentially (1s doubling to a 60s cap) and skip the whole symbol pass;
// everything else is isolated per symbol per cycle.
func (t *LiveTrader) Run(ctx context.Context) error {
	t.logger.WithFields(logrus.Fields{
		"symbols":  t.cfg.Symbols,
		"strategy": t.strategy.Name(),
		"interval": t.cfg.Interval,
	}).Info("Starting live trader")

	backoff := initialBackoff
	for {
		if err := t.client.Ping(ctx); err != nil {
			metrics.ConnectivityFailures.Inc()
			metrics.BackoffSeconds.Set(backoff.Seconds())
			t.logger.WithError(err).WithField("retry_in", backoff.String()).Error("Exchange unreachable, backing off")
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff
		metrics.BackoffSeconds.Set(backoff.Seconds())

		// Heartbeat: one observable line per successful cycle.
		t.logger.WithField("symbols", t.cfg.Symbols).Info("Heartbeat: live trader polling")
		metrics.Cycles.Inc()

		t.runCycle(ctx)

		if !sleepCtx(ctx, t.cfg.PollInterval) {
			return nil
		}
	}
}

func (t *LiveTrader) runCycle(ctx context.Context) {
	for _, symbol := range t.cfg.Symbols {
		t.processSymbol(ctx, symbol)
	}
}

func (t *LiveTrader) processSymbol(ctx context.Context, symbol string) {
	log := t.logger.WithField("symbol", symbol)

	candles, err := t.client.GetKlines(ctx, symbol, t.cfg.Interval, t.cfg.CandleLimit)
	if err != nil {
		log.WithError(err).Warn("Candle fetch failed, skipping symbol this cycle")
		return
	}
	if len(candles) == 0 {
		log.Debug("No candle data yet, skipping symbol this cycle")
		return
	}

	signals, _ := t.strategy.Run(candles)
	signal := lastActionable(signals)

	price, err := t.client.GetPrice(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("Price unavailable, skipping symbol this cycle")
		return
	}

	pos := t.position(symbol)

	// Risk checks win over strategy signals within a cycle: once the gate
	// fires, this cycle's signal for the symbol is discarded.
	if pos.Holding() {
		if action := t.risk.Evaluate(pos, price); action.ForceSell {
			t.exitPosition(ctx, symbol, pos, price, action.Reason)
			return
		}
	}

	if signal == nil {
		return
	}
	metrics.Signals.WithLabelValues(string(signal.Action)).Inc()

	switch {
	case signal.Action == models.SideBuy && !pos.Holding():
		t.enterPosition(ctx, symbol, price)
	case signal.Action == models.SideSell && pos.Holding():
		t.exitPosition(ctx, symbol, pos, price, models.ReasonStrategySignal)
	}
}

func (t *LiveTrader) enterPosition(ctx context.Context, symbol string, price float64) {
	log := t.logger.WithField("symbol", symbol)

	if price <= 0 {
		return
	}

	free := t.client.GetFreeBalance(ctx, t.cfg.QuoteAsset)
	metrics.FreeUSDT.Set(free)
	if free <= 0 {
		log.Debug("No free quote balance, cannot enter position")
		return
	}

	qty, err := t.client.RoundLotSize(ctx, symbol, free*t.cfg.USDTFraction/price)
	if err != nil {
		log.WithError(err).Warn("Lot size lookup failed, skipping entry")
		return
	}
	if qty <= 0 {
		log.Debug("Sized quantity rounds to zero, skipping entry")
		return
	}

	order, err := t.client.PlaceMarketOrder(ctx, symbol, models.SideBuy, qty)
	if err != nil {
		metrics.OrderErrors.WithLabelValues(symbol).Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"side":     models.SideBuy,
			"quantity": qty,
		}).Error("Buy order failed")
		return
	}

	balanceAfter := t.client.GetFreeBalance(ctx, t.cfg.QuoteAsset)
	now := time.Now().UTC()

	// Entry price is the execution-time price, not the signal bar's close.
	t.setPosition(symbol, qty, price, models.SideBuy, now)

	t.appendLedger(models.LedgerEntry{
		Time:          now,
		Symbol:        symbol,
		Action:        models.SideBuy,
		Price:         price,
		Amount:        qty,
		BalanceBefore: free,
		BalanceAfter:  balanceAfter,
		Reason:        models.ReasonStrategySignal,
	})

	metrics.Orders.WithLabelValues(string(models.SideBuy)).Inc()
	log.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"quantity": qty,
		"price":    price,
	}).Info("Entered position")
}

func (t *LiveTrader) exitPosition(ctx context.Context, symbol string, pos models.Position, price float64, reason string) {
	log := t.logger.WithFields(logrus.Fields{"symbol": symbol, "reason": reason})

	qty, err := t.client.RoundLotSize(ctx, symbol, pos.Quantity)
	if err != nil {
		log.WithError(err).Warn("Lot size lookup failed, skipping exit")
		return
	}
	if qty <= 0 {
		log.Warn("Held quantity rounds to zero, nothing to sell")
		return
	}

	balanceBefore := t.client.GetFreeBalance(ctx, t.cfg.QuoteAsset)

	order, err := t.client.PlaceMarketOrder(ctx, symbol, models.SideSell, qty)
	if err != nil {
		metrics.OrderErrors.WithLabelValues(symbol).Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"side":     models.SideSell,
			"quantity": qty,
		}).Error("Sell order failed")
		return
	}

	balanceAfter := t.client.GetFreeBalance(ctx, t.cfg.QuoteAsset)
	metrics.FreeUSDT.Set(balanceAfter)
	now := time.Now().UTC()

	t.clearPosition(symbol, now)

	t.appendLedger(models.LedgerEntry{
		Time:          now,
		Symbol:        symbol,
		Action:        models.SideSell,
		Price:         price,
		Amount:        qty,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Reason:        reason,
	})

	metrics.Orders.WithLabelValues(string(models.SideSell)).Inc()
	metrics.ExitReasons.WithLabelValues(reason).Inc()
	log.WithFields(logrus.Fields{
		"order_id": order.OrderID,
		"quantity": qty,
		"price":    price,
	}).Info("Exited position")
}

func (t *LiveTrader) appendLedger(entry models.LedgerEntry) {
	if err := t.journal.Append(entry); err != nil {
		t.logger.WithError(err).WithField("symbol", entry.Symbol).Error("Ledger append failed")
	}
}

// lastActionable picks the most recent non-synthetic signal of a run.
// Synthetic end-of-series closes realize the simulated balance and are not
// live trading intent.
func lastActionable(signals []models.TradeSignal) *models.TradeSignal {
	for i := len(signals) - 1; i >= 0; i-- {
		if !signals[i].Synthetic {
			return &signals[i]
		}
	}
	return nil
}

func (t *LiveTrader) position(symbol string) models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.positions[symbol]; ok {
		return *p
	}
	return models.Position{Symbol: symbol}
}

func (t *LiveTrader) setPosition(symbol string, qty, entryPrice float64, action models.OrderSide, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[symbol] = &models.Position{
		Symbol:     symbol,
		Quantity:   qty,
		EntryPrice: entryPrice,
		LastAction: action,
		UpdatedAt:  at,
	}
}

func (t *LiveTrader) clearPosition(symbol string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[symbol] = &models.Position{
		Symbol:     symbol,
		LastAction: models.SideSell,
		UpdatedAt:  at,
	}
}

// Positions returns a consistent snapshot in configured symbol order.
func (t *LiveTrader) Positions() []models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.Position, 0, len(t.cfg.Symbols))
	for _, s := range t.cfg.Symbols {
		if p, ok := t.positions[s]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
