package strategy

import (
	"math"

	"github.com/robik3456/tradebot/pkg/models"
)

// DualCrossover trades moving-average crossovers: a golden cross (short
// average crossing above the long) buys while flat, a death cross sells
// while holding. Bars where either average is still undefined are skipped.
type DualCrossover struct {
	shortWindow int
	longWindow  int
}

func NewDualCrossover(shortWindow, longWindow int) *DualCrossover {
	return &DualCrossover{shortWindow: shortWindow, longWindow: longWindow}
}

func (s *DualCrossover) Name() string {
	return "dual-crossover"
}

func (s *DualCrossover) Run(candles []models.Candle) ([]models.TradeSignal, float64) {
	short := sma(candles, s.shortWindow)
	long := sma(candles, s.longWindow)

	var signals []models.TradeSignal
	balance := InitialBalance
	position := 0.0

	for i := 1; i < len(candles); i++ {
		if math.IsNaN(short[i]) || math.IsNaN(long[i]) ||
			math.IsNaN(short[i-1]) || math.IsNaN(long[i-1]) {
			continue
		}
		price := candles[i].Close

		balanceBefore := balance
		if position > 0 {
			balanceBefore = position * price
		}

		goldenCross := short[i-1] <= long[i-1] && short[i] > long[i]
		deathCross := short[i-1] >= long[i-1] && short[i] < long[i]

		switch {
		case goldenCross && position == 0:
			amount := balance / price
			position = amount
			balance = 0
			signals = append(signals, models.TradeSignal{
				Action:        models.SideBuy,
				Price:         price,
				Time:          candles[i].CloseTime,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balance,
				Amount:        amount,
			})

		case deathCross && position > 0:
			amount := position
			balance = position * price
			position = 0
			signals = append(signals, models.TradeSignal{
				Action:        models.SideSell,
				Price:         price,
				Time:          candles[i].CloseTime,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balance,
				Amount:        amount,
			})
		}
	}

	signals, balance = closeOpenPosition(signals, candles, position, balance)
	return signals, balance
}
