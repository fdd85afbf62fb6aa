package strategy

import (
	"math"

	"github.com/robik3456/tradebot/pkg/models"
)

// SimpleThreshold buys when the close crosses above its simple moving
// average while flat and sells when it falls below while holding.
type SimpleThreshold struct {
	window int
}

func NewSimpleThreshold(window int) *SimpleThreshold {
	return &SimpleThreshold{window: window}
}

func (s *SimpleThreshold) Name() string {
	return "simple-threshold"
}

func (s *SimpleThreshold) Run(candles []models.Candle) ([]models.TradeSignal, float64) {
	avg := sma(candles, s.window)

	var signals []models.TradeSignal
	balance := InitialBalance
	position := 0.0

	for i, c := range candles {
		if math.IsNaN(avg[i]) {
			continue
		}
		price := c.Close

		balanceBefore := balance
		if position > 0 {
			balanceBefore = position * price
		}

		switch {
		case price > avg[i] && position == 0:
			amount := balance / price
			position = amount
			balance = 0
			signals = append(signals, models.TradeSignal{
				Action:        models.SideBuy,
				Price:         price,
				Time:          c.CloseTime,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balance,
				Amount:        amount,
			})

		case price < avg[i] && position > 0:
			amount := position
			balance = position * price
			position = 0
			signals = append(signals, models.TradeSignal{
				Action:        models.SideSell,
				Price:         price,
				Time:          c.CloseTime,
				BalanceBefore: balanceBefore,
				BalanceAfter:  balance,
				Amount:        amount,
			})
		}
	}

	signals, balance = closeOpenPosition(signals, candles, position, balance)
	return signals, balance
}

// closeOpenPosition appends the synthetic end-of-series close when a run
// finishes still holding, so every run reports a realized balance.
func closeOpenPosition(signals []models.TradeSignal, candles []models.Candle, position, balance float64) ([]models.TradeSignal, float64) {
	if position <= 0 || len(candles) == 0 {
		return signals, balance
	}

	last := candles[len(candles)-1]
	proceeds := position * last.Close
	signals = append(signals, models.TradeSignal{
		Action:        models.SideSell,
		Price:         last.Close,
		Time:          last.CloseTime,
		BalanceBefore: proceeds,
		BalanceAfter:  proceeds,
		Amount:        position,
		Synthetic:     true,
	})
	return signals, proceeds
}
