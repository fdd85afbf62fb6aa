package strategy

import (
	"fmt"
	"math"

	"github.com/robik3456/tradebot/pkg/models"
)

// InitialBalance is the simulated quote balance every strategy run starts
// from. The final balance a run reports is only meaningful relative to it.
const InitialBalance = 1000.0

// Strategy turns a candle series into an ordered sequence of trade signals
// plus the simulated balance realized at the end of the series.
//
// Run must be a pure function of the series and the strategy's parameters:
// no mutation of the input, identical output for identical input. A series
// shorter than the longest window yields no signals and InitialBalance.
type Strategy interface {
	Name() string
	Run(candles []models.Candle) ([]models.TradeSignal, float64)
}

// FromConfig selects a strategy implementation by name.
func FromConfig(name string, window, shortWindow, longWindow int) (Strategy, error) {
	switch name {
	case "simple-threshold":
		return NewSimpleThreshold(window), nil
	case "dual-crossover":
		return NewDualCrossover(shortWindow, longWindow), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// sma computes a simple moving average of the closes. Positions before the
// window has filled are NaN, meaning "undefined, skip this bar".
func sma(candles []models.Candle, window int) []float64 {
	out := make([]float64, len(candles))
	sum := 0.0
	for i := range candles {
		sum += candles[i].Close
		if i >= window {
			sum -= candles[i-window].Close
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
