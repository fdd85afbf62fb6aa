package models

import (
	"time"
)

// Candle is a fixed-interval OHLCV bar as returned by the exchange klines
// endpoint. Series are ordered by OpenTime ascending.
type Candle struct {
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type Ticker struct {
	Symbol    string
	LastPrice float64
	Timestamp time.Time
}

// TradeSignal is one entry in the ordered sequence a strategy run produces.
// Synthetic marks the end-of-series forced close a run appends to realize
// its simulated balance; the live loop never acts on synthetic signals.
type TradeSignal struct {
	Action        OrderSide
	Price         float64
	Time          time.Time
	BalanceBefore float64
	BalanceAfter  float64
	Amount        float64
	Synthetic     bool
}

// Position is the per-symbol state owned by the trading loop.
// Invariant: Quantity > 0 implies EntryPrice > 0.
type Position struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	LastAction OrderSide
	UpdatedAt  time.Time
}

// Holding reports whether the position is open.
func (p Position) Holding() bool {
	return p.Quantity > 0
}
