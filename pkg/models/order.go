package models

import (
	"time"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Order is the normalized result of a placed market order.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Price         float64
	Quantity      float64
	QuoteSpent    float64
	Status        OrderStatus
	CreatedAt     time.Time
}

// Trade reasons recorded in the ledger.
const (
	ReasonStopLoss       = "stop-loss"
	ReasonTakeProfit     = "take-profit"
	ReasonStrategySignal = "strategy-signal"
)

// LedgerEntry is one append-only row of the trade ledger.
type LedgerEntry struct {
	Time          time.Time
	Symbol        string
	Action        OrderSide
	Price         float64
	Amount        float64
	BalanceBefore float64
	BalanceAfter  float64
	Reason        string
}
