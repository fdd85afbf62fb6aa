// Package metrics exposes the bot's Prometheus collectors. They are
// registered on the default registry and served by the API server at
// /metrics in the text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Cycles counts successful poll cycles (the heartbeat).
	Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Successful poll cycles completed",
		},
	)

	// ConnectivityFailures counts failed liveness probes.
	ConnectivityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_connectivity_failures_total",
			Help: "Failed exchange connectivity probes",
		},
	)

	// BackoffSeconds reports the current connectivity backoff delay.
	BackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_backoff_seconds",
			Help: "Current connectivity backoff delay in seconds",
		},
	)

	// Orders counts executed orders by side.
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed",
		},
		[]string{"side"},
	)

	// OrderErrors counts order placements that failed, per symbol.
	OrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_errors_total",
			Help: "Order placements that failed",
		},
		[]string{"symbol"},
	)

	// Signals counts actionable strategy signals by action.
	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Actionable strategy signals observed",
		},
		[]string{"action"},
	)

	// ExitReasons counts position exits by ledger reason.
	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exit_reasons_total",
			Help: "Position exits split by reason",
		},
		[]string{"reason"},
	)

	// FreeUSDT is the last observed free quote balance.
	FreeUSDT = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_free_usdt",
			Help: "Free USDT balance at the last order",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Cycles,
		ConnectivityFailures,
		BackoffSeconds,
		Orders,
		OrderErrors,
		Signals,
		ExitReasons,
		FreeUSDT,
	)
}
