// Package metrics exposes the Prometheus collectors the engine updates
// during operation:
//
//   - engine_orders_total{type,side}       – orders submitted to exchanges
//   - engine_orders_reconciled_total       – timed-out submissions adopted from order history
//   - engine_retries_total{kind}           – transient retries performed (rate_limit|timeout)
//   - engine_disables_total{owner}         – owners disabled by permanent failures
//   - engine_postpones_total{owner}        – owners postponed by transient venue state
//   - engine_positions_open               – gauge of non-terminal positions touched last pass
//   - engine_watchdog_cycle_seconds        – duration of the last watchdog pass
//   - engine_candles_inserted_total        – new OHLCV rows stored
//
// Registered in init() and served by promhttp at /metrics from main.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Orders submitted",
		},
		[]string{"type", "side"},
	)

	OrdersReconciled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_orders_reconciled_total",
			Help: "Timed-out submissions matched against exchange order history",
		},
	)

	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_retries_total",
			Help: "Transient retries",
		},
		[]string{"kind"},
	)

	Disables = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_disables_total",
			Help: "Owners disabled by permanent failures",
		},
		[]string{"owner"},
	)

	Postpones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_postpones_total",
			Help: "Owners postponed",
		},
		[]string{"owner"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_positions_open",
			Help: "Non-terminal positions seen in the last pass",
		},
	)

	CycleSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_watchdog_cycle_seconds",
			Help: "Duration of the last watchdog pass",
		},
	)

	CandlesInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_candles_inserted_total",
			Help: "New OHLCV rows stored",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		OrdersReconciled,
		Retries,
		Disables,
		Postpones,
		OpenPositions,
		CycleSeconds,
		CandlesInserted,
	)
}
