package api

import "github.com/prometheus/client_golang/prometheus"

var (
	tradingEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_trading_equity_usd",
		Help: "Current trading account equity in USD.",
	})
	tradingOpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_trading_open_positions",
		Help: "Number of currently open trading positions.",
	})
	tradingPaused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_trading_paused",
		Help: "1 if the drawdown circuit breaker is tripped, else 0.",
	})
	tradingWinRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_trading_win_rate_pct",
		Help: "Rolling win rate over the last N closed trades.",
	})
	farmingGasRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_farming_gas_remaining_usd",
		Help: "Remaining airdrop-farming gas budget in USD.",
	})
	farmingTotalActions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_farming_total_actions",
		Help: "Total on-chain farming actions executed since start.",
	})
)

func init() {
	prometheus.MustRegister(tradingEquity, tradingOpenPositions, tradingPaused, tradingWinRate, farmingGasRemaining, farmingTotalActions)
}
