// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Market data metrics
	MarketRefreshesTotal *prometheus.CounterVec
	SnapshotsUpdated     prometheus.Counter
	MarketRefreshLatency prometheus.Histogram
	BlockEventsReceived  prometheus.Counter
	TrackedTokens        prometheus.Gauge

	// Signal metrics
	SignalsEmitted    *prometheus.CounterVec
	SignalsAggregated prometheus.Counter
	AIEnhancements    *prometheus.CounterVec
	AIEnhanceLatency  prometheus.Histogram

	// Trade metrics
	TradesExecuted  *prometheus.CounterVec
	TradesFailed    *prometheus.CounterVec
	TradesSkipped   *prometheus.CounterVec
	TradeValueTotal *prometheus.CounterVec

	// Portfolio metrics
	PortfolioValue prometheus.Gauge
	CashBalance    prometheus.Gauge
	HoldingsCount  prometheus.Gauge

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trading_agent"
	}

	return &Metrics{
		// Market data metrics
		MarketRefreshesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "refreshes_total",
			Help:      "Total number of market data refresh attempts by status",
		}, []string{"status"}),
		SnapshotsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "snapshots_updated_total",
			Help:      "Total number of token snapshots updated",
		}),
		MarketRefreshLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "refresh_latency_seconds",
			Help:      "Market data refresh latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		BlockEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "block_events_received_total",
			Help:      "Total number of block notifications received over WebSocket",
		}),
		TrackedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "tracked_tokens",
			Help:      "Number of tokens currently tracked",
		}),

		// Signal metrics
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "emitted_total",
			Help:      "Total number of raw signals emitted by strategy",
		}, []string{"strategy", "type"}),
		SignalsAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "aggregated_total",
			Help:      "Total number of signals surviving aggregation",
		}),
		AIEnhancements: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "ai_enhancements_total",
			Help:      "Total number of AI enhancement calls by status",
		}, []string{"status"}),
		AIEnhanceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "ai_enhance_latency_seconds",
			Help:      "AI enhancement call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),

		// Trade metrics
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "executed_total",
			Help:      "Total number of trades executed by side",
		}, []string{"side"}),
		TradesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "failed_total",
			Help:      "Total number of trade executions that failed by side",
		}, []string{"side"}),
		TradesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "skipped_total",
			Help:      "Total number of signals skipped by the decision engine by reason",
		}, []string{"reason"}),
		TradeValueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "value_usd_total",
			Help:      "Cumulative USD value of executed trades by side",
		}, []string{"side"}),

		// Portfolio metrics
		PortfolioValue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "total_value_usd",
			Help:      "Current total portfolio value in USD",
		}),
		CashBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "cash_usd",
			Help:      "Current cash balance in USD",
		}),
		HoldingsCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "holdings",
			Help:      "Number of distinct token holdings",
		}),

		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "cycles_total",
			Help:      "Total number of agent cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "cycle_duration_seconds",
			Help:      "Agent cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful agent cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMarketRefresh records a market data refresh attempt.
func RecordMarketRefresh(status string, updated int, seconds float64) {
	DefaultMetrics.MarketRefreshesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SnapshotsUpdated.Add(float64(updated))
	DefaultMetrics.MarketRefreshLatency.Observe(seconds)
}

// RecordBlockEvent increments the block notifications counter.
func RecordBlockEvent() {
	DefaultMetrics.BlockEventsReceived.Inc()
}

// RecordSignal increments the raw signal counter for a strategy.
func RecordSignal(strategy, signalType string) {
	DefaultMetrics.SignalsEmitted.WithLabelValues(strategy, signalType).Inc()
}

// RecordAIEnhancement records an AI enhancement call.
func RecordAIEnhancement(status string, seconds float64) {
	DefaultMetrics.AIEnhancements.WithLabelValues(status).Inc()
	DefaultMetrics.AIEnhanceLatency.Observe(seconds)
}

// RecordTradeExecuted records a confirmed trade.
func RecordTradeExecuted(side string, valueUSD float64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(side).Inc()
	DefaultMetrics.TradeValueTotal.WithLabelValues(side).Add(valueUSD)
}

// RecordTradeFailed records a failed trade execution.
func RecordTradeFailed(side string) {
	DefaultMetrics.TradesFailed.WithLabelValues(side).Inc()
}

// RecordTradeSkipped records a signal skipped by the decision engine.
func RecordTradeSkipped(reason string) {
	DefaultMetrics.TradesSkipped.WithLabelValues(reason).Inc()
}

// UpdatePortfolio updates the portfolio gauges.
func UpdatePortfolio(totalValue, cash float64, holdings int) {
	DefaultMetrics.PortfolioValue.Set(totalValue)
	DefaultMetrics.CashBalance.Set(cash)
	DefaultMetrics.HoldingsCount.Set(float64(holdings))
}

// RecordCycle records a completed agent cycle.
func RecordCycle(status string, seconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
}
