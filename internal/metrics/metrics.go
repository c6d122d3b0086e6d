package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analysis core.
type Metrics struct {
	TicksTotal     *prometheus.CounterVec // labels: instrument
	TicksRejected  *prometheus.CounterVec // labels: reason
	TicksDropped   *prometheus.CounterVec // labels: instrument
	LateTicks      *prometheus.CounterVec // labels: instrument
	CandlesClosed  *prometheus.CounterVec // labels: tf
	PatternMatches *prometheus.CounterVec // labels: pattern

	AlertsFired      prometheus.Counter
	AlertsSuppressed *prometheus.CounterVec // labels: rule
	AlertsDelivered  *prometheus.CounterVec // labels: sink
	AlertsFailed     *prometheus.CounterVec // labels: sink
	DispatchDropped  prometheus.Counter
	DispatchLatency  *prometheus.HistogramVec // labels: sink

	SinkBreakerState *prometheus.GaugeVec // labels: sink; 0=closed, 1=open, 2=half-open

	PipelineCount        prometheus.Gauge
	ChannelSaturationPct *prometheus.GaugeVec // labels: channel_name

	WSReconnects prometheus.Counter
	WSClients    prometheus.Gauge
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_ticks_total",
			Help: "Total ticks accepted into pipelines",
		}, []string{"instrument"}),
		TicksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_ticks_rejected_total",
			Help: "Ticks rejected at normalization (by reason)",
		}, []string{"reason"}),
		TicksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_ticks_dropped_total",
			Help: "Ticks lost to backpressure (queue full)",
		}, []string{"instrument"}),
		LateTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_late_ticks_total",
			Help: "Ticks dropped because they arrived beyond the grace window",
		}, []string{"instrument"}),
		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_candles_closed_total",
			Help: "Candles closed (by timeframe)",
		}, []string{"tf"}),
		PatternMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_pattern_matches_total",
			Help: "Pattern matches emitted (by pattern)",
		}, []string{"pattern"}),

		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tibcore_alerts_fired_total",
			Help: "Alert events produced by the rule engine",
		}),
		AlertsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_alerts_suppressed_total",
			Help: "True conditions silenced by cooldown (by rule)",
		}, []string{"rule"}),
		AlertsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_alerts_delivered_total",
			Help: "Alert deliveries confirmed (by sink)",
		}, []string{"sink"}),
		AlertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tibcore_alerts_failed_total",
			Help: "Alert deliveries that exhausted retries (by sink)",
		}, []string{"sink"}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tibcore_dispatch_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full",
		}),
		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tibcore_dispatch_latency_seconds",
			Help:    "Time from dequeue to confirmed delivery, retries included (by sink)",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"sink"}),

		SinkBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tibcore_sink_circuit_breaker_state",
			Help: "Sink circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"sink"}),

		PipelineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tibcore_pipelines",
			Help: "Live instrument pipelines",
		}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tibcore_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tibcore_ws_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tibcore_ws_clients",
			Help: "Connected streaming clients",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TicksRejected,
		m.TicksDropped,
		m.LateTicks,
		m.CandlesClosed,
		m.PatternMatches,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.AlertsDelivered,
		m.AlertsFailed,
		m.DispatchDropped,
		m.DispatchLatency,
		m.SinkBreakerState,
		m.PipelineCount,
		m.ChannelSaturationPct,
		m.WSReconnects,
		m.WSClients,
	)

	return m
}
