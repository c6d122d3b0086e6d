package supervisor

import (
	"time"

	"tibcore/internal/model"
)

// recentAlertCap bounds the alert history kept per instrument snapshot.
const recentAlertCap = 100

// TFSnapshot is the point-in-time analysis state of one timeframe.
type TFSnapshot struct {
	Timeframe    time.Duration          `json:"timeframe"`
	Open         *model.Candle          `json:"open,omitempty"`
	LatestClosed *model.Candle          `json:"latest_closed,omitempty"`
	Indicators   []model.IndicatorValue `json:"indicators,omitempty"`
	Patterns     []model.PatternMatch   `json:"patterns,omitempty"`
}

// Snapshot is the consistent point-in-time view of one instrument's
// pipeline. It is built by the pipeline goroutine after each unit of work
// and published through an atomic pointer, so readers never block ingestion
// and never observe a half-updated state.
type Snapshot struct {
	Instrument string    `json:"instrument"`
	TakenAt    time.Time `json:"taken_at"`
	LastTick   time.Time `json:"last_tick,omitempty"`

	Timeframes   []TFSnapshot       `json:"timeframes"`
	RecentAlerts []model.AlertEvent `json:"recent_alerts,omitempty"`

	QueueDepth    int    `json:"queue_depth"`
	DroppedTicks  uint64 `json:"dropped_ticks"`
	RejectedTicks uint64 `json:"rejected_ticks"`
}
