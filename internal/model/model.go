// Package model defines the core data types shared across the analysis
// pipeline: ticks, candles, indicator values, pattern matches and alert
// events.
//
// Prices and volumes are decimal.Decimal so aggregation never accumulates
// floating-point drift. Indicator math converts to float64 exactly once, at
// the indicator engine boundary, which pins down one arithmetic sequence per
// indicator and keeps replays bit-identical.
package model

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Tick is a single normalized trade update for one instrument.
// Immutable once created. Ordering key is ExchangeTS; Seq is assigned at
// ingest and breaks exchange-timestamp ties.
type Tick struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	ExchangeTS time.Time       `json:"exchange_ts"`
	IngestTS   time.Time       `json:"ingest_ts"`
	Seq        uint64          `json:"seq"`
}

// Candle is an OHLCV summary of one (instrument, timeframe) window.
// It is mutated only by the aggregator that owns the (instrument, timeframe)
// pair and becomes immutable once Closed is true.
type Candle struct {
	Instrument string          `json:"instrument"`
	Timeframe  time.Duration   `json:"timeframe"`
	OpenTime   time.Time       `json:"open_time"`
	CloseTime  time.Time       `json:"close_time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	Ticks      int             `json:"ticks"`
	Closed     bool            `json:"closed"`

	// Synthetic marks a gap-filled candle opened at the previous close
	// because no tick arrived during its window.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Key returns "instrument@timeframe", e.g. "BTC-USDT@1m0s".
func (c *Candle) Key() string {
	return c.Instrument + "@" + c.Timeframe.String()
}

// Body returns the absolute open-to-close distance.
func (c *Candle) Body() decimal.Decimal {
	return c.Close.Sub(c.Open).Abs()
}

// Range returns the high-to-low distance.
func (c *Candle) Range() decimal.Decimal {
	return c.High.Sub(c.Low)
}

// UpperShadow returns the distance from the body top to the high.
func (c *Candle) UpperShadow() decimal.Decimal {
	return c.High.Sub(decimal.Max(c.Open, c.Close))
}

// LowerShadow returns the distance from the low to the body bottom.
func (c *Candle) LowerShadow() decimal.Decimal {
	return decimal.Min(c.Open, c.Close).Sub(c.Low)
}

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool {
	return c.Close.GreaterThan(c.Open)
}

// Bearish reports whether the candle closed below its open.
func (c *Candle) Bearish() bool {
	return c.Close.LessThan(c.Open)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IndicatorValue is one computed indicator output for a candle close.
// Multi-line indicators (MACD, Bollinger Bands) carry their secondary lines
// in Fields; Value is always the primary line.
type IndicatorValue struct {
	Instrument  string             `json:"instrument"`
	Timeframe   time.Duration      `json:"timeframe"`
	IndicatorID string             `json:"indicator_id"` // e.g. "RSI_14"
	TS          time.Time          `json:"ts"`           // open time of the candle that produced it
	Value       float64            `json:"value"`
	Fields      map[string]float64 `json:"fields,omitempty"`
}

// Field returns a named secondary line, falling back to Value for "" or
// "value".
func (v *IndicatorValue) Field(name string) (float64, bool) {
	if name == "" || name == "value" {
		return v.Value, true
	}
	f, ok := v.Fields[name]
	return f, ok
}

// Pattern directions.
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionNeutral = "neutral"
)

// PatternMatch is a single occurrence of a chart pattern. Emitted once,
// never retracted.
type PatternMatch struct {
	Instrument string        `json:"instrument"`
	Timeframe  time.Duration `json:"timeframe"`
	PatternID  string        `json:"pattern_id"`
	TS         time.Time     `json:"ts"` // open time of the last candle of the match
	Start      time.Time     `json:"start"`
	Candles    int           `json:"candles"`
	Direction  string        `json:"direction"`
	Confidence float64       `json:"confidence"`
}

// Severity of an alert event, mapped from rule priority.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Trigger kinds for AlertEvent.
const (
	TriggerIndicator = "indicator"
	TriggerPattern   = "pattern"
)

// AlertEvent is the terminal output of the alert engine, handed to the
// dispatch sinks. ID is a ULID, so events sort by emission time.
type AlertEvent struct {
	ID          string        `json:"id"`
	RuleID      string        `json:"rule_id"`
	Instrument  string        `json:"instrument"`
	Timeframe   time.Duration `json:"timeframe"`
	TS          time.Time     `json:"ts"`
	Severity    Severity      `json:"severity"`
	Message     string        `json:"message"`
	TriggerKind string        `json:"trigger_kind"` // indicator | pattern
	TriggerID   string        `json:"trigger_id"`   // e.g. "RSI_14" or "doji"
}

// JSON returns the JSON-encoded event.
func (e *AlertEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// DeliveryStatus records the outcome of dispatching one alert event to one
// sink. A failed status after exhausted retries is terminal; rule state is
// never rolled back because of it.
type DeliveryStatus struct {
	EventID   string    `json:"event_id"`
	Sink      string    `json:"sink"`
	Attempts  int       `json:"attempts"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	TS        time.Time `json:"ts"`
}
