// Package alert evaluates configured rules against indicator and pattern
// signals, applies per-rule cooldowns, and emits alert events.
//
// Rule conditions are a small tagged-variant expression tree evaluated
// against a typed signal context, never interpreted strings, so
// evaluation is total and side-effect free.
package alert

import (
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"

	"tibcore/internal/model"
)

// Context is the typed signal state a condition is evaluated against. It is
// scoped to one instrument and populated incrementally as signals arrive.
type Context interface {
	// Indicator returns the latest value for an indicator ID on tf.
	Indicator(tf time.Duration, id string) (model.IndicatorValue, bool)

	// PrevIndicator returns the value preceding the latest one.
	PrevIndicator(tf time.Duration, id string) (model.IndicatorValue, bool)

	// LastPattern returns when a pattern last matched on tf.
	LastPattern(tf time.Duration, id string) (time.Time, bool)

	// Candles returns up to n most recent closed candles for tf,
	// oldest first.
	Candles(tf time.Duration, n int) []model.Candle

	// Now returns the evaluation time.
	Now() time.Time
}

// Condition is one node of a rule's boolean expression tree.
type Condition interface {
	Eval(ctx Context) bool
}

// Comparison operators for Threshold.
const (
	OpLT = "lt"
	OpLE = "le"
	OpGT = "gt"
	OpGE = "ge"
)

// Threshold is true while an indicator line is beyond a fixed level, e.g.
// RSI_14 < 30.
type Threshold struct {
	Timeframe time.Duration
	Indicator string
	Field     string // "" means the primary line
	Op        string
	Level     float64
}

func (t *Threshold) Eval(ctx Context) bool {
	v, ok := ctx.Indicator(t.Timeframe, t.Indicator)
	if !ok {
		return false
	}
	f, ok := v.Field(t.Field)
	if !ok {
		return false
	}
	switch t.Op {
	case OpLT:
		return f < t.Level
	case OpLE:
		return f <= t.Level
	case OpGT:
		return f > t.Level
	case OpGE:
		return f >= t.Level
	default:
		return false
	}
}

// Cross is true only on the evaluation where an indicator line moved from
// one side of a level to the other between its two most recent values.
type Cross struct {
	Timeframe time.Duration
	Indicator string
	Field     string
	Level     float64
	Above     bool // true: crossed above; false: crossed below
}

func (c *Cross) Eval(ctx Context) bool {
	cur, ok := ctx.Indicator(c.Timeframe, c.Indicator)
	if !ok {
		return false
	}
	prev, ok := ctx.PrevIndicator(c.Timeframe, c.Indicator)
	if !ok {
		return false
	}
	cf, ok := cur.Field(c.Field)
	if !ok {
		return false
	}
	pf, ok := prev.Field(c.Field)
	if !ok {
		return false
	}
	if c.Above {
		return pf <= c.Level && cf > c.Level
	}
	return pf >= c.Level && cf < c.Level
}

// PatternPresent is true while a pattern match on tf is at most Within old.
type PatternPresent struct {
	Timeframe time.Duration
	Pattern   string
	Within    time.Duration
}

func (p *PatternPresent) Eval(ctx Context) bool {
	ts, ok := ctx.LastPattern(p.Timeframe, p.Pattern)
	if !ok {
		return false
	}
	return ctx.Now().Sub(ts) <= p.Within
}

// PriceMove is true when the absolute close-to-close change over Lookback
// candles is at least MinChangePct percent.
type PriceMove struct {
	Timeframe    time.Duration
	Lookback     int
	MinChangePct float64
}

func (p *PriceMove) Eval(ctx Context) bool {
	candles := ctx.Candles(p.Timeframe, p.Lookback+1)
	if len(candles) < p.Lookback+1 {
		return false
	}
	first := candles[0].Close.InexactFloat64()
	last := candles[len(candles)-1].Close.InexactFloat64()
	if first == 0 {
		return false
	}
	change := (last - first) / first * 100
	if change < 0 {
		change = -change
	}
	return change >= p.MinChangePct
}

// VolumeSpike is true when the latest candle's volume exceeds the rolling
// mean by StdMultiplier standard deviations over Window candles.
type VolumeSpike struct {
	Timeframe     time.Duration
	Window        int
	StdMultiplier float64
}

func (v *VolumeSpike) Eval(ctx Context) bool {
	candles := ctx.Candles(v.Timeframe, v.Window)
	if len(candles) < v.Window {
		return false
	}
	n := float64(len(candles) - 1)
	if n < 1 {
		return false
	}
	var sum, sumSq float64
	for i := 0; i < len(candles)-1; i++ {
		vol := candles[i].Volume.InexactFloat64()
		sum += vol
		sumSq += vol * vol
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)
	last := candles[len(candles)-1].Volume.InexactFloat64()
	return last > mean+v.StdMultiplier*std
}

// And is true when all children are true.
type And struct{ All []Condition }

func (a *And) Eval(ctx Context) bool {
	for _, c := range a.All {
		if !c.Eval(ctx) {
			return false
		}
	}
	return len(a.All) > 0
}

// Or is true when any child is true.
type Or struct{ Any []Condition }

func (o *Or) Eval(ctx Context) bool {
	for _, c := range o.Any {
		if c.Eval(ctx) {
			return true
		}
	}
	return false
}

// Not negates its child.
type Not struct{ C Condition }

func (n *Not) Eval(ctx Context) bool { return !n.C.Eval(ctx) }

// condJSON is the wire form of a condition node.
type condJSON struct {
	Type string `json:"type"`

	Timeframe string  `json:"timeframe,omitempty"`
	Indicator string  `json:"indicator,omitempty"`
	Field     string  `json:"field,omitempty"`
	Op        string  `json:"op,omitempty"`
	Level     float64 `json:"level,omitempty"`
	Direction string  `json:"direction,omitempty"`

	Pattern string `json:"pattern,omitempty"`
	Within  string `json:"within,omitempty"`

	Lookback     int     `json:"lookback,omitempty"`
	MinChangePct float64 `json:"min_change_pct,omitempty"`

	Window        int     `json:"window,omitempty"`
	StdMultiplier float64 `json:"std_multiplier,omitempty"`

	All []json.RawMessage `json:"all,omitempty"`
	Any []json.RawMessage `json:"any,omitempty"`
	C   json.RawMessage   `json:"cond,omitempty"`
}

// ParseCondition decodes a condition tree from its JSON wire form.
// defaultTF applies to nodes that omit a timeframe.
func ParseCondition(raw []byte, defaultTF time.Duration) (Condition, error) {
	var node condJSON
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}

	tf := defaultTF
	if node.Timeframe != "" {
		d, err := time.ParseDuration(node.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("condition timeframe %q: %w", node.Timeframe, err)
		}
		tf = d
	}

	switch node.Type {
	case "threshold":
		if node.Indicator == "" {
			return nil, fmt.Errorf("threshold: indicator required")
		}
		switch node.Op {
		case OpLT, OpLE, OpGT, OpGE:
		default:
			return nil, fmt.Errorf("threshold: unknown op %q", node.Op)
		}
		return &Threshold{Timeframe: tf, Indicator: node.Indicator, Field: node.Field, Op: node.Op, Level: node.Level}, nil

	case "cross":
		if node.Indicator == "" {
			return nil, fmt.Errorf("cross: indicator required")
		}
		switch node.Direction {
		case "above", "below":
		default:
			return nil, fmt.Errorf("cross: direction must be above or below, got %q", node.Direction)
		}
		return &Cross{Timeframe: tf, Indicator: node.Indicator, Field: node.Field, Level: node.Level, Above: node.Direction == "above"}, nil

	case "pattern":
		if node.Pattern == "" {
			return nil, fmt.Errorf("pattern: pattern id required")
		}
		within := tf * 2
		if node.Within != "" {
			d, err := time.ParseDuration(node.Within)
			if err != nil {
				return nil, fmt.Errorf("pattern within %q: %w", node.Within, err)
			}
			within = d
		}
		return &PatternPresent{Timeframe: tf, Pattern: node.Pattern, Within: within}, nil

	case "price_move":
		if node.Lookback < 1 {
			return nil, fmt.Errorf("price_move: lookback must be at least 1")
		}
		if node.MinChangePct <= 0 {
			return nil, fmt.Errorf("price_move: min_change_pct must be positive")
		}
		return &PriceMove{Timeframe: tf, Lookback: node.Lookback, MinChangePct: node.MinChangePct}, nil

	case "volume_spike":
		if node.Window < 2 {
			return nil, fmt.Errorf("volume_spike: window must be at least 2")
		}
		if node.StdMultiplier <= 0 {
			return nil, fmt.Errorf("volume_spike: std_multiplier must be positive")
		}
		return &VolumeSpike{Timeframe: tf, Window: node.Window, StdMultiplier: node.StdMultiplier}, nil

	case "and", "or":
		raws := node.All
		if node.Type == "or" {
			raws = node.Any
		}
		if len(raws) == 0 {
			return nil, fmt.Errorf("%s: at least one child required", node.Type)
		}
		children := make([]Condition, 0, len(raws))
		for _, r := range raws {
			child, err := ParseCondition(r, defaultTF)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if node.Type == "and" {
			return &And{All: children}, nil
		}
		return &Or{Any: children}, nil

	case "not":
		if len(node.C) == 0 {
			return nil, fmt.Errorf("not: child condition required")
		}
		child, err := ParseCondition(node.C, defaultTF)
		if err != nil {
			return nil, err
		}
		return &Not{C: child}, nil

	default:
		return nil, fmt.Errorf("unknown condition type %q", node.Type)
	}
}
