package pattern

import (
	"time"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

// recentMatchCap bounds the per-timeframe match history kept for snapshots.
const recentMatchCap = 100

type tfWindow struct {
	tf      time.Duration
	candles []model.Candle // trailing window, oldest first
	recent  []model.PatternMatch
}

// Detector runs the matcher library over the sliding candle window of one
// instrument. Owned by the pipeline goroutine; no locks.
type Detector struct {
	instrument  string
	matchers    []Matcher
	windows     []*tfWindow
	maxLookback int

	// OnMatch is an optional metrics hook called per emitted match.
	OnMatch func(patternID string)
}

// NewDetector builds a detector with the given matchers over the configured
// timeframes.
func NewDetector(instrument string, tfs []time.Duration, matchers []Matcher) *Detector {
	maxLookback := 1
	for _, m := range matchers {
		if m.Lookback() > maxLookback {
			maxLookback = m.Lookback()
		}
	}
	windows := make([]*tfWindow, len(tfs))
	for i, tf := range tfs {
		windows[i] = &tfWindow{tf: tf}
	}
	return &Detector{
		instrument:  instrument,
		matchers:    matchers,
		windows:     windows,
		maxLookback: maxLookback,
	}
}

// OnCandleClose appends the candle to its timeframe window and evaluates
// every matcher against the window tail. Returns all matches; matchers are
// not mutually exclusive.
func (d *Detector) OnCandleClose(c model.Candle) []model.PatternMatch {
	w := d.window(c.Timeframe)
	if w == nil {
		return nil
	}

	w.candles = append(w.candles, c)
	if len(w.candles) > d.maxLookback {
		w.candles = w.candles[len(w.candles)-d.maxLookback:]
	}

	var matches []model.PatternMatch
	for _, m := range d.matchers {
		lb := m.Lookback()
		if len(w.candles) < lb {
			continue
		}
		tail := w.candles[len(w.candles)-lb:]
		if anySynthetic(tail) {
			// Gap-filled candles have no trade geometry to match on.
			continue
		}
		direction, confidence, ok := m.Match(tail)
		if !ok {
			continue
		}
		match := model.PatternMatch{
			Instrument: d.instrument,
			Timeframe:  c.Timeframe,
			PatternID:  m.ID(),
			TS:         c.OpenTime,
			Start:      tail[0].OpenTime,
			Candles:    lb,
			Direction:  direction,
			Confidence: adjustConfidence(confidence, tail),
		}
		matches = append(matches, match)
		w.recent = append(w.recent, match)
		if len(w.recent) > recentMatchCap {
			w.recent = w.recent[len(w.recent)-recentMatchCap:]
		}
		if d.OnMatch != nil {
			d.OnMatch(m.ID())
		}
	}
	return matches
}

// Recent returns up to n most recent matches for tf, oldest first.
func (d *Detector) Recent(tf time.Duration, n int) []model.PatternMatch {
	w := d.window(tf)
	if w == nil || len(w.recent) == 0 {
		return nil
	}
	if n > len(w.recent) {
		n = len(w.recent)
	}
	out := make([]model.PatternMatch, n)
	copy(out, w.recent[len(w.recent)-n:])
	return out
}

func (d *Detector) window(tf time.Duration) *tfWindow {
	for _, w := range d.windows {
		if w.tf == tf {
			return w
		}
	}
	return nil
}

func anySynthetic(candles []model.Candle) bool {
	for i := range candles {
		if candles[i].Synthetic {
			return true
		}
	}
	return false
}

// adjustConfidence scales the base confidence by relative volume of the
// final candle against the window average, capped at 1.0.
func adjustConfidence(base float64, window []model.Candle) float64 {
	total := decimal.Zero
	for i := range window {
		total = total.Add(window[i].Volume)
	}
	if total.IsZero() {
		return base
	}
	avg := total.Div(decimal.NewFromInt(int64(len(window)))).InexactFloat64()
	if avg <= 0 {
		return base
	}
	factor := window[len(window)-1].Volume.InexactFloat64() / avg
	if factor > 2.0 {
		factor = 2.0
	}
	adjusted := base * factor
	if adjusted > 1.0 {
		adjusted = 1.0
	}
	if adjusted < base {
		// Thin volume weakens but never erases a geometric match.
		adjusted = (adjusted + base) / 2
	}
	return adjusted
}
