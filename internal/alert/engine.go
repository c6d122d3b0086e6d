package alert

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"tibcore/internal/model"
)

// CandleSource gives conditions read access to the closed-candle window.
// The aggregator implements it; the call happens on the pipeline goroutine
// so no locking is involved.
type CandleSource interface {
	Window(tf time.Duration, n int) []model.Candle
}

type indicatorState struct {
	cur     model.IndicatorValue
	prev    model.IndicatorValue
	hasPrev bool
}

// signalContext is the per-instrument incremental signal state conditions
// evaluate against. It implements Context.
type signalContext struct {
	indicators map[time.Duration]map[string]*indicatorState
	patterns   map[time.Duration]map[string]time.Time
	candles    CandleSource
	now        time.Time
}

func (s *signalContext) Indicator(tf time.Duration, id string) (model.IndicatorValue, bool) {
	st, ok := s.indicators[tf][id]
	if !ok {
		return model.IndicatorValue{}, false
	}
	return st.cur, true
}

func (s *signalContext) PrevIndicator(tf time.Duration, id string) (model.IndicatorValue, bool) {
	st, ok := s.indicators[tf][id]
	if !ok || !st.hasPrev {
		return model.IndicatorValue{}, false
	}
	return st.prev, true
}

func (s *signalContext) LastPattern(tf time.Duration, id string) (time.Time, bool) {
	ts, ok := s.patterns[tf][id]
	return ts, ok
}

func (s *signalContext) Candles(tf time.Duration, n int) []model.Candle {
	if s.candles == nil {
		return nil
	}
	return s.candles.Window(tf, n)
}

func (s *signalContext) Now() time.Time { return s.now }

// Engine evaluates the active rule set for one instrument. Owned by the
// pipeline goroutine; the rule set itself is shared and immutable, read
// through the rules loader on every evaluation so swaps take effect on the
// next signal, never retroactively.
type Engine struct {
	instrument string
	rules      func() *RuleSet
	ctx        *signalContext
	lastFired  map[string]time.Time
	clock      func() time.Time

	suppressed uint64

	// OnSuppressed is an optional metrics hook called when a true
	// condition is silenced by its cooldown.
	OnSuppressed func(ruleID string)
}

// NewEngine creates an alert engine for one instrument. rules is typically
// a closure over the supervisor's atomic rule-set pointer.
func NewEngine(instrument string, rules func() *RuleSet, candles CandleSource) *Engine {
	return &Engine{
		instrument: instrument,
		rules:      rules,
		ctx: &signalContext{
			indicators: make(map[time.Duration]map[string]*indicatorState),
			patterns:   make(map[time.Duration]map[string]time.Time),
			candles:    candles,
		},
		lastFired: make(map[string]time.Time),
		clock:     time.Now,
	}
}

// SetClock overrides the cooldown clock, for tests.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// Suppressed returns how many true conditions were silenced by cooldowns.
func (e *Engine) Suppressed() uint64 { return e.suppressed }

// OnIndicator folds an indicator value into the signal state and evaluates
// the rule set.
func (e *Engine) OnIndicator(v model.IndicatorValue) []model.AlertEvent {
	byID := e.ctx.indicators[v.Timeframe]
	if byID == nil {
		byID = make(map[string]*indicatorState)
		e.ctx.indicators[v.Timeframe] = byID
	}
	st := byID[v.IndicatorID]
	if st == nil {
		byID[v.IndicatorID] = &indicatorState{cur: v}
	} else {
		st.prev = st.cur
		st.hasPrev = true
		st.cur = v
	}
	return e.evaluate(v.TS, model.TriggerIndicator, v.IndicatorID, v.Timeframe)
}

// OnPattern folds a pattern match into the signal state and evaluates the
// rule set.
func (e *Engine) OnPattern(p model.PatternMatch) []model.AlertEvent {
	byID := e.ctx.patterns[p.Timeframe]
	if byID == nil {
		byID = make(map[string]time.Time)
		e.ctx.patterns[p.Timeframe] = byID
	}
	byID[p.PatternID] = p.TS
	return e.evaluate(p.TS, model.TriggerPattern, p.PatternID, p.Timeframe)
}

func (e *Engine) evaluate(signalTS time.Time, triggerKind, triggerID string, tf time.Duration) []model.AlertEvent {
	rs := e.rules()
	if rs == nil {
		return nil
	}

	now := e.clock()
	e.ctx.now = now

	var events []model.AlertEvent
	for _, rule := range rs.Rules {
		if !rule.Enabled || !rule.MatchesInstrument(e.instrument) {
			continue
		}
		if !rule.Cond.Eval(e.ctx) {
			continue
		}
		if last, ok := e.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown {
			e.suppressed++
			if e.OnSuppressed != nil {
				e.OnSuppressed(rule.ID)
			}
			continue
		}
		e.lastFired[rule.ID] = now

		events = append(events, model.AlertEvent{
			ID:          ulid.Make().String(),
			RuleID:      rule.ID,
			Instrument:  e.instrument,
			Timeframe:   tf,
			TS:          signalTS,
			Severity:    rule.Severity,
			Message:     fmt.Sprintf("rule %s triggered on %s by %s %s", rule.ID, e.instrument, triggerKind, triggerID),
			TriggerKind: triggerKind,
			TriggerID:   triggerID,
		})
	}
	return events
}
