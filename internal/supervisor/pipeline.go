package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tibcore/internal/alert"
	"tibcore/internal/indicator"
	"tibcore/internal/marketdata/agg"
	"tibcore/internal/model"
	"tibcore/internal/pattern"
	"tibcore/internal/tickq"
)

// pipeline owns all mutable analysis state for one instrument. Everything
// downstream of the queue runs on a single goroutine, so the aggregator,
// indicator engine, pattern detector and alert engine need no locks.
type pipeline struct {
	instrument string
	queue      *tickq.Queue
	agg        *agg.Aggregator
	indicators *indicator.Engine
	patterns   *pattern.Detector
	alerts     *alert.Engine

	snapshot     atomic.Pointer[Snapshot]
	lastActivity atomic.Int64 // unix nanos of last accepted tick
	lastTick     atomic.Int64 // unix nanos of last tick's exchange timestamp

	recentAlerts []model.AlertEvent

	boundaryEvery time.Duration
	hooks         Hooks
	log           zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func newPipeline(instrument string, cfg Config, rules func() *alert.RuleSet, hooks Hooks, log zerolog.Logger) (*pipeline, error) {
	tfs := cfg.Analysis.Timeframes

	aggregator := agg.New(instrument, tfs, cfg.Analysis.Grace, cfg.Analysis.HistorySize)

	tfCfgs := make([]indicator.TFConfig, len(tfs))
	for i, tf := range tfs {
		tfCfgs[i] = indicator.TFConfig{Timeframe: tf, Indicators: cfg.Analysis.Indicators}
	}
	engine, err := indicator.NewEngine(instrument, tfCfgs)
	if err != nil {
		return nil, err
	}

	matchers := make([]pattern.Matcher, 0, len(cfg.Analysis.Patterns))
	for _, pc := range cfg.Analysis.Patterns {
		m, err := pattern.NewMatcher(pc)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}

	p := &pipeline{
		instrument:    instrument,
		queue:         tickq.New(cfg.QueueSize, cfg.DropPolicy),
		agg:           aggregator,
		indicators:    engine,
		patterns:      pattern.NewDetector(instrument, tfs, matchers),
		alerts:        alert.NewEngine(instrument, rules, aggregator),
		boundaryEvery: cfg.BoundaryInterval,
		hooks:         hooks,
		log:           log.With().Str("instrument", instrument).Logger(),
		done:          make(chan struct{}),
	}
	if hooks.OnTickLate != nil {
		p.agg.OnReject = func() { hooks.OnTickLate(instrument) }
	}
	if hooks.OnPattern != nil {
		p.patterns.OnMatch = hooks.OnPattern
	}
	if hooks.OnSuppressed != nil {
		p.alerts.OnSuppressed = hooks.OnSuppressed
	}
	p.lastActivity.Store(time.Now().UnixNano())
	p.publishSnapshot(time.Now().UTC())
	return p, nil
}

// start launches the pipeline goroutine under the given parent context.
func (p *pipeline) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	go p.run(ctx)
}

// stop cancels the pipeline goroutine and waits for it to exit.
func (p *pipeline) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// push hands a tick to the pipeline without blocking.
func (p *pipeline) push(t model.Tick) bool {
	p.lastActivity.Store(time.Now().UnixNano())
	ok := p.queue.Push(t)
	if !ok && p.hooks.OnTickDropped != nil {
		p.hooks.OnTickDropped(p.instrument)
	}
	return ok
}

func (p *pipeline) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.boundaryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.queue.Notify():
			p.drain()

		case now := <-ticker.C:
			closed := p.agg.CloseBoundaryCheck(now.UTC())
			for _, c := range closed {
				p.onCandleClose(c)
			}
			p.publishSnapshot(now.UTC())
		}
	}
}

// drain processes every queued tick, then republishes the snapshot once.
func (p *pipeline) drain() {
	worked := false
	for {
		t, ok := p.queue.Pop()
		if !ok {
			break
		}
		worked = true
		p.lastTick.Store(t.ExchangeTS.UnixNano())
		for _, c := range p.agg.Ingest(t) {
			p.onCandleClose(c)
		}
	}
	if worked {
		p.publishSnapshot(time.Now().UTC())
	}
}

// onCandleClose runs the downstream stages for one closed candle:
// indicators, then patterns, each feeding the alert engine as signals
// arrive.
func (p *pipeline) onCandleClose(c model.Candle) {
	if p.hooks.OnCandleClosed != nil {
		p.hooks.OnCandleClosed(c.Timeframe)
	}

	for _, v := range p.indicators.OnCandleClose(c) {
		p.emitAlerts(p.alerts.OnIndicator(v))
	}
	for _, m := range p.patterns.OnCandleClose(c) {
		p.emitAlerts(p.alerts.OnPattern(m))
	}
}

func (p *pipeline) emitAlerts(events []model.AlertEvent) {
	for _, ev := range events {
		p.recentAlerts = append(p.recentAlerts, ev)
		if len(p.recentAlerts) > recentAlertCap {
			p.recentAlerts = p.recentAlerts[len(p.recentAlerts)-recentAlertCap:]
		}
		p.log.Info().
			Str("rule", ev.RuleID).
			Str("severity", string(ev.Severity)).
			Str("trigger", ev.TriggerID).
			Msg("alert fired")
		if p.hooks.OnAlert != nil {
			p.hooks.OnAlert(ev)
		}
	}
}

// publishSnapshot rebuilds the instrument snapshot and swaps it in
// atomically.
func (p *pipeline) publishSnapshot(now time.Time) {
	snap := &Snapshot{
		Instrument:    p.instrument,
		TakenAt:       now,
		Timeframes:    make([]TFSnapshot, 0, len(p.agg.Timeframes())),
		QueueDepth:    p.queue.Len(),
		DroppedTicks:  p.queue.Dropped(),
		RejectedTicks: p.agg.Rejected(),
	}
	if nano := p.lastTick.Load(); nano > 0 {
		snap.LastTick = time.Unix(0, nano).UTC()
	}
	if len(p.recentAlerts) > 0 {
		snap.RecentAlerts = make([]model.AlertEvent, len(p.recentAlerts))
		copy(snap.RecentAlerts, p.recentAlerts)
	}

	for _, tf := range p.agg.Timeframes() {
		tfs := TFSnapshot{
			Timeframe:  tf,
			Indicators: p.indicators.Current(tf, now),
			Patterns:   p.patterns.Recent(tf, 10),
		}
		if open, ok := p.agg.OpenCandle(tf); ok {
			tfs.Open = &open
		}
		if last, ok := p.agg.LatestClosed(tf); ok {
			tfs.LatestClosed = &last
		}
		snap.Timeframes = append(snap.Timeframes, tfs)
	}

	p.snapshot.Store(snap)
}

// idleSince reports the last time a tick was pushed for this instrument.
func (p *pipeline) idleSince() time.Time {
	return time.Unix(0, p.lastActivity.Load())
}
