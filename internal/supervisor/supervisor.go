// Package supervisor owns the per-instrument pipelines: it routes
// normalized ticks to them, creates them lazily on first sight of an
// instrument, tears them down when idle, and carries the shared alert rule
// set that every pipeline reads through an atomic pointer.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tibcore/internal/alert"
	"tibcore/internal/indicator"
	"tibcore/internal/marketdata/normalizer"
	"tibcore/internal/model"
	"tibcore/internal/pattern"
	"tibcore/internal/tickq"
)

// ErrNotRunning is returned by PushTick before Run has started.
var ErrNotRunning = errors.New("supervisor not running")

// AnalysisConfig describes what every pipeline computes. Changing it
// requires a pipeline restart; indicator and pattern state does not
// survive a reconfiguration, warm-up begins again.
type AnalysisConfig struct {
	Timeframes  []time.Duration
	Grace       time.Duration
	HistorySize int
	Indicators  []indicator.Config
	Patterns    []pattern.Config
}

// defaults fills the optional analysis fields. Applied on every install,
// not just construction, so a runtime reconfiguration that omits them does
// not silently disable the grace window or shrink candle history.
func (c *AnalysisConfig) defaults() {
	if c.HistorySize <= 0 {
		c.HistorySize = 500
	}
	if c.Grace <= 0 {
		c.Grace = 2 * time.Second
	}
}

// Validate rejects an analysis config that no pipeline could be built from.
func (c *AnalysisConfig) Validate() error {
	if len(c.Timeframes) == 0 {
		return errors.New("no timeframes configured")
	}
	for _, tf := range c.Timeframes {
		if tf <= 0 {
			return fmt.Errorf("non-positive timeframe %s", tf)
		}
	}
	for _, ic := range c.Indicators {
		if _, err := indicator.New(ic); err != nil {
			return err
		}
	}
	for _, pc := range c.Patterns {
		if _, err := pattern.NewMatcher(pc); err != nil {
			return err
		}
	}
	return nil
}

// Config holds supervisor-level settings on top of the analysis config.
type Config struct {
	Analysis AnalysisConfig

	QueueSize        int
	DropPolicy       tickq.DropPolicy
	TickMaxAge       time.Duration
	DefaultCooldown  time.Duration
	IdleTimeout      time.Duration
	BoundaryInterval time.Duration
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	c.Analysis.defaults()
	if c.DefaultCooldown <= 0 {
		c.DefaultCooldown = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.BoundaryInterval <= 0 {
		c.BoundaryInterval = 250 * time.Millisecond
	}
}

// Hooks are optional metric callbacks; all are invoked from pipeline or
// push goroutines and must not block.
type Hooks struct {
	OnTickAccepted func(instrument string)
	OnTickRejected func(reason string)
	OnTickDropped  func(instrument string)
	OnTickLate     func(instrument string)
	OnCandleClosed func(tf time.Duration)
	OnPattern      func(patternID string)
	OnSuppressed   func(ruleID string)
	OnAlert        func(ev model.AlertEvent)
	OnPipelines    func(count int)
}

// Supervisor routes ticks to instrument pipelines and manages their
// lifecycle.
type Supervisor struct {
	cfg   Config
	norm  *normalizer.Normalizer
	hooks Hooks
	log   zerolog.Logger

	rules atomic.Pointer[alert.RuleSet]

	mu        sync.RWMutex
	pipelines map[string]*pipeline
	runCtx    context.Context
	running   bool
}

// New creates a supervisor. The analysis config is validated eagerly so a
// bad config fails at startup rather than on the first tick.
func New(cfg Config, hooks Hooks, log zerolog.Logger) (*Supervisor, error) {
	cfg.defaults()
	if err := cfg.Analysis.Validate(); err != nil {
		return nil, fmt.Errorf("analysis config: %w", err)
	}
	s := &Supervisor{
		cfg:       cfg,
		norm:      normalizer.New(cfg.TickMaxAge),
		hooks:     hooks,
		log:       log,
		pipelines: make(map[string]*pipeline),
	}
	s.rules.Store(&alert.RuleSet{})
	return s, nil
}

// Run starts the idle janitor and blocks until ctx is cancelled, then
// stops every pipeline.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.running = true
	s.mu.Unlock()

	janitor := time.NewTicker(time.Minute)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-janitor.C:
			s.reapIdle()
		}
	}
}

func (s *Supervisor) shutdown() {
	s.mu.Lock()
	pipes := make([]*pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		pipes = append(pipes, p)
	}
	s.pipelines = make(map[string]*pipeline)
	s.running = false
	s.mu.Unlock()

	for _, p := range pipes {
		p.stop()
	}
	s.log.Info().Int("pipelines", len(pipes)).Msg("supervisor stopped")
}

// reapIdle tears down pipelines that have not seen a tick within the idle
// timeout. State is discarded; a returning instrument warms up from
// scratch.
func (s *Supervisor) reapIdle() {
	cutoff := time.Now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*pipeline
	for inst, p := range s.pipelines {
		if p.idleSince().Before(cutoff) {
			idle = append(idle, p)
			delete(s.pipelines, inst)
		}
	}
	count := len(s.pipelines)
	s.mu.Unlock()

	for _, p := range idle {
		p.stop()
		s.log.Info().Str("instrument", p.instrument).Msg("idle pipeline reaped")
	}
	if len(idle) > 0 && s.hooks.OnPipelines != nil {
		s.hooks.OnPipelines(count)
	}
}

// PushTick validates a raw update and routes it to its instrument's
// pipeline, creating the pipeline on first sight. Never blocks: a full
// queue drops per the configured policy.
func (s *Supervisor) PushTick(instrument string, price, volume decimal.Decimal, exchangeTS time.Time) error {
	t, err := s.norm.Normalize(instrument, price, volume, exchangeTS)
	if err != nil {
		if s.hooks.OnTickRejected != nil {
			s.hooks.OnTickRejected(normalizer.Reason(err))
		}
		return err
	}

	p, err := s.pipelineFor(instrument)
	if err != nil {
		return err
	}
	p.push(t)
	if s.hooks.OnTickAccepted != nil {
		s.hooks.OnTickAccepted(instrument)
	}
	return nil
}

func (s *Supervisor) pipelineFor(instrument string) (*pipeline, error) {
	s.mu.RLock()
	p, ok := s.pipelines[instrument]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipelines[instrument]; ok {
		return p, nil
	}
	if !s.running {
		return nil, ErrNotRunning
	}

	p, err := newPipeline(instrument, s.cfg, s.activeRules, s.hooks, s.log)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", instrument, err)
	}
	p.start(s.runCtx)
	s.pipelines[instrument] = p
	s.log.Info().Str("instrument", instrument).Msg("pipeline started")
	if s.hooks.OnPipelines != nil {
		s.hooks.OnPipelines(len(s.pipelines))
	}
	return p, nil
}

func (s *Supervisor) activeRules() *alert.RuleSet { return s.rules.Load() }

// ApplyRules compiles and atomically swaps the active rule set. A compile
// error leaves the previous rule set untouched. Every pipeline sees the new
// set on its next signal evaluation.
func (s *Supervisor) ApplyRules(cfgs []alert.RuleConfig) error {
	defaultTF := s.cfg.Analysis.Timeframes[0]
	rs, err := alert.CompileRules(cfgs, defaultTF, s.cfg.DefaultCooldown)
	if err != nil {
		return err
	}
	s.rules.Store(rs)
	s.log.Info().Int("rules", len(rs.Rules)).Msg("rule set applied")
	return nil
}

// Rules returns the active rule set.
func (s *Supervisor) Rules() *alert.RuleSet { return s.rules.Load() }

// ApplyAnalysis validates and installs a new analysis configuration, then
// restarts every pipeline against it. Indicator and pattern state is
// discarded; warm-up restarts from the next tick. An invalid config leaves
// the current one running.
func (s *Supervisor) ApplyAnalysis(cfg AnalysisConfig) error {
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.running {
		s.cfg.Analysis = cfg
		s.mu.Unlock()
		return nil
	}
	s.cfg.Analysis = cfg
	old := s.pipelines
	s.pipelines = make(map[string]*pipeline, len(old))

	var restartErr error
	for inst := range old {
		p, err := newPipeline(inst, s.cfg, s.activeRules, s.hooks, s.log)
		if err != nil {
			restartErr = err
			continue
		}
		p.start(s.runCtx)
		s.pipelines[inst] = p
	}
	s.mu.Unlock()

	for _, p := range old {
		p.stop()
	}
	s.log.Info().Int("pipelines", len(old)).Msg("analysis config applied, pipelines restarted")
	return restartErr
}

// Snapshot returns the latest published snapshot for an instrument. Reads
// an atomic pointer; never touches pipeline state and never blocks
// ingestion.
func (s *Supervisor) Snapshot(instrument string) (*Snapshot, bool) {
	s.mu.RLock()
	p, ok := s.pipelines[instrument]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return p.snapshot.Load(), true
}

// Instruments returns the instruments with live pipelines.
func (s *Supervisor) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pipelines))
	for inst := range s.pipelines {
		out = append(out, inst)
	}
	return out
}

// Remove tears down one instrument's pipeline and discards its state.
func (s *Supervisor) Remove(instrument string) bool {
	s.mu.Lock()
	p, ok := s.pipelines[instrument]
	if ok {
		delete(s.pipelines, instrument)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.stop()
	s.log.Info().Str("instrument", instrument).Msg("pipeline removed")
	return true
}
