package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tibcore/internal/alert"
	"tibcore/internal/indicator"
	"tibcore/internal/model"
	"tibcore/internal/pattern"
)

func testConfig() Config {
	return Config{
		Analysis: AnalysisConfig{
			Timeframes:  []time.Duration{time.Minute},
			Grace:       2 * time.Second,
			HistorySize: 100,
			Indicators:  []indicator.Config{{Type: "sma", Period: 1}},
			Patterns:    pattern.DefaultConfigs(),
		},
		QueueSize:        64,
		BoundaryInterval: 50 * time.Millisecond,
	}
}

func startSupervisor(t *testing.T, cfg Config, hooks Hooks) (*Supervisor, context.CancelFunc) {
	t.Helper()
	sup, err := New(cfg, hooks, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Run stores its context before entering the select loop.
	require.Eventually(t, func() bool {
		sup.mu.RLock()
		defer sup.mu.RUnlock()
		return sup.running
	}, time.Second, 5*time.Millisecond)

	return sup, cancel
}

func push(t *testing.T, sup *Supervisor, inst string, price float64, ts time.Time) {
	t.Helper()
	err := sup.PushTick(inst, decimal.NewFromFloat(price), decimal.NewFromInt(1), ts)
	require.NoError(t, err)
}

func TestSupervisor_LazyPipelineAndSnapshot(t *testing.T) {
	sup, _ := startSupervisor(t, testConfig(), Hooks{})

	assert.Empty(t, sup.Instruments())
	if _, ok := sup.Snapshot("BTCUSDT"); ok {
		t.Fatal("snapshot for unknown instrument")
	}

	base := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Minute)
	push(t, sup, "BTCUSDT", 50000, base.Add(time.Second))
	push(t, sup, "BTCUSDT", 50100, base.Add(30*time.Second))

	require.Eventually(t, func() bool {
		snap, ok := sup.Snapshot("BTCUSDT")
		if !ok || len(snap.Timeframes) != 1 {
			return false
		}
		// The boundary timer closes the elapsed window without new ticks.
		return snap.Timeframes[0].LatestClosed != nil
	}, 3*time.Second, 20*time.Millisecond)

	snap, _ := sup.Snapshot("BTCUSDT")
	closed := snap.Timeframes[0].LatestClosed
	assert.True(t, closed.Closed)
	assert.Equal(t, "BTCUSDT", closed.Instrument)
	assert.Zero(t, snap.DroppedTicks)
	assert.Equal(t, []string{"BTCUSDT"}, sup.Instruments())
}

func TestSupervisor_AlertFlow(t *testing.T) {
	var mu sync.Mutex
	var fired []model.AlertEvent

	sup, _ := startSupervisor(t, testConfig(), Hooks{
		OnAlert: func(ev model.AlertEvent) {
			mu.Lock()
			fired = append(fired, ev)
			mu.Unlock()
		},
	})

	require.NoError(t, sup.ApplyRules([]alert.RuleConfig{{
		ID:        "price-high",
		Condition: []byte(`{"type": "threshold", "indicator": "SMA_1", "op": "gt", "level": 100}`),
	}}))

	base := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Minute)
	push(t, sup, "BTCUSDT", 150, base.Add(time.Second))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	ev := fired[0]
	mu.Unlock()
	assert.Equal(t, "price-high", ev.RuleID)
	assert.Equal(t, "BTCUSDT", ev.Instrument)

	require.Eventually(t, func() bool {
		snap, ok := sup.Snapshot("BTCUSDT")
		return ok && len(snap.RecentAlerts) > 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSupervisor_RejectsInvalidRules(t *testing.T) {
	sup, _ := startSupervisor(t, testConfig(), Hooks{})

	require.NoError(t, sup.ApplyRules([]alert.RuleConfig{{
		ID:        "good",
		Condition: []byte(`{"type": "threshold", "indicator": "SMA_1", "op": "gt", "level": 1}`),
	}}))
	before := sup.Rules()

	err := sup.ApplyRules([]alert.RuleConfig{{
		ID:        "bad",
		Condition: []byte(`{"type": "nonsense"}`),
	}})
	require.Error(t, err)
	assert.Same(t, before, sup.Rules(), "failed apply must leave the active rule set untouched")
}

func TestSupervisor_RejectsInvalidAnalysis(t *testing.T) {
	_, err := New(Config{
		Analysis: AnalysisConfig{
			Timeframes: []time.Duration{time.Minute},
			Indicators: []indicator.Config{{Type: "vwap", Period: 10}},
		},
	}, Hooks{}, zerolog.Nop())
	require.Error(t, err)

	sup, _ := startSupervisor(t, testConfig(), Hooks{})
	err = sup.ApplyAnalysis(AnalysisConfig{})
	require.Error(t, err, "empty timeframes must be rejected")
}

func TestSupervisor_ApplyAnalysisRestartsPipelines(t *testing.T) {
	sup, _ := startSupervisor(t, testConfig(), Hooks{})

	base := time.Now().UTC().Truncate(time.Minute)
	push(t, sup, "BTCUSDT", 100, base)

	require.Eventually(t, func() bool {
		_, ok := sup.Snapshot("BTCUSDT")
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sup.ApplyAnalysis(AnalysisConfig{
		Timeframes:  []time.Duration{time.Minute, 5 * time.Minute},
		Grace:       2 * time.Second,
		HistorySize: 50,
		Indicators:  []indicator.Config{{Type: "ema", Period: 3}},
	}))

	// The instrument keeps its pipeline, rebuilt against the new config.
	snap, ok := sup.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Len(t, snap.Timeframes, 2)
}

func TestSupervisor_ApplyAnalysisKeepsDefaults(t *testing.T) {
	sup, _ := startSupervisor(t, testConfig(), Hooks{})

	// A reconfiguration that supplies only timeframes must not zero out the
	// optional fields.
	require.NoError(t, sup.ApplyAnalysis(AnalysisConfig{
		Timeframes: []time.Duration{time.Minute},
	}))

	sup.mu.RLock()
	grace := sup.cfg.Analysis.Grace
	history := sup.cfg.Analysis.HistorySize
	sup.mu.RUnlock()
	assert.Equal(t, 2*time.Second, grace)
	assert.Equal(t, 500, history)

	// A tick inside the grace window still folds into the current candle
	// after the reconfigure instead of being rejected.
	base := time.Now().UTC().Truncate(time.Minute)
	push(t, sup, "BTCUSDT", 100, base.Add(-time.Minute))
	push(t, sup, "BTCUSDT", 101, base)
	push(t, sup, "BTCUSDT", 102, base.Add(-time.Second))

	require.Eventually(t, func() bool {
		snap, ok := sup.Snapshot("BTCUSDT")
		if !ok || snap.RejectedTicks > 0 {
			return false
		}
		tf := snap.Timeframes[0]
		if tf.Open != nil && tf.Open.Ticks >= 2 {
			return true
		}
		return tf.LatestClosed != nil && tf.LatestClosed.Ticks >= 2
	}, 3*time.Second, 20*time.Millisecond)

	snap, _ := sup.Snapshot("BTCUSDT")
	assert.Zero(t, snap.RejectedTicks)
}

func TestSupervisor_Remove(t *testing.T) {
	sup, _ := startSupervisor(t, testConfig(), Hooks{})

	push(t, sup, "BTCUSDT", 100, time.Now().UTC())
	require.Eventually(t, func() bool {
		_, ok := sup.Snapshot("BTCUSDT")
		return ok
	}, time.Second, 10*time.Millisecond)

	assert.True(t, sup.Remove("BTCUSDT"))
	assert.False(t, sup.Remove("BTCUSDT"))
	_, ok := sup.Snapshot("BTCUSDT")
	assert.False(t, ok)
}

func TestSupervisor_PushBeforeRun(t *testing.T) {
	sup, err := New(testConfig(), Hooks{}, zerolog.Nop())
	require.NoError(t, err)

	err = sup.PushTick("BTCUSDT", decimal.NewFromInt(1), decimal.NewFromInt(1), time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotRunning)
}
