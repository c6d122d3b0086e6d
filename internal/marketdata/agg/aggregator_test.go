package agg

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

func tick(price, volume float64, ts time.Time) model.Tick {
	return model.Tick{
		Instrument: "BTCUSDT",
		Price:      decimal.NewFromFloat(price),
		Volume:     decimal.NewFromFloat(volume),
		ExchangeTS: ts,
	}
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestAggregator_BasicCandle(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	agg.Ingest(tick(50000, 10, base))
	agg.Ingest(tick(50500, 20, base.Add(10*time.Second)))
	agg.Ingest(tick(49800, 5, base.Add(30*time.Second)))

	// Tick in the next window closes the first candle.
	closed := agg.Ingest(tick(50100, 15, base.Add(time.Minute)))
	if len(closed) != 1 {
		t.Fatalf("expected 1 closed candle, got %d", len(closed))
	}

	c := closed[0]
	if !c.Open.Equal(d(50000)) {
		t.Errorf("expected open=50000, got %s", c.Open)
	}
	if !c.High.Equal(d(50500)) {
		t.Errorf("expected high=50500, got %s", c.High)
	}
	if !c.Low.Equal(d(49800)) {
		t.Errorf("expected low=49800, got %s", c.Low)
	}
	if !c.Close.Equal(d(49800)) {
		t.Errorf("expected close=49800, got %s", c.Close)
	}
	if !c.Volume.Equal(d(35)) {
		t.Errorf("expected volume=35, got %s", c.Volume)
	}
	if c.Ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", c.Ticks)
	}
	if !c.Closed {
		t.Error("emitted candle not marked closed")
	}
	if !c.OpenTime.Equal(base) || !c.CloseTime.Equal(base.Add(time.Minute)) {
		t.Errorf("wrong window: [%s, %s)", c.OpenTime, c.CloseTime)
	}
}

func TestAggregator_BoundaryBurst(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	// Ticks land on both sides of a minute boundary.
	agg.Ingest(tick(100, 1, base.Add(59*time.Second)))
	closed := agg.Ingest(tick(101, 1, base.Add(60*time.Second)))
	if len(closed) != 1 {
		t.Fatalf("expected boundary tick to close the candle, got %d", len(closed))
	}
	if !closed[0].Close.Equal(d(100)) {
		t.Errorf("boundary tick leaked into the closed candle: close=%s", closed[0].Close)
	}

	open, ok := agg.OpenCandle(time.Minute)
	if !ok {
		t.Fatal("no open candle after boundary")
	}
	if !open.Open.Equal(d(101)) {
		t.Errorf("expected new candle to open at 101, got %s", open.Open)
	}
}

func TestAggregator_LateTickWithinGrace(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	agg.Ingest(tick(100, 1, base))
	agg.Ingest(tick(102, 1, base.Add(time.Minute)))

	// One second late: folds into the current candle, never the closed one.
	agg.Ingest(tick(99, 1, base.Add(time.Minute-time.Second)))

	last, ok := agg.LatestClosed(time.Minute)
	if !ok {
		t.Fatal("no closed candle")
	}
	if !last.Close.Equal(d(100)) {
		t.Errorf("closed candle mutated by late tick: close=%s", last.Close)
	}

	open, _ := agg.OpenCandle(time.Minute)
	if !open.Low.Equal(d(99)) {
		t.Errorf("late tick not folded into current candle: low=%s", open.Low)
	}
	if agg.Rejected() != 0 {
		t.Errorf("tick within grace counted as rejected")
	}
}

func TestAggregator_LateTickBeyondGrace(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	rejects := 0
	agg.OnReject = func() { rejects++ }

	agg.Ingest(tick(100, 1, base))
	agg.Ingest(tick(102, 1, base.Add(time.Minute)))
	agg.Ingest(tick(98, 1, base.Add(30*time.Second)))

	if agg.Rejected() != 1 || rejects != 1 {
		t.Errorf("expected 1 rejected tick, counter=%d hook=%d", agg.Rejected(), rejects)
	}

	last, _ := agg.LatestClosed(time.Minute)
	if !last.Close.Equal(d(100)) {
		t.Errorf("closed candle mutated: close=%s", last.Close)
	}
	open, _ := agg.OpenCandle(time.Minute)
	if !open.Low.Equal(d(102)) {
		t.Errorf("rejected tick leaked into open candle: low=%s", open.Low)
	}
}

func TestAggregator_BoundaryCloseWithoutTicks(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	agg.Ingest(tick(100, 1, base.Add(5*time.Second)))

	// The feed goes quiet; the timer still closes windows on schedule.
	closed := agg.CloseBoundaryCheck(base.Add(3*time.Minute + time.Second))
	if len(closed) != 3 {
		t.Fatalf("expected 3 closed candles, got %d", len(closed))
	}

	if closed[0].Synthetic {
		t.Error("first candle has real trades, must not be synthetic")
	}
	for i, c := range closed[1:] {
		if !c.Synthetic {
			t.Errorf("gap candle %d not synthetic", i+1)
		}
		if !c.Open.Equal(d(100)) || !c.Close.Equal(d(100)) || !c.High.Equal(d(100)) || !c.Low.Equal(d(100)) {
			t.Errorf("gap candle %d not carried at previous close: %s/%s/%s/%s", i+1, c.Open, c.High, c.Low, c.Close)
		}
		if !c.Volume.IsZero() || c.Ticks != 0 {
			t.Errorf("gap candle %d has volume or ticks", i+1)
		}
	}

	// Windows stay contiguous.
	for i := 1; i < len(closed); i++ {
		if !closed[i].OpenTime.Equal(closed[i-1].CloseTime) {
			t.Errorf("gap between candle %d and %d", i-1, i)
		}
	}
}

func TestAggregator_GapFillOnNextTick(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	agg.Ingest(tick(100, 1, base))
	// Next tick three windows later: two synthetic candles in between.
	closed := agg.Ingest(tick(110, 1, base.Add(3*time.Minute)))
	if len(closed) != 3 {
		t.Fatalf("expected 3 closed candles, got %d", len(closed))
	}
	if closed[0].Synthetic {
		t.Error("real candle marked synthetic")
	}
	if !closed[1].Synthetic || !closed[2].Synthetic {
		t.Error("gap candles not synthetic")
	}

	open, _ := agg.OpenCandle(time.Minute)
	if open.Synthetic {
		t.Error("candle with a real tick still synthetic")
	}
	if !open.Open.Equal(d(100)) {
		// The new window opens gap-filled at the previous close, then
		// extends with the real tick.
		t.Errorf("expected gap-filled open=100, got %s", open.Open)
	}
	if !open.High.Equal(d(110)) || !open.Close.Equal(d(110)) {
		t.Errorf("real tick not applied: high=%s close=%s", open.High, open.Close)
	}
}

func TestAggregator_OHLCInvariants(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 100)

	prices := []float64{100, 95, 105, 92, 108, 99}
	for i, p := range prices {
		agg.Ingest(tick(p, 1, base.Add(time.Duration(i)*9*time.Second)))
	}
	closed := agg.Ingest(tick(101, 1, base.Add(time.Minute)))

	for _, c := range append(closed, mustOpen(t, agg)) {
		maxOC := c.Open
		if c.Close.GreaterThan(maxOC) {
			maxOC = c.Close
		}
		minOC := c.Open
		if c.Close.LessThan(minOC) {
			minOC = c.Close
		}
		if c.High.LessThan(maxOC) {
			t.Errorf("high %s below max(open, close) %s", c.High, maxOC)
		}
		if c.Low.GreaterThan(minOC) {
			t.Errorf("low %s above min(open, close) %s", c.Low, minOC)
		}
	}
}

func mustOpen(t *testing.T, agg *Aggregator) model.Candle {
	t.Helper()
	c, ok := agg.OpenCandle(time.Minute)
	if !ok {
		t.Fatal("no open candle")
	}
	return c
}

func TestAggregator_MultiTimeframe(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	tfs := []time.Duration{time.Minute, 5 * time.Minute}
	agg := New("BTCUSDT", tfs, 2*time.Second, 100)

	for i := 0; i < 5; i++ {
		agg.Ingest(tick(100+float64(i), 1, base.Add(time.Duration(i)*time.Minute)))
	}
	closed := agg.Ingest(tick(110, 1, base.Add(5*time.Minute)))

	var m1, m5 int
	for _, c := range closed {
		switch c.Timeframe {
		case time.Minute:
			m1++
		case 5 * time.Minute:
			m5++
			if !c.Open.Equal(d(100)) || !c.Close.Equal(d(104)) {
				t.Errorf("5m candle open=%s close=%s", c.Open, c.Close)
			}
			if !c.Volume.Equal(d(5)) {
				t.Errorf("5m volume=%s", c.Volume)
			}
		}
	}
	if m1 != 1 || m5 != 1 {
		t.Errorf("expected one close per timeframe, got 1m=%d 5m=%d", m1, m5)
	}
}

func TestAggregator_Window(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	agg := New("BTCUSDT", []time.Duration{time.Minute}, 2*time.Second, 3)

	for i := 0; i < 6; i++ {
		agg.Ingest(tick(100+float64(i), 1, base.Add(time.Duration(i)*time.Minute)))
	}

	w := agg.Window(time.Minute, 10)
	if len(w) != 3 {
		t.Fatalf("history capacity 3, got %d candles", len(w))
	}
	for i := 1; i < len(w); i++ {
		if !w[i].OpenTime.After(w[i-1].OpenTime) {
			t.Error("window not in chronological order")
		}
	}
	if !w[2].Close.Equal(d(104)) {
		t.Errorf("latest closed candle close=%s", w[2].Close)
	}
}
