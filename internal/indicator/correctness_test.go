package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

func candle(close float64) model.Candle {
	c := decimal.NewFromFloat(close)
	return model.Candle{
		Instrument: "BTCUSDT",
		Timeframe:  time.Minute,
		Open:       c,
		High:       c.Add(decimal.NewFromFloat(0.5)),
		Low:        c.Sub(decimal.NewFromFloat(0.5)),
		Close:      c,
		Closed:     true,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (diff=%.6f)", label, got, want, math.Abs(got-want))
	}
}

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after candle 3: (100+102+104)/3 = 102.0
	// SMA after candle 4: (102+104+103)/3 = 103.0
	// SMA after candle 5: (104+103+105)/3 = 104.0
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_SeedAndSmoothing(t *testing.T) {
	// EMA(3): seeded with SMA of first 3 closes, then
	// ema = (price - ema) * 2/(3+1) + ema
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 106}

	for i, p := range prices {
		ema.Update(candle(p))
		if i < 2 && ema.Ready() {
			t.Errorf("EMA ready before seed at candle %d", i)
		}
	}
	// Seed (100+102+104)/3 = 102; next: (106-102)*0.5 + 102 = 104
	assertClose(t, "EMA(3)", ema.Value(), 104.0, 0.0001)
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// Monotonic rise: RSI pegs at 100. Monotonic fall: RSI pegs at 0.
	up := NewRSI(3)
	for i := 0; i < 6; i++ {
		up.Update(candle(100 + float64(i)))
	}
	if !up.Ready() {
		t.Fatal("RSI not ready after period+1 candles")
	}
	assertClose(t, "RSI rising", up.Value(), 100.0, 0.0001)

	down := NewRSI(3)
	for i := 0; i < 6; i++ {
		down.Update(candle(100 - float64(i)))
	}
	assertClose(t, "RSI falling", down.Value(), 0.0, 0.0001)
}

func TestRSI_Bands(t *testing.T) {
	rsi := NewRSI(3)
	for i := 0; i < 6; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	fields := rsi.Fields()
	if fields["overbought"] != 1 {
		t.Errorf("RSI=100 must flag overbought, fields=%v", fields)
	}
	if fields["oversold"] != 0 {
		t.Errorf("RSI=100 must not flag oversold")
	}
}

func TestMACD_Crossover(t *testing.T) {
	macd := NewMACD(3, 6, 3)

	// Warm up flat, dip so the MACD line sits below its signal line, then
	// rally through it.
	for i := 0; i < 12; i++ {
		macd.Update(candle(100))
	}
	if !macd.Ready() {
		t.Fatal("MACD not ready after warm-up")
	}
	for i := 0; i < 5; i++ {
		macd.Update(candle(100 - float64(i+1)*5))
	}

	sawBullish := false
	for i := 0; i < 10; i++ {
		macd.Update(candle(75 + float64(i+1)*5))
		if macd.Fields()["bullish_cross"] == 1 {
			sawBullish = true
		}
	}
	if !sawBullish {
		t.Error("no bullish crossover flagged on rally through the signal line")
	}

	sawBearish := false
	for i := 0; i < 10; i++ {
		macd.Update(candle(125 - float64(i+1)*5))
		if macd.Fields()["bearish_cross"] == 1 {
			sawBearish = true
		}
	}
	if !sawBearish {
		t.Error("no bearish crossover flagged on selloff through the signal line")
	}
}

func TestBollinger_FlatSeries(t *testing.T) {
	bb := NewBollinger(5, 2)
	for i := 0; i < 5; i++ {
		bb.Update(candle(100))
	}
	if !bb.Ready() {
		t.Fatal("bollinger not ready")
	}
	// Zero variance: all three bands coincide with the mean.
	assertClose(t, "middle", bb.Value(), 100, 0.0001)
	assertClose(t, "upper", bb.Fields()["upper"], 100, 0.0001)
	assertClose(t, "lower", bb.Fields()["lower"], 100, 0.0001)
}

func TestBollinger_KnownVariance(t *testing.T) {
	bb := NewBollinger(4, 2)
	for _, p := range []float64{98, 100, 102, 100} {
		bb.Update(candle(p))
	}
	// Mean 100, population stddev sqrt(2); bands at 100 +/- 2*sqrt(2).
	sd := math.Sqrt(2)
	assertClose(t, "middle", bb.Value(), 100, 0.0001)
	assertClose(t, "upper", bb.Fields()["upper"], 100+2*sd, 0.0001)
	assertClose(t, "lower", bb.Fields()["lower"], 100-2*sd, 0.0001)
}

func TestEngine_WarmupAndEmission(t *testing.T) {
	eng, err := NewEngine("BTCUSDT", []TFConfig{{
		Timeframe:  time.Minute,
		Indicators: []Config{{Type: "sma", Period: 3}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	for i, p := range []float64{18, 20, 22} {
		c := candle(p)
		c.OpenTime = time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC)
		values := eng.OnCandleClose(c)
		if i < 2 && len(values) != 0 {
			t.Errorf("candle %d: indicator emitted during warm-up", i)
		}
		if i == 2 {
			if len(values) != 1 {
				t.Fatalf("expected 1 value after warm-up, got %d", len(values))
			}
			assertClose(t, "SMA_3", values[0].Value, 20.0, 0.0001)
			if values[0].IndicatorID != "SMA_3" {
				t.Errorf("indicator id %q", values[0].IndicatorID)
			}
			if !values[0].TS.Equal(c.OpenTime) {
				t.Error("value not stamped with candle open time")
			}
		}
	}
}

func TestEngine_RejectsBadConfig(t *testing.T) {
	_, err := NewEngine("BTCUSDT", []TFConfig{{
		Timeframe:  time.Minute,
		Indicators: []Config{{Type: "sma", Period: 0}},
	}})
	if err == nil {
		t.Error("zero period accepted")
	}

	_, err = NewEngine("BTCUSDT", []TFConfig{{
		Timeframe:  time.Minute,
		Indicators: []Config{{Type: "macd", Period: 26, Params: map[string]float64{"fast": 30, "slow": 26}}},
	}})
	if err == nil {
		t.Error("macd with fast >= slow accepted")
	}

	_, err = NewEngine("BTCUSDT", []TFConfig{{
		Timeframe:  time.Minute,
		Indicators: []Config{{Type: "srlevels", Period: 2}},
	}})
	if err == nil {
		t.Error("srlevels window below 3 accepted")
	}
}

func srCandle(high, low float64) model.Candle {
	h := decimal.NewFromFloat(high)
	l := decimal.NewFromFloat(low)
	return model.Candle{
		Instrument: "BTCUSDT",
		Timeframe:  time.Minute,
		Open:       l,
		High:       h,
		Low:        l,
		Close:      h,
		Closed:     true,
	}
}

func TestSRLevels_PivotDetection(t *testing.T) {
	// Window of 5: the peak (candle 3) becomes resistance once both of its
	// neighborhoods are in view, the trough (candle 7) becomes support.
	sr := NewSRLevels(5, 0.02)
	bars := []struct{ high, low float64 }{
		{100, 99},
		{101, 100},
		{105, 104},
		{101, 100},
		{100, 99},
		{99, 98},
		{98, 95},
		{99, 98},
		{100, 99},
	}

	for i, b := range bars {
		sr.Update(srCandle(b.high, b.low))
		if i < 4 && sr.Ready() {
			t.Errorf("candle %d: ready before the window filled", i)
		}
	}

	if !sr.Ready() {
		t.Fatal("no pivot found")
	}
	assertClose(t, "resistance", sr.Fields()["resistance"], 105, 0.0001)
	assertClose(t, "support", sr.Fields()["support"], 95, 0.0001)
	assertClose(t, "Value", sr.Value(), 105, 0.0001)
}

func TestSRLevels_NoPivotInTrend(t *testing.T) {
	// A monotonic rise has no local extremum strict enough to clear the
	// tolerance on both sides; no level should be published.
	sr := NewSRLevels(5, 0.02)
	for i := 0; i < 10; i++ {
		p := 100 * math.Pow(1.05, float64(i))
		sr.Update(srCandle(p, p-1))
	}
	if sr.Ready() {
		t.Errorf("trend produced a pivot: support=%v resistance=%v", sr.Fields()["support"], sr.Fields()["resistance"])
	}
}

func TestEngine_DeterministicReplay(t *testing.T) {
	build := func() *Engine {
		eng, err := NewEngine("BTCUSDT", []TFConfig{{
			Timeframe: time.Minute,
			Indicators: []Config{
				{Type: "sma", Period: 5},
				{Type: "ema", Period: 5},
				{Type: "rsi", Period: 5},
				{Type: "macd", Period: 26},
				{Type: "bbands", Period: 5},
			},
		}})
		if err != nil {
			t.Fatal(err)
		}
		return eng
	}

	prices := []float64{100, 101, 99, 103, 102, 104, 101, 105, 107, 103,
		106, 108, 104, 109, 111, 107, 110, 112, 108, 113,
		115, 111, 114, 116, 112, 117, 119, 115, 118, 120,
		116, 121, 123, 119, 122, 124, 120, 125, 127, 123}

	a, b := build(), build()
	for _, p := range prices {
		va := a.OnCandleClose(candle(p))
		vb := b.OnCandleClose(candle(p))
		if len(va) != len(vb) {
			t.Fatalf("replay diverged in emission count: %d vs %d", len(va), len(vb))
		}
		for i := range va {
			if va[i].Value != vb[i].Value {
				t.Fatalf("replay diverged: %s %v vs %v", va[i].IndicatorID, va[i].Value, vb[i].Value)
			}
			for k, v := range va[i].Fields {
				if vb[i].Fields[k] != v {
					t.Fatalf("replay diverged in field %s of %s", k, va[i].IndicatorID)
				}
			}
		}
	}
}
