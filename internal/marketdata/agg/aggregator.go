// Package agg folds normalized ticks into OHLCV candles across every
// configured timeframe for a single instrument. It owns timeframe boundary
// logic, the grace window for late ticks, and gap filling.
//
// The aggregator is driven inline by the pipeline goroutine: Ingest for each
// tick and CloseBoundaryCheck on a wall-clock timer, so a halted feed still
// closes candles on schedule. Closed candles are final; late data never
// mutates them.
package agg

import (
	"time"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
	"tibcore/internal/ringbuf"
)

// tfState holds the open candle and closed-candle history for one timeframe.
type tfState struct {
	started bool
	open    model.Candle
	history *ringbuf.Ring[model.Candle]
}

// Aggregator builds candles for one instrument across multiple timeframes.
// Not safe for concurrent use; owned by the instrument's pipeline goroutine.
type Aggregator struct {
	instrument string
	tfs        []time.Duration
	states     []*tfState
	grace      time.Duration

	rejected uint64

	// OnReject is called when a tick older than the grace window is
	// dropped (optional metrics hook).
	OnReject func()
}

// New creates an aggregator. historySize bounds the closed-candle ring per
// timeframe and must cover the longest indicator/pattern lookback.
func New(instrument string, tfs []time.Duration, grace time.Duration, historySize int) *Aggregator {
	states := make([]*tfState, len(tfs))
	for i := range states {
		states[i] = &tfState{history: ringbuf.New[model.Candle](historySize)}
	}
	return &Aggregator{
		instrument: instrument,
		tfs:        tfs,
		states:     states,
		grace:      grace,
	}
}

// Timeframes returns the configured timeframes.
func (a *Aggregator) Timeframes() []time.Duration { return a.tfs }

// Rejected returns the count of late ticks dropped beyond the grace window.
func (a *Aggregator) Rejected() uint64 { return a.rejected }

// Ingest routes a tick to the open candle of every timeframe, returning any
// candles it closed.
func (a *Aggregator) Ingest(t model.Tick) []model.Candle {
	var closed []model.Candle
	for i, tf := range a.tfs {
		closed = a.ingestTF(a.states[i], tf, t, closed)
	}
	return closed
}

func (a *Aggregator) ingestTF(st *tfState, tf time.Duration, t model.Tick, closed []model.Candle) []model.Candle {
	bucket := t.ExchangeTS.Truncate(tf)

	if !st.started {
		st.open = a.newCandle(tf, bucket, t)
		st.started = true
		return closed
	}

	cur := st.open.OpenTime
	switch {
	case bucket.Equal(cur):
		extend(&st.open, t)

	case bucket.After(cur):
		closed = a.roll(st, tf, bucket, closed)
		extend(&st.open, t)

	default:
		// Tick belongs to an already-closed window. Within the grace
		// window it is folded into the current candle instead of being
		// applied retroactively; beyond it the tick is dropped.
		if cur.Sub(t.ExchangeTS) <= a.grace {
			extend(&st.open, t)
		} else {
			a.rejected++
			if a.OnReject != nil {
				a.OnReject()
			}
		}
	}
	return closed
}

// CloseBoundaryCheck closes any candle whose window has elapsed, even absent
// a new tick, and opens the next candle gap-filled at the previous close.
// Returns the candles closed.
func (a *Aggregator) CloseBoundaryCheck(now time.Time) []model.Candle {
	var closed []model.Candle
	for i, tf := range a.tfs {
		st := a.states[i]
		if !st.started {
			continue
		}
		// Roll forward until the open candle's window contains now.
		// Each roll emits one closed candle and opens a synthetic
		// successor, so a stalled instrument keeps producing candles
		// on schedule.
		for !st.open.CloseTime.After(now) {
			closed = a.roll(st, tf, st.open.OpenTime.Add(tf), closed)
		}
	}
	return closed
}

// roll closes the current candle and opens candles forward until one starts
// at target. Intermediate windows become synthetic candles carried at the
// previous close.
func (a *Aggregator) roll(st *tfState, tf time.Duration, target time.Time, closed []model.Candle) []model.Candle {
	for !st.open.OpenTime.Equal(target) {
		st.open.Closed = true
		st.history.Push(st.open)
		closed = append(closed, st.open)

		prevClose := st.open.Close
		next := st.open.OpenTime.Add(tf)
		// A long outage would otherwise synthesize one candle per
		// missed window; jump straight to the target past the history
		// horizon since nothing can observe the skipped candles.
		if target.Sub(next) > tf*time.Duration(st.history.Cap()) {
			next = target
		}
		st.open = model.Candle{
			Instrument: a.instrument,
			Timeframe:  tf,
			OpenTime:   next,
			CloseTime:  next.Add(tf),
			Open:       prevClose,
			High:       prevClose,
			Low:        prevClose,
			Close:      prevClose,
			Volume:     decimal.Zero,
			Synthetic:  true,
		}
	}
	return closed
}

func (a *Aggregator) newCandle(tf time.Duration, bucket time.Time, t model.Tick) model.Candle {
	return model.Candle{
		Instrument: a.instrument,
		Timeframe:  tf,
		OpenTime:   bucket,
		CloseTime:  bucket.Add(tf),
		Open:       t.Price,
		High:       t.Price,
		Low:        t.Price,
		Close:      t.Price,
		Volume:     t.Volume,
		Ticks:      1,
	}
}

// extend folds a tick into an open candle. A synthetic candle keeps its
// gap-filled open (so high >= max(open, close) always holds) but stops being
// synthetic once real trades arrive.
func extend(c *model.Candle, t model.Tick) {
	c.Synthetic = false
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume = c.Volume.Add(t.Volume)
	c.Ticks++
}

// Window returns up to n most recent closed candles for tf, oldest first.
func (a *Aggregator) Window(tf time.Duration, n int) []model.Candle {
	for i, d := range a.tfs {
		if d == tf {
			return a.states[i].history.Last(n)
		}
	}
	return nil
}

// LatestClosed returns the most recent closed candle for tf.
func (a *Aggregator) LatestClosed(tf time.Duration) (model.Candle, bool) {
	for i, d := range a.tfs {
		if d == tf {
			return a.states[i].history.Latest()
		}
	}
	return model.Candle{}, false
}

// OpenCandle returns a copy of the currently forming candle for tf.
func (a *Aggregator) OpenCandle(tf time.Duration) (model.Candle, bool) {
	for i, d := range a.tfs {
		if d == tf && a.states[i].started {
			return a.states[i].open, true
		}
	}
	return model.Candle{}, false
}
