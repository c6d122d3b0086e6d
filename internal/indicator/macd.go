package indicator

import "tibcore/internal/model"

// MACD calculates Moving Average Convergence Divergence: the difference
// between a fast and a slow EMA, with a signal EMA over the MACD line.
//
// Fields carry the signal and histogram lines plus crossover flags
// (bullish_cross / bearish_cross as 0 or 1) detected between the last two
// updates.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	macd       float64
	prevMACD   float64
	prevSignal float64
	havePrev   bool

	bullishCross bool
	bearishCross bool
}

// NewMACD creates a MACD indicator. Typical periods are 12, 26, 9.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) ID() string {
	return "MACD_" + itoa(m.fast.period) + "_" + itoa(m.slow.period) + "_" + itoa(m.signal.period)
}

func (m *MACD) Update(c model.Candle) {
	price := closePrice(c)
	m.fast.update(price)
	m.slow.update(price)

	if !m.slow.Ready() {
		return
	}

	m.macd = m.fast.Value() - m.slow.Value()
	m.signal.update(m.macd)

	if !m.signal.Ready() {
		return
	}

	sig := m.signal.Value()
	m.bullishCross = m.havePrev && m.prevMACD < m.prevSignal && m.macd > sig
	m.bearishCross = m.havePrev && m.prevMACD > m.prevSignal && m.macd < sig

	m.prevMACD = m.macd
	m.prevSignal = sig
	m.havePrev = true
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.macd }

func (m *MACD) Fields() map[string]float64 {
	f := map[string]float64{
		"signal":        m.signal.Value(),
		"histogram":     m.macd - m.signal.Value(),
		"bullish_cross": 0,
		"bearish_cross": 0,
	}
	if m.bullishCross {
		f["bullish_cross"] = 1
	}
	if m.bearishCross {
		f["bearish_cross"] = 1
	}
	return f
}

// Ready requires the signal line to be seeded, i.e. slow+signal closes.
func (m *MACD) Ready() bool { return m.signal.Ready() }
