package indicator

import "tibcore/internal/model"

// EMA calculates an exponential moving average, seeded with an SMA of the
// first period closes. O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates an EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) ID() string { return "EMA_" + itoa(e.period) }

func (e *EMA) Update(c model.Candle) {
	e.update(closePrice(c))
}

// update is shared with MACD, which feeds its signal line from macd values
// rather than candle closes.
func (e *EMA) update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for the initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = price*multiplier + prev*(1-multiplier)
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64             { return e.current }
func (e *EMA) Fields() map[string]float64 { return nil }
func (e *EMA) Ready() bool                { return e.count >= e.period }
