package indicator

import (
	"math"

	"tibcore/internal/model"
)

// Bollinger calculates Bollinger Bands: a period SMA middle band with upper
// and lower bands at stdDev population standard deviations.
//
// Rolling sum and sum-of-squares keep the update O(1); the fixed ring holds
// the lookback window the definition requires.
type Bollinger struct {
	period int
	stdDev float64

	buf   []float64
	idx   int
	count int
	sum   float64
	sumSq float64

	middle float64
	upper  float64
	lower  float64
}

// NewBollinger creates a Bollinger Bands indicator. Typical config is a
// 20-period window at 2.0 standard deviations.
func NewBollinger(period int, stdDev float64) *Bollinger {
	return &Bollinger{
		period: period,
		stdDev: stdDev,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) ID() string { return "BBANDS_" + itoa(b.period) }

func (b *Bollinger) Update(c model.Candle) {
	price := closePrice(c)

	if b.count >= b.period {
		old := b.buf[b.idx]
		b.sum -= old
		b.sumSq -= old * old
	}

	b.buf[b.idx] = price
	b.sum += price
	b.sumSq += price * price
	b.idx = (b.idx + 1) % b.period
	b.count++

	if b.count < b.period {
		return
	}

	n := float64(b.period)
	b.middle = b.sum / n
	variance := b.sumSq/n - b.middle*b.middle
	if variance < 0 {
		variance = 0 // rounding guard
	}
	band := b.stdDev * math.Sqrt(variance)
	b.upper = b.middle + band
	b.lower = b.middle - band
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.middle }

func (b *Bollinger) Fields() map[string]float64 {
	return map[string]float64{
		"upper": b.upper,
		"lower": b.lower,
	}
}

func (b *Bollinger) Ready() bool { return b.count >= b.period }
