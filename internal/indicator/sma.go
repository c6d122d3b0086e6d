package indicator

import "tibcore/internal/model"

// SMA calculates a simple moving average over a rolling window.
// Uses a preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates an SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) ID() string { return "SMA_" + itoa(s.period) }

func (s *SMA) Update(c model.Candle) {
	price := closePrice(c)

	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64              { return s.current }
func (s *SMA) Fields() map[string]float64  { return nil }
func (s *SMA) Ready() bool                 { return s.count >= s.period }
