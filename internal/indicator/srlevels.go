package indicator

import (
	"tibcore/internal/model"
)

// SRLevels tracks support and resistance from pivot highs and lows.
//
// A candle at the center of the lookback window is a pivot high when every
// other high in the window stays below its high scaled by the tolerance,
// and a pivot low when every other low stays above its low scaled the same
// way. The most recent pivot of each kind becomes the current level.
// Detection lags by half the window since the center candle needs both
// neighborhoods filled.
type SRLevels struct {
	period    int
	threshold float64

	highs []float64
	lows  []float64
	idx   int
	count int

	support    float64
	resistance float64
	found      bool
}

// NewSRLevels creates a support/resistance tracker. Typical config is a
// 20-candle window with a 0.02 tolerance.
func NewSRLevels(period int, threshold float64) *SRLevels {
	return &SRLevels{
		period:    period,
		threshold: threshold,
		highs:     make([]float64, period),
		lows:      make([]float64, period),
	}
}

func (s *SRLevels) ID() string { return "SR_" + itoa(s.period) }

func (s *SRLevels) Update(c model.Candle) {
	s.highs[s.idx] = c.High.InexactFloat64()
	s.lows[s.idx] = c.Low.InexactFloat64()
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}

	// s.idx is the oldest slot now; the window center sits period/2 ahead.
	center := (s.idx + s.period/2) % s.period

	if s.isPivotHigh(center) {
		s.resistance = s.highs[center]
		s.found = true
	}
	if s.isPivotLow(center) {
		s.support = s.lows[center]
		s.found = true
	}
}

func (s *SRLevels) isPivotHigh(center int) bool {
	bound := s.highs[center] * (1 + s.threshold)
	for i := 0; i < s.period; i++ {
		if i == center {
			continue
		}
		if s.highs[i] >= bound {
			return false
		}
	}
	return true
}

func (s *SRLevels) isPivotLow(center int) bool {
	bound := s.lows[center] * (1 - s.threshold)
	for i := 0; i < s.period; i++ {
		if i == center {
			continue
		}
		if s.lows[i] <= bound {
			return false
		}
	}
	return true
}

// Value returns the current resistance level.
func (s *SRLevels) Value() float64 { return s.resistance }

func (s *SRLevels) Fields() map[string]float64 {
	return map[string]float64{
		"support":    s.support,
		"resistance": s.resistance,
	}
}

// Ready reports whether at least one pivot has been identified.
func (s *SRLevels) Ready() bool { return s.found }
