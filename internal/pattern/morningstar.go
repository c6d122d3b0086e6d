package pattern

import (
	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

// morningStar matches a three-candle bullish reversal: a decisive bearish
// candle, a small-bodied middle candle, then a bullish candle closing above
// the midpoint of the first body.
type morningStar struct {
	tolerance decimal.Decimal // max middle-body-to-first-body ratio
}

func newMorningStar(tolerance float64) *morningStar {
	if tolerance == 0 {
		tolerance = 0.3
	}
	return &morningStar{tolerance: decimal.NewFromFloat(tolerance)}
}

func (m *morningStar) ID() string    { return "morning_star" }
func (m *morningStar) Lookback() int { return 3 }

func (m *morningStar) Match(window []model.Candle) (string, float64, bool) {
	first, middle, last := window[0], window[1], window[2]

	if !first.Bearish() || !last.Bullish() {
		return "", 0, false
	}
	firstBody := first.Body()
	if firstBody.IsZero() {
		return "", 0, false
	}
	if middle.Body().GreaterThan(firstBody.Mul(m.tolerance)) {
		return "", 0, false
	}
	// Last candle must reclaim at least half of the first body.
	midpoint := first.Close.Add(firstBody.Div(decimal.NewFromInt(2)))
	if last.Close.GreaterThan(midpoint) {
		return model.DirectionBullish, morningStarConfidence, true
	}
	return "", 0, false
}
