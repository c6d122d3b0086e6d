package pattern

import (
	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

// doji matches a candle whose body is at most tolerance of its full range,
// signalling indecision. Direction is neutral.
type doji struct {
	tolerance decimal.Decimal
}

func newDoji(tolerance float64) *doji {
	if tolerance == 0 {
		tolerance = 0.1
	}
	return &doji{tolerance: decimal.NewFromFloat(tolerance)}
}

func (d *doji) ID() string    { return "doji" }
func (d *doji) Lookback() int { return 1 }

func (d *doji) Match(window []model.Candle) (string, float64, bool) {
	c := window[0]
	if c.Range().IsZero() {
		return "", 0, false
	}
	if c.Body().LessThanOrEqual(c.Range().Mul(d.tolerance)) {
		return model.DirectionNeutral, dojiConfidence, true
	}
	return "", 0, false
}
