package pattern

import (
	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

// Hammer and shooting star share the same geometry mirrored: one shadow at
// least twice the body, the opposite shadow at most tolerance of the body.

type hammer struct {
	tolerance decimal.Decimal // max opposite-shadow-to-body ratio
}

func newHammer(tolerance float64) *hammer {
	if tolerance == 0 {
		tolerance = 0.5
	}
	return &hammer{tolerance: decimal.NewFromFloat(tolerance)}
}

func (h *hammer) ID() string    { return "hammer" }
func (h *hammer) Lookback() int { return 1 }

func (h *hammer) Match(window []model.Candle) (string, float64, bool) {
	c := window[0]
	body := c.Body()
	if body.IsZero() {
		return "", 0, false
	}
	longLower := c.LowerShadow().GreaterThan(body.Mul(decimal.NewFromInt(2)))
	shortUpper := c.UpperShadow().LessThan(body.Mul(h.tolerance))
	if longLower && shortUpper {
		return model.DirectionBullish, hammerConfidence, true
	}
	return "", 0, false
}

type shootingStar struct {
	tolerance decimal.Decimal
}

func newShootingStar(tolerance float64) *shootingStar {
	if tolerance == 0 {
		tolerance = 0.5
	}
	return &shootingStar{tolerance: decimal.NewFromFloat(tolerance)}
}

func (s *shootingStar) ID() string    { return "shooting_star" }
func (s *shootingStar) Lookback() int { return 1 }

func (s *shootingStar) Match(window []model.Candle) (string, float64, bool) {
	c := window[0]
	body := c.Body()
	if body.IsZero() {
		return "", 0, false
	}
	longUpper := c.UpperShadow().GreaterThan(body.Mul(decimal.NewFromInt(2)))
	shortLower := c.LowerShadow().LessThan(body.Mul(s.tolerance))
	if longUpper && shortLower {
		return model.DirectionBearish, shootingConfidence, true
	}
	return "", 0, false
}
