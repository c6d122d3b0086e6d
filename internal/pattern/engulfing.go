package pattern

import "tibcore/internal/model"

// engulfing matches a two-candle reversal where the current body fully
// engulfs the previous body in the opposite direction.
type engulfing struct {
	bullish bool
}

func newEngulfing(bullish bool) *engulfing {
	return &engulfing{bullish: bullish}
}

func (e *engulfing) ID() string {
	if e.bullish {
		return "engulfing_bullish"
	}
	return "engulfing_bearish"
}

func (e *engulfing) Lookback() int { return 2 }

func (e *engulfing) Match(window []model.Candle) (string, float64, bool) {
	prev, cur := window[0], window[1]

	if e.bullish {
		if prev.Bearish() && cur.Bullish() &&
			cur.Open.LessThan(prev.Close) &&
			cur.Close.GreaterThan(prev.Open) {
			return model.DirectionBullish, engulfingConfidence, true
		}
		return "", 0, false
	}

	if prev.Bullish() && cur.Bearish() &&
		cur.Open.GreaterThan(prev.Close) &&
		cur.Close.LessThan(prev.Open) {
		return model.DirectionBearish, engulfingConfidence, true
	}
	return "", 0, false
}
