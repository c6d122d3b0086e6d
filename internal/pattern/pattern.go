// Package pattern detects multi-candle chart patterns over a sliding window
// of closed candles.
//
// Matchers are pure functions of price geometry: the same candle window
// always produces the same result, independent of any indicator state.
// Each matcher declares a fixed lookback and is evaluated against the tail
// of the window on every candle close; matchers are independent and several
// may fire on the same window.
package pattern

import (
	"fmt"

	"tibcore/internal/model"
)

// Matcher recognizes one pattern over a trailing candle window.
type Matcher interface {
	// ID returns the pattern identifier, e.g. "doji".
	ID() string

	// Lookback returns how many trailing candles the matcher inspects.
	Lookback() int

	// Match evaluates exactly Lookback() candles, oldest first, and
	// reports direction and base confidence on a hit.
	Match(window []model.Candle) (direction string, confidence float64, ok bool)
}

// Config enables one matcher with an optional tolerance override.
// A zero tolerance selects the matcher's default.
type Config struct {
	ID        string  `json:"id"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

// Base confidence weights per pattern.
const (
	dojiConfidence        = 0.6
	hammerConfidence      = 0.7
	shootingConfidence    = 0.7
	engulfingConfidence   = 0.8
	morningStarConfidence = 0.75
)

// NewMatcher constructs a matcher from its config. Unknown IDs are
// configuration errors, rejected at load time.
func NewMatcher(cfg Config) (Matcher, error) {
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("pattern %q: tolerance must not be negative", cfg.ID)
	}
	switch cfg.ID {
	case "doji":
		return newDoji(cfg.Tolerance), nil
	case "hammer":
		return newHammer(cfg.Tolerance), nil
	case "shooting_star":
		return newShootingStar(cfg.Tolerance), nil
	case "engulfing_bullish":
		return newEngulfing(true), nil
	case "engulfing_bearish":
		return newEngulfing(false), nil
	case "morning_star":
		return newMorningStar(cfg.Tolerance), nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", cfg.ID)
	}
}

// DefaultConfigs enables the full matcher library at default tolerances.
func DefaultConfigs() []Config {
	return []Config{
		{ID: "doji"},
		{ID: "hammer"},
		{ID: "shooting_star"},
		{ID: "engulfing_bullish"},
		{ID: "engulfing_bearish"},
		{ID: "morning_star"},
	}
}
