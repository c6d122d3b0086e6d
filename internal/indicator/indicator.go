// Package indicator provides incremental technical indicator calculations
// over closed candles.
//
// Every indicator consumes candle closes through Update and holds O(1)
// rolling state (the simple moving average and Bollinger Bands keep a fixed
// ring of their period, as their definitions require). During warm-up Ready
// is false and no value is emitted. Given an identical closed-candle
// sequence, every indicator reproduces an identical value sequence.
package indicator

import (
	"fmt"
	"strconv"

	"tibcore/internal/model"
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// ID returns the configured identity, e.g. "RSI_14" or "MACD_12_26_9".
	ID() string

	// Update feeds a closed candle and recalculates.
	Update(c model.Candle)

	// Value returns the primary line. Returns 0 until Ready.
	Value() float64

	// Fields returns secondary lines (nil for single-line indicators).
	// The returned map is freshly built per call.
	Fields() map[string]float64

	// Ready reports whether the warm-up window has been satisfied.
	Ready() bool
}

// Config specifies one indicator instance.
type Config struct {
	Type   string             `json:"type"` // sma | ema | rsi | macd | bbands | srlevels
	Period int                `json:"period"`
	Params map[string]float64 `json:"params,omitempty"`
}

// New constructs an indicator from its config. Unknown types and invalid
// periods are configuration errors, rejected at load time.
func New(cfg Config) (Indicator, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("indicator %q: period must be positive, got %d", cfg.Type, cfg.Period)
	}
	switch cfg.Type {
	case "sma":
		return NewSMA(cfg.Period), nil
	case "ema":
		return NewEMA(cfg.Period), nil
	case "rsi":
		return NewRSI(cfg.Period), nil
	case "macd":
		fast := intParam(cfg.Params, "fast", 12)
		slow := intParam(cfg.Params, "slow", 26)
		signal := intParam(cfg.Params, "signal", 9)
		if fast >= slow {
			return nil, fmt.Errorf("macd: fast period %d must be below slow period %d", fast, slow)
		}
		return NewMACD(fast, slow, signal), nil
	case "bbands":
		std := cfg.Params["std_dev"]
		if std <= 0 {
			std = 2.0
		}
		return NewBollinger(cfg.Period, std), nil
	case "srlevels":
		if cfg.Period < 3 {
			return nil, fmt.Errorf("srlevels: period must be at least 3, got %d", cfg.Period)
		}
		threshold := cfg.Params["threshold"]
		if threshold <= 0 {
			threshold = 0.02
		}
		return NewSRLevels(cfg.Period, threshold), nil
	default:
		return nil, fmt.Errorf("unknown indicator type %q", cfg.Type)
	}
}

func intParam(params map[string]float64, key string, fallback int) int {
	if v, ok := params[key]; ok && v > 0 {
		return int(v)
	}
	return fallback
}

// closePrice is the one decimal-to-float conversion point for indicator math.
func closePrice(c model.Candle) float64 {
	return c.Close.InexactFloat64()
}

func itoa(n int) string { return strconv.Itoa(n) }
