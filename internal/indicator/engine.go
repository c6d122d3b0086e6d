package indicator

import (
	"fmt"
	"time"

	"tibcore/internal/model"
)

// TFConfig groups indicator configs for one timeframe.
type TFConfig struct {
	Timeframe  time.Duration
	Indicators []Config
}

type tfSet struct {
	tf         time.Duration
	indicators []Indicator
}

// Engine computes all configured indicators for one instrument across its
// timeframes. Designed for single-goroutine usage inside the instrument
// pipeline; no locks needed.
type Engine struct {
	instrument string
	sets       []tfSet
}

// NewEngine builds the indicator instances for an instrument. Invalid
// indicator configs are rejected here, at load time.
func NewEngine(instrument string, cfgs []TFConfig) (*Engine, error) {
	sets := make([]tfSet, 0, len(cfgs))
	for _, cfg := range cfgs {
		set := tfSet{tf: cfg.Timeframe}
		for _, ic := range cfg.Indicators {
			ind, err := New(ic)
			if err != nil {
				return nil, fmt.Errorf("timeframe %s: %w", cfg.Timeframe, err)
			}
			set.indicators = append(set.indicators, ind)
		}
		sets = append(sets, set)
	}
	return &Engine{instrument: instrument, sets: sets}, nil
}

// OnCandleClose updates every indicator configured for the candle's
// timeframe and returns the values of those past warm-up. Indicators still
// warming up emit nothing.
func (e *Engine) OnCandleClose(c model.Candle) []model.IndicatorValue {
	set := e.set(c.Timeframe)
	if set == nil {
		return nil
	}

	values := make([]model.IndicatorValue, 0, len(set.indicators))
	for _, ind := range set.indicators {
		ind.Update(c)
		if !ind.Ready() {
			continue
		}
		values = append(values, model.IndicatorValue{
			Instrument:  e.instrument,
			Timeframe:   c.Timeframe,
			IndicatorID: ind.ID(),
			TS:          c.OpenTime,
			Value:       ind.Value(),
			Fields:      ind.Fields(),
		})
	}
	return values
}

// Current returns the latest value of every ready indicator for tf, used by
// the snapshot API. ts is stamped on the returned values.
func (e *Engine) Current(tf time.Duration, ts time.Time) []model.IndicatorValue {
	set := e.set(tf)
	if set == nil {
		return nil
	}
	values := make([]model.IndicatorValue, 0, len(set.indicators))
	for _, ind := range set.indicators {
		if !ind.Ready() {
			continue
		}
		values = append(values, model.IndicatorValue{
			Instrument:  e.instrument,
			Timeframe:   tf,
			IndicatorID: ind.ID(),
			TS:          ts,
			Value:       ind.Value(),
			Fields:      ind.Fields(),
		})
	}
	return values
}

func (e *Engine) set(tf time.Duration) *tfSet {
	for i := range e.sets {
		if e.sets[i].tf == tf {
			return &e.sets[i]
		}
	}
	return nil
}
