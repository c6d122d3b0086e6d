package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SimConfig configures the random-walk simulator.
type SimConfig struct {
	Instruments []string
	StartPrice  float64       // initial price per instrument
	Volatility  float64       // per-step stddev as a fraction of price
	Interval    time.Duration // delay between ticks per instrument
	Seed        int64
}

func (c *SimConfig) defaults() {
	if c.StartPrice <= 0 {
		c.StartPrice = 50000
	}
	if c.Volatility <= 0 {
		c.Volatility = 0.0005
	}
	if c.Interval <= 0 {
		c.Interval = 200 * time.Millisecond
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// SimFeed generates a geometric random walk per instrument, useful for
// offline runs and demos where no exchange connectivity exists.
type SimFeed struct {
	cfg SimConfig
	log zerolog.Logger
}

// NewSim creates a simulator feed.
func NewSim(cfg SimConfig, log zerolog.Logger) *SimFeed {
	cfg.defaults()
	return &SimFeed{cfg: cfg, log: log}
}

// Run emits ticks until ctx is cancelled.
func (f *SimFeed) Run(ctx context.Context, handle Handler) error {
	rng := rand.New(rand.NewSource(f.cfg.Seed))
	prices := make(map[string]float64, len(f.cfg.Instruments))
	for _, inst := range f.cfg.Instruments {
		prices[inst] = f.cfg.StartPrice
	}

	f.log.Info().Strs("instruments", f.cfg.Instruments).Msg("sim feed started")

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := time.Now().UTC()
			for _, inst := range f.cfg.Instruments {
				step := rng.NormFloat64() * f.cfg.Volatility
				prices[inst] *= math.Exp(step)
				price := decimal.NewFromFloat(prices[inst]).Round(2)
				volume := decimal.NewFromFloat(rng.Float64() * 2).Round(4)
				if err := handle(inst, price, volume, now); err != nil {
					f.log.Debug().Err(err).Str("instrument", inst).Msg("tick rejected")
				}
			}
		}
	}
}
