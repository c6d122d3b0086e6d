// Package feed contains the market data sources that push raw price
// updates into the analysis core. A feed is an external collaborator: it
// only calls the Handler, it never reaches into pipeline state.
package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Handler receives one raw price update. The supervisor's PushTick
// satisfies it. Implementations must not block.
type Handler func(instrument string, price, volume decimal.Decimal, exchangeTS time.Time) error

// Feed is a market data source. Run blocks until ctx is cancelled,
// reconnecting internally as needed.
type Feed interface {
	Run(ctx context.Context, handle Handler) error
}
