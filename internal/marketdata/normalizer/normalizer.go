// Package normalizer validates raw price updates before they enter an
// instrument pipeline. Rejections are returned as typed errors so the caller
// can count them per reason; they are never fatal.
package normalizer

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"tibcore/internal/model"
)

// Rejection reasons.
var (
	ErrNoInstrument = errors.New("empty instrument")
	ErrBadPrice     = errors.New("non-positive price")
	ErrBadVolume    = errors.New("negative volume")
	ErrStale        = errors.New("tick older than tolerance")
	ErrFuture       = errors.New("tick timestamp beyond clock skew")
)

// Reason maps a rejection error to a short metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoInstrument):
		return "no_instrument"
	case errors.Is(err, ErrBadPrice):
		return "bad_price"
	case errors.Is(err, ErrBadVolume):
		return "bad_volume"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrFuture):
		return "future"
	default:
		return "other"
	}
}

// Normalizer stamps and validates incoming ticks. Safe for concurrent use;
// the sequence counter is the only shared state.
type Normalizer struct {
	maxAge  time.Duration // reject ticks older than this vs the ingest clock
	maxSkew time.Duration // reject ticks this far in the future
	seq     atomic.Uint64
	now     func() time.Time
}

// New creates a Normalizer with the given staleness tolerance.
func New(maxAge time.Duration) *Normalizer {
	return &Normalizer{
		maxAge:  maxAge,
		maxSkew: 5 * time.Second,
		now:     time.Now,
	}
}

// SetClock overrides the ingest clock, for tests.
func (n *Normalizer) SetClock(now func() time.Time) { n.now = now }

// Normalize validates a raw update and returns a stamped immutable Tick.
func (n *Normalizer) Normalize(instrument string, price, volume decimal.Decimal, exchangeTS time.Time) (model.Tick, error) {
	if instrument == "" {
		return model.Tick{}, ErrNoInstrument
	}
	if !price.IsPositive() {
		return model.Tick{}, ErrBadPrice
	}
	if volume.IsNegative() {
		return model.Tick{}, ErrBadVolume
	}

	ingest := n.now().UTC()
	if n.maxAge > 0 && ingest.Sub(exchangeTS) > n.maxAge {
		return model.Tick{}, ErrStale
	}
	if exchangeTS.Sub(ingest) > n.maxSkew {
		return model.Tick{}, ErrFuture
	}

	return model.Tick{
		Instrument: instrument,
		Price:      price,
		Volume:     volume,
		ExchangeTS: exchangeTS.UTC(),
		IngestTS:   ingest,
		Seq:        n.seq.Add(1),
	}, nil
}
