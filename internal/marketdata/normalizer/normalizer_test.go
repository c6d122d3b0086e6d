package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalize_StampsAndSequences(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	n := New(time.Minute)
	n.SetClock(func() time.Time { return now })

	t1, err := n.Normalize("BTCUSDT", decimal.NewFromInt(50000), decimal.NewFromInt(1), now)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := n.Normalize("BTCUSDT", decimal.NewFromInt(50001), decimal.NewFromInt(1), now)
	if err != nil {
		t.Fatal(err)
	}

	if t1.Instrument != "BTCUSDT" {
		t.Errorf("instrument %q", t1.Instrument)
	}
	if !t1.IngestTS.Equal(now) {
		t.Errorf("ingest ts %s", t1.IngestTS)
	}
	if t2.Seq <= t1.Seq {
		t.Errorf("sequence not monotonic: %d then %d", t1.Seq, t2.Seq)
	}
}

func TestNormalize_Rejections(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	n := New(time.Minute)
	n.SetClock(func() time.Time { return now })

	one := decimal.NewFromInt(1)
	cases := []struct {
		name       string
		instrument string
		price      decimal.Decimal
		volume     decimal.Decimal
		ts         time.Time
		want       error
		reason     string
	}{
		{"empty instrument", "", one, one, now, ErrNoInstrument, "no_instrument"},
		{"zero price", "BTCUSDT", decimal.Zero, one, now, ErrBadPrice, "bad_price"},
		{"negative price", "BTCUSDT", decimal.NewFromInt(-5), one, now, ErrBadPrice, "bad_price"},
		{"negative volume", "BTCUSDT", one, decimal.NewFromInt(-1), now, ErrBadVolume, "bad_volume"},
		{"stale", "BTCUSDT", one, one, now.Add(-2 * time.Minute), ErrStale, "stale"},
		{"future", "BTCUSDT", one, one, now.Add(10 * time.Second), ErrFuture, "future"},
	}

	for _, tc := range cases {
		_, err := n.Normalize(tc.instrument, tc.price, tc.volume, tc.ts)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
		if Reason(err) != tc.reason {
			t.Errorf("%s: reason %q, want %q", tc.name, Reason(err), tc.reason)
		}
	}
}

func TestNormalize_ZeroVolumeAllowed(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	n := New(time.Minute)
	n.SetClock(func() time.Time { return now })

	if _, err := n.Normalize("BTCUSDT", decimal.NewFromInt(1), decimal.Zero, now); err != nil {
		t.Errorf("zero volume rejected: %v", err)
	}
}
