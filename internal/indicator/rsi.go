package indicator

import "tibcore/internal/model"

// RSI overbought/oversold bands, exposed as fields on every value.
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// O(1) per candle, no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates an RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) ID() string { return "RSI_" + itoa(r.period) }

func (r *RSI) Update(c model.Candle) {
	price := closePrice(c)
	r.count++

	if r.count == 1 {
		// First candle just records the price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			// First RSI value using SMA seed
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avg = (prevAvg*(period-1) + delta) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }

func (r *RSI) Fields() map[string]float64 {
	f := map[string]float64{"overbought": 0, "oversold": 0}
	if r.current > rsiOverbought {
		f["overbought"] = 1
	}
	if r.current < rsiOversold {
		f["oversold"] = 1
	}
	return f
}

func (r *RSI) Ready() bool { return r.count > r.period }
