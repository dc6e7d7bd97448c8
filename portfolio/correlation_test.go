package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"krait/market"
)

var t0 = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func dailyCandles(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
			Time:   t0.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func closesFromReturns(start float64, rets []float64) []float64 {
	out := make([]float64, 0, len(rets)+1)
	out = append(out, start)
	c := start
	for _, r := range rets {
		c *= 1 + r
		out = append(out, c)
	}
	return out
}

// alternatingReturns avoids the degenerate constant-return series, whose
// variance is zero and whose correlation is undefined.
func alternatingReturns(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.01
		} else {
			out[i] = 0.02
		}
	}
	return out
}

func TestCorrelation_PerfectlyPositive(t *testing.T) {
	t.Parallel()

	rets := alternatingReturns(29)
	a := dailyCandles(closesFromReturns(100, rets))
	b := dailyCandles(closesFromReturns(2000, rets))

	assert.InDelta(t, 1.0, Correlation(a, b), 1e-9)
}

func TestCorrelation_PerfectlyNegative(t *testing.T) {
	t.Parallel()

	rets := alternatingReturns(29)
	inverse := make([]float64, len(rets))
	for i, r := range rets {
		inverse[i] = -r
	}

	a := dailyCandles(closesFromReturns(100, rets))
	b := dailyCandles(closesFromReturns(2000, inverse))

	assert.InDelta(t, -1.0, Correlation(a, b), 1e-9)
}

func TestCorrelation_ZeroVariance(t *testing.T) {
	t.Parallel()

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}

	a := dailyCandles(flat)
	b := dailyCandles(closesFromReturns(2000, alternatingReturns(29)))

	assert.Zero(t, Correlation(a, b), "undefined correlation collapses to zero")
}

func TestCorrelation_InsufficientData(t *testing.T) {
	t.Parallel()

	short := dailyCandles(closesFromReturns(100, alternatingReturns(10)))
	long := dailyCandles(closesFromReturns(2000, alternatingReturns(29)))

	assert.Zero(t, Correlation(short, long))
	assert.Zero(t, Correlation(long, short))
}
