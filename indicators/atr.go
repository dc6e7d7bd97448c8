package indicators

import (
	"math"

	"krait/market"
)

// ATR calculates the Average True Range over the given period.
// The first value is a simple average of true ranges; remaining values are
// smoothed with an EMA (multiplier 2/(period+1)). Returns 0 when fewer than
// period+1 candles are available.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	var atr float64
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(trs); i++ {
		atr = trs[i]*k + atr*(1-k)
	}

	return atr
}

// trueRange calculates the True Range for a candle given the previous candle
func trueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}
