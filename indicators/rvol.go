package indicators

import "krait/market"

// RVOL calculates relative volume: the last candle's volume divided by the
// average volume of the preceding period candles. Returns 0 when fewer than
// period+1 candles are available or the historical average is zero.
func RVOL(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	hist := candles[len(candles)-period-1 : len(candles)-1]

	var avg float64
	for _, c := range hist {
		avg += c.Volume
	}
	avg /= float64(len(hist))

	if avg == 0 {
		return 0
	}
	return candles[len(candles)-1].Volume / avg
}
