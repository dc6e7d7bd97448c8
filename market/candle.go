package market

import "time"

// Candle represents OHLCV (Open, High, Low, Close, Volume) candlestick data
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	time.Time
}

// Typical returns the typical price (H+L+C)/3 used by volume-weighted averages.
func (c Candle) Typical() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Range returns the high-low span of the candle.
func (c Candle) Range() float64 { return c.High - c.Low }

// Closes extracts the close prices from a candle slice.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// LastN returns the trailing n candles, or the whole slice if it is shorter.
func LastN(candles []Candle, n int) []Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
