package indicators

import "krait/market"

// Trend direction labels shared across timeframe analysis.
const (
	TrendBullish = "BULLISH"
	TrendBearish = "BEARISH"
	TrendNeutral = "NEUTRAL"
)

// Trend classifies direction from price relative to VWAP.
// Returns NEUTRAL when there is no data, no VWAP, or price sits exactly on it.
func Trend(candles []market.Candle, vwap float64) string {
	if len(candles) == 0 || vwap == 0 {
		return TrendNeutral
	}

	price := candles[len(candles)-1].Close
	switch {
	case price > vwap:
		return TrendBullish
	case price < vwap:
		return TrendBearish
	}
	return TrendNeutral
}
