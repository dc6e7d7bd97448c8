package indicators

import (
	"time"

	"krait/market"
)

// VWAP calculates the volume weighted average price anchored at the given time.
// Candles before the anchor are ignored. Returns 0 when no anchored candles
// exist or total volume is zero.
//
//	VWAP = Σ(typical price × volume) / Σ(volume)
func VWAP(candles []market.Candle, anchor time.Time) float64 {
	var tpv, vol float64

	for _, c := range candles {
		if c.Time.Before(anchor) {
			continue
		}
		tpv += c.Typical() * c.Volume
		vol += c.Volume
	}

	if vol == 0 {
		return 0
	}
	return tpv / vol
}

// WeeklyVWAP anchors VWAP at the most recent Monday 00:00 UTC relative to the
// last candle.
func WeeklyVWAP(candles []market.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return VWAP(candles, market.WeekAnchor(candles[len(candles)-1].Time))
}
