package backtest

import (
	"time"

	"krait/market"
)

// syncIndex maps reference-timeframe timestamps to the index of the most
// recent candle at or before that timestamp in each slower timeframe. Built
// once per run so per-bar lookups are O(1).
type syncIndex map[market.Timeframe]map[int64]int

func buildSyncIndex(ref []market.Candle, others map[market.Timeframe][]market.Candle) syncIndex {
	idx := make(syncIndex, len(others))

	for tf, candles := range others {
		if len(candles) == 0 {
			continue
		}

		m := make(map[int64]int, len(ref))
		j := -1
		for _, rc := range ref {
			for j+1 < len(candles) && !candles[j+1].Time.After(rc.Time) {
				j++
			}
			if j >= 0 {
				m[rc.Time.UnixMilli()] = j
			}
		}
		idx[tf] = m
	}

	return idx
}

// at returns the index of the nearest at-or-before candle in tf for the
// reference timestamp, or false when tf has no candle that old.
func (s syncIndex) at(tf market.Timeframe, t time.Time) (int, bool) {
	i, ok := s[tf][t.UnixMilli()]
	return i, ok
}
