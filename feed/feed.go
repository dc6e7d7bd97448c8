// Package feed supplies candle data to the strategy pipeline: an in-memory
// buffer with staleness checks for live trading, and a websocket kline stream
// that keeps it current.
package feed

import (
	"context"

	"krait/market"
)

// CandleSource delivers trailing candle windows per symbol and timeframe.
type CandleSource interface {
	History(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// TimeframeStatus describes one symbol/timeframe buffer.
type TimeframeStatus struct {
	Available   bool
	Count       int
	Stale       bool
	LatestTime  int64 // unix ms of the newest candle, 0 when empty
	LatestClose float64
}
