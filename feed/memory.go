package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"krait/market"
)

// maxBuffered bounds each symbol/timeframe buffer.
const maxBuffered = 500

// MemorySource buffers candles per symbol and timeframe. The stream client
// appends into it; the bot reads trailing windows out of it and checks
// staleness before trusting them.
type MemorySource struct {
	mu      sync.RWMutex
	buffers map[string]map[market.Timeframe][]market.Candle
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		buffers: make(map[string]map[market.Timeframe][]market.Candle),
	}
}

// Append adds a candle to the buffer. A candle with the same open time as the
// newest buffered one replaces it, so in-progress kline updates do not
// duplicate bars.
func (s *MemorySource) Append(symbol string, tf market.Timeframe, c market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTF, ok := s.buffers[symbol]
	if !ok {
		byTF = make(map[market.Timeframe][]market.Candle)
		s.buffers[symbol] = byTF
	}

	buf := byTF[tf]
	if n := len(buf); n > 0 && buf[n-1].Time.Equal(c.Time) {
		buf[n-1] = c
	} else {
		buf = append(buf, c)
	}
	if len(buf) > maxBuffered {
		buf = buf[len(buf)-maxBuffered:]
	}
	byTF[tf] = buf
}

// Seed replaces the buffer with a historical series, keeping the newest
// maxBuffered candles.
func (s *MemorySource) Seed(symbol string, tf market.Timeframe, candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTF, ok := s.buffers[symbol]
	if !ok {
		byTF = make(map[market.Timeframe][]market.Candle)
		s.buffers[symbol] = byTF
	}

	candles = market.LastN(candles, maxBuffered)
	buf := make([]market.Candle, len(candles))
	copy(buf, candles)
	byTF[tf] = buf
}

// History returns up to limit trailing candles. An empty buffer is an error:
// the caller must not run signal checks on missing data.
func (s *MemorySource) History(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[symbol][tf]
	if len(buf) == 0 {
		return nil, fmt.Errorf("no %s candles buffered for %q", tf, symbol)
	}

	buf = market.LastN(buf, limit)
	out := make([]market.Candle, len(buf))
	copy(out, buf)
	return out, nil
}

// Stale reports whether the newest candle is older than two full intervals at
// time now. An empty buffer is stale.
func (s *MemorySource) Stale(symbol string, tf market.Timeframe, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[symbol][tf]
	if len(buf) == 0 {
		return true
	}
	return now.Sub(buf[len(buf)-1].Time) > 2*tf.Duration()
}

// Status reports every buffer for a symbol, evaluated at time now.
func (s *MemorySource) Status(symbol string, now time.Time) map[market.Timeframe]TimeframeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[market.Timeframe]TimeframeStatus, len(market.Timeframes))
	for _, tf := range market.Timeframes {
		buf := s.buffers[symbol][tf]
		if len(buf) == 0 {
			out[tf] = TimeframeStatus{Stale: true}
			continue
		}
		latest := buf[len(buf)-1]
		out[tf] = TimeframeStatus{
			Available:   true,
			Count:       len(buf),
			Stale:       now.Sub(latest.Time) > 2*tf.Duration(),
			LatestTime:  latest.Time.UnixMilli(),
			LatestClose: latest.Close,
		}
	}
	return out
}
