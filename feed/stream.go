package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"krait/logging"
	"krait/market"
)

const (
	readTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	pingInterval  = 20 * time.Second
	maxReconnects = 5
)

// klineEvent is the exchange kline stream payload.
type klineEvent struct {
	Event string `json:"e"`
	Kline struct {
		Start    int64  `json:"t"`
		Symbol   string `json:"s"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// parseKline decodes a kline stream message. Combined-stream frames wrap the
// event in a {"stream":..., "data":...} envelope.
func parseKline(raw []byte) (symbol string, tf market.Timeframe, c market.Candle, closed bool, err error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err = json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}

	var ev klineEvent
	if err = json.Unmarshal(raw, &ev); err != nil {
		return "", "", market.Candle{}, false, err
	}
	if ev.Event != "kline" {
		return "", "", market.Candle{}, false, fmt.Errorf("not a kline event: %q", ev.Event)
	}

	tf, err = market.ParseTimeframe(ev.Kline.Interval)
	if err != nil {
		return "", "", market.Candle{}, false, err
	}

	fields := [5]string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume}
	var vals [5]float64
	for i, f := range fields {
		if vals[i], err = strconv.ParseFloat(f, 64); err != nil {
			return "", "", market.Candle{}, false, fmt.Errorf("bad kline field %q: %w", f, err)
		}
	}

	c = market.Candle{
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
		Time:   time.UnixMilli(ev.Kline.Start).UTC(),
	}
	return ev.Kline.Symbol, tf, c, ev.Kline.Closed, nil
}

// streamName builds one kline stream name, e.g. "btcusdt@kline_15m".
func streamName(symbol string, tf market.Timeframe) string {
	return strings.ToLower(symbol) + "@kline_" + string(tf)
}

// StreamURL builds a combined-stream URL for every symbol/timeframe pair.
func StreamURL(base string, symbols []string, tfs []market.Timeframe) string {
	names := make([]string, 0, len(symbols)*len(tfs))
	for _, sym := range symbols {
		for _, tf := range tfs {
			names = append(names, streamName(sym, tf))
		}
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(names, "/")
}

// StreamClient keeps a MemorySource current from a websocket kline stream and
// reconnects with backoff when the connection drops.
type StreamClient struct {
	url    string
	source *MemorySource
	log    *logging.Logger

	// OnCandle, when set, fires for every closed candle after it is buffered.
	OnCandle func(symbol string, tf market.Timeframe, c market.Candle)
}

func NewStreamClient(url string, source *MemorySource, log *logging.Logger) *StreamClient {
	return &StreamClient{url: url, source: source, log: log}
}

// Run connects and pumps candles until ctx is cancelled or the reconnect
// budget is spent.
func (s *StreamClient) Run(ctx context.Context) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.pump(ctx)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		attempts++
		if attempts > maxReconnects {
			return fmt.Errorf("stream gave up after %d reconnects: %w", maxReconnects, err)
		}
		delay := time.Duration(attempts) * time.Second
		s.log.Warnf("stream disconnected: %v, reconnecting in %v (%d/%d)", err, delay, attempts, maxReconnects)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// pump runs one connection until it fails.
func (s *StreamClient) pump(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.log.Infof("stream connected: %s", s.url)

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		symbol, tf, candle, closed, err := parseKline(raw)
		if err != nil {
			s.log.Debugf("stream skipping message: %v", err)
			continue
		}

		s.source.Append(symbol, tf, candle)
		if closed && s.OnCandle != nil {
			s.OnCandle(symbol, tf, candle)
		}
	}
}
