package market

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle interval using exchange notation ("5m", "1h", ...).
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists every interval the system analyzes, shortest first.
var Timeframes = []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}

// Duration returns the wall-clock length of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

// ParseTimeframe validates an interval string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unknown timeframe: %q", s)
	}
	return tf, nil
}

// WeekAnchor returns the most recent Monday 00:00 UTC at or before t.
// Weekly-anchored VWAP resets at this boundary.
func WeekAnchor(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}
