package strategy

import "time"

// Signal types emitted by the engine.
const (
	LongEntry  = "LONG_ENTRY"
	ShortEntry = "SHORT_ENTRY"
	ExitSignal = "EXIT"
)

// Signal is a trading decision with the indicator state that produced it.
type Signal struct {
	Type       string
	Symbol     string
	Price      float64
	Confidence float64
	Timestamp  time.Time
	Indicators Snapshot
}

// Snapshot captures the indicator values the entry checks run against.
type Snapshot struct {
	VWAP15m      float64
	VWAP1h       float64
	ATR15m       float64
	ATR1h        float64
	ADX          float64
	RVOL         float64
	SqueezeValue float64
	SqueezeColor string
	Squeezed     bool
	Trend15m     string
	Trend1h      string
	Price        float64
	PriceVsVWAP  string // "ABOVE" or "BELOW"
}
