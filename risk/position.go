package risk

import "time"

// Side is the direction of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Exit reasons recorded on closed trades.
const (
	ReasonStopLoss     = "STOP_LOSS"
	ReasonTrailingStop = "TRAILING_STOP"
	ReasonSignalExit   = "SIGNAL_EXIT"
	ReasonTakeProfit   = "TAKE_PROFIT"
	ReasonPanic        = "PANIC"
	ReasonTimeBased    = "TIME_BASED"
	ReasonRegimeChange = "REGIME_CHANGE"
)

// Position is an open leveraged position. Partial exits shrink Quantity;
// OriginalQuantity keeps the size at entry so ladder fractions stay anchored.
type Position struct {
	Symbol           string
	Side             Side
	EntryPrice       float64
	Quantity         float64
	OriginalQuantity float64
	Leverage         int
	StopLoss         float64
	TrailingStop     float64
	EntryTime        time.Time
	UnrealizedPnL    float64
}

// StopDistance returns the distance between entry and the initial stop.
func (p *Position) StopDistance() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// Notional returns quantity × entry price.
func (p *Position) Notional() float64 {
	return p.Quantity * p.EntryPrice
}

// PnLAt returns the unrealized profit at the given mark price.
func (p *Position) PnLAt(price float64) float64 {
	if p.Side == Long {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// ProfitATR returns the favorable price move at price expressed in ATR units,
// or 0 when atr is not positive.
func (p *Position) ProfitATR(price, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	var d float64
	if p.Side == Long {
		d = price - p.EntryPrice
	} else {
		d = p.EntryPrice - price
	}
	return d / atr
}

// StopHit reports whether the trailing stop is breached at price.
// Longs stop out at or below the stop, shorts at or above it.
func (p *Position) StopHit(price float64) bool {
	if p.Side == Long {
		return price <= p.TrailingStop
	}
	return price >= p.TrailingStop
}

// Trade is the realized record of a full or partial position close.
type Trade struct {
	ID         string
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	PnLPercent float64
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason string
}
