// Package journal persists realized trades, equity snapshots and backtest
// runs so every decision the bot makes leaves an auditable record.
package journal

import (
	"fmt"
	"time"

	"krait/config"
	"krait/risk"
)

// TradeRecord is one realized trade row, full or partial close.
type TradeRecord struct {
	TradeID    string
	Symbol     string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	PnLPercent float64
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason string
}

// FromTrade converts a risk manager trade into its journal row.
func FromTrade(t risk.Trade) TradeRecord {
	return TradeRecord{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		PnL:        t.PnL,
		PnLPercent: t.PnLPercent,
		EntryTime:  t.EntryTime,
		ExitTime:   t.ExitTime,
		ExitReason: t.ExitReason,
	}
}

// EquitySnapshot is one point on the live or replay equity curve.
type EquitySnapshot struct {
	Time          time.Time
	Balance       float64
	Equity        float64
	UnrealizedPnL float64
	OpenPositions int
	TotalRisk     float64
}

// Journal is the persistence surface consumed by the bot and the backtester.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// New builds the journal backend named in the configuration.
func New(cfg config.JournalConfig) (Journal, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLite(cfg.DBPath)
	case "csv":
		return NewCSV(cfg.TradesFile, cfg.EquityFile)
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
}
