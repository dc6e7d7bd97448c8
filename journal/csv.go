package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSV writes trades and equity snapshots to two flat files, flushing after
// every row so a crash loses nothing.
type CSV struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write([]string{"trade_id", "symbol", "side", "quantity", "entry_price", "exit_price", "pnl", "pnl_percent", "entry_time", "exit_time", "exit_reason"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "balance", "equity", "unrealized_pnl", "open_positions", "total_risk"}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSV{tw, ew, tf, ef}, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	if err := j.trades.Write([]string{
		t.TradeID,
		t.Symbol,
		t.Side,
		f(t.Quantity),
		f(t.EntryPrice),
		f(t.ExitPrice),
		f(t.PnL),
		f(t.PnLPercent),
		t.EntryTime.Format(time.RFC3339),
		t.ExitTime.Format(time.RFC3339),
		t.ExitReason,
	}); err != nil {
		return err
	}

	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	if err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.UnrealizedPnL),
		strconv.Itoa(e.OpenPositions),
		f(e.TotalRisk),
	}); err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
