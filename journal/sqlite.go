package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores the journal in a single sqlite database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_percent, entry_time, exit_time, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice,
		t.PnL, t.PnLPercent, t.EntryTime, t.ExitTime, t.ExitReason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, unrealized_pnl, open_positions, total_risk)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.UnrealizedPnL, e.OpenPositions, e.TotalRisk,
	)
	return err
}

func (j *SQLite) RecordBacktestRun(r BacktestRun) error {
	_, err := j.db.Exec(`
		INSERT INTO backtest_runs
		(run_id, created, symbol, days, config, start_time, end_time,
		 start_balance, end_balance, trades, wins, losses, win_rate,
		 net_pnl, roi, max_drawdown, profit_factor, sharpe_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Symbol, r.Days, r.Config, r.Start, r.End,
		r.StartBalance, r.EndBalance, r.Trades, r.Wins, r.Losses, r.WinRate,
		r.NetPnL, r.ROI, r.MaxDrawdown, r.ProfitFactor, r.SharpeRatio,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
