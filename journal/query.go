package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_percent, entry_time, exit_time, exit_reason
		FROM trades
		WHERE trade_id = ?`, tradeID)

	var rec TradeRecord
	err := row.Scan(
		&rec.TradeID,
		&rec.Symbol,
		&rec.Side,
		&rec.Quantity,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.PnL,
		&rec.PnLPercent,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.ExitReason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_percent, entry_time, exit_time, exit_reason
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.TradeID,
			&rec.Symbol,
			&rec.Side,
			&rec.Quantity,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.PnL,
			&rec.PnLPercent,
			&rec.EntryTime,
			&rec.ExitTime,
			&rec.ExitReason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity snapshots within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, unrealized_pnl, open_positions, total_risk
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(
			&rec.Time,
			&rec.Balance,
			&rec.Equity,
			&rec.UnrealizedPnL,
			&rec.OpenPositions,
			&rec.TotalRisk,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates the trades closed in a time range.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	NetPnL       float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
}

// Summarize computes the trade summary for exits within [start, end).
func (j *SQLite) Summarize(start, end time.Time) (Summary, error) {
	row := j.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl <= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(pnl), 0),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN pnl ELSE 0 END), 0),
			COALESCE(ABS(SUM(CASE WHEN pnl < 0 THEN pnl ELSE 0 END)), 0)
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?`, start, end)

	var s Summary
	if err := row.Scan(&s.Trades, &s.Wins, &s.Losses, &s.NetPnL, &s.GrossProfit, &s.GrossLoss); err != nil {
		return Summary{}, err
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s, nil
}
