package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(id string, pnl float64, exit time.Time) TradeRecord {
	return TradeRecord{
		TradeID:    id,
		Symbol:     "BTCUSDT",
		Side:       "LONG",
		Quantity:   0.1,
		EntryPrice: 50000,
		ExitPrice:  50000 + pnl/0.1,
		PnL:        pnl,
		PnLPercent: pnl / 5000 * 100,
		EntryTime:  exit.Add(-2 * time.Hour),
		ExitTime:   exit,
		ExitReason: "TRAILING_STOP",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity','backtest_runs')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["backtest_runs"])
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	exit := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)
	rec := sampleTrade("T1", 125.5, exit)

	assert.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade("T1")
	require.NoError(t, err)

	assert.Equal(t, rec.TradeID, got.TradeID)
	assert.Equal(t, rec.Symbol, got.Symbol)
	assert.Equal(t, rec.Side, got.Side)
	assert.InDelta(t, rec.Quantity, got.Quantity, 1e-9)
	assert.InDelta(t, rec.EntryPrice, got.EntryPrice, 1e-9)
	assert.InDelta(t, rec.ExitPrice, got.ExitPrice, 1e-9)
	assert.InDelta(t, rec.PnL, got.PnL, 1e-9)
	assert.InDelta(t, rec.PnLPercent, got.PnLPercent, 1e-9)
	assert.True(t, got.EntryTime.Equal(rec.EntryTime))
	assert.True(t, got.ExitTime.Equal(rec.ExitTime))
	assert.Equal(t, rec.ExitReason, got.ExitReason)
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := EquitySnapshot{
		Time:          ts,
		Balance:       10000.5,
		Equity:        10100.25,
		UnrealizedPnL: 99.75,
		OpenPositions: 2,
		TotalRisk:     0.03,
	}

	assert.NoError(t, j.RecordEquity(rec))

	got, err := j.ListEquityBetween(ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].Time.Equal(rec.Time))
	assert.InDelta(t, rec.Balance, got[0].Balance, 1e-9)
	assert.InDelta(t, rec.Equity, got[0].Equity, 1e-9)
	assert.InDelta(t, rec.UnrealizedPnL, got[0].UnrealizedPnL, 1e-9)
	assert.Equal(t, rec.OpenPositions, got[0].OpenPositions)
	assert.InDelta(t, rec.TotalRisk, got[0].TotalRisk, 1e-9)
}

func TestSQLiteRecordBacktestRun(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	run := BacktestRun{
		RunID:        "R1",
		Created:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:       "BTCUSDT",
		Days:         90,
		Config:       []byte(`{"symbol":"BTCUSDT"}`),
		Start:        time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		StartBalance: 10000,
		EndBalance:   11500,
		Trades:       42,
		Wins:         25,
		Losses:       17,
		WinRate:      59.52,
		NetPnL:       1500,
		ROI:          15,
		MaxDrawdown:  800,
		ProfitFactor: 1.8,
		SharpeRatio:  2.1,
	}

	assert.NoError(t, j.RecordBacktestRun(run))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var trades int
	var roi float64
	err = db.QueryRow(`SELECT trades, roi FROM backtest_runs WHERE run_id = 'R1'`).Scan(&trades, &roi)
	require.NoError(t, err)
	assert.Equal(t, 42, trades)
	assert.InDelta(t, 15.0, roi, 1e-9)
}
