package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCSV(t *testing.T) (*CSV, string, string) {
	t.Helper()

	dir := t.TempDir()
	tp := filepath.Join(dir, "trades.csv")
	ep := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tp, ep)
	require.NoError(t, err)

	return j, tp, ep
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	fd, err := os.Open(path)
	require.NoError(t, err)
	defer fd.Close()

	rows, err := csv.NewReader(fd).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVHeaders(t *testing.T) {
	t.Parallel()

	j, tp, ep := newTestCSV(t)
	assert.NoError(t, j.Close())

	trades := readCSV(t, tp)
	require.Len(t, trades, 1)
	assert.Equal(t, []string{"trade_id", "symbol", "side", "quantity", "entry_price", "exit_price", "pnl", "pnl_percent", "entry_time", "exit_time", "exit_reason"}, trades[0])

	equity := readCSV(t, ep)
	require.Len(t, equity, 1)
	assert.Equal(t, []string{"time", "balance", "equity", "unrealized_pnl", "open_positions", "total_risk"}, equity[0])
}

func TestCSVRecordTrade(t *testing.T) {
	t.Parallel()

	j, tp, _ := newTestCSV(t)
	defer j.Close()

	exit := time.Date(2024, 1, 2, 4, 5, 6, 0, time.UTC)
	rec := TradeRecord{
		TradeID:    "T1",
		Symbol:     "BTCUSDT",
		Side:       "LONG",
		Quantity:   0.1,
		EntryPrice: 50000,
		ExitPrice:  51000,
		PnL:        100,
		PnLPercent: 2,
		EntryTime:  exit.Add(-2 * time.Hour),
		ExitTime:   exit,
		ExitReason: "TRAILING_STOP",
	}
	assert.NoError(t, j.RecordTrade(rec))

	// Flushed per row; readable without Close.
	rows := readCSV(t, tp)
	require.Len(t, rows, 2)

	want := []string{
		"T1",
		"BTCUSDT",
		"LONG",
		"0.100000",
		"50000.000000",
		"51000.000000",
		"100.000000",
		"2.000000",
		"2024-01-02T02:05:06Z",
		"2024-01-02T04:05:06Z",
		"TRAILING_STOP",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVRecordEquity(t *testing.T) {
	t.Parallel()

	j, _, ep := newTestCSV(t)
	defer j.Close()

	rec := EquitySnapshot{
		Time:          time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		Balance:       10000.5,
		Equity:        10100.25,
		UnrealizedPnL: 99.75,
		OpenPositions: 2,
		TotalRisk:     0.03,
	}
	assert.NoError(t, j.RecordEquity(rec))

	rows := readCSV(t, ep)
	require.Len(t, rows, 2)

	want := []string{
		"2024-02-03T04:05:06Z",
		"10000.500000",
		"10100.250000",
		"99.750000",
		"2",
		"0.030000",
	}
	assert.Equal(t, want, rows[1])
}

func TestCSVCreateFails(t *testing.T) {
	t.Parallel()

	_, err := NewCSV(filepath.Join(t.TempDir(), "missing", "trades.csv"), "equity.csv")
	assert.Error(t, err)
}
