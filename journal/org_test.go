package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	rec := TradeRecord{
		TradeID:    "01HXYZABCDEF",
		Symbol:     "BTCUSDT",
		Side:       "LONG",
		Quantity:   0.25,
		EntryPrice: 50000,
		ExitPrice:  51250,
		PnL:        312.5,
		PnLPercent: 2.5,
		EntryTime:  time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
		ExitTime:   time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC),
		ExitReason: "TAKE_PROFIT",
	}

	out := FormatTradeOrg(rec)

	assert.Contains(t, out, "** Trade: BTCUSDT (01HXYZAB)")
	assert.Contains(t, out, ":PROPERTIES:")
	assert.Contains(t, out, ":TRADE_ID: 01HXYZABCDEF")
	assert.Contains(t, out, ":SIDE: LONG")
	assert.Contains(t, out, ":QUANTITY: 0.25")
	assert.Contains(t, out, ":ENTRY_PRICE: 50000.00000")
	assert.Contains(t, out, ":EXIT_PRICE: 51250.00000")
	assert.Contains(t, out, ":ENTRY_TIME: 2024-01-02T03:00:00Z")
	assert.Contains(t, out, ":EXIT_TIME: 2024-01-02T07:30:00Z")
	assert.Contains(t, out, ":PNL: 312.50")
	assert.Contains(t, out, ":PNL_PCT: 2.50")
	assert.Contains(t, out, ":EXIT_REASON: TAKE_PROFIT")
	assert.Contains(t, out, ":END:")
	assert.Contains(t, out, "*** Thesis")
	assert.Contains(t, out, "*** Execution")
	assert.Contains(t, out, "*** Review")
}

func TestFormatTradeOrgShortID(t *testing.T) {
	t.Parallel()

	out := FormatTradeOrg(TradeRecord{TradeID: "T1", Symbol: "ETHUSDT"})
	assert.Contains(t, out, "** Trade: ETHUSDT (T1)")
}

func TestBacktestRunWriteOrg(t *testing.T) {
	t.Parallel()

	run := BacktestRun{
		RunID:        "R42",
		Created:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:       "BTCUSDT",
		Days:         90,
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
		OrgPath:      filepath.Join(t.TempDir(), "run.org"),
		Notes:        []string{"trend regime dominated", "two panic closes"},
	}

	require.NoError(t, run.WriteOrg())

	raw, err := os.ReadFile(run.OrgPath)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "* BACKTEST: BTCUSDT 90d")
	assert.Contains(t, out, ":RUN_ID:      R42")
	assert.Contains(t, out, ":START_DATE:  2023-12-01")
	assert.Contains(t, out, ":END_DATE:    2024-02-29")
	assert.Contains(t, out, ":WIN_RATE:    59.52")
	assert.Contains(t, out, ":PROFIT_FAC:  1.80")
	assert.Contains(t, out, ":SHARPE:      2.10")
	assert.Contains(t, out, "** Performance Summary")
	assert.Contains(t, out, "** Trade Distribution")
	assert.Contains(t, out, "** Observations")
	assert.Contains(t, out, "- trend regime dominated")
}

func TestBacktestRunWriteOrgPlaceholders(t *testing.T) {
	t.Parallel()

	run := BacktestRun{
		Symbol:  "ETHUSDT",
		OrgPath: filepath.Join(t.TempDir(), "run.org"),
	}

	require.NoError(t, run.WriteOrg())

	raw, err := os.ReadFile(run.OrgPath)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "(run-id?)")
	assert.Contains(t, out, "(profit-factor?)")
	assert.NotContains(t, out, "** Observations")
}
