package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"krait/backtest"
	"krait/config"
	"krait/feature"
	"krait/journal"
	"krait/logging"
	"krait/market"
	"krait/pkg/id"
	"krait/risk"
	"krait/strategy"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the decision pipeline over historical candle data",
	Long: `Backtest replays the full strategy and risk pipeline over historical
candles and reports performance metrics.

Candle files live in the data directory as <symbol>_<timeframe>.csv with
columns time,open,high,low,close,volume. The 15m and 1h files are
required; 5m and 4h are used when present.

Example:
  krait backtest -f configs/backtest.yaml --data ./data --symbol BTCUSDT --ab`,
	RunE: runBacktestCmd,
}

var (
	btConfigPath string
	btDataDir    string
	btSymbol     string
	btBalance    float64
	btAB         bool
	btDBPath     string
	btReport     string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
	backtestCmd.Flags().StringVar(&btDataDir, "data", "", "directory with candle CSV files (required)")
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol to replay (default: config symbol)")
	backtestCmd.Flags().Float64VarP(&btBalance, "balance", "b", 10000, "starting balance")
	backtestCmd.Flags().BoolVar(&btAB, "ab", false, "run the A/B feature attribution matrix")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "SQLite path to record the run (default: journal db_path)")
	backtestCmd.Flags().StringVar(&btReport, "report", "", "write an org-mode run report to this path")

	backtestCmd.MarkFlagRequired("data")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if btConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(btConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	symbol := btSymbol
	if symbol == "" {
		symbol = cfg.Symbol
	}

	log := logging.New(cfg.Logging)

	data, err := loadCandleDir(btDataDir, symbol)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	fmt.Printf("Backtesting %s: %d 15m candles, balance %.2f\n", symbol, len(data[market.TF15m]), btBalance)

	if btAB {
		cmp, err := backtest.RunComparison(cfg, buildPipeline(log), data, btBalance, log)
		if err != nil {
			return err
		}
		printComparison(cmp)
		return nil
	}

	result, err := buildPipeline(log)(cfg).Run(data, btBalance)
	if err != nil {
		return err
	}
	printMetrics(result.Metrics)
	fmt.Printf("  Final Balance:  %.2f\n", result.FinalBalance)

	return recordRun(cfg, symbol, data, result)
}

// buildPipeline returns a Pipeline that assembles a fresh strategy and risk
// stack for each configuration the comparison tries.
func buildPipeline(log *logging.Logger) backtest.Pipeline {
	return func(cfg *config.Config) *backtest.Engine {
		features := feature.NewManager(log)
		strat := strategy.NewEngine(cfg, features, log)

		opts := []risk.ManagerOption{}
		if cfg.Features.AdvancedExits {
			opts = append(opts, risk.WithExits(risk.NewExitManager(cfg.Exits, log)))
		}
		riskMgr := risk.NewManager(risk.NewSizer(cfg.Risk), features, log, opts...)

		return backtest.NewEngine(cfg, strat, riskMgr, log)
	}
}

// loadCandleDir reads every timeframe file present for the symbol. 15m and 1h
// are required.
func loadCandleDir(dir, symbol string) (map[market.Timeframe][]market.Candle, error) {
	data := make(map[market.Timeframe][]market.Candle)
	for _, tf := range market.Timeframes {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", symbol, tf))
		candles, err := loadCandleCSV(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		data[tf] = candles
	}

	if len(data[market.TF15m]) == 0 || len(data[market.TF1h]) == 0 {
		return nil, fmt.Errorf("15m and 1h candle files are required for %q", symbol)
	}
	return data, nil
}

func loadCandleCSV(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	var out []market.Candle
	for {
		row, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}

// parseCandleRow accepts time,open,high,low,close,volume with the timestamp
// as RFC3339 or unix milliseconds.
func parseCandleRow(row []string) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("bad row (need 6 cols time,open,high,low,close,volume): %v", row)
	}

	raw := strings.TrimSpace(row[0])
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		ms, err2 := strconv.ParseInt(raw, 10, 64)
		if err2 != nil {
			return market.Candle{}, fmt.Errorf("bad time %q: %w", raw, err)
		}
		ts = time.UnixMilli(ms).UTC()
	}

	var vals [5]float64
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad field %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	return market.Candle{
		Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		Time: ts,
	}, nil
}

func printMetrics(m backtest.Metrics) {
	fmt.Printf("\nBacktest Complete!\n")
	fmt.Printf("  Trades:         %d (%d wins / %d losses)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	fmt.Printf("  Win Rate:       %.2f%%\n", m.WinRate)
	fmt.Printf("  Total PnL:      %.2f (%.2f%% ROI)\n", m.TotalPnL, m.ROI)
	fmt.Printf("  Max Drawdown:   %.2f\n", m.MaxDrawdown)
	fmt.Printf("  Profit Factor:  %.2f\n", m.ProfitFactor)
	fmt.Printf("  Sharpe Ratio:   %.2f\n", m.SharpeRatio)
	fmt.Printf("  Avg Win/Loss:   %.2f / %.2f\n", m.AverageWin, m.AverageLoss)
	fmt.Printf("  Largest W/L:    %.2f / %.2f\n", m.LargestWin, m.LargestLoss)
}

func printComparison(cmp *backtest.Comparison) {
	fmt.Printf("\nA/B Comparison\n")
	fmt.Printf("  Baseline ROI:     %.2f%% (win rate %.2f%%)\n", cmp.Baseline.ROI, cmp.Baseline.WinRate)
	fmt.Printf("  All Features ROI: %.2f%% (win rate %.2f%%)\n", cmp.AllFeatures.ROI, cmp.AllFeatures.WinRate)
	fmt.Printf("\n  Feature contributions (all-on minus feature-removed):\n")
	for name, c := range cmp.Contributions {
		fmt.Printf("    %-22s ROI %+.2f%%  win rate %+.2f%%  PF %+.2f  trades %+d\n",
			name, c.ROI, c.WinRate, c.ProfitFactor, c.TradeCount)
	}
}

// recordRun persists the run to the SQLite journal and, when requested, an
// org-mode report.
func recordRun(cfg *config.Config, symbol string, data map[market.Timeframe][]market.Candle, result *backtest.Result) error {
	c15 := data[market.TF15m]
	start := c15[0].Time
	end := c15[len(c15)-1].Time

	rawCfg, _ := json.Marshal(cfg)
	run := journal.BacktestRun{
		RunID:        id.New(),
		Created:      nowUTC(),
		Symbol:       symbol,
		Days:         int(end.Sub(start).Hours() / 24),
		Config:       rawCfg,
		Start:        start,
		End:          end,
		StartBalance: btBalance,
		EndBalance:   result.FinalBalance,
		Trades:       result.Metrics.TotalTrades,
		Wins:         result.Metrics.WinningTrades,
		Losses:       result.Metrics.LosingTrades,
		WinRate:      result.Metrics.WinRate,
		NetPnL:       result.Metrics.TotalPnL,
		ROI:          result.Metrics.ROI,
		MaxDrawdown:  result.Metrics.MaxDrawdown,
		ProfitFactor: result.Metrics.ProfitFactor,
		SharpeRatio:  result.Metrics.SharpeRatio,
		OrgPath:      btReport,
	}

	dbPath := btDBPath
	if dbPath == "" && cfg.Journal.Type == "sqlite" {
		dbPath = cfg.Journal.DBPath
	}
	if dbPath != "" {
		j, err := journal.NewSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("open run journal: %w", err)
		}
		defer j.Close()
		if err := j.RecordBacktestRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		fmt.Printf("\nRun %s recorded to %s\n", run.RunID, dbPath)
	}

	if btReport != "" {
		if err := run.WriteOrg(); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", btReport)
	}
	return nil
}
