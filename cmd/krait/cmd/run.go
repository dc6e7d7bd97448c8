package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"krait/bot"
	"krait/broker"
	"krait/config"
	"krait/feed"
	"krait/journal"
	"krait/logging"
	"krait/market"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trading loop from a config file",
	Long: `Run the trading loop using settings from a configuration file.

Candles arrive over a websocket kline stream; the decision pipeline
evaluates every symbol once per cycle and executes through the paper
exchange. Exchange credentials, when needed, are read from the
environment (a .env file is loaded when present).

Example:
  krait run -f configs/paper.yaml`,
	RunE: runRun,
}

var (
	runConfigPath string
	runStreamURL  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.Flags().StringVar(&runStreamURL, "stream", "wss://fstream.binance.com", "websocket stream base URL")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Credentials and overrides live in the environment; a missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Mode == config.ModeBacktest {
		return fmt.Errorf("config mode is BACKTEST, use the backtest command")
	}

	log := logging.New(cfg.Logging)

	jrnl, err := journal.New(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer jrnl.Close()

	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = []string{cfg.Symbol}
	}

	balance, err := startingBalance()
	if err != nil {
		return err
	}

	paper := broker.NewPaperClient(balance)
	exec := broker.NewSafeClient(paper, cfg.Execution, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, sym := range symbols {
		if err := exec.SetLeverage(ctx, sym, cfg.Risk.Leverage); err != nil {
			return fmt.Errorf("set leverage for %s: %w", sym, err)
		}
	}

	source := feed.NewMemorySource()
	streamURL := feed.StreamURL(runStreamURL, symbols, market.Timeframes)
	stream := feed.NewStreamClient(streamURL, source, log)
	stream.OnCandle = func(symbol string, tf market.Timeframe, c market.Candle) {
		paper.SetMark(symbol, c.Close)
	}

	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("stream stopped: %v", err)
			stop()
		}
	}()

	b := bot.New(cfg, source, exec, jrnl, log)

	fmt.Printf("Running krait: symbols=%v mode=%s journal=%s\n", symbols, cfg.Mode, cfg.Journal.Type)
	if err := b.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	fmt.Println("Shutting down, flattening positions...")
	if err := b.PanicCloseAll(context.Background(), nowUTC()); err != nil {
		log.Errorf("close-all on shutdown: %v", err)
	}
	return nil
}
