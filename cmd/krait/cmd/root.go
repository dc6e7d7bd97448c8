package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "krait",
	Short: "A crypto futures trading decision engine",
	Long: `Krait is a multi-timeframe crypto futures trading engine.

It provides tools for:
  - Live paper trading driven by a websocket kline stream
  - Deterministic backtesting over historical candle data
  - A/B attribution of each optional signal feature
  - Correlation-aware portfolio admission across symbols
  - ATR-based position sizing and scaled exit ladders
  - Trade journaling to SQLite or CSV`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
