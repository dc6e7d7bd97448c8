// Package backtest replays the strategy and risk pipeline over historical
// candles with a deterministic fill, fee and slippage model, and derives
// performance metrics and per-feature attribution from the results.
package backtest

import (
	"fmt"
	"time"

	"krait/config"
	"krait/logging"
	"krait/market"
	"krait/risk"
	"krait/strategy"
)

// Order sides for cost adjustment.
const (
	sideBuy  = "BUY"
	sideSell = "SELL"
)

// Warmup minimums per timeframe before the pipeline is evaluated.
const (
	minBars15m = 50
	minBars1h  = 30
	minBars5m  = 100
	minBars4h  = 5
)

// Trailing-window sizes handed to the strategy per timeframe.
const (
	lookback15m = 200
	lookback1h  = 100
	lookback5m  = 300
	lookback4h  = 50
)

// Engine drives one full replay over a candle set. It is strictly
// single-threaded; reproducibility of results is a correctness requirement,
// so a fresh Engine (and pipeline) is built per run.
type Engine struct {
	cfg      *config.Config
	strategy *strategy.Engine
	risk     *risk.Manager
	log      *logging.Logger

	initialBalance float64
	balance        float64
	equity         []float64
	trades         []risk.Trade
}

// Result is the outcome of one replay.
type Result struct {
	Metrics      Metrics
	Trades       []risk.Trade
	EquityCurve  []float64
	FinalBalance float64
}

// NewEngine wires a replay engine over an already-constructed pipeline.
func NewEngine(cfg *config.Config, strat *strategy.Engine, riskMgr *risk.Manager, log *logging.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		strategy: strat,
		risk:     riskMgr,
		log:      log,
	}
}

// Run replays the pipeline over the candle data. The 15m series is the
// reference timeframe; 1h is required, 5m and 4h feed the multi-timeframe
// analysis when present. Entries fill at the next bar's open, stop exits at
// a biased intra-bar price, and every fill pays fee plus slippage in the
// unfavorable direction.
func (e *Engine) Run(data map[market.Timeframe][]market.Candle, initialBalance float64) (*Result, error) {
	if initialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %v", initialBalance)
	}

	c15 := data[market.TF15m]
	c1h := data[market.TF1h]
	if len(c15) == 0 || len(c1h) == 0 {
		return nil, fmt.Errorf("15m and 1h candles are required")
	}

	c5 := data[market.TF5m]
	c4h := data[market.TF4h]

	e.initialBalance = initialBalance
	e.balance = initialBalance
	e.equity = []float64{initialBalance}
	e.trades = nil

	idx := buildSyncIndex(c15, map[market.Timeframe][]market.Candle{
		market.TF5m: c5,
		market.TF1h: c1h,
		market.TF4h: c4h,
	})

	symbol := e.cfg.Symbol
	entryBar := -1

	for i := minBars15m; i < len(c15); i++ {
		bar := c15[i]
		now := bar.Time

		j1h, ok := idx.at(market.TF1h, now)
		if !ok || j1h+1 < minBars1h {
			continue
		}

		windows := map[market.Timeframe][]market.Candle{
			market.TF15m: window(c15, i, lookback15m),
			market.TF1h:  window(c1h, j1h, lookback1h),
		}
		if j5, ok := idx.at(market.TF5m, now); ok && j5+1 >= minBars5m {
			windows[market.TF5m] = window(c5, j5, lookback5m)
		}
		if j4, ok := idx.at(market.TF4h, now); ok && j4+1 >= minBars4h {
			windows[market.TF4h] = window(c4h, j4, lookback4h)
		}

		e.strategy.UpdateIndicators(windows, now)
		e.risk.UpdateRegime(e.strategy.Regime())

		atr := e.strategy.Snapshot().ATR15m

		if p, open := e.risk.Position(symbol); open {
			if err := e.risk.UpdateStops(p, bar.Close, atr, e.strategy.MomentumReversed()); err != nil {
				e.log.Warnf("backtest: update stops: %v", err)
			}
			// No exit checks on the entry bar or the one after it, so a
			// position can never stop out on the bar that opened it.
			if i > entryBar+1 {
				e.checkExits(p, bar, atr, now)
			}
		} else if i+1 < len(c15) {
			if e.tryEnter(symbol, c15[i+1], atr, now) {
				entryBar = i + 1
			}
		}

		equity := e.balance
		if p, open := e.risk.Position(symbol); open {
			equity += p.UnrealizedPnL
		}
		e.equity = append(e.equity, equity)
	}

	// Whatever is still open liquidates at the final close.
	if p, open := e.risk.Position(symbol); open {
		last := c15[len(c15)-1]
		exit := e.applyCosts(last.Close, closeOrderSide(p.Side))
		e.closeAt(p, exit, risk.ReasonSignalExit, last.Time)
	}

	return &Result{
		Metrics:      computeMetrics(e.trades, e.equity, initialBalance),
		Trades:       e.trades,
		EquityCurve:  e.equity,
		FinalBalance: e.balance,
	}, nil
}

// tryEnter checks both entry signals and, when one fires, opens a position
// filled at the next bar's open. Returns true when a position was created.
func (e *Engine) tryEnter(symbol string, next market.Candle, atr float64, now time.Time) bool {
	if !e.risk.SignalsEnabled() {
		return false
	}

	signal := e.strategy.CheckLongEntry(symbol, now)
	if signal == nil {
		signal = e.strategy.CheckShortEntry(symbol, now)
	}
	if signal == nil {
		return false
	}

	side := risk.Long
	orderSide := sideBuy
	if signal.Type == strategy.ShortEntry {
		side = risk.Short
		orderSide = sideSell
	}

	entry := e.applyCosts(next.Open, orderSide)
	sized := e.balance * e.strategy.SizeMultiplier()

	p, decision, err := e.risk.Open(symbol, side, entry, next.Time, sized, atr)
	if err != nil {
		e.log.Warnf("backtest: open %s: %v", symbol, err)
		return false
	}
	if !decision.Allowed {
		return false
	}
	return p != nil
}

// checkExits runs the exit ladder for an open position on one bar: profit
// ladder first, then intra-bar stop, then time and regime exits.
func (e *Engine) checkExits(p *risk.Position, bar market.Candle, atr float64, now time.Time) {
	price := bar.Close

	if pct, ok := e.risk.CheckPartialExit(p, price, atr); ok {
		exit := e.applyCosts(price, closeOrderSide(p.Side))

		orig := p.OriginalQuantity
		if orig == 0 {
			orig = p.Quantity
		}
		qty := orig * pct

		if qty >= p.Quantity-1e-9 {
			e.closeAt(p, exit, risk.ReasonTakeProfit, now)
			return
		}

		trade, err := e.risk.ExecutePartialExit(p, exit, qty/p.Quantity, now)
		if err != nil {
			e.log.Warnf("backtest: partial exit %s: %v", p.Symbol, err)
		} else {
			e.balance += trade.PnL
			e.trades = append(e.trades, trade)
		}
	}

	if stopHitInBar(p, bar) {
		exit := e.applyCosts(stopFill(p, bar), closeOrderSide(p.Side))
		e.closeAt(p, exit, risk.ReasonTrailingStop, now)
		return
	}

	if e.risk.CheckTimeExit(p, now) {
		exit := e.applyCosts(price, closeOrderSide(p.Side))
		e.closeAt(p, exit, risk.ReasonTimeBased, now)
		return
	}

	if e.risk.CheckRegimeExit(p) {
		exit := e.applyCosts(price, closeOrderSide(p.Side))
		e.closeAt(p, exit, risk.ReasonRegimeChange, now)
	}
}

func (e *Engine) closeAt(p *risk.Position, exitPrice float64, reason string, at time.Time) {
	trade, err := e.risk.ClosePosition(p, exitPrice, reason, at)
	if err != nil {
		e.log.Errorf("backtest: close %s: %v", p.Symbol, err)
		return
	}
	e.balance += trade.PnL
	e.trades = append(e.trades, trade)
}

// applyCosts adjusts a fill by fee plus slippage in the unfavorable
// direction: buys pay more, sells receive less.
func (e *Engine) applyCosts(price float64, side string) float64 {
	cost := e.cfg.Backtest.TradingFee + e.cfg.Backtest.Slippage
	if side == sideBuy {
		return price * (1 + cost)
	}
	return price * (1 - cost)
}

// stopHitInBar reports whether the bar's range touched the trailing stop.
func stopHitInBar(p *risk.Position, bar market.Candle) bool {
	if p.Side == risk.Long {
		return bar.Low <= p.TrailingStop
	}
	return bar.High >= p.TrailingStop
}

// stopFill simulates where inside the bar a stop order actually fills,
// biased toward the unfavorable end but never outside [low, high].
func stopFill(p *risk.Position, bar market.Candle) float64 {
	if p.Side == risk.Long {
		return bar.Low + (bar.Close-bar.Low)*0.3
	}
	return bar.Close + (bar.High-bar.Close)*0.7
}

func closeOrderSide(side risk.Side) string {
	if side == risk.Long {
		return sideSell
	}
	return sideBuy
}

func window(candles []market.Candle, i, lookback int) []market.Candle {
	lo := i - lookback
	if lo < 0 {
		lo = 0
	}
	return candles[lo : i+1]
}
