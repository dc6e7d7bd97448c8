// Package bot runs the live trading loop: it pulls candles from the feed,
// evaluates strategy and risk per symbol, and executes through the broker.
// All position and portfolio mutation happens inside a single cycle mutex.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"krait/broker"
	"krait/config"
	"krait/feature"
	"krait/feed"
	"krait/journal"
	"krait/logging"
	"krait/market"
	"krait/portfolio"
	"krait/risk"
	"krait/strategy"
)

const cycleInterval = time.Minute

// Window sizes handed to the indicator pipeline each cycle.
const (
	lookback15m = 200
	lookback1h  = 100
	lookback5m  = 300
	lookback4h  = 50
)

// Bot wires the decision pipeline to live market data and order execution.
type Bot struct {
	cfg       *config.Config
	log       *logging.Logger
	features  *feature.Manager
	engines   map[string]*strategy.Engine
	risk      *risk.Manager
	portfolio *portfolio.Manager
	source    *feed.MemorySource
	exec      broker.ExecutionClient
	journal   journal.Journal

	mu          sync.Mutex
	balance     float64
	confidences map[string]float64
	lastCorr    time.Time
}

// New assembles a bot. When portfolio management is enabled the portfolio
// manager is installed as the risk manager's admission guard, so every open
// is checked against correlation and total-risk limits before the position
// exists.
func New(cfg *config.Config, source *feed.MemorySource, exec broker.ExecutionClient, jrnl journal.Journal, log *logging.Logger) *Bot {
	features := feature.NewManager(log)

	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = []string{cfg.Symbol}
	}

	engines := make(map[string]*strategy.Engine, len(symbols))
	for _, sym := range symbols {
		engines[sym] = strategy.NewEngine(cfg, features, log)
	}

	opts := []risk.ManagerOption{}
	if cfg.Features.AdvancedExits {
		opts = append(opts, risk.WithExits(risk.NewExitManager(cfg.Exits, log)))
	}

	var pm *portfolio.Manager
	if cfg.Features.PortfolioMgmt {
		pm = portfolio.NewManager(cfg.Portfolio, symbols, log)
		features.Register(feature.PortfolioMgmt, true, false)
		opts = append(opts, risk.WithGuard(pm))
	}

	return &Bot{
		cfg:         cfg,
		log:         log,
		features:    features,
		engines:     engines,
		risk:        risk.NewManager(risk.NewSizer(cfg.Risk), features, log, opts...),
		portfolio:   pm,
		source:      source,
		exec:        exec,
		journal:     jrnl,
		confidences: make(map[string]float64),
	}
}

// Features exposes the feature manager for status reporting.
func (b *Bot) Features() *feature.Manager { return b.features }

// Risk exposes the risk manager, used by the CLI for status and re-arming.
func (b *Bot) Risk() *risk.Manager { return b.risk }

// Run cycles until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	b.log.Infof("bot started: symbols=%v mode=%s", b.symbols(), b.cfg.Mode)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := b.Cycle(ctx, now.UTC()); err != nil {
				b.log.Errorf("cycle failed: %v", err)
			}
		}
	}
}

func (b *Bot) symbols() []string {
	if len(b.cfg.Symbols) > 0 {
		return b.cfg.Symbols
	}
	return []string{b.cfg.Symbol}
}

// Cycle runs one evaluation pass over every symbol.
func (b *Bot) Cycle(ctx context.Context, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, err := b.exec.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	b.balance = balance

	b.refreshPortfolio(ctx, now)

	for _, sym := range b.symbols() {
		if err := b.cycleSymbol(ctx, sym, now); err != nil {
			b.log.Errorf("%s cycle: %v", sym, err)
		}
	}

	return b.recordEquity(now)
}

// refreshPortfolio updates the correlation matrix from daily candles and logs
// target allocations when the rebalance interval has elapsed.
func (b *Bot) refreshPortfolio(ctx context.Context, now time.Time) {
	if b.portfolio == nil {
		return
	}

	if b.lastCorr.IsZero() || now.Sub(b.lastCorr) >= 24*time.Hour {
		daily := make(map[string][]market.Candle)
		for _, sym := range b.symbols() {
			candles, err := b.source.History(ctx, sym, market.TF1d, b.cfg.Portfolio.CorrelationLookback+1)
			if err != nil {
				continue
			}
			daily[sym] = candles
		}
		if len(daily) > 0 {
			b.portfolio.UpdateCorrelations(daily)
			b.lastCorr = now
		}
	}

	if alloc, ok := b.portfolio.Rebalance(b.confidences, b.balance, now); ok {
		b.log.Infof("rebalance targets: %v", alloc)
	}
}

func (b *Bot) cycleSymbol(ctx context.Context, symbol string, now time.Time) error {
	if b.source.Stale(symbol, market.TF15m, now) || b.source.Stale(symbol, market.TF1h, now) {
		b.log.Warnf("%s data stale, skipping cycle", symbol)
		return nil
	}

	candles := make(map[market.Timeframe][]market.Candle)
	for tf, lookback := range map[market.Timeframe]int{
		market.TF15m: lookback15m,
		market.TF1h:  lookback1h,
		market.TF5m:  lookback5m,
		market.TF4h:  lookback4h,
	} {
		window, err := b.source.History(ctx, symbol, tf, lookback)
		if err != nil {
			continue
		}
		candles[tf] = window
	}

	engine := b.engines[symbol]
	engine.UpdateIndicators(candles, now)
	b.risk.UpdateRegime(engine.Regime())

	c15 := candles[market.TF15m]
	price := c15[len(c15)-1].Close
	atr := engine.Snapshot().ATR15m
	if atr <= 0 {
		return nil
	}

	if p, ok := b.risk.Position(symbol); ok {
		return b.managePosition(ctx, engine, p, price, atr, now)
	}
	return b.checkEntry(ctx, engine, symbol, price, atr, now)
}

// managePosition tightens stops and runs the exit ladder for an open position.
func (b *Bot) managePosition(ctx context.Context, engine *strategy.Engine, p *risk.Position, price, atr float64, now time.Time) error {
	if err := b.risk.UpdateStops(p, price, atr, engine.MomentumReversed()); err != nil {
		return err
	}

	if pct, ok := b.risk.CheckPartialExit(p, price, atr); ok {
		qty := p.OriginalQuantity * pct
		if qty >= p.Quantity-1e-9 {
			return b.closePosition(ctx, p, price, risk.ReasonTakeProfit, now)
		}
		return b.partialExit(ctx, p, price, qty, now)
	}

	if p.StopHit(price) {
		return b.closePosition(ctx, p, price, risk.ReasonTrailingStop, now)
	}
	if b.risk.CheckTimeExit(p, now) {
		return b.closePosition(ctx, p, price, risk.ReasonTimeBased, now)
	}
	if b.risk.CheckRegimeExit(p) {
		return b.closePosition(ctx, p, price, risk.ReasonRegimeChange, now)
	}
	return nil
}

// checkEntry evaluates entry signals and opens a position when one fires and
// admission allows it.
func (b *Bot) checkEntry(ctx context.Context, engine *strategy.Engine, symbol string, price, atr float64, now time.Time) error {
	if !b.risk.SignalsEnabled() {
		return nil
	}

	side := risk.Long
	sig := engine.CheckLongEntry(symbol, now)
	if sig == nil {
		sig = engine.CheckShortEntry(symbol, now)
		side = risk.Short
	}
	if sig == nil {
		return nil
	}
	b.confidences[symbol] = sig.Confidence

	sized := b.balance * engine.SizeMultiplier()
	p, dec, err := b.risk.Open(symbol, side, price, now, sized, atr)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		b.log.Warnf("%s entry rejected: %v", symbol, dec.Violations)
		return nil
	}

	if _, err := b.exec.PlaceMarketOrder(ctx, symbol, orderSide(side, false), p.Quantity, false); err != nil {
		// Unwind the position the order never backed. The flat close is not
		// journaled; the next cycle starts clean.
		_, _ = b.risk.ClosePosition(p, price, risk.ReasonSignalExit, now)
		return fmt.Errorf("entry order for %s: %w", symbol, err)
	}

	b.log.Infof("%s opened %s qty=%v entry=%v stop=%v", symbol, side, p.Quantity, p.EntryPrice, p.StopLoss)
	return nil
}

func (b *Bot) partialExit(ctx context.Context, p *risk.Position, price, qty float64, now time.Time) error {
	if _, err := b.exec.PlaceMarketOrder(ctx, p.Symbol, orderSide(p.Side, true), qty, true); err != nil {
		return fmt.Errorf("partial exit order for %s: %w", p.Symbol, err)
	}

	trade, err := b.risk.ExecutePartialExit(p, price, qty/p.Quantity, now)
	if err != nil {
		return err
	}
	return b.journal.RecordTrade(journal.FromTrade(trade))
}

func (b *Bot) closePosition(ctx context.Context, p *risk.Position, price float64, reason string, now time.Time) error {
	if _, err := b.exec.PlaceMarketOrder(ctx, p.Symbol, orderSide(p.Side, true), p.Quantity, true); err != nil {
		return fmt.Errorf("close order for %s: %w", p.Symbol, err)
	}

	trade, err := b.risk.ClosePosition(p, price, reason, now)
	if err != nil {
		return err
	}
	b.log.Infof("%s closed: %s pnl=%.2f", p.Symbol, reason, trade.PnL)
	return b.journal.RecordTrade(journal.FromTrade(trade))
}

// PanicCloseAll flattens every position at current prices and disables signal
// generation until Rearm is called.
func (b *Bot) PanicCloseAll(ctx context.Context, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, p := range b.risk.Positions() {
		if _, err := b.exec.PlaceMarketOrder(ctx, p.Symbol, orderSide(p.Side, true), p.Quantity, true); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("panic close order for %s: %w", p.Symbol, err)
		}

		price, err := b.lastPrice(ctx, p.Symbol)
		if err != nil {
			price = p.EntryPrice
		}
		trade, err := b.risk.ClosePosition(p, price, risk.ReasonPanic, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := b.journal.RecordTrade(journal.FromTrade(trade)); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	b.risk.DisableSignals()
	b.log.Errorf("panic close-all executed, signals disabled until re-arm")
	return firstErr
}

// Rearm re-enables signal generation after a panic close-all.
func (b *Bot) Rearm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.risk.Rearm()
	b.log.Infof("signals re-armed")
}

func (b *Bot) lastPrice(ctx context.Context, symbol string) (float64, error) {
	candles, err := b.source.History(ctx, symbol, market.TF15m, 1)
	if err != nil {
		return 0, err
	}
	return candles[len(candles)-1].Close, nil
}

func (b *Bot) recordEquity(now time.Time) error {
	var unrealized, totalRisk float64
	positions := b.risk.Positions()
	if b.portfolio != nil {
		snap := b.portfolio.Snapshot(b.balance)
		unrealized = snap.TotalValue - b.balance
		totalRisk = snap.TotalRisk
	} else {
		for _, p := range positions {
			unrealized += p.UnrealizedPnL
		}
	}

	return b.journal.RecordEquity(journal.EquitySnapshot{
		Time:          now,
		Balance:       b.balance,
		Equity:        b.balance + unrealized,
		UnrealizedPnL: unrealized,
		OpenPositions: len(positions),
		TotalRisk:     totalRisk,
	})
}

func orderSide(side risk.Side, closing bool) broker.OrderSide {
	long := side == risk.Long
	if closing {
		long = !long
	}
	if long {
		return broker.Buy
	}
	return broker.Sell
}
