package risk

import (
	"fmt"
	"sync"
	"time"

	"krait/feature"
	"krait/logging"
	"krait/market"
	"krait/pkg/id"
)

// Manager owns the position lifecycle: admission-checked opens, trailing and
// dynamic stop updates, partial and full closes, and the emergency close-all.
// One mutex serializes all position and portfolio-guard state so admission
// checks and position creation are a single atomic step.
type Manager struct {
	mu sync.Mutex

	sizer    *Sizer
	exits    *ExitManager
	guard    Guard
	features *feature.Manager
	log      *logging.Logger

	positions      map[string]*Position
	closed         []Trade
	signalsEnabled bool

	currentRegime  string
	previousRegime string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithExits enables the advanced exit ladder.
func WithExits(e *ExitManager) ManagerOption {
	return func(m *Manager) { m.exits = e }
}

// WithGuard enables portfolio-level admission control.
func WithGuard(g Guard) ManagerOption {
	return func(m *Manager) { m.guard = g }
}

// NewManager creates a position Manager. Optional analyzers are registered on
// the feature manager by the caller; the Manager only consults it.
func NewManager(sizer *Sizer, features *feature.Manager, log *logging.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		sizer:          sizer,
		features:       features,
		log:            log,
		positions:      make(map[string]*Position),
		signalsEnabled: true,
		currentRegime:  market.RegimeUncertain,
		previousRegime: market.RegimeUncertain,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open sizes and creates a position for an entry signal. The portfolio guard
// is consulted BEFORE any position state is created; a rejected Decision
// carries the violations and no position exists afterwards.
func (m *Manager) Open(symbol string, side Side, price float64, at time.Time, balance, atr float64) (*Position, Decision, error) {
	if side != Long && side != Short {
		return nil, Decision{}, fmt.Errorf("invalid side: %q", side)
	}

	sizing, err := m.sizer.Size(balance, price, atr)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("size position: %w", err)
	}

	stop := price - sizing.StopDistance
	if side == Short {
		stop = price + sizing.StopDistance
	}

	candidate := &Position{
		Symbol:           symbol,
		Side:             side,
		EntryPrice:       price,
		Quantity:         sizing.Quantity,
		OriginalQuantity: sizing.Quantity,
		Leverage:         int(m.sizer.Leverage),
		StopLoss:         stop,
		TrailingStop:     stop,
		EntryTime:        at,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.positions[symbol]; exists {
		d := Decision{}
		d.Deny("POSITION_EXISTS", fmt.Sprintf("already have an open position for %s", symbol))
		return nil, d, nil
	}

	if m.guard != nil && m.features.Enabled(feature.PortfolioMgmt) {
		decision := feature.Execute(m.features, feature.PortfolioMgmt, Allow(), func() (Decision, error) {
			return m.guard.CanAdd(symbol, candidate, balance), nil
		})
		if !decision.Allowed {
			for _, v := range decision.Violations {
				m.log.Warnf("admission rejected %s: %s %s", symbol, v.Code, v.Msg)
			}
			return nil, decision, nil
		}

		feature.Execute(m.features, feature.PortfolioMgmt, struct{}{}, func() (struct{}, error) {
			m.guard.PositionOpened(symbol, candidate)
			return struct{}{}, nil
		})
	}

	m.positions[symbol] = candidate

	m.log.Infof("position opened: %s %s qty=%.4f at %.2f, stop=%.2f",
		symbol, side, candidate.Quantity, price, stop)

	return candidate, Allow(), nil
}

// UpdateStops advances the trailing stop and, when advanced exits are
// enabled, applies breakeven and momentum-reversal tightening. Also refreshes
// the position's unrealized PnL.
func (m *Manager) UpdateStops(p *Position, price, atr float64, momentumReversed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stop, err := m.sizer.TrailingStop(p, price, atr)
	if err != nil {
		return err
	}
	p.TrailingStop = stop
	p.UnrealizedPnL = p.PnLAt(price)

	if m.exits != nil && m.features.Enabled(feature.AdvancedExits) {
		feature.Execute(m.features, feature.AdvancedExits, struct{}{}, func() (struct{}, error) {
			m.exits.UpdateDynamicStops(p, price, atr, momentumReversed)
			return struct{}{}, nil
		})
	}

	return nil
}

// CheckPartialExit reports the fraction to close when a profit ladder level
// triggers.
func (m *Manager) CheckPartialExit(p *Position, price, atr float64) (float64, bool) {
	if m.exits == nil || !m.features.Enabled(feature.AdvancedExits) {
		return 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	type result struct {
		pct float64
		ok  bool
	}
	r := feature.Execute(m.features, feature.AdvancedExits, result{}, func() (result, error) {
		pct, ok := m.exits.CheckPartialExit(p, price, atr)
		return result{pct, ok}, nil
	})
	return r.pct, r.ok
}

// CheckTimeExit reports whether the position exceeded its maximum hold time.
func (m *Manager) CheckTimeExit(p *Position, now time.Time) bool {
	if m.exits == nil || !m.features.Enabled(feature.AdvancedExits) {
		return false
	}
	return feature.Execute(m.features, feature.AdvancedExits, false, func() (bool, error) {
		return m.exits.CheckTimeExit(p, now), nil
	})
}

// CheckRegimeExit reports whether the tracked regime transition requires
// closing the position.
func (m *Manager) CheckRegimeExit(p *Position) bool {
	if m.exits == nil || !m.features.Enabled(feature.AdvancedExits) {
		return false
	}

	m.mu.Lock()
	current, previous := m.currentRegime, m.previousRegime
	m.mu.Unlock()

	return feature.Execute(m.features, feature.AdvancedExits, false, func() (bool, error) {
		return m.exits.CheckRegimeExit(p, current, previous), nil
	})
}

// UpdateRegime records a regime transition for regime-based exits.
func (m *Manager) UpdateRegime(regime string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.previousRegime = m.currentRegime
	m.currentRegime = regime
	if m.previousRegime != m.currentRegime {
		m.log.Infof("regime changed: %s -> %s", m.previousRegime, m.currentRegime)
	}
}

// ExecutePartialExit closes a fraction of the position at exitPrice and
// returns the realized trade. The position's quantity shrinks in place.
func (m *Manager) ExecutePartialExit(p *Position, exitPrice, pct float64, at time.Time) (Trade, error) {
	if pct <= 0 || pct > 1 {
		return Trade{}, fmt.Errorf("invalid percentage: %v, must be in (0, 1]", pct)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	closeQty := p.Quantity * pct

	var pnl float64
	if p.Side == Long {
		pnl = (exitPrice - p.EntryPrice) * closeQty
	} else {
		pnl = (p.EntryPrice - exitPrice) * closeQty
	}

	value := p.EntryPrice * closeQty
	var pnlPct float64
	if value > 0 {
		pnlPct = pnl / value * 100
	}

	trade := Trade{
		ID:         id.New(),
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   closeQty,
		PnL:        pnl,
		PnLPercent: pnlPct,
		EntryTime:  p.EntryTime,
		ExitTime:   at,
		ExitReason: fmt.Sprintf("PARTIAL_EXIT_%d%%", int(pct*100)),
	}
	m.closed = append(m.closed, trade)

	p.Quantity -= closeQty
	p.UnrealizedPnL = p.PnLAt(exitPrice)

	m.log.Infof("partial exit: %s %s %.0f%% at %.2f, pnl=%.2f (%.2f%%)",
		p.Symbol, p.Side, pct*100, exitPrice, pnl, pnlPct)

	return trade, nil
}

// ClosePosition closes the full position at exitPrice and returns the trade
// record. The position is removed from the active set and the portfolio
// guard is notified.
func (m *Manager) ClosePosition(p *Position, exitPrice float64, reason string, at time.Time) (Trade, error) {
	switch reason {
	case ReasonStopLoss, ReasonTrailingStop, ReasonSignalExit, ReasonTakeProfit,
		ReasonPanic, ReasonTimeBased, ReasonRegimeChange:
	default:
		return Trade{}, fmt.Errorf("invalid exit reason: %q", reason)
	}
	if exitPrice <= 0 {
		return Trade{}, fmt.Errorf("exit price must be positive, got %v", exitPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeLocked(p, exitPrice, reason, at)
}

func (m *Manager) closeLocked(p *Position, exitPrice float64, reason string, at time.Time) (Trade, error) {
	var pnl float64
	if p.Side == Long {
		pnl = (exitPrice - p.EntryPrice) * p.Quantity
	} else {
		pnl = (p.EntryPrice - exitPrice) * p.Quantity
	}

	value := p.EntryPrice * p.Quantity
	var pnlPct float64
	if value > 0 {
		pnlPct = pnl / value * 100
	}

	trade := Trade{
		ID:         id.New(),
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   p.Quantity,
		PnL:        pnl,
		PnLPercent: pnlPct,
		EntryTime:  p.EntryTime,
		ExitTime:   at,
		ExitReason: reason,
	}
	m.closed = append(m.closed, trade)

	if m.guard != nil && m.features.Enabled(feature.PortfolioMgmt) {
		feature.Execute(m.features, feature.PortfolioMgmt, struct{}{}, func() (struct{}, error) {
			m.guard.PositionClosed(p.Symbol, pnl)
			return struct{}{}, nil
		})
	}

	delete(m.positions, p.Symbol)

	if m.exits != nil {
		m.exits.ResetTracking(p.Symbol)
	}

	m.log.Infof("position closed: %s %s at %.2f, pnl=%.2f (%.2f%%), reason=%s",
		p.Symbol, p.Side, exitPrice, pnl, pnlPct, reason)

	return trade, nil
}

// CloseAll is the panic button: every active position closes at the given
// price and signal generation is disabled until Rearm is called.
func (m *Manager) CloseAll(price float64, at time.Time) ([]Trade, error) {
	if price <= 0 {
		return nil, fmt.Errorf("price must be positive, got %v", price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	open := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, p)
	}

	trades := make([]Trade, 0, len(open))
	for _, p := range open {
		trade, err := m.closeLocked(p, price, ReasonPanic, at)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
	}

	m.signalsEnabled = false
	m.log.Errorf("panic close: %d positions closed, signal generation disabled", len(trades))

	return trades, nil
}

// DisableSignals stops new entries without closing anything. Used by callers
// that flatten positions at per-symbol prices before pulling the plug.
func (m *Manager) DisableSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signalsEnabled = false
	m.log.Errorf("signal generation disabled")
}

// SignalsEnabled reports whether new entry signals may be acted on.
func (m *Manager) SignalsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signalsEnabled
}

// Rearm re-enables signal generation after a panic close. This is an
// explicit operator action, never automatic.
func (m *Manager) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signalsEnabled = true
	m.log.Infof("signal generation re-armed")
}

// Position returns the active position for a symbol.
func (m *Manager) Position(symbol string) (*Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[symbol]
	return p, ok
}

// HasPosition reports whether a symbol has an open position.
func (m *Manager) HasPosition(symbol string) bool {
	_, ok := m.Position(symbol)
	return ok
}

// Positions returns all active positions.
func (m *Manager) Positions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// ClosedTrades returns a copy of the realized trade history.
func (m *Manager) ClosedTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Trade, len(m.closed))
	copy(out, m.closed)
	return out
}
