// Package portfolio implements correlation-aware capital allocation across
// symbols and the admission guard consulted before any position is created.
package portfolio

import (
	"fmt"
	"math"
	"time"

	"krait/config"
	"krait/logging"
	"krait/market"
	"krait/risk"
)

// Violation codes returned by CanAdd.
const (
	CodeUnknownSymbol = "UNKNOWN_SYMBOL"
	CodeTotalRisk     = "TOTAL_RISK"
)

// Metrics is the portfolio-level view used for journaling and display.
type Metrics struct {
	TotalValue           float64
	TotalPnL             float64
	PerSymbolPnL         map[string]float64
	TotalRisk            float64 // fraction of balance at risk across all stops
	DiversificationRatio float64 // open positions / tracked symbols
}

// Manager tracks open positions and realized PnL per symbol, maintains the
// pairwise correlation matrix, and allocates capital by signal confidence.
//
// Manager carries no lock of its own: it is driven through the risk
// manager's mutex, which already serializes admission checks, position
// creation and closes into one atomic step.
type Manager struct {
	cfg config.PortfolioConfig
	log *logging.Logger

	symbols       []string
	positions     map[string]*risk.Position
	perSymbolPnL  map[string]float64
	correlations  map[string]map[string]float64
	lastRebalance time.Time
}

// NewManager tracks the configured symbols, capped at the portfolio maximum.
func NewManager(cfg config.PortfolioConfig, symbols []string, log *logging.Logger) *Manager {
	if len(symbols) > cfg.MaxSymbols {
		symbols = symbols[:cfg.MaxSymbols]
	}

	m := &Manager{
		cfg:          cfg,
		log:          log,
		symbols:      append([]string(nil), symbols...),
		positions:    make(map[string]*risk.Position),
		perSymbolPnL: make(map[string]float64),
		correlations: make(map[string]map[string]float64),
	}
	for _, s := range symbols {
		m.perSymbolPnL[s] = 0
	}

	log.Infof("portfolio manager tracking %d symbols: %v", len(m.symbols), m.symbols)
	return m
}

// Symbols returns the tracked symbols.
func (m *Manager) Symbols() []string {
	return append([]string(nil), m.symbols...)
}

// CanAdd simulates adding the candidate position and checks the portfolio
// risk limit. It implements risk.Guard and never mutates state.
func (m *Manager) CanAdd(symbol string, candidate *risk.Position, balance float64) risk.Decision {
	d := risk.Decision{Allowed: true}

	if !m.tracks(symbol) {
		d.Deny(CodeUnknownSymbol, fmt.Sprintf("%s is not a tracked portfolio symbol", symbol))
		return d
	}

	total := m.riskWith(symbol, candidate, balance)
	if total > m.cfg.MaxTotalRisk {
		d.Deny(CodeTotalRisk, fmt.Sprintf(
			"adding %s would put %.2f%% of the portfolio at risk (limit %.2f%%)",
			symbol, total*100, m.cfg.MaxTotalRisk*100))
	}
	return d
}

// PositionOpened records a newly created position.
func (m *Manager) PositionOpened(symbol string, p *risk.Position) {
	m.positions[symbol] = p
}

// PositionClosed drops the position and accumulates its realized PnL.
func (m *Manager) PositionClosed(symbol string, realizedPnL float64) {
	delete(m.positions, symbol)
	m.perSymbolPnL[symbol] += realizedPnL
}

// UpdateCorrelations rebuilds the pairwise correlation matrix from daily
// candles per symbol.
func (m *Manager) UpdateCorrelations(daily map[string][]market.Candle) {
	m.correlations = make(map[string]map[string]float64)

	for i, s1 := range m.symbols {
		for _, s2 := range m.symbols[i+1:] {
			r := Correlation(daily[s1], daily[s2])
			m.setCorrelation(s1, s2, r)
			m.setCorrelation(s2, s1, r)
		}
	}
	m.log.Debugf("correlation matrix rebuilt for %d symbols", len(m.symbols))
}

// CorrelationOf returns the stored correlation between two symbols.
func (m *Manager) CorrelationOf(s1, s2 string) float64 {
	return m.correlations[s1][s2]
}

// Allocate splits the balance across symbols in proportion to signal
// confidence, then applies the single-symbol cap, the correlated-pair
// exposure limit, and finally scales everything down if the total exceeds
// the balance. Symbols with zero confidence get nothing.
func (m *Manager) Allocate(confidences map[string]float64, balance float64) map[string]float64 {
	allocations := make(map[string]float64, len(m.symbols))
	for _, s := range m.symbols {
		allocations[s] = 0
	}

	var totalConfidence float64
	for _, s := range m.symbols {
		if c := confidences[s]; c > 0 {
			totalConfidence += c
		}
	}
	if totalConfidence == 0 {
		return allocations
	}

	maxSingle := balance * m.cfg.MaxSingleAllocation
	for _, s := range m.symbols {
		c := confidences[s]
		if c <= 0 {
			continue
		}
		allocations[s] = math.Min(c/totalConfidence*balance, maxSingle)
	}

	m.applyCorrelationLimits(allocations, balance)

	var total float64
	for _, a := range allocations {
		total += a
	}
	if total > balance {
		scale := balance / total
		for s := range allocations {
			allocations[s] *= scale
		}
	}

	return allocations
}

// applyCorrelationLimits caps the combined allocation of every highly
// correlated pair, repeating until no pair violates the limit. The iteration
// cap guards against oscillation between overlapping pairs.
func (m *Manager) applyCorrelationLimits(allocations map[string]float64, balance float64) {
	maxExposure := balance * m.cfg.CorrelationMaxExp

	for iter := 0; iter < 10; iter++ {
		adjusted := false

		for i, s1 := range m.symbols {
			for _, s2 := range m.symbols[i+1:] {
				if allocations[s1] == 0 || allocations[s2] == 0 {
					continue
				}
				if math.Abs(m.CorrelationOf(s1, s2)) <= m.cfg.CorrelationThreshold {
					continue
				}

				combined := allocations[s1] + allocations[s2]
				if combined <= maxExposure {
					continue
				}

				scale := maxExposure / combined
				allocations[s1] *= scale
				allocations[s2] *= scale
				adjusted = true

				m.log.Infof("correlated exposure reduced for %s/%s: corr=%.2f combined=%.2f max=%.2f",
					s1, s2, m.CorrelationOf(s1, s2), combined, maxExposure)
			}
		}

		if !adjusted {
			return
		}
	}
}

// Rebalance recomputes allocations when the rebalance interval has elapsed.
// The second return is false when it is not yet due.
func (m *Manager) Rebalance(confidences map[string]float64, balance float64, now time.Time) (map[string]float64, bool) {
	interval := time.Duration(m.cfg.RebalanceIntervalSec) * time.Second
	if !m.lastRebalance.IsZero() && now.Sub(m.lastRebalance) < interval {
		return nil, false
	}

	m.log.Infof("rebalancing portfolio")
	m.lastRebalance = now
	return m.Allocate(confidences, balance), true
}

// CorrelatedExposure sums the notional of open positions in symbols highly
// correlated with the given one.
func (m *Manager) CorrelatedExposure(symbol string) float64 {
	var exposure float64
	for _, other := range m.symbols {
		if other == symbol {
			continue
		}
		if math.Abs(m.CorrelationOf(symbol, other)) <= m.cfg.CorrelationThreshold {
			continue
		}
		if p, ok := m.positions[other]; ok {
			exposure += p.Notional()
		}
	}
	return exposure
}

// Snapshot computes the portfolio metrics for the given balance.
func (m *Manager) Snapshot(balance float64) Metrics {
	var unrealized float64
	for _, p := range m.positions {
		unrealized += p.UnrealizedPnL
	}

	var realized float64
	pnl := make(map[string]float64, len(m.perSymbolPnL))
	for s, v := range m.perSymbolPnL {
		realized += v
		pnl[s] = v
	}

	metrics := Metrics{
		TotalValue:   balance + unrealized,
		TotalPnL:     realized + unrealized,
		PerSymbolPnL: pnl,
		TotalRisk:    m.riskWith("", nil, balance),
	}
	if len(m.symbols) > 0 {
		metrics.DiversificationRatio = float64(len(m.positions)) / float64(len(m.symbols))
	}
	return metrics
}

// riskWith computes the total stop-loss risk as a fraction of balance, with
// an optional candidate position included.
func (m *Manager) riskWith(symbol string, candidate *risk.Position, balance float64) float64 {
	if balance <= 0 {
		return 0
	}

	var total float64
	add := func(p *risk.Position) {
		if p.EntryPrice == 0 {
			return
		}
		total += p.StopDistance() / p.EntryPrice * p.Notional()
	}

	for s, p := range m.positions {
		if candidate != nil && s == symbol {
			continue // candidate replaces any stale entry for its symbol
		}
		add(p)
	}
	if candidate != nil {
		add(candidate)
	}

	return total / balance
}

func (m *Manager) tracks(symbol string) bool {
	for _, s := range m.symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func (m *Manager) setCorrelation(a, b string, r float64) {
	if m.correlations[a] == nil {
		m.correlations[a] = make(map[string]float64)
	}
	m.correlations[a][b] = r
}
