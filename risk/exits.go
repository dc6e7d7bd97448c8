package risk

import (
	"time"

	"krait/config"
	"krait/logging"
	"krait/market"
)

// Exit ladder level names tracked per position.
const (
	levelPartial1 = "partial_1"
	levelPartial2 = "partial_2"
	levelFinal    = "final"
)

// ExitManager implements the scaled exit ladder: partial profit taking at
// fixed ATR multiples, breakeven and momentum-reversal stop tightening, and
// time- and regime-based exits.
type ExitManager struct {
	cfg config.ExitConfig
	log *logging.Logger

	// triggered ladder levels per symbol
	triggered map[string]map[string]bool
}

// NewExitManager creates an ExitManager from the exits section of the
// configuration.
func NewExitManager(cfg config.ExitConfig, log *logging.Logger) *ExitManager {
	return &ExitManager{
		cfg:       cfg,
		log:       log,
		triggered: make(map[string]map[string]bool),
	}
}

// CheckPartialExit reports the fraction of the position to close when a
// ladder level is reached, highest level first. The final level closes
// whatever the partial levels have not. Each level fires at most once per
// position.
func (e *ExitManager) CheckPartialExit(p *Position, price, atr float64) (float64, bool) {
	levels := e.triggered[p.Symbol]
	if levels == nil {
		levels = make(map[string]bool)
		e.triggered[p.Symbol] = levels
	}

	profitATR := p.ProfitATR(price, atr)

	if profitATR >= e.cfg.FinalATRMult && !levels[levelFinal] {
		levels[levelFinal] = true
		var closed float64
		if levels[levelPartial1] {
			closed += e.cfg.Partial1Pct
		}
		if levels[levelPartial2] {
			closed += e.cfg.Partial2Pct
		}
		remaining := 1.0 - closed
		e.log.Infof("final exit %s: profit=%.2fx ATR, closing %.0f%%",
			p.Symbol, profitATR, remaining*100)
		return remaining, true
	}

	if profitATR >= e.cfg.Partial2ATRMult && !levels[levelPartial2] {
		levels[levelPartial2] = true
		e.log.Infof("partial exit 2 %s: profit=%.2fx ATR, closing %.0f%%",
			p.Symbol, profitATR, e.cfg.Partial2Pct*100)
		return e.cfg.Partial2Pct, true
	}

	if profitATR >= e.cfg.Partial1ATRMult && !levels[levelPartial1] {
		levels[levelPartial1] = true
		e.log.Infof("partial exit 1 %s: profit=%.2fx ATR, closing %.0f%%",
			p.Symbol, profitATR, e.cfg.Partial1Pct*100)
		return e.cfg.Partial1Pct, true
	}

	return 0, false
}

// UpdateDynamicStops moves the trailing stop to breakeven once profit reaches
// the breakeven multiple, and tightens it to the tight-stop distance when
// momentum reverses while the position is in profit. Stops only tighten.
func (e *ExitManager) UpdateDynamicStops(p *Position, price, atr float64, momentumReversed bool) {
	profitATR := p.ProfitATR(price, atr)

	if profitATR >= e.cfg.BreakevenATRMult {
		if p.Side == Long && p.EntryPrice > p.TrailingStop {
			e.log.Infof("breakeven stop %s: profit=%.2fx ATR, stop %.2f -> %.2f",
				p.Symbol, profitATR, p.TrailingStop, p.EntryPrice)
			p.TrailingStop = p.EntryPrice
		} else if p.Side == Short && p.EntryPrice < p.TrailingStop {
			e.log.Infof("breakeven stop %s: profit=%.2fx ATR, stop %.2f -> %.2f",
				p.Symbol, profitATR, p.TrailingStop, p.EntryPrice)
			p.TrailingStop = p.EntryPrice
		}
	}

	if momentumReversed && profitATR > 0 {
		distance := atr * e.cfg.TightStopATRMult

		if p.Side == Long {
			if stop := price - distance; stop > p.TrailingStop {
				e.log.Infof("stop tightened %s on momentum reversal: %.2f -> %.2f",
					p.Symbol, p.TrailingStop, stop)
				p.TrailingStop = stop
			}
		} else {
			if stop := price + distance; stop < p.TrailingStop {
				e.log.Infof("stop tightened %s on momentum reversal: %.2f -> %.2f",
					p.Symbol, p.TrailingStop, stop)
				p.TrailingStop = stop
			}
		}
	}
}

// CheckTimeExit reports whether the position has been open longer than the
// maximum hold time as of now.
func (e *ExitManager) CheckTimeExit(p *Position, now time.Time) bool {
	held := now.Sub(p.EntryTime)
	if held >= time.Duration(e.cfg.MaxHoldHours)*time.Hour {
		e.log.Infof("time-based exit %s: held %.1fh (max %dh)",
			p.Symbol, held.Hours(), e.cfg.MaxHoldHours)
		return true
	}
	return false
}

// CheckRegimeExit reports whether the market regime moved from trending to
// ranging, which invalidates trend-following positions.
func (e *ExitManager) CheckRegimeExit(p *Position, current, previous string) bool {
	if !e.cfg.RegimeChangeExits {
		return false
	}

	wasTrending := previous == market.RegimeTrendingBull || previous == market.RegimeTrendingBear
	if wasTrending && current == market.RegimeRanging {
		e.log.Infof("regime exit %s: %s -> %s", p.Symbol, previous, current)
		return true
	}
	return false
}

// ResetTracking clears the ladder state for a symbol after its position
// closes.
func (e *ExitManager) ResetTracking(symbol string) {
	delete(e.triggered, symbol)
}

// TriggeredLevels returns the ladder levels already fired for a symbol.
func (e *ExitManager) TriggeredLevels(symbol string) []string {
	var out []string
	for level, hit := range e.triggered[symbol] {
		if hit {
			out = append(out, level)
		}
	}
	return out
}
