package risk

import (
	"fmt"

	"krait/config"
)

// Sizing is the result of a position size calculation.
type Sizing struct {
	Quantity       float64
	StopDistance   float64
	StopPrice      float64 // entry minus stop distance, for reference
	MarginRequired float64
}

// Sizer calculates position sizes from the fixed-fraction risk rule with
// ATR-based stops.
type Sizer struct {
	RiskPerTrade float64
	StopATRMult  float64
	TrailATRMult float64
	Leverage     float64
	MinOrderSize float64
}

// NewSizer builds a Sizer from the risk section of the configuration.
func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		RiskPerTrade: cfg.RiskPerTrade,
		StopATRMult:  cfg.StopATRMult,
		TrailATRMult: cfg.TrailATRMult,
		Leverage:     float64(cfg.Leverage),
		MinOrderSize: cfg.MinOrderSize,
	}
}

// Size calculates the position size for an entry at the given price.
//
//	risk amount   = balance × risk per trade
//	stop distance = stop multiplier × ATR
//	quantity      = risk amount / stop distance
//	margin        = quantity × entry / leverage
//
// Quantity is floored at the exchange minimum order size (accepting slightly
// more risk), and capped so the required margin never exceeds the balance.
func (s *Sizer) Size(balance, entry, atr float64) (Sizing, error) {
	if balance <= 0 {
		return Sizing{}, fmt.Errorf("balance must be positive, got %v", balance)
	}
	if entry <= 0 {
		return Sizing{}, fmt.Errorf("entry price must be positive, got %v", entry)
	}
	if atr <= 0 {
		return Sizing{}, fmt.Errorf("atr must be positive, got %v", atr)
	}

	riskAmount := balance * s.RiskPerTrade
	stopDistance := s.StopATRMult * atr

	qty := riskAmount / stopDistance
	if qty < s.MinOrderSize {
		qty = s.MinOrderSize
	}

	margin := qty * entry / s.Leverage
	if margin > balance {
		qty = balance * s.Leverage / entry
		margin = qty * entry / s.Leverage
	}

	return Sizing{
		Quantity:       qty,
		StopDistance:   stopDistance,
		StopPrice:      entry - stopDistance,
		MarginRequired: margin,
	}, nil
}

// TrailingStop returns the new trailing stop for a position, placed at the
// trail multiplier × ATR from the current price. The stop only tightens:
// it moves up for longs and down for shorts, never the other way.
func (s *Sizer) TrailingStop(p *Position, price, atr float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("price must be positive, got %v", price)
	}
	if atr <= 0 {
		return 0, fmt.Errorf("atr must be positive, got %v", atr)
	}

	distance := s.TrailATRMult * atr

	switch p.Side {
	case Long:
		if stop := price - distance; stop > p.TrailingStop {
			return stop, nil
		}
		return p.TrailingStop, nil
	case Short:
		if stop := price + distance; stop < p.TrailingStop {
			return stop, nil
		}
		return p.TrailingStop, nil
	}
	return 0, fmt.Errorf("invalid position side: %q", p.Side)
}
