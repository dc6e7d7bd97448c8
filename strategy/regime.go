package strategy

import (
	"time"

	"krait/config"
	"krait/indicators"
	"krait/logging"
	"krait/market"
)

// Strategy styles attached to regime parameters.
const (
	StrategyTrendFollowing = "TREND_FOLLOWING"
	StrategyMeanReversion  = "MEAN_REVERSION"
	StrategyNone           = "NONE"
)

// RegimeParams are the trading adjustments for a market regime.
type RegimeParams struct {
	Regime        string
	StopMult      float64
	ThresholdMult float64
	SizeMult      float64
	Strategy      string
}

type regimeSample struct {
	at     time.Time
	regime string
}

// RegimeDetector classifies market conditions from ADX, ATR percentile and
// price versus VWAP. A classification is only promoted to the current regime
// after it has held for the configured stability window, so a single noisy
// candle cannot flip the strategy's behavior.
type RegimeDetector struct {
	cfg         config.RegimeConfig
	ind         config.IndicatorConfig
	stopATRMult float64
	log         *logging.Logger

	current    string
	history    []regimeSample
	lastUpdate time.Time
}

// NewRegimeDetector starts in the UNCERTAIN regime.
func NewRegimeDetector(cfg config.RegimeConfig, ind config.IndicatorConfig, stopATRMult float64, log *logging.Logger) *RegimeDetector {
	return &RegimeDetector{
		cfg:         cfg,
		ind:         ind,
		stopATRMult: stopATRMult,
		log:         log,
		current:     market.RegimeUncertain,
	}
}

// Current returns the confirmed regime.
func (d *RegimeDetector) Current() string { return d.current }

// ShouldUpdate reports whether the update interval has elapsed.
func (d *RegimeDetector) ShouldUpdate(now time.Time) bool {
	if d.lastUpdate.IsZero() {
		return true
	}
	return now.Sub(d.lastUpdate) >= time.Duration(d.cfg.UpdateIntervalSec)*time.Second
}

// Detect classifies the market and records the sample. The confirmed regime
// only changes once the same classification has held for the stability
// window.
func (d *RegimeDetector) Detect(candles []market.Candle, now time.Time) (string, error) {
	if len(candles) < 30 {
		return market.RegimeUncertain, nil
	}

	adx := indicators.ADX(candles, d.ind.ADXPeriod)
	atr := indicators.ATR(candles, d.ind.ATRPeriod)
	vwap := indicators.VWAP(candles, candles[0].Time)
	atrPct := d.atrPercentile(candles, atr)
	price := candles[len(candles)-1].Close

	regime := d.classify(adx, atrPct, price, vwap)

	d.history = append(d.history, regimeSample{at: now, regime: regime})
	d.prune(now)

	if regime != d.current && d.stableFor(regime, now) {
		d.log.Infof("regime confirmed: %s -> %s (adx=%.1f atr_pct=%.0f)",
			d.current, regime, adx, atrPct)
		d.current = regime
	}
	d.lastUpdate = now

	return regime, nil
}

func (d *RegimeDetector) classify(adx, atrPct, price, vwap float64) string {
	// Volatility has priority; a violent market is volatile no matter what
	// ADX says.
	if atrPct > d.cfg.VolatileATRPct {
		return market.RegimeVolatile
	}
	if adx > d.cfg.TrendingADX {
		if price > vwap {
			return market.RegimeTrendingBull
		}
		return market.RegimeTrendingBear
	}
	if adx < d.cfg.RangingADX && atrPct < d.cfg.RangingATRPct {
		return market.RegimeRanging
	}
	return market.RegimeUncertain
}

// atrPercentile ranks the current ATR against a rolling distribution built
// from the same candles.
func (d *RegimeDetector) atrPercentile(candles []market.Candle, current float64) float64 {
	if current == 0 {
		return 50.0
	}

	window := d.ind.ATRPeriod + 1
	var atrs []float64
	for i := window; i <= len(candles); i++ {
		atr := indicators.ATR(candles[i-window:i], d.ind.ATRPeriod)
		if atr > 0 {
			atrs = append(atrs, atr)
		}
	}
	if len(atrs) == 0 {
		return 50.0
	}

	rank := 0
	for _, atr := range atrs {
		if atr <= current {
			rank++
		}
	}
	return float64(rank) / float64(len(atrs)) * 100.0
}

// stableFor reports whether every sample in the stability window matches the
// candidate regime and the window is actually covered.
func (d *RegimeDetector) stableFor(regime string, now time.Time) bool {
	window := time.Duration(d.cfg.StabilityMinutes) * time.Minute
	cutoff := now.Add(-window)

	covered := false
	for _, s := range d.history {
		if s.regime != regime {
			if s.at.After(cutoff) {
				return false
			}
			continue
		}
		if !s.at.After(cutoff) || now.Sub(s.at) >= window {
			covered = true
		}
	}
	return covered
}

// prune drops samples older than 24 hours.
func (d *RegimeDetector) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	kept := d.history[:0]
	for _, s := range d.history {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	d.history = kept
}

// Parameters returns the trading adjustments for a regime.
func (d *RegimeDetector) Parameters(regime string) RegimeParams {
	switch regime {
	case market.RegimeTrendingBull, market.RegimeTrendingBear:
		return RegimeParams{
			Regime:        regime,
			StopMult:      d.cfg.TrendingStopMult,
			ThresholdMult: 1.0,
			SizeMult:      1.0,
			Strategy:      StrategyTrendFollowing,
		}
	case market.RegimeRanging:
		return RegimeParams{
			Regime:        regime,
			StopMult:      d.cfg.RangingStopMult,
			ThresholdMult: 1.0,
			SizeMult:      1.0,
			Strategy:      StrategyMeanReversion,
		}
	case market.RegimeVolatile:
		return RegimeParams{
			Regime:        regime,
			StopMult:      d.cfg.TrendingStopMult,
			ThresholdMult: 1.0 + d.cfg.VolatileThreshInc,
			SizeMult:      d.cfg.VolatileSizeFactor,
			Strategy:      StrategyTrendFollowing,
		}
	default:
		return RegimeParams{
			Regime:        regime,
			StopMult:      d.stopATRMult,
			ThresholdMult: 1.0,
			SizeMult:      0.5,
			Strategy:      StrategyNone,
		}
	}
}
