package strategy

import (
	"errors"
	"time"

	"krait/config"
	"krait/indicators"
	"krait/logging"
	"krait/market"
)

// Thresholds holds the entry gate thresholds currently in effect.
type Thresholds struct {
	ADX  float64
	RVOL float64
}

// AdaptiveThresholds scales the ADX and RVOL gates with market volatility.
// The current 24-hour ATR is ranked against its distribution over the
// lookback period; quiet markets get looser gates and noisy markets get
// stricter ones, clamped to the configured bounds.
type AdaptiveThresholds struct {
	cfg config.AdaptiveConfig
	ind config.IndicatorConfig
	log *logging.Logger

	current    Thresholds
	percentile float64
	lastUpdate time.Time
}

// NewAdaptiveThresholds starts from the static thresholds in the indicator
// configuration.
func NewAdaptiveThresholds(cfg config.AdaptiveConfig, ind config.IndicatorConfig, log *logging.Logger) *AdaptiveThresholds {
	return &AdaptiveThresholds{
		cfg:        cfg,
		ind:        ind,
		log:        log,
		current:    Thresholds{ADX: ind.ADXThreshold, RVOL: ind.RVOLThreshold},
		percentile: 50.0,
	}
}

// Current returns the thresholds in effect.
func (a *AdaptiveThresholds) Current() Thresholds { return a.current }

// VolatilityPercentile returns the last computed percentile.
func (a *AdaptiveThresholds) VolatilityPercentile() float64 { return a.percentile }

// ShouldUpdate reports whether the update interval has elapsed.
func (a *AdaptiveThresholds) ShouldUpdate(now time.Time) bool {
	if a.lastUpdate.IsZero() {
		return true
	}
	return now.Sub(a.lastUpdate) >= time.Duration(a.cfg.UpdateIntervalSec)*time.Second
}

// Update recomputes the volatility percentile from hourly candles and derives
// new thresholds from it.
func (a *AdaptiveThresholds) Update(candles []market.Candle, now time.Time) (Thresholds, error) {
	if len(candles) == 0 {
		return a.current, errors.New("no candles for threshold update")
	}

	a.percentile = a.volatilityPercentile(candles)
	mult := thresholdMultiplier(a.percentile)

	adx := clamp(a.ind.ADXThreshold*mult, a.cfg.MinADX, a.cfg.MaxADX)
	rvol := clamp(a.ind.RVOLThreshold*mult, a.cfg.MinRVOL, a.cfg.MaxRVOL)

	a.log.Infof("adaptive thresholds: volatility_pct=%.1f mult=%.2f adx %.2f -> %.2f rvol %.2f -> %.2f",
		a.percentile, mult, a.current.ADX, adx, a.current.RVOL, rvol)

	a.current = Thresholds{ADX: adx, RVOL: rvol}
	a.lastUpdate = now
	return a.current, nil
}

// volatilityPercentile ranks the current 24-hour ATR against the distribution
// of 24-hour ATR values over the lookback period. Returns 50 when there is
// not enough history for a meaningful distribution.
func (a *AdaptiveThresholds) volatilityPercentile(candles []market.Candle) float64 {
	minNeeded := a.cfg.LookbackDays * 24
	if len(candles) < minNeeded {
		a.log.Warnf("adaptive thresholds: need %d hourly candles, have %d, keeping median percentile",
			minNeeded, len(candles))
		return 50.0
	}

	const window = 24

	var atrs []float64
	for i := 0; i+window < len(candles); i++ {
		atr := indicators.ATR(candles[i:i+window+1], 14)
		if atr > 0 {
			atrs = append(atrs, atr)
		}
	}
	if len(atrs) < 2 {
		return 50.0
	}

	current := indicators.ATR(candles[len(candles)-window-1:], 14)
	if current == 0 {
		return 50.0
	}

	below := 0
	for _, atr := range atrs {
		if atr < current {
			below++
		}
	}
	return float64(below) / float64(len(atrs)) * 100.0
}

// thresholdMultiplier maps a volatility percentile to a gate multiplier.
func thresholdMultiplier(percentile float64) float64 {
	switch {
	case percentile < 20:
		return 0.7
	case percentile < 40:
		return 0.85
	case percentile < 60:
		return 1.0
	case percentile < 80:
		return 1.15
	default:
		return 1.3
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
