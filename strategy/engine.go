package strategy

import (
	"time"

	"krait/config"
	"krait/feature"
	"krait/indicators"
	"krait/logging"
	"krait/market"
)

// Engine turns candle data into entry signals. All indicator math runs on
// the 15m entry timeframe with a 1h trend filter; the optional analyzers
// (adaptive thresholds, multi-timeframe alignment, volume profile, regime
// detection, ML gate) refine or veto the base conditions and run behind the
// feature manager so their failures degrade instead of propagate.
type Engine struct {
	cfg      *config.Config
	features *feature.Manager
	log      *logging.Logger

	snapshot       Snapshot
	prevSqueezeCol string

	adaptive   *AdaptiveThresholds
	timeframes *TimeframeCoordinator
	profiler   *VolumeProfiler
	regimes    *RegimeDetector
	ml         *MLScorer

	tfAnalysis   *TimeframeAnalysis
	regimeParams *RegimeParams
	mlScore      float64
}

// NewEngine constructs the engine and registers the analyzers enabled in the
// configuration with the feature manager. Multi-timeframe analysis is
// registered as critical: its errors are logged but never disable it, since
// alignment gating is a hard requirement of the entry logic.
func NewEngine(cfg *config.Config, features *feature.Manager, log *logging.Logger) *Engine {
	e := &Engine{
		cfg:            cfg,
		features:       features,
		log:            log,
		prevSqueezeCol: indicators.ColorGray,
		mlScore:        0.5,
	}

	if cfg.Features.AdaptiveThresholds {
		e.adaptive = NewAdaptiveThresholds(cfg.Adaptive, cfg.Indicators, log)
		features.Register(feature.AdaptiveThresholds, true, true)
	}
	if cfg.Features.MultiTimeframe {
		e.timeframes = NewTimeframeCoordinator(cfg.Timeframes, cfg.Indicators)
		features.Register(feature.MultiTimeframe, true, false)
	}
	if cfg.Features.VolumeProfile {
		e.profiler = NewVolumeProfiler(cfg.Volume, log)
		features.Register(feature.VolumeProfile, true, true)
	}
	if cfg.Features.RegimeDetection {
		e.regimes = NewRegimeDetector(cfg.Regime, cfg.Indicators, cfg.Risk.StopATRMult, log)
		features.Register(feature.RegimeDetection, true, true)
	}
	if cfg.Features.MLPrediction {
		e.ml = NewMLScorer(cfg.ML, log)
		features.Register(feature.MLPrediction, true, true)
	}

	return e
}

// Snapshot returns the indicator state from the last update.
func (e *Engine) Snapshot() Snapshot { return e.snapshot }

// Regime returns the confirmed market regime, or UNCERTAIN when regime
// detection is off.
func (e *Engine) Regime() string {
	if e.regimes == nil {
		return market.RegimeUncertain
	}
	return e.regimes.Current()
}

// MLScore returns the last bullish continuation probability.
func (e *Engine) MLScore() float64 { return e.mlScore }

// UpdateIndicators recalculates all indicator state from the latest candles.
// The map is keyed by timeframe; 15m and 1h are required, 5m and 4h feed the
// multi-timeframe analysis when present. Updates are skipped entirely while
// there is not enough data for the full indicator set.
func (e *Engine) UpdateIndicators(candles map[market.Timeframe][]market.Candle, now time.Time) {
	c15 := candles[market.TF15m]
	c1h := candles[market.TF1h]

	if !e.hasSufficientData(c15, c1h) {
		e.log.Warnf("insufficient data for indicators: 15m=%d 1h=%d", len(c15), len(c1h))
		return
	}

	if e.adaptive != nil && e.features.Enabled(feature.AdaptiveThresholds) && e.adaptive.ShouldUpdate(now) {
		feature.Execute(e.features, feature.AdaptiveThresholds, e.adaptive.Current(), func() (Thresholds, error) {
			return e.adaptive.Update(c1h, now)
		})
	}

	e.tfAnalysis = nil
	if e.timeframes != nil && e.features.Enabled(feature.MultiTimeframe) {
		// Only run with all four timeframes present, so missing data during
		// startup is not counted as a feature error.
		if len(candles[market.TF5m]) > 0 && len(candles[market.TF4h]) > 0 {
			e.tfAnalysis = feature.Execute(e.features, feature.MultiTimeframe, nil, func() (*TimeframeAnalysis, error) {
				return e.timeframes.Analyze(candles)
			})
		} else {
			e.log.Debugf("multi-timeframe: 5m or 4h data not available yet")
		}
	}

	if e.profiler != nil && e.features.Enabled(feature.VolumeProfile) && e.profiler.ShouldUpdate(now) {
		feature.Execute(e.features, feature.VolumeProfile, nil, func() (*Profile, error) {
			return e.profiler.Calculate(c15, now)
		})
	}

	if e.regimes != nil && e.features.Enabled(feature.RegimeDetection) && e.regimes.ShouldUpdate(now) {
		feature.Execute(e.features, feature.RegimeDetection, market.RegimeUncertain, func() (string, error) {
			return e.regimes.Detect(c15, now)
		})
		params := e.regimes.Parameters(e.regimes.Current())
		e.regimeParams = &params
	}

	if e.ml != nil && e.ml.Enabled() && e.features.Enabled(feature.MLPrediction) {
		e.mlScore = feature.Execute(e.features, feature.MLPrediction, 0.5, func() (float64, error) {
			return e.ml.Predict(c15)
		})
		if e.ml.ShouldDisable() {
			e.features.Disable(feature.MLPrediction)
			e.mlScore = 0.5
		}
	} else {
		e.mlScore = 0.5
	}

	anchor := market.WeekAnchor(c15[len(c15)-1].Time)

	snap := Snapshot{
		Price:   c15[len(c15)-1].Close,
		VWAP15m: indicators.VWAP(c15, anchor),
		VWAP1h:  indicators.VWAP(c1h, anchor),
		ATR15m:  indicators.ATR(c15, e.cfg.Indicators.ATRPeriod),
		ATR1h:   indicators.ATR(c1h, e.cfg.Indicators.ATRPeriod),
		ADX:     indicators.ADX(c15, e.cfg.Indicators.ADXPeriod),
		RVOL:    indicators.RVOL(c15, e.cfg.Indicators.RVOLPeriod),
	}

	squeeze := indicators.SqueezeMomentum(c15)
	snap.SqueezeValue = squeeze.Value
	snap.SqueezeColor = squeeze.Color
	snap.Squeezed = squeeze.Squeezed
	e.prevSqueezeCol = e.snapshot.SqueezeColor

	snap.Trend15m = indicators.Trend(c15, snap.VWAP15m)
	snap.Trend1h = indicators.Trend(c1h, snap.VWAP1h)

	if snap.Price > snap.VWAP15m {
		snap.PriceVsVWAP = "ABOVE"
	} else {
		snap.PriceVsVWAP = "BELOW"
	}

	e.snapshot = snap
}

// CheckLongEntry returns a long signal when every entry condition holds:
// price above VWAP, both trends bullish, rising positive squeeze momentum,
// and ADX and RVOL above their (possibly adaptive and regime-scaled)
// thresholds. The optional analyzers veto first.
func (e *Engine) CheckLongEntry(symbol string, now time.Time) *Signal {
	if e.ml != nil && e.ml.Enabled() && e.mlScore < e.cfg.ML.LowConfidence {
		return nil
	}
	if e.regimeParams != nil && e.regimeParams.Strategy == StrategyNone {
		return nil
	}
	if e.tfAnalysis != nil {
		if e.tfAnalysis.Alignment < e.cfg.Timeframes.MinAlignment {
			return nil
		}
		if e.tfAnalysis.Direction != indicators.TrendBullish {
			return nil
		}
	}

	adxThr, rvolThr := e.currentThresholds()

	s := e.snapshot
	if s.PriceVsVWAP != "ABOVE" ||
		s.Trend15m != indicators.TrendBullish ||
		s.Trend1h != indicators.TrendBullish ||
		s.SqueezeValue <= 0 ||
		s.SqueezeColor != indicators.ColorGreen ||
		s.ADX <= adxThr ||
		s.RVOL <= rvolThr {
		return nil
	}

	sig := &Signal{
		Type:       LongEntry,
		Symbol:     symbol,
		Price:      s.Price,
		Confidence: 0.5,
		Timestamp:  now,
		Indicators: s,
	}
	if e.tfAnalysis != nil {
		sig.Confidence = e.tfAnalysis.Confidence
	}
	if e.ml != nil && e.ml.Enabled() && e.mlScore > e.cfg.ML.HighConfidence {
		sig.Confidence = minFloat(1.0, sig.Confidence*1.2)
	}
	return sig
}

// CheckShortEntry mirrors CheckLongEntry for the bearish side: price below
// VWAP, both trends bearish, falling negative squeeze momentum.
func (e *Engine) CheckShortEntry(symbol string, now time.Time) *Signal {
	if e.ml != nil && e.ml.Enabled() && e.mlScore > 1.0-e.cfg.ML.LowConfidence {
		return nil
	}
	if e.regimeParams != nil && e.regimeParams.Strategy == StrategyNone {
		return nil
	}
	if e.tfAnalysis != nil {
		if e.tfAnalysis.Alignment < e.cfg.Timeframes.MinAlignment {
			return nil
		}
		if e.tfAnalysis.Direction != indicators.TrendBearish {
			return nil
		}
	}

	adxThr, rvolThr := e.currentThresholds()

	s := e.snapshot
	if s.PriceVsVWAP != "BELOW" ||
		s.Trend15m != indicators.TrendBearish ||
		s.Trend1h != indicators.TrendBearish ||
		s.SqueezeValue >= 0 ||
		s.SqueezeColor != indicators.ColorMaroon ||
		s.ADX <= adxThr ||
		s.RVOL <= rvolThr {
		return nil
	}

	sig := &Signal{
		Type:       ShortEntry,
		Symbol:     symbol,
		Price:      s.Price,
		Confidence: 0.5,
		Timestamp:  now,
		Indicators: s,
	}
	if e.tfAnalysis != nil {
		sig.Confidence = e.tfAnalysis.Confidence
	}
	if e.ml != nil && e.ml.Enabled() && e.mlScore < 1.0-e.cfg.ML.HighConfidence {
		sig.Confidence = minFloat(1.0, sig.Confidence*1.2)
	}
	return sig
}

// currentThresholds resolves the ADX and RVOL gates: static config values,
// overridden by the adaptive manager when present, scaled by the regime
// multiplier when a regime is confirmed.
func (e *Engine) currentThresholds() (adx, rvol float64) {
	adx = e.cfg.Indicators.ADXThreshold
	rvol = e.cfg.Indicators.RVOLThreshold

	if e.adaptive != nil {
		thr := e.adaptive.Current()
		adx, rvol = thr.ADX, thr.RVOL
	}
	if e.regimeParams != nil {
		adx *= e.regimeParams.ThresholdMult
		rvol *= e.regimeParams.ThresholdMult
	}
	return adx, rvol
}

// SizeMultiplier combines the volume profile and regime position size
// adjustments for the current price.
func (e *Engine) SizeMultiplier() float64 {
	mult := 1.0
	if e.profiler != nil && e.features.Enabled(feature.VolumeProfile) {
		mult *= e.profiler.SizeAdjustment(e.snapshot.Price)
	}
	if e.regimeParams != nil {
		mult *= e.regimeParams.SizeMult
	}
	return mult
}

// MomentumReversed reports whether squeeze momentum flipped from rising to
// fading between the last two updates, which the exit logic uses to tighten
// stops on positions in profit.
func (e *Engine) MomentumReversed() bool {
	prev, cur := e.prevSqueezeCol, e.snapshot.SqueezeColor
	if prev == indicators.ColorGreen && cur != indicators.ColorGreen {
		return true
	}
	return prev == indicators.ColorMaroon && cur != indicators.ColorMaroon
}

// RecordMLOutcome feeds realized direction back into the accuracy window.
func (e *Engine) RecordMLOutcome(prediction float64, wentUp bool) {
	if e.ml != nil {
		e.ml.RecordOutcome(prediction, wentUp)
	}
}

// hasSufficientData checks the warmup minimums: ATR and ADX need twice their
// period, RVOL one extra candle, squeeze momentum its 20-candle window.
func (e *Engine) hasSufficientData(c15, c1h []market.Candle) bool {
	min15 := maxInt(
		2*e.cfg.Indicators.ATRPeriod,
		2*e.cfg.Indicators.ADXPeriod,
		e.cfg.Indicators.RVOLPeriod+1,
		20,
	)
	min1h := maxInt(2*e.cfg.Indicators.ATRPeriod, 3)
	return len(c15) >= min15 && len(c1h) >= min1h
}

func maxInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
