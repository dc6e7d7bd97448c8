package strategy

import (
	"krait/config"
	"krait/indicators"
	"krait/market"
)

// Volume trend labels for a single timeframe.
const (
	VolumeIncreasing = "INCREASING"
	VolumeDecreasing = "DECREASING"
	VolumeStable     = "STABLE"
)

// TimeframeData is the analysis of a single timeframe.
type TimeframeData struct {
	Trend       string
	Momentum    float64
	Volatility  float64
	VolumeTrend string
}

// TimeframeAnalysis is the consolidated multi-timeframe view.
type TimeframeAnalysis struct {
	Frames     map[market.Timeframe]TimeframeData
	Alignment  int     // timeframes agreeing on the dominant direction
	Confidence float64 // 0, 0.7 or 1.0 depending on alignment
	Direction  string  // BULLISH, BEARISH or NEUTRAL
}

// TimeframeCoordinator scores trend agreement across the 5m, 15m, 1h and 4h
// timeframes. Direction is decided by weighted voting with the higher
// timeframes carrying more weight.
type TimeframeCoordinator struct {
	weights   map[string]float64
	atrPeriod int
}

// NewTimeframeCoordinator uses the weights from the timeframes configuration.
func NewTimeframeCoordinator(cfg config.TimeframeConfig, ind config.IndicatorConfig) *TimeframeCoordinator {
	return &TimeframeCoordinator{
		weights:   cfg.Weights,
		atrPeriod: ind.ATRPeriod,
	}
}

// Analyze evaluates every supplied timeframe and consolidates alignment,
// confidence and overall direction. Timeframes with no candles are skipped.
func (tc *TimeframeCoordinator) Analyze(candles map[market.Timeframe][]market.Candle) (*TimeframeAnalysis, error) {
	analysis := &TimeframeAnalysis{
		Frames:    make(map[market.Timeframe]TimeframeData),
		Direction: indicators.TrendNeutral,
	}

	for _, tf := range []market.Timeframe{market.TF5m, market.TF15m, market.TF1h, market.TF4h} {
		cs, ok := candles[tf]
		if !ok || len(cs) == 0 {
			continue
		}
		analysis.Frames[tf] = tc.analyzeOne(cs)
	}

	analysis.Alignment = tc.alignment(analysis)
	analysis.Confidence = confidenceFromAlignment(analysis.Alignment)
	analysis.Direction = tc.direction(analysis)

	return analysis, nil
}

// analyzeOne computes trend, momentum, volatility and volume trend for one
// timeframe. Fewer than 20 candles yields a neutral result.
func (tc *TimeframeCoordinator) analyzeOne(candles []market.Candle) TimeframeData {
	if len(candles) < 20 {
		return TimeframeData{Trend: indicators.TrendNeutral, VolumeTrend: VolumeStable}
	}

	vwap := indicators.VWAP(candles, candles[0].Time)
	atr := indicators.ATR(candles, tc.atrPeriod)
	trend := indicators.Trend(candles, vwap)

	// 10-candle percentage change
	var momentum float64
	if base := candles[len(candles)-10].Close; base != 0 {
		momentum = (candles[len(candles)-1].Close - base) / base
	}

	return TimeframeData{
		Trend:       trend,
		Momentum:    momentum,
		Volatility:  atr,
		VolumeTrend: volumeTrend(candles),
	}
}

// volumeTrend compares the last 5 candles' average volume against the 5
// before them. A 20% swing either way counts as a trend.
func volumeTrend(candles []market.Candle) string {
	if len(candles) < 10 {
		return VolumeStable
	}

	var recent, earlier float64
	n := len(candles)
	for _, c := range candles[n-5:] {
		recent += c.Volume
	}
	for _, c := range candles[n-10 : n-5] {
		earlier += c.Volume
	}
	recent /= 5
	earlier /= 5

	if earlier == 0 {
		return VolumeStable
	}

	change := (recent - earlier) / earlier
	switch {
	case change > 0.2:
		return VolumeIncreasing
	case change < -0.2:
		return VolumeDecreasing
	}
	return VolumeStable
}

// alignment counts how many timeframes agree on the dominant direction.
func (tc *TimeframeCoordinator) alignment(analysis *TimeframeAnalysis) int {
	var bulls, bears int
	for _, data := range analysis.Frames {
		switch data.Trend {
		case indicators.TrendBullish:
			bulls++
		case indicators.TrendBearish:
			bears++
		}
	}
	if bulls > bears {
		return bulls
	}
	return bears
}

// confidenceFromAlignment maps alignment to confidence: all four timeframes
// aligned is full confidence, three is reduced, anything less is no signal.
func confidenceFromAlignment(alignment int) float64 {
	switch {
	case alignment >= 4:
		return 1.0
	case alignment == 3:
		return 0.7
	}
	return 0.0
}

// direction decides the overall trend via weighted voting. The winning side
// needs more than half of the total weight.
func (tc *TimeframeCoordinator) direction(analysis *TimeframeAnalysis) string {
	var bullish, bearish float64
	for tf, data := range analysis.Frames {
		w := tc.weights[string(tf)]
		switch data.Trend {
		case indicators.TrendBullish:
			bullish += w
		case indicators.TrendBearish:
			bearish += w
		}
	}

	switch {
	case bullish > bearish && bullish > 0.5:
		return indicators.TrendBullish
	case bearish > bullish && bearish > 0.5:
		return indicators.TrendBearish
	}
	return indicators.TrendNeutral
}
