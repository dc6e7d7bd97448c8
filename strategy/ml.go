package strategy

import (
	"errors"
	"math"

	"krait/config"
	"krait/indicators"
	"krait/logging"
	"krait/market"
)

const mlFeatureCount = 20

// mlWeights and mlMeans form a logistic model over the extracted features,
// fitted offline on historical 15m data. The score is the probability of
// bullish continuation over the next four hours.
var mlWeights = [mlFeatureCount]float64{
	8.0,  // 1h return
	5.0,  // 4h return
	2.0,  // 24h return
	6.0,  // price vs 24h VWAP
	0.05, // RVOL
	0.3,  // volume trend
	-4.0, // ATR / price
	-0.2, // ATR percentile
	-1.0, // Bollinger width
	1.2,  // RSI
	10.0, // MACD / price
	0.8,  // squeeze momentum
	0.3,  // ADX
	3.0,  // 20-candle trend strength
	0.0,  // hour of day
	0.0,  // day of week
	0.6,  // price position in range
	0.2,  // volume position in range
	-0.2, // volatility rank
	0.5,  // momentum rank
}

var mlMeans = [mlFeatureCount]float64{
	0, 0, 0, 0,
	1.0, 0,
	0.01, 0.5, 0.04,
	0.5, 0, 0,
	0.25, 0,
	0.5, 0.5,
	0.5, 0.5, 0.5, 0.5,
}

// MLScorer predicts bullish continuation probability from a feature vector
// extracted over 15m candles. A rolling accuracy window disables the scorer
// when it stops beating the configured minimum.
type MLScorer struct {
	cfg config.MLConfig
	log *logging.Logger

	enabled  bool
	outcomes []float64
}

// NewMLScorer creates an enabled scorer with an empty accuracy window.
func NewMLScorer(cfg config.MLConfig, log *logging.Logger) *MLScorer {
	return &MLScorer{cfg: cfg, log: log, enabled: true}
}

// Enabled reports whether the scorer is still trusted.
func (s *MLScorer) Enabled() bool { return s.enabled }

// Predict returns the bullish continuation probability in [0, 1]. Neutral
// 0.5 is returned when the scorer is disabled or there is not enough history
// for the feature vector.
func (s *MLScorer) Predict(candles []market.Candle) (float64, error) {
	if !s.enabled {
		return 0.5, nil
	}
	if len(candles) == 0 {
		return 0.5, errors.New("no candles for prediction")
	}
	if len(candles) < 100 {
		s.log.Debugf("ml: %d candles, need 100+ for features, returning neutral", len(candles))
		return 0.5, nil
	}

	features := s.ExtractFeatures(candles)

	var score float64
	for i, f := range features {
		score += mlWeights[i] * (f - mlMeans[i])
	}
	return 1.0 / (1.0 + math.Exp(-score)), nil
}

// ExtractFeatures builds the 20-element feature vector: price returns,
// volume, volatility, momentum, trend, time-of-day and range-position
// features. Callers must supply at least 100 candles.
func (s *MLScorer) ExtractFeatures(candles []market.Candle) [mlFeatureCount]float64 {
	var f [mlFeatureCount]float64
	n := len(candles)
	last := candles[n-1]

	// Returns over 1h, 4h and 24h of 15m candles.
	f[0] = pctChange(candles[n-5].Close, last.Close)
	f[1] = pctChange(candles[n-17].Close, last.Close)
	f[2] = pctChange(candles[n-97].Close, last.Close)

	// Price vs VWAP anchored 24 hours back.
	if vwap := indicators.VWAP(candles, candles[n-96].Time); vwap > 0 {
		f[3] = (last.Close - vwap) / vwap
	}

	f[4] = indicators.RVOL(candles, 20)
	f[5] = volumeChange(candles)

	// Volatility block.
	atr := indicators.ATR(candles, 14)
	if last.Close > 0 {
		f[6] = atr / last.Close
	}
	f[7] = atrRank(candles, atr)
	f[8] = bollingerWidth(candles)

	// Momentum block.
	rsi := rsi14(candles)
	f[9] = rsi / 100.0
	f[10] = macdNormalized(candles)
	if last.Close > 0 {
		f[11] = math.Tanh(indicators.SqueezeMomentum(candles).Value / last.Close)
	}

	// Trend block.
	f[12] = indicators.ADX(candles, 14) / 100.0
	f[13] = pctChange(candles[n-20].Close, last.Close)

	// Time block.
	f[14] = float64(last.Time.UTC().Hour()) / 24.0
	f[15] = float64(last.Time.UTC().Weekday()) / 7.0

	// Range-position block.
	high, low := candles[n-20].High, candles[n-20].Low
	maxVol, minVol := candles[n-20].Volume, candles[n-20].Volume
	for _, c := range candles[n-20:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
		maxVol = math.Max(maxVol, c.Volume)
		minVol = math.Min(minVol, c.Volume)
	}
	f[16] = rangePosition(last.Close, low, high)
	f[17] = rangePosition(last.Volume, minVol, maxVol)
	f[18] = f[7]
	f[19] = f[9]

	return f
}

// RecordOutcome feeds back whether price actually went up after a
// prediction, and disables the scorer once the accuracy window fills below
// the minimum.
func (s *MLScorer) RecordOutcome(prediction float64, wentUp bool) {
	correct := (prediction > 0.5) == wentUp
	if correct {
		s.outcomes = append(s.outcomes, 1)
	} else {
		s.outcomes = append(s.outcomes, 0)
	}
	if len(s.outcomes) > s.cfg.AccuracyWindow {
		s.outcomes = s.outcomes[len(s.outcomes)-s.cfg.AccuracyWindow:]
	}

	if s.enabled && s.ShouldDisable() {
		s.enabled = false
		s.log.Warnf("ml scorer disabled: accuracy %.1f%% below minimum %.1f%%",
			s.Accuracy()*100, s.cfg.MinAccuracy*100)
	}
}

// Accuracy returns the rolling hit rate, or 0 before any outcomes.
func (s *MLScorer) Accuracy() float64 {
	if len(s.outcomes) == 0 {
		return 0
	}
	var sum float64
	for _, o := range s.outcomes {
		sum += o
	}
	return sum / float64(len(s.outcomes))
}

// ShouldDisable reports whether the accuracy window is full and below the
// minimum.
func (s *MLScorer) ShouldDisable() bool {
	if len(s.outcomes) < s.cfg.AccuracyWindow {
		return false
	}
	return s.Accuracy() < s.cfg.MinAccuracy
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}

func rangePosition(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// volumeChange compares the last 5 candles' average volume to the 5 before.
func volumeChange(candles []market.Candle) float64 {
	n := len(candles)
	if n < 10 {
		return 0
	}
	var recent, earlier float64
	for _, c := range candles[n-5:] {
		recent += c.Volume
	}
	for _, c := range candles[n-10 : n-5] {
		earlier += c.Volume
	}
	if earlier == 0 {
		return 0
	}
	return (recent - earlier) / earlier
}

// atrRank ranks the current ATR within the ATR distribution of the last 24
// hours of candles.
func atrRank(candles []market.Candle, current float64) float64 {
	n := len(candles)
	if n < 96 || current == 0 {
		return 0.5
	}

	var below, total int
	for i := n - 96; i < n; i++ {
		if i < 14 {
			continue
		}
		atr := indicators.ATR(candles[:i+1], 14)
		total++
		if atr < current {
			below++
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(below) / float64(total)
}

// bollingerWidth returns the 20-period band width relative to the mean.
func bollingerWidth(candles []market.Candle) float64 {
	n := len(candles)
	if n < 20 {
		return 0
	}

	closes := market.Closes(candles[n-20:])
	var mean float64
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, c := range closes {
		d := c - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(closes)))

	return 4 * std / mean
}

// rsi14 is a simple-average RSI over the last 14 closes.
func rsi14(candles []market.Candle) float64 {
	const period = 14
	n := len(candles)
	if n < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := n - period; i < n; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	if losses == 0 {
		return 100.0
	}

	rs := gains / losses
	return 100.0 - 100.0/(1.0+rs)
}

// macdNormalized is the 12/26 EMA difference relative to the last close.
func macdNormalized(candles []market.Candle) float64 {
	if len(candles) < 26 {
		return 0
	}

	closes := market.Closes(candles)
	last := closes[len(closes)-1]
	if last == 0 {
		return 0
	}
	return (emaOf(closes, 12) - emaOf(closes, 26)) / last
}

func emaOf(values []float64, period int) float64 {
	if len(values) < period {
		var sum float64
		for _, v := range values {
			sum += v
		}
		if len(values) == 0 {
			return 0
		}
		return sum / float64(len(values))
	}

	var ema float64
	for _, v := range values[:period] {
		ema += v
	}
	ema /= float64(period)

	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}
