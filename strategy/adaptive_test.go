package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krait/config"
	"krait/logging"
	"krait/market"
)

func newAdaptive(mutate func(*config.AdaptiveConfig)) *AdaptiveThresholds {
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg.Adaptive)
	}
	return NewAdaptiveThresholds(cfg.Adaptive, cfg.Indicators, logging.Discard())
}

// rangedCandles builds hourly candles with a constant close and the given
// high/low range per candle.
func rangedCandles(start time.Time, ranges []float64) []market.Candle {
	out := make([]market.Candle, len(ranges))
	for i, r := range ranges {
		out[i] = market.Candle{
			Open:   100,
			High:   100 + r/2,
			Low:    100 - r/2,
			Close:  100,
			Volume: 100,
			Time:   start.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestThresholdMultiplier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		percentile float64
		want       float64
	}{
		{0, 0.7},
		{19.9, 0.7},
		{20, 0.85},
		{39.9, 0.85},
		{40, 1.0},
		{59.9, 1.0},
		{60, 1.15},
		{79.9, 1.15},
		{80, 1.3},
		{100, 1.3},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, thresholdMultiplier(tt.percentile), 1e-12,
			"percentile %.1f", tt.percentile)
	}
}

func TestUpdate_InsufficientHistoryKeepsBase(t *testing.T) {
	t.Parallel()

	a := newAdaptive(nil)
	candles := rangedCandles(t0, make([]float64, 100)) // well below 30 days

	thr, err := a.Update(candles, t0)
	require.NoError(t, err)

	// Median percentile, multiplier 1.0: base thresholds survive.
	assert.InDelta(t, 50.0, a.VolatilityPercentile(), 1e-9)
	assert.InDelta(t, 20.0, thr.ADX, 1e-9)
	assert.InDelta(t, 1.2, thr.RVOL, 1e-9)
}

func TestUpdate_NoCandles(t *testing.T) {
	t.Parallel()

	a := newAdaptive(nil)
	_, err := a.Update(nil, t0)
	assert.Error(t, err)
}

func TestUpdate_HighVolatilityRaisesAndClamps(t *testing.T) {
	t.Parallel()

	a := newAdaptive(func(c *config.AdaptiveConfig) {
		c.MaxADX = 22.0
	})

	// 700 quiet hours followed by 50 violent ones: the current 24h ATR sits
	// near the top of the distribution.
	ranges := make([]float64, 750)
	for i := range ranges {
		if i < 700 {
			ranges[i] = 1
		} else {
			ranges[i] = 20
		}
	}

	thr, err := a.Update(rangedCandles(t0, ranges), t0)
	require.NoError(t, err)

	assert.Greater(t, a.VolatilityPercentile(), 80.0)
	// 20 * 1.3 = 26, clamped to the configured maximum.
	assert.InDelta(t, 22.0, thr.ADX, 1e-9)
	// 1.2 * 1.3 stays inside its bounds.
	assert.InDelta(t, 1.56, thr.RVOL, 1e-9)
}

func TestShouldUpdate_Interval(t *testing.T) {
	t.Parallel()

	a := newAdaptive(nil)
	assert.True(t, a.ShouldUpdate(t0), "first update is always due")

	_, err := a.Update(rangedCandles(t0, make([]float64, 50)), t0)
	require.NoError(t, err)

	assert.False(t, a.ShouldUpdate(t0.Add(30*time.Minute)))
	assert.True(t, a.ShouldUpdate(t0.Add(time.Hour)))
}
