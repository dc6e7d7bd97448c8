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

func newDetector() *RegimeDetector {
	cfg := config.Default()
	return NewRegimeDetector(cfg.Regime, cfg.Indicators, cfg.Risk.StopATRMult, logging.Discard())
}

// calmingUptrend builds candles with strongly rising closes and shrinking
// ranges, so the trend is unambiguous while recent volatility ranks low.
func calmingUptrend(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := 100 + float64(i)*2
		r := 10 - float64(i)*8/float64(n)
		out[i] = market.Candle{
			Open:   c - 1,
			High:   c + r/2,
			Low:    c - r/2,
			Close:  c,
			Volume: 100,
			Time:   t0.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return out
}

func TestClassify(t *testing.T) {
	t.Parallel()

	d := newDetector()

	tests := []struct {
		name   string
		adx    float64
		atrPct float64
		price  float64
		vwap   float64
		want   string
	}{
		{"extreme volatility wins", 35, 85, 110, 100, market.RegimeVolatile},
		{"strong trend above vwap", 35, 50, 110, 100, market.RegimeTrendingBull},
		{"strong trend below vwap", 35, 50, 90, 100, market.RegimeTrendingBear},
		{"quiet and directionless", 15, 30, 100, 100, market.RegimeRanging},
		{"middling adx", 25, 50, 100, 100, market.RegimeUncertain},
		{"low adx but lively", 15, 60, 100, 100, market.RegimeUncertain},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, d.classify(tt.adx, tt.atrPct, tt.price, tt.vwap))
		})
	}
}

func TestDetect_InsufficientData(t *testing.T) {
	t.Parallel()

	d := newDetector()
	regime, err := d.Detect(calmingUptrend(20), t0)
	require.NoError(t, err)
	assert.Equal(t, market.RegimeUncertain, regime)
}

func TestDetect_StabilityWindow(t *testing.T) {
	t.Parallel()

	d := newDetector()
	candles := calmingUptrend(60)

	regime, err := d.Detect(candles, t0)
	require.NoError(t, err)
	assert.Equal(t, market.RegimeTrendingBull, regime)
	assert.Equal(t, market.RegimeUncertain, d.Current(),
		"one sample must not flip the confirmed regime")

	_, err = d.Detect(candles, t0.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, market.RegimeTrendingBull, d.Current(),
		"consistent classification past the stability window confirms")
}

func TestDetect_UpdateInterval(t *testing.T) {
	t.Parallel()

	d := newDetector()
	require.True(t, d.ShouldUpdate(t0))

	_, err := d.Detect(calmingUptrend(60), t0)
	require.NoError(t, err)

	assert.False(t, d.ShouldUpdate(t0.Add(10*time.Minute)))
	assert.True(t, d.ShouldUpdate(t0.Add(15*time.Minute)))
}

func TestParameters(t *testing.T) {
	t.Parallel()

	d := newDetector()

	tests := []struct {
		regime   string
		strategy string
		stopMult float64
		thrMult  float64
		sizeMult float64
	}{
		{market.RegimeTrendingBull, StrategyTrendFollowing, 2.5, 1.0, 1.0},
		{market.RegimeTrendingBear, StrategyTrendFollowing, 2.5, 1.0, 1.0},
		{market.RegimeRanging, StrategyMeanReversion, 1.0, 1.0, 1.0},
		{market.RegimeVolatile, StrategyTrendFollowing, 2.5, 1.3, 0.5},
		{market.RegimeUncertain, StrategyNone, 2.0, 1.0, 0.5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.regime, func(t *testing.T) {
			t.Parallel()

			p := d.Parameters(tt.regime)
			assert.Equal(t, tt.strategy, p.Strategy)
			assert.InDelta(t, tt.stopMult, p.StopMult, 1e-12)
			assert.InDelta(t, tt.thrMult, p.ThresholdMult, 1e-12)
			assert.InDelta(t, tt.sizeMult, p.SizeMult, 1e-12)
		})
	}
}
