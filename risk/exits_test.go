package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krait/config"
	"krait/logging"
	"krait/market"
)

func testExitConfig() config.ExitConfig {
	return config.ExitConfig{
		Partial1ATRMult:   1.5,
		Partial1Pct:       0.33,
		Partial2ATRMult:   3.0,
		Partial2Pct:       0.33,
		FinalATRMult:      5.0,
		BreakevenATRMult:  2.0,
		TightStopATRMult:  0.5,
		MaxHoldHours:      24,
		RegimeChangeExits: true,
	}
}

func longPosition() *Position {
	return &Position{
		Symbol:       "BTCUSDT",
		Side:         Long,
		EntryPrice:   50000,
		Quantity:     0.3,
		StopLoss:     49000,
		TrailingStop: 49000,
		EntryTime:    time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	}
}

func TestCheckPartialExit_Ladder(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()
	atr := 500.0

	// Below the first level: nothing fires.
	_, ok := e.CheckPartialExit(p, 50500, atr) // 1x ATR
	assert.False(t, ok)

	// 1.5x ATR: partial 1 fires once.
	pct, ok := e.CheckPartialExit(p, 50750, atr)
	require.True(t, ok)
	assert.InDelta(t, 0.33, pct, 1e-12)

	_, ok = e.CheckPartialExit(p, 50750, atr)
	assert.False(t, ok, "level must fire only once")

	// 3x ATR: partial 2.
	pct, ok = e.CheckPartialExit(p, 51500, atr)
	require.True(t, ok)
	assert.InDelta(t, 0.33, pct, 1e-12)

	// 5x ATR: final closes the remainder.
	pct, ok = e.CheckPartialExit(p, 52500, atr)
	require.True(t, ok)
	assert.InDelta(t, 0.34, pct, 1e-9)
}

func TestCheckPartialExit_GapStraightToFinal(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	// Price gaps past every level: the final exit closes 100%.
	pct, ok := e.CheckPartialExit(p, 53000, 500) // 6x ATR
	require.True(t, ok)
	assert.InDelta(t, 1.0, pct, 1e-12)
}

func TestCheckPartialExit_Short(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := &Position{Symbol: "ETHUSDT", Side: Short, EntryPrice: 3000, TrailingStop: 3100}

	pct, ok := e.CheckPartialExit(p, 2925, 50) // 1.5x ATR in profit
	require.True(t, ok)
	assert.InDelta(t, 0.33, pct, 1e-12)
}

func TestUpdateDynamicStops_Breakeven(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	// 2x ATR in profit: stop jumps to entry.
	e.UpdateDynamicStops(p, 51000, 500, false)
	assert.InDelta(t, 50000.0, p.TrailingStop, 1e-9)

	// Already past breakeven: never moves back down.
	p.TrailingStop = 50500
	e.UpdateDynamicStops(p, 51000, 500, false)
	assert.InDelta(t, 50500.0, p.TrailingStop, 1e-9)
}

func TestUpdateDynamicStops_BreakevenShort(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := &Position{Symbol: "BTCUSDT", Side: Short, EntryPrice: 50000, TrailingStop: 51000}

	e.UpdateDynamicStops(p, 49000, 500, false)
	assert.InDelta(t, 50000.0, p.TrailingStop, 1e-9)
}

func TestUpdateDynamicStops_MomentumReversalTightens(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	// In profit but below breakeven level; momentum reverses: tight stop at
	// price - 0.5*atr.
	e.UpdateDynamicStops(p, 50600, 500, true)
	assert.InDelta(t, 50350.0, p.TrailingStop, 1e-9)
}

func TestUpdateDynamicStops_NoTightenAtLoss(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	// Under water: momentum reversal must not touch the stop.
	e.UpdateDynamicStops(p, 49500, 500, true)
	assert.InDelta(t, 49000.0, p.TrailingStop, 1e-9)
}

func TestCheckTimeExit(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	assert.False(t, e.CheckTimeExit(p, p.EntryTime.Add(23*time.Hour)))
	assert.True(t, e.CheckTimeExit(p, p.EntryTime.Add(24*time.Hour)))
	assert.True(t, e.CheckTimeExit(p, p.EntryTime.Add(48*time.Hour)))
}

func TestCheckRegimeExit(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	tests := []struct {
		name     string
		previous string
		current  string
		want     bool
	}{
		{"bull trend to ranging", market.RegimeTrendingBull, market.RegimeRanging, true},
		{"bear trend to ranging", market.RegimeTrendingBear, market.RegimeRanging, true},
		{"trend continues", market.RegimeTrendingBull, market.RegimeTrendingBull, false},
		{"ranging to ranging", market.RegimeRanging, market.RegimeRanging, false},
		{"trend to volatile", market.RegimeTrendingBull, market.RegimeVolatile, false},
		{"uncertain to ranging", market.RegimeUncertain, market.RegimeRanging, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, e.CheckRegimeExit(p, tt.current, tt.previous))
		})
	}
}

func TestCheckRegimeExit_Disabled(t *testing.T) {
	t.Parallel()

	cfg := testExitConfig()
	cfg.RegimeChangeExits = false
	e := NewExitManager(cfg, logging.Discard())

	assert.False(t, e.CheckRegimeExit(longPosition(), market.RegimeRanging, market.RegimeTrendingBull))
}

func TestResetTracking(t *testing.T) {
	t.Parallel()

	e := NewExitManager(testExitConfig(), logging.Discard())
	p := longPosition()

	_, ok := e.CheckPartialExit(p, 50750, 500)
	require.True(t, ok)
	require.NotEmpty(t, e.TriggeredLevels(p.Symbol))

	e.ResetTracking(p.Symbol)
	assert.Empty(t, e.TriggeredLevels(p.Symbol))

	// Same level can fire again for the next position.
	_, ok = e.CheckPartialExit(p, 50750, 500)
	assert.True(t, ok)
}
