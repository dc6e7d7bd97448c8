package feature

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krait/logging"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(clock *fakeClock) *Manager {
	return NewManager(logging.Discard(), WithClock(clock.now))
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(MLPrediction, true, true)

	got := Execute(m, MLPrediction, 0.5, func() (float64, error) {
		return 0.8, nil
	})

	assert.InDelta(t, 0.8, got, 1e-12)

	st, ok := m.StatusOf(MLPrediction)
	require.True(t, ok)
	assert.Equal(t, 1, st.TotalCalls)
	assert.Equal(t, 1, st.SuccessfulCalls)
	assert.InDelta(t, 1.0, st.SuccessRate(), 1e-12)
}

func TestExecute_Unregistered(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeClock{t: time.Now()})

	got := Execute(m, "unknown", 42, func() (int, error) {
		t.Fatal("must not run")
		return 0, nil
	})
	assert.Equal(t, 42, got)
}

func TestExecute_DisabledReturnsFallback(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeClock{t: time.Now()})
	m.Register(VolumeProfile, false, true)

	got := Execute(m, VolumeProfile, "fallback", func() (string, error) {
		t.Fatal("must not run")
		return "", nil
	})
	assert.Equal(t, "fallback", got)
}

func TestExecute_AutoDisableAfterThreeErrors(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(AdaptiveThresholds, true, true)

	boom := func() (int, error) { return 0, errors.New("boom") }

	for i := 0; i < 3; i++ {
		got := Execute(m, AdaptiveThresholds, -1, boom)
		assert.Equal(t, -1, got)
		clock.advance(10 * time.Second)
	}

	assert.False(t, m.Enabled(AdaptiveThresholds))
	assert.Contains(t, m.DisabledFeatures(), AdaptiveThresholds)
}

func TestExecute_ErrorWindowResetsCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(MultiTimeframe, true, true)

	boom := func() (int, error) { return 0, errors.New("boom") }

	// Two errors, then a gap longer than the window: count restarts.
	Execute(m, MultiTimeframe, 0, boom)
	clock.advance(time.Minute)
	Execute(m, MultiTimeframe, 0, boom)
	clock.advance(6 * time.Minute)
	Execute(m, MultiTimeframe, 0, boom)

	assert.True(t, m.Enabled(MultiTimeframe))

	st, _ := m.StatusOf(MultiTimeframe)
	assert.Equal(t, 1, st.ErrorCount)
}

func TestExecute_SuccessOutsideWindowResetsCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(RegimeDetection, true, true)

	Execute(m, RegimeDetection, 0, func() (int, error) { return 0, errors.New("boom") })
	Execute(m, RegimeDetection, 0, func() (int, error) { return 0, errors.New("boom") })

	// Success within the window must NOT clear the count.
	Execute(m, RegimeDetection, 0, func() (int, error) { return 1, nil })
	st, _ := m.StatusOf(RegimeDetection)
	assert.Equal(t, 2, st.ErrorCount)

	// Success after the window clears it.
	clock.advance(6 * time.Minute)
	Execute(m, RegimeDetection, 0, func() (int, error) { return 1, nil })
	st, _ = m.StatusOf(RegimeDetection)
	assert.Zero(t, st.ErrorCount)
}

func TestExecute_CriticalFeatureStaysEnabled(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(PortfolioMgmt, true, false)

	for i := 0; i < 5; i++ {
		Execute(m, PortfolioMgmt, 0, func() (int, error) { return 0, errors.New("boom") })
	}

	assert.True(t, m.Enabled(PortfolioMgmt))

	st, _ := m.StatusOf(PortfolioMgmt)
	assert.Equal(t, 5, st.ErrorCount)
}

func TestEnableClearsErrors(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := newTestManager(clock)
	m.Register(AdvancedExits, true, true)

	for i := 0; i < 3; i++ {
		Execute(m, AdvancedExits, 0, func() (int, error) { return 0, errors.New("boom") })
	}
	require.False(t, m.Enabled(AdvancedExits))

	m.Enable(AdvancedExits)
	assert.True(t, m.Enabled(AdvancedExits))

	st, _ := m.StatusOf(AdvancedExits)
	assert.Zero(t, st.ErrorCount)
}

func TestWithLimits(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewManager(logging.Discard(), WithClock(clock.now), WithLimits(1, time.Minute))
	m.Register(MLPrediction, true, true)

	Execute(m, MLPrediction, 0, func() (int, error) { return 0, errors.New("boom") })
	assert.False(t, m.Enabled(MLPrediction))
}
