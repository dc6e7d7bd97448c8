package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krait/config"
	"krait/logging"
)

// scriptedClient fails the first failN calls to each operation, then succeeds.
type scriptedClient struct {
	failN int
	calls map[string]int
}

func newScriptedClient(failN int) *scriptedClient {
	return &scriptedClient{failN: failN, calls: make(map[string]int)}
}

func (c *scriptedClient) fail(op string) error {
	c.calls[op]++
	if c.calls[op] <= c.failN {
		return errors.New("transient exchange error")
	}
	return nil
}

func (c *scriptedClient) GetBalance(ctx context.Context) (float64, error) {
	if err := c.fail("get_balance"); err != nil {
		return 0, err
	}
	return 10000, nil
}

func (c *scriptedClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) (OrderAck, error) {
	if err := c.fail("place"); err != nil {
		return OrderAck{}, err
	}
	return OrderAck{OrderID: "1", Symbol: symbol, Side: side, Quantity: qty, Price: 50000}, nil
}

func (c *scriptedClient) ValidateMargin(ctx context.Context, symbol string, requiredMargin float64) (bool, error) {
	if err := c.fail("margin"); err != nil {
		return false, err
	}
	return true, nil
}

func (c *scriptedClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return c.fail("leverage")
}

func (c *scriptedClient) SetMarginType(ctx context.Context, symbol, marginType string) error {
	return c.fail("margin_type")
}

func newSafe(inner ExecutionClient, mutate func(*config.ExecutionConfig)) (*SafeClient, *[]time.Duration) {
	cfg := config.ExecutionConfig{MaxRetries: 3, BackoffMS: 10, RateLimitMin: 1200}
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewSafeClient(inner, cfg, logging.Discard())
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, &slept
}

func TestSafeClientRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(2)
	s, slept := newSafe(inner, nil)

	balance, err := s.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, balance, 1e-9)
	assert.Equal(t, 3, inner.calls["get_balance"])

	// Backoff doubles between attempts.
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestSafeClientExhaustsRetries(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(10)
	s, _ := newSafe(inner, nil)

	_, err := s.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, 0.1, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 4, inner.calls["place"])
}

func TestSafeClientNextCallStartsFresh(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(4)
	s, _ := newSafe(inner, nil)

	_, err := s.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, 0.1, false)
	require.Error(t, err)

	// Failure budget is per call, not cumulative.
	ack, err := s.PlaceMarketOrder(context.Background(), "BTCUSDT", Buy, 0.1, false)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ack.Symbol)
}

func TestSafeClientRateLimit(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(0)
	s, _ := newSafe(inner, func(cfg *config.ExecutionConfig) { cfg.RateLimitMin = 2 })

	ctx := context.Background()
	_, err := s.PlaceMarketOrder(ctx, "BTCUSDT", Buy, 0.1, false)
	require.NoError(t, err)
	_, err = s.PlaceMarketOrder(ctx, "BTCUSDT", Buy, 0.1, false)
	require.NoError(t, err)

	_, err = s.PlaceMarketOrder(ctx, "BTCUSDT", Buy, 0.1, false)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSafeClientContextCancelled(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(10)
	s, _ := newSafe(inner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetBalance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.calls["get_balance"])
}

func TestSafeClientPassThroughOps(t *testing.T) {
	t.Parallel()

	inner := newScriptedClient(1)
	s, _ := newSafe(inner, nil)
	ctx := context.Background()

	ok, err := s.ValidateMargin(ctx, "BTCUSDT", 500)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, s.SetLeverage(ctx, "BTCUSDT", 3))
	assert.NoError(t, s.SetMarginType(ctx, "BTCUSDT", "ISOLATED"))
}
