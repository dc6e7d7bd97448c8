package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"krait/config"
	"krait/logging"
)

var (
	metricOrdersAttempted = prometheus.NewCounter(prometheus.CounterOpts{Name: "krait_orders_attempted_total", Help: "Market orders the bot tried to place"})
	metricOrdersPlaced    = prometheus.NewCounter(prometheus.CounterOpts{Name: "krait_orders_placed_total", Help: "Market orders acknowledged by the exchange"})
	metricOrdersFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "krait_orders_failed_total", Help: "Market orders that failed after all retries"})
	metricOrdersRetried   = prometheus.NewCounter(prometheus.CounterOpts{Name: "krait_orders_retried_total", Help: "Individual retry attempts after a transient failure"})
	metricRateWindow      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "krait_orders_in_last_minute", Help: "Orders counted in the current minute window"})
)

func init() {
	prometheus.MustRegister(
		metricOrdersAttempted, metricOrdersPlaced, metricOrdersFailed,
		metricOrdersRetried, metricRateWindow,
	)
}

// SafeClient wraps an ExecutionClient with retry, exponential backoff and a
// per-minute order rate limit. A call that exhausts its retries fails the
// current cycle only; the next cycle starts from a clean slate.
type SafeClient struct {
	inner ExecutionClient
	log   *logging.Logger

	maxRetries   int
	backoff      time.Duration
	perMinuteCap int

	rateMu     sync.Mutex
	orderTimes []time.Time

	sleep func(time.Duration)
}

func NewSafeClient(inner ExecutionClient, cfg config.ExecutionConfig, log *logging.Logger) *SafeClient {
	return &SafeClient{
		inner:        inner,
		log:          log,
		maxRetries:   cfg.MaxRetries,
		backoff:      time.Duration(cfg.BackoffMS) * time.Millisecond,
		perMinuteCap: cfg.RateLimitMin,
		sleep:        time.Sleep,
	}
}

func (s *SafeClient) GetBalance(ctx context.Context) (float64, error) {
	var balance float64
	err := s.withRetry(ctx, "get_balance", func() error {
		var err error
		balance, err = s.inner.GetBalance(ctx)
		return err
	})
	return balance, err
}

func (s *SafeClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) (OrderAck, error) {
	now := time.Now()
	metricOrdersAttempted.Inc()

	if s.rateExceeded(now) {
		s.log.Warnf("order rate limit reached, %s %s blocked", side, symbol)
		return OrderAck{}, ErrRateLimited
	}

	var ack OrderAck
	err := s.withRetry(ctx, "place_market_order", func() error {
		var err error
		ack, err = s.inner.PlaceMarketOrder(ctx, symbol, side, qty, reduceOnly)
		return err
	})
	if err != nil {
		metricOrdersFailed.Inc()
		return OrderAck{}, err
	}

	s.rateNote(now)
	metricOrdersPlaced.Inc()
	return ack, nil
}

func (s *SafeClient) ValidateMargin(ctx context.Context, symbol string, requiredMargin float64) (bool, error) {
	var ok bool
	err := s.withRetry(ctx, "validate_margin", func() error {
		var err error
		ok, err = s.inner.ValidateMargin(ctx, symbol, requiredMargin)
		return err
	})
	return ok, err
}

func (s *SafeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return s.withRetry(ctx, "set_leverage", func() error {
		return s.inner.SetLeverage(ctx, symbol, leverage)
	})
}

func (s *SafeClient) SetMarginType(ctx context.Context, symbol, marginType string) error {
	return s.withRetry(ctx, "set_margin_type", func() error {
		return s.inner.SetMarginType(ctx, symbol, marginType)
	})
}

// withRetry runs fn up to maxRetries+1 times, doubling the backoff between
// attempts.
func (s *SafeClient) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := s.backoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			metricOrdersRetried.Inc()
			s.log.Warnf("%s failed (attempt %d/%d): %v, retrying in %v", op, attempt, s.maxRetries, lastErr, delay)
			s.sleep(delay)
			delay *= 2
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}

	s.log.Errorf("%s failed after %d attempts: %v", op, s.maxRetries+1, lastErr)
	return fmt.Errorf("%s: %w: %w", op, ErrRetriesExhausted, lastErr)
}

func (s *SafeClient) rateExceeded(now time.Time) bool {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()

	cutoff := now.Add(-time.Minute)
	j := 0
	for _, t := range s.orderTimes {
		if t.After(cutoff) {
			s.orderTimes[j] = t
			j++
		}
	}
	s.orderTimes = s.orderTimes[:j]
	metricRateWindow.Set(float64(len(s.orderTimes)))

	return s.perMinuteCap > 0 && len(s.orderTimes) >= s.perMinuteCap
}

func (s *SafeClient) rateNote(t time.Time) {
	s.rateMu.Lock()
	s.orderTimes = append(s.orderTimes, t)
	metricRateWindow.Set(float64(len(s.orderTimes)))
	s.rateMu.Unlock()
}
