// Package broker defines the execution surface the bot trades through and a
// safety wrapper that makes flaky exchange calls survivable.
package broker

import (
	"context"
	"errors"
	"time"
)

// OrderSide is the exchange-facing order direction.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

var (
	ErrRateLimited      = errors.New("order rate limit reached")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// OrderAck is the exchange acknowledgement for a filled market order.
type OrderAck struct {
	OrderID  string
	Symbol   string
	Side     OrderSide
	Quantity float64
	Price    float64
	Time     time.Time
}

// ExecutionClient is the capability interface over an exchange. Every call may
// fail transiently and must be safe to retry.
type ExecutionClient interface {
	GetBalance(ctx context.Context) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) (OrderAck, error)
	ValidateMargin(ctx context.Context, symbol string, requiredMargin float64) (bool, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginType(ctx context.Context, symbol, marginType string) error
}
