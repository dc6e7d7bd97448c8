package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"krait/pkg/id"
)

var ErrNoMarkPrice = errors.New("no mark price")

// PaperClient is an in-memory ExecutionClient for paper trading and tests.
// Orders fill instantly at the last mark price set for the symbol.
type PaperClient struct {
	mu         sync.Mutex
	balance    float64
	marks      map[string]float64
	leverage   map[string]int
	marginType map[string]string
	orders     []OrderAck
}

func NewPaperClient(balance float64) *PaperClient {
	return &PaperClient{
		balance:    balance,
		marks:      make(map[string]float64),
		leverage:   make(map[string]int),
		marginType: make(map[string]string),
	}
}

// SetMark updates the fill price for a symbol.
func (p *PaperClient) SetMark(symbol string, price float64) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// AdjustBalance applies realized PnL to the paper balance.
func (p *PaperClient) AdjustBalance(delta float64) {
	p.mu.Lock()
	p.balance += delta
	p.mu.Unlock()
}

func (p *PaperClient) GetBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *PaperClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) (OrderAck, error) {
	if qty <= 0 {
		return OrderAck{}, fmt.Errorf("invalid quantity %v", qty)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok {
		return OrderAck{}, fmt.Errorf("%w for %q", ErrNoMarkPrice, symbol)
	}

	ack := OrderAck{
		OrderID:  id.New(),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    mark,
		Time:     time.Now().UTC(),
	}
	p.orders = append(p.orders, ack)
	return ack, nil
}

func (p *PaperClient) ValidateMargin(ctx context.Context, symbol string, requiredMargin float64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return requiredMargin <= p.balance, nil
}

func (p *PaperClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("invalid leverage %d", leverage)
	}
	p.mu.Lock()
	p.leverage[symbol] = leverage
	p.mu.Unlock()
	return nil
}

func (p *PaperClient) SetMarginType(ctx context.Context, symbol, marginType string) error {
	if marginType != "ISOLATED" && marginType != "CROSSED" {
		return fmt.Errorf("invalid margin type %q", marginType)
	}
	p.mu.Lock()
	p.marginType[symbol] = marginType
	p.mu.Unlock()
	return nil
}

// Orders returns a copy of every fill recorded so far.
func (p *PaperClient) Orders() []OrderAck {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderAck, len(p.orders))
	copy(out, p.orders)
	return out
}
