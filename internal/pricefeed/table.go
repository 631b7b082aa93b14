package pricefeed

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Table is an in-memory last-tick price table.
type Table struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewTable creates a table seeded with initial prices.
func NewTable(initial map[string]decimal.Decimal) *Table {
	t := &Table{prices: make(map[string]decimal.Decimal, len(initial))}
	for s, p := range initial {
		t.prices[s] = p
	}
	return t
}

// Set records the last price for symbol.
func (t *Table) Set(symbol string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[symbol] = price
}

// Price returns the last price for symbol.
func (t *Table) Price(_ context.Context, symbol string) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[symbol]
	return p, ok
}

// Prices returns a copy of the table.
func (t *Table) Prices(_ context.Context) map[string]decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(t.prices))
	for s, p := range t.prices {
		out[s] = p
	}
	return out
}

// Consume applies ticks from ch until ctx is cancelled or ch is closed.
func (t *Table) Consume(ctx context.Context, ch <-chan Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ch:
			if !ok {
				return
			}
			if tick.Price.IsPositive() {
				t.Set(tick.Symbol, tick.Price)
			}
		}
	}
}
