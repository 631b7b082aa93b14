// Package pricefeed provides read-only access to the last traded price of
// each symbol. Nothing here guarantees freshness or monotonic ticks; callers
// get whatever tick arrived last.
package pricefeed

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Oracle answers current-price queries.
type Oracle interface {
	// Price returns the last price for symbol, or false when there is no quote.
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool)
	// Prices returns a point-in-time copy of every known price.
	Prices(ctx context.Context) map[string]decimal.Decimal
}

// Tick is one price update for a symbol.
type Tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// ParsePrices parses "AAPL=100,MSFT=50.25" into a price map.
func ParsePrices(s string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	if strings.TrimSpace(s) == "" {
		return prices, nil
	}
	for _, pair := range strings.Split(s, ",") {
		symbol, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("invalid price entry %q", pair)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid price for %s: %q", symbol, raw)
		}
		prices[strings.ToUpper(symbol)] = price
	}
	return prices, nil
}
