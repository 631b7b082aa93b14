package service

import (
	"context"
	"strings"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/pricefeed"
	"github.com/shopspring/decimal"
)

// StockService answers current-price lookups.
type StockService struct {
	oracle pricefeed.Oracle
}

// NewStockService creates a new StockService.
func NewStockService(oracle pricefeed.Oracle) *StockService {
	return &StockService{oracle: oracle}
}

// Price returns the current quote for symbol. Lowercase symbols are accepted.
func (s *StockService) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(symbol)
	if err := validateSymbol(symbol); err != nil {
		return decimal.Zero, err
	}
	p, ok := s.oracle.Price(ctx, symbol)
	if !ok {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return p, nil
}
