package service

import (
	"fmt"
	"regexp"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	symbolRegex    = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,14}$`)
)

func validateAccountID(id string) error {
	if !accountIDRegex.MatchString(id) {
		return &domain.ValidationError{Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}

func validateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return &domain.ValidationError{Message: "symbol must match ^[A-Z][A-Z0-9.]{0,14}$"}
	}
	return nil
}

func validateQuantity(qty int64) error {
	if qty <= 0 {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	return nil
}

// validatePrice checks that a named price is present, positive and carries
// at most two decimal places.
func validatePrice(name string, p decimal.NullDecimal) error {
	if !p.Valid {
		return &domain.ValidationError{Message: name + " is required"}
	}
	if !p.Decimal.IsPositive() {
		return &domain.ValidationError{Message: name + " must be greater than 0"}
	}
	if err := domain.CheckPrecision(p.Decimal); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("%s must have at most %d decimal places", name, domain.MoneyPlaces)}
	}
	return nil
}
