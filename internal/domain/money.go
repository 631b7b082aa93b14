package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits accepted on monetary input.
const MoneyPlaces = 2

// ParseMoney parses a decimal string amount. It returns an error for
// malformed input or more than MoneyPlaces fractional digits.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid monetary value %q", s)
	}
	if err := CheckPrecision(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckPrecision rejects amounts carrying more than MoneyPlaces
// significant fractional digits. Trailing zeros are fine.
func CheckPrecision(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MoneyPlaces)) {
		return fmt.Errorf("monetary values must have at most %d decimal places", MoneyPlaces)
	}
	return nil
}

// Notional returns price × quantity.
func Notional(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}
