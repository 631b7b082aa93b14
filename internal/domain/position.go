package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's signed holding in one symbol. Positive Quantity
// is long, negative is short. AverageCost is the entry price per unit for
// either direction. A flat position is never stored.
type Position struct {
	AccountID   string
	Symbol      string
	Quantity    int64
	AverageCost decimal.Decimal
	IsShort     bool
	UpdatedAt   time.Time
}

// IsFlat reports whether the position holds nothing.
func (p Position) IsFlat() bool {
	return p.Quantity == 0
}

// Long returns the long quantity, or 0 for flat and short positions.
func (p Position) Long() int64 {
	if p.Quantity > 0 {
		return p.Quantity
	}
	return 0
}

// ApplyBuy returns the position after buying qty units at price.
//
// Flat or long: newAvg = (oldQty×oldAvg + qty×price) / (oldQty+qty).
// Short: the buy covers. The average is kept while still short, reset to
// price when the buy flips the position long, and zeroed when flat.
func (p Position) ApplyBuy(qty int64, price decimal.Decimal) Position {
	next := p
	next.Quantity = p.Quantity + qty

	switch {
	case p.Quantity >= 0:
		next.AverageCost = weightedAverage(p.Quantity, p.AverageCost, qty, price)
	case next.Quantity > 0:
		next.AverageCost = price
	case next.Quantity == 0:
		next.AverageCost = decimal.Zero
	}
	next.IsShort = next.Quantity < 0
	return next
}

// ApplySell returns the position after selling qty units at price.
//
// Flat or short: the sell opens or extends a short and the average is
// weighted by absolute quantity. Long: the average is kept while still
// long, reset to price on a flip to short, and zeroed when flat.
func (p Position) ApplySell(qty int64, price decimal.Decimal) Position {
	next := p
	next.Quantity = p.Quantity - qty

	switch {
	case p.Quantity <= 0:
		next.AverageCost = weightedAverage(-p.Quantity, p.AverageCost, qty, price)
	case next.Quantity < 0:
		next.AverageCost = price
	case next.Quantity == 0:
		next.AverageCost = decimal.Zero
	}
	next.IsShort = next.Quantity < 0
	return next
}

func weightedAverage(oldQty int64, oldAvg decimal.Decimal, qty int64, price decimal.Decimal) decimal.Decimal {
	total := oldQty + qty
	if total == 0 {
		return decimal.Zero
	}
	cost := Notional(oldAvg, oldQty).Add(Notional(price, qty))
	return cost.Div(decimal.NewFromInt(total))
}
