package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds an account's cash. CashBalance never goes negative; the
// ledger refuses to persist a mutation that would make it so.
type Account struct {
	ID          string
	CashBalance decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanAfford reports whether the account can pay amount out of its cash.
func (a *Account) CanAfford(amount decimal.Decimal) bool {
	return a.CashBalance.GreaterThanOrEqual(amount)
}
