// Package store holds the ledger records for accounts, positions and
// orders, and the webhook subscription registry.
package store

import (
	"context"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/shopspring/decimal"
)

// Ledger is the durable record of accounts, positions and orders.
//
// Reads outside WithAccount return snapshots. Every mutation goes through
// WithAccount, which serializes all work on one account and applies the
// writes of fn as one unit: all of them or none.
type Ledger interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ListOrders returns the account's orders, newest first.
	ListOrders(ctx context.Context, accountID string) ([]*domain.Order, error)
	// ListPositions returns the account's open positions ordered by symbol.
	ListPositions(ctx context.Context, accountID string) ([]domain.Position, error)
	// PendingOrders returns every PENDING order, oldest first.
	PendingOrders(ctx context.Context) ([]*domain.Order, error)
	// WithAccount runs fn inside a transaction holding the account's lock.
	// It returns domain.ErrAccountNotFound for unknown accounts. Any error
	// returned by fn discards the transaction's writes.
	WithAccount(ctx context.Context, accountID string, fn func(Tx) error) error
}

// Tx is a unit of work scoped to one account. Reads observe the
// transaction's own earlier writes.
type Tx interface {
	Account(ctx context.Context) (*domain.Account, error)
	// SetCash replaces the cash balance. A negative balance is refused
	// with domain.ErrInsufficientFunds.
	SetCash(ctx context.Context, balance decimal.Decimal) error
	// Position returns the position in symbol, or a flat position when
	// none is stored.
	Position(ctx context.Context, symbol string) (domain.Position, error)
	// SavePosition stores p, or deletes the row when p is flat.
	SavePosition(ctx context.Context, p domain.Position) error
	// Order returns one of the account's orders, or domain.ErrOrderNotFound.
	Order(ctx context.Context, orderID string) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	// CompleteOrder moves a PENDING order to COMPLETED at execPrice. If the
	// order is no longer PENDING it returns domain.ErrStateConflict.
	CompleteOrder(ctx context.Context, orderID string, execPrice decimal.Decimal, at time.Time) error
	// CancelOrder moves a PENDING order to CANCELLED. If the order is no
	// longer PENDING it returns domain.ErrStateConflict.
	CancelOrder(ctx context.Context, orderID, reason string, at time.Time) error
	// PendingSiblings returns the PENDING orders sharing parentID, other
	// than exceptID.
	PendingSiblings(ctx context.Context, parentID, exceptID string) ([]*domain.Order, error)
	// CancelSiblings cancels every PENDING order sharing parentID other
	// than exceptID and returns the cancelled orders.
	CancelSiblings(ctx context.Context, parentID, exceptID, reason string, at time.Time) ([]*domain.Order, error)
}

var (
	_ Ledger = (*Memory)(nil)
	_ Tx     = (*memTx)(nil)
)

// Credit adds amount to the account's cash.
func Credit(ctx context.Context, tx Tx, amount decimal.Decimal) error {
	a, err := tx.Account(ctx)
	if err != nil {
		return err
	}
	return tx.SetCash(ctx, a.CashBalance.Add(amount))
}

// Debit takes amount from the account's cash. It returns
// domain.ErrInsufficientFunds when the balance does not cover it.
func Debit(ctx context.Context, tx Tx, amount decimal.Decimal) error {
	a, err := tx.Account(ctx)
	if err != nil {
		return err
	}
	if !a.CanAfford(amount) {
		return domain.ErrInsufficientFunds
	}
	return tx.SetCash(ctx, a.CashBalance.Sub(amount))
}
