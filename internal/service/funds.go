package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/shopspring/decimal"
)

// FundsService manages account cash and exposes portfolio reads.
type FundsService struct {
	ledger     store.Ledger
	maxDeposit decimal.Decimal
	logger     *slog.Logger
}

// NewFundsService creates a new FundsService. Deposits above maxDeposit
// are rejected.
func NewFundsService(ledger store.Ledger, maxDeposit decimal.Decimal, logger *slog.Logger) *FundsService {
	return &FundsService{ledger: ledger, maxDeposit: maxDeposit, logger: logger}
}

func validateAmount(amount decimal.Decimal) error {
	if err := domain.CheckPrecision(amount); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("amount must have at most %d decimal places", domain.MoneyPlaces)}
	}
	return nil
}

// OpenAccount creates the ledger row for an account with initialCash.
func (s *FundsService) OpenAccount(ctx context.Context, accountID string, initialCash decimal.Decimal) (*domain.Account, error) {
	if err := validateAccountID(accountID); err != nil {
		return nil, err
	}
	if initialCash.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_cash must be non-negative"}
	}
	if err := validateAmount(initialCash); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &domain.Account{
		ID:          accountID,
		CashBalance: initialCash,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ledger.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("account opened", slog.String("account_id", accountID))
	return a, nil
}

// Deposit adds amount to the account's cash. The amount must be positive
// and at most the configured maximum.
func (s *FundsService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if amount.GreaterThan(s.maxDeposit) {
		return nil, &domain.ValidationError{Message: "amount must be at most " + s.maxDeposit.String()}
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return s.update(ctx, accountID, func(tx store.Tx) error {
		return store.Credit(ctx, tx, amount)
	})
}

// Withdraw takes amount from the account's cash. Cash blocked by pending
// buys is not available.
func (s *FundsService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return s.update(ctx, accountID, func(tx store.Tx) error {
		return store.Debit(ctx, tx, amount)
	})
}

func (s *FundsService) update(ctx context.Context, accountID string, fn func(store.Tx) error) (*domain.Account, error) {
	if err := s.ledger.WithAccount(ctx, accountID, fn); err != nil {
		return nil, err
	}
	return s.ledger.GetAccount(ctx, accountID)
}

// Balance returns the account.
func (s *FundsService) Balance(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, accountID)
}

// Positions returns the account's open positions ordered by symbol.
func (s *FundsService) Positions(ctx context.Context, accountID string) ([]domain.Position, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.ListPositions(ctx, accountID)
}
