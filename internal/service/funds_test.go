package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/tradecore/internal/domain"
)

func TestOpenAccount(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "250.50")

	_, err := env.funds.OpenAccount(context.Background(), "acc-1", dec("1"))
	if !errors.Is(err, domain.ErrAccountExists) {
		t.Errorf("expected ErrAccountExists, got %v", err)
	}

	for _, tc := range []struct{ id, cash string }{
		{"bad id", "1"},
		{"acc-2", "-1"},
		{"acc-3", "1.234"},
	} {
		_, err := env.funds.OpenAccount(context.Background(), tc.id, dec(tc.cash))
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("OpenAccount(%q, %s): expected ValidationError, got %v", tc.id, tc.cash, err)
		}
	}
}

func TestDeposit(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "100")

	a, err := env.funds.Deposit(context.Background(), "acc-1", dec("50.25"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.Equal(dec("150.25")) {
		t.Errorf("got %s, want 150.25", a.CashBalance)
	}
}

func TestDeposit_Validation(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "100")

	for _, amount := range []string{"0", "-5", "10000000.01", "1.001"} {
		_, err := env.funds.Deposit(context.Background(), "acc-1", dec(amount))
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Deposit(%s): expected ValidationError, got %v", amount, err)
		}
	}
	if _, err := env.funds.Deposit(context.Background(), "ghost", dec("1")); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "100")

	a, err := env.funds.Withdraw(context.Background(), "acc-1", dec("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CashBalance.IsZero() {
		t.Errorf("got %s, want 0", a.CashBalance)
	}
	if _, err := env.funds.Withdraw(context.Background(), "acc-1", dec("0.01")); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdraw_BlockedCashUnavailable(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "1000")
	placeLimitBuy(t, env, "acc-1", 10, "90")

	if _, err := env.funds.Withdraw(context.Background(), "acc-1", dec("101")); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPositions(t *testing.T) {
	env := newTestEnv()
	openAccount(t, env, "acc-1", "1000")
	buyMarket(t, env, "acc-1", "MSFT", 2)
	buyMarket(t, env, "acc-1", "AAPL", 1)

	ps, err := env.funds.Positions(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ps) != 2 || ps[0].Symbol != "AAPL" || ps[1].Symbol != "MSFT" {
		t.Errorf("unexpected positions %+v", ps)
	}
	if _, err := env.funds.Positions(context.Background(), "ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
