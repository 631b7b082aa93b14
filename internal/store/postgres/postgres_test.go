package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newTestStore connects to TRADECORE_TEST_DATABASE_URL and skips the test
// when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TRADECORE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRADECORE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func newAccount(t *testing.T, s *Store, cash string) string {
	t.Helper()
	now := time.Now().UTC()
	id := "acc-" + uuid.NewString()
	err := s.CreateAccount(context.Background(), &domain.Account{
		ID:          id,
		CashBalance: decimal.RequireFromString(cash),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return id
}

func TestStore_OrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	accountID := newAccount(t, s, "1000")

	order := &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     "AAPL",
		Side:       domain.SideBuy,
		ExecKind:   domain.ExecLimit,
		Category:   domain.CategoryRegular,
		Quantity:   5,
		Price:      decimal.RequireFromString("100"),
		LimitPrice: domain.NullPrice(decimal.RequireFromString("100")),
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	err := s.WithAccount(ctx, accountID, func(tx store.Tx) error {
		if err := store.Debit(ctx, tx, decimal.RequireFromString("500")); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	err = s.WithAccount(ctx, accountID, func(tx store.Tx) error {
		return tx.CompleteOrder(ctx, order.ID, decimal.RequireFromString("90"), time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	err = s.WithAccount(ctx, accountID, func(tx store.Tx) error {
		return tx.CancelOrder(ctx, order.ID, domain.ReasonUserCancelled, time.Now().UTC())
	})
	if err != domain.ErrStateConflict {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	got, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != domain.OrderStatusCompleted || !got.ExecutionPrice.Decimal.Equal(decimal.RequireFromString("90")) {
		t.Fatalf("unexpected order state %s %v", got.Status, got.ExecutionPrice)
	}
	a, _ := s.GetAccount(ctx, accountID)
	if !a.CashBalance.Equal(decimal.RequireFromString("500")) {
		t.Fatalf("expected balance 500, got %s", a.CashBalance)
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	accountID := newAccount(t, s, "100")

	err := s.WithAccount(ctx, accountID, func(tx store.Tx) error {
		if err := store.Credit(ctx, tx, decimal.RequireFromString("50")); err != nil {
			return err
		}
		return store.Debit(ctx, tx, decimal.RequireFromString("1000"))
	})
	if err != domain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	a, _ := s.GetAccount(ctx, accountID)
	if !a.CashBalance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected rolled back balance 100, got %s", a.CashBalance)
	}
}

func TestStore_FlatPositionDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	accountID := newAccount(t, s, "0")

	save := func(qty int64) {
		t.Helper()
		err := s.WithAccount(ctx, accountID, func(tx store.Tx) error {
			return tx.SavePosition(ctx, domain.Position{Symbol: "MSFT", Quantity: qty, AverageCost: decimal.RequireFromString("50")})
		})
		if err != nil {
			t.Fatalf("save position: %v", err)
		}
	}

	save(-5)
	ps, _ := s.ListPositions(ctx, accountID)
	if len(ps) != 1 || !ps[0].IsShort {
		t.Fatalf("expected one short position, got %+v", ps)
	}
	save(0)
	ps, _ = s.ListPositions(ctx, accountID)
	if len(ps) != 0 {
		t.Fatalf("expected no positions, got %+v", ps)
	}
}

func TestStore_UnknownAccount(t *testing.T) {
	s := newTestStore(t)
	err := s.WithAccount(context.Background(), "missing-"+uuid.NewString(), func(tx store.Tx) error { return nil })
	if err != domain.ErrAccountNotFound {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestStore_WebhooksSurviveReload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	accountID := newAccount(t, s, "0")

	webhooks, err := store.NewPersistentWebhookStore(ctx, s)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	w, _, err := webhooks.Upsert(ctx, &domain.Webhook{
		WebhookID: uuid.NewString(),
		AccountID: accountID,
		Event:     domain.EventOrderExecuted,
		URL:       "https://example.com/hook",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reloaded, err := store.NewPersistentWebhookStore(ctx, s)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Lookup(accountID, domain.EventOrderExecuted)
	if !ok || got.WebhookID != w.WebhookID || got.URL != w.URL {
		t.Fatalf("got %+v (%v), want %+v", got, ok, w)
	}

	if err := reloaded.Delete(ctx, accountID, w.WebhookID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	again, err := store.NewPersistentWebhookStore(ctx, s)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := again.Lookup(accountID, domain.EventOrderExecuted); ok {
		t.Error("deleted subscription came back after reload")
	}
}
