package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
)

func newTestWebhook(id, accountID string, event domain.EventType, url string) *domain.Webhook {
	now := time.Now()
	return &domain.Webhook{
		WebhookID: id,
		AccountID: accountID,
		Event:     event,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWebhookStore_Upsert_NewSubscription(t *testing.T) {
	s := NewWebhookStore()

	got, created, _ := s.Upsert(context.Background(), newTestWebhook("wh-1", "acc-1", domain.EventOrderExecuted, "https://example.com/hook"))
	if !created {
		t.Fatal("expected Upsert to report a new subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected webhook ID wh-1, got %s", got.WebhookID)
	}
	if _, ok := s.Lookup("acc-1", domain.EventOrderExecuted); !ok {
		t.Fatal("expected Lookup to find the subscription")
	}
}

func TestWebhookStore_Upsert_UpdateURLKeepsID(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(context.Background(), newTestWebhook("wh-1", "acc-1", domain.EventOrderCancelled, "https://example.com/old"))

	got, created, _ := s.Upsert(context.Background(), newTestWebhook("wh-2", "acc-1", domain.EventOrderCancelled, "https://example.com/new"))
	if created {
		t.Fatal("expected Upsert to update the existing subscription")
	}
	if got.WebhookID != "wh-1" {
		t.Fatalf("expected stable webhook ID wh-1, got %s", got.WebhookID)
	}
	if got.URL != "https://example.com/new" {
		t.Fatalf("expected updated URL, got %s", got.URL)
	}
}

func TestWebhookStore_ListByAccount(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(context.Background(), newTestWebhook("wh-1", "acc-1", domain.EventStopLossTriggered, "https://example.com/a"))
	s.Upsert(context.Background(), newTestWebhook("wh-2", "acc-1", domain.EventOrderExecuted, "https://example.com/b"))
	s.Upsert(context.Background(), newTestWebhook("wh-3", "acc-2", domain.EventOrderExecuted, "https://example.com/c"))

	list := s.ListByAccount("acc-1")
	if len(list) != 2 {
		t.Fatalf("expected 2 webhooks, got %d", len(list))
	}
	if list[0].Event != domain.EventOrderExecuted {
		t.Fatalf("expected list ordered by event, got %s first", list[0].Event)
	}
	if got := s.ListByAccount("nobody"); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}
}

func TestWebhookStore_Delete(t *testing.T) {
	s := NewWebhookStore()
	s.Upsert(context.Background(), newTestWebhook("wh-1", "acc-1", domain.EventOrderExecuted, "https://example.com/a"))

	if err := s.Delete(context.Background(), "acc-2", "wh-1"); err != domain.ErrWebhookNotFound {
		t.Fatalf("expected ErrWebhookNotFound for another account, got %v", err)
	}
	if err := s.Delete(context.Background(), "acc-1", "wh-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.Lookup("acc-1", domain.EventOrderExecuted); ok {
		t.Fatal("expected subscription to be gone")
	}
	if err := s.Delete(context.Background(), "acc-1", "wh-1"); err != domain.ErrWebhookNotFound {
		t.Fatalf("expected ErrWebhookNotFound on second delete, got %v", err)
	}
}

func TestWebhookStore_ConcurrentUpserts(t *testing.T) {
	s := NewWebhookStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(context.Background(), newTestWebhook(fmt.Sprintf("wh-%d", i), "acc-1", domain.EventOrderExecuted, "https://example.com/hook"))
		}(i)
	}
	wg.Wait()

	if got := len(s.ListByAccount("acc-1")); got != 1 {
		t.Fatalf("expected exactly 1 subscription, got %d", got)
	}
}

// fakeWebhookBackend keeps saved subscriptions in a map and fails every
// write while failing is set.
type fakeWebhookBackend struct {
	mu      sync.Mutex
	saved   map[string]domain.Webhook
	failing bool
}

func (b *fakeWebhookBackend) LoadWebhooks(context.Context) ([]domain.Webhook, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Webhook, 0, len(b.saved))
	for _, w := range b.saved {
		out = append(out, w)
	}
	return out, nil
}

func (b *fakeWebhookBackend) SaveWebhook(_ context.Context, w domain.Webhook) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("backend down")
	}
	b.saved[w.WebhookID] = w
	return nil
}

func (b *fakeWebhookBackend) DeleteWebhook(_ context.Context, webhookID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("backend down")
	}
	delete(b.saved, webhookID)
	return nil
}

func TestPersistentWebhookStore_SurvivesReload(t *testing.T) {
	ctx := context.Background()
	backend := &fakeWebhookBackend{saved: map[string]domain.Webhook{}}

	s, err := NewPersistentWebhookStore(ctx, backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-1", "acc-1", domain.EventOrderExecuted, "https://example.com/a")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-2", "acc-1", domain.EventOrderCancelled, "https://example.com/b")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-3", "acc-1", domain.EventOrderExecuted, "https://example.com/c")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Delete(ctx, "acc-1", "wh-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reloaded, err := NewPersistentWebhookStore(ctx, backend)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	list := reloaded.ListByAccount("acc-1")
	if len(list) != 1 {
		t.Fatalf("got %d subscriptions after reload, want 1", len(list))
	}
	if list[0].WebhookID != "wh-1" || list[0].URL != "https://example.com/c" {
		t.Errorf("got %+v, want wh-1 with the updated URL", list[0])
	}
}

func TestPersistentWebhookStore_BackendFailureLeavesIndex(t *testing.T) {
	ctx := context.Background()
	backend := &fakeWebhookBackend{saved: map[string]domain.Webhook{}}
	s, err := NewPersistentWebhookStore(ctx, backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-1", "acc-1", domain.EventOrderExecuted, "https://example.com/a")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	backend.failing = true
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-2", "acc-1", domain.EventOrderCancelled, "https://example.com/b")); err == nil {
		t.Error("expected error from a failing backend")
	}
	if _, _, err := s.Upsert(ctx, newTestWebhook("wh-3", "acc-1", domain.EventOrderExecuted, "https://example.com/new")); err == nil {
		t.Error("expected error from a failing backend")
	}
	if err := s.Delete(ctx, "acc-1", "wh-1"); err == nil {
		t.Error("expected error from a failing backend")
	}

	w, ok := s.Lookup("acc-1", domain.EventOrderExecuted)
	if !ok || w.URL != "https://example.com/a" {
		t.Errorf("got %+v (%v), want the original subscription", w, ok)
	}
	if _, ok := s.Lookup("acc-1", domain.EventOrderCancelled); ok {
		t.Error("failed insert must not be indexed")
	}
}
