package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/efreitasn/tradecore/internal/domain"
)

// WebhookBackend persists subscriptions behind a WebhookStore.
type WebhookBackend interface {
	LoadWebhooks(ctx context.Context) ([]domain.Webhook, error)
	SaveWebhook(ctx context.Context, w domain.Webhook) error
	DeleteWebhook(ctx context.Context, webhookID string) error
}

// WebhookStore is a thread-safe in-memory registry of webhook subscriptions.
// Primary index: webhook_id → webhook.
// Secondary index: account_id → event → webhook.
// With a backend, every change is written through before the indexes move.
type WebhookStore struct {
	mu        sync.RWMutex
	webhooks  map[string]*domain.Webhook
	byAccount map[string]map[domain.EventType]*domain.Webhook
	backend   WebhookBackend
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:  make(map[string]*domain.Webhook),
		byAccount: make(map[string]map[domain.EventType]*domain.Webhook),
	}
}

// NewPersistentWebhookStore loads every subscription from backend and
// writes later changes through to it.
func NewPersistentWebhookStore(ctx context.Context, backend WebhookBackend) (*WebhookStore, error) {
	saved, err := backend.LoadWebhooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load webhooks: %w", err)
	}
	s := NewWebhookStore()
	for i := range saved {
		s.index(saved[i])
	}
	s.backend = backend
	return s, nil
}

// Upsert inserts or updates a subscription keyed by (account_id, event).
// An existing subscription keeps its webhook_id and takes the new URL.
// It returns the stored subscription and whether it was newly created.
func (s *WebhookStore) Upsert(ctx context.Context, w *domain.Webhook) (domain.Webhook, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAccount[w.AccountID][w.Event]; ok {
		if existing.URL == w.URL {
			return *existing, false, nil
		}
		next := *existing
		next.URL = w.URL
		next.UpdatedAt = w.UpdatedAt
		if err := s.save(ctx, next); err != nil {
			return domain.Webhook{}, false, err
		}
		*existing = next
		return next, false, nil
	}

	if err := s.save(ctx, *w); err != nil {
		return domain.Webhook{}, false, err
	}
	return s.index(*w), true, nil
}

func (s *WebhookStore) save(ctx context.Context, w domain.Webhook) error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.SaveWebhook(ctx, w); err != nil {
		return fmt.Errorf("save webhook: %w", err)
	}
	return nil
}

func (s *WebhookStore) index(w domain.Webhook) domain.Webhook {
	c := w
	s.webhooks[c.WebhookID] = &c
	if s.byAccount[c.AccountID] == nil {
		s.byAccount[c.AccountID] = make(map[domain.EventType]*domain.Webhook)
	}
	s.byAccount[c.AccountID][c.Event] = &c
	return c
}

// ListByAccount returns the account's subscriptions ordered by event.
func (s *WebhookStore) ListByAccount(accountID string) []domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byAccount[accountID]
	result := make([]domain.Webhook, 0, len(events))
	for _, w := range events {
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Event < result[j].Event })
	return result
}

// Delete removes one of the account's subscriptions. It returns
// domain.ErrWebhookNotFound if the webhook does not exist or belongs to
// another account.
func (s *WebhookStore) Delete(ctx context.Context, accountID, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[webhookID]
	if !ok || w.AccountID != accountID {
		return domain.ErrWebhookNotFound
	}
	if s.backend != nil {
		if err := s.backend.DeleteWebhook(ctx, webhookID); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
	}
	delete(s.webhooks, webhookID)
	if events, ok := s.byAccount[w.AccountID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byAccount, w.AccountID)
		}
	}
	return nil
}

// Lookup returns the subscription for an account and event, if any.
func (s *WebhookStore) Lookup(accountID string, event domain.EventType) (domain.Webhook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byAccount[accountID][event]
	if !ok {
		return domain.Webhook{}, false
	}
	return *w, true
}
