package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/google/uuid"
)

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	AccountID string
	URL       string
	Events    []string
}

// WebhookService handles webhook subscription CRUD. Delivery happens in
// the notify package.
type WebhookService struct {
	store  *store.WebhookStore
	ledger store.Ledger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(webhooks *store.WebhookStore, ledger store.Ledger) *WebhookService {
	return &WebhookService{store: webhooks, ledger: ledger}
}

func eventTypeList() string {
	names := make([]string, len(domain.EventTypes))
	for i, e := range domain.EventTypes {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

// Upsert validates the request and creates or updates one subscription per
// event. It returns the resulting webhooks and whether any was newly created.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]domain.Webhook, bool, error) {
	if _, err := s.ledger.GetAccount(ctx, req.AccountID); err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}
	seen := make(map[domain.EventType]bool, len(req.Events))
	events := make([]domain.EventType, 0, len(req.Events))
	for _, raw := range req.Events {
		e := domain.EventType(raw)
		if !e.Valid() {
			return nil, false, &domain.ValidationError{
				Message: "unknown event type: " + raw + ". Must be one of: " + eventTypeList(),
			}
		}
		if !seen[e] {
			seen[e] = true
			events = append(events, e)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]domain.Webhook, 0, len(events))
	for _, e := range events {
		w, created, err := s.store.Upsert(ctx, &domain.Webhook{
			WebhookID: uuid.New().String(),
			AccountID: req.AccountID,
			Event:     e,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, false, err
		}
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List returns the account's subscriptions.
func (s *WebhookService) List(ctx context.Context, accountID string) ([]domain.Webhook, error) {
	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListByAccount(accountID), nil
}

// Delete removes one of the account's subscriptions.
func (s *WebhookService) Delete(ctx context.Context, accountID, webhookID string) error {
	return s.store.Delete(ctx, accountID, webhookID)
}
