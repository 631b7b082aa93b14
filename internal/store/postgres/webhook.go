package postgres

import (
	"context"
	"fmt"

	"github.com/efreitasn/tradecore/internal/domain"
	"github.com/efreitasn/tradecore/internal/store"
)

var _ store.WebhookBackend = (*Store)(nil)

// LoadWebhooks returns every stored subscription.
func (s *Store) LoadWebhooks(ctx context.Context) ([]domain.Webhook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT webhook_id, account_id, event, url, created_at, updated_at
		FROM webhooks
	`)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var out []domain.Webhook
	for rows.Next() {
		var w domain.Webhook
		var event string
		if err := rows.Scan(&w.WebhookID, &w.AccountID, &event, &w.URL, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		w.Event = domain.EventType(event)
		out = append(out, w)
	}
	return out, rows.Err()
}

// SaveWebhook inserts a subscription or updates its URL.
func (s *Store) SaveWebhook(ctx context.Context, w domain.Webhook) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhooks (webhook_id, account_id, event, url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (webhook_id) DO UPDATE SET url = EXCLUDED.url, updated_at = EXCLUDED.updated_at
	`, w.WebhookID, w.AccountID, string(w.Event), w.URL, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes a subscription. Deleting a missing one is not an error.
func (s *Store) DeleteWebhook(ctx context.Context, webhookID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE webhook_id = $1`, webhookID); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
