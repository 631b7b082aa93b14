package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/efreitasn/tradecore/internal/store"
	"github.com/google/uuid"
)

// WebhookSink POSTs events to the URL an account subscribed for the event
// type. Accounts without a subscription are skipped.
type WebhookSink struct {
	store  *store.WebhookStore
	client *http.Client
}

// NewWebhookSink creates a WebhookSink with the given request timeout.
func NewWebhookSink(webhooks *store.WebhookStore, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		store:  webhooks,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Publish sends the event with X-Delivery-Id, X-Webhook-Id and
// X-Event-Type headers. Non-2xx responses are errors.
func (s *WebhookSink) Publish(ctx context.Context, ev Event) error {
	wh, ok := s.store.Lookup(ev.AccountID, ev.Type)
	if !ok {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", string(ev.Type))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
