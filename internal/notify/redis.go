package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events on a per-account pub/sub channel named
// prefix + account id.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink creates a sink publishing through client.
func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.Publish(ctx, s.Channel(ev.AccountID), body).Err()
}

// Channel returns the pub/sub channel for accountID.
func (s *RedisSink) Channel(accountID string) string {
	return s.prefix + accountID
}
