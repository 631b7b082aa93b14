package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisOracle reads prices from a Redis hash of symbol → price, kept up to
// date by the upstream market-data feed.
type RedisOracle struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisOracle creates an oracle reading the hash at key.
func NewRedisOracle(client *redis.Client, key string, logger *slog.Logger) *RedisOracle {
	return &RedisOracle{client: client, key: key, logger: logger}
}

// Price returns the hash field for symbol. Missing fields, unparsable
// values and Redis errors all count as no quote.
func (o *RedisOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	raw, err := o.client.HGet(ctx, o.key, symbol).Result()
	if err != nil {
		if err != redis.Nil {
			o.logger.Warn("price lookup failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
		return decimal.Zero, false
	}
	p, err := decimal.NewFromString(raw)
	if err != nil || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

// Prices returns every parsable price in the hash. On error it returns an
// empty map so a matching pass simply finds no quotes.
func (o *RedisOracle) Prices(ctx context.Context) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	fields, err := o.client.HGetAll(ctx, o.key).Result()
	if err != nil {
		o.logger.Warn("price snapshot failed", slog.String("error", err.Error()))
		return out
	}
	for symbol, raw := range fields {
		p, err := decimal.NewFromString(raw)
		if err != nil || !p.IsPositive() {
			continue
		}
		out[symbol] = p
	}
	return out
}

// SubscribeTicks relays ticks published on channel as JSON
// {"symbol":"AAPL","price":"101.25"}. Malformed messages are logged and
// dropped. The returned channel is closed when ctx is cancelled or the
// subscription ends.
func SubscribeTicks(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger) <-chan Tick {
	out := make(chan Tick)
	sub := client.Subscribe(ctx, channel)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				tick, err := ParseTick(msg.Payload)
				if err != nil {
					logger.Warn("dropping price tick", slog.String("channel", channel), slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// ParseTick decodes one published tick. The symbol is upper-cased and the
// price must be positive.
func ParseTick(payload string) (Tick, error) {
	var t Tick
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return Tick{}, fmt.Errorf("decode tick: %w", err)
	}
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Symbol == "" {
		return Tick{}, errors.New("tick without symbol")
	}
	if !t.Price.IsPositive() {
		return Tick{}, fmt.Errorf("invalid price for %s: %s", t.Symbol, t.Price)
	}
	return t, nil
}
