// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/tradecore/internal/pricefeed"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the trading core.
type Config struct {
	Port            int
	LogLevel        string
	MatchInterval   time.Duration
	NotifyTimeout   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	MaxDeposit    decimal.Decimal
	InitialPrices map[string]decimal.Decimal

	// DatabaseURL selects the Postgres ledger; empty keeps it in memory.
	DatabaseURL string

	// RedisAddr enables the Redis price oracle and pub/sub sink.
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisPricesKey     string
	RedisChannelPrefix string
	// RedisTicksChannel switches prices to an in-memory table fed by
	// ticks published on this channel.
	RedisTicksChannel string

	// KafkaBrokers enables the Kafka sink.
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{Port: port, LogLevel: logLevel}
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"MATCH_INTERVAL", time.Second, &cfg.MatchInterval},
		{"NOTIFY_TIMEOUT", 5 * time.Second, &cfg.NotifyTimeout},
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	cfg.MaxDeposit, err = decimal.NewFromString(getStr("MAX_DEPOSIT", "10000000"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_DEPOSIT: %w", err)
	}
	if !cfg.MaxDeposit.IsPositive() {
		return nil, errors.New("invalid MAX_DEPOSIT: must be positive")
	}

	cfg.InitialPrices, err = pricefeed.ParsePrices(os.Getenv("INITIAL_PRICES"))
	if err != nil {
		return nil, fmt.Errorf("invalid INITIAL_PRICES: %w", err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB, err = getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisPricesKey = getStr("REDIS_PRICES_KEY", "tradecore:prices")
	cfg.RedisChannelPrefix = getStr("REDIS_CHANNEL_PREFIX", "tradecore:events:")
	cfg.RedisTicksChannel = os.Getenv("REDIS_TICKS_CHANNEL")

	cfg.KafkaBrokers = getList("KAFKA_BROKERS")
	cfg.KafkaTopic = getStr("KAFKA_TOPIC", "tradecore.order-events")

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated variable, dropping empty items.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
