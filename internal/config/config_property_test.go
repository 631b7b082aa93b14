package config

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

var durationKeys = []string{
	"MATCH_INTERVAL", "NOTIFY_TIMEOUT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

var durationDefaults = map[string]time.Duration{
	"MATCH_INTERVAL":   time.Second,
	"NOTIFY_TIMEOUT":   5 * time.Second,
	"READ_TIMEOUT":     5 * time.Second,
	"WRITE_TIMEOUT":    10 * time.Second,
	"IDLE_TIMEOUT":     60 * time.Second,
	"SHUTDOWN_TIMEOUT": 10 * time.Second,
}

var allEnvKeys = append([]string{
	"PORT", "LOG_LEVEL", "MAX_DEPOSIT", "INITIAL_PRICES", "DATABASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_PRICES_KEY", "REDIS_CHANNEL_PREFIX", "REDIS_TICKS_CHANNEL",
	"KAFKA_BROKERS", "KAFKA_TOPIC",
}, durationKeys...)

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func durationFields(cfg *Config) map[string]time.Duration {
	return map[string]time.Duration{
		"MATCH_INTERVAL":   cfg.MatchInterval,
		"NOTIFY_TIMEOUT":   cfg.NotifyTimeout,
		"READ_TIMEOUT":     cfg.ReadTimeout,
		"WRITE_TIMEOUT":    cfg.WriteTimeout,
		"IDLE_TIMEOUT":     cfg.IdleTimeout,
		"SHUTDOWN_TIMEOUT": cfg.ShutdownTimeout,
	}
}

func TestProperty_DurationsParsedOrDefaulted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		want := make(map[string]time.Duration, len(durationDefaults))
		for _, key := range durationKeys {
			want[key] = durationDefaults[key]
			if rapid.Bool().Draw(t, key+"_set") {
				unit := rapid.SampledFrom([]time.Duration{time.Millisecond, time.Second, time.Minute}).Draw(t, key+"_unit")
				n := rapid.IntRange(1, 600).Draw(t, key+"_n")
				want[key] = time.Duration(n) * unit
				os.Setenv(key, want[key].String())
			}
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		for key, got := range durationFields(cfg) {
			if got != want[key] {
				t.Fatalf("%s = %v, want %v", key, got, want[key])
			}
		}
	})
}

func TestProperty_NonPositiveDurationRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		key := rapid.SampledFrom(durationKeys).Draw(t, "key")
		n := rapid.IntRange(-1000, 0).Draw(t, "n")
		os.Setenv(key, fmt.Sprintf("%dms", n))

		if _, err := Load(); err == nil {
			t.Fatalf("Load accepted %s=%dms", key, n)
		}
	})
}

func TestProperty_InitialPricesRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		symbols := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Z]{1,5}`), 0, 6, rapid.ID[string]).Draw(t, "symbols")
		want := make(map[string]decimal.Decimal, len(symbols))
		pairs := make([]string, 0, len(symbols))
		for _, s := range symbols {
			cents := rapid.Int64Range(1, 10_000_000).Draw(t, s)
			p := decimal.New(cents, -2)
			want[s] = p
			pairs = append(pairs, fmt.Sprintf(" %s=%s ", strings.ToLower(s), p))
		}
		os.Setenv("INITIAL_PRICES", strings.Join(pairs, ","))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(cfg.InitialPrices) != len(want) {
			t.Fatalf("got %d prices, want %d", len(cfg.InitialPrices), len(want))
		}
		for s, p := range want {
			if got, ok := cfg.InitialPrices[s]; !ok || !got.Equal(p) {
				t.Fatalf("%s = %s (%v), want %s", s, got, ok, p)
			}
		}
	})
}

func TestProperty_KafkaBrokersDropBlanks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		items := rapid.SliceOf(rapid.OneOf(
			rapid.Just(""),
			rapid.Just("  "),
			rapid.StringMatching(`[a-z]{1,8}:[0-9]{4}`),
		)).Draw(t, "items")
		os.Setenv("KAFKA_BROKERS", strings.Join(items, ","))

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		var want []string
		for _, item := range items {
			if s := strings.TrimSpace(item); s != "" {
				want = append(want, s)
			}
		}
		if strings.Join(cfg.KafkaBrokers, ",") != strings.Join(want, ",") {
			t.Fatalf("KafkaBrokers = %v, want %v", cfg.KafkaBrokers, want)
		}
	})
}

func TestProperty_MaxDepositMustBePositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		cents := rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "cents")
		amount := decimal.New(cents, -2)
		os.Setenv("MAX_DEPOSIT", amount.String())

		cfg, err := Load()
		if cents <= 0 {
			if err == nil {
				t.Fatalf("Load accepted MAX_DEPOSIT=%s", amount)
			}
			return
		}
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.MaxDeposit.Equal(amount) {
			t.Fatalf("MaxDeposit = %s, want %s", cfg.MaxDeposit, amount)
		}
	})
}

func TestProperty_InvalidLogLevelRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		level := rapid.StringMatching(`[a-z]{1,12}`).Filter(func(s string) bool {
			return !isValidLogLevel(s)
		}).Draw(t, "level")
		os.Setenv("LOG_LEVEL", level)

		if _, err := Load(); err == nil {
			t.Fatalf("Load accepted LOG_LEVEL=%q", level)
		}
	})
}
