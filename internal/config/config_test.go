package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.MatchInterval != time.Second {
		t.Errorf("MatchInterval = %v, want 1s", cfg.MatchInterval)
	}
	if cfg.NotifyTimeout != 5*time.Second {
		t.Errorf("NotifyTimeout = %v, want 5s", cfg.NotifyTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
	if cfg.MaxDeposit.String() != "10000000" {
		t.Errorf("MaxDeposit = %s, want 10000000", cfg.MaxDeposit)
	}
	if len(cfg.InitialPrices) != 0 {
		t.Errorf("InitialPrices = %v, want empty", cfg.InitialPrices)
	}
	if cfg.DatabaseURL != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 {
		t.Errorf("external backends should be disabled by default: %+v", cfg)
	}
	if cfg.RedisPricesKey != "tradecore:prices" || cfg.RedisChannelPrefix != "tradecore:events:" {
		t.Errorf("unexpected redis defaults %q %q", cfg.RedisPricesKey, cfg.RedisChannelPrefix)
	}
	if cfg.KafkaTopic != "tradecore.order-events" {
		t.Errorf("KafkaTopic = %q", cfg.KafkaTopic)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MATCH_INTERVAL", "250ms")
	t.Setenv("MAX_DEPOSIT", "5000.50")
	t.Setenv("INITIAL_PRICES", "aapl=187.44, MSFT=410")
	t.Setenv("DATABASE_URL", "postgres://localhost/tradecore")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TICKS_CHANNEL", "ticks")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("KAFKA_TOPIC", "orders")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 || cfg.LogLevel != "debug" || cfg.MatchInterval != 250*time.Millisecond {
		t.Errorf("got %+v", cfg)
	}
	if cfg.MaxDeposit.String() != "5000.5" {
		t.Errorf("MaxDeposit = %s", cfg.MaxDeposit)
	}
	if p, ok := cfg.InitialPrices["AAPL"]; !ok || p.String() != "187.44" || len(cfg.InitialPrices) != 2 {
		t.Errorf("InitialPrices = %v", cfg.InitialPrices)
	}
	if cfg.RedisDB != 2 || cfg.RedisAddr != "localhost:6379" || cfg.RedisTicksChannel != "ticks" {
		t.Errorf("redis = %q db %d ticks %q", cfg.RedisAddr, cfg.RedisDB, cfg.RedisTicksChannel)
	}
	if strings.Join(cfg.KafkaBrokers, "|") != "k1:9092|k2:9092" || cfg.KafkaTopic != "orders" {
		t.Errorf("kafka = %v %q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "abc"},
		{"LOG_LEVEL", "verbose"},
		{"MATCH_INTERVAL", "soon"},
		{"MATCH_INTERVAL", "0s"},
		{"NOTIFY_TIMEOUT", "-1s"},
		{"MAX_DEPOSIT", "lots"},
		{"MAX_DEPOSIT", "0"},
		{"INITIAL_PRICES", "AAPL"},
		{"INITIAL_PRICES", "AAPL=-3"},
		{"REDIS_DB", "one"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tradecore.env")
	content := "PORT=7070\nINITIAL_PRICES=AAPL=100\n# comment\nLOG_LEVEL=warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LOG_LEVEL", "error")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PORT"); os.Unsetenv("INITIAL_PRICES") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("existing variable overridden: LogLevel = %q", cfg.LogLevel)
	}
	if _, ok := cfg.InitialPrices["AAPL"]; !ok {
		t.Errorf("InitialPrices = %v", cfg.InitialPrices)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for a missing file")
	}
}
