package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/tradecore/internal/config"
	"github.com/efreitasn/tradecore/internal/engine"
	"github.com/efreitasn/tradecore/internal/handler"
	"github.com/efreitasn/tradecore/internal/metrics"
	"github.com/efreitasn/tradecore/internal/notify"
	"github.com/efreitasn/tradecore/internal/pricefeed"
	"github.com/efreitasn/tradecore/internal/service"
	"github.com/efreitasn/tradecore/internal/store"
	"github.com/efreitasn/tradecore/internal/store/postgres"
	"github.com/redis/go-redis/v9"
)

func main() {
	envFile := flag.String("env", "", "Load environment variables from a dotenv file")
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			slog.Error("failed to load env file", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger and webhook subscriptions.
	var ledger store.Ledger
	var webhookStore *store.WebhookStore
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		webhookStore, err = store.NewPersistentWebhookStore(ctx, pg)
		if err != nil {
			logger.Error("failed to load webhooks", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ledger = pg
		logger.Info("ledger backend", slog.String("kind", "postgres"))
	} else {
		ledger = store.NewMemory()
		webhookStore = store.NewWebhookStore()
		logger.Info("ledger backend", slog.String("kind", "memory"))
	}

	// Prices and notification sinks.
	m := metrics.New()
	sinks := []notify.Sink{notify.NewWebhookSink(webhookStore, cfg.NotifyTimeout)}

	var oracle pricefeed.Oracle
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		// Initial prices only fill symbols the feed has not published yet.
		for symbol, price := range cfg.InitialPrices {
			if err := rdb.HSetNX(ctx, cfg.RedisPricesKey, symbol, price.String()).Err(); err != nil {
				logger.Warn("failed to seed price", slog.String("symbol", symbol), slog.String("error", err.Error()))
			}
		}
		if cfg.RedisTicksChannel != "" {
			table := pricefeed.NewTable(cfg.InitialPrices)
			go table.Consume(ctx, pricefeed.SubscribeTicks(ctx, rdb, cfg.RedisTicksChannel, logger))
			oracle = table
			logger.Info("price feed", slog.String("kind", "redis-ticks"), slog.String("channel", cfg.RedisTicksChannel))
		} else {
			oracle = pricefeed.NewRedisOracle(rdb, cfg.RedisPricesKey, logger)
			logger.Info("price feed", slog.String("kind", "redis-hash"), slog.String("key", cfg.RedisPricesKey))
		}
		sinks = append(sinks, notify.NewRedisSink(rdb, cfg.RedisChannelPrefix))
	} else {
		oracle = pricefeed.NewTable(cfg.InitialPrices)
		logger.Info("price feed", slog.String("kind", "static"))
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Error("kafka writer close error", slog.String("error", err.Error()))
			}
		}()
		sinks = append(sinks, kafkaSink)
	}

	dispatcher := notify.NewDispatcher(logger, m, cfg.NotifyTimeout, sinks...)

	// Services.
	placementSvc := service.NewPlacementService(ledger, oracle, dispatcher, m, logger)
	cancellationSvc := service.NewCancellationService(ledger, dispatcher, m, logger)
	fundsSvc := service.NewFundsService(ledger, cfg.MaxDeposit, logger)
	stockSvc := service.NewStockService(oracle)
	webhookSvc := service.NewWebhookService(webhookStore, ledger)

	router := handler.NewRouter(handler.Services{
		Placement:    placementSvc,
		Cancellation: cancellationSvc,
		Funds:        fundsSvc,
		Stocks:       stockSvc,
		Webhooks:     webhookSvc,
		Metrics:      m.Handler(),
	}, logger)

	matcher := engine.NewMatcher(cfg.MatchInterval, ledger, oracle, dispatcher, m, logger)
	matcherDone := matcher.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop intake first, then the matcher, then drain in-flight notifications.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	<-matcherDone
	dispatcher.Wait()

	logger.Info("server stopped")
}
