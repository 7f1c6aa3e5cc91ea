package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"conti/internal/amqp"
	"conti/internal/auth"
	"conti/internal/bills"
	"conti/internal/cache"
	"conti/internal/categories"
	"conti/internal/cli"
	"conti/internal/core"
	apphttp "conti/internal/http"
	"conti/internal/ledger"
	"conti/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Startup failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	store := cli.OpenStore(logger, cfg)

	categoryCache := cache.NewLRUCache[core.Category](cfg.CategoryCacheSize, cfg.CategoryCacheTTL)
	cats := categories.NewService(store.Store, categoryCache)

	opts := []ledger.Option{ledger.WithRetries(cfg.LedgerMaxRetries, cfg.LedgerRetryBackoff)}

	// Events are best effort: the API runs without a broker.
	var publisher *amqp.Client
	if cfg.AMQPURL != "" {
		publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err)
		} else {
			opts = append(opts, ledger.WithEvents(publisher))
			logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	coordinator := ledger.New(store.Store, cats, opts...)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             coordinator,
		Bills:              bills.NewService(coordinator, cfg.MaterializeConcurrency),
		Categories:         cats,
		Auth:               auth.NewAuthenticator(cfg.JWTSecret),
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              store.Ready,
	})

	cacheCtx, stopCache := context.WithCancel(context.Background())
	cacheManager := cache.NewManager(categoryCache)
	cacheManager.Start(cacheCtx, time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		stopCache()
		cacheManager.Wait()
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if err := store.Cleanup(); err != nil {
			logger.Error("Store close error", log.FieldError, err)
		}
	})

	logger.Info("Starting conti server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
