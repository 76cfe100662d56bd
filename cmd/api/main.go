package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockguard/internal/config"
	"stockguard/internal/database"
	"stockguard/internal/events"
	"stockguard/internal/handler"
	"stockguard/internal/payment"
	"stockguard/internal/repository"
	"stockguard/internal/router"
	"stockguard/internal/service"
	"stockguard/internal/session"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting stockguard API server")

	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer closeSessions()

	publisher, closePublisher := newPublisher(cfg.Kafka, logger)
	defer closePublisher()

	provider, err := payment.NewHostedProvider(cfg.Payment.Provider, cfg.Payment.RedirectBaseURL, cfg.Payment.ServerKey)
	if err != nil {
		return fmt.Errorf("failed to initialize payment provider: %w", err)
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	historyRepo := repository.NewStockHistoryRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	refundRepo := repository.NewRefundRepository(pool, logger)

	// Initialize services
	ledger := service.NewStockLedger(pool, productRepo, historyRepo, publisher, logger)
	productService := service.NewProductService(productRepo, logger)
	checkoutService := service.NewCheckoutService(productRepo, orderRepo, ledger, sessions, provider, publisher, logger)
	orderService := service.NewOrderService(orderRepo, ledger, publisher, logger)
	refundService := service.NewRefundService(orderRepo, refundRepo, ledger, publisher, logger)
	processor := service.NewNotificationProcessor(service.NotificationConfig{
		ServerKey: cfg.Payment.ServerKey,
		Provider:  provider.Name(),
		Location:  cfg.Payment.Location(),
	}, orderRepo, ledger, sessions, publisher, logger)

	// Initialize router
	mux := router.New(
		handler.NewCheckoutHandler(checkoutService, logger),
		handler.NewNotificationHandler(processor, logger),
		handler.NewProductHandler(productService, logger),
		handler.NewOrderHandler(orderService, refundService, logger),
		handler.NewAdminHandler(orderService, refundService, ledger, logger),
		cfg.Auth,
		logger,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		session.StartSweeper(gctx, sessions, cfg.Session.SweepInterval, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
		return nil
	})

	return g.Wait()
}

// newSessionStore builds the configured checkout session store.
func newSessionStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (session.Store, func(), error) {
	if cfg.Session.Store == "memory" {
		logger.Warn().Msg("using in-memory checkout sessions; sessions are lost on restart")
		return session.NewMemoryStore(cfg.Session.TTL, logger), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis checkout sessions")
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
	return session.NewRedisStore(rdb, cfg.Session.TTL, logger), closeFn, nil
}

// newPublisher fans events out to the log and, when enabled, to Kafka.
func newPublisher(cfg config.KafkaConfig, logger zerolog.Logger) (events.Publisher, func()) {
	logPublisher := events.NewLogPublisher(logger)
	if !cfg.Enabled {
		return logPublisher, func() {}
	}

	kafkaPublisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Brokers, cfg.Topic), 0, logger)
	kafkaPublisher.Start()
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("publishing events to kafka")

	return events.Multi(logPublisher, kafkaPublisher), kafkaPublisher.Close
}
