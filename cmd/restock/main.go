// Command restock applies gzipped restock manifests to the stock ledger.
//
// Usage:
//
//	restock -reason "weekly delivery" manifests/2025-03-01.gz [more.gz ...]
//
// Manifest paths are looked up in S3 under S3_PREFIX when S3 is enabled and
// read from the local file system otherwise or when the S3 read fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockguard/internal/config"
	"stockguard/internal/database"
	"stockguard/internal/events"
	"stockguard/internal/repository"
	"stockguard/internal/restock"
	"stockguard/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	reason := flag.String("reason", "restock manifest", "reason recorded on every audit entry")
	actor := flag.String("actor", "system:restock", "actor recorded on every audit entry")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		return fmt.Errorf("at least one manifest path is required")
	}

	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadRestock()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	productRepo := repository.NewProductRepository(pool, logger)
	historyRepo := repository.NewStockHistoryRepository(pool, logger)
	ledger := service.NewStockLedger(pool, productRepo, historyRepo, events.NewLogPublisher(logger), logger)

	// Initialize manifest loader with S3 and local fallback
	fileLoader := restock.NewFileLoader(logger)
	var s3Loader restock.Loader
	if cfg.S3.Enabled {
		s3Loader, err = restock.NewS3Loader(ctx, cfg.S3.Bucket, cfg.S3.Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		}
	} else {
		logger.Info().Msg("using local file system for restock manifests (S3 disabled)")
	}
	loader := restock.NewFallbackLoader(s3Loader, fileLoader, cfg.S3.Prefix, cfg.S3.Enabled && s3Loader != nil, logger)

	result, err := restock.NewApplier(loader, ledger, *actor, logger).Run(ctx, paths, *reason)
	if err != nil {
		return fmt.Errorf("restock failed: %w", err)
	}

	for _, failed := range result.Failed {
		fmt.Fprintf(os.Stderr, "skipped %s\n", failed.Error())
	}
	fmt.Printf("applied %d lines from %d manifests, %d skipped\n", result.Applied, result.Manifests, len(result.Failed))

	return nil
}
