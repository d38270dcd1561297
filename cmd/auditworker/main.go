package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"wellnesscms/api/internal/cache"
	"wellnesscms/api/internal/config"
	"wellnesscms/api/internal/database"
	"wellnesscms/api/internal/log"
	"wellnesscms/api/internal/repository"
	"wellnesscms/api/internal/storage"
	"wellnesscms/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Logging.Level).With().Str("component", "auditworker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	var archiver worker.Archiver
	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure archive bucket failed")
		}
		archiver = store
	} else {
		logger.Info().Msg("storage endpoint not set, audit archiving disabled")
	}

	processor := worker.NewAuditProcessor(repository.NewAuditRepository(dbPool), archiver, cfg.Audit.ArchiveBatch, logger)
	consumer := worker.NewConsumer(
		client,
		cfg.Audit.Stream,
		cfg.Audit.Group,
		cfg.Audit.Consumer,
		cfg.Audit.ClaimInterval,
		logger,
		processor,
	)

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		processor.RunFlusher(ctx, time.Minute)
	}()

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	<-flushed
}
