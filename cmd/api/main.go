package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pricedrop/internal/api"
	"github.com/dharsanguruparan/pricedrop/internal/config"
	"github.com/dharsanguruparan/pricedrop/internal/database"
	"github.com/dharsanguruparan/pricedrop/internal/repository"
	"github.com/dharsanguruparan/pricedrop/internal/s3storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	sessions := repository.NewSessionRepository(pool)
	products := repository.NewProductRepository(pool)
	documents := repository.NewDocumentRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := store.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	srv := api.New(cfg, sessions, products, documents, store, queueClient)
	if err := srv.Run(ctx); err != nil {
		log.Printf("api stopped: %v", err)
		os.Exit(1)
	}
}
