package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/pricedrop/internal/config"
	"github.com/dharsanguruparan/pricedrop/internal/database"
	"github.com/dharsanguruparan/pricedrop/internal/detect"
	"github.com/dharsanguruparan/pricedrop/internal/repository"
	"github.com/dharsanguruparan/pricedrop/internal/s3storage"
	"github.com/dharsanguruparan/pricedrop/internal/worker"
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

	var classifier detect.Classifier = detect.NewHeuristic(cfg.BrandVocabulary)
	if cfg.ClassifierURL != "" {
		classifier = detect.NewRemote(cfg.ClassifierURL, cfg.ClassifierTimeout, classifier)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
	})
	processor := worker.NewProcessor(sessions, products, documents, store, classifier, cfg.PricingDefaults)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
}
