package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"academy/internal/app"
	"academy/internal/config"
)

// Worker drains the orphaned-media queue: blobs whose entry was deleted
// while the blob store was failing.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api process")
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	if a.Redis != nil && !a.Redis.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, consumer will keep retrying", cfg.RedisAddr)
	}

	log.Println("worker started, waiting for orphaned media...")
	if err := a.Logbook.ReapOrphans(ctx, a.Orphans); err != nil {
		log.Printf("worker: %v", err)
	}
	log.Println("worker stopped")
}
