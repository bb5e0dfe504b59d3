package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eventpipeline/internal/ingest"
	"eventpipeline/internal/store"
	"eventpipeline/pkg/config"
	"eventpipeline/pkg/kafka"
	"eventpipeline/pkg/models"
	"eventpipeline/pkg/postgres"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[Consumer] Starting event-consumer...")

	cfg := config.Load()

	// Connect to PostgreSQL
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Consumer] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := postgres.RunMigrations(db, "consumer"); err != nil {
		log.Fatalf("[Consumer] Failed to run migrations: %v", err)
	}

	// Ingestion pipeline over the shared stores
	pipeline := ingest.NewPipeline(store.NewEventStore(db), store.NewUserStore(db))

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, models.Topics())

	// Cancel on interrupt; the in-flight handler drains before Start returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("[Consumer] Consuming as group %s. Waiting for messages...", cfg.ConsumerGroup)
	if err := consumer.Start(ctx, pipeline.HandleMessage); err != nil {
		log.Fatalf("[Consumer] Consumer stopped with error: %v", err)
	}

	log.Println("[Consumer] Shut down gracefully")
}
