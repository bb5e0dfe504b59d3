package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventpipeline/internal/api"
	"eventpipeline/internal/ingest"
	"eventpipeline/internal/store"
	"eventpipeline/pkg/config"
	"eventpipeline/pkg/kafka"
	"eventpipeline/pkg/postgres"
)

// @title           Event Pipeline API
// @version         1.0
// @description     Accepts domain events over HTTP, publishes them to Kafka for async ingestion, and exposes querying, statistics and retry of persisted events.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[API] Starting api-service...")

	cfg := config.Load()

	// Connect to PostgreSQL
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := postgres.RunMigrations(db, "api"); err != nil {
		log.Fatalf("[API] Failed to run migrations: %v", err)
	}

	// Connect the Kafka producer
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	if err := producer.Connect(); err != nil {
		log.Fatalf("[API] Failed to connect Kafka producer: %v", err)
	}
	defer producer.Close()

	// Stores, pipeline (shared by the retry trigger) and handlers
	events := store.NewEventStore(db)
	users := store.NewUserStore(db)
	retry := ingest.NewCoordinator(ingest.NewPipeline(events, users))

	eventHandler := api.NewEventHandler(events, producer, retry)
	userHandler := api.NewUserHandler(users, producer)
	router := api.NewRouter(eventHandler, userHandler)

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Listening on port %s", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[API] Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("[API] Server forced to shutdown: %v", err)
	}
	log.Println("[API] Server exited gracefully")
}
