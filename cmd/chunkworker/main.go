package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agscout/trapsync/internal/database"
	"github.com/agscout/trapsync/internal/queue"
	"github.com/agscout/trapsync/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Chunk Worker Service...")
	db, err := database.ConnectDest(cfg.DestDB.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to destination database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to destination database")

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTasks, cfg.Kafka.GroupID)
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	taskWriter := queue.NewTaskWriter(consumer, db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	taskWriter.Start(ctx)
	fmt.Println("Task writer started")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := consumer.Stats()
			fmt.Printf("Consumer stats: Messages=%d, Bytes=%d, Errors=%d\n",
				stats.Messages, stats.Bytes, stats.Errors)
		}
	}()

	fmt.Println("\n✓ Chunk Worker Service is running")
	fmt.Printf("✓ Consuming chunk tasks from %s and applying inserts\n", cfg.Kafka.TopicTasks)
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for tasks...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	cancel()
	taskWriter.Stop()
	fmt.Println("Chunk Worker Service stopped")
}
