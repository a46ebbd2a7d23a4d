package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filmclub/cinema-service/internal/cleanup"
	"github.com/filmclub/cinema-service/internal/config"
	"github.com/filmclub/cinema-service/internal/services/cloudinary"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/storage/file"
	"github.com/filmclub/cinema-service/internal/storage/postgres"
)

func main() {
	// Load config
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Initialize the snapshot store
	var backend storage.Backend
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := postgres.New(cfg.Store.Postgres)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer pg.Close()
		backend = pg
		logger.Info("Connected to Postgres snapshot store")
	default:
		backend = file.New(cfg.Store.FilePath)
		logger.Info("Using file snapshot store", "path", cfg.Store.FilePath)
	}

	store, err := storage.Open(backend)
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}

	cloud := cloudinary.New(cfg.Cloudinary)
	engine := cleanup.NewEngine(store, cloud, logger)

	interval := time.Duration(cfg.Cleanup.IntervalSeconds) * time.Second

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	logger.Info("Cleanup worker started", "interval", interval.String())

	// Run sweeps until cancelled
	engine.Run(ctx, interval)

	logger.Info("Cleanup worker stopped")
}
