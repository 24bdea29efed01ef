package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/queue"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/terms"
	"github.com/VishnuKaranth/Dubbing-Software/internal/worker"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Worker service...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")
	if err := database.Migrate(db.DB); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	minioClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO client", zap.Error(err))
	}
	storageService := storage.New(minioClient)

	logger.Info("Object storage initialized successfully")

	dict, err := terms.LoadDictionary(cfg.Terms.DictionaryPath)
	if err != nil {
		logger.Fatal("Failed to load term dictionary", zap.Error(err))
	}
	logger.Info("Term dictionary loaded", zap.Int("terms", dict.Len()))

	queueConn, err := queue.NewConnection(cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer queueConn.Close()

	logger.Info("RabbitMQ connected successfully")

	publisher := queue.NewPublisher(queueConn)

	w, err := worker.New(db, storageService, publisher, dict, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize worker", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.StartAllConsumers(ctx)

	logger.Info("All workers started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()

	// Give in-flight steps time to finish before the process exits.
	time.Sleep(5 * time.Second)
	logger.Info("Worker service exited")
}
