package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/actions"
	"github.com/trackwise/assistant/internal/config"
	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/logger"
	"github.com/trackwise/assistant/internal/queue"
	"github.com/trackwise/assistant/internal/services/retrieval"
	"github.com/trackwise/assistant/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	zapLogger.Info("connected_to_database")

	// The queue gives low-latency delivery; without it the sweep alone
	// still executes everything, just on the poll interval
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("rabbitmq_unavailable_running_sweep_only", zap.Error(err))
		} else {
			jobQueue = q
			defer func() { _ = q.Close() }()
			zapLogger.Info("connected_to_rabbitmq")
		}
	}

	backend := retrieval.NewHTTPClient(cfg.RetrievalURL, cfg.RetrievalTimeout, zapLogger)
	actionHandler := actions.NewHandler(
		backend,
		database.NewActionLogRepository(db),
		database.NewDeferredActionRepository(db),
		nil,
		zapLogger,
	)

	sweeper := workers.NewSweeper(
		actionHandler,
		database.NewDeferredActionRepository(db),
		jobQueue,
		cfg.SweepInterval,
		cfg.RabbitMQPrefetch,
		zapLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if purger, ok := jobQueue.(queue.DLQPurger); ok {
		gc := queue.NewGarbageCollector(purger, time.Hour, 24*time.Hour, zapLogger)
		go func() {
			if err := gc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zapLogger.Error("dlq_garbage_collector_stopped", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		zapLogger.Info("worker_shutting_down")
		cancel()
	}()

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zapLogger.Fatal("worker_stopped_with_error", zap.Error(err))
	}
	zapLogger.Info("worker_exited")
}
