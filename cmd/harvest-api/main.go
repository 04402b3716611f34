package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/basket-harvester/internal/api"
	"github.com/maltedev/basket-harvester/internal/config"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/jobs"
	"github.com/maltedev/basket-harvester/internal/queue"
	"github.com/maltedev/basket-harvester/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		db    *database.DB
		runs  api.RunStore
		relay api.OutboxStatus
	)

	if cfg.Database.Enabled {
		db, err = database.New(ctx, cfg.DatabaseConfig())
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			log.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		runs = database.NewHarvestRepository(db)
	}

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		r := database.NewRelay(db, redisClient, log, cfg.RelayConfig())
		go func() {
			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()
		relay = r
	}

	taskQueue := queue.NewInMemoryQueue()
	runner := jobs.NewHarvestRunner(cfg.ScraperOptions(), cfg.Harvest.OutputDir, db, log)
	jobManager := jobs.NewManager(taskQueue, runner, log)

	workerDone := make(chan struct{})
	go func() {
		jobManager.StartWorker(ctx)
		close(workerDone)
	}()

	handlers := api.NewHandlers(jobManager, runs, relay, log)
	router := api.NewRouter(handlers, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}

		taskQueue.Close()
		cancel()
	}()

	log.Info("server starting", "addr", server.Addr, "db", cfg.Database.Enabled, "redis", cfg.Redis.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-workerDone
	log.Info("server stopped")
}
