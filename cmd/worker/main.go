package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/app"
	"github.com/dharsanguruparan/schoolpost/internal/config"
	"github.com/dharsanguruparan/schoolpost/internal/logging"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.RedisAddr == "" {
		logger.Fatal("SCHOOLPOST_REDIS_ADDR is required for the worker")
	}

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	defer deps.Close()

	redisOpt := app.RedisOpt(cfg)
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger.Sugar(),
	})
	processor := worker.NewProcessor(deps.Pipeline, client, logger)

	// The scheduler is the time-based trigger: one scrape every publish day.
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: cfg.Location(),
		Logger:   logger.Sugar(),
	})
	if cfg.Schedule.ScrapeCron != "" {
		id, err := queue.RegisterPeriodicScrape(scheduler, cfg.Schedule.ScrapeCron)
		if err != nil {
			logger.Fatal("register schedule", zap.Error(err))
		}
		logger.Info("periodic scrape registered",
			zap.String("entry_id", id),
			zap.String("cron", cfg.Schedule.ScrapeCron),
			zap.String("timezone", cfg.Schedule.Timezone))
	}

	if err := scheduler.Start(); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}
	if err := server.Start(processor.Handler()); err != nil {
		scheduler.Shutdown()
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	scheduler.Shutdown()
	server.Shutdown()
}
