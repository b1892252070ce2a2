// Package main is the entry point for the schoolpost HTTP API. In Go every
// executable program must define package main and a main() function, while
// libraries use other package names.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/api"
	"github.com/dharsanguruparan/schoolpost/internal/app"
	"github.com/dharsanguruparan/schoolpost/internal/config"
	"github.com/dharsanguruparan/schoolpost/internal/logging"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/signing"
)

func main() {
	// Step 1: load configuration (Go prefers returning values + errors rather
	// than throwing exceptions).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Step 2: create a context that cancels when SIGINT/SIGTERM arrive.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Step 3: construct dependencies.
	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init app", zap.Error(err))
	}
	defer deps.Close()

	var enqueuer queue.Enqueuer
	if cfg.RedisAddr != "" {
		client := asynq.NewClient(app.RedisOpt(cfg))
		defer client.Close()
		enqueuer = client
	} else {
		logger.Info("no redis configured, triggers run inline")
	}

	srv := api.New(cfg.Address, deps.Pipeline, enqueuer, signing.NewSigner(cfg.TriggerSecret), logger)

	// Step 4: block until the HTTP server exits.
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
