// Package app wires configuration into the services shared by the server,
// the worker and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/config"
	"github.com/dharsanguruparan/schoolpost/internal/database"
	"github.com/dharsanguruparan/schoolpost/internal/generation"
	"github.com/dharsanguruparan/schoolpost/internal/ingest"
	"github.com/dharsanguruparan/schoolpost/internal/pipeline"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
	"github.com/dharsanguruparan/schoolpost/internal/repository"
	"github.com/dharsanguruparan/schoolpost/internal/s3storage"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
	"github.com/dharsanguruparan/schoolpost/internal/storage"
)

// App holds the constructed dependencies.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    ports.Store
	Recorder *ingest.Recorder
	Calendar *schedule.Calculator
	Pipeline *pipeline.Service

	pool *pgxpool.Pool
}

// New builds every dependency from cfg. Without a database URL the store is
// in memory, and without an S3 endpoint binaries stay inline.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	calendar, err := Calendar(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Calendar: calendar}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.pool = pool
		a.Store = repository.New(pool)
	} else {
		logger.Warn("no database configured, using in-memory store")
		a.Store = storage.NewMemoryStore()
	}

	recOpts := []ingest.Option{
		ingest.WithPerGroupSheets(cfg.Generation.PerGroupSheets),
		ingest.WithLogger(logger),
	}
	if cfg.S3.Endpoint != "" {
		blobs, err := s3storage.New(cfg.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		recOpts = append(recOpts, ingest.WithBlobStore(blobs))
	}
	a.Recorder = ingest.New(a.Store, recOpts...)

	orchestrator := generation.NewOrchestrator(
		generation.BuildProviders(ctx, credentials(cfg.Providers), &http.Client{}, logger),
		generation.WithTimeout(cfg.Providers.Timeout),
		generation.WithTextCache(a.Recorder),
		generation.WithLogger(logger),
	)
	logger.Info("generation providers", zap.Strings("order", orchestrator.Providers()))

	session := scraper.NewSession(
		scraper.NewRodLauncher(cfg.Scrape.BrowserBin, cfg.Scrape.Headless),
		a.Store, a.Recorder, calendar, scrapeOptions(cfg.Scrape), logger)

	a.Pipeline = pipeline.New(a.Store, a.Recorder, session, orchestrator, calendar, pipeline.Config{
		ScrapeURL:      cfg.Scrape.URL,
		ScrapePassword: cfg.Scrape.Password,
		Parallelism:    cfg.Generation.Parallelism,
	}, logger)
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// Calendar builds the schedule calculator from cfg.
func Calendar(cfg *config.Config) (*schedule.Calculator, error) {
	c, err := schedule.New(cfg.PublishDay(), cfg.Schedule.CutoffHour, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return c, nil
}

// RedisOpt returns the asynq connection settings.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func credentials(p config.ProviderConfig) generation.Credentials {
	return generation.Credentials{
		GeminiAPIKey:      p.GeminiAPIKey,
		GeminiModel:       p.GeminiModel,
		AnthropicAPIKey:   p.AnthropicAPIKey,
		AnthropicBaseURL:  p.AnthropicBaseURL,
		AnthropicModel:    p.AnthropicModel,
		KimiAPIKey:        p.KimiAPIKey,
		KimiBaseURL:       p.KimiBaseURL,
		KimiModel:         p.KimiModel,
		OpenRouterAPIKey:  p.OpenRouterAPIKey,
		OpenRouterBaseURL: p.OpenRouterBaseURL,
		OpenRouterModel:   p.OpenRouterModel,
	}
}

func scrapeOptions(c config.ScrapeConfig) scraper.Options {
	opts := scraper.DefaultOptions()
	opts.NavigationTimeout = c.NavigationTimeout
	opts.ConsentTimeout = c.ConsentTimeout
	opts.AuthTimeout = c.AuthTimeout
	opts.DownloadTimeout = c.DownloadTimeout
	opts.SettleDelay = c.SettleDelay
	opts.TabAttempts = c.TabAttempts
	opts.Suffixes = c.Suffixes
	return opts
}
