// Package worker holds the asynq handlers that execute queued triggers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/logging"
	"github.com/dharsanguruparan/schoolpost/internal/pipeline"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
)

// Pipeline is the subset of *pipeline.Service the handlers drive.
type Pipeline interface {
	RunScrape(ctx context.Context) (scraper.Result, error)
	GenerateForGroup(ctx context.Context, classGroupID string, week *time.Time) (*pipeline.Generated, error)
	GenerateAll(ctx context.Context, week *time.Time) ([]pipeline.Generated, error)
	Calendar() *schedule.Calculator
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	svc    Pipeline
	client queue.Enqueuer
	logger *zap.Logger
}

// NewProcessor constructs a worker processor. client is used to chain
// generation after a successful scrape.
func NewProcessor(svc Pipeline, client queue.Enqueuer, logger *zap.Logger) *Processor {
	return &Processor{svc: svc, client: client, logger: logging.OrNop(logger)}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ScrapeTask, p.handleScrape)
	mux.HandleFunc(queue.GenerateTask, p.handleGenerate)
	mux.HandleFunc(queue.GenerateAllTask, p.handleGenerateAll)
	return mux
}

func (p *Processor) handleScrape(ctx context.Context, _ *asynq.Task) error {
	result, err := p.svc.RunScrape(ctx)
	if errors.Is(err, pipeline.ErrScrapeInProgress) {
		p.logger.Info("scrape skipped, another run is active")
		return nil
	}
	if err != nil {
		return err
	}
	if !result.Success {
		// The run record already holds the failure.
		return fmt.Errorf("scrape run %s failed: %s: %w", result.RunID, result.Error, asynq.SkipRetry)
	}
	// Mailings are stored under the week of the scrape, not of whenever the
	// chained task happens to run.
	if _, err := queue.EnqueueGenerateAll(ctx, p.client, result.WeekStart); err != nil {
		return fmt.Errorf("chain generation: %w", err)
	}
	return nil
}

func (p *Processor) handleGenerate(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeGenerate(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if payload.ClassGroupID == "" {
		return fmt.Errorf("generate: class group id required: %w", asynq.SkipRetry)
	}
	week, err := p.week(payload.WeekStart)
	if err != nil {
		return err
	}
	res, err := p.svc.GenerateForGroup(ctx, payload.ClassGroupID, week)
	if err != nil {
		return fmt.Errorf("generate for %s: %w", payload.ClassGroupID, err)
	}
	p.logger.Info("generation task done",
		zap.String("class_group_id", res.ClassGroupID),
		zap.String("week", res.WeekStart),
		zap.String("provider", res.Provider))
	return nil
}

func (p *Processor) handleGenerateAll(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeGenerate(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	week, err := p.week(payload.WeekStart)
	if err != nil {
		return err
	}
	out, err := p.svc.GenerateAll(ctx, week)
	p.logger.Info("generate-all task done", zap.Int("groups", len(out)), zap.Error(err))
	return err
}

func (p *Processor) week(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	w, err := p.svc.Calendar().ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return &w, nil
}
