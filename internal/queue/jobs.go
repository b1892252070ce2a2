// Package queue defines the asynq tasks that carry scrape and generation
// triggers from the API, the CLI and the scheduler to the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ScrapeTask runs one portal acquisition.
	ScrapeTask = "scrape:run"
	// GenerateTask regenerates one class group's week.
	GenerateTask = "reminders:generate"
	// GenerateAllTask regenerates every class group's week. A successful
	// scrape enqueues it.
	GenerateAllTask = "reminders:generate-all"
)

// scrapeUniqueFor keeps a second scrape out of the queue while one is
// pending or running.
const scrapeUniqueFor = 30 * time.Minute

// ErrAlreadyQueued is returned when an identical unique task is pending.
var ErrAlreadyQueued = errors.New("task already queued")

// Enqueuer is the part of *asynq.Client the helpers need.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GeneratePayload is serialized into generate tasks. An empty WeekStart means
// the week current when the worker picks the task up.
type GeneratePayload struct {
	ClassGroupID string `json:"class_group_id,omitempty"`
	WeekStart    string `json:"week_start_date,omitempty"`
}

// NewScrapeTask builds a scrape task. Scrapes are never retried; a failed run
// waits for the next trigger.
func NewScrapeTask() *asynq.Task {
	return asynq.NewTask(ScrapeTask, nil,
		asynq.MaxRetry(0),
		asynq.Unique(scrapeUniqueFor),
		asynq.Timeout(15*time.Minute))
}

// NewGenerateTask builds a generate task for one class group.
func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(GenerateTask, data, asynq.MaxRetry(2), asynq.Timeout(10*time.Minute)), nil
}

// NewGenerateAllTask builds a task regenerating every class group.
func NewGenerateAllTask(weekStart string) (*asynq.Task, error) {
	data, err := json.Marshal(GeneratePayload{WeekStart: weekStart})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(GenerateAllTask, data, asynq.MaxRetry(2), asynq.Timeout(30*time.Minute)), nil
}

// EnqueueScrape enqueues a scrape and returns the task ID.
func EnqueueScrape(ctx context.Context, client Enqueuer) (string, error) {
	return enqueue(ctx, client, NewScrapeTask())
}

// EnqueueGenerate enqueues generation for one class group.
func EnqueueGenerate(ctx context.Context, client Enqueuer, payload GeneratePayload) (string, error) {
	task, err := NewGenerateTask(payload)
	if err != nil {
		return "", err
	}
	return enqueue(ctx, client, task)
}

// EnqueueGenerateAll enqueues generation for every class group.
func EnqueueGenerateAll(ctx context.Context, client Enqueuer, weekStart string) (string, error) {
	task, err := NewGenerateAllTask(weekStart)
	if err != nil {
		return "", err
	}
	return enqueue(ctx, client, task)
}

// DecodeGenerate reads a generate payload. Empty payloads decode to the zero
// value.
func DecodeGenerate(task *asynq.Task) (GeneratePayload, error) {
	var payload GeneratePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// RegisterPeriodicScrape schedules a scrape on the cron spec, evaluated in
// the scheduler's location.
func RegisterPeriodicScrape(scheduler *asynq.Scheduler, cronspec string) (string, error) {
	id, err := scheduler.Register(cronspec, NewScrapeTask())
	if err != nil {
		return "", fmt.Errorf("register periodic scrape %q: %w", cronspec, err)
	}
	return id, nil
}

func enqueue(ctx context.Context, client Enqueuer, task *asynq.Task) (string, error) {
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", fmt.Errorf("enqueue %s: %w", task.Type(), ErrAlreadyQueued)
		}
		return "", fmt.Errorf("enqueue %s task: %w", task.Type(), err)
	}
	return info.ID, nil
}
