package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/schoolpost/internal/pipeline"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
)

type fakePipeline struct {
	scrape    scraper.Result
	scrapeErr error
	groupID   string
	week      *time.Time
	allCalls  int
}

func (f *fakePipeline) RunScrape(context.Context) (scraper.Result, error) {
	return f.scrape, f.scrapeErr
}

func (f *fakePipeline) GenerateForGroup(_ context.Context, id string, week *time.Time) (*pipeline.Generated, error) {
	f.groupID, f.week = id, week
	return &pipeline.Generated{ClassGroupID: id, WeekStart: "2026-10-19", Provider: "mock"}, nil
}

func (f *fakePipeline) GenerateAll(_ context.Context, week *time.Time) ([]pipeline.Generated, error) {
	f.allCalls++
	f.week = week
	return nil, nil
}

func (f *fakePipeline) Calendar() *schedule.Calculator { return schedule.Default(time.UTC) }

type fakeEnqueuer struct {
	types []string
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.types = append(f.types, task.Type())
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestScrapeSuccessChainsGenerateAll(t *testing.T) {
	svc := &fakePipeline{scrape: scraper.Result{RunID: "r1", Success: true}}
	client := &fakeEnqueuer{}
	p := NewProcessor(svc, client, nil)

	require.NoError(t, p.handleScrape(context.Background(), queue.NewScrapeTask()))
	assert.Equal(t, []string{queue.GenerateAllTask}, client.types)
}

func TestChainedGenerationKeepsScrapeWeek(t *testing.T) {
	// Scraped late on the publish day; the chained task may run after midnight.
	svc := &fakePipeline{scrape: scraper.Result{RunID: "r1", Success: true, WeekStart: "2026-10-19"}}
	client := &fakeEnqueuer{}
	p := NewProcessor(svc, client, nil)

	require.NoError(t, p.handleScrape(context.Background(), queue.NewScrapeTask()))
	require.Len(t, client.tasks, 1)
	payload, err := queue.DecodeGenerate(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", payload.WeekStart)

	require.NoError(t, p.handleGenerateAll(context.Background(), client.tasks[0]))
	require.NotNil(t, svc.week)
	assert.Equal(t, "2026-10-19", schedule.FormatDate(*svc.week))
}

func TestScrapeFailureSkipsRetry(t *testing.T) {
	svc := &fakePipeline{scrape: scraper.Result{RunID: "r1", Error: "navigate: timeout"}}
	client := &fakeEnqueuer{}
	p := NewProcessor(svc, client, nil)

	err := p.handleScrape(context.Background(), queue.NewScrapeTask())
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, client.types)
}

func TestScrapeInProgressIsNotAnError(t *testing.T) {
	svc := &fakePipeline{scrapeErr: pipeline.ErrScrapeInProgress}
	p := NewProcessor(svc, &fakeEnqueuer{}, nil)
	assert.NoError(t, p.handleScrape(context.Background(), queue.NewScrapeTask()))
}

func TestGenerateParsesWeek(t *testing.T) {
	svc := &fakePipeline{}
	p := NewProcessor(svc, &fakeEnqueuer{}, nil)
	task, err := queue.NewGenerateTask(queue.GeneratePayload{ClassGroupID: "g1", WeekStart: "2026-10-19"})
	require.NoError(t, err)

	require.NoError(t, p.handleGenerate(context.Background(), task))
	assert.Equal(t, "g1", svc.groupID)
	require.NotNil(t, svc.week)
	assert.Equal(t, "2026-10-19", schedule.FormatDate(*svc.week))
}

func TestGenerateRejectsBadPayload(t *testing.T) {
	p := NewProcessor(&fakePipeline{}, &fakeEnqueuer{}, nil)

	task, err := queue.NewGenerateTask(queue.GeneratePayload{WeekStart: "2026-10-19"})
	require.NoError(t, err)
	assert.ErrorIs(t, p.handleGenerate(context.Background(), task), asynq.SkipRetry)

	task, err = queue.NewGenerateTask(queue.GeneratePayload{ClassGroupID: "g1", WeekStart: "19/10/2026"})
	require.NoError(t, err)
	assert.ErrorIs(t, p.handleGenerate(context.Background(), task), asynq.SkipRetry)
}

func TestGenerateAllDefaultsToCurrentWeek(t *testing.T) {
	svc := &fakePipeline{}
	p := NewProcessor(svc, &fakeEnqueuer{}, nil)
	task, err := queue.NewGenerateAllTask("")
	require.NoError(t, err)

	require.NoError(t, p.handleGenerateAll(context.Background(), task))
	assert.Equal(t, 1, svc.allCalls)
	assert.Nil(t, svc.week)
}
