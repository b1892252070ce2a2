package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/pipeline"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
	"github.com/dharsanguruparan/schoolpost/internal/signing"
)

type fakePipeline struct {
	mu        sync.Mutex
	scrapeErr error
	week      *model.WeekArtifacts
	genWeek   *time.Time
	limit     int
}

func (f *fakePipeline) RunScrape(context.Context) (scraper.Result, error) {
	if f.scrapeErr != nil {
		return scraper.Result{}, f.scrapeErr
	}
	return scraper.Result{RunID: "r1", Success: true, DocumentsFound: 2, DocumentsProcessed: 2}, nil
}

func (f *fakePipeline) GenerateForGroup(_ context.Context, id string, week *time.Time) (*pipeline.Generated, error) {
	if id == "missing" {
		return nil, ports.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genWeek = week
	return &pipeline.Generated{ClassGroupID: id, WeekStart: "2026-10-19", Provider: "mock", Reminders: 5}, nil
}

func (f *fakePipeline) GenerateAll(context.Context, *time.Time) ([]pipeline.Generated, error) {
	return []pipeline.Generated{{ClassGroupID: "g1"}}, nil
}

func (f *fakePipeline) Week(context.Context, string, *time.Time) (*model.WeekArtifacts, error) {
	if f.week == nil {
		return nil, ports.ErrNotFound
	}
	return f.week, nil
}

func (f *fakePipeline) Runs(_ context.Context, limit int) ([]model.ScrapeRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return []model.ScrapeRun{}, nil
}

func (f *fakePipeline) Calendar() *schedule.Calculator { return schedule.Default(time.UTC) }

type fakeQueue struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, task.Type())
	return &asynq.TaskInfo{ID: "task-9"}, nil
}

func (f *fakeQueue) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.types...)
}

var friday = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

func newTestServer(svc Pipeline, q queue.Enqueuer, signer *signing.Signer) *httptest.Server {
	s := New(":0", svc, q, signer, nil)
	s.now = func() time.Time { return friday }
	return httptest.NewServer(s.Handler())
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakePipeline{}, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestScrapeInline(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakePipeline{}, nil, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scrape", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result scraper.Result
	decode(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.DocumentsProcessed)
}

func TestScrapeConflict(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakePipeline{scrapeErr: pipeline.ErrScrapeInProgress}, nil, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scrape", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestScrapeQueued(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	srv := newTestServer(&fakePipeline{}, q, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scrape", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "task-9", body["taskId"])
	assert.Equal(t, []string{queue.ScrapeTask}, q.seen())
}

func TestTriggersRequireSignature(t *testing.T) {
	t.Parallel()
	signer := signing.NewSigner([]byte("secret"))
	srv := newTestServer(&fakePipeline{}, nil, signer)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scrape", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/scrape", nil)
	require.NoError(t, err)
	signer.SignRequest(req, time.Minute)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/schedule")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads stay open")
	resp.Body.Close()
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()
	svc := &fakePipeline{}
	srv := newTestServer(svc, nil, nil)
	defer srv.Close()

	cases := []struct {
		body string
		want int
	}{
		{`{`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`{"classGroupId":"g1","weekStartDate":"19/10/2026"}`, http.StatusBadRequest},
		{`{"classGroupId":"missing"}`, http.StatusNotFound},
		{`{"classGroupId":"g1","weekStartDate":"2026-10-19"}`, http.StatusOK},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(tc.body))
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, tc.body)
		resp.Body.Close()
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.NotNil(t, svc.genWeek)
	assert.Equal(t, "2026-10-19", schedule.FormatDate(*svc.genWeek))
}

func TestGenerateQueued(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	srv := newTestServer(&fakePipeline{}, q, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"classGroupId":"g1"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/generate/all", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	assert.Equal(t, []string{queue.GenerateTask, queue.GenerateAllTask}, q.seen())
}

func TestRemindersAndOverview(t *testing.T) {
	t.Parallel()
	week := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	svc := &fakePipeline{week: &model.WeekArtifacts{
		ClassGroupID: "g1",
		WeekStart:    week,
		Reminders:    []model.Reminder{{Date: "2026-10-19", Title: "PE kit", Priority: model.PriorityHigh}},
		Overview:     &model.Overview{Summary: "Busy week"},
		Suggestions:  &model.Suggestions{Additions: []string{"Swimming"}},
	}}
	srv := newTestServer(svc, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reminders?classGroupId=g1&weekStartDate=2026-10-19")
	require.NoError(t, err)
	var rem struct {
		WeekStartDate string           `json:"weekStartDate"`
		Reminders     []model.Reminder `json:"reminders"`
	}
	decode(t, resp, &rem)
	assert.Equal(t, "2026-10-19", rem.WeekStartDate)
	require.Len(t, rem.Reminders, 1)
	assert.Equal(t, "PE kit", rem.Reminders[0].Title)

	resp, err = http.Get(srv.URL + "/overview?classGroupId=g1")
	require.NoError(t, err)
	var ov struct {
		Overview    model.Overview    `json:"weeklyOverview"`
		Suggestions model.Suggestions `json:"knowledgeSheetSuggestions"`
	}
	decode(t, resp, &ov)
	assert.Equal(t, "Busy week", ov.Overview.Summary)
	assert.Equal(t, []string{"Swimming"}, ov.Suggestions.Additions)

	resp, err = http.Get(srv.URL + "/reminders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRemindersEmptyWeek(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakePipeline{}, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reminders?classGroupId=g1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rem struct {
		WeekStartDate string           `json:"weekStartDate"`
		Reminders     []model.Reminder `json:"reminders"`
	}
	decode(t, resp, &rem)
	assert.Equal(t, "2026-10-19", rem.WeekStartDate)
	assert.Empty(t, rem.Reminders)

	resp, err = http.Get(srv.URL + "/overview?classGroupId=g1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakePipeline{}, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/schedule")
	require.NoError(t, err)
	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "2026-10-19", body["weekStartDate"])
	assert.Equal(t, "2026-10-19", body["displayDate"])
	assert.Equal(t, "Friday", body["publishDay"])
}

func TestRunsLimit(t *testing.T) {
	t.Parallel()
	svc := &fakePipeline{}
	srv := newTestServer(svc, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/scrape/runs?limit=500")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	svc.mu.Lock()
	assert.Equal(t, maxRunLimit, svc.limit)
	svc.mu.Unlock()

	resp, err = http.Get(srv.URL + "/scrape/runs?limit=zero")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
