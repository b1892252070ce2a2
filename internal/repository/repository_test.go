package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/schoolpost/internal/database"
	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
)

// newTestRepository connects to SCHOOLPOST_TEST_DATABASE_URL or skips.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("SCHOOLPOST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SCHOOLPOST_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.EnsureSchema(ctx, pool))
	return New(pool)
}

func TestRepository_SupersedesMailingVersions(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	week := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	name := "mailing-" + uuid.NewString()[:8] + ".pdf"

	first := &model.Document{Type: model.DocumentWeeklyMailing, WeekStart: &week, Filename: name, MimeType: "application/pdf", Content: []byte("v1")}
	require.NoError(t, repo.SaveDocumentVersion(ctx, first, first.Identity()))
	second := &model.Document{Type: model.DocumentWeeklyMailing, WeekStart: &week, Filename: name, MimeType: "application/pdf", Content: []byte("v2")}
	require.NoError(t, repo.SaveDocumentVersion(ctx, second, second.Identity()))

	assert.Equal(t, 2, second.Version)
	active, err := repo.ListDocuments(ctx, second.Identity())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, []byte("v2"), active[0].Content)

	old, err := repo.GetDocument(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	require.NoError(t, repo.SetExtractedText(ctx, second.ID, "hello"))
	got, err := repo.GetDocument(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.ExtractedText)
}

func TestRepository_ReplaceWeekIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	group := &model.ClassGroup{Name: "Year 3 " + uuid.NewString()[:6]}
	require.NoError(t, repo.SaveClassGroup(ctx, group))
	week := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	artifact := &model.Artifact{
		Reminders: []model.Reminder{
			{Date: "2026-10-19", Title: "PE kit", Priority: model.PriorityHigh, Category: "kit"},
			{Date: "2026-10-20", Title: "Library", Priority: model.PriorityLow, Category: "reading"},
		},
		Overview:    &model.Overview{Summary: "Busy week", KeyHighlights: []string{"Trip"}},
		Suggestions: &model.Suggestions{Additions: []string{"Swimming on Tuesdays"}},
	}
	require.NoError(t, repo.ReplaceWeek(ctx, group.ID, week, artifact))
	require.NoError(t, repo.ReplaceWeek(ctx, group.ID, week, artifact))

	set, err := repo.GetWeek(ctx, group.ID, week)
	require.NoError(t, err)
	assert.Len(t, set.Reminders, 2)
	require.NotNil(t, set.Overview)
	assert.Equal(t, "Busy week", set.Overview.Summary)
	require.NotNil(t, set.Suggestions)
	assert.Equal(t, []string{"Swimming on Tuesdays"}, set.Suggestions.Additions)

	_, err = repo.GetWeek(ctx, group.ID, week.AddDate(0, 0, 7))
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_ReplaceWeekRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	group := &model.ClassGroup{Name: "Year 4 " + uuid.NewString()[:6]}
	require.NoError(t, repo.SaveClassGroup(ctx, group))
	week := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	artifact := &model.Artifact{
		Reminders: []model.Reminder{
			{Date: "2026-10-20", Title: "Library", Priority: model.PriorityLow, Category: "reading"},
			{Date: "2026-10-19", Title: "PE kit", Description: "Outdoor kit", Priority: model.PriorityHigh, Category: "kit"},
			{Date: "2026-10-19", Title: "Reading log", Priority: model.PriorityMedium, Category: "reading"},
			{Date: "2026-10-19", Title: "Bake sale", Priority: model.PriorityLow, Category: "event"},
		},
		Overview: &model.Overview{
			Summary:        "Busy week",
			ImportantDates: []model.ImportantDate{{Date: "2026-10-22", Event: "Harvest festival"}},
			MailingSummary: model.MailingSummary{MainTopics: []string{"Harvest"}, ActionItems: []string{}},
		},
		Suggestions: &model.Suggestions{Additions: []string{"Swimming on Tuesdays"}},
	}
	require.NoError(t, repo.ReplaceWeek(ctx, group.ID, week, artifact))

	set, err := repo.GetWeek(ctx, group.ID, week)
	require.NoError(t, err)
	reminders := make([]model.Reminder, len(set.Reminders))
	for i, r := range set.Reminders {
		r.ID, r.ClassGroupID, r.WeekStart = "", "", time.Time{}
		reminders[i] = r
	}
	assert.Equal(t, artifact.Reminders, reminders)
	require.NotNil(t, set.Overview)
	ov := *set.Overview
	ov.ID = ""
	assert.Equal(t, *artifact.Overview, ov)
	assert.Equal(t, artifact.Suggestions, set.Suggestions)
}

func TestRepository_RunsAndSettings(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	run := model.NewScrapeRun(time.Now().UTC())
	require.NoError(t, repo.CreateRun(ctx, run))
	run.Log(time.Now().UTC(), 1, "Navigating to portal")
	run.DocumentsFound = 3
	require.NoError(t, run.Complete(time.Now().UTC()))
	require.NoError(t, repo.UpdateRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.Equal(t, 3, got.DocumentsFound)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, 1, got.Steps[0].Step)

	key := "test:" + uuid.NewString()
	_, err = repo.GetSetting(ctx, key)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	require.NoError(t, repo.PutSetting(ctx, key, "a"))
	require.NoError(t, repo.PutSetting(ctx, key, "b"))
	value, err := repo.GetSetting(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "b", value)
}
