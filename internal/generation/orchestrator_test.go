package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

const validReply = `{
  "dailyReminders": [{"date": "2026-10-19", "title": "PE Kit Reminder", "description": "Bring kit", "priority": "HIGH", "category": "Uniform"}],
  "weeklyOverview": {"summary": "Sports week", "keyHighlights": ["Sports day"], "importantDates": [{"date": "2026-10-21", "event": "Sports day"}], "weeklyMailingSummary": {"mainTopics": [], "actionItems": [], "upcomingEvents": []}},
  "knowledgeSheetSuggestions": {"additions": ["PE on Monday"], "removals": []},
  "updatedKnowledgeSheet": "PE on Monday"
}`

type fakeProvider struct {
	name    string
	native  bool
	reply   string
	err     error
	block   bool
	mu      sync.Mutex
	calls   int
	prompts []string
	docs    [][]Document
}

func (f *fakeProvider) Name() string          { return f.name }
func (f *fakeProvider) NativeDocuments() bool { return f.native }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, docs []Document) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.docs = append(f.docs, docs)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type recordingCache struct {
	mu    sync.Mutex
	texts map[string]string
}

func (c *recordingCache) CacheExtractedText(_ context.Context, id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.texts == nil {
		c.texts = map[string]string{}
	}
	c.texts[id] = text
	return nil
}

func baseInput() Input {
	return Input{
		ClassGroupID:   "g1",
		ClassGroupName: "Year 3",
		WeekStart:      time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
		KnowledgeSheet: "Library on Thursday",
		Documents:      []Document{{ID: "d1", Filename: "mailing.pdf", Data: []byte("%PDF-fake")}},
	}
}

func TestAllProvidersFailFallsBackToMock(t *testing.T) {
	boom := errors.New("boom")
	providers := []Provider{
		&fakeProvider{name: "a", native: true, err: boom},
		&fakeProvider{name: "b", native: true, err: boom},
		&fakeProvider{name: "c", err: boom},
		&fakeProvider{name: "d", err: boom},
	}
	core, logs := observer.New(zap.WarnLevel)
	o := NewOrchestrator(providers, WithLogger(zap.New(core)), WithExtractor(func([]byte, *zap.Logger) string { return "text" }))

	artifact := o.Generate(context.Background(), baseInput())

	require.NotNil(t, artifact)
	assert.Equal(t, MockName, artifact.Provider)
	assert.Len(t, artifact.Reminders, 5)
	assert.NotEmpty(t, artifact.Overview.Summary)
	assert.Equal(t, "Library on Thursday", artifact.UpdatedKnowledgeSheet)
	assert.Equal(t, 4, logs.FilterMessage("provider failed").Len())
	for _, p := range providers {
		assert.Equal(t, 1, p.(*fakeProvider).calls, "no retries for %s", p.Name())
	}
}

func TestFirstValidProviderWins(t *testing.T) {
	first := &fakeProvider{name: "a", native: true, reply: "sorry, I cannot help"}
	second := &fakeProvider{name: "b", native: true, reply: "```json\n" + validReply + "\n```"}
	third := &fakeProvider{name: "c", reply: validReply}
	o := NewOrchestrator([]Provider{first, second, third})

	artifact := o.Generate(context.Background(), baseInput())

	assert.Equal(t, "b", artifact.Provider)
	assert.Equal(t, model.PriorityHigh, artifact.Reminders[0].Priority)
	assert.Equal(t, 0, third.calls)
}

func TestTextOnlyProvidersExtractOnceAndCache(t *testing.T) {
	extractions := 0
	extractor := func(data []byte, _ *zap.Logger) string {
		extractions++
		return "--- Page 1 ---\nSports day Wednesday"
	}
	cache := &recordingCache{}
	c := &fakeProvider{name: "c", err: errors.New("down")}
	d := &fakeProvider{name: "d", reply: validReply}
	o := NewOrchestrator([]Provider{c, d}, WithExtractor(extractor), WithTextCache(cache))

	artifact := o.Generate(context.Background(), baseInput())

	assert.Equal(t, "d", artifact.Provider)
	assert.Equal(t, 1, extractions)
	assert.Equal(t, "--- Page 1 ---\nSports day Wednesday", cache.texts["d1"])
	assert.Contains(t, d.prompts[0], "Sports day Wednesday")
	assert.NotContains(t, d.prompts[0], "I have attached")
}

func TestNativeProvidersSkipExtraction(t *testing.T) {
	extractions := 0
	extractor := func([]byte, *zap.Logger) string { extractions++; return "x" }
	a := &fakeProvider{name: "a", native: true, reply: validReply}
	o := NewOrchestrator([]Provider{a}, WithExtractor(extractor))

	o.Generate(context.Background(), baseInput())

	assert.Zero(t, extractions)
	assert.Contains(t, a.prompts[0], "I have attached 1 PDF document(s)")
	assert.Equal(t, []byte("%PDF-fake"), a.docs[0][0].Data)
}

func TestCachedTextIsReused(t *testing.T) {
	extractor := func([]byte, *zap.Logger) string {
		t.Fatal("extractor should not run when text is cached")
		return ""
	}
	in := baseInput()
	in.Documents[0].Text = "cached body"
	c := &fakeProvider{name: "c", reply: validReply}
	o := NewOrchestrator([]Provider{c}, WithExtractor(extractor))

	o.Generate(context.Background(), in)

	assert.Contains(t, c.prompts[0], "cached body")
}

func TestProviderTimeoutMovesOn(t *testing.T) {
	slow := &fakeProvider{name: "slow", native: true, block: true}
	fast := &fakeProvider{name: "fast", native: true, reply: validReply}
	o := NewOrchestrator([]Provider{slow, fast}, WithTimeout(20*time.Millisecond))

	artifact := o.Generate(context.Background(), baseInput())

	assert.Equal(t, "fast", artifact.Provider)
}

func TestZeroDocumentsStillValid(t *testing.T) {
	in := baseInput()
	in.Documents = nil
	c := &fakeProvider{name: "c", reply: validReply}
	o := NewOrchestrator([]Provider{c})

	artifact := o.Generate(context.Background(), in)

	require.NotNil(t, artifact)
	assert.Contains(t, c.prompts[0], "No mailings available for this week")
}

func TestNoProvidersUsesMock(t *testing.T) {
	artifact := NewOrchestrator(nil).Generate(context.Background(), baseInput())
	assert.Equal(t, MockName, artifact.Provider)
	assert.Equal(t, "2026-10-19", artifact.Reminders[0].Date)
	assert.Equal(t, "2026-10-23", artifact.Reminders[4].Date)
}

func TestCancelledContextUsesMock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &fakeProvider{name: "a", native: true, reply: validReply}

	artifact := NewOrchestrator([]Provider{a}).Generate(ctx, baseInput())

	assert.Equal(t, MockName, artifact.Provider)
	assert.Zero(t, a.calls)
}

func TestProvidersListsChainOrder(t *testing.T) {
	a := &fakeProvider{name: "gemini", native: true}
	b := &fakeProvider{name: "kimi"}
	assert.Equal(t, []string{"gemini", "kimi", MockName}, NewOrchestrator([]Provider{a, b}).Providers())
}

func TestMockIsDeterministic(t *testing.T) {
	in := baseInput()
	assert.Equal(t, Mock(in), Mock(in))
}

func TestBuildPromptSections(t *testing.T) {
	in := baseInput()
	in.PromptTemplate = "CUSTOM TEMPLATE"
	in.Timetable = `{"monday": ["PE"]}`
	prompt := BuildPrompt(in, nil, false)

	assert.True(t, strings.HasPrefix(prompt, "CUSTOM TEMPLATE\n\n---"))
	assert.Contains(t, prompt, "Week Starting: 2026-10-19")
	assert.Contains(t, prompt, "Class Group: Year 3")
	assert.Contains(t, prompt, `{"monday": ["PE"]}`)
	assert.Contains(t, prompt, "Library on Thursday")
	assert.Contains(t, prompt, "Return ONLY valid JSON.")
}

func TestBuildPromptDefaultTemplate(t *testing.T) {
	prompt := BuildPrompt(Input{WeekStart: time.Now()}, nil, true)
	assert.True(t, strings.HasPrefix(prompt, DefaultPromptTemplate))
	assert.Contains(t, prompt, "No timetable data available")
}
