// Package storage contains the in-memory persistence layer used in dev mode
// and tests. Go keeps each package in its own folder; files in the folder
// share a namespace.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
)

var _ ports.Store = (*MemoryStore)(nil)

type weekKey struct {
	group string
	week  string
}

func keyFor(group string, week time.Time) weekKey {
	return weekKey{group: group, week: week.Format("2006-01-02")}
}

// MemoryStore implements ports.Store with maps guarded by an RWMutex. RWMutex
// lets us differentiate read locks (multiple concurrent readers) from write
// locks (single writer).
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*model.Document
	docOrder []string
	runs     map[string]*model.ScrapeRun
	runOrder []string
	weeks    map[weekKey]*model.WeekArtifacts
	settings map[string]string
	groups   map[string]*model.ClassGroup
	now      func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*model.Document),
		runs:     make(map[string]*model.ScrapeRun),
		weeks:    make(map[weekKey]*model.WeekArtifacts),
		settings: make(map[string]string),
		groups:   make(map[string]*model.ClassGroup),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SaveDocumentVersion deactivates the active versions matching identity and
// stores doc as the next version.
func (m *MemoryStore) SaveDocumentVersion(_ context.Context, doc *model.Document, identity model.DocumentFilter) error {
	m.mu.Lock()
	// defer schedules code to run when the function returns, guaranteeing the
	// mutex unlock even if the function exits early.
	defer m.mu.Unlock()

	now := m.now()
	latest := 0
	for _, existing := range m.docs {
		probe := identity
		probe.ActiveOnly = false
		if !probe.Matches(existing) {
			continue
		}
		if existing.Version > latest {
			latest = existing.Version
		}
		if existing.Active {
			existing.Active = false
			existing.UpdatedAt = now
		}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Version = latest + 1
	doc.Active = true
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	stored := *doc
	stored.Content = append([]byte(nil), doc.Content...)
	m.docs[doc.ID] = &stored
	m.docOrder = append(m.docOrder, doc.ID)
	return nil
}

// GetDocument returns a copy of the stored document.
func (m *MemoryStore) GetDocument(_ context.Context, id string) (*model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Maps in Go return (value, bool) when looked up; bool indicates presence.
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ports.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

// ListDocuments returns matching documents in insertion order.
func (m *MemoryStore) ListDocuments(_ context.Context, filter model.DocumentFilter) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Document, 0)
	for _, id := range m.docOrder {
		doc := m.docs[id]
		if filter.Matches(doc) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

// SetExtractedText caches extracted text on a document.
func (m *MemoryStore) SetExtractedText(_ context.Context, id, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, ports.ErrNotFound)
	}
	doc.ExtractedText = text
	doc.UpdatedAt = m.now()
	return nil
}

// CreateRun stores a new run and assigns its ID.
func (m *MemoryStore) CreateRun(_ context.Context, run *model.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	m.runs[run.ID] = cloneRun(run)
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

// UpdateRun overwrites a stored run.
func (m *MemoryStore) UpdateRun(_ context.Context, run *model.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return fmt.Errorf("scrape run %s: %w", run.ID, ports.ErrNotFound)
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of a run.
func (m *MemoryStore) GetRun(_ context.Context, id string) (*model.ScrapeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("scrape run %s: %w", id, ports.ErrNotFound)
	}
	return cloneRun(run), nil
}

// ListRuns returns the newest runs first.
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.ScrapeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ScrapeRun, 0, len(m.runOrder))
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, *cloneRun(m.runs[m.runOrder[i]]))
	}
	return out, nil
}

// ReplaceWeek swaps the artifact set of a (group, week) pair under a single
// write lock, so readers see either the old set or the new one.
func (m *MemoryStore) ReplaceWeek(_ context.Context, classGroupID string, weekStart time.Time, artifact *model.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := &model.WeekArtifacts{
		ClassGroupID: classGroupID,
		WeekStart:    weekStart,
		Reminders:    make([]model.Reminder, 0, len(artifact.Reminders)),
	}
	for _, r := range artifact.Reminders {
		r.ID = uuid.NewString()
		r.ClassGroupID = classGroupID
		r.WeekStart = weekStart
		set.Reminders = append(set.Reminders, r)
	}
	if artifact.Overview != nil {
		set.Overview = cloneOverview(artifact.Overview)
		set.Overview.ID = uuid.NewString()
	}
	set.Suggestions = cloneSuggestions(artifact.Suggestions)
	m.weeks[keyFor(classGroupID, weekStart)] = set
	return nil
}

// GetWeek returns the stored artifact set.
func (m *MemoryStore) GetWeek(_ context.Context, classGroupID string, weekStart time.Time) (*model.WeekArtifacts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.weeks[keyFor(classGroupID, weekStart)]
	if !ok {
		return nil, fmt.Errorf("artifacts for %s: %w", classGroupID, ports.ErrNotFound)
	}
	cp := *set
	cp.Reminders = append([]model.Reminder(nil), set.Reminders...)
	cp.Overview = cloneOverview(set.Overview)
	cp.Suggestions = cloneSuggestions(set.Suggestions)
	return &cp, nil
}

// GetSetting returns a setting value.
func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return "", fmt.Errorf("setting %s: %w", key, ports.ErrNotFound)
	}
	return v, nil
}

// PutSetting upserts a setting.
func (m *MemoryStore) PutSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// SaveClassGroup upserts a class group.
func (m *MemoryStore) SaveClassGroup(_ context.Context, group *model.ClassGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = m.now()
	}
	cp := *group
	m.groups[group.ID] = &cp
	return nil
}

// GetClassGroup returns a class group.
func (m *MemoryStore) GetClassGroup(_ context.Context, id string) (*model.ClassGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("class group %s: %w", id, ports.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

// ListClassGroups returns groups ordered by display order then name.
func (m *MemoryStore) ListClassGroups(_ context.Context) ([]model.ClassGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ClassGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func cloneRun(run *model.ScrapeRun) *model.ScrapeRun {
	cp := *run
	cp.Steps = append([]model.RunStep(nil), run.Steps...)
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func cloneOverview(ov *model.Overview) *model.Overview {
	if ov == nil {
		return nil
	}
	cp := *ov
	cp.KeyHighlights = cloneStrings(ov.KeyHighlights)
	if ov.ImportantDates != nil {
		cp.ImportantDates = append([]model.ImportantDate{}, ov.ImportantDates...)
	}
	cp.MailingSummary = model.MailingSummary{
		MainTopics:     cloneStrings(ov.MailingSummary.MainTopics),
		ActionItems:    cloneStrings(ov.MailingSummary.ActionItems),
		UpcomingEvents: cloneStrings(ov.MailingSummary.UpcomingEvents),
	}
	return &cp
}

func cloneSuggestions(sg *model.Suggestions) *model.Suggestions {
	if sg == nil {
		return nil
	}
	return &model.Suggestions{
		Additions: cloneStrings(sg.Additions),
		Removals:  cloneStrings(sg.Removals),
	}
}

// cloneStrings keeps nil as nil and empty as empty.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}
