// Package ports declares the storage boundaries the pipeline depends on. The
// Postgres repository and the in-memory store both satisfy them.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

// ErrNotFound is returned by every store lookup that matches nothing.
var ErrNotFound = errors.New("not found")

// DocumentStore persists harvested and uploaded documents.
type DocumentStore interface {
	// SaveDocumentVersion deactivates every active document matching
	// identity, then inserts doc as the next version. Both happen atomically.
	SaveDocumentVersion(ctx context.Context, doc *model.Document, identity model.DocumentFilter) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error)
	SetExtractedText(ctx context.Context, id, text string) error
}

// RunStore persists scrape run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.ScrapeRun) error
	UpdateRun(ctx context.Context, run *model.ScrapeRun) error
	GetRun(ctx context.Context, id string) (*model.ScrapeRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error)
}

// ArtifactStore persists generated reminders, overviews and suggestions.
type ArtifactStore interface {
	// ReplaceWeek removes everything stored for (classGroupID, weekStart) and
	// writes the artifact in its place as one unit.
	ReplaceWeek(ctx context.Context, classGroupID string, weekStart time.Time, artifact *model.Artifact) error
	GetWeek(ctx context.Context, classGroupID string, weekStart time.Time) (*model.WeekArtifacts, error)
}

// SettingsStore is a small key/value table for operator-editable settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// GroupStore persists class groups.
type GroupStore interface {
	SaveClassGroup(ctx context.Context, group *model.ClassGroup) error
	GetClassGroup(ctx context.Context, id string) (*model.ClassGroup, error)
	ListClassGroups(ctx context.Context) ([]model.ClassGroup, error)
}

// Store bundles every relational boundary.
type Store interface {
	DocumentStore
	RunStore
	ArtifactStore
	SettingsStore
	GroupStore
}

// BlobStore keeps document binaries outside the relational store.
type BlobStore interface {
	Put(ctx context.Context, data []byte, name, mimeType string) (key, url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
