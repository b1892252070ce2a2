// Package ingest writes harvested documents and generated artifacts to the
// stores.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
)

const defaultMimeType = "application/pdf"

// Recorder persists documents and artifacts. Blobs may be nil, in which case
// document binaries stay inline on the document row.
type Recorder struct {
	store          ports.Store
	blobs          ports.BlobStore
	perGroupSheets bool
	logger         *zap.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithBlobStore moves document binaries into blobs.
func WithBlobStore(blobs ports.BlobStore) Option {
	return func(r *Recorder) { r.blobs = blobs }
}

// WithPerGroupSheets keeps one knowledge sheet per class group instead of a
// single school-wide sheet.
func WithPerGroupSheets(enabled bool) Option {
	return func(r *Recorder) { r.perGroupSheets = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New builds a Recorder over store.
func New(store ports.Store, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PersistDocument stores the binary and records doc as the newest active
// version of its identity.
func (r *Recorder) PersistDocument(ctx context.Context, doc *model.Document) error {
	if !doc.Type.Valid() {
		return fmt.Errorf("persist document: unknown type %q", doc.Type)
	}
	if doc.MimeType == "" {
		doc.MimeType = defaultMimeType
	}
	if doc.Size == 0 {
		doc.Size = int64(len(doc.Content))
	}
	if r.blobs != nil && len(doc.Content) > 0 {
		key, url, err := r.blobs.Put(ctx, doc.Content, doc.Filename, doc.MimeType)
		if err != nil {
			return fmt.Errorf("upload %s: %w", doc.Filename, err)
		}
		doc.BlobKey, doc.BlobURL = key, url
		doc.Content = nil
	}
	if err := r.store.SaveDocumentVersion(ctx, doc, doc.Identity()); err != nil {
		if doc.BlobKey != "" {
			if derr := r.blobs.Delete(ctx, doc.BlobKey); derr != nil {
				r.logger.Warn("orphaned blob", zap.String("key", doc.BlobKey), zap.Error(derr))
			}
		}
		return fmt.Errorf("save document %s: %w", doc.Filename, err)
	}
	r.logger.Info("document persisted",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("version", doc.Version))
	return nil
}

// Content returns the document binary from wherever it is kept.
func (r *Recorder) Content(ctx context.Context, doc *model.Document) ([]byte, error) {
	if len(doc.Content) > 0 {
		return doc.Content, nil
	}
	if doc.BlobKey == "" || r.blobs == nil {
		return nil, fmt.Errorf("document %s has no stored content", doc.ID)
	}
	data, err := r.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", doc.BlobKey, err)
	}
	return data, nil
}

// CacheExtractedText stores text extracted from a document so later
// generations skip extraction.
func (r *Recorder) CacheExtractedText(ctx context.Context, documentID, text string) error {
	if err := r.store.SetExtractedText(ctx, documentID, text); err != nil {
		return fmt.Errorf("cache extracted text: %w", err)
	}
	return nil
}

// ReplaceArtifacts swaps the stored artifact set for (classGroupID, weekStart)
// and overwrites the knowledge sheet when the artifact carries one. Calling it
// twice with the same artifact leaves a single set.
func (r *Recorder) ReplaceArtifacts(ctx context.Context, classGroupID string, weekStart time.Time, artifact *model.Artifact) error {
	if artifact == nil {
		return errors.New("replace artifacts: nil artifact")
	}
	if err := r.store.ReplaceWeek(ctx, classGroupID, weekStart, artifact); err != nil {
		return fmt.Errorf("replace artifacts: %w", err)
	}
	if artifact.UpdatedKnowledgeSheet != "" {
		if err := r.store.PutSetting(ctx, r.SheetKey(classGroupID), artifact.UpdatedKnowledgeSheet); err != nil {
			return fmt.Errorf("save knowledge sheet: %w", err)
		}
	}
	return nil
}

// SheetKey is the settings key holding the knowledge sheet used for
// classGroupID.
func (r *Recorder) SheetKey(classGroupID string) string {
	if r.perGroupSheets {
		return model.KnowledgeSheetKey(classGroupID)
	}
	return model.KnowledgeSheetKey("")
}
