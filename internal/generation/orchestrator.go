// Package generation turns a week's mailings, timetable and knowledge sheet
// into reminders, an overview and knowledge sheet suggestions. Providers are
// tried in a fixed order and a deterministic mock closes the chain, so
// Generate always produces an artifact.
package generation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	pdfutil "github.com/dharsanguruparan/schoolpost/internal/pdf"
)

// DefaultProviderTimeout bounds a single provider attempt.
const DefaultProviderTimeout = 2 * time.Minute

// Document is a mailing attached to a generation request.
type Document struct {
	ID        string
	Filename  string
	MimeType  string
	SourceURL string
	Data      []byte
	// Text holds previously extracted text; empty means not yet extracted.
	Text string
}

// Input is everything one generation call needs. It is built per request and
// never stored.
type Input struct {
	ClassGroupID   string
	ClassGroupName string
	WeekStart      time.Time
	Documents      []Document
	Timetable      string
	KnowledgeSheet string
	PromptTemplate string
}

// Provider is one model backend. NativeDocuments reports whether the backend
// reads binary PDFs itself; text-only providers receive extracted text inline
// in the prompt.
type Provider interface {
	Name() string
	NativeDocuments() bool
	Generate(ctx context.Context, prompt string, docs []Document) (string, error)
}

// TextCache stores extracted text next to its document.
type TextCache interface {
	CacheExtractedText(ctx context.Context, documentID, text string) error
}

// Orchestrator runs the provider chain.
type Orchestrator struct {
	providers []Provider
	timeout   time.Duration
	cache     TextCache
	extract   func([]byte, *zap.Logger) string
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout sets the per-provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTextCache persists extracted text for reuse.
func WithTextCache(c TextCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithExtractor replaces the PDF text extractor.
func WithExtractor(fn func([]byte, *zap.Logger) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.extract = fn
		}
	}
}

// NewOrchestrator builds an orchestrator over providers in priority order.
// The mock is appended automatically.
func NewOrchestrator(providers []Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: providers,
		timeout:   DefaultProviderTimeout,
		extract:   pdfutil.Extract,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the names of the configured providers in order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers)+1)
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return append(names, MockName)
}

// Generate returns the first valid artifact in provider order, falling back
// to the mock. It never returns nil.
func (o *Orchestrator) Generate(ctx context.Context, in Input) *model.Artifact {
	var textDocs []Document
	for _, p := range o.providers {
		if ctx.Err() != nil {
			o.logger.Warn("generation cancelled, using mock", zap.Error(ctx.Err()))
			break
		}
		docs := in.Documents
		if !p.NativeDocuments() {
			if textDocs == nil {
				textDocs = o.withText(ctx, in.Documents)
			}
			docs = textDocs
		}
		artifact, err := o.attempt(ctx, p, in, docs)
		if err != nil {
			o.logger.Warn("provider failed",
				zap.String("provider", p.Name()),
				zap.String("class_group_id", in.ClassGroupID),
				zap.Error(err))
			continue
		}
		o.logger.Info("artifact generated",
			zap.String("provider", p.Name()),
			zap.String("class_group_id", in.ClassGroupID),
			zap.Int("reminders", len(artifact.Reminders)))
		return artifact
	}
	o.logger.Info("using mock generator", zap.String("class_group_id", in.ClassGroupID))
	return Mock(in)
}

func (o *Orchestrator) attempt(ctx context.Context, p Provider, in Input, docs []Document) (*model.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	prompt := BuildPrompt(in, docs, p.NativeDocuments())
	raw, err := p.Generate(ctx, prompt, docs)
	if err != nil {
		return nil, err
	}
	artifact, err := Validate(raw, in.KnowledgeSheet)
	if err != nil {
		return nil, err
	}
	artifact.Provider = p.Name()
	return artifact, nil
}

// withText fills in extracted text for documents that lack it, caching new
// results through the TextCache.
func (o *Orchestrator) withText(ctx context.Context, docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d
		if d.Text != "" || len(d.Data) == 0 {
			continue
		}
		text := o.extract(d.Data, o.logger)
		out[i].Text = text
		if text == "" || o.cache == nil || d.ID == "" {
			continue
		}
		if err := o.cache.CacheExtractedText(ctx, d.ID, text); err != nil {
			o.logger.Warn("cache extracted text", zap.String("document_id", d.ID), zap.Error(err))
		}
	}
	return out
}
