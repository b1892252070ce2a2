// Package pipeline exposes the two inbound triggers, scraping the portal and
// generating a class group's week, over the scraper, generation and ingest
// packages. Every transport (HTTP, queue, CLI) goes through a Service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/schoolpost/internal/generation"
	"github.com/dharsanguruparan/schoolpost/internal/ingest"
	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
)

// ErrScrapeInProgress is returned when a scrape is requested while another
// one is still running in this process.
var ErrScrapeInProgress = errors.New("scrape already in progress")

// Scraper runs one acquisition.
type Scraper interface {
	Run(ctx context.Context, creds scraper.Credentials) scraper.Result
}

// Generator produces an artifact for one input. It never fails.
type Generator interface {
	Generate(ctx context.Context, in generation.Input) *model.Artifact
}

// Config carries the fallbacks used when the settings table is empty.
type Config struct {
	ScrapeURL      string
	ScrapePassword string
	Parallelism    int
}

// Generated summarises one GenerateForGroup call.
type Generated struct {
	ClassGroupID string          `json:"classGroupId"`
	WeekStart    string          `json:"weekStartDate"`
	Provider     string          `json:"provider"`
	Reminders    int             `json:"reminders"`
	Documents    int             `json:"documents"`
	Artifact     *model.Artifact `json:"artifact,omitempty"`
}

// Service is the trigger façade.
type Service struct {
	store    ports.Store
	recorder *ingest.Recorder
	scraper  Scraper
	gen      Generator
	calendar *schedule.Calculator
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	scrapeMu sync.Mutex
}

// New wires a Service.
func New(store ports.Store, recorder *ingest.Recorder, scr Scraper, gen Generator, calendar *schedule.Calculator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Service{
		store:    store,
		recorder: recorder,
		scraper:  scr,
		gen:      gen,
		calendar: calendar,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Calendar returns the schedule calculator the service uses.
func (s *Service) Calendar() *schedule.Calculator {
	return s.calendar
}

// RunScrape runs one acquisition with the stored portal credentials. Only one
// scrape runs at a time; an overlapping call gets ErrScrapeInProgress and no
// run record is created for it.
func (s *Service) RunScrape(ctx context.Context) (scraper.Result, error) {
	if !s.scrapeMu.TryLock() {
		return scraper.Result{}, ErrScrapeInProgress
	}
	defer s.scrapeMu.Unlock()

	creds := scraper.Credentials{
		URL:      s.setting(ctx, model.SettingScrapeURL, s.cfg.ScrapeURL),
		Password: s.setting(ctx, model.SettingScrapePassword, s.cfg.ScrapePassword),
	}
	result := s.scraper.Run(ctx, creds)
	s.logger.Info("scrape finished",
		zap.String("run_id", result.RunID),
		zap.Bool("success", result.Success),
		zap.Int("found", result.DocumentsFound),
		zap.Int("processed", result.DocumentsProcessed))
	return result, nil
}

// GenerateForGroup builds and persists the artifact for one class group and
// week. A nil week means the current week start. Generation itself never
// fails; errors come from loading inputs or persisting the result.
func (s *Service) GenerateForGroup(ctx context.Context, classGroupID string, week *time.Time) (*Generated, error) {
	group, err := s.store.GetClassGroup(ctx, classGroupID)
	if err != nil {
		return nil, fmt.Errorf("load class group: %w", err)
	}
	weekStart := s.weekStart(week)
	log := s.logger.With(zap.String("class_group_id", group.ID), zap.String("week", schedule.FormatDate(weekStart)))

	docs, err := s.mailings(ctx, group.ID, weekStart, log)
	if err != nil {
		return nil, err
	}
	timetable, err := s.timetable(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	sheet := s.knowledgeSheet(ctx, group.ID)
	in := generation.Input{
		ClassGroupID:   group.ID,
		ClassGroupName: group.Name,
		WeekStart:      weekStart,
		Documents:      docs,
		Timetable:      timetable,
		KnowledgeSheet: sheet,
		PromptTemplate: s.setting(ctx, model.SettingPromptTemplate, ""),
	}

	artifact := s.gen.Generate(ctx, in)
	if err := s.recorder.ReplaceArtifacts(ctx, group.ID, weekStart, artifact); err != nil {
		return nil, err
	}
	log.Info("artifacts generated",
		zap.String("provider", artifact.Provider),
		zap.Int("reminders", len(artifact.Reminders)),
		zap.Int("documents", len(docs)))
	return &Generated{
		ClassGroupID: group.ID,
		WeekStart:    schedule.FormatDate(weekStart),
		Provider:     artifact.Provider,
		Reminders:    len(artifact.Reminders),
		Documents:    len(docs),
		Artifact:     artifact,
	}, nil
}

// GenerateAll runs GenerateForGroup for every class group with bounded
// parallelism. One group failing does not stop the others; the returned
// error joins every failure.
func (s *Service) GenerateAll(ctx context.Context, week *time.Time) ([]Generated, error) {
	groups, err := s.store.ListClassGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	results := make([]*Generated, len(groups))
	errs := make([]error, len(groups))

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i, group := range groups {
		g.Go(func() error {
			res, err := s.GenerateForGroup(ctx, group.ID, week)
			if err != nil {
				errs[i] = fmt.Errorf("class group %s: %w", group.Name, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Generated, 0, len(groups))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, errors.Join(errs...)
}

// Week returns the stored artifacts for a class group and week. A nil week
// means the current week start.
func (s *Service) Week(ctx context.Context, classGroupID string, week *time.Time) (*model.WeekArtifacts, error) {
	return s.store.GetWeek(ctx, classGroupID, s.weekStart(week))
}

// Runs lists recent scrape runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	return s.store.ListRuns(ctx, limit)
}

func (s *Service) weekStart(week *time.Time) time.Time {
	if week == nil {
		return s.calendar.WeekStart(s.now())
	}
	return s.calendar.WeekOf(*week)
}

// mailings loads the week's active mailings that apply to the group and
// their binaries. A document whose binary cannot be read is skipped.
func (s *Service) mailings(ctx context.Context, classGroupID string, weekStart time.Time, log *zap.Logger) ([]generation.Document, error) {
	found, err := s.store.ListDocuments(ctx, model.DocumentFilter{
		Type:       model.DocumentWeeklyMailing,
		WeekStart:  &weekStart,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list mailings: %w", err)
	}
	docs := make([]generation.Document, 0, len(found))
	for i := range found {
		doc := &found[i]
		if doc.ClassGroupID != nil && *doc.ClassGroupID != classGroupID {
			continue
		}
		data, err := s.recorder.Content(ctx, doc)
		if err != nil {
			log.Warn("skipping mailing without content", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		docs = append(docs, generation.Document{
			ID:        doc.ID,
			Filename:  doc.Filename,
			MimeType:  doc.MimeType,
			SourceURL: doc.SourceURL,
			Data:      data,
			Text:      doc.ExtractedText,
		})
	}
	return docs, nil
}

// timetable returns the timetable stored on the group's active knowledge
// sheet document, or "" when there is none.
func (s *Service) timetable(ctx context.Context, classGroupID string) (string, error) {
	sheets, err := s.store.ListDocuments(ctx, model.DocumentFilter{
		Type:         model.DocumentKnowledgeSheet,
		ClassGroupID: classGroupID,
		ActiveOnly:   true,
	})
	if err != nil {
		return "", fmt.Errorf("list knowledge sheets: %w", err)
	}
	if len(sheets) == 0 {
		return "", nil
	}
	return sheets[len(sheets)-1].Timetable, nil
}

// knowledgeSheet reads the group's sheet, falling back to the school-wide
// one.
func (s *Service) knowledgeSheet(ctx context.Context, classGroupID string) string {
	key := s.recorder.SheetKey(classGroupID)
	if sheet := s.setting(ctx, key, ""); sheet != "" {
		return sheet
	}
	if key != model.KnowledgeSheetKey("") {
		return s.setting(ctx, model.KnowledgeSheetKey(""), "")
	}
	return ""
}

// setting returns the stored value for key, or def when it is missing or
// empty. Read errors other than not-found are logged and also yield def.
func (s *Service) setting(ctx context.Context, key, def string) string {
	v, err := s.store.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn("read setting", zap.String("key", key), zap.Error(err))
		}
		return def
	}
	if v == "" {
		return def
	}
	return v
}
