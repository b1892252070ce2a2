// Package scraper drives a headless browser through the school's parent
// portal: open the page, clear consent banners, authenticate, collect the
// mailing links and download each document through the logged-in session.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/logging"
	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
)

// ErrURLRequired is returned when a run is started without a target URL.
var ErrURLRequired = errors.New("scrape url is required")

// Key is a keyboard key the session presses.
type Key int

const (
	KeyEscape Key = iota
	KeyTab
	KeyEnter
)

// Selector locates an element by CSS, optionally narrowed to elements whose
// text matches TextPattern, a JavaScript regular expression such as
// "/accept/i".
type Selector struct {
	CSS         string
	TextPattern string
}

func (s Selector) String() string {
	if s.TextPattern == "" {
		return s.CSS
	}
	return s.CSS + " " + s.TextPattern
}

// DefaultConsentSelectors are the consent-banner buttons tried in order.
var DefaultConsentSelectors = []Selector{
	{CSS: "button", TextPattern: `/^\s*accept all\s*$/i`},
	{CSS: `[data-testid="cookie-accept"]`},
	{CSS: "#accept-cookies"},
	{CSS: ".cookie-accept"},
	{CSS: "button.accept"},
}

// Page is the subset of browser-tab behaviour the session needs.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	// Click clicks the first element matching sel, waiting up to timeout for
	// it to appear. It reports false when nothing matched.
	Click(sel Selector, timeout time.Duration) (bool, error)
	Press(key Key) error
	// FocusPassword focuses a password input if one is present right now.
	FocusPassword() (bool, error)
	FocusedIsPassword() (bool, error)
	InsertText(text string) error
	// SubmitAndWait presses Enter and waits up to timeout for the resulting
	// navigation to settle.
	SubmitAndWait(timeout time.Duration) error
	HTML() (string, error)
	URL() (string, error)
	// Fetch downloads url from inside the page so the request carries the
	// authenticated session. It gives up after timeout.
	Fetch(url string, timeout time.Duration) (data []byte, contentType string, err error)
}

// Browser is a launched browser process.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// DocumentSink persists downloaded documents.
type DocumentSink interface {
	PersistDocument(ctx context.Context, doc *model.Document) error
}

// Options tunes waits and selectors. Zero values take the defaults.
type Options struct {
	NavigationTimeout time.Duration
	ConsentTimeout    time.Duration
	ConsentPause      time.Duration
	AuthTimeout       time.Duration
	DownloadTimeout   time.Duration
	SettleDelay       time.Duration
	TabPause          time.Duration
	TabAttempts       int
	Suffixes          []string
	ConsentSelectors  []Selector
}

// DefaultOptions returns the production waits.
func DefaultOptions() Options {
	return Options{
		NavigationTimeout: 30 * time.Second,
		ConsentTimeout:    3 * time.Second,
		ConsentPause:      time.Second,
		AuthTimeout:       15 * time.Second,
		DownloadTimeout:   time.Minute,
		SettleDelay:       10 * time.Second,
		TabPause:          200 * time.Millisecond,
		TabAttempts:       10,
		Suffixes:          DefaultSuffixes,
		ConsentSelectors:  DefaultConsentSelectors,
	}
}

// Credentials identify the portal to scrape.
type Credentials struct {
	URL      string
	Password string
}

// Result summarises one run.
type Result struct {
	RunID              string   `json:"runId"`
	Success            bool     `json:"success"`
	WeekStart          string   `json:"weekStartDate"`
	DocumentsFound     int      `json:"documentsFound"`
	DocumentsProcessed int      `json:"documentsProcessed"`
	DocumentIDs        []string `json:"documentIds"`
	Error              string   `json:"error,omitempty"`
}

// Session runs acquisitions. A Session is safe to reuse but runs must not
// overlap; the pipeline serialises them.
type Session struct {
	launcher Launcher
	runs     ports.RunStore
	sink     DocumentSink
	calendar *schedule.Calculator
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewSession wires a Session.
func NewSession(launcher Launcher, runs ports.RunStore, sink DocumentSink, calendar *schedule.Calculator, opts Options, logger *zap.Logger) *Session {
	def := DefaultOptions()
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = def.NavigationTimeout
	}
	if opts.ConsentTimeout <= 0 {
		opts.ConsentTimeout = def.ConsentTimeout
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = def.AuthTimeout
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = def.DownloadTimeout
	}
	if opts.TabAttempts <= 0 {
		opts.TabAttempts = def.TabAttempts
	}
	if len(opts.Suffixes) == 0 {
		opts.Suffixes = def.Suffixes
	}
	if len(opts.ConsentSelectors) == 0 {
		opts.ConsentSelectors = def.ConsentSelectors
	}
	logger = logging.OrNop(logger)
	if calendar == nil {
		calendar = schedule.Default(time.UTC)
	}
	return &Session{
		launcher: launcher,
		runs:     runs,
		sink:     sink,
		calendar: calendar,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// State names a point in the acquisition.
type State string

const (
	StateIdle           State = "idle"
	StateNavigated      State = "navigated"
	StateConsentHandled State = "consent_handled"
	StateAuthenticated  State = "authenticated"
	StateLinksHarvested State = "links_harvested"
	StateDownloading    State = "downloading"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// transition performs the work leaving a state and names the next one. An
// error moves the run to StateFailed.
type transition func(ctx context.Context, r *runState) (State, error)

type runState struct {
	creds     Credentials
	run       *model.ScrapeRun
	page      Page
	weekStart time.Time
	links     []Link
	result    Result
	step      int
}

// Run executes one acquisition. It always returns a Result; failures are
// reported through Result.Success and Result.Error. The run record is
// finalized and the browser torn down on every path.
func (s *Session) Run(ctx context.Context, creds Credentials) (result Result) {
	started := s.now()
	run := model.NewScrapeRun(started)
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Error("create scrape run", zap.Error(err))
		return Result{Error: fmt.Sprintf("create scrape run: %v", err)}
	}
	r := &runState{
		creds:     creds,
		run:       run,
		weekStart: s.calendar.WeekStart(started),
	}
	r.result = Result{RunID: run.ID, WeekStart: schedule.FormatDate(r.weekStart), DocumentIDs: []string{}}
	log := s.logger.With(zap.String("run_id", run.ID))

	defer func() {
		if p := recover(); p != nil {
			s.fail(r, log, fmt.Errorf("panic: %v", p))
		}
		if !run.Finished() {
			s.fail(r, log, errors.New("run ended without reaching a terminal state"))
		}
		run.DocumentsFound = r.result.DocumentsFound
		run.DocumentsProcessed = r.result.DocumentsProcessed
		// The caller's context may already be cancelled; the final write
		// must still land.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.runs.UpdateRun(fctx, run); err != nil {
			log.Error("finalize scrape run", zap.Error(err))
		}
		r.result.Success = run.Status == model.RunCompleted
		r.result.Error = run.ErrorMessage
		result = r.result
	}()

	if creds.URL == "" {
		s.fail(r, log, ErrURLRequired)
		return r.result
	}

	s.logStep(r, log, "launching browser")
	browser, err := s.launcher.Launch(ctx)
	if err != nil {
		s.fail(r, log, fmt.Errorf("launch browser: %w", err))
		return r.result
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("close browser", zap.Error(err))
		}
	}()
	page, err := browser.NewPage(ctx)
	if err != nil {
		s.fail(r, log, fmt.Errorf("open page: %w", err))
		return r.result
	}
	r.page = page

	transitions := map[State]transition{
		StateIdle:           s.navigate,
		StateNavigated:      s.handleConsent,
		StateConsentHandled: s.authenticate,
		StateAuthenticated:  s.harvest,
		StateLinksHarvested: s.startDownloads,
		StateDownloading:    s.download,
	}
	state := StateIdle
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			s.fail(r, log, fmt.Errorf("cancelled in state %s: %w", state, err))
			return r.result
		}
		next, err := transitions[state](ctx, r)
		if err != nil {
			s.fail(r, log, err)
			return r.result
		}
		log.Debug("scrape transition", zap.String("from", string(state)), zap.String("to", string(next)))
		state = next
	}

	s.logStep(r, log, fmt.Sprintf("completed: %d of %d documents processed", r.result.DocumentsProcessed, r.result.DocumentsFound))
	if err := run.Complete(s.now()); err != nil {
		log.Warn("complete scrape run", zap.Error(err))
	}
	return r.result
}

func (s *Session) navigate(_ context.Context, r *runState) (State, error) {
	s.logStepf(r, "navigating to %s", r.creds.URL)
	if err := r.page.Navigate(r.creds.URL, s.opts.NavigationTimeout); err != nil {
		return StateFailed, fmt.Errorf("navigate: %w", err)
	}
	return StateNavigated, nil
}

func (s *Session) handleConsent(ctx context.Context, r *runState) (State, error) {
	s.logStepf(r, "checking for consent banners")
	for _, sel := range s.opts.ConsentSelectors {
		clicked, err := r.page.Click(sel, s.opts.ConsentTimeout)
		if err != nil {
			s.logger.Debug("consent probe", zap.Stringer("selector", sel), zap.Error(err))
			continue
		}
		if clicked {
			s.logStepf(r, "dismissed consent banner via %s", sel)
			if err := s.sleep(ctx, s.opts.ConsentPause); err != nil {
				return StateFailed, err
			}
			break
		}
	}
	// Escape closes modal overlays that have no recognisable button.
	if err := r.page.Press(KeyEscape); err != nil {
		s.logStepf(r, "escape key failed: %v", err)
	}
	if err := s.sleep(ctx, s.opts.ConsentPause); err != nil {
		return StateFailed, err
	}
	return StateConsentHandled, nil
}

func (s *Session) authenticate(ctx context.Context, r *runState) (State, error) {
	if r.creds.Password == "" {
		s.logStepf(r, "no password configured, skipping authentication")
		return StateAuthenticated, nil
	}
	s.logStepf(r, "looking for password field")
	found, err := r.page.FocusPassword()
	if err != nil {
		s.logStepf(r, "password lookup failed: %v", err)
	}
	for i := 0; !found && i < s.opts.TabAttempts; i++ {
		if err := r.page.Press(KeyTab); err != nil {
			s.logStepf(r, "tab key failed: %v", err)
			break
		}
		if err := s.sleep(ctx, s.opts.TabPause); err != nil {
			return StateFailed, err
		}
		found, err = r.page.FocusedIsPassword()
		if err != nil {
			s.logStepf(r, "focus check failed: %v", err)
		}
		if found {
			s.logStepf(r, "password field reached after %d tab(s)", i+1)
		}
	}
	if !found {
		s.logStepf(r, "password field not found, continuing unauthenticated")
		return StateAuthenticated, nil
	}
	if err := r.page.InsertText(r.creds.Password); err != nil {
		s.logStepf(r, "typing password failed: %v", err)
		return StateAuthenticated, nil
	}
	if err := r.page.SubmitAndWait(s.opts.AuthTimeout); err != nil {
		s.logStepf(r, "navigation after login did not settle: %v", err)
	} else {
		s.logStepf(r, "password submitted")
	}
	return StateAuthenticated, nil
}

func (s *Session) harvest(ctx context.Context, r *runState) (State, error) {
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return StateFailed, err
	}
	html, err := r.page.HTML()
	if err != nil {
		return StateFailed, fmt.Errorf("read page: %w", err)
	}
	base, err := r.page.URL()
	if err != nil || base == "" {
		base = r.creds.URL
	}
	links, err := HarvestLinks(html, base, s.opts.Suffixes)
	if err != nil {
		return StateFailed, err
	}
	r.links = links
	r.result.DocumentsFound = len(links)
	s.logStepf(r, "found %d document link(s)", len(links))
	return StateLinksHarvested, nil
}

func (s *Session) startDownloads(_ context.Context, r *runState) (State, error) {
	if len(r.links) == 0 {
		return StateDone, nil
	}
	s.logStepf(r, "downloading %d document(s)", len(r.links))
	return StateDownloading, nil
}

// download fetches links one at a time; concurrent navigation can drop the
// authenticated session.
func (s *Session) download(ctx context.Context, r *runState) (State, error) {
	for _, link := range r.links {
		if err := ctx.Err(); err != nil {
			return StateFailed, fmt.Errorf("cancelled while downloading: %w", err)
		}
		data, contentType, err := r.page.Fetch(link.URL, s.opts.DownloadTimeout)
		if err != nil {
			s.logStepf(r, "download failed for %s: %v", link.URL, err)
			continue
		}
		weekStart := r.weekStart
		doc := &model.Document{
			Type:      model.DocumentWeeklyMailing,
			WeekStart: &weekStart,
			Filename:  FilenameFromURL(link.URL),
			SourceURL: link.URL,
			MimeType:  mimeType(contentType),
			Size:      int64(len(data)),
			Content:   data,
		}
		if err := s.sink.PersistDocument(ctx, doc); err != nil {
			s.logStepf(r, "storing %s failed: %v", doc.Filename, err)
			continue
		}
		r.result.DocumentsProcessed++
		r.result.DocumentIDs = append(r.result.DocumentIDs, doc.ID)
		s.logStepf(r, "stored %s (%d bytes)", doc.Filename, len(data))
	}
	return StateDone, nil
}

func (s *Session) logStepf(r *runState, format string, args ...any) {
	s.logStep(r, s.logger.With(zap.String("run_id", r.run.ID)), fmt.Sprintf(format, args...))
}

func (s *Session) logStep(r *runState, log *zap.Logger, msg string) {
	r.step++
	r.run.Log(s.now(), r.step, msg)
	log.Info(msg, zap.Int("step", r.step))
}

func (s *Session) fail(r *runState, log *zap.Logger, err error) {
	if r.run.Finished() {
		return
	}
	s.logStep(r, log, "failed: "+err.Error())
	if ferr := r.run.Fail(s.now(), err.Error()); ferr != nil {
		log.Warn("fail scrape run", zap.Error(ferr))
	}
}

func mimeType(contentType string) string {
	if contentType == "" || contentType == "application/octet-stream" {
		return "application/pdf"
	}
	return contentType
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
