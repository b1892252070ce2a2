// Package api exposes the scrape and generation triggers plus read-only
// display queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/pipeline"
	"github.com/dharsanguruparan/schoolpost/internal/ports"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
	"github.com/dharsanguruparan/schoolpost/internal/scraper"
	"github.com/dharsanguruparan/schoolpost/internal/signing"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// Pipeline is the subset of *pipeline.Service the handlers call.
type Pipeline interface {
	RunScrape(ctx context.Context) (scraper.Result, error)
	GenerateForGroup(ctx context.Context, classGroupID string, week *time.Time) (*pipeline.Generated, error)
	GenerateAll(ctx context.Context, week *time.Time) ([]pipeline.Generated, error)
	Week(ctx context.Context, classGroupID string, week *time.Time) (*model.WeekArtifacts, error)
	Runs(ctx context.Context, limit int) ([]model.ScrapeRun, error)
	Calendar() *schedule.Calculator
}

// Server exposes HTTP endpoints for triggers and display reads. When queue is
// nil the triggers run inline in the request.
type Server struct {
	addr     string
	svc      Pipeline
	queue    queue.Enqueuer
	signer   *signing.Signer
	validate *validator.Validate
	logger   *zap.Logger
	router   chi.Router
	now      func() time.Time
}

// New constructs a Server. A nil signer leaves the trigger routes open.
func New(addr string, svc Pipeline, q queue.Enqueuer, signer *signing.Signer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:     addr,
		svc:      svc,
		queue:    q,
		signer:   signer,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/schedule", s.handleSchedule)
	r.Get("/reminders", s.handleReminders)
	r.Get("/overview", s.handleOverview)
	r.Get("/scrape/runs", s.handleRuns)

	// Triggers.
	r.Group(func(r chi.Router) {
		if s.signer != nil {
			r.Use(s.signer.Middleware)
		}
		r.Post("/scrape", s.handleScrape)
		r.Post("/generate", s.handleGenerate)
		r.Post("/generate/all", s.handleGenerateAll)
	})

	s.router = r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", zap.String("addr", s.addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// generateRequest is the POST /generate body.
type generateRequest struct {
	ClassGroupID  string `json:"classGroupId" validate:"required"`
	WeekStartDate string `json:"weekStartDate" validate:"omitempty,datetime=2006-01-02"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.queue != nil {
		id, err := queue.EnqueueScrape(r.Context(), s.queue)
		if errors.Is(err, queue.ErrAlreadyQueued) {
			respondError(w, http.StatusConflict, "scrape already queued")
			return
		}
		if err != nil {
			s.logger.Error("enqueue scrape", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to queue scrape")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
		return
	}
	result, err := s.svc.RunScrape(r.Context())
	if errors.Is(err, pipeline.ErrScrapeInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.queue != nil {
		id, err := queue.EnqueueGenerate(r.Context(), s.queue, queue.GeneratePayload{
			ClassGroupID: req.ClassGroupID,
			WeekStart:    req.WeekStartDate,
		})
		if err != nil {
			s.logger.Error("enqueue generate", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to queue generation")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
		return
	}
	week, ok := s.parseWeek(w, req.WeekStartDate)
	if !ok {
		return
	}
	res, err := s.svc.GenerateForGroup(r.Context(), req.ClassGroupID, week)
	if errors.Is(err, ports.ErrNotFound) {
		respondError(w, http.StatusNotFound, "class group not found")
		return
	}
	if err != nil {
		s.logger.Error("generate", zap.String("class_group_id", req.ClassGroupID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "generation failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateAll(w http.ResponseWriter, r *http.Request) {
	weekRaw := r.URL.Query().Get("weekStartDate")
	if s.queue != nil {
		id, err := queue.EnqueueGenerateAll(r.Context(), s.queue, weekRaw)
		if err != nil {
			s.logger.Error("enqueue generate-all", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to queue generation")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"taskId": id})
		return
	}
	week, ok := s.parseWeek(w, weekRaw)
	if !ok {
		return
	}
	out, err := s.svc.GenerateAll(r.Context(), week)
	body := map[string]any{"results": out}
	if err != nil {
		body["error"] = err.Error()
		respondJSON(w, http.StatusMultiStatus, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	set, ok := s.loadWeek(w, r)
	if !ok {
		return
	}
	week := s.svc.Calendar().WeekStart(s.now())
	reminders := []model.Reminder{}
	if set != nil {
		week = set.WeekStart
		reminders = set.Reminders
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"weekStartDate": schedule.FormatDate(week),
		"reminders":     reminders,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	set, ok := s.loadWeek(w, r)
	if !ok {
		return
	}
	if set == nil || set.Overview == nil {
		respondError(w, http.StatusNotFound, "no overview for this week")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"weekStartDate":             schedule.FormatDate(set.WeekStart),
		"weeklyOverview":            set.Overview,
		"knowledgeSheetSuggestions": set.Suggestions,
	})
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	cal := s.svc.Calendar()
	now := s.now()
	respondJSON(w, http.StatusOK, map[string]any{
		"weekStartDate": schedule.FormatDate(cal.WeekStart(now)),
		"displayDate":   schedule.FormatDate(cal.DisplayDate(now)),
		"publishDay":    cal.PublishDay.String(),
		"cutoffHour":    cal.CutoffHour,
	})
}

// loadWeek reads classGroupId and weekStartDate from the query. A missing set
// yields (nil, true).
func (s *Server) loadWeek(w http.ResponseWriter, r *http.Request) (*model.WeekArtifacts, bool) {
	groupID := r.URL.Query().Get("classGroupId")
	if groupID == "" {
		respondError(w, http.StatusBadRequest, "classGroupId is required")
		return nil, false
	}
	week, ok := s.parseWeek(w, r.URL.Query().Get("weekStartDate"))
	if !ok {
		return nil, false
	}
	set, err := s.svc.Week(r.Context(), groupID, week)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		s.logger.Error("load week", zap.String("class_group_id", groupID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load artifacts")
		return nil, false
	}
	return set, true
}

func (s *Server) parseWeek(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	week, err := s.svc.Calendar().ParseDate(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "weekStartDate must be YYYY-MM-DD")
		return nil, false
	}
	return &week, true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,"+signing.HeaderExpires+","+signing.HeaderSignature)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
