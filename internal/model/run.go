package model

import (
	"errors"
	"time"
)

// RunStatus describes the scrape run lifecycle. A run only ever moves from
// running to exactly one terminal state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrRunFinalized is returned when a terminal run is finalized again.
var ErrRunFinalized = errors.New("scrape run already finalized")

// RunStep is one entry of the ordered step log kept for post-hoc debugging.
type RunStep struct {
	Timestamp time.Time `json:"timestamp"`
	Step      int       `json:"step"`
	Message   string    `json:"message"`
}

// ScrapeRun records one execution of the acquisition session.
type ScrapeRun struct {
	ID                 string     `json:"id"`
	Status             RunStatus  `json:"status"`
	StartedAt          time.Time  `json:"startedAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	DocumentsFound     int        `json:"documentsFound"`
	DocumentsProcessed int        `json:"documentsProcessed"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	Steps              []RunStep  `json:"logDetails"`
}

// NewScrapeRun returns a run in the running state.
func NewScrapeRun(now time.Time) *ScrapeRun {
	return &ScrapeRun{
		Status:    RunRunning,
		StartedAt: now,
		Steps:     []RunStep{},
	}
}

// Log appends a step entry.
func (r *ScrapeRun) Log(now time.Time, step int, msg string) {
	r.Steps = append(r.Steps, RunStep{Timestamp: now, Step: step, Message: msg})
}

// Complete moves a running run to completed.
func (r *ScrapeRun) Complete(now time.Time) error {
	return r.finish(now, RunCompleted, "")
}

// Fail moves a running run to failed and keeps the triggering message.
func (r *ScrapeRun) Fail(now time.Time, msg string) error {
	return r.finish(now, RunFailed, msg)
}

// Finished reports whether the run reached a terminal state.
func (r *ScrapeRun) Finished() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

func (r *ScrapeRun) finish(now time.Time, status RunStatus, msg string) error {
	if r.Status != RunRunning {
		return ErrRunFinalized
	}
	r.Status = status
	r.ErrorMessage = msg
	r.CompletedAt = &now
	return nil
}
