package model

import "time"

// Priority ranks a reminder for display.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Reminder is one daily reminder. Date is a calendar date in YYYY-MM-DD form,
// matching what generation providers emit.
type Reminder struct {
	ID           string    `json:"id,omitempty"`
	ClassGroupID string    `json:"classGroupId,omitempty"`
	WeekStart    time.Time `json:"-"`
	Date         string    `json:"date"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Priority     Priority  `json:"priority"`
	Category     string    `json:"category"`
}

// ImportantDate pairs a calendar date with an event label.
type ImportantDate struct {
	Date  string `json:"date"`
	Event string `json:"event"`
}

// MailingSummary breaks the week's mailing down by topic.
type MailingSummary struct {
	MainTopics     []string `json:"mainTopics"`
	ActionItems    []string `json:"actionItems"`
	UpcomingEvents []string `json:"upcomingEvents"`
}

// Overview is the weekly summary for a class group.
type Overview struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary"`
	KeyHighlights  []string        `json:"keyHighlights"`
	ImportantDates []ImportantDate `json:"importantDates"`
	MailingSummary MailingSummary  `json:"weeklyMailingSummary"`
}

// Suggestions lists proposed knowledge sheet edits.
type Suggestions struct {
	Additions []string `json:"additions"`
	Removals  []string `json:"removals"`
}

// Artifact is the generated output for one (class group, week) pair. The
// JSON field names are the contract every generation provider must honor.
type Artifact struct {
	Reminders             []Reminder   `json:"dailyReminders"`
	Overview              *Overview    `json:"weeklyOverview"`
	Suggestions           *Suggestions `json:"knowledgeSheetSuggestions"`
	UpdatedKnowledgeSheet string       `json:"updatedKnowledgeSheet"`
	// Provider names the generator that produced the artifact.
	Provider string `json:"provider,omitempty"`
}

// WeekArtifacts is the persisted artifact set for a (class group, week) pair.
type WeekArtifacts struct {
	ClassGroupID string       `json:"classGroupId"`
	WeekStart    time.Time    `json:"weekStartDate"`
	Reminders    []Reminder   `json:"reminders"`
	Overview     *Overview    `json:"overview,omitempty"`
	Suggestions  *Suggestions `json:"suggestions,omitempty"`
}
