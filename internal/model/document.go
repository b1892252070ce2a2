// Package model contains the domain structs shared across packages: harvested
// documents, scrape runs, class groups and the generated artifacts.
package model

import (
	"time"
)

// DocumentType distinguishes school-wide mailings from per-group reference
// sheets. In Go a type declared via "type X string" gives the values a name
// of their own while keeping string as the representation.
type DocumentType string

const (
	DocumentWeeklyMailing  DocumentType = "weekly_mailing"
	DocumentKnowledgeSheet DocumentType = "knowledge_sheet"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	return t == DocumentWeeklyMailing || t == DocumentKnowledgeSheet
}

// Document is one discovered, downloaded or uploaded file. A nil ClassGroupID
// means the document is school-wide. Older versions are deactivated rather
// than deleted, so at most one active version exists per identity.
type Document struct {
	ID           string       `json:"id"`
	Type         DocumentType `json:"type"`
	ClassGroupID *string      `json:"classGroupId,omitempty"`
	// WeekStart is the Monday of the week the document targets; knowledge
	// sheets are not tied to a week.
	WeekStart *time.Time `json:"weekStartDate,omitempty"`
	Filename  string     `json:"filename"`
	SourceURL string     `json:"sourceUrl,omitempty"`
	BlobKey   string     `json:"blobKey,omitempty"`
	BlobURL   string     `json:"blobUrl,omitempty"`
	MimeType  string     `json:"mimeType"`
	Size      int64      `json:"fileSize"`
	// Content holds the binary body when it is kept inline instead of in the
	// blob store. It never leaves the process as JSON.
	Content       []byte    `json:"-"`
	ExtractedText string    `json:"-"`
	Timetable     string    `json:"timetable,omitempty"`
	Active        bool      `json:"isActive"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DocumentFilter narrows document listings. Zero values are ignored, except
// SchoolWide which restricts results to documents without a class group.
type DocumentFilter struct {
	Type         DocumentType
	ClassGroupID string
	SchoolWide   bool
	WeekStart    *time.Time
	Filename     string
	ActiveOnly   bool
}

// ClassGroup is a cohort that receives its own reminders, timetable and
// knowledge sheet.
type ClassGroup struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DisplayOrder int       `json:"displayOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Setting keys persisted in the settings table.
const (
	SettingScrapeURL       = "scraping_url"
	SettingScrapePassword  = "scraping_password"
	SettingPromptTemplate  = "prompt_template"
	SettingKnowledgeSheet  = "knowledge_sheet_content"
	knowledgeSheetGroupSep = ":"
)

// KnowledgeSheetKey returns the settings key holding the knowledge sheet for
// a class group. An empty group ID yields the school-wide key.
func KnowledgeSheetKey(classGroupID string) string {
	if classGroupID == "" {
		return SettingKnowledgeSheet
	}
	return SettingKnowledgeSheet + knowledgeSheetGroupSep + classGroupID
}

// Matches reports whether d satisfies every non-zero field of f.
func (f DocumentFilter) Matches(d *Document) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.SchoolWide && d.ClassGroupID != nil {
		return false
	}
	if f.ClassGroupID != "" && (d.ClassGroupID == nil || *d.ClassGroupID != f.ClassGroupID) {
		return false
	}
	if f.WeekStart != nil && (d.WeekStart == nil || !SameDate(*d.WeekStart, *f.WeekStart)) {
		return false
	}
	if f.Filename != "" && d.Filename != f.Filename {
		return false
	}
	if f.ActiveOnly && !d.Active {
		return false
	}
	return true
}

// Identity returns the filter selecting earlier versions of d. Knowledge
// sheets are versioned per class group, mailings per week and filename.
func (d *Document) Identity() DocumentFilter {
	f := DocumentFilter{Type: d.Type, ActiveOnly: true}
	if d.ClassGroupID != nil {
		f.ClassGroupID = *d.ClassGroupID
	} else {
		f.SchoolWide = true
	}
	if d.Type == DocumentWeeklyMailing {
		f.WeekStart = d.WeekStart
		f.Filename = d.Filename
	}
	return f
}

// SameDate compares the calendar dates of a and b as written in their own
// locations.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
