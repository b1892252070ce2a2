package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

var (
	// ErrInvalidResponse wraps every validation failure.
	ErrInvalidResponse = errors.New("invalid provider response")

	fencePattern = regexp.MustCompile("```(?:json|JSON)?[ \t]*\r?\n?")
)

// Legacy field names still produced by older prompt templates.
var fieldAliases = map[string]string{
	"factSheetSuggestions": "knowledgeSheetSuggestions",
	"updatedFactSheet":     "updatedKnowledgeSheet",
}

// Validate parses a raw provider reply. The reply must contain a reminders
// array, an overview object and a suggestions object; a missing updated
// knowledge sheet falls back to knowledgeSheet.
func Validate(raw, knowledgeSheet string) (*model.Artifact, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrInvalidResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for legacy, current := range fieldAliases {
		if v, ok := fields[legacy]; ok {
			if _, exists := fields[current]; !exists {
				fields[current] = v
			}
		}
	}

	if !isKind(fields["dailyReminders"], '[') {
		return nil, fmt.Errorf("%w: missing dailyReminders array", ErrInvalidResponse)
	}
	if !isKind(fields["weeklyOverview"], '{') {
		return nil, fmt.Errorf("%w: missing weeklyOverview", ErrInvalidResponse)
	}
	if !isKind(fields["knowledgeSheetSuggestions"], '{') {
		return nil, fmt.Errorf("%w: missing knowledgeSheetSuggestions", ErrInvalidResponse)
	}

	artifact := &model.Artifact{}
	if err := json.Unmarshal(fields["dailyReminders"], &artifact.Reminders); err != nil {
		return nil, fmt.Errorf("%w: dailyReminders: %v", ErrInvalidResponse, err)
	}
	artifact.Overview = &model.Overview{}
	if err := json.Unmarshal(fields["weeklyOverview"], artifact.Overview); err != nil {
		return nil, fmt.Errorf("%w: weeklyOverview: %v", ErrInvalidResponse, err)
	}
	artifact.Suggestions = &model.Suggestions{}
	if err := json.Unmarshal(fields["knowledgeSheetSuggestions"], artifact.Suggestions); err != nil {
		return nil, fmt.Errorf("%w: knowledgeSheetSuggestions: %v", ErrInvalidResponse, err)
	}
	if v, ok := fields["updatedKnowledgeSheet"]; ok {
		// A non-string value is treated the same as a missing one.
		_ = json.Unmarshal(v, &artifact.UpdatedKnowledgeSheet)
	}
	if strings.TrimSpace(artifact.UpdatedKnowledgeSheet) == "" {
		artifact.UpdatedKnowledgeSheet = knowledgeSheet
	}
	for i := range artifact.Reminders {
		artifact.Reminders[i].Priority = normalizePriority(artifact.Reminders[i].Priority)
	}
	return artifact, nil
}

func stripFences(raw string) string {
	body := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
	if strings.HasPrefix(body, "{") {
		return body
	}
	// Some models wrap the JSON in prose; keep the outermost object.
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start >= 0 && end > start {
		return body[start : end+1]
	}
	return body
}

func isKind(v json.RawMessage, open byte) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == open
}

func normalizePriority(p model.Priority) model.Priority {
	switch model.Priority(strings.ToLower(string(p))) {
	case model.PriorityHigh:
		return model.PriorityHigh
	case model.PriorityLow:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}
