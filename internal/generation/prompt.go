package generation

import (
	"fmt"
	"strings"
)

// DefaultPromptTemplate is used when no template has been saved in settings.
const DefaultPromptTemplate = `You process school weekly mailings, knowledge sheets and timetables and pull out what parents need to know.

Produce:
1. Daily reminders for each school day (Monday to Friday) of the week.
2. A weekly overview of the key information.
3. Suggested additions to and removals from the knowledge sheet.
4. An updated knowledge sheet.

Timetable rules:
- Any day with PE, Games or Swimming gets a high priority kit reminder in the "Uniform" category.

Priorities:
- high: deadlines, mandatory events, kit days, payments, permission slips
- medium: regular activities, homework, clubs
- low: optional events and general information

Categories: Homework, Events, Uniform, Trips, Payments, Clubs, General.

Knowledge sheet rules:
- Remove expired information and anything superseded by newer information.
- Add new permanent or recurring information from the mailing.
- Keep it short and organised.

All dates are YYYY-MM-DD.`

// BuildPrompt renders the prompt shared by every provider. Native providers
// get a note about the attached documents; text-only providers get the
// extracted text inline.
func BuildPrompt(in Input, docs []Document, native bool) string {
	var b strings.Builder
	template := in.PromptTemplate
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	week := in.WeekStart.Format("2006-01-02")

	b.WriteString(template)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Week Starting: %s\n", week)
	fmt.Fprintf(&b, "Class Group: %s\n\n", in.ClassGroupName)

	if native && len(docs) > 0 {
		fmt.Fprintf(&b, "I have attached %d PDF document(s) from the weekly mailing. Please analyze them carefully.\n", len(docs))
	} else {
		b.WriteString("Weekly Mailing Content:\n")
		b.WriteString(mailingContent(docs))
		b.WriteString("\n")
	}

	b.WriteString("\nClass Group Timetable (JSON):\n")
	b.WriteString(orDefault(in.Timetable, "No timetable data available"))
	b.WriteString("\n\nCurrent Knowledge Sheet Content:\n")
	b.WriteString(orDefault(in.KnowledgeSheet, "No knowledge sheet content available"))
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "Generate a JSON response with daily reminders, a weekly overview, knowledge sheet suggestions and an updated knowledge sheet for %s for the week of %s.\n\n", in.ClassGroupName, week)
	b.WriteString(`The JSON response MUST include:
- dailyReminders: array of {date, title, description, priority, category}
- weeklyOverview: object with summary, keyHighlights, importantDates, weeklyMailingSummary {mainTopics, actionItems, upcomingEvents}
- knowledgeSheetSuggestions: object with additions and removals arrays
- updatedKnowledgeSheet: string containing the full updated knowledge sheet

Return ONLY valid JSON.`)
	return b.String()
}

func mailingContent(docs []Document) string {
	if len(docs) == 0 {
		return "No mailings available for this week"
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		body := d.Text
		if body == "" {
			body = orDefault(d.SourceURL, "(no text could be extracted)")
		}
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s", d.Filename, body))
	}
	return strings.Join(parts, "\n\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
