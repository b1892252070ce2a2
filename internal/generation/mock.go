package generation

import (
	"fmt"

	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
)

// MockName identifies artifacts produced without a model.
const MockName = "mock"

var mockDays = []struct {
	title    string
	desc     string
	priority model.Priority
	category string
}{
	{"Start of week check", "Check bags for reading books and homework folders.", model.PriorityMedium, "General"},
	{"Homework reminder", "Review any homework set this week and note due dates.", model.PriorityMedium, "Homework"},
	{"Mid-week check", "Look out for letters or forms sent home this week.", model.PriorityLow, "General"},
	{"Clubs and activities", "Confirm after-school club arrangements for the rest of the week.", model.PriorityLow, "Clubs"},
	{"End of week", "Return any signed forms and check next week's mailing.", model.PriorityHigh, "General"},
}

// Mock builds a deterministic artifact with one reminder per school day. It
// keeps the incoming knowledge sheet unchanged.
func Mock(in Input) *model.Artifact {
	week := in.WeekStart
	days := schedule.Default(week.Location()).SchoolWeek(week)
	reminders := make([]model.Reminder, 0, len(mockDays))
	for i, d := range mockDays {
		reminders = append(reminders, model.Reminder{
			Date:        schedule.FormatDate(days[i]),
			Title:       d.title,
			Description: d.desc,
			Priority:    d.priority,
			Category:    d.category,
		})
	}
	group := in.ClassGroupName
	if group == "" {
		group = "this class group"
	}
	weekLabel := schedule.FormatDate(week)
	return &model.Artifact{
		Reminders: reminders,
		Overview: &model.Overview{
			Summary: fmt.Sprintf("Week of %s for %s. No language model was available, so these are general reminders; check the weekly mailing for details.", weekLabel, group),
			KeyHighlights: []string{
				fmt.Sprintf("%d mailing document(s) received for this week", len(in.Documents)),
			},
			ImportantDates: []model.ImportantDate{
				{Date: weekLabel, Event: "Start of school week"},
			},
			MailingSummary: model.MailingSummary{
				MainTopics:     []string{},
				ActionItems:    []string{"Read the weekly mailing"},
				UpcomingEvents: []string{},
			},
		},
		Suggestions: &model.Suggestions{
			Additions: []string{},
			Removals:  []string{},
		},
		UpdatedKnowledgeSheet: in.KnowledgeSheet,
		Provider:              MockName,
	}
}
