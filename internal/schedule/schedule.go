// Package schedule answers the two calendar questions the rest of the system
// asks: which week a freshly scraped mailing belongs to, and which day's
// reminders a reader should be looking at right now.
package schedule

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used for week keys and reminder
// dates throughout the system.
const DateLayout = "2006-01-02"

const (
	DefaultPublishDay = time.Friday
	DefaultCutoffHour = 10
)

// Calculator holds the publish-day/cutoff settings. The zero value is not
// useful; build one with New.
type Calculator struct {
	PublishDay time.Weekday
	CutoffHour int
	Location   *time.Location
}

// New returns a Calculator. A nil location means UTC.
func New(publishDay time.Weekday, cutoffHour int, loc *time.Location) (*Calculator, error) {
	if publishDay < time.Sunday || publishDay > time.Saturday {
		return nil, fmt.Errorf("publish day %d out of range", publishDay)
	}
	if cutoffHour < 0 || cutoffHour > 23 {
		return nil, fmt.Errorf("cutoff hour %d out of range", cutoffHour)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{PublishDay: publishDay, CutoffHour: cutoffHour, Location: loc}, nil
}

// Default returns the Friday/10:00 calculator for the given location.
func Default(loc *time.Location) *Calculator {
	c, _ := New(DefaultPublishDay, DefaultCutoffHour, loc)
	return c
}

// WeekStart returns midnight on the Monday of the relevant week. On the
// publish day the relevant week is the upcoming one, since that is what the
// freshly published mailing describes.
func (c *Calculator) WeekStart(now time.Time) time.Time {
	now = now.In(c.Location)
	if now.Weekday() == c.PublishDay {
		return c.nextMonday(now)
	}
	return c.mondayOf(now)
}

// DisplayDate returns midnight on the day whose reminders should be shown at
// now. The cutoff comparison is strict, so exactly CutoffHour:00 counts as
// after the cutoff.
func (c *Calculator) DisplayDate(now time.Time) time.Time {
	now = now.In(c.Location)
	today := c.midnight(now, 0)

	if isWeekend(now.Weekday()) {
		return c.nextMonday(now)
	}
	beforeCutoff := now.Hour() < c.CutoffHour
	if now.Weekday() == c.PublishDay && !beforeCutoff {
		return c.nextMonday(now)
	}
	if beforeCutoff {
		return today
	}
	tomorrow := c.midnight(now, 1)
	if isWeekend(tomorrow.Weekday()) {
		return c.nextMonday(now)
	}
	return tomorrow
}

// WeekOf returns midnight on the Monday of the week containing t.
func (c *Calculator) WeekOf(t time.Time) time.Time {
	return c.mondayOf(t.In(c.Location))
}

// SchoolWeek returns the Monday to Friday dates of the week starting at
// weekStart.
func (c *Calculator) SchoolWeek(weekStart time.Time) []time.Time {
	start := c.mondayOf(weekStart.In(c.Location))
	days := make([]time.Time, 0, 5)
	for i := 0; i < 5; i++ {
		days = append(days, time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, c.Location))
	}
	return days
}

// ParseDate parses a YYYY-MM-DD string as midnight in the calculator's
// location.
func (c *Calculator) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, c.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func (c *Calculator) mondayOf(t time.Time) time.Time {
	// Weekday counts from Sunday; shift so Monday is 0 and Sunday is 6.
	offset := (int(t.Weekday()) + 6) % 7
	return c.midnight(t, -offset)
}

func (c *Calculator) nextMonday(t time.Time) time.Time {
	m := c.mondayOf(t)
	return time.Date(m.Year(), m.Month(), m.Day()+7, 0, 0, 0, 0, c.Location)
}

// midnight uses time.Date rather than Add so DST transitions never shift the
// result off midnight.
func (c *Calculator) midnight(t time.Time, addDays int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+addDays, 0, 0, 0, 0, c.Location)
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
