package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func london(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func at(loc *time.Location, date string, hour, min int) time.Time {
	d, _ := time.ParseInLocation(DateLayout, date, loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc)
}

func TestWeekStart(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"monday", at(time.UTC, "2026-10-12", 8, 0), "2026-10-12"},
		{"thursday", at(time.UTC, "2026-10-15", 23, 59), "2026-10-12"},
		{"friday rolls forward", at(time.UTC, "2026-10-16", 0, 1), "2026-10-19"},
		{"saturday", at(time.UTC, "2026-10-17", 12, 0), "2026-10-12"},
		{"sunday", at(time.UTC, "2026-10-18", 12, 0), "2026-10-12"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDate(c.WeekStart(tc.now)))
		})
	}
}

func TestWeekStartAlwaysMonday(t *testing.T) {
	t.Parallel()
	loc := london(t)
	c := Default(loc)
	start := at(loc, "2026-01-01", 0, 0)
	for h := 0; h < 24*400; h += 5 {
		now := start.Add(time.Duration(h) * time.Hour)
		ws := c.WeekStart(now)
		require.Equal(t, time.Monday, ws.Weekday(), "now=%s", now)
		require.Zero(t, ws.Hour())
	}
}

func TestWeekStartPublishDayMatchesFollowingWeek(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)
	friday := at(time.UTC, "2026-10-16", 15, 0)
	// The following Monday is not a publish day, so it resolves to its own week.
	nextMonday := friday.AddDate(0, 0, 3)
	assert.Equal(t, c.WeekStart(nextMonday), c.WeekStart(friday))
}

func TestDisplayDate(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"weekday before cutoff", at(time.UTC, "2026-10-13", 9, 59), "2026-10-13"},
		{"weekday exactly at cutoff", at(time.UTC, "2026-10-13", 10, 0), "2026-10-14"},
		{"thursday after cutoff", at(time.UTC, "2026-10-15", 16, 0), "2026-10-16"},
		{"friday before cutoff", at(time.UTC, "2026-10-16", 9, 0), "2026-10-16"},
		{"friday after cutoff", at(time.UTC, "2026-10-16", 14, 0), "2026-10-19"},
		{"saturday", at(time.UTC, "2026-10-17", 8, 0), "2026-10-19"},
		{"sunday", at(time.UTC, "2026-10-18", 23, 0), "2026-10-19"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDate(c.DisplayDate(tc.now)))
		})
	}
}

func TestFridayAfternoonScenario(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)
	now := at(time.UTC, "2026-10-16", 14, 0)
	assert.Equal(t, "2026-10-19", FormatDate(c.DisplayDate(now)))
	assert.Equal(t, "2026-10-19", FormatDate(c.WeekStart(now)))
}

func TestDisplayDateNeverWeekend(t *testing.T) {
	t.Parallel()
	loc := london(t)
	for _, publish := range []time.Weekday{time.Wednesday, time.Friday, time.Sunday} {
		c, err := New(publish, 10, loc)
		require.NoError(t, err)
		start := at(loc, "2026-03-01", 0, 0)
		for m := 0; m < 60*24*60; m += 37 {
			d := c.DisplayDate(start.Add(time.Duration(m) * time.Minute))
			require.NotEqual(t, time.Saturday, d.Weekday())
			require.NotEqual(t, time.Sunday, d.Weekday())
		}
	}
}

func TestDisplayDateCustomPublishDay(t *testing.T) {
	t.Parallel()
	c, err := New(time.Wednesday, 12, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-14", FormatDate(c.DisplayDate(at(time.UTC, "2026-10-14", 11, 0))))
	assert.Equal(t, "2026-10-19", FormatDate(c.DisplayDate(at(time.UTC, "2026-10-14", 12, 0))))
	assert.Equal(t, "2026-10-19", FormatDate(c.WeekStart(at(time.UTC, "2026-10-14", 1, 0))))
}

func TestSchoolWeek(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)
	days := c.SchoolWeek(at(time.UTC, "2026-10-19", 0, 0))
	require.Len(t, days, 5)
	assert.Equal(t, "2026-10-19", FormatDate(days[0]))
	assert.Equal(t, "2026-10-23", FormatDate(days[4]))
}

func TestNewRejectsBadCutoff(t *testing.T) {
	t.Parallel()
	_, err := New(time.Friday, 24, nil)
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)
	d, err := c.ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	_, err = c.ParseDate("19/10/2026")
	assert.Error(t, err)
}

func TestWeekOf(t *testing.T) {
	t.Parallel()
	c := Default(time.UTC)
	assert.Equal(t, "2026-10-12", FormatDate(c.WeekOf(at(time.UTC, "2026-10-16", 14, 0))))
	assert.Equal(t, "2026-10-12", FormatDate(c.WeekOf(at(time.UTC, "2026-10-18", 9, 0))))
	assert.Equal(t, "2026-10-19", FormatDate(c.WeekOf(at(time.UTC, "2026-10-19", 0, 0))))
}
