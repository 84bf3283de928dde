package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) Date { return Date{Year: y, Month: m, Day: day} }

func TestRoundTrip(t *testing.T) {
	rules := []Options{
		{Frequency: Daily},
		{Frequency: Daily, Interval: 3, Termination: After(7)},
		{Frequency: Weekly},
		{Frequency: Weekly, Interval: 2, Weekdays: []time.Weekday{time.Sunday, time.Monday, time.Wednesday}},
		{Frequency: Weekly, Weekdays: []time.Weekday{time.Friday}, Termination: Until(d(2024, time.December, 31))},
		{Frequency: Monthly, MonthDay: 31, Termination: After(12)},
		{Frequency: Monthly, Interval: 6},
		{Frequency: Yearly, Termination: Until(d(2030, time.February, 28))},
	}
	for _, o := range rules {
		r := MustNew(o)
		t.Run(r.String(), func(t *testing.T) {
			parsed, err := Parse(r.String())
			require.NoError(t, err)
			assert.Equal(t, r, parsed)
			assert.True(t, r == parsed)
		})
	}
}

func TestSerializeCanonical(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"daily default interval", Options{Frequency: Daily}, "FREQ=DAILY;INTERVAL=1"},
		{"weekdays mon first", Options{Frequency: Weekly, Weekdays: []time.Weekday{time.Sunday, time.Monday}}, "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,SU"},
		{"monthly count", Options{Frequency: Monthly, Interval: 2, MonthDay: 15, Termination: After(4)}, "FREQ=MONTHLY;INTERVAL=2;BYMONTHDAY=15;COUNT=4"},
		{"until iso date", Options{Frequency: Yearly, Termination: Until(d(2026, time.March, 1))}, "FREQ=YEARLY;INTERVAL=1;UNTIL=2026-03-01"},
		{"weekdays dropped for daily", Options{Frequency: Daily, Weekdays: []time.Weekday{time.Monday}}, "FREQ=DAILY;INTERVAL=1"},
		{"month day dropped for weekly", Options{Frequency: Weekly, MonthDay: 3}, "FREQ=WEEKLY;INTERVAL=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustNew(tt.opts).String())
		})
	}
}

func TestParseAcceptedForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Options
	}{
		{"rrule prefix", "RRULE:FREQ=WEEKLY;BYDAY=SU", Options{Frequency: Weekly, Weekdays: []time.Weekday{time.Sunday}}},
		{"dtstart block", "DTSTART:20240101T090000Z\nRRULE:FREQ=DAILY;COUNT=5", Options{Frequency: Daily, Termination: After(5)}},
		{"lower case keys", "freq=monthly;bymonthday=10", Options{Frequency: Monthly, MonthDay: 10}},
		{"unknown keys ignored", "FREQ=DAILY;WKST=MO;X-NAME=foo", Options{Frequency: Daily}},
		{"repeated unknown key", "FREQ=DAILY;X-FOO=1;X-FOO=2", Options{Frequency: Daily}},
		{"trailing semicolon", "FREQ=YEARLY;INTERVAL=2;", Options{Frequency: Yearly, Interval: 2}},
		{"until basic date", "FREQ=DAILY;UNTIL=20240131", Options{Frequency: Daily, Termination: Until(d(2024, time.January, 31))}},
		{"until utc datetime", "FREQ=DAILY;UNTIL=20240131T235959Z", Options{Frequency: Daily, Termination: Until(d(2024, time.January, 31))}},
		{"until floating datetime", "FREQ=DAILY;UNTIL=20240131T120000", Options{Frequency: Daily, Termination: Until(d(2024, time.January, 31))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, MustNew(tt.want), got)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"INTERVAL=2",
		"FREQ=HOURLY",
		"FREQ=DAILY;COUNT=3;UNTIL=2024-01-01",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=DAILY;INTERVAL=-1",
		"FREQ=DAILY;INTERVAL=two",
		"FREQ=DAILY;COUNT=0",
		"FREQ=WEEKLY;BYDAY=MO,XX",
		"FREQ=WEEKLY;BYDAY=1MO",
		"FREQ=DAILY;UNTIL=tomorrow",
		"FREQ=DAILY;GARBAGE",
		"FREQ=DAILY;FREQ=WEEKLY",
		"FREQ=DAILY\nFREQ=WEEKLY",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			var me *MalformedRuleError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, in, me.Input)
		})
	}
}

func TestOptionsRebuildRule(t *testing.T) {
	for _, in := range []string{
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10",
		"FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=31;UNTIL=20241231",
		"FREQ=YEARLY;INTERVAL=1",
	} {
		r, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, r, MustNew(r.Options()), in)
	}
}

func TestParseInvalidMonthDay(t *testing.T) {
	for _, in := range []string{"FREQ=MONTHLY;BYMONTHDAY=32", "FREQ=MONTHLY;BYMONTHDAY=0", "FREQ=MONTHLY;BYMONTHDAY=-1"} {
		_, err := Parse(in)
		var de *InvalidDayOfMonthError
		require.ErrorAs(t, err, &de, in)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Frequency: Monthly, MonthDay: 32})
	var de *InvalidDayOfMonthError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 32, de.Day)

	var me *MalformedRuleError
	_, err = New(Options{})
	assert.ErrorAs(t, err, &me)
	_, err = New(Options{Frequency: Daily, Interval: -2})
	assert.ErrorAs(t, err, &me)
	_, err = New(Options{Frequency: Daily, Termination: After(0)})
	assert.ErrorAs(t, err, &me)
	_, err = New(Options{Frequency: Daily, Termination: Termination{Mode: EndUntilDate}})
	assert.ErrorAs(t, err, &me)
	_, err = New(Options{Frequency: Weekly, Weekdays: []time.Weekday{time.Weekday(9)}})
	assert.ErrorAs(t, err, &me)
}

func TestRFC5545(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	tests := []struct {
		opts Options
		loc  *time.Location
		want string
	}{
		{Options{Frequency: Weekly, Weekdays: []time.Weekday{time.Sunday}, Termination: Until(d(2024, time.January, 31))}, time.UTC, "FREQ=WEEKLY;BYDAY=SU;UNTIL=20240131T235959Z"},
		{Options{Frequency: Daily, Termination: Until(d(2024, time.January, 31))}, loc, "FREQ=DAILY;UNTIL=20240131T182959Z"},
		{Options{Frequency: Monthly, Interval: 2, MonthDay: 5, Termination: After(3)}, time.UTC, "FREQ=MONTHLY;INTERVAL=2;BYMONTHDAY=5;COUNT=3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MustNew(tt.opts).RFC5545(tt.loc))
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FREQ=DAILY;INTERVAL=1", "Daily"},
		{"FREQ=DAILY;INTERVAL=3", "Every 3 days"},
		{"FREQ=WEEKLY;INTERVAL=1", "Weekly"},
		{"FREQ=WEEKLY;INTERVAL=1;BYDAY=SU,MO", "Weekly on Mon, Sun"},
		{"FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH", "Every 2 weeks on Tue, Thu"},
		{"FREQ=MONTHLY;INTERVAL=1;BYMONTHDAY=15", "Monthly"},
		{"FREQ=MONTHLY;INTERVAL=6", "Every 6 months"},
		{"FREQ=YEARLY", "Yearly"},
		{"FREQ=YEARLY;INTERVAL=4", "Every 4 years"},
		{"not a rule", "not a rule"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanizeText(tt.in), tt.in)
	}
}

func TestWeekdaySet(t *testing.T) {
	s := NewWeekdaySet(time.Sunday, time.Wednesday, time.Weekday(12))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []time.Weekday{time.Wednesday, time.Sunday}, s.Days())
	s = s.Toggle(time.Sunday).Toggle(time.Monday)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, s.Days())
	assert.True(t, WeekdaySet(0).IsEmpty())
}
