// Package recurrence models repeating schedules: an immutable Rule, its text
// codec, an occurrence generator and an interactive Builder used by the admin
// form.
package recurrence

import (
	"strings"
	"time"
)

// Frequency is the base period of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// WeekdaySet is a set of weekdays stored as a bitmask indexed by time.Weekday.
type WeekdaySet uint8

// weekOrder is the canonical Monday-first order used for serialization.
var weekOrder = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// NewWeekdaySet builds a set from the given days. Days outside
// Sunday..Saturday are ignored.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func validWeekday(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return validWeekday(d) && s&(1<<uint(d)) != 0
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	if !validWeekday(d) {
		return s
	}
	return s | 1<<uint(d)
}

func (s WeekdaySet) Without(d time.Weekday) WeekdaySet {
	if !validWeekday(d) {
		return s
	}
	return s &^ (1 << uint(d))
}

// Toggle adds d when absent and removes it when present.
func (s WeekdaySet) Toggle(d time.Weekday) WeekdaySet {
	if s.Has(d) {
		return s.Without(d)
	}
	return s.With(d)
}

func (s WeekdaySet) IsEmpty() bool { return s == 0 }

func (s WeekdaySet) Len() int {
	n := 0
	for _, d := range weekOrder {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days returns the members in Monday..Sunday order.
func (s WeekdaySet) Days() []time.Weekday {
	if s.IsEmpty() {
		return nil
	}
	out := make([]time.Weekday, 0, s.Len())
	for _, d := range weekOrder {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// EndMode selects how a rule terminates.
type EndMode int

const (
	EndNever EndMode = iota
	EndAfterCount
	EndUntilDate
)

func (m EndMode) String() string {
	switch m {
	case EndAfterCount:
		return "count"
	case EndUntilDate:
		return "until"
	default:
		return "never"
	}
}

// Termination is exactly one of Never, After(count) or Until(date).
type Termination struct {
	Mode  EndMode
	Count int
	Until Date
}

// Never returns an open-ended termination.
func Never() Termination { return Termination{Mode: EndNever} }

// After terminates a rule after n occurrences.
func After(n int) Termination { return Termination{Mode: EndAfterCount, Count: n} }

// Until terminates a rule after the last occurrence on or before d.
func Until(d Date) Termination { return Termination{Mode: EndUntilDate, Until: d} }

// normalize drops the fields the mode does not use.
func (t Termination) normalize() (Termination, error) {
	switch t.Mode {
	case EndNever:
		return Never(), nil
	case EndAfterCount:
		if t.Count < 1 {
			return Termination{}, malformed("COUNT must be positive, got %d", t.Count)
		}
		return After(t.Count), nil
	case EndUntilDate:
		if t.Until.IsZero() {
			return Termination{}, malformed("UNTIL date is required")
		}
		return Until(t.Until), nil
	default:
		return Termination{}, malformed("unknown end mode %d", int(t.Mode))
	}
}

// Options are the inputs to New. Interval 0 means 1, MonthDay 0 means "the
// day of the start date".
type Options struct {
	Frequency   Frequency
	Interval    int
	Weekdays    []time.Weekday
	MonthDay    int
	Termination Termination
}

// Rule is an immutable, validated recurrence rule. Rules built from the same
// schedule compare equal with ==.
type Rule struct {
	freq     Frequency
	interval int
	weekdays WeekdaySet
	monthDay int
	term     Termination
}

// New validates o and returns the corresponding rule. Weekdays are kept only
// for Weekly and MonthDay only for Monthly.
func New(o Options) (Rule, error) {
	if !o.Frequency.Valid() {
		if o.Frequency == "" {
			return Rule{}, malformed("FREQ is required")
		}
		return Rule{}, malformed("unknown FREQ %q", string(o.Frequency))
	}

	interval := o.Interval
	if interval == 0 {
		interval = 1
	}
	if interval < 0 {
		return Rule{}, malformed("INTERVAL must be positive, got %d", o.Interval)
	}

	if o.MonthDay < 0 || o.MonthDay > 31 {
		return Rule{}, &InvalidDayOfMonthError{Day: o.MonthDay}
	}

	var days WeekdaySet
	for _, d := range o.Weekdays {
		if !validWeekday(d) {
			return Rule{}, malformed("invalid weekday %d", int(d))
		}
		days = days.With(d)
	}

	term, err := o.Termination.normalize()
	if err != nil {
		return Rule{}, err
	}

	r := Rule{freq: o.Frequency, interval: interval, term: term}
	switch o.Frequency {
	case Weekly:
		r.weekdays = days
	case Monthly:
		r.monthDay = o.MonthDay
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(o Options) Rule {
	r, err := New(o)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rule) IsZero() bool { return r == Rule{} }

func (r Rule) Frequency() Frequency { return r.freq }

func (r Rule) Interval() int { return r.interval }

// Weekdays returns the BYDAY selection in Monday..Sunday order. Empty means
// the weekday of the start date.
func (r Rule) Weekdays() []time.Weekday { return r.weekdays.Days() }

func (r Rule) WeekdaySet() WeekdaySet { return r.weekdays }

// MonthDay returns the BYMONTHDAY selection, or 0 when unset.
func (r Rule) MonthDay() int { return r.monthDay }

func (r Rule) Termination() Termination { return r.term }

// Options returns options that rebuild r through New.
func (r Rule) Options() Options {
	return Options{
		Frequency:   r.freq,
		Interval:    r.interval,
		Weekdays:    r.Weekdays(),
		MonthDay:    r.monthDay,
		Termination: r.term,
	}
}

// Bounded reports whether the rule itself ends.
func (r Rule) Bounded() bool { return r.term.Mode != EndNever }

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

func weekdayFromCode(code string) (time.Weekday, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for d, c := range weekdayCodes {
		if c == code {
			return d, true
		}
	}
	return 0, false
}

// ParseWeekday reads a two-letter weekday code such as "MO".
func ParseWeekday(code string) (time.Weekday, error) {
	d, ok := weekdayFromCode(code)
	if !ok {
		return 0, malformed("unknown weekday %q", code)
	}
	return d, nil
}
