package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "github.com/hariharan888/faith-admin/internal/log"
)

// MaxOccurrences bounds the occurrences a single Sequence emits. Reaching it
// marks the sequence as truncated. Occurrences skipped before Limit.From do
// not count.
const MaxOccurrences = 5000

// Limit is a caller-side bound on generation. Count 0 means no count bound and
// a zero Through means no date bound. From and Through are inclusive. From
// only skips occurrences, so rule COUNT still counts from the start.
type Limit struct {
	Count   int
	From    Date
	Through Date
}

// NoLimit leaves termination to the rule.
var NoLimit = Limit{}

// MaxCount limits generation to the first n occurrences.
func MaxCount(n int) Limit { return Limit{Count: n} }

// Through limits generation to occurrences on or before d.
func Through(d Date) Limit { return Limit{Through: d} }

func (l Limit) IsZero() bool { return l == Limit{} }

// Bounded reports whether the limit alone ends generation.
func (l Limit) Bounded() bool { return l.Count > 0 || !l.Through.IsZero() }

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Sequence is a lazy, strictly increasing series of occurrences. It is not
// safe for concurrent use.
type Sequence struct {
	rule    Rule
	dtstart time.Time
	limit   Limit
	rr      *rrule.RRule

	next      rrule.Next
	emitted   int
	done      bool
	truncated bool
}

// Generate returns the occurrences of rule anchored at dtstart. Occurrences
// keep dtstart's clock time and location, and the dates of Until and
// limit.Through are read in that location.
//
// Behavior:
//   - WEEKLY without weekdays repeats dtstart's weekday; MONTHLY without a
//     month day repeats dtstart's day.
//   - Months lacking the target day (e.g. the 31st) are skipped, as are
//     Feb 29 anniversaries in non-leap years.
//   - A rule that never ends combined with a limit that has neither Count
//     nor Through returns *UnboundedGenerationError.
func Generate(rule Rule, dtstart time.Time, limit Limit) (*Sequence, error) {
	if rule.IsZero() {
		return nil, malformed("empty rule")
	}
	if limit.Count < 0 {
		return nil, errors.New("recurrence: negative limit count")
	}
	if !rule.Bounded() && !limit.Bounded() {
		return nil, &UnboundedGenerationError{Rule: rule.String()}
	}
	if dtstart.IsZero() {
		return nil, errors.New("recurrence: start time is required")
	}

	opt := rrule.ROption{
		Freq:     rruleFreq[rule.freq],
		Dtstart:  dtstart,
		Interval: rule.interval,
		Wkst:     rrule.MO,
	}
	for _, d := range rule.Weekdays() {
		opt.Byweekday = append(opt.Byweekday, rruleDay[d])
	}
	if rule.monthDay > 0 {
		opt.Bymonthday = []int{rule.monthDay}
	}
	switch rule.term.Mode {
	case EndAfterCount:
		opt.Count = rule.term.Count
	case EndUntilDate:
		opt.Until = rule.term.Until.endOfDay(dtstart.Location())
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build %s: %w", rule, err)
	}

	s := &Sequence{rule: rule, dtstart: dtstart, limit: limit, rr: rr}
	s.Reset()
	return s, nil
}

// Next returns the next occurrence, or false once the series is exhausted.
func (s *Sequence) Next() (time.Time, bool) {
	if s.done {
		return time.Time{}, false
	}
	if s.limit.Count > 0 && s.emitted >= s.limit.Count {
		s.done = true
		return time.Time{}, false
	}

	var t time.Time
	for {
		var ok bool
		t, ok = s.next()
		if !ok {
			s.done = true
			return time.Time{}, false
		}
		day := DateOf(t)
		if !s.limit.Through.IsZero() && day.After(s.limit.Through) {
			s.done = true
			return time.Time{}, false
		}
		if s.limit.From.IsZero() || !day.Before(s.limit.From) {
			break
		}
	}
	if s.emitted >= MaxOccurrences {
		s.done = true
		s.truncated = true
		appLog.Error("occurrence cap reached, truncating series",
			fmt.Errorf("more than %d occurrences", MaxOccurrences),
			"rule", s.rule.String(),
			"dtstart", s.dtstart.Format(time.RFC3339),
			"limit", MaxOccurrences,
		)
		return time.Time{}, false
	}

	s.emitted++
	return t, true
}

// Reset restarts the series from dtstart.
func (s *Sequence) Reset() {
	s.next = s.rr.Iterator()
	s.emitted = 0
	s.done = false
	s.truncated = false
}

// Take returns up to n further occurrences.
func (s *Sequence) Take(n int) []time.Time {
	out := make([]time.Time, 0, min(n, 64))
	for len(out) < n {
		t, ok := s.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

// All drains the remaining occurrences.
func (s *Sequence) All() []time.Time {
	var out []time.Time
	for {
		t, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// Truncated reports whether the series stopped at MaxOccurrences while more
// occurrences were due.
func (s *Sequence) Truncated() bool { return s.truncated }

// Dates returns the calendar dates of all remaining occurrences.
func (s *Sequence) Dates() []Date {
	var out []Date
	for {
		t, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, DateOf(t))
	}
}
