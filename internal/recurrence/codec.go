package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// recognizedKeys are the rule parts Parse interprets. Any other key is
// ignored.
var recognizedKeys = map[string]bool{
	"FREQ":       true,
	"INTERVAL":   true,
	"BYDAY":      true,
	"BYMONTHDAY": true,
	"COUNT":      true,
	"UNTIL":      true,
}

// Parse decodes rule text of the form
//
//	FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=10
//
// Behavior:
//   - An optional "RRULE:" prefix is accepted, as is a multi-line
//     "DTSTART:...\nRRULE:..." block; only the RRULE line is read.
//   - Keys are case-insensitive. Unknown keys are ignored.
//   - UNTIL accepts 2006-01-02, 20060102 and 20060102T150405[Z]; only the date
//     part is kept.
//   - A missing FREQ, COUNT together with UNTIL, or an invalid value returns a
//     *MalformedRuleError. BYMONTHDAY outside 1..31 returns an
//     *InvalidDayOfMonthError.
func Parse(text string) (Rule, error) {
	r, err := parse(text)
	if err != nil {
		var me *MalformedRuleError
		if errors.As(err, &me) && me.Input == "" {
			me.Input = text
		}
		return Rule{}, err
	}
	return r, nil
}

func parse(text string) (Rule, error) {
	body, err := ruleLine(text)
	if err != nil {
		return Rule{}, err
	}

	var (
		o        Options
		seen     = make(map[string]bool)
		hasCount bool
		hasUntil bool
		count    int
		until    Date
	)

	for _, part := range strings.Split(body, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, malformed("%q is not a KEY=VALUE pair", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if !recognizedKeys[key] {
			continue
		}
		if seen[key] {
			return Rule{}, malformed("duplicate %s", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			f := Frequency(strings.ToUpper(value))
			if !f.Valid() {
				return Rule{}, malformed("unknown FREQ %q", value)
			}
			o.Frequency = f
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Rule{}, malformed("INTERVAL must be a positive integer, got %q", value)
			}
			o.Interval = n
		case "BYDAY":
			days, err := parseWeekdays(value)
			if err != nil {
				return Rule{}, err
			}
			o.Weekdays = days
		case "BYMONTHDAY":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Rule{}, malformed("BYMONTHDAY must be an integer, got %q", value)
			}
			if n < 1 || n > 31 {
				return Rule{}, &InvalidDayOfMonthError{Day: n}
			}
			o.MonthDay = n
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Rule{}, malformed("COUNT must be a positive integer, got %q", value)
			}
			hasCount, count = true, n
		case "UNTIL":
			d, err := parseUntil(value)
			if err != nil {
				return Rule{}, err
			}
			hasUntil, until = true, d
		}
	}

	if o.Frequency == "" {
		return Rule{}, malformed("FREQ is required")
	}
	switch {
	case hasCount && hasUntil:
		return Rule{}, malformed("COUNT and UNTIL are mutually exclusive")
	case hasCount:
		o.Termination = After(count)
	case hasUntil:
		o.Termination = Until(until)
	default:
		o.Termination = Never()
	}
	return New(o)
}

// ruleLine extracts the RRULE body from text.
func ruleLine(text string) (string, error) {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	var candidates []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "RRULE:") {
			return strings.TrimSpace(line[len("RRULE:"):]), nil
		}
		if strings.HasPrefix(upper, "DTSTART") || strings.HasPrefix(upper, "EXDATE") || strings.HasPrefix(upper, "RDATE") {
			continue
		}
		candidates = append(candidates, line)
	}
	switch len(candidates) {
	case 0:
		return "", malformed("empty rule")
	case 1:
		return candidates[0], nil
	default:
		return "", malformed("expected a single RRULE line, got %d lines", len(candidates))
	}
}

func parseWeekdays(value string) ([]time.Weekday, error) {
	if value == "" {
		return nil, nil
	}
	var days []time.Weekday
	for _, code := range strings.Split(value, ",") {
		d, ok := weekdayFromCode(code)
		if !ok {
			return nil, malformed("unknown BYDAY code %q", strings.TrimSpace(code))
		}
		days = append(days, d)
	}
	return days, nil
}

var untilLayouts = []string{
	"2006-01-02",
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

func parseUntil(value string) (Date, error) {
	for _, layout := range untilLayouts {
		if len(value) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, value); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, malformed("UNTIL %q is not a date", value)
}

// String serializes r in canonical form:
//
//	FREQ=...;INTERVAL=n[;BYDAY=MO,..][;BYMONTHDAY=n][;COUNT=n|;UNTIL=YYYY-MM-DD]
//
// Parse(r.String()) == r holds for every valid rule.
func (r Rule) String() string {
	if r.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(r.freq))
	fmt.Fprintf(&b, ";INTERVAL=%d", r.interval)
	if !r.weekdays.IsEmpty() {
		b.WriteString(";BYDAY=")
		b.WriteString(weekdayList(r.weekdays))
	}
	if r.monthDay > 0 {
		fmt.Fprintf(&b, ";BYMONTHDAY=%d", r.monthDay)
	}
	switch r.term.Mode {
	case EndAfterCount:
		fmt.Fprintf(&b, ";COUNT=%d", r.term.Count)
	case EndUntilDate:
		b.WriteString(";UNTIL=")
		b.WriteString(r.term.Until.String())
	}
	return b.String()
}

// RFC5545 renders r as an iCalendar RRULE value. UNTIL becomes the last second
// of the until day in loc, expressed in UTC.
func (r Rule) RFC5545(loc *time.Location) string {
	if r.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(r.freq))
	if r.interval > 1 {
		fmt.Fprintf(&b, ";INTERVAL=%d", r.interval)
	}
	if !r.weekdays.IsEmpty() {
		b.WriteString(";BYDAY=")
		b.WriteString(weekdayList(r.weekdays))
	}
	if r.monthDay > 0 {
		fmt.Fprintf(&b, ";BYMONTHDAY=%d", r.monthDay)
	}
	switch r.term.Mode {
	case EndAfterCount:
		fmt.Fprintf(&b, ";COUNT=%d", r.term.Count)
	case EndUntilDate:
		b.WriteString(";UNTIL=")
		b.WriteString(r.term.Until.endOfDay(loc).UTC().Format("20060102T150405Z"))
	}
	return b.String()
}

func weekdayList(s WeekdaySet) string {
	codes := make([]string, 0, s.Len())
	for _, d := range s.Days() {
		codes = append(codes, weekdayCodes[d])
	}
	return strings.Join(codes, ",")
}
