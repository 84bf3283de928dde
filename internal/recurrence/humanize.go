package recurrence

import (
	"fmt"
	"strings"
	"time"
)

var shortDayNames = map[time.Weekday]string{
	time.Monday:    "Mon",
	time.Tuesday:   "Tue",
	time.Wednesday: "Wed",
	time.Thursday:  "Thu",
	time.Friday:    "Fri",
	time.Saturday:  "Sat",
	time.Sunday:    "Sun",
}

// Humanize renders r as a short English phrase such as "Weekly on Mon, Wed"
// or "Every 2 months".
func Humanize(r Rule) string {
	n := r.Interval()
	switch r.Frequency() {
	case Daily:
		return every(n, "Daily", "days")
	case Weekly:
		s := every(n, "Weekly", "weeks")
		if days := r.Weekdays(); len(days) > 0 {
			names := make([]string, 0, len(days))
			for _, d := range days {
				names = append(names, shortDayNames[d])
			}
			s += " on " + strings.Join(names, ", ")
		}
		return s
	case Monthly:
		return every(n, "Monthly", "months")
	case Yearly:
		return every(n, "Yearly", "years")
	default:
		return ""
	}
}

// HumanizeText humanizes rule text, returning the text unchanged when it does
// not parse.
func HumanizeText(text string) string {
	r, err := Parse(text)
	if err != nil {
		return text
	}
	return Humanize(r)
}

func every(n int, single, unit string) string {
	if n <= 1 {
		return single
	}
	return fmt.Sprintf("Every %d %s", n, unit)
}
