package recurrence

import "fmt"

// MalformedRuleError reports rule text or options that violate the rule
// grammar: missing or unknown FREQ, COUNT together with UNTIL, a non-positive
// INTERVAL or COUNT, an unknown BYDAY code.
type MalformedRuleError struct {
	Input  string
	Reason string
}

func (e *MalformedRuleError) Error() string {
	if e.Input == "" {
		return "recurrence: malformed rule: " + e.Reason
	}
	return fmt.Sprintf("recurrence: malformed rule %q: %s", e.Input, e.Reason)
}

// InvalidDayOfMonthError is returned when a month day outside 1..31 is used to
// construct a rule.
type InvalidDayOfMonthError struct {
	Day int
}

func (e *InvalidDayOfMonthError) Error() string {
	return fmt.Sprintf("recurrence: day of month %d is outside 1..31", e.Day)
}

// UnboundedGenerationError is returned by Generate when the rule never ends and
// the caller supplied no limit. It signals a programming error in the caller.
type UnboundedGenerationError struct {
	Rule string
}

func (e *UnboundedGenerationError) Error() string {
	return fmt.Sprintf("recurrence: rule %q never terminates and no generation limit was given", e.Rule)
}

func malformed(reason string, args ...any) *MalformedRuleError {
	if len(args) > 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return &MalformedRuleError{Reason: reason}
}
