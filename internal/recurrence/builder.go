package recurrence

import (
	"errors"
	"fmt"
	"time"

	appLog "github.com/hariharan888/faith-admin/internal/log"
)

// PreviewCount is the default number of occurrences a Builder previews.
const PreviewCount = 5

const (
	defaultBuilderCount      = 10
	defaultBuilderUntilMonth = 3
)

// draft is the editable state behind a Builder. The count and until
// parameters are remembered even while another end mode is selected.
type draft struct {
	freq     Frequency
	interval int
	weekdays WeekdaySet
	monthDay int
	endMode  EndMode
	count    int
	until    Date
	start    time.Time
}

func defaultDraft(start time.Time) draft {
	return draft{
		freq:     Weekly,
		interval: 1,
		endMode:  EndNever,
		count:    defaultBuilderCount,
		until:    DateOf(start.AddDate(0, defaultBuilderUntilMonth, 0)),
		start:    start,
	}
}

func (d draft) termination() Termination {
	switch d.endMode {
	case EndAfterCount:
		return After(d.count)
	case EndUntilDate:
		return Until(d.until)
	default:
		return Never()
	}
}

func (d draft) rule() (Rule, error) {
	o := Options{
		Frequency:   d.freq,
		Interval:    d.interval,
		Termination: d.termination(),
	}
	if d.freq == Weekly {
		o.Weekdays = d.weekdays.Days()
	}
	if d.freq == Monthly {
		o.MonthDay = d.monthDay
	}
	return New(o)
}

// Builder holds an interactive editing session for one rule. Every setter
// validates its input first; on success the rule and its preview are rebuilt
// together, on failure nothing changes. A Builder is meant to be driven by a
// single goroutine.
type Builder struct {
	d        draft
	rule     Rule
	preview  []time.Time
	warning  error
	previewN int
	onChange func(ruleText string, dtstart time.Time)
}

// NewBuilder starts a session with the defaults WEEKLY, interval 1, no
// weekdays and no end. A zero start means now.
func NewBuilder(start time.Time) *Builder {
	if start.IsZero() {
		start = time.Now()
	}
	b := &Builder{previewN: PreviewCount}
	if err := b.apply(defaultDraft(start)); err != nil {
		// the default draft is always valid
		panic(err)
	}
	return b
}

// SetPreviewCount changes how many occurrences Preview returns.
func (b *Builder) SetPreviewCount(n int) error {
	if n < 1 {
		return fmt.Errorf("recurrence: preview count must be positive, got %d", n)
	}
	old := b.previewN
	b.previewN = n
	if err := b.apply(b.d); err != nil {
		b.previewN = old
		return err
	}
	return nil
}

// OnChange registers fn to be called after every successful change with the
// serialized rule and the start date.
func (b *Builder) OnChange(fn func(ruleText string, dtstart time.Time)) {
	b.onChange = fn
}

func (b *Builder) SetFrequency(f Frequency) error {
	if !f.Valid() {
		return malformed("unknown FREQ %q", string(f))
	}
	d := b.d
	d.freq = f
	return b.apply(d)
}

func (b *Builder) SetInterval(n int) error {
	if n < 1 {
		return malformed("INTERVAL must be positive, got %d", n)
	}
	d := b.d
	d.interval = n
	return b.apply(d)
}

// ToggleWeekday adds or removes day from the weekly selection.
func (b *Builder) ToggleWeekday(day time.Weekday) error {
	if !validWeekday(day) {
		return malformed("invalid weekday %d", int(day))
	}
	d := b.d
	d.weekdays = d.weekdays.Toggle(day)
	return b.apply(d)
}

// SetMonthDay selects the day of month for MONTHLY rules. 0 follows the start
// date's day.
func (b *Builder) SetMonthDay(n int) error {
	if n < 0 || n > 31 {
		return &InvalidDayOfMonthError{Day: n}
	}
	d := b.d
	d.monthDay = n
	return b.apply(d)
}

// SetTermination selects the end mode. The count or until parameter it
// carries is remembered for later mode switches.
func (b *Builder) SetTermination(t Termination) error {
	t, err := t.normalize()
	if err != nil {
		return err
	}
	d := b.d
	d.endMode = t.Mode
	switch t.Mode {
	case EndAfterCount:
		d.count = t.Count
	case EndUntilDate:
		d.until = t.Until
	}
	return b.apply(d)
}

func (b *Builder) SetStartDate(start time.Time) error {
	if start.IsZero() {
		return errors.New("recurrence: start date is required")
	}
	d := b.d
	d.start = start
	return b.apply(d)
}

// LoadFromExisting replaces the session with an existing rule. When ruleText
// does not parse, the session falls back to the defaults, the parse error is
// kept as Warning and returned, and the builder stays usable. An empty
// ruleText loads the defaults without a warning. A zero dtstart keeps the
// current start date.
func (b *Builder) LoadFromExisting(ruleText string, dtstart time.Time) error {
	start := dtstart
	if start.IsZero() {
		start = b.d.start
	}

	if ruleText == "" {
		b.warning = nil
		return b.apply(defaultDraft(start))
	}

	r, err := Parse(ruleText)
	if err != nil {
		if applyErr := b.apply(defaultDraft(start)); applyErr != nil {
			return applyErr
		}
		b.warning = fmt.Errorf("recurrence: existing rule ignored, using defaults: %w", err)
		appLog.Warn("failed to load existing rule", "rule", ruleText, "err", err)
		return b.warning
	}

	o := r.Options()
	d := defaultDraft(start)
	d.freq = o.Frequency
	d.interval = o.Interval
	d.weekdays = NewWeekdaySet(o.Weekdays...)
	d.monthDay = o.MonthDay
	d.endMode = o.Termination.Mode
	switch o.Termination.Mode {
	case EndAfterCount:
		d.count = o.Termination.Count
	case EndUntilDate:
		d.until = o.Termination.Until
	}
	if err := b.apply(d); err != nil {
		return err
	}
	b.warning = nil
	return nil
}

// apply commits d after rebuilding its rule and preview.
func (b *Builder) apply(d draft) error {
	r, err := d.rule()
	if err != nil {
		return err
	}
	seq, err := Generate(r, d.start, MaxCount(b.previewN))
	if err != nil {
		return err
	}
	preview := seq.All()

	b.d = d
	b.rule = r
	b.preview = preview
	if b.onChange != nil {
		b.onChange(r.String(), d.start)
	}
	return nil
}

// Rule returns the committed rule.
func (b *Builder) Rule() Rule { return b.rule }

// RuleText returns the committed rule serialized.
func (b *Builder) RuleText() string { return b.rule.String() }

// Preview returns the next occurrences of the committed rule from the start
// date.
func (b *Builder) Preview() []time.Time {
	out := make([]time.Time, len(b.preview))
	copy(out, b.preview)
	return out
}

func (b *Builder) StartDate() time.Time { return b.d.start }

func (b *Builder) Frequency() Frequency { return b.d.freq }

func (b *Builder) Interval() int { return b.d.interval }

func (b *Builder) Weekdays() []time.Weekday { return b.d.weekdays.Days() }

func (b *Builder) MonthDay() int { return b.d.monthDay }

// Termination returns the selected end mode with the remembered count and
// until parameters filled in.
func (b *Builder) Termination() Termination {
	return Termination{Mode: b.d.endMode, Count: b.d.count, Until: b.d.until}
}

// Warning returns the last non-fatal problem, if any.
func (b *Builder) Warning() error { return b.warning }
