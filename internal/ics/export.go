package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

const (
	uidDomain       = "@faith-admin"
	defaultDuration = time.Hour
)

// ExportOptions controls calendar serialization.
type ExportOptions struct {
	ProductID string
	Name      string
	// Location anchors series start times and event dates. Nil means UTC.
	Location *time.Location
	// Duration is the length given to timed events. Zero means one hour.
	Duration time.Duration
	// Now stamps DTSTAMP. Zero means time.Now.
	Now time.Time
}

// ExportResult is a serialized calendar plus what was left out.
type ExportResult struct {
	Body    string
	Series  int
	Events  int
	Skipped []string
}

// ExportCalendar renders a PUBLISH calendar with one VEVENT per active
// recurring series (carrying its RRULE) and one VEVENT per standalone event.
//
//   - Generated events are omitted; their series VEVENT already expands to
//     them in calendar clients.
//   - A series whose rule does not parse is skipped and logged.
//   - Events without EventTime become all-day entries.
func ExportCalendar(series []model.RecurringEvent, events []model.Event, opts ExportOptions) ExportResult {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	dur := opts.Duration
	if dur <= 0 {
		dur = defaultDuration
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	if opts.ProductID != "" {
		cal.SetProductId(opts.ProductID)
	}
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetName(opts.Name)
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	var res ExportResult
	for _, s := range series {
		if s.Status != model.SeriesActive {
			continue
		}
		rule, err := recurrence.Parse(s.Rule)
		if err != nil {
			appLog.Error("ics export: skipping series with invalid rule", err, "series", s.ID, "rule", s.Rule)
			res.Skipped = append(res.Skipped, s.ID.String())
			continue
		}

		ve := cal.AddEvent(s.ID.String() + uidDomain)
		ve.SetDtStampTime(now)
		setCommon(ve, s.Title, s.Description, s.Location, s.FeaturedImageURL, s.CreatedAt, s.UpdatedAt)
		start := s.DTStart.In(loc)
		if h, m, ok := model.ParseClock(s.EventTime); ok {
			start = time.Date(start.Year(), start.Month(), start.Day(), h, m, 0, 0, loc)
			ve.SetStartAt(start)
			ve.SetEndAt(start.Add(dur))
		} else {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
		}
		ve.AddRrule(rule.RFC5545(loc))
		ve.SetStatus(ical.ObjectStatusConfirmed)
		res.Series++
	}

	for _, e := range events {
		if e.Generated() {
			continue
		}
		ve := cal.AddEvent(e.ID.String() + uidDomain)
		ve.SetDtStampTime(now)
		setCommon(ve, e.Title, e.Description, e.Location, e.FeaturedImageURL, e.CreatedAt, e.UpdatedAt)
		start, allDay := e.Start(loc)
		if allDay {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(start)
			ve.SetEndAt(start.Add(dur))
		}
		if e.Status == model.EventCancelled {
			ve.SetStatus(ical.ObjectStatusCancelled)
		} else {
			ve.SetStatus(ical.ObjectStatusConfirmed)
		}
		res.Events++
	}

	res.Body = cal.Serialize()
	appLog.Debug("ics export completed", "series", res.Series, "events", res.Events, "skipped", len(res.Skipped))
	return res
}

func setCommon(ve *ical.VEvent, title, description, location, url string, created, updated time.Time) {
	ve.SetSummary(title)
	if description != "" {
		ve.SetDescription(description)
	}
	if location != "" {
		ve.SetLocation(location)
	}
	if url != "" {
		ve.SetURL(url)
	}
	if !created.IsZero() {
		ve.SetCreatedTime(created)
	}
	if !updated.IsZero() {
		ve.SetModifiedAt(updated)
	}
}
