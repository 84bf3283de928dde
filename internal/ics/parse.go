package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

// unsupportedRuleParts are RRULE parts whose meaning cannot be kept by the
// supported rule subset. Rules carrying them are skipped rather than
// imported with a different schedule.
var unsupportedRuleParts = []string{
	"BYSETPOS", "BYMONTH", "BYYEARDAY", "BYWEEKNO",
	"BYHOUR", "BYMINUTE", "BYSECOND", "BYEASTER",
}

// Draft is a recurring series read from a calendar, ready to be stored.
type Draft struct {
	UID    string
	Series model.RecurringEvent
}

// Skipped records a VEVENT that could not be imported.
type Skipped struct {
	UID    string
	Reason string
}

// ParseResult is the outcome of ParseRecurring.
type ParseResult struct {
	Drafts  []Draft
	Skipped []Skipped
}

// ParseRecurring reads the VEVENTs of body that carry an RRULE and converts
// them into draft recurring series anchored in loc.
//
//   - VEVENTs without RRULE, and overrides (RECURRENCE-ID), are ignored.
//   - Rules outside the supported subset are reported in Skipped and logged.
//   - Floating DTSTART values (no TZID, no Z) are read in loc.
func ParseRecurring(body []byte, loc *time.Location) (ParseResult, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return ParseResult{}, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return ParseResult{}, fmt.Errorf("ics: parse: %w", err)
	}

	var res ParseResult
	for _, ve := range cal.Events() {
		rruleProp := ve.GetProperty(ical.ComponentPropertyRrule)
		if rruleProp == nil || ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil {
			continue
		}
		uid := propValue(ve, ical.ComponentPropertyUniqueId)

		d, err := draftFrom(ve, rruleProp.Value, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "uid", uid, "err", err)
			res.Skipped = append(res.Skipped, Skipped{UID: uid, Reason: err.Error()})
			continue
		}
		d.UID = uid
		res.Drafts = append(res.Drafts, d)
	}

	appLog.Info("ics parse completed", "drafts", len(res.Drafts), "skipped", len(res.Skipped))
	return res, nil
}

func draftFrom(ve *ical.VEvent, rawRule string, loc *time.Location) (Draft, error) {
	upper := strings.ToUpper(rawRule)
	for _, part := range unsupportedRuleParts {
		if strings.Contains(upper, part+"=") {
			return Draft{}, fmt.Errorf("unsupported rule part %s", part)
		}
	}
	rule, err := recurrence.Parse(rawRule)
	if err != nil {
		return Draft{}, err
	}

	start, allDay, err := startOf(ve, loc)
	if err != nil {
		return Draft{}, err
	}

	title := propValue(ve, ical.ComponentPropertySummary)
	if title == "" {
		return Draft{}, errors.New("missing SUMMARY")
	}

	series := model.RecurringEvent{
		Title:            title,
		Description:      propValue(ve, ical.ComponentPropertyDescription),
		Location:         propValue(ve, ical.ComponentPropertyLocation),
		FeaturedImageURL: propValue(ve, ical.ComponentPropertyUrl),
		Rule:             rule.String(),
		DTStart:          start,
		Status:           model.SeriesActive,
	}
	if !allDay {
		series.EventTime = start.Format("15:04")
	}
	if strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), string(ical.ObjectStatusCancelled)) {
		series.Status = model.SeriesCancelled
	}
	return Draft{Series: series}, nil
}

// startOf returns DTSTART in loc and whether it is a DATE value.
func startOf(ve *ical.VEvent, loc *time.Location) (time.Time, bool, error) {
	prop := ve.GetProperty(ical.ComponentPropertyDtStart)
	if prop == nil || prop.Value == "" {
		return time.Time{}, false, errors.New("missing DTSTART")
	}
	val := strings.TrimSpace(prop.Value)

	allDay := !strings.Contains(val, "T")
	if vs, ok := prop.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	_, hasTZID := prop.ICalParameters["TZID"]

	if allDay {
		t, err := time.ParseInLocation("20060102", strings.TrimSuffix(val, "Z"), loc)
		return t, true, err
	}
	if hasTZID || strings.HasSuffix(val, "Z") {
		t, err := ve.GetStartAt()
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}
	t, err := time.ParseInLocation("20060102T150405", val, loc)
	return t, false, err
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}
