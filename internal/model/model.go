package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/hariharan888/faith-admin/internal/recurrence"
)

// SeriesStatus is the lifecycle state of a recurring series. Only active
// series are materialized.
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCancelled SeriesStatus = "cancelled"
)

func (s SeriesStatus) Valid() bool {
	switch s {
	case SeriesActive, SeriesPaused, SeriesCancelled:
		return true
	}
	return false
}

// EventStatus is the state of a single dated event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventUpcoming, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// RecurringEvent is a template that produces dated Events from a recurrence
// rule anchored at DTStart.
type RecurringEvent struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Location         string       `json:"location,omitempty"`
	EventTime        string       `json:"event_time,omitempty"` // "HH:MM"
	FeaturedImageURL string       `json:"featured_image_url,omitempty"`
	Rule             string       `json:"rrule"`
	DTStart          time.Time    `json:"dtstart"`
	Status           SeriesStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Event is a single dated occurrence. Generated events carry the ID of the
// series that produced them; independently created events leave it nil.
type Event struct {
	ID                     uuid.UUID       `json:"id"`
	Title                  string          `json:"title"`
	Description            string          `json:"description,omitempty"`
	Location               string          `json:"location,omitempty"`
	EventDate              recurrence.Date `json:"event_date"`
	EventTime              string          `json:"event_time,omitempty"`
	FeaturedImageURL       string          `json:"featured_image_url,omitempty"`
	Status                 EventStatus     `json:"status"`
	SourceRecurringEventID *uuid.UUID      `json:"source_recurring_event_id"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Generated reports whether e was produced by a recurring series.
func (e Event) Generated() bool { return e.SourceRecurringEventID != nil }

// Start combines EventDate and EventTime in loc. Without a valid EventTime it
// returns midnight and allDay=true.
func (e Event) Start(loc *time.Location) (start time.Time, allDay bool) {
	day := e.EventDate.In(loc)
	if h, m, ok := ParseClock(e.EventTime); ok {
		return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), false
	}
	return day, true
}

// ParseClock parses "HH:MM" (seconds are tolerated and dropped).
func ParseClock(s string) (hour, minute int, ok bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}
	return 0, 0, false
}
