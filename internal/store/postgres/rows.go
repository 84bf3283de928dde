package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

type seriesRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title            string    `gorm:"not null"`
	Description      string    `gorm:"type:text"`
	Location         string    `gorm:"type:text"`
	EventTime        string    `gorm:"size:8"`
	FeaturedImageURL string    `gorm:"type:text"`
	Rule             string    `gorm:"column:rrule;not null"`
	DTStart          time.Time `gorm:"column:dtstart;not null"`
	Status           string    `gorm:"size:16;not null;default:active;index"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (seriesRow) TableName() string { return "recurring_events" }

type eventRow struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Title                  string         `gorm:"not null"`
	Description            string         `gorm:"type:text"`
	Location               string         `gorm:"type:text"`
	EventDate              datatypes.Date `gorm:"not null;index;uniqueIndex:ux_events_source_date,priority:2"`
	EventTime              string         `gorm:"size:8"`
	FeaturedImageURL       string         `gorm:"type:text"`
	Status                 string         `gorm:"size:16;not null;default:upcoming;index"`
	SourceRecurringEventID *uuid.UUID     `gorm:"type:uuid;uniqueIndex:ux_events_source_date,priority:1"`
	SourceRecurringEvent   *seriesRow     `gorm:"foreignKey:SourceRecurringEventID;constraint:OnDelete:SET NULL"`
	CreatedAt              time.Time      `gorm:"not null"`
	UpdatedAt              time.Time      `gorm:"not null"`
}

func (eventRow) TableName() string { return "events" }

func toDate(d recurrence.Date) datatypes.Date {
	return datatypes.Date(d.In(time.UTC))
}

func fromDate(d datatypes.Date) recurrence.Date {
	return recurrence.DateOf(time.Time(d))
}

func eventRowFrom(e model.Event) eventRow {
	return eventRow{
		ID:                     e.ID,
		Title:                  e.Title,
		Description:            e.Description,
		Location:               e.Location,
		EventDate:              toDate(e.EventDate),
		EventTime:              e.EventTime,
		FeaturedImageURL:       e.FeaturedImageURL,
		Status:                 string(e.Status),
		SourceRecurringEventID: e.SourceRecurringEventID,
		CreatedAt:              e.CreatedAt,
		UpdatedAt:              e.UpdatedAt,
	}
}

func (r eventRow) toModel() model.Event {
	return model.Event{
		ID:                     r.ID,
		Title:                  r.Title,
		Description:            r.Description,
		Location:               r.Location,
		EventDate:              fromDate(r.EventDate),
		EventTime:              r.EventTime,
		FeaturedImageURL:       r.FeaturedImageURL,
		Status:                 model.EventStatus(r.Status),
		SourceRecurringEventID: r.SourceRecurringEventID,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

func seriesRowFrom(s model.RecurringEvent) seriesRow {
	return seriesRow{
		ID:               s.ID,
		Title:            s.Title,
		Description:      s.Description,
		Location:         s.Location,
		EventTime:        s.EventTime,
		FeaturedImageURL: s.FeaturedImageURL,
		Rule:             s.Rule,
		DTStart:          s.DTStart,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (r seriesRow) toModel() model.RecurringEvent {
	return model.RecurringEvent{
		ID:               r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Location:         r.Location,
		EventTime:        r.EventTime,
		FeaturedImageURL: r.FeaturedImageURL,
		Rule:             r.Rule,
		DTStart:          r.DTStart,
		Status:           model.SeriesStatus(r.Status),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
