// Package store defines persistence for events and recurring series.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned when an event for the same series and date
	// is already stored.
	ErrAlreadyExists = errors.New("store: already exists")
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ListOptions filters and pages list queries. Zero values mean "no filter".
type ListOptions struct {
	Page    int
	PerPage int
	Status  string
	Search  string
	// Upcoming restricts events to EventDate >= Today. Ignored for series.
	Upcoming bool
	Today    recurrence.Date
	// SourceRecurringEventID restricts events to one series.
	SourceRecurringEventID *uuid.UUID
}

// Normalize clamps paging to sane bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = DefaultPerPage
	}
	if o.PerPage > MaxPerPage {
		o.PerPage = MaxPerPage
	}
	o.Search = strings.TrimSpace(o.Search)
	return o
}

func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PerPage
}

// Page is one page of a list query.
type Page[T any] struct {
	Items      []T
	TotalCount int
	Page       int
	PerPage    int
}

// TotalPages is the number of pages for TotalCount at PerPage.
func (p Page[T]) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return (p.TotalCount + p.PerPage - 1) / p.PerPage
}

// EventWriter is the slice of the store the materializer needs.
type EventWriter interface {
	// ListEventsByRecurringID returns every event generated from the series,
	// independent of status.
	ListEventsByRecurringID(ctx context.Context, seriesID uuid.UUID) ([]model.Event, error)
	// CreateEvent stores e, assigning ID and timestamps when unset. It returns
	// ErrAlreadyExists when e duplicates a (series, date) pair.
	CreateEvent(ctx context.Context, e *model.Event) error
}

// Store is the full persistence surface used by the admin API.
type Store interface {
	EventWriter

	GetEvent(ctx context.Context, id uuid.UUID) (model.Event, error)
	ListEvents(ctx context.Context, opts ListOptions) (Page[model.Event], error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvents(ctx context.Context, ids ...uuid.UUID) (int, error)

	CreateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error
	GetRecurringEvent(ctx context.Context, id uuid.UUID) (model.RecurringEvent, error)
	ListRecurringEvents(ctx context.Context, opts ListOptions) (Page[model.RecurringEvent], error)
	UpdateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error
	// DeleteRecurringEvents removes series. Their generated events are kept
	// and detached (SourceRecurringEventID becomes nil).
	DeleteRecurringEvents(ctx context.Context, ids ...uuid.UUID) (int, error)

	Close() error
}
