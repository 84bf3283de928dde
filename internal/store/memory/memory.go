// Package memory is an in-process store.Store used in tests and for
// single-instance deployments without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
	"github.com/hariharan888/faith-admin/internal/store"
)

type sourceDate struct {
	source uuid.UUID
	date   recurrence.Date
}

type Store struct {
	mu       sync.RWMutex
	events   map[uuid.UUID]model.Event
	series   map[uuid.UUID]model.RecurringEvent
	bySource map[sourceDate]uuid.UUID

	// Now is used for CreatedAt/UpdatedAt. Tests may replace it.
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		events:   make(map[uuid.UUID]model.Event),
		series:   make(map[uuid.UUID]model.RecurringEvent),
		bySource: make(map[sourceDate]uuid.UUID),
		Now:      time.Now,
	}
}

func keyOf(e model.Event) (sourceDate, bool) {
	if e.SourceRecurringEventID == nil {
		return sourceDate{}, false
	}
	return sourceDate{source: *e.SourceRecurringEventID, date: e.EventDate}, true
}

func (s *Store) ListEventsByRecurringID(ctx context.Context, seriesID uuid.UUID) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, e := range s.events {
		if e.SourceRecurringEventID != nil && *e.SourceRecurringEventID == seriesID {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if _, ok := s.events[e.ID]; ok {
		return store.ErrAlreadyExists
	}
	if k, ok := keyOf(*e); ok {
		if _, dup := s.bySource[k]; dup {
			return store.ErrAlreadyExists
		}
		s.bySource[k] = e.ID
	}
	if e.Status == "" {
		e.Status = model.EventUpcoming
	}
	now := s.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.events[e.ID] = cloneEvent(*e)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	return cloneEvent(e), nil
}

func (s *Store) ListEvents(ctx context.Context, opts store.ListOptions) (store.Page[model.Event], error) {
	if err := ctx.Err(); err != nil {
		return store.Page[model.Event]{}, err
	}
	opts = opts.Normalize()
	search := strings.ToLower(opts.Search)

	s.mu.RLock()
	var matched []model.Event
	for _, e := range s.events {
		if opts.Status != "" && string(e.Status) != opts.Status {
			continue
		}
		if opts.Upcoming && e.EventDate.Before(opts.Today) {
			continue
		}
		if opts.SourceRecurringEventID != nil && (e.SourceRecurringEventID == nil || *e.SourceRecurringEventID != *opts.SourceRecurringEventID) {
			continue
		}
		if search != "" && !containsFold(search, e.Title, e.Description, e.Location) {
			continue
		}
		matched = append(matched, cloneEvent(e))
	}
	s.mu.RUnlock()

	sortEvents(matched)
	return paginate(matched, opts), nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.events[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	oldKey, hadKey := keyOf(old)
	newKey, hasKey := keyOf(*e)
	if hasKey && (!hadKey || newKey != oldKey) {
		if _, dup := s.bySource[newKey]; dup {
			return store.ErrAlreadyExists
		}
	}
	if hadKey {
		delete(s.bySource, oldKey)
	}
	if hasKey {
		s.bySource[newKey] = e.ID
	}

	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = s.Now()
	s.events[e.ID] = cloneEvent(*e)
	return nil
}

func (s *Store) DeleteEvents(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		e, ok := s.events[id]
		if !ok {
			continue
		}
		if k, ok := keyOf(e); ok {
			delete(s.bySource, k)
		}
		delete(s.events, id)
		n++
	}
	return n, nil
}

func (s *Store) CreateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if _, ok := s.series[r.ID]; ok {
		return store.ErrAlreadyExists
	}
	if r.Status == "" {
		r.Status = model.SeriesActive
	}
	now := s.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.series[r.ID] = *r
	return nil
}

func (s *Store) GetRecurringEvent(ctx context.Context, id uuid.UUID) (model.RecurringEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.RecurringEvent{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.series[id]
	if !ok {
		return model.RecurringEvent{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListRecurringEvents(ctx context.Context, opts store.ListOptions) (store.Page[model.RecurringEvent], error) {
	if err := ctx.Err(); err != nil {
		return store.Page[model.RecurringEvent]{}, err
	}
	opts = opts.Normalize()
	search := strings.ToLower(opts.Search)

	s.mu.RLock()
	var matched []model.RecurringEvent
	for _, r := range s.series {
		if opts.Status != "" && string(r.Status) != opts.Status {
			continue
		}
		if search != "" && !containsFold(search, r.Title, r.Description, r.Location) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return paginate(matched, opts), nil
}

func (s *Store) UpdateRecurringEvent(ctx context.Context, r *model.RecurringEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.series[r.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.Now()
	s.series[r.ID] = *r
	return nil
}

func (s *Store) DeleteRecurringEvents(ctx context.Context, ids ...uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if _, ok := s.series[id]; !ok {
			continue
		}
		delete(s.series, id)
		n++
		for eid, e := range s.events {
			if e.SourceRecurringEventID != nil && *e.SourceRecurringEventID == id {
				if k, ok := keyOf(e); ok {
					delete(s.bySource, k)
				}
				e.SourceRecurringEventID = nil
				s.events[eid] = e
			}
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

func cloneEvent(e model.Event) model.Event {
	if e.SourceRecurringEventID != nil {
		id := *e.SourceRecurringEventID
		e.SourceRecurringEventID = &id
	}
	return e
}

func sortEvents(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if c := events[i].EventDate.Compare(events[j].EventDate); c != 0 {
			return c < 0
		}
		if events[i].EventTime != events[j].EventTime {
			return events[i].EventTime < events[j].EventTime
		}
		return events[i].ID.String() < events[j].ID.String()
	})
}

func containsFold(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, opts store.ListOptions) store.Page[T] {
	p := store.Page[T]{TotalCount: len(items), Page: opts.Page, PerPage: opts.PerPage}
	start := opts.Offset()
	if start >= len(items) {
		p.Items = []T{}
		return p
	}
	end := min(start+opts.PerPage, len(items))
	p.Items = items[start:end]
	return p
}
