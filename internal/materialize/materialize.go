// Package materialize turns recurring series into concrete dated events.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
	"github.com/hariharan888/faith-admin/internal/store"
)

const (
	defaultHorizonMonths = 3
	defaultConcurrency   = 4
)

// ErrNotActive is returned for series that are paused or cancelled.
var ErrNotActive = errors.New("materialize: recurring event is not active")

// ErrTruncated means the range held more than recurrence.MaxOccurrences
// occurrences and only the earliest were materialized.
var ErrTruncated = errors.New("materialize: occurrence cap reached")

// PartialFailureError reports a batch that stopped early, at its first failed
// create or at the occurrence cap. Events created before that are kept.
type PartialFailureError struct {
	Created int
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("materialize: stopped after %d created events: %v", e.Created, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// SeriesLister lists recurring series for bulk runs.
type SeriesLister interface {
	ListRecurringEvents(ctx context.Context, opts store.ListOptions) (store.Page[model.RecurringEvent], error)
}

type Options struct {
	// HorizonMonths is the window used when a caller passes a zero horizon.
	HorizonMonths int
	// Concurrency bounds parallel series in MaterializeAll.
	Concurrency int
	// Location anchors series start times and "today".
	Location *time.Location
	// Series is required by MaterializeAll only.
	Series SeriesLister
	Now    func() time.Time
}

type Materializer struct {
	events store.EventWriter
	opts   Options

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func New(events store.EventWriter, opts Options) *Materializer {
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = defaultHorizonMonths
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Materializer{
		events: events,
		opts:   opts,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// Now returns the current time in the anchor location.
func (m *Materializer) Now() time.Time {
	return m.opts.Now().In(m.opts.Location)
}

// Location returns the anchor location.
func (m *Materializer) Location() *time.Location { return m.opts.Location }

// DefaultHorizon is now plus the configured number of months.
func (m *Materializer) DefaultHorizon() time.Time {
	return m.Now().AddDate(0, m.opts.HorizonMonths, 0)
}

// Materialize creates the missing events of series from its start date
// through horizon (inclusive, by calendar date). A zero horizon means
// DefaultHorizon. It returns the number of events created.
//
// Behavior:
//   - Only active series are materialized (ErrNotActive otherwise).
//   - A rule that does not parse returns *recurrence.MalformedRuleError and
//     creates nothing.
//   - Dates that already have an event from this series are skipped, so a
//     repeated call with the same horizon creates nothing. Events without a
//     series reference are never consulted or touched.
//   - The first failed create stops the batch with *PartialFailureError.
//   - More than recurrence.MaxOccurrences occurrences in range returns
//     *PartialFailureError wrapping ErrTruncated after the earliest ones
//     are created.
func (m *Materializer) Materialize(ctx context.Context, series model.RecurringEvent, horizon time.Time) (int, error) {
	return m.MaterializeRange(ctx, series, time.Time{}, horizon)
}

// MaterializeRange is Materialize restricted to occurrences on or after from.
// A zero from means the series start. Occurrences before from do not count
// toward the occurrence cap.
func (m *Materializer) MaterializeRange(ctx context.Context, series model.RecurringEvent, from, horizon time.Time) (int, error) {
	if series.Status != model.SeriesActive {
		return 0, fmt.Errorf("%w: %s is %s", ErrNotActive, series.ID, series.Status)
	}
	rule, err := recurrence.Parse(series.Rule)
	if err != nil {
		return 0, err
	}
	if horizon.IsZero() {
		horizon = m.DefaultHorizon()
	}

	loc := m.opts.Location
	dtstart := series.DTStart.In(loc)
	through := recurrence.DateOf(horizon.In(loc))
	limit := recurrence.Through(through)
	if !from.IsZero() {
		limit.From = recurrence.DateOf(from.In(loc))
	}

	seq, err := recurrence.Generate(rule, dtstart, limit)
	if err != nil {
		return 0, fmt.Errorf("materialize: %w", err)
	}

	lock := m.lockFor(series.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.events.ListEventsByRecurringID(ctx, series.ID)
	if err != nil {
		return 0, fmt.Errorf("materialize: list events of %s: %w", series.ID, err)
	}
	have := make(map[recurrence.Date]struct{}, len(existing))
	for _, e := range existing {
		have[e.EventDate] = struct{}{}
	}

	created := 0
	for _, day := range seq.Dates() {
		if _, ok := have[day]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, &PartialFailureError{Created: created, Err: err}
		}

		e := eventFor(series, day)
		if err := m.events.CreateEvent(ctx, &e); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				appLog.Debug("event already present", "series", series.ID, "date", day)
				have[day] = struct{}{}
				continue
			}
			appLog.Error("create event failed", err, "series", series.ID, "date", day, "created", created)
			return created, &PartialFailureError{Created: created, Err: err}
		}
		have[day] = struct{}{}
		created++
	}

	if seq.Truncated() {
		err := fmt.Errorf("%w: %s has more than %d occurrences through %s", ErrTruncated, series.ID, recurrence.MaxOccurrences, through)
		appLog.Error("series generation truncated", err, "series", series.ID, "created", created)
		return created, &PartialFailureError{Created: created, Err: err}
	}
	appLog.Info("materialized recurring event",
		"series", series.ID,
		"title", series.Title,
		"created", created,
		"from", limit.From,
		"through", through,
	)
	return created, nil
}

func eventFor(series model.RecurringEvent, day recurrence.Date) model.Event {
	id := series.ID
	return model.Event{
		Title:                  series.Title,
		Description:            series.Description,
		Location:               series.Location,
		EventDate:              day,
		EventTime:              series.EventTime,
		FeaturedImageURL:       series.FeaturedImageURL,
		Status:                 model.EventUpcoming,
		SourceRecurringEventID: &id,
	}
}

func (m *Materializer) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Report summarizes a MaterializeAll run.
type Report struct {
	Series  int
	Created int
	Failed  map[uuid.UUID]error
}

// Err joins the per-series failures, or returns nil.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

// MaterializeAll materializes every active series from today through
// horizon with bounded concurrency. A failing series is recorded in the
// report and does not stop the others. The returned error covers listing
// and cancellation only.
func (m *Materializer) MaterializeAll(ctx context.Context, horizon time.Time) (Report, error) {
	report := Report{Failed: make(map[uuid.UUID]error)}
	if m.opts.Series == nil {
		return report, errors.New("materialize: no series lister configured")
	}

	active, err := m.activeSeries(ctx)
	if err != nil {
		return report, err
	}
	report.Series = len(active)
	if horizon.IsZero() {
		horizon = m.DefaultHorizon()
	}
	today := m.Now()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.opts.Concurrency)
	for _, series := range active {
		g.Go(func() error {
			n, err := m.MaterializeRange(ctx, series, today, horizon)
			mu.Lock()
			defer mu.Unlock()
			report.Created += n
			if err != nil {
				report.Failed[series.ID] = err
				appLog.Error("materialize series failed", err, "series", series.ID, "created", n)
			}
			return nil
		})
	}
	_ = g.Wait()

	appLog.Info("materialize run finished",
		"series", report.Series,
		"created", report.Created,
		"failed", len(report.Failed),
	)
	return report, ctx.Err()
}

func (m *Materializer) activeSeries(ctx context.Context) ([]model.RecurringEvent, error) {
	var out []model.RecurringEvent
	opts := store.ListOptions{Status: string(model.SeriesActive), PerPage: store.MaxPerPage}
	for page := 1; ; page++ {
		opts.Page = page
		res, err := m.opts.Series.ListRecurringEvents(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("materialize: list active series: %w", err)
		}
		out = append(out, res.Items...)
		if len(res.Items) == 0 || page >= res.TotalPages() {
			return out, nil
		}
	}
}
