package materialize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hariharan888/faith-admin/internal/model"
	"github.com/hariharan888/faith-admin/internal/recurrence"
	"github.com/hariharan888/faith-admin/internal/store"
	"github.com/hariharan888/faith-admin/internal/store/memory"
)

var (
	ctx   = context.Background()
	jan1  = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	feb4  = time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC)
	fixed = func() time.Time { return jan1 }
)

func date(y int, m time.Month, d int) recurrence.Date {
	return recurrence.Date{Year: y, Month: m, Day: d}
}

func sundayService() model.RecurringEvent {
	return model.RecurringEvent{
		ID:               uuid.New(),
		Title:            "Sunday Service",
		Description:      "Main worship service",
		Location:         "Main Hall",
		EventTime:        "09:30",
		FeaturedImageURL: "https://example.org/service.jpg",
		Rule:             "FREQ=WEEKLY;INTERVAL=1;BYDAY=SU",
		DTStart:          time.Date(2024, time.January, 7, 9, 30, 0, 0, time.UTC),
		Status:           model.SeriesActive,
	}
}

func newMaterializer(w store.EventWriter) *Materializer {
	return New(w, Options{Location: time.UTC, Now: fixed})
}

func eventDates(events []model.Event) []recurrence.Date {
	out := make([]recurrence.Date, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventDate)
	}
	return out
}

func TestMaterializeCreatesAndIsIdempotent(t *testing.T) {
	s := memory.New()
	m := newMaterializer(s)
	series := sundayService()

	n, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, []recurrence.Date{
		date(2024, 1, 7), date(2024, 1, 14), date(2024, 1, 21), date(2024, 1, 28), date(2024, 2, 4),
	}, eventDates(events))

	first := events[0]
	assert.Equal(t, series.Title, first.Title)
	assert.Equal(t, series.Description, first.Description)
	assert.Equal(t, series.Location, first.Location)
	assert.Equal(t, series.EventTime, first.EventTime)
	assert.Equal(t, series.FeaturedImageURL, first.FeaturedImageURL)
	assert.Equal(t, model.EventUpcoming, first.Status)
	require.NotNil(t, first.SourceRecurringEventID)
	assert.Equal(t, series.ID, *first.SourceRecurringEventID)

	n, err = m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Zero(t, n)

	// extending the horizon creates only the new dates
	n, err = m.Materialize(ctx, series, feb4.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMaterializeLeavesManualEventsAlone(t *testing.T) {
	s := memory.New()
	m := newMaterializer(s)
	series := sundayService()

	manual := model.Event{Title: "Sunday Service", EventDate: date(2024, 1, 14), EventTime: "18:00", Status: model.EventCancelled}
	require.NoError(t, s.CreateEvent(ctx, &manual))

	n, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := s.GetEvent(ctx, manual.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SourceRecurringEventID)
	assert.Equal(t, "18:00", got.EventTime)
	assert.Equal(t, model.EventCancelled, got.Status)

	all, err := s.ListEvents(ctx, store.ListOptions{PerPage: 50})
	require.NoError(t, err)
	assert.Equal(t, 6, all.TotalCount)
}

func TestMaterializeKeepsEditedEvents(t *testing.T) {
	s := memory.New()
	m := newMaterializer(s)
	series := sundayService()

	_, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)

	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	edited := events[1]
	edited.Title = "Special Service"
	edited.Status = model.EventCancelled
	require.NoError(t, s.UpdateEvent(ctx, &edited))

	n, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetEvent(ctx, edited.ID)
	require.NoError(t, err)
	assert.Equal(t, "Special Service", got.Title)
}

func TestMaterializeRejectsInactiveSeries(t *testing.T) {
	for _, status := range []model.SeriesStatus{model.SeriesPaused, model.SeriesCancelled} {
		s := memory.New()
		series := sundayService()
		series.Status = status

		n, err := newMaterializer(s).Materialize(ctx, series, feb4)
		assert.ErrorIs(t, err, ErrNotActive)
		assert.Zero(t, n)

		events, err := s.ListEventsByRecurringID(ctx, series.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	}
}

func TestMaterializeMalformedRule(t *testing.T) {
	s := memory.New()
	series := sundayService()
	series.Rule = "FREQ=WEEKLY;COUNT=2;UNTIL=2024-03-01"

	n, err := newMaterializer(s).Materialize(ctx, series, feb4)
	var me *recurrence.MalformedRuleError
	require.ErrorAs(t, err, &me)
	assert.Zero(t, n)

	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMaterializeRespectsRuleTermination(t *testing.T) {
	s := memory.New()
	series := sundayService()
	series.Rule = "FREQ=WEEKLY;INTERVAL=1;BYDAY=SU;COUNT=3"

	n, err := newMaterializer(s).Materialize(ctx, series, feb4.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	series.ID = uuid.New()
	series.Rule = "FREQ=WEEKLY;INTERVAL=1;BYDAY=SU;UNTIL=2024-01-21"
	n, err = newMaterializer(s).Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMaterializeDefaultHorizon(t *testing.T) {
	s := memory.New()
	m := New(s, Options{Location: time.UTC, Now: fixed, HorizonMonths: 1})
	series := sundayService()

	n, err := m.Materialize(ctx, series, time.Time{})
	require.NoError(t, err)
	// Jan 7 .. Feb 1
	assert.Equal(t, 4, n)
}

func TestMaterializeRangeSkipsPastDates(t *testing.T) {
	s := memory.New()
	m := newMaterializer(s)
	series := sundayService()

	_, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	_, err = s.DeleteEvents(ctx, events[0].ID, events[3].ID) // Jan 7 and Jan 28
	require.NoError(t, err)

	n, err := m.MaterializeRange(ctx, series, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), feb4)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err = s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	assert.NotContains(t, eventDates(events), date(2024, 1, 7))
	assert.Contains(t, eventDates(events), date(2024, 1, 28))
}

func TestMaterializeAnchorsStartInLocation(t *testing.T) {
	s := memory.New()
	ist := time.FixedZone("IST", 5*3600+1800)
	m := New(s, Options{Location: ist, Now: fixed})
	series := sundayService()
	// Sunday 03:00 in IST is Saturday 21:30 UTC.
	series.Rule = "FREQ=WEEKLY;COUNT=2"
	series.DTStart = time.Date(2024, 1, 7, 3, 0, 0, 0, ist).UTC()

	_, err := m.Materialize(ctx, series, feb4)
	require.NoError(t, err)
	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	assert.Equal(t, []recurrence.Date{date(2024, 1, 7), date(2024, 1, 14)}, eventDates(events))
}

// flakyWriter fails or reports duplicates for chosen dates.
type flakyWriter struct {
	store.EventWriter
	failOn    map[recurrence.Date]error
	createdBy []recurrence.Date
}

func (f *flakyWriter) CreateEvent(ctx context.Context, e *model.Event) error {
	if err, ok := f.failOn[e.EventDate]; ok {
		return err
	}
	f.createdBy = append(f.createdBy, e.EventDate)
	return f.EventWriter.CreateEvent(ctx, e)
}

func TestMaterializePartialFailure(t *testing.T) {
	boom := errors.New("connection reset")
	w := &flakyWriter{EventWriter: memory.New(), failOn: map[recurrence.Date]error{date(2024, 1, 21): boom}}
	series := sundayService()

	n, err := newMaterializer(w).Materialize(ctx, series, feb4)
	assert.Equal(t, 2, n)
	var pe *PartialFailureError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Created)
	assert.ErrorIs(t, err, boom)

	// nothing is rolled back and a retry fills the rest
	delete(w.failOn, date(2024, 1, 21))
	n, err = newMaterializer(w).Materialize(ctx, series, feb4)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMaterializeTreatsLostRaceAsPresent(t *testing.T) {
	w := &flakyWriter{EventWriter: memory.New(), failOn: map[recurrence.Date]error{date(2024, 1, 14): store.ErrAlreadyExists}}
	n, err := newMaterializer(w).Materialize(ctx, sundayService(), feb4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMaterializeStopsOnCancelledContext(t *testing.T) {
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	n, err := newMaterializer(memory.New()).Materialize(cctx, sundayService(), feb4)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterializeConcurrentCallsDoNotDuplicate(t *testing.T) {
	s := memory.New()
	m := newMaterializer(s)
	series := sundayService()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.Materialize(ctx, series, feb4)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total)
	events, err := s.ListEventsByRecurringID(ctx, series.ID)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestMaterializeAll(t *testing.T) {
	s := memory.New()
	good1, good2, paused, broken := sundayService(), sundayService(), sundayService(), sundayService()
	good2.Rule = "FREQ=DAILY;COUNT=3"
	good2.DTStart = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	paused.Status = model.SeriesPaused
	broken.Rule = "FREQ=FORTNIGHTLY"
	for _, r := range []*model.RecurringEvent{&good1, &good2, &paused, &broken} {
		require.NoError(t, s.CreateRecurringEvent(ctx, r))
	}

	m := New(s, Options{Location: time.UTC, Now: fixed, Series: s, Concurrency: 2})
	report, err := m.MaterializeAll(ctx, feb4)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Series)
	assert.Equal(t, 8, report.Created)
	require.Len(t, report.Failed, 1)
	var me *recurrence.MalformedRuleError
	assert.ErrorAs(t, report.Failed[broken.ID], &me)
	assert.Error(t, report.Err())

	report, err = m.MaterializeAll(ctx, feb4)
	require.NoError(t, err)
	assert.Zero(t, report.Created)
}

func TestMaterializeAllNeedsLister(t *testing.T) {
	_, err := newMaterializer(memory.New()).MaterializeAll(ctx, feb4)
	assert.Error(t, err)
}

func TestMaterializeLongRunningSeries(t *testing.T) {
	daily := sundayService()
	daily.Rule = "FREQ=DAILY;INTERVAL=1"
	daily.DTStart = time.Date(2010, 1, 1, 6, 0, 0, 0, time.UTC)
	horizon := time.Date(2026, 11, 19, 0, 0, 0, 0, time.UTC)

	s := memory.New()
	n, err := newMaterializer(s).MaterializeRange(ctx, daily, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), horizon)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	events, err := s.ListEventsByRecurringID(ctx, daily.ID)
	require.NoError(t, err)
	assert.Contains(t, eventDates(events), date(2026, 10, 19))
	assert.Contains(t, eventDates(events), date(2026, 11, 19))

	// from the series start the range exceeds the cap, which is reported
	n, err = newMaterializer(memory.New()).Materialize(ctx, daily, horizon)
	assert.Equal(t, recurrence.MaxOccurrences, n)
	var pe *PartialFailureError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, recurrence.MaxOccurrences, pe.Created)
	assert.ErrorIs(t, err, ErrTruncated)
}
