package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hariharan888/faith-admin/internal/materialize"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) MaterializeAll(ctx context.Context, horizon time.Time) (materialize.Report, error) {
	r.calls.Add(1)
	return materialize.Report{Series: 2, Created: 3}, r.err
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("every tuesday", time.UTC, &countingRunner{})
	assert.Error(t, err)
}

func TestNextUsesSpecAndLocation(t *testing.T) {
	s, err := New("", time.UTC, &countingRunner{})
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	next := s.Next()
	require.False(t, next.IsZero())
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.Equal(t, time.UTC, next.Location())
}

func TestRunNowRecordsReport(t *testing.T) {
	r := &countingRunner{}
	s, err := New(DefaultSpec, time.UTC, r)
	require.NoError(t, err)

	_, ok := s.LastReport()
	assert.False(t, ok)

	report, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)

	last, ok := s.LastReport()
	require.True(t, ok)
	assert.Equal(t, report, last)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestScheduledRunFires(t *testing.T) {
	r := &countingRunner{err: errors.New("list failed")}
	s, err := New("@every 1s", time.UTC, r)
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}
