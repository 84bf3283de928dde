// Package scheduler runs periodic materialization of recurring series.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "github.com/hariharan888/faith-admin/internal/log"
	"github.com/hariharan888/faith-admin/internal/materialize"
)

const DefaultSpec = "0 3 * * *"

// Runner is the bulk materialization entry point.
type Runner interface {
	MaterializeAll(ctx context.Context, horizon time.Time) (materialize.Report, error)
}

// Scheduler fires Runner on a cron spec. Overlapping runs are skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	id     cron.EntryID

	mu   sync.Mutex
	ctx  context.Context
	last *materialize.Report
}

// New parses spec (standard 5-field syntax or descriptors like "@daily") in
// loc and prepares the job. The job does not run until Start.
func New(spec string, loc *time.Location, runner Runner) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner: runner,
		spec:   spec,
		ctx:    context.Background(),
	}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	s.id = id
	return s, nil
}

// Start begins firing. Runs started after ctx is cancelled see a cancelled
// context; the caller should also call Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	appLog.Info("auto-generate scheduler started", "spec", s.spec, "next", s.Next().Format(time.RFC3339))
}

// Stop halts the scheduler and returns a context that is done once a running
// job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the next planned run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.id).Next
}

// RunNow runs the job synchronously with the default horizon.
func (s *Scheduler) RunNow(ctx context.Context) (materialize.Report, error) {
	report, err := s.runner.MaterializeAll(ctx, time.Time{})
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
	return report, err
}

// LastReport returns the report of the most recent run, if any.
func (s *Scheduler) LastReport() (materialize.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return materialize.Report{}, false
	}
	return *s.last, true
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	started := time.Now()
	report, err := s.RunNow(ctx)
	if err != nil {
		appLog.Error("scheduled materialization failed", err)
		return
	}
	if err := report.Err(); err != nil {
		appLog.Error("scheduled materialization had failures", err, "failed", len(report.Failed))
	}
	appLog.Info("scheduled materialization done",
		"series", report.Series,
		"created", report.Created,
		"took", time.Since(started).Round(time.Millisecond),
	)
}

// cronLogger adapts the app log to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
