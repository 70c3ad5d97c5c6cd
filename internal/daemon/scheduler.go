package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	derrors "git.home.luguber.info/inful/dropsync/internal/foundation/errors"
	"git.home.luguber.info/inful/dropsync/internal/logfields"
)

const pollJobName = "poll-cycle"

// Scheduler wraps a gocron scheduler running the poll cycle as a singleton job.
type Scheduler struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobID     uuid.UUID
	ctx       context.Context
	task      func(context.Context)
	interval  time.Duration
}

// NewScheduler creates a scheduler. stopTimeout bounds how long Stop waits
// for a running cycle.
func NewScheduler(clock clockwork.Clock, stopTimeout time.Duration) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	if stopTimeout > 0 {
		opts = append(opts, gocron.WithStopTimeout(stopTimeout))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryDaemon, "failed to create gocron scheduler").Fatal().Build()
	}
	return &Scheduler{scheduler: s}, nil
}

// SchedulePoll registers task to run every interval, starting immediately
// once the scheduler is started. A run that is still busy when the next one
// is due causes that next run to be skipped, so cycles never overlap.
// The context handed to task is cancelled when ctx is or on Stop.
func (s *Scheduler) SchedulePoll(ctx context.Context, interval time.Duration, task func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	s.task = task
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		s.jobOptions()...,
	)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "failed to create poll job").
			WithContext("interval", interval.String()).
			Build()
	}
	s.jobID = job.ID()
	s.interval = interval
	slog.Info("Scheduled poll cycle", logfields.Name(pollJobName), slog.Duration("interval", interval))
	return nil
}

// Reschedule changes the poll interval of the registered job.
func (s *Scheduler) Reschedule(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task == nil {
		return derrors.DaemonError("no poll job scheduled").Build()
	}
	if interval == s.interval {
		return nil
	}
	job, err := s.scheduler.Update(s.jobID,
		gocron.DurationJob(interval),
		gocron.NewTask(s.task),
		s.jobOptions()...,
	)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "failed to update poll job").
			WithContext("interval", interval.String()).
			Build()
	}
	s.jobID = job.ID()
	slog.Info("Rescheduled poll cycle",
		slog.Duration("from", s.interval),
		slog.Duration("to", interval))
	s.interval = interval
	return nil
}

// Interval returns the current poll interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// NextRun returns when the poll job runs next.
func (s *Scheduler) NextRun() (time.Time, error) {
	s.mu.Lock()
	id := s.jobID
	s.mu.Unlock()
	for _, j := range s.scheduler.Jobs() {
		if j.ID() == id {
			return j.NextRun()
		}
	}
	return time.Time{}, derrors.DaemonError("poll job not found").Build()
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running cycle up to the stop timeout.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		return derrors.WrapError(err, derrors.CategoryDaemon, "scheduler shutdown").Build()
	}
	return nil
}

func (s *Scheduler) jobOptions() []gocron.JobOption {
	opts := []gocron.JobOption{
		gocron.WithName(pollJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	}
	if s.ctx != nil {
		opts = append(opts, gocron.WithContext(s.ctx))
	}
	return opts
}
