// Package scheduler polls for due schedules and fires their ticks through
// the binder. A single poller handles every schedule regardless of its
// cron expression; competing instances are disarmed by the tick-time
// reservation key, so running more than one scheduler is safe.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
)

const defaultPollInterval = time.Minute

// TickSink receives due ticks. Implemented by binder.Binder.
type TickSink interface {
	FireScheduleTick(ctx context.Context, schedule *models.Schedule, tickAt time.Time)
}

type Scheduler struct {
	logger    *slog.Logger
	schedules persistence.ScheduleRepository
	sink      TickSink
	interval  time.Duration
	now       func() time.Time

	ticker  *time.Ticker
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

// Option adjusts scheduler construction.
type Option func(*Scheduler)

// WithPollInterval overrides the default one-minute polling cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(
	logger *slog.Logger,
	schedules persistence.ScheduleRepository,
	sink TickSink,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		logger:    logger.With("module", "scheduler"),
		schedules: schedules,
		sink:      sink,
		interval:  defaultPollInterval,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins polling. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.started = true

	go s.poll(ctx)

	s.logger.InfoContext(ctx, "Scheduler started", "poll_interval", s.interval.String())
}

// Stop halts polling. In-flight ticks already handed to the sink finish on
// their own.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false

	s.logger.InfoContext(ctx, "Scheduler stopped")
}

func (s *Scheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue fires every schedule whose next due time has passed, then
// advances it. Exported so a tick can be forced outside the poll cadence.
func (s *Scheduler) ProcessDue(ctx context.Context) {
	now := s.now().UTC()

	schedules, err := s.schedules.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list active schedules", "error", err)

		return
	}

	for _, schedule := range schedules {
		if !schedule.IsDue(now) {
			continue
		}

		s.logger.InfoContext(ctx, "Firing due schedule",
			"schedule_id", schedule.ID,
			"workflow_id", schedule.WorkflowID,
			"due_at", schedule.NextDueAt)

		// The tick time is the due time, not the poll time: every
		// scheduler instance derives the same reservation key for it.
		s.sink.FireScheduleTick(ctx, schedule, schedule.NextDueAt)

		if err := schedule.Advance(now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to advance schedule",
				"schedule_id", schedule.ID, "error", err)

			continue
		}

		if err := s.schedules.Save(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "Failed to save advanced schedule",
				"schedule_id", schedule.ID, "error", err)
		}
	}
}
