package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu    sync.Mutex
	ticks []time.Time
	ids   []string
}

func (s *recordingSink) FireScheduleTick(_ context.Context, schedule *models.Schedule, tickAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks = append(s.ticks, tickAt)
	s.ids = append(s.ids, schedule.ID)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ticks)
}

func saveSchedule(t *testing.T, store *file.Persistence, id, cron string, nextDueAt time.Time, active bool) {
	t.Helper()

	schedule := &models.Schedule{
		ID:             id,
		WorkflowID:     "wf-" + id,
		CronExpression: cron,
		NextDueAt:      nextDueAt,
		Active:         active,
	}
	require.NoError(t, store.ScheduleRepository().Save(context.Background(), schedule))
}

func TestProcessDueFiresAndAdvances(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	sink := &recordingSink{}
	now := time.Date(2026, 3, 1, 2, 0, 30, 0, time.UTC)
	due := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	saveSchedule(t, store, "sch-1", "0 2 * * *", due, true)

	s := NewScheduler(testLogger(), store.ScheduleRepository(), sink,
		WithClock(func() time.Time { return now }))

	s.ProcessDue(context.Background())

	require.Equal(t, 1, sink.count())
	assert.Equal(t, due, sink.ticks[0])
	assert.Equal(t, "sch-1", sink.ids[0])

	saved, err := store.ScheduleRepository().ByID(context.Background(), "sch-1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), saved.NextDueAt)
}

func TestProcessDueSkipsNotDueAndInactive(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	sink := &recordingSink{}
	now := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	saveSchedule(t, store, "future", "0 3 * * *", now.Add(time.Hour), true)
	saveSchedule(t, store, "inactive", "0 2 * * *", now.Add(-time.Minute), false)

	s := NewScheduler(testLogger(), store.ScheduleRepository(), sink,
		WithClock(func() time.Time { return now }))

	s.ProcessDue(context.Background())

	assert.Equal(t, 0, sink.count())
}

func TestProcessDueIsIdempotentAfterAdvance(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	sink := &recordingSink{}
	now := time.Date(2026, 3, 1, 2, 0, 30, 0, time.UTC)
	due := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	saveSchedule(t, store, "sch-1", "0 2 * * *", due, true)

	s := NewScheduler(testLogger(), store.ScheduleRepository(), sink,
		WithClock(func() time.Time { return now }))

	s.ProcessDue(context.Background())
	s.ProcessDue(context.Background())

	assert.Equal(t, 1, sink.count())
}

func TestStartStopLifecycle(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	sink := &recordingSink{}
	due := time.Now().UTC().Add(-time.Second)

	saveSchedule(t, store, "sch-1", "* * * * *", due, true)

	s := NewScheduler(testLogger(), store.ScheduleRepository(), sink,
		WithPollInterval(5*time.Millisecond))

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // second Start is a no-op

	assert.Eventually(t, func() bool {
		return sink.count() >= 1
	}, time.Second, 5*time.Millisecond)

	s.Stop(ctx)
	s.Stop(ctx)
}
