package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// ScheduleRepository stores cron cadences as JSON documents.
type ScheduleRepository struct {
	mu    sync.RWMutex
	store *store
}

func (r *ScheduleRepository) ListActive(_ context.Context) ([]*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		var schedule models.Schedule
		if err := r.store.read(id, &schedule); err != nil {
			return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
		}

		if !schedule.Active {
			continue
		}

		schedules = append(schedules, &schedule)
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].NextDueAt.Before(schedules[j].NextDueAt)
	})

	return schedules, nil
}

func (r *ScheduleRepository) ByID(_ context.Context, id string) (*models.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var schedule models.Schedule

	err := r.store.read(id, &schedule)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("schedule %s: %w", id, persistence.ErrScheduleNotFound)
		}

		return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
	}

	return &schedule, nil
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if schedule.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate schedule ID: %w", err)
		}

		schedule.ID = id.String()
	}

	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", schedule.ID, err)
	}

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}

	schedule.UpdatedAt = time.Now().UTC()

	if err := r.store.write(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	return nil
}

func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.remove(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("schedule %s: %w", id, persistence.ErrScheduleNotFound)
		}

		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}
