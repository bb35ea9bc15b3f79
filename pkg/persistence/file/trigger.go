package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerRepository stores event-to-workflow bindings as JSON documents.
type TriggerRepository struct {
	mu    sync.RWMutex
	store *store
}

func (r *TriggerRepository) ByID(_ context.Context, id string) (*models.WorkflowTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var trigger models.WorkflowTrigger

	err := r.store.read(id, &trigger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to load trigger %s: %w", id, err)
	}

	return &trigger, nil
}

func (r *TriggerRepository) ActiveByEvent(ctx context.Context, event models.TriggerEvent) ([]*models.WorkflowTrigger, error) {
	triggers, err := r.all()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowTrigger, 0)

	for _, trigger := range triggers {
		if trigger.Active && trigger.Event == event {
			matched = append(matched, trigger)
		}
	}

	return matched, nil
}

func (r *TriggerRepository) ByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	triggers, err := r.all()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowTrigger, 0)

	for _, trigger := range triggers {
		if trigger.WorkflowID == workflowID {
			matched = append(matched, trigger)
		}
	}

	return matched, nil
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.WorkflowTrigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate trigger ID: %w", err)
		}

		trigger.ID = id.String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	if err := r.store.write(trigger.ID, trigger); err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.store.remove(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	return nil
}

func (r *TriggerRepository) all() ([]*models.WorkflowTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	triggers := make([]*models.WorkflowTrigger, 0, len(ids))

	for _, id := range ids {
		var trigger models.WorkflowTrigger
		if err := r.store.read(id, &trigger); err != nil {
			return nil, fmt.Errorf("failed to load trigger %s: %w", id, err)
		}

		triggers = append(triggers, &trigger)
	}

	return triggers, nil
}
