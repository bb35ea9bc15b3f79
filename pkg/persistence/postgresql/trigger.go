package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// TriggerRepository handles trigger-binding database operations.
type TriggerRepository struct {
	db *sql.DB
}

func NewTriggerRepository(db *sql.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

const triggerColumns = `
	id
  , workflow_id
  , event
  , strategy
  , strategy_params
  , active
  , created_at
  , updated_at
`

func (r *TriggerRepository) ByID(ctx context.Context, id string) (*models.WorkflowTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM workflow_triggers WHERE id = $1`

	trigger, err := scanTrigger(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to load trigger %s: %w", id, err)
	}

	return trigger, nil
}

func (r *TriggerRepository) ActiveByEvent(ctx context.Context, event models.TriggerEvent) ([]*models.WorkflowTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM workflow_triggers WHERE event = $1 AND active = true`

	return r.list(ctx, query, string(event))
}

func (r *TriggerRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM workflow_triggers WHERE workflow_id = $1`

	return r.list(ctx, query, workflowID)
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.WorkflowTrigger) error {
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

	paramsJSON, err := json.Marshal(trigger.StrategyParams)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy params: %w", err)
	}

	query := `
		INSERT INTO workflow_triggers (
			id, workflow_id, event, strategy, strategy_params, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			event = EXCLUDED.event
		  , strategy = EXCLUDED.strategy
		  , strategy_params = EXCLUDED.strategy_params
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID, trigger.WorkflowID, string(trigger.Event), string(trigger.Strategy),
		paramsJSON, trigger.Active, trigger.CreatedAt, trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("trigger %s: %w", id, persistence.ErrTriggerNotFound)
	}

	return nil
}

func (r *TriggerRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowTrigger, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		trigger, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func scanTrigger(row rowScanner) (*models.WorkflowTrigger, error) {
	var (
		trigger    models.WorkflowTrigger
		paramsJSON []byte
	)

	err := row.Scan(
		&trigger.ID, &trigger.WorkflowID, &trigger.Event, &trigger.Strategy,
		&paramsJSON, &trigger.Active, &trigger.CreatedAt, &trigger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &trigger.StrategyParams); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy params: %w", err)
		}
	}

	return &trigger, nil
}
