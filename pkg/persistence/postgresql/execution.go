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

// ExecutionRepository handles workflow-run database operations.
type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	id
  , workflow_id
  , idempotency_key
  , status
  , error
  , cancel_requested
  , context
  , started_at
  , finished_at
`

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewExecutionError("Save", "", err)
		}

		execution.ID = id.String()
	}

	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, fmt.Errorf("failed to marshal context: %w", err))
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, idempotency_key, status, error,
			cancel_requested, context, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
		  , error = EXCLUDED.error
		  , context = EXCLUDED.context
		  , finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.IdempotencyKey,
		string(execution.Status), execution.Error, execution.CancelRequested,
		contextJSON, execution.StartedAt, execution.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, persistence.NewExecutionError("ListByWorkflow", workflowID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError("ListByWorkflow", workflowID, err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("ListByWorkflow", workflowID, err)
	}

	return executions, nil
}

// RequestCancel flips the cancellation flag for a run that is still RUNNING.
func (r *ExecutionRepository) RequestCancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_executions SET cancel_requested = true WHERE id = $1 AND finished_at IS NULL`, id)
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("RequestCancel", id, err)
	}

	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return persistence.NewExecutionError("RequestCancel", id, err)
		}

		if !exists {
			return persistence.NewExecutionError("RequestCancel", id, persistence.ErrExecutionNotFound)
		}
	}

	return nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution      models.WorkflowExecution
		idempotencyKey sql.NullString
		errMessage     sql.NullString
		contextJSON    []byte
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &idempotencyKey,
		&execution.Status, &errMessage, &execution.CancelRequested,
		&contextJSON, &execution.StartedAt, &execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.IdempotencyKey = idempotencyKey.String
	execution.Error = errMessage.String

	if len(contextJSON) > 0 && string(contextJSON) != "null" {
		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}

	return &execution, nil
}

// ExecutionLogRepository handles the append-only node audit trail.
type ExecutionLogRepository struct {
	db *sql.DB
}

func NewExecutionLogRepository(db *sql.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.NodeExecutionLog) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
		}

		entry.ID = id.String()
	}

	itemsJSON, err := json.Marshal(entry.Items)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	query := `
		INSERT INTO node_execution_logs (
			id, execution_id, node_id, node_kind, status, items, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.ExecutionID, entry.NodeID, string(entry.NodeKind),
		string(entry.Status), itemsJSON, entry.Error, entry.StartedAt, entry.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	return nil
}

// Finalize completes a RUNNING entry exactly once; the finished_at guard
// keeps an already-final entry immutable.
func (r *ExecutionLogRepository) Finalize(ctx context.Context, entry *models.NodeExecutionLog) error {
	if entry.FinishedAt == nil {
		now := time.Now().UTC()
		entry.FinishedAt = &now
	}

	itemsJSON, err := json.Marshal(entry.Items)
	if err != nil {
		return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, err)
	}

	query := `
		UPDATE node_execution_logs
		SET status = $1, items = $2, error = $3, finished_at = $4
		WHERE id = $5 AND finished_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entry.Status), itemsJSON, entry.Error, entry.FinishedAt, entry.ID)
	if err != nil {
		return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, err)
	}

	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM node_execution_logs WHERE id = $1)`, entry.ID).Scan(&exists); err != nil {
			return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, err)
		}

		if exists {
			return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, persistence.ErrLogAlreadyFinal)
		}

		return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, persistence.ErrLogNotFound)
	}

	return nil
}

func (r *ExecutionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, node_kind, status, items, error, started_at, finished_at
		FROM node_execution_logs
		WHERE execution_id = $1
		ORDER BY started_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("ListLogs", executionID, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*models.NodeExecutionLog, 0)

	for rows.Next() {
		var (
			entry      models.NodeExecutionLog
			itemsJSON  []byte
			errMessage sql.NullString
		)

		err := rows.Scan(
			&entry.ID, &entry.ExecutionID, &entry.NodeID, &entry.NodeKind,
			&entry.Status, &itemsJSON, &errMessage, &entry.StartedAt, &entry.FinishedAt,
		)
		if err != nil {
			return nil, persistence.NewExecutionError("ListLogs", executionID, err)
		}

		entry.Error = errMessage.String

		if len(itemsJSON) > 0 && string(itemsJSON) != "null" {
			if err := json.Unmarshal(itemsJSON, &entry.Items); err != nil {
				return nil, persistence.NewExecutionError("ListLogs", executionID, err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewExecutionError("ListLogs", executionID, err)
	}

	return entries, nil
}
