package file

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// ExecutionRepository stores workflow runs as JSON documents.
type ExecutionRepository struct {
	mu    sync.RWMutex
	store *store
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewExecutionError("Save", "", err)
		}

		execution.ID = id.String()
	}

	if err := r.store.write(execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, err := r.load(id)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ids()
	if err != nil {
		return nil, persistence.NewExecutionError("ListByWorkflow", workflowID, err)
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, id := range ids {
		var execution models.WorkflowExecution
		if err := r.store.read(id, &execution); err != nil {
			return nil, persistence.NewExecutionError("ListByWorkflow", id, err)
		}

		if execution.WorkflowID != workflowID {
			continue
		}

		executions = append(executions, &execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *ExecutionRepository) RequestCancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, err := r.load(id)
	if err != nil {
		return err
	}

	if execution.Finished() {
		return nil
	}

	execution.CancelRequested = true

	if err := r.store.write(id, execution); err != nil {
		return persistence.NewExecutionError("RequestCancel", id, err)
	}

	return nil
}

func (r *ExecutionRepository) load(id string) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	err := r.store.read(id, &execution)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError("ByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ByID", id, err)
	}

	return &execution, nil
}

// ExecutionLogRepository stores the node audit trail, one JSON document per
// execution holding its ordered entries.
type ExecutionLogRepository struct {
	mu    sync.Mutex
	store *store
}

func NewExecutionLogRepository(store *store) *ExecutionLogRepository {
	return &ExecutionLogRepository{store: store}
}

func (r *ExecutionLogRepository) Append(_ context.Context, entry *models.NodeExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadEntries(entry.ExecutionID)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
		}

		entry.ID = id.String()
	}

	entries = append(entries, entry)

	if err := r.store.write(entry.ExecutionID, entries); err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	return nil
}

// Finalize completes the RUNNING entry exactly once. A finalized entry is
// immutable; a second finalization is rejected.
func (r *ExecutionLogRepository) Finalize(_ context.Context, entry *models.NodeExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.loadEntries(entry.ExecutionID)
	if err != nil {
		return err
	}

	for i, existing := range entries {
		if existing.ID != entry.ID {
			continue
		}

		if existing.FinishedAt != nil {
			return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, persistence.ErrLogAlreadyFinal)
		}

		if entry.FinishedAt == nil {
			now := time.Now().UTC()
			entry.FinishedAt = &now
		}

		entries[i] = entry

		if err := r.store.write(entry.ExecutionID, entries); err != nil {
			return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, err)
		}

		return nil
	}

	return persistence.NewExecutionError("FinalizeLog", entry.ExecutionID, persistence.ErrLogNotFound)
}

func (r *ExecutionLogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadEntries(executionID)
}

func (r *ExecutionLogRepository) loadEntries(executionID string) ([]*models.NodeExecutionLog, error) {
	var entries []*models.NodeExecutionLog

	err := r.store.read(executionID, &entries)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.NodeExecutionLog{}, nil
		}

		return nil, persistence.NewExecutionError("ListLogs", executionID, err)
	}

	return entries, nil
}
