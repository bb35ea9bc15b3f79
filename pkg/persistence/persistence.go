// Package persistence provides the data storage abstraction layer for
// workflows, triggers, schedules, executions and their audit logs.
package persistence

import (
	"context"
	"time"

	"github.com/campushq/flowline/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	All(ctx context.Context) ([]*models.Workflow, error)
	ByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// TriggerRepository stores event-to-workflow bindings.
type TriggerRepository interface {
	ByID(ctx context.Context, id string) (*models.WorkflowTrigger, error)
	ActiveByEvent(ctx context.Context, event models.TriggerEvent) ([]*models.WorkflowTrigger, error)
	ByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error)
	Save(ctx context.Context, trigger *models.WorkflowTrigger) error
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository stores cron cadences for scheduled workflows.
type ScheduleRepository interface {
	ListActive(ctx context.Context) ([]*models.Schedule, error)
	ByID(ctx context.Context, id string) (*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores workflow runs. Save upserts: the binder
// creates the RUNNING shell and the walker finalizes it under the same ID.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	ByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowExecution, error)

	// RequestCancel flips the cancellation flag; the walker observes it
	// between node steps.
	RequestCancel(ctx context.Context, id string) error
}

// ExecutionLogRepository stores the append-only node audit trail. Append
// writes the RUNNING entry at node entry; Finalize completes that entry
// exactly once, a second finalization is ErrLogAlreadyFinal.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.NodeExecutionLog) error
	Finalize(ctx context.Context, entry *models.NodeExecutionLog) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error)
}

// ReservationRepository implements check-and-reserve for idempotency keys.
// Reserve is atomic: exactly one of N concurrent reservations of the same
// (workflow, key) pair wins, the rest get ErrDuplicateReservation.
type ReservationRepository interface {
	Reserve(ctx context.Context, workflowID, key string, ttl time.Duration) error
	Release(ctx context.Context, workflowID, key string) error
}

// Persistence bundles the repositories behind one backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TriggerRepository() TriggerRepository
	ScheduleRepository() ScheduleRepository
	ExecutionRepository() ExecutionRepository
	ExecutionLogRepository() ExecutionLogRepository
	ReservationRepository() ReservationRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
