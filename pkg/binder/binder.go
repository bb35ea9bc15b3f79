// Package binder turns trigger deliveries and schedule ticks into
// executions. Both entry points are fire-and-forget: delivery problems are
// recorded as execution outcomes, never surfaced to the caller firing the
// event.
package binder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/campushq/flowline/pkg/eventbus"
	"github.com/campushq/flowline/pkg/events"
	"github.com/campushq/flowline/pkg/idempotency"
	"github.com/campushq/flowline/pkg/metrics"
	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxInFlight = 16

	// scheduleTickEventType tags schedule-tick reservation keys.
	scheduleTickEventType = "schedule.tick"
)

// ExecutionRunner walks one execution to a terminal status. Implemented by
// engine.Walker.
type ExecutionRunner interface {
	Run(ctx context.Context, workflow *models.Workflow, execution *models.WorkflowExecution, execCtx *models.ExecutionContext) (*models.WorkflowExecution, error)
}

// Binder binds deliveries to workflows: it resolves the idempotency key,
// reserves it, creates the execution record and hands it to the runner on
// a bounded pool.
type Binder struct {
	logger       *slog.Logger
	workflows    persistence.WorkflowRepository
	triggers     persistence.TriggerRepository
	executions   persistence.ExecutionRepository
	reservations persistence.ReservationRepository
	runner       ExecutionRunner
	resolver     *idempotency.Resolver
	publisher    eventbus.EventPublisher
	metrics      *metrics.Metrics
	workerID     string

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// Config wires a binder.
type Config struct {
	Logger       *slog.Logger
	Workflows    persistence.WorkflowRepository
	Triggers     persistence.TriggerRepository
	Executions   persistence.ExecutionRepository
	Reservations persistence.ReservationRepository
	Runner       ExecutionRunner
	Resolver     *idempotency.Resolver
	Publisher    eventbus.EventPublisher
	Metrics      *metrics.Metrics
	WorkerID     string

	// MaxInFlight bounds concurrent executions; zero means the default.
	MaxInFlight int64
}

func NewBinder(cfg Config) *Binder {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}

	if cfg.Resolver == nil {
		cfg.Resolver = idempotency.NewResolver(nil)
	}

	return &Binder{
		logger:       cfg.Logger.With("module", "binder"),
		workflows:    cfg.Workflows,
		triggers:     cfg.Triggers,
		executions:   cfg.Executions,
		reservations: cfg.Reservations,
		runner:       cfg.Runner,
		resolver:     cfg.Resolver,
		publisher:    cfg.Publisher,
		metrics:      cfg.Metrics,
		workerID:     cfg.WorkerID,
		sem:          semaphore.NewWeighted(cfg.MaxInFlight),
	}
}

// FireEvent delivers a domain event to every active trigger bound to it.
// It never returns an error: the caller emitting the event has no say in
// what workflows do with it.
func (b *Binder) FireEvent(ctx context.Context, event models.TriggerEvent, payload map[string]any) {
	triggers, err := b.triggers.ActiveByEvent(ctx, event)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to load triggers for event",
			"event", string(event), "error", err)

		return
	}

	if len(triggers) == 0 {
		b.logger.DebugContext(ctx, "No active triggers for event", "event", string(event))

		return
	}

	for _, trigger := range triggers {
		b.submit(ctx, func(ctx context.Context) {
			b.bindTrigger(ctx, trigger, payload)
		})
	}
}

// FireScheduleTick delivers one schedule tick. The reservation key is
// derived from the scheduled time, so competing scheduler instances firing
// the same tick produce exactly one execution.
func (b *Binder) FireScheduleTick(ctx context.Context, schedule *models.Schedule, tickAt time.Time) {
	tick := tickAt.UTC().Truncate(time.Second)

	b.submit(ctx, func(ctx context.Context) {
		b.bindScheduleTick(ctx, schedule, tick)
	})
}

// Wait drains in-flight executions, for shutdown.
func (b *Binder) Wait() {
	b.wg.Wait()
}

func (b *Binder) submit(ctx context.Context, job func(ctx context.Context)) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.logger.WarnContext(ctx, "Dropping delivery, binder shutting down", "error", err)

		return
	}

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)

		job(ctx)
	}()
}

func (b *Binder) bindTrigger(ctx context.Context, trigger *models.WorkflowTrigger, payload map[string]any) {
	logger := b.logger.With("trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

	workflow, err := b.workflows.ByID(ctx, trigger.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflow for trigger", "error", err)

		return
	}

	if !workflow.IsExecutable() || workflow.Type != models.WorkflowTypeEventDriven {
		logger.DebugContext(ctx, "Workflow not executable, ignoring delivery",
			"status", string(workflow.Status), "type", string(workflow.Type))

		return
	}

	executionID := newExecutionID()
	execCtx := models.NewExecutionContext(executionID, workflow.ID, payload, workflow.Variables)

	resolution, err := b.resolver.Resolve(trigger.ID, trigger.Strategy, trigger.StrategyParams, execCtx)
	if err != nil {
		// A key that cannot be derived fails the execution before any
		// node runs; the audit record still exists.
		logger.WarnContext(ctx, "Idempotency key resolution failed", "error", err)
		b.recordStillborn(ctx, workflow, executionID, "", models.ExecutionLogStatusFailed,
			"idempotency key resolution failed: "+err.Error(), trigger.ID)

		return
	}

	if resolution.Dedup {
		won := b.reserve(ctx, workflow, trigger.ID, executionID, resolution.Key,
			reservationTTL(trigger.StrategyParams))
		if !won {
			return
		}
	}

	b.start(ctx, workflow, trigger.ID, executionID, resolution.Key, execCtx)
}

func (b *Binder) bindScheduleTick(ctx context.Context, schedule *models.Schedule, tick time.Time) {
	logger := b.logger.With("schedule_id", schedule.ID, "workflow_id", schedule.WorkflowID)

	workflow, err := b.workflows.ByID(ctx, schedule.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load workflow for schedule", "error", err)

		return
	}

	if !workflow.IsExecutable() || workflow.Type != models.WorkflowTypeScheduled {
		logger.DebugContext(ctx, "Workflow not executable, ignoring tick",
			"status", string(workflow.Status), "type", string(workflow.Type))

		return
	}

	executionID := newExecutionID()
	key := idempotency.EventKey(schedule.ID, scheduleTickEventType, tick.Format(time.RFC3339))

	if won := b.reserve(ctx, workflow, schedule.ID, executionID, key, 0); !won {
		return
	}

	execCtx := models.NewExecutionContext(executionID, workflow.ID, map[string]any{
		"scheduleId":  schedule.ID,
		"scheduledAt": tick.Format(time.RFC3339),
	}, workflow.Variables)

	b.start(ctx, workflow, schedule.ID, executionID, key, execCtx)
}

// reserve claims the key. Losing the race records a SKIPPED execution
// shell with zero node logs and reports whether the caller may proceed.
func (b *Binder) reserve(
	ctx context.Context,
	workflow *models.Workflow,
	triggerID, executionID, key string,
	ttl time.Duration,
) bool {
	err := b.reservations.Reserve(ctx, workflow.ID, key, ttl)
	if err == nil {
		return true
	}

	if errors.Is(err, persistence.ErrDuplicateReservation) {
		b.logger.InfoContext(ctx, "Duplicate delivery skipped",
			"workflow_id", workflow.ID, "idempotency_key", key)

		if b.metrics != nil {
			b.metrics.DuplicatesSkipped.Inc()
		}

		b.recordStillborn(ctx, workflow, executionID, key,
			models.ExecutionLogStatusSkipped, "", triggerID)

		return false
	}

	b.logger.ErrorContext(ctx, "Reservation failed",
		"workflow_id", workflow.ID, "idempotency_key", key, "error", err)

	if b.metrics != nil {
		b.metrics.ReservationFailures.Inc()
	}

	b.recordStillborn(ctx, workflow, executionID, key,
		models.ExecutionLogStatusFailed, "reservation failed: "+err.Error(), triggerID)

	return false
}

// recordStillborn persists an execution that never ran a node: a duplicate
// delivery (SKIPPED) or an unresolvable key (FAILED).
func (b *Binder) recordStillborn(
	ctx context.Context,
	workflow *models.Workflow,
	executionID, key string,
	status models.ExecutionLogStatus,
	errorMessage, triggerID string,
) {
	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:             executionID,
		WorkflowID:     workflow.ID,
		IdempotencyKey: key,
		Status:         status,
		Error:          errorMessage,
		StartedAt:      now,
		FinishedAt:     &now,
	}

	if err := b.executions.Save(ctx, execution); err != nil {
		b.logger.ErrorContext(ctx, "Failed to persist execution shell",
			"execution_id", executionID, "error", err)

		return
	}

	b.publish(ctx, workflow, execution, triggerID)
}

func (b *Binder) start(
	ctx context.Context,
	workflow *models.Workflow,
	triggerID, executionID, key string,
	execCtx *models.ExecutionContext,
) {
	execution := &models.WorkflowExecution{
		ID:             executionID,
		WorkflowID:     workflow.ID,
		IdempotencyKey: key,
		Status:         models.ExecutionLogStatusRunning,
		StartedAt:      time.Now().UTC(),
	}

	if err := b.executions.Save(ctx, execution); err != nil {
		b.logger.ErrorContext(ctx, "Failed to persist execution",
			"execution_id", executionID, "error", err)

		return
	}

	b.publish(ctx, workflow, execution, triggerID)

	if _, err := b.runner.Run(ctx, workflow, execution, execCtx); err != nil {
		b.logger.ErrorContext(ctx, "Execution walk aborted",
			"execution_id", executionID, "error", err)
	}
}

func (b *Binder) publish(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	triggerID string,
) {
	if b.publisher == nil {
		return
	}

	base := events.BaseEvent{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflow.ID,
		WorkerID:   b.workerID,
	}

	var event eventbus.Event

	switch execution.Status {
	case models.ExecutionLogStatusRunning:
		base.Type = events.ExecutionStartedEvent
		event = events.ExecutionStarted{
			BaseEvent:      base,
			ExecutionID:    execution.ID,
			TriggerID:      triggerID,
			IdempotencyKey: execution.IdempotencyKey,
		}
	case models.ExecutionLogStatusSkipped:
		base.Type = events.ExecutionSkippedEvent
		event = events.ExecutionSkipped{
			BaseEvent:      base,
			ExecutionID:    execution.ID,
			TriggerID:      triggerID,
			IdempotencyKey: execution.IdempotencyKey,
		}
	default:
		base.Type = events.ExecutionFailedEvent
		event = events.ExecutionFailed{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			Error:       execution.Error,
		}
	}

	if err := b.publisher.Publish(ctx, execution.ID, event); err != nil {
		b.logger.WarnContext(ctx, "Failed to publish binder event",
			"execution_id", execution.ID, "error", err)
	}
}

// reservationTTL sizes the reservation lifetime: windowed keys only need
// to survive their window, everything else is kept until released.
func reservationTTL(params models.StrategyParams) time.Duration {
	if params.WindowSeconds > 0 {
		return 2 * time.Duration(params.WindowSeconds) * time.Second
	}

	return 0
}

func newExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}
