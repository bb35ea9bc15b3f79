// Package engine walks workflow graphs: it dispatches each node to its
// executor, records the append-only audit trail, binds outputs into the
// execution context and rolls node outcomes up into the execution status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campushq/flowline/pkg/eventbus"
	"github.com/campushq/flowline/pkg/events"
	"github.com/campushq/flowline/pkg/expr"
	"github.com/campushq/flowline/pkg/metrics"
	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/otelhelper"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/campushq/flowline/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const cancelledMessage = "cancelled"

// Walker runs one execution from its entry node to a terminal status. It
// owns the execution exclusively: no other goroutine mutates the execution
// or its context while a walk is in flight.
type Walker struct {
	logger     *slog.Logger
	registry   *registry.Registry
	executions persistence.ExecutionRepository
	logs       persistence.ExecutionLogRepository
	publisher  eventbus.EventPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	workerID   string
}

// NewWalker wires a walker. Publisher and metrics may be nil; tracing
// defaults to a no-op tracer.
func NewWalker(
	logger *slog.Logger,
	reg *registry.Registry,
	executions persistence.ExecutionRepository,
	logs persistence.ExecutionLogRepository,
	publisher eventbus.EventPublisher,
	m *metrics.Metrics,
	tracer trace.Tracer,
	workerID string,
) *Walker {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("engine")
	}

	return &Walker{
		logger:     logger.With("module", "engine"),
		registry:   reg,
		executions: executions,
		logs:       logs,
		publisher:  publisher,
		metrics:    m,
		tracer:     tracer,
		workerID:   workerID,
	}
}

// Run walks the workflow for the given execution. The returned execution
// is terminal; Run only returns an error when persistence itself fails.
func (w *Walker) Run(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	execCtx *models.ExecutionContext,
) (*models.WorkflowExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "engine.walk",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()

	logger := w.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)

	node, err := workflow.EntryNode()
	if err != nil {
		return w.finalize(ctx, workflow, execution, execCtx,
			models.ExecutionLogStatusFailed, fmt.Sprintf("no entry node: %v", err))
	}

	rollup := models.ExecutionLogStatus("")

	// A walk visits each node at most once; a terminal node never re-enters
	// RUNNING. Revisiting one means the definition has a cycle, and the walk
	// fails before the node's executor can run a second time.
	visited := make(map[string]bool, len(workflow.Nodes))

	for node != nil {
		if visited[node.ID] {
			return w.finalize(ctx, workflow, execution, execCtx,
				models.ExecutionLogStatusFailed,
				fmt.Sprintf("walk revisited node %s, definition has a cycle", node.ID))
		}

		visited[node.ID] = true

		cancelled, err := w.cancellationRequested(ctx, execution)
		if err != nil {
			return nil, err
		}

		if cancelled {
			logger.InfoContext(ctx, "Execution cancelled", "at_node", node.ID)

			execution.CancelRequested = true

			return w.finalize(ctx, workflow, execution, execCtx,
				models.ExecutionLogStatusFailed, cancelledMessage)
		}

		if !node.Enabled {
			logger.InfoContext(ctx, "Skipping disabled node", "node_id", node.ID)

			node, err = w.nextNode(workflow, node, &models.NodeResult{Status: models.ExecutionLogStatusSkipped}, execCtx)
			if err != nil {
				return w.finalize(ctx, workflow, execution, execCtx,
					models.ExecutionLogStatusFailed, err.Error())
			}

			continue
		}

		result, err := w.runNode(ctx, workflow, execution, node, execCtx, logger)
		if err != nil {
			return nil, err
		}

		rollup = rollup.Dominate(result.Status)

		if result.Status == models.ExecutionLogStatusFailed && !node.ContinueOnError {
			return w.finalize(ctx, workflow, execution, execCtx,
				models.ExecutionLogStatusFailed, result.ErrorMessage)
		}

		node, err = w.nextNode(workflow, node, result, execCtx)
		if err != nil {
			return w.finalize(ctx, workflow, execution, execCtx,
				models.ExecutionLogStatusFailed, err.Error())
		}
	}

	if rollup == "" {
		rollup = models.ExecutionLogStatusSuccess
	}

	return w.finalize(ctx, workflow, execution, execCtx, rollup, "")
}

// runNode records the two-phase audit entry around one node dispatch:
// RUNNING is appended before the executor starts and the same entry is
// finalized exactly once with the outcome.
func (w *Walker) runNode(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	node *models.WorkflowNode,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "engine.node",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
	)
	defer span.End()

	entry := &models.NodeExecutionLog{
		ExecutionID: execution.ID,
		NodeID:      node.ID,
		NodeKind:    node.Kind,
		Status:      models.ExecutionLogStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	if err := w.logs.Append(ctx, entry); err != nil {
		return nil, err
	}

	result := w.dispatch(ctx, workflow, node, execCtx, logger)

	// Output is bound before the audit entry is finalized, so a binding
	// conflict and the log entry agree on the outcome.
	if result.Status != models.ExecutionLogStatusFailed && result.Output != nil {
		if err := execCtx.BindNodeOutput(node.ID, result.Output); err != nil {
			result = &models.NodeResult{
				Status:       models.ExecutionLogStatusFailed,
				ErrorMessage: err.Error(),
			}
		}
	}

	entry.Status = result.Status
	entry.Items = result.Items
	entry.Error = result.ErrorMessage

	if err := w.logs.Finalize(ctx, entry); err != nil {
		return nil, err
	}

	if result.Status == models.ExecutionLogStatusFailed {
		otelhelper.SetError(span, errors.New(result.ErrorMessage),
			attribute.String(otelhelper.NodeIDKey, node.ID))
	}

	w.observeNode(ctx, workflow, execution, node, result)

	return result, nil
}

// dispatch creates and runs the node's executor. Executor errors never
// propagate as Go errors out of the walk; they become FAILED results.
func (w *Walker) dispatch(
	ctx context.Context,
	workflow *models.Workflow,
	node *models.WorkflowNode,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) *models.NodeResult {
	executor, err := w.registry.CreateExecutor(ctx, node, workflow)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: fmt.Sprintf("node %s: %v", node.ID, err),
		}
	}

	result, err := executor.Execute(ctx, execCtx, logger)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: fmt.Sprintf("node %s: %v", node.ID, err),
		}
	}

	if result == nil {
		return &models.NodeResult{Status: models.ExecutionLogStatusSuccess}
	}

	return result
}

// nextNode picks the edge the walk follows out of a finished node. Switch
// nodes pick their own route; for everything else guards are evaluated in
// declaration order, an unguarded edge always matches and the default edge
// is considered last.
func (w *Walker) nextNode(
	workflow *models.Workflow,
	node *models.WorkflowNode,
	result *models.NodeResult,
	execCtx *models.ExecutionContext,
) (*models.WorkflowNode, error) {
	edges := workflow.EdgesFrom(node.ID)
	if len(edges) == 0 {
		return nil, nil
	}

	if result.SelectedEdgeID != "" {
		for _, edge := range edges {
			if edge.ID == result.SelectedEdgeID {
				return workflow.NodeByID(edge.TargetID), nil
			}
		}

		return nil, fmt.Errorf("node %s selected unknown edge %s", node.ID, result.SelectedEdgeID)
	}

	if node.Kind == models.NodeKindSwitch {
		// A skipped switch matched nothing; that branch of the walk ends.
		return nil, nil
	}

	var defaultEdge *models.WorkflowEdge

	for _, edge := range edges {
		if edge.Default {
			if defaultEdge == nil {
				defaultEdge = edge
			}

			continue
		}

		if edge.Guard == "" {
			return workflow.NodeByID(edge.TargetID), nil
		}

		matched, err := expr.EvalBool(edge.Guard, execCtx.Lookup)
		if err != nil {
			return nil, fmt.Errorf("guard on edge %s: %w", edge.ID, err)
		}

		if matched {
			return workflow.NodeByID(edge.TargetID), nil
		}
	}

	if defaultEdge != nil {
		return workflow.NodeByID(defaultEdge.TargetID), nil
	}

	return nil, nil
}

// cancellationRequested checks both the Go context and the persisted
// cancellation flag. The flag is only observed between nodes; a node that
// already started always runs to completion.
func (w *Walker) cancellationRequested(ctx context.Context, execution *models.WorkflowExecution) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}

	current, err := w.executions.ByID(ctx, execution.ID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return current.CancelRequested, nil
}

func (w *Walker) finalize(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	execCtx *models.ExecutionContext,
	status models.ExecutionLogStatus,
	errorMessage string,
) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()

	execution.Status = status
	execution.Error = errorMessage
	execution.Context = execCtx
	execution.FinishedAt = &now

	if err := w.executions.Save(ctx, execution); err != nil {
		return nil, err
	}

	if status == models.ExecutionLogStatusFailed && errorMessage != "" {
		otelhelper.SetError(trace.SpanFromContext(ctx), errors.New(errorMessage),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	}

	duration := now.Sub(execution.StartedAt)

	w.logger.InfoContext(ctx, "Execution finished",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"status", string(status),
		"duration", duration,
	)

	if w.metrics != nil {
		w.metrics.ExecutionsTotal.WithLabelValues(workflow.ID, string(status)).Inc()
		w.metrics.ExecutionDuration.WithLabelValues(workflow.ID).Observe(duration.Seconds())
	}

	w.publishCompletion(ctx, workflow, execution, duration)

	return execution, nil
}

func (w *Walker) publishCompletion(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	duration time.Duration,
) {
	if w.publisher == nil {
		return
	}

	base := events.BaseEvent{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflow.ID,
		WorkerID:   w.workerID,
	}

	var (
		event eventbus.Event
		kind  string
	)

	if execution.Status == models.ExecutionLogStatusFailed {
		base.Type = events.ExecutionFailedEvent
		kind = "failed"
		event = events.ExecutionFailed{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			Error:       execution.Error,
			Duration:    duration,
		}
	} else {
		base.Type = events.ExecutionCompletedEvent
		kind = "completed"
		event = events.ExecutionCompleted{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			Status:      execution.Status,
			Duration:    duration,
		}
	}

	if err := w.publisher.Publish(ctx, execution.ID, event); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish execution event",
			"event", kind, "execution_id", execution.ID, "error", err)
	}
}

func (w *Walker) observeNode(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	node *models.WorkflowNode,
	result *models.NodeResult,
) {
	if w.metrics != nil {
		w.metrics.NodesTotal.WithLabelValues(string(node.Kind), string(result.Status)).Inc()

		if result.Items != nil {
			w.metrics.IteratorItemsTotal.WithLabelValues("succeeded").Add(float64(result.Items.Succeeded))
			w.metrics.IteratorItemsTotal.WithLabelValues("failed").Add(float64(result.Items.Failed))
		}
	}

	if w.publisher == nil {
		return
	}

	base := events.BaseEvent{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflow.ID,
		WorkerID:   w.workerID,
	}

	var event eventbus.Event

	if result.Status == models.ExecutionLogStatusFailed {
		base.Type = events.NodeFailedEvent
		event = events.NodeFailed{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			NodeKind:    node.Kind,
			Error:       result.ErrorMessage,
		}
	} else {
		base.Type = events.NodeFinishedEvent
		event = events.NodeFinished{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			NodeKind:    node.Kind,
			Status:      result.Status,
			Items:       result.Items,
		}
	}

	if err := w.publisher.Publish(ctx, execution.ID, event); err != nil {
		w.logger.WarnContext(ctx, "Failed to publish node event",
			"node_id", node.ID, "execution_id", execution.ID, "error", err)
	}
}
