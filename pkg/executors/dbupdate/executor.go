package dbupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/template"
)

// Executor applies a criteria-scoped update to a managed table. Updates
// are not retried: a failed write may have partially applied on the
// store side and replaying it is the operator's call, not the engine's.
type Executor struct {
	node     *models.WorkflowNode
	store    protocol.RecordStore
	table    string
	criteria map[string]any
	values   map[string]any
}

func NewExecutor(node *models.WorkflowNode, store protocol.RecordStore) (*Executor, error) {
	table, ok := node.Config["table"].(string)
	if !ok || table == "" {
		return nil, errors.New("missing required field 'table'")
	}

	criteria, ok := node.Config["criteria"].(map[string]any)
	if !ok || len(criteria) == 0 {
		return nil, errors.New("missing required field 'criteria'")
	}

	values, ok := node.Config["values"].(map[string]any)
	if !ok || len(values) == 0 {
		return nil, errors.New("missing required field 'values'")
	}

	return &Executor{
		node:     node,
		store:    store,
		table:    table,
		criteria: criteria,
		values:   values,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeResult, error) {
	logger = logger.With("module", "executor:db_update", "node_id", e.node.ID, "table", e.table)

	criteria, err := renderMap(e.criteria, execCtx)
	if err != nil {
		return failure(fmt.Sprintf("rendering criteria: %s", err)), nil
	}

	values, err := renderMap(e.values, execCtx)
	if err != nil {
		return failure(fmt.Sprintf("rendering values: %s", err)), nil
	}

	affected, err := e.store.PersistUpdate(ctx, e.table, criteria, values)
	if err != nil {
		logger.ErrorContext(ctx, "update failed", "error", err)

		return failure(err.Error()), nil
	}

	logger.InfoContext(ctx, "update applied", "rows_affected", affected)

	return &models.NodeResult{
		Status: models.ExecutionLogStatusSuccess,
		Output: map[string]any{
			"table":         e.table,
			"rows_affected": affected,
		},
	}, nil
}

func renderMap(in map[string]any, execCtx *models.ExecutionContext) (map[string]any, error) {
	out := make(map[string]any, len(in))

	for key, value := range in {
		text, ok := value.(string)
		if !ok {
			out[key] = value

			continue
		}

		rendered, err := template.RenderWithContext(text, execCtx)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

func failure(message string) *models.NodeResult {
	return &models.NodeResult{
		Status:       models.ExecutionLogStatusFailed,
		ErrorMessage: message,
	}
}
