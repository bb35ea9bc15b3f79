// Package query provides the QUERY node executor: a parameterized read
// against the data source collaborator, bound into the context as rows.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/template"
)

// Executor runs one configured query.
type Executor struct {
	nodeID   string
	queryID  string
	params   map[string]any
	optional bool

	dataSource protocol.DataSource
}

// NewExecutor builds a query executor from node config.
func NewExecutor(node *models.WorkflowNode, dataSource protocol.DataSource) (*Executor, error) {
	queryID, ok := node.Config["query_id"].(string)
	if !ok || queryID == "" {
		return nil, errors.New("missing required field 'query_id'")
	}

	params, _ := node.Config["params"].(map[string]any)
	optional, _ := node.Config["optional"].(bool)

	return &Executor{
		nodeID:     node.ID,
		queryID:    queryID,
		params:     params,
		optional:   optional,
		dataSource: dataSource,
	}, nil
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	logger = logger.With("module", "query_executor", "query_id", e.queryID)

	params, err := e.renderParams(execCtx)
	if err != nil {
		return e.failure(fmt.Sprintf("failed to render query params: %v", err)), nil
	}

	rows, err := e.dataSource.RunQuery(ctx, e.queryID, params)
	if err != nil {
		logger.ErrorContext(ctx, "Query failed", "error", err)

		return e.failure(fmt.Sprintf("query %s failed: %v", e.queryID, err)), nil
	}

	logger.InfoContext(ctx, "Query completed", "rows", len(rows))

	anyRows := make([]any, 0, len(rows))
	for _, row := range rows {
		anyRows = append(anyRows, row)
	}

	return &models.NodeResult{
		Status: models.ExecutionLogStatusSuccess,
		Output: map[string]any{
			"rows":  anyRows,
			"total": len(rows),
		},
	}, nil
}

func (e *Executor) renderParams(execCtx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(e.params))

	for name, value := range e.params {
		str, ok := value.(string)
		if !ok {
			rendered[name] = value

			continue
		}

		result, err := template.RenderWithContext(str, execCtx)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}

		rendered[name] = result
	}

	return rendered, nil
}

// failure honors the optional flag: an optional query that fails is
// recorded SKIPPED so the walk proceeds without its rows.
func (e *Executor) failure(message string) *models.NodeResult {
	status := models.ExecutionLogStatusFailed
	if e.optional {
		status = models.ExecutionLogStatusSkipped
	}

	return &models.NodeResult{
		Status:       status,
		ErrorMessage: message,
	}
}
