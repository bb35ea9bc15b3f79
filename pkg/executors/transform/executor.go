// Package transform provides the TRANSFORM node executor: a pure template
// mapping over context fields.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/template"
)

type Executor struct {
	nodeID     string
	expression string
}

func NewExecutor(node *models.WorkflowNode) (*Executor, error) {
	expression, ok := node.Config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	return &Executor{nodeID: node.ID, expression: expression}, nil
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	result, err := template.RenderWithContext(e.expression, execCtx)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: fmt.Sprintf("transformation failed: %v", err),
		}, nil
	}

	return &models.NodeResult{
		Status: models.ExecutionLogStatusSuccess,
		Output: map[string]any{"result": result},
	}, nil
}

// Factory creates transform executors.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node)
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindTransform
}

func (f *Factory) Name() string {
	return "Transform"
}

func (f *Factory) Description() string {
	return "Applies a template expression over context fields and binds the result"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Template expression with access to trigger data, variables and node outputs",
			},
		},
		"required": []any{"expression"},
	}
}
