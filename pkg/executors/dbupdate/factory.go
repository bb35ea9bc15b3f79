package dbupdate

import (
	"context"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

type Factory struct {
	store protocol.RecordStore
}

func NewFactory(store protocol.RecordStore) *Factory {
	return &Factory{store: store}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, f.store)
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindDBUpdate
}

func (f *Factory) Name() string {
	return "Database Update"
}

func (f *Factory) Description() string {
	return "Applies a criteria-scoped update to a managed table"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table":    map[string]any{"type": "string"},
			"criteria": map[string]any{"type": "object"},
			"values":   map[string]any{"type": "object"},
		},
		"required": []any{"table", "criteria", "values"},
	}
}
