package query

import (
	"context"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

// Factory creates query executors bound to a data source.
type Factory struct {
	dataSource protocol.DataSource
}

func NewFactory(dataSource protocol.DataSource) *Factory {
	return &Factory{dataSource: dataSource}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, f.dataSource)
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindQuery
}

func (f *Factory) Name() string {
	return "Query"
}

func (f *Factory) Description() string {
	return "Runs a parameterized read against the data source and binds the rows into the execution context"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the pre-registered query to run",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "Query parameters; string values are rendered against the execution context",
			},
			"optional": map[string]any{
				"type":        "boolean",
				"description": "When true, a failed query is recorded SKIPPED and the walk continues",
			},
		},
		"required": []any{"query_id"},
	}
}
