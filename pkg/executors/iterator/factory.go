package iterator

import (
	"context"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

// Factory creates iterator executors. The dispatcher is the registry,
// injected late to break the construction cycle between the registry and
// the iterator's nested dispatch.
type Factory struct {
	dispatcher BodyDispatcher
}

func NewFactory(dispatcher BodyDispatcher) *Factory {
	return &Factory{dispatcher: dispatcher}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, workflow *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, workflow, f.dispatcher)
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindIterator
}

func (f *Factory) Name() string {
	return "Iterator"
}

func (f *Factory) Description() string {
	return "Dispatches a nested node once per item of a context list, aggregating per-item outcomes"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "Dotted context path producing the item list, e.g. fetch_learners.rows",
			},
			"item_as": map[string]any{
				"type":        "string",
				"description": "Binding name each item is visible under inside the body (default: item)",
			},
			"concurrency": map[string]any{
				"type":        "number",
				"description": "Bounded sub-pool size for item fan-out (default 10, capped at 50)",
			},
			"max_error_samples": map[string]any{
				"type":        "number",
				"description": "Cap on individually recorded item errors (default 10)",
			},
			"body": map[string]any{
				"type":        "object",
				"description": "Nested node executed per item: {kind, config}",
				"properties": map[string]any{
					"kind":   map[string]any{"type": "string"},
					"config": map[string]any{"type": "object"},
				},
				"required": []any{"kind"},
			},
		},
		"required": []any{"source", "body"},
	}
}
