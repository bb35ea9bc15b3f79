package httprequest

import (
	"context"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

type Factory struct {
	caller protocol.HTTPCaller
}

func NewFactory(caller protocol.HTTPCaller) *Factory {
	return &Factory{caller: caller}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, f.caller)
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindHTTPRequest
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Performs an outbound HTTP call and binds the shaped response"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string"},
			"method":  map[string]any{"type": "string"},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{"type": "string"},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number"},
					"delay":    map[string]any{"type": "number"},
				},
			},
		},
		"required": []any{"url"},
	}
}
