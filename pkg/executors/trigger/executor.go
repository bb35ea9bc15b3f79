// Package trigger provides the TRIGGER node executor. The trigger node is
// the entry point of an event-driven workflow; by the time the walker
// reaches it the payload is already seeded into the context, so execution
// just records the entry and passes through.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

type Executor struct {
	nodeID string
	event  string
}

func NewExecutor(node *models.WorkflowNode) *Executor {
	event, _ := node.Config["event"].(string)

	return &Executor{nodeID: node.ID, event: event}
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	return &models.NodeResult{
		Status: models.ExecutionLogStatusSuccess,
		Output: map[string]any{
			"event":       e.event,
			"received_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node), nil
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindTrigger
}

func (f *Factory) Name() string {
	return "Trigger"
}

func (f *Factory) Description() string {
	return "Entry point for event-driven workflows"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event": map[string]any{
				"type":        "string",
				"description": "Domain event this workflow is entered by",
			},
		},
	}
}
