// Package switchnode provides the SWITCH/ROUTER node executor. Routing is
// driven by the guards on the node's outgoing edges: guards are evaluated
// in declaration order, the first true guard wins and later guards are not
// evaluated; when nothing matches the designated default edge is taken;
// with no default the node is SKIPPED and the walk ends on that branch.
package switchnode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/campushq/flowline/pkg/expr"
	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

type Executor struct {
	nodeID string
	edges  []*models.WorkflowEdge
}

func NewExecutor(node *models.WorkflowNode, workflow *models.Workflow) *Executor {
	return &Executor{
		nodeID: node.ID,
		edges:  workflow.EdgesFrom(node.ID),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	var defaultEdge *models.WorkflowEdge

	for _, edge := range e.edges {
		if edge.Default {
			if defaultEdge == nil {
				defaultEdge = edge
			}

			continue
		}

		matched, err := expr.EvalBool(edge.Guard, execCtx.Lookup)
		if err != nil {
			return &models.NodeResult{
				Status:       models.ExecutionLogStatusFailed,
				ErrorMessage: fmt.Sprintf("guard on edge %s: %v", edge.ID, err),
			}, nil
		}

		if matched {
			return e.routed(edge, false), nil
		}
	}

	if defaultEdge != nil {
		return e.routed(defaultEdge, true), nil
	}

	return &models.NodeResult{
		Status: models.ExecutionLogStatusSkipped,
		Output: map[string]any{"matched": false},
	}, nil
}

func (e *Executor) routed(edge *models.WorkflowEdge, isDefault bool) *models.NodeResult {
	return &models.NodeResult{
		Status:         models.ExecutionLogStatusSuccess,
		SelectedEdgeID: edge.ID,
		Output: map[string]any{
			"matched":  true,
			"default":  isDefault,
			"target":   edge.TargetID,
			"edge_id":  edge.ID,
			"edge_tag": edge.Label,
		},
	}
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, workflow *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, workflow), nil
}

func (f *Factory) Kind() models.NodeKind {
	return models.NodeKindSwitch
}

func (f *Factory) Name() string {
	return "Switch"
}

func (f *Factory) Description() string {
	return "Routes the walk along the first outgoing edge whose guard matches, or the default edge"
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
