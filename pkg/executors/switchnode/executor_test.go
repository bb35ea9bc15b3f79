package switchnode

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/campushq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func routingWorkflow(edges []*models.WorkflowEdge) (*models.Workflow, *models.WorkflowNode) {
	node := &models.WorkflowNode{
		ID:      "route",
		Kind:    models.NodeKindSwitch,
		Name:    "Route by plan",
		Enabled: true,
	}

	workflow := &models.Workflow{
		ID:    "wf-1",
		Name:  "routing",
		Nodes: []*models.WorkflowNode{node},
		Edges: edges,
	}

	return workflow, node
}

func TestExecute_FirstMatchingGuardWins(t *testing.T) {
	workflow, node := routingWorkflow([]*models.WorkflowEdge{
		{ID: "e1", SourceID: "route", TargetID: "basic", Guard: `plan == "basic"`},
		{ID: "e2", SourceID: "route", TargetID: "premium", Guard: `plan == "premium"`},
	})

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"plan": "premium"}, nil)

	result, err := NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "e2", result.SelectedEdgeID)
	assert.Equal(t, "premium", result.Output["target"])
	assert.Equal(t, false, result.Output["default"])
}

func TestExecute_LaterGuardsNotEvaluatedAfterMatch(t *testing.T) {
	// The second guard references a field that does not exist; evaluating
	// it would fail the node. A match on the first guard must short-circuit.
	workflow, node := routingWorkflow([]*models.WorkflowEdge{
		{ID: "e1", SourceID: "route", TargetID: "a", Guard: `plan == "basic"`},
		{ID: "e2", SourceID: "route", TargetID: "b", Guard: `no_such_field == "x"`},
	})

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"plan": "basic"}, nil)

	result, err := NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "e1", result.SelectedEdgeID)
}

func TestExecute_DefaultEdgeConsideredLast(t *testing.T) {
	// The default edge is declared first but must only be taken after
	// every guarded edge failed to match.
	workflow, node := routingWorkflow([]*models.WorkflowEdge{
		{ID: "fallback", SourceID: "route", TargetID: "catchall", Default: true},
		{ID: "e1", SourceID: "route", TargetID: "basic", Guard: `plan == "basic"`},
	})

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"plan": "basic"}, nil)

	result, err := NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "e1", result.SelectedEdgeID)

	execCtx = models.NewExecutionContext("exec-2", "wf-1",
		map[string]any{"plan": "enterprise"}, nil)

	result, err = NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "fallback", result.SelectedEdgeID)
	assert.Equal(t, true, result.Output["default"])
}

func TestExecute_NoMatchNoDefaultSkips(t *testing.T) {
	workflow, node := routingWorkflow([]*models.WorkflowEdge{
		{ID: "e1", SourceID: "route", TargetID: "basic", Guard: `plan == "basic"`},
	})

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"plan": "enterprise"}, nil)

	result, err := NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSkipped, result.Status)
	assert.Empty(t, result.SelectedEdgeID)
	assert.Equal(t, false, result.Output["matched"])
}

func TestExecute_GuardOnMissingFieldFails(t *testing.T) {
	workflow, node := routingWorkflow([]*models.WorkflowEdge{
		{ID: "e1", SourceID: "route", TargetID: "a", Guard: `no_such_field == "x"`},
	})

	execCtx := models.NewExecutionContext("exec-1", "wf-1", nil, nil)

	result, err := NewExecutor(node, workflow).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "e1")
}
