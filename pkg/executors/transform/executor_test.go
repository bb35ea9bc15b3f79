package transform

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

func transformNode(expression string) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "shape",
		Kind:    models.NodeKindTransform,
		Name:    "Shape payload",
		Config:  map[string]any{"expression": expression},
		Enabled: true,
	}
}

func TestExecute_RendersAgainstContext(t *testing.T) {
	executor, err := NewExecutor(transformNode("batch {{.trigger.batchId}} for {{.vars.tenant}}"))
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"batchId": "B42"},
		map[string]any{"tenant": "campus"})

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "batch B42 for campus", result.Output["result"])
}

func TestExecute_CoercesJSONOutput(t *testing.T) {
	executor, err := NewExecutor(transformNode(`{"batch": "{{.trigger.batchId}}"}`))
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"batchId": "B42"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"batch": "B42"}, result.Output["result"])
}

func TestExecute_ReadsPriorNodeOutput(t *testing.T) {
	executor, err := NewExecutor(transformNode("{{.nodes.fetch.total}}"))
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1", nil, nil)
	require.NoError(t, execCtx.BindNodeOutput("fetch", map[string]any{"total": 3}))

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, float64(3), result.Output["result"])
}

func TestExecute_InvalidTemplateFails(t *testing.T) {
	executor, err := NewExecutor(transformNode("{{.trigger.batchId"))
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1", nil, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "transformation failed")
}

func TestNewExecutor_RequiresExpression(t *testing.T) {
	_, err := NewExecutor(&models.WorkflowNode{ID: "shape", Config: map[string]any{}})
	assert.ErrorContains(t, err, "expression")
}
