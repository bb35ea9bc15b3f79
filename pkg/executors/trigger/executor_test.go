package trigger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_PassesThroughWithEventOutput(t *testing.T) {
	node := &models.WorkflowNode{
		ID:     "entry",
		Kind:   models.NodeKindTrigger,
		Name:   "On enrollment",
		Config: map[string]any{"event": "learner.batch.enrollment"},
	}

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"batchId": "B1"}, nil)

	result, err := NewExecutor(node).Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "learner.batch.enrollment", result.Output["event"])

	receivedAt, ok := result.Output["received_at"].(string)
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339, receivedAt)
	assert.NoError(t, err)

	// The trigger never writes the context; the binder seeded it already.
	assert.Equal(t, map[string]any{"batchId": "B1"}, execCtx.TriggerData)
}

func TestExecute_MissingEventConfig(t *testing.T) {
	node := &models.WorkflowNode{ID: "entry", Kind: models.NodeKindTrigger, Name: "On anything"}

	result, err := NewExecutor(node).Execute(context.Background(),
		models.NewExecutionContext("exec-1", "wf-1", nil, nil), testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "", result.Output["event"])
}

func TestFactoryMetadata(t *testing.T) {
	factory := NewFactory()

	assert.Equal(t, models.NodeKindTrigger, factory.Kind())
	assert.NotEmpty(t, factory.Name())
	assert.NotNil(t, factory.Schema())
}
