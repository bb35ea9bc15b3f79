package dbupdate

import (
	"context"
	"errors"
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

type fakeStore struct {
	affected int64
	err      error
	calls    int

	lastTable    string
	lastCriteria map[string]any
	lastValues   map[string]any
}

func (s *fakeStore) PersistUpdate(_ context.Context, table string, criteria, values map[string]any) (int64, error) {
	s.calls++
	s.lastTable = table
	s.lastCriteria = criteria
	s.lastValues = values

	return s.affected, s.err
}

func updateNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      "mark_notified",
		Kind:    models.NodeKindDBUpdate,
		Name:    "Mark learners notified",
		Config:  config,
		Enabled: true,
	}
}

func TestExecute_AppliesRenderedUpdate(t *testing.T) {
	store := &fakeStore{affected: 3}

	executor, err := NewExecutor(updateNode(map[string]any{
		"table":    "enrollments",
		"criteria": map[string]any{"batch_id": "{{.trigger.batchId}}"},
		"values":   map[string]any{"notified": true, "channel": "whatsapp"},
	}), store)
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"batchId": "B42"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, int64(3), result.Output["rows_affected"])
	assert.Equal(t, "enrollments", result.Output["table"])

	assert.Equal(t, "B42", store.lastCriteria["batch_id"])
	assert.Equal(t, true, store.lastValues["notified"])
	assert.Equal(t, "whatsapp", store.lastValues["channel"])
}

func TestExecute_StoreErrorFailsWithoutRetry(t *testing.T) {
	store := &fakeStore{err: errors.New("unique constraint violation")}

	executor, err := NewExecutor(updateNode(map[string]any{
		"table":    "enrollments",
		"criteria": map[string]any{"id": "e1"},
		"values":   map[string]any{"notified": true},
	}), store)
	require.NoError(t, err)

	execCtx := models.NewExecutionContext("exec-1", "wf-1", nil, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "unique constraint")
	assert.Equal(t, 1, store.calls)
}

func TestNewExecutor_ConfigValidation(t *testing.T) {
	store := &fakeStore{}

	_, err := NewExecutor(updateNode(map[string]any{
		"criteria": map[string]any{"id": "e1"},
		"values":   map[string]any{"notified": true},
	}), store)
	assert.ErrorContains(t, err, "table")

	_, err = NewExecutor(updateNode(map[string]any{
		"table":  "enrollments",
		"values": map[string]any{"notified": true},
	}), store)
	assert.ErrorContains(t, err, "criteria")

	_, err = NewExecutor(updateNode(map[string]any{
		"table":    "enrollments",
		"criteria": map[string]any{"id": "e1"},
	}), store)
	assert.ErrorContains(t, err, "values")
}
