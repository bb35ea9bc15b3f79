package sendmessage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMessenger struct {
	calls    int
	messages []protocol.Message

	// errs[i] is returned for call i; calls past the slice succeed.
	errs []error
}

func (m *fakeMessenger) SendMessage(_ context.Context, msg protocol.Message) (*protocol.DeliveryResult, error) {
	m.calls++
	m.messages = append(m.messages, msg)

	if m.calls <= len(m.errs) && m.errs[m.calls-1] != nil {
		return nil, m.errs[m.calls-1]
	}

	return &protocol.DeliveryResult{ProviderID: "msg-123", Accepted: true}, nil
}

func sendNode(config map[string]any) *models.WorkflowNode {
	if config == nil {
		config = map[string]any{
			"template":  "enrollment_welcome",
			"recipient": "{{.trigger.phone}}",
		}
	}

	return &models.WorkflowNode{
		ID:      "notify",
		Kind:    models.NodeKindSendWhatsApp,
		Name:    "Welcome message",
		Config:  config,
		Enabled: true,
	}
}

func newTestExecutor(t *testing.T, config map[string]any, messenger protocol.Messenger) *Executor {
	t.Helper()

	executor, err := NewExecutor(sendNode(config), protocol.ChannelWhatsApp, messenger)
	require.NoError(t, err)

	executor.sleep = func(time.Duration) {}

	return executor
}

func TestExecute_DeliversRenderedMessage(t *testing.T) {
	messenger := &fakeMessenger{}
	executor := newTestExecutor(t, map[string]any{
		"template":  "enrollment_welcome",
		"recipient": "{{.trigger.phone}}",
		"variables": map[string]any{
			"name":   "{{.trigger.name}}",
			"course": "Algebra I",
		},
	}, messenger)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"phone": "+5511999990000", "name": "Ana"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, "msg-123", result.Output["provider_id"])
	assert.Equal(t, true, result.Output["accepted"])
	assert.Equal(t, "whatsapp", result.Output["channel"])

	require.Len(t, messenger.messages, 1)
	sent := messenger.messages[0]
	assert.Equal(t, "+5511999990000", sent.Recipient)
	assert.Equal(t, "enrollment_welcome", sent.Template)
	assert.Equal(t, "Ana", sent.Variables["name"])
	assert.Equal(t, "Algebra I", sent.Variables["course"])
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	messenger := &fakeMessenger{errs: []error{
		protocol.Transient(errors.New("rate limited")),
		protocol.Transient(errors.New("rate limited")),
	}}

	executor := newTestExecutor(t, nil, messenger)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"phone": "+551"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusSuccess, result.Status)
	assert.Equal(t, 3, messenger.calls)
}

func TestExecute_PermanentRejectionDoesNotRetry(t *testing.T) {
	messenger := &fakeMessenger{errs: []error{
		errors.New("invalid recipient"),
	}}

	executor := newTestExecutor(t, nil, messenger)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"phone": "+551"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "invalid recipient")
	assert.Equal(t, 1, messenger.calls)
}

func TestExecute_ExhaustedRetriesFail(t *testing.T) {
	messenger := &fakeMessenger{errs: []error{
		protocol.Transient(errors.New("timeout")),
		protocol.Transient(errors.New("timeout")),
	}}

	executor := newTestExecutor(t, map[string]any{
		"template":  "enrollment_welcome",
		"recipient": "{{.trigger.phone}}",
		"retry":     map[string]any{"attempts": float64(2), "delay": float64(0)},
	}, messenger)

	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"phone": "+551"}, nil)

	result, err := executor.Execute(context.Background(), execCtx, testLogger())
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionLogStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "timeout")
	assert.Equal(t, 2, messenger.calls)
}

func TestNewExecutor_ConfigValidation(t *testing.T) {
	messenger := &fakeMessenger{}

	_, err := NewExecutor(&models.WorkflowNode{
		ID:     "notify",
		Config: map[string]any{"recipient": "x"},
	}, protocol.ChannelEmail, messenger)
	assert.ErrorContains(t, err, "template")

	_, err = NewExecutor(&models.WorkflowNode{
		ID:     "notify",
		Config: map[string]any{"template": "x"},
	}, protocol.ChannelEmail, messenger)
	assert.ErrorContains(t, err, "recipient")
}
