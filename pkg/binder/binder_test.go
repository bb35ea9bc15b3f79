package binder

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/engine"
	"github.com/campushq/flowline/pkg/executors/iterator"
	"github.com/campushq/flowline/pkg/executors/query"
	"github.com/campushq/flowline/pkg/executors/sendmessage"
	"github.com/campushq/flowline/pkg/executors/trigger"
	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence/file"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner finishes every execution as SUCCESS without walking nodes.
type fakeRunner struct {
	store *file.Persistence

	mu       sync.Mutex
	contexts []*models.ExecutionContext
}

func (r *fakeRunner) Run(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	execCtx *models.ExecutionContext,
) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	r.contexts = append(r.contexts, execCtx)
	r.mu.Unlock()

	now := time.Now().UTC()
	execution.Status = models.ExecutionLogStatusSuccess
	execution.FinishedAt = &now

	return execution, r.store.ExecutionRepository().Save(ctx, execution)
}

func (r *fakeRunner) runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.contexts)
}

type harness struct {
	binder *Binder
	runner *fakeRunner
	store  *file.Persistence
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	runner := &fakeRunner{store: store}
	b := NewBinder(Config{
		Logger:       testLogger(),
		Workflows:    store.WorkflowRepository(),
		Triggers:     store.TriggerRepository(),
		Executions:   store.ExecutionRepository(),
		Reservations: store.ReservationRepository(),
		Runner:       runner,
		WorkerID:     "test-worker",
	})

	return &harness{binder: b, runner: runner, store: store}
}

func (h *harness) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, h.store.WorkflowRepository().Save(context.Background(), workflow))
}

func (h *harness) saveTrigger(t *testing.T, trig *models.WorkflowTrigger) {
	t.Helper()
	require.NoError(t, h.store.TriggerRepository().Save(context.Background(), trig))
}

func (h *harness) executions(t *testing.T, workflowID string) []*models.WorkflowExecution {
	t.Helper()

	executions, err := h.store.ExecutionRepository().ListByWorkflow(context.Background(), workflowID, 0)
	require.NoError(t, err)

	return executions
}

func eventWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "enrollment reminders",
		Type:   models.WorkflowTypeEventDriven,
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			{
				ID:      "entry",
				Kind:    models.NodeKindTrigger,
				Name:    "On enrollment",
				Enabled: true,
				Config:  map[string]any{"event": string(models.TriggerEventLearnerBatchEnrollment)},
			},
		},
	}
}

func contextTrigger(workflowID string) *models.WorkflowTrigger {
	return &models.WorkflowTrigger{
		ID:         "trg-1",
		WorkflowID: workflowID,
		Event:      models.TriggerEventLearnerBatchEnrollment,
		Strategy:   models.StrategyContextBased,
		StrategyParams: models.StrategyParams{
			Fields: []string{"batchId"},
		},
		Active: true,
	}
}

func TestFireEventStartsExecution(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)
	h.saveTrigger(t, contextTrigger(workflow.ID))

	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"batchId": "B42"})
	h.binder.Wait()

	require.Equal(t, 1, h.runner.runs())

	got, ok := h.runner.contexts[0].Lookup("batchId")
	require.True(t, ok)
	assert.Equal(t, "B42", got)

	executions := h.executions(t, workflow.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionLogStatusSuccess, executions[0].Status)
	assert.Equal(t, "trigger:trg-1:B42", executions[0].IdempotencyKey)
}

func TestFireEventDuplicateDeliverySkipped(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)
	h.saveTrigger(t, contextTrigger(workflow.ID))

	payload := map[string]any{"batchId": "B42"}
	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment, payload)
	h.binder.Wait()
	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment, payload)
	h.binder.Wait()

	assert.Equal(t, 1, h.runner.runs())

	executions := h.executions(t, workflow.ID)
	require.Len(t, executions, 2)

	var skipped, succeeded int

	for _, execution := range executions {
		switch execution.Status {
		case models.ExecutionLogStatusSkipped:
			skipped++

			require.NotNil(t, execution.FinishedAt)

			logs, err := h.store.ExecutionLogRepository().ListByExecution(context.Background(), execution.ID)
			require.NoError(t, err)
			assert.Empty(t, logs)
		case models.ExecutionLogStatusSuccess:
			succeeded++
		}
	}

	assert.Equal(t, 1, skipped)
	assert.Equal(t, 1, succeeded)
}

func TestFireEventDistinctKeysBothRun(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)
	h.saveTrigger(t, contextTrigger(workflow.ID))

	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"batchId": "B42"})
	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"batchId": "B43"})
	h.binder.Wait()

	assert.Equal(t, 2, h.runner.runs())
}

func TestFireEventMissingContextFieldFailsBeforeNodes(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)
	h.saveTrigger(t, contextTrigger(workflow.ID))

	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"learnerId": "L-9"})
	h.binder.Wait()

	assert.Equal(t, 0, h.runner.runs())

	executions := h.executions(t, workflow.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionLogStatusFailed, executions[0].Status)
	assert.Contains(t, executions[0].Error, "batchId")
	require.NotNil(t, executions[0].FinishedAt)

	logs, err := h.store.ExecutionLogRepository().ListByExecution(context.Background(), executions[0].ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestFireEventIgnoresUnpublishedWorkflow(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	workflow.Status = models.WorkflowStatusDraft
	h.saveWorkflow(t, workflow)
	h.saveTrigger(t, contextTrigger(workflow.ID))

	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"batchId": "B42"})
	h.binder.Wait()

	assert.Equal(t, 0, h.runner.runs())
	assert.Empty(t, h.executions(t, workflow.ID))
}

func TestFireEventIgnoresInactiveTrigger(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)

	trig := contextTrigger(workflow.ID)
	trig.Active = false
	h.saveTrigger(t, trig)

	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment,
		map[string]any{"batchId": "B42"})
	h.binder.Wait()

	assert.Equal(t, 0, h.runner.runs())
}

func TestFireEventNoDedupStrategiesAlwaysRun(t *testing.T) {
	h := newHarness(t)
	workflow := eventWorkflow("wf-1")
	h.saveWorkflow(t, workflow)

	trig := contextTrigger(workflow.ID)
	trig.Strategy = models.StrategyNone
	trig.StrategyParams = models.StrategyParams{}
	h.saveTrigger(t, trig)

	payload := map[string]any{"batchId": "B42"}
	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment, payload)
	h.binder.Wait()
	h.binder.FireEvent(context.Background(), models.TriggerEventLearnerBatchEnrollment, payload)
	h.binder.Wait()

	assert.Equal(t, 2, h.runner.runs())
}

func TestFireScheduleTickDedupedByTickTime(t *testing.T) {
	h := newHarness(t)
	workflow := &models.Workflow{
		ID:     "wf-sched",
		Name:   "nightly report",
		Type:   models.WorkflowTypeScheduled,
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			{ID: "n1", Kind: models.NodeKindQuery, Name: "fetch", Enabled: true},
		},
	}
	h.saveWorkflow(t, workflow)

	schedule := &models.Schedule{ID: "sch-1", WorkflowID: workflow.ID, Active: true}
	tick := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)

	h.binder.FireScheduleTick(context.Background(), schedule, tick)
	h.binder.Wait()
	h.binder.FireScheduleTick(context.Background(), schedule, tick)
	h.binder.Wait()

	assert.Equal(t, 1, h.runner.runs())

	scheduledAt, ok := h.runner.contexts[0].Lookup("scheduledAt")
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T02:00:00Z", scheduledAt)

	h.binder.FireScheduleTick(context.Background(), schedule, tick.Add(24*time.Hour))
	h.binder.Wait()

	assert.Equal(t, 2, h.runner.runs())
}

// Collaborator fakes for the full-walk scenario below.

type listSource struct {
	rows []map[string]any

	mu         sync.Mutex
	lastParams map[string]any
}

func (s *listSource) RunQuery(_ context.Context, _ string, params map[string]any) ([]map[string]any, error) {
	s.mu.Lock()
	s.lastParams = params
	s.mu.Unlock()

	return s.rows, nil
}

type captureMessenger struct {
	mu       sync.Mutex
	messages []protocol.Message
}

func (m *captureMessenger) SendMessage(_ context.Context, msg protocol.Message) (*protocol.DeliveryResult, error) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	return &protocol.DeliveryResult{ProviderID: "prov-1", Accepted: true}, nil
}

// TestEnrollmentReminderScenario wires the real walker: an enrollment event
// fetches the batch roster and messages every learner, and a duplicate
// delivery of the same batch is skipped.
func TestEnrollmentReminderScenario(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	source := &listSource{rows: []map[string]any{
		{"name": "Asha", "phone": "+911111"},
		{"name": "Binod", "phone": "+912222"},
		{"name": "Chitra", "phone": "+913333"},
	}}
	messenger := &captureMessenger{}

	reg := registry.NewRegistry(testLogger())
	reg.Register(trigger.NewFactory())
	reg.Register(query.NewFactory(source))
	reg.Register(sendmessage.NewWhatsAppFactory(messenger))
	reg.Register(iterator.NewFactory(reg))

	walker := engine.NewWalker(
		testLogger(), reg,
		store.ExecutionRepository(), store.ExecutionLogRepository(),
		nil, nil, nil, "test-worker",
	)

	workflow := &models.Workflow{
		ID:     "wf-reminder",
		Name:   "enrollment reminders",
		Type:   models.WorkflowTypeEventDriven,
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			{
				ID: "entry", Kind: models.NodeKindTrigger, Name: "On enrollment", Enabled: true,
				Config: map[string]any{"event": string(models.TriggerEventLearnerBatchEnrollment)},
			},
			{
				ID: "fetch", Kind: models.NodeKindQuery, Name: "Fetch roster", Enabled: true,
				Config: map[string]any{
					"query_id": "batch_roster",
					"params":   map[string]any{"batch": "{{.trigger.batchId}}"},
				},
			},
			{
				ID: "notify", Kind: models.NodeKindIterator, Name: "Message learners", Enabled: true,
				Config: map[string]any{
					"source":  "fetch.rows",
					"item_as": "learner",
					"body": map[string]any{
						"kind": string(models.NodeKindSendWhatsApp),
						"config": map[string]any{
							"template":  "enrollment_welcome",
							"recipient": "{{.learner.phone}}",
							"variables": map[string]any{"name": "{{.learner.name}}"},
						},
					},
				},
			},
		},
		Edges: []*models.WorkflowEdge{
			{ID: "e1", SourceID: "entry", TargetID: "fetch"},
			{ID: "e2", SourceID: "fetch", TargetID: "notify"},
		},
	}

	ctx := context.Background()
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))
	require.NoError(t, store.TriggerRepository().Save(ctx, contextTrigger(workflow.ID)))

	b := NewBinder(Config{
		Logger:       testLogger(),
		Workflows:    store.WorkflowRepository(),
		Triggers:     store.TriggerRepository(),
		Executions:   store.ExecutionRepository(),
		Reservations: store.ReservationRepository(),
		Runner:       walker,
		WorkerID:     "test-worker",
	})

	payload := map[string]any{"batchId": "B42"}
	b.FireEvent(ctx, models.TriggerEventLearnerBatchEnrollment, payload)
	b.Wait()
	b.FireEvent(ctx, models.TriggerEventLearnerBatchEnrollment, payload)
	b.Wait()

	assert.Equal(t, "B42", source.lastParams["batch"])

	require.Len(t, messenger.messages, 3)

	recipients := map[string]string{}
	for _, msg := range messenger.messages {
		recipients[msg.Recipient] = msg.Variables["name"].(string)
		assert.Equal(t, "enrollment_welcome", msg.Template)
	}

	assert.Equal(t, map[string]string{
		"+911111": "Asha",
		"+912222": "Binod",
		"+913333": "Chitra",
	}, recipients)

	executions, err := store.ExecutionRepository().ListByWorkflow(ctx, workflow.ID, 0)
	require.NoError(t, err)
	require.Len(t, executions, 2)

	statuses := map[models.ExecutionLogStatus]int{}
	for _, execution := range executions {
		statuses[execution.Status]++
	}

	assert.Equal(t, 1, statuses[models.ExecutionLogStatusSuccess])
	assert.Equal(t, 1, statuses[models.ExecutionLogStatusSkipped])

	for _, execution := range executions {
		if execution.Status != models.ExecutionLogStatusSuccess {
			continue
		}

		logs, err := store.ExecutionLogRepository().ListByExecution(ctx, execution.ID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, models.NodeKindIterator, logs[2].NodeKind)
		assert.Equal(t, models.ExecutionLogStatusSuccess, logs[2].Status)
	}
}
