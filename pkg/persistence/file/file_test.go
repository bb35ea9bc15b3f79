package file

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowRepository_SaveAndLoad(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := &models.Workflow{
		Name:   "notify enrolled learners",
		Type:   models.WorkflowTypeEventDriven,
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.WorkflowNode{
			{ID: "start", Kind: models.NodeKindTrigger, Name: "Enrollment", Enabled: true},
		},
	}

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	loaded, err := p.WorkflowRepository().ByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, models.NodeKindTrigger, loaded.Nodes[0].Kind)
}

func TestWorkflowRepository_DeleteIsSoft(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := &models.Workflow{Name: "short lived", Type: models.WorkflowTypeEventDriven}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))
	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err := p.WorkflowRepository().ByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	all, err := p.WorkflowRepository().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTriggerRepository_ActiveByEvent(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	active := &models.WorkflowTrigger{
		WorkflowID: "wf-1",
		Event:      models.TriggerEventLearnerBatchEnrollment,
		Strategy:   models.StrategyContextBased,
		Active:     true,
	}
	inactive := &models.WorkflowTrigger{
		WorkflowID: "wf-2",
		Event:      models.TriggerEventLearnerBatchEnrollment,
		Active:     false,
	}
	other := &models.WorkflowTrigger{
		WorkflowID: "wf-3",
		Event:      models.TriggerEventFeePaymentOverdue,
		Active:     true,
	}

	for _, trigger := range []*models.WorkflowTrigger{active, inactive, other} {
		require.NoError(t, p.TriggerRepository().Save(ctx, trigger))
	}

	matched, err := p.TriggerRepository().ActiveByEvent(ctx, models.TriggerEventLearnerBatchEnrollment)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "wf-1", matched[0].WorkflowID)
}

func TestExecutionRepository_RequestCancel(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	execution := &models.WorkflowExecution{
		WorkflowID: "wf-1",
		Status:     models.ExecutionLogStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	require.NoError(t, p.ExecutionRepository().Save(ctx, execution))

	require.NoError(t, p.ExecutionRepository().RequestCancel(ctx, execution.ID))

	loaded, err := p.ExecutionRepository().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, loaded.CancelRequested)
}

func TestExecutionLogRepository_FinalizeExactlyOnce(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	logs := p.ExecutionLogRepository()

	entry := &models.NodeExecutionLog{
		ExecutionID: "exec-1",
		NodeID:      "fetch",
		NodeKind:    models.NodeKindQuery,
		Status:      models.ExecutionLogStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, logs.Append(ctx, entry))

	entry.Status = models.ExecutionLogStatusSuccess
	require.NoError(t, logs.Finalize(ctx, entry))

	entry.Status = models.ExecutionLogStatusFailed
	err := logs.Finalize(ctx, entry)
	assert.ErrorIs(t, err, persistence.ErrLogAlreadyFinal)

	entries, err := logs.ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ExecutionLogStatusSuccess, entries[0].Status)
	assert.NotNil(t, entries[0].FinishedAt)
}

func TestExecutionLogRepository_PreservesAppendOrder(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	logs := p.ExecutionLogRepository()

	for _, nodeID := range []string{"start", "fetch", "notify"} {
		require.NoError(t, logs.Append(ctx, &models.NodeExecutionLog{
			ExecutionID: "exec-1",
			NodeID:      nodeID,
			Status:      models.ExecutionLogStatusRunning,
			StartedAt:   time.Now().UTC(),
		}))
	}

	entries, err := logs.ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "start", entries[0].NodeID)
	assert.Equal(t, "fetch", entries[1].NodeID)
	assert.Equal(t, "notify", entries[2].NodeID)
}

func TestReservationRepository_ExactlyOneWinner(t *testing.T) {
	reservations := NewReservationRepository()
	ctx := context.Background()

	const contenders = 32

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range contenders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := reservations.Reserve(ctx, "wf-1", "trigger:t1:B42", time.Minute)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()

				return
			}

			assert.ErrorIs(t, err, persistence.ErrDuplicateReservation)
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestReservationRepository_ExpiryReopensKey(t *testing.T) {
	reservations := NewReservationRepository()
	ctx := context.Background()

	current := time.Now()
	reservations.now = func() time.Time { return current }

	require.NoError(t, reservations.Reserve(ctx, "wf-1", "k", time.Minute))
	assert.ErrorIs(t, reservations.Reserve(ctx, "wf-1", "k", time.Minute),
		persistence.ErrDuplicateReservation)

	current = current.Add(2 * time.Minute)
	assert.NoError(t, reservations.Reserve(ctx, "wf-1", "k", time.Minute))
}

func TestReservationRepository_ScopedByWorkflow(t *testing.T) {
	reservations := NewReservationRepository()
	ctx := context.Background()

	require.NoError(t, reservations.Reserve(ctx, "wf-1", "k", 0))
	assert.NoError(t, reservations.Reserve(ctx, "wf-2", "k", 0))
}
