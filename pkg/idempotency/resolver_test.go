package idempotency

import (
	"fmt"
	"testing"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func contextWith(payload map[string]any) *models.ExecutionContext {
	return models.NewExecutionContext("exec-1", "wf-1", payload, nil)
}

func TestResolve_None_AlwaysFresh(t *testing.T) {
	resolver := NewResolver(nil)
	execCtx := contextWith(nil)

	first, err := resolver.Resolve("t1", models.StrategyNone, models.StrategyParams{}, execCtx)
	require.NoError(t, err)

	second, err := resolver.Resolve("t1", models.StrategyNone, models.StrategyParams{}, execCtx)
	require.NoError(t, err)

	assert.False(t, first.Dedup)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestResolve_UUID_NoDedupEffect(t *testing.T) {
	resolver := NewResolver(nil)

	res, err := resolver.Resolve("t1", models.StrategyUUID, models.StrategyParams{}, contextWith(nil))
	require.NoError(t, err)

	assert.False(t, res.Dedup)
	assert.NotEmpty(t, res.Key)
}

func TestResolve_TimeWindow_SameBucket(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 17, 0, time.UTC)

	first := NewResolver(fixedClock(base))
	second := NewResolver(fixedClock(base.Add(42 * time.Second)))

	params := models.StrategyParams{WindowSeconds: 60}

	a, err := first.Resolve("t1", models.StrategyTimeWindow, params, contextWith(nil))
	require.NoError(t, err)

	b, err := second.Resolve("t1", models.StrategyTimeWindow, params, contextWith(nil))
	require.NoError(t, err)

	assert.True(t, a.Dedup)
	assert.Equal(t, a.Key, b.Key)
}

func TestResolve_TimeWindow_NextBucketDiffers(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 17, 0, time.UTC)
	params := models.StrategyParams{WindowSeconds: 60}

	a, err := NewResolver(fixedClock(base)).
		Resolve("t1", models.StrategyTimeWindow, params, contextWith(nil))
	require.NoError(t, err)

	b, err := NewResolver(fixedClock(base.Add(2 * time.Minute))).
		Resolve("t1", models.StrategyTimeWindow, params, contextWith(nil))
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
}

func TestResolve_ContextBased(t *testing.T) {
	resolver := NewResolver(nil)
	params := models.StrategyParams{Fields: []string{"userId", "batchId"}}
	execCtx := contextWith(map[string]any{"userId": float64(42), "batchId": "B1"})

	res, err := resolver.Resolve("t1", models.StrategyContextBased, params, execCtx)
	require.NoError(t, err)

	assert.Equal(t, "trigger:t1:42:B1", res.Key)
	assert.True(t, res.Dedup)
}

func TestResolve_ContextBased_MissingField(t *testing.T) {
	resolver := NewResolver(nil)
	params := models.StrategyParams{Fields: []string{"userId"}}

	_, err := resolver.Resolve("t1", models.StrategyContextBased, params, contextWith(nil))

	assert.ErrorIs(t, err, ErrMissingContextField)
}

func TestResolve_ContextTimeWindow(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	resolver := NewResolver(fixedClock(at))
	params := models.StrategyParams{Fields: []string{"batchId"}, WindowSeconds: 3600}

	res, err := resolver.Resolve("t1", models.StrategyContextTimeWindow, params,
		contextWith(map[string]any{"batchId": "B1"}))
	require.NoError(t, err)

	bucket := at.Unix() / 3600 * 3600
	assert.Equal(t, fmt.Sprintf("trigger:t1:B1:%d", bucket), res.Key)
}

func TestResolve_EventBased(t *testing.T) {
	resolver := NewResolver(nil)
	execCtx := contextWith(map[string]any{"eventType": "enrollment", "eventId": "ev-9"})

	res, err := resolver.Resolve("t1", models.StrategyEventBased, models.StrategyParams{}, execCtx)
	require.NoError(t, err)

	assert.Equal(t, "trigger:t1:enrollment:ev-9", res.Key)
}

func TestResolve_CustomExpression(t *testing.T) {
	resolver := NewResolver(nil)
	params := models.StrategyParams{Expression: "'enroll:' + batchId + ':' + userId"}
	execCtx := contextWith(map[string]any{"batchId": "B1", "userId": "u7"})

	res, err := resolver.Resolve("t1", models.StrategyCustomExpression, params, execCtx)
	require.NoError(t, err)

	assert.Equal(t, "enroll:B1:u7", res.Key)
	assert.True(t, res.Dedup)
}

func TestResolve_CustomExpression_MissingField(t *testing.T) {
	resolver := NewResolver(nil)
	params := models.StrategyParams{Expression: "'k:' + ghost"}

	_, err := resolver.Resolve("t1", models.StrategyCustomExpression, params, contextWith(nil))

	assert.ErrorIs(t, err, ErrMissingContextField)
}

func TestResolve_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	resolver := NewResolver(fixedClock(at))
	params := models.StrategyParams{Fields: []string{"batchId"}, WindowSeconds: 60}
	execCtx := contextWith(map[string]any{"batchId": "B1"})

	a, err := resolver.Resolve("t1", models.StrategyContextTimeWindow, params, execCtx)
	require.NoError(t, err)

	b, err := resolver.Resolve("t1", models.StrategyContextTimeWindow, params, execCtx)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestResolve_UnknownStrategy(t *testing.T) {
	resolver := NewResolver(nil)

	_, err := resolver.Resolve("t1", "galactic", models.StrategyParams{}, contextWith(nil))

	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
