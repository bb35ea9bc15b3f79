package template

import (
	"testing"

	"github.com/campushq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *models.ExecutionContext {
	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"batchId": "B1", "count": float64(3)},
		map[string]any{"institute": "Northfield"},
	)

	err := execCtx.BindNodeOutput("fetch_learners", map[string]any{
		"rows": []any{
			map[string]any{"name": "Ada", "phone": "+111"},
		},
		"total": float64(1),
	})
	if err != nil {
		panic(err)
	}

	return execCtx
}

func TestRenderWithContext_TriggerField(t *testing.T) {
	result, err := RenderWithContext("{{.trigger.batchId}}", newTestContext())

	require.NoError(t, err)
	assert.Equal(t, "B1", result)
}

func TestRenderWithContext_NodeOutput(t *testing.T) {
	result, err := RenderWithContext("{{.nodes.fetch_learners.total}}", newTestContext())

	require.NoError(t, err)
	assert.InDelta(t, 1.0, result, 0)
}

func TestRenderWithContext_Variables(t *testing.T) {
	result, err := RenderWithContext("Welcome to {{.vars.institute}}", newTestContext())

	require.NoError(t, err)
	assert.Equal(t, "Welcome to Northfield", result)
}

func TestRender_CoercesJSON(t *testing.T) {
	result, err := Render(`{"a": 1}`, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, result)
}

func TestRender_CoercesBool(t *testing.T) {
	result, err := Render("true", nil)

	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRenderString_NonString(t *testing.T) {
	result, err := RenderString("{{.trigger.count}}", newTestContext())

	require.NoError(t, err)
	assert.Equal(t, "3", result)
}

func TestRenderString_KeepsRecipientLiteral(t *testing.T) {
	execCtx := models.NewExecutionContext("exec-1", "wf-1",
		map[string]any{"phone": "+5511999990000"}, nil)

	result, err := RenderString("{{.trigger.phone}}", execCtx)

	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", result)
}

func TestRenderWithContext_TopLevelBindings(t *testing.T) {
	execCtx := newTestContext()

	result, err := RenderWithContext("{{.batchId}} at {{.institute}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "B1 at Northfield", result)

	result, err = RenderWithContext("{{.fetch_learners.total}}", execCtx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result, 0)
}

func TestRenderString_IteratorItemAtTopLevel(t *testing.T) {
	parent := newTestContext()
	child := parent.Child("learner", map[string]any{"name": "Ada", "phone": "+111222333"})

	result, err := RenderString("{{.learner.phone}}", child)

	require.NoError(t, err)
	assert.Equal(t, "+111222333", result)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("{{.trigger.batchId")
	assert.Error(t, err)
}
