package viz

import (
	"testing"

	"github.com/campushq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMermaidRendersShapesAndEdges(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{
			{ID: "entry", Kind: models.NodeKindTrigger, Name: "On payment", Enabled: true},
			{ID: "route", Kind: models.NodeKindSwitch, Name: "By amount", Enabled: true},
			{ID: "notify", Kind: models.NodeKindIterator, Name: "Send receipts", Enabled: true},
			{ID: "log", Kind: models.NodeKindTransform, Name: "Summarize", Enabled: false},
		},
		Edges: []*models.WorkflowEdge{
			{ID: "e1", SourceID: "entry", TargetID: "route"},
			{ID: "e2", SourceID: "route", TargetID: "notify", Guard: "{{gt .amount 1000}}"},
			{ID: "e3", SourceID: "route", TargetID: "log", Default: true},
		},
	}

	out := Mermaid(workflow)

	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, "entry([On payment])")
	assert.Contains(t, out, "route{By amount}")
	assert.Contains(t, out, "notify[[Send receipts]]")
	assert.Contains(t, out, "log[Summarize]")
	assert.Contains(t, out, "style log stroke-dasharray: 5 5")
	assert.Contains(t, out, "entry --> route")
	assert.Contains(t, out, "route -->|{{gt .amount 1000}}| notify")
	assert.Contains(t, out, "route -.->|default| log")
}

func TestMermaidEscapesLabels(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{
			{ID: "n1", Kind: models.NodeKindQuery, Name: `Fetch "open" | overdue`, Enabled: true},
		},
	}

	out := Mermaid(workflow)

	assert.Contains(t, out, "n1[Fetch 'open' / overdue]")
	assert.NotContains(t, out, `"open"`)
}
