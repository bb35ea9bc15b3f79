package viz

import "github.com/campushq/flowline/pkg/models"

// Diagram is the read-only node/edge projection of a definition, shaped
// for rendering clients. It is derived on demand and never written back.
type Diagram struct {
	WorkflowID string         `json:"workflow_id"`
	Name       string         `json:"name"`
	Nodes      []*DiagramNode `json:"nodes"`
	Edges      []*DiagramEdge `json:"edges"`
}

type DiagramNode struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type"`
	Disabled    bool           `json:"disabled,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

type DiagramEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	Label    string `json:"label,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// Project derives the diagram structure from a definition. Node config is
// copied into the detail map so clients cannot mutate the definition
// through the projection.
func Project(workflow *models.Workflow) *Diagram {
	diagram := &Diagram{
		WorkflowID: workflow.ID,
		Name:       workflow.Name,
		Nodes:      make([]*DiagramNode, 0, len(workflow.Nodes)),
		Edges:      make([]*DiagramEdge, 0, len(workflow.Edges)),
	}

	for _, node := range workflow.Nodes {
		title := node.Name
		if title == "" {
			title = node.ID
		}

		diagram.Nodes = append(diagram.Nodes, &DiagramNode{
			ID:          node.ID,
			Title:       title,
			Description: node.Description,
			Type:        string(node.Kind),
			Disabled:    !node.Enabled,
			Detail:      copyDetail(node.Config),
		})
	}

	for _, edge := range workflow.Edges {
		diagram.Edges = append(diagram.Edges, &DiagramEdge{
			SourceID: edge.SourceID,
			TargetID: edge.TargetID,
			Label:    edgeLabel(edge),
			Default:  edge.Default,
		})
	}

	return diagram
}

func edgeLabel(edge *models.WorkflowEdge) string {
	if edge.Label != "" {
		return edge.Label
	}

	return edge.Guard
}

func copyDetail(config map[string]any) map[string]any {
	if len(config) == 0 {
		return nil
	}

	detail := make(map[string]any, len(config))
	for k, v := range config {
		detail[k] = v
	}

	return detail
}
