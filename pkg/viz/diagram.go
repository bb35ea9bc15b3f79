// Package viz derives read-only diagram views of workflow definitions: a
// structured node/edge projection for rendering clients and a Mermaid
// flowchart for dashboards and reviews.
package viz

import (
	"fmt"
	"strings"

	"github.com/campushq/flowline/pkg/models"
)

// Mermaid renders the definition as a top-down flowchart. Disabled nodes
// are dashed, switch nodes are diamonds and guarded edges carry their
// guard as the label.
func Mermaid(workflow *models.Workflow) string {
	var b strings.Builder

	b.WriteString("flowchart TD\n")

	for _, node := range workflow.Nodes {
		b.WriteString("    ")
		b.WriteString(nodeShape(node))
		b.WriteString("\n")

		if !node.Enabled {
			fmt.Fprintf(&b, "    style %s stroke-dasharray: 5 5\n", node.ID)
		}
	}

	for _, edge := range workflow.Edges {
		b.WriteString("    ")
		b.WriteString(edgeLine(edge))
		b.WriteString("\n")
	}

	return b.String()
}

func nodeShape(node *models.WorkflowNode) string {
	label := escape(node.Name)
	if label == "" {
		label = node.ID
	}

	switch node.Kind {
	case models.NodeKindTrigger:
		return fmt.Sprintf("%s([%s])", node.ID, label)
	case models.NodeKindSwitch:
		return fmt.Sprintf("%s{%s}", node.ID, label)
	case models.NodeKindIterator:
		return fmt.Sprintf("%s[[%s]]", node.ID, label)
	default:
		return fmt.Sprintf("%s[%s]", node.ID, label)
	}
}

func edgeLine(edge *models.WorkflowEdge) string {
	label := edgeLabel(edge)

	if edge.Default {
		if label == "" {
			label = "default"
		}

		return fmt.Sprintf("%s -.->|%s| %s", edge.SourceID, escape(label), edge.TargetID)
	}

	if label != "" {
		return fmt.Sprintf("%s -->|%s| %s", edge.SourceID, escape(label), edge.TargetID)
	}

	return fmt.Sprintf("%s --> %s", edge.SourceID, edge.TargetID)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")

	return s
}
