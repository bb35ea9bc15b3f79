// Package models defines the core domain models for the workflow execution engine.
package models

import (
	"errors"
	"time"
)

// WorkflowType distinguishes how a workflow is entered.
type WorkflowType string

const (
	WorkflowTypeScheduled   WorkflowType = "scheduled"    // Entered by a schedule tick
	WorkflowTypeEventDriven WorkflowType = "event_driven" // Entered by a domain event
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft       WorkflowStatus = "draft"       // Editable, not executable
	WorkflowStatusPublished   WorkflowStatus = "published"   // Current active, executable
	WorkflowStatusUnpublished WorkflowStatus = "unpublished" // Historical, not executable
)

// Workflow is the static definition of an automation: a directed graph of
// typed nodes joined by optionally guarded edges. A running execution pins
// the definition it started with; definitions are never mutated mid-run.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Type        WorkflowType    `json:"type"        validate:"required,oneof=scheduled event_driven"`
	Status      WorkflowStatus  `json:"status"      validate:"required"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Edges       []*WorkflowEdge `json:"edges"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

var (
	// ErrNoEntryNode indicates the workflow has no node the walk could start at.
	ErrNoEntryNode = errors.New("workflow has no entry node")

	// ErrMultipleTriggerNodes indicates an event-driven workflow declares more
	// than one trigger node.
	ErrMultipleTriggerNodes = errors.New("workflow has multiple trigger nodes")
)

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// EdgesFrom returns the outgoing edges of a node in declaration order.
func (w *Workflow) EdgesFrom(nodeID string) []*WorkflowEdge {
	edges := make([]*WorkflowEdge, 0)

	for _, edge := range w.Edges {
		if edge.SourceID == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// EntryNode resolves the node a walk starts at. Event-driven workflows start
// at their single trigger node; scheduled workflows are entered at the first
// enabled node in declaration order.
func (w *Workflow) EntryNode() (*WorkflowNode, error) {
	if w.Type == WorkflowTypeEventDriven {
		var trigger *WorkflowNode

		for _, node := range w.Nodes {
			if node.Kind == NodeKindTrigger {
				if trigger != nil {
					return nil, ErrMultipleTriggerNodes
				}

				trigger = node
			}
		}

		if trigger == nil {
			return nil, ErrNoEntryNode
		}

		return trigger, nil
	}

	for _, node := range w.Nodes {
		if node.Enabled && node.Kind != NodeKindTrigger {
			return node, nil
		}
	}

	return nil, ErrNoEntryNode
}

// IsExecutable reports whether the workflow may be bound to triggers.
func (w *Workflow) IsExecutable() bool {
	return w.Status == WorkflowStatusPublished && w.DeletedAt == nil
}
