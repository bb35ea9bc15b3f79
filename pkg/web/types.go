package web

import (
	"time"

	"github.com/campushq/flowline/pkg/models"
)

// CreateWorkflowRequest is the POST /workflows body.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Type        models.WorkflowType    `json:"type"        validate:"required,oneof=scheduled event_driven"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Edges       []*models.WorkflowEdge `json:"edges"`
	Variables   map[string]any         `json:"variables"`
	Metadata    map[string]any         `json:"metadata"`
	Owner       string                 `json:"owner"`
}

// UpdateWorkflowRequest is the PATCH /workflows/:id body. Nil slices leave
// the stored graph untouched.
type UpdateWorkflowRequest struct {
	Name        *string                `json:"name"        validate:"omitempty,min=3"`
	Description *string                `json:"description"`
	Nodes       []*models.WorkflowNode `json:"nodes"`
	Edges       []*models.WorkflowEdge `json:"edges"`
	Variables   map[string]any         `json:"variables"`
	Metadata    map[string]any         `json:"metadata"`
}

// FireEventRequest is the POST /events body.
type FireEventRequest struct {
	Event   string         `json:"event"   validate:"required"`
	Payload map[string]any `json:"payload"`
}

// ScheduleTickRequest is the POST /schedule-ticks body. TickAt defaults to
// the schedule's next due time, falling back to now.
type ScheduleTickRequest struct {
	ScheduleID string     `json:"schedule_id" validate:"required"`
	TickAt     *time.Time `json:"tick_at"`
}

func (r *CreateWorkflowRequest) toWorkflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		Variables:   r.Variables,
		Metadata:    r.Metadata,
		Owner:       r.Owner,
	}
}

func (r *UpdateWorkflowRequest) apply(workflow *models.Workflow) {
	if r.Name != nil {
		workflow.Name = *r.Name
	}

	if r.Description != nil {
		workflow.Description = *r.Description
	}

	if r.Nodes != nil {
		workflow.Nodes = r.Nodes
	}

	if r.Edges != nil {
		workflow.Edges = r.Edges
	}

	if r.Variables != nil {
		workflow.Variables = r.Variables
	}

	if r.Metadata != nil {
		workflow.Metadata = r.Metadata
	}
}
