// Package events defines event types for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/campushq/flowline/pkg/models"
)

type EventType string

// Topic carries all engine lifecycle events.
const Topic = "flowline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionSkippedEvent   EventType = "execution.skipped"

	// Per-node events.
	NodeFinishedEvent EventType = "execution.node.finished"
	NodeFailedEvent   EventType = "execution.node.failed"

	// Definition lifecycle events.
	WorkflowPublishedEvent   EventType = "workflow.published"
	WorkflowUnpublishedEvent EventType = "workflow.unpublished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	TriggerID      string `json:"trigger_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string                    `json:"execution_id"`
	Status      models.ExecutionLogStatus `json:"status"`
	Duration    time.Duration             `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionSkipped records a delivery whose idempotency key was already
// reserved; no nodes ran.
type ExecutionSkipped struct {
	BaseEvent

	ExecutionID    string `json:"execution_id"`
	TriggerID      string `json:"trigger_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (e ExecutionSkipped) GetType() EventType {
	return ExecutionSkippedEvent
}

type NodeFinished struct {
	BaseEvent

	ExecutionID string                    `json:"execution_id"`
	NodeID      string                    `json:"node_id"`
	NodeKind    models.NodeKind           `json:"node_kind"`
	Status      models.ExecutionLogStatus `json:"status"`
	Items       *models.ItemStats         `json:"items,omitempty"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeKind    models.NodeKind `json:"node_kind"`
	Error       string          `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type WorkflowPublished struct {
	BaseEvent
}

func (e WorkflowPublished) GetType() EventType {
	return WorkflowPublishedEvent
}

type WorkflowUnpublished struct {
	BaseEvent
}

func (e WorkflowUnpublished) GetType() EventType {
	return WorkflowUnpublishedEvent
}
