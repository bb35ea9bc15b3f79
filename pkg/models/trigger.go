package models

import "time"

// TriggerEvent names a domain event that can enter workflows.
type TriggerEvent string

const (
	TriggerEventLearnerBatchEnrollment TriggerEvent = "learner.batch.enrollment"
	TriggerEventLearnerRegistered      TriggerEvent = "learner.registered"
	TriggerEventFeePaymentReceived     TriggerEvent = "fee.payment.received"
	TriggerEventFeePaymentOverdue      TriggerEvent = "fee.payment.overdue"
	TriggerEventDocumentUploaded       TriggerEvent = "document.uploaded"
	TriggerEventInvoiceIssued          TriggerEvent = "invoice.issued"
)

// WorkflowTrigger binds a domain event to an event-driven workflow along
// with the idempotency policy that decides whether a delivery becomes an
// execution.
type WorkflowTrigger struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id" validate:"required"`
	Event      TriggerEvent `json:"event"       validate:"required"`

	Strategy       IdempotencyStrategy `json:"strategy"`
	StrategyParams StrategyParams      `json:"strategy_params"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdempotencyStrategy selects how the deduplication key is derived.
type IdempotencyStrategy string

const (
	StrategyNone              IdempotencyStrategy = "none"
	StrategyUUID              IdempotencyStrategy = "uuid"
	StrategyTimeWindow        IdempotencyStrategy = "time_window"
	StrategyContextBased      IdempotencyStrategy = "context_based"
	StrategyContextTimeWindow IdempotencyStrategy = "context_time_window"
	StrategyEventBased        IdempotencyStrategy = "event_based"
	StrategyCustomExpression  IdempotencyStrategy = "custom_expression"
)

// StrategyParams carries the per-strategy configuration.
type StrategyParams struct {
	// Fields names the context fields for context-based strategies.
	Fields []string `json:"fields,omitempty"`

	// WindowSeconds sizes the bucket for time-window strategies.
	WindowSeconds int64 `json:"window_seconds,omitempty"`

	// Expression is the custom key expression (field lookups and string
	// concatenation only).
	Expression string `json:"expression,omitempty"`
}
