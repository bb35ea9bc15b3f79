package models

import "time"

// ExecutionLogStatus is the shared status vocabulary for node log entries
// and the execution-level rollup.
type ExecutionLogStatus string

const (
	ExecutionLogStatusRunning        ExecutionLogStatus = "running"
	ExecutionLogStatusSuccess        ExecutionLogStatus = "success"
	ExecutionLogStatusPartialSuccess ExecutionLogStatus = "partial_success"
	ExecutionLogStatusFailed         ExecutionLogStatus = "failed"
	ExecutionLogStatusSkipped        ExecutionLogStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s ExecutionLogStatus) Terminal() bool {
	return s != ExecutionLogStatusRunning && s != ""
}

// Dominate returns the status that wins the execution-level rollup:
// FAILED over PARTIAL_SUCCESS over SUCCESS. SKIPPED nodes do not influence
// the rollup.
func (s ExecutionLogStatus) Dominate(other ExecutionLogStatus) ExecutionLogStatus {
	rank := func(st ExecutionLogStatus) int {
		switch st {
		case ExecutionLogStatusFailed:
			return 3
		case ExecutionLogStatusPartialSuccess:
			return 2
		case ExecutionLogStatusSuccess:
			return 1
		default:
			return 0
		}
	}

	if rank(other) > rank(s) {
		return other
	}

	return s
}

// WorkflowExecution is one run of a definition, created by the binder after
// idempotency-key reservation and mutated only by the walker until terminal.
type WorkflowExecution struct {
	ID             string             `json:"id"`
	WorkflowID     string             `json:"workflow_id" validate:"required"`
	IdempotencyKey string             `json:"idempotency_key"`
	Status         ExecutionLogStatus `json:"status"`
	Error          string             `json:"error,omitempty"`

	// CancelRequested is flipped between node steps; the walker checks it
	// before dispatching each node.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// Context is the execution-context snapshot persisted at finalization.
	Context *ExecutionContext `json:"context,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the execution reached a terminal status.
func (e *WorkflowExecution) Finished() bool {
	return e.Status.Terminal()
}
