package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTriggerNotFound indicates a trigger binding was not found.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrScheduleNotFound indicates a schedule was not found.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrLogNotFound indicates a node log entry was not found.
	ErrLogNotFound = errors.New("execution log entry not found")

	// ErrLogAlreadyFinal indicates a node log entry was finalized twice.
	ErrLogAlreadyFinal = errors.New("execution log entry already finalized")

	// ErrDuplicateReservation indicates the idempotency key was already
	// reserved by another execution.
	ErrDuplicateReservation = errors.New("idempotency key already reserved")
)

// WorkflowError wraps workflow-related errors with operation context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// ReservationError wraps reservation failures with the contested key.
type ReservationError struct {
	WorkflowID string
	Key        string
	Err        error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reservation failed for workflow %s key %s: %v", e.WorkflowID, e.Key, e.Err)
}

func (e *ReservationError) Unwrap() error {
	return e.Err
}

func (e *ReservationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsDuplicateReservation checks if an error indicates a lost reservation race.
func IsDuplicateReservation(err error) bool {
	return errors.Is(err, ErrDuplicateReservation)
}
