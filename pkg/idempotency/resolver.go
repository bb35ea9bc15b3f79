// Package idempotency derives deduplication keys for workflow executions.
// Resolution is pure: the only inputs are the trigger identity, the
// strategy, and the execution context, plus an injected clock for
// time-window bucketing.
package idempotency

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campushq/flowline/pkg/expr"
	"github.com/campushq/flowline/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrMissingContextField is returned when a context-based strategy
	// references a field absent from the context. The binder surfaces this
	// as a FAILED execution with zero node side effects.
	ErrMissingContextField = expr.ErrMissingField

	// ErrUnknownStrategy is returned for a strategy the resolver does not
	// implement. This is a configuration error.
	ErrUnknownStrategy = errors.New("unknown idempotency strategy")

	// ErrMissingParams is returned when a strategy lacks its required
	// parameters.
	ErrMissingParams = errors.New("missing idempotency strategy parameters")
)

// Resolution is the resolver's answer: the key plus whether it deduplicates.
type Resolution struct {
	Key string

	// Dedup is false for NONE/UUID: the key is unique per call and only
	// exists so an execution record can still be created for audit.
	Dedup bool
}

// Resolver maps (trigger identity, strategy, context) to a deduplication
// key. The zero clock defaults to time.Now.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a resolver with the given clock. Pass nil for the
// wall clock.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}

	return &Resolver{now: now}
}

// Resolve derives the key for a trigger delivery.
func (r *Resolver) Resolve(
	triggerID string,
	strategy models.IdempotencyStrategy,
	params models.StrategyParams,
	execCtx *models.ExecutionContext,
) (Resolution, error) {
	switch strategy {
	case models.StrategyNone, "":
		return Resolution{Key: uuid.New().String(), Dedup: false}, nil

	case models.StrategyUUID:
		return Resolution{Key: uuid.New().String(), Dedup: false}, nil

	case models.StrategyTimeWindow:
		bucket, err := r.windowBucket(params)
		if err != nil {
			return Resolution{}, err
		}

		return Resolution{
			Key:   fmt.Sprintf("trigger:%s:%d", triggerID, bucket),
			Dedup: true,
		}, nil

	case models.StrategyContextBased:
		values, err := contextValues(params, execCtx)
		if err != nil {
			return Resolution{}, err
		}

		return Resolution{
			Key:   fmt.Sprintf("trigger:%s:%s", triggerID, strings.Join(values, ":")),
			Dedup: true,
		}, nil

	case models.StrategyContextTimeWindow:
		values, err := contextValues(params, execCtx)
		if err != nil {
			return Resolution{}, err
		}

		bucket, err := r.windowBucket(params)
		if err != nil {
			return Resolution{}, err
		}

		return Resolution{
			Key:   fmt.Sprintf("trigger:%s:%s:%d", triggerID, strings.Join(values, ":"), bucket),
			Dedup: true,
		}, nil

	case models.StrategyEventBased:
		eventType, err := requiredField(execCtx, "eventType")
		if err != nil {
			return Resolution{}, err
		}

		eventID, err := requiredField(execCtx, "eventId")
		if err != nil {
			return Resolution{}, err
		}

		return Resolution{
			Key:   fmt.Sprintf("trigger:%s:%s:%s", triggerID, eventType, eventID),
			Dedup: true,
		}, nil

	case models.StrategyCustomExpression:
		if params.Expression == "" {
			return Resolution{}, fmt.Errorf("custom_expression: %w", ErrMissingParams)
		}

		key, err := expr.EvalString(params.Expression, execCtx.Lookup)
		if err != nil {
			return Resolution{}, err
		}

		return Resolution{Key: key, Dedup: true}, nil

	default:
		return Resolution{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}
}

// EventKey builds the reservation key for a schedule tick: one execution
// per (workflow, scheduled time), whatever scheduler instance fired it.
func EventKey(triggerID, eventType, eventID string) string {
	return fmt.Sprintf("trigger:%s:%s:%s", triggerID, eventType, eventID)
}

func (r *Resolver) windowBucket(params models.StrategyParams) (int64, error) {
	if params.WindowSeconds <= 0 {
		return 0, fmt.Errorf("time_window: %w", ErrMissingParams)
	}

	now := r.now().UTC().Unix()

	return now / params.WindowSeconds * params.WindowSeconds, nil
}

func contextValues(params models.StrategyParams, execCtx *models.ExecutionContext) ([]string, error) {
	if len(params.Fields) == 0 {
		return nil, fmt.Errorf("context_based: %w", ErrMissingParams)
	}

	values := make([]string, 0, len(params.Fields))

	for _, field := range params.Fields {
		value, ok := execCtx.Lookup(field)
		if !ok {
			return nil, &expr.MissingFieldError{Field: field}
		}

		values = append(values, expr.Stringify(value))
	}

	return values, nil
}

func requiredField(execCtx *models.ExecutionContext, field string) (string, error) {
	value, ok := execCtx.Lookup(field)
	if !ok {
		return "", &expr.MissingFieldError{Field: field}
	}

	return expr.Stringify(value), nil
}
