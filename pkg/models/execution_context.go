package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBindingExists is returned when a node tries to claim a namespace that
// was already written. Bindings are write-once per execution: a node may
// only contribute its own namespace, never overwrite another node's output.
var ErrBindingExists = errors.New("context binding already exists")

// ExecutionContext is the per-execution namespace of bindings available to
// downstream nodes. It is exclusively owned by the single goroutine walking
// the execution, so reads and writes are unsynchronized.
type ExecutionContext struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	NodeOutputs map[string]any `json:"node_outputs,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewExecutionContext seeds a context from the triggering payload.
func NewExecutionContext(executionID, workflowID string, triggerData, variables map[string]any) *ExecutionContext {
	if triggerData == nil {
		triggerData = make(map[string]any)
	}

	if variables == nil {
		variables = make(map[string]any)
	}

	return &ExecutionContext{
		ID:          executionID,
		WorkflowID:  workflowID,
		TriggerData: triggerData,
		Variables:   variables,
		NodeOutputs: make(map[string]any),
		Metadata:    make(map[string]any),
	}
}

// BindNodeOutput records a completed node's output under its own namespace.
func (c *ExecutionContext) BindNodeOutput(nodeID string, output any) error {
	if c.NodeOutputs == nil {
		c.NodeOutputs = make(map[string]any)
	}

	if _, exists := c.NodeOutputs[nodeID]; exists {
		return fmt.Errorf("node %s: %w", nodeID, ErrBindingExists)
	}

	c.NodeOutputs[nodeID] = output

	return nil
}

// Lookup resolves a dotted path against the context. A bare name resolves
// against the trigger payload first, then workflow variables, then node
// namespaces. A dotted path like "fetch_learners.rows" descends through
// nested maps starting from the same resolution order.
func (c *ExecutionContext) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")

	root, ok := c.lookupRoot(parts[0])
	if !ok {
		return nil, false
	}

	return descend(root, parts[1:])
}

func (c *ExecutionContext) lookupRoot(name string) (any, bool) {
	if v, ok := c.TriggerData[name]; ok {
		return v, true
	}

	if v, ok := c.Variables[name]; ok {
		return v, true
	}

	if v, ok := c.NodeOutputs[name]; ok {
		return v, true
	}

	return nil, false
}

// Child derives an iterator item context: it shares the parent's bindings
// read-only and overlays the item under the given name. The overlay lives in
// the child's variables so sibling items never observe each other.
func (c *ExecutionContext) Child(itemName string, item any) *ExecutionContext {
	variables := make(map[string]any, len(c.Variables)+1)
	for k, v := range c.Variables {
		variables[k] = v
	}

	variables[itemName] = item

	outputs := make(map[string]any, len(c.NodeOutputs))
	for k, v := range c.NodeOutputs {
		outputs[k] = v
	}

	return &ExecutionContext{
		ID:          c.ID,
		WorkflowID:  c.WorkflowID,
		TriggerData: c.TriggerData,
		Variables:   variables,
		NodeOutputs: outputs,
		Metadata:    c.Metadata,
	}
}

func descend(value any, parts []string) (any, bool) {
	for _, part := range parts {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}

		value, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return value, true
}
