package models

import "time"

// NodeKind identifies the executor a node is dispatched to. The set is
// closed: adding a kind means adding one executor package and registering
// its factory, never touching the walker.
type NodeKind string

const (
	NodeKindTrigger      NodeKind = "trigger"
	NodeKindQuery        NodeKind = "query"
	NodeKindTransform    NodeKind = "transform"
	NodeKindIterator     NodeKind = "iterator"
	NodeKindSwitch       NodeKind = "switch"
	NodeKindSendEmail    NodeKind = "send_email"
	NodeKindSendWhatsApp NodeKind = "send_whatsapp"
	NodeKindNotification NodeKind = "notification"
	NodeKindHTTPRequest  NodeKind = "http_request"
	NodeKindDBUpdate     NodeKind = "db_update"
)

// WorkflowNode is a single typed step in the workflow graph.
type WorkflowNode struct {
	ID          string         `json:"id"    validate:"required"`
	Kind        NodeKind       `json:"kind"  validate:"required"`
	Name        string         `json:"name"  validate:"required,min=1"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config"`

	// Enabled nodes execute; disabled nodes are skipped and the walk
	// continues along their unguarded edge.
	Enabled bool `json:"enabled"`

	// ContinueOnError lets the walk proceed past a FAILED node. The
	// execution still rolls up as FAILED.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	PositionX int `json:"position_x"`
	PositionY int `json:"position_y"`
}

// WorkflowEdge connects two nodes. A guarded edge is only taken when its
// guard expression evaluates true against the execution context. The edge
// marked Default is considered last, whatever its declaration position.
type WorkflowEdge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
	Guard    string `json:"guard,omitempty"`
	Default  bool   `json:"default,omitempty"`
	Label    string `json:"label,omitempty"`
}

// NodeResult is what an executor hands back to the walker.
type NodeResult struct {
	Status ExecutionLogStatus `json:"status"`

	// Output is bound into the execution context under the node's ID.
	Output map[string]any `json:"output,omitempty"`

	// Items carries the per-item rollup, iterator nodes only.
	Items *ItemStats `json:"items,omitempty"`

	// SelectedEdgeID is set by switch nodes that picked their own route.
	SelectedEdgeID string `json:"selected_edge_id,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// ItemStats accumulates independent sub-item outcomes of an iterator node.
// Per-item failures never abort sibling items; failures beyond the sample
// cap are counted but not recorded.
type ItemStats struct {
	Attempted    int      `json:"attempted"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	SampleErrors []string `json:"sample_errors,omitempty"`
}

// Status derives the node status from the accumulated counts.
func (s *ItemStats) Status() ExecutionLogStatus {
	switch {
	case s.Attempted == 0:
		return ExecutionLogStatusSkipped
	case s.Failed == 0:
		return ExecutionLogStatusSuccess
	case s.Succeeded == 0:
		return ExecutionLogStatusFailed
	default:
		return ExecutionLogStatusPartialSuccess
	}
}

// NodeExecutionLog is one append-only audit entry per node invocation.
// The entry is created RUNNING at node entry, finalized exactly once by the
// executing node, and never mutated afterwards.
type NodeExecutionLog struct {
	ID          string             `json:"id"`
	ExecutionID string             `json:"execution_id" validate:"required"`
	NodeID      string             `json:"node_id"      validate:"required"`
	NodeKind    NodeKind           `json:"node_kind"`
	Status      ExecutionLogStatus `json:"status"`
	Items       *ItemStats         `json:"items,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}
