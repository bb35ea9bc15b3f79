// Package protocol defines the interfaces the engine and its executors are
// built against: one executor per node kind, plus the narrow collaborator
// surfaces the executors call out to.
package protocol

import (
	"context"
	"log/slog"

	"github.com/campushq/flowline/pkg/models"
)

// NodeExecutor runs a single node against the execution context. Failures
// are converted into a terminal NodeResult at this boundary; an error
// return is reserved for infrastructure faults the executor could not
// classify, and also finalizes the node FAILED.
type NodeExecutor interface {
	Execute(ctx context.Context, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeResult, error)
}

// ExecutorFactory creates executor instances for one node kind and exposes
// the metadata the registry serves.
type ExecutorFactory interface {
	// Create builds an executor for a concrete node. The workflow is
	// available for kinds that need graph context, e.g. switch routing.
	Create(ctx context.Context, node *models.WorkflowNode, workflow *models.Workflow) (NodeExecutor, error)

	// Kind returns the node kind this factory serves.
	Kind() models.NodeKind

	// Name returns the human-readable name for this node kind.
	Name() string

	// Description returns what nodes of this kind do.
	Description() string

	// Schema returns the JSON schema for this kind's config.
	Schema() map[string]any
}
