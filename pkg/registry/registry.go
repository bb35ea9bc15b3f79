// Package registry dispatches node kinds to their executor factories.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeKind]protocol.ExecutorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.NodeKind]protocol.ExecutorFactory),
	}
}

// Register makes a factory available for its kind. Later registrations for
// the same kind replace earlier ones.
func (r *Registry) Register(factory protocol.ExecutorFactory) {
	r.factories[factory.Kind()] = factory
}

// CreateExecutor builds the executor for a node.
func (r *Registry) CreateExecutor(
	ctx context.Context,
	node *models.WorkflowNode,
	workflow *models.Workflow,
) (protocol.NodeExecutor, error) {
	factory, ok := r.Factory(node.Kind)
	if !ok {
		return nil, fmt.Errorf("node kind '%s' not registered", node.Kind)
	}

	return factory.Create(ctx, node, workflow)
}

// Kinds returns the registered node kinds in stable order.
func (r *Registry) Kinds() []models.NodeKind {
	kinds := make([]models.NodeKind, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Factory returns the factory for a kind, if registered.
func (r *Registry) Factory(kind models.NodeKind) (protocol.ExecutorFactory, bool) {
	factory, ok := r.factories[kind]

	return factory, ok
}
