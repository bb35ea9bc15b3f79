// Package workflow provides definition lifecycle management: draft editing,
// validation and the publish/unpublish transitions that make a definition
// trigger-eligible.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campushq/flowline/pkg/eventbus"
	"github.com/campushq/flowline/pkg/events"
	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/campushq/flowline/pkg/registry"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidDefinition wraps every validation failure raised by Validate.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// ErrNotDraft is returned when a mutation targets a non-draft definition.
var ErrNotDraft = errors.New("workflow is not a draft")

// Service manages workflow definitions. Only drafts are editable; publishing
// freezes the definition until it is unpublished back to draft.
type Service struct {
	logger    *slog.Logger
	workflows persistence.WorkflowRepository
	registry  *registry.Registry
	validate  *validator.Validate
	publisher eventbus.EventPublisher
	workerID  string
}

func NewService(
	logger *slog.Logger,
	workflows persistence.WorkflowRepository,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	workerID string,
) *Service {
	return &Service{
		logger:    logger.With("module", "workflow"),
		workflows: workflows,
		registry:  reg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		publisher: publisher,
		workerID:  workerID,
	}
}

// List returns all live definitions.
func (s *Service) List(ctx context.Context) ([]*models.Workflow, error) {
	return s.workflows.All(ctx)
}

// Get returns one definition by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.workflows.ByID(ctx, id)
}

// Create saves a new draft definition.
func (s *Service) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.ID = ""
	workflow.Status = models.WorkflowStatusDraft
	workflow.PublishedAt = nil

	if err := s.workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID)

	return workflow, nil
}

// Update replaces a draft definition. Published definitions are immutable;
// unpublish them first.
func (s *Service) Update(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := s.workflows.ByID(ctx, workflow.ID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrNotDraft, workflow.ID)
	}

	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt

	if err := s.workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete soft-deletes a definition.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.workflows.Delete(ctx, id)
}

// Publish validates the definition and transitions it to published, making
// it eligible for trigger binding.
func (s *Service) Publish(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.workflows.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return workflow, nil
	}

	if err := s.Validate(workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now

	if err := s.workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow published", "workflow_id", workflow.ID)
	s.publishEvent(ctx, workflow, events.WorkflowPublishedEvent)

	return workflow, nil
}

// Unpublish retires a published definition. Running executions keep the
// definition they started with; new deliveries stop binding to it.
func (s *Service) Unpublish(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := s.workflows.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return workflow, nil
	}

	workflow.Status = models.WorkflowStatusUnpublished

	if err := s.workflows.Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to unpublish workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow unpublished", "workflow_id", workflow.ID)
	s.publishEvent(ctx, workflow, events.WorkflowUnpublishedEvent)

	return workflow, nil
}

// Validate checks a definition is structurally sound: struct constraints,
// graph integrity and per-node config schemas.
func (s *Service) Validate(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, err.Error())
	}

	if len(workflow.Nodes) == 0 {
		return fmt.Errorf("%w: workflow has no nodes", ErrInvalidDefinition)
	}

	nodeIDs := make(map[string]bool, len(workflow.Nodes))
	triggerCount := 0

	for _, node := range workflow.Nodes {
		if nodeIDs[node.ID] {
			return fmt.Errorf("%w: duplicate node ID %s", ErrInvalidDefinition, node.ID)
		}

		nodeIDs[node.ID] = true

		if node.Kind == models.NodeKindTrigger {
			triggerCount++
		}

		if s.registry != nil {
			if err := s.registry.ValidateNodeConfig(node); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDefinition, err.Error())
			}
		}
	}

	switch workflow.Type {
	case models.WorkflowTypeEventDriven:
		if triggerCount != 1 {
			return fmt.Errorf("%w: event-driven workflow needs exactly one trigger node, has %d",
				ErrInvalidDefinition, triggerCount)
		}
	case models.WorkflowTypeScheduled:
		if triggerCount > 0 {
			return fmt.Errorf("%w: scheduled workflow cannot contain trigger nodes",
				ErrInvalidDefinition)
		}
	}

	defaultEdges := make(map[string]bool)

	for _, edge := range workflow.Edges {
		if !nodeIDs[edge.SourceID] {
			return fmt.Errorf("%w: edge %s references unknown source node %s",
				ErrInvalidDefinition, edge.ID, edge.SourceID)
		}

		if !nodeIDs[edge.TargetID] {
			return fmt.Errorf("%w: edge %s references unknown target node %s",
				ErrInvalidDefinition, edge.ID, edge.TargetID)
		}

		if edge.Default {
			if edge.Guard != "" {
				return fmt.Errorf("%w: edge %s cannot be both guarded and default",
					ErrInvalidDefinition, edge.ID)
			}

			if defaultEdges[edge.SourceID] {
				return fmt.Errorf("%w: node %s has more than one default edge",
					ErrInvalidDefinition, edge.SourceID)
			}

			defaultEdges[edge.SourceID] = true
		}
	}

	if _, err := workflow.EntryNode(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, err.Error())
	}

	return nil
}

func (s *Service) publishEvent(ctx context.Context, workflow *models.Workflow, eventType events.EventType) {
	if s.publisher == nil {
		return
	}

	base := events.BaseEvent{
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflow.ID,
		WorkerID:   s.workerID,
	}

	var event eventbus.Event
	if eventType == events.WorkflowPublishedEvent {
		event = events.WorkflowPublished{BaseEvent: base}
	} else {
		event = events.WorkflowUnpublished{BaseEvent: base}
	}

	if err := s.publisher.Publish(ctx, workflow.ID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish workflow lifecycle event",
			"workflow_id", workflow.ID, "error", err)
	}
}
