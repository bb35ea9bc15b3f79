// Package web provides the REST API: workflow lifecycle management,
// execution inspection and the fire-and-forget ingestion endpoints.
package web

import (
	"context"
	"strconv"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/persistence"
	"github.com/campushq/flowline/pkg/viz"
	"github.com/campushq/flowline/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultExecutionListLimit = 50

// EventSink accepts deliveries for binding. Implemented by binder.Binder.
type EventSink interface {
	FireEvent(ctx context.Context, event models.TriggerEvent, payload map[string]any)
	FireScheduleTick(ctx context.Context, schedule *models.Schedule, tickAt time.Time)
}

type APIHandlers struct {
	workflows  *workflow.Service
	executions persistence.ExecutionRepository
	logs       persistence.ExecutionLogRepository
	schedules  persistence.ScheduleRepository
	sink       EventSink
	validate   *validator.Validate
}

func NewAPIHandlers(
	workflows *workflow.Service,
	executions persistence.ExecutionRepository,
	logs persistence.ExecutionLogRepository,
	schedules persistence.ScheduleRepository,
	sink EventSink,
) *APIHandlers {
	return &APIHandlers{
		workflows:  workflows,
		executions: executions,
		logs:       logs,
		schedules:  schedules,
		sink:       sink,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	found, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.workflows.Create(c.Context(), req.toWorkflow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	req.apply(existing)

	updated, err := h.workflows.Update(c.Context(), existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflows.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	published, err := h.workflows.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(published)
}

func (h *APIHandlers) UnpublishWorkflow(c fiber.Ctx) error {
	unpublished, err := h.workflows.Unpublish(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(unpublished)
}

func (h *APIHandlers) GetWorkflowDiagram(c fiber.Ctx) error {
	found, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/vnd.mermaid")

	return c.SendString(viz.Mermaid(found))
}

// GetWorkflowGraph returns the structured node/edge projection rendering
// clients consume; GetWorkflowDiagram is the Mermaid view of the same data.
func (h *APIHandlers) GetWorkflowGraph(c fiber.Ctx) error {
	found, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(viz.Project(found))
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	workflowID := c.Params("id")

	if _, err := h.workflows.Get(c.Context(), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	limit := defaultExecutionListLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	executions, err := h.executions.ListByWorkflow(c.Context(), workflowID, limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	executionID := c.Params("id")

	if _, err := h.executions.ByID(c.Context(), executionID); err != nil {
		return handleServiceError(c, err)
	}

	logs, err := h.logs.ListByExecution(c.Context(), executionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": logs})
}

// CancelExecution flags cancellation; the walker observes the flag between
// nodes, so the in-flight node finishes before the execution fails.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.executions.RequestCancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// FireEvent ingests a domain event. 202 means accepted for binding, not
// that any workflow ran: deliveries with no active trigger vanish quietly.
func (h *APIHandlers) FireEvent(c fiber.Ctx) error {
	var req FireEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	h.sink.FireEvent(c.Context(), models.TriggerEvent(req.Event), req.Payload)

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) FireScheduleTick(c fiber.Ctx) error {
	var req ScheduleTickRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.schedules.ByID(c.Context(), req.ScheduleID)
	if err != nil {
		return handleServiceError(c, err)
	}

	tickAt := schedule.NextDueAt
	if req.TickAt != nil {
		tickAt = *req.TickAt
	}

	if tickAt.IsZero() {
		tickAt = time.Now().UTC()
	}

	h.sink.FireScheduleTick(c.Context(), schedule, tickAt)

	return c.SendStatus(fiber.StatusAccepted)
}
