// Package web provides HTTP handlers for the workflow manager API.
package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/workflow-manager/pkg/models"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/services"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflows        *services.Workflows
	instances        *services.Instances
	payloads         *services.Payloads
	acknowledgements *services.Acknowledgements
	stats            *services.ExecutionStats
}

func NewAPIHandlers(
	workflows *services.Workflows,
	instances *services.Instances,
	payloads *services.Payloads,
	acknowledgements *services.Acknowledgements,
	stats *services.ExecutionStats,
) *APIHandlers {
	return &APIHandlers{
		workflows:        workflows,
		instances:        instances,
		payloads:         payloads,
		acknowledgements: acknowledgements,
		stats:            stats,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/aetitle/:aeTitle", h.GetWorkflowsByAeTitle)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)

	wi := router.Group("/workflowinstances")
	wi.Get("/", h.GetWorkflowInstances)
	wi.Get("/failed", h.GetFailedWorkflowInstances)
	wi.Get("/:id", h.GetWorkflowInstance)
	wi.Put("/:id/acknowledge", h.AcknowledgeWorkflowInstance)
	wi.Get("/:id/executions/:executionId", h.GetTaskExecution)
	wi.Put("/:id/executions/:executionId/acknowledge", h.AcknowledgeTaskError)

	p := router.Group("/payloads")
	p.Get("/", h.GetPayloads)
	p.Get("/:id", h.GetPayload)
	p.Get("/:id/workflowinstances", h.GetPayloadWorkflowInstances)

	t := router.Group("/tasks")
	t.Get("/stats", h.GetTaskStats)
	t.Get("/statsoverview", h.GetTaskStatsOverview)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Workflow Manager API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Workflow Manager API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	paging, err := parsePaging(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	revisions, total, err := h.workflows.List(c.Context(), paging)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewPagedResponse(revisions, paging, total))
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	revision, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(revision)
}

func (h *APIHandlers) GetWorkflowsByAeTitle(c fiber.Ctx) error {
	revisions, err := h.workflows.GetByAeTitle(c.Context(), c.Params("aeTitle"), c.Query("callingAeTitle"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(revisions)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	revision, err := h.workflows.Create(c.Context(), &workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(revision)
}

// UpdateWorkflow stores the body as a new revision of the workflow.
func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	revision, err := h.workflows.Update(c.Context(), c.Params("id"), &workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(revision)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.workflows.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowInstances(c fiber.Ctx) error {
	paging, err := parsePaging(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	opts := persistence.InstanceListOptions{
		Paging:    paging,
		Status:    models.WorkflowInstanceStatus(c.Query("status")),
		PayloadID: c.Query("payloadId"),
	}

	instances, total, err := h.instances.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewPagedResponse(instances, paging, total))
}

func (h *APIHandlers) GetFailedWorkflowInstances(c fiber.Ctx) error {
	paging, err := parsePaging(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	instances, total, err := h.acknowledgements.GetAllFailed(c.Context(), paging)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewPagedResponse(instances, paging, total))
}

func (h *APIHandlers) GetWorkflowInstance(c fiber.Ctx) error {
	instance, err := h.instances.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetTaskExecution(c fiber.Ctx) error {
	task, err := h.instances.GetTask(c.Context(), c.Params("id"), c.Params("executionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) AcknowledgeWorkflowInstance(c fiber.Ctx) error {
	instance, err := h.acknowledgements.AcknowledgeWorkflowInstanceErrors(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) AcknowledgeTaskError(c fiber.Ctx) error {
	instance, err := h.acknowledgements.AcknowledgeTaskError(c.Context(), c.Params("id"), c.Params("executionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetPayloads(c fiber.Ctx) error {
	paging, err := parsePaging(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	payloads, total, err := h.payloads.List(c.Context(), paging)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewPagedResponse(payloads, paging, total))
}

func (h *APIHandlers) GetPayload(c fiber.Ctx) error {
	payload, err := h.payloads.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(payload)
}

func (h *APIHandlers) GetPayloadWorkflowInstances(c fiber.Ctx) error {
	instances, err := h.instances.GetByPayloadID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instances)
}

// GetTaskStats returns one page of execution stats and the averages of the
// same window.
func (h *APIHandlers) GetTaskStats(c fiber.Ctx) error {
	paging, err := parsePaging(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	filter, err := parseStatsFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	rows, err := h.stats.GetStats(c.Context(), filter, paging)
	if err != nil {
		return handleServiceError(c, err)
	}

	total, err := h.stats.GetStatsCount(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	average, err := h.stats.GetAverageStats(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(StatsResponse{
		PagedResponse: NewPagedResponse(rows, paging, total),
		AverageStats:  average,
	})
}

func (h *APIHandlers) GetTaskStatsOverview(c fiber.Ctx) error {
	filter, err := parseStatsFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	counts, err := h.stats.GetStatsStatusCount(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	var total int64
	for _, count := range counts {
		total += count.Count
	}

	return c.JSON(StatsOverviewResponse{
		StartTime: filter.Start.Format(time.RFC3339),
		EndTime:   filter.End.Format(time.RFC3339),
		Total:     total,
		Statuses:  counts,
	})
}

// parsePaging reads pageNumber and pageSize, clamping both to the allowed range.
func parsePaging(c fiber.Ctx) (persistence.Paging, error) {
	pageNumber, pageSize := 1, persistence.DefaultPageSize

	if value := c.Query("pageNumber"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return persistence.Paging{}, fmt.Errorf("pageNumber: %w", err)
		}

		pageNumber = parsed
	}

	if value := c.Query("pageSize"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return persistence.Paging{}, fmt.Errorf("pageSize: %w", err)
		}

		pageSize = parsed
	}

	return persistence.NewPaging(pageNumber, pageSize), nil
}

// parseStatsFilter reads an RFC 3339 window, defaulting to the last 24 hours.
func parseStatsFilter(c fiber.Ctx) (persistence.StatsFilter, error) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if value := c.Query("startTime"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return persistence.StatsFilter{}, fmt.Errorf("startTime: %w", err)
		}

		start = parsed
	}

	if value := c.Query("endTime"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return persistence.StatsFilter{}, fmt.Errorf("endTime: %w", err)
		}

		end = parsed
	}

	return persistence.StatsFilter{
		Start:      start,
		End:        end,
		WorkflowID: c.Query("workflowId"),
		TaskID:     c.Query("taskId"),
		Status:     c.Query("status"),
	}, nil
}
