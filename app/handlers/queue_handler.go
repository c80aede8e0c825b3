// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pegahdev/hermes/app/dto"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/utils"
)

// QueueHandlerInterface defines the contract for queue administration handlers
type QueueHandlerInterface interface {
	QueueStats(c fiber.Ctx) error
	AllQueueStats(c fiber.Ctx) error
	PauseQueue(c fiber.Ctx) error
	ResumeQueue(c fiber.Ctx) error
	CleanQueue(c fiber.Ctx) error
	RetryJob(c fiber.Ctx) error
	CampaignProgress(c fiber.Ctx) error
}

// QueueHandler handles queue administration HTTP requests
type QueueHandler struct {
	queueFlow businessflow.QueueAdminFlow
	validator *validator.Validate
}

// NewQueueHandler creates a new queue administration handler
func NewQueueHandler(queueFlow businessflow.QueueAdminFlow) *QueueHandler {
	return &QueueHandler{
		queueFlow: queueFlow,
		validator: validator.New(),
	}
}

func (h *QueueHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *QueueHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// QueueStats handles single-queue snapshots
// @Summary Queue Stats
// @Description Return a point-in-time snapshot of one queue
// @Tags Queues
// @Produce json
// @Param name path string true "Queue name"
// @Success 200 {object} dto.APIResponse{data=dto.QueueStatsResponse} "Queue stats"
// @Failure 404 {object} dto.APIResponse "Queue not found"
// @Router /api/v1/queues/{name}/stats [get]
func (h *QueueHandler) QueueStats(c fiber.Ctx) error {
	name := c.Params("name")
	result, err := h.queueFlow.QueueStats(h.createRequestContext(c, "/api/v1/queues"), name)
	if err != nil {
		return h.queueNotFound(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue stats retrieved", result)
}

// AllQueueStats handles all-queue snapshots
// @Summary All Queue Stats
// @Description Return snapshots for every registered queue
// @Tags Queues
// @Produce json
// @Success 200 {object} dto.APIResponse{data=[]dto.QueueStatsResponse} "Queue stats"
// @Router /api/v1/queues/stats [get]
func (h *QueueHandler) AllQueueStats(c fiber.Ctx) error {
	result, err := h.queueFlow.AllQueueStats(h.createRequestContext(c, "/api/v1/queues/stats"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to collect queue stats", "QUEUE_STATS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue stats retrieved", result)
}

// PauseQueue stops claims on one queue
// @Summary Pause Queue
// @Description Stop workers from claiming jobs; queued jobs stay put
// @Tags Queues
// @Produce json
// @Param name path string true "Queue name"
// @Success 200 {object} dto.APIResponse "Queue paused"
// @Failure 404 {object} dto.APIResponse "Queue not found"
// @Router /api/v1/queues/{name}/pause [post]
func (h *QueueHandler) PauseQueue(c fiber.Ctx) error {
	name := c.Params("name")
	if err := h.queueFlow.PauseQueue(h.createRequestContext(c, "/api/v1/queues"), name); err != nil {
		return h.queueNotFound(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue paused", fiber.Map{"queue": name})
}

// ResumeQueue reopens a paused queue
// @Summary Resume Queue
// @Description Reopen a paused queue for claims
// @Tags Queues
// @Produce json
// @Param name path string true "Queue name"
// @Success 200 {object} dto.APIResponse "Queue resumed"
// @Failure 404 {object} dto.APIResponse "Queue not found"
// @Router /api/v1/queues/{name}/resume [post]
func (h *QueueHandler) ResumeQueue(c fiber.Ctx) error {
	name := c.Params("name")
	if err := h.queueFlow.ResumeQueue(h.createRequestContext(c, "/api/v1/queues"), name); err != nil {
		return h.queueNotFound(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue resumed", fiber.Map{"queue": name})
}

// CleanQueue removes terminal jobs past a grace period
// @Summary Clean Queue
// @Description Remove completed or failed jobs older than the grace period
// @Tags Queues
// @Accept json
// @Produce json
// @Param name path string true "Queue name"
// @Param request body dto.CleanQueueRequest true "Retention parameters"
// @Success 200 {object} dto.APIResponse{data=dto.CleanQueueResponse} "Jobs removed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Queue not found"
// @Router /api/v1/queues/{name}/clean [post]
func (h *QueueHandler) CleanQueue(c fiber.Ctx) error {
	name := c.Params("name")

	var req dto.CleanQueueRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	result, err := h.queueFlow.CleanQueue(h.createRequestContext(c, "/api/v1/queues"), name, &req)
	if err != nil {
		if businessflow.IsQueueNotFound(err) {
			return h.queueNotFound(c, err)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Queue cleanup failed", "CLEAN_QUEUE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue cleaned", result)
}

// RetryJob requeues a terminally failed job
// @Summary Retry Job
// @Description Move a failed job back to the waiting state with a fresh attempt budget
// @Tags Queues
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} dto.APIResponse "Job requeued"
// @Failure 404 {object} dto.APIResponse "Job not found or not failed"
// @Router /api/v1/queues/jobs/{id}/retry [post]
func (h *QueueHandler) RetryJob(c fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Job id is required", "MISSING_JOB_ID", nil)
	}

	retried, err := h.queueFlow.RetryJob(h.createRequestContext(c, "/api/v1/queues/jobs"), jobID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Job retry failed", "RETRY_FAILED", nil)
	}
	if !retried {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Job not found or not in a failed state", "JOB_NOT_RETRYABLE", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job requeued", fiber.Map{"job_id": jobID})
}

// CampaignProgress reports batch completion
// @Summary Campaign Progress
// @Description Report completion of one broadcast or campaign batch
// @Tags Queues
// @Produce json
// @Param id path string true "Batch id"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignProgressResponse} "Batch progress"
// @Failure 404 {object} dto.APIResponse "Batch not found"
// @Router /api/v1/batches/{id}/progress [get]
func (h *QueueHandler) CampaignProgress(c fiber.Ctx) error {
	batchID := c.Params("id")
	if batchID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Batch id is required", "MISSING_BATCH_ID", nil)
	}

	result, err := h.queueFlow.CampaignProgress(h.createRequestContext(c, "/api/v1/batches"), batchID)
	if err != nil {
		if businessflow.IsBatchNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Batch not found", "BATCH_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Progress lookup failed", "PROGRESS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Batch progress retrieved", result)
}

func (h *QueueHandler) queueNotFound(c fiber.Ctx, err error) error {
	if businessflow.IsQueueNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Queue not found", "QUEUE_NOT_FOUND", nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Queue operation failed", "QUEUE_OPERATION_FAILED", nil)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *QueueHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
