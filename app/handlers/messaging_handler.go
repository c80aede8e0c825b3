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

// MessagingHandlerInterface defines the contract for messaging handlers
type MessagingHandlerInterface interface {
	SendMessage(c fiber.Ctx) error
	BroadcastMessage(c fiber.Ctx) error
	StartCampaign(c fiber.Ctx) error
	ScheduleMessage(c fiber.Ctx) error
	CancelScheduledMessage(c fiber.Ctx) error
	MessageJobStatus(c fiber.Ctx) error
	RecordInbound(c fiber.Ctx) error
	RecordReceipt(c fiber.Ctx) error
}

// MessagingHandler handles message intake HTTP requests
type MessagingHandler struct {
	messagingFlow businessflow.MessagingFlow
	validator     *validator.Validate
}

// NewMessagingHandler creates a new messaging handler
func NewMessagingHandler(messagingFlow businessflow.MessagingFlow) *MessagingHandler {
	return &MessagingHandler{
		messagingFlow: messagingFlow,
		validator:     validator.New(),
	}
}

func (h *MessagingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *MessagingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SendMessage handles a single message send
// @Summary Send Message
// @Description Run the pre-send compliance check and enqueue the message for delivery
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body dto.SendMessageRequest true "Message send data"
// @Success 202 {object} dto.APIResponse{data=dto.SendMessageResponse} "Message accepted for delivery"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Workspace or contact not found"
// @Failure 422 {object} dto.APIResponse{data=dto.SendMessageResponse} "Blocked by compliance policy"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/messages [post]
func (h *MessagingHandler) SendMessage(c fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.messagingFlow.SendMessage(h.createRequestContext(c, "/api/v1/messages"), &req, metadata)
	if err != nil {
		return h.mapFlowError(c, err, "Message send failed", "SEND_FAILED")
	}

	if result.JobID == "" {
		// Blocked by policy; the decision explains why.
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.APIResponse{
			Success: false,
			Message: "Message blocked by compliance policy",
			Data:    result,
			Error: dto.ErrorDetail{
				Code: "MESSAGE_BLOCKED",
			},
		})
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Message accepted for delivery", result)
}

// BroadcastMessage handles a bulk send to an explicit contact list
// @Summary Broadcast Message
// @Description Fan one message out to many contacts as a tracked batch
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body dto.BroadcastMessageRequest true "Broadcast data"
// @Success 202 {object} dto.APIResponse{data=dto.BroadcastMessageResponse} "Broadcast accepted"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 422 {object} dto.APIResponse "No deliverable recipients"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/messages/broadcast [post]
func (h *MessagingHandler) BroadcastMessage(c fiber.Ctx) error {
	var req dto.BroadcastMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.messagingFlow.BroadcastMessage(h.createRequestContext(c, "/api/v1/messages/broadcast"), &req, metadata)
	if err != nil {
		if businessflow.IsNoRecipientsResolved(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "No deliverable recipients in the contact list", "NO_RECIPIENTS", nil)
		}
		return h.mapFlowError(c, err, "Broadcast failed", "BROADCAST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Broadcast accepted", result)
}

// StartCampaign handles campaign fan-out
// @Summary Start Campaign
// @Description Enqueue campaign messages for an explicit contact list or all subscribed contacts
// @Tags Messaging
// @Accept json
// @Produce json
// @Param id path string true "Campaign identifier"
// @Param request body dto.StartCampaignRequest true "Campaign data"
// @Success 202 {object} dto.APIResponse{data=dto.StartCampaignResponse} "Campaign accepted"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 422 {object} dto.APIResponse "No deliverable recipients"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/start [post]
func (h *MessagingHandler) StartCampaign(c fiber.Ctx) error {
	campaignID := c.Params("id")
	if campaignID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign id is required", "MISSING_CAMPAIGN_ID", nil)
	}

	var req dto.StartCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID
	req.CampaignID = campaignID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.messagingFlow.StartCampaign(h.createRequestContext(c, "/api/v1/campaigns/"+campaignID+"/start"), &req, metadata)
	if err != nil {
		if businessflow.IsNoRecipientsResolved(err) {
			return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Campaign resolved no deliverable recipients", "NO_RECIPIENTS", nil)
		}
		return h.mapFlowError(c, err, "Campaign start failed", "CAMPAIGN_START_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Campaign accepted", result)
}

// ScheduleMessage handles a future-dated send
// @Summary Schedule Message
// @Description Enqueue a message for delivery at a future instant
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body dto.ScheduleMessageRequest true "Schedule data"
// @Success 202 {object} dto.APIResponse{data=dto.ScheduleMessageResponse} "Message scheduled"
// @Failure 400 {object} dto.APIResponse "Validation error or send time in the past"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/messages/schedule [post]
func (h *MessagingHandler) ScheduleMessage(c fiber.Ctx) error {
	var req dto.ScheduleMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.messagingFlow.ScheduleMessage(h.createRequestContext(c, "/api/v1/messages/schedule"), &req, metadata)
	if err != nil {
		if businessflow.IsScheduleTimeInPast(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Send time must be in the future", "SCHEDULE_TIME_IN_PAST", nil)
		}
		return h.mapFlowError(c, err, "Message scheduling failed", "SCHEDULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Message scheduled", result)
}

// CancelScheduledMessage handles pending job cancellation
// @Summary Cancel Scheduled Message
// @Description Remove a pending delivery job; cancelling twice is safe
// @Tags Messaging
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} dto.APIResponse "Job cancelled"
// @Failure 404 {object} dto.APIResponse "Job not found or already finished"
// @Router /api/v1/messages/jobs/{id} [delete]
func (h *MessagingHandler) CancelScheduledMessage(c fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Job id is required", "MISSING_JOB_ID", nil)
	}

	cancelled, err := h.messagingFlow.CancelScheduledMessage(h.createRequestContext(c, "/api/v1/messages/jobs"), jobID)
	if err != nil {
		return h.mapFlowError(c, err, "Job cancellation failed", "CANCEL_FAILED")
	}
	if !cancelled {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Job not found or already finished", "JOB_NOT_FOUND", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job cancelled", fiber.Map{"job_id": jobID})
}

// MessageJobStatus handles job status lookups
// @Summary Message Job Status
// @Description Return the lifecycle view of one delivery job
// @Tags Messaging
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} dto.APIResponse{data=dto.JobStatusResponse} "Job status"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Router /api/v1/messages/jobs/{id} [get]
func (h *MessagingHandler) MessageJobStatus(c fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Job id is required", "MISSING_JOB_ID", nil)
	}

	result, err := h.messagingFlow.MessageJobStatus(h.createRequestContext(c, "/api/v1/messages/jobs"), jobID)
	if err != nil {
		if businessflow.IsJobNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Job not found", "JOB_NOT_FOUND", nil)
		}
		return h.mapFlowError(c, err, "Job status lookup failed", "JOB_STATUS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job status retrieved", result)
}

// RecordInbound handles inbound webhook events
// @Summary Record Inbound Message
// @Description Ingest a contact-initiated message and reopen the 24-hour window
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body dto.RecordInboundRequest true "Inbound event data"
// @Success 200 {object} dto.APIResponse{data=dto.RecordInboundResponse} "Inbound recorded"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/messages/inbound [post]
func (h *MessagingHandler) RecordInbound(c fiber.Ctx) error {
	var req dto.RecordInboundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	result, err := h.messagingFlow.RecordInboundMessage(h.createRequestContext(c, "/api/v1/messages/inbound"), &req)
	if err != nil {
		return h.mapFlowError(c, err, "Inbound ingestion failed", "INBOUND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Inbound message recorded", result)
}

// RecordReceipt handles delivery and read receipt webhook events
// @Summary Record Delivery Receipt
// @Description Apply a delivered or read receipt to a previously sent message
// @Tags Messaging
// @Accept json
// @Produce json
// @Param request body dto.RecordReceiptRequest true "Receipt event data"
// @Success 200 {object} dto.APIResponse{data=dto.RecordReceiptResponse} "Receipt applied"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Message not found"
// @Router /api/v1/messages/receipts [post]
func (h *MessagingHandler) RecordReceipt(c fiber.Ctx) error {
	var req dto.RecordReceiptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validateRequest(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err)
	}

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	result, err := h.messagingFlow.RecordDeliveryReceipt(h.createRequestContext(c, "/api/v1/messages/receipts"), &req)
	if err != nil {
		return h.mapFlowError(c, err, "Receipt ingestion failed", "RECEIPT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Receipt applied", result)
}

func (h *MessagingHandler) validateRequest(req any) []string {
	if err := h.validator.Struct(req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return validationErrors
	}
	return nil
}

func (h *MessagingHandler) mapFlowError(c fiber.Ctx, err error, message, code string) error {
	switch {
	case businessflow.IsWorkspaceNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Workspace not found", "WORKSPACE_NOT_FOUND", nil)
	case businessflow.IsWorkspaceInactive(err):
		return h.ErrorResponse(c, fiber.StatusForbidden, "Workspace is inactive", "WORKSPACE_INACTIVE", nil)
	case businessflow.IsContactNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", "CONTACT_NOT_FOUND", nil)
	case businessflow.IsMessageNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Message not found", "MESSAGE_NOT_FOUND", nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *MessagingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
