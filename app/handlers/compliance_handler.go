// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pegahdev/hermes/app/dto"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/utils"
)

// ComplianceHandlerInterface defines the contract for compliance handlers
type ComplianceHandlerInterface interface {
	CheckCompliance(c fiber.Ctx) error
	RecordBypassUsage(c fiber.Ctx) error
	UpdateSubscriptionStatus(c fiber.Ctx) error
}

// ComplianceHandler handles compliance HTTP requests
type ComplianceHandler struct {
	complianceFlow businessflow.ComplianceFlow
	validator      *validator.Validate
}

// NewComplianceHandler creates a new compliance handler
func NewComplianceHandler(complianceFlow businessflow.ComplianceFlow) *ComplianceHandler {
	return &ComplianceHandler{
		complianceFlow: complianceFlow,
		validator:      validator.New(),
	}
}

func (h *ComplianceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ComplianceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CheckCompliance handles a dry-run policy evaluation
// @Summary Check Compliance
// @Description Evaluate all messaging policies for a contact without sending anything
// @Tags Compliance
// @Accept json
// @Produce json
// @Param request body dto.CheckComplianceRequest true "Compliance query"
// @Success 200 {object} dto.APIResponse{data=dto.ComplianceDecision} "Decision computed"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/compliance/check [post]
func (h *ComplianceHandler) CheckCompliance(c fiber.Ctx) error {
	var req dto.CheckComplianceRequest
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

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	decision, err := h.complianceFlow.CheckCompliance(h.createRequestContext(c, "/api/v1/compliance/check"), &req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Compliance check failed", "COMPLIANCE_CHECK_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Compliance decision computed", decision)
}

// RecordBypassUsage handles explicit audit trail appends
// @Summary Record Bypass Usage
// @Description Append an audit entry for a bypass send and start the contact cooldown
// @Tags Compliance
// @Accept json
// @Produce json
// @Param request body dto.RecordBypassUsageRequest true "Bypass usage data"
// @Success 200 {object} dto.APIResponse "Usage recorded"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Contact not found"
// @Router /api/v1/compliance/bypass-usage [post]
func (h *ComplianceHandler) RecordBypassUsage(c fiber.Ctx) error {
	var req dto.RecordBypassUsageRequest
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

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID

	if err := h.complianceFlow.RecordBypassUsage(h.createRequestContext(c, "/api/v1/compliance/bypass-usage"), &req); err != nil {
		if businessflow.IsContactNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Contact not found", "CONTACT_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record bypass usage", "RECORD_BYPASS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Bypass usage recorded", nil)
}

// UpdateSubscriptionStatus handles recurring notification opt-out events
// @Summary Update Subscription Status
// @Description Apply a platform opt-out, pause or resume event to a recurring subscription
// @Tags Compliance
// @Accept json
// @Produce json
// @Param id path int true "Subscription ID"
// @Param request body dto.UpdateSubscriptionStatusRequest true "New subscription status"
// @Success 200 {object} dto.APIResponse{data=dto.UpdateSubscriptionStatusResponse} "Status updated"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 404 {object} dto.APIResponse "Subscription not found"
// @Router /api/v1/subscriptions/{id}/status [post]
func (h *ComplianceHandler) UpdateSubscriptionStatus(c fiber.Ctx) error {
	subscriptionID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid subscription id", "INVALID_REQUEST", nil)
	}

	var req dto.UpdateSubscriptionStatusRequest
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

	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}
	req.WorkspaceID = workspaceID
	req.SubscriptionID = uint(subscriptionID)

	result, err := h.complianceFlow.UpdateSubscriptionStatus(h.createRequestContext(c, "/api/v1/subscriptions/status"), &req)
	if err != nil {
		if businessflow.IsSubscriptionNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update subscription status", "SUBSCRIPTION_UPDATE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Subscription status updated", result)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *ComplianceHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
