// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/pegahdev/hermes/app/dto"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/utils"
)

// ReportHandlerInterface defines the contract for report handlers
type ReportHandlerInterface interface {
	ComplianceReport(c fiber.Ctx) error
	DownloadComplianceReport(c fiber.Ctx) error
}

// ReportHandler handles compliance report HTTP requests
type ReportHandler struct {
	reportFlow businessflow.ReportFlow
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportFlow businessflow.ReportFlow) *ReportHandler {
	return &ReportHandler{reportFlow: reportFlow}
}

func (h *ReportHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ReportHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ComplianceReport handles report generation
// @Summary Compliance Report
// @Description Aggregate the message log and audit trail over a date range
// @Tags Reports
// @Produce json
// @Param start_date query string false "Range start (RFC3339)"
// @Param end_date query string false "Range end (RFC3339)"
// @Success 200 {object} dto.APIResponse{data=dto.ComplianceReportResponse} "Report generated"
// @Failure 400 {object} dto.APIResponse "Invalid date range"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/compliance/report [get]
func (h *ReportHandler) ComplianceReport(c fiber.Ctx) error {
	req, errResp := h.parseReportRequest(c)
	if errResp != nil {
		return errResp
	}

	result, err := h.reportFlow.ComplianceReport(h.createRequestContext(c, "/api/v1/compliance/report"), req)
	if err != nil {
		return h.mapReportError(c, err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Compliance report generated", result)
}

// DownloadComplianceReport handles xlsx export
// @Summary Download Compliance Report
// @Description Render the compliance report as an xlsx workbook
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param start_date query string false "Range start (RFC3339)"
// @Param end_date query string false "Range end (RFC3339)"
// @Success 200 {file} binary "Workbook"
// @Failure 400 {object} dto.APIResponse "Invalid date range"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/compliance/report/export [get]
func (h *ReportHandler) DownloadComplianceReport(c fiber.Ctx) error {
	req, errResp := h.parseReportRequest(c)
	if errResp != nil {
		return errResp
	}

	filename, content, err := h.reportFlow.DownloadComplianceReportExcel(h.createRequestContext(c, "/api/v1/compliance/report/export"), req)
	if err != nil {
		return h.mapReportError(c, err)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}

func (h *ReportHandler) parseReportRequest(c fiber.Ctx) (*dto.ComplianceReportRequest, error) {
	workspaceID, ok := c.Locals("workspace_id").(uint)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Workspace not resolved", "MISSING_WORKSPACE", nil)
	}

	req := &dto.ComplianceReportRequest{WorkspaceID: workspaceID}
	if raw := c.Query("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "start_date must be RFC3339", "INVALID_DATE", nil)
		}
		req.StartDate = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "end_date must be RFC3339", "INVALID_DATE", nil)
		}
		req.EndDate = &t
	}
	return req, nil
}

func (h *ReportHandler) mapReportError(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsInvalidDateRange(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Start date must not be after end date", "INVALID_DATE_RANGE", nil)
	case businessflow.IsWorkspaceNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Workspace not found", "WORKSPACE_NOT_FOUND", nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, "Report generation failed", "REPORT_FAILED", nil)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *ReportHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)

	return ctx
}
