// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
)

// WorkspaceMiddleware resolves the tenant workspace for every API request
type WorkspaceMiddleware struct {
	workspaceRepo repository.WorkspaceRepository
}

// NewWorkspaceMiddleware creates a new workspace resolution middleware
func NewWorkspaceMiddleware(workspaceRepo repository.WorkspaceRepository) *WorkspaceMiddleware {
	return &WorkspaceMiddleware{
		workspaceRepo: workspaceRepo,
	}
}

// Resolve validates the X-Workspace-ID header and stores the workspace id in
// request locals. Every tenant-scoped route sits behind this middleware.
func (m *WorkspaceMiddleware) Resolve() fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("X-Workspace-ID")
		if header == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
				Success: false,
				Message: "X-Workspace-ID header is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_WORKSPACE_HEADER",
				},
			})
		}

		if _, err := uuid.Parse(header); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
				Success: false,
				Message: "X-Workspace-ID must be a valid UUID",
				Error: dto.ErrorDetail{
					Code: "INVALID_WORKSPACE_HEADER",
				},
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		workspace, err := m.workspaceRepo.ByUUID(ctx, header)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
				Success: false,
				Message: "Failed to resolve workspace",
				Error: dto.ErrorDetail{
					Code: "WORKSPACE_RESOLUTION_FAILED",
				},
			})
		}
		if workspace == nil {
			return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
				Success: false,
				Message: "Workspace not found",
				Error: dto.ErrorDetail{
					Code: "WORKSPACE_NOT_FOUND",
				},
			})
		}
		if !utils.IsTrue(workspace.IsActive) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Workspace is inactive",
				Error: dto.ErrorDetail{
					Code: "WORKSPACE_INACTIVE",
				},
			})
		}

		c.Locals("workspace_id", workspace.ID)
		c.Locals("workspace_uuid", workspace.UUID.String())

		return c.Next()
	}
}
