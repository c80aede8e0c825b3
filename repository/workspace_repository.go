package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// WorkspaceRepositoryImpl implements WorkspaceRepository
type WorkspaceRepositoryImpl struct {
	*BaseRepository[models.Workspace, models.WorkspaceFilter]
}

func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &WorkspaceRepositoryImpl{BaseRepository: NewBaseRepository[models.Workspace, models.WorkspaceFilter](db)}
}

// ByUUID retrieves a workspace by its public UUID
func (r *WorkspaceRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Workspace, error) {
	db := r.getDB(ctx)
	var ws models.Workspace
	if err := db.Where("uuid = ?", uuid).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find workspace by uuid: %w", err)
	}
	return &ws, nil
}

// ByPageID retrieves the workspace owning the given page
func (r *WorkspaceRepositoryImpl) ByPageID(ctx context.Context, pageID string) (*models.Workspace, error) {
	db := r.getDB(ctx)
	var ws models.Workspace
	if err := db.Where("page_id = ?", pageID).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find workspace by page id: %w", err)
	}
	return &ws, nil
}

// ListActive retrieves active workspaces with pagination
func (r *WorkspaceRepositoryImpl) ListActive(ctx context.Context, limit, offset int) ([]*models.Workspace, error) {
	filter := models.WorkspaceFilter{IsActive: utils.ToPtr(true)}
	return r.ByFilter(ctx, filter, "id ASC", limit, offset)
}

func (r *WorkspaceRepositoryImpl) applyFilter(db *gorm.DB, f models.WorkspaceFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.PageID != nil {
		db = db.Where("page_id = ?", *f.PageID)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

// ByFilter retrieves workspaces based on filter criteria
func (r *WorkspaceRepositoryImpl) ByFilter(ctx context.Context, filter models.WorkspaceFilter, orderBy string, limit, offset int) ([]*models.Workspace, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Workspace{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Workspace
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return rows, nil
}

func (r *WorkspaceRepositoryImpl) Count(ctx context.Context, filter models.WorkspaceFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Workspace{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count workspaces: %w", err)
	}
	return count, nil
}

func (r *WorkspaceRepositoryImpl) Exists(ctx context.Context, filter models.WorkspaceFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
