package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pegahdev/hermes/models"
	"gorm.io/gorm"
)

// OtnTokenRepositoryImpl implements OtnTokenRepository
type OtnTokenRepositoryImpl struct {
	*BaseRepository[models.OtnToken, models.OtnTokenFilter]
}

func NewOtnTokenRepository(db *gorm.DB) OtnTokenRepository {
	return &OtnTokenRepositoryImpl{BaseRepository: NewBaseRepository[models.OtnToken, models.OtnTokenFilter](db)}
}

// ByToken retrieves a token by its opaque value
func (r *OtnTokenRepositoryImpl) ByToken(ctx context.Context, token string) (*models.OtnToken, error) {
	db := r.getDB(ctx)
	var row models.OtnToken
	if err := db.Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find otn token: %w", err)
	}
	return &row, nil
}

// FirstAvailable retrieves the oldest unused, unexpired token for the contact
func (r *OtnTokenRepositoryImpl) FirstAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (*models.OtnToken, error) {
	db := r.getDB(ctx)
	var row models.OtnToken
	err := db.Where("workspace_id = ? AND contact_id = ? AND is_used = ? AND (expires_at IS NULL OR expires_at > ?)",
		workspaceID, contactID, false, now).
		Order("created_at ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find available otn token: %w", err)
	}
	return &row, nil
}

// Consume marks a token as used. The conditional update makes consumption
// single-winner under concurrent sends; it returns false when the token was
// already used.
func (r *OtnTokenRepositoryImpl) Consume(ctx context.Context, tokenID uint, at time.Time) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.OtnToken{}).
		Where("id = ? AND is_used = ?", tokenID, false).
		Updates(map[string]any{
			"is_used":    true,
			"used_at":    at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to consume otn token: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CountAvailable counts unused, unexpired tokens for the contact
func (r *OtnTokenRepositoryImpl) CountAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.OtnToken{}).
		Where("workspace_id = ? AND contact_id = ? AND is_used = ? AND (expires_at IS NULL OR expires_at > ?)",
			workspaceID, contactID, false, now).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count available otn tokens: %w", err)
	}
	return count, nil
}

func (r *OtnTokenRepositoryImpl) applyFilter(db *gorm.DB, f models.OtnTokenFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *f.WorkspaceID)
	}
	if f.ContactID != nil {
		db = db.Where("contact_id = ?", *f.ContactID)
	}
	if f.PageID != nil {
		db = db.Where("page_id = ?", *f.PageID)
	}
	if f.IsUsed != nil {
		db = db.Where("is_used = ?", *f.IsUsed)
	}
	return db
}

// ByFilter retrieves tokens based on filter criteria
func (r *OtnTokenRepositoryImpl) ByFilter(ctx context.Context, filter models.OtnTokenFilter, orderBy string, limit, offset int) ([]*models.OtnToken, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.OtnToken{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.OtnToken
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list otn tokens: %w", err)
	}
	return rows, nil
}

func (r *OtnTokenRepositoryImpl) Count(ctx context.Context, filter models.OtnTokenFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.OtnToken{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count otn tokens: %w", err)
	}
	return count, nil
}

func (r *OtnTokenRepositoryImpl) Exists(ctx context.Context, filter models.OtnTokenFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
