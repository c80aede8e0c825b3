package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// ComplianceAuditRepositoryImpl implements ComplianceAuditRepository
type ComplianceAuditRepositoryImpl struct {
	*BaseRepository[models.ComplianceAudit, models.ComplianceAuditFilter]
}

func NewComplianceAuditRepository(db *gorm.DB) ComplianceAuditRepository {
	return &ComplianceAuditRepositoryImpl{BaseRepository: NewBaseRepository[models.ComplianceAudit, models.ComplianceAuditFilter](db)}
}

// ListByContact retrieves audit entries for a contact, newest first
func (r *ComplianceAuditRepositoryImpl) ListByContact(ctx context.Context, workspaceID, contactID uint, limit, offset int) ([]*models.ComplianceAudit, error) {
	filter := models.ComplianceAuditFilter{WorkspaceID: &workspaceID, ContactID: &contactID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// ListViolations retrieves non-compliant audit entries in a workspace, newest first
func (r *ComplianceAuditRepositoryImpl) ListViolations(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.ComplianceAudit, error) {
	filter := models.ComplianceAuditFilter{WorkspaceID: &workspaceID, IsCompliant: utils.ToPtr(false)}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// CountViolationsBetween counts non-compliant audit entries within [from, to)
func (r *ComplianceAuditRepositoryImpl) CountViolationsBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error) {
	filter := models.ComplianceAuditFilter{
		WorkspaceID:   &workspaceID,
		IsCompliant:   utils.ToPtr(false),
		CreatedAfter:  &from,
		CreatedBefore: &to,
	}
	return r.Count(ctx, filter)
}

// DailyViolationCounts returns non-compliant audit entry counts grouped by day
// (UTC) within [from, to), keyed by "2006-01-02"
func (r *ComplianceAuditRepositoryImpl) DailyViolationCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	type row struct {
		Day   string
		Total int64
	}
	var rows []row
	db := r.getDB(ctx)
	err := db.Model(&models.ComplianceAudit{}).
		Select("TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS total").
		Where("workspace_id = ? AND is_compliant = ? AND created_at >= ? AND created_at < ?", workspaceID, false, from, to).
		Group("day").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily violation counts: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Day] = r.Total
	}
	return out, nil
}

// ViolatorCount is a per-contact violation total used by compliance reports
type ViolatorCount struct {
	ContactID uint
	Total     int64
}

// TopViolators returns the contacts with the most non-compliant checks within
// [from, to), most violations first
func (r *ComplianceAuditRepositoryImpl) TopViolators(ctx context.Context, workspaceID uint, from, to time.Time, limit int) ([]ViolatorCount, error) {
	var rows []ViolatorCount
	db := r.getDB(ctx)
	query := db.Model(&models.ComplianceAudit{}).
		Select("contact_id, COUNT(*) AS total").
		Where("workspace_id = ? AND is_compliant = ? AND created_at >= ? AND created_at < ?", workspaceID, false, from, to).
		Group("contact_id").
		Order("total DESC, contact_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list top violators: %w", err)
	}
	return rows, nil
}

func (r *ComplianceAuditRepositoryImpl) applyFilter(db *gorm.DB, f models.ComplianceAuditFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *f.WorkspaceID)
	}
	if f.ContactID != nil {
		db = db.Where("contact_id = ?", *f.ContactID)
	}
	if f.BypassMethod != nil {
		db = db.Where("bypass_method = ?", *f.BypassMethod)
	}
	if f.MessageTag != nil {
		db = db.Where("message_tag = ?", *f.MessageTag)
	}
	if f.IsCompliant != nil {
		db = db.Where("is_compliant = ?", *f.IsCompliant)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves audit entries based on filter criteria
func (r *ComplianceAuditRepositoryImpl) ByFilter(ctx context.Context, filter models.ComplianceAuditFilter, orderBy string, limit, offset int) ([]*models.ComplianceAudit, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ComplianceAudit{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ComplianceAudit
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list compliance audits: %w", err)
	}
	return rows, nil
}

func (r *ComplianceAuditRepositoryImpl) Count(ctx context.Context, filter models.ComplianceAuditFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ComplianceAudit{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count compliance audits: %w", err)
	}
	return count, nil
}

func (r *ComplianceAuditRepositoryImpl) Exists(ctx context.Context, filter models.ComplianceAuditFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
