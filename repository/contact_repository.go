package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// ContactRepositoryImpl implements ContactRepository
type ContactRepositoryImpl struct {
	*BaseRepository[models.Contact, models.ContactFilter]
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &ContactRepositoryImpl{BaseRepository: NewBaseRepository[models.Contact, models.ContactFilter](db)}
}

// ByPSID retrieves a contact by its page-scoped id within a workspace
func (r *ContactRepositoryImpl) ByPSID(ctx context.Context, workspaceID uint, psid string) (*models.Contact, error) {
	db := r.getDB(ctx)
	var contact models.Contact
	err := db.Where("workspace_id = ? AND psid = ?", workspaceID, psid).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact by psid: %w", err)
	}
	return &contact, nil
}

// ListByWorkspace retrieves contacts in a workspace with pagination
func (r *ContactRepositoryImpl) ListByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error) {
	filter := models.ContactFilter{WorkspaceID: &workspaceID}
	return r.ByFilter(ctx, filter, "id ASC", limit, offset)
}

// ListSubscribed retrieves all subscribed contacts in a workspace
func (r *ContactRepositoryImpl) ListSubscribed(ctx context.Context, workspaceID uint) ([]*models.Contact, error) {
	filter := models.ContactFilter{WorkspaceID: &workspaceID, IsSubscribed: utils.ToPtr(true)}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// TouchLastInbound records the timestamp of the latest message received from the contact
func (r *ContactRepositoryImpl) TouchLastInbound(ctx context.Context, contactID uint, at time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"last_message_from_contact_at": at,
			"updated_at":                   utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch contact inbound timestamp: %w", err)
	}
	return nil
}

// TouchLastOutbound records the timestamp of the latest message sent to the contact
func (r *ContactRepositoryImpl) TouchLastOutbound(ctx context.Context, contactID uint, at time.Time) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"last_message_to_contact_at": at,
			"updated_at":                 utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to touch contact outbound timestamp: %w", err)
	}
	return nil
}

// SetSubscribed updates the contact subscription flag
func (r *ContactRepositoryImpl) SetSubscribed(ctx context.Context, contactID uint, subscribed bool) error {
	db := r.getDB(ctx)
	err := db.Model(&models.Contact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"is_subscribed": subscribed,
			"updated_at":    utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update contact subscription: %w", err)
	}
	return nil
}

func (r *ContactRepositoryImpl) applyFilter(db *gorm.DB, f models.ContactFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.WorkspaceID != nil {
		db = db.Where("workspace_id = ?", *f.WorkspaceID)
	}
	if f.PageID != nil {
		db = db.Where("page_id = ?", *f.PageID)
	}
	if f.PSID != nil {
		db = db.Where("psid = ?", *f.PSID)
	}
	if f.IsSubscribed != nil {
		db = db.Where("is_subscribed = ?", *f.IsSubscribed)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves contacts based on filter criteria
func (r *ContactRepositoryImpl) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Contact
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	return rows, nil
}

func (r *ContactRepositoryImpl) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Contact{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return count, nil
}

func (r *ContactRepositoryImpl) Exists(ctx context.Context, filter models.ContactFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
