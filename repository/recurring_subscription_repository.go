package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// RecurringSubscriptionRepositoryImpl implements RecurringSubscriptionRepository
type RecurringSubscriptionRepositoryImpl struct {
	*BaseRepository[models.RecurringSubscription, models.RecurringSubscriptionFilter]
}

func NewRecurringSubscriptionRepository(db *gorm.DB) RecurringSubscriptionRepository {
	return &RecurringSubscriptionRepositoryImpl{BaseRepository: NewBaseRepository[models.RecurringSubscription, models.RecurringSubscriptionFilter](db)}
}

// ActiveExists reports whether the contact holds at least one active subscription
func (r *RecurringSubscriptionRepositoryImpl) ActiveExists(ctx context.Context, workspaceID, contactID uint) (bool, error) {
	status := models.SubscriptionStatusActive
	filter := models.RecurringSubscriptionFilter{
		WorkspaceID: &workspaceID,
		ContactID:   &contactID,
		Status:      &status,
	}
	return r.Exists(ctx, filter)
}

// ByTopic retrieves the contact subscription for a given topic
func (r *RecurringSubscriptionRepositoryImpl) ByTopic(ctx context.Context, workspaceID, contactID uint, topic string) (*models.RecurringSubscription, error) {
	db := r.getDB(ctx)
	var sub models.RecurringSubscription
	err := db.Where("workspace_id = ? AND contact_id = ? AND topic = ?", workspaceID, contactID, topic).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription by topic: %w", err)
	}
	return &sub, nil
}

// ListActiveByContact retrieves all active subscriptions held by the contact
func (r *RecurringSubscriptionRepositoryImpl) ListActiveByContact(ctx context.Context, workspaceID, contactID uint) ([]*models.RecurringSubscription, error) {
	status := models.SubscriptionStatusActive
	filter := models.RecurringSubscriptionFilter{
		WorkspaceID: &workspaceID,
		ContactID:   &contactID,
		Status:      &status,
	}
	return r.ByFilter(ctx, filter, "created_at ASC", 0, 0)
}

// UpdateStatus transitions a subscription to the given status
func (r *RecurringSubscriptionRepositoryImpl) UpdateStatus(ctx context.Context, subscriptionID uint, status models.SubscriptionStatus) error {
	db := r.getDB(ctx)
	err := db.Model(&models.RecurringSubscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

func (r *RecurringSubscriptionRepositoryImpl) applyFilter(db *gorm.DB, f models.RecurringSubscriptionFilter) *gorm.DB {
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
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	return db
}

// ByFilter retrieves subscriptions based on filter criteria
func (r *RecurringSubscriptionRepositoryImpl) ByFilter(ctx context.Context, filter models.RecurringSubscriptionFilter, orderBy string, limit, offset int) ([]*models.RecurringSubscription, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RecurringSubscription{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.RecurringSubscription
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return rows, nil
}

func (r *RecurringSubscriptionRepositoryImpl) Count(ctx context.Context, filter models.RecurringSubscriptionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RecurringSubscription{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

func (r *RecurringSubscriptionRepositoryImpl) Exists(ctx context.Context, filter models.RecurringSubscriptionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
