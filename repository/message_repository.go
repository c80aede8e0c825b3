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

// MessageRepositoryImpl implements MessageRepository
type MessageRepositoryImpl struct {
	*BaseRepository[models.Message, models.MessageFilter]
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{BaseRepository: NewBaseRepository[models.Message, models.MessageFilter](db)}
}

// ListConversation retrieves the message history between a page and a contact,
// newest first
func (r *MessageRepositoryImpl) ListConversation(ctx context.Context, workspaceID, contactID uint, limit, offset int) ([]*models.Message, error) {
	filter := models.MessageFilter{WorkspaceID: &workspaceID, ContactID: &contactID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// LatestInbound retrieves the most recent message received from the contact
func (r *MessageRepositoryImpl) LatestInbound(ctx context.Context, workspaceID, contactID uint) (*models.Message, error) {
	db := r.getDB(ctx)
	var msg models.Message
	err := db.Where("workspace_id = ? AND contact_id = ? AND direction = ?", workspaceID, contactID, models.MessageDirectionInbound).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest inbound message: %w", err)
	}
	return &msg, nil
}

// ByPlatformMID retrieves a message by the platform-assigned message id
func (r *MessageRepositoryImpl) ByPlatformMID(ctx context.Context, workspaceID uint, platformMID string) (*models.Message, error) {
	db := r.getDB(ctx)
	var msg models.Message
	err := db.Where("workspace_id = ? AND platform_mid = ?", workspaceID, platformMID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find message by platform mid: %w", err)
	}
	return &msg, nil
}

// CountOutboundSince counts outbound messages to a contact after the given time
func (r *MessageRepositoryImpl) CountOutboundSince(ctx context.Context, workspaceID, contactID uint, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Message{}).
		Where("workspace_id = ? AND contact_id = ? AND direction = ? AND created_at >= ?",
			workspaceID, contactID, models.MessageDirectionOutbound, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count outbound messages: %w", err)
	}
	return count, nil
}

// CountTagUsageSince counts outbound messages sent to a contact under the
// given tag after the given time
func (r *MessageRepositoryImpl) CountTagUsageSince(ctx context.Context, workspaceID, contactID uint, tag models.MessageTag, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Message{}).
		Where("workspace_id = ? AND contact_id = ? AND direction = ? AND message_tag = ? AND created_at >= ?",
			workspaceID, contactID, models.MessageDirectionOutbound, tag, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count tag usage: %w", err)
	}
	return count, nil
}

// CountOutboundBetween counts all outbound messages in a workspace within [from, to)
func (r *MessageRepositoryImpl) CountOutboundBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Message{}).
		Where("workspace_id = ? AND direction = ? AND created_at >= ? AND created_at < ?",
			workspaceID, models.MessageDirectionOutbound, from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count outbound messages in range: %w", err)
	}
	return count, nil
}

// CountByBypassMethodBetween returns outbound message counts per bypass method within [from, to)
func (r *MessageRepositoryImpl) CountByBypassMethodBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.BypassMethod]int64, error) {
	type row struct {
		BypassMethod models.BypassMethod
		Total        int64
	}
	var rows []row
	db := r.getDB(ctx)
	err := db.Model(&models.Message{}).
		Select("bypass_method, COUNT(*) AS total").
		Where("workspace_id = ? AND direction = ? AND bypass_method IS NOT NULL AND created_at >= ? AND created_at < ?",
			workspaceID, models.MessageDirectionOutbound, from, to).
		Group("bypass_method").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by bypass method: %w", err)
	}
	out := make(map[models.BypassMethod]int64, len(rows))
	for _, r := range rows {
		out[r.BypassMethod] = r.Total
	}
	return out, nil
}

// CountByTagBetween returns outbound message counts per message tag within [from, to)
func (r *MessageRepositoryImpl) CountByTagBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.MessageTag]int64, error) {
	type row struct {
		MessageTag models.MessageTag
		Total      int64
	}
	var rows []row
	db := r.getDB(ctx)
	err := db.Model(&models.Message{}).
		Select("message_tag, COUNT(*) AS total").
		Where("workspace_id = ? AND direction = ? AND message_tag IS NOT NULL AND created_at >= ? AND created_at < ?",
			workspaceID, models.MessageDirectionOutbound, from, to).
		Group("message_tag").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by tag: %w", err)
	}
	out := make(map[models.MessageTag]int64, len(rows))
	for _, r := range rows {
		out[r.MessageTag] = r.Total
	}
	return out, nil
}

// DailyOutboundCounts returns outbound message counts grouped by day (UTC)
// within [from, to), keyed by "2006-01-02"
func (r *MessageRepositoryImpl) DailyOutboundCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	return r.dailyCounts(ctx, workspaceID, from, to, false)
}

// DailyBypassCounts returns daily counts of outbound messages delivered through
// a bypass method (everything except plain within-window sends)
func (r *MessageRepositoryImpl) DailyBypassCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	return r.dailyCounts(ctx, workspaceID, from, to, true)
}

func (r *MessageRepositoryImpl) dailyCounts(ctx context.Context, workspaceID uint, from, to time.Time, bypassOnly bool) (map[string]int64, error) {
	type row struct {
		Day   string
		Total int64
	}
	var rows []row
	db := r.getDB(ctx)
	query := db.Model(&models.Message{}).
		Select("TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS total").
		Where("workspace_id = ? AND direction = ? AND created_at >= ? AND created_at < ?",
			workspaceID, models.MessageDirectionOutbound, from, to)
	if bypassOnly {
		query = query.Where("bypass_method IS NOT NULL AND bypass_method <> ?", models.BypassWithinWindow)
	}
	err := query.Group("day").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily outbound counts: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Day] = r.Total
	}
	return out, nil
}

// UpdateStatus updates a message delivery status and optional platform message id
func (r *MessageRepositoryImpl) UpdateStatus(ctx context.Context, messageID uint, status models.MessageStatus, platformMID *string) error {
	db := r.getDB(ctx)
	updates := map[string]any{
		"status":     status,
		"updated_at": utils.UTCNow(),
	}
	if platformMID != nil {
		updates["platform_mid"] = *platformMID
	}
	if err := db.Model(&models.Message{}).Where("id = ?", messageID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

func (r *MessageRepositoryImpl) applyFilter(db *gorm.DB, f models.MessageFilter) *gorm.DB {
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
	if f.Direction != nil {
		db = db.Where("direction = ?", *f.Direction)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.MessageTag != nil {
		db = db.Where("message_tag = ?", *f.MessageTag)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves messages based on filter criteria
func (r *MessageRepositoryImpl) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return rows, nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Message{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *MessageRepositoryImpl) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
