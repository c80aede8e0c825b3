// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/pegahdev/hermes/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// WorkspaceRepository defines operations for workspaces
type WorkspaceRepository interface {
	Repository[models.Workspace, models.WorkspaceFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Workspace, error)
	ByPageID(ctx context.Context, pageID string) (*models.Workspace, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Workspace, error)
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	ByPSID(ctx context.Context, workspaceID uint, psid string) (*models.Contact, error)
	ListByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error)
	ListSubscribed(ctx context.Context, workspaceID uint) ([]*models.Contact, error)
	TouchLastInbound(ctx context.Context, contactID uint, at time.Time) error
	TouchLastOutbound(ctx context.Context, contactID uint, at time.Time) error
	SetSubscribed(ctx context.Context, contactID uint, subscribed bool) error
}

// MessageRepository defines operations for the message log
type MessageRepository interface {
	Repository[models.Message, models.MessageFilter]
	ListConversation(ctx context.Context, workspaceID, contactID uint, limit, offset int) ([]*models.Message, error)
	LatestInbound(ctx context.Context, workspaceID, contactID uint) (*models.Message, error)
	ByPlatformMID(ctx context.Context, workspaceID uint, platformMID string) (*models.Message, error)
	CountOutboundSince(ctx context.Context, workspaceID, contactID uint, since time.Time) (int64, error)
	CountTagUsageSince(ctx context.Context, workspaceID, contactID uint, tag models.MessageTag, since time.Time) (int64, error)
	CountOutboundBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error)
	CountByBypassMethodBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.BypassMethod]int64, error)
	CountByTagBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.MessageTag]int64, error)
	DailyOutboundCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error)
	DailyBypassCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error)
	UpdateStatus(ctx context.Context, messageID uint, status models.MessageStatus, platformMID *string) error
}

// OtnTokenRepository defines operations for one-time notification tokens
type OtnTokenRepository interface {
	Repository[models.OtnToken, models.OtnTokenFilter]
	ByToken(ctx context.Context, token string) (*models.OtnToken, error)
	FirstAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (*models.OtnToken, error)
	Consume(ctx context.Context, tokenID uint, at time.Time) (bool, error)
	CountAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (int64, error)
}

// RecurringSubscriptionRepository defines operations for recurring notification subscriptions
type RecurringSubscriptionRepository interface {
	Repository[models.RecurringSubscription, models.RecurringSubscriptionFilter]
	ActiveExists(ctx context.Context, workspaceID, contactID uint) (bool, error)
	ByTopic(ctx context.Context, workspaceID, contactID uint, topic string) (*models.RecurringSubscription, error)
	ListActiveByContact(ctx context.Context, workspaceID, contactID uint) ([]*models.RecurringSubscription, error)
	UpdateStatus(ctx context.Context, subscriptionID uint, status models.SubscriptionStatus) error
}

// ComplianceAuditRepository defines operations for the compliance audit trail
type ComplianceAuditRepository interface {
	Repository[models.ComplianceAudit, models.ComplianceAuditFilter]
	ListByContact(ctx context.Context, workspaceID, contactID uint, limit, offset int) ([]*models.ComplianceAudit, error)
	ListViolations(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.ComplianceAudit, error)
	CountViolationsBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error)
	DailyViolationCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error)
	TopViolators(ctx context.Context, workspaceID uint, from, to time.Time, limit int) ([]ViolatorCount, error)
}

// DeliveryJobRepository defines operations for durable delivery jobs
type DeliveryJobRepository interface {
	Repository[models.DeliveryJob, models.DeliveryJobFilter]
	ByJobID(ctx context.Context, jobID string) (*models.DeliveryJob, error)
	ListUnfinished(ctx context.Context, queueName string) ([]*models.DeliveryJob, error)
	ListByBatch(ctx context.Context, batchID string) ([]*models.DeliveryJob, error)
	CountBatchByState(ctx context.Context, batchID string) (map[models.JobState]int64, error)
	CountQueueByState(ctx context.Context, queueName string) (map[models.JobState]int64, error)
	UpdateJob(ctx context.Context, job *models.DeliveryJob) error
	DeleteByJobIDs(ctx context.Context, jobIDs []string) (int64, error)
	DeleteFinishedBefore(ctx context.Context, queueName string, before time.Time) (int64, error)
	DeleteByState(ctx context.Context, queueName string, states []models.JobState) (int64, error)
}
