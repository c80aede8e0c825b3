// Package businessflow contains the core business logic and use cases for queue administration
package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/models"
)

// QueueAdminFlow exposes queue operations: stats, pause/resume, retention
// cleanup, retries and batch progress
type QueueAdminFlow interface {
	QueueStats(ctx context.Context, queueName string) (*dto.QueueStatsResponse, error)
	AllQueueStats(ctx context.Context) ([]*dto.QueueStatsResponse, error)
	PauseQueue(ctx context.Context, queueName string) error
	ResumeQueue(ctx context.Context, queueName string) error
	CleanQueue(ctx context.Context, queueName string, req *dto.CleanQueueRequest) (*dto.CleanQueueResponse, error)
	RetryJob(ctx context.Context, jobID string) (bool, error)
	CampaignProgress(ctx context.Context, batchID string) (*dto.CampaignProgressResponse, error)
}

// QueueAdminFlowImpl implements the queue administration flow
type QueueAdminFlowImpl struct {
	manager *queue.Manager
}

// NewQueueAdminFlow creates a new queue administration flow instance
func NewQueueAdminFlow(manager *queue.Manager) QueueAdminFlow {
	return &QueueAdminFlowImpl{manager: manager}
}

// QueueStats returns a point-in-time snapshot of one queue
func (f *QueueAdminFlowImpl) QueueStats(ctx context.Context, queueName string) (*dto.QueueStatsResponse, error) {
	stats, err := f.manager.QueueStats(queueName)
	if err != nil {
		return nil, NewBusinessErrorf("QUEUE_NOT_FOUND", "No queue named %s", ErrQueueNotFound, queueName)
	}
	return toQueueStatsResponse(queueName, stats), nil
}

// AllQueueStats returns snapshots for every registered queue
func (f *QueueAdminFlowImpl) AllQueueStats(ctx context.Context) ([]*dto.QueueStatsResponse, error) {
	all := f.manager.AllQueueStats()
	out := make([]*dto.QueueStatsResponse, 0, len(all))
	for name, stats := range all {
		out = append(out, toQueueStatsResponse(name, stats))
	}
	return out, nil
}

// PauseQueue stops claims on the queue; queued jobs stay put
func (f *QueueAdminFlowImpl) PauseQueue(ctx context.Context, queueName string) error {
	if err := f.manager.PauseQueue(queueName); err != nil {
		return NewBusinessErrorf("QUEUE_NOT_FOUND", "No queue named %s", ErrQueueNotFound, queueName)
	}
	return nil
}

// ResumeQueue reopens a paused queue for claims
func (f *QueueAdminFlowImpl) ResumeQueue(ctx context.Context, queueName string) error {
	if err := f.manager.ResumeQueue(queueName); err != nil {
		return NewBusinessErrorf("QUEUE_NOT_FOUND", "No queue named %s", ErrQueueNotFound, queueName)
	}
	return nil
}

// CleanQueue removes terminal jobs older than the grace period
func (f *QueueAdminFlowImpl) CleanQueue(ctx context.Context, queueName string, req *dto.CleanQueueRequest) (*dto.CleanQueueResponse, error) {
	grace := time.Duration(req.GracePeriodMs) * time.Millisecond
	removed, err := f.manager.CleanQueue(ctx, queueName, grace, models.JobState(req.State))
	if err != nil {
		if errors.Is(err, queue.ErrUnknownQueue) {
			return nil, NewBusinessErrorf("QUEUE_NOT_FOUND", "No queue named %s", ErrQueueNotFound, queueName)
		}
		return nil, NewBusinessError("CLEAN_QUEUE_FAILED", "Failed to clean queue", err)
	}
	return &dto.CleanQueueResponse{Removed: removed}, nil
}

// RetryJob moves a terminally failed job back to the waiting state with a
// fresh attempt budget
func (f *QueueAdminFlowImpl) RetryJob(ctx context.Context, jobID string) (bool, error) {
	return f.manager.RetryJob(ctx, jobID), nil
}

// CampaignProgress reports completion of one broadcast or campaign batch
func (f *QueueAdminFlowImpl) CampaignProgress(ctx context.Context, batchID string) (*dto.CampaignProgressResponse, error) {
	progress, err := f.manager.CampaignProgress(batchID)
	if err != nil {
		return nil, NewBusinessErrorf("BATCH_NOT_FOUND", "No batch with id %s", ErrBatchNotFound, batchID)
	}
	return &dto.CampaignProgressResponse{
		BatchID:   progress.BatchID,
		Total:     progress.Total,
		Completed: progress.Completed,
		Failed:    progress.Failed,
		Pending:   progress.Pending,
		Progress:  progress.Progress,
	}, nil
}

func toQueueStatsResponse(queueName string, stats *queue.Stats) *dto.QueueStatsResponse {
	return &dto.QueueStatsResponse{
		QueueName: queueName,
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Delayed:   stats.Delayed,
		Paused:    stats.Paused,
	}
}
