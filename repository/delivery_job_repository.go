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

// DeliveryJobRepositoryImpl implements DeliveryJobRepository
type DeliveryJobRepositoryImpl struct {
	*BaseRepository[models.DeliveryJob, models.DeliveryJobFilter]
}

func NewDeliveryJobRepository(db *gorm.DB) DeliveryJobRepository {
	return &DeliveryJobRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryJob, models.DeliveryJobFilter](db)}
}

// ByJobID retrieves a job by its queue-level id
func (r *DeliveryJobRepositoryImpl) ByJobID(ctx context.Context, jobID string) (*models.DeliveryJob, error) {
	db := r.getDB(ctx)
	var job models.DeliveryJob
	if err := db.Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find job by job id: %w", err)
	}
	return &job, nil
}

// ListUnfinished retrieves all non-terminal jobs in a queue, in enqueue order.
// Used to rebuild the in-memory schedule after a restart; active jobs were
// interrupted mid-flight and are picked up as waiting again.
func (r *DeliveryJobRepositoryImpl) ListUnfinished(ctx context.Context, queueName string) ([]*models.DeliveryJob, error) {
	db := r.getDB(ctx)
	var jobs []*models.DeliveryJob
	states := []models.JobState{models.JobStateWaiting, models.JobStateDelayed, models.JobStateActive}
	err := db.Where("queue_name = ? AND state IN ?", queueName, states).
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	return jobs, nil
}

// ListByBatch retrieves all jobs created by a single bulk enqueue
func (r *DeliveryJobRepositoryImpl) ListByBatch(ctx context.Context, batchID string) ([]*models.DeliveryJob, error) {
	filter := models.DeliveryJobFilter{BatchID: &batchID}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// CountBatchByState returns job counts per state for a batch
func (r *DeliveryJobRepositoryImpl) CountBatchByState(ctx context.Context, batchID string) (map[models.JobState]int64, error) {
	return r.countByState(ctx, "batch_id = ?", batchID)
}

// CountQueueByState returns job counts per state for a queue
func (r *DeliveryJobRepositoryImpl) CountQueueByState(ctx context.Context, queueName string) (map[models.JobState]int64, error) {
	return r.countByState(ctx, "queue_name = ?", queueName)
}

func (r *DeliveryJobRepositoryImpl) countByState(ctx context.Context, cond string, arg any) (map[models.JobState]int64, error) {
	type row struct {
		State models.JobState
		Total int64
	}
	var rows []row
	db := r.getDB(ctx)
	err := db.Model(&models.DeliveryJob{}).
		Select("state, COUNT(*) AS total").
		Where(cond, arg).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by state: %w", err)
	}
	out := make(map[models.JobState]int64, len(rows))
	for _, r := range rows {
		out[r.State] = r.Total
	}
	return out, nil
}

// UpdateJob persists the mutable fields of a job
func (r *DeliveryJobRepositoryImpl) UpdateJob(ctx context.Context, job *models.DeliveryJob) error {
	db := r.getDB(ctx)
	job.UpdatedAt = utils.UTCNow()
	err := db.Model(&models.DeliveryJob{}).
		Where("job_id = ?", job.JobID).
		Updates(map[string]any{
			"state":       job.State,
			"attempts":    job.Attempts,
			"next_run_at": job.NextRunAt,
			"last_error":  job.LastError,
			"finished_at": job.FinishedAt,
			"updated_at":  job.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.JobID, err)
	}
	return nil
}

// DeleteByJobIDs removes jobs by their queue-level ids
func (r *DeliveryJobRepositoryImpl) DeleteByJobIDs(ctx context.Context, jobIDs []string) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	db := r.getDB(ctx)
	res := db.Where("job_id IN ?", jobIDs).Delete(&models.DeliveryJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete jobs by job ids: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteFinishedBefore purges terminal jobs that finished before the cutoff
func (r *DeliveryJobRepositoryImpl) DeleteFinishedBefore(ctx context.Context, queueName string, before time.Time) (int64, error) {
	db := r.getDB(ctx)
	states := []models.JobState{models.JobStateCompleted, models.JobStateFailed}
	res := db.Where("queue_name = ? AND state IN ? AND finished_at < ?", queueName, states, before).
		Delete(&models.DeliveryJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete finished jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByState purges all jobs in the given states from a queue
func (r *DeliveryJobRepositoryImpl) DeleteByState(ctx context.Context, queueName string, states []models.JobState) (int64, error) {
	if len(states) == 0 {
		return 0, nil
	}
	db := r.getDB(ctx)
	res := db.Where("queue_name = ? AND state IN ?", queueName, states).Delete(&models.DeliveryJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete jobs by state: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DeliveryJobRepositoryImpl) applyFilter(db *gorm.DB, f models.DeliveryJobFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.JobID != nil {
		db = db.Where("job_id = ?", *f.JobID)
	}
	if f.QueueName != nil {
		db = db.Where("queue_name = ?", *f.QueueName)
	}
	if f.State != nil {
		db = db.Where("state = ?", *f.State)
	}
	if f.BatchID != nil {
		db = db.Where("batch_id = ?", *f.BatchID)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

// ByFilter retrieves jobs based on filter criteria
func (r *DeliveryJobRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryJobFilter, orderBy string, limit, offset int) ([]*models.DeliveryJob, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryJob{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.DeliveryJob
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return rows, nil
}

func (r *DeliveryJobRepositoryImpl) Count(ctx context.Context, filter models.DeliveryJobFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DeliveryJob{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func (r *DeliveryJobRepositoryImpl) Exists(ctx context.Context, filter models.DeliveryJobFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
