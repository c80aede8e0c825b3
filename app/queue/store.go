// Package queue implements the durable multi-queue delivery job engine:
// priority scheduling, delays, retries with backoff, batch fan-out, and
// retention.
package queue

import (
	"context"
	"sort"
	"sync"

	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
)

// JobStore is the durability backend behind the in-memory schedule. The
// manager writes through on every state transition and reloads non-terminal
// jobs on startup.
type JobStore interface {
	Save(ctx context.Context, job *models.DeliveryJob) error
	SaveBatch(ctx context.Context, jobs []*models.DeliveryJob) error
	Update(ctx context.Context, job *models.DeliveryJob) error
	Delete(ctx context.Context, jobIDs []string) error
	LoadUnfinished(ctx context.Context, queueName string) ([]*models.DeliveryJob, error)
}

// GormStore implements JobStore on the delivery job repository
type GormStore struct {
	repo repository.DeliveryJobRepository
}

// NewGormStore creates a postgres-backed job store
func NewGormStore(repo repository.DeliveryJobRepository) *GormStore {
	return &GormStore{repo: repo}
}

func (s *GormStore) Save(ctx context.Context, job *models.DeliveryJob) error {
	return s.repo.Save(ctx, job)
}

func (s *GormStore) SaveBatch(ctx context.Context, jobs []*models.DeliveryJob) error {
	return s.repo.SaveBatch(ctx, jobs)
}

func (s *GormStore) Update(ctx context.Context, job *models.DeliveryJob) error {
	return s.repo.UpdateJob(ctx, job)
}

func (s *GormStore) Delete(ctx context.Context, jobIDs []string) error {
	_, err := s.repo.DeleteByJobIDs(ctx, jobIDs)
	return err
}

func (s *GormStore) LoadUnfinished(ctx context.Context, queueName string) ([]*models.DeliveryJob, error) {
	return s.repo.ListUnfinished(ctx, queueName)
}

// MemoryStore implements JobStore in process memory. Used in tests and as a
// degraded mode when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.DeliveryJob
}

// NewMemoryStore creates an in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*models.DeliveryJob)}
}

func (s *MemoryStore) Save(ctx context.Context, job *models.DeliveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.JobID] = &clone
	return nil
}

func (s *MemoryStore) SaveBatch(ctx context.Context, jobs []*models.DeliveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range jobs {
		clone := *job
		s.jobs[job.JobID] = &clone
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.DeliveryJob) error {
	return s.Save(ctx, job)
}

func (s *MemoryStore) Delete(ctx context.Context, jobIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range jobIDs {
		delete(s.jobs, id)
	}
	return nil
}

func (s *MemoryStore) LoadUnfinished(ctx context.Context, queueName string) ([]*models.DeliveryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DeliveryJob
	for _, job := range s.jobs {
		if job.QueueName != queueName || job.State.IsTerminal() {
			continue
		}
		clone := *job
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored jobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
