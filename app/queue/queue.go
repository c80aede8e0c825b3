package queue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
)

var (
	ErrUnknownQueue   = errors.New("unknown queue")
	ErrInvalidPayload = errors.New("invalid job payload")
	ErrPastSchedule   = errors.New("scheduled time is in the past")
)

// Policy is the per-queue job policy, fixed at queue registration
type Policy struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffStrategy string // exponential, fixed
	KeepCompleted   int
	CompletedMaxAge time.Duration
	KeepFailed      int
	FailedMaxAge    time.Duration
	StaggerDelay    time.Duration
}

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Stats is a point-in-time snapshot of one queue
type Stats struct {
	Waiting   int  `json:"waiting"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Delayed   int  `json:"delayed"`
	Paused    bool `json:"paused"`
}

// BatchProgress summarizes the jobs created by one bulk enqueue
type BatchProgress struct {
	BatchID   string `json:"batch_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	Progress  int    `json:"progress"`
}

// item is a heap entry; seq preserves FIFO order among equal priorities
type item struct {
	job   *models.DeliveryJob
	seq   uint64
	index int
}

type jobHeap []*item

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *jobHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type queueState struct {
	name    string
	policy  Policy
	ready   jobHeap          // waiting jobs, priority order
	delayed map[string]*item // jobs waiting for NextRunAt
	jobs    map[string]*models.DeliveryJob
	paused  bool
}

// Manager owns the named delivery queues. All job mutations happen under the
// manager mutex so a job is never claimed by two workers.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
	store  JobStore
	logger *log.Logger
	seq    uint64
}

// NewManager creates a queue manager on the given durability backend
func NewManager(store JobStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		queues: make(map[string]*queueState),
		store:  store,
		logger: logger,
	}
}

// RegisterQueue declares a named queue and reloads its unfinished jobs from
// the store. Jobs that were active when the process died are rescheduled as
// waiting.
func (m *Manager) RegisterQueue(ctx context.Context, name string, policy Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.queues[name]; exists {
		return fmt.Errorf("queue %s already registered", name)
	}

	qs := &queueState{
		name:    name,
		policy:  policy,
		delayed: make(map[string]*item),
		jobs:    make(map[string]*models.DeliveryJob),
	}
	heap.Init(&qs.ready)
	m.queues[name] = qs

	jobs, err := m.store.LoadUnfinished(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to reload queue %s: %w", name, err)
	}

	now := utils.UTCNow()
	for _, job := range jobs {
		if job.State == models.JobStateActive {
			job.State = models.JobStateWaiting
			if err := m.store.Update(ctx, job); err != nil {
				m.logger.Printf("queue %s: failed to reset interrupted job %s: %v", name, job.JobID, err)
			}
		}
		m.scheduleLocked(qs, job, now)
	}
	if len(jobs) > 0 {
		m.logger.Printf("queue %s: reloaded %d unfinished jobs", name, len(jobs))
	}
	return nil
}

// scheduleLocked places a non-terminal job into the ready heap or the delayed
// set. Caller holds m.mu.
func (m *Manager) scheduleLocked(qs *queueState, job *models.DeliveryJob, now time.Time) {
	qs.jobs[job.JobID] = job
	m.seq++
	it := &item{job: job, seq: m.seq}
	if job.NextRunAt.After(now) {
		job.State = models.JobStateDelayed
		qs.delayed[job.JobID] = it
		return
	}
	job.State = models.JobStateWaiting
	heap.Push(&qs.ready, it)
}

// promoteDueLocked moves due delayed jobs into the ready heap. Caller holds m.mu.
func (m *Manager) promoteDueLocked(ctx context.Context, qs *queueState, now time.Time) {
	for id, it := range qs.delayed {
		if it.job.NextRunAt.After(now) {
			continue
		}
		delete(qs.delayed, id)
		it.job.State = models.JobStateWaiting
		heap.Push(&qs.ready, it)
		if err := m.store.Update(ctx, it.job); err != nil {
			m.logger.Printf("queue %s: failed to persist promotion of job %s: %v", qs.name, it.job.JobID, err)
		}
	}
}

// Enqueue adds one job. Acceptance is acknowledged synchronously; delivery is
// not.
func (m *Manager) Enqueue(ctx context.Context, queueName string, payload models.MessagePayload, priority int, delay time.Duration) (*models.DeliveryJob, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if delay < 0 {
		return nil, ErrPastSchedule
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	qs, ok := m.queues[queueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}

	now := utils.UTCNow()
	job := &models.DeliveryJob{
		JobID:       uuid.New().String(),
		QueueName:   queueName,
		Payload:     payload,
		Priority:    priority,
		DelayMs:     delay.Milliseconds(),
		MaxAttempts: qs.policy.MaxAttempts,
		State:       models.JobStateWaiting,
		NextRunAt:   now.Add(delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	m.scheduleLocked(qs, job, now)
	if job.State == models.JobStateDelayed {
		// Save wrote waiting; record the delayed state
		if err := m.store.Update(ctx, job); err != nil {
			m.logger.Printf("queue %s: failed to persist delayed state of job %s: %v", queueName, job.JobID, err)
		}
	}

	clone := *job
	return &clone, nil
}

// EnqueueBulk adds a batch of jobs sharing one batch id, with ids
// "{batchId}-{index}" and an incrementally staggered delay so fan-out does not
// dispatch every recipient in the same instant.
func (m *Manager) EnqueueBulk(ctx context.Context, queueName string, payloads []models.MessagePayload, priority int) (string, int, error) {
	if len(payloads) == 0 {
		return "", 0, fmt.Errorf("%w: empty batch", ErrInvalidPayload)
	}
	for i := range payloads {
		if err := payloads[i].Validate(); err != nil {
			return "", 0, fmt.Errorf("%w: payload %d: %v", ErrInvalidPayload, i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	qs, ok := m.queues[queueName]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}

	batchID := uuid.New().String()
	now := utils.UTCNow()
	jobs := make([]*models.DeliveryJob, 0, len(payloads))
	for i := range payloads {
		delay := time.Duration(i) * qs.policy.StaggerDelay
		jobs = append(jobs, &models.DeliveryJob{
			JobID:       fmt.Sprintf("%s-%d", batchID, i),
			QueueName:   queueName,
			Payload:     payloads[i],
			Priority:    priority,
			DelayMs:     delay.Milliseconds(),
			MaxAttempts: qs.policy.MaxAttempts,
			State:       models.JobStateWaiting,
			BatchID:     &batchID,
			NextRunAt:   now.Add(delay),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := m.store.SaveBatch(ctx, jobs); err != nil {
		return "", 0, fmt.Errorf("failed to persist batch: %w", err)
	}

	for _, job := range jobs {
		m.scheduleLocked(qs, job, now)
	}
	return batchID, len(jobs), nil
}

// Claim pops the highest-priority due job and marks it active. Returns nil
// when the queue is paused or has no due job. At most one worker ever holds a
// given job.
func (m *Manager) Claim(ctx context.Context, queueName string) *models.DeliveryJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs, ok := m.queues[queueName]
	if !ok || qs.paused {
		return nil
	}

	now := utils.UTCNow()
	m.promoteDueLocked(ctx, qs, now)

	for qs.ready.Len() > 0 {
		it := heap.Pop(&qs.ready).(*item)
		job := it.job
		// Skip entries whose job was cancelled or already moved on
		if current, exists := qs.jobs[job.JobID]; !exists || current != job || job.State != models.JobStateWaiting {
			continue
		}
		job.State = models.JobStateActive
		job.Attempts++
		job.UpdatedAt = now
		if err := m.store.Update(ctx, job); err != nil {
			m.logger.Printf("queue %s: failed to persist claim of job %s: %v", queueName, job.JobID, err)
		}
		clone := *job
		return &clone
	}
	return nil
}

// MarkCompleted transitions an active job to completed
func (m *Manager) MarkCompleted(ctx context.Context, queueName, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs, ok := m.queues[queueName]
	if !ok {
		return
	}
	job, exists := qs.jobs[jobID]
	if !exists || job.State != models.JobStateActive {
		// Cancelled mid-flight; the removal won the race
		return
	}
	now := utils.UTCNow()
	job.State = models.JobStateCompleted
	job.FinishedAt = &now
	job.UpdatedAt = now
	job.LastError = nil
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Printf("queue %s: failed to persist completion of job %s: %v", queueName, jobID, err)
	}
	m.pruneCountLocked(ctx, qs)
}

// MarkFailed records a failed attempt. Transient failures reschedule with
// backoff until attempts are exhausted; permanent failures go terminal
// immediately.
func (m *Manager) MarkFailed(ctx context.Context, queueName, jobID string, cause error, permanent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs, ok := m.queues[queueName]
	if !ok {
		return
	}
	job, exists := qs.jobs[jobID]
	if !exists || job.State != models.JobStateActive {
		return
	}

	now := utils.UTCNow()
	job.UpdatedAt = now
	if cause != nil {
		job.LastError = utils.ToPtr(cause.Error())
	}

	if !permanent && job.Attempts < job.MaxAttempts {
		backoff := nextRetryDelay(qs.policy, job.Attempts)
		job.NextRunAt = now.Add(backoff)
		job.State = models.JobStateDelayed
		m.seq++
		qs.delayed[job.JobID] = &item{job: job, seq: m.seq}
		if err := m.store.Update(ctx, job); err != nil {
			m.logger.Printf("queue %s: failed to persist retry of job %s: %v", queueName, jobID, err)
		}
		return
	}

	job.State = models.JobStateFailed
	job.FinishedAt = &now
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Printf("queue %s: failed to persist failure of job %s: %v", queueName, jobID, err)
	}
	m.pruneCountLocked(ctx, qs)
}

// nextRetryDelay computes the delay before attempt n+1 after n failed attempts
func nextRetryDelay(policy Policy, attempts int) time.Duration {
	if policy.BackoffStrategy == BackoffFixed {
		return policy.BackoffBase
	}
	// exponential: base * 2^(attempts-1), capped at 5 minutes
	d := policy.BackoffBase * time.Duration(math.Pow(2, float64(attempts-1)))
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	if d < policy.BackoffBase {
		d = policy.BackoffBase
	}
	return d
}

// Job returns a copy of the job with the given id, or nil if unknown
func (m *Manager) Job(jobID string) *models.DeliveryJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qs := range m.queues {
		if job, ok := qs.jobs[jobID]; ok {
			clone := *job
			return &clone
		}
	}
	return nil
}

// JobStatus returns the state of the job with the given id
func (m *Manager) JobStatus(jobID string) (models.JobState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qs := range m.queues {
		if job, ok := qs.jobs[jobID]; ok {
			return job.State, true
		}
	}
	return "", false
}

// CancelJob removes a job. Idempotent: the first call returns true, later
// calls (or calls for unknown ids) return false. Cancelling a job already
// claimed by a worker is best-effort; the in-flight send completes but its
// result is discarded.
func (m *Manager) CancelJob(ctx context.Context, jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qs := range m.queues {
		if _, ok := qs.jobs[jobID]; !ok {
			continue
		}
		delete(qs.jobs, jobID)
		delete(qs.delayed, jobID)
		if err := m.store.Delete(ctx, []string{jobID}); err != nil {
			m.logger.Printf("queue %s: failed to delete cancelled job %s: %v", qs.name, jobID, err)
		}
		return true
	}
	return false
}

// RetryJob requeues a terminally failed job. Returns false if the job does
// not exist or is not failed.
func (m *Manager) RetryJob(ctx context.Context, jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qs := range m.queues {
		job, ok := qs.jobs[jobID]
		if !ok {
			continue
		}
		if job.State != models.JobStateFailed {
			return false
		}
		now := utils.UTCNow()
		job.Attempts = 0
		job.FinishedAt = nil
		job.LastError = nil
		job.NextRunAt = now
		job.UpdatedAt = now
		job.State = models.JobStateWaiting
		m.seq++
		heap.Push(&qs.ready, &item{job: job, seq: m.seq})
		if err := m.store.Update(ctx, job); err != nil {
			m.logger.Printf("queue %s: failed to persist retry of job %s: %v", qs.name, jobID, err)
		}
		return true
	}
	return false
}

// QueueStats returns a snapshot of one queue
func (m *Manager) QueueStats(queueName string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs, ok := m.queues[queueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	return m.statsLocked(qs), nil
}

// AllQueueStats returns snapshots of every registered queue
func (m *Manager) AllQueueStats() map[string]*Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Stats, len(m.queues))
	for name, qs := range m.queues {
		out[name] = m.statsLocked(qs)
	}
	return out
}

func (m *Manager) statsLocked(qs *queueState) *Stats {
	stats := &Stats{Paused: qs.paused}
	for _, job := range qs.jobs {
		switch job.State {
		case models.JobStateWaiting:
			stats.Waiting++
		case models.JobStateDelayed:
			stats.Delayed++
		case models.JobStateActive:
			stats.Active++
		case models.JobStateCompleted:
			stats.Completed++
		case models.JobStateFailed:
			stats.Failed++
		}
	}
	return stats
}

// PauseQueue stops worker consumption without losing queued jobs
func (m *Manager) PauseQueue(queueName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs, ok := m.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	qs.paused = true
	return nil
}

// ResumeQueue resumes worker consumption
func (m *Manager) ResumeQueue(queueName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs, ok := m.queues[queueName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}
	qs.paused = false
	return nil
}

// CleanQueue removes terminal jobs in the given state that finished at least
// grace ago. Returns the number of jobs removed.
func (m *Manager) CleanQueue(ctx context.Context, queueName string, grace time.Duration, state models.JobState) (int, error) {
	if state != models.JobStateCompleted && state != models.JobStateFailed {
		return 0, fmt.Errorf("cannot clean non-terminal state %s", state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	qs, ok := m.queues[queueName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	}

	cutoff := utils.UTCNow().Add(-grace)
	var removed []string
	for id, job := range qs.jobs {
		if job.State != state || job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		removed = append(removed, id)
	}
	for _, id := range removed {
		delete(qs.jobs, id)
	}
	if len(removed) > 0 {
		if err := m.store.Delete(ctx, removed); err != nil {
			return len(removed), fmt.Errorf("failed to delete cleaned jobs: %w", err)
		}
	}
	return len(removed), nil
}

// CampaignProgress reduces the states of all jobs in a batch. Pending covers
// waiting, delayed, and active jobs.
func (m *Manager) CampaignProgress(batchID string) (*BatchProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress := &BatchProgress{BatchID: batchID}
	for _, qs := range m.queues {
		for _, job := range qs.jobs {
			if job.BatchID == nil || *job.BatchID != batchID {
				continue
			}
			progress.Total++
			switch job.State {
			case models.JobStateCompleted:
				progress.Completed++
			case models.JobStateFailed:
				progress.Failed++
			default:
				progress.Pending++
			}
		}
	}
	if progress.Total == 0 {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	progress.Progress = int(math.Round(float64(progress.Completed) / float64(progress.Total) * 100))
	return progress, nil
}

// RunJanitor enforces age- and count-based retention until ctx is cancelled
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pruneAge(ctx)
		}
	}
}

func (m *Manager) pruneAge(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := utils.UTCNow()
	for _, qs := range m.queues {
		var removed []string
		for id, job := range qs.jobs {
			var maxAge time.Duration
			switch job.State {
			case models.JobStateCompleted:
				maxAge = qs.policy.CompletedMaxAge
			case models.JobStateFailed:
				maxAge = qs.policy.FailedMaxAge
			default:
				continue
			}
			if maxAge <= 0 || job.FinishedAt == nil {
				continue
			}
			if now.Sub(*job.FinishedAt) > maxAge {
				removed = append(removed, id)
			}
		}
		for _, id := range removed {
			delete(qs.jobs, id)
		}
		if len(removed) > 0 {
			if err := m.store.Delete(ctx, removed); err != nil {
				m.logger.Printf("queue %s: failed to prune %d aged jobs: %v", qs.name, len(removed), err)
			}
		}
	}
}

// pruneCountLocked enforces the count-based retention caps after a terminal
// transition. Oldest terminal jobs go first. Caller holds m.mu.
func (m *Manager) pruneCountLocked(ctx context.Context, qs *queueState) {
	prune := func(state models.JobState, keep int) {
		if keep <= 0 {
			return
		}
		var terminal []*models.DeliveryJob
		for _, job := range qs.jobs {
			if job.State == state {
				terminal = append(terminal, job)
			}
		}
		if len(terminal) <= keep {
			return
		}
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].FinishedAt.Before(*terminal[j].FinishedAt)
		})
		var removed []string
		for _, job := range terminal[:len(terminal)-keep] {
			delete(qs.jobs, job.JobID)
			removed = append(removed, job.JobID)
		}
		if err := m.store.Delete(ctx, removed); err != nil {
			m.logger.Printf("queue %s: failed to prune %d %s jobs: %v", qs.name, len(removed), state, err)
		}
	}
	prune(models.JobStateCompleted, qs.policy.KeepCompleted)
	prune(models.JobStateFailed, qs.policy.KeepFailed)
}
