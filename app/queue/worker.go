package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pegahdev/hermes/models"
)

// Handler executes one claimed job. Returning a PermanentError fails the job
// terminally; any other error is treated as transient and retried per the
// queue policy.
type Handler func(ctx context.Context, job *models.DeliveryJob) error

// PermanentError marks a failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the worker pool fails the job without retry
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// WorkerPool runs N workers against one named queue. Each worker polls the
// manager for due jobs and executes the handler with a bounded per-job
// timeout so a stalled external call cannot hold a worker forever.
type WorkerPool struct {
	manager      *Manager
	queueName    string
	handler      Handler
	workers      int
	jobTimeout   time.Duration
	pollInterval time.Duration
	logger       *log.Logger
	wg           sync.WaitGroup
}

// NewWorkerPool creates a worker pool for one queue
func NewWorkerPool(manager *Manager, queueName string, handler Handler, workers int, jobTimeout time.Duration, logger *log.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WorkerPool{
		manager:      manager,
		queueName:    queueName,
		handler:      handler,
		workers:      workers,
		jobTimeout:   jobTimeout,
		pollInterval: 100 * time.Millisecond,
		logger:       logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until all of them have drained.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for {
			job := p.manager.Claim(ctx, p.queueName)
			if job == nil {
				break
			}
			p.execute(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// execute runs the handler for one claimed job and reports the outcome back
// to the manager. A panic in the handler is contained and counted as a
// transient failure; it never escapes the worker loop.
func (p *WorkerPool) execute(ctx context.Context, job *models.DeliveryJob) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if p.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := p.safeHandle(jobCtx, job)
	jobDuration.WithLabelValues(p.queueName).Observe(time.Since(start).Seconds())

	if err == nil {
		jobsProcessedTotal.WithLabelValues(p.queueName, resultCompleted).Inc()
		p.manager.MarkCompleted(ctx, p.queueName, job.JobID)
		return
	}

	permanent := IsPermanent(err)
	if permanent || job.Attempts >= job.MaxAttempts {
		jobsProcessedTotal.WithLabelValues(p.queueName, resultFailed).Inc()
	} else {
		jobsProcessedTotal.WithLabelValues(p.queueName, resultRetried).Inc()
	}
	p.logger.Printf("queue %s: job %s attempt %d/%d failed (permanent=%t): %v",
		p.queueName, job.JobID, job.Attempts, job.MaxAttempts, permanent, err)
	p.manager.MarkFailed(ctx, p.queueName, job.JobID, err, permanent)
}

func (p *WorkerPool) safeHandle(ctx context.Context, job *models.DeliveryJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()
	return p.handler(ctx, job)
}
