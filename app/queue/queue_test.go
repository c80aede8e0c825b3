package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/models"
)

func testPolicy() queue.Policy {
	return queue.Policy{
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		BackoffStrategy: queue.BackoffExponential,
		KeepCompleted:   100,
		CompletedMaxAge: time.Hour,
		KeepFailed:      100,
		FailedMaxAge:    time.Hour,
	}
}

func testPayload(contactID uint) models.MessagePayload {
	return models.MessagePayload{
		WorkspaceID:   1,
		ContactID:     contactID,
		PageID:        "page_1",
		RecipientPSID: "psid_1",
		Kind:          models.MessageKindText,
		Text:          "hello",
	}
}

func newTestManager(t *testing.T, queues ...string) *queue.Manager {
	t.Helper()
	m := queue.NewManager(queue.NewMemoryStore(), nil)
	for _, name := range queues {
		require.NoError(t, m.RegisterQueue(context.Background(), name, testPolicy()))
	}
	return m
}

func TestEnqueueAndClaimOrder(t *testing.T) {
	m := newTestManager(t, "messages")
	ctx := context.Background()

	// Same priorities must be claimed FIFO, lower priority values first
	for _, p := range []struct {
		contact  uint
		priority int
	}{
		{1, 5}, {2, 1}, {3, 5}, {4, 3},
	} {
		_, err := m.Enqueue(ctx, "messages", testPayload(p.contact), p.priority, 0)
		require.NoError(t, err)
	}

	var order []uint
	for {
		job := m.Claim(ctx, "messages")
		if job == nil {
			break
		}
		order = append(order, job.Payload.ContactID)
	}
	assert.Equal(t, []uint{2, 4, 1, 3}, order)
}

func TestEnqueueUnknownQueue(t *testing.T) {
	m := newTestManager(t, "messages")

	_, err := m.Enqueue(context.Background(), "nope", testPayload(1), 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrUnknownQueue))
}

func TestEnqueueInvalidPayload(t *testing.T) {
	m := newTestManager(t, "messages")

	payload := testPayload(1)
	payload.Text = ""
	_, err := m.Enqueue(context.Background(), "messages", payload, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrInvalidPayload))
}

func TestDelayedJobNotClaimableEarly(t *testing.T) {
	m := newTestManager(t, "scheduled")
	ctx := context.Background()

	job, err := m.Enqueue(ctx, "scheduled", testPayload(1), 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateDelayed, job.State)

	assert.Nil(t, m.Claim(ctx, "scheduled"))

	stats, err := m.QueueStats("scheduled")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 0, stats.Waiting)
}

func TestCancelJobIdempotent(t *testing.T) {
	m := newTestManager(t, "scheduled")
	ctx := context.Background()

	job, err := m.Enqueue(ctx, "scheduled", testPayload(1), 0, time.Hour)
	require.NoError(t, err)

	assert.True(t, m.CancelJob(ctx, job.JobID))
	assert.False(t, m.CancelJob(ctx, job.JobID))
	assert.False(t, m.CancelJob(ctx, "no-such-job"))
	assert.Nil(t, m.Job(job.JobID))
}

func TestMarkFailedRetriesThenGoesTerminal(t *testing.T) {
	m := newTestManager(t, "messages")
	ctx := context.Background()

	enqueued, err := m.Enqueue(ctx, "messages", testPayload(1), 0, 0)
	require.NoError(t, err)

	// First failure: attempts 1 of 3, job is rescheduled with backoff
	job := m.Claim(ctx, "messages")
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Attempts)
	m.MarkFailed(ctx, "messages", job.JobID, errors.New("network timeout"), false)

	current := m.Job(enqueued.JobID)
	require.NotNil(t, current)
	assert.Equal(t, models.JobStateDelayed, current.State)
	require.NotNil(t, current.LastError)
	assert.Contains(t, *current.LastError, "network timeout")
	assert.True(t, current.NextRunAt.After(time.Now().UTC().Add(500*time.Millisecond)))

	// A permanent failure goes terminal regardless of remaining attempts
	m2 := newTestManager(t, "messages")
	enqueued2, err := m2.Enqueue(ctx, "messages", testPayload(2), 0, 0)
	require.NoError(t, err)
	job2 := m2.Claim(ctx, "messages")
	require.NotNil(t, job2)
	m2.MarkFailed(ctx, "messages", job2.JobID, errors.New("contact deleted"), true)

	state, ok := m2.JobStatus(enqueued2.JobID)
	require.True(t, ok)
	assert.Equal(t, models.JobStateFailed, state)
}

func TestRetryJobRequeuesFailed(t *testing.T) {
	m := newTestManager(t, "messages")
	ctx := context.Background()

	enqueued, err := m.Enqueue(ctx, "messages", testPayload(1), 0, 0)
	require.NoError(t, err)
	job := m.Claim(ctx, "messages")
	require.NotNil(t, job)
	m.MarkFailed(ctx, "messages", job.JobID, errors.New("boom"), true)

	assert.True(t, m.RetryJob(ctx, enqueued.JobID))

	retried := m.Job(enqueued.JobID)
	require.NotNil(t, retried)
	assert.Equal(t, models.JobStateWaiting, retried.State)
	assert.Equal(t, 0, retried.Attempts)
	assert.Nil(t, retried.LastError)

	// Only failed jobs can be retried
	assert.False(t, m.RetryJob(ctx, enqueued.JobID))
	assert.False(t, m.RetryJob(ctx, "no-such-job"))
}

func TestPauseAndResume(t *testing.T) {
	m := newTestManager(t, "messages")
	ctx := context.Background()

	_, err := m.Enqueue(ctx, "messages", testPayload(1), 0, 0)
	require.NoError(t, err)

	require.NoError(t, m.PauseQueue("messages"))
	assert.Nil(t, m.Claim(ctx, "messages"))

	stats, err := m.QueueStats("messages")
	require.NoError(t, err)
	assert.True(t, stats.Paused)

	require.NoError(t, m.ResumeQueue("messages"))
	assert.NotNil(t, m.Claim(ctx, "messages"))

	assert.Error(t, m.PauseQueue("nope"))
}

func TestCampaignProgress(t *testing.T) {
	m := newTestManager(t, "campaigns")
	ctx := context.Background()

	payloads := make([]models.MessagePayload, 10)
	for i := range payloads {
		payloads[i] = testPayload(uint(i + 1))
	}
	batchID, count, err := m.EnqueueBulk(ctx, "campaigns", payloads, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// Complete 6, fail 2, leave 2 pending
	for i := 0; i < 8; i++ {
		job := m.Claim(ctx, "campaigns")
		require.NotNil(t, job)
		if i < 6 {
			m.MarkCompleted(ctx, "campaigns", job.JobID)
		} else {
			m.MarkFailed(ctx, "campaigns", job.JobID, errors.New("boom"), true)
		}
	}

	progress, err := m.CampaignProgress(batchID)
	require.NoError(t, err)
	assert.Equal(t, 10, progress.Total)
	assert.Equal(t, 6, progress.Completed)
	assert.Equal(t, 2, progress.Failed)
	assert.Equal(t, 2, progress.Pending)
	assert.Equal(t, 60, progress.Progress)

	_, err = m.CampaignProgress("unknown-batch")
	assert.Error(t, err)
}

func TestCleanQueue(t *testing.T) {
	m := newTestManager(t, "messages")
	ctx := context.Background()

	enqueued, err := m.Enqueue(ctx, "messages", testPayload(1), 0, 0)
	require.NoError(t, err)
	job := m.Claim(ctx, "messages")
	require.NotNil(t, job)
	m.MarkCompleted(ctx, "messages", job.JobID)

	// Zero grace removes every terminal job in the state
	removed, err := m.CleanQueue(ctx, "messages", 0, models.JobStateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, m.Job(enqueued.JobID))

	_, err = m.CleanQueue(ctx, "messages", 0, models.JobStateActive)
	assert.Error(t, err)
}

func TestRegisterQueueReloadsPersistedJobs(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	first := queue.NewManager(store, nil)
	require.NoError(t, first.RegisterQueue(ctx, "messages", testPolicy()))
	enqueued, err := first.Enqueue(ctx, "messages", testPayload(1), 0, 0)
	require.NoError(t, err)

	// An active job at crash time must come back claimable
	claimed := first.Claim(ctx, "messages")
	require.NotNil(t, claimed)

	second := queue.NewManager(store, nil)
	require.NoError(t, second.RegisterQueue(ctx, "messages", testPolicy()))

	job := second.Claim(ctx, "messages")
	require.NotNil(t, job)
	assert.Equal(t, enqueued.JobID, job.JobID)
}
