package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/config"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
)

func queueTestConfig() config.QueueConfig {
	return config.QueueConfig{
		MessageWorkers:   1,
		CampaignWorkers:  1,
		ScheduledWorkers: 1,
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		KeepCompleted:    100,
		CompletedMaxAge:  time.Hour,
		KeepFailed:       100,
		FailedMaxAge:     time.Hour,
		JanitorInterval:  time.Minute,
	}
}

func queueTestPayload() models.MessagePayload {
	return models.MessagePayload{
		WorkspaceID:   10,
		ContactID:     1,
		PageID:        "page_1",
		RecipientPSID: "psid_1",
		Kind:          models.MessageKindText,
		Text:          "hello",
	}
}

func TestInitializeQueuesPolicies(t *testing.T) {
	ctx := context.Background()
	manager := queue.NewManager(queue.NewMemoryStore(), nil)
	require.NoError(t, initializeQueues(ctx, manager, queueTestConfig()))

	t.Run("CampaignFailureIsTerminal", func(t *testing.T) {
		// Campaign sends are single-attempt: a transient failure must not
		// reschedule the recipient for another delivery.
		job, err := manager.Enqueue(ctx, utils.QueueCampaigns, queueTestPayload(), 0, 0)
		require.NoError(t, err)

		claimed := manager.Claim(ctx, utils.QueueCampaigns)
		require.NotNil(t, claimed)
		require.Equal(t, job.JobID, claimed.JobID)

		manager.MarkFailed(ctx, utils.QueueCampaigns, claimed.JobID, errors.New("send timeout"), false)

		state, ok := manager.JobStatus(claimed.JobID)
		require.True(t, ok)
		assert.Equal(t, models.JobStateFailed, state)
	})

	t.Run("MessageFailureRetries", func(t *testing.T) {
		job, err := manager.Enqueue(ctx, utils.QueueMessages, queueTestPayload(), 0, 0)
		require.NoError(t, err)

		claimed := manager.Claim(ctx, utils.QueueMessages)
		require.NotNil(t, claimed)
		require.Equal(t, job.JobID, claimed.JobID)

		manager.MarkFailed(ctx, utils.QueueMessages, claimed.JobID, errors.New("send timeout"), false)

		state, ok := manager.JobStatus(claimed.JobID)
		require.True(t, ok)
		assert.Equal(t, models.JobStateDelayed, state)
	})

	t.Run("StaggerDelays", func(t *testing.T) {
		payloads := []models.MessagePayload{queueTestPayload(), queueTestPayload()}

		batchID, count, err := manager.EnqueueBulk(ctx, utils.QueueCampaigns, payloads, 0)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		// The second recipient of a bulk enqueue starts after one stagger step
		second := manager.Job(batchID + "-1")
		require.NotNil(t, second)
		assert.Equal(t, models.JobStateDelayed, second.State)
		assert.Equal(t, utils.CampaignStagger.Milliseconds(), second.DelayMs)
	})
}
