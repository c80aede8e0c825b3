package businessflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/queue"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
)

type messagingEnv struct {
	workspaces *fakeWorkspaceRepo
	contacts   *fakeContactRepo
	messages   *fakeMessageRepo
	compliance *fakeComplianceFlow
	manager    *queue.Manager
	flow       businessflow.MessagingFlow
}

func newMessagingEnv(t *testing.T) *messagingEnv {
	t.Helper()

	manager := queue.NewManager(queue.NewMemoryStore(), nil)
	for _, name := range []string{utils.QueueMessages, utils.QueueCampaigns, utils.QueueScheduled} {
		require.NoError(t, manager.RegisterQueue(context.Background(), name, queue.Policy{
			MaxAttempts: 3,
			BackoffBase: time.Second,
		}))
	}

	env := &messagingEnv{
		workspaces: &fakeWorkspaceRepo{workspaces: map[uint]*models.Workspace{
			10: testWorkspace(10, true),
		}},
		contacts: &fakeContactRepo{contacts: map[uint]*models.Contact{}},
		messages: &fakeMessageRepo{},
		compliance: &fakeComplianceFlow{decision: &dto.ComplianceDecision{
			CanSend:                 true,
			RecommendedBypassMethod: strPtr(string(models.BypassWithinWindow)),
		}},
		manager: manager,
	}
	env.flow = businessflow.NewMessagingFlow(
		env.workspaces,
		env.contacts,
		env.messages,
		env.compliance,
		env.manager,
		nil,
	)
	return env
}

func textContent() dto.MessageContent {
	return dto.MessageContent{Kind: "text", Text: "hello there"}
}

func TestSendMessageEnqueues(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.contacts[1] = testContact(1, 10, true, timePtr(time.Now().UTC()))

	resp, err := env.flow.SendMessage(context.Background(), &dto.SendMessageRequest{
		WorkspaceID: 10,
		ContactID:   1,
		Content:     textContent(),
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)
	require.NotNil(t, resp.Compliance)
	assert.True(t, resp.Compliance.CanSend)

	job := env.manager.Job(resp.JobID)
	require.NotNil(t, job)
	assert.Equal(t, utils.QueueMessages, job.QueueName)
	assert.Equal(t, uint(1), job.Payload.ContactID)
	require.NotNil(t, job.Payload.BypassMethod)
	assert.Equal(t, models.BypassWithinWindow, *job.Payload.BypassMethod)
	// Single sends are checked up front; delivery must not re-check
	assert.NotNil(t, job.Payload.PrecheckedAt)
}

func TestSendMessageBlockedReturnsDecisionWithoutJob(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.contacts[1] = testContact(1, 10, true, nil)
	env.compliance.decision = &dto.ComplianceDecision{
		CanSend: false,
		Warnings: []dto.ComplianceWarning{
			{Code: businessflow.WarnNoBypassAvailable, Severity: businessflow.SeverityError},
		},
	}

	resp, err := env.flow.SendMessage(context.Background(), &dto.SendMessageRequest{
		WorkspaceID: 10,
		ContactID:   1,
		Content:     textContent(),
	}, nil)

	// A policy block is not an error
	require.NoError(t, err)
	assert.Empty(t, resp.JobID)
	require.NotNil(t, resp.Compliance)
	assert.False(t, resp.Compliance.CanSend)

	stats, err := env.manager.QueueStats(utils.QueueMessages)
	require.NoError(t, err)
	assert.Zero(t, stats.Waiting+stats.Delayed+stats.Active)
}

func TestSendMessageNegativePriority(t *testing.T) {
	env := newMessagingEnv(t)

	_, err := env.flow.SendMessage(context.Background(), &dto.SendMessageRequest{
		WorkspaceID: 10,
		ContactID:   1,
		Content:     textContent(),
		Priority:    -1,
	}, nil)
	require.Error(t, err)

	var be *businessflow.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "INVALID_PRIORITY", be.Code)
}

func TestSendMessageWorkspaceErrors(t *testing.T) {
	t.Run("Unknown", func(t *testing.T) {
		env := newMessagingEnv(t)
		_, err := env.flow.SendMessage(context.Background(), &dto.SendMessageRequest{
			WorkspaceID: 404,
			ContactID:   1,
			Content:     textContent(),
		}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsWorkspaceNotFound(err))
	})

	t.Run("Inactive", func(t *testing.T) {
		env := newMessagingEnv(t)
		env.workspaces.workspaces[11] = testWorkspace(11, false)
		_, err := env.flow.SendMessage(context.Background(), &dto.SendMessageRequest{
			WorkspaceID: 11,
			ContactID:   1,
			Content:     textContent(),
		}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsWorkspaceInactive(err))
	})
}

func TestBroadcastMessageSkipsUndeliverable(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.contacts[1] = testContact(1, 10, true, nil)
	env.contacts.contacts[2] = testContact(2, 10, false, nil) // unsubscribed
	env.contacts.contacts[3] = testContact(3, 77, true, nil)  // other workspace

	resp, err := env.flow.BroadcastMessage(context.Background(), &dto.BroadcastMessageRequest{
		WorkspaceID: 10,
		ContactIDs:  []uint{1, 2, 3, 4},
		Content:     textContent(),
	}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 1, resp.JobCount)
	assert.Equal(t, 3, resp.Skipped)

	// Broadcast jobs are compliance-checked at delivery time, not enqueue time
	progress, err := env.manager.CampaignProgress(resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Total)
}

func TestBroadcastMessageNoRecipients(t *testing.T) {
	env := newMessagingEnv(t)

	_, err := env.flow.BroadcastMessage(context.Background(), &dto.BroadcastMessageRequest{
		WorkspaceID: 10,
		ContactIDs:  []uint{404},
		Content:     textContent(),
	}, nil)
	require.Error(t, err)
	assert.True(t, businessflow.IsNoRecipientsResolved(err))
}

func TestStartCampaignFallsBackToSubscribed(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.subscribed = []*models.Contact{
		testContact(1, 10, true, nil),
		testContact(2, 10, true, nil),
	}

	resp, err := env.flow.StartCampaign(context.Background(), &dto.StartCampaignRequest{
		WorkspaceID: 10,
		CampaignID:  "spring-sale",
		Content:     textContent(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.JobCount)
	assert.Zero(t, resp.Skipped)
}

func TestScheduleMessage(t *testing.T) {
	t.Run("FutureSendEnqueuedDelayed", func(t *testing.T) {
		env := newMessagingEnv(t)
		env.contacts.contacts[1] = testContact(1, 10, true, nil)
		sendAt := time.Now().UTC().Add(2 * time.Hour)

		resp, err := env.flow.ScheduleMessage(context.Background(), &dto.ScheduleMessageRequest{
			WorkspaceID: 10,
			ContactID:   1,
			Content:     textContent(),
			SendAt:      sendAt,
		}, nil)
		require.NoError(t, err)
		require.NotEmpty(t, resp.JobID)
		assert.Equal(t, sendAt, resp.SendAt)

		state, ok := env.manager.JobStatus(resp.JobID)
		require.True(t, ok)
		assert.Equal(t, models.JobStateDelayed, state)
	})

	t.Run("PastSendRejectedNothingEnqueued", func(t *testing.T) {
		env := newMessagingEnv(t)
		env.contacts.contacts[1] = testContact(1, 10, true, nil)

		_, err := env.flow.ScheduleMessage(context.Background(), &dto.ScheduleMessageRequest{
			WorkspaceID: 10,
			ContactID:   1,
			Content:     textContent(),
			SendAt:      time.Now().UTC().Add(-time.Minute),
		}, nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsScheduleTimeInPast(err))

		stats, err := env.manager.QueueStats(utils.QueueScheduled)
		require.NoError(t, err)
		assert.Zero(t, stats.Waiting+stats.Delayed)
	})
}

func TestCancelScheduledMessage(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.contacts[1] = testContact(1, 10, true, nil)

	resp, err := env.flow.ScheduleMessage(context.Background(), &dto.ScheduleMessageRequest{
		WorkspaceID: 10,
		ContactID:   1,
		Content:     textContent(),
		SendAt:      time.Now().UTC().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	cancelled, err := env.flow.CancelScheduledMessage(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Second cancel is a no-op
	cancelled, err = env.flow.CancelScheduledMessage(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestMessageJobStatus(t *testing.T) {
	env := newMessagingEnv(t)
	env.contacts.contacts[1] = testContact(1, 10, true, nil)

	resp, err := env.flow.ScheduleMessage(context.Background(), &dto.ScheduleMessageRequest{
		WorkspaceID: 10,
		ContactID:   1,
		Content:     textContent(),
		SendAt:      time.Now().UTC().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	status, err := env.flow.MessageJobStatus(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, status.JobID)
	assert.Equal(t, utils.QueueScheduled, status.QueueName)
	assert.Equal(t, string(models.JobStateDelayed), status.State)
	assert.NotNil(t, status.NextRunAt)

	_, err = env.flow.MessageJobStatus(context.Background(), "no-such-job")
	require.Error(t, err)
	assert.True(t, businessflow.IsJobNotFound(err))
}

func TestRecordDeliveryReceipt(t *testing.T) {
	receiptEnv := func(t *testing.T, status models.MessageStatus) *messagingEnv {
		t.Helper()
		env := newMessagingEnv(t)
		env.messages.byPlatformMID = map[string]*models.Message{
			"mid.100": {
				ID:          7,
				WorkspaceID: 10,
				ContactID:   1,
				Direction:   models.MessageDirectionOutbound,
				Status:      status,
			},
		}
		return env
	}

	t.Run("DeliveredAdvancesSentMessage", func(t *testing.T) {
		env := receiptEnv(t, models.MessageStatusSent)

		resp, err := env.flow.RecordDeliveryReceipt(context.Background(), &dto.RecordReceiptRequest{
			WorkspaceID: 10, PlatformMID: "mid.100", Event: "delivered",
		})
		require.NoError(t, err)
		assert.Equal(t, uint(7), resp.MessageID)
		assert.Equal(t, string(models.MessageStatusDelivered), resp.Status)
		assert.Equal(t, models.MessageStatusDelivered, env.messages.statusUpdates[7])
	})

	t.Run("ReadAdvancesDeliveredMessage", func(t *testing.T) {
		env := receiptEnv(t, models.MessageStatusDelivered)

		resp, err := env.flow.RecordDeliveryReceipt(context.Background(), &dto.RecordReceiptRequest{
			WorkspaceID: 10, PlatformMID: "mid.100", Event: "read",
		})
		require.NoError(t, err)
		assert.Equal(t, string(models.MessageStatusRead), resp.Status)
	})

	t.Run("LateDeliveredIsNoOp", func(t *testing.T) {
		// A delivered receipt arriving after the read receipt must not move
		// the status backwards
		env := receiptEnv(t, models.MessageStatusRead)

		resp, err := env.flow.RecordDeliveryReceipt(context.Background(), &dto.RecordReceiptRequest{
			WorkspaceID: 10, PlatformMID: "mid.100", Event: "delivered",
		})
		require.NoError(t, err)
		assert.Equal(t, string(models.MessageStatusRead), resp.Status)
		assert.Empty(t, env.messages.statusUpdates)
	})

	t.Run("UnknownPlatformMID", func(t *testing.T) {
		env := receiptEnv(t, models.MessageStatusSent)

		_, err := env.flow.RecordDeliveryReceipt(context.Background(), &dto.RecordReceiptRequest{
			WorkspaceID: 10, PlatformMID: "mid.999", Event: "delivered",
		})
		require.Error(t, err)
		assert.True(t, businessflow.IsMessageNotFound(err))
	})

	t.Run("InboundMessageRejected", func(t *testing.T) {
		env := newMessagingEnv(t)
		env.messages.byPlatformMID = map[string]*models.Message{
			"mid.100": {
				ID:          8,
				WorkspaceID: 10,
				Direction:   models.MessageDirectionInbound,
				Status:      models.MessageStatusDelivered,
			},
		}

		_, err := env.flow.RecordDeliveryReceipt(context.Background(), &dto.RecordReceiptRequest{
			WorkspaceID: 10, PlatformMID: "mid.100", Event: "read",
		})
		require.Error(t, err)
		assert.True(t, businessflow.IsMessageNotFound(err))
	})
}
