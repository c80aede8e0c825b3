package businessflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/services"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/models"
)

type complianceEnv struct {
	contacts *fakeContactRepo
	messages *fakeMessageRepo
	otn      *fakeOtnRepo
	subs     *fakeSubscriptionRepo
	audits   *fakeAuditRepo
	cooldown *services.MemoryCooldownStore
	flow     businessflow.ComplianceFlow
}

func newComplianceEnv() *complianceEnv {
	env := &complianceEnv{
		contacts: &fakeContactRepo{contacts: map[uint]*models.Contact{}},
		messages: &fakeMessageRepo{},
		otn:      &fakeOtnRepo{},
		subs:     &fakeSubscriptionRepo{},
		audits:   &fakeAuditRepo{},
		cooldown: services.NewMemoryCooldownStore(0),
	}
	env.flow = businessflow.NewComplianceFlow(
		env.contacts,
		env.messages,
		env.otn,
		env.subs,
		env.audits,
		env.cooldown,
		testComplianceConfig(),
	)
	return env
}

func TestCheckComplianceWindowOpen(t *testing.T) {
	env := newComplianceEnv()
	env.contacts.contacts[1] = testContact(1, 10, true, timePtr(time.Now().UTC().Add(-time.Hour)))

	decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
		WorkspaceID: 10,
		ContactID:   1,
	})
	require.NoError(t, err)
	assert.True(t, decision.CanSend)
	assert.Empty(t, decision.Warnings)
	require.NotNil(t, decision.RecommendedBypassMethod)
	assert.Equal(t, string(models.BypassWithinWindow), *decision.RecommendedBypassMethod)
}

func TestCheckComplianceContactNotFound(t *testing.T) {
	env := newComplianceEnv()

	decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
		WorkspaceID: 10,
		ContactID:   99,
	})
	require.NoError(t, err)
	assert.False(t, decision.CanSend)
	assert.True(t, decision.HasWarning(businessflow.WarnContactNotFound))
}

func TestCheckComplianceWrongWorkspace(t *testing.T) {
	env := newComplianceEnv()
	env.contacts.contacts[1] = testContact(1, 77, true, timePtr(time.Now().UTC()))

	decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
		WorkspaceID: 10,
		ContactID:   1,
	})
	require.NoError(t, err)
	assert.False(t, decision.CanSend)
	assert.True(t, decision.HasWarning(businessflow.WarnContactNotFound))
}

func TestCheckComplianceUnsubscribed(t *testing.T) {
	env := newComplianceEnv()
	env.contacts.contacts[1] = testContact(1, 10, false, timePtr(time.Now().UTC()))

	decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
		WorkspaceID: 10,
		ContactID:   1,
	})
	require.NoError(t, err)
	assert.False(t, decision.CanSend)
	assert.True(t, decision.HasWarning(businessflow.WarnUnsubscribed))
}

func TestCheckComplianceClosedWindowBypassPriority(t *testing.T) {
	closedWindow := timePtr(time.Now().UTC().Add(-48 * time.Hour))

	t.Run("OtnTokenFirst", func(t *testing.T) {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, closedWindow)
		env.otn.available = 2
		env.subs.active = true

		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
		})
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnOutsideWindow))
		require.NotNil(t, decision.RecommendedBypassMethod)
		assert.Equal(t, string(models.BypassOtnToken), *decision.RecommendedBypassMethod)
	})

	t.Run("RecurringSecond", func(t *testing.T) {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, closedWindow)
		env.subs.active = true

		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
		})
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		require.NotNil(t, decision.RecommendedBypassMethod)
		assert.Equal(t, string(models.BypassRecurringNotification), *decision.RecommendedBypassMethod)
	})

	t.Run("HumanAgentThird", func(t *testing.T) {
		env := newComplianceEnv()
		// Window closed but the contact wrote two days ago, inside the
		// seven-day human agent allowance.
		env.contacts.contacts[1] = testContact(1, 10, true, closedWindow)

		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
		})
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		require.NotNil(t, decision.RecommendedBypassMethod)
		assert.Equal(t, string(models.BypassMessageTag), *decision.RecommendedBypassMethod)
		require.NotNil(t, decision.RecommendedMessageTag)
		assert.Equal(t, string(models.TagHumanAgent), *decision.RecommendedMessageTag)
	})

	t.Run("BlockedLast", func(t *testing.T) {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, timePtr(time.Now().UTC().Add(-30*24*time.Hour)))

		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
		})
		require.NoError(t, err)
		assert.False(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnOutsideWindow))
		assert.True(t, decision.HasWarning(businessflow.WarnNoBypassAvailable))
		assert.Nil(t, decision.RecommendedBypassMethod)
	})

	t.Run("NeverMessaged", func(t *testing.T) {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, nil)

		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
		})
		require.NoError(t, err)
		assert.False(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnNoBypassAvailable))
	})
}

func TestCheckComplianceTagCaps(t *testing.T) {
	tag := string(models.TagConfirmedEventUpdate) // cap 10

	run := func(used int64, explicitBypass bool) (*dto.ComplianceDecision, error) {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, timePtr(time.Now().UTC().Add(-time.Hour)))
		env.messages.tagUsed = used

		req := &dto.CheckComplianceRequest{
			WorkspaceID: 10,
			ContactID:   1,
			MessageTag:  strPtr(tag),
		}
		if explicitBypass {
			req.BypassMethod = strPtr(string(models.BypassMessageTag))
		}
		return env.flow.CheckCompliance(context.Background(), req)
	}

	t.Run("AtCapBlocks", func(t *testing.T) {
		decision, err := run(10, true)
		require.NoError(t, err)
		assert.False(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnTagLimitExceeded))
		assert.True(t, decision.HasWarning(businessflow.WarnTagGuidance))
	})

	t.Run("At80PercentWarns", func(t *testing.T) {
		decision, err := run(8, true)
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnTagLimitApproaching))
		assert.False(t, decision.HasWarning(businessflow.WarnTagLimitExceeded))
	})

	t.Run("BelowThresholdNoTagWarning", func(t *testing.T) {
		decision, err := run(3, true)
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		assert.False(t, decision.HasWarning(businessflow.WarnTagLimitApproaching))
		assert.True(t, decision.HasWarning(businessflow.WarnTagGuidance))
	})

	t.Run("OpenWindowNoBypassSkipsTagCheck", func(t *testing.T) {
		// Inside the window with no explicit bypass the send is allowed
		// immediately; the tag cap is not consulted.
		decision, err := run(10, false)
		require.NoError(t, err)
		assert.True(t, decision.CanSend)
		assert.Empty(t, decision.Warnings)
	})
}

func TestCheckComplianceRateLimit(t *testing.T) {
	run := func(sent int64) *dto.ComplianceDecision {
		env := newComplianceEnv()
		env.contacts.contacts[1] = testContact(1, 10, true, timePtr(time.Now().UTC().Add(-time.Hour)))
		env.messages.outboundLastHour = sent

		// An explicit bypass keeps the evaluation going past the
		// immediate-allow shortcut.
		decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
			WorkspaceID:  10,
			ContactID:    1,
			BypassMethod: strPtr(string(models.BypassOtnToken)),
		})
		require.NoError(t, err)
		return decision
	}

	t.Run("UnderWarnThreshold", func(t *testing.T) {
		decision := run(9)
		assert.True(t, decision.CanSend)
		assert.False(t, decision.HasWarning(businessflow.WarnHighFrequency))
	})

	t.Run("AtWarnThreshold", func(t *testing.T) {
		decision := run(10)
		assert.True(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnHighFrequency))
	})

	t.Run("AtBlockThreshold", func(t *testing.T) {
		decision := run(20)
		assert.False(t, decision.CanSend)
		assert.True(t, decision.HasWarning(businessflow.WarnRateLimitExceeded))
		assert.False(t, decision.HasWarning(businessflow.WarnHighFrequency))
	})
}

func TestCheckComplianceCooldownAdvisory(t *testing.T) {
	env := newComplianceEnv()
	contact := testContact(1, 10, true, timePtr(time.Now().UTC().Add(-time.Hour)))
	env.contacts.contacts[1] = contact
	require.NoError(t, env.cooldown.Set(context.Background(), contact.ID, contact.PageID, 90*time.Second))

	decision, err := env.flow.CheckCompliance(context.Background(), &dto.CheckComplianceRequest{
		WorkspaceID:  10,
		ContactID:    1,
		BypassMethod: strPtr(string(models.BypassOtnToken)),
	})
	require.NoError(t, err)

	// Cooldown warns but never blocks
	assert.True(t, decision.CanSend)
	assert.True(t, decision.HasWarning(businessflow.WarnCooldownActive))
	require.NotNil(t, decision.CooldownRemainingSeconds)
	assert.GreaterOrEqual(t, *decision.CooldownRemainingSeconds, 1)
	assert.LessOrEqual(t, *decision.CooldownRemainingSeconds, 90)
}

func TestRecordBypassUsage(t *testing.T) {
	t.Run("AppendsAuditAndStartsCooldown", func(t *testing.T) {
		env := newComplianceEnv()
		contact := testContact(1, 10, true, nil)
		env.contacts.contacts[1] = contact

		err := env.flow.RecordBypassUsage(context.Background(), &dto.RecordBypassUsageRequest{
			WorkspaceID:  10,
			ContactID:    1,
			BypassMethod: string(models.BypassOtnToken),
			IsCompliant:  true,
		})
		require.NoError(t, err)

		require.Len(t, env.audits.saved, 1)
		audit := env.audits.saved[0]
		assert.Equal(t, uint(10), audit.WorkspaceID)
		require.NotNil(t, audit.BypassMethod)
		assert.Equal(t, models.BypassOtnToken, *audit.BypassMethod)

		_, active, err := env.cooldown.Remaining(context.Background(), contact.ID, contact.PageID)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("WithinWindowSkipsCooldown", func(t *testing.T) {
		env := newComplianceEnv()
		contact := testContact(1, 10, true, nil)
		env.contacts.contacts[1] = contact

		err := env.flow.RecordBypassUsage(context.Background(), &dto.RecordBypassUsageRequest{
			WorkspaceID:  10,
			ContactID:    1,
			BypassMethod: string(models.BypassWithinWindow),
			IsCompliant:  true,
		})
		require.NoError(t, err)
		require.Len(t, env.audits.saved, 1)

		_, active, err := env.cooldown.Remaining(context.Background(), contact.ID, contact.PageID)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("TagSpecificCooldown", func(t *testing.T) {
		env := newComplianceEnv()
		contact := testContact(1, 10, true, nil)
		env.contacts.contacts[1] = contact

		err := env.flow.RecordBypassUsage(context.Background(), &dto.RecordBypassUsageRequest{
			WorkspaceID:  10,
			ContactID:    1,
			BypassMethod: string(models.BypassMessageTag),
			MessageTag:   strPtr(string(models.TagHumanAgent)),
			IsCompliant:  true,
		})
		require.NoError(t, err)

		remaining, active, err := env.cooldown.Remaining(context.Background(), contact.ID, contact.PageID)
		require.NoError(t, err)
		assert.True(t, active)
		// HUMAN_AGENT carries a 30 minute cooldown
		assert.LessOrEqual(t, remaining, 30*time.Minute)
		assert.Greater(t, remaining, 29*time.Minute)
	})

	t.Run("UnknownContact", func(t *testing.T) {
		env := newComplianceEnv()

		err := env.flow.RecordBypassUsage(context.Background(), &dto.RecordBypassUsageRequest{
			WorkspaceID:  10,
			ContactID:    404,
			BypassMethod: string(models.BypassOtnToken),
		})
		require.Error(t, err)
		assert.True(t, businessflow.IsContactNotFound(err))
		assert.Empty(t, env.audits.saved)
	})
}

func TestUpdateSubscriptionStatus(t *testing.T) {
	subEnv := func() *complianceEnv {
		env := newComplianceEnv()
		env.subs.subscriptions = map[uint]*models.RecurringSubscription{
			5: {ID: 5, WorkspaceID: 10, ContactID: 1, Status: models.SubscriptionStatusActive},
		}
		return env
	}

	t.Run("CancelActiveSubscription", func(t *testing.T) {
		env := subEnv()

		resp, err := env.flow.UpdateSubscriptionStatus(context.Background(), &dto.UpdateSubscriptionStatusRequest{
			WorkspaceID:    10,
			SubscriptionID: 5,
			Status:         "cancelled",
		})
		require.NoError(t, err)
		assert.Equal(t, uint(5), resp.SubscriptionID)
		assert.Equal(t, "cancelled", resp.Status)
		assert.Equal(t, models.SubscriptionStatusCancelled, env.subs.updated[5])
	})

	t.Run("SameStatusSkipsWrite", func(t *testing.T) {
		env := subEnv()

		resp, err := env.flow.UpdateSubscriptionStatus(context.Background(), &dto.UpdateSubscriptionStatusRequest{
			WorkspaceID:    10,
			SubscriptionID: 5,
			Status:         "active",
		})
		require.NoError(t, err)
		assert.Equal(t, "active", resp.Status)
		assert.Empty(t, env.subs.updated)
	})

	t.Run("UnknownSubscription", func(t *testing.T) {
		env := subEnv()

		_, err := env.flow.UpdateSubscriptionStatus(context.Background(), &dto.UpdateSubscriptionStatusRequest{
			WorkspaceID:    10,
			SubscriptionID: 99,
			Status:         "paused",
		})
		require.Error(t, err)
		assert.True(t, businessflow.IsSubscriptionNotFound(err))
	})

	t.Run("WrongWorkspace", func(t *testing.T) {
		env := subEnv()

		_, err := env.flow.UpdateSubscriptionStatus(context.Background(), &dto.UpdateSubscriptionStatusRequest{
			WorkspaceID:    11,
			SubscriptionID: 5,
			Status:         "paused",
		})
		require.Error(t, err)
		assert.True(t, businessflow.IsSubscriptionNotFound(err))
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		env := subEnv()

		_, err := env.flow.UpdateSubscriptionStatus(context.Background(), &dto.UpdateSubscriptionStatusRequest{
			WorkspaceID:    10,
			SubscriptionID: 5,
			Status:         "revoked",
		})
		require.Error(t, err)
		assert.Empty(t, env.subs.updated)
	})
}
