package businessflow_test

import (
	"context"
	"time"

	"github.com/pegahdev/hermes/app/dto"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/config"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
)

// The fakes embed the repository interfaces so only the methods a flow
// actually calls need stubbing; an unexpected call panics and fails the test.

type fakeWorkspaceRepo struct {
	repository.WorkspaceRepository
	workspaces map[uint]*models.Workspace
	byIDErr    error
}

func (f *fakeWorkspaceRepo) ByID(ctx context.Context, id uint) (*models.Workspace, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.workspaces[id], nil
}

type fakeContactRepo struct {
	repository.ContactRepository
	contacts        map[uint]*models.Contact
	byIDErr         error
	subscribed      []*models.Contact
	touchedOutbound []uint
	touchedInbound  []uint
}

func (f *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.contacts[id], nil
}

func (f *fakeContactRepo) ListSubscribed(ctx context.Context, workspaceID uint) ([]*models.Contact, error) {
	return f.subscribed, nil
}

func (f *fakeContactRepo) TouchLastOutbound(ctx context.Context, contactID uint, at time.Time) error {
	f.touchedOutbound = append(f.touchedOutbound, contactID)
	return nil
}

func (f *fakeContactRepo) TouchLastInbound(ctx context.Context, contactID uint, at time.Time) error {
	f.touchedInbound = append(f.touchedInbound, contactID)
	return nil
}

type fakeMessageRepo struct {
	repository.MessageRepository
	outboundLastHour int64
	tagUsed          int64
	saved            []*models.Message

	outboundBetween int64
	byMethod        map[models.BypassMethod]int64
	byTag           map[models.MessageTag]int64
	dailyOutbound   map[string]int64
	dailyBypass     map[string]int64

	byPlatformMID map[string]*models.Message
	statusUpdates map[uint]models.MessageStatus
}

func (f *fakeMessageRepo) ByPlatformMID(ctx context.Context, workspaceID uint, platformMID string) (*models.Message, error) {
	msg := f.byPlatformMID[platformMID]
	if msg != nil && msg.WorkspaceID != workspaceID {
		return nil, nil
	}
	return msg, nil
}

func (f *fakeMessageRepo) UpdateStatus(ctx context.Context, messageID uint, status models.MessageStatus, platformMID *string) error {
	if f.statusUpdates == nil {
		f.statusUpdates = make(map[uint]models.MessageStatus)
	}
	f.statusUpdates[messageID] = status
	return nil
}

func (f *fakeMessageRepo) CountOutboundBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error) {
	return f.outboundBetween, nil
}

func (f *fakeMessageRepo) CountByBypassMethodBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.BypassMethod]int64, error) {
	return f.byMethod, nil
}

func (f *fakeMessageRepo) CountByTagBetween(ctx context.Context, workspaceID uint, from, to time.Time) (map[models.MessageTag]int64, error) {
	return f.byTag, nil
}

func (f *fakeMessageRepo) DailyOutboundCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	return f.dailyOutbound, nil
}

func (f *fakeMessageRepo) DailyBypassCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	return f.dailyBypass, nil
}

func (f *fakeMessageRepo) CountOutboundSince(ctx context.Context, workspaceID, contactID uint, since time.Time) (int64, error) {
	return f.outboundLastHour, nil
}

func (f *fakeMessageRepo) CountTagUsageSince(ctx context.Context, workspaceID, contactID uint, tag models.MessageTag, since time.Time) (int64, error) {
	return f.tagUsed, nil
}

func (f *fakeMessageRepo) Save(ctx context.Context, msg *models.Message) error {
	f.saved = append(f.saved, msg)
	return nil
}

type fakeOtnRepo struct {
	repository.OtnTokenRepository
	available   int64
	token       *models.OtnToken
	consumedIDs []uint
}

func (f *fakeOtnRepo) CountAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (int64, error) {
	return f.available, nil
}

func (f *fakeOtnRepo) FirstAvailable(ctx context.Context, workspaceID, contactID uint, now time.Time) (*models.OtnToken, error) {
	return f.token, nil
}

func (f *fakeOtnRepo) Consume(ctx context.Context, tokenID uint, at time.Time) (bool, error) {
	f.consumedIDs = append(f.consumedIDs, tokenID)
	return true, nil
}

type fakeSubscriptionRepo struct {
	repository.RecurringSubscriptionRepository
	active        bool
	subscriptions map[uint]*models.RecurringSubscription
	updated       map[uint]models.SubscriptionStatus
}

func (f *fakeSubscriptionRepo) ActiveExists(ctx context.Context, workspaceID, contactID uint) (bool, error) {
	return f.active, nil
}

func (f *fakeSubscriptionRepo) ByID(ctx context.Context, id uint) (*models.RecurringSubscription, error) {
	return f.subscriptions[id], nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(ctx context.Context, subscriptionID uint, status models.SubscriptionStatus) error {
	if f.updated == nil {
		f.updated = make(map[uint]models.SubscriptionStatus)
	}
	f.updated[subscriptionID] = status
	return nil
}

type fakeAuditRepo struct {
	repository.ComplianceAuditRepository
	saved []*models.ComplianceAudit

	violations      int64
	topViolators    []repository.ViolatorCount
	dailyViolations map[string]int64
}

func (f *fakeAuditRepo) Save(ctx context.Context, audit *models.ComplianceAudit) error {
	f.saved = append(f.saved, audit)
	return nil
}

func (f *fakeAuditRepo) CountViolationsBetween(ctx context.Context, workspaceID uint, from, to time.Time) (int64, error) {
	return f.violations, nil
}

func (f *fakeAuditRepo) DailyViolationCounts(ctx context.Context, workspaceID uint, from, to time.Time) (map[string]int64, error) {
	return f.dailyViolations, nil
}

func (f *fakeAuditRepo) TopViolators(ctx context.Context, workspaceID uint, from, to time.Time, limit int) ([]repository.ViolatorCount, error) {
	if limit < len(f.topViolators) {
		return f.topViolators[:limit], nil
	}
	return f.topViolators, nil
}

// fakeComplianceFlow returns a canned decision, recording every call
type fakeComplianceFlow struct {
	decision *dto.ComplianceDecision
	err      error
	checked  []*dto.CheckComplianceRequest
	recorded []*dto.RecordBypassUsageRequest
}

func (f *fakeComplianceFlow) CheckCompliance(ctx context.Context, req *dto.CheckComplianceRequest) (*dto.ComplianceDecision, error) {
	f.checked = append(f.checked, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func (f *fakeComplianceFlow) RecommendBypassMethod(ctx context.Context, workspaceID uint, contact *models.Contact, now time.Time) (models.BypassMethod, *models.MessageTag, error) {
	return models.BypassWithinWindow, nil, nil
}

func (f *fakeComplianceFlow) RecordBypassUsage(ctx context.Context, req *dto.RecordBypassUsageRequest) error {
	f.recorded = append(f.recorded, req)
	return nil
}

func (f *fakeComplianceFlow) UpdateSubscriptionStatus(ctx context.Context, req *dto.UpdateSubscriptionStatusRequest) (*dto.UpdateSubscriptionStatusResponse, error) {
	return &dto.UpdateSubscriptionStatusResponse{SubscriptionID: req.SubscriptionID, Status: req.Status}, nil
}

var _ businessflow.ComplianceFlow = (*fakeComplianceFlow)(nil)

func testComplianceConfig() config.ComplianceConfig {
	return config.ComplianceConfig{
		MessagingWindow:  24 * time.Hour,
		HumanAgentWindow: 7 * 24 * time.Hour,
		RateLimitWindow:  time.Hour,
		RateLimitWarn:    10,
		RateLimitBlock:   20,
		TagUsageWindow:   30 * 24 * time.Hour,
		TagWarningRatio:  0.8,
		DefaultCooldown:  time.Hour,
	}
}

func testWorkspace(id uint, active bool) *models.Workspace {
	return &models.Workspace{
		ID:              id,
		Name:            "Acme Support",
		PageID:          "page_1",
		PageAccessToken: "token_1",
		IsActive:        &active,
	}
}

func testContact(id, workspaceID uint, subscribed bool, lastInbound *time.Time) *models.Contact {
	return &models.Contact{
		ID:                       id,
		WorkspaceID:              workspaceID,
		PageID:                   "page_1",
		PSID:                     "psid_1",
		IsSubscribed:             &subscribed,
		LastMessageFromContactAt: lastInbound,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
