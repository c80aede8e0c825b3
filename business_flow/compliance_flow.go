// Package businessflow contains the core business logic and use cases for compliance workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lib/pq"
	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/services"
	"github.com/pegahdev/hermes/config"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
)

// ComplianceFlow handles pre-send policy evaluation and bypass usage recording
type ComplianceFlow interface {
	CheckCompliance(ctx context.Context, req *dto.CheckComplianceRequest) (*dto.ComplianceDecision, error)
	RecommendBypassMethod(ctx context.Context, workspaceID uint, contact *models.Contact, now time.Time) (models.BypassMethod, *models.MessageTag, error)
	RecordBypassUsage(ctx context.Context, req *dto.RecordBypassUsageRequest) error
	UpdateSubscriptionStatus(ctx context.Context, req *dto.UpdateSubscriptionStatusRequest) (*dto.UpdateSubscriptionStatusResponse, error)
}

// ComplianceFlowImpl implements the compliance business flow
type ComplianceFlowImpl struct {
	contactRepo      repository.ContactRepository
	messageRepo      repository.MessageRepository
	otnRepo          repository.OtnTokenRepository
	subscriptionRepo repository.RecurringSubscriptionRepository
	auditRepo        repository.ComplianceAuditRepository
	cooldowns        services.CooldownStore
	rateLimiter      *RateLimiter
	complianceConfig config.ComplianceConfig
}

// NewComplianceFlow creates a new compliance flow instance
func NewComplianceFlow(
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	otnRepo repository.OtnTokenRepository,
	subscriptionRepo repository.RecurringSubscriptionRepository,
	auditRepo repository.ComplianceAuditRepository,
	cooldowns services.CooldownStore,
	complianceConfig config.ComplianceConfig,
) ComplianceFlow {
	return &ComplianceFlowImpl{
		contactRepo:      contactRepo,
		messageRepo:      messageRepo,
		otnRepo:          otnRepo,
		subscriptionRepo: subscriptionRepo,
		auditRepo:        auditRepo,
		cooldowns:        cooldowns,
		rateLimiter:      NewRateLimiter(messageRepo),
		complianceConfig: complianceConfig,
	}
}

// CheckCompliance evaluates all messaging policies for one contact and returns
// a full decision. Policy blocks never surface as errors; an error return
// means the check itself could not run.
//
// Checks run in a fixed order and the first hard block wins: contact existence
// and subscription, the 24-hour window, bypass availability, tag usage caps,
// cooldown (advisory only) and the hourly rate limit.
func (f *ComplianceFlowImpl) CheckCompliance(ctx context.Context, req *dto.CheckComplianceRequest) (*dto.ComplianceDecision, error) {
	decision, err := f.evaluate(ctx, req)
	if decision != nil {
		observeDecision(decision.CanSend)
	}
	return decision, err
}

func (f *ComplianceFlowImpl) evaluate(ctx context.Context, req *dto.CheckComplianceRequest) (*dto.ComplianceDecision, error) {
	now := utils.UTCNow()
	decision := &dto.ComplianceDecision{
		CanSend:  true,
		Warnings: []dto.ComplianceWarning{},
	}

	contact, err := f.contactRepo.ByID(ctx, req.ContactID)
	if err != nil {
		return nil, NewBusinessError("COMPLIANCE_CHECK_FAILED", "Failed to load contact", err)
	}
	if contact == nil || contact.WorkspaceID != req.WorkspaceID {
		decision.CanSend = false
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnContactNotFound, "contact does not exist in this workspace", SeverityError))
		return decision, nil
	}
	if contact.IsSubscribed != nil && !*contact.IsSubscribed {
		decision.CanSend = false
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnUnsubscribed, "contact has unsubscribed from messaging", SeverityError))
		return decision, nil
	}

	var requestedBypass models.BypassMethod
	if req.BypassMethod != nil {
		requestedBypass = models.BypassMethod(*req.BypassMethod)
	}
	explicitBypass := requestedBypass != "" && requestedBypass != models.BypassWithinWindow

	windowOpen := contact.WindowOpen(now)
	if windowOpen && !explicitBypass {
		// Inside the 24-hour window with no bypass requested, the send is
		// unconditionally allowed.
		rec := string(models.BypassWithinWindow)
		decision.RecommendedBypassMethod = &rec
		return decision, nil
	}

	if !windowOpen {
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnOutsideWindow, "the 24-hour messaging window has closed", SeverityWarning))

		method, tag, err := f.RecommendBypassMethod(ctx, req.WorkspaceID, contact, now)
		if err != nil {
			return nil, NewBusinessError("COMPLIANCE_CHECK_FAILED", "Failed to evaluate bypass availability", err)
		}
		if method == models.BypassBlocked {
			decision.CanSend = false
			decision.Warnings = append(decision.Warnings,
				newWarning(WarnNoBypassAvailable, "no bypass method is available for this contact", SeverityError))
		} else {
			rec := string(method)
			decision.RecommendedBypassMethod = &rec
			if tag != nil {
				t := string(*tag)
				decision.RecommendedMessageTag = &t
			}
		}
	} else {
		// Window is open but the caller explicitly requested a bypass; honor
		// the request and keep evaluating its constraints.
		rec := string(requestedBypass)
		decision.RecommendedBypassMethod = &rec
	}

	if req.MessageTag != nil {
		tag := models.MessageTag(*req.MessageTag)
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnTagGuidance, tag.Guidance(), SeverityInfo))

		used, err := f.messageRepo.CountTagUsageSince(ctx, req.WorkspaceID, contact.ID, tag,
			now.Add(-f.complianceConfig.TagUsageWindow))
		if err != nil {
			return nil, NewBusinessError("COMPLIANCE_CHECK_FAILED", "Failed to count tag usage", err)
		}
		limit := int64(tag.UsageCap())
		switch {
		case used >= limit:
			decision.CanSend = false
			decision.Warnings = append(decision.Warnings,
				newWarning(WarnTagLimitExceeded,
					fmt.Sprintf("%s used %d of %d times in the last 30 days", tag, used, limit),
					SeverityError))
		case float64(used) >= f.complianceConfig.TagWarningRatio*float64(limit):
			decision.Warnings = append(decision.Warnings,
				newWarning(WarnTagLimitApproaching,
					fmt.Sprintf("%s used %d of %d times in the last 30 days", tag, used, limit),
					SeverityWarning))
		}
	}

	// Cooldown is advisory. A read failure downgrades to a log line rather
	// than failing the whole check.
	remaining, active, err := f.cooldowns.Remaining(ctx, contact.ID, contact.PageID)
	if err != nil {
		log.Printf("cooldown lookup failed for contact %d: %v", contact.ID, err)
	} else if active {
		secs := int(math.Ceil(remaining.Seconds()))
		if secs < 1 {
			secs = 1
		}
		decision.CooldownRemainingSeconds = &secs
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnCooldownActive,
				fmt.Sprintf("bypass cooldown active, %d seconds remaining", secs),
				SeverityWarning))
	}

	sent, err := f.rateLimiter.CountSince(ctx, req.WorkspaceID, contact.ID,
		now.Add(-f.complianceConfig.RateLimitWindow))
	if err != nil {
		return nil, NewBusinessError("COMPLIANCE_CHECK_FAILED", "Failed to count recent sends", err)
	}
	switch {
	case sent >= int64(f.complianceConfig.RateLimitBlock):
		decision.CanSend = false
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnRateLimitExceeded,
				fmt.Sprintf("%d messages sent to this contact in the last hour", sent),
				SeverityError))
	case sent >= int64(f.complianceConfig.RateLimitWarn):
		decision.Warnings = append(decision.Warnings,
			newWarning(WarnHighFrequency,
				fmt.Sprintf("%d messages sent to this contact in the last hour", sent),
				SeverityWarning))
	}

	return decision, nil
}

// RecommendBypassMethod picks the best path for reaching a contact whose
// window has closed: an available OTN token first, then an active recurring
// subscription, then the HUMAN_AGENT tag if the contact wrote within the last
// seven days. When nothing applies the contact is blocked.
func (f *ComplianceFlowImpl) RecommendBypassMethod(ctx context.Context, workspaceID uint, contact *models.Contact, now time.Time) (models.BypassMethod, *models.MessageTag, error) {
	available, err := f.otnRepo.CountAvailable(ctx, workspaceID, contact.ID, now)
	if err != nil {
		return models.BypassBlocked, nil, fmt.Errorf("failed to count available otn tokens: %w", err)
	}
	if available > 0 {
		return models.BypassOtnToken, nil, nil
	}

	active, err := f.subscriptionRepo.ActiveExists(ctx, workspaceID, contact.ID)
	if err != nil {
		return models.BypassBlocked, nil, fmt.Errorf("failed to check recurring subscriptions: %w", err)
	}
	if active {
		return models.BypassRecurringNotification, nil, nil
	}

	if contact.InboundWithin(now, f.complianceConfig.HumanAgentWindow) {
		tag := models.TagHumanAgent
		return models.BypassMessageTag, &tag, nil
	}

	return models.BypassBlocked, nil, nil
}

// RecordBypassUsage appends an audit entry for a send and starts the contact
// cooldown when a real bypass was used. Audit and cooldown failures are
// logged, never propagated; losing a record must not fail a delivered message.
func (f *ComplianceFlowImpl) RecordBypassUsage(ctx context.Context, req *dto.RecordBypassUsageRequest) error {
	contact, err := f.contactRepo.ByID(ctx, req.ContactID)
	if err != nil {
		return NewBusinessError("RECORD_BYPASS_FAILED", "Failed to load contact", err)
	}
	if contact == nil || contact.WorkspaceID != req.WorkspaceID {
		return NewBusinessError("CONTACT_NOT_FOUND", "Contact does not exist in this workspace", ErrContactNotFound)
	}

	method := models.BypassMethod(req.BypassMethod)
	var tag *models.MessageTag
	if req.MessageTag != nil {
		t := models.MessageTag(*req.MessageTag)
		tag = &t
	}

	audit := &models.ComplianceAudit{
		WorkspaceID:  req.WorkspaceID,
		ContactID:    contact.ID,
		PageID:       contact.PageID,
		BypassMethod: &method,
		MessageTag:   tag,
		IsCompliant:  utils.ToPtr(req.IsCompliant),
		Warnings:     pq.StringArray(req.Warnings),
	}
	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to append compliance audit for contact %d: %v", contact.ID, err)
	}

	if method != models.BypassWithinWindow && method != models.BypassBlocked {
		ttl := f.complianceConfig.DefaultCooldown
		if tag != nil {
			ttl = tag.Cooldown()
		}
		if err := f.cooldowns.Set(ctx, contact.ID, contact.PageID, ttl); err != nil {
			log.Printf("failed to set cooldown for contact %d: %v", contact.ID, err)
		}
	}

	return nil
}

// UpdateSubscriptionStatus applies a recurring notification opt-out, pause or
// resume event. A cancelled or paused subscription stops backing the
// recurring_notification bypass from the next check on.
func (f *ComplianceFlowImpl) UpdateSubscriptionStatus(ctx context.Context, req *dto.UpdateSubscriptionStatusRequest) (*dto.UpdateSubscriptionStatusResponse, error) {
	status := models.SubscriptionStatus(req.Status)
	if !status.Valid() {
		return nil, NewBusinessErrorf("INVALID_SUBSCRIPTION_STATUS", "Unknown subscription status %s", ErrInvalidSubscriptionState, req.Status)
	}

	sub, err := f.subscriptionRepo.ByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, NewBusinessError("SUBSCRIPTION_LOOKUP_FAILED", "Failed to load subscription", err)
	}
	if sub == nil || sub.WorkspaceID != req.WorkspaceID {
		return nil, NewBusinessErrorf("SUBSCRIPTION_NOT_FOUND", "No subscription with id %d", ErrSubscriptionNotFound, req.SubscriptionID)
	}

	if sub.Status != status {
		if err := f.subscriptionRepo.UpdateStatus(ctx, sub.ID, status); err != nil {
			return nil, NewBusinessError("SUBSCRIPTION_UPDATE_FAILED", "Failed to update subscription status", err)
		}
	}
	return &dto.UpdateSubscriptionStatusResponse{
		SubscriptionID: sub.ID,
		Status:         string(status),
	}, nil
}
