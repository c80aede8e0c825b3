// Package businessflow contains the core business logic and use cases for delivery workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/app/services"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
)

// DeliveryFlow executes delivery jobs claimed from the queues: it re-checks
// compliance where needed, talks to the Send API and maintains the message
// log and audit trail.
type DeliveryFlow interface {
	HandleDeliveryJob(ctx context.Context, job *models.DeliveryJob) error
}

// DeliveryFlowImpl implements the delivery business flow
type DeliveryFlowImpl struct {
	workspaceRepo repository.WorkspaceRepository
	contactRepo   repository.ContactRepository
	messageRepo   repository.MessageRepository
	otnRepo       repository.OtnTokenRepository
	compliance    ComplianceFlow
	messenger     services.MessengerService
}

// NewDeliveryFlow creates a new delivery flow instance
func NewDeliveryFlow(
	workspaceRepo repository.WorkspaceRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	otnRepo repository.OtnTokenRepository,
	compliance ComplianceFlow,
	messenger services.MessengerService,
) DeliveryFlow {
	return &DeliveryFlowImpl{
		workspaceRepo: workspaceRepo,
		contactRepo:   contactRepo,
		messageRepo:   messageRepo,
		otnRepo:       otnRepo,
		compliance:    compliance,
		messenger:     messenger,
	}
}

// HandleDeliveryJob delivers one queued message. Transient failures return a
// plain error so the queue retries with backoff; unrecoverable conditions are
// wrapped in queue.Permanent and fail the job terminally.
func (f *DeliveryFlowImpl) HandleDeliveryJob(ctx context.Context, job *models.DeliveryJob) error {
	payload := &job.Payload

	workspace, err := f.workspaceRepo.ByID(ctx, payload.WorkspaceID)
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}
	if workspace == nil {
		return queue.Permanent(fmt.Errorf("workspace %d no longer exists", payload.WorkspaceID))
	}
	if workspace.IsActive != nil && !*workspace.IsActive {
		return queue.Permanent(fmt.Errorf("workspace %d is inactive", payload.WorkspaceID))
	}
	contact, err := f.contactRepo.ByID(ctx, payload.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact: %w", err)
	}
	if contact == nil {
		return queue.Permanent(fmt.Errorf("contact %d no longer exists", payload.ContactID))
	}

	bypass := payload.BypassMethod
	tag := payload.MessageTag

	// Immediate sends were checked at enqueue time; everything else
	// (broadcast, campaign, scheduled) is checked here, at delivery time.
	if payload.PrecheckedAt == nil {
		checkReq := &dto.CheckComplianceRequest{
			WorkspaceID: payload.WorkspaceID,
			ContactID:   payload.ContactID,
		}
		if bypass != nil {
			m := string(*bypass)
			checkReq.BypassMethod = &m
		}
		if tag != nil {
			t := string(*tag)
			checkReq.MessageTag = &t
		}
		decision, err := f.compliance.CheckCompliance(ctx, checkReq)
		if err != nil {
			return fmt.Errorf("compliance check failed: %w", err)
		}
		if !decision.CanSend {
			codes := warningCodes(decision)
			f.appendMessageRow(ctx, job, payload, models.MessageStatusFailed, nil, bypass, tag)
			f.recordUsage(ctx, payload, string(models.BypassBlocked), tag, false, codes)
			return queue.Permanent(fmt.Errorf("blocked by compliance: %s", strings.Join(codes, ", ")))
		}
		if bypass == nil && decision.RecommendedBypassMethod != nil {
			m := models.BypassMethod(*decision.RecommendedBypassMethod)
			bypass = &m
		}
		if tag == nil && decision.RecommendedMessageTag != nil {
			t := models.MessageTag(*decision.RecommendedMessageTag)
			tag = &t
		}
	}

	result, sendErr := f.messenger.Send(ctx, workspace.PageAccessToken, payload.RecipientPSID, payload)
	if sendErr != nil {
		f.appendMessageRow(ctx, job, payload, models.MessageStatusFailed, nil, bypass, tag)
		if services.IsPermanentSendError(sendErr) {
			return queue.Permanent(sendErr)
		}
		return sendErr
	}

	// Everything after the send is bookkeeping; a delivered message is never
	// failed because a follow-up write did not land.
	now := utils.UTCNow()
	var platformMID *string
	if result != nil && result.MessageID != "" {
		platformMID = &result.MessageID
	}
	f.appendMessageRow(ctx, job, payload, models.MessageStatusSent, platformMID, bypass, tag)

	if err := f.contactRepo.TouchLastOutbound(ctx, contact.ID, now); err != nil {
		log.Printf("failed to update last outbound time for contact %d: %v", contact.ID, err)
	}

	if bypass != nil && *bypass == models.BypassOtnToken {
		f.consumeOtnToken(ctx, payload, now)
	}
	if bypass != nil && *bypass != models.BypassWithinWindow {
		f.recordUsage(ctx, payload, string(*bypass), tag, true, nil)
	}

	return nil
}

func (f *DeliveryFlowImpl) appendMessageRow(ctx context.Context, job *models.DeliveryJob, payload *models.MessagePayload, status models.MessageStatus, platformMID *string, bypass *models.BypassMethod, tag *models.MessageTag) {
	msg := &models.Message{
		WorkspaceID:  payload.WorkspaceID,
		ContactID:    payload.ContactID,
		PageID:       payload.PageID,
		Direction:    models.MessageDirectionOutbound,
		Content:      payload.ContentSummary(),
		BypassMethod: bypass,
		MessageTag:   tag,
		Status:       status,
		PlatformMID:  platformMID,
		JobID:        &job.JobID,
	}
	if err := f.messageRepo.Save(ctx, msg); err != nil {
		log.Printf("failed to append message log row for job %s: %v", job.JobID, err)
	}
}

// consumeOtnToken marks one available token used. The conditional update in
// the repository makes consumption single-winner under concurrent workers.
func (f *DeliveryFlowImpl) consumeOtnToken(ctx context.Context, payload *models.MessagePayload, now time.Time) {
	token, err := f.otnRepo.FirstAvailable(ctx, payload.WorkspaceID, payload.ContactID, now)
	if err != nil {
		log.Printf("failed to find otn token for contact %d: %v", payload.ContactID, err)
		return
	}
	if token == nil {
		log.Printf("no available otn token to consume for contact %d", payload.ContactID)
		return
	}
	consumed, err := f.otnRepo.Consume(ctx, token.ID, now)
	if err != nil {
		log.Printf("failed to consume otn token %d: %v", token.ID, err)
		return
	}
	if !consumed {
		log.Printf("otn token %d was already consumed", token.ID)
	}
}

func (f *DeliveryFlowImpl) recordUsage(ctx context.Context, payload *models.MessagePayload, method string, tag *models.MessageTag, compliant bool, warnings []string) {
	req := &dto.RecordBypassUsageRequest{
		WorkspaceID:  payload.WorkspaceID,
		ContactID:    payload.ContactID,
		BypassMethod: method,
		IsCompliant:  compliant,
		Warnings:     warnings,
	}
	if tag != nil {
		t := string(*tag)
		req.MessageTag = &t
	}
	if err := f.compliance.RecordBypassUsage(ctx, req); err != nil {
		log.Printf("failed to record bypass usage for contact %d: %v", payload.ContactID, err)
	}
}

func warningCodes(decision *dto.ComplianceDecision) []string {
	codes := make([]string, 0, len(decision.Warnings))
	for _, w := range decision.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}
