// Package businessflow contains the core business logic and use cases for messaging workflows
package businessflow

import (
	"context"
	"fmt"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// MessagingFlow handles message intake: single sends, broadcasts, campaign
// fan-out, scheduling and inbound ingestion
type MessagingFlow interface {
	SendMessage(ctx context.Context, req *dto.SendMessageRequest, metadata *ClientMetadata) (*dto.SendMessageResponse, error)
	BroadcastMessage(ctx context.Context, req *dto.BroadcastMessageRequest, metadata *ClientMetadata) (*dto.BroadcastMessageResponse, error)
	StartCampaign(ctx context.Context, req *dto.StartCampaignRequest, metadata *ClientMetadata) (*dto.StartCampaignResponse, error)
	ScheduleMessage(ctx context.Context, req *dto.ScheduleMessageRequest, metadata *ClientMetadata) (*dto.ScheduleMessageResponse, error)
	CancelScheduledMessage(ctx context.Context, jobID string) (bool, error)
	MessageJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error)
	RecordInboundMessage(ctx context.Context, req *dto.RecordInboundRequest) (*dto.RecordInboundResponse, error)
	RecordDeliveryReceipt(ctx context.Context, req *dto.RecordReceiptRequest) (*dto.RecordReceiptResponse, error)
}

// MessagingFlowImpl implements the messaging business flow
type MessagingFlowImpl struct {
	workspaceRepo repository.WorkspaceRepository
	contactRepo   repository.ContactRepository
	messageRepo   repository.MessageRepository
	compliance    ComplianceFlow
	manager       *queue.Manager
	db            *gorm.DB
}

// NewMessagingFlow creates a new messaging flow instance
func NewMessagingFlow(
	workspaceRepo repository.WorkspaceRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	compliance ComplianceFlow,
	manager *queue.Manager,
	db *gorm.DB,
) MessagingFlow {
	return &MessagingFlowImpl{
		workspaceRepo: workspaceRepo,
		contactRepo:   contactRepo,
		messageRepo:   messageRepo,
		compliance:    compliance,
		manager:       manager,
		db:            db,
	}
}

// SendMessage runs the pre-send compliance check and, when allowed, enqueues
// the message for delivery. A policy block is not an error: the response
// carries the decision and no job id.
func (f *MessagingFlowImpl) SendMessage(ctx context.Context, req *dto.SendMessageRequest, metadata *ClientMetadata) (*dto.SendMessageResponse, error) {
	if req.Priority < 0 {
		return nil, NewBusinessError("INVALID_PRIORITY", "Priority must not be negative", ErrInvalidPriority)
	}
	_, contact, err := f.resolveRecipient(ctx, req.WorkspaceID, req.ContactID)
	if err != nil {
		return nil, err
	}

	decision, err := f.compliance.CheckCompliance(ctx, &dto.CheckComplianceRequest{
		WorkspaceID:  req.WorkspaceID,
		ContactID:    req.ContactID,
		BypassMethod: req.BypassMethod,
		MessageTag:   req.MessageTag,
	})
	if err != nil {
		return nil, err
	}
	if !decision.CanSend {
		return &dto.SendMessageResponse{Compliance: decision}, nil
	}

	payload := buildPayload(contact, req.Content, req.MessageTag)
	if decision.RecommendedBypassMethod != nil {
		method := models.BypassMethod(*decision.RecommendedBypassMethod)
		payload.BypassMethod = &method
	}
	if payload.MessageTag == nil && decision.RecommendedMessageTag != nil {
		tag := models.MessageTag(*decision.RecommendedMessageTag)
		payload.MessageTag = &tag
	}
	now := utils.UTCNow()
	payload.PrecheckedAt = &now

	job, err := f.manager.Enqueue(ctx, utils.QueueMessages, payload, req.Priority, 0)
	if err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue message", err)
	}

	return &dto.SendMessageResponse{
		JobID:      job.JobID,
		Compliance: decision,
		QueuedAt:   job.CreatedAt,
	}, nil
}

// BroadcastMessage fans one message out to many contacts as a batch. Unknown
// and unsubscribed contacts are skipped up front; the full compliance check
// runs per job at delivery time.
func (f *MessagingFlowImpl) BroadcastMessage(ctx context.Context, req *dto.BroadcastMessageRequest, metadata *ClientMetadata) (*dto.BroadcastMessageResponse, error) {
	if _, err := f.resolveWorkspace(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}

	payloads := make([]models.MessagePayload, 0, len(req.ContactIDs))
	skipped := 0
	for _, contactID := range req.ContactIDs {
		contact, err := f.contactRepo.ByID(ctx, contactID)
		if err != nil {
			return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to load contact", err)
		}
		if contact == nil || contact.WorkspaceID != req.WorkspaceID ||
			(contact.IsSubscribed != nil && !*contact.IsSubscribed) {
			skipped++
			continue
		}
		payloads = append(payloads, buildPayload(contact, req.Content, req.MessageTag))
	}
	if len(payloads) == 0 {
		return nil, NewBusinessError("NO_RECIPIENTS", "No deliverable recipients in the contact list", ErrNoRecipientsResolved)
	}

	batchID, count, err := f.manager.EnqueueBulk(ctx, utils.QueueMessages, payloads, req.Priority)
	if err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue broadcast batch", err)
	}

	return &dto.BroadcastMessageResponse{
		BatchID:  batchID,
		JobCount: count,
		Skipped:  skipped,
	}, nil
}

// StartCampaign fans a campaign out to an explicit contact list or, when the
// list is empty, to every subscribed contact of the workspace.
func (f *MessagingFlowImpl) StartCampaign(ctx context.Context, req *dto.StartCampaignRequest, metadata *ClientMetadata) (*dto.StartCampaignResponse, error) {
	if _, err := f.resolveWorkspace(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}

	var contacts []*models.Contact
	skipped := 0
	if len(req.ContactIDs) > 0 {
		for _, contactID := range req.ContactIDs {
			contact, err := f.contactRepo.ByID(ctx, contactID)
			if err != nil {
				return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to load contact", err)
			}
			if contact == nil || contact.WorkspaceID != req.WorkspaceID ||
				(contact.IsSubscribed != nil && !*contact.IsSubscribed) {
				skipped++
				continue
			}
			contacts = append(contacts, contact)
		}
	} else {
		var err error
		contacts, err = f.contactRepo.ListSubscribed(ctx, req.WorkspaceID)
		if err != nil {
			return nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to list subscribed contacts", err)
		}
	}
	if len(contacts) == 0 {
		return nil, NewBusinessError("NO_RECIPIENTS", "Campaign resolved no deliverable recipients", ErrNoRecipientsResolved)
	}

	payloads := make([]models.MessagePayload, 0, len(contacts))
	for _, contact := range contacts {
		payloads = append(payloads, buildPayload(contact, req.Content, req.MessageTag))
	}

	batchID, count, err := f.manager.EnqueueBulk(ctx, utils.QueueCampaigns, payloads, req.Priority)
	if err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to enqueue campaign batch", err)
	}

	return &dto.StartCampaignResponse{
		BatchID:  batchID,
		JobCount: count,
		Skipped:  skipped,
	}, nil
}

// ScheduleMessage enqueues a message for a future instant. A send time in the
// past is rejected synchronously and nothing is enqueued.
func (f *MessagingFlowImpl) ScheduleMessage(ctx context.Context, req *dto.ScheduleMessageRequest, metadata *ClientMetadata) (*dto.ScheduleMessageResponse, error) {
	now := utils.UTCNow()
	if req.SendAt.IsZero() {
		return nil, NewBusinessError("SCHEDULE_TIME_REQUIRED", "Send time is required", ErrScheduleTimeNotPresent)
	}
	if !req.SendAt.After(now) {
		return nil, NewBusinessError("SCHEDULE_TIME_IN_PAST", "Send time must be in the future", ErrScheduleTimeInPast)
	}

	_, contact, err := f.resolveRecipient(ctx, req.WorkspaceID, req.ContactID)
	if err != nil {
		return nil, err
	}

	payload := buildPayload(contact, req.Content, req.MessageTag)
	if req.BypassMethod != nil {
		method := models.BypassMethod(*req.BypassMethod)
		payload.BypassMethod = &method
	}

	job, err := f.manager.Enqueue(ctx, utils.QueueScheduled, payload, req.Priority, req.SendAt.Sub(now))
	if err != nil {
		return nil, NewBusinessError("ENQUEUE_FAILED", "Failed to schedule message", err)
	}

	return &dto.ScheduleMessageResponse{
		JobID:  job.JobID,
		SendAt: req.SendAt,
	}, nil
}

// CancelScheduledMessage removes a pending job. Cancelling twice is safe; the
// second call reports false.
func (f *MessagingFlowImpl) CancelScheduledMessage(ctx context.Context, jobID string) (bool, error) {
	return f.manager.CancelJob(ctx, jobID), nil
}

// MessageJobStatus returns the lifecycle view of one delivery job
func (f *MessagingFlowImpl) MessageJobStatus(ctx context.Context, jobID string) (*dto.JobStatusResponse, error) {
	job := f.manager.Job(jobID)
	if job == nil {
		return nil, NewBusinessErrorf("JOB_NOT_FOUND", "No job with id %s", ErrJobNotFound, jobID)
	}

	resp := &dto.JobStatusResponse{
		JobID:     job.JobID,
		QueueName: job.QueueName,
		State:     string(job.State),
		Attempts:  job.Attempts,
		LastError: job.LastError,
		BatchID:   job.BatchID,
		CreatedAt: job.CreatedAt,
	}
	if !job.State.IsTerminal() {
		next := job.NextRunAt
		resp.NextRunAt = &next
	}
	return resp, nil
}

// RecordInboundMessage ingests a contact-initiated message: it creates the
// contact on first touch, appends the message log row and reopens the
// 24-hour messaging window.
func (f *MessagingFlowImpl) RecordInboundMessage(ctx context.Context, req *dto.RecordInboundRequest) (*dto.RecordInboundResponse, error) {
	workspace, err := f.resolveWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	var contactID uint
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		contact, err := f.contactRepo.ByPSID(txCtx, workspace.ID, req.PSID)
		if err != nil {
			return fmt.Errorf("failed to look up contact by psid: %w", err)
		}
		if contact == nil {
			contact = &models.Contact{
				WorkspaceID:              workspace.ID,
				PageID:                   workspace.PageID,
				PSID:                     req.PSID,
				IsSubscribed:             utils.ToPtr(true),
				LastMessageFromContactAt: &now,
			}
			if err := f.contactRepo.Save(txCtx, contact); err != nil {
				return fmt.Errorf("failed to create contact: %w", err)
			}
		} else if err := f.contactRepo.TouchLastInbound(txCtx, contact.ID, now); err != nil {
			return fmt.Errorf("failed to update contact window: %w", err)
		}

		msg := &models.Message{
			WorkspaceID: workspace.ID,
			ContactID:   contact.ID,
			PageID:      workspace.PageID,
			Direction:   models.MessageDirectionInbound,
			Content:     req.Text,
			Status:      models.MessageStatusDelivered,
		}
		if req.PlatformMID != "" {
			msg.PlatformMID = &req.PlatformMID
		}
		if err := f.messageRepo.Save(txCtx, msg); err != nil {
			return fmt.Errorf("failed to append inbound message: %w", err)
		}

		contactID = contact.ID
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("INBOUND_INGEST_FAILED", "Failed to record inbound message", err)
	}

	return &dto.RecordInboundResponse{
		ContactID:  contactID,
		ReceivedAt: now,
	}, nil
}

// RecordDeliveryReceipt applies a delivered/read receipt to the message the
// platform id refers to. Receipts arrive out of order and may repeat; a
// receipt that would move the status backwards is a no-op, not an error.
func (f *MessagingFlowImpl) RecordDeliveryReceipt(ctx context.Context, req *dto.RecordReceiptRequest) (*dto.RecordReceiptResponse, error) {
	if _, err := f.resolveWorkspace(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}

	msg, err := f.messageRepo.ByPlatformMID(ctx, req.WorkspaceID, req.PlatformMID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load message", err)
	}
	if msg == nil || msg.Direction != models.MessageDirectionOutbound {
		return nil, NewBusinessErrorf("MESSAGE_NOT_FOUND", "No outbound message with platform id %s", ErrMessageNotFound, req.PlatformMID)
	}

	target := models.MessageStatusDelivered
	if req.Event == "read" {
		target = models.MessageStatusRead
	}
	if receiptRank(target) <= receiptRank(msg.Status) {
		return &dto.RecordReceiptResponse{MessageID: msg.ID, Status: string(msg.Status)}, nil
	}

	if err := f.messageRepo.UpdateStatus(ctx, msg.ID, target, nil); err != nil {
		return nil, NewBusinessError("RECEIPT_UPDATE_FAILED", "Failed to update message status", err)
	}
	return &dto.RecordReceiptResponse{MessageID: msg.ID, Status: string(target)}, nil
}

// receiptRank orders the outbound status ladder so receipts only move forward
func receiptRank(status models.MessageStatus) int {
	switch status {
	case models.MessageStatusPending:
		return 0
	case models.MessageStatusSent:
		return 1
	case models.MessageStatusDelivered:
		return 2
	case models.MessageStatusRead:
		return 3
	default:
		return 4
	}
}

func (f *MessagingFlowImpl) resolveWorkspace(ctx context.Context, workspaceID uint) (*models.Workspace, error) {
	workspace, err := f.workspaceRepo.ByID(ctx, workspaceID)
	if err != nil {
		return nil, NewBusinessError("WORKSPACE_LOOKUP_FAILED", "Failed to load workspace", err)
	}
	if workspace == nil {
		return nil, NewBusinessError("WORKSPACE_NOT_FOUND", "Workspace not found", ErrWorkspaceNotFound)
	}
	if workspace.IsActive != nil && !*workspace.IsActive {
		return nil, NewBusinessError("WORKSPACE_INACTIVE", "Workspace is inactive", ErrWorkspaceInactive)
	}
	return workspace, nil
}

func (f *MessagingFlowImpl) resolveRecipient(ctx context.Context, workspaceID, contactID uint) (*models.Workspace, *models.Contact, error) {
	workspace, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}
	contact, err := f.contactRepo.ByID(ctx, contactID)
	if err != nil {
		return nil, nil, NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to load contact", err)
	}
	if contact == nil || contact.WorkspaceID != workspaceID {
		return nil, nil, NewBusinessError("CONTACT_NOT_FOUND", "Contact not found in this workspace", ErrContactNotFound)
	}
	return workspace, contact, nil
}

func buildPayload(contact *models.Contact, content dto.MessageContent, messageTag *string) models.MessagePayload {
	payload := models.MessagePayload{
		WorkspaceID:    contact.WorkspaceID,
		ContactID:      contact.ID,
		PageID:         contact.PageID,
		RecipientPSID:  contact.PSID,
		Kind:           models.MessageKind(content.Kind),
		Text:           content.Text,
		AttachmentType: content.AttachmentType,
		AttachmentURL:  content.AttachmentURL,
		TemplateName:   content.TemplateName,
		TemplateParams: content.TemplateParams,
	}
	for _, qr := range content.QuickReplies {
		payload.QuickReplies = append(payload.QuickReplies, models.QuickReply{
			Title:   qr.Title,
			Payload: qr.Payload,
		})
	}
	if messageTag != nil {
		tag := models.MessageTag(*messageTag)
		payload.MessageTag = &tag
	}
	return payload
}
