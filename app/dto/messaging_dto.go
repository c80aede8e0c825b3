package dto

import (
	"time"
)

// MessageContent is the caller-facing message body, a tagged union over Kind
type MessageContent struct {
	Kind           string            `json:"kind" validate:"required,oneof=text attachment template quick_replies"`
	Text           string            `json:"text,omitempty"`
	AttachmentType string            `json:"attachment_type,omitempty" validate:"omitempty,oneof=image video audio file"`
	AttachmentURL  string            `json:"attachment_url,omitempty" validate:"omitempty,url"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`
	QuickReplies   []QuickReplyDTO   `json:"quick_replies,omitempty" validate:"omitempty,dive"`
}

// QuickReplyDTO is one quick-reply button
type QuickReplyDTO struct {
	Title   string `json:"title" validate:"required,max=20"`
	Payload string `json:"payload" validate:"required"`
}

// SendMessageRequest represents the request to send a single message
type SendMessageRequest struct {
	WorkspaceID  uint           `json:"-"`
	ContactID    uint           `json:"contact_id" validate:"required"`
	Content      MessageContent `json:"content" validate:"required"`
	BypassMethod *string        `json:"bypass_method,omitempty" validate:"omitempty,oneof=within_window otn_token recurring_notification message_tag"`
	MessageTag   *string        `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
	Priority     int            `json:"priority,omitempty"`
}

// SendMessageResponse represents the acknowledgment of an accepted send
type SendMessageResponse struct {
	JobID      string              `json:"job_id"`
	Compliance *ComplianceDecision `json:"compliance"`
	QueuedAt   time.Time           `json:"queued_at"`
}

// BroadcastMessageRequest represents the request to broadcast to many contacts
type BroadcastMessageRequest struct {
	WorkspaceID uint           `json:"-"`
	ContactIDs  []uint         `json:"contact_ids" validate:"required,min=1,dive,required"`
	Content     MessageContent `json:"content" validate:"required"`
	MessageTag  *string        `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
	Priority    int            `json:"priority,omitempty"`
}

// BroadcastMessageResponse represents the accepted broadcast batch
type BroadcastMessageResponse struct {
	BatchID  string `json:"batch_id"`
	JobCount int    `json:"job_count"`
	Skipped  int    `json:"skipped"`
}

// StartCampaignRequest represents the request to fan out a campaign
type StartCampaignRequest struct {
	WorkspaceID uint           `json:"-"`
	CampaignID  string         `json:"-"`
	ContactIDs  []uint         `json:"contact_ids,omitempty"`
	Content     MessageContent `json:"content" validate:"required"`
	MessageTag  *string        `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
	Priority    int            `json:"priority,omitempty"`
}

// StartCampaignResponse represents the accepted campaign batch
type StartCampaignResponse struct {
	BatchID  string `json:"batch_id"`
	JobCount int    `json:"job_count"`
	Skipped  int    `json:"skipped"`
}

// ScheduleMessageRequest represents the request to schedule a future send
type ScheduleMessageRequest struct {
	WorkspaceID  uint           `json:"-"`
	ContactID    uint           `json:"contact_id" validate:"required"`
	Content      MessageContent `json:"content" validate:"required"`
	SendAt       time.Time      `json:"send_at" validate:"required"`
	MessageTag   *string        `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
	BypassMethod *string        `json:"bypass_method,omitempty" validate:"omitempty,oneof=within_window otn_token recurring_notification message_tag"`
	Priority     int            `json:"priority,omitempty"`
}

// ScheduleMessageResponse represents the accepted scheduled send
type ScheduleMessageResponse struct {
	JobID  string    `json:"job_id"`
	SendAt time.Time `json:"send_at"`
}

// JobStatusResponse represents the lifecycle view of one delivery job
type JobStatusResponse struct {
	JobID     string     `json:"job_id"`
	QueueName string     `json:"queue_name"`
	State     string     `json:"state"`
	Attempts  int        `json:"attempts"`
	LastError *string    `json:"last_error,omitempty"`
	BatchID   *string    `json:"batch_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// RecordInboundRequest represents an inbound message event from the platform
// webhook; it reopens the 24-hour messaging window for the contact.
type RecordInboundRequest struct {
	WorkspaceID uint   `json:"-"`
	PSID        string `json:"psid" validate:"required"`
	Text        string `json:"text,omitempty"`
	PlatformMID string `json:"platform_mid,omitempty"`
}

// RecordInboundResponse acknowledges inbound ingestion
type RecordInboundResponse struct {
	ContactID  uint      `json:"contact_id"`
	ReceivedAt time.Time `json:"received_at"`
}

// RecordReceiptRequest represents a delivery or read receipt from the
// platform webhook for a previously sent message.
type RecordReceiptRequest struct {
	WorkspaceID uint   `json:"-"`
	PlatformMID string `json:"platform_mid" validate:"required"`
	Event       string `json:"event" validate:"required,oneof=delivered read"`
}

// RecordReceiptResponse reports the message status after the receipt
type RecordReceiptResponse struct {
	MessageID uint   `json:"message_id"`
	Status    string `json:"status"`
}
