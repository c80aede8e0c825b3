package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// JobState represents the lifecycle state of a delivery job
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Valid checks if the state is valid
func (s JobState) Valid() bool {
	switch s {
	case JobStateWaiting, JobStateDelayed, JobStateActive, JobStateCompleted, JobStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state admits no further transitions except
// manual retry
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Scan implements the sql.Scanner interface for JobState
func (s *JobState) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = JobState(v)
	case []byte:
		*s = JobState(string(v))
	default:
		return fmt.Errorf("cannot scan %T into JobState", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for JobState
func (s JobState) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid JobState: %s", s)
	}
	return string(s), nil
}

// MessageKind discriminates the message content variants a job can carry
type MessageKind string

const (
	MessageKindText         MessageKind = "text"
	MessageKindAttachment   MessageKind = "attachment"
	MessageKindTemplate     MessageKind = "template"
	MessageKindQuickReplies MessageKind = "quick_replies"
)

// Valid checks if the kind is valid
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindAttachment, MessageKindTemplate, MessageKindQuickReplies:
		return true
	default:
		return false
	}
}

// QuickReply is a single quick-reply button attached to a message
type QuickReply struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// MessagePayload is the job payload: message content plus routing and bypass
// selection. Content is a tagged union over Kind with explicit fields per
// variant, validated at enqueue time.
type MessagePayload struct {
	WorkspaceID   uint   `json:"workspace_id"`
	ContactID     uint   `json:"contact_id"`
	PageID        string `json:"page_id"`
	RecipientPSID string `json:"recipient_psid"`

	Kind           MessageKind       `json:"kind"`
	Text           string            `json:"text,omitempty"`
	AttachmentType string            `json:"attachment_type,omitempty"`
	AttachmentURL  string            `json:"attachment_url,omitempty"`
	TemplateName   string            `json:"template_name,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`
	QuickReplies   []QuickReply      `json:"quick_replies,omitempty"`

	BypassMethod *BypassMethod `json:"bypass_method,omitempty"`
	MessageTag   *MessageTag   `json:"message_tag,omitempty"`

	// PrecheckedAt marks payloads whose compliance was evaluated at enqueue
	// time (the immediate send path); workers re-check everything else.
	PrecheckedAt *time.Time `json:"prechecked_at,omitempty"`
}

// Validate checks the payload shape for the declared content kind
func (p *MessagePayload) Validate() error {
	if p.WorkspaceID == 0 {
		return fmt.Errorf("workspace_id is required")
	}
	if p.ContactID == 0 {
		return fmt.Errorf("contact_id is required")
	}
	if p.PageID == "" {
		return fmt.Errorf("page_id is required")
	}
	if p.RecipientPSID == "" {
		return fmt.Errorf("recipient_psid is required")
	}
	switch p.Kind {
	case MessageKindText:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("text content is required for text messages")
		}
	case MessageKindAttachment:
		if p.AttachmentURL == "" {
			return fmt.Errorf("attachment_url is required for attachment messages")
		}
		if p.AttachmentType == "" {
			return fmt.Errorf("attachment_type is required for attachment messages")
		}
	case MessageKindTemplate:
		if p.TemplateName == "" {
			return fmt.Errorf("template_name is required for template messages")
		}
	case MessageKindQuickReplies:
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("text content is required for quick-reply messages")
		}
		if len(p.QuickReplies) == 0 {
			return fmt.Errorf("at least one quick reply is required")
		}
	default:
		return fmt.Errorf("unknown message kind: %s", p.Kind)
	}
	if p.MessageTag != nil && !p.MessageTag.Valid() {
		return fmt.Errorf("invalid message tag: %s", *p.MessageTag)
	}
	if p.BypassMethod != nil && !p.BypassMethod.Valid() {
		return fmt.Errorf("invalid bypass method: %s", *p.BypassMethod)
	}
	return nil
}

// ContentSummary returns a short human-readable form of the content for the
// message log
func (p *MessagePayload) ContentSummary() string {
	switch p.Kind {
	case MessageKindAttachment:
		return fmt.Sprintf("[%s] %s", p.AttachmentType, p.AttachmentURL)
	case MessageKindTemplate:
		return fmt.Sprintf("[template] %s", p.TemplateName)
	default:
		return p.Text
	}
}

// Value implements the driver.Valuer interface for MessagePayload
func (p MessagePayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for MessagePayload
func (p *MessagePayload) Scan(value any) error {
	if value == nil {
		*p = MessagePayload{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessagePayload", value)
	}
	return json.Unmarshal(bytes, p)
}

// DeliveryJob is a durable delivery queue job. JobID is the queue-level id;
// jobs created by a bulk enqueue share a BatchID and carry derived ids
// "{batchId}-{index}". Rows are retained after terminal states for a bounded
// retention window, then purged.
type DeliveryJob struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	JobID       string         `gorm:"size:128;not null;uniqueIndex:uk_delivery_jobs_job_id" json:"job_id"`
	QueueName   string         `gorm:"size:64;not null;index:idx_delivery_jobs_queue_name" json:"queue_name"`
	Payload     MessagePayload `gorm:"type:jsonb;not null" json:"payload"`
	Priority    int            `gorm:"not null;default:0" json:"priority"`
	DelayMs     int64          `gorm:"not null;default:0" json:"delay_ms"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:1" json:"max_attempts"`
	State       JobState       `gorm:"type:job_state;not null;default:'waiting';index:idx_delivery_jobs_state" json:"state"`
	BatchID     *string        `gorm:"size:64;index:idx_delivery_jobs_batch_id" json:"batch_id,omitempty"`
	NextRunAt   time.Time      `gorm:"not null;index:idx_delivery_jobs_next_run_at" json:"next_run_at"`
	LastError   *string        `gorm:"type:text" json:"last_error,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_delivery_jobs_created_at" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (DeliveryJob) TableName() string {
	return "delivery_jobs"
}

// BeforeCreate is called before creating a new record
func (j *DeliveryJob) BeforeCreate(tx *gorm.DB) error {
	if j.State == "" {
		j.State = JobStateWaiting
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = utils.UTCNow()
	}
	if j.NextRunAt.IsZero() {
		j.NextRunAt = j.CreatedAt
	}
	return nil
}

// DeliveryJobFilter represents filter criteria for job queries
type DeliveryJobFilter struct {
	ID            *uint
	JobID         *string
	QueueName     *string
	State         *JobState
	BatchID       *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
