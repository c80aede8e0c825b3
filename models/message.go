package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// MessageDirection represents the direction of a logged message
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Valid checks if the direction is valid
func (d MessageDirection) Valid() bool {
	return d == MessageDirectionInbound || d == MessageDirectionOutbound
}

// Scan implements the sql.Scanner interface for MessageDirection
func (d *MessageDirection) Scan(value any) error {
	if value == nil {
		*d = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*d = MessageDirection(v)
	case []byte:
		*d = MessageDirection(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageDirection", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for MessageDirection
func (d MessageDirection) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid MessageDirection: %s", d)
	}
	return string(d), nil
}

// MessageStatus represents the delivery status of an outbound message
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Valid checks if the status is valid
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusDelivered,
		MessageStatusRead, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions other
// than delivery receipts
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusFailed || s == MessageStatusRead
}

// Scan implements the sql.Scanner interface for MessageStatus
func (s *MessageStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = MessageStatus(v)
	case []byte:
		*s = MessageStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for MessageStatus
func (s MessageStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid MessageStatus: %s", s)
	}
	return string(s), nil
}

// BypassMethod represents the mechanism used to message outside the 24h window
type BypassMethod string

const (
	BypassWithinWindow          BypassMethod = "within_window"
	BypassOtnToken              BypassMethod = "otn_token"
	BypassRecurringNotification BypassMethod = "recurring_notification"
	BypassMessageTag            BypassMethod = "message_tag"
	BypassBlocked               BypassMethod = "blocked"
)

// Valid checks if the bypass method is valid
func (b BypassMethod) Valid() bool {
	switch b {
	case BypassWithinWindow, BypassOtnToken, BypassRecurringNotification,
		BypassMessageTag, BypassBlocked:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for BypassMethod
func (b *BypassMethod) Scan(value any) error {
	if value == nil {
		*b = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*b = BypassMethod(v)
	case []byte:
		*b = BypassMethod(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BypassMethod", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for BypassMethod
func (b BypassMethod) Value() (driver.Value, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid BypassMethod: %s", b)
	}
	return string(b), nil
}

// MessageTag represents a platform message tag permitting narrow out-of-window
// sends, subject to usage caps
type MessageTag string

const (
	TagConfirmedEventUpdate MessageTag = "CONFIRMED_EVENT_UPDATE"
	TagPostPurchaseUpdate   MessageTag = "POST_PURCHASE_UPDATE"
	TagAccountUpdate        MessageTag = "ACCOUNT_UPDATE"
	TagHumanAgent           MessageTag = "HUMAN_AGENT"
)

// Valid checks if the tag is valid
func (t MessageTag) Valid() bool {
	switch t {
	case TagConfirmedEventUpdate, TagPostPurchaseUpdate, TagAccountUpdate, TagHumanAgent:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for MessageTag
func (t *MessageTag) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = MessageTag(v)
	case []byte:
		*t = MessageTag(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageTag", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for MessageTag
func (t MessageTag) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid MessageTag: %s", t)
	}
	return string(t), nil
}

// UsageCap returns the 30-day rolling usage cap for the tag per contact
func (t MessageTag) UsageCap() int {
	switch t {
	case TagConfirmedEventUpdate:
		return 10
	case TagPostPurchaseUpdate:
		return 15
	case TagAccountUpdate:
		return 20
	case TagHumanAgent:
		return 5
	default:
		return 0
	}
}

// Cooldown returns the minimum wait enforced after a bypass send with this tag
func (t MessageTag) Cooldown() time.Duration {
	switch t {
	case TagConfirmedEventUpdate:
		return time.Hour
	case TagPostPurchaseUpdate:
		return 2 * time.Hour
	case TagAccountUpdate:
		return 24 * time.Hour
	case TagHumanAgent:
		return 30 * time.Minute
	default:
		return utils.DefaultCooldown
	}
}

// Guidance returns the static platform requirement surfaced as an info warning
func (t MessageTag) Guidance() string {
	switch t {
	case TagConfirmedEventUpdate:
		return "Message must relate to an event the contact has confirmed attendance for"
	case TagPostPurchaseUpdate:
		return "Message must relate to a purchase the contact has already made"
	case TagAccountUpdate:
		return "Message must be a non-recurring update about the contact's account"
	case TagHumanAgent:
		return "Message must be a human agent response to a contact inquiry"
	default:
		return ""
	}
}

// Message is the append-only outbound/inbound message log. Rows are compliance
// evidence and the audit source, never mutated after a terminal status except
// delivery receipt transitions.
type Message struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	WorkspaceID  uint             `gorm:"not null;index:idx_messages_workspace_id" json:"workspace_id"`
	ContactID    uint             `gorm:"not null;index:idx_messages_contact_id" json:"contact_id"`
	PageID       string           `gorm:"size:64;not null;index:idx_messages_page_id" json:"page_id"`
	Direction    MessageDirection `gorm:"type:message_direction;not null;index:idx_messages_direction" json:"direction"`
	Content      string           `gorm:"type:text;not null" json:"content"`
	BypassMethod *BypassMethod    `gorm:"type:bypass_method" json:"bypass_method,omitempty"`
	MessageTag   *MessageTag      `gorm:"type:message_tag;index:idx_messages_tag" json:"message_tag,omitempty"`
	Status       MessageStatus    `gorm:"type:message_status;not null;default:'pending'" json:"status"`
	PlatformMID  *string          `gorm:"column:platform_mid;size:255" json:"platform_mid,omitempty"`
	JobID        *string          `gorm:"size:128;index:idx_messages_job_id" json:"job_id,omitempty"`
	CreatedAt    time.Time        `gorm:"default:CURRENT_TIMESTAMP;index:idx_messages_created_at" json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`

	// Relations
	Contact *Contact `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate is called before creating a new record
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.Status == "" {
		m.Status = MessageStatusPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	return nil
}

// MessageFilter represents filter criteria for message log queries
type MessageFilter struct {
	ID            *uint
	WorkspaceID   *uint
	ContactID     *uint
	PageID        *string
	Direction     *MessageDirection
	Status        *MessageStatus
	MessageTag    *MessageTag
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
