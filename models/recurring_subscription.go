package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// SubscriptionStatus represents the state of a recurring notification grant
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Valid checks if the status is valid
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SubscriptionStatus
func (s *SubscriptionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SubscriptionStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for SubscriptionStatus
func (s SubscriptionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SubscriptionStatus: %s", s)
	}
	return string(s), nil
}

// SubscriptionFrequency represents the cadence of a recurring subscription
type SubscriptionFrequency string

const (
	SubscriptionFrequencyDaily   SubscriptionFrequency = "daily"
	SubscriptionFrequencyWeekly  SubscriptionFrequency = "weekly"
	SubscriptionFrequencyMonthly SubscriptionFrequency = "monthly"
)

// Valid checks if the frequency is valid
func (f SubscriptionFrequency) Valid() bool {
	switch f {
	case SubscriptionFrequencyDaily, SubscriptionFrequencyWeekly, SubscriptionFrequencyMonthly:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SubscriptionFrequency
func (f *SubscriptionFrequency) Scan(value any) error {
	if value == nil {
		*f = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*f = SubscriptionFrequency(v)
	case []byte:
		*f = SubscriptionFrequency(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SubscriptionFrequency", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for SubscriptionFrequency
func (f SubscriptionFrequency) Value() (driver.Value, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid SubscriptionFrequency: %s", f)
	}
	return string(f), nil
}

// RecurringSubscription is a standing grant from a contact to receive
// recurring notifications at a given cadence. Only ACTIVE subscriptions can
// back a bypass send; the cadence itself is enforced by the subscription
// service, not the pipeline.
type RecurringSubscription struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	WorkspaceID uint                  `gorm:"not null;index:idx_recurring_subs_workspace_id" json:"workspace_id"`
	ContactID   uint                  `gorm:"not null;index:idx_recurring_subs_contact_id" json:"contact_id"`
	PageID      string                `gorm:"size:64;not null;index:idx_recurring_subs_page_id" json:"page_id"`
	Status      SubscriptionStatus    `gorm:"type:subscription_status;not null;default:'active';index:idx_recurring_subs_status" json:"status"`
	Frequency   SubscriptionFrequency `gorm:"type:subscription_frequency;not null" json:"frequency"`
	Topic       *string               `gorm:"size:255" json:"topic,omitempty"`
	CreatedAt   time.Time             `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`

	// Relations
	Contact *Contact `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

func (RecurringSubscription) TableName() string {
	return "recurring_subscriptions"
}

// BeforeCreate is called before creating a new record
func (r *RecurringSubscription) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = SubscriptionStatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsActive reports whether the subscription can back a bypass send
func (r *RecurringSubscription) IsActive() bool {
	return r.Status == SubscriptionStatusActive
}

// RecurringSubscriptionFilter represents filter criteria for subscription queries
type RecurringSubscriptionFilter struct {
	ID          *uint
	WorkspaceID *uint
	ContactID   *uint
	PageID      *string
	Status      *SubscriptionStatus
}
