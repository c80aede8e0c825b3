package models

import (
	"time"

	"github.com/pegahdev/hermes/utils"
)

// Contact represents a messageable person inside a workspace. PSID is the
// platform-scoped id the Send API addresses.
type Contact struct {
	ID                       uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID              uint       `gorm:"not null;index:idx_contacts_workspace_id" json:"workspace_id"`
	PageID                   string     `gorm:"size:64;not null;index:idx_contacts_page_id" json:"page_id"`
	PSID                     string     `gorm:"size:64;not null;uniqueIndex:uk_contacts_page_psid,composite:page_psid" json:"psid"`
	FirstName                *string    `gorm:"size:255" json:"first_name,omitempty"`
	LastName                 *string    `gorm:"size:255" json:"last_name,omitempty"`
	IsSubscribed             *bool      `gorm:"default:true;index:idx_contacts_is_subscribed" json:"is_subscribed"`
	LastMessageFromContactAt *time.Time `gorm:"index:idx_contacts_last_from_at" json:"last_message_from_contact_at,omitempty"`
	LastMessageToContactAt   *time.Time `json:"last_message_to_contact_at,omitempty"`
	CreatedAt                time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`

	// Relations
	Workspace *Workspace `gorm:"foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
}

func (Contact) TableName() string {
	return "contacts"
}

// WindowOpen reports whether the 24-hour free-messaging window is open at the
// given instant. The window is open iff the contact messaged the page within
// the last 24 hours.
func (c *Contact) WindowOpen(now time.Time) bool {
	if c.LastMessageFromContactAt == nil {
		return false
	}
	return now.Sub(*c.LastMessageFromContactAt) <= utils.MessagingWindow
}

// InboundWithin reports whether the contact sent an inbound message within the
// trailing duration d.
func (c *Contact) InboundWithin(now time.Time, d time.Duration) bool {
	if c.LastMessageFromContactAt == nil {
		return false
	}
	return now.Sub(*c.LastMessageFromContactAt) <= d
}

// ContactFilter represents filter criteria for contact queries
type ContactFilter struct {
	ID            *uint
	WorkspaceID   *uint
	PageID        *string
	PSID          *string
	IsSubscribed  *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
