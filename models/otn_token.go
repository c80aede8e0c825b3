package models

import (
	"time"

	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// OtnToken is a single-use one-time-notification grant from a contact
// permitting exactly one out-of-window message. Tokens are created by the
// opt-in flow and consumed atomically by the delivery pipeline.
type OtnToken struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"not null;index:idx_otn_tokens_workspace_id" json:"workspace_id"`
	ContactID   uint       `gorm:"not null;index:idx_otn_tokens_contact_id" json:"contact_id"`
	PageID      string     `gorm:"size:64;not null;index:idx_otn_tokens_page_id" json:"page_id"`
	Token       string     `gorm:"size:255;not null;uniqueIndex:uk_otn_tokens_token" json:"token"`
	IsUsed      *bool      `gorm:"default:false;index:idx_otn_tokens_is_used" json:"is_used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ExpiresAt   *time.Time `gorm:"index:idx_otn_tokens_expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	Contact *Contact `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

func (OtnToken) TableName() string {
	return "otn_tokens"
}

// BeforeCreate is called before creating a new record
func (o *OtnToken) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Available reports whether the token can still back a bypass send: unused and
// not expired.
func (o *OtnToken) Available(now time.Time) bool {
	if utils.IsTrue(o.IsUsed) {
		return false
	}
	if o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
		return false
	}
	return true
}

// OtnTokenFilter represents filter criteria for OTN token queries
type OtnTokenFilter struct {
	ID          *uint
	WorkspaceID *uint
	ContactID   *uint
	PageID      *string
	IsUsed      *bool
}
