package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// ComplianceAudit is the append-only record of bypass usage and compliance
// outcomes. It feeds cooldown resets and the compliance report; rows are never
// mutated.
type ComplianceAudit struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID  uint           `gorm:"not null;index:idx_compliance_audits_workspace_id" json:"workspace_id"`
	ContactID    uint           `gorm:"not null;index:idx_compliance_audits_contact_id" json:"contact_id"`
	PageID       string         `gorm:"size:64;not null" json:"page_id"`
	BypassMethod *BypassMethod  `gorm:"type:bypass_method;index:idx_compliance_audits_bypass" json:"bypass_method,omitempty"`
	MessageTag   *MessageTag    `gorm:"type:message_tag;index:idx_compliance_audits_tag" json:"message_tag,omitempty"`
	IsCompliant  *bool          `gorm:"default:true;index:idx_compliance_audits_is_compliant" json:"is_compliant"`
	Warnings     pq.StringArray `gorm:"type:text[]" json:"warnings,omitempty"`
	CreatedAt    time.Time      `gorm:"default:CURRENT_TIMESTAMP;index:idx_compliance_audits_created_at" json:"created_at"`

	// Relations
	Contact *Contact `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

func (ComplianceAudit) TableName() string {
	return "compliance_audits"
}

// BeforeCreate is called before creating a new record
func (a *ComplianceAudit) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// IsViolation reports whether the entry records a non-compliant outcome
func (a *ComplianceAudit) IsViolation() bool {
	return a.IsCompliant != nil && !*a.IsCompliant
}

// ComplianceAuditFilter represents filter criteria for audit queries
type ComplianceAuditFilter struct {
	ID            *uint
	WorkspaceID   *uint
	ContactID     *uint
	BypassMethod  *BypassMethod
	MessageTag    *MessageTag
	IsCompliant   *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
