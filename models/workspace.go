// Package models contains domain entities and business models for the messaging pipeline
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pegahdev/hermes/utils"
	"gorm.io/gorm"
)

// Workspace represents a tenant that sends messages on behalf of a linked page
type Workspace struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_workspaces_uuid" json:"uuid"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	PageID          string    `gorm:"size:64;not null;index:idx_workspaces_page_id" json:"page_id"`
	PageAccessToken string    `gorm:"type:text;not null" json:"-"`
	IsActive        *bool     `gorm:"default:true;index:idx_workspaces_is_active" json:"is_active"`
	CreatedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:WorkspaceID" json:"contacts,omitempty"`
}

func (Workspace) TableName() string {
	return "workspaces"
}

// BeforeCreate is called before creating a new record
func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = utils.UTCNow()
	}
	return nil
}

// WorkspaceFilter represents filter criteria for workspace queries
type WorkspaceFilter struct {
	ID       *uint
	UUID     *uuid.UUID
	PageID   *string
	IsActive *bool
}
