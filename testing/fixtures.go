package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestWorkspace creates an active workspace with a unique page ID
func (tf *TestFixtures) CreateTestWorkspace() (*models.Workspace, error) {
	pageID := fmt.Sprintf("page_%09d", rand.Intn(900000000)+100000000)

	workspace := &models.Workspace{
		UUID:            uuid.New(),
		Name:            fmt.Sprintf("Test Workspace %s", pageID),
		PageID:          pageID,
		PageAccessToken: fmt.Sprintf("token_%s", pageID),
		IsActive:        utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(workspace).Error; err != nil {
		return nil, fmt.Errorf("failed to create test workspace: %w", err)
	}
	return workspace, nil
}

// CreateTestContact creates a subscribed contact in the given workspace.
// lastInbound controls the messaging window; nil means the contact has never
// messaged the page.
func (tf *TestFixtures) CreateTestContact(workspace *models.Workspace, lastInbound *time.Time) (*models.Contact, error) {
	psid := fmt.Sprintf("psid_%09d", rand.Intn(900000000)+100000000)

	contact := &models.Contact{
		WorkspaceID:              workspace.ID,
		PageID:                   workspace.PageID,
		PSID:                     psid,
		IsSubscribed:             utils.ToPtr(true),
		LastMessageFromContactAt: lastInbound,
	}

	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestMessage creates an outbound message row for the contact
func (tf *TestFixtures) CreateTestMessage(contact *models.Contact, direction models.MessageDirection, status models.MessageStatus) (*models.Message, error) {
	message := &models.Message{
		WorkspaceID: contact.WorkspaceID,
		ContactID:   contact.ID,
		PageID:      contact.PageID,
		Direction:   direction,
		Content:     "test message content",
		Status:      status,
	}

	if err := tf.DB.DB.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message: %w", err)
	}
	return message, nil
}

// CreateTestTaggedMessage creates an outbound message carrying a message tag
func (tf *TestFixtures) CreateTestTaggedMessage(contact *models.Contact, tag models.MessageTag) (*models.Message, error) {
	bypass := models.BypassMessageTag
	message := &models.Message{
		WorkspaceID:  contact.WorkspaceID,
		ContactID:    contact.ID,
		PageID:       contact.PageID,
		Direction:    models.MessageDirectionOutbound,
		Content:      "tagged test message",
		BypassMethod: &bypass,
		MessageTag:   &tag,
		Status:       models.MessageStatusSent,
	}

	if err := tf.DB.DB.Create(message).Error; err != nil {
		return nil, fmt.Errorf("failed to create tagged test message: %w", err)
	}
	return message, nil
}

// CreateTestOtnToken creates an unconsumed one-time notification token
func (tf *TestFixtures) CreateTestOtnToken(contact *models.Contact, expiresAt *time.Time) (*models.OtnToken, error) {
	token := &models.OtnToken{
		WorkspaceID: contact.WorkspaceID,
		ContactID:   contact.ID,
		PageID:      contact.PageID,
		Token:       fmt.Sprintf("otn_%s", uuid.NewString()),
		IsUsed:      utils.ToPtr(false),
		ExpiresAt:   expiresAt,
	}

	if err := tf.DB.DB.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create test OTN token: %w", err)
	}
	return token, nil
}

// CreateTestSubscription creates a recurring notification subscription
func (tf *TestFixtures) CreateTestSubscription(contact *models.Contact, status models.SubscriptionStatus) (*models.RecurringSubscription, error) {
	sub := &models.RecurringSubscription{
		WorkspaceID: contact.WorkspaceID,
		ContactID:   contact.ID,
		PageID:      contact.PageID,
		Status:      status,
		Frequency:   models.SubscriptionFrequencyWeekly,
	}

	if err := tf.DB.DB.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create test subscription: %w", err)
	}
	return sub, nil
}

// CreateTestAudit creates a compliance audit row
func (tf *TestFixtures) CreateTestAudit(contact *models.Contact, bypass models.BypassMethod, compliant bool) (*models.ComplianceAudit, error) {
	audit := &models.ComplianceAudit{
		WorkspaceID:  contact.WorkspaceID,
		ContactID:    contact.ID,
		PageID:       contact.PageID,
		BypassMethod: &bypass,
		IsCompliant:  utils.ToPtr(compliant),
	}

	if err := tf.DB.DB.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit: %w", err)
	}
	return audit, nil
}
