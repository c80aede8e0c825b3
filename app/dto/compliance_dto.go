package dto

// CheckComplianceRequest represents a pre-send compliance query
type CheckComplianceRequest struct {
	WorkspaceID  uint    `json:"-"`
	ContactID    uint    `json:"contact_id" validate:"required"`
	BypassMethod *string `json:"bypass_method,omitempty" validate:"omitempty,oneof=within_window otn_token recurring_notification message_tag"`
	MessageTag   *string `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
}

// ComplianceWarning is one structured reason attached to a decision
type ComplianceWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // info, warning, error
}

// ComplianceDecision is the full pre-send decision. Computed fresh per call,
// never cached.
type ComplianceDecision struct {
	CanSend                  bool                `json:"can_send"`
	Warnings                 []ComplianceWarning `json:"warnings"`
	RecommendedBypassMethod  *string             `json:"recommended_bypass_method,omitempty"`
	RecommendedMessageTag    *string             `json:"recommended_message_tag,omitempty"`
	CooldownRemainingSeconds *int                `json:"cooldown_remaining_seconds,omitempty"`
}

// HasWarning reports whether the decision carries a warning with the code
func (d *ComplianceDecision) HasWarning(code string) bool {
	for _, w := range d.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// RecordBypassUsageRequest appends an audit entry and starts the cooldown
type RecordBypassUsageRequest struct {
	WorkspaceID  uint     `json:"-"`
	ContactID    uint     `json:"contact_id" validate:"required"`
	BypassMethod string   `json:"bypass_method" validate:"required,oneof=within_window otn_token recurring_notification message_tag blocked"`
	MessageTag   *string  `json:"message_tag,omitempty" validate:"omitempty,oneof=CONFIRMED_EVENT_UPDATE POST_PURCHASE_UPDATE ACCOUNT_UPDATE HUMAN_AGENT"`
	IsCompliant  bool     `json:"is_compliant"`
	Warnings     []string `json:"warnings,omitempty"`
}

// UpdateSubscriptionStatusRequest represents a recurring notification
// opt-out or resume event from the platform webhook.
type UpdateSubscriptionStatusRequest struct {
	WorkspaceID    uint   `json:"-"`
	SubscriptionID uint   `json:"-"`
	Status         string `json:"status" validate:"required,oneof=active paused cancelled"`
}

// UpdateSubscriptionStatusResponse reports the subscription state after the update
type UpdateSubscriptionStatusResponse struct {
	SubscriptionID uint   `json:"subscription_id"`
	Status         string `json:"status"`
}
