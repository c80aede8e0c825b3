// Package businessflow contains the business logic for the application.
package businessflow

import (
	"github.com/pegahdev/hermes/app/dto"
)

const RequestIDKey = "X-Request-ID"

// Warning severities attached to compliance decisions
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Warning codes emitted by compliance checks
const (
	WarnContactNotFound     = "CONTACT_NOT_FOUND"
	WarnUnsubscribed        = "UNSUBSCRIBED"
	WarnOutsideWindow       = "OUTSIDE_WINDOW"
	WarnNoBypassAvailable   = "NO_BYPASS_AVAILABLE"
	WarnTagLimitApproaching = "TAG_LIMIT_APPROACHING"
	WarnTagLimitExceeded    = "TAG_LIMIT_EXCEEDED"
	WarnTagGuidance         = "TAG_GUIDANCE"
	WarnCooldownActive      = "COOLDOWN_ACTIVE"
	WarnHighFrequency       = "HIGH_FREQUENCY"
	WarnRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
)

// ClientMetadata holds client-related information for audit logging and request tracking
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

func newWarning(code, message, severity string) dto.ComplianceWarning {
	return dto.ComplianceWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	}
}
