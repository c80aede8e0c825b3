package dto

import "time"

// ComplianceReportRequest bounds the reporting window
type ComplianceReportRequest struct {
	WorkspaceID uint       `json:"-"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// DailyBreakdownRow is one day of the compliance report
type DailyBreakdownRow struct {
	Date           string `json:"date"`
	Messages       int64  `json:"messages"`
	BypassMessages int64  `json:"bypass_messages"`
	Violations     int64  `json:"violations"`
}

// ViolatingContact pairs a contact with its violation count
type ViolatingContact struct {
	ContactID  uint   `json:"contact_id"`
	PSID       string `json:"psid,omitempty"`
	Violations int64  `json:"violations"`
}

// ComplianceReportResponse aggregates the audit trail and message log over a
// date range
type ComplianceReportResponse struct {
	StartDate            time.Time           `json:"start_date"`
	EndDate              time.Time           `json:"end_date"`
	TotalMessages        int64               `json:"total_messages"`
	BypassMethodUsage    map[string]int64    `json:"bypass_method_usage"`
	TagUsage             map[string]int64    `json:"tag_usage"`
	ComplianceViolations int64               `json:"compliance_violations"`
	TopViolatingContacts []ViolatingContact  `json:"top_violating_contacts"`
	DailyBreakdown       []DailyBreakdownRow `json:"daily_breakdown"`
}
