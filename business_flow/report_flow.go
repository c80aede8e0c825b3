// Package businessflow contains the core business logic and use cases for reporting workflows
package businessflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pegahdev/hermes/app/dto"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
	"github.com/xuri/excelize/v2"
)

const reportDefaultRange = 30 * 24 * time.Hour

// ReportFlow aggregates the message log and audit trail into compliance reports
type ReportFlow interface {
	ComplianceReport(ctx context.Context, req *dto.ComplianceReportRequest) (*dto.ComplianceReportResponse, error)
	DownloadComplianceReportExcel(ctx context.Context, req *dto.ComplianceReportRequest) (string, []byte, error)
}

// ReportFlowImpl implements the reporting business flow
type ReportFlowImpl struct {
	workspaceRepo repository.WorkspaceRepository
	contactRepo   repository.ContactRepository
	messageRepo   repository.MessageRepository
	auditRepo     repository.ComplianceAuditRepository
}

// NewReportFlow creates a new report flow instance
func NewReportFlow(
	workspaceRepo repository.WorkspaceRepository,
	contactRepo repository.ContactRepository,
	messageRepo repository.MessageRepository,
	auditRepo repository.ComplianceAuditRepository,
) ReportFlow {
	return &ReportFlowImpl{
		workspaceRepo: workspaceRepo,
		contactRepo:   contactRepo,
		messageRepo:   messageRepo,
		auditRepo:     auditRepo,
	}
}

// ComplianceReport builds the full compliance report for a workspace over a
// date range. Both bounds are optional; the default window is the last 30
// days ending now.
func (f *ReportFlowImpl) ComplianceReport(ctx context.Context, req *dto.ComplianceReportRequest) (*dto.ComplianceReportResponse, error) {
	workspace, err := f.workspaceRepo.ByID(ctx, req.WorkspaceID)
	if err != nil {
		return nil, NewBusinessError("WORKSPACE_LOOKUP_FAILED", "Failed to load workspace", err)
	}
	if workspace == nil {
		return nil, NewBusinessError("WORKSPACE_NOT_FOUND", "Workspace not found", ErrWorkspaceNotFound)
	}

	now := utils.UTCNow()
	end := now
	if req.EndDate != nil {
		end = req.EndDate.UTC()
	}
	start := end.Add(-reportDefaultRange)
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if start.After(end) {
		return nil, NewBusinessError("INVALID_DATE_RANGE", "Start date must not be after end date", ErrInvalidDateRange)
	}

	total, err := f.messageRepo.CountOutboundBetween(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to count outbound messages", err)
	}
	byMethod, err := f.messageRepo.CountByBypassMethodBetween(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate bypass usage", err)
	}
	byTag, err := f.messageRepo.CountByTagBetween(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate tag usage", err)
	}
	violations, err := f.auditRepo.CountViolationsBetween(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to count violations", err)
	}
	topViolators, err := f.auditRepo.TopViolators(ctx, req.WorkspaceID, start, end, 10)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to list top violators", err)
	}

	dailyMessages, err := f.messageRepo.DailyOutboundCounts(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate daily messages", err)
	}
	dailyBypass, err := f.messageRepo.DailyBypassCounts(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate daily bypass sends", err)
	}
	dailyViolations, err := f.auditRepo.DailyViolationCounts(ctx, req.WorkspaceID, start, end)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate daily violations", err)
	}

	resp := &dto.ComplianceReportResponse{
		StartDate:            start,
		EndDate:              end,
		TotalMessages:        total,
		BypassMethodUsage:    make(map[string]int64, len(byMethod)),
		TagUsage:             make(map[string]int64, len(byTag)),
		ComplianceViolations: violations,
		TopViolatingContacts: make([]dto.ViolatingContact, 0, len(topViolators)),
		DailyBreakdown:       mergeDailyBreakdown(dailyMessages, dailyBypass, dailyViolations),
	}
	for method, count := range byMethod {
		resp.BypassMethodUsage[string(method)] = count
	}
	for tag, count := range byTag {
		resp.TagUsage[string(tag)] = count
	}
	for _, v := range topViolators {
		vc := dto.ViolatingContact{ContactID: v.ContactID, Violations: v.Total}
		if contact, err := f.contactRepo.ByID(ctx, v.ContactID); err == nil && contact != nil {
			vc.PSID = contact.PSID
		}
		resp.TopViolatingContacts = append(resp.TopViolatingContacts, vc)
	}

	return resp, nil
}

// DownloadComplianceReportExcel renders the report as an xlsx workbook with a
// summary sheet and a daily breakdown sheet
func (f *ReportFlowImpl) DownloadComplianceReportExcel(ctx context.Context, req *dto.ComplianceReportRequest) (string, []byte, error) {
	report, err := f.ComplianceReport(ctx, req)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summary := "Summary"
	xl.SetSheetName(xl.GetSheetName(0), summary)
	summaryRows := [][]string{
		{"start_date", report.StartDate.Format(time.RFC3339)},
		{"end_date", report.EndDate.Format(time.RFC3339)},
		{"total_messages", strconv.FormatInt(report.TotalMessages, 10)},
		{"compliance_violations", strconv.FormatInt(report.ComplianceViolations, 10)},
	}
	for _, method := range sortedKeys(report.BypassMethodUsage) {
		summaryRows = append(summaryRows, []string{"bypass_" + method, strconv.FormatInt(report.BypassMethodUsage[method], 10)})
	}
	for _, tag := range sortedKeys(report.TagUsage) {
		summaryRows = append(summaryRows, []string{"tag_" + tag, strconv.FormatInt(report.TagUsage[tag], 10)})
	}
	for ri, row := range summaryRows {
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+1)
		_ = xl.SetSheetRow(summary, cellRef, &row)
	}

	daily := "Daily Breakdown"
	_, _ = xl.NewSheet(daily)
	header := []string{"date", "messages", "bypass_messages", "violations"}
	_ = xl.SetSheetRow(daily, "A1", &header)
	for ri, row := range report.DailyBreakdown {
		record := []string{
			row.Date,
			strconv.FormatInt(row.Messages, 10),
			strconv.FormatInt(row.BypassMessages, 10),
			strconv.FormatInt(row.Violations, 10),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(daily, cellRef, &record)
	}

	violators := "Top Violators"
	_, _ = xl.NewSheet(violators)
	vheader := []string{"contact_id", "psid", "violations"}
	_ = xl.SetSheetRow(violators, "A1", &vheader)
	for ri, v := range report.TopViolatingContacts {
		record := []string{
			strconv.FormatUint(uint64(v.ContactID), 10),
			v.PSID,
			strconv.FormatInt(v.Violations, 10),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(violators, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("compliance_report_%s_%s.xlsx",
		report.StartDate.Format("2006-01-02"), report.EndDate.Format("2006-01-02"))
	return filename, buf.Bytes(), nil
}

func mergeDailyBreakdown(messages, bypass, violations map[string]int64) []dto.DailyBreakdownRow {
	days := make(map[string]struct{}, len(messages))
	for day := range messages {
		days[day] = struct{}{}
	}
	for day := range bypass {
		days[day] = struct{}{}
	}
	for day := range violations {
		days[day] = struct{}{}
	}

	ordered := make([]string, 0, len(days))
	for day := range days {
		ordered = append(ordered, day)
	}
	sort.Strings(ordered)

	rows := make([]dto.DailyBreakdownRow, 0, len(ordered))
	for _, day := range ordered {
		rows = append(rows, dto.DailyBreakdownRow{
			Date:           day,
			Messages:       messages[day],
			BypassMessages: bypass[day],
			Violations:     violations[day],
		})
	}
	return rows
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
