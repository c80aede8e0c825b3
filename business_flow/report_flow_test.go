package businessflow_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pegahdev/hermes/app/dto"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
)

type reportEnv struct {
	workspaces *fakeWorkspaceRepo
	contacts   *fakeContactRepo
	messages   *fakeMessageRepo
	audits     *fakeAuditRepo
	flow       businessflow.ReportFlow
}

func newReportEnv() *reportEnv {
	env := &reportEnv{
		workspaces: &fakeWorkspaceRepo{workspaces: map[uint]*models.Workspace{
			10: testWorkspace(10, true),
		}},
		contacts: &fakeContactRepo{contacts: map[uint]*models.Contact{
			1: testContact(1, 10, true, nil),
			2: testContact(2, 10, true, nil),
		}},
		messages: &fakeMessageRepo{
			outboundBetween: 120,
			byMethod: map[models.BypassMethod]int64{
				models.BypassWithinWindow: 90,
				models.BypassMessageTag:   25,
				models.BypassOtnToken:     5,
			},
			byTag: map[models.MessageTag]int64{
				models.TagConfirmedEventUpdate: 20,
				models.TagHumanAgent:           5,
			},
			dailyOutbound: map[string]int64{
				"2026-08-01": 70,
				"2026-08-02": 50,
			},
			dailyBypass: map[string]int64{
				"2026-08-02": 30,
			},
		},
		audits: &fakeAuditRepo{
			violations: 7,
			topViolators: []repository.ViolatorCount{
				{ContactID: 1, Total: 5},
				{ContactID: 2, Total: 2},
			},
			dailyViolations: map[string]int64{
				"2026-08-03": 7,
			},
		},
	}
	env.flow = businessflow.NewReportFlow(env.workspaces, env.contacts, env.messages, env.audits)
	return env
}

func reportRange(start, end string) *dto.ComplianceReportRequest {
	s, _ := time.Parse("2006-01-02", start)
	e, _ := time.Parse("2006-01-02", end)
	return &dto.ComplianceReportRequest{WorkspaceID: 10, StartDate: &s, EndDate: &e}
}

func TestComplianceReportAggregates(t *testing.T) {
	env := newReportEnv()

	report, err := env.flow.ComplianceReport(context.Background(), reportRange("2026-08-01", "2026-08-31"))
	require.NoError(t, err)

	assert.Equal(t, int64(120), report.TotalMessages)
	assert.Equal(t, int64(7), report.ComplianceViolations)
	assert.Equal(t, int64(25), report.BypassMethodUsage["message_tag"])
	assert.Equal(t, int64(90), report.BypassMethodUsage["within_window"])
	assert.Equal(t, int64(20), report.TagUsage["CONFIRMED_EVENT_UPDATE"])

	require.Len(t, report.TopViolatingContacts, 2)
	assert.Equal(t, uint(1), report.TopViolatingContacts[0].ContactID)
	assert.Equal(t, int64(5), report.TopViolatingContacts[0].Violations)
	assert.Equal(t, "psid_1", report.TopViolatingContacts[0].PSID)
}

func TestComplianceReportDailyBreakdownMergesSources(t *testing.T) {
	env := newReportEnv()

	report, err := env.flow.ComplianceReport(context.Background(), reportRange("2026-08-01", "2026-08-31"))
	require.NoError(t, err)

	// Days seen in any aggregate appear once, in order
	require.Len(t, report.DailyBreakdown, 3)
	assert.Equal(t, "2026-08-01", report.DailyBreakdown[0].Date)
	assert.Equal(t, int64(70), report.DailyBreakdown[0].Messages)
	assert.Zero(t, report.DailyBreakdown[0].Violations)

	assert.Equal(t, "2026-08-02", report.DailyBreakdown[1].Date)
	assert.Equal(t, int64(30), report.DailyBreakdown[1].BypassMessages)

	assert.Equal(t, "2026-08-03", report.DailyBreakdown[2].Date)
	assert.Zero(t, report.DailyBreakdown[2].Messages)
	assert.Equal(t, int64(7), report.DailyBreakdown[2].Violations)
}

func TestComplianceReportDefaultsToLastThirtyDays(t *testing.T) {
	env := newReportEnv()

	report, err := env.flow.ComplianceReport(context.Background(), &dto.ComplianceReportRequest{WorkspaceID: 10})
	require.NoError(t, err)

	span := report.EndDate.Sub(report.StartDate)
	assert.Equal(t, 30*24*time.Hour, span)
	assert.WithinDuration(t, time.Now().UTC(), report.EndDate, time.Minute)
}

func TestComplianceReportRejectsInvertedRange(t *testing.T) {
	env := newReportEnv()

	_, err := env.flow.ComplianceReport(context.Background(), reportRange("2026-08-31", "2026-08-01"))
	require.Error(t, err)
	assert.True(t, businessflow.IsInvalidDateRange(err))
}

func TestComplianceReportUnknownWorkspace(t *testing.T) {
	env := newReportEnv()

	_, err := env.flow.ComplianceReport(context.Background(), &dto.ComplianceReportRequest{WorkspaceID: 404})
	require.Error(t, err)
	assert.True(t, businessflow.IsWorkspaceNotFound(err))
}

func TestDownloadComplianceReportExcel(t *testing.T) {
	env := newReportEnv()

	filename, data, err := env.flow.DownloadComplianceReportExcel(context.Background(), reportRange("2026-08-01", "2026-08-31"))
	require.NoError(t, err)
	assert.Equal(t, "compliance_report_2026-08-01_2026-08-31.xlsx", filename)
	require.NotEmpty(t, data)

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	assert.ElementsMatch(t, []string{"Summary", "Daily Breakdown", "Top Violators"}, xl.GetSheetList())

	rows, err := xl.GetRows("Daily Breakdown")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"date", "messages", "bypass_messages", "violations"}, rows[0])
	assert.Equal(t, []string{"2026-08-01", "70", "0", "0"}, rows[1])

	vrows, err := xl.GetRows("Top Violators")
	require.NoError(t, err)
	require.Len(t, vrows, 3)
	assert.Equal(t, []string{"1", "psid_1", "5"}, vrows[1])
}
