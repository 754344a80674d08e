package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/store"
)

const testTenant = "tenant-1"

type fakeStats struct {
	auditEntries []*model.AuditEntry // page returned by ListAuditEntries
	auditChain   []*model.AuditEntry // full trail returned by ListAuditChain
}

func (f *fakeStats) CountCasesByStatus(context.Context, string) (map[model.CaseStatus]int, error) {
	return map[model.CaseStatus]int{model.CaseOffen: 2, model.CaseAbgeschlossen: 5}, nil
}

func (f *fakeStats) CountReportsByCategory(context.Context, string) (map[model.Category]int, error) {
	return map[model.Category]int{model.CategoryKorruption: 4}, nil
}

func (f *fakeStats) CountOverdueDeadlines(context.Context, string, time.Time) (map[model.DeadlineType]int, error) {
	return map[model.DeadlineType]int{model.DeadlineAck7d: 1}, nil
}

func (f *fakeStats) CountUpcomingDeadlines(context.Context, string, time.Time, time.Duration) (int, error) {
	return 3, nil
}

func (f *fakeStats) AvgProcessingDays(context.Context, string) (float64, error) { return 41.5, nil }
func (f *fakeStats) ComplianceRate(context.Context, string) (float64, error)    { return 80, nil }
func (f *fakeStats) AnonymousRatio(context.Context, string) (float64, error)    { return 25, nil }
func (f *fakeStats) NewReportsSince(context.Context, string, time.Time) (int, error) {
	return 2, nil
}
func (f *fakeStats) EscalationsSince(context.Context, string, time.Time) (int, error) {
	return 1, nil
}
func (f *fakeStats) ActiveOmbudspersonen(context.Context, string) (int, error) { return 1, nil }

func (f *fakeStats) ListAuditEntries(context.Context, string, store.AuditFilter) ([]*model.AuditEntry, error) {
	return f.auditEntries, nil
}

func (f *fakeStats) ListAuditChain(context.Context, string) ([]*model.AuditEntry, error) {
	if f.auditChain != nil {
		return f.auditChain, nil
	}
	return f.auditEntries, nil
}

type fakeAuditStore struct{}

func (fakeAuditStore) InsertAuditEntry(context.Context, *model.AuditEntry) error { return nil }
func (fakeAuditStore) LastAuditIntegrity(context.Context, string) (string, error) {
	return "", nil
}

func newTestService(t *testing.T, fs *fakeStats) (*Service, *audit.Logger) {
	t.Helper()
	auditor, err := audit.NewLogger("audit-hmac-key-0123456789abcdef01", fakeAuditStore{})
	require.NoError(t, err)
	return NewService(fs, auditor), auditor
}

func adminCtx() context.Context {
	ctx := reqctx.WithTenant(context.Background(), testTenant)
	return reqctx.WithActor(ctx, reqctx.Actor{UserID: "admin-1", Role: model.RoleAdmin})
}

func TestGenerateAggregatesStats(t *testing.T) {
	svc, _ := newTestService(t, &fakeStats{})

	c, err := svc.Generate(adminCtx())
	require.NoError(t, err)

	assert.Equal(t, testTenant, c.TenantID)
	assert.Equal(t, 2, c.CasesByStatus[model.CaseOffen])
	assert.Equal(t, 1, c.OverdueByType[model.DeadlineAck7d])
	assert.Equal(t, 3, c.UpcomingDeadlines)
	assert.InDelta(t, 80, c.ComplianceRate, 0.001)
	assert.Equal(t, 1, c.ActiveOmbudspersonen)
}

func TestGenerateRequiresExportPermission(t *testing.T) {
	svc, _ := newTestService(t, &fakeStats{})

	ctx := reqctx.WithTenant(context.Background(), testTenant)
	ctx = reqctx.WithActor(ctx, reqctx.Actor{UserID: "worker-1", Role: model.RoleFallbearbeiter})

	_, err := svc.Generate(ctx)
	assert.True(t, errs.Is(err, errs.KindForbidden))
}

func TestExportAuditVerifiesChain(t *testing.T) {
	fs := &fakeStats{}
	svc, auditor := newTestService(t, fs)

	for i := 0; i < 3; i++ {
		fs.auditEntries = append(fs.auditEntries, auditor.Build(context.Background(), audit.Event{
			Action:   model.AuditSubmissionCreated,
			TenantID: testTenant,
			Success:  true,
		}))
	}

	export, err := svc.ExportAudit(adminCtx(), store.AuditFilter{})
	require.NoError(t, err)
	assert.True(t, export.Intact)
	assert.Equal(t, -1, export.BrokenIndex)
	assert.Len(t, export.Entries, 3)
}

func TestExportAuditVerifiesFullChainNotPage(t *testing.T) {
	fs := &fakeStats{}
	svc, auditor := newTestService(t, fs)

	// The verdict must come from the complete trail. A paginated page
	// starts mid-chain and would otherwise report a break that is not
	// there.
	for i := 0; i < 3; i++ {
		fs.auditChain = append(fs.auditChain, auditor.Build(context.Background(), audit.Event{
			Action:   model.AuditSubmissionCreated,
			TenantID: testTenant,
			Success:  true,
		}))
	}
	fs.auditEntries = fs.auditChain[2:]

	export, err := svc.ExportAudit(adminCtx(), store.AuditFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.True(t, export.Intact)
	assert.Equal(t, -1, export.BrokenIndex)
	assert.Len(t, export.Entries, 1)
}

func TestExportAuditDetectsTampering(t *testing.T) {
	fs := &fakeStats{}
	svc, auditor := newTestService(t, fs)

	for i := 0; i < 3; i++ {
		fs.auditEntries = append(fs.auditEntries, auditor.Build(context.Background(), audit.Event{
			Action:   model.AuditSubmissionCreated,
			TenantID: testTenant,
			Success:  true,
		}))
	}
	fs.auditEntries[1].UserID = "manipuliert"

	export, err := svc.ExportAudit(adminCtx(), store.AuditFilter{})
	require.NoError(t, err)
	assert.False(t, export.Intact)
	assert.Equal(t, 1, export.BrokenIndex)
}
