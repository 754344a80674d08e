// Package report produces the tenant compliance report and the audit
// export used for external reviews.
package report

import (
	"context"
	"time"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/store"
)

// StatsStore is the aggregate query surface of the compliance report.
type StatsStore interface {
	CountCasesByStatus(ctx context.Context, tenantID string) (map[model.CaseStatus]int, error)
	CountReportsByCategory(ctx context.Context, tenantID string) (map[model.Category]int, error)
	CountOverdueDeadlines(ctx context.Context, tenantID string, now time.Time) (map[model.DeadlineType]int, error)
	CountUpcomingDeadlines(ctx context.Context, tenantID string, now time.Time, window time.Duration) (int, error)
	AvgProcessingDays(ctx context.Context, tenantID string) (float64, error)
	ComplianceRate(ctx context.Context, tenantID string) (float64, error)
	AnonymousRatio(ctx context.Context, tenantID string) (float64, error)
	NewReportsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	EscalationsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	ActiveOmbudspersonen(ctx context.Context, tenantID string) (int, error)
	ListAuditEntries(ctx context.Context, tenantID string, f store.AuditFilter) ([]*model.AuditEntry, error)
	ListAuditChain(ctx context.Context, tenantID string) ([]*model.AuditEntry, error)
}

// Service builds compliance reports.
type Service struct {
	store   StatsStore
	auditor *audit.Logger
	clock   func() time.Time
}

// NewService wires the compliance reporter.
func NewService(st StatsStore, auditor *audit.Logger) *Service {
	return &Service{
		store:   st,
		auditor: auditor,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Compliance is the point-in-time compliance picture of one tenant.
type Compliance struct {
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`

	CasesByStatus     map[model.CaseStatus]int   `json:"cases_by_status"`
	ReportsByCategory map[model.Category]int     `json:"reports_by_category"`
	OverdueByType     map[model.DeadlineType]int `json:"overdue_by_type"`
	UpcomingDeadlines int                        `json:"upcoming_deadlines"`

	AvgProcessingDays    float64 `json:"avg_processing_days"`
	ComplianceRate       float64 `json:"compliance_rate"`
	AnonymousRatio       float64 `json:"anonymous_ratio"`
	NewReportsWeek       int     `json:"new_reports_week"`
	EscalationsMonth     int     `json:"escalations_month"`
	ActiveOmbudspersonen int     `json:"active_ombudspersonen"`
}

// Generate builds the compliance report for the active tenant. Requires
// export permission; the export itself is audited.
func (s *Service) Generate(ctx context.Context) (*Compliance, error) {
	if err := access.Require(ctx, access.ExportData); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	c := &Compliance{TenantID: tenantID, GeneratedAt: now}
	if c.CasesByStatus, err = s.store.CountCasesByStatus(ctx, tenantID); err != nil {
		return nil, err
	}
	if c.ReportsByCategory, err = s.store.CountReportsByCategory(ctx, tenantID); err != nil {
		return nil, err
	}
	if c.OverdueByType, err = s.store.CountOverdueDeadlines(ctx, tenantID, now); err != nil {
		return nil, err
	}
	if c.UpcomingDeadlines, err = s.store.CountUpcomingDeadlines(ctx, tenantID, now, 14*24*time.Hour); err != nil {
		return nil, err
	}
	if c.AvgProcessingDays, err = s.store.AvgProcessingDays(ctx, tenantID); err != nil {
		return nil, err
	}
	if c.ComplianceRate, err = s.store.ComplianceRate(ctx, tenantID); err != nil {
		return nil, err
	}
	if c.AnonymousRatio, err = s.store.AnonymousRatio(ctx, tenantID); err != nil {
		return nil, err
	}
	if c.NewReportsWeek, err = s.store.NewReportsSince(ctx, tenantID, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if c.EscalationsMonth, err = s.store.EscalationsSince(ctx, tenantID, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if c.ActiveOmbudspersonen, err = s.store.ActiveOmbudspersonen(ctx, tenantID); err != nil {
		return nil, err
	}

	actor, _ := reqctx.ActorFrom(ctx)
	meta := reqctx.MetaFrom(ctx)
	s.auditor.Record(ctx, audit.Event{
		Action:       model.AuditDataExported,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: "compliance_report",
		Method:       meta.Method,
		Path:         meta.Path,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})
	return c, nil
}

// AuditExport is the audit trail export plus its integrity verdict.
type AuditExport struct {
	Entries []*model.AuditEntry `json:"entries"`
	// Intact is false when the chain verification found a break.
	Intact bool `json:"intact"`
	// BrokenIndex is the first broken entry in the tenant's full chain,
	// -1 when intact.
	BrokenIndex int `json:"broken_index"`
}

// ExportAudit returns the filtered audit trail. The integrity verdict is
// always computed over the tenant's complete chain, never over the
// filtered or paginated page — a partial list has gaps the chain cannot
// bridge and would report false breaks.
func (s *Service) ExportAudit(ctx context.Context, filter store.AuditFilter) (*AuditExport, error) {
	if err := access.Require(ctx, access.ViewAudit); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListAuditEntries(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	chain, err := s.store.ListAuditChain(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	broken := s.auditor.Verify(chain)

	actor, _ := reqctx.ActorFrom(ctx)
	meta := reqctx.MetaFrom(ctx)
	s.auditor.Record(ctx, audit.Event{
		Action:       model.AuditDataExported,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: "audit_trail",
		Method:       meta.Method,
		Path:         meta.Path,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})
	return &AuditExport{Entries: entries, Intact: broken == -1, BrokenIndex: broken}, nil
}
