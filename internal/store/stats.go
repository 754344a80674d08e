package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aitema/hinweis-backend/internal/model"
)

// Aggregation queries feeding the metrics exporter and the compliance
// reporter. All are per-tenant; there is no cross-tenant analytics path.

// CountCasesByStatus returns case counts grouped by status.
func (s *Store) CountCasesByStatus(ctx context.Context, tenantID string) (map[model.CaseStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM cases WHERE tenant_id = $1 GROUP BY status`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count cases by status: %w", err)
	}
	defer rows.Close()

	out := make(map[model.CaseStatus]int)
	for rows.Next() {
		var (
			status model.CaseStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountReportsByCategory returns report counts grouped by category.
func (s *Store) CountReportsByCategory(ctx context.Context, tenantID string) (map[model.Category]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kategorie, COUNT(*) FROM reports WHERE tenant_id = $1 GROUP BY kategorie`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count reports by category: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Category]int)
	for rows.Next() {
		var (
			cat model.Category
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out[cat] = n
	}
	return out, rows.Err()
}

// CountOverdueDeadlines returns overdue open deadlines grouped by type.
func (s *Store) CountOverdueDeadlines(ctx context.Context, tenantID string, now time.Time) (map[model.DeadlineType]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM deadlines
		WHERE tenant_id = $1 AND done_at IS NULL AND due_at < $2
		GROUP BY type`,
		tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("count overdue deadlines: %w", err)
	}
	defer rows.Close()

	out := make(map[model.DeadlineType]int)
	for rows.Next() {
		var (
			typ model.DeadlineType
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan overdue count: %w", err)
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// CountUpcomingDeadlines returns open deadlines due within the window.
func (s *Store) CountUpcomingDeadlines(ctx context.Context, tenantID string, now time.Time, window time.Duration) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM deadlines
		WHERE tenant_id = $1 AND done_at IS NULL AND due_at >= $2 AND due_at < $3`,
		tenantID, now, now.Add(window)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count upcoming deadlines: %w", err)
	}
	return n, nil
}

// AvgProcessingDays returns the mean days from intake to closure.
func (s *Store) AvgProcessingDays(ctx context.Context, tenantID string) (float64, error) {
	var avg float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (c.closed_at - c.created_at)) / 86400.0), 0)
		FROM cases c
		WHERE c.tenant_id = $1 AND c.status = $2 AND c.closed_at IS NOT NULL`,
		tenantID, model.CaseAbgeschlossen).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("avg processing days: %w", err)
	}
	return avg, nil
}

// ComplianceRate returns the percentage of closed cases resolved within
// the feedback deadline. 100 when nothing has closed yet.
func (s *Store) ComplianceRate(ctx context.Context, tenantID string) (float64, error) {
	var rate float64
	err := s.db.QueryRowContext(ctx, `
		SELECT CASE WHEN COUNT(*) = 0 THEN 100.0
			ELSE 100.0 * SUM(CASE WHEN c.resolved_at IS NOT NULL AND c.resolved_at <= r.rueckmeldung_frist
				THEN 1 ELSE 0 END) / COUNT(*)
		END
		FROM cases c
		JOIN reports r ON r.tenant_id = c.tenant_id AND r.id = c.report_id
		WHERE c.tenant_id = $1 AND c.status = $2`,
		tenantID, model.CaseAbgeschlossen).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("compliance rate: %w", err)
	}
	return rate, nil
}

// AnonymousRatio returns the percentage of anonymous reports.
func (s *Store) AnonymousRatio(ctx context.Context, tenantID string) (float64, error) {
	var ratio float64
	err := s.db.QueryRowContext(ctx, `
		SELECT CASE WHEN COUNT(*) = 0 THEN 0.0
			ELSE 100.0 * SUM(CASE WHEN is_anonymous THEN 1 ELSE 0 END) / COUNT(*)
		END
		FROM reports WHERE tenant_id = $1`,
		tenantID).Scan(&ratio)
	if err != nil {
		return 0, fmt.Errorf("anonymous ratio: %w", err)
	}
	return ratio, nil
}

// NewReportsSince counts reports received since the cutoff.
func (s *Store) NewReportsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE tenant_id = $1 AND eingegangen_am >= $2`,
		tenantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("new reports since: %w", err)
	}
	return n, nil
}

// EscalationsSince counts cases escalated since the cutoff.
func (s *Store) EscalationsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cases
		WHERE tenant_id = $1 AND eskaliert = true AND eskaliert_am >= $2`,
		tenantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("escalations since: %w", err)
	}
	return n, nil
}

// ActiveOmbudspersonen counts active users in the ombudsperson role.
func (s *Store) ActiveOmbudspersonen(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE tenant_id = $1 AND role = $2 AND active = true`,
		tenantID, model.RoleOmbudsperson).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active ombudspersonen: %w", err)
	}
	return n, nil
}

// ActiveTenantIDs returns the ids of all active tenants, for the sweep and
// the metrics refresh.
func (s *Store) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("active tenant ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
