package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/model"
)

const deadlineColumns = `id, tenant_id, report_id, case_id, type, due_at, done_at,
	reminder_sent, escalated, created_at`

// InsertDeadline persists a deadline row outside a case mutation.
func (s *Store) InsertDeadline(ctx context.Context, d *model.Deadline) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertDeadlineTx(ctx, tx, d)
	})
}

func insertDeadlineTx(ctx context.Context, tx *sql.Tx, d *model.Deadline) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deadlines (id, tenant_id, report_id, case_id, type, due_at, done_at,
			reminder_sent, escalated, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.TenantID, d.ReportID, nullStr(d.CaseID), d.Type, d.DueAt, nullTime(d.DoneAt),
		d.ReminderSent, d.Escalated, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert deadline: %w", err)
	}
	return nil
}

// ListDeadlinesByCase returns a case's deadlines ordered by due date.
func (s *Store) ListDeadlinesByCase(ctx context.Context, tenantID, caseID string) ([]*model.Deadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		 WHERE tenant_id = $1 AND case_id = $2 ORDER BY due_at`,
		tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}
	return collectDeadlines(rows)
}

// ListDeadlinesByReport returns a report's deadlines ordered by due date.
func (s *Store) ListDeadlinesByReport(ctx context.Context, tenantID, reportID string) ([]*model.Deadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		 WHERE tenant_id = $1 AND report_id = $2 ORDER BY due_at`,
		tenantID, reportID)
	if err != nil {
		return nil, fmt.Errorf("list deadlines: %w", err)
	}
	return collectDeadlines(rows)
}

// SelectOverdueDeadlines returns open, un-escalated deadlines past due for
// one tenant, ordered by due date so the sweep locks rows in a stable order.
func (s *Store) SelectOverdueDeadlines(ctx context.Context, tenantID string, now time.Time) ([]*model.Deadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		 WHERE tenant_id = $1 AND done_at IS NULL AND due_at < $2 AND escalated = false
		 ORDER BY due_at`,
		tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("select overdue deadlines: %w", err)
	}
	return collectDeadlines(rows)
}

// SelectUpcomingDeadlines returns open deadlines due within the lead
// window that have not yet been reminded.
func (s *Store) SelectUpcomingDeadlines(ctx context.Context, tenantID string, now time.Time, lead time.Duration) ([]*model.Deadline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deadlineColumns+` FROM deadlines
		 WHERE tenant_id = $1 AND done_at IS NULL AND reminder_sent = false
		   AND due_at >= $2 AND due_at < $3
		 ORDER BY due_at`,
		tenantID, now, now.Add(lead))
	if err != nil {
		return nil, fmt.Errorf("select upcoming deadlines: %w", err)
	}
	return collectDeadlines(rows)
}

// EscalateDeadline marks one deadline escalated and writes the audit entry
// in the same transaction. Idempotent: an already escalated row is a no-op
// and the audit entry is skipped.
func (s *Store) EscalateDeadline(ctx context.Context, tenantID, deadlineID string, auditEntry *model.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE deadlines SET escalated = true
			WHERE tenant_id = $1 AND id = $2 AND escalated = false AND done_at IS NULL`,
			tenantID, deadlineID)
		if err != nil {
			return fmt.Errorf("escalate deadline: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if auditEntry != nil {
			return insertAuditEntryTx(ctx, tx, auditEntry)
		}
		return nil
	})
}

// MarkReminderSent flags a deadline so retries do not re-notify.
func (s *Store) MarkReminderSent(ctx context.Context, tenantID, deadlineID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deadlines SET reminder_sent = true
		WHERE tenant_id = $1 AND id = $2 AND reminder_sent = false`,
		tenantID, deadlineID)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// SelectExpiredCases returns terminal cases whose deletion date elapsed.
func (s *Store) SelectExpiredCases(ctx context.Context, tenantID string, now time.Time) ([]*model.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases c
		 WHERE c.tenant_id = $1 AND c.status = $2
		   AND EXISTS (
			SELECT 1 FROM reports r
			WHERE r.tenant_id = c.tenant_id AND r.id = c.report_id
			  AND r.loeschung_datum IS NOT NULL AND r.loeschung_datum <= $3
		   )`,
		tenantID, model.CaseAbgeschlossen, now)
	if err != nil {
		return nil, fmt.Errorf("select expired cases: %w", err)
	}
	return collectCases(rows)
}

// PurgeCase hard-deletes a retention-expired case with all children and
// its report in one transaction, then writes the data_deleted audit entry.
func (s *Store) PurgeCase(ctx context.Context, tenantID, caseID, reportID string, auditEntry *model.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		steps := []struct {
			query string
			args  []interface{}
		}{
			{`DELETE FROM case_events WHERE tenant_id = $1 AND case_id = $2`, []interface{}{tenantID, caseID}},
			{`DELETE FROM deadlines WHERE tenant_id = $1 AND report_id = $2`, []interface{}{tenantID, reportID}},
			{`DELETE FROM attachments WHERE tenant_id = $1 AND report_id = $2`, []interface{}{tenantID, reportID}},
			{`DELETE FROM cases WHERE tenant_id = $1 AND id = $2`, []interface{}{tenantID, caseID}},
			{`DELETE FROM reports WHERE tenant_id = $1 AND id = $2`, []interface{}{tenantID, reportID}},
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				return fmt.Errorf("purge case %s: %w", caseID, err)
			}
		}
		if auditEntry != nil {
			return insertAuditEntryTx(ctx, tx, auditEntry)
		}
		return nil
	})
}

func collectDeadlines(rows *sql.Rows) ([]*model.Deadline, error) {
	defer rows.Close()
	var out []*model.Deadline
	for rows.Next() {
		var (
			d      model.Deadline
			caseID sql.NullString
			doneAt sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.ReportID, &caseID, &d.Type, &d.DueAt, &doneAt,
			&d.ReminderSent, &d.Escalated, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		d.CaseID = scanNullStr(caseID)
		d.DoneAt = scanNullTime(doneAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}
