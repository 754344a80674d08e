package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

const caseColumns = `id, tenant_id, report_id, case_number, status, previous_status,
	assignee_id, created_by, severity, eskaliert, eskaliert_am,
	forwarded_to_ombudsperson_at, forwarded_to_ombudsperson_by,
	ombudsperson_recommendation, ombudsperson_reviewed_at, ombudsperson_reviewed_by,
	ombudsperson_notes_enc, acknowledged_at, resolved_at, closed_at, abschlussgrund,
	created_at, updated_at`

// CaseChange is one atomic mutation of a case: the updated row plus its
// history events, audit entries, deadline effects and report updates. The
// store applies it in a single transaction under a row lock; a status that
// moved underneath the caller is a Conflict.
type CaseChange struct {
	TenantID       string
	Case           *model.Case
	ExpectedStatus model.CaseStatus

	Events       []*model.CaseEvent
	AuditEntries []*model.AuditEntry

	CompleteDeadlines []model.DeadlineType
	DeadlineDoneAt    time.Time
	NewDeadlines      []*model.Deadline

	ReportStatus     *model.ReportStatus
	ReportAckAt      *time.Time
	ReportFeedbackAt *time.Time
	ReportArchivalAt *time.Time
	ReportDeletionAt *time.Time
}

// CreateCase opens a case around a report, attaches the report's open
// deadlines, flips the report status, and writes history and audit — all
// in one transaction. A second case for the same report is a Conflict.
func (s *Store) CreateCase(ctx context.Context, c *model.Case, event *model.CaseEvent, auditEntry *model.AuditEntry, reportStatus model.ReportStatus) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cases (id, tenant_id, report_id, case_number, status, previous_status,
				assignee_id, created_by, severity, eskaliert, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			c.ID, c.TenantID, c.ReportID, c.CaseNumber, c.Status, caseStatusPtr(c.PreviousStatus),
			nullStr(c.AssigneeID), nullStr(c.CreatedBy), c.Severity, c.Eskaliert, c.CreatedAt, c.UpdatedAt)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errs.Conflict("Für diesen Hinweis existiert bereits ein Fall.")
		}
		if err != nil {
			return fmt.Errorf("insert case: %w", err)
		}

		// Attach the report's open deadlines to the new case.
		if _, err := tx.ExecContext(ctx, `
			UPDATE deadlines SET case_id = $3
			WHERE tenant_id = $1 AND report_id = $2 AND done_at IS NULL`,
			c.TenantID, c.ReportID, c.ID); err != nil {
			return fmt.Errorf("attach deadlines: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE reports SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
			c.TenantID, c.ReportID, reportStatus, now); err != nil {
			return fmt.Errorf("update report status: %w", err)
		}

		if event != nil {
			if err := insertCaseEventTx(ctx, tx, event); err != nil {
				return err
			}
		}
		if auditEntry != nil {
			if err := insertAuditEntryTx(ctx, tx, auditEntry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyCaseChange applies one atomic case mutation under FOR UPDATE.
func (s *Store) ApplyCaseChange(ctx context.Context, change *CaseChange) error {
	c := change.Case
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current model.CaseStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM cases WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
			change.TenantID, c.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return errs.NotFound("Fall nicht gefunden.")
		}
		if err != nil {
			return fmt.Errorf("lock case row: %w", err)
		}
		if current != change.ExpectedStatus {
			return errs.Conflict("Der Fall wurde zwischenzeitlich geändert.").
				WithMeta("current_status", string(current))
		}

		c.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE cases SET status = $3, previous_status = $4, assignee_id = $5,
				severity = $6, eskaliert = $7, eskaliert_am = $8,
				forwarded_to_ombudsperson_at = $9, forwarded_to_ombudsperson_by = $10,
				ombudsperson_recommendation = $11, ombudsperson_reviewed_at = $12,
				ombudsperson_reviewed_by = $13, ombudsperson_notes_enc = $14,
				acknowledged_at = $15, resolved_at = $16, closed_at = $17,
				abschlussgrund = $18, updated_at = $19
			WHERE tenant_id = $1 AND id = $2`,
			change.TenantID, c.ID, c.Status, caseStatusPtr(c.PreviousStatus), nullStr(c.AssigneeID),
			c.Severity, c.Eskaliert, nullTime(c.EskaliertAm),
			nullTime(c.ForwardedToOmbudspersonAt), nullStr(c.ForwardedToOmbudspersonBy),
			nullStr(string(c.OmbudspersonRecommendation)), nullTime(c.OmbudspersonReviewedAt),
			nullStr(c.OmbudspersonReviewedBy), nullStr(c.OmbudspersonNotesEnc),
			nullTime(c.AcknowledgedAt), nullTime(c.ResolvedAt), nullTime(c.ClosedAt),
			nullStr(c.Abschlussgrund), c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update case: %w", err)
		}

		for _, ev := range change.Events {
			if err := insertCaseEventTx(ctx, tx, ev); err != nil {
				return err
			}
		}
		for _, ae := range change.AuditEntries {
			if err := insertAuditEntryTx(ctx, tx, ae); err != nil {
				return err
			}
		}

		for _, typ := range change.CompleteDeadlines {
			if _, err := tx.ExecContext(ctx, `
				UPDATE deadlines SET done_at = $4
				WHERE tenant_id = $1 AND report_id = $2 AND type = $3 AND done_at IS NULL`,
				change.TenantID, c.ReportID, typ, change.DeadlineDoneAt); err != nil {
				return fmt.Errorf("complete deadline %s: %w", typ, err)
			}
		}
		for _, d := range change.NewDeadlines {
			if err := insertDeadlineTx(ctx, tx, d); err != nil {
				return err
			}
		}

		if change.ReportStatus != nil || change.ReportAckAt != nil || change.ReportFeedbackAt != nil ||
			change.ReportArchivalAt != nil || change.ReportDeletionAt != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE reports SET
					status = COALESCE($3, status),
					eingangsbestaetigung_am = COALESCE($4, eingangsbestaetigung_am),
					rueckmeldung_am = COALESCE($5, rueckmeldung_am),
					archivierung_datum = COALESCE($6, archivierung_datum),
					loeschung_datum = COALESCE($7, loeschung_datum),
					updated_at = $8
				WHERE tenant_id = $1 AND id = $2`,
				change.TenantID, c.ReportID, reportStatusPtr(change.ReportStatus),
				nullTime(change.ReportAckAt), nullTime(change.ReportFeedbackAt),
				nullTime(change.ReportArchivalAt), nullTime(change.ReportDeletionAt),
				c.UpdatedAt); err != nil {
				return fmt.Errorf("update report: %w", err)
			}
		}
		return nil
	})
}

// GetCase loads a case within a tenant.
func (s *Store) GetCase(ctx context.Context, tenantID, caseID string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE tenant_id = $1 AND id = $2`,
		tenantID, caseID)
	return scanCase(row)
}

// GetCaseByReportID loads the 1:1 case of a report.
func (s *Store) GetCaseByReportID(ctx context.Context, tenantID, reportID string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE tenant_id = $1 AND report_id = $2`,
		tenantID, reportID)
	return scanCase(row)
}

// ListCases returns a tenant's cases, newest first.
func (s *Store) ListCases(ctx context.Context, tenantID string, limit, offset int) ([]*model.Case, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases
		 WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return collectCases(rows)
}

// ListForwardedCases returns only cases handed to the ombudsperson.
func (s *Store) ListForwardedCases(ctx context.Context, tenantID string) ([]*model.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases
		 WHERE tenant_id = $1 AND forwarded_to_ombudsperson_at IS NOT NULL
		 ORDER BY forwarded_to_ombudsperson_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list forwarded cases: %w", err)
	}
	return collectCases(rows)
}

// NextCaseSequence atomically reserves the next per-tenant, per-year case
// number.
func (s *Store) NextCaseSequence(ctx context.Context, tenantID string, year int) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO case_sequences (tenant_id, year, seq) VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year) DO UPDATE SET seq = case_sequences.seq + 1
		RETURNING seq`,
		tenantID, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next case sequence: %w", err)
	}
	return seq, nil
}

// ListCaseEvents returns a case's history in insertion order.
func (s *Store) ListCaseEvents(ctx context.Context, tenantID, caseID string) ([]*model.CaseEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, case_id, event_type, old_status, new_status, actor_id,
			description, description_enc, metadata, internal, visible_to_reporter, created_at
		FROM case_events
		WHERE tenant_id = $1 AND case_id = $2
		ORDER BY created_at, id`,
		tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	defer rows.Close()

	var out []*model.CaseEvent
	for rows.Next() {
		var (
			ev                   model.CaseEvent
			oldSt, newSt         sql.NullString
			actor, desc, descEnc sql.NullString
			meta                 []byte
		)
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.CaseID, &ev.EventType, &oldSt, &newSt,
			&actor, &desc, &descEnc, &meta, &ev.Internal, &ev.VisibleToReporter, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan case event: %w", err)
		}
		if oldSt.Valid {
			st := model.CaseStatus(oldSt.String)
			ev.OldStatus = &st
		}
		if newSt.Valid {
			st := model.CaseStatus(newSt.String)
			ev.NewStatus = &st
		}
		ev.ActorID = scanNullStr(actor)
		ev.Description = scanNullStr(desc)
		ev.DescriptionEnc = scanNullStr(descEnc)
		ev.Metadata = meta
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// InsertCaseEvent appends a single history entry outside a case mutation
// (e.g. a free-standing note).
func (s *Store) InsertCaseEvent(ctx context.Context, ev *model.CaseEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertCaseEventTx(ctx, tx, ev)
	})
}

func insertCaseEventTx(ctx context.Context, tx *sql.Tx, ev *model.CaseEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO case_events (id, tenant_id, case_id, event_type, old_status, new_status,
			actor_id, description, description_enc, metadata, internal, visible_to_reporter, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ev.ID, ev.TenantID, ev.CaseID, ev.EventType, caseStatusPtr(ev.OldStatus), caseStatusPtr(ev.NewStatus),
		nullStr(ev.ActorID), nullStr(ev.Description), nullStr(ev.DescriptionEnc),
		nullBytes(ev.Metadata), ev.Internal, ev.VisibleToReporter, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert case event: %w", err)
	}
	return nil
}

func collectCases(rows *sql.Rows) ([]*model.Case, error) {
	defer rows.Close()
	var out []*model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCase(row rowScanner) (*model.Case, error) {
	var (
		c                               model.Case
		prev, assignee, createdBy       sql.NullString
		eskAm                           sql.NullTime
		fwdAt                           sql.NullTime
		fwdBy, rec, revBy, notes, grund sql.NullString
		revAt, ackAt, resAt, closedAt   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.ReportID, &c.CaseNumber, &c.Status, &prev,
		&assignee, &createdBy, &c.Severity, &c.Eskaliert, &eskAm,
		&fwdAt, &fwdBy, &rec, &revAt, &revBy, &notes,
		&ackAt, &resAt, &closedAt, &grund, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("Fall nicht gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("scan case: %w", err)
	}
	if prev.Valid {
		st := model.CaseStatus(prev.String)
		c.PreviousStatus = &st
	}
	c.AssigneeID = scanNullStr(assignee)
	c.CreatedBy = scanNullStr(createdBy)
	c.EskaliertAm = scanNullTime(eskAm)
	c.ForwardedToOmbudspersonAt = scanNullTime(fwdAt)
	c.ForwardedToOmbudspersonBy = scanNullStr(fwdBy)
	c.OmbudspersonRecommendation = model.Recommendation(scanNullStr(rec))
	c.OmbudspersonReviewedAt = scanNullTime(revAt)
	c.OmbudspersonReviewedBy = scanNullStr(revBy)
	c.OmbudspersonNotesEnc = scanNullStr(notes)
	c.AcknowledgedAt = scanNullTime(ackAt)
	c.ResolvedAt = scanNullTime(resAt)
	c.ClosedAt = scanNullTime(closedAt)
	c.Abschlussgrund = scanNullStr(grund)
	return &c, nil
}

func caseStatusPtr(s *model.CaseStatus) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func reportStatusPtr(s *model.ReportStatus) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
