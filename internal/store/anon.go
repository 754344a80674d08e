package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

const anonColumns = `id, tenant_id, receipt_code, aktenzeichen, beschreibung_enc,
	kategorie, status, eingegangen_am, eingangsbestaetigung_frist, rueckmeldung_frist,
	created_at, updated_at`

// CreateAnonSubmission persists an anonymous submission and its audit
// entry in one transaction.
func (s *Store) CreateAnonSubmission(ctx context.Context, a *model.AnonSubmission, auditEntry *model.AuditEntry) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO anon_submissions (id, tenant_id, receipt_code, aktenzeichen,
				beschreibung_enc, kategorie, status,
				eingegangen_am, eingangsbestaetigung_frist, rueckmeldung_frist,
				created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			a.ID, a.TenantID, a.ReceiptCode, a.Aktenzeichen,
			a.BeschreibungEnc, a.Kategorie, a.Status,
			a.EingegangenAm, a.EingangsbestaetigungFrist, a.RueckmeldungFrist,
			a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert anon submission: %w", err)
		}
		if auditEntry != nil {
			return insertAuditEntryTx(ctx, tx, auditEntry)
		}
		return nil
	})
}

// GetAnonSubmissionByReceipt performs the single indexed receipt lookup.
// The code must already be normalized.
func (s *Store) GetAnonSubmissionByReceipt(ctx context.Context, receiptCode string) (*model.AnonSubmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+anonColumns+` FROM anon_submissions WHERE receipt_code = $1`,
		receiptCode)

	var a model.AnonSubmission
	err := row.Scan(&a.ID, &a.TenantID, &a.ReceiptCode, &a.Aktenzeichen, &a.BeschreibungEnc,
		&a.Kategorie, &a.Status, &a.EingegangenAm, &a.EingangsbestaetigungFrist, &a.RueckmeldungFrist,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		// Indistinguishable from an invalid code.
		return nil, errs.NotFound("Kein Vorgang zu diesem Zugangscode gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("get anon submission: %w", err)
	}
	return &a, nil
}

// NextAnonSequence atomically reserves the next per-tenant, per-year
// Aktenzeichen number.
func (s *Store) NextAnonSequence(ctx context.Context, tenantID string, year int) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO anon_sequences (tenant_id, year, seq) VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year) DO UPDATE SET seq = anon_sequences.seq + 1
		RETURNING seq`,
		tenantID, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next anon sequence: %w", err)
	}
	return seq, nil
}

// AddAnonMessage appends a message and bumps the submission's updated_at —
// the only externally visible signal of activity.
func (s *Store) AddAnonMessage(ctx context.Context, m *model.AnonMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO anon_messages (id, tenant_id, submission_id, direction, text_enc, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			m.ID, m.TenantID, m.SubmissionID, m.Direction, m.TextEnc, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert anon message: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE anon_submissions SET updated_at = $3 WHERE tenant_id = $1 AND id = $2`,
			m.TenantID, m.SubmissionID, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("touch anon submission: %w", err)
		}
		return nil
	})
}

// ListAnonMessages returns a submission's messages in order.
func (s *Store) ListAnonMessages(ctx context.Context, tenantID, submissionID string) ([]*model.AnonMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, submission_id, direction, text_enc, created_at
		FROM anon_messages
		WHERE tenant_id = $1 AND submission_id = $2
		ORDER BY created_at, id`,
		tenantID, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list anon messages: %w", err)
	}
	defer rows.Close()

	var out []*model.AnonMessage
	for rows.Next() {
		var m model.AnonMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.SubmissionID, &m.Direction, &m.TextEnc, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anon message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
