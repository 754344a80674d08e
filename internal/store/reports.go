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

const reportColumns = `id, tenant_id, reference_code, access_code,
	titel_enc, beschreibung_enc, melder_name_enc, melder_email_enc,
	melder_telefon_enc, betroffene_personen_enc,
	kategorie, prioritaet, status, channel, language, ip_hash, is_anonymous,
	abteilung_betroffen, zeitraum,
	eingegangen_am, eingangsbestaetigung_frist, rueckmeldung_frist,
	eingangsbestaetigung_am, rueckmeldung_am, archivierung_datum, loeschung_datum,
	created_at, updated_at`

// CreateSubmission persists a new report, its initial deadlines and the
// submission audit entry in one transaction.
func (s *Store) CreateSubmission(ctx context.Context, r *model.Report, deadlines []*model.Deadline, auditEntry *model.AuditEntry) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reports (id, tenant_id, reference_code, access_code,
				titel_enc, beschreibung_enc, melder_name_enc, melder_email_enc,
				melder_telefon_enc, betroffene_personen_enc,
				kategorie, prioritaet, status, channel, language, ip_hash, is_anonymous,
				abteilung_betroffen, zeitraum,
				eingegangen_am, eingangsbestaetigung_frist, rueckmeldung_frist,
				created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
			r.ID, r.TenantID, r.ReferenceCode, r.AccessCode,
			r.TitelEnc, r.BeschreibungEnc, nullStr(r.MelderNameEnc), nullStr(r.MelderEmailEnc),
			nullStr(r.MelderTelefonEnc), nullStr(r.BetroffenePersEnc),
			r.Kategorie, r.Prioritaet, r.Status, r.Channel, r.Language, nullStr(r.IPHash), r.IsAnonymous,
			nullStr(r.AbteilungBetroffen), nullStr(r.Zeitraum),
			r.EingegangenAm, r.EingangsbestaetigungFrist, r.RueckmeldungFrist,
			r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		for _, d := range deadlines {
			if err := insertDeadlineTx(ctx, tx, d); err != nil {
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

// GetReport loads a report within a tenant.
func (s *Store) GetReport(ctx context.Context, tenantID, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE tenant_id = $1 AND id = $2`,
		tenantID, reportID)
	return scanReport(row)
}

// GetReportByAccessCode performs the anonymous status lookup. The access
// code is globally unique; tenant scope follows from the matched row.
func (s *Store) GetReportByAccessCode(ctx context.Context, accessCode string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE access_code = $1`, accessCode)
	return scanReport(row)
}

// ListReports returns a tenant's reports, newest first.
func (s *Store) ListReports(ctx context.Context, tenantID string, limit, offset int) ([]*model.Report, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE tenant_id = $1 ORDER BY eingegangen_am DESC LIMIT $2 OFFSET $3`,
		tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReportStatus flips the statutory lifecycle status of a report.
func (s *Store) UpdateReportStatus(ctx context.Context, tenantID, reportID string, status model.ReportStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		tenantID, reportID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Hinweis nicht gefunden.")
	}
	return nil
}

// SetReportAcknowledged stamps the Eingangsbestätigung timestamp.
func (s *Store) SetReportAcknowledged(ctx context.Context, tenantID, reportID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET eingangsbestaetigung_am = $3, updated_at = $3
		 WHERE tenant_id = $1 AND id = $2`,
		tenantID, reportID, at)
	if err != nil {
		return fmt.Errorf("set report acknowledged: %w", err)
	}
	return nil
}

func scanReport(row rowScanner) (*model.Report, error) {
	var (
		r                                                    model.Report
		melderName, melderEmail, melderTel, betroffene       sql.NullString
		ipHash, abteilung, zeitraum                          sql.NullString
		ackAm, rueckAm, archiv, loeschung                    sql.NullTime
	)
	err := row.Scan(&r.ID, &r.TenantID, &r.ReferenceCode, &r.AccessCode,
		&r.TitelEnc, &r.BeschreibungEnc, &melderName, &melderEmail,
		&melderTel, &betroffene,
		&r.Kategorie, &r.Prioritaet, &r.Status, &r.Channel, &r.Language, &ipHash, &r.IsAnonymous,
		&abteilung, &zeitraum,
		&r.EingegangenAm, &r.EingangsbestaetigungFrist, &r.RueckmeldungFrist,
		&ackAm, &rueckAm, &archiv, &loeschung,
		&r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("Hinweis nicht gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	r.MelderNameEnc = scanNullStr(melderName)
	r.MelderEmailEnc = scanNullStr(melderEmail)
	r.MelderTelefonEnc = scanNullStr(melderTel)
	r.BetroffenePersEnc = scanNullStr(betroffene)
	r.IPHash = scanNullStr(ipHash)
	r.AbteilungBetroffen = scanNullStr(abteilung)
	r.Zeitraum = scanNullStr(zeitraum)
	r.EingangsbestaetigungAm = scanNullTime(ackAm)
	r.RueckmeldungAm = scanNullTime(rueckAm)
	r.ArchivierungDatum = scanNullTime(archiv)
	r.LoeschungDatum = scanNullTime(loeschung)
	return &r, nil
}
