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

const attachmentColumns = `id, tenant_id, report_id, filename, stored_filename,
	mime_type, size_bytes, sha256_plain, sha256_cipher, nonce, tag, scan_result,
	uploaded_by, created_at`

// InsertAttachment persists attachment metadata.
func (s *Store) InsertAttachment(ctx context.Context, a *model.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, tenant_id, report_id, filename, stored_filename,
			mime_type, size_bytes, sha256_plain, sha256_cipher, nonce, tag, scan_result,
			uploaded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.TenantID, a.ReportID, a.Filename, a.StoredFilename,
		a.MimeType, a.SizeBytes, a.SHA256Plain, a.SHA256Cipher, a.Nonce, a.Tag,
		nullStr(a.ScanResult), nullStr(a.UploadedBy), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// GetAttachment loads one attachment within a tenant.
func (s *Store) GetAttachment(ctx context.Context, tenantID, attachmentID string) (*model.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE tenant_id = $1 AND id = $2`,
		tenantID, attachmentID)
	return scanAttachment(row)
}

// ListAttachmentsByReport returns a report's attachment metadata.
func (s *Store) ListAttachmentsByReport(ctx context.Context, tenantID, reportID string) ([]*model.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE tenant_id = $1 AND report_id = $2 ORDER BY created_at`,
		tenantID, reportID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []*model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttachment removes attachment metadata.
func (s *Store) DeleteAttachment(ctx context.Context, tenantID, attachmentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM attachments WHERE tenant_id = $1 AND id = $2`, tenantID, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Anhang nicht gefunden.")
	}
	return nil
}

func scanAttachment(row rowScanner) (*model.Attachment, error) {
	var (
		a                    model.Attachment
		scanRes, uploadedBy  sql.NullString
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.ReportID, &a.Filename, &a.StoredFilename,
		&a.MimeType, &a.SizeBytes, &a.SHA256Plain, &a.SHA256Cipher, &a.Nonce, &a.Tag,
		&scanRes, &uploadedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("Anhang nicht gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	a.ScanResult = scanNullStr(scanRes)
	a.UploadedBy = scanNullStr(uploadedBy)
	return &a, nil
}
