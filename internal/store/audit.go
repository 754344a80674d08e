package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aitema/hinweis-backend/internal/model"
)

// InsertAuditEntry implements audit.Store. Insert-only; the table has no
// update or delete path in this layer.
func (s *Store) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertAuditEntryTx(ctx, tx, e)
	})
}

func insertAuditEntryTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, timestamp, action, severity, tenant_id, user_id,
			resource_type, resource_id, changes, method, path, user_agent, ip_address,
			success, integrity, prev_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		e.ID, e.Timestamp, e.Action, e.Severity, nullStr(e.TenantID), nullStr(e.UserID),
		nullStr(e.ResourceType), nullStr(e.ResourceID), nullBytes(e.Changes),
		nullStr(e.Method), nullStr(e.Path), nullStr(e.UserAgent), nullStr(e.IPAddress),
		e.Success, e.Integrity, nullStr(e.PrevHash))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// LastAuditIntegrity implements audit.Store. It returns the integrity hash
// of the tenant's newest entry, or "" for a tenant without entries, so the
// chain continues across restarts.
func (s *Store) LastAuditIntegrity(ctx context.Context, tenantID string) (string, error) {
	var integrity string
	err := s.db.QueryRowContext(ctx, `
		SELECT integrity FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, tenantID).Scan(&integrity)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last audit integrity: %w", err)
	}
	return integrity, nil
}

// AuditFilter narrows the compliance export query.
type AuditFilter struct {
	Action model.AuditAction
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ListAuditEntries returns a tenant's audit trail, oldest first, for chain
// verification and compliance export. Indexed by (tenant_id, timestamp).
func (s *Store) ListAuditEntries(ctx context.Context, tenantID string, f AuditFilter) ([]*model.AuditEntry, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	query := `
		SELECT id, timestamp, action, severity, tenant_id, user_id,
			resource_type, resource_id, changes, method, path, user_agent, ip_address,
			success, integrity, prev_hash
		FROM audit_entries
		WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND timestamp < $%d", len(args))
	}

	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY timestamp, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]*model.AuditEntry, error) {
	var out []*model.AuditEntry
	for rows.Next() {
		var (
			e                                        model.AuditEntry
			tenant, user, resType, resID             sql.NullString
			method, path, userAgent, ip, prevHash    sql.NullString
			changes                                  []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.Severity, &tenant, &user,
			&resType, &resID, &changes, &method, &path, &userAgent, &ip,
			&e.Success, &e.Integrity, &prevHash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.TenantID = scanNullStr(tenant)
		e.UserID = scanNullStr(user)
		e.ResourceType = scanNullStr(resType)
		e.ResourceID = scanNullStr(resID)
		e.Changes = changes
		e.Method = scanNullStr(method)
		e.Path = scanNullStr(path)
		e.UserAgent = scanNullStr(userAgent)
		e.IPAddress = scanNullStr(ip)
		e.PrevHash = scanNullStr(prevHash)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListAuditChain returns a tenant's complete audit trail, oldest first and
// without pagination, for integrity verification. A paginated or filtered
// slice cannot be verified against the chain.
func (s *Store) ListAuditChain(ctx context.Context, tenantID string) ([]*model.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, action, severity, tenant_id, user_id,
			resource_type, resource_id, changes, method, path, user_agent, ip_address,
			success, integrity, prev_hash
		FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY timestamp, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list audit chain: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// PurgeExpiredAuditEntries removes entries past the 3-year retention.
func (s *Store) PurgeExpiredAuditEntries(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_entries WHERE tenant_id = $1 AND timestamp < $2`,
		tenantID, before)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
