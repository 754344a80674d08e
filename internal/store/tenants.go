package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
)

const tenantColumns = `id, slug, name, organization_size, contact_email,
	ombudsperson_name, ombudsperson_email, config, active, created_at, updated_at`

// CreateTenant inserts a tenant. A duplicate slug is a Conflict.
func (s *Store) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, slug, name, organization_size, contact_email,
			ombudsperson_name, ombudsperson_email, config, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Slug, t.Name, t.OrgSize, nullStr(t.ContactEmail),
		nullStr(t.OmbudspersonName), nullStr(t.OmbudspersonMail), cfg, t.Active, t.CreatedAt, t.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errs.Conflict("Ein Mandant mit diesem Kürzel existiert bereits.")
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// GetTenant loads a tenant by id.
func (s *Store) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID)
	return scanTenant(row)
}

// GetTenantBySlug loads a tenant by its unique slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

// ListTenants returns all tenants, newest first.
func (s *Store) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTenant updates the mutable tenant fields.
func (s *Store) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	cfg, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, organization_size = $3, contact_email = $4,
			ombudsperson_name = $5, ombudsperson_email = $6, config = $7,
			active = $8, updated_at = $9
		WHERE id = $1`,
		t.ID, t.Name, t.OrgSize, nullStr(t.ContactEmail),
		nullStr(t.OmbudspersonName), nullStr(t.OmbudspersonMail), cfg,
		t.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Mandant nicht gefunden.")
	}
	return nil
}

// DeleteTenant removes a tenant; child rows cascade via foreign keys.
func (s *Store) DeleteTenant(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Mandant nicht gefunden.")
	}
	return nil
}

// GetTenantSettings implements tenantcfg.Loader.
func (s *Store) GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM tenants WHERE id = $1`, tenantID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant settings: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var settings model.TenantSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("unmarshal tenant settings: %w", err)
	}
	return &settings, nil
}

// SaveTenantSettings implements tenantcfg.Loader.
func (s *Store) SaveTenantSettings(ctx context.Context, tenantID string, settings model.TenantSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal tenant settings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET config = $2, updated_at = $3 WHERE id = $1`,
		tenantID, raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save tenant settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Mandant nicht gefunden.")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*model.Tenant, error) {
	var (
		t        model.Tenant
		contact  sql.NullString
		ombName  sql.NullString
		ombMail  sql.NullString
		cfg      []byte
	)
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.OrgSize, &contact,
		&ombName, &ombMail, &cfg, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("Mandant nicht gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	t.ContactEmail = scanNullStr(contact)
	t.OmbudspersonName = scanNullStr(ombName)
	t.OmbudspersonMail = scanNullStr(ombMail)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &t.Config); err != nil {
			return nil, fmt.Errorf("unmarshal tenant config: %w", err)
		}
	}
	return &t, nil
}
