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

const userColumns = `id, tenant_id, email, password_hash, display_name, role,
	mfa_enabled, failed_logins, locked_until, active, last_login_at, created_at, updated_at`

// CreateUser inserts a user. Email uniqueness is per tenant.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, email, password_hash, display_name, role,
			mfa_enabled, failed_logins, locked_until, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, nullStr(u.DisplayName), u.Role,
		u.MFAEnabled, u.FailedLogins, nullTime(u.LockedUntil), u.Active, u.CreatedAt, u.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errs.Conflict("Ein Benutzer mit dieser E-Mail-Adresse existiert bereits.")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser loads a user within a tenant.
func (s *Store) GetUser(ctx context.Context, tenantID, userID string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`,
		tenantID, userID)
	return scanUser(row)
}

// GetUserByEmail loads a user by its tenant-scoped email.
func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email = $2`,
		tenantID, email)
	return scanUser(row)
}

// ListUsers returns all users of a tenant.
func (s *Store) ListUsers(ctx context.Context, tenantID string) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser updates the mutable user fields.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $3, password_hash = $4, display_name = $5, role = $6,
			mfa_enabled = $7, failed_logins = $8, locked_until = $9, active = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2`,
		u.TenantID, u.ID, u.Email, u.PasswordHash, nullStr(u.DisplayName), u.Role,
		u.MFAEnabled, u.FailedLogins, nullTime(u.LockedUntil), u.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Benutzer nicht gefunden.")
	}
	return nil
}

// DeleteUser removes a user within a tenant.
func (s *Store) DeleteUser(ctx context.Context, tenantID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("Benutzer nicht gefunden.")
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		displayName sql.NullString
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &displayName, &u.Role,
		&u.MFAEnabled, &u.FailedLogins, &lockedUntil, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("Benutzer nicht gefunden.")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.DisplayName = scanNullStr(displayName)
	u.LockedUntil = scanNullTime(lockedUntil)
	u.LastLoginAt = scanNullTime(lastLogin)
	return &u, nil
}
