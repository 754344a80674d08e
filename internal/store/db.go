// Package store is the Postgres persistence layer. Every query carries the
// tenant predicate; multi-write operations run inside a single transaction
// with row locking on the case row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the shared connection pool.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to Postgres and verifies connectivity.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

// New wraps an existing pool (used by tests against a prepared database).
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// Close shuts the pool down.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database liveness for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Printf("❌ Rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// nullTime converts a *time.Time to a driver-friendly value.
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// scanNullTime converts a sql.NullTime back to *time.Time.
func scanNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullStr converts an empty string to NULL.
func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanNullStr converts a sql.NullString back to a plain string.
func scanNullStr(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
