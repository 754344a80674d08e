// Package audit writes the append-only, tamper-evident audit log.
//
// Every entry stores integrity = HMAC-SHA256(key, prev_hash ‖ canonical
// payload), linking entries in insertion order per tenant. The chain head
// is seeded from the last persisted entry of the tenant, so chains survive
// process restarts. Verification recomputes one tenant's chain. The storage
// layer exposes no update or delete path for audit rows.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/model"
)

// Store persists audit entries. Insert-only; LastAuditIntegrity seeds the
// per-tenant chain head after a restart.
type Store interface {
	InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	LastAuditIntegrity(ctx context.Context, tenantID string) (string, error)
}

// Event is the caller-facing description of one auditable action.
type Event struct {
	Action       model.AuditAction
	TenantID     string
	UserID       string
	ResourceType string
	ResourceID   string
	Changes      interface{} // old/new diff, marshalled to JSON
	Method       string
	Path         string
	UserAgent    string
	IPAddress    string
	Success      bool
}

// Logger computes integrity hashes and appends entries. One chain per
// tenant; entries of different tenants never link to each other.
type Logger struct {
	mu      sync.Mutex
	hmacKey []byte
	heads   map[string]string // tenant -> integrity of the last issued entry
	seeded  map[string]bool
	store   Store
	logger  *log.Logger
}

// NewLogger creates an audit logger. The HMAC key comes from
// AUDIT_HMAC_KEY and never leaves this package.
func NewLogger(hmacKey string, store Store) (*Logger, error) {
	if len(hmacKey) < 32 {
		return nil, fmt.Errorf("audit hmac key must be at least 32 characters, got %d", len(hmacKey))
	}
	return &Logger{
		hmacKey: []byte(hmacKey),
		heads:   make(map[string]string),
		seeded:  make(map[string]bool),
		store:   store,
		logger:  log.New(log.Writer(), "[AUDIT] ", log.LstdFlags),
	}, nil
}

// Build constructs a chained entry without persisting it. Callers that
// write inside a database transaction insert the returned entry themselves
// and call Discard when the transaction aborts.
func (l *Logger) Build(ctx context.Context, ev Event) *model.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.head(ctx, ev.TenantID)
	entry := &model.AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Action:       ev.Action,
		Severity:     severityFor(ev),
		TenantID:     ev.TenantID,
		UserID:       ev.UserID,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Method:       ev.Method,
		Path:         ev.Path,
		UserAgent:    ev.UserAgent,
		IPAddress:    ev.IPAddress,
		Success:      ev.Success,
		PrevHash:     prev,
	}

	if ev.Changes != nil {
		if raw, err := json.Marshal(ev.Changes); err == nil {
			entry.Changes = raw
		}
	}

	entry.Integrity = ComputeIntegrity(l.hmacKey, prev, entry)
	l.heads[ev.TenantID] = entry.Integrity

	return entry
}

// Discard rolls the tenant's chain head back after a built entry was not
// persisted. Only the current head can be unwound; anything else would
// break entries built on top of it.
func (l *Logger) Discard(entry *model.AuditEntry) {
	if entry == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heads[entry.TenantID] == entry.Integrity {
		l.heads[entry.TenantID] = entry.PrevHash
		return
	}
	l.logger.Printf("⚠️  Audit entry %s discarded but no longer chain head for tenant %s", entry.ID, entry.TenantID)
}

// head returns the tenant's chain head, seeding it from storage on first
// use. A seed failure starts a fresh chain rather than blocking the write.
func (l *Logger) head(ctx context.Context, tenantID string) string {
	if l.seeded[tenantID] {
		return l.heads[tenantID]
	}
	last, err := l.store.LastAuditIntegrity(ctx, tenantID)
	if err != nil {
		l.logger.Printf("⚠️  Could not seed audit chain for tenant %s: %v", tenantID, err)
		last = ""
	}
	l.heads[tenantID] = last
	l.seeded[tenantID] = true
	return last
}

// Record builds and persists an entry outside any caller transaction.
// A failed write is logged but never propagated as a caller failure.
func (l *Logger) Record(ctx context.Context, ev Event) *model.AuditEntry {
	entry := l.Build(ctx, ev)
	if err := l.store.InsertAuditEntry(ctx, entry); err != nil {
		l.logger.Printf("❌ Failed to persist audit entry %s (%s): %v", entry.ID, entry.Action, err)
		l.Discard(entry)
	}
	return entry
}

// canonicalPayload is the deterministic serialization that the HMAC covers.
// PrevHash and Integrity are excluded; PrevHash enters the MAC separately.
type canonicalPayload struct {
	ID           string          `json:"id"`
	Timestamp    int64           `json:"timestamp"`
	Action       string          `json:"action"`
	Severity     string          `json:"severity"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Changes      json.RawMessage `json:"changes"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Success      bool            `json:"success"`
}

// ComputeIntegrity computes HMAC-SHA256(key, prevHash ‖ payload) in hex.
func ComputeIntegrity(key []byte, prevHash string, e *model.AuditEntry) string {
	payload, _ := json.Marshal(canonicalPayload{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UnixNano(),
		Action:       string(e.Action),
		Severity:     e.Severity,
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Changes:      e.Changes,
		Method:       e.Method,
		Path:         e.Path,
		Success:      e.Success,
	})

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prevHash))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks one tenant's stored chain against this logger's key.
// Returns the index of the first broken entry, or -1 when intact.
func (l *Logger) Verify(entries []*model.AuditEntry) int {
	return VerifyChain(string(l.hmacKey), entries)
}

// VerifyChain recomputes the integrity chain over one tenant's entries in
// insertion order. The first entry is expected to chain from the empty
// hash. Returns the index of the first broken entry, or -1 when intact.
func VerifyChain(hmacKey string, entries []*model.AuditEntry) int {
	key := []byte(hmacKey)
	prev := ""
	for i, e := range entries {
		expected := ComputeIntegrity(key, prev, e)
		if !hmac.Equal([]byte(expected), []byte(e.Integrity)) {
			return i
		}
		prev = e.Integrity
	}
	return -1
}

// severityFor derives the log severity from the event.
func severityFor(ev Event) string {
	switch ev.Action {
	case model.AuditSuspiciousActivity, model.AuditUnauthorizedAccess, model.AuditDataDeleted:
		return "critical"
	case model.AuditRateLimitExceeded, model.AuditLoginFailed, model.AuditAccountLocked, model.AuditCaseEscalated:
		return "warning"
	}
	if !ev.Success {
		return "warning"
	}
	return "info"
}
