package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/model"
)

const testHMACKey = "audit-hmac-test-key-0123456789abcdef"

type memStore struct {
	entries   []*model.AuditEntry
	insertErr error
}

func (m *memStore) InsertAuditEntry(_ context.Context, e *model.AuditEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) LastAuditIntegrity(_ context.Context, tenantID string) (string, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].TenantID == tenantID {
			return m.entries[i].Integrity, nil
		}
	}
	return "", nil
}

// tenantEntries filters the stored log the way the export query does.
func (m *memStore) tenantEntries(tenantID string) []*model.AuditEntry {
	var out []*model.AuditEntry
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

func newTestLogger(t *testing.T) (*Logger, *memStore) {
	t.Helper()
	store := &memStore{}
	l, err := NewLogger(testHMACKey, store)
	require.NoError(t, err)
	return l, store
}

func TestNewLogger_RejectsShortKey(t *testing.T) {
	_, err := NewLogger("short", &memStore{})
	assert.Error(t, err)
}

func TestLogger_ChainVerifies(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t1", ResourceType: "report", ResourceID: "r1", Success: true})
	l.Record(ctx, Event{Action: model.AuditCaseCreated, TenantID: "t1", UserID: "u1", ResourceType: "case", ResourceID: "c1", Success: true})
	l.Record(ctx, Event{Action: model.AuditCaseStatusChanged, TenantID: "t1", UserID: "u1", ResourceType: "case", ResourceID: "c1",
		Changes: map[string]string{"old": "offen", "new": "zugewiesen"}, Success: true})

	require.Len(t, store.entries, 3)
	assert.Equal(t, -1, VerifyChain(testHMACKey, store.entries))

	// Each entry links to its predecessor.
	assert.Equal(t, "", store.entries[0].PrevHash)
	assert.Equal(t, store.entries[0].Integrity, store.entries[1].PrevHash)
	assert.Equal(t, store.entries[1].Integrity, store.entries[2].PrevHash)
}

func TestLogger_ChainsPerTenant(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	// Interleaved writes of two tenants must not link across tenants:
	// each tenant's filtered trail is a complete chain on its own.
	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})
	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t2", Success: true})
	l.Record(ctx, Event{Action: model.AuditCaseCreated, TenantID: "t1", UserID: "u1", Success: true})
	l.Record(ctx, Event{Action: model.AuditCaseCreated, TenantID: "t2", UserID: "u2", Success: true})

	t1 := store.tenantEntries("t1")
	t2 := store.tenantEntries("t2")
	require.Len(t, t1, 2)
	require.Len(t, t2, 2)

	assert.Equal(t, -1, VerifyChain(testHMACKey, t1))
	assert.Equal(t, -1, VerifyChain(testHMACKey, t2))

	assert.Equal(t, "", t1[0].PrevHash)
	assert.Equal(t, "", t2[0].PrevHash)
	assert.Equal(t, t1[0].Integrity, t1[1].PrevHash)
	assert.Equal(t, t2[0].Integrity, t2[1].PrevHash)
}

func TestLogger_SeedsChainFromStore(t *testing.T) {
	store := &memStore{}
	first, err := NewLogger(testHMACKey, store)
	require.NoError(t, err)
	first.Record(context.Background(), Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})

	// A second logger over the same store continues the chain instead of
	// restarting it from the empty hash.
	second, err := NewLogger(testHMACKey, store)
	require.NoError(t, err)
	second.Record(context.Background(), Event{Action: model.AuditCaseCreated, TenantID: "t1", Success: true})

	require.Len(t, store.entries, 2)
	assert.Equal(t, store.entries[0].Integrity, store.entries[1].PrevHash)
	assert.Equal(t, -1, VerifyChain(testHMACKey, store.entries))
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})
	l.Record(ctx, Event{Action: model.AuditSubmissionViewed, TenantID: "t1", UserID: "u1", Success: true})
	l.Record(ctx, Event{Action: model.AuditCaseClosed, TenantID: "t1", UserID: "u1", Success: true})

	// Mutate the middle entry after the fact.
	store.entries[1].UserID = "attacker"

	assert.Equal(t, 1, VerifyChain(testHMACKey, store.entries))
}

func TestVerifyChain_DetectsWrongKey(t *testing.T) {
	l, store := newTestLogger(t)
	l.Record(context.Background(), Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})

	assert.Equal(t, 0, VerifyChain("another-hmac-key-0123456789abcdefgh", store.entries))
}

func TestLogger_Build_DoesNotPersist(t *testing.T) {
	l, store := newTestLogger(t)

	entry := l.Build(context.Background(), Event{Action: model.AuditCaseStatusChanged, TenantID: "t1", Success: true})
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.Integrity)
	assert.Empty(t, store.entries)
}

func TestLogger_DiscardUnwindsChainHead(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})

	// A built entry whose transaction aborts must not leave a gap.
	dropped := l.Build(ctx, Event{Action: model.AuditCaseCreated, TenantID: "t1", Success: true})
	l.Discard(dropped)

	l.Record(ctx, Event{Action: model.AuditCaseClosed, TenantID: "t1", Success: true})

	require.Len(t, store.entries, 2)
	assert.Equal(t, store.entries[0].Integrity, store.entries[1].PrevHash)
	assert.Equal(t, -1, VerifyChain(testHMACKey, store.entries))
}

func TestLogger_RecordRollsBackOnInsertFailure(t *testing.T) {
	l, store := newTestLogger(t)
	ctx := context.Background()

	l.Record(ctx, Event{Action: model.AuditSubmissionCreated, TenantID: "t1", Success: true})

	store.insertErr = errors.New("db down")
	l.Record(ctx, Event{Action: model.AuditCaseCreated, TenantID: "t1", Success: true})
	store.insertErr = nil

	l.Record(ctx, Event{Action: model.AuditCaseClosed, TenantID: "t1", Success: true})

	require.Len(t, store.entries, 2)
	assert.Equal(t, -1, VerifyChain(testHMACKey, store.entries))
}

func TestSeverity(t *testing.T) {
	l, _ := newTestLogger(t)
	ctx := context.Background()

	assert.Equal(t, "info", l.Build(ctx, Event{Action: model.AuditSubmissionCreated, Success: true}).Severity)
	assert.Equal(t, "warning", l.Build(ctx, Event{Action: model.AuditSubmissionViewed, Success: false}).Severity)
	assert.Equal(t, "warning", l.Build(ctx, Event{Action: model.AuditRateLimitExceeded, Success: true}).Severity)
	assert.Equal(t, "critical", l.Build(ctx, Event{Action: model.AuditDataDeleted, Success: true}).Severity)
}
