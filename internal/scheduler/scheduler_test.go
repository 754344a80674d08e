package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/infra"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/notify"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

const testTenant = "tenant-1"

type fakeStore struct {
	overdue  []*model.Deadline
	upcoming []*model.Deadline
	expired  []*model.Case

	cases   map[string]*model.Case
	reports map[string]*model.Report
	users   map[string]*model.User
	tenant  *model.Tenant

	escalated []string
	reminded  []string
	purged    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cases:   map[string]*model.Case{},
		reports: map[string]*model.Report{},
		users:   map[string]*model.User{},
		tenant: &model.Tenant{
			ID:           testTenant,
			Slug:         "acme",
			ContactEmail: "meldestelle@acme.example",
			Active:       true,
		},
	}
}

func (f *fakeStore) ActiveTenantIDs(context.Context) ([]string, error) {
	return []string{testTenant}, nil
}

func (f *fakeStore) GetTenant(context.Context, string) (*model.Tenant, error) {
	return f.tenant, nil
}

func (f *fakeStore) GetUser(_ context.Context, _, userID string) (*model.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, assert.AnError
	}
	return u, nil
}

func (f *fakeStore) GetCase(_ context.Context, _, caseID string) (*model.Case, error) {
	c, ok := f.cases[caseID]
	if !ok {
		return nil, assert.AnError
	}
	return c, nil
}

func (f *fakeStore) GetReport(_ context.Context, _, reportID string) (*model.Report, error) {
	r, ok := f.reports[reportID]
	if !ok {
		return nil, assert.AnError
	}
	return r, nil
}

func (f *fakeStore) ListCases(context.Context, string, int, int) ([]*model.Case, error) {
	out := make([]*model.Case, 0, len(f.cases))
	for _, c := range f.cases {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) SelectOverdueDeadlines(context.Context, string, time.Time) ([]*model.Deadline, error) {
	return f.overdue, nil
}

func (f *fakeStore) SelectUpcomingDeadlines(context.Context, string, time.Time, time.Duration) ([]*model.Deadline, error) {
	return f.upcoming, nil
}

func (f *fakeStore) EscalateDeadline(_ context.Context, _, deadlineID string, _ *model.AuditEntry) error {
	f.escalated = append(f.escalated, deadlineID)
	return nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, _, deadlineID string) error {
	f.reminded = append(f.reminded, deadlineID)
	return nil
}

func (f *fakeStore) SelectExpiredCases(context.Context, string, time.Time) ([]*model.Case, error) {
	return f.expired, nil
}

func (f *fakeStore) PurgeCase(_ context.Context, _, caseID, _ string, _ *model.AuditEntry) error {
	f.purged = append(f.purged, caseID)
	return nil
}

type fakeAuditStore struct{}

func (fakeAuditStore) InsertAuditEntry(context.Context, *model.AuditEntry) error { return nil }
func (fakeAuditStore) LastAuditIntegrity(context.Context, string) (string, error) {
	return "", nil
}

type fakeLoader struct{}

func (fakeLoader) GetTenantSettings(context.Context, string) (*model.TenantSettings, error) {
	return nil, nil
}

func (fakeLoader) SaveTenantSettings(context.Context, string, model.TenantSettings) error {
	return nil
}

type fakeNotifier struct {
	messages []notify.Message
}

func (f *fakeNotifier) Notify(m notify.Message) { f.messages = append(f.messages, m) }

func newTestScheduler(t *testing.T, fs *fakeStore, kv infra.KV, at time.Time) (*Scheduler, *fakeNotifier) {
	t.Helper()
	auditor, err := audit.NewLogger("audit-hmac-key-0123456789abcdef01", fakeAuditStore{})
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	sched := New(fs, tenantcfg.NewCache(fakeLoader{}), auditor, notifier, kv, DefaultConfig())
	sched.clock = func() time.Time { return at }
	return sched, notifier
}

func seedCase(fs *fakeStore) {
	fs.users["worker-1"] = &model.User{ID: "worker-1", Email: "worker@acme.example"}
	fs.cases["case-1"] = &model.Case{
		ID: "case-1", TenantID: testTenant, ReportID: "report-1",
		CaseNumber: "ACME-2026-0001", Status: model.CaseInErmittlung,
		AssigneeID: "worker-1",
	}
	fs.reports["report-1"] = &model.Report{
		ID: "report-1", TenantID: testTenant,
		EingangsbestaetigungFrist: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
		RueckmeldungFrist:         time.Date(2026, 5, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestSweepEscalatesOverdueAndNotifiesAssignee(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	fs.overdue = []*model.Deadline{{
		ID: "dl-1", TenantID: testTenant, ReportID: "report-1", CaseID: "case-1",
		Type: model.DeadlineAck7d, DueAt: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}}

	sched, notifier := newTestScheduler(t, fs, infra.NewMemoryKV(), time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())

	assert.Equal(t, []string{"dl-1"}, fs.escalated)
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notify.TemplateFristEskalation, notifier.messages[0].Template)
	assert.Equal(t, "worker@acme.example", notifier.messages[0].Recipient)
	assert.Equal(t, "ACME-2026-0001", notifier.messages[0].Data["case_number"])
}

func TestSweepFallsBackToTenantContact(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	fs.cases["case-1"].AssigneeID = ""
	fs.overdue = []*model.Deadline{{
		ID: "dl-1", TenantID: testTenant, ReportID: "report-1", CaseID: "case-1",
		Type: model.DeadlineFeedback3m, DueAt: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}}

	sched, notifier := newTestScheduler(t, fs, infra.NewMemoryKV(), time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, "meldestelle@acme.example", notifier.messages[0].Recipient)
}

func TestSweepSendsRemindersOnce(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	fs.upcoming = []*model.Deadline{{
		ID: "dl-2", TenantID: testTenant, ReportID: "report-1", CaseID: "case-1",
		Type: model.DeadlineAck7d, DueAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}}

	sched, notifier := newTestScheduler(t, fs, infra.NewMemoryKV(), time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())

	assert.Equal(t, []string{"dl-2"}, fs.reminded)
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notify.TemplateFristReminder, notifier.messages[0].Template)
}

func TestSweepPurgesExpiredCases(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	fs.expired = []*model.Case{{
		ID: "case-old", TenantID: testTenant, ReportID: "report-old",
		CaseNumber: "ACME-2023-0001", Status: model.CaseAbgeschlossen,
	}}

	sched, _ := newTestScheduler(t, fs, infra.NewMemoryKV(), time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())

	assert.Equal(t, []string{"case-old"}, fs.purged)
}

func TestDigestOnlyAtDigestHourAndOncePerDay(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	kv := infra.NewMemoryKV()

	// 14:00 — no digest.
	sched, notifier := newTestScheduler(t, fs, kv, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())
	assert.Empty(t, notifier.messages)

	// 08:00 — digest goes out.
	sched, notifier = newTestScheduler(t, fs, kv, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())
	require.Len(t, notifier.messages, 1)
	assert.Equal(t, notify.TemplateTagesDigest, notifier.messages[0].Template)
	assert.Contains(t, notifier.messages[0].Data["uebersicht"], "ACME-2026-0001")

	// Second sweep in the same hour — the SETNX key blocks a repeat.
	sched, notifier = newTestScheduler(t, fs, kv, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	sched.Sweep(context.Background())
	assert.Empty(t, notifier.messages)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	fs := newFakeStore()
	seedCase(fs)
	fs.overdue = []*model.Deadline{{
		ID: "dl-1", TenantID: testTenant, ReportID: "report-1", CaseID: "case-1",
		Type: model.DeadlineAck7d, DueAt: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC),
	}}

	kv := infra.NewMemoryKV()
	held, err := kv.SetNX(context.Background(), "hinschg:sweep:lock", "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	sched, notifier := newTestScheduler(t, fs, kv, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
	sched.Sweep(context.Background())

	assert.Empty(t, fs.escalated)
	assert.Empty(t, notifier.messages)
}
