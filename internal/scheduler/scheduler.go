// Package scheduler runs the statutory background sweeps: overdue
// deadline escalation, reminder notifications, the retention purge and
// the daily deadline digest.
//
// The sweep runs as a background goroutine. In multi-instance
// deployments a SETNX lock ensures only one instance sweeps per tick;
// a lost lock just means another instance is doing the work.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/deadline"
	"github.com/aitema/hinweis-backend/internal/infra"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/notify"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

// Store is the persistence surface of the sweeps.
type Store interface {
	ActiveTenantIDs(ctx context.Context) ([]string, error)
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	GetUser(ctx context.Context, tenantID, userID string) (*model.User, error)
	GetCase(ctx context.Context, tenantID, caseID string) (*model.Case, error)
	GetReport(ctx context.Context, tenantID, reportID string) (*model.Report, error)
	ListCases(ctx context.Context, tenantID string, limit, offset int) ([]*model.Case, error)

	SelectOverdueDeadlines(ctx context.Context, tenantID string, now time.Time) ([]*model.Deadline, error)
	SelectUpcomingDeadlines(ctx context.Context, tenantID string, now time.Time, lead time.Duration) ([]*model.Deadline, error)
	EscalateDeadline(ctx context.Context, tenantID, deadlineID string, auditEntry *model.AuditEntry) error
	MarkReminderSent(ctx context.Context, tenantID, deadlineID string) error

	SelectExpiredCases(ctx context.Context, tenantID string, now time.Time) ([]*model.Case, error)
	PurgeCase(ctx context.Context, tenantID, caseID, reportID string, auditEntry *model.AuditEntry) error
}

// Notifier enqueues sweep notifications.
type Notifier interface {
	Notify(m notify.Message)
}

// Config holds the scheduler intervals.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// SweepBudget caps the wall clock of one sweep across all tenants.
	SweepBudget time.Duration
	// DigestHour is the local hour the daily digest goes out.
	DigestHour int
}

// DefaultConfig returns the production intervals.
func DefaultConfig() Config {
	return Config{
		Interval:    1 * time.Hour,
		SweepBudget: 10 * time.Minute,
		DigestHour:  8,
	}
}

// Scheduler drives the periodic sweeps.
type Scheduler struct {
	store    Store
	settings *tenantcfg.Cache
	auditor  *audit.Logger
	notifier Notifier
	kv       infra.KV
	config   Config
	stopCh   chan struct{}
	logger   *log.Logger
	clock    func() time.Time
}

// New creates a scheduler; Start launches it.
func New(st Store, settings *tenantcfg.Cache, auditor *audit.Logger, notifier Notifier, kv infra.KV, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.SweepBudget <= 0 {
		cfg.SweepBudget = 10 * time.Minute
	}
	return &Scheduler{
		store:    st,
		settings: settings,
		auditor:  auditor,
		notifier: notifier,
		kv:       kv,
		config:   cfg,
		stopCh:   make(chan struct{}),
		logger:   log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags),
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the sweep loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the sweep loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Printf("Started deadline scheduler (interval=%s, digest_hour=%02d:00)",
		s.config.Interval, s.config.DigestHour)

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			s.logger.Println("Deadline scheduler stopped")
			return
		}
	}
}

// Sweep runs one full pass over all active tenants. Failures on single
// records are logged and skipped; the sweep itself keeps going.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock()

	// The lock value is a per-sweep token; release compares it so a sweep
	// that outlives its TTL cannot delete the lock of the next holder.
	token := uuid.NewString()
	ok, err := s.kv.SetNX(ctx, "hinschg:sweep:lock", token, s.config.SweepBudget)
	if err == nil && !ok {
		return // another instance holds the lock
	}
	defer s.kv.DelEqual(ctx, "hinschg:sweep:lock", token)

	ctx, cancel := context.WithTimeout(ctx, s.config.SweepBudget)
	defer cancel()

	tenants, err := s.store.ActiveTenantIDs(ctx)
	if err != nil {
		s.logger.Printf("❌ Sweep aborted, cannot list tenants: %v", err)
		return
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			s.logger.Printf("⚠️  Sweep budget exhausted, %s and later tenants skipped", tenantID)
			return
		}
		s.escalateOverdue(ctx, tenantID, now)
		s.sendReminders(ctx, tenantID, now)
		s.purgeExpired(ctx, tenantID, now)
		if now.Hour() == s.config.DigestHour {
			s.sendDigest(ctx, tenantID, now)
		}
	}
}

// escalateOverdue flags every overdue deadline once and notifies the
// responsible handler.
func (s *Scheduler) escalateOverdue(ctx context.Context, tenantID string, now time.Time) {
	overdue, err := s.store.SelectOverdueDeadlines(ctx, tenantID, now)
	if err != nil {
		s.logger.Printf("❌ Overdue query failed for tenant %s: %v", tenantID, err)
		return
	}

	for _, d := range overdue {
		entry := s.auditor.Build(ctx, audit.Event{
			Action:       model.AuditCaseEscalated,
			TenantID:     tenantID,
			ResourceType: "deadline",
			ResourceID:   d.ID,
			Changes:      map[string]string{"type": string(d.Type), "due_at": d.DueAt.Format(time.RFC3339)},
			Success:      true,
		})
		if err := s.store.EscalateDeadline(ctx, tenantID, d.ID, entry); err != nil {
			s.logger.Printf("❌ Escalation failed for deadline %s: %v", d.ID, err)
			s.auditor.Discard(entry)
			continue
		}
		s.logger.Printf("⏰ Deadline escalated: tenant=%s type=%s due=%s", tenantID, d.Type, d.DueAt.Format(time.RFC3339))

		caseNumber, recipient := s.resolveRecipient(ctx, tenantID, d)
		s.notifier.Notify(notify.Message{
			TenantID:  tenantID,
			Recipient: recipient,
			Template:  notify.TemplateFristEskalation,
			Data: map[string]string{
				"case_number": caseNumber,
				"frist_typ":   string(d.Type),
				"due_at":      d.DueAt.Format("02.01.2006"),
			},
		})
	}
}

// sendReminders notifies handlers ahead of upcoming deadlines, once per
// deadline.
func (s *Scheduler) sendReminders(ctx context.Context, tenantID string, now time.Time) {
	settings := s.settings.Get(ctx, tenantID)
	lead := time.Duration(settings.ReminderVorlaufTage) * 24 * time.Hour
	if lead <= 0 {
		return
	}

	upcoming, err := s.store.SelectUpcomingDeadlines(ctx, tenantID, now, lead)
	if err != nil {
		s.logger.Printf("❌ Reminder query failed for tenant %s: %v", tenantID, err)
		return
	}

	for _, d := range upcoming {
		if err := s.store.MarkReminderSent(ctx, tenantID, d.ID); err != nil {
			s.logger.Printf("❌ Reminder flag failed for deadline %s: %v", d.ID, err)
			continue
		}
		caseNumber, recipient := s.resolveRecipient(ctx, tenantID, d)
		s.notifier.Notify(notify.Message{
			TenantID:  tenantID,
			Recipient: recipient,
			Template:  notify.TemplateFristReminder,
			Data: map[string]string{
				"case_number": caseNumber,
				"frist_typ":   string(d.Type),
				"due_at":      d.DueAt.Format("02.01.2006"),
			},
		})
	}
}

// purgeExpired removes cases whose retention has elapsed, cascading to
// the report, events, deadlines and attachments.
func (s *Scheduler) purgeExpired(ctx context.Context, tenantID string, now time.Time) {
	expired, err := s.store.SelectExpiredCases(ctx, tenantID, now)
	if err != nil {
		s.logger.Printf("❌ Retention query failed for tenant %s: %v", tenantID, err)
		return
	}

	for _, c := range expired {
		entry := s.auditor.Build(ctx, audit.Event{
			Action:       model.AuditDataDeleted,
			TenantID:     tenantID,
			ResourceType: "case",
			ResourceID:   c.ID,
			Changes:      map[string]string{"case_number": c.CaseNumber},
			Success:      true,
		})
		if err := s.store.PurgeCase(ctx, tenantID, c.ID, c.ReportID, entry); err != nil {
			s.logger.Printf("❌ Retention purge failed for case %s: %v", c.ID, err)
			s.auditor.Discard(entry)
			continue
		}
		s.logger.Printf("🗑️  Case purged after retention: tenant=%s case=%s", tenantID, c.CaseNumber)
	}
}

// sendDigest sends the daily deadline overview to the tenant contact,
// once per day guarded by a SETNX key.
func (s *Scheduler) sendDigest(ctx context.Context, tenantID string, now time.Time) {
	key := fmt.Sprintf("hinschg:digest:%s:%s", tenantID, now.Format("2006-01-02"))
	ok, err := s.kv.SetNX(ctx, key, "sent", 25*time.Hour)
	if err != nil || !ok {
		return
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil || tenant.ContactEmail == "" {
		return
	}

	cases, err := s.store.ListCases(ctx, tenantID, 200, 0)
	if err != nil {
		s.logger.Printf("❌ Digest query failed for tenant %s: %v", tenantID, err)
		return
	}

	var items []deadline.Urgent
	for _, c := range cases {
		if c.Status.IsTerminal() {
			continue
		}
		report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
		if err != nil {
			continue
		}
		st := deadline.NextActive(c, report, now)
		if st.Light == model.LightDone {
			continue
		}
		items = append(items, deadline.Urgent{
			CaseID:        c.ID,
			CaseNumber:    c.CaseNumber,
			Light:         st.Light,
			DueAt:         st.DueAt,
			DaysRemaining: st.DaysRemaining,
		})
	}
	if len(items) == 0 {
		return
	}
	deadline.SortUrgent(items)

	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s: fällig am %s (%s, %d Tage)\n",
			it.CaseNumber, it.DueAt.Format("02.01.2006"), it.Light, it.DaysRemaining)
	}

	s.notifier.Notify(notify.Message{
		TenantID:  tenantID,
		Recipient: tenant.ContactEmail,
		Template:  notify.TemplateTagesDigest,
		Data: map[string]string{
			"datum":      now.Format("02.01.2006"),
			"uebersicht": b.String(),
		},
	})
}

// resolveRecipient finds who to notify for a deadline: the case assignee,
// falling back to the case creator, then the tenant contact address.
func (s *Scheduler) resolveRecipient(ctx context.Context, tenantID string, d *model.Deadline) (caseNumber, recipient string) {
	if d.CaseID != "" {
		if c, err := s.store.GetCase(ctx, tenantID, d.CaseID); err == nil {
			caseNumber = c.CaseNumber
			for _, userID := range []string{c.AssigneeID, c.CreatedBy} {
				if userID == "" {
					continue
				}
				if u, err := s.store.GetUser(ctx, tenantID, userID); err == nil && u.Email != "" {
					return caseNumber, u.Email
				}
			}
		}
	}
	if t, err := s.store.GetTenant(ctx, tenantID); err == nil {
		return caseNumber, t.ContactEmail
	}
	return caseNumber, ""
}
