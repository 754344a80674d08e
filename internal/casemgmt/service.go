package casemgmt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/deadline"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/notify"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/store"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

// Store is the persistence surface the service needs.
type Store interface {
	GetCase(ctx context.Context, tenantID, caseID string) (*model.Case, error)
	GetCaseByReportID(ctx context.Context, tenantID, reportID string) (*model.Case, error)
	GetReport(ctx context.Context, tenantID, reportID string) (*model.Report, error)
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	CreateCase(ctx context.Context, c *model.Case, event *model.CaseEvent, auditEntry *model.AuditEntry, reportStatus model.ReportStatus) error
	ApplyCaseChange(ctx context.Context, change *store.CaseChange) error
	NextCaseSequence(ctx context.Context, tenantID string, year int) (int, error)
	ListCases(ctx context.Context, tenantID string, limit, offset int) ([]*model.Case, error)
	ListCaseEvents(ctx context.Context, tenantID, caseID string) ([]*model.CaseEvent, error)
	ListDeadlinesByCase(ctx context.Context, tenantID, caseID string) ([]*model.Deadline, error)
	InsertCaseEvent(ctx context.Context, ev *model.CaseEvent) error
}

// Notifier enqueues asynchronous notifications. Delivery failure never
// fails a case mutation.
type Notifier interface {
	Notify(m notify.Message)
}

// Service implements the case lifecycle.
type Service struct {
	store    Store
	env      *crypto.Envelope
	settings *tenantcfg.Cache
	auditor  *audit.Logger
	notifier Notifier
	clock    func() time.Time
}

// NewService wires the case-management service.
func NewService(st Store, env *crypto.Envelope, settings *tenantcfg.Cache, auditor *audit.Logger, notifier Notifier) *Service {
	return &Service{
		store:    st,
		env:      env,
		settings: settings,
		auditor:  auditor,
		notifier: notifier,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// View is a case together with its next statutory deadline.
type View struct {
	Case     *model.Case     `json:"case"`
	Deadline deadline.Status `json:"frist"`
}

// Detail is the full case view returned by Get.
type Detail struct {
	Case      *model.Case        `json:"case"`
	Deadline  deadline.Status    `json:"frist"`
	Events    []*model.CaseEvent `json:"events"`
	Deadlines []deadline.Status  `json:"fristen"`
}

// OpenRequest opens a case around a report.
type OpenRequest struct {
	ReportID   string         `json:"report_id"`
	AssigneeID string         `json:"assignee_id,omitempty"`
	Severity   model.Priority `json:"severity,omitempty"`
}

// Open creates the 1:1 case for a report. An optional assignee moves the
// case straight to zugewiesen. A second case for the same report is a
// Conflict.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*model.Case, error) {
	if err := access.RequireRole(ctx, model.RoleAdmin, model.RoleOmbudsperson); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if req.ReportID == "" {
		return nil, errs.Validation("Hinweis-ID fehlt.").WithField("report_id", "erforderlich")
	}

	report, err := s.store.GetReport(ctx, tenantID, req.ReportID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCaseByReportID(ctx, tenantID, req.ReportID); err == nil {
		return nil, errs.Conflict("Für diesen Hinweis existiert bereits ein Fall.")
	} else if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	seq, err := s.store.NextCaseSequence(ctx, tenantID, now.Year())
	if err != nil {
		return nil, err
	}

	severity := req.Severity
	if severity == "" {
		severity = report.Prioritaet
	}
	if severity == "" {
		severity = model.PriorityMittel
	}

	actor, _ := reqctx.ActorFrom(ctx)
	c := &model.Case{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ReportID:   report.ID,
		CaseNumber: crypto.CaseNumber(tenant.Slug, now.Year(), seq),
		Status:     model.CaseOffen,
		CreatedBy:  actor.UserID,
		Severity:   severity,
	}
	event := &model.CaseEvent{
		TenantID:    tenantID,
		CaseID:      c.ID,
		EventType:   model.EventCreated,
		NewStatus:   &c.Status,
		ActorID:     actor.UserID,
		Description: fmt.Sprintf("Fall %s eröffnet.", c.CaseNumber),
	}
	if req.AssigneeID != "" {
		prev := model.CaseOffen
		c.Status = model.CaseZugewiesen
		c.PreviousStatus = &prev
		c.AssigneeID = req.AssigneeID
		event.NewStatus = &c.Status
	}

	entry := s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseCreated, "case", c.ID, map[string]string{
		"case_number": c.CaseNumber,
		"report_id":   report.ID,
		"status":      string(c.Status),
	}))
	if err := s.store.CreateCase(ctx, c, event, entry, model.ReportInBearbeitung); err != nil {
		s.auditor.Discard(entry)
		return nil, err
	}
	return c, nil
}

// Assign sets or changes the case handler. An open case moves to
// zugewiesen; otherwise the status is kept.
func (s *Service) Assign(ctx context.Context, caseID, assigneeID string) (*model.Case, error) {
	if err := access.RequireRole(ctx, model.RoleAdmin, model.RoleOmbudsperson); err != nil {
		return nil, err
	}
	if assigneeID == "" {
		return nil, errs.Validation("Zuweisung erfordert einen Fallbearbeiter.").
			WithField("assignee_id", "erforderlich")
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, errs.BadTransition("Ein abgeschlossener Fall kann nicht zugewiesen werden.", string(c.Status))
	}

	actor, _ := reqctx.ActorFrom(ctx)
	expected := c.Status
	updated := *c
	updated.AssigneeID = assigneeID
	events := []*model.CaseEvent{{
		TenantID:    tenantID,
		CaseID:      c.ID,
		EventType:   model.EventAssigned,
		ActorID:     actor.UserID,
		Description: "Fall zugewiesen.",
		Internal:    true,
	}}
	if c.Status == model.CaseOffen {
		prev := c.Status
		updated.Status = model.CaseZugewiesen
		updated.PreviousStatus = &prev
		events = append(events, statusChangeEvent(tenantID, c.ID, actor.UserID, prev, updated.Status, ""))
	}

	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events:         events,
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseAssigned, "case", c.ID, map[string]string{
				"assignee_id": assigneeID,
			})),
		},
	}
	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}
	return &updated, nil
}

// TransitionRequest moves a case to a new status.
type TransitionRequest struct {
	Status     model.CaseStatus `json:"status"`
	Comment    string           `json:"comment,omitempty"`
	AssigneeID string           `json:"assignee_id,omitempty"`
}

// Transition applies one step of the lifecycle, including the derived
// effects of abgeschlossen and eskaliert.
func (s *Service) Transition(ctx context.Context, caseID string, req TransitionRequest) (*model.Case, error) {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	assignee := c.AssigneeID
	if req.AssigneeID != "" {
		assignee = req.AssigneeID
	}
	if err := checkTransition(c.Status, req.Status, assignee); err != nil {
		return nil, err
	}
	if req.Status == model.CaseAbgeschlossen && req.Comment == "" {
		return nil, errs.Validation("Ein Abschluss erfordert eine Begründung.").
			WithField("comment", "erforderlich")
	}

	actor, _ := reqctx.ActorFrom(ctx)
	now := s.clock()
	expected := c.Status
	updated := *c
	prev := c.Status
	updated.Status = req.Status
	updated.PreviousStatus = &prev
	updated.AssigneeID = assignee

	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events: []*model.CaseEvent{
			statusChangeEvent(tenantID, c.ID, actor.UserID, prev, req.Status, req.Comment),
		},
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseStatusChanged, "case", c.ID, map[string]string{
				"old_status": string(prev),
				"new_status": string(req.Status),
			})),
		},
		DeadlineDoneAt: now,
	}

	switch req.Status {
	case model.CaseAbgeschlossen:
		s.applyClosure(ctx, &updated, change, req.Comment, now)
	case model.CaseEskaliert:
		updated.Eskaliert = true
		updated.EskaliertAm = &now
		change.AuditEntries = append(change.AuditEntries,
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseEscalated, "case", c.ID, nil)))
	}

	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}
	return &updated, nil
}

// applyClosure attaches the terminal-state effects to a change: closure
// timestamp, retention deadline, feedback-timer completion and the
// report's archival dates.
func (s *Service) applyClosure(ctx context.Context, c *model.Case, change *store.CaseChange, grund string, now time.Time) {
	settings := s.settings.Get(ctx, c.TenantID)
	archival := deadline.Archival(now, settings)

	c.ClosedAt = &now
	c.Abschlussgrund = grund

	change.CompleteDeadlines = append(change.CompleteDeadlines, model.DeadlineFeedback3m)
	change.NewDeadlines = append(change.NewDeadlines, &model.Deadline{
		TenantID: c.TenantID,
		ReportID: c.ReportID,
		CaseID:   c.ID,
		Type:     model.DeadlineArchival3y,
		DueAt:    archival,
	})

	reportStatus := model.ReportAbgeschlossen
	change.ReportStatus = &reportStatus
	change.ReportArchivalAt = &archival
	change.ReportDeletionAt = &archival

	change.AuditEntries = append(change.AuditEntries,
		s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseClosed, "case", c.ID, map[string]string{
			"abschlussgrund":   grund,
			"aufbewahrung_bis": archival.Format(time.RFC3339),
		})))
}

// Acknowledge confirms receipt towards the reporter (§ 17 Abs. 1 HinSchG).
// At most once per case; a repeat is a Conflict.
func (s *Service) Acknowledge(ctx context.Context, caseID string) (*model.Case, error) {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.AcknowledgedAt != nil {
		return nil, errs.Conflict("Die Eingangsbestätigung wurde bereits versendet.").
			WithMeta("acknowledged_at", c.AcknowledgedAt.Format(time.RFC3339))
	}
	report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
	if err != nil {
		return nil, err
	}

	actor, _ := reqctx.ActorFrom(ctx)
	now := s.clock()
	expected := c.Status
	updated := *c
	updated.AcknowledgedAt = &now

	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events: []*model.CaseEvent{{
			TenantID:          tenantID,
			CaseID:            c.ID,
			EventType:         model.EventAcknowledged,
			ActorID:           actor.UserID,
			Description:       "Eingangsbestätigung versendet.",
			VisibleToReporter: true,
		}},
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditEingangsbestaetigungSent, "case", c.ID, nil)),
		},
		CompleteDeadlines: []model.DeadlineType{model.DeadlineAck7d},
		DeadlineDoneAt:    now,
		ReportAckAt:       &now,
	}
	if report.Status == model.ReportEingegangen {
		st := model.ReportEingangsbestaetigung
		change.ReportStatus = &st
	}

	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}

	s.notifyReporter(report, notify.TemplateEingangsbestaetigung, map[string]string{
		"reference_code":     report.ReferenceCode,
		"rueckmeldung_frist": report.RueckmeldungFrist.Format("02.01.2006"),
	})
	return &updated, nil
}

// Resolve records the substantive feedback towards the reporter
// (§ 17 Abs. 2 HinSchG). At most once per case.
func (s *Service) Resolve(ctx context.Context, caseID, nachricht string) (*model.Case, error) {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.ResolvedAt != nil {
		return nil, errs.Conflict("Die Rückmeldung wurde bereits versendet.").
			WithMeta("resolved_at", c.ResolvedAt.Format(time.RFC3339))
	}
	report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
	if err != nil {
		return nil, err
	}

	actor, _ := reqctx.ActorFrom(ctx)
	now := s.clock()
	expected := c.Status
	updated := *c
	updated.ResolvedAt = &now

	st := model.ReportRueckmeldung
	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events: []*model.CaseEvent{{
			TenantID:          tenantID,
			CaseID:            c.ID,
			EventType:         model.EventResolved,
			ActorID:           actor.UserID,
			Description:       "Rückmeldung versendet.",
			VisibleToReporter: true,
		}},
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditRueckmeldungSent, "case", c.ID, nil)),
		},
		CompleteDeadlines: []model.DeadlineType{model.DeadlineFeedback3m},
		DeadlineDoneAt:    now,
		ReportFeedbackAt:  &now,
		ReportStatus:      &st,
	}

	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}

	s.notifyReporter(report, notify.TemplateRueckmeldung, map[string]string{
		"reference_code": report.ReferenceCode,
		"nachricht":      nachricht,
	})
	return &updated, nil
}

// Forward hands the case to the tenant's ombudsperson. At most once; the
// case status is unchanged, only the handoff is recorded.
func (s *Service) Forward(ctx context.Context, caseID string) (*model.Case, error) {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.ForwardedToOmbudspersonAt != nil {
		return nil, errs.Conflict("Der Fall wurde bereits an die Ombudsperson übergeben.").
			WithMeta("forwarded_at", c.ForwardedToOmbudspersonAt.Format(time.RFC3339))
	}

	actor, _ := reqctx.ActorFrom(ctx)
	now := s.clock()
	expected := c.Status
	updated := *c
	updated.ForwardedToOmbudspersonAt = &now
	updated.ForwardedToOmbudspersonBy = actor.UserID

	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events: []*model.CaseEvent{{
			TenantID:    tenantID,
			CaseID:      c.ID,
			EventType:   model.EventForwarded,
			ActorID:     actor.UserID,
			Description: "An die Ombudsperson übergeben.",
			Internal:    true,
		}},
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseForwarded, "case", c.ID, nil)),
		},
	}
	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}
	return &updated, nil
}

// RecommendRequest is the ombudsperson's verdict on a forwarded case.
type RecommendRequest struct {
	Recommendation model.Recommendation `json:"recommendation"`
	Notes          string               `json:"notes,omitempty"`
}

// Recommend records the ombudsperson's recommendation. Requires a prior
// Forward; at most once per case. An escalate verdict additionally
// attempts the eskaliert transition, best effort.
func (s *Service) Recommend(ctx context.Context, caseID string, req RecommendRequest) (*model.Case, error) {
	if err := access.RequireRole(ctx, model.RoleOmbudsperson); err != nil {
		return nil, err
	}
	if !model.ValidRecommendation(req.Recommendation) {
		return nil, errs.Validation(fmt.Sprintf("Unbekannte Empfehlung: %s", req.Recommendation)).
			WithField("recommendation", "pursue, close oder escalate")
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if c.ForwardedToOmbudspersonAt == nil {
		return nil, errs.Forbidden("Der Fall wurde nicht an die Ombudsperson übergeben.")
	}
	if c.OmbudspersonRecommendation != "" {
		return nil, errs.Conflict("Für diesen Fall liegt bereits eine Empfehlung vor.").
			WithMeta("recommendation", string(c.OmbudspersonRecommendation))
	}

	actor, _ := reqctx.ActorFrom(ctx)
	now := s.clock()
	expected := c.Status
	updated := *c
	updated.OmbudspersonRecommendation = req.Recommendation
	updated.OmbudspersonReviewedAt = &now
	updated.OmbudspersonReviewedBy = actor.UserID

	if req.Notes != "" {
		enc, err := s.env.Encrypt(req.Notes, c.ID+":ombudsperson_notes")
		if err != nil {
			return nil, errs.Crypto(err)
		}
		updated.OmbudspersonNotesEnc = enc
	}

	change := &store.CaseChange{
		TenantID:       tenantID,
		Case:           &updated,
		ExpectedStatus: expected,
		Events: []*model.CaseEvent{{
			TenantID:    tenantID,
			CaseID:      c.ID,
			EventType:   model.EventRecommended,
			ActorID:     actor.UserID,
			Description: fmt.Sprintf("Empfehlung der Ombudsperson: %s", req.Recommendation),
			Internal:    true,
		}},
		AuditEntries: []*model.AuditEntry{
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditRecommendation, "case", c.ID, map[string]string{
				"recommendation": string(req.Recommendation),
			})),
		},
		DeadlineDoneAt: now,
	}

	// escalate moves the case when the table allows it; the recommendation
	// itself is recorded either way.
	if req.Recommendation == model.RecommendEscalate && CanTransition(c.Status, model.CaseEskaliert) {
		prev := c.Status
		updated.Status = model.CaseEskaliert
		updated.PreviousStatus = &prev
		updated.Eskaliert = true
		updated.EskaliertAm = &now
		change.Events = append(change.Events,
			statusChangeEvent(tenantID, c.ID, actor.UserID, prev, model.CaseEskaliert, "Eskalation auf Empfehlung der Ombudsperson."))
		change.AuditEntries = append(change.AuditEntries,
			s.auditor.Build(ctx, s.auditEvent(ctx, model.AuditCaseEscalated, "case", c.ID, nil)))
	}

	if err := s.apply(ctx, change); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddNote appends a free-standing note to the case history. Notes that may
// carry identity are encrypted with the case as context.
func (s *Service) AddNote(ctx context.Context, caseID, text string, visibleToReporter bool) (*model.CaseEvent, error) {
	if err := access.Require(ctx, access.ManageCases); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errs.Validation("Die Notiz darf nicht leer sein.").WithField("text", "erforderlich")
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	enc, err := s.env.Encrypt(text, c.ID+":note")
	if err != nil {
		return nil, errs.Crypto(err)
	}

	actor, _ := reqctx.ActorFrom(ctx)
	ev := &model.CaseEvent{
		TenantID:          tenantID,
		CaseID:            c.ID,
		EventType:         model.EventNoteAdded,
		ActorID:           actor.UserID,
		DescriptionEnc:    enc,
		Internal:          !visibleToReporter,
		VisibleToReporter: visibleToReporter,
	}
	if err := s.store.InsertCaseEvent(ctx, ev); err != nil {
		return nil, err
	}
	s.auditor.Record(ctx, s.auditEvent(ctx, model.AuditCaseNoteAdded, "case", c.ID, nil))
	return ev, nil
}

// Get returns the full view of one case: history, deadline rows and the
// next statutory deadline.
func (s *Service) Get(ctx context.Context, caseID string) (*Detail, error) {
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCaseVisible(ctx, c); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListCaseEvents(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListDeadlinesByCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	statuses := make([]deadline.Status, 0, len(rows))
	for _, d := range rows {
		statuses = append(statuses, deadline.Status{
			Type:          d.Type,
			DueAt:         d.DueAt,
			Light:         deadline.Classify(d.DueAt, d.DoneAt, now),
			DaysRemaining: int(d.DueAt.Sub(now) / (24 * time.Hour)),
		})
	}
	return &Detail{
		Case:      c,
		Deadline:  deadline.NextActive(c, report, now),
		Events:    events,
		Deadlines: statuses,
	}, nil
}

// List returns the tenant's cases with their next deadlines plus the
// traffic-light summary. Fallbearbeiter see only their own cases.
func (s *Service) List(ctx context.Context, limit, offset int) ([]View, deadline.Summary, error) {
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, deadline.Summary{}, err
	}
	actor, ok := reqctx.ActorFrom(ctx)
	if !ok {
		return nil, deadline.Summary{}, errs.Unauthenticated("Anmeldung erforderlich.")
	}
	assignedOnly := false
	switch {
	case access.Has(actor.Role, access.ViewAllCases):
	case access.Has(actor.Role, access.ViewAssignedCases):
		assignedOnly = true
	default:
		return nil, deadline.Summary{}, errs.Forbidden("Keine Berechtigung für diese Aktion.")
	}

	cases, err := s.store.ListCases(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, deadline.Summary{}, err
	}

	now := s.clock()
	views := make([]View, 0, len(cases))
	lights := make([]model.TrafficLight, 0, len(cases))
	for _, c := range cases {
		if assignedOnly && c.AssigneeID != actor.UserID {
			continue
		}
		report, err := s.store.GetReport(ctx, tenantID, c.ReportID)
		if err != nil {
			return nil, deadline.Summary{}, err
		}
		st := deadline.NextActive(c, report, now)
		views = append(views, View{Case: c, Deadline: st})
		lights = append(lights, st.Light)
	}
	return views, deadline.Summarize(lights), nil
}

// requireCaseVisible enforces the assignee restriction for roles that can
// only see their own cases.
func (s *Service) requireCaseVisible(ctx context.Context, c *model.Case) error {
	actor, ok := reqctx.ActorFrom(ctx)
	if !ok {
		return errs.Unauthenticated("Anmeldung erforderlich.")
	}
	if access.Has(actor.Role, access.ViewAllCases) {
		return nil
	}
	if access.Has(actor.Role, access.ViewAssignedCases) && c.AssigneeID == actor.UserID {
		return nil
	}
	return errs.Forbidden("Keine Berechtigung für diesen Fall.")
}

// notifyReporter enqueues a reporter-facing notification. Anonymous
// reports and reports without a contact address are skipped silently.
func (s *Service) notifyReporter(report *model.Report, tmpl notify.Template, data map[string]string) {
	if s.notifier == nil || report.IsAnonymous || report.MelderEmailEnc == "" {
		return
	}
	email, err := s.env.Decrypt(report.MelderEmailEnc, report.ID+":melder_email")
	if err != nil || email == "" {
		return
	}
	s.notifier.Notify(notify.Message{
		TenantID:  report.TenantID,
		Recipient: email,
		Template:  tmpl,
		Data:      data,
	})
}

// apply runs a case change and unwinds its audit entries when the
// transaction aborts, keeping the tenant's chain head consistent.
func (s *Service) apply(ctx context.Context, change *store.CaseChange) error {
	if err := s.store.ApplyCaseChange(ctx, change); err != nil {
		for i := len(change.AuditEntries) - 1; i >= 0; i-- {
			s.auditor.Discard(change.AuditEntries[i])
		}
		return err
	}
	return nil
}

func (s *Service) auditEvent(ctx context.Context, action model.AuditAction, resourceType, resourceID string, changes interface{}) audit.Event {
	tenantID, _ := reqctx.TenantID(ctx)
	actor, _ := reqctx.ActorFrom(ctx)
	meta := reqctx.MetaFrom(ctx)
	return audit.Event{
		Action:       action,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
		Method:       meta.Method,
		Path:         meta.Path,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		Success:      true,
	}
}

func statusChangeEvent(tenantID, caseID, actorID string, from, to model.CaseStatus, comment string) *model.CaseEvent {
	return &model.CaseEvent{
		TenantID:    tenantID,
		CaseID:      caseID,
		EventType:   model.EventStatusChange,
		OldStatus:   &from,
		NewStatus:   &to,
		ActorID:     actorID,
		Description: comment,
	}
}
