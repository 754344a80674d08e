// Package intake receives confidential submissions: validation,
// field-level encryption, code generation and the statutory timers that
// start at receipt.
package intake

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aitema/hinweis-backend/internal/access"
	"github.com/aitema/hinweis-backend/internal/audit"
	"github.com/aitema/hinweis-backend/internal/crypto"
	"github.com/aitema/hinweis-backend/internal/deadline"
	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/model"
	"github.com/aitema/hinweis-backend/internal/reqctx"
	"github.com/aitema/hinweis-backend/internal/tenantcfg"
)

const (
	minTitelLen        = 10
	minBeschreibungLen = 50
)

// Store is the persistence surface the intake service needs.
type Store interface {
	CreateSubmission(ctx context.Context, r *model.Report, deadlines []*model.Deadline, auditEntry *model.AuditEntry) error
	GetReport(ctx context.Context, tenantID, reportID string) (*model.Report, error)
	GetReportByAccessCode(ctx context.Context, accessCode string) (*model.Report, error)
	ListReports(ctx context.Context, tenantID string, limit, offset int) ([]*model.Report, error)
	InsertAttachment(ctx context.Context, a *model.Attachment) error
	ListAttachmentsByReport(ctx context.Context, tenantID, reportID string) ([]*model.Attachment, error)
}

// Service handles report intake and staff-side report access.
type Service struct {
	store    Store
	env      *crypto.Envelope
	settings *tenantcfg.Cache
	auditor  *audit.Logger
	clock    func() time.Time
}

// NewService wires the intake service.
func NewService(st Store, env *crypto.Envelope, settings *tenantcfg.Cache, auditor *audit.Logger) *Service {
	return &Service{
		store:    st,
		env:      env,
		settings: settings,
		auditor:  auditor,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SubmitRequest is one incoming report.
type SubmitRequest struct {
	Titel        string         `json:"titel"`
	Beschreibung string         `json:"beschreibung"`
	Kategorie    model.Category `json:"kategorie"`
	Prioritaet   model.Priority `json:"prioritaet,omitempty"`
	Channel      model.Channel  `json:"channel,omitempty"`
	Language     string         `json:"language,omitempty"`

	// IsAnonymous declares the submission anonymous. When absent, the
	// report counts as anonymous exactly when no reporter identity is
	// given.
	IsAnonymous *bool `json:"is_anonymous,omitempty"`

	// Reporter identity, all optional. Empty everywhere means anonymous.
	MelderName    string `json:"melder_name,omitempty"`
	MelderEmail   string `json:"melder_email,omitempty"`
	MelderTelefon string `json:"melder_telefon,omitempty"`

	BetroffenePersonen string `json:"betroffene_personen,omitempty"`
	AbteilungBetroffen string `json:"abteilung_betroffen,omitempty"`
	Zeitraum           string `json:"zeitraum,omitempty"`
}

// SubmitResponse carries the codes the reporter must keep. The access
// code is shown exactly once.
type SubmitResponse struct {
	ReportID                  string    `json:"report_id"`
	ReferenceCode             string    `json:"reference_code"`
	AccessCode                string    `json:"access_code"`
	EingegangenAm             time.Time `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time `json:"rueckmeldung_frist"`
}

// Submit validates, encrypts and stores a new report. The acknowledgement
// and feedback timers start immediately.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	now := s.clock()
	settings := s.settings.Get(ctx, tenantID)

	referenceCode, err := crypto.GenerateReferenceCode(now.Year())
	if err != nil {
		return nil, errs.Internal(err)
	}
	accessCode, err := crypto.GenerateAccessCode()
	if err != nil {
		return nil, errs.Internal(err)
	}

	r := &model.Report{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		ReferenceCode: referenceCode,
		AccessCode:    accessCode,
		Kategorie:     req.Kategorie,
		Prioritaet:    defaultPriority(req.Prioritaet),
		Status:        model.ReportEingegangen,
		Channel:       defaultChannel(req.Channel),
		Language:      defaultLanguage(req.Language),
		IsAnonymous:   isAnonymous(req),

		AbteilungBetroffen: req.AbteilungBetroffen,
		Zeitraum:           req.Zeitraum,

		EingegangenAm:             now,
		EingangsbestaetigungFrist: deadline.Ack(now, settings),
		RueckmeldungFrist:         deadline.Feedback(now, settings),
	}

	meta := reqctx.MetaFrom(ctx)
	if meta.IPAddress != "" {
		r.IPHash = crypto.SearchHash(tenantID, meta.IPAddress)
	}

	if err := s.encryptFields(r, req); err != nil {
		return nil, err
	}

	deadlines := []*model.Deadline{
		{TenantID: tenantID, ReportID: r.ID, Type: model.DeadlineAck7d, DueAt: r.EingangsbestaetigungFrist},
		{TenantID: tenantID, ReportID: r.ID, Type: model.DeadlineFeedback3m, DueAt: r.RueckmeldungFrist},
	}

	entry := s.auditor.Build(ctx, audit.Event{
		Action:       model.AuditSubmissionCreated,
		TenantID:     tenantID,
		ResourceType: "report",
		ResourceID:   r.ID,
		Changes:      map[string]string{"reference_code": referenceCode, "kategorie": string(req.Kategorie)},
		Method:       meta.Method,
		Path:         meta.Path,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})

	if err := s.store.CreateSubmission(ctx, r, deadlines, entry); err != nil {
		s.auditor.Discard(entry)
		return nil, err
	}

	return &SubmitResponse{
		ReportID:                  r.ID,
		ReferenceCode:             r.ReferenceCode,
		AccessCode:                accessCode,
		EingegangenAm:             r.EingegangenAm,
		EingangsbestaetigungFrist: r.EingangsbestaetigungFrist,
		RueckmeldungFrist:         r.RueckmeldungFrist,
	}, nil
}

// encryptFields fills the envelope columns, each bound to the report and
// column name.
func (s *Service) encryptFields(r *model.Report, req SubmitRequest) error {
	fields := []struct {
		value string
		name  string
		dst   *string
	}{
		{req.Titel, "titel", &r.TitelEnc},
		{req.Beschreibung, "beschreibung", &r.BeschreibungEnc},
		{req.MelderName, "melder_name", &r.MelderNameEnc},
		{req.MelderEmail, "melder_email", &r.MelderEmailEnc},
		{req.MelderTelefon, "melder_telefon", &r.MelderTelefonEnc},
		{req.BetroffenePersonen, "betroffene_personen", &r.BetroffenePersEnc},
	}
	for _, f := range fields {
		enc, err := s.env.Encrypt(f.value, r.ID+":"+f.name)
		if err != nil {
			return errs.Crypto(err)
		}
		*f.dst = enc
	}
	return nil
}

// StatusView is the reporter-facing redacted view: no identity, no
// content, just the lifecycle and the timers.
type StatusView struct {
	ReferenceCode             string             `json:"reference_code"`
	Status                    model.ReportStatus `json:"status"`
	EingegangenAm             time.Time          `json:"eingegangen_am"`
	EingangsbestaetigungFrist time.Time          `json:"eingangsbestaetigung_frist"`
	RueckmeldungFrist         time.Time          `json:"rueckmeldung_frist"`
	EingangsbestaetigungAm    *time.Time         `json:"eingangsbestaetigung_am,omitempty"`
	RueckmeldungAm            *time.Time         `json:"rueckmeldung_am,omitempty"`
}

// StatusByAccessCode resolves the reporter's view of their own report.
// Access codes are globally unique; no tenant context is required.
func (s *Service) StatusByAccessCode(ctx context.Context, accessCode string) (*StatusView, error) {
	if accessCode == "" {
		return nil, errs.NotFound("Kein Vorgang zu diesem Zugangscode gefunden.")
	}
	r, err := s.store.GetReportByAccessCode(ctx, accessCode)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ReferenceCode:             r.ReferenceCode,
		Status:                    r.Status,
		EingegangenAm:             r.EingegangenAm,
		EingangsbestaetigungFrist: r.EingangsbestaetigungFrist,
		RueckmeldungFrist:         r.RueckmeldungFrist,
		EingangsbestaetigungAm:    r.EingangsbestaetigungAm,
		RueckmeldungAm:            r.RueckmeldungAm,
	}, nil
}

// Detail is the decrypted staff view of a report.
type Detail struct {
	Report             *model.Report `json:"report"`
	Titel              string        `json:"titel"`
	Beschreibung       string        `json:"beschreibung"`
	MelderName         string        `json:"melder_name,omitempty"`
	MelderEmail        string        `json:"melder_email,omitempty"`
	MelderTelefon      string        `json:"melder_telefon,omitempty"`
	BetroffenePersonen string        `json:"betroffene_personen,omitempty"`
}

// Get returns the decrypted report for authorized staff. Every access is
// audited.
func (s *Service) Get(ctx context.Context, reportID string) (*Detail, error) {
	if err := access.Require(ctx, access.ViewSubmissions); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetReport(ctx, tenantID, reportID)
	if err != nil {
		return nil, err
	}
	detail, err := s.decrypt(r)
	if err != nil {
		return nil, err
	}

	actor, _ := reqctx.ActorFrom(ctx)
	meta := reqctx.MetaFrom(ctx)
	s.auditor.Record(ctx, audit.Event{
		Action:       model.AuditSubmissionViewed,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: "report",
		ResourceID:   r.ID,
		Method:       meta.Method,
		Path:         meta.Path,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})
	return detail, nil
}

// ListItem is one row of the staff report list: title decrypted, identity
// withheld.
type ListItem struct {
	Report *model.Report `json:"report"`
	Titel  string        `json:"titel"`
}

// List returns the tenant's reports, newest first, with decrypted titles.
func (s *Service) List(ctx context.Context, limit, offset int) ([]ListItem, error) {
	if err := access.Require(ctx, access.ViewSubmissions); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ListItem, 0, len(reports))
	for _, r := range reports {
		titel, err := s.env.Decrypt(r.TitelEnc, r.ID+":titel")
		if err != nil {
			return nil, errs.Crypto(err)
		}
		out = append(out, ListItem{Report: r, Titel: titel})
	}
	return out, nil
}

// AttachmentRequest is the metadata for one uploaded file. The binary is
// stored encrypted outside the database; only metadata lands here.
type AttachmentRequest struct {
	ReportID     string `json:"report_id"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	SHA256Plain  string `json:"-"`
	SHA256Cipher string `json:"-"`
	Nonce        string `json:"-"`
	Tag          string `json:"-"`
}

// AddAttachment records attachment metadata. The stored filename is
// UUID-derived and leaks nothing about the upload.
func (s *Service) AddAttachment(ctx context.Context, req AttachmentRequest) (*model.Attachment, error) {
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if req.ReportID == "" || req.Filename == "" {
		return nil, errs.Validation("Anhang unvollständig.").WithField("filename", "erforderlich")
	}
	if _, err := s.store.GetReport(ctx, tenantID, req.ReportID); err != nil {
		return nil, err
	}

	actor, _ := reqctx.ActorFrom(ctx)
	a := &model.Attachment{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ReportID:       req.ReportID,
		Filename:       req.Filename,
		StoredFilename: uuid.NewString() + ".bin",
		MimeType:       req.MimeType,
		SizeBytes:      req.SizeBytes,
		SHA256Plain:    req.SHA256Plain,
		SHA256Cipher:   req.SHA256Cipher,
		Nonce:          req.Nonce,
		Tag:            req.Tag,
		UploadedBy:     actor.UserID,
	}
	if err := s.store.InsertAttachment(ctx, a); err != nil {
		return nil, err
	}

	meta := reqctx.MetaFrom(ctx)
	s.auditor.Record(ctx, audit.Event{
		Action:       model.AuditAttachmentUploaded,
		TenantID:     tenantID,
		UserID:       actor.UserID,
		ResourceType: "attachment",
		ResourceID:   a.ID,
		Method:       meta.Method,
		Path:         meta.Path,
		IPAddress:    meta.IPAddress,
		Success:      true,
	})
	return a, nil
}

// Attachments lists the attachment metadata of a report.
func (s *Service) Attachments(ctx context.Context, reportID string) ([]*model.Attachment, error) {
	if err := access.Require(ctx, access.ViewSubmissions); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListAttachmentsByReport(ctx, tenantID, reportID)
}

func (s *Service) decrypt(r *model.Report) (*Detail, error) {
	d := &Detail{Report: r}
	fields := []struct {
		enc  string
		name string
		dst  *string
	}{
		{r.TitelEnc, "titel", &d.Titel},
		{r.BeschreibungEnc, "beschreibung", &d.Beschreibung},
		{r.MelderNameEnc, "melder_name", &d.MelderName},
		{r.MelderEmailEnc, "melder_email", &d.MelderEmail},
		{r.MelderTelefonEnc, "melder_telefon", &d.MelderTelefon},
		{r.BetroffenePersEnc, "betroffene_personen", &d.BetroffenePersonen},
	}
	for _, f := range fields {
		plain, err := s.env.Decrypt(f.enc, r.ID+":"+f.name)
		if err != nil {
			return nil, errs.Crypto(err)
		}
		*f.dst = plain
	}
	return d, nil
}

func validateSubmit(req SubmitRequest) error {
	if utf8.RuneCountInString(req.Titel) < minTitelLen {
		return errs.Validation(fmt.Sprintf("Der Titel muss mindestens %d Zeichen lang sein.", minTitelLen)).
			WithField("titel", fmt.Sprintf("mindestens %d Zeichen", minTitelLen))
	}
	if utf8.RuneCountInString(req.Beschreibung) < minBeschreibungLen {
		return errs.Validation(fmt.Sprintf("Die Beschreibung muss mindestens %d Zeichen lang sein.", minBeschreibungLen)).
			WithField("beschreibung", fmt.Sprintf("mindestens %d Zeichen", minBeschreibungLen))
	}
	if !model.ValidCategory(req.Kategorie) {
		return errs.Validation(fmt.Sprintf("Unbekannte Kategorie: %s", req.Kategorie)).
			WithField("kategorie", "ungültig")
	}
	return nil
}

// isAnonymous honors an explicit declaration; without one the report is
// anonymous exactly when no reporter identity was given.
func isAnonymous(req SubmitRequest) bool {
	if req.IsAnonymous != nil {
		return *req.IsAnonymous
	}
	return req.MelderName == "" && req.MelderEmail == "" && req.MelderTelefon == ""
}

func defaultPriority(p model.Priority) model.Priority {
	if p == "" {
		return model.PriorityMittel
	}
	return p
}

func defaultChannel(c model.Channel) model.Channel {
	if c == "" {
		return model.ChannelWeb
	}
	return c
}

func defaultLanguage(l string) string {
	if l == "" {
		return "de"
	}
	return l
}
